// Package queryconfig implements the Query Config Builder: scanning every
// partition's resume stores to emit the bidirectional model/collection
// routing map the Query Client consumes.
package queryconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bytedance/sonic"
)

// ModelRouting is one model's entry in model_to_collections.
type ModelRouting struct {
	Collections    []string `json:"collections"`
	TotalDocuments int      `json:"total_documents"`
	Partitions     []string `json:"partitions"`
}

// Metadata carries the summary counters.
type Metadata struct {
	TotalCollections int    `json:"total_collections"`
	TotalModels      int    `json:"total_models"`
	GeneratedAt      string `json:"generated_at"`
	CollectionPrefix string `json:"collection_prefix,omitempty"`
}

// Config is the Query Config Builder's output shape.
type Config struct {
	ModelToCollections map[string]ModelRouting `json:"model_to_collections"`
	CollectionToModels map[string][]string     `json:"collection_to_models"`
	Metadata           Metadata                `json:"metadata"`
}

// Warning records a resume file that was skipped rather than failing the
// whole scan.
type Warning struct {
	Path string
	Err  error
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %v", w.Path, w.Err)
}

// resumeFile is the minimal shape queryconfig needs out of a resume
// store's JSON; it does not import the resume package, and fields it does
// not declare are ignored. A file that fails to decode is skipped whole
// with a Warning.
type resumeFile map[string]struct {
	Started         bool     `json:"started"`
	CollectionCount int      `json:"collection_count"`
	Fieldnames      []string `json:"fieldnames,omitempty"`
}

// Build scans <outRoot>/<partition>/*_resume_state.json for every
// partition directory and assembles the routing map. generatedAt is
// passed in by the caller (typically time.Now().UTC().Format(time.RFC3339))
// rather than computed here, keeping this function a pure scan-and-fold.
func Build(outRoot, collectionPrefix, generatedAt string) (*Config, []Warning, error) {
	entries, err := os.ReadDir(outRoot)
	if err != nil {
		return nil, nil, fmt.Errorf("scanning %s: %w", outRoot, err)
	}

	modelToCollections := map[string]ModelRouting{}
	var warnings []Warning

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		partition := entry.Name()
		partitionDir := filepath.Join(outRoot, partition)

		files, err := os.ReadDir(partitionDir)
		if err != nil {
			warnings = append(warnings, Warning{Path: partitionDir, Err: err})
			continue
		}

		for _, f := range files {
			if f.IsDir() || !strings.HasSuffix(f.Name(), "_resume_state.json") {
				continue
			}
			collection := strings.TrimSuffix(f.Name(), "_resume_state.json")
			path := filepath.Join(partitionDir, f.Name())

			b, err := os.ReadFile(path)
			if err != nil {
				warnings = append(warnings, Warning{Path: path, Err: err})
				continue
			}
			var rf resumeFile
			if err := sonic.Unmarshal(b, &rf); err != nil {
				warnings = append(warnings, Warning{Path: path, Err: err})
				continue
			}

			for model, state := range rf {
				if !state.Started || state.CollectionCount == 0 {
					continue
				}
				routing := modelToCollections[model]
				routing.Collections = appendUnique(routing.Collections, collection)
				routing.Partitions = appendUnique(routing.Partitions, partition)
				routing.TotalDocuments += state.CollectionCount
				modelToCollections[model] = routing
			}
		}
	}

	collectionToModels := map[string][]string{}
	for model, routing := range modelToCollections {
		sort.Strings(routing.Collections)
		sort.Strings(routing.Partitions)
		modelToCollections[model] = routing
		for _, c := range routing.Collections {
			collectionToModels[c] = appendUnique(collectionToModels[c], model)
		}
	}
	for c, models := range collectionToModels {
		sort.Strings(models)
		collectionToModels[c] = models
	}

	cfg := &Config{
		ModelToCollections: modelToCollections,
		CollectionToModels: collectionToModels,
		Metadata: Metadata{
			TotalCollections: len(collectionToModels),
			TotalModels:      len(modelToCollections),
			GeneratedAt:      generatedAt,
			CollectionPrefix: collectionPrefix,
		},
	}
	return cfg, warnings, nil
}

func appendUnique(ss []string, v string) []string {
	for _, s := range ss {
		if s == v {
			return ss
		}
	}
	return append(ss, v)
}
