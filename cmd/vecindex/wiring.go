package main

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/antflydb/vecindex/collection"
	"github.com/antflydb/vecindex/config"
	"github.com/antflydb/vecindex/indexer"
	"github.com/antflydb/vecindex/logging"
	"github.com/antflydb/vecindex/manifest"
	"github.com/antflydb/vecindex/schema"
	"github.com/antflydb/vecindex/vectorstore"
)

// loadedApp bundles everything a subcommand needs, built once from the
// config and model-descriptor files named by the root command's flags.
type loadedApp struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *schema.Registry
	store    vectorstore.Client
	resolver *collection.Resolver
	manifest *manifest.Store
}

func load() (*loadedApp, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logger := logging.NewLogger(cfg.LogConfig())

	specs, err := schema.LoadDescriptors(modelsPath)
	if err != nil {
		return nil, fmt.Errorf("loading model descriptors: %w", err)
	}
	registry, err := schema.NewRegistry(specs...)
	if err != nil {
		return nil, fmt.Errorf("building model registry: %w", err)
	}

	if cfg.VectorStore.Endpoint == "" {
		return nil, fmt.Errorf("config: vector_store.endpoint is required")
	}
	httpClient := &http.Client{Timeout: time.Duration(cfg.VectorStore.TimeoutSec) * time.Second}
	store := vectorstore.NewHTTPClient(cfg.VectorStore.Endpoint, httpClient).WithAPIKey(cfg.VectorStore.APIKey)

	return &loadedApp{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		store:    store,
		resolver: collection.New(cfg.Strategy()),
		manifest: manifest.New(cfg.OutRoot),
	}, nil
}

// partitionSpecs converts every (non-deleted) registered partition into
// an indexer.PartitionSpec, inferring each model file's Format from its
// source path extension.
func (a *loadedApp) partitionSpecs(names []string) ([]indexer.PartitionSpec, error) {
	m, err := a.manifest.Read()
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	wanted := map[string]bool{}
	for _, n := range names {
		wanted[n] = true
	}

	var specs []indexer.PartitionSpec
	for _, p := range m.Partitions {
		if len(names) > 0 && !wanted[p.Name] {
			continue
		}
		spec := indexer.PartitionSpec{Name: p.Name, Models: map[string]indexer.ModelFile{}}
		for model, entry := range p.Models {
			if entry.Deleted {
				continue
			}
			spec.Models[model] = indexer.ModelFile{
				Path:          entry.SourcePath,
				Format:        formatFor(entry.SourcePath),
				SchemaVersion: entry.SchemaVersion,
			}
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func formatFor(path string) indexer.Format {
	if strings.EqualFold(filepath.Ext(path), ".jsonl") {
		return indexer.FormatJSONL
	}
	return indexer.FormatCSV
}
