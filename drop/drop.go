// Package drop implements Drop Plan loading and application: resolving a
// drop config into a vector-store metadata filter, deleting the matching
// records (or, under the per-partition Collection Strategy, the whole
// collection), and recording the drop in the Manifest Store.
package drop

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/antflydb/vecindex/collection"
	"github.com/antflydb/vecindex/manifest"
	"github.com/antflydb/vecindex/vectorstore"
)

// ModelSelector names what to drop for one model: a set of partitions
// and/or schema versions, and why.
type ModelSelector struct {
	Partitions     []string `json:"partitions,omitempty"`
	SchemaVersions []int    `json:"schema_versions,omitempty"`
	Reason         string   `json:"reason,omitempty"`
}

// Plan is the on-disk shape of configs/drop/*.json.
type Plan struct {
	GeneratedAt    string                   `json:"generated_at"`
	SourceManifest string                   `json:"source_manifest"`
	Before         string                   `json:"before,omitempty"`
	Models         map[string]ModelSelector `json:"models"`
}

// Load reads a Plan from path.
func Load(path string) (*Plan, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading drop plan %s: %w", path, err)
	}
	var p Plan
	if err := sonic.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("parsing drop plan %s: %w", path, err)
	}
	return &p, nil
}

// Affected is one model's resolved filter and the collection(s) it maps
// to, the unit of work Apply performs and Preview reports.
type Affected struct {
	Model          string
	Filter         vectorstore.Filter
	Partitions     []string
	SchemaVersions []int
	// Collections lists the concrete collection(s) this model's drop
	// touches, resolved via the caller's collection.Resolver.
	Collections []string
	// Strategy is the Collection Strategy in effect when this entry was
	// resolved; it gates whether Apply may drop a whole collection.
	Strategy collection.Strategy
	// Reason carries the plan's per-model drop reason through to the
	// manifest's audit entry.
	Reason string
}

// Resolve expands plan into one Affected entry per model, sorted by model
// name for determinism.
func (p *Plan) Resolve(resolver *collection.Resolver, baseCollection string, allPartitions []string) []Affected {
	names := make([]string, 0, len(p.Models))
	for m := range p.Models {
		names = append(names, m)
	}
	sort.Strings(names)

	out := make([]Affected, 0, len(names))
	for _, model := range names {
		sel := p.Models[model]
		partitions := append([]string(nil), sel.Partitions...)
		sort.Strings(partitions)
		versions := append([]int(nil), sel.SchemaVersions...)
		sort.Ints(versions)

		out = append(out, Affected{
			Model:          model,
			Filter:         buildFilter(model, partitions, versions),
			Partitions:     partitions,
			SchemaVersions: versions,
			Collections:    collectionsFor(resolver, baseCollection, partitions, allPartitions),
			Strategy:       resolver.Strategy(),
			Reason:         sel.Reason,
		})
	}
	return out
}

// buildFilter maps (model, partitions, schema_versions) to the metadata
// filter AND(model_name=M, partition_name in {...}, schema_version in
// {...}), omitting empty clauses.
func buildFilter(model string, partitions []string, versions []int) vectorstore.Filter {
	var clauses []vectorstore.Filter
	clauses = append(clauses, vectorstore.Filter{"model_name": vectorstore.Filter{vectorstore.OpEq: model}})
	if len(partitions) > 0 {
		ps := make([]any, len(partitions))
		for i, p := range partitions {
			ps[i] = p
		}
		clauses = append(clauses, vectorstore.Filter{"partition_name": vectorstore.Filter{vectorstore.OpIn: ps}})
	}
	if len(versions) > 0 {
		vs := make([]any, len(versions))
		for i, v := range versions {
			vs[i] = v
		}
		clauses = append(clauses, vectorstore.Filter{"schema_version": vectorstore.Filter{vectorstore.OpIn: vs}})
	}
	if len(clauses) == 1 {
		return clauses[0]
	}
	return vectorstore.Filter{vectorstore.OpAnd: clauses}
}

// collectionsFor resolves which concrete collections a drop touches.
// Under PerPartition strategy that's one collection per named partition
// (or every known partition, if none named); under Single it's the one
// shared collection.
func collectionsFor(resolver *collection.Resolver, base string, partitions, allPartitions []string) []string {
	if resolver.Strategy() != collection.PerPartition {
		return []string{resolver.CollectionFor("", base)}
	}
	ps := partitions
	if len(ps) == 0 {
		ps = allPartitions
	}
	names := make([]string, 0, len(ps))
	seen := make(map[string]bool, len(ps))
	for _, p := range ps {
		c := resolver.CollectionFor(p, base)
		if seen[c] {
			continue
		}
		seen[c] = true
		names = append(names, c)
	}
	sort.Strings(names)
	return names
}

// Result reports what Apply did for one Affected entry.
type Result struct {
	Affected Affected
	// DeletedCollection is true when the whole collection was dropped
	// (PerPartition strategy) rather than a metadata-filtered delete.
	DeletedCollection bool
}

// Apply executes a resolved Plan against the vector store and the
// Manifest Store. When dryRun is true, Apply performs no mutation and
// returns the resolved Result set for preview only.
//
// Whether a drop deletes by metadata filter or drops a whole
// per-partition collection is decided by the Collection Strategy, never
// conflated: under PerPartition, an entry that names at least one
// partition and no schema versions drops its collections outright
// (collectionDropEligible); every other entry, and every entry under
// Single, deletes by filter.
func Apply(ctx context.Context, store vectorstore.Client, manifestStore *manifest.Store, affected []Affected, actor, configPath string, dryRun bool) ([]Result, error) {
	results := make([]Result, 0, len(affected))
	var allPartitions []string
	for _, a := range affected {
		allPartitions = append(allPartitions, a.Partitions...)
	}

	for _, a := range affected {
		dropWholeCollection := len(a.Collections) > 0 && collectionDropEligible(a)
		results = append(results, Result{Affected: a, DeletedCollection: dropWholeCollection})
		if dryRun {
			continue
		}

		for _, collName := range a.Collections {
			handle, err := store.GetOrCreateCollection(ctx, collName)
			if err != nil {
				return results, fmt.Errorf("drop %s: getting collection %q: %w", a.Model, collName, err)
			}
			if dropWholeCollection {
				if err := store.Delete(ctx, handle, vectorstore.Filter{}); err != nil {
					return results, fmt.Errorf("drop %s: deleting collection %q: %w", a.Model, collName, err)
				}
				continue
			}
			if err := store.Delete(ctx, handle, a.Filter); err != nil {
				return results, fmt.Errorf("drop %s: deleting from %q: %w", a.Model, collName, err)
			}
		}
	}

	if dryRun {
		return results, nil
	}

	if manifestStore != nil && len(allPartitions) > 0 {
		if err := manifestStore.MarkDeleted(ctx, dedupe(allPartitions), joinReasons(affected), actor, configPath); err != nil {
			return results, fmt.Errorf("recording drop in manifest: %w", err)
		}
	}
	return results, nil
}

// collectionDropEligible reports whether this Affected entry names no
// schema-version filter and at least one partition, meaning a whole
// per-partition collection can be dropped instead of filtered, per the
// Collection Strategy's delete_stale contract.
func collectionDropEligible(a Affected) bool {
	return a.Strategy == collection.PerPartition && len(a.SchemaVersions) == 0 && len(a.Partitions) > 0
}

// joinReasons concatenates each affected model's drop reason into one
// string for the manifest's single audit-entry reason field, skipping
// models that didn't name one.
func joinReasons(affected []Affected) string {
	var reasons []string
	for _, a := range affected {
		if a.Reason == "" {
			continue
		}
		reasons = append(reasons, fmt.Sprintf("%s: %s", a.Model, a.Reason))
	}
	if len(reasons) == 0 {
		return "drop plan applied"
	}
	return strings.Join(reasons, "; ")
}

func dedupe(ss []string) []string {
	seen := make(map[string]bool, len(ss))
	var out []string
	for _, s := range ss {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
