// Package manifest implements the Manifest Store: the global, exclusively
// locked registry of partitions and their per-model schema state, plus
// the drop audit log.
package manifest

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

// ModelEntry is one model's registration within a partition.
type ModelEntry struct {
	SchemaVersion int    `json:"schema_version"`
	SourcePath    string `json:"source_path"`
	DigestPath    string `json:"digest_path"`
	Stale         bool   `json:"stale"`
	Deleted       bool   `json:"deleted"`
	DeletedAt     string `json:"deleted_at,omitempty"`
	DropReason    string `json:"drop_reason,omitempty"`
}

// Partition is one registered partition.
type Partition struct {
	Name      string                `json:"name"`
	CreatedAt string                `json:"created_at"`
	Models    map[string]ModelEntry `json:"models"`
	Replaces  []string              `json:"replaces,omitempty"`
}

// DropAffected names what a drop entry touched.
type DropAffected struct {
	Partitions     []string `json:"partitions,omitempty"`
	Models         []string `json:"models,omitempty"`
	SchemaVersions []int    `json:"schema_versions,omitempty"`
}

// DropEntry is one audit-log row appended by MarkDeleted. ID is a random
// id that uniquely identifies the entry; it is not shared with error
// reports.
type DropEntry struct {
	ID          string       `json:"id"`
	PerformedAt string       `json:"performed_at"`
	PerformedBy string       `json:"performed_by"`
	Config      string       `json:"config,omitempty"`
	Affected    DropAffected `json:"affected"`
}

// Manifest is the on-disk shape.
type Manifest struct {
	Partitions []Partition `json:"partitions"`
	Drops      []DropEntry `json:"drops"`
}

// Store is the Manifest Store: a single JSON file guarded by an exclusive
// cross-process file lock for all writers. Reads never take the lock —
// they see whole-file snapshots.
type Store struct {
	path     string
	lockPath string

	// mu serialises in-process writers; flock serialises cross-process
	// writers. Both are required: flock alone does not prevent two
	// goroutines in the same process from racing the temp-file dance.
	mu sync.Mutex
}

// New constructs a Store rooted at <root>/manifest.json.
func New(root string) *Store {
	path := filepath.Join(root, "manifest.json")
	return &Store{path: path, lockPath: path + ".lock"}
}

// Read returns a snapshot of the manifest. Absent file reads as an empty
// manifest.
func (s *Store) Read() (*Manifest, error) {
	var m Manifest
	ok, err := readJSON(s.path, &m)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	if !ok {
		return &Manifest{}, nil
	}
	return &m, nil
}

// withLock runs fn while holding both the in-process mutex and the
// cross-process exclusive file lock, then re-reads, mutates via fn, and
// writes atomically.
func (s *Store) withLock(ctx context.Context, fn func(m *Manifest) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fl := flock.New(s.lockPath)
	locked, err := fl.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("acquiring manifest lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("acquiring manifest lock: timed out")
	}
	defer fl.Unlock()

	m, err := s.Read()
	if err != nil {
		return err
	}
	if err := fn(m); err != nil {
		return err
	}
	return writeJSONAtomic(s.path, m)
}

// StalePartitions scans a snapshot for every (model -> partition) pair
// marked stale but not yet deleted, grouped by model name, for callers
// deciding whether delete_stale has work to do.
func (m *Manifest) StalePartitions() map[string][]string {
	out := map[string][]string{}
	for _, p := range m.Partitions {
		for model, entry := range p.Models {
			if entry.Stale && !entry.Deleted {
				out[model] = append(out[model], p.Name)
			}
		}
	}
	for model := range out {
		sort.Strings(out[model])
	}
	return out
}

// AppendPartition allocates the next monotonic partition name and records
// its per-model registrations and (optional) replacement list.
func (s *Store) AppendPartition(ctx context.Context, models map[string]ModelEntry, replaces []string) (string, error) {
	var name string
	err := s.withLock(ctx, func(m *Manifest) error {
		for _, r := range replaces {
			if !partitionExists(m, r) {
				return fmt.Errorf("append_partition: replaces unknown partition %q", r)
			}
		}
		name = nextPartitionName(m)
		m.Partitions = append(m.Partitions, Partition{
			Name:      name,
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
			Models:    models,
			Replaces:  replaces,
		})
		return nil
	})
	return name, err
}

func partitionExists(m *Manifest, name string) bool {
	for _, p := range m.Partitions {
		if p.Name == name {
			return true
		}
	}
	return false
}

// nextPartitionName allocates "partition_NNNNN" one past the highest
// existing index, monotonic regardless of deletions.
func nextPartitionName(m *Manifest) string {
	max := -1
	for _, p := range m.Partitions {
		var n int
		if _, err := fmt.Sscanf(p.Name, "partition_%05d", &n); err == nil && n > max {
			max = n
		}
	}
	return fmt.Sprintf("partition_%05d", max+1)
}

// MarkStale flips the stale flag on the named partitions' every model
// entry.
func (s *Store) MarkStale(ctx context.Context, partitions []string) error {
	return s.withLock(ctx, func(m *Manifest) error {
		set := toSet(partitions)
		for i := range m.Partitions {
			if !set[m.Partitions[i].Name] {
				continue
			}
			for model, entry := range m.Partitions[i].Models {
				entry.Stale = true
				m.Partitions[i].Models[model] = entry
			}
		}
		return nil
	})
}

// MarkDeleted flips deleted on the named partitions' models and appends a
// drops audit entry. configPath, if non-empty, is recorded on the entry so
// the audit log can be traced back to the drop plan that produced it.
func (s *Store) MarkDeleted(ctx context.Context, partitions []string, reason, actor, configPath string) error {
	return s.withLock(ctx, func(m *Manifest) error {
		set := toSet(partitions)
		now := time.Now().UTC().Format(time.RFC3339)
		var touchedModels []string
		for i := range m.Partitions {
			if !set[m.Partitions[i].Name] {
				continue
			}
			for model, entry := range m.Partitions[i].Models {
				entry.Deleted = true
				entry.DeletedAt = now
				entry.DropReason = reason
				m.Partitions[i].Models[model] = entry
				touchedModels = append(touchedModels, model)
			}
		}
		sort.Strings(touchedModels)
		m.Drops = append(m.Drops, DropEntry{
			ID:          uuid.NewString(),
			PerformedAt: now,
			PerformedBy: actor,
			Config:      configPath,
			Affected:    DropAffected{Partitions: append([]string(nil), partitions...), Models: dedupe(touchedModels)},
		})
		return nil
	})
}

func toSet(ss []string) map[string]bool {
	set := make(map[string]bool, len(ss))
	for _, s := range ss {
		set[s] = true
	}
	return set
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
