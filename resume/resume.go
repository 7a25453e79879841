// Package resume implements the Resume Store: the per-partition,
// per-collection JSON checkpoint that makes ingestion restartable.
package resume

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/antflydb/vecindex/vectorstore"
)

// SourceSignature is the cheap fingerprint used to decide whether a
// prepared file changed since the last successful run.
type SourceSignature struct {
	Mtime int64 `json:"mtime"`
	Size  int64 `json:"size"`
}

// ModelState is one model's checkpoint within a partition's resume file.
type ModelState struct {
	Complete         bool            `json:"complete"`
	Started          bool            `json:"started"`
	DocumentsIndexed int             `json:"documents_indexed"`
	CollectionCount  int             `json:"collection_count"`
	IndexedAt        string          `json:"indexed_at,omitempty"`
	SourceSignature  SourceSignature `json:"source_signature"`
	FileOffset       int64           `json:"file_offset"`
	RowIndex         int             `json:"row_index"`
	Fieldnames       []string        `json:"fieldnames,omitempty"`
}

// State is the full per-partition, per-collection resume document: model
// name -> checkpoint.
type State map[string]ModelState

// Store reads and atomically writes one partition's resume file.
type Store struct {
	path string
}

// New constructs a Store for <out_root>/<partition>/<collection>_resume_state.json.
func New(outRoot, partition, collection string) *Store {
	path := filepath.Join(outRoot, partition, collection+"_resume_state.json")
	return &Store{path: path}
}

// Read returns the current state. A missing file reads as empty state. A
// malformed file also reads as empty state, with ok=false so the caller
// can log a warning.
func (s *Store) Read() (state State, ok bool, err error) {
	state = State{}
	existed, parseErr := readJSON(s.path, &state)
	if parseErr != nil {
		return State{}, false, nil
	}
	return state, existed, nil
}

// Write atomically persists state.
func (s *Store) Write(state State) error {
	if err := writeJSONAtomic(s.path, state); err != nil {
		return fmt.Errorf("writing resume state: %w", err)
	}
	return nil
}

// Reconciler seeds collection_count for a model whose resume state is
// absent but the collection already holds documents for it, so resume can
// reason about rows that were ingested before the checkpoint was lost.
type Reconciler struct {
	Client vectorstore.Client
}

// Reconcile scans the vector store for existing documents tagged with
// modelName/partitionName and, if state has no entry (or an unstarted
// one) for modelName, seeds collection_count from the live count. It
// never marks a model complete on behalf of the store — only an EOF
// flush can do that.
func (r *Reconciler) Reconcile(ctx context.Context, state State, h vectorstore.Handle, modelName, partitionName string) (State, error) {
	existing, hasEntry := state[modelName]
	if hasEntry && existing.Started {
		return state, nil
	}

	count, err := r.Client.Count(ctx, h, vectorstore.Filter{
		"model_name":     modelName,
		"partition_name": partitionName,
	})
	if err != nil {
		return state, fmt.Errorf("reconciling %s/%s: %w", partitionName, modelName, err)
	}
	if count == 0 {
		return state, nil
	}

	existing.CollectionCount = count
	if state == nil {
		state = State{}
	}
	state[modelName] = existing
	return state, nil
}
