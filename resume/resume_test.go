package resume

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/antflydb/vecindex/vectorstore"
)

func TestStore_ReadMissingFileIsEmpty(t *testing.T) {
	s := New(t.TempDir(), "partition_00000", "widgets")
	state, ok, err := s.Read()
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, state)
}

func TestStore_WriteThenRead(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, "partition_00000", "widgets")

	state := State{
		"widgets": {Started: true, RowIndex: 500, FileOffset: 12345, CollectionCount: 500},
	}
	require.NoError(t, s.Write(state))

	got, ok, err := s.Read()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 500, got["widgets"].RowIndex)
	require.Equal(t, int64(12345), got["widgets"].FileOffset)
}

func TestStore_MalformedFileReadsAsEmptyNotOK(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, "partition_00000", "widgets")
	require.NoError(t, writeCorrupt(s.path))

	state, ok, err := s.Read()
	require.NoError(t, err, "malformed file is tolerated, not propagated as an error")
	require.False(t, ok)
	require.Empty(t, state)
}

func writeCorrupt(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte("{not valid json"), 0o644)
}

func TestStore_PersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	s1 := New(dir, "partition_00000", "widgets")
	require.NoError(t, s1.Write(State{"widgets": {Complete: true, RowIndex: 1000}}))

	s2 := New(dir, "partition_00000", "widgets")
	got, ok, err := s2.Read()
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, got["widgets"].Complete)
}

func TestReconciler_SeedsCollectionCountWhenAbsent(t *testing.T) {
	fake := vectorstore.NewFake()
	ctx := context.Background()
	h, err := fake.GetOrCreateCollection(ctx, "widgets")
	require.NoError(t, err)
	require.NoError(t, fake.Upsert(ctx, h,
		[]string{"a", "b"},
		[]string{"ta", "tb"},
		[]map[string]any{
			{"model_name": "widgets", "partition_name": "partition_00000"},
			{"model_name": "widgets", "partition_name": "partition_00000"},
		},
	))

	r := &Reconciler{Client: fake}
	state, err := r.Reconcile(ctx, State{}, h, "widgets", "partition_00000")
	require.NoError(t, err)
	require.Equal(t, 2, state["widgets"].CollectionCount)
}

func TestReconciler_NoOpWhenAlreadyStarted(t *testing.T) {
	fake := vectorstore.NewFake()
	ctx := context.Background()
	h, _ := fake.GetOrCreateCollection(ctx, "widgets")

	r := &Reconciler{Client: fake}
	in := State{"widgets": {Started: true, CollectionCount: 10}}
	state, err := r.Reconcile(ctx, in, h, "widgets", "partition_00000")
	require.NoError(t, err)
	require.Equal(t, 10, state["widgets"].CollectionCount)
}
