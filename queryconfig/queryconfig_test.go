package queryconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeResumeFile(t *testing.T, root, partition, collection, content string) {
	t.Helper()
	dir := filepath.Join(root, partition)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, collection+"_resume_state.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestBuild_ExcludesUnstartedAndZeroCount(t *testing.T) {
	root := t.TempDir()
	writeResumeFile(t, root, "partition_00000", "c1", `{
		"Table": {"started": true, "collection_count": 10},
		"Unstarted": {"started": false, "collection_count": 0},
		"Empty": {"started": true, "collection_count": 0}
	}`)

	cfg, warnings, err := Build(root, "", "2026-07-29T00:00:00Z")
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Contains(t, cfg.ModelToCollections, "Table")
	require.NotContains(t, cfg.ModelToCollections, "Unstarted")
	require.NotContains(t, cfg.ModelToCollections, "Empty")
}

func TestBuild_BidirectionalConsistency(t *testing.T) {
	root := t.TempDir()
	writeResumeFile(t, root, "partition_00000", "c1", `{"Table": {"started": true, "collection_count": 5}}`)
	writeResumeFile(t, root, "partition_00000", "c2", `{"Table": {"started": true, "collection_count": 5}, "Field": {"started": true, "collection_count": 3}}`)
	writeResumeFile(t, root, "partition_00001", "c3", `{"Field": {"started": true, "collection_count": 7}}`)

	cfg, warnings, err := Build(root, "", "2026-07-29T00:00:00Z")
	require.NoError(t, err)
	require.Empty(t, warnings)

	require.ElementsMatch(t, []string{"c1", "c2"}, cfg.ModelToCollections["Table"].Collections)
	require.ElementsMatch(t, []string{"c2", "c3"}, cfg.ModelToCollections["Field"].Collections)

	for model, routing := range cfg.ModelToCollections {
		for _, c := range routing.Collections {
			require.Contains(t, cfg.CollectionToModels[c], model, "every model->collection edge must appear in collection_to_models too")
		}
	}
	for c, models := range cfg.CollectionToModels {
		for _, m := range models {
			require.Contains(t, cfg.ModelToCollections[m].Collections, c)
		}
	}
}

func TestBuild_TolerantOfMalformedFiles(t *testing.T) {
	root := t.TempDir()
	writeResumeFile(t, root, "partition_00000", "c1", `not json at all`)
	writeResumeFile(t, root, "partition_00000", "c2", `{"Table": {"started": true, "collection_count": 4}}`)

	cfg, warnings, err := Build(root, "", "2026-07-29T00:00:00Z")
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	require.Contains(t, cfg.ModelToCollections, "Table")
}

func TestBuild_CollectionListsAreSorted(t *testing.T) {
	root := t.TempDir()
	writeResumeFile(t, root, "partition_00000", "zzz", `{"Table": {"started": true, "collection_count": 1}}`)
	writeResumeFile(t, root, "partition_00000", "aaa", `{"Table": {"started": true, "collection_count": 1}}`)

	cfg, _, err := Build(root, "", "2026-07-29T00:00:00Z")
	require.NoError(t, err)
	require.Equal(t, []string{"aaa", "zzz"}, cfg.ModelToCollections["Table"].Collections)
}

func TestBuild_MetadataCounts(t *testing.T) {
	root := t.TempDir()
	writeResumeFile(t, root, "partition_00000", "c1", `{"Table": {"started": true, "collection_count": 1}, "Field": {"started": true, "collection_count": 1}}`)

	cfg, _, err := Build(root, "pfx", "2026-07-29T00:00:00Z")
	require.NoError(t, err)
	require.Equal(t, 1, cfg.Metadata.TotalCollections)
	require.Equal(t, 2, cfg.Metadata.TotalModels)
	require.Equal(t, "pfx", cfg.Metadata.CollectionPrefix)
}
