package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/antflydb/vecindex/truncate"
)

func TestLoadDescriptors_CompilesValidatingModelSpecs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- name: widgets
  field_order: [id, title, body, color]
  semantic_fields: [title, body]
  keyword_fields: [color]
  key_fields: [id]
  required_fields: [id]
  truncation_strategy_override: sentences
  prose_like: true
`), 0o644))

	specs, err := LoadDescriptors(path)
	require.NoError(t, err)
	require.Len(t, specs, 1)

	spec := specs[0]
	require.Equal(t, "widgets", spec.Name)
	require.Equal(t, truncate.StrategySentences, spec.TruncationStrategyOverride)
	require.True(t, spec.Hints.ProseLike)

	row, err := spec.Validator.Validate(map[string]string{"id": "1", "title": "T", "body": "B", "color": "red"})
	require.NoError(t, err)
	require.Equal(t, Row{"id": "1", "title": "T", "body": "B", "color": "red"}, row)

	_, err = spec.Validator.Validate(map[string]string{"title": "T"})
	require.Error(t, err)
}
