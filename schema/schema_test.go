package schema

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testValidator(record map[string]string) (Row, error) {
	return Row{"id": record["id"], "title": record["title"]}, nil
}

func TestNewModelSpec_SignatureStable(t *testing.T) {
	spec := ModelSpec{
		Name:           "widgets",
		FieldOrder:     []string{"id", "title"},
		SemanticFields: []string{"title"},
		KeyFields:      []string{"id"},
		Validator:      ValidatorFunc(testValidator),
	}
	a, err := NewModelSpec(spec)
	require.NoError(t, err)
	b, err := NewModelSpec(spec)
	require.NoError(t, err)
	require.Equal(t, a.SchemaSignature(), b.SchemaSignature())
	require.Len(t, a.SchemaSignature(), 16)
}

func TestNewModelSpec_SignatureChangesWithFields(t *testing.T) {
	base := ModelSpec{
		Name:           "widgets",
		FieldOrder:     []string{"id", "title"},
		SemanticFields: []string{"title"},
		KeyFields:      []string{"id"},
		Validator:      ValidatorFunc(testValidator),
	}
	a, err := NewModelSpec(base)
	require.NoError(t, err)

	changed := base
	changed.FieldOrder = []string{"id", "title", "description"}
	b, err := NewModelSpec(changed)
	require.NoError(t, err)

	require.NotEqual(t, a.SchemaSignature(), b.SchemaSignature())
}

func TestNewModelSpec_RejectsUndeclaredField(t *testing.T) {
	_, err := NewModelSpec(ModelSpec{
		Name:           "widgets",
		FieldOrder:     []string{"id"},
		SemanticFields: []string{"title"},
		KeyFields:      []string{"id"},
		Validator:      ValidatorFunc(testValidator),
	})
	require.Error(t, err)
}

func TestRegistry_PreservesDeclarationOrder(t *testing.T) {
	a, _ := NewModelSpec(ModelSpec{Name: "a", FieldOrder: []string{"id"}, KeyFields: []string{"id"}, Validator: ValidatorFunc(testValidator)})
	b, _ := NewModelSpec(ModelSpec{Name: "b", FieldOrder: []string{"id"}, KeyFields: []string{"id"}, Validator: ValidatorFunc(testValidator)})
	c, _ := NewModelSpec(ModelSpec{Name: "c", FieldOrder: []string{"id"}, KeyFields: []string{"id"}, Validator: ValidatorFunc(testValidator)})

	reg, err := NewRegistry(a, b, c)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, reg.Names())

	got, ok := reg.Get("b")
	require.True(t, ok)
	require.Equal(t, "b", got.Name)
}

func TestRegistry_RejectsDuplicateNames(t *testing.T) {
	a, _ := NewModelSpec(ModelSpec{Name: "a", FieldOrder: []string{"id"}, KeyFields: []string{"id"}, Validator: ValidatorFunc(testValidator)})
	a2, _ := NewModelSpec(ModelSpec{Name: "a", FieldOrder: []string{"id"}, KeyFields: []string{"id"}, Validator: ValidatorFunc(testValidator)})
	_, err := NewRegistry(a, a2)
	require.Error(t, err)
}

func TestCanonicalJSON_SortsKeys(t *testing.T) {
	out, err := CanonicalJSON(Row{"z": 1, "a": 2, "m": "x"})
	require.NoError(t, err)
	require.Equal(t, `{"a":2,"m":"x","z":1}`, out)
}

func TestIsEmptyValue(t *testing.T) {
	require.True(t, IsEmptyValue(nil))
	require.True(t, IsEmptyValue(""))
	require.True(t, IsEmptyValue("   "))
	require.True(t, IsEmptyValue([]any{}))
	require.True(t, IsEmptyValue(map[string]any{}))
	require.False(t, IsEmptyValue("hello"))
	require.False(t, IsEmptyValue(0))
	require.False(t, IsEmptyValue([]any{1}))
}
