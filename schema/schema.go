// Package schema defines the ModelSpec registry: the process-wide,
// read-only description of each indexable model's fields, the row
// validator, and the stable schema signature that drives staleness.
// Validation stays behind the abstract Schema/Validator contract, leaving
// concrete validation rules to the caller.
package schema

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/antflydb/vecindex/truncate"
)

// Row is a single validated record: field name -> scalar or nested value.
type Row map[string]any

// ValidationError describes why a raw record failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("field %q: %s", e.Field, e.Reason)
}

// Validator turns a raw decoded record (from CSV or JSONL) into a
// validated Row, or reports why it could not.
type Validator interface {
	Validate(record map[string]string) (Row, error)
}

// ValidatorFunc adapts a function to a Validator.
type ValidatorFunc func(record map[string]string) (Row, error)

// Validate implements Validator.
func (f ValidatorFunc) Validate(record map[string]string) (Row, error) {
	return f(record)
}

// TextBuilder composes the embeddable text for a row given the resolved
// semantic field values (see document.Builder's default buildText). Most
// ModelSpecs use the default join-with-newline builder; this hook exists
// for models with a bespoke semantic-field concatenation rule.
type TextBuilder func(row Row, semanticFields []string) (text string, hasSem bool)

// ModelSpec is a named schema descriptor. Immutable and safe to share
// across goroutines once constructed.
type ModelSpec struct {
	// Name is the model's unique identifier.
	Name string

	// FieldOrder is the ordered list of all field names.
	FieldOrder []string

	// SemanticFields is the ordered subset whose concatenation becomes
	// embeddable text.
	SemanticFields []string

	// KeywordFields is the subset elevated to metadata.
	KeywordFields []string

	// KeyFields is the subset whose values form the document id input.
	KeyFields []string

	// Validator turns a raw record into a Row, or an error.
	Validator Validator

	// TruncationStrategyOverride, if non-empty, takes precedence over any
	// caller default or auto-selection.
	TruncationStrategyOverride truncate.Strategy

	// TextBuilder overrides the default semantic-field-join text builder.
	TextBuilder TextBuilder

	// Hints informs the `auto` truncation strategy.
	Hints truncate.ModelHints

	// schemaSignature is computed once at construction time (NewModelSpec)
	// and cached; it must be stable across processes.
	schemaSignature string
}

// NewModelSpec validates the descriptor's invariants and computes its
// schema signature.
func NewModelSpec(spec ModelSpec) (*ModelSpec, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("model spec: name is required")
	}
	if spec.Validator == nil {
		return nil, fmt.Errorf("model spec %q: validator is required", spec.Name)
	}
	if len(spec.KeyFields) == 0 {
		return nil, fmt.Errorf("model spec %q: at least one key field is required", spec.Name)
	}
	fields := make(map[string]bool, len(spec.FieldOrder))
	for _, f := range spec.FieldOrder {
		fields[f] = true
	}
	for _, group := range [][]string{spec.SemanticFields, spec.KeywordFields, spec.KeyFields} {
		for _, f := range group {
			if !fields[f] {
				return nil, fmt.Errorf("model spec %q: field %q not declared in field_order", spec.Name, f)
			}
		}
	}

	s := spec
	s.schemaSignature = computeSignature(s)
	return &s, nil
}

// SchemaSignature returns the stable hash derived from field names and the
// semantic/keyword/key declarations.
func (m *ModelSpec) SchemaSignature() string {
	return m.schemaSignature
}

// computeSignature hashes a canonical description of the model's structure
// so the signature is stable across processes and machines.
func computeSignature(s ModelSpec) string {
	desc := struct {
		Name     string   `json:"name"`
		Fields   []string `json:"fields"`
		Semantic []string `json:"semantic"`
		Keyword  []string `json:"keyword"`
		Key      []string `json:"key"`
	}{
		Name:     s.Name,
		Fields:   append([]string(nil), s.FieldOrder...),
		Semantic: append([]string(nil), s.SemanticFields...),
		Keyword:  append([]string(nil), s.KeywordFields...),
		Key:      append([]string(nil), s.KeyFields...),
	}
	canonical, err := json.Marshal(desc)
	if err != nil {
		// desc is a plain struct of strings; Marshal cannot fail.
		panic(fmt.Sprintf("schema: marshalling signature description: %v", err))
	}
	sum := xxhash.Sum64(canonical)
	return fmt.Sprintf("%016x", sum)
}

// Registry is the process-wide, read-only mapping of model name ->
// ModelSpec, built once at start-up and passed explicitly rather than held
// in global state.
type Registry struct {
	specs map[string]*ModelSpec
	order []string
}

// NewRegistry builds a Registry from specs, preserving the given order for
// callers that iterate it: the indexer processes a partition's models in
// declaration order.
func NewRegistry(specs ...*ModelSpec) (*Registry, error) {
	r := &Registry{specs: make(map[string]*ModelSpec, len(specs))}
	for _, s := range specs {
		if s == nil {
			continue
		}
		if _, exists := r.specs[s.Name]; exists {
			return nil, fmt.Errorf("registry: duplicate model name %q", s.Name)
		}
		r.specs[s.Name] = s
		r.order = append(r.order, s.Name)
	}
	return r, nil
}

// Get returns the ModelSpec for name, or false if unknown.
func (r *Registry) Get(name string) (*ModelSpec, bool) {
	s, ok := r.specs[name]
	return s, ok
}

// Names returns model names in declaration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// CanonicalJSON serializes v (typically a Row) with sorted keys and stable
// separators, so the fallback document text for rows without semantic
// content is identical across runs and machines.
func CanonicalJSON(v any) (string, error) {
	// encoding/json sorts map keys at every nesting level; Row values,
	// top-level or nested in maps, are converted to plain map[string]any
	// first.
	normalized, err := normalizeForCanonicalJSON(v)
	if err != nil {
		return "", err
	}
	out, err := json.Marshal(normalized)
	if err != nil {
		return "", fmt.Errorf("canonical json: %w", err)
	}
	return string(out), nil
}

func normalizeForCanonicalJSON(v any) (any, error) {
	switch val := v.(type) {
	case Row:
		return normalizeMap(val)
	case map[string]any:
		return normalizeMap(val)
	default:
		return v, nil
	}
}

func normalizeMap(m map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(m))
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v, err := normalizeForCanonicalJSON(m[k])
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

// IsEmptyValue reports whether v counts as "empty" for semantic-field
// purposes: null, empty string, empty sequence, empty mapping, or
// whitespace-only string.
func IsEmptyValue(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case []any:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	default:
		return false
	}
}
