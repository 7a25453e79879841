// Package document builds indexable Documents from validated rows: the
// deterministic id, the embeddable text, the metadata, and the token
// accounting that keeps every document under the store's hard limit.
package document

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/antflydb/vecindex/schema"
	"github.com/antflydb/vecindex/truncate"
)

// Document is a unit of ingestion.
type Document struct {
	ID       string
	Text     string
	Metadata map[string]any

	// TokenCount is the token count of Text after any truncation. Always
	// <= the API token limit.
	TokenCount int
}

// Fixed metadata keys.
const (
	MetaModelName          = "model_name"
	MetaPartitionName      = "partition_name"
	MetaSchemaVersion      = "schema_version"
	MetaSourcePath         = "source_path"
	MetaHasSem             = "has_sem"
	MetaTruncated          = "truncated"
	MetaOriginalTokens     = "original_tokens"
	MetaTruncationStrategy = "truncation_strategy"
)

// Context carries the per-partition values that go into every document's
// metadata, independent of any single row.
type Context struct {
	PartitionName string
	SchemaVersion int
	SourcePath    string
}

// SkippedWarning is returned in Build's error position when truncation
// cannot bring a document under the hard token limit; the row is dropped
// rather than failing the partition.
type SkippedWarning struct {
	ID             string
	OriginalTokens int
}

func (w *SkippedWarning) Error() string {
	return fmt.Sprintf("document %s: could not fit under token limit (original_tokens=%d)", w.ID, w.OriginalTokens)
}

// Builder turns validated rows into Documents for one ModelSpec.
type Builder struct {
	spec             *schema.ModelSpec
	tok              tokenizerCounter
	truncator        *truncate.Truncator
	apiTokenLimit    int
	defaultStrategy  truncate.Strategy
	safetyMarginFrac float64
}

// tokenizerCounter is the minimal surface Builder needs; satisfied by
// tokenizer.Tokenizer without importing it directly into this signature,
// keeping document decoupled from a specific tokenizer package location.
type tokenizerCounter interface {
	Count(text string) int
}

// Config configures a Builder.
type Config struct {
	// APITokenLimit is the hard per-document ceiling.
	APITokenLimit int
	// DefaultStrategy is the caller's truncation strategy default, used
	// when the ModelSpec has no override.
	DefaultStrategy truncate.Strategy
}

// NewBuilder constructs a Builder for spec, backed by tok and truncator.
func NewBuilder(spec *schema.ModelSpec, tok tokenizerCounter, truncator *truncate.Truncator, cfg Config) *Builder {
	limit := cfg.APITokenLimit
	if limit <= 0 {
		limit = 8192
	}
	strategy := cfg.DefaultStrategy
	if strategy == "" {
		strategy = truncate.StrategyAuto
	}
	return &Builder{
		spec:             spec,
		tok:              tok,
		truncator:        truncator,
		apiTokenLimit:    limit,
		defaultStrategy:  strategy,
		safetyMarginFrac: 0.95,
	}
}

// Build turns a validated row into a Document. It returns (nil,
// *SkippedWarning) when the row's text cannot be fit under the hard limit
// even after truncation — this is not an error the
// caller should propagate, only log and skip.
func (b *Builder) Build(row schema.Row, ctx Context) (*Document, error) {
	id, err := b.buildID(row)
	if err != nil {
		return nil, fmt.Errorf("building document id: %w", err)
	}

	text, hasSem, err := b.buildText(row)
	if err != nil {
		return nil, fmt.Errorf("building document text: %w", err)
	}

	metadata := b.buildMetadata(row, ctx, hasSem)

	tokenCount := b.tok.Count(text)
	truncated := false
	if tokenCount > b.apiTokenLimit {
		maxTokens := int(float64(b.apiTokenLimit) * b.safetyMarginFrac)
		strategy := truncate.Resolve(b.spec.TruncationStrategyOverride, b.defaultStrategy, b.spec.Hints)
		originalTokens := tokenCount

		out, outTokens, didTruncate := b.truncator.Fit(text, maxTokens, strategy)
		text = out
		tokenCount = outTokens
		truncated = didTruncate

		if truncated {
			metadata[MetaTruncated] = true
			metadata[MetaOriginalTokens] = originalTokens
			metadata[MetaTruncationStrategy] = string(strategy)
		}

		if tokenCount > b.apiTokenLimit {
			// Should not happen given the Truncator's post-condition, but
			// the hard limit is non-negotiable: skip rather than emit an
			// over-limit document.
			return nil, &SkippedWarning{ID: id, OriginalTokens: originalTokens}
		}
	}

	return &Document{
		ID:         id,
		Text:       text,
		Metadata:   metadata,
		TokenCount: tokenCount,
	}, nil
}

// buildID composes the deterministic document id: "{model}:{hex16(hash(key fields joined))}".
func (b *Builder) buildID(row schema.Row) (string, error) {
	var sb strings.Builder
	for i, field := range b.spec.KeyFields {
		if i > 0 {
			sb.WriteByte('\x1f') // unit separator: unambiguous field delimiter
		}
		sb.WriteString(fmt.Sprintf("%v", row[field]))
	}
	sum := xxhash.Sum64String(sb.String())
	return fmt.Sprintf("%s:%016x", b.spec.Name, sum), nil
}

// buildText joins non-empty, non-whitespace semantic field values with
// "\n"; falls back to canonical JSON of the whole row when no semantic
// field qualifies.
func (b *Builder) buildText(row schema.Row) (text string, hasSem bool, err error) {
	if b.spec.TextBuilder != nil {
		text, hasSem = b.spec.TextBuilder(row, b.spec.SemanticFields)
	} else {
		var parts []string
		for _, field := range b.spec.SemanticFields {
			v, ok := row[field]
			if !ok || schema.IsEmptyValue(v) {
				continue
			}
			if s, ok := v.(string); ok {
				parts = append(parts, strings.TrimSpace(s))
			} else {
				parts = append(parts, fmt.Sprintf("%v", v))
			}
		}
		hasSem = len(parts) > 0
		text = strings.Join(parts, "\n")
	}

	if !hasSem {
		canonical, err := schema.CanonicalJSON(row)
		if err != nil {
			return "", false, err
		}
		return canonical, false, nil
	}
	return text, true, nil
}

// buildMetadata populates the fixed keys plus every keyword field's value.
func (b *Builder) buildMetadata(row schema.Row, ctx Context, hasSem bool) map[string]any {
	metadata := map[string]any{
		MetaModelName:     b.spec.Name,
		MetaPartitionName: ctx.PartitionName,
		MetaSchemaVersion: ctx.SchemaVersion,
		MetaSourcePath:    ctx.SourcePath,
		MetaHasSem:        hasSem,
	}
	for _, field := range b.spec.KeywordFields {
		metadata[field] = row[field]
	}
	return metadata
}
