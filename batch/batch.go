// Package batch implements the Batch Aggregator: accumulates Documents
// under batch-size and token-sum thresholds and emits flush decisions.
package batch

import "github.com/antflydb/vecindex/document"

// FlushReason is a closed enumeration of why a batch was emitted.
type FlushReason string

const (
	// ReasonThresholdReached: adding the next document would exceed a
	// threshold.
	ReasonThresholdReached FlushReason = "threshold-reached"
	// ReasonSingleOverSafety: a single document alone exceeds the safety
	// ceiling and is flushed on its own.
	ReasonSingleOverSafety FlushReason = "single-over-safety"
	// ReasonEOF: end of stream, flush whatever remains.
	ReasonEOF FlushReason = "eof"
)

// Flush is one emitted batch.
type Flush struct {
	Docs   []*document.Document
	Reason FlushReason
}

// Config configures thresholds.
type Config struct {
	// MaxBatchDocs is the upper bound on docs per upsert (default 128).
	MaxBatchDocs int
	// MaxBatchTokens is the safety sum slightly below the vector store's
	// per-request token ceiling. Zero disables the token threshold.
	MaxBatchTokens int
}

// Aggregator accumulates documents and emits flush decisions. Not safe for
// concurrent use — the Partition Indexer that owns it is itself
// sequential within a partition.
type Aggregator struct {
	maxDocs   int
	maxTokens int

	pending []*document.Document
	docsN   int
	tokensN int
}

// New constructs an Aggregator. Zero/negative values in cfg fall back to
// the defaults.
func New(cfg Config) *Aggregator {
	maxDocs := cfg.MaxBatchDocs
	if maxDocs <= 0 {
		maxDocs = 128
	}
	maxTokens := cfg.MaxBatchTokens
	if maxTokens < 0 {
		maxTokens = 0
	}
	return &Aggregator{maxDocs: maxDocs, maxTokens: maxTokens}
}

// Add offers doc to the aggregator, evaluating the emission rules in
// order. It returns the flushes that adding doc forced, in emission
// order — zero, one, or (when a pending threshold flush is immediately
// followed by a standalone over-safety flush for doc itself) two.
func (a *Aggregator) Add(doc *document.Document) []*Flush {
	var flushes []*Flush

	// Rule 1: adding doc would overshoot a threshold and the buffer is
	// non-empty -> flush existing first.
	if len(a.pending) > 0 && a.wouldOverflow(doc) {
		flushes = append(flushes, a.drain(ReasonThresholdReached))
	}

	// Rule 2: doc alone is over the safety ceiling -> flush it standalone,
	// bypassing the pending buffer entirely.
	if a.maxTokens > 0 && doc.TokenCount > a.maxTokens {
		flushes = append(flushes, &Flush{Docs: []*document.Document{doc}, Reason: ReasonSingleOverSafety})
		return flushes
	}

	a.pending = append(a.pending, doc)
	a.docsN++
	a.tokensN += doc.TokenCount
	return flushes
}

// wouldOverflow reports whether adding doc to the current pending buffer
// would exceed either threshold.
func (a *Aggregator) wouldOverflow(doc *document.Document) bool {
	if a.docsN+1 > a.maxDocs {
		return true
	}
	if a.maxTokens > 0 && a.tokensN+doc.TokenCount > a.maxTokens {
		return true
	}
	return false
}

// Flush drains the pending buffer with reason eof if non-empty. Returns
// nil if there is nothing pending.
func (a *Aggregator) Flush() *Flush {
	if len(a.pending) == 0 {
		return nil
	}
	return a.drain(ReasonEOF)
}

func (a *Aggregator) drain(reason FlushReason) *Flush {
	docs := a.pending
	a.pending = nil
	a.docsN = 0
	a.tokensN = 0
	return &Flush{Docs: docs, Reason: reason}
}

// Len reports how many documents are currently pending.
func (a *Aggregator) Len() int {
	return len(a.pending)
}
