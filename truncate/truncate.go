// Package truncate fits text to a token ceiling using one of several
// strategies, with a binary-search-based accounting of the sentinel marker
// so the post-condition count(out) <= max_tokens always holds.
package truncate

import (
	"regexp"
	"strings"

	"github.com/antflydb/vecindex/tokenizer"
)

// Strategy is a closed enumeration of truncation strategies.
type Strategy string

const (
	// StrategyEnd keeps the prefix and appends the sentinel.
	StrategyEnd Strategy = "end"
	// StrategyStart keeps the suffix and prepends the sentinel.
	StrategyStart Strategy = "start"
	// StrategyMiddleOut keeps both ends and injects the sentinel in the middle.
	StrategyMiddleOut Strategy = "middle_out"
	// StrategySentences keeps whole sentences from both ends around the sentinel.
	StrategySentences Strategy = "sentences"
	// StrategyAuto selects a strategy from ModelHints.
	StrategyAuto Strategy = "auto"
)

// Sentinel is the fixed marker inserted in place of removed text.
const Sentinel = "\n\n[... truncated ...]\n\n"

// sentenceBoundary matches a run of sentence-ending punctuation followed by
// whitespace.
var sentenceBoundary = regexp.MustCompile(`[.!?]+\s+`)

// ModelHints informs the "auto" strategy about the shape of a model's
// semantic fields.
type ModelHints struct {
	// NameLike is true when the model's semantic fields look like short,
	// structured identifiers (names, titles) rather than prose.
	NameLike bool
	// ProseLike is true when the model's semantic fields are free-form prose.
	ProseLike bool
}

// Resolve picks a concrete Strategy: a per-model override wins, then the
// caller's default, then auto (which consults hints).
func Resolve(override, callerDefault Strategy, hints ModelHints) Strategy {
	if override != "" {
		return override
	}
	if callerDefault != "" && callerDefault != StrategyAuto {
		return callerDefault
	}
	switch {
	case hints.NameLike:
		return StrategyEnd
	case hints.ProseLike:
		return StrategySentences
	default:
		return StrategyMiddleOut
	}
}

// Truncator fits text to a token ceiling under a chosen strategy.
type Truncator struct {
	tok tokenizer.Tokenizer
}

// New constructs a Truncator backed by tok.
func New(tok tokenizer.Tokenizer) *Truncator {
	return &Truncator{tok: tok}
}

// Fit fits text to maxTokens under strategy. Post-condition: count(out) <=
// maxTokens always, regardless of strategy or inputs.
// truncatedFlag is true iff count(original) > maxTokens.
func (t *Truncator) Fit(text string, maxTokens int, strategy Strategy) (out string, outTokens int, truncatedFlag bool) {
	original := t.tok.Count(text)
	if original <= maxTokens {
		return text, original, false
	}

	switch strategy {
	case StrategySentences:
		sentences := splitSentences(text)
		if len(sentences) < 3 || maxTokens < 20 {
			// Fallback chain: sentences -> middle_out.
			out, outTokens = t.middleOut(text, maxTokens)
		} else {
			out, outTokens = t.sentences(sentences, maxTokens)
		}
	case StrategyMiddleOut:
		out, outTokens = t.middleOut(text, maxTokens)
	case StrategyStart:
		out, outTokens = t.edge(text, maxTokens, false)
	case StrategyEnd:
		out, outTokens = t.edge(text, maxTokens, true)
	default:
		out, outTokens = t.middleOut(text, maxTokens)
	}
	return out, outTokens, true
}

// edge keeps a prefix (keepPrefix=true, strategy "end") or a suffix
// (keepPrefix=false, strategy "start") and attaches the sentinel on the
// truncated side. Falls back to no-sentinel truncation when the sentinel
// itself won't fit.
func (t *Truncator) edge(text string, maxTokens int, keepPrefix bool) (string, int) {
	sentinelTokens := t.tok.Count(Sentinel)
	if sentinelTokens >= maxTokens {
		content := t.largestPrefix(text, maxTokens, keepPrefix)
		return content, t.tok.Count(content)
	}

	budget := maxTokens - sentinelTokens
	content := t.largestPrefix(text, budget, keepPrefix)
	var out string
	if keepPrefix {
		out = content + Sentinel
	} else {
		out = Sentinel + content
	}
	return out, t.tok.Count(out)
}

// middleOut keeps both ends and injects the sentinel in the middle. Falls
// back to a no-sentinel "end" truncation via edge when the sentinel won't
// fit at all.
func (t *Truncator) middleOut(text string, maxTokens int) (string, int) {
	sentinelTokens := t.tok.Count(Sentinel)
	if sentinelTokens >= maxTokens {
		return t.edge(text, maxTokens, true)
	}

	budget := maxTokens - sentinelTokens
	headBudget := budget / 2
	tailBudget := budget - headBudget

	runes := []rune(text)
	head := t.largestPrefixRunes(runes, headBudget, true)
	tail := t.largestPrefixRunes(runes, tailBudget, false)

	out := head + Sentinel + tail
	outTokens := t.tok.Count(out)
	if outTokens <= maxTokens {
		return out, outTokens
	}
	// Binary-search halves were each individually within budget but their
	// concatenation with the sentinel can still overshoot for tokenizers
	// with cross-boundary merging; shrink the tail until it fits.
	for tailBudget > 0 && outTokens > maxTokens {
		tailBudget--
		tail = t.largestPrefixRunes(runes, tailBudget, false)
		out = head + Sentinel + tail
		outTokens = t.tok.Count(out)
	}
	return out, outTokens
}

// sentences keeps whole sentences from both ends around the sentinel.
func (t *Truncator) sentences(sentences []string, maxTokens int) (string, int) {
	sentinelTokens := t.tok.Count(Sentinel)
	if sentinelTokens >= maxTokens {
		return t.edge(strings.Join(sentences, ""), maxTokens, true)
	}
	budget := maxTokens - sentinelTokens
	headBudget := budget / 2
	tailBudget := budget - headBudget

	head := t.sentencePrefix(sentences, headBudget, true)
	tail := t.sentencePrefix(sentences, tailBudget, false)

	out := head + Sentinel + tail
	outTokens := t.tok.Count(out)
	if outTokens <= maxTokens {
		return out, outTokens
	}
	for tailBudget > 0 && outTokens > maxTokens {
		tailBudget--
		tail = t.sentencePrefix(sentences, tailBudget, false)
		out = head + Sentinel + tail
		outTokens = t.tok.Count(out)
	}
	return out, outTokens
}

// sentencePrefix returns the largest run of whole sentences (from the
// start if fromStart, else from the end) whose token count fits budget.
func (t *Truncator) sentencePrefix(sentences []string, budget int, fromStart bool) string {
	if budget <= 0 {
		return ""
	}
	n := len(sentences)
	// Binary search over how many whole sentences to keep.
	lo, hi := 0, n
	for lo < hi {
		mid := (lo + hi + 1) / 2
		var candidate string
		if fromStart {
			candidate = strings.Join(sentences[:mid], "")
		} else {
			candidate = strings.Join(sentences[n-mid:], "")
		}
		if t.tok.Count(candidate) <= budget {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	if fromStart {
		return strings.Join(sentences[:lo], "")
	}
	return strings.Join(sentences[n-lo:], "")
}

// largestPrefix finds the largest prefix (fromStart) or suffix (!fromStart)
// of text, by rune, whose token count is <= budget, via binary search over
// character position.
func (t *Truncator) largestPrefix(text string, budget int, fromStart bool) string {
	return t.largestPrefixRunes([]rune(text), budget, fromStart)
}

func (t *Truncator) largestPrefixRunes(runes []rune, budget int, fromStart bool) string {
	if budget <= 0 {
		return ""
	}
	n := len(runes)
	lo, hi := 0, n
	for lo < hi {
		mid := (lo + hi + 1) / 2
		var candidate string
		if fromStart {
			candidate = string(runes[:mid])
		} else {
			candidate = string(runes[n-mid:])
		}
		if t.tok.Count(candidate) <= budget {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	if fromStart {
		return string(runes[:lo])
	}
	return string(runes[n-lo:])
}

// splitSentences splits text into sentences, keeping the trailing
// punctuation+whitespace attached to each sentence so rejoining is lossless.
func splitSentences(text string) []string {
	locs := sentenceBoundary.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return []string{text}
	}
	var sentences []string
	start := 0
	for _, loc := range locs {
		sentences = append(sentences, text[start:loc[1]])
		start = loc[1]
	}
	if start < len(text) {
		sentences = append(sentences, text[start:])
	}
	return sentences
}
