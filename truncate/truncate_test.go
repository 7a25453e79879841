package truncate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/antflydb/vecindex/tokenizer"
)

func newTruncator() *Truncator {
	return New(tokenizer.New())
}

func TestFit_PostConditionAlwaysHolds(t *testing.T) {
	tr := newTruncator()
	texts := []string{
		"The quick brown fox jumps over the lazy dog. It was a sunny day. Everyone was happy. The end.",
		strings.Repeat("word ", 500),
		"A. B. C. D. E.",
		"short",
		"",
	}
	strategies := []Strategy{StrategyEnd, StrategyStart, StrategyMiddleOut, StrategySentences}
	for _, text := range texts {
		for _, max := range []int{1, 3, 5, 10, 20, 50} {
			for _, strat := range strategies {
				out, outTokens, truncated := tr.Fit(text, max, strat)
				gotTokens := tr.tok.Count(out)
				require.Equal(t, gotTokens, outTokens, "reported tokens must equal actual count")
				require.LessOrEqualf(t, outTokens, max, "text=%q max=%d strat=%s out=%q", text, max, strat, out)
				if truncated {
					require.Greater(t, tr.tok.Count(text), max)
				}
			}
		}
	}
}

func TestFit_NoTruncationWhenUnderLimit(t *testing.T) {
	tr := newTruncator()
	out, outTokens, truncated := tr.Fit("short text", 100, StrategyEnd)
	require.False(t, truncated)
	require.Equal(t, "short text", out)
	require.Equal(t, tr.tok.Count("short text"), outTokens)
}

func TestFit_SentencesFallsBackToMiddleOutUnderThreeSentences(t *testing.T) {
	tr := newTruncator()
	text := "First sentence here. Second sentence here."
	require.Len(t, splitSentences(text), 2)

	_, _, truncated := tr.Fit(text, 6, StrategySentences)
	require.True(t, truncated)
}

func TestFit_SentinelDroppedWhenMaxTokensTooSmall(t *testing.T) {
	tr := newTruncator()
	sentinelTokens := tr.tok.Count(Sentinel)
	require.Greater(t, sentinelTokens, 1)

	text := strings.Repeat("word ", 50)
	out, outTokens, truncated := tr.Fit(text, 1, StrategyEnd)
	require.True(t, truncated)
	require.LessOrEqual(t, outTokens, 1)
	require.NotContains(t, out, "truncated")
}

func TestFit_ShortSentenceInputFallsBackToMiddleOut(t *testing.T) {
	// Sentence-like input under a tight budget: `sentences` falls back to
	// middle_out when the budget is below its minimum.
	tr := newTruncator()
	text := "A. B. C. D. E."
	out, outTokens, truncated := tr.Fit(text, 9, StrategySentences)
	require.True(t, truncated)
	require.LessOrEqual(t, outTokens, 9)
	require.Equal(t, tr.tok.Count(out), outTokens)
}

func TestResolve_SelectionOrder(t *testing.T) {
	require.Equal(t, StrategyEnd, Resolve(StrategyEnd, StrategySentences, ModelHints{ProseLike: true}))
	require.Equal(t, StrategyStart, Resolve("", StrategyStart, ModelHints{}))
	require.Equal(t, StrategyEnd, Resolve("", StrategyAuto, ModelHints{NameLike: true}))
	require.Equal(t, StrategySentences, Resolve("", "", ModelHints{ProseLike: true}))
	require.Equal(t, StrategyMiddleOut, Resolve("", "", ModelHints{}))
}

func TestFit_EndKeepsPrefixWithSentinel(t *testing.T) {
	tr := newTruncator()
	text := strings.Repeat("alpha beta gamma ", 30)
	out, _, truncated := tr.Fit(text, 30, StrategyEnd)
	require.True(t, truncated)
	require.True(t, strings.HasPrefix(out, "alpha"))
	require.Contains(t, out, "truncated")
}

func TestFit_StartKeepsSuffixWithSentinel(t *testing.T) {
	tr := newTruncator()
	text := strings.Repeat("alpha beta gamma ", 30)
	out, _, truncated := tr.Fit(text, 30, StrategyStart)
	require.True(t, truncated)
	require.True(t, strings.HasSuffix(strings.TrimSpace(out), "gamma"))
	require.Contains(t, out, "truncated")
}

func TestFit_MiddleOutKeepsBothEnds(t *testing.T) {
	tr := newTruncator()
	text := "HEAD " + strings.Repeat("filler ", 100) + "TAIL"
	out, _, truncated := tr.Fit(text, 40, StrategyMiddleOut)
	require.True(t, truncated)
	require.True(t, strings.HasPrefix(out, "HEAD"))
	require.True(t, strings.HasSuffix(strings.TrimSpace(out), "TAIL"))
}
