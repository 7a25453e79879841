package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWordTokenizer_Count(t *testing.T) {
	tok := New()

	cases := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"single word", "hello", 1},
		{"two words", "hello world", 2},
		{"punctuation", "don't", 3}, // "don", "'", "t"
		{"sentence", "A. B. C. D. E.", 10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, tok.Count(tc.text))
		})
	}
}

func TestWordTokenizer_Deterministic(t *testing.T) {
	tok := New()
	text := "The quick brown fox jumps over the lazy dog, 42 times!"
	first := tok.Count(text)
	for range 10 {
		require.Equal(t, first, tok.Count(text))
	}
}

func TestWordTokenizer_ConcurrentSafe(t *testing.T) {
	tok := New()
	done := make(chan int, 50)
	for range 50 {
		go func() {
			done <- tok.Count("concurrent access to a stateless tokenizer")
		}()
	}
	for range 50 {
		require.Equal(t, 6, <-done)
	}
}
