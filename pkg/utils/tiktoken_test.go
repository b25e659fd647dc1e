package utils

import (
	"strings"
	"testing"
)

func TestCountTokens(t *testing.T) {
	counter, err := NewTokenCounter("claude-sonnet-4")
	if err != nil {
		t.Fatalf("Failed to create token counter: %v", err)
	}

	tests := []struct {
		text      string
		minTokens int
		maxTokens int
	}{
		{"", 0, 0},
		{"Hello", 1, 2},
		{"Hello world", 2, 3},
		{"This is a longer sentence with more words.", 8, 12},
		{strings.Repeat("word ", 100), 90, 110},
	}

	for _, tt := range tests {
		t.Run(tt.text[:min(len(tt.text), 20)], func(t *testing.T) {
			tokens := counter.CountTokens(tt.text)
			if tokens < tt.minTokens || tokens > tt.maxTokens {
				t.Errorf("CountTokens(%q) = %d, want between %d and %d",
					tt.text, tokens, tt.minTokens, tt.maxTokens)
			}
		})
	}
}

func TestNilCounterEstimates(t *testing.T) {
	var counter *TokenCounter
	if got := counter.CountTokens("abcdefgh"); got != 2 {
		t.Errorf("expected character estimate of 2, got %d", got)
	}
	if got := counter.CountTokens(""); got != 0 {
		t.Errorf("expected 0 for empty text, got %d", got)
	}
}

func TestDefaultCounterIsShared(t *testing.T) {
	if DefaultCounter() != DefaultCounter() {
		t.Error("DefaultCounter should return the same instance")
	}
	tokens := CountTokensSimple("Hello world")
	if tokens < 2 || tokens > 3 {
		t.Errorf("CountTokensSimple(\"Hello world\") = %d, want between 2 and 3", tokens)
	}
}

func TestTruncateToTokenLimit(t *testing.T) {
	counter := DefaultCounter()

	longText := strings.Repeat("This is a sentence. ", 50)
	truncated := counter.TruncateToTokenLimit(longText, 10)

	if len(truncated) >= len(longText) {
		t.Error("TruncateToTokenLimit should have shortened the text")
	}
	if tokens := counter.CountTokens(truncated); tokens > 15 {
		t.Errorf("Truncated text has %d tokens, expected around 10", tokens)
	}
	if counter.TruncateToTokenLimit("short", 10) != "short" {
		t.Error("text within the limit should be unchanged")
	}
}
