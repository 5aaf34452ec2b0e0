package util

import "testing"

func TestSafeTruncate(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{name: "longer than max", input: "very-long-session-id", maxLen: 8, want: "very-lon"},
		{name: "shorter than max", input: "short", maxLen: 10, want: "short"},
		{name: "exact length", input: "eight888", maxLen: 8, want: "eight888"},
		{name: "zero max", input: "anything", maxLen: 0, want: ""},
		{name: "negative max", input: "anything", maxLen: -1, want: ""},
		{name: "empty input", input: "", maxLen: 5, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SafeTruncate(tt.input, tt.maxLen); got != tt.want {
				t.Errorf("SafeTruncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
			}
		})
	}
}
