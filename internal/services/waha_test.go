package services

import "testing"

func TestNormalizeChatID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"group id untouched", "123456789@g.us", "123456789@g.us"},
		{"plain number gets suffix", "628123456789", "628123456789@c.us"},
		{"already suffixed", "628123456789@c.us", "628123456789@c.us"},
		{"leading zero becomes country code", "08123456789", "628123456789@c.us"},
		{"leading zero with suffix", "08123456789@c.us", "628123456789@c.us"},
		{"surrounding whitespace", " 628123456789 ", "628123456789@c.us"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeChatID(tt.input); got != tt.expected {
				t.Errorf("NormalizeChatID(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
