package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatMillis(t *testing.T) {
	tests := []struct {
		name     string
		input    int64
		expected string
	}{
		{
			name:     "zero",
			input:    0,
			expected: "0.0",
		},
		{
			name:     "whole milliseconds",
			input:    5_000_000,
			expected: "5.0",
		},
		{
			name:     "fractional",
			input:    1_500_000,
			expected: "1.5",
		},
		{
			name:     "sub millisecond",
			input:    250_000,
			expected: "0.25",
		},
		{
			name:     "nanosecond precision",
			input:    1_234_567,
			expected: "1.234567",
		},
		{
			name:     "single nanosecond",
			input:    1,
			expected: "1e-06",
		},
		{
			name:     "tens of nanoseconds",
			input:    15,
			expected: "1.5e-05",
		},
		{
			name:     "negative",
			input:    -1_000_000,
			expected: "-1.0",
		},
		{
			name:     "seconds",
			input:    12_000_000_000,
			expected: "12000.0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatMillis(tt.input))
		})
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		name     string
		input    int
		expected string
	}{
		{name: "zero", input: 0, expected: "0"},
		{name: "hundreds", input: 999, expected: "999"},
		{name: "thousands", input: 1000, expected: "1,000"},
		{name: "millions", input: 1234567, expected: "1,234,567"},
		{name: "negative", input: -1234, expected: "-1,234"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatNumber(tt.input))
		})
	}
}

func TestPadString(t *testing.T) {
	assert.Equal(t, "ab  ", PadString("ab", 4, true))
	assert.Equal(t, "  ab", PadString("ab", 4, false))
	assert.Equal(t, "abcdef", PadString("abcdef", 4, true))
	// wide runes take two cells
	assert.Equal(t, "日本", PadString("日本", 4, true))
	assert.Equal(t, "日 ", PadString("日", 3, true))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "longer…", Truncate("longer name", 7))
	assert.Equal(t, "unbounded", Truncate("unbounded", 0))
}

func TestColorize(t *testing.T) {
	assert.Equal(t, "plain", Colorize("plain", ColorRed, false))
	assert.Equal(t, ColorRed+"red"+ColorReset, Colorize("red", ColorRed, true))
	assert.Equal(t, "", Colorize("", ColorRed, true))
}
