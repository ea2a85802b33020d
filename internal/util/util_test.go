package util

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrimQuotes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty string", "", ""},
		{"no quotes", "hello", "hello"},
		{"double quoted", `"hello"`, "hello"},
		{"single quotes only", "'hello'", "'hello'"},
		{"quotes in middle", `he"llo`, `he"llo`},
		{"only quotes", `""`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := TrimQuotes(tt.input)
			if result != tt.expected {
				t.Errorf("TrimQuotes(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestParseFloats(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []float64
	}{
		{"space separated", "-242.16 -119 341.91", []float64{-242.16, -119, 341.91}},
		{"comma separated", "1,2,3", []float64{1, 2, 3}},
		{"bracketed", "[1, 2.5, -3]", []float64{1, 2.5, -3}},
		{"quoted", `"0 0 1"`, []float64{0, 0, 1}},
		{"extra whitespace", "  4   5\t6 ", []float64{4, 5, 6}},
		{"exponent", "1e-3 2E2", []float64{0.001, 200}},
		{"empty", "", []float64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFloats(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFloats_Invalid(t *testing.T) {
	_, err := ParseFloats("1 two 3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "two")
}

func TestFormatFloat(t *testing.T) {
	tests := []struct {
		input float64
		want  string
	}{
		{0, "0.0"},
		{0.5, "0.5"},
		{-0.25, "-0.25"},
		{60, "60.0"},
		{560, "560.0"},
		{1.0 / 3, "0.3333333333333333"},
		{0.0001, "0.0001"},
		{0.00001, "1e-05"},
		{1e16, "1e+16"},
		{-2.5e-7, "-2.5e-07"},
		{math.Inf(1), "inf"},
		{math.Inf(-1), "-inf"},
		{math.NaN(), "nan"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatFloat(tt.input))
		})
	}
}

func TestFormatBool(t *testing.T) {
	assert.Equal(t, "True", FormatBool(true))
	assert.Equal(t, "False", FormatBool(false))
}
