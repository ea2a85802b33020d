package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestZerologLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ZerologLevel(tt.in))
		})
	}
}

func TestNewZerolog_WritesToFileWithoutColor(t *testing.T) {
	var file bytes.Buffer
	logger := NewZerolog("info", nil, &file)

	logger.Debug().Msg("hidden")
	logger.Info().Str("bucket", "bridge_performance").Msg("writer created")

	out := file.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "writer created")
	assert.Contains(t, out, "bucket=bridge_performance")
	assert.NotContains(t, out, "\x1b[")
}

func TestNewZerolog_NoWriters(t *testing.T) {
	logger := NewZerolog("debug", nil, nil)
	assert.Equal(t, zerolog.Disabled, logger.GetLevel())
}
