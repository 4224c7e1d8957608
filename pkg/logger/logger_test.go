package logger

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNewSetsLevelOnReturnedLogger(t *testing.T) {
	tests := []struct {
		name  string
		level string
		want  zerolog.Level
	}{
		{"debug", "debug", zerolog.DebugLevel},
		{"info", "info", zerolog.InfoLevel},
		{"warn", "warn", zerolog.WarnLevel},
		{"error", "error", zerolog.ErrorLevel},
		{"unknown defaults to info", "verbose", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(Config{Level: tt.level})
			assert.Equal(t, tt.want, l.GetLevel())
		})
	}
}

func TestNewLeavesGlobalLevelAlone(t *testing.T) {
	before := zerolog.GlobalLevel()
	New(Config{Level: "error"})
	assert.Equal(t, before, zerolog.GlobalLevel())
}
