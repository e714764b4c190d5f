package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		name string
		cfg  LogConfig
		want zapcore.Level
	}{
		{name: "default", cfg: LogConfig{}, want: zapcore.InfoLevel},
		{name: "warn json", cfg: LogConfig{Level: "warn", Format: "json"}, want: zapcore.WarnLevel},
		{name: "invalid level", cfg: LogConfig{Level: "loud", Format: "console"}, want: zapcore.InfoLevel},
		{name: "invalid format", cfg: LogConfig{Level: "error", Format: "xml"}, want: zapcore.ErrorLevel},
		{name: "debug toggle wins", cfg: LogConfig{Level: "error", Format: "json", Debug: true}, want: zapcore.DebugLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if got := logger.Level(); got != tt.want {
				t.Fatalf("Level() = %v, want %v", got, tt.want)
			}
			Sync(logger)
		})
	}
}

func TestSyncNil(t *testing.T) {
	Sync(nil)
}
