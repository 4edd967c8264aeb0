package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"

	"airwatch.klederson.com/internal/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		cfg     config.LoggingConfig
		enabled zapcore.Level
		wantErr bool
	}{
		{config.LoggingConfig{Level: "debug", Format: "console"}, zapcore.DebugLevel, false},
		{config.LoggingConfig{Level: "warn", Format: "json"}, zapcore.WarnLevel, false},
		{config.LoggingConfig{Level: "loud", Format: "json"}, 0, true},
	}
	for _, tt := range tests {
		log, err := New(tt.cfg)
		if tt.wantErr {
			if err == nil {
				t.Errorf("New(%+v) expected error", tt.cfg)
			}
			continue
		}
		if err != nil {
			t.Fatalf("New(%+v): %v", tt.cfg, err)
		}
		if !log.Core().Enabled(tt.enabled) {
			t.Errorf("level %v not enabled for %+v", tt.enabled, tt.cfg)
		}
		if log.Core().Enabled(tt.enabled - 1) {
			t.Errorf("level %v enabled for %+v", tt.enabled-1, tt.cfg)
		}
	}
}

func TestNewFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "airwatch.log")
	log, err := New(config.LoggingConfig{Level: "info", Format: "json", Output: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Info("hello file")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"hello file"`) {
		t.Errorf("log file = %q", data)
	}
	if !strings.Contains(string(data), `"app":"AIRWATCH"`) {
		t.Errorf("missing app field: %q", data)
	}
}
