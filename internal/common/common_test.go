package common

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseSimConfig(t *testing.T) {
	sims, err := ParseSimConfig([]byte("sims:\n  - id: 0\n    name: Jio\n  - id: 1\n"))
	if err != nil {
		t.Fatalf("ParseSimConfig failed: %v", err)
	}
	if len(sims) != 2 {
		t.Fatalf("Expected 2 sims, got %d", len(sims))
	}
	if sims[0].Name != "Jio" {
		t.Errorf("Expected name Jio, got %s", sims[0].Name)
	}
	if sims[1].Name != "SIM 2" {
		t.Errorf("Expected default name SIM 2, got %s", sims[1].Name)
	}
}

func TestParseSimConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"duplicate id", "sims:\n  - id: 0\n  - id: 0\n"},
		{"negative id", "sims:\n  - id: -1\n"},
		{"empty", "sims: []\n"},
		{"malformed", "sims: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseSimConfig([]byte(tt.yaml)); err == nil {
				t.Errorf("Expected error for %s", tt.name)
			}
		})
	}
}

func TestLoadSimConfig(t *testing.T) {
	dir := t.TempDir()

	sims, err := LoadSimConfig(filepath.Join(dir, "missing.yaml"))
	if err != nil {
		t.Fatalf("Expected defaults for missing file, got %v", err)
	}
	if len(sims) != len(DefaultSims) {
		t.Errorf("Expected %d default sims, got %d", len(DefaultSims), len(sims))
	}

	path := filepath.Join(dir, "sims.yaml")
	if err := os.WriteFile(path, []byte("sims:\n  - id: 3\n    name: Work\n"), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	sims, err = LoadSimConfig(path)
	if err != nil {
		t.Fatalf("LoadSimConfig failed: %v", err)
	}
	if s, ok := FindSim(sims, 3); !ok || s.Name != "Work" {
		t.Errorf("Expected slot 3 named Work, got %+v (found=%v)", s, ok)
	}
	if _, ok := FindSim(sims, 0); ok {
		t.Error("Expected slot 0 to be absent")
	}
}

func TestRupees(t *testing.T) {
	if got := Rupees(decimal.RequireFromString("10.2")); got != "₹10.20" {
		t.Errorf("Expected ₹10.20, got %s", got)
	}
	if got := MaskAccountNumber("12345678"); got != "••••5678" {
		t.Errorf("Expected ••••5678, got %s", got)
	}
}

func TestIsIgnorableSyncError(t *testing.T) {
	if !isIgnorableSyncError(errors.New("sync /dev/stderr: inappropriate ioctl for device")) {
		t.Error("Expected stderr ioctl error to be ignorable")
	}
	if isIgnorableSyncError(errors.New("disk full")) {
		t.Error("Expected other errors not to be ignorable")
	}
}

func TestBootstrap_LogsConfigErrors(t *testing.T) {
	previous := zap.L()
	t.Cleanup(func() { zap.ReplaceGlobals(previous) })
	zap.ReplaceGlobals(zap.NewNop())

	t.Setenv("DEVICE_FAILURE_RATE", "2")

	cfg, cleanup, err := Bootstrap()
	defer cleanup()

	if err == nil {
		t.Fatal("Expected error for an invalid failure rate")
	}
	if cfg != nil {
		t.Errorf("Expected no config on error, got %+v", cfg)
	}
	if !zap.L().Core().Enabled(zapcore.ErrorLevel) {
		t.Error("Expected a real global logger to be installed before the config error")
	}
}

func TestBootstrap_LoadsConfig(t *testing.T) {
	previous := zap.L()
	t.Cleanup(func() { zap.ReplaceGlobals(previous) })

	cfg, cleanup, err := Bootstrap()
	defer cleanup()

	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	if cfg.Sender.SendInterval <= 0 {
		t.Errorf("Expected a send interval default, got %v", cfg.Sender.SendInterval)
	}
}
