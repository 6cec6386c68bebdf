package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if !cfg.Rewards.RewardPerSMS.Equal(decimal.RequireFromString("0.20")) {
		t.Errorf("Expected reward 0.20, got %s", cfg.Rewards.RewardPerSMS)
	}
	if !cfg.Rewards.ReferralPercentage.Equal(decimal.RequireFromString("0.15")) {
		t.Errorf("Expected referral percentage 0.15, got %s", cfg.Rewards.ReferralPercentage)
	}
	if !cfg.Rewards.MinWithdrawal.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected minimum withdrawal 100, got %s", cfg.Rewards.MinWithdrawal)
	}
	if cfg.Sender.SendInterval != time.Second {
		t.Errorf("Expected send interval 1s, got %v", cfg.Sender.SendInterval)
	}
	if cfg.Sender.IdleBackoff != 5*time.Second || cfg.Sender.ErrorBackoff != 5*time.Second {
		t.Errorf("Expected 5s backoffs, got idle=%v error=%v", cfg.Sender.IdleBackoff, cfg.Sender.ErrorBackoff)
	}
	if cfg.Device.Mode != "simulator" {
		t.Errorf("Expected simulator device mode, got %q", cfg.Device.Mode)
	}
	if cfg.Formance.Enabled() {
		t.Error("Expected journal mirror to be disabled without credentials")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("REWARD_PER_SMS", "0.25")
	t.Setenv("SEND_INTERVAL", "250ms")
	t.Setenv("SIGNUP_SPINS", "3")
	t.Setenv("DATABASE_PATH", "/tmp/test.db")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if !cfg.Rewards.RewardPerSMS.Equal(decimal.RequireFromString("0.25")) {
		t.Errorf("Expected reward 0.25, got %s", cfg.Rewards.RewardPerSMS)
	}
	if cfg.Sender.SendInterval != 250*time.Millisecond {
		t.Errorf("Expected 250ms send interval, got %v", cfg.Sender.SendInterval)
	}
	if cfg.Rewards.SignupSpins != 3 {
		t.Errorf("Expected 3 signup spins, got %d", cfg.Rewards.SignupSpins)
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Expected database path override, got %q", cfg.Database.Path)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad duration", "CLAIM_LEASE", "ten minutes"},
		{"bad decimal", "MIN_WITHDRAWAL", "lots"},
		{"negative decimal", "REWARD_PER_SMS", "-0.20"},
		{"failure rate above one", "DEVICE_FAILURE_RATE", "1.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("Expected error for %s=%q", tt.key, tt.value)
			}
		})
	}
}
