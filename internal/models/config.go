package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config represents the application configuration
type Config struct {
	Database  DatabaseConfig
	Sender    SenderConfig
	Rewards   RewardConfig
	Feed      FeedConfig
	Device    DeviceConfig
	Formance  FormanceConfig
	Events    EventsConfig
	HTTP      HTTPConfig
	Scheduler SchedulerConfig
	Admin     AdminConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
	BusyTimeout     time.Duration
}

// SenderConfig holds the per-SIM send loop timings
type SenderConfig struct {
	SendInterval time.Duration
	IdleBackoff  time.Duration
	ErrorBackoff time.Duration
	ClaimLease   time.Duration
	SendTimeout  time.Duration
	SimsFile     string
}

// RewardConfig holds the money constants. Amounts are in rupees.
type RewardConfig struct {
	RewardPerSMS        decimal.Decimal
	ReferralPercentage  decimal.Decimal
	MinWithdrawal       decimal.Decimal
	CheckinReward       decimal.Decimal
	SignupSpins         int
	ReferralSignupSpins int
}

// FeedConfig controls the change feed fallback polling
type FeedConfig struct {
	PollInterval time.Duration
}

// DeviceConfig selects and configures the SMS send capability
type DeviceConfig struct {
	Mode         string // "simulator" or "gateway"
	DeviceId     string
	GatewayURL   string
	GatewayToken string
	FailureRate  float64
	SendLatency  time.Duration
}

// FormanceConfig holds the optional reward journal mirror settings
type FormanceConfig struct {
	StackURL     string
	ClientID     string
	ClientSecret string
	LedgerName   string
}

// Enabled reports whether the journal mirror is configured
func (c FormanceConfig) Enabled() bool {
	return c.StackURL != "" && c.ClientID != "" && c.ClientSecret != ""
}

// EventsConfig holds the optional RabbitMQ publisher settings
type EventsConfig struct {
	URL      string
	Exchange string
}

type HTTPConfig struct {
	Addr         string
	WriteTimeout time.Duration
}

type SchedulerConfig struct {
	ClaimReaperSchedule string
}

type AdminConfig struct {
	Username string
	Password string
}
