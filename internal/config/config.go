/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"sms-rupee-go/internal/models"

	"github.com/shopspring/decimal"
)

func Load() (*models.Config, error) {
	var connMaxLifetime, connMaxIdleTime, pingTimeout, busyTimeout time.Duration
	var sendInterval, idleBackoff, errorBackoff, claimLease, sendTimeout time.Duration
	var feedPoll, sendLatency, writeTimeout time.Duration

	defaults := []struct {
		key  string
		dst  *time.Duration
		dflt time.Duration
	}{
		{"DB_CONN_MAX_LIFETIME", &connMaxLifetime, 5 * time.Minute},
		{"DB_CONN_MAX_IDLE_TIME", &connMaxIdleTime, 30 * time.Second},
		{"DB_PING_TIMEOUT", &pingTimeout, 5 * time.Second},
		{"DB_BUSY_TIMEOUT", &busyTimeout, 5 * time.Second},
		{"SEND_INTERVAL", &sendInterval, time.Second},
		{"IDLE_BACKOFF", &idleBackoff, 5 * time.Second},
		{"ERROR_BACKOFF", &errorBackoff, 5 * time.Second},
		{"CLAIM_LEASE", &claimLease, 10 * time.Minute},
		{"SEND_TIMEOUT", &sendTimeout, 2 * time.Minute},
		{"FEED_POLL_INTERVAL", &feedPoll, 2 * time.Second},
		{"DEVICE_SEND_LATENCY", &sendLatency, 200 * time.Millisecond},
		{"HTTP_WRITE_TIMEOUT", &writeTimeout, 30 * time.Second},
	}
	for _, d := range defaults {
		v, err := getEnvDuration(d.key, d.dflt)
		if err != nil {
			return nil, err
		}
		*d.dst = v
	}

	rewardPerSMS, err := getEnvDecimal("REWARD_PER_SMS", decimal.RequireFromString("0.20"))
	if err != nil {
		return nil, err
	}
	referralPct, err := getEnvDecimal("REFERRAL_PERCENTAGE", decimal.RequireFromString("0.15"))
	if err != nil {
		return nil, err
	}
	minWithdrawal, err := getEnvDecimal("MIN_WITHDRAWAL", decimal.NewFromInt(100))
	if err != nil {
		return nil, err
	}
	checkinReward, err := getEnvDecimal("CHECKIN_REWARD", decimal.NewFromInt(5))
	if err != nil {
		return nil, err
	}

	failureRate, err := strconv.ParseFloat(getEnvString("DEVICE_FAILURE_RATE", "0"), 64)
	if err != nil || failureRate < 0 || failureRate > 1 {
		return nil, fmt.Errorf("invalid DEVICE_FAILURE_RATE: must be between 0 and 1")
	}

	return &models.Config{
		Database: models.DatabaseConfig{
			Path:            getEnvString("DATABASE_PATH", "smsrupee.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
			BusyTimeout:     busyTimeout,
		},
		Sender: models.SenderConfig{
			SendInterval: sendInterval,
			IdleBackoff:  idleBackoff,
			ErrorBackoff: errorBackoff,
			ClaimLease:   claimLease,
			SendTimeout:  sendTimeout,
			SimsFile:     getEnvString("SIMS_FILE", "sims.yaml"),
		},
		Rewards: models.RewardConfig{
			RewardPerSMS:        rewardPerSMS,
			ReferralPercentage:  referralPct,
			MinWithdrawal:       minWithdrawal,
			CheckinReward:       checkinReward,
			SignupSpins:         getEnvInt("SIGNUP_SPINS", 1),
			ReferralSignupSpins: getEnvInt("REFERRAL_SIGNUP_SPINS", 1),
		},
		Feed: models.FeedConfig{
			PollInterval: feedPoll,
		},
		Device: models.DeviceConfig{
			Mode:         getEnvString("DEVICE_MODE", "simulator"),
			DeviceId:     getEnvString("DEVICE_ID", ""),
			GatewayURL:   getEnvString("DEVICE_GATEWAY_URL", ""),
			GatewayToken: getEnvString("DEVICE_GATEWAY_TOKEN", ""),
			FailureRate:  failureRate,
			SendLatency:  sendLatency,
		},
		Formance: models.FormanceConfig{
			StackURL:     getEnvString("FORMANCE_STACK_URL", ""),
			ClientID:     getEnvString("FORMANCE_CLIENT_ID", ""),
			ClientSecret: getEnvString("FORMANCE_CLIENT_SECRET", ""),
			LedgerName:   getEnvString("FORMANCE_LEDGER", "sms-rupee-rewards"),
		},
		Events: models.EventsConfig{
			URL:      getEnvString("RABBITMQ_URL", ""),
			Exchange: getEnvString("RABBITMQ_EXCHANGE", "smsrupee.events"),
		},
		HTTP: models.HTTPConfig{
			Addr:         getEnvString("HTTP_ADDR", ":8080"),
			WriteTimeout: writeTimeout,
		},
		Scheduler: models.SchedulerConfig{
			ClaimReaperSchedule: getEnvString("CLAIM_REAPER_SCHEDULE", "@every 1m"),
		},
		Admin: models.AdminConfig{
			Username: getEnvString("ADMIN_USERNAME", "admin"),
			Password: getEnvString("ADMIN_PASSWORD", ""),
		},
	}, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	if value := os.Getenv(key); value != "" {
		d, err := decimal.NewFromString(value)
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid decimal for %s: %q (%w)", key, value, err)
		}
		if d.IsNegative() {
			return decimal.Zero, fmt.Errorf("invalid decimal for %s: %q is negative", key, value)
		}
		return d, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
