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

package api

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"sms-rupee-go/internal/events"
	"sms-rupee-go/internal/models"
	"sms-rupee-go/internal/store"

	"go.uber.org/zap"
)

// PolicyError is a user-facing rejection. Reason is safe to show as is.
type PolicyError struct {
	Reason string
	Err    error
}

func (e *PolicyError) Error() string { return e.Reason }

func (e *PolicyError) Unwrap() error { return e.Err }

func policy(reason string) error {
	return &PolicyError{Reason: reason}
}

func policyWrap(err error, reason string) error {
	return &PolicyError{Reason: reason, Err: err}
}

// IsPolicy reports whether err is a user-facing rejection.
func IsPolicy(err error) bool {
	var pe *PolicyError
	return errors.As(err, &pe)
}

// Config contains configuration for Service
type Config struct {
	Store   store.LedgerStore
	Rewards models.RewardConfig
	Events  events.Publisher
	Clock   func() time.Time
	Rand    *rand.Rand
}

// Service implements the account, reward and admin actions on top of the ledger store.
type Service struct {
	store   store.LedgerStore
	rewards models.RewardConfig
	events  events.Publisher
	clock   func() time.Time

	randMu sync.Mutex
	rand   *rand.Rand
}

func NewService(cfg Config) *Service {
	if cfg.Events == nil {
		cfg.Events = events.Noop{}
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Service{
		store:   cfg.Store,
		rewards: cfg.Rewards,
		events:  cfg.Events,
		clock:   cfg.Clock,
		rand:    cfg.Rand,
	}
}

func (s *Service) HealthCheck(ctx context.Context) error {
	if err := s.store.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, key string, body any) {
	if err := s.events.Publish(ctx, key, body); err != nil {
		zap.L().Warn("Event publish failed", zap.String("routing_key", key), zap.Error(err))
	}
}
