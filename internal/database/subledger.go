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

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sms-rupee-go/internal/models"
	"sms-rupee-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SubledgerService handles the per-account audit trail. Every balance change
// goes through applyEntry so the ledger always sums to the stored balance.
type SubledgerService struct {
	db *sql.DB
}

func NewSubledgerService(db *sql.DB) *SubledgerService {
	return &SubledgerService{
		db: db,
	}
}

func (s *SubledgerService) InitSchema() error {
	schema := `
	-- Ledger Entries (Audit Trail). reference is the idempotency key.
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		mobile TEXT NOT NULL,
		kind TEXT NOT NULL,
		amount_minor INTEGER NOT NULL,
		balance_after_minor INTEGER NOT NULL,
		reference TEXT NOT NULL UNIQUE,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_entries_mobile ON ledger_entries(mobile, created_at);
	CREATE INDEX IF NOT EXISTS idx_ledger_entries_kind ON ledger_entries(kind);
	`

	_, err := s.db.Exec(schema)
	return err
}

// entryParams describes one balance change inside an open transaction
type entryParams struct {
	Mobile      string
	Kind        string
	AmountMinor int64
	Reference   string
	At          time.Time
}

// applyEntry atomically increments the balance and records the matching entry.
// The caller owns the transaction; a duplicate reference aborts it.
func (s *SubledgerService) applyEntry(ctx context.Context, tx *sql.Tx, p entryParams) (*models.LedgerEntry, error) {
	var balanceAfter int64
	err := tx.QueryRowContext(ctx, queryIncrementBalance, p.AmountMinor, p.At, p.Mobile).Scan(&balanceAfter)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", store.ErrAccountNotFound, p.Mobile)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to increment balance: %w", err)
	}

	return s.insertEntry(ctx, tx, p, balanceAfter)
}

func (s *SubledgerService) insertEntry(ctx context.Context, tx *sql.Tx, p entryParams, balanceAfter int64) (*models.LedgerEntry, error) {
	entryId := uuid.New().String()
	_, err := tx.ExecContext(ctx, queryInsertLedgerEntry,
		entryId, p.Mobile, p.Kind, p.AmountMinor, balanceAfter, p.Reference, p.At)
	if err != nil {
		if isUniqueViolation(err) {
			zap.L().Warn("Duplicate ledger reference detected, skipping",
				zap.String("reference", p.Reference),
				zap.String("mobile", p.Mobile))
			return nil, fmt.Errorf("%w: reference %s already exists", store.ErrDuplicateEntry, p.Reference)
		}
		return nil, fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	return &models.LedgerEntry{
		Id:           entryId,
		Mobile:       p.Mobile,
		Kind:         p.Kind,
		Amount:       fromMinor(p.AmountMinor),
		BalanceAfter: fromMinor(balanceAfter),
		Reference:    p.Reference,
		CreatedAt:    p.At,
	}, nil
}

// ProcessEntry runs applyEntry in its own transaction
func (s *SubledgerService) ProcessEntry(ctx context.Context, p entryParams) (*models.LedgerEntry, error) {
	zap.L().Debug("Processing ledger entry",
		zap.String("mobile", p.Mobile),
		zap.String("kind", p.Kind),
		zap.Int64("amount_minor", p.AmountMinor),
		zap.String("reference", p.Reference))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	entry, err := s.applyEntry(ctx, tx, p)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Ledger entry processed",
		zap.String("entry_id", entry.Id),
		zap.String("mobile", p.Mobile),
		zap.String("kind", p.Kind),
		zap.String("amount", entry.Amount.String()),
		zap.String("new_balance", entry.BalanceAfter.String()))

	return entry, nil
}
