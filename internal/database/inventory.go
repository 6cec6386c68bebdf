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

func (s *Service) AddInventory(ctx context.Context, recipient, body string) (*models.InventoryRecord, error) {
	record := &models.InventoryRecord{
		Id:              uuid.New().String(),
		RecipientNumber: recipient,
		MessageBody:     body,
		AddedAt:         s.clock(),
	}

	if _, err := s.db.ExecContext(ctx, queryInsertInventory, record.Id, recipient, body, record.AddedAt); err != nil {
		return nil, fmt.Errorf("failed to insert inventory record: %w", err)
	}

	zap.L().Debug("Inventory record added", zap.String("id", record.Id), zap.String("recipient", recipient))
	s.feed.notifyInventory()
	return record, nil
}

func (s *Service) GetInventoryRecord(ctx context.Context, id string) (*models.InventoryRecord, error) {
	var (
		r         models.InventoryRecord
		isSent    int
		sentBy    sql.NullString
		simSlot   sql.NullInt64
		sentAt    sql.NullTime
		claimId   sql.NullString
		claimedBy sql.NullString
		leaseMs   sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, queryGetInventoryRecord, id).Scan(
		&r.Id, &r.RecipientNumber, &r.MessageBody, &isSent, &sentBy, &simSlot, &sentAt, &r.AddedAt,
		&claimId, &claimedBy, &leaseMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", store.ErrRecordNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get inventory record: %w", err)
	}

	r.IsSent = isSent == 1
	r.SentBy = sentBy.String
	if simSlot.Valid {
		slot := int(simSlot.Int64)
		r.SimSlot = &slot
	}
	r.SentAt = nullTimePtr(sentAt)
	r.ClaimId = claimId.String
	r.ClaimedBy = claimedBy.String
	if leaseMs.Valid {
		lease := time.UnixMilli(leaseMs.Int64).UTC()
		r.LeaseExpiresAt = &lease
	}
	return &r, nil
}

func (s *Service) CountUnsent(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, queryCountUnsent).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unsent inventory: %w", err)
	}
	return count, nil
}

// ClaimNextUnsent atomically leases one unsent record to the caller.
// It returns (nil, nil) when nothing is claimable.
func (s *Service) ClaimNextUnsent(ctx context.Context, params store.ClaimParams) (*models.Claim, error) {
	if params.Lease <= 0 {
		return nil, fmt.Errorf("claim lease must be positive, got %v", params.Lease)
	}
	now := params.Now
	if now.IsZero() {
		now = s.clock()
	}
	nowMs := now.UnixMilli()
	expires := now.Add(params.Lease)

	claim := &models.Claim{
		ClaimId:        uuid.New().String(),
		Claimant:       params.Claimant,
		Slot:           params.Slot,
		LeaseExpiresAt: expires,
	}
	err := s.db.QueryRowContext(ctx, queryClaimNextUnsent,
		claim.ClaimId, params.Claimant, params.Slot, expires.UnixMilli(), nowMs, nowMs).
		Scan(&claim.RecordId, &claim.RecipientNumber, &claim.MessageBody)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim inventory record: %w", err)
	}

	zap.L().Debug("Inventory record claimed",
		zap.String("record_id", claim.RecordId),
		zap.String("claim_id", claim.ClaimId),
		zap.String("claimant", params.Claimant),
		zap.Int("slot", params.Slot))
	return claim, nil
}

// ReleaseClaim drops a lease so another sender can pick the record up.
// Releasing a claim that is no longer held is not an error.
func (s *Service) ReleaseClaim(ctx context.Context, recordId, claimId string) error {
	result, err := s.db.ExecContext(ctx, queryReleaseClaim, recordId, claimId)
	if err != nil {
		return fmt.Errorf("failed to release claim: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		zap.L().Debug("Claim already released or closed", zap.String("record_id", recordId), zap.String("claim_id", claimId))
	}
	return nil
}

// CloseOut flips isSent exactly once, and only for the holder of the claim.
func (s *Service) CloseOut(ctx context.Context, params store.CloseOutParams) error {
	sentAt := params.SentAt
	if sentAt.IsZero() {
		sentAt = s.clock()
	}

	result, err := s.db.ExecContext(ctx, queryCloseOut,
		params.SentBy, params.SimSlot, sentAt, params.RecordId, params.ClaimId)
	if err != nil {
		return fmt.Errorf("failed to close out inventory record: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: record %s", store.ErrClaimLost, params.RecordId)
	}

	s.feed.notifyInventory()
	return nil
}

func (s *Service) ReleaseExpiredClaims(ctx context.Context, now time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, queryReleaseExpiredClaims, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to release expired claims: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n > 0 {
		zap.L().Info("Released expired claims", zap.Int64("count", n))
	}
	return int(n), nil
}
