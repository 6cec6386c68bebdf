package api

import (
	"context"
	"strings"

	"sms-rupee-go/internal/inventory"
	"sms-rupee-go/internal/models"

	"go.uber.org/zap"
)

const reasonSmsIncomplete = "Recipient number and message are required."

func (s *Service) AddSms(ctx context.Context, recipient, body string) (*models.InventoryRecord, error) {
	recipient = strings.TrimSpace(recipient)
	body = strings.TrimSpace(body)
	if recipient == "" || body == "" {
		return nil, policy(reasonSmsIncomplete)
	}
	return s.store.AddInventory(ctx, recipient, body)
}

// BulkAddSms inserts one record per "recipient,message" line. Malformed lines
// and failed inserts are counted as skipped.
func (s *Service) BulkAddSms(ctx context.Context, text string) (*models.BulkResult, error) {
	entries, skipped := inventory.ParseBulk(text)
	result := &models.BulkResult{Skipped: skipped}

	for _, e := range entries {
		if _, err := s.store.AddInventory(ctx, e.Recipient, e.Message); err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			zap.L().Warn("Bulk insert failed",
				zap.String("recipient", e.Recipient),
				zap.Error(err))
			result.Skipped++
			continue
		}
		result.Added++
	}

	zap.L().Info("Bulk inventory upload",
		zap.Int("added", result.Added),
		zap.Int("skipped", result.Skipped))
	return result, nil
}
