package settlement

import (
	"context"
	"time"

	"sms-rupee-go/internal/events"
	"sms-rupee-go/internal/models"
	"sms-rupee-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Journal mirrors credited entries to an external ledger.
type Journal interface {
	RecordCredit(ctx context.Context, entry models.LedgerEntry) error
}

type Config struct {
	Store              store.LedgerStore
	RewardPerSMS       decimal.Decimal
	ReferralPercentage decimal.Decimal
	Journal            Journal          // optional
	Events             events.Publisher // optional
	Clock              func() time.Time // optional
}

// Settler applies the post-send writes for one confirmed send. The three
// writes are independent: a failure is logged and the next write still runs.
type Settler struct {
	store      store.LedgerStore
	reward     decimal.Decimal
	commission decimal.Decimal
	journal    Journal
	events     events.Publisher
	clock      func() time.Time
}

func New(cfg Config) *Settler {
	publisher := cfg.Events
	if publisher == nil {
		publisher = events.Noop{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Settler{
		store:      cfg.Store,
		reward:     cfg.RewardPerSMS,
		commission: cfg.RewardPerSMS.Mul(cfg.ReferralPercentage).Round(2),
		journal:    cfg.Journal,
		events:     publisher,
		clock:      clock,
	}
}

// Reward is the fixed per-message credit.
func (s *Settler) Reward() decimal.Decimal { return s.reward }

// Commission is the referrer's cut of one reward, rounded to paise.
func (s *Settler) Commission() decimal.Decimal { return s.commission }

// Settle closes out the record, credits the sender and credits the referrer.
// It never returns an error; the result records which steps succeeded.
func (s *Settler) Settle(ctx context.Context, claim *models.Claim, sender models.Account) models.SettlementResult {
	now := s.clock()
	result := models.SettlementResult{
		RecordId:  claim.RecordId,
		SettledAt: now,
	}
	logger := zap.L().With(
		zap.String("record_id", claim.RecordId),
		zap.String("sender", sender.Mobile),
		zap.Int("slot", claim.Slot))

	// 1. Close-out. A lost claim still earns the reward for a confirmed send.
	if err := s.store.CloseOut(ctx, store.CloseOutParams{
		RecordId: claim.RecordId,
		ClaimId:  claim.ClaimId,
		SentBy:   sender.Mobile,
		SimSlot:  claim.Slot,
		SentAt:   now,
	}); err != nil {
		logger.Error("Inventory close-out failed", zap.Error(err))
		result.Errors = append(result.Errors, "close-out: "+err.Error())
	} else {
		result.ClosedOut = true
	}

	// 2. Sender credit
	var credited []models.LedgerEntry
	entry, err := s.store.CreditBalance(ctx, store.CreditParams{
		Mobile:    sender.Mobile,
		Kind:      models.EntrySmsReward,
		Amount:    s.reward,
		Reference: "sms:" + claim.RecordId + ":" + claim.ClaimId,
	})
	if err != nil {
		logger.Error("Sender reward failed", zap.Error(err))
		result.Errors = append(result.Errors, "reward: "+err.Error())
	} else {
		result.SenderCredited = true
		result.Reward = entry.Amount
		result.SenderBalance = entry.BalanceAfter
		credited = append(credited, *entry)
	}

	// 3. Referrer commission, independent of step 2
	if sender.ReferrerMobile != "" && s.commission.IsPositive() {
		entry, err := s.store.CreditBalance(ctx, store.CreditParams{
			Mobile:    sender.ReferrerMobile,
			Kind:      models.EntryReferralCommission,
			Amount:    s.commission,
			Reference: "commission:" + claim.RecordId + ":" + claim.ClaimId,
		})
		if err != nil {
			logger.Error("Referral commission failed",
				zap.String("referrer", sender.ReferrerMobile),
				zap.Error(err))
			result.Errors = append(result.Errors, "commission: "+err.Error())
		} else {
			result.ReferrerCredited = true
			result.Commission = entry.Amount
			credited = append(credited, *entry)
		}
	}

	s.mirror(ctx, claim, sender, result, credited)

	logger.Info("Settlement complete",
		zap.Bool("closed_out", result.ClosedOut),
		zap.Bool("sender_credited", result.SenderCredited),
		zap.Bool("referrer_credited", result.ReferrerCredited))
	return result
}

// mirror forwards the outcome to the journal and event stream. Failures are logged only.
func (s *Settler) mirror(ctx context.Context, claim *models.Claim, sender models.Account, result models.SettlementResult, credited []models.LedgerEntry) {
	if err := s.events.Publish(ctx, events.KeySmsSent, events.SmsSentEvent{
		RecordId:  claim.RecordId,
		Sender:    sender.Mobile,
		SimSlot:   claim.Slot,
		ClosedOut: result.ClosedOut,
		Timestamp: result.SettledAt,
	}); err != nil {
		zap.L().Warn("Failed to publish sms.sent", zap.String("record_id", claim.RecordId), zap.Error(err))
	}

	for _, entry := range credited {
		if s.journal != nil {
			if err := s.journal.RecordCredit(ctx, entry); err != nil {
				zap.L().Warn("Failed to mirror credit to journal",
					zap.String("reference", entry.Reference),
					zap.Error(err))
			}
		}
		if err := s.events.Publish(ctx, events.KeyRewardCredited, events.RewardCreditedEvent{
			Mobile:       entry.Mobile,
			Kind:         entry.Kind,
			Amount:       entry.Amount.StringFixed(2),
			BalanceAfter: entry.BalanceAfter.StringFixed(2),
			Reference:    entry.Reference,
			Timestamp:    entry.CreatedAt,
		}); err != nil {
			zap.L().Warn("Failed to publish reward.credited", zap.String("reference", entry.Reference), zap.Error(err))
		}
	}
}
