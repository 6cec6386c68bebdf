package api

import (
	"context"
	"errors"
	"time"

	"sms-rupee-go/internal/events"
	"sms-rupee-go/internal/models"
	"sms-rupee-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	reasonAlreadyCheckedIn = "You have already checked in today. Come back tomorrow!"
	reasonNoSpins          = "No spins left. Check in daily to earn more spins."
)

// SpinPrizes are the wheel segments, each equally likely.
var SpinPrizes = []decimal.Decimal{
	decimal.RequireFromString("0.5"),
	decimal.RequireFromString("1"),
	decimal.RequireFromString("2"),
	decimal.RequireFromString("5"),
	decimal.RequireFromString("10"),
	decimal.Zero,
	decimal.RequireFromString("0.5"),
	decimal.RequireFromString("1"),
}

func (s *Service) GetBalance(ctx context.Context, mobile string) (*models.Account, error) {
	return s.store.GetAccount(ctx, mobile)
}

func (s *Service) GetHistory(ctx context.Context, mobile string, limit, offset int) ([]models.LedgerEntry, error) {
	if _, err := s.store.GetAccount(ctx, mobile); err != nil {
		return nil, err
	}
	return s.store.GetLedgerEntries(ctx, mobile, limit, offset)
}

// CheckIn credits the daily reward plus one spin, once per local calendar day.
func (s *Service) CheckIn(ctx context.Context, mobile string, now time.Time) (*models.CheckInResult, error) {
	if now.IsZero() {
		now = s.clock()
	}
	day := now.Local().Format(time.DateOnly)

	account, err := s.store.CheckIn(ctx, mobile, day, now, s.rewards.CheckinReward)
	if errors.Is(err, store.ErrAlreadyCheckedIn) {
		return nil, policyWrap(err, reasonAlreadyCheckedIn)
	}
	if err != nil {
		return nil, err
	}

	zap.L().Info("Daily check-in",
		zap.String("mobile", mobile),
		zap.String("day", day),
		zap.String("new_balance", account.Balance.StringFixed(2)))

	s.publish(ctx, events.KeyRewardCredited, events.RewardCreditedEvent{
		Mobile:       mobile,
		Kind:         models.EntryCheckin,
		Amount:       s.rewards.CheckinReward.StringFixed(2),
		BalanceAfter: account.Balance.StringFixed(2),
		Reference:    "checkin:" + mobile + ":" + day,
		Timestamp:    now,
	})

	return &models.CheckInResult{
		Reward:     s.rewards.CheckinReward,
		NewBalance: account.Balance,
		Spins:      account.SpinsAvailable,
	}, nil
}

func (s *Service) pickPrize() decimal.Decimal {
	s.randMu.Lock()
	defer s.randMu.Unlock()
	return SpinPrizes[s.rand.Intn(len(SpinPrizes))]
}

// Spin consumes one spin and credits a uniformly chosen prize.
func (s *Service) Spin(ctx context.Context, mobile string) (*models.SpinResult, error) {
	won := s.pickPrize()
	reference := "spin:" + uuid.New().String()

	account, err := s.store.Spin(ctx, mobile, reference, won)
	if errors.Is(err, store.ErrNoSpins) {
		return nil, policyWrap(err, reasonNoSpins)
	}
	if err != nil {
		return nil, err
	}

	zap.L().Info("Spin",
		zap.String("mobile", mobile),
		zap.String("won", won.StringFixed(2)),
		zap.Int("spins_left", account.SpinsAvailable))

	if won.IsPositive() {
		s.publish(ctx, events.KeyRewardCredited, events.RewardCreditedEvent{
			Mobile:       mobile,
			Kind:         models.EntrySpin,
			Amount:       won.StringFixed(2),
			BalanceAfter: account.Balance.StringFixed(2),
			Reference:    reference,
			Timestamp:    s.clock(),
		})
	}

	return &models.SpinResult{
		Won:        won,
		NewBalance: account.Balance,
		SpinsLeft:  account.SpinsAvailable,
	}, nil
}
