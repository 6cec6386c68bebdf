package settlement

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"sms-rupee-go/internal/database"
	"sms-rupee-go/internal/models"
	"sms-rupee-go/internal/store"

	"github.com/shopspring/decimal"
)

func newTestStore(t *testing.T) *database.Service {
	t.Helper()
	svc, err := database.NewService(context.Background(), models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "settle.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		PingTimeout:  5 * time.Second,
		BusyTimeout:  5 * time.Second,
	}, models.FeedConfig{})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(svc.Close)
	return svc
}

func mustAccount(t *testing.T, s store.LedgerStore, mobile, referrer string) models.Account {
	t.Helper()
	a, err := s.CreateAccount(context.Background(), store.CreateAccountParams{
		Mobile: mobile, PasswordHash: "h", ReferrerMobile: referrer, DeviceId: "dev-" + mobile,
	})
	if err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	return *a
}

func mustClaim(t *testing.T, s store.LedgerStore) *models.Claim {
	t.Helper()
	ctx := context.Background()
	if _, err := s.AddInventory(ctx, "9876543210", "hello"); err != nil {
		t.Fatalf("AddInventory failed: %v", err)
	}
	claim, err := s.ClaimNextUnsent(ctx, store.ClaimParams{Claimant: "test", Slot: 0, Lease: time.Minute})
	if err != nil || claim == nil {
		t.Fatalf("Expected claim, got %v, %v", claim, err)
	}
	return claim
}

func balanceOf(t *testing.T, s store.LedgerStore, mobile string) decimal.Decimal {
	t.Helper()
	a, err := s.GetAccount(context.Background(), mobile)
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	return a.Balance
}

func newSettler(s store.LedgerStore, j Journal) *Settler {
	return New(Config{
		Store:              s,
		RewardPerSMS:       decimal.RequireFromString("0.20"),
		ReferralPercentage: decimal.RequireFromString("0.15"),
		Journal:            j,
	})
}

// flakyStore fails selected writes and delegates the rest.
type flakyStore struct {
	store.LedgerStore
	failCloseOut  bool
	failCreditFor string
}

func (f *flakyStore) CloseOut(ctx context.Context, p store.CloseOutParams) error {
	if f.failCloseOut {
		return errors.New("store unavailable")
	}
	return f.LedgerStore.CloseOut(ctx, p)
}

func (f *flakyStore) CreditBalance(ctx context.Context, p store.CreditParams) (*models.LedgerEntry, error) {
	if p.Mobile == f.failCreditFor {
		return nil, errors.New("store unavailable")
	}
	return f.LedgerStore.CreditBalance(ctx, p)
}

type recordingJournal struct {
	mu      sync.Mutex
	entries []models.LedgerEntry
}

func (j *recordingJournal) RecordCredit(_ context.Context, e models.LedgerEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
	return nil
}

func TestCommission(t *testing.T) {
	s := newSettler(nil, nil)
	if !s.Commission().Equal(decimal.RequireFromString("0.03")) {
		t.Errorf("Expected commission 0.03, got %s", s.Commission())
	}
}

func TestSettle_NoReferrer(t *testing.T) {
	db := newTestStore(t)
	sender := mustAccount(t, db, "9000000001", "")
	claim := mustClaim(t, db)

	result := newSettler(db, nil).Settle(context.Background(), claim, sender)

	if !result.ClosedOut || !result.SenderCredited || result.ReferrerCredited {
		t.Errorf("Unexpected result %+v", result)
	}
	if got := balanceOf(t, db, "9000000001"); !got.Equal(decimal.RequireFromString("0.20")) {
		t.Errorf("Expected balance 0.20, got %s", got)
	}

	record, err := db.GetInventoryRecord(context.Background(), claim.RecordId)
	if err != nil {
		t.Fatalf("GetInventoryRecord failed: %v", err)
	}
	if !record.IsSent || record.SentBy != "9000000001" {
		t.Errorf("Expected record sent by 9000000001, got %+v", record)
	}
}

func TestSettle_WithReferrer(t *testing.T) {
	db := newTestStore(t)
	mustAccount(t, db, "9000000002", "")
	if _, err := db.CreditBalance(context.Background(), store.CreditParams{
		Mobile: "9000000002", Kind: models.EntryCheckin, Amount: decimal.NewFromInt(10), Reference: "seed",
	}); err != nil {
		t.Fatalf("CreditBalance failed: %v", err)
	}
	sender := mustAccount(t, db, "9000000001", "9000000002")
	journal := &recordingJournal{}

	result := newSettler(db, journal).Settle(context.Background(), mustClaim(t, db), sender)

	if !result.SenderCredited || !result.ReferrerCredited {
		t.Fatalf("Expected both credits, got %+v", result)
	}
	if got := balanceOf(t, db, "9000000001"); !got.Equal(decimal.RequireFromString("0.20")) {
		t.Errorf("Expected sender balance 0.20, got %s", got)
	}
	if got := balanceOf(t, db, "9000000002"); !got.Equal(decimal.RequireFromString("10.03")) {
		t.Errorf("Expected referrer balance 10.03, got %s", got)
	}
	if len(journal.entries) != 2 {
		t.Errorf("Expected 2 journal entries, got %d", len(journal.entries))
	}
}

func TestSettle_CommissionIndependentOfSenderCredit(t *testing.T) {
	db := newTestStore(t)
	mustAccount(t, db, "9000000002", "")
	sender := mustAccount(t, db, "9000000001", "9000000002")
	claim := mustClaim(t, db)

	flaky := &flakyStore{LedgerStore: db, failCreditFor: "9000000001"}
	result := newSettler(flaky, nil).Settle(context.Background(), claim, sender)

	if result.SenderCredited {
		t.Errorf("Expected sender credit to fail")
	}
	if !result.ReferrerCredited || !result.ClosedOut {
		t.Errorf("Expected close-out and commission to succeed, got %+v", result)
	}
	if got := balanceOf(t, db, "9000000002"); !got.Equal(decimal.RequireFromString("0.03")) {
		t.Errorf("Expected referrer balance 0.03, got %s", got)
	}
	if len(result.Errors) != 1 {
		t.Errorf("Expected 1 recorded error, got %v", result.Errors)
	}
}

func TestSettle_CloseOutFailureStillRewards(t *testing.T) {
	db := newTestStore(t)
	sender := mustAccount(t, db, "9000000001", "")
	claim := mustClaim(t, db)

	flaky := &flakyStore{LedgerStore: db, failCloseOut: true}
	result := newSettler(flaky, nil).Settle(context.Background(), claim, sender)

	if result.ClosedOut {
		t.Errorf("Expected close-out to fail")
	}
	if !result.SenderCredited {
		t.Errorf("Expected sender to be rewarded despite close-out failure")
	}
	if got := balanceOf(t, db, "9000000001"); !got.Equal(decimal.RequireFromString("0.20")) {
		t.Errorf("Expected balance 0.20, got %s", got)
	}
}

func TestSettle_ManySends(t *testing.T) {
	db := newTestStore(t)
	sender := mustAccount(t, db, "9000000001", "")
	settler := newSettler(db, nil)

	const sends = 25
	for i := 0; i < sends; i++ {
		settler.Settle(context.Background(), mustClaim(t, db), sender)
	}

	expected := decimal.RequireFromString("0.20").Mul(decimal.NewFromInt(sends))
	if got := balanceOf(t, db, "9000000001"); !got.Equal(expected) {
		t.Errorf("Expected balance %s, got %s", expected, got)
	}
}
