package projection

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"sms-rupee-go/internal/database"
	"sms-rupee-go/internal/models"
	"sms-rupee-go/internal/store"

	"github.com/shopspring/decimal"
)

func setupStore(t *testing.T) *database.Service {
	t.Helper()
	svc, err := database.NewService(context.Background(), models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "projection.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		PingTimeout:  5 * time.Second,
		BusyTimeout:  5 * time.Second,
	}, models.FeedConfig{PollInterval: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(svc.Close)
	if _, err := svc.CreateAccount(context.Background(), store.CreateAccountParams{
		Mobile: "9000000001", PasswordHash: "h", DeviceId: "dev-1", Spins: 1,
	}); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	return svc
}

func nextUpdate(t *testing.T, s *Session, want func(Snapshot) bool) Snapshot {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case snap, ok := <-s.Updates():
			if !ok {
				t.Fatal("Updates closed unexpectedly")
			}
			if want(snap) {
				return snap
			}
		case <-timeout:
			t.Fatal("Timed out waiting for snapshot")
		}
	}
}

func TestSession_InitialSnapshot(t *testing.T) {
	svc := setupStore(t)
	if _, err := svc.AddInventory(context.Background(), "9876500001", "hello"); err != nil {
		t.Fatalf("AddInventory failed: %v", err)
	}

	s, err := Open(context.Background(), svc, "9000000001")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	snap := nextUpdate(t, s, func(Snapshot) bool { return true })
	if snap.Mobile != "9000000001" {
		t.Errorf("Expected mobile 9000000001, got %s", snap.Mobile)
	}
	if !snap.Balance.IsZero() {
		t.Errorf("Expected zero balance, got %s", snap.Balance)
	}
	if snap.SpinsAvailable != 1 {
		t.Errorf("Expected 1 spin, got %d", snap.SpinsAvailable)
	}
	if snap.PendingSms != 1 {
		t.Errorf("Expected 1 pending SMS, got %d", snap.PendingSms)
	}
	if _, ready := s.Snapshot(); !ready {
		t.Error("Expected snapshot ready after first update")
	}
}

func TestSession_FollowsWrites(t *testing.T) {
	svc := setupStore(t)
	ctx := context.Background()

	s, err := Open(ctx, svc, "9000000001")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()
	nextUpdate(t, s, func(Snapshot) bool { return true })

	if _, err := svc.CreditBalance(ctx, store.CreditParams{
		Mobile: "9000000001", Kind: models.EntrySmsReward,
		Amount: decimal.RequireFromString("0.20"), Reference: "sms:test",
	}); err != nil {
		t.Fatalf("CreditBalance failed: %v", err)
	}
	if _, err := svc.AddInventory(ctx, "9876500001", "hello"); err != nil {
		t.Fatalf("AddInventory failed: %v", err)
	}

	snap := nextUpdate(t, s, func(s Snapshot) bool {
		return s.Balance.Equal(decimal.RequireFromString("0.20")) && s.PendingSms == 1
	})
	latest, _ := s.Snapshot()
	if !latest.Balance.Equal(snap.Balance) {
		t.Errorf("Expected Snapshot() to match last update, got %s vs %s", latest.Balance, snap.Balance)
	}
}

func TestOpen_UnknownAccount(t *testing.T) {
	svc := setupStore(t)

	if _, err := Open(context.Background(), svc, "9999999999"); err == nil {
		t.Error("Expected error for unknown account")
	}
}

func TestSession_CloseEndsUpdates(t *testing.T) {
	svc := setupStore(t)

	s, err := Open(context.Background(), svc, "9000000001")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	s.Close()

	for range s.Updates() {
	}
}
