package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"sms-rupee-go/internal/database"
	"sms-rupee-go/internal/models"
	"sms-rupee-go/internal/store"
)

type countingReaper struct {
	calls atomic.Int32
	err   error
}

func (r *countingReaper) ReleaseExpiredClaims(context.Context, time.Time) (int, error) {
	r.calls.Add(1)
	return 0, r.err
}

func TestReleaseExpiredClaims_FreesExpiredLease(t *testing.T) {
	ctx := context.Background()
	db, err := database.NewService(ctx, models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "scheduler.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		PingTimeout:  5 * time.Second,
		BusyTimeout:  5 * time.Second,
	}, models.FeedConfig{})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	defer db.Close()

	if _, err := db.AddInventory(ctx, "9876543210", "hello"); err != nil {
		t.Fatalf("AddInventory failed: %v", err)
	}
	claimedAt := time.Now().Add(-time.Hour)
	if _, err := db.ClaimNextUnsent(ctx, store.ClaimParams{
		Claimant: "dead-phone", Lease: time.Minute, Now: claimedAt,
	}); err != nil {
		t.Fatalf("ClaimNextUnsent failed: %v", err)
	}

	jobs := NewJobs(db)
	jobs.ReleaseExpiredClaims()

	claim, err := db.ClaimNextUnsent(ctx, store.ClaimParams{Claimant: "live-phone", Lease: time.Minute})
	if err != nil {
		t.Fatalf("ClaimNextUnsent failed: %v", err)
	}
	if claim == nil {
		t.Fatal("Expected released record to be claimable again")
	}
	if claim.Claimant != "live-phone" {
		t.Errorf("Expected claimant live-phone, got %s", claim.Claimant)
	}
}

func TestReleaseExpiredClaims_ErrorIsLogged(t *testing.T) {
	reaper := &countingReaper{err: errors.New("database is locked")}
	NewJobs(reaper).ReleaseExpiredClaims()

	if reaper.calls.Load() != 1 {
		t.Errorf("Expected 1 reaper call, got %d", reaper.calls.Load())
	}
}

func TestStart_InvalidSchedule(t *testing.T) {
	s := New(NewJobs(&countingReaper{}))

	if err := s.Start("not a schedule"); err == nil {
		t.Error("Expected error for invalid schedule")
	}
}

func TestStart_RunsReaper(t *testing.T) {
	reaper := &countingReaper{}
	s := New(NewJobs(reaper))

	if err := s.Start("@every 1s"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for reaper.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if reaper.calls.Load() == 0 {
		t.Error("Expected reaper to run on schedule")
	}
}
