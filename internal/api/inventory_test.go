package api

import (
	"context"
	"testing"
	"time"

	"sms-rupee-go/internal/store"
)

func TestAddSms(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	_, err := env.svc.AddSms(ctx, " ", "hello")
	expectPolicy(t, err, reasonSmsIncomplete)

	rec, err := env.svc.AddSms(ctx, " 9876543210 ", " hello ")
	if err != nil {
		t.Fatalf("AddSms failed: %v", err)
	}
	if rec.RecipientNumber != "9876543210" || rec.MessageBody != "hello" {
		t.Errorf("Expected trimmed values, got %q / %q", rec.RecipientNumber, rec.MessageBody)
	}
	if rec.IsSent {
		t.Error("Expected new record to be unsent")
	}
}

func TestBulkAddSms(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	text := "9876500001,Your OTP is 1234\n\n   \nno separator here\n 9876500002 , Hi, see you at 5 \n,empty recipient\n9876500003,\n"
	res, err := env.svc.BulkAddSms(ctx, text)
	if err != nil {
		t.Fatalf("BulkAddSms failed: %v", err)
	}
	if res.Added != 2 {
		t.Errorf("Expected 2 added, got %d", res.Added)
	}
	if res.Skipped != 3 {
		t.Errorf("Expected 3 skipped, got %d", res.Skipped)
	}

	got := make(map[string]string)
	for i := 0; i < 2; i++ {
		claim, err := env.store.ClaimNextUnsent(ctx, store.ClaimParams{Claimant: "t", Lease: time.Minute})
		if err != nil || claim == nil {
			t.Fatalf("Expected claim, got %v, %v", claim, err)
		}
		got[claim.RecipientNumber] = claim.MessageBody
	}
	if got["9876500001"] != "Your OTP is 1234" {
		t.Errorf("Expected per-line message for first record, got %q", got["9876500001"])
	}
	if got["9876500002"] != "Hi, see you at 5" {
		t.Errorf("Expected message to keep its commas, got %q", got["9876500002"])
	}
}
