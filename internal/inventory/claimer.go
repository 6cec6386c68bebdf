package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"sms-rupee-go/internal/models"
	"sms-rupee-go/internal/store"
)

// Claimer hands out exclusive, leased inventory records to one sender.
type Claimer struct {
	store    store.LedgerStore
	claimant string
	lease    time.Duration
}

func NewClaimer(ledger store.LedgerStore, claimant string, lease time.Duration) *Claimer {
	return &Claimer{store: ledger, claimant: claimant, lease: lease}
}

// Next returns a claimed record for the slot, or nil when the queue is empty.
func (c *Claimer) Next(ctx context.Context, slot int) (*models.Claim, error) {
	claim, err := c.store.ClaimNextUnsent(ctx, store.ClaimParams{
		Claimant: c.claimant,
		Slot:     slot,
		Lease:    c.lease,
	})
	if err != nil {
		return nil, fmt.Errorf("claim failed: %w", err)
	}
	return claim, nil
}

// Release gives a claim back after a confirmed send failure.
func (c *Claimer) Release(ctx context.Context, claim *models.Claim) error {
	return c.store.ReleaseClaim(ctx, claim.RecordId, claim.ClaimId)
}

// Entry is one parsed recipient,message pair
type Entry struct {
	Recipient string
	Message   string
}

// ErrMalformedLine marks a bulk line without a separator or with an empty field.
var ErrMalformedLine = errors.New("line must be recipient,message")

// ParseLine splits at the first comma; the message may itself contain commas.
func ParseLine(line string) (Entry, error) {
	recipient, message, found := strings.Cut(line, ",")
	if !found {
		return Entry{}, ErrMalformedLine
	}
	recipient = strings.TrimSpace(recipient)
	message = strings.TrimSpace(message)
	if recipient == "" || message == "" {
		return Entry{}, ErrMalformedLine
	}
	return Entry{Recipient: recipient, Message: message}, nil
}

// ParseBulk reads newline-delimited pairs. Blank lines are ignored; malformed
// lines are counted in skipped.
func ParseBulk(text string) (entries []Entry, skipped int) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		entry, err := ParseLine(line)
		if err != nil {
			skipped++
			continue
		}
		entries = append(entries, entry)
	}
	return entries, skipped
}
