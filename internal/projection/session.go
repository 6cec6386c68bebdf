package projection

import (
	"context"
	"sync"
	"time"

	"sms-rupee-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Feed is the change-feed half of the ledger store.
type Feed interface {
	WatchAccount(ctx context.Context, mobile string) (<-chan models.Account, error)
	WatchUnsentCount(ctx context.Context) (<-chan int, error)
}

// Snapshot is the last observed state of the signed-in user and the queue.
type Snapshot struct {
	Mobile         string          `json:"mobile"`
	Balance        decimal.Decimal `json:"balance"`
	SpinsAvailable int             `json:"spinsAvailable"`
	ReferralCode   string          `json:"referralCode"`
	HasBankDetails bool            `json:"hasBankDetails"`
	PendingSms     int             `json:"pendingSms"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// Session keeps a read-only projection of one account and the unsent count.
// It never writes; the store's atomic operations are the only source of truth.
type Session struct {
	mobile  string
	cancel  context.CancelFunc
	updates chan Snapshot
	done    chan struct{}

	mu       sync.RWMutex
	snapshot Snapshot
	ready    bool
}

// Open subscribes to both feeds. The first snapshot is available once both
// feeds have delivered their initial value.
func Open(ctx context.Context, feed Feed, mobile string) (*Session, error) {
	ctx, cancel := context.WithCancel(ctx)

	accounts, err := feed.WatchAccount(ctx, mobile)
	if err != nil {
		cancel()
		return nil, err
	}
	counts, err := feed.WatchUnsentCount(ctx)
	if err != nil {
		cancel()
		return nil, err
	}

	s := &Session{
		mobile:  mobile,
		cancel:  cancel,
		updates: make(chan Snapshot, 1),
		done:    make(chan struct{}),
	}
	go s.run(accounts, counts)
	return s, nil
}

func (s *Session) run(accounts <-chan models.Account, counts <-chan int) {
	defer close(s.done)
	defer close(s.updates)

	var haveAccount, haveCount bool
	for accounts != nil || counts != nil {
		select {
		case a, ok := <-accounts:
			if !ok {
				accounts = nil
				continue
			}
			haveAccount = true
			s.apply(func(snap *Snapshot) {
				snap.Mobile = a.Mobile
				snap.Balance = a.Balance
				snap.SpinsAvailable = a.SpinsAvailable
				snap.ReferralCode = a.ReferralCode
				snap.HasBankDetails = a.BankDetails != nil && a.BankDetails.Complete()
			}, haveAccount && haveCount)
		case n, ok := <-counts:
			if !ok {
				counts = nil
				continue
			}
			haveCount = true
			s.apply(func(snap *Snapshot) { snap.PendingSms = n }, haveAccount && haveCount)
		}
	}
	zap.L().Debug("Projection closed", zap.String("mobile", s.mobile))
}

func (s *Session) apply(mutate func(*Snapshot), publish bool) {
	s.mu.Lock()
	mutate(&s.snapshot)
	s.snapshot.UpdatedAt = time.Now()
	if publish {
		s.ready = true
	}
	snap := s.snapshot
	s.mu.Unlock()

	if !publish {
		return
	}
	// Coalesce: an unread snapshot is replaced by the newer one.
	select {
	case s.updates <- snap:
		return
	default:
	}
	select {
	case <-s.updates:
	default:
	}
	s.updates <- snap
}

// Snapshot returns the latest state and whether both feeds have reported.
func (s *Session) Snapshot() (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot, s.ready
}

// Updates delivers coalesced snapshots and is closed after Close.
func (s *Session) Updates() <-chan Snapshot {
	return s.updates
}

// Close unsubscribes from both feeds and waits for the projection to stop.
func (s *Session) Close() {
	s.cancel()
	<-s.done
}
