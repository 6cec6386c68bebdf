package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sms-rupee-go/internal/models"

	"go.uber.org/zap"
)

// feedBroker fans out change notifications to live subscriptions. Local writes
// wake subscribers immediately; a poll interval catches writes made by other
// processes sharing the database file.
type feedBroker struct {
	svc          *Service
	pollInterval time.Duration

	mu          sync.Mutex
	nextId      int
	accountSubs map[string]map[int]chan struct{}
	countSubs   map[int]chan struct{}
	done        chan struct{}
	closeOnce   sync.Once
}

func newFeedBroker(svc *Service, pollInterval time.Duration) *feedBroker {
	return &feedBroker{
		svc:          svc,
		pollInterval: pollInterval,
		accountSubs:  make(map[string]map[int]chan struct{}),
		countSubs:    make(map[int]chan struct{}),
		done:         make(chan struct{}),
	}
}

func (b *feedBroker) close() {
	b.closeOnce.Do(func() { close(b.done) })
}

func wakeUp(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (b *feedBroker) notifyAccount(mobile string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.accountSubs[mobile] {
		wakeUp(ch)
	}
}

func (b *feedBroker) notifyInventory() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.countSubs {
		wakeUp(ch)
	}
}

// deliverLatest never blocks: a snapshot the consumer has not read yet is
// replaced by the newer one.
func deliverLatest[T any](out chan T, v T) {
	select {
	case out <- v:
		return
	default:
	}
	select {
	case <-out:
	default:
	}
	out <- v
}

func runWatch[T any](ctx context.Context, b *feedBroker, wake <-chan struct{}, out chan T,
	load func(context.Context) (T, string, error), cleanup func()) {
	defer close(out)
	defer cleanup()

	var lastKey string
	delivered := false
	emit := func() {
		v, key, err := load(ctx)
		if err != nil {
			if ctx.Err() == nil {
				zap.L().Warn("Change feed read failed", zap.Error(err))
			}
			return
		}
		if delivered && key == lastKey {
			return
		}
		delivered, lastKey = true, key
		deliverLatest(out, v)
	}

	var tick <-chan time.Time
	if b.pollInterval > 0 {
		ticker := time.NewTicker(b.pollInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	emit()
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		case <-wake:
			emit()
		case <-tick:
			emit()
		}
	}
}

func accountKey(a *models.Account) string {
	bank := ""
	if a.BankDetails != nil {
		bank = a.BankDetails.HolderName + "/" + a.BankDetails.AccountNumber + "/" + a.BankDetails.IFSC
	}
	return fmt.Sprintf("%s|%d|%s|%s|%s|%s", a.Balance.StringFixed(2), a.SpinsAvailable, a.DeviceId,
		a.LastCheckinDay, a.ReferrerMobile, bank)
}

// WatchAccount streams snapshots of one account until ctx is cancelled.
func (s *Service) WatchAccount(ctx context.Context, mobile string) (<-chan models.Account, error) {
	if _, err := getAccount(ctx, s.db, mobile); err != nil {
		return nil, err
	}

	b := s.feed
	wake := make(chan struct{}, 1)
	b.mu.Lock()
	id := b.nextId
	b.nextId++
	if b.accountSubs[mobile] == nil {
		b.accountSubs[mobile] = make(map[int]chan struct{})
	}
	b.accountSubs[mobile][id] = wake
	b.mu.Unlock()

	out := make(chan models.Account, 1)
	go runWatch(ctx, b, wake, out,
		func(ctx context.Context) (models.Account, string, error) {
			a, err := getAccount(ctx, s.db, mobile)
			if err != nil {
				return models.Account{}, "", err
			}
			return *a, accountKey(a), nil
		},
		func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.accountSubs[mobile], id)
			if len(b.accountSubs[mobile]) == 0 {
				delete(b.accountSubs, mobile)
			}
		})
	return out, nil
}

// WatchUnsentCount streams the number of unsent inventory records until ctx is cancelled.
func (s *Service) WatchUnsentCount(ctx context.Context) (<-chan int, error) {
	b := s.feed
	wake := make(chan struct{}, 1)
	b.mu.Lock()
	id := b.nextId
	b.nextId++
	b.countSubs[id] = wake
	b.mu.Unlock()

	out := make(chan int, 1)
	go runWatch(ctx, b, wake, out,
		func(ctx context.Context) (int, string, error) {
			n, err := s.CountUnsent(ctx)
			return n, fmt.Sprint(n), err
		},
		func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.countSubs, id)
		})
	return out, nil
}
