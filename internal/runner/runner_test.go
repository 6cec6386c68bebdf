package runner

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"sms-rupee-go/internal/database"
	"sms-rupee-go/internal/device"
	"sms-rupee-go/internal/inventory"
	"sms-rupee-go/internal/models"
	"sms-rupee-go/internal/settlement"
	"sms-rupee-go/internal/store"

	"github.com/shopspring/decimal"
)

// fakeDevice records every send. When gate is set each send blocks until a
// value is received from it.
type fakeDevice struct {
	mu         sync.Mutex
	recipients []string
	failFirst  int
	gate       chan struct{}
	started    chan struct{}
	inflight   atomic.Int32
	maxFlight  atomic.Int32
	deny       bool
}

func (d *fakeDevice) SendSMS(recipient, _ string, _ int, onFailure func(string), onSuccess func(string)) {
	n := d.inflight.Add(1)
	for {
		m := d.maxFlight.Load()
		if n <= m || d.maxFlight.CompareAndSwap(m, n) {
			break
		}
	}

	d.mu.Lock()
	d.recipients = append(d.recipients, recipient)
	fail := d.failFirst > 0
	if fail {
		d.failFirst--
	}
	d.mu.Unlock()

	if d.started != nil {
		select {
		case d.started <- struct{}{}:
		default:
		}
	}
	if d.gate != nil {
		<-d.gate
	} else {
		time.Sleep(2 * time.Millisecond)
	}
	d.inflight.Add(-1)

	if fail {
		onFailure("no service")
		return
	}
	onSuccess("SMS sent")
}

func (d *fakeDevice) RequestSendPermission(context.Context) (bool, error) {
	return !d.deny, nil
}

func (d *fakeDevice) calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.recipients...)
}

type harness struct {
	store  *database.Service
	device *fakeDevice
	runner *Runner
	sender models.Account
}

func newHarness(t *testing.T, dev *fakeDevice) *harness {
	t.Helper()
	ctx := context.Background()
	svc, err := database.NewService(ctx, models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "runner.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		PingTimeout:  5 * time.Second,
		BusyTimeout:  5 * time.Second,
	}, models.FeedConfig{})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(svc.Close)

	sender, err := svc.CreateAccount(ctx, store.CreateAccountParams{
		Mobile: "9000000001", PasswordHash: "h", DeviceId: "dev-1",
	})
	if err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}

	r := New(Config{
		Claims: inventory.NewClaimer(svc, "dev-1", time.Minute),
		Settler: settlement.New(settlement.Config{
			Store:              svc,
			RewardPerSMS:       decimal.RequireFromString("0.20"),
			ReferralPercentage: decimal.RequireFromString("0.15"),
		}),
		Device:       dev,
		Permissions:  dev,
		Sender:       *sender,
		Slots:        []models.SimSlot{{Id: 0, Name: "SIM 1 - Primary"}, {Id: 1, Name: "SIM 2 - Secondary"}},
		SendInterval: time.Millisecond,
		IdleBackoff:  5 * time.Millisecond,
		ErrorBackoff: 5 * time.Millisecond,
		SendTimeout:  5 * time.Second,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.StopAll(ctx)
	})

	return &harness{store: svc, device: dev, runner: r, sender: *sender}
}

func (h *harness) addInventory(t *testing.T, recipients ...string) {
	t.Helper()
	for _, rcpt := range recipients {
		if _, err := h.store.AddInventory(context.Background(), rcpt, "hello"); err != nil {
			t.Fatalf("AddInventory failed: %v", err)
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func (h *harness) unsent(t *testing.T) int {
	t.Helper()
	n, err := h.store.CountUnsent(context.Background())
	if err != nil {
		t.Fatalf("CountUnsent failed: %v", err)
	}
	return n
}

func (h *harness) balance(t *testing.T) decimal.Decimal {
	t.Helper()
	a, err := h.store.GetAccount(context.Background(), h.sender.Mobile)
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	return a.Balance
}

func TestStop_LetsInFlightSendFinish(t *testing.T) {
	dev := &fakeDevice{gate: make(chan struct{}), started: make(chan struct{}, 1)}
	h := newHarness(t, dev)
	h.addInventory(t, "9876500001", "9876500002", "9876500003")

	if err := h.runner.Start(context.Background(), 0); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	select {
	case <-dev.started:
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for first send")
	}

	h.runner.Stop(0)
	dev.gate <- struct{}{}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.runner.Wait(ctx, 0); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	if calls := dev.calls(); len(calls) != 1 {
		t.Fatalf("Expected 1 send after stop, got %d", len(calls))
	}
	if got := h.unsent(t); got != 2 {
		t.Errorf("Expected 2 unsent records, got %d", got)
	}
	if got := h.balance(t); !got.Equal(decimal.RequireFromString("0.20")) {
		t.Errorf("Expected in-flight send to be settled to 0.20, got %s", got)
	}
	st, _ := h.runner.Status(0)
	if st.State != Idle {
		t.Errorf("Expected Idle after stop, got %s", st.State)
	}
	if st.SentCount != 1 {
		t.Errorf("Expected sent count 1, got %d", st.SentCount)
	}
}

func TestStart_IsIdempotent(t *testing.T) {
	dev := &fakeDevice{}
	h := newHarness(t, dev)
	h.addInventory(t, "9876500001", "9876500002", "9876500003", "9876500004")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := h.runner.Start(context.Background(), 0); err != nil {
				t.Errorf("Start failed: %v", err)
			}
		}()
	}
	wg.Wait()

	waitFor(t, "inventory drained", func() bool { return h.unsent(t) == 0 })

	if got := dev.maxFlight.Load(); got != 1 {
		t.Errorf("Expected at most 1 concurrent send on one slot, got %d", got)
	}
	if calls := dev.calls(); len(calls) != 4 {
		t.Errorf("Expected 4 sends, got %d", len(calls))
	}
	if got := h.runner.SessionSentCount(); got != 4 {
		t.Errorf("Expected session count 4, got %d", got)
	}
}

func TestEmptyInventory_Waits(t *testing.T) {
	dev := &fakeDevice{}
	h := newHarness(t, dev)

	if err := h.runner.Start(context.Background(), 0); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, "waiting state", func() bool {
		st, _ := h.runner.Status(0)
		return st.State == Waiting
	})

	if calls := dev.calls(); len(calls) != 0 {
		t.Errorf("Expected no sends on empty inventory, got %d", len(calls))
	}
}

func TestTwoSlots_OneRecord(t *testing.T) {
	dev := &fakeDevice{}
	h := newHarness(t, dev)
	h.addInventory(t, "9876500001")

	for _, slot := range []int{0, 1} {
		if err := h.runner.Start(context.Background(), slot); err != nil {
			t.Fatalf("Start slot %d failed: %v", slot, err)
		}
	}
	waitFor(t, "record sent", func() bool { return h.unsent(t) == 0 })
	waitFor(t, "both slots waiting", func() bool {
		for _, st := range h.runner.Statuses() {
			if st.State != Waiting {
				return false
			}
		}
		return true
	})

	if calls := dev.calls(); len(calls) != 1 {
		t.Fatalf("Expected exactly 1 send across slots, got %d", len(calls))
	}
	if got := h.balance(t); !got.Equal(decimal.RequireFromString("0.20")) {
		t.Errorf("Expected balance 0.20, got %s", got)
	}
}

func TestStart_PermissionDenied(t *testing.T) {
	dev := &fakeDevice{deny: true}
	h := newHarness(t, dev)

	err := h.runner.Start(context.Background(), 0)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("Expected ErrPermissionDenied, got %v", err)
	}
	st, _ := h.runner.Status(0)
	if st.State.Active() {
		t.Errorf("Expected slot inactive, got %s", st.State)
	}
}

func TestStart_UnknownSlot(t *testing.T) {
	h := newHarness(t, &fakeDevice{})

	if err := h.runner.Start(context.Background(), 7); !errors.Is(err, ErrUnknownSlot) {
		t.Errorf("Expected ErrUnknownSlot, got %v", err)
	}
}

func TestFailure_ReleasesClaim(t *testing.T) {
	dev := &fakeDevice{failFirst: 1}
	h := newHarness(t, dev)
	h.addInventory(t, "9876500001")

	if err := h.runner.Start(context.Background(), 0); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, "record sent", func() bool { return h.unsent(t) == 0 })

	calls := dev.calls()
	if len(calls) != 2 {
		t.Fatalf("Expected failed send to be retried once, got %d sends", len(calls))
	}
	if got := h.balance(t); !got.Equal(decimal.RequireFromString("0.20")) {
		t.Errorf("Expected only the successful send rewarded, got %s", got)
	}
}

func TestRestart_ResetsSentCount(t *testing.T) {
	dev := &fakeDevice{}
	h := newHarness(t, dev)
	h.addInventory(t, "9876500001")

	ctx := context.Background()
	if err := h.runner.Start(ctx, 0); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, "first send", func() bool {
		st, _ := h.runner.Status(0)
		return st.SentCount == 1
	})
	h.runner.Stop(0)

	if err := h.runner.Start(ctx, 0); err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	st, _ := h.runner.Status(0)
	if st.SentCount != 0 {
		t.Errorf("Expected sent count reset to 0, got %d", st.SentCount)
	}
	if got := h.runner.SessionSentCount(); got != 1 {
		t.Errorf("Expected session count to survive restart, got %d", got)
	}
}

// statusLog records every status transition a runner reports.
type statusLog struct {
	mu      sync.Mutex
	entries []SlotStatus
}

func (l *statusLog) record(s SlotStatus) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, s)
}

func (l *statusLog) find(match func(SlotStatus) bool) (SlotStatus, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var first SlotStatus
	n := 0
	for _, s := range l.entries {
		if match(s) {
			if n == 0 {
				first = s
			}
			n++
		}
	}
	return first, n
}

// scriptedClaims fails the first errs calls, panics on the next one and then
// hands out claim (if any) once before reporting an empty queue.
type scriptedClaims struct {
	mu       sync.Mutex
	errs     int
	panics   int
	claim    *models.Claim
	calls    int
	released int
}

func (c *scriptedClaims) Next(context.Context, int) (*models.Claim, error) {
	c.mu.Lock()
	c.calls++
	if c.errs > 0 {
		c.errs--
		c.mu.Unlock()
		return nil, errors.New("database is locked")
	}
	if c.panics > 0 {
		c.panics--
		c.mu.Unlock()
		panic("corrupt row")
	}
	claim := c.claim
	c.claim = nil
	c.mu.Unlock()
	return claim, nil
}

func (c *scriptedClaims) Release(context.Context, *models.Claim) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.released++
	return nil
}

func (c *scriptedClaims) counts() (calls, released int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls, c.released
}

type countingSettler struct {
	settled atomic.Int32
}

func (s *countingSettler) Settle(_ context.Context, claim *models.Claim, _ models.Account) models.SettlementResult {
	s.settled.Add(1)
	return models.SettlementResult{RecordId: claim.RecordId}
}

// silentDevice grants permission but never reports a send outcome.
type silentDevice struct {
	sends atomic.Int32
}

func (d *silentDevice) SendSMS(string, string, int, func(string), func(string)) {
	d.sends.Add(1)
}

func (d *silentDevice) RequestSendPermission(context.Context) (bool, error) {
	return true, nil
}

func newScriptedRunner(t *testing.T, claims ClaimSource, settler Settler, dev device.Device, log *statusLog) *Runner {
	t.Helper()
	r := New(Config{
		Claims:       claims,
		Settler:      settler,
		Device:       dev,
		Permissions:  dev,
		Sender:       models.Account{Mobile: "9000000001"},
		Slots:        []models.SimSlot{{Id: 0, Name: "SIM 1 - Primary"}},
		SendInterval: time.Millisecond,
		IdleBackoff:  time.Millisecond,
		ErrorBackoff: time.Millisecond,
		SendTimeout:  10 * time.Millisecond,
		OnStatus:     log.record,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.StopAll(ctx)
	})
	return r
}

func TestClaimErrorsAndPanic_KeepCycling(t *testing.T) {
	claims := &scriptedClaims{errs: 3, panics: 1}
	settler := &countingSettler{}
	log := &statusLog{}
	r := newScriptedRunner(t, claims, settler, &fakeDevice{}, log)

	if err := r.Start(context.Background(), 0); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, "loop to reach an empty queue", func() bool {
		_, n := log.find(func(s SlotStatus) bool { return s.Status == "waiting for new inventory" })
		return n > 0
	})

	errStatus, n := log.find(func(s SlotStatus) bool { return s.Status == "error, retrying in 1ms" })
	if n != 4 {
		t.Errorf("Expected 4 error statuses (3 errors and 1 panic), got %d", n)
	}
	if errStatus.State != Waiting {
		t.Errorf("Expected Waiting while backing off, got %s", errStatus.State)
	}
	if errStatus.LastError != "database is locked" {
		t.Errorf("Expected store error in LastError, got %q", errStatus.LastError)
	}
	if _, n := log.find(func(s SlotStatus) bool { return s.LastError == "panic: corrupt row" }); n != 1 {
		t.Errorf("Expected the panic to be reported once, got %d", n)
	}

	st, _ := r.Status(0)
	if !st.State.Active() {
		t.Errorf("Expected slot to stay active after errors, got %s", st.State)
	}
	if calls, _ := claims.counts(); calls < 5 {
		t.Errorf("Expected loop to keep claiming after errors, got %d calls", calls)
	}
	if got := settler.settled.Load(); got != 0 {
		t.Errorf("Expected nothing settled, got %d", got)
	}
}

func TestNoSignal_KeepsLease(t *testing.T) {
	claims := &scriptedClaims{claim: &models.Claim{
		RecordId: "rec-1", ClaimId: "claim-1", RecipientNumber: "9876500001", MessageBody: "hello",
	}}
	settler := &countingSettler{}
	dev := &silentDevice{}
	log := &statusLog{}
	r := newScriptedRunner(t, claims, settler, dev, log)

	if err := r.Start(context.Background(), 0); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, "send to time out", func() bool {
		_, n := log.find(func(s SlotStatus) bool { return s.LastError == "device did not report an outcome" })
		return n > 0
	})
	waitFor(t, "loop to continue past the timeout", func() bool {
		_, n := log.find(func(s SlotStatus) bool { return s.Status == "waiting for new inventory" })
		return n > 0
	})

	if got := dev.sends.Load(); got != 1 {
		t.Errorf("Expected 1 send attempt, got %d", got)
	}
	if _, released := claims.counts(); released != 0 {
		t.Errorf("Expected claim to keep its lease, got %d releases", released)
	}
	if got := settler.settled.Load(); got != 0 {
		t.Errorf("Expected no settlement without an outcome, got %d", got)
	}
	timeout, _ := log.find(func(s SlotStatus) bool { return s.LastError == "device did not report an outcome" })
	if timeout.State != Waiting || timeout.Status != "error, retrying in 1ms" {
		t.Errorf("Expected Waiting with retry status, got %s %q", timeout.State, timeout.Status)
	}
}

func TestPacingDelay_IsWaiting(t *testing.T) {
	dev := &fakeDevice{failFirst: 1}
	h := newHarness(t, dev)
	h.addInventory(t, "9876500001")

	log := &statusLog{}
	cfg := h.runner.cfg
	cfg.OnStatus = log.record
	r := New(cfg)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.StopAll(ctx)
	})

	if err := r.Start(context.Background(), 0); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, "record sent", func() bool { return h.unsent(t) == 0 })
	waitFor(t, "sent status", func() bool {
		_, n := log.find(func(s SlotStatus) bool { return s.Status == "sent to 9876500001" })
		return n > 0
	})

	failed, n := log.find(func(s SlotStatus) bool { return s.Status == "FAIL: no service. Retrying next." })
	if n != 1 {
		t.Fatalf("Expected 1 failure status, got %d", n)
	}
	if failed.State != Waiting {
		t.Errorf("Expected Waiting after a failed send, got %s", failed.State)
	}
	sent, _ := log.find(func(s SlotStatus) bool { return s.Status == "sent to 9876500001" })
	if sent.State != Waiting {
		t.Errorf("Expected Waiting after a settled send, got %s", sent.State)
	}
	if sent.SentCount != 1 {
		t.Errorf("Expected sent count 1, got %d", sent.SentCount)
	}
}
