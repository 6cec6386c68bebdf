/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"sms-rupee-go/internal/device"
	"sms-rupee-go/internal/models"

	"go.uber.org/zap"
)

var (
	ErrPermissionDenied = errors.New("SMS permission denied")
	ErrUnknownSlot      = errors.New("unknown SIM slot")
)

// State is the lifecycle of one slot's send loop.
type State int

const (
	Idle State = iota
	Running
	Sending
	Waiting
	Paused
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Sending:
		return "sending"
	case Waiting:
		return "waiting"
	case Paused:
		return "paused"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Active reports whether a loop is scheduled in this state.
func (s State) Active() bool {
	return s == Running || s == Sending || s == Waiting
}

// ClaimSource hands out exclusive inventory records.
type ClaimSource interface {
	Next(ctx context.Context, slot int) (*models.Claim, error)
	Release(ctx context.Context, claim *models.Claim) error
}

// Settler applies the ledger writes for a confirmed send.
type Settler interface {
	Settle(ctx context.Context, claim *models.Claim, sender models.Account) models.SettlementResult
}

// SlotStatus is a snapshot of one slot.
type SlotStatus struct {
	Slot      int    `json:"slot"`
	Name      string `json:"name"`
	State     State  `json:"-"`
	StateName string `json:"state"`
	SentCount int    `json:"sentCount"`
	Recipient string `json:"recipient,omitempty"`
	Status    string `json:"status"`
	LastError string `json:"lastError,omitempty"`
}

// Config contains configuration for Runner
type Config struct {
	Claims      ClaimSource
	Settler     Settler
	Device      device.Capability
	Permissions device.PermissionGate
	Sender      models.Account
	Slots       []models.SimSlot

	SendInterval time.Duration
	IdleBackoff  time.Duration
	ErrorBackoff time.Duration
	SendTimeout  time.Duration

	OnStatus func(SlotStatus) // optional, called on every transition
	Console  io.Writer        // optional colored progress lines
}

// Runner drives one independent claim, send, settle loop per SIM slot.
type Runner struct {
	cfg Config

	mu       sync.Mutex
	loops    map[int]*slotLoop
	statuses map[int]*SlotStatus

	sessionSent atomic.Int64
}

type slotLoop struct {
	slot     int
	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	stopping atomic.Bool
}

func (l *slotLoop) requestStop() {
	l.stopOnce.Do(func() {
		l.stopping.Store(true)
		close(l.stopCh)
	})
}

// New creates a Runner with every configured slot Idle.
func New(cfg Config) *Runner {
	if cfg.SendInterval <= 0 {
		cfg.SendInterval = time.Second
	}
	if cfg.IdleBackoff <= 0 {
		cfg.IdleBackoff = 5 * time.Second
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = 5 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 2 * time.Minute
	}

	r := &Runner{
		cfg:      cfg,
		loops:    make(map[int]*slotLoop),
		statuses: make(map[int]*SlotStatus),
	}
	for _, s := range cfg.Slots {
		r.statuses[s.Id] = &SlotStatus{Slot: s.Id, Name: s.Name, State: Idle, StateName: Idle.String(), Status: "idle"}
	}
	return r
}

// Start launches the slot's loop. It is a no-op while the slot is active. If a
// stop is still pending, Start waits for that instance to halt and then starts
// a fresh one. The loop runs until Stop or until ctx is cancelled.
func (r *Runner) Start(ctx context.Context, slot int) error {
	for {
		r.mu.Lock()
		if _, ok := r.statuses[slot]; !ok {
			r.mu.Unlock()
			return fmt.Errorf("%w: %d", ErrUnknownSlot, slot)
		}
		l := r.loops[slot]
		if l == nil {
			r.mu.Unlock()
			break
		}
		if !l.stopping.Load() {
			r.mu.Unlock()
			return nil
		}
		done := l.done
		r.mu.Unlock()

		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if r.cfg.Permissions != nil {
		granted, err := r.cfg.Permissions.RequestSendPermission(ctx)
		if err != nil || !granted {
			r.update(slot, func(s *SlotStatus) {
				s.State = Idle
				s.Status = "permission denied"
				if err != nil {
					s.LastError = err.Error()
				}
			})
			if err != nil {
				return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
			}
			return ErrPermissionDenied
		}
	}

	r.mu.Lock()
	if r.loops[slot] != nil {
		// Another Start won the race while permission was requested.
		r.mu.Unlock()
		return nil
	}
	l := &slotLoop{slot: slot, stopCh: make(chan struct{}), done: make(chan struct{})}
	r.loops[slot] = l
	r.mu.Unlock()

	r.update(slot, func(s *SlotStatus) {
		s.State = Running
		s.SentCount = 0
		s.Recipient = ""
		s.LastError = ""
		s.Status = "starting auto-send"
	})
	zap.L().Info("Send loop started", zap.Int("slot", slot), zap.String("sender", r.cfg.Sender.Mobile))

	go r.run(ctx, l)
	return nil
}

// Stop asks the slot's loop to halt at its next cycle boundary. A send in
// flight completes and is settled. Stop is idempotent.
func (r *Runner) Stop(slot int) {
	r.mu.Lock()
	l := r.loops[slot]
	r.mu.Unlock()
	if l == nil {
		return
	}

	l.requestStop()
	r.update(slot, func(s *SlotStatus) {
		if s.State.Active() {
			s.Status = "stopping after current cycle"
		}
	})
}

// StopAll stops every slot and waits for the loops to halt or ctx to end.
func (r *Runner) StopAll(ctx context.Context) error {
	r.mu.Lock()
	loops := make([]*slotLoop, 0, len(r.loops))
	for _, l := range r.loops {
		loops = append(loops, l)
	}
	r.mu.Unlock()

	for _, l := range loops {
		l.requestStop()
	}
	for _, l := range loops {
		select {
		case <-l.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Wait blocks until the slot is idle or ctx ends.
func (r *Runner) Wait(ctx context.Context, slot int) error {
	r.mu.Lock()
	l := r.loops[slot]
	r.mu.Unlock()
	if l == nil {
		return nil
	}
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns a snapshot of one slot.
func (r *Runner) Status(slot int) (SlotStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.statuses[slot]
	if !ok {
		return SlotStatus{}, false
	}
	return *s, true
}

// Statuses returns a snapshot of every slot ordered by slot id.
func (r *Runner) Statuses() []SlotStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SlotStatus, 0, len(r.statuses))
	for _, s := range r.statuses {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out
}

// SessionSentCount is the number of confirmed sends across all slots since the runner was created.
func (r *Runner) SessionSentCount() int64 {
	return r.sessionSent.Load()
}

func (r *Runner) update(slot int, mutate func(*SlotStatus)) {
	r.mu.Lock()
	s, ok := r.statuses[slot]
	if !ok {
		r.mu.Unlock()
		return
	}
	mutate(s)
	s.StateName = s.State.String()
	snapshot := *s
	r.mu.Unlock()

	if r.cfg.OnStatus != nil {
		r.cfg.OnStatus(snapshot)
	}
}

func (r *Runner) finish(l *slotLoop) {
	r.mu.Lock()
	if r.loops[l.slot] == l {
		delete(r.loops, l.slot)
	}
	r.mu.Unlock()

	r.update(l.slot, func(s *SlotStatus) {
		s.State = Idle
		s.Recipient = ""
		s.Status = "paused"
	})
	r.printf(colorGray, "SIM %d paused", l.slot+1)
	zap.L().Info("Send loop stopped", zap.Int("slot", l.slot))
	close(l.done)
}
