package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sms-rupee-go/internal/device"
	"sms-rupee-go/internal/models"

	"go.uber.org/zap"
)

// ANSI color helpers for console output.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

func (r *Runner) printf(color, format string, args ...any) {
	if r.cfg.Console == nil {
		return
	}
	fmt.Fprintf(r.cfg.Console, "%s[%s] %s%s\n",
		color, time.Now().Format("15:04:05"), fmt.Sprintf(format, args...), colorReset)
}

func (r *Runner) run(ctx context.Context, l *slotLoop) {
	defer r.finish(l)

	r.printf(colorCyan, "SIM %d starting auto-send as %s", l.slot+1, r.cfg.Sender.Mobile)

	for {
		select {
		case <-l.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		pause := r.safeCycle(ctx, l)
		if !r.sleep(ctx, l, pause) {
			return
		}
	}
}

// safeCycle runs one cycle and converts a panic into an error backoff so one
// bad record cannot kill the slot.
func (r *Runner) safeCycle(ctx context.Context, l *slotLoop) (pause time.Duration) {
	defer func() {
		if rec := recover(); rec != nil {
			zap.L().Error("Send cycle panicked", zap.Int("slot", l.slot), zap.Any("panic", rec))
			r.majorError(l.slot, fmt.Errorf("panic: %v", rec))
			pause = r.cfg.ErrorBackoff
		}
	}()
	return r.cycle(ctx, l)
}

// cycle claims one record, sends it and settles it. It returns how long to
// wait before the next cycle; the slot is Waiting for that pause.
func (r *Runner) cycle(ctx context.Context, l *slotLoop) time.Duration {
	claim, err := r.cfg.Claims.Next(ctx, l.slot)
	if err != nil {
		if ctx.Err() != nil {
			return 0
		}
		r.majorError(l.slot, err)
		return r.cfg.ErrorBackoff
	}
	if claim == nil {
		r.update(l.slot, func(s *SlotStatus) {
			s.State = Waiting
			s.Recipient = ""
			s.Status = "waiting for new inventory"
		})
		return r.cfg.IdleBackoff
	}

	r.update(l.slot, func(s *SlotStatus) {
		s.State = Sending
		s.Recipient = claim.RecipientNumber
		s.Status = fmt.Sprintf("sending to %s", claim.RecipientNumber)
	})
	r.printf(colorCyan, "SIM %d sending to %s", l.slot+1, claim.RecipientNumber)

	// The send and its settlement finish even if Stop or shutdown arrives meanwhile.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.SendTimeout)
	defer cancel()

	outcome, err := device.Await(sendCtx, r.cfg.Device, claim.RecipientNumber, claim.MessageBody, l.slot)
	if err != nil {
		// No definitive outcome: keep the lease so the record is not resent
		// until it expires and the reaper returns it to the pool.
		zap.L().Warn("Device gave no outcome",
			zap.Int("slot", l.slot),
			zap.String("recordId", claim.RecordId),
			zap.Time("leaseExpiresAt", claim.LeaseExpiresAt),
			zap.Error(err))
		r.majorError(l.slot, err)
		return r.cfg.ErrorBackoff
	}

	if !outcome.Success {
		r.failed(sendCtx, l.slot, claim, outcome.Message)
		return r.cfg.SendInterval
	}

	result := r.cfg.Settler.Settle(sendCtx, claim, r.cfg.Sender)
	r.sessionSent.Add(1)
	r.update(l.slot, func(s *SlotStatus) {
		s.State = Waiting
		s.SentCount++
		s.Recipient = ""
		s.LastError = ""
		s.Status = fmt.Sprintf("sent to %s", claim.RecipientNumber)
		if len(result.Errors) > 0 {
			s.LastError = result.Errors[0]
		}
	})

	color := colorGreen
	if len(result.Errors) > 0 {
		color = colorYellow
	}
	r.printf(color, "SIM %d ✓ %s | +%s | balance %s",
		l.slot+1, claim.RecipientNumber, result.Reward.StringFixed(2), result.SenderBalance.StringFixed(2))
	return r.cfg.SendInterval
}

func (r *Runner) failed(ctx context.Context, slot int, claim *models.Claim, reason string) {
	if err := r.cfg.Claims.Release(ctx, claim); err != nil {
		zap.L().Warn("Could not release failed claim",
			zap.String("recordId", claim.RecordId),
			zap.Error(err))
	}
	zap.L().Info("SMS send failed",
		zap.Int("slot", slot),
		zap.String("recordId", claim.RecordId),
		zap.String("reason", reason))

	r.update(slot, func(s *SlotStatus) {
		s.State = Waiting
		s.Recipient = ""
		s.LastError = reason
		s.Status = fmt.Sprintf("FAIL: %s. Retrying next.", reason)
	})
	r.printf(colorRed, "SIM %d ✗ %s: %s", slot+1, claim.RecipientNumber, reason)
}

func (r *Runner) majorError(slot int, err error) {
	msg := err.Error()
	if errors.Is(err, device.ErrNoSignal) {
		msg = "device did not report an outcome"
	}
	zap.L().Error("Send cycle error", zap.Int("slot", slot), zap.Error(err))
	r.update(slot, func(s *SlotStatus) {
		s.State = Waiting
		s.Recipient = ""
		s.LastError = msg
		s.Status = fmt.Sprintf("error, retrying in %s", r.cfg.ErrorBackoff.Round(time.Millisecond))
	})
	r.printf(colorRed, "SIM %d error: %s", slot+1, msg)
}

// sleep waits d, returning false if the loop should exit instead.
func (r *Runner) sleep(ctx context.Context, l *slotLoop, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-l.stopCh:
			return false
		case <-ctx.Done():
			return false
		default:
			return true
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-l.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}
