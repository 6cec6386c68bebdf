package device

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"sms-rupee-go/internal/models"

	"go.uber.org/zap"
)

// ErrNoSignal is returned by Await when the capability neither succeeded nor
// failed before the context ended.
var ErrNoSignal = errors.New("no outcome from device before deadline")

// Capability sends one SMS from a SIM slot. Exactly one of onFailure or
// onSuccess fires per call, possibly on another goroutine.
type Capability interface {
	SendSMS(recipient, message string, slot int, onFailure func(reason string), onSuccess func(confirmation string))
}

// PermissionGate asks the host for permission to send text messages.
type PermissionGate interface {
	RequestSendPermission(ctx context.Context) (bool, error)
}

// Device is a send capability with its permission gate.
type Device interface {
	Capability
	PermissionGate
}

// Outcome is the definitive result of one send.
type Outcome struct {
	Success bool
	Message string
}

// Await invokes the capability and blocks for its single outcome. Signals after
// the first are dropped.
func Await(ctx context.Context, c Capability, recipient, message string, slot int) (Outcome, error) {
	result := make(chan Outcome, 1)
	var once sync.Once
	deliver := func(o Outcome) {
		delivered := false
		once.Do(func() {
			result <- o
			delivered = true
		})
		if !delivered {
			zap.L().Warn("Ignoring extra device signal",
				zap.Int("slot", slot),
				zap.Bool("success", o.Success),
				zap.String("message", o.Message))
		}
	}

	c.SendSMS(recipient, message, slot,
		func(reason string) { deliver(Outcome{Success: false, Message: reason}) },
		func(confirmation string) { deliver(Outcome{Success: true, Message: confirmation}) })

	select {
	case o := <-result:
		return o, nil
	case <-ctx.Done():
		return Outcome{}, fmt.Errorf("%w: %v", ErrNoSignal, ctx.Err())
	}
}

// New builds the configured device backend.
func New(cfg models.DeviceConfig) (Device, error) {
	switch cfg.Mode {
	case "", "simulator":
		return NewSimulator(cfg), nil
	case "gateway":
		return NewHTTPGateway(cfg)
	default:
		return nil, fmt.Errorf("unknown device mode %q", cfg.Mode)
	}
}

// ResolveDeviceId returns the configured device id, falling back to the hostname.
func ResolveDeviceId(cfg models.DeviceConfig) string {
	if cfg.DeviceId != "" {
		return cfg.DeviceId
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "unknown-device"
}
