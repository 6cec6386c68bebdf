package device

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"sms-rupee-go/internal/models"

	"go.uber.org/zap"
)

// Simulator stands in for the phone's SMS radio. It always grants permission.
type Simulator struct {
	latency     time.Duration
	failureRate float64

	mu   sync.Mutex
	rand *rand.Rand
}

func NewSimulator(cfg models.DeviceConfig) *Simulator {
	return &Simulator{
		latency:     cfg.SendLatency,
		failureRate: cfg.FailureRate,
		rand:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *Simulator) SendSMS(recipient, message string, slot int, onFailure func(string), onSuccess func(string)) {
	s.mu.Lock()
	fail := s.rand.Float64() < s.failureRate
	s.mu.Unlock()

	go func() {
		time.Sleep(s.latency)
		if fail {
			onFailure("simulated radio failure")
			return
		}
		zap.L().Debug("Simulated SMS sent",
			zap.String("recipient", recipient),
			zap.Int("slot", slot),
			zap.Int("length", len(message)))
		onSuccess("SMS sent")
	}()
}

func (s *Simulator) RequestSendPermission(context.Context) (bool, error) {
	return true, nil
}
