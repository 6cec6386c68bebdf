package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Routing keys
const (
	KeySmsSent             = "sms.sent"
	KeyRewardCredited      = "reward.credited"
	KeyWithdrawalRequested = "withdrawal.requested"
	KeyWithdrawalProcessed = "withdrawal.processed"
)

// SmsSentEvent is published after a confirmed send.
type SmsSentEvent struct {
	RecordId  string    `json:"record_id"`
	Sender    string    `json:"sender"`
	SimSlot   int       `json:"sim_slot"`
	ClosedOut bool      `json:"closed_out"`
	Timestamp time.Time `json:"timestamp"`
}

// RewardCreditedEvent is published for each credited ledger entry.
type RewardCreditedEvent struct {
	Mobile       string    `json:"mobile"`
	Kind         string    `json:"kind"`
	Amount       string    `json:"amount"`
	BalanceAfter string    `json:"balance_after"`
	Reference    string    `json:"reference"`
	Timestamp    time.Time `json:"timestamp"`
}

// WithdrawalEvent is published when a request is opened or processed.
type WithdrawalEvent struct {
	Id        string    `json:"id"`
	Mobile    string    `json:"mobile"`
	Amount    string    `json:"amount"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher is the interface implemented by types that can publish events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body any) error
	Close()
}

// Noop drops every event. Used when no broker is configured.
type Noop struct{}

func (Noop) Publish(_ context.Context, routingKey string, _ any) error {
	zap.L().Debug("Event publish skipped (no broker)", zap.String("routing_key", routingKey))
	return nil
}

func (Noop) Close() {}

// AMQPPublisher publishes JSON events to a durable topic exchange.
type AMQPPublisher struct {
	exchange string

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

func NewAMQPPublisher(amqpURL, exchange string) (*AMQPPublisher, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("unable to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("unable to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("unable to declare exchange %s: %w", exchange, err)
	}

	zap.L().Info("Connected to RabbitMQ", zap.String("exchange", exchange))
	return &AMQPPublisher{exchange: exchange, conn: conn, channel: ch}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, routingKey string, body any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("unable to encode event: %w", err)
	}
	msg := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		Body:         jsonBody,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
	if err == nil {
		return nil
	}

	// One retry on a fresh channel
	zap.L().Warn("Publish failed; reopening channel", zap.String("routing_key", routingKey), zap.Error(err))
	ch, chErr := p.conn.Channel()
	if chErr != nil {
		return fmt.Errorf("unable to reopen channel: %w", chErr)
	}
	p.channel = ch
	if err := p.channel.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("unable to declare exchange %s: %w", p.exchange, err)
	}
	return p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
}

func (p *AMQPPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// New returns an AMQP publisher when url is set, otherwise Noop.
func New(amqpURL, exchange string) (Publisher, error) {
	if amqpURL == "" {
		return Noop{}, nil
	}
	return NewAMQPPublisher(amqpURL, exchange)
}
