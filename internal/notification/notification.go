package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// KindTransferReceived tells an owner that money arrived from another account.
	KindTransferReceived = "transfer_received"

	// DefaultChannel is the Redis channel RedisNotifier publishes to.
	DefaultChannel = "ledger:notifications"
)

// Message describes a notification payload.
type Message struct {
	Kind          string    `json:"kind"`
	Destination   string    `json:"destination"`
	TransactionID int64     `json:"transaction_id"`
	Body          string    `json:"body"`
	SentAt        time.Time `json:"sent_at"`
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification",
		slog.String("kind", message.Kind),
		slog.String("destination", message.Destination),
		slog.Int64("transaction_id", message.TransactionID),
		slog.String("body", message.Body),
	)
	return nil
}

// RedisNotifier publishes JSON-encoded messages on a Redis channel.
type RedisNotifier struct {
	cache   *redis.Client
	channel string
}

// NewRedisNotifier constructs a publisher; an empty channel uses DefaultChannel.
func NewRedisNotifier(cache *redis.Client, channel string) *RedisNotifier {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisNotifier{cache: cache, channel: channel}
}

// Send publishes the message.
func (n *RedisNotifier) Send(ctx context.Context, message Message) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := n.cache.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Fanout sends every message to each notifier and joins their errors.
type Fanout []Notifier

// Send delivers to all notifiers even when one fails.
func (f Fanout) Send(ctx context.Context, message Message) error {
	var errs []error
	for _, n := range f {
		if n == nil {
			continue
		}
		if err := n.Send(ctx, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps sent messages in memory.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

// Send records the message.
func (r *Recorder) Send(_ context.Context, message Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
	return nil
}

// Messages returns a copy of everything recorded so far.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}
