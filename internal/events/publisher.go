// Package events moves received uplink frames from the hot UDP path to
// the persistence worker through a Redis stream.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lktlns/lktlns/internal/metrics"
)

const (
	// StreamKey is the Redis stream for uplink frame events.
	StreamKey = "stream:uplink_frames"

	// DeadLetterStreamKey is the Redis stream for poison messages.
	DeadLetterStreamKey = "stream:uplink_frames:dlq"

	// MaxStreamLen is the approximate max length of the stream.
	MaxStreamLen = 100000

	// PublishTimeout is the max time to wait for Redis publish.
	PublishTimeout = 100 * time.Millisecond
)

// FrameEventPayload is the compressed frame format for the Redis stream.
type FrameEventPayload struct {
	GatewayEUI string  `json:"gw"`
	DevAddr    string  `json:"da"`
	DevEUI     string  `json:"de,omitempty"`
	AppEUI     string  `json:"ae,omitempty"`
	FCnt       uint32  `json:"fc"`
	FPort      int     `json:"fp"`
	Payload    []byte  `json:"p,omitempty"` // decrypted application payload
	Freq       float64 `json:"f"`
	DataRate   string  `json:"dr"`
	RSSI       float64 `json:"rssi"`
	SNR        float64 `json:"snr"`
	RawFrame   []byte  `json:"raw,omitempty"`
	ReceivedAt int64   `json:"t"` // Unix milliseconds
}

// Publisher enqueues frame events to the Redis stream.
type Publisher struct {
	redis   *redis.Client
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewPublisher creates a new frame event publisher.
func NewPublisher(client *redis.Client, logger *slog.Logger, recorder metrics.Recorder) *Publisher {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Publisher{
		redis:   client,
		logger:  logger.With("component", "events.publisher"),
		metrics: recorder,
	}
}

// Publish adds a frame event to the stream synchronously.
func (p *Publisher) Publish(ctx context.Context, event FrameEventPayload) (string, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	result, err := p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: MaxStreamLen,
		Approx: true, // ~MAXLEN for performance
		ID:     "*",  // Auto-generate ID
		Values: map[string]interface{}{
			"payload": string(data),
		},
	}).Result()

	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}

	return result, nil
}

// PublishAsync publishes without blocking the caller.
// Errors are logged but not returned (fire-and-forget).
func (p *Publisher) PublishAsync(event FrameEventPayload) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), PublishTimeout)
		defer cancel()

		streamID, err := p.Publish(ctx, event)
		if err != nil {
			p.logger.Warn("failed to publish frame event",
				"dev_addr", event.DevAddr,
				"f_cnt", event.FCnt,
				"error", err,
			)
			p.metrics.IncFrameEventPublished("dropped")
			return
		}

		p.logger.Debug("frame event published",
			"dev_addr", event.DevAddr,
			"stream_id", streamID,
		)
		p.metrics.IncFrameEventPublished("success")
	}()
}
