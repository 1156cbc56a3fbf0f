package integration

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/lktlns/lktlns/internal/metrics"
	"github.com/lktlns/lktlns/internal/model"
)

const (
	// DefaultBatchSize is the number of deliveries to process per poll.
	DefaultBatchSize = 50
	// DefaultPollInterval is the time between polls for pending deliveries.
	DefaultPollInterval = 5 * time.Second
)

// Worker processes integration deliveries.
type Worker struct {
	repo         *Repository
	client       *http.Client
	logger       *slog.Logger
	metrics      metrics.Recorder
	batchSize    int
	pollInterval time.Duration
	started      bool
}

// NewWorker creates a new delivery worker.
func NewWorker(repo *Repository, logger *slog.Logger, recorder metrics.Recorder) *Worker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Worker{
		repo:         repo,
		client:       NewHTTPClient(),
		logger:       logger.With("component", "integration.worker"),
		metrics:      recorder,
		batchSize:    DefaultBatchSize,
		pollInterval: DefaultPollInterval,
	}
}

// Run starts the worker loop. Blocks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if w.started {
		return errors.New("worker already started")
	}
	w.started = true

	w.logger.Info("integration worker started")

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("integration worker stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := w.processOnce(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				w.logger.Error("process error", "error", err)
			}
		}
	}
}

// processOnce fetches and processes a batch of pending deliveries.
func (w *Worker) processOnce(ctx context.Context) error {
	deliveries, err := w.repo.GetPendingDeliveries(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("get pending deliveries: %w", err)
	}

	for _, delivery := range deliveries {
		if err := w.deliver(ctx, delivery); err != nil {
			w.logger.Warn("delivery failed",
				"delivery_id", delivery.ID,
				"error", err,
			)
		}
	}

	return nil
}

// deliver attempts to send a single event.
func (w *Worker) deliver(ctx context.Context, delivery *model.IntegrationDelivery) error {
	endpoint, err := w.repo.GetEndpoint(ctx, delivery.EndpointID)
	if err != nil {
		if errors.Is(err, ErrEndpointNotFound) {
			return w.repo.UpdateDeliveryFailure(ctx, delivery.ID, nil, "endpoint deleted", time.Now(), true)
		}
		return err
	}

	if !endpoint.IsActive() {
		return w.repo.UpdateDeliveryFailure(ctx, delivery.ID, nil, "endpoint disabled", time.Now(), true)
	}

	timestamp := time.Now().Unix()
	signature := GenerateSignature(endpoint.SecretHash, timestamp, []byte(delivery.PayloadJSON))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.TargetURL, bytes.NewReader([]byte(delivery.PayloadJSON)))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	SetDeliveryHeaders(req, HTTPHeaders{
		Signature:  signature,
		Timestamp:  strconv.FormatInt(timestamp, 10),
		DeliveryID: delivery.ID,
	})

	start := time.Now()
	resp, err := w.client.Do(req)
	duration := time.Since(start)

	if err != nil {
		return w.handleDeliveryError(ctx, delivery, nil, err.Error())
	}
	defer resp.Body.Close()

	// Drain body to allow connection reuse.
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		w.logger.Info("event delivered",
			"delivery_id", delivery.ID,
			"target_host", ExtractHost(endpoint.TargetURL),
			"http_status", resp.StatusCode,
			"duration_ms", duration.Milliseconds(),
		)
		w.metrics.IncIntegrationDelivery("delivered")
		return w.repo.UpdateDeliverySuccess(ctx, delivery.ID, resp.StatusCode)
	}

	return w.handleDeliveryError(ctx, delivery, &resp.StatusCode, fmt.Sprintf("HTTP %d", resp.StatusCode))
}

// handleDeliveryError updates delivery status after a failed attempt.
func (w *Worker) handleDeliveryError(ctx context.Context, delivery *model.IntegrationDelivery, httpStatus *int, errMsg string) error {
	nextAttempt := delivery.AttemptCount + 1
	exhausted := IsExhausted(nextAttempt, delivery.MaxAttempts)

	status := "failed"
	if exhausted {
		status = "dead"
	}

	w.logger.Warn("event delivery failed",
		"delivery_id", delivery.ID,
		"attempt", nextAttempt,
		"exhausted", exhausted,
		"error", errMsg,
	)

	w.metrics.IncIntegrationDelivery(status)

	nextRetryAt := NextRetryAt(nextAttempt)
	return w.repo.UpdateDeliveryFailure(ctx, delivery.ID, httpStatus, errMsg, nextRetryAt, exhausted)
}

// SetBatchSize overrides the default batch size.
func (w *Worker) SetBatchSize(size int) {
	if size > 0 {
		w.batchSize = size
	}
}

// SetPollInterval overrides the default poll interval.
func (w *Worker) SetPollInterval(interval time.Duration) {
	if interval > 0 {
		w.pollInterval = interval
	}
}
