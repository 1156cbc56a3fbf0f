package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lktlns/lktlns/internal/model"
)

// Publisher creates delivery records when device events occur.
type Publisher struct {
	repo   *Repository
	logger *slog.Logger
}

// NewPublisher creates a new integration publisher.
func NewPublisher(repo *Repository, logger *slog.Logger) *Publisher {
	return &Publisher{
		repo:   repo,
		logger: logger.With("component", "integration.publisher"),
	}
}

// PublishUplinkEvent fans an uplink frame out to all active endpoints
// of the device's application.
func (p *Publisher) PublishUplinkEvent(ctx context.Context, appEUI string, frame *model.UplinkFrame) error {
	endpoints, err := p.repo.ListActiveEndpointsByAppAndEvent(ctx, appEUI, model.EventTypeUplink)
	if err != nil {
		return fmt.Errorf("list active endpoints: %w", err)
	}
	if len(endpoints) == 0 {
		return nil
	}

	payload := model.IntegrationPayload{
		EventType: string(model.EventTypeUplink),
		EventID:   frame.ID,
		Timestamp: frame.ReceivedAt,
		Data: map[string]any{
			"dev_addr":    frame.DevAddr,
			"dev_eui":     frame.DevEUI,
			"gateway_eui": frame.GatewayEUI,
			"f_cnt":       frame.FCnt,
			"f_port":      frame.FPort,
			"payload":     frame.Payload,
			"freq":        frame.Freq,
			"datarate":    frame.DataRate,
			"rssi":        frame.RSSI,
			"snr":         frame.SNR,
		},
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	now := time.Now()
	for _, endpoint := range endpoints {
		delivery := &model.IntegrationDelivery{
			ID:           uuid.NewString(),
			EndpointID:   endpoint.ID,
			EventID:      frame.ID,
			EventType:    model.EventTypeUplink,
			PayloadJSON:  string(payloadJSON),
			Status:       model.DeliveryStatusPending,
			AttemptCount: 0,
			MaxAttempts:  DefaultMaxAttempts,
			NextRetryAt:  now, // immediate delivery
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		if err := p.repo.CreateDelivery(ctx, delivery); err != nil {
			p.logger.Warn("failed to create delivery",
				"endpoint_id", endpoint.ID,
				"event_id", frame.ID,
				"error", err,
			)
			continue
		}

		p.logger.Debug("delivery created",
			"delivery_id", delivery.ID,
			"endpoint_id", endpoint.ID,
			"event_id", frame.ID,
		)
	}

	return nil
}
