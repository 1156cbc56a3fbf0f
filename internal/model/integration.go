package model

import (
	"slices"
	"time"
)

// EventType represents integration event types.
type EventType string

const (
	// EventTypeUplink fires for every bridged uplink frame.
	EventTypeUplink EventType = "uplink"
	// EventTypeDownlink fires when a downlink is handed to a gateway.
	EventTypeDownlink EventType = "downlink"
)

// ValidEventTypes contains all valid event types.
var ValidEventTypes = []EventType{EventTypeUplink, EventTypeDownlink}

// IsValidEventType checks if an event type is valid.
func IsValidEventType(et EventType) bool {
	return slices.Contains(ValidEventTypes, et)
}

// DeliveryStatus represents integration delivery state.
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusSuccess   DeliveryStatus = "success"
	DeliveryStatusFailed    DeliveryStatus = "failed"
	DeliveryStatusExhausted DeliveryStatus = "exhausted"
)

// IntegrationEndpoint is an HTTP endpoint that receives device events
// for one application (AppEUI).
type IntegrationEndpoint struct {
	ID         string      `json:"id"`
	AppEUI     string      `json:"app_eui"`
	TargetURL  string      `json:"target_url"`
	SecretHash string      `json:"-"` // never expose
	Enabled    bool        `json:"enabled"`
	EventTypes []EventType `json:"event_types"`
	Name       string      `json:"name,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
	DeletedAt  *time.Time  `json:"-"`
}

// IsActive returns true if the endpoint can receive events.
func (e *IntegrationEndpoint) IsActive() bool {
	return e.Enabled && e.DeletedAt == nil
}

// SubscribesToEvent checks if the endpoint subscribes to an event type.
func (e *IntegrationEndpoint) SubscribesToEvent(et EventType) bool {
	return slices.Contains(e.EventTypes, et)
}

// IntegrationDelivery is a delivery attempt record.
type IntegrationDelivery struct {
	ID             string         `json:"id"`
	EndpointID     string         `json:"endpoint_id"`
	EventID        string         `json:"event_id"`
	EventType      EventType      `json:"event_type"`
	PayloadJSON    string         `json:"-"`
	Status         DeliveryStatus `json:"status"`
	AttemptCount   int            `json:"attempt_count"`
	MaxAttempts    int            `json:"max_attempts"`
	NextRetryAt    time.Time      `json:"next_retry_at,omitempty"`
	LastAttemptAt  *time.Time     `json:"last_attempt_at,omitempty"`
	LastHTTPStatus *int           `json:"last_http_status,omitempty"`
	LastError      string         `json:"last_error,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// CanRetry returns true if delivery can be retried.
func (d *IntegrationDelivery) CanRetry() bool {
	return d.Status == DeliveryStatusFailed && d.AttemptCount < d.MaxAttempts
}

// IsTerminal returns true if delivery is in a terminal state.
func (d *IntegrationDelivery) IsTerminal() bool {
	return d.Status == DeliveryStatusSuccess || d.Status == DeliveryStatusExhausted
}

// IntegrationPayload is the JSON body posted to endpoints.
type IntegrationPayload struct {
	EventType string         `json:"event_type"`
	EventID   string         `json:"event_id"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}
