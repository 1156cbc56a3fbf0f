package integration

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/lktlns/lktlns/internal/model"
)

// Repository handles integration database operations.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new integration repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateEndpoint creates a new integration endpoint.
func (r *Repository) CreateEndpoint(ctx context.Context, endpoint *model.IntegrationEndpoint) error {
	query := `
		INSERT INTO integration_endpoints (
			id, app_eui, target_url, secret_hash, enabled,
			event_types, name, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		endpoint.ID,
		endpoint.AppEUI,
		endpoint.TargetURL,
		endpoint.SecretHash,
		endpoint.Enabled,
		pq.Array(eventTypeStrings(endpoint.EventTypes)),
		endpoint.Name,
		endpoint.CreatedAt,
		endpoint.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert integration endpoint: %w", err)
	}
	return nil
}

// GetEndpoint retrieves an integration endpoint by ID.
func (r *Repository) GetEndpoint(ctx context.Context, id string) (*model.IntegrationEndpoint, error) {
	query := `
		SELECT id, app_eui, target_url, secret_hash, enabled, event_types,
		       name, created_at, updated_at, deleted_at
		FROM integration_endpoints
		WHERE id = $1 AND deleted_at IS NULL
	`

	var endpoint model.IntegrationEndpoint
	var eventTypes []string

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&endpoint.ID,
		&endpoint.AppEUI,
		&endpoint.TargetURL,
		&endpoint.SecretHash,
		&endpoint.Enabled,
		pq.Array(&eventTypes),
		&endpoint.Name,
		&endpoint.CreatedAt,
		&endpoint.UpdatedAt,
		&endpoint.DeletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrEndpointNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query integration endpoint: %w", err)
	}

	endpoint.EventTypes = toEventTypes(eventTypes)
	return &endpoint, nil
}

// ListEndpoints retrieves all integration endpoints, newest first.
func (r *Repository) ListEndpoints(ctx context.Context) ([]*model.IntegrationEndpoint, error) {
	query := `
		SELECT id, app_eui, target_url, secret_hash, enabled, event_types,
		       name, created_at, updated_at
		FROM integration_endpoints
		WHERE deleted_at IS NULL
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query integration endpoints: %w", err)
	}
	defer rows.Close()

	return scanEndpoints(rows)
}

// ListActiveEndpointsByAppAndEvent retrieves enabled endpoints for an
// application and event type.
func (r *Repository) ListActiveEndpointsByAppAndEvent(ctx context.Context, appEUI string, eventType model.EventType) ([]*model.IntegrationEndpoint, error) {
	query := `
		SELECT id, app_eui, target_url, secret_hash, enabled, event_types,
		       name, created_at, updated_at
		FROM integration_endpoints
		WHERE app_eui = $1
		  AND deleted_at IS NULL
		  AND enabled = true
		  AND $2 = ANY(event_types)
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, appEUI, string(eventType))
	if err != nil {
		return nil, fmt.Errorf("query active integration endpoints: %w", err)
	}
	defer rows.Close()

	return scanEndpoints(rows)
}

// UpdateEndpoint updates a mutable subset of an endpoint.
func (r *Repository) UpdateEndpoint(ctx context.Context, endpoint *model.IntegrationEndpoint) error {
	query := `
		UPDATE integration_endpoints
		SET target_url = $2, enabled = $3, event_types = $4,
		    name = $5, updated_at = $6
		WHERE id = $1 AND deleted_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query,
		endpoint.ID,
		endpoint.TargetURL,
		endpoint.Enabled,
		pq.Array(eventTypeStrings(endpoint.EventTypes)),
		endpoint.Name,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("update integration endpoint: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrEndpointNotFound
	}
	return nil
}

// UpdateEndpointSecret updates the secret hash for an endpoint.
func (r *Repository) UpdateEndpointSecret(ctx context.Context, id, secretHash string) error {
	query := `
		UPDATE integration_endpoints
		SET secret_hash = $2, updated_at = $3
		WHERE id = $1 AND deleted_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, id, secretHash, time.Now())
	if err != nil {
		return fmt.Errorf("update endpoint secret: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrEndpointNotFound
	}
	return nil
}

// DeleteEndpoint soft-deletes an integration endpoint.
func (r *Repository) DeleteEndpoint(ctx context.Context, id string) error {
	query := `
		UPDATE integration_endpoints
		SET deleted_at = $2, updated_at = $2
		WHERE id = $1 AND deleted_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, id, time.Now())
	if err != nil {
		return fmt.Errorf("delete integration endpoint: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrEndpointNotFound
	}
	return nil
}

// CreateDelivery creates a new delivery record. Duplicate
// (event, endpoint) pairs are ignored.
func (r *Repository) CreateDelivery(ctx context.Context, delivery *model.IntegrationDelivery) error {
	query := `
		INSERT INTO integration_deliveries (
			id, endpoint_id, event_id, event_type, payload_json,
			status, attempt_count, max_attempts, next_retry_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (event_id, endpoint_id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, query,
		delivery.ID,
		delivery.EndpointID,
		delivery.EventID,
		string(delivery.EventType),
		delivery.PayloadJSON,
		string(delivery.Status),
		delivery.AttemptCount,
		delivery.MaxAttempts,
		delivery.NextRetryAt,
		delivery.CreatedAt,
		delivery.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert integration delivery: %w", err)
	}
	return nil
}

// GetPendingDeliveries retrieves deliveries ready to be sent.
func (r *Repository) GetPendingDeliveries(ctx context.Context, limit int) ([]*model.IntegrationDelivery, error) {
	query := `
		SELECT d.id, d.endpoint_id, d.event_id, d.event_type, d.payload_json,
		       d.status, d.attempt_count, d.max_attempts, d.next_retry_at,
		       d.last_attempt_at, d.last_http_status, d.last_error,
		       d.created_at, d.updated_at
		FROM integration_deliveries d
		JOIN integration_endpoints e ON d.endpoint_id = e.id
		WHERE d.status IN ('pending', 'failed')
		  AND d.next_retry_at <= $1
		  AND e.deleted_at IS NULL
		  AND e.enabled = true
		ORDER BY d.next_retry_at
		LIMIT $2
		FOR UPDATE OF d SKIP LOCKED
	`

	rows, err := r.db.QueryContext(ctx, query, time.Now(), limit)
	if err != nil {
		return nil, fmt.Errorf("query pending deliveries: %w", err)
	}
	defer rows.Close()

	return scanDeliveries(rows)
}

// UpdateDeliverySuccess marks a delivery as successful.
func (r *Repository) UpdateDeliverySuccess(ctx context.Context, id string, httpStatus int) error {
	query := `
		UPDATE integration_deliveries
		SET status = 'success',
		    attempt_count = attempt_count + 1,
		    last_attempt_at = $2,
		    last_http_status = $3,
		    last_error = '',
		    updated_at = $2
		WHERE id = $1
	`

	now := time.Now()
	if _, err := r.db.ExecContext(ctx, query, id, now, httpStatus); err != nil {
		return fmt.Errorf("update delivery success: %w", err)
	}
	return nil
}

// UpdateDeliveryFailure marks a delivery as failed and schedules the
// next retry, or marks it exhausted.
func (r *Repository) UpdateDeliveryFailure(ctx context.Context, id string, httpStatus *int, errMsg string, nextRetryAt time.Time, exhausted bool) error {
	status := string(model.DeliveryStatusFailed)
	if exhausted {
		status = string(model.DeliveryStatusExhausted)
	}

	if len(errMsg) > 500 {
		errMsg = errMsg[:500]
	}

	query := `
		UPDATE integration_deliveries
		SET status = $2,
		    attempt_count = attempt_count + 1,
		    last_attempt_at = $3,
		    last_http_status = $4,
		    last_error = $5,
		    next_retry_at = $6,
		    updated_at = $3
		WHERE id = $1
	`

	now := time.Now()
	if _, err := r.db.ExecContext(ctx, query, id, status, now, httpStatus, errMsg, nextRetryAt); err != nil {
		return fmt.Errorf("update delivery failure: %w", err)
	}
	return nil
}

// ListDeliveriesByEndpoint retrieves recent deliveries for an endpoint.
func (r *Repository) ListDeliveriesByEndpoint(ctx context.Context, endpointID string, limit int) ([]*model.IntegrationDelivery, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, endpoint_id, event_id, event_type, payload_json,
		       status, attempt_count, max_attempts, next_retry_at,
		       last_attempt_at, last_http_status, last_error,
		       created_at, updated_at
		FROM integration_deliveries
		WHERE endpoint_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, endpointID, limit)
	if err != nil {
		return nil, fmt.Errorf("query deliveries: %w", err)
	}
	defer rows.Close()

	return scanDeliveries(rows)
}

// ResetDeliveryForRetry resets an exhausted delivery for manual retry.
func (r *Repository) ResetDeliveryForRetry(ctx context.Context, id string) error {
	query := `
		UPDATE integration_deliveries
		SET status = 'pending',
		    next_retry_at = $2,
		    updated_at = $2
		WHERE id = $1 AND status = 'exhausted'
	`

	result, err := r.db.ExecContext(ctx, query, id, time.Now())
	if err != nil {
		return fmt.Errorf("reset delivery: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrDeliveryNotFound
	}
	return nil
}

// QueueDepth returns the count of pending and failed deliveries.
func (r *Repository) QueueDepth(ctx context.Context) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM integration_deliveries
		WHERE status IN ('pending', 'failed')
	`

	var count int64
	if err := r.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count queue depth: %w", err)
	}
	return count, nil
}

func scanEndpoints(rows *sql.Rows) ([]*model.IntegrationEndpoint, error) {
	var endpoints []*model.IntegrationEndpoint
	for rows.Next() {
		var endpoint model.IntegrationEndpoint
		var eventTypes []string

		if err := rows.Scan(
			&endpoint.ID,
			&endpoint.AppEUI,
			&endpoint.TargetURL,
			&endpoint.SecretHash,
			&endpoint.Enabled,
			pq.Array(&eventTypes),
			&endpoint.Name,
			&endpoint.CreatedAt,
			&endpoint.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan integration endpoint: %w", err)
		}

		endpoint.EventTypes = toEventTypes(eventTypes)
		endpoints = append(endpoints, &endpoint)
	}
	return endpoints, rows.Err()
}

func scanDeliveries(rows *sql.Rows) ([]*model.IntegrationDelivery, error) {
	var deliveries []*model.IntegrationDelivery
	for rows.Next() {
		var d model.IntegrationDelivery
		var eventType, status string

		if err := rows.Scan(
			&d.ID,
			&d.EndpointID,
			&d.EventID,
			&eventType,
			&d.PayloadJSON,
			&status,
			&d.AttemptCount,
			&d.MaxAttempts,
			&d.NextRetryAt,
			&d.LastAttemptAt,
			&d.LastHTTPStatus,
			&d.LastError,
			&d.CreatedAt,
			&d.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}

		d.EventType = model.EventType(eventType)
		d.Status = model.DeliveryStatus(status)
		deliveries = append(deliveries, &d)
	}
	return deliveries, rows.Err()
}

func eventTypeStrings(eventTypes []model.EventType) []string {
	out := make([]string, len(eventTypes))
	for i, et := range eventTypes {
		out[i] = string(et)
	}
	return out
}

func toEventTypes(eventTypes []string) []model.EventType {
	out := make([]model.EventType, len(eventTypes))
	for i, et := range eventTypes {
		out[i] = model.EventType(et)
	}
	return out
}
