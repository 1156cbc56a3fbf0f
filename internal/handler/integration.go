package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/lktlns/lktlns/internal/integration"
	"github.com/lktlns/lktlns/internal/model"
)

var appEUIRegex = regexp.MustCompile(`^[0-9a-f]{16}$`)

// IntegrationHandler manages HTTP integration endpoints and their
// delivery history.
type IntegrationHandler struct {
	logger *slog.Logger
	repo   *integration.Repository
}

// NewIntegrationHandler creates a new IntegrationHandler.
func NewIntegrationHandler(logger *slog.Logger, repo *integration.Repository) *IntegrationHandler {
	return &IntegrationHandler{
		logger: logger,
		repo:   repo,
	}
}

type integrationCreateRequest struct {
	AppEUI     string            `json:"app_eui"`
	TargetURL  string            `json:"target_url"`
	EventTypes []model.EventType `json:"event_types"`
	Name       string            `json:"name"`
}

type integrationCreateResponse struct {
	*model.IntegrationEndpoint
	Secret string `json:"secret"` // plaintext, shown once
}

type integrationUpdateRequest struct {
	TargetURL  *string            `json:"target_url"`
	Enabled    *bool              `json:"enabled"`
	EventTypes *[]model.EventType `json:"event_types"`
	Name       *string            `json:"name"`
}

// CreateIntegration handles POST /api/v1/integrations
func (h *IntegrationHandler) CreateIntegration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req integrationCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	appEUI := strings.ToLower(strings.TrimSpace(req.AppEUI))
	if !appEUIRegex.MatchString(appEUI) {
		writeError(w, http.StatusBadRequest, "INVALID_APP_EUI",
			"app_eui must be 16 hex characters")
		return
	}

	if err := integration.ValidateTargetURL(req.TargetURL); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_URL", err.Error())
		return
	}

	eventTypes := req.EventTypes
	if len(eventTypes) == 0 {
		eventTypes = []model.EventType{model.EventTypeUplink}
	}
	for _, et := range eventTypes {
		if !model.IsValidEventType(et) {
			writeError(w, http.StatusBadRequest, "INVALID_EVENT_TYPE",
				"Invalid event type: "+string(et))
			return
		}
	}

	secret, err := integration.GenerateSecret()
	if err != nil {
		h.logger.Error("failed to generate integration secret", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create integration")
		return
	}

	now := time.Now().UTC()
	endpoint := &model.IntegrationEndpoint{
		ID:         ulid.Make().String(),
		AppEUI:     appEUI,
		TargetURL:  req.TargetURL,
		SecretHash: integration.HashSecret(secret),
		Enabled:    true,
		EventTypes: eventTypes,
		Name:       req.Name,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := h.repo.CreateEndpoint(ctx, endpoint); err != nil {
		h.logger.Error("failed to create integration endpoint", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create integration")
		return
	}

	h.logger.Info("integration endpoint created",
		slog.String("endpoint_id", endpoint.ID),
		slog.String("app_eui", endpoint.AppEUI),
	)

	writeJSON(w, http.StatusCreated, integrationCreateResponse{
		IntegrationEndpoint: endpoint,
		Secret:              secret,
	})
}

// ListIntegrations handles GET /api/v1/integrations
func (h *IntegrationHandler) ListIntegrations(w http.ResponseWriter, r *http.Request) {
	endpoints, err := h.repo.ListEndpoints(r.Context())
	if err != nil {
		h.logger.Error("failed to list integration endpoints", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list integrations")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"integrations": endpoints,
		"count":        len(endpoints),
	})
}

// GetIntegration handles GET /api/v1/integrations/{endpoint_id}
func (h *IntegrationHandler) GetIntegration(w http.ResponseWriter, r *http.Request) {
	endpoint := h.lookupEndpoint(w, r)
	if endpoint == nil {
		return
	}
	writeJSON(w, http.StatusOK, endpoint)
}

// UpdateIntegration handles PATCH /api/v1/integrations/{endpoint_id}
func (h *IntegrationHandler) UpdateIntegration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	endpoint := h.lookupEndpoint(w, r)
	if endpoint == nil {
		return
	}

	var req integrationUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	if req.TargetURL != nil {
		if err := integration.ValidateTargetURL(*req.TargetURL); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_URL", err.Error())
			return
		}
		endpoint.TargetURL = *req.TargetURL
	}
	if req.Enabled != nil {
		endpoint.Enabled = *req.Enabled
	}
	if req.EventTypes != nil {
		for _, et := range *req.EventTypes {
			if !model.IsValidEventType(et) {
				writeError(w, http.StatusBadRequest, "INVALID_EVENT_TYPE",
					"Invalid event type: "+string(et))
				return
			}
		}
		endpoint.EventTypes = *req.EventTypes
	}
	if req.Name != nil {
		endpoint.Name = *req.Name
	}

	if err := h.repo.UpdateEndpoint(ctx, endpoint); err != nil {
		h.logger.Error("failed to update integration endpoint", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to update integration")
		return
	}

	h.logger.Info("integration endpoint updated", slog.String("endpoint_id", endpoint.ID))

	writeJSON(w, http.StatusOK, endpoint)
}

// DeleteIntegration handles DELETE /api/v1/integrations/{endpoint_id}
func (h *IntegrationHandler) DeleteIntegration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	endpoint := h.lookupEndpoint(w, r)
	if endpoint == nil {
		return
	}

	if err := h.repo.DeleteEndpoint(ctx, endpoint.ID); err != nil {
		h.logger.Error("failed to delete integration endpoint", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to delete integration")
		return
	}

	h.logger.Info("integration endpoint deleted", slog.String("endpoint_id", endpoint.ID))

	w.WriteHeader(http.StatusNoContent)
}

// RotateIntegrationSecret handles POST /api/v1/integrations/{endpoint_id}/rotate-secret
func (h *IntegrationHandler) RotateIntegrationSecret(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	endpoint := h.lookupEndpoint(w, r)
	if endpoint == nil {
		return
	}

	secret, err := integration.GenerateSecret()
	if err != nil {
		h.logger.Error("failed to generate integration secret", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to rotate secret")
		return
	}

	if err := h.repo.UpdateEndpointSecret(ctx, endpoint.ID, integration.HashSecret(secret)); err != nil {
		h.logger.Error("failed to store rotated secret", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to rotate secret")
		return
	}

	h.logger.Info("integration secret rotated", slog.String("endpoint_id", endpoint.ID))

	writeJSON(w, http.StatusOK, map[string]string{"secret": secret})
}

// ListIntegrationDeliveries handles GET /api/v1/integrations/{endpoint_id}/deliveries
func (h *IntegrationHandler) ListIntegrationDeliveries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	endpoint := h.lookupEndpoint(w, r)
	if endpoint == nil {
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	deliveries, err := h.repo.ListDeliveriesByEndpoint(ctx, endpoint.ID, limit)
	if err != nil {
		h.logger.Error("failed to list integration deliveries", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list deliveries")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"deliveries": deliveries,
		"count":      len(deliveries),
	})
}

// RetryIntegrationDelivery handles POST /api/v1/integrations/{endpoint_id}/deliveries/{delivery_id}/retry
func (h *IntegrationHandler) RetryIntegrationDelivery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	endpoint := h.lookupEndpoint(w, r)
	if endpoint == nil {
		return
	}

	deliveryID := r.PathValue("delivery_id")
	if err := h.repo.ResetDeliveryForRetry(ctx, deliveryID); err != nil {
		if errors.Is(err, integration.ErrDeliveryNotFound) {
			writeError(w, http.StatusNotFound, "DELIVERY_NOT_FOUND",
				"Delivery not found or not exhausted")
			return
		}
		h.logger.Error("failed to reset delivery", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to retry delivery")
		return
	}

	h.logger.Info("integration delivery retry requested",
		slog.String("delivery_id", deliveryID),
		slog.String("endpoint_id", endpoint.ID),
	)

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "retry_scheduled"})
}

// lookupEndpoint resolves the {endpoint_id} path parameter. It writes the
// error response itself and returns nil when the endpoint is missing;
// soft-deleted endpoints are reported as not found.
func (h *IntegrationHandler) lookupEndpoint(w http.ResponseWriter, r *http.Request) *model.IntegrationEndpoint {
	endpoint, err := h.repo.GetEndpoint(r.Context(), r.PathValue("endpoint_id"))
	if err != nil {
		if errors.Is(err, integration.ErrEndpointNotFound) {
			writeError(w, http.StatusNotFound, "INTEGRATION_NOT_FOUND", "Integration not found")
			return nil
		}
		h.logger.Error("failed to load integration endpoint", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load integration")
		return nil
	}
	return endpoint
}
