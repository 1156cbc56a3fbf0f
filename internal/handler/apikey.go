package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/lktlns/lktlns/internal/auth"
	"github.com/lktlns/lktlns/internal/model"
	"github.com/lktlns/lktlns/internal/repository"
)

// APIKeyHandler handles API key management endpoints.
type APIKeyHandler struct {
	logger     *slog.Logger
	repository *repository.Repository
}

// NewAPIKeyHandler creates a new APIKeyHandler.
func NewAPIKeyHandler(logger *slog.Logger, repo *repository.Repository) *APIKeyHandler {
	return &APIKeyHandler{
		logger:     logger,
		repository: repo,
	}
}

type apiKeyCreateRequest struct {
	Name   string   `json:"name"`
	Scopes []string `json:"scopes"`
}

type apiKeyCreateResponse struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"` // plaintext, shown once
	Name      string    `json:"name,omitempty"`
	KeyPrefix string    `json:"key_prefix"`
	Scopes    []string  `json:"scopes"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateAPIKey handles POST /api/v1/keys
func (h *APIKeyHandler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req apiKeyCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	for _, scope := range req.Scopes {
		if !slices.Contains(model.ValidScopes, scope) {
			writeError(w, http.StatusBadRequest, "INVALID_SCOPE",
				"Invalid scope: "+scope+". Valid scopes: read, write, admin")
			return
		}
	}
	if len(req.Scopes) == 0 {
		req.Scopes = []string{model.ScopeRead}
	}

	generatedKey, err := auth.GenerateAPIKey(auth.EnvLive)
	if err != nil {
		h.logger.Error("failed to generate API key", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to generate API key")
		return
	}

	apiKey := &model.APIKey{
		ID:        ulid.Make().String(),
		KeyHash:   generatedKey.Hash,
		KeyPrefix: generatedKey.Prefix,
		Scopes:    req.Scopes,
		Name:      req.Name,
		CreatedAt: time.Now(),
	}

	if err := h.repository.CreateAPIKey(ctx, apiKey); err != nil {
		h.logger.Error("failed to create API key", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create API key")
		return
	}

	h.logger.Info("API key created",
		slog.String("key_id", apiKey.ID),
		slog.String("key_prefix", apiKey.KeyPrefix),
	)

	writeJSON(w, http.StatusCreated, apiKeyCreateResponse{
		ID:        apiKey.ID,
		Key:       generatedKey.Plaintext,
		Name:      apiKey.Name,
		KeyPrefix: apiKey.KeyPrefix,
		Scopes:    apiKey.Scopes,
		CreatedAt: apiKey.CreatedAt,
	})
}

// ListAPIKeys handles GET /api/v1/keys
func (h *APIKeyHandler) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.repository.ListAPIKeys(r.Context())
	if err != nil {
		h.logger.Error("failed to list API keys", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list API keys")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"keys": keys})
}

// RevokeAPIKey handles DELETE /api/v1/keys/{key_id}
func (h *APIKeyHandler) RevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	keyID := r.PathValue("key_id")
	if keyID == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Key ID is required")
		return
	}

	key, err := h.repository.GetAPIKeyByID(ctx, keyID)
	if err != nil || key.IsRevoked() {
		// Same response for missing and revoked keys to prevent enumeration.
		writeError(w, http.StatusNotFound, "KEY_NOT_FOUND", "API key not found or already revoked")
		return
	}

	if err := h.repository.RevokeAPIKey(ctx, keyID); err != nil {
		h.logger.Error("failed to revoke API key", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to revoke API key")
		return
	}

	h.logger.Info("API key revoked", slog.String("key_id", keyID))

	w.WriteHeader(http.StatusNoContent)
}
