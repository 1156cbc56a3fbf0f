package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/lktlns/lktlns/internal/repository"
)

// FrameHandler serves stored uplink frame queries.
type FrameHandler struct {
	repo   *repository.FrameRepository
	logger *slog.Logger
}

// NewFrameHandler creates a new FrameHandler.
func NewFrameHandler(repo *repository.FrameRepository, logger *slog.Logger) *FrameHandler {
	return &FrameHandler{
		repo:   repo,
		logger: logger.With("component", "handler.frames"),
	}
}

// ListFrames handles GET /api/v1/frames.
// Optional query params: dev_addr, limit.
func (h *FrameHandler) ListFrames(w http.ResponseWriter, r *http.Request) {
	devAddr := r.URL.Query().Get("dev_addr")

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	frames, err := h.repo.ListRecent(r.Context(), devAddr, limit)
	if err != nil {
		h.logger.Error("failed to list frames", "dev_addr", devAddr, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch frames")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"frames": frames,
		"count":  len(frames),
	})
}

// GetActivity handles GET /api/v1/activity.
// Returns per-device frame counts over the requested window (default 24h).
func (h *FrameHandler) GetActivity(w http.ResponseWriter, r *http.Request) {
	window := 24 * time.Hour
	if windowStr := r.URL.Query().Get("window"); windowStr != "" {
		parsed, err := time.ParseDuration(windowStr)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "window must be a positive duration, e.g. 24h")
			return
		}
		window = parsed
	}

	since := time.Now().Add(-window)

	activity, err := h.repo.DeviceActivity(r.Context(), since, 0)
	if err != nil {
		h.logger.Error("failed to get device activity", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch activity")
		return
	}

	total, err := h.repo.CountSince(r.Context(), since)
	if err != nil {
		h.logger.Error("failed to count frames", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch activity")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"since":        since.UTC(),
		"total_frames": total,
		"devices":      activity,
	})
}
