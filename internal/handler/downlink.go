package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/lktlns/lktlns/internal/upstream"
)

// maxDownlinkPayload caps the application payload accepted over the API.
const maxDownlinkPayload = 242

// DownlinkScheduler queues a class-A downlink for a device.
type DownlinkScheduler interface {
	ScheduleDownlink(ctx context.Context, devAddr string, port int, payload []byte, confirmed bool, counter int) (uint32, error)
}

// DownlinkHandler accepts downlink commands over the admin API.
type DownlinkHandler struct {
	scheduler DownlinkScheduler
	logger    *slog.Logger
}

// NewDownlinkHandler creates a new DownlinkHandler.
func NewDownlinkHandler(scheduler DownlinkScheduler, logger *slog.Logger) *DownlinkHandler {
	return &DownlinkHandler{
		scheduler: scheduler,
		logger:    logger.With("component", "handler.downlinks"),
	}
}

type downlinkRequest struct {
	DevAddr     string `json:"dev_addr"`
	Port        int    `json:"port,omitempty"`
	Payload     string `json:"payload"` // base64
	Confirmed   bool   `json:"confirmed,omitempty"`
	CounterDown int    `json:"counter_down,omitempty"`
}

type downlinkResponse struct {
	DevAddr     string `json:"dev_addr"`
	Port        int    `json:"port"`
	CounterDown uint32 `json:"counter_down"`
	Queued      bool   `json:"queued"`
}

// CreateDownlink handles POST /api/v1/downlinks.
func (h *DownlinkHandler) CreateDownlink(w http.ResponseWriter, r *http.Request) {
	var req downlinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	if req.DevAddr == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "dev_addr is required")
		return
	}

	payload, err := base64.StdEncoding.DecodeString(req.Payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "payload must be base64")
		return
	}
	if len(payload) == 0 || len(payload) > maxDownlinkPayload {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "payload must be 1-242 bytes")
		return
	}
	if req.Port < 0 || req.Port > 255 {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "port must be 0-255")
		return
	}

	counter, err := h.scheduler.ScheduleDownlink(r.Context(), req.DevAddr, req.Port, payload, req.Confirmed, req.CounterDown)
	if err != nil {
		switch {
		case errors.Is(err, upstream.ErrDeviceNotFound):
			writeError(w, http.StatusNotFound, "DEVICE_NOT_FOUND", "Device is not provisioned")
		case errors.Is(err, upstream.ErrNoReceiveWindow):
			writeError(w, http.StatusConflict, "NO_RECEIVE_WINDOW", "Device has no open receive window")
		default:
			h.logger.Error("failed to schedule downlink", "dev_addr", req.DevAddr, "error", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to schedule downlink")
		}
		return
	}

	port := req.Port
	if port == 0 {
		port = upstream.DefaultDownlinkPort
	}

	writeJSON(w, http.StatusAccepted, downlinkResponse{
		DevAddr:     req.DevAddr,
		Port:        port,
		CounterDown: counter,
		Queued:      true,
	})
}
