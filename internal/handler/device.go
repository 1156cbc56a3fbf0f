package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/lktlns/lktlns/internal/model"
)

// DeviceStore exposes the provisioned device snapshot.
type DeviceStore interface {
	Devices() []*model.Device
	Refresh(ctx context.Context) error
}

// DeviceHandler serves provisioned device listings from the registry
// snapshot. Session keys never leave the server, the model redacts them.
type DeviceHandler struct {
	devices DeviceStore
	logger  *slog.Logger
}

// NewDeviceHandler creates a new DeviceHandler.
func NewDeviceHandler(devices DeviceStore, logger *slog.Logger) *DeviceHandler {
	return &DeviceHandler{
		devices: devices,
		logger:  logger.With("component", "handler.devices"),
	}
}

// ListDevices handles GET /api/v1/devices.
func (h *DeviceHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	devices := h.devices.Devices()
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// RefreshDevices handles POST /api/v1/devices/refresh. It forces a
// registry snapshot reload instead of waiting for the next periodic one.
func (h *DeviceHandler) RefreshDevices(w http.ResponseWriter, r *http.Request) {
	if err := h.devices.Refresh(r.Context()); err != nil {
		h.logger.Error("registry refresh failed", "error", err)
		writeError(w, http.StatusBadGateway, "REGISTRY_ERROR", "Failed to refresh device registry")
		return
	}

	devices := h.devices.Devices()
	writeJSON(w, http.StatusOK, map[string]any{"count": len(devices)})
}
