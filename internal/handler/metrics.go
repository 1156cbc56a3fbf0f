package handler

import (
	"net/http"
	"time"

	"github.com/lktlns/lktlns/internal/metrics"
)

// StatsHandler exposes the in-memory counters as JSON for quick
// operational checks. The Prometheus endpoint remains the scrape source.
type StatsHandler struct {
	snapshotter metrics.Snapshotter
}

// NewStatsHandler creates a new StatsHandler.
func NewStatsHandler(snapshotter metrics.Snapshotter) *StatsHandler {
	return &StatsHandler{snapshotter: snapshotter}
}

type statsResponse struct {
	Time                  time.Time         `json:"time"`
	UplinksReceived       map[string]uint64 `json:"uplinks_received"`
	UplinksDropped        map[string]uint64 `json:"uplinks_dropped"`
	DeviceCacheHits       uint64            `json:"device_cache_hits"`
	DeviceCacheMisses     uint64            `json:"device_cache_misses"`
	DownlinksScheduled    map[string]uint64 `json:"downlinks_scheduled"`
	DownlinksSent         uint64            `json:"downlinks_sent"`
	DownlinksLost         uint64            `json:"downlinks_lost"`
	MQTTPublished         map[string]uint64 `json:"mqtt_published"`
	FrameEventsPublished  map[string]uint64 `json:"frame_events_published"`
	FrameEventsProcessed  map[string]uint64 `json:"frame_events_processed"`
	FrameQueueDepth       int64             `json:"frame_queue_depth"`
	IntegrationDeliveries map[string]uint64 `json:"integration_deliveries"`
}

// Stats handles GET /api/v1/stats.
func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Stats are not configured")
		return
	}

	snap := h.snapshotter.Snapshot()

	writeJSON(w, http.StatusOK, statsResponse{
		Time:                  time.Now().UTC(),
		UplinksReceived:       snap.UplinksReceived,
		UplinksDropped:        snap.UplinksDropped,
		DeviceCacheHits:       snap.DeviceCacheHits,
		DeviceCacheMisses:     snap.DeviceCacheMisses,
		DownlinksScheduled:    snap.DownlinksScheduled,
		DownlinksSent:         snap.DownlinksSent,
		DownlinksLost:         snap.DownlinksLost,
		MQTTPublished:         snap.MQTTPublished,
		FrameEventsPublished:  snap.FrameEventsPublished,
		FrameEventsProcessed:  snap.FrameEventsProcessed,
		FrameQueueDepth:       snap.FrameQueueDepth,
		IntegrationDeliveries: snap.IntegrationDeliveries,
	})
}
