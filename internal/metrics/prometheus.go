package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder exposes metrics via a Prometheus registry.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	uplinksReceived       *prometheus.CounterVec
	uplinksDropped        *prometheus.CounterVec
	uplinkDuration        prometheus.Histogram
	deviceCacheHits       prometheus.Counter
	deviceCacheMisses     prometheus.Counter
	downlinksScheduled    *prometheus.CounterVec
	downlinksSent         prometheus.Counter
	downlinksLost         prometheus.Counter
	txAcks                *prometheus.CounterVec
	mqttPublished         *prometheus.CounterVec
	frameEventsPublished  *prometheus.CounterVec
	frameEventsProcessed  *prometheus.CounterVec
	frameBatchSize        prometheus.Histogram
	frameBatchDuration    prometheus.Histogram
	frameQueueDepth       prometheus.Gauge
	frameIngestLag        prometheus.Histogram
	integrationDeliveries *prometheus.CounterVec
}

// NewPrometheus returns a Recorder backed by a dedicated registry.
func NewPrometheus() *PrometheusRecorder {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &PrometheusRecorder{
		registry: registry,
		uplinksReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lns_uplinks_received_total",
			Help: "Uplink frames received from gateways, by kind.",
		}, []string{"kind"}),
		uplinksDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lns_uplinks_dropped_total",
			Help: "Uplink frames dropped before bridging, by reason.",
		}, []string{"reason"}),
		uplinkDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "lns_uplink_duration_seconds",
			Help:    "Time spent handling a single uplink datagram.",
			Buckets: prometheus.DefBuckets,
		}),
		deviceCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "lns_device_cache_hits_total",
			Help: "Device session lookups served from cache.",
		}),
		deviceCacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "lns_device_cache_misses_total",
			Help: "Device session lookups that required a registry fetch.",
		}),
		downlinksScheduled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lns_downlinks_scheduled_total",
			Help: "Downlinks accepted into the transmit queue, by kind.",
		}, []string{"kind"}),
		downlinksSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "lns_downlinks_sent_total",
			Help: "PULL_RESP datagrams sent to gateways.",
		}),
		downlinksLost: factory.NewCounter(prometheus.CounterOpts{
			Name: "lns_downlinks_lost_total",
			Help: "Downlinks dropped because their transmit window passed.",
		}),
		txAcks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lns_tx_acks_total",
			Help: "TX_ACK datagrams received from gateways, by status.",
		}, []string{"status"}),
		mqttPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lns_mqtt_published_total",
			Help: "Uplink messages published to the MQTT broker, by status.",
		}, []string{"status"}),
		frameEventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lns_frame_events_published_total",
			Help: "Frame events enqueued to the Redis stream, by status.",
		}, []string{"status"}),
		frameEventsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lns_frame_events_processed_total",
			Help: "Frame events drained from the Redis stream, by status.",
		}, []string{"status"}),
		frameBatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "lns_frame_batch_size",
			Help:    "Frames persisted per worker batch.",
			Buckets: []float64{1, 5, 10, 50, 100, 250, 500},
		}),
		frameBatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "lns_frame_batch_duration_seconds",
			Help:    "Time spent persisting a worker batch.",
			Buckets: prometheus.DefBuckets,
		}),
		frameQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lns_frame_queue_depth",
			Help: "Pending plus unread entries in the frame event stream.",
		}),
		frameIngestLag: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "lns_frame_ingest_lag_seconds",
			Help:    "Delay between frame reception and persistence.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}),
		integrationDeliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lns_integration_deliveries_total",
			Help: "HTTP integration delivery attempts, by status.",
		}, []string{"status"}),
	}
}

// Handler returns the HTTP handler serving the metrics endpoint.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// IncUplinkReceived increments the uplink counter for a frame kind.
func (p *PrometheusRecorder) IncUplinkReceived(kind string) {
	p.uplinksReceived.WithLabelValues(kind).Inc()
}

// IncUplinkDropped increments the dropped uplink counter for a reason.
func (p *PrometheusRecorder) IncUplinkDropped(reason string) {
	p.uplinksDropped.WithLabelValues(reason).Inc()
}

// ObserveUplinkDuration records uplink processing duration.
func (p *PrometheusRecorder) ObserveUplinkDuration(duration time.Duration) {
	p.uplinkDuration.Observe(duration.Seconds())
}

// IncDeviceCacheHit increments the device cache hit counter.
func (p *PrometheusRecorder) IncDeviceCacheHit() {
	p.deviceCacheHits.Inc()
}

// IncDeviceCacheMiss increments the device cache miss counter.
func (p *PrometheusRecorder) IncDeviceCacheMiss() {
	p.deviceCacheMisses.Inc()
}

// IncDownlinkScheduled increments the scheduled downlink counter.
func (p *PrometheusRecorder) IncDownlinkScheduled(kind string) {
	p.downlinksScheduled.WithLabelValues(kind).Inc()
}

// IncDownlinkSent increments the sent downlink counter.
func (p *PrometheusRecorder) IncDownlinkSent() {
	p.downlinksSent.Inc()
}

// IncDownlinkLost increments the lost downlink counter.
func (p *PrometheusRecorder) IncDownlinkLost() {
	p.downlinksLost.Inc()
}

// IncTxAck increments the TX_ACK counter for a status.
func (p *PrometheusRecorder) IncTxAck(status string) {
	p.txAcks.WithLabelValues(status).Inc()
}

// IncMQTTPublished increments the MQTT publish counter for a status.
func (p *PrometheusRecorder) IncMQTTPublished(status string) {
	p.mqttPublished.WithLabelValues(status).Inc()
}

// IncFrameEventPublished increments the frame event publish counter.
func (p *PrometheusRecorder) IncFrameEventPublished(status string) {
	p.frameEventsPublished.WithLabelValues(status).Inc()
}

// IncFrameEventProcessed increments the frame event processed counter.
func (p *PrometheusRecorder) IncFrameEventProcessed(status string) {
	p.frameEventsProcessed.WithLabelValues(status).Inc()
}

// ObserveFrameBatchSize records frames persisted per batch.
func (p *PrometheusRecorder) ObserveFrameBatchSize(size int) {
	p.frameBatchSize.Observe(float64(size))
}

// ObserveFrameBatchDuration records batch persistence duration.
func (p *PrometheusRecorder) ObserveFrameBatchDuration(duration time.Duration) {
	p.frameBatchDuration.Observe(duration.Seconds())
}

// SetFrameQueueDepth stores the current stream backlog.
func (p *PrometheusRecorder) SetFrameQueueDepth(depth int64) {
	p.frameQueueDepth.Set(float64(depth))
}

// ObserveFrameIngestLag records reception-to-persistence delay.
func (p *PrometheusRecorder) ObserveFrameIngestLag(lag time.Duration) {
	p.frameIngestLag.Observe(lag.Seconds())
}

// IncIntegrationDelivery increments the delivery counter for a status.
func (p *PrometheusRecorder) IncIntegrationDelivery(status string) {
	p.integrationDeliveries.WithLabelValues(status).Inc()
}
