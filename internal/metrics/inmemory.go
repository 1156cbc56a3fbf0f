package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	UplinksReceived       map[string]uint64
	UplinksDropped        map[string]uint64
	UplinkDurationCount   uint64
	UplinkDurationTotalNs int64
	DeviceCacheHits       uint64
	DeviceCacheMisses     uint64
	DownlinksScheduled    map[string]uint64
	DownlinksSent         uint64
	DownlinksLost         uint64
	MQTTPublished         map[string]uint64
	FrameEventsPublished  map[string]uint64
	FrameEventsProcessed  map[string]uint64
	FrameQueueDepth       int64
	IntegrationDeliveries map[string]uint64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	uplinkDurationCount   uint64
	uplinkDurationTotalNs int64
	deviceCacheHits       uint64
	deviceCacheMisses     uint64
	downlinksSent         uint64
	downlinksLost         uint64
	frameQueueDepth       int64

	mu                    sync.Mutex
	uplinksReceived       map[string]uint64
	uplinksDropped        map[string]uint64
	downlinksScheduled    map[string]uint64
	txAcks                map[string]uint64
	mqttPublished         map[string]uint64
	frameEventsPublished  map[string]uint64
	frameEventsProcessed  map[string]uint64
	integrationDeliveries map[string]uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		uplinksReceived:       make(map[string]uint64),
		uplinksDropped:        make(map[string]uint64),
		downlinksScheduled:    make(map[string]uint64),
		txAcks:                make(map[string]uint64),
		mqttPublished:         make(map[string]uint64),
		frameEventsPublished:  make(map[string]uint64),
		frameEventsProcessed:  make(map[string]uint64),
		integrationDeliveries: make(map[string]uint64),
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		UplinksReceived:       copyCounts(m.uplinksReceived),
		UplinksDropped:        copyCounts(m.uplinksDropped),
		UplinkDurationCount:   atomic.LoadUint64(&m.uplinkDurationCount),
		UplinkDurationTotalNs: atomic.LoadInt64(&m.uplinkDurationTotalNs),
		DeviceCacheHits:       atomic.LoadUint64(&m.deviceCacheHits),
		DeviceCacheMisses:     atomic.LoadUint64(&m.deviceCacheMisses),
		DownlinksScheduled:    copyCounts(m.downlinksScheduled),
		DownlinksSent:         atomic.LoadUint64(&m.downlinksSent),
		DownlinksLost:         atomic.LoadUint64(&m.downlinksLost),
		MQTTPublished:         copyCounts(m.mqttPublished),
		FrameEventsPublished:  copyCounts(m.frameEventsPublished),
		FrameEventsProcessed:  copyCounts(m.frameEventsProcessed),
		FrameQueueDepth:       atomic.LoadInt64(&m.frameQueueDepth),
		IntegrationDeliveries: copyCounts(m.integrationDeliveries),
	}
}

func copyCounts(src map[string]uint64) map[string]uint64 {
	dst := make(map[string]uint64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func (m *InMemoryRecorder) incLabeled(counts map[string]uint64, label string) {
	m.mu.Lock()
	counts[label]++
	m.mu.Unlock()
}

// IncUplinkReceived increments the uplink counter for a frame kind.
func (m *InMemoryRecorder) IncUplinkReceived(kind string) {
	m.incLabeled(m.uplinksReceived, kind)
}

// IncUplinkDropped increments the dropped uplink counter for a reason.
func (m *InMemoryRecorder) IncUplinkDropped(reason string) {
	m.incLabeled(m.uplinksDropped, reason)
}

// ObserveUplinkDuration records uplink processing duration.
func (m *InMemoryRecorder) ObserveUplinkDuration(duration time.Duration) {
	atomic.AddUint64(&m.uplinkDurationCount, 1)
	atomic.AddInt64(&m.uplinkDurationTotalNs, duration.Nanoseconds())
}

// IncDeviceCacheHit increments the device cache hit counter.
func (m *InMemoryRecorder) IncDeviceCacheHit() {
	atomic.AddUint64(&m.deviceCacheHits, 1)
}

// IncDeviceCacheMiss increments the device cache miss counter.
func (m *InMemoryRecorder) IncDeviceCacheMiss() {
	atomic.AddUint64(&m.deviceCacheMisses, 1)
}

// IncDownlinkScheduled increments the scheduled downlink counter.
func (m *InMemoryRecorder) IncDownlinkScheduled(kind string) {
	m.incLabeled(m.downlinksScheduled, kind)
}

// IncDownlinkSent increments the sent downlink counter.
func (m *InMemoryRecorder) IncDownlinkSent() {
	atomic.AddUint64(&m.downlinksSent, 1)
}

// IncDownlinkLost increments the lost downlink counter.
func (m *InMemoryRecorder) IncDownlinkLost() {
	atomic.AddUint64(&m.downlinksLost, 1)
}

// IncTxAck increments the TX_ACK counter for a status.
func (m *InMemoryRecorder) IncTxAck(status string) {
	m.incLabeled(m.txAcks, status)
}

// IncMQTTPublished increments the MQTT publish counter for a status.
func (m *InMemoryRecorder) IncMQTTPublished(status string) {
	m.incLabeled(m.mqttPublished, status)
}

// IncFrameEventPublished increments the frame event publish counter.
func (m *InMemoryRecorder) IncFrameEventPublished(status string) {
	m.incLabeled(m.frameEventsPublished, status)
}

// IncFrameEventProcessed increments the frame event processed counter.
func (m *InMemoryRecorder) IncFrameEventProcessed(status string) {
	m.incLabeled(m.frameEventsProcessed, status)
}

// ObserveFrameBatchSize is recorded only by the Prometheus recorder.
func (m *InMemoryRecorder) ObserveFrameBatchSize(size int) {}

// ObserveFrameBatchDuration is recorded only by the Prometheus recorder.
func (m *InMemoryRecorder) ObserveFrameBatchDuration(duration time.Duration) {}

// SetFrameQueueDepth stores the current stream backlog.
func (m *InMemoryRecorder) SetFrameQueueDepth(depth int64) {
	atomic.StoreInt64(&m.frameQueueDepth, depth)
}

// ObserveFrameIngestLag is recorded only by the Prometheus recorder.
func (m *InMemoryRecorder) ObserveFrameIngestLag(lag time.Duration) {}

// IncIntegrationDelivery increments the delivery counter for a status.
func (m *InMemoryRecorder) IncIntegrationDelivery(status string) {
	m.incLabeled(m.integrationDeliveries, status)
}
