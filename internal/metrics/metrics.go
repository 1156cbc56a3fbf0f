// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Uplink path metrics
	IncUplinkReceived(kind string)  // kind: "lorawan" or "p2p"
	IncUplinkDropped(reason string) // reason: "parse_error", "unknown_device", "unknown_channel"
	ObserveUplinkDuration(duration time.Duration)
	IncDeviceCacheHit()
	IncDeviceCacheMiss()

	// Downlink path metrics
	IncDownlinkScheduled(kind string) // kind: "lorawan" or "p2p"
	IncDownlinkSent()
	IncDownlinkLost()
	IncTxAck(status string)

	// MQTT bridge metrics
	IncMQTTPublished(status string) // status: "success" or "dropped"

	// Frame event pipeline metrics
	IncFrameEventPublished(status string) // status: "success" or "dropped"
	IncFrameEventProcessed(status string) // status: "success", "failed", "dead_lettered"
	ObserveFrameBatchSize(size int)
	ObserveFrameBatchDuration(duration time.Duration)
	SetFrameQueueDepth(depth int64)
	ObserveFrameIngestLag(lag time.Duration)

	// Integration delivery metrics
	IncIntegrationDelivery(status string) // status: "delivered", "failed", "dead"
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
