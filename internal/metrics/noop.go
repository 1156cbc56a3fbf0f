package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncUplinkReceived is a no-op.
func (n *NoopRecorder) IncUplinkReceived(kind string) {}

// IncUplinkDropped is a no-op.
func (n *NoopRecorder) IncUplinkDropped(reason string) {}

// ObserveUplinkDuration is a no-op.
func (n *NoopRecorder) ObserveUplinkDuration(duration time.Duration) {}

// IncDeviceCacheHit is a no-op.
func (n *NoopRecorder) IncDeviceCacheHit() {}

// IncDeviceCacheMiss is a no-op.
func (n *NoopRecorder) IncDeviceCacheMiss() {}

// IncDownlinkScheduled is a no-op.
func (n *NoopRecorder) IncDownlinkScheduled(kind string) {}

// IncDownlinkSent is a no-op.
func (n *NoopRecorder) IncDownlinkSent() {}

// IncDownlinkLost is a no-op.
func (n *NoopRecorder) IncDownlinkLost() {}

// IncTxAck is a no-op.
func (n *NoopRecorder) IncTxAck(status string) {}

// IncMQTTPublished is a no-op.
func (n *NoopRecorder) IncMQTTPublished(status string) {}

// IncFrameEventPublished is a no-op.
func (n *NoopRecorder) IncFrameEventPublished(status string) {}

// IncFrameEventProcessed is a no-op.
func (n *NoopRecorder) IncFrameEventProcessed(status string) {}

// ObserveFrameBatchSize is a no-op.
func (n *NoopRecorder) ObserveFrameBatchSize(size int) {}

// ObserveFrameBatchDuration is a no-op.
func (n *NoopRecorder) ObserveFrameBatchDuration(duration time.Duration) {}

// SetFrameQueueDepth is a no-op.
func (n *NoopRecorder) SetFrameQueueDepth(depth int64) {}

// ObserveFrameIngestLag is a no-op.
func (n *NoopRecorder) ObserveFrameIngestLag(lag time.Duration) {}

// IncIntegrationDelivery is a no-op.
func (n *NoopRecorder) IncIntegrationDelivery(status string) {}
