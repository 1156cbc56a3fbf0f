package metrics

import "time"

// TeeRecorder forwards every observation to all wrapped recorders.
// Used to feed Prometheus and the in-memory stats snapshot at once.
type TeeRecorder struct {
	recorders []Recorder
}

// NewTee returns a Recorder that fans out to the given recorders.
func NewTee(recorders ...Recorder) *TeeRecorder {
	return &TeeRecorder{recorders: recorders}
}

func (t *TeeRecorder) IncUplinkReceived(kind string) {
	for _, r := range t.recorders {
		r.IncUplinkReceived(kind)
	}
}

func (t *TeeRecorder) IncUplinkDropped(reason string) {
	for _, r := range t.recorders {
		r.IncUplinkDropped(reason)
	}
}

func (t *TeeRecorder) ObserveUplinkDuration(duration time.Duration) {
	for _, r := range t.recorders {
		r.ObserveUplinkDuration(duration)
	}
}

func (t *TeeRecorder) IncDeviceCacheHit() {
	for _, r := range t.recorders {
		r.IncDeviceCacheHit()
	}
}

func (t *TeeRecorder) IncDeviceCacheMiss() {
	for _, r := range t.recorders {
		r.IncDeviceCacheMiss()
	}
}

func (t *TeeRecorder) IncDownlinkScheduled(kind string) {
	for _, r := range t.recorders {
		r.IncDownlinkScheduled(kind)
	}
}

func (t *TeeRecorder) IncDownlinkSent() {
	for _, r := range t.recorders {
		r.IncDownlinkSent()
	}
}

func (t *TeeRecorder) IncDownlinkLost() {
	for _, r := range t.recorders {
		r.IncDownlinkLost()
	}
}

func (t *TeeRecorder) IncTxAck(status string) {
	for _, r := range t.recorders {
		r.IncTxAck(status)
	}
}

func (t *TeeRecorder) IncMQTTPublished(status string) {
	for _, r := range t.recorders {
		r.IncMQTTPublished(status)
	}
}

func (t *TeeRecorder) IncFrameEventPublished(status string) {
	for _, r := range t.recorders {
		r.IncFrameEventPublished(status)
	}
}

func (t *TeeRecorder) IncFrameEventProcessed(status string) {
	for _, r := range t.recorders {
		r.IncFrameEventProcessed(status)
	}
}

func (t *TeeRecorder) ObserveFrameBatchSize(size int) {
	for _, r := range t.recorders {
		r.ObserveFrameBatchSize(size)
	}
}

func (t *TeeRecorder) ObserveFrameBatchDuration(duration time.Duration) {
	for _, r := range t.recorders {
		r.ObserveFrameBatchDuration(duration)
	}
}

func (t *TeeRecorder) SetFrameQueueDepth(depth int64) {
	for _, r := range t.recorders {
		r.SetFrameQueueDepth(depth)
	}
}

func (t *TeeRecorder) ObserveFrameIngestLag(lag time.Duration) {
	for _, r := range t.recorders {
		r.ObserveFrameIngestLag(lag)
	}
}

func (t *TeeRecorder) IncIntegrationDelivery(status string) {
	for _, r := range t.recorders {
		r.IncIntegrationDelivery(status)
	}
}
