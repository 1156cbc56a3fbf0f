package events

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/lktlns/lktlns/internal/metrics"
)

func testWorker() *Worker {
	return &Worker{
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics: metrics.NewNoop(),
	}
}

func testEventMessage(t *testing.T, id string, event FrameEventPayload) redis.XMessage {
	t.Helper()
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return redis.XMessage{
		ID:     id,
		Values: map[string]any{"payload": string(payload)},
	}
}

func TestWorker_ParseMessages(t *testing.T) {
	w := testWorker()

	event := FrameEventPayload{
		GatewayEUI: "aa555a000000002e",
		DevAddr:    "26011f2a",
		DevEUI:     "70b3d57ed0000001",
		AppEUI:     "70b3d57ed0000000",
		FCnt:       42,
		FPort:      7,
		Payload:    []byte{0xca, 0xfe},
		Freq:       915.2,
		DataRate:   "SF10BW125",
		RSSI:       -57,
		SNR:        9.5,
		ReceivedAt: time.Now().UnixMilli(),
	}

	frames, messageIDs := w.parseMessages(context.Background(),
		[]redis.XMessage{testEventMessage(t, "1-0", event)})

	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if len(messageIDs) != 1 || messageIDs[0] != "1-0" {
		t.Errorf("messageIDs = %v, want [1-0]", messageIDs)
	}

	frame := frames[0]
	if _, err := ulid.Parse(frame.ID); err != nil {
		t.Errorf("frame ID %q is not a valid ULID: %v", frame.ID, err)
	}
	if frame.DevAddr != event.DevAddr {
		t.Errorf("DevAddr = %s, want %s", frame.DevAddr, event.DevAddr)
	}
	if frame.AppEUI != event.AppEUI {
		t.Errorf("AppEUI = %s, want %s", frame.AppEUI, event.AppEUI)
	}
	if frame.FCnt != event.FCnt {
		t.Errorf("FCnt = %d, want %d", frame.FCnt, event.FCnt)
	}
	if frame.ReceivedAt.UnixMilli() != event.ReceivedAt {
		t.Errorf("ReceivedAt = %v, want %d", frame.ReceivedAt, event.ReceivedAt)
	}
}

func TestWorker_ParseMessages_UniqueIDs(t *testing.T) {
	w := testWorker()

	event := FrameEventPayload{
		GatewayEUI: "aa555a000000002e",
		DevAddr:    "26011f2a",
		FCnt:       1,
		FPort:      1,
		Freq:       915.2,
		DataRate:   "SF10BW125",
		ReceivedAt: time.Now().UnixMilli(),
	}

	msgs := []redis.XMessage{
		testEventMessage(t, "1-0", event),
		testEventMessage(t, "1-1", event),
	}

	frames, _ := w.parseMessages(context.Background(), msgs)
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if frames[0].ID == frames[1].ID {
		t.Errorf("frame IDs collide: %s", frames[0].ID)
	}
}
