package p2p

import (
	"bytes"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/lktlns/lktlns/internal/gateway"
)

func TestParseFrame(t *testing.T) {
	t.Parallel()

	raw := []byte{0x07, 0xaa, 0xbb, 0xcc, 0x01, 0x02, 0x03}

	frame, err := ParseFrame(raw)
	if err != nil {
		t.Fatalf("ParseFrame failed: %v", err)
	}

	if frame.Counter != 0x07 {
		t.Errorf("Counter = %#x, want 0x07", frame.Counter)
	}
	if frame.NodeID != [3]byte{0xaa, 0xbb, 0xcc} {
		t.Errorf("NodeID = %x, want aabbcc", frame.NodeID)
	}
	if !bytes.Equal(frame.Data, []byte{0x01, 0x02, 0x03}) {
		t.Errorf("Data = %x, want 010203", frame.Data)
	}
}

func TestParseFrame_HeaderOnly(t *testing.T) {
	t.Parallel()

	frame, err := ParseFrame([]byte{0x01, 0x11, 0x22, 0x33})
	if err != nil {
		t.Fatalf("ParseFrame failed: %v", err)
	}
	if len(frame.Data) != 0 {
		t.Errorf("Expected empty data, got %x", frame.Data)
	}
}

func TestParseFrame_TooShort(t *testing.T) {
	t.Parallel()

	_, err := ParseFrame([]byte{0x01, 0x11, 0x22})
	if !errors.Is(err, ErrFrameTooShort) {
		t.Errorf("Expected ErrFrameTooShort, got %v", err)
	}
}

func TestEncodeFrame_RoundTrip(t *testing.T) {
	t.Parallel()

	raw := EncodeFrame(0x2a, [3]byte{0x01, 0x02, 0x03}, []byte("hello"))

	frame, err := ParseFrame(raw)
	if err != nil {
		t.Fatalf("ParseFrame failed: %v", err)
	}
	if frame.Counter != 0x2a {
		t.Errorf("Counter = %#x, want 0x2a", frame.Counter)
	}
	if string(frame.Data) != "hello" {
		t.Errorf("Data = %q, want %q", frame.Data, "hello")
	}
}

func TestBuildDownlink(t *testing.T) {
	t.Parallel()

	tmms := int64(1234567890)
	rx := gateway.Rxpk{
		Tmst: 5_000_000,
		Tmms: &tmms,
		Freq: 902.3,
		Datr: "SF10BW125",
	}

	frame := &Frame{Counter: 0x05, NodeID: [3]byte{0xaa, 0xbb, 0xcc}}
	tx := frame.BuildDownlink(rx, nil)

	if tx.Tmst != 6_000_000 {
		t.Errorf("Tmst = %d, want one second after uplink", tx.Tmst)
	}
	if tx.Tmms == nil || *tx.Tmms != tmms+1 {
		t.Errorf("Tmms = %v, want %d", tx.Tmms, tmms+1)
	}
	if tx.Freq != DownlinkFreq {
		t.Errorf("Freq = %v, want %v", tx.Freq, DownlinkFreq)
	}
	if tx.Datr != DownlinkDataRate {
		t.Errorf("Datr = %q, want %q", tx.Datr, DownlinkDataRate)
	}
	if tx.IPol {
		t.Error("IPol should be false for peer transmissions")
	}

	raw, err := base64.StdEncoding.DecodeString(tx.Data)
	if err != nil {
		t.Fatalf("decode tx data: %v", err)
	}
	if tx.Size != len(raw) {
		t.Errorf("Size = %d, want %d", tx.Size, len(raw))
	}

	echoed, err := ParseFrame(raw)
	if err != nil {
		t.Fatalf("ParseFrame(echo) failed: %v", err)
	}
	if echoed.Counter != frame.Counter || echoed.NodeID != frame.NodeID {
		t.Error("Echo should carry the uplink counter and node ID")
	}
	if !bytes.Equal(echoed.Data, DefaultEchoPayload) {
		t.Errorf("Echo data = %x, want default payload", echoed.Data)
	}
}

func TestBuildDownlink_NoGPSTime(t *testing.T) {
	t.Parallel()

	rx := gateway.Rxpk{Tmst: 1_000_000}
	frame := &Frame{Counter: 1, NodeID: [3]byte{1, 2, 3}}

	tx := frame.BuildDownlink(rx, []byte{0xff})
	if tx.Tmms != nil {
		t.Errorf("Tmms should stay unset, got %v", *tx.Tmms)
	}
}
