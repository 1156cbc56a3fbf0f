package events

import (
	"strings"
	"testing"
	"time"
)

func validPayload() FrameEventPayload {
	return FrameEventPayload{
		GatewayEUI: "aa555a0000000101",
		DevAddr:    "0102aabb",
		DevEUI:     "70b3d5b020000001",
		FCnt:       42,
		FPort:      2,
		Payload:    []byte{0x01, 0x02},
		Freq:       915.2,
		DataRate:   "SF10BW125",
		RSSI:       -104,
		SNR:        5.5,
		ReceivedAt: time.Now().UnixMilli(),
	}
}

func TestValidateFrameEventPayload_Valid(t *testing.T) {
	t.Parallel()

	if err := ValidateFrameEventPayload(validPayload()); err != nil {
		t.Errorf("Valid payload rejected: %v", err)
	}
}

func TestValidateFrameEventPayload_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*FrameEventPayload)
	}{
		{"missing gateway EUI", func(p *FrameEventPayload) { p.GatewayEUI = "" }},
		{"short gateway EUI", func(p *FrameEventPayload) { p.GatewayEUI = "aa555a" }},
		{"non-hex gateway EUI", func(p *FrameEventPayload) { p.GatewayEUI = "zz555a0000000101" }},
		{"missing dev_addr", func(p *FrameEventPayload) { p.DevAddr = "" }},
		{"short dev_addr", func(p *FrameEventPayload) { p.DevAddr = "0102aa" }},
		{"f_port out of range", func(p *FrameEventPayload) { p.FPort = 300 }},
		{"payload too long", func(p *FrameEventPayload) { p.Payload = make([]byte, 300) }},
		{"zero freq", func(p *FrameEventPayload) { p.Freq = 0 }},
		{"missing data rate", func(p *FrameEventPayload) { p.DataRate = "" }},
		{"data rate too long", func(p *FrameEventPayload) { p.DataRate = strings.Repeat("x", 20) }},
		{"missing received_at", func(p *FrameEventPayload) { p.ReceivedAt = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			payload := validPayload()
			tt.mutate(&payload)

			if err := ValidateFrameEventPayload(payload); err == nil {
				t.Error("Expected validation error, got nil")
			}
		})
	}
}

func TestIsHex(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  bool
	}{
		{"0102aabb", true},
		{"ABCDEF01", true},
		{"0102aagg", false},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := isHex(tt.input); got != tt.want {
				t.Errorf("isHex(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
