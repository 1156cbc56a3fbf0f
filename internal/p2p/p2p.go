// Package p2p handles raw LoRa frames exchanged outside the LoRaWAN MAC.
// Devices below the frequency cutoff speak a minimal framing: a one-byte
// counter, a three-byte node ID, then opaque data.
package p2p

import (
	"errors"

	"github.com/lktlns/lktlns/internal/gateway"
)

const (
	// MinFrameLen is counter plus node ID.
	MinFrameLen = 4

	// DownlinkFreq is the fixed transmit frequency in MHz.
	DownlinkFreq = 904.0

	// DownlinkDataRate is the fixed transmit data rate.
	DownlinkDataRate = "SF11BW500"

	// downlinkDelay is the transmit offset from the uplink timestamp.
	downlinkDelay = 1_000_000 // microseconds
)

// ErrFrameTooShort indicates a frame shorter than the fixed header.
var ErrFrameTooShort = errors.New("p2p: frame too short")

// DefaultEchoPayload is sent back when no application payload is queued.
var DefaultEchoPayload = []byte("0123456789")

// Frame is a parsed peer-to-peer uplink.
type Frame struct {
	Counter byte
	NodeID  [3]byte
	Data    []byte
}

// ParseFrame decodes the raw frame bytes.
func ParseFrame(raw []byte) (*Frame, error) {
	if len(raw) < MinFrameLen {
		return nil, ErrFrameTooShort
	}

	frame := &Frame{Counter: raw[0]}
	copy(frame.NodeID[:], raw[1:4])
	frame.Data = raw[4:]
	return frame, nil
}

// EncodeFrame builds the raw frame bytes for a downlink.
func EncodeFrame(counter byte, nodeID [3]byte, data []byte) []byte {
	out := make([]byte, 0, MinFrameLen+len(data))
	out = append(out, counter)
	out = append(out, nodeID[:]...)
	out = append(out, data...)
	return out
}

// BuildDownlink produces the transmit descriptor answering an uplink.
// The reply echoes the device's counter and node ID one second after
// reception, without polarity inversion since the peer listens for
// uplink-polarity frames.
func (f *Frame) BuildDownlink(rx gateway.Rxpk, payload []byte) gateway.Txpk {
	if payload == nil {
		payload = DefaultEchoPayload
	}

	raw := EncodeFrame(f.Counter, f.NodeID, payload)

	tx := gateway.NewTxpk()
	tx.Tmst = rx.Tmst + downlinkDelay
	if rx.Tmms != nil {
		tmms := *rx.Tmms + 1
		tx.Tmms = &tmms
	}
	tx.Freq = DownlinkFreq
	tx.Datr = DownlinkDataRate
	tx.IPol = false
	tx.SetData(raw)
	return tx
}
