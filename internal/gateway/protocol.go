// Package gateway implements the Semtech UDP packet-forwarder protocol
// spoken between LoRa gateways and the network server.
package gateway

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// Default UDP ports, matching the container's exposed port declarations.
const (
	// DefaultUplinkPort receives PUSH_DATA from gateways.
	DefaultUplinkPort = 1730
	// DefaultDownlinkPort receives PULL_DATA and TX_ACK, and is where
	// PULL_RESP is sent from.
	DefaultDownlinkPort = 1700
)

// ProtocolVersion is the packet-forwarder protocol version byte.
const ProtocolVersion = 0x02

// HeaderLen is the fixed header size: version, token, type, gateway EUI.
const HeaderLen = 12

// PacketType identifies a packet-forwarder datagram.
type PacketType byte

const (
	PushData PacketType = iota
	PushACK
	PullData
	PullResp
	PullACK
	TXACK
)

// String returns the conventional upper-case packet type name.
func (t PacketType) String() string {
	switch t {
	case PushData:
		return "PUSH_DATA"
	case PushACK:
		return "PUSH_ACK"
	case PullData:
		return "PULL_DATA"
	case PullResp:
		return "PULL_RESP"
	case PullACK:
		return "PULL_ACK"
	case TXACK:
		return "TX_ACK"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", byte(t))
	}
}

var (
	// ErrPacketTooShort indicates a datagram below the header size.
	ErrPacketTooShort = errors.New("datagram shorter than header")
	// ErrUnknownPacketType indicates an unrecognized type byte.
	ErrUnknownPacketType = errors.New("unknown packet type")
)

// EUI64 is a gateway identifier.
type EUI64 [8]byte

// ParseEUI64 decodes a 16-char hex gateway EUI.
func ParseEUI64(s string) (EUI64, error) {
	var eui EUI64
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(eui) {
		return eui, fmt.Errorf("invalid gateway EUI %q", s)
	}
	copy(eui[:], b)
	return eui, nil
}

// String returns the hex encoding of the EUI.
func (e EUI64) String() string {
	return hex.EncodeToString(e[:])
}

// Packet is a parsed packet-forwarder datagram.
type Packet struct {
	Version    byte
	Token      [2]byte
	Type       PacketType
	GatewayEUI EUI64
	Payload    []byte // raw JSON body, empty for header-only packets
}

// ParsePacket splits a datagram into header fields and the JSON body.
func ParsePacket(data []byte) (*Packet, error) {
	if len(data) < HeaderLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrPacketTooShort, len(data))
	}
	if data[3] > byte(TXACK) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPacketType, data[3])
	}

	pkt := &Packet{
		Version: data[0],
		Type:    PacketType(data[3]),
	}
	copy(pkt.Token[:], data[1:3])
	copy(pkt.GatewayEUI[:], data[4:12])
	if len(data) > HeaderLen {
		pkt.Payload = data[HeaderLen:]
	}
	return pkt, nil
}

// UplinkPayload decodes the rxpk body of a PUSH_DATA packet.
func (p *Packet) UplinkPayload() (*PushPayload, error) {
	if len(p.Payload) == 0 {
		return nil, nil
	}
	var payload PushPayload
	if err := json.Unmarshal(p.Payload, &payload); err != nil {
		return nil, fmt.Errorf("decode rxpk payload: %w", err)
	}
	return &payload, nil
}

// BuildACK builds the acknowledgement header for a received packet,
// echoing its version, token and gateway EUI.
func BuildACK(version byte, token [2]byte, ackType PacketType, eui EUI64) []byte {
	out := make([]byte, 0, HeaderLen)
	out = append(out, version, token[0], token[1], byte(ackType))
	out = append(out, eui[:]...)
	return out
}

// BuildPullResp wraps a Txpk in a PULL_RESP datagram addressed to the
// gateway that issued the PULL_DATA token.
func BuildPullResp(token [2]byte, eui EUI64, txpk Txpk) ([]byte, error) {
	body, err := json.Marshal(PullRespPayload{Txpk: txpk})
	if err != nil {
		return nil, fmt.Errorf("encode txpk: %w", err)
	}
	out := make([]byte, 0, HeaderLen+len(body))
	out = append(out, ProtocolVersion, token[0], token[1], byte(PullResp))
	out = append(out, eui[:]...)
	out = append(out, body...)
	return out, nil
}
