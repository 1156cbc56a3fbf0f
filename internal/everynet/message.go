// Package everynet implements the Everynet-style message format and the
// device registry HTTP API the bridge talks to.
package everynet

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies an Everynet MQTT message.
type MessageType string

const (
	TypeUplink           MessageType = "uplink"
	TypeDownlink         MessageType = "downlink"
	TypeDownlinkRequest  MessageType = "downlink_request"
	TypeDownlinkResponse MessageType = "downlink_response"
	TypeError            MessageType = "error"
)

// Meta carries the message routing and identity fields.
type Meta struct {
	Application string  `json:"application,omitempty"` // AppEUI
	Device      string  `json:"device,omitempty"`      // DevEUI
	DeviceAddr  string  `json:"device_addr,omitempty"`
	Gateway     string  `json:"gateway,omitempty"` // gateway EUI
	Network     string  `json:"network,omitempty"`
	PacketID    string  `json:"packet_id,omitempty"`
	PacketHash  string  `json:"packet_hash,omitempty"`
	Time        float64 `json:"time,omitempty"` // unix seconds
	Version     int     `json:"version,omitempty"`
	History     bool    `json:"history,omitempty"`
	Outdated    bool    `json:"outdated,omitempty"`
}

// GPS is a gateway position.
type GPS struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Hardware describes the receive-side radio hardware state.
type Hardware struct {
	Status  int     `json:"status"`
	Chain   int     `json:"chain"`
	Tmst    uint32  `json:"tmst"`
	SNR     float64 `json:"snr"`
	RSSI    float64 `json:"rssi"`
	Channel int     `json:"channel"`
	GPS     *GPS    `json:"gps,omitempty"`
}

// Modulation describes the LoRa modulation parameters.
type Modulation struct {
	Bandwidth int    `json:"bandwidth"`
	Type      string `json:"type"`
	Coderate  string `json:"coderate"`
	Spreading int    `json:"spreading"`
	Inverted  bool   `json:"inverted,omitempty"`
}

// Radio describes the radio conditions of an uplink.
type Radio struct {
	Freq       float64     `json:"freq"`
	Datarate   int         `json:"datarate"`
	Time       float64     `json:"time"`
	Hardware   *Hardware   `json:"hardware,omitempty"`
	Modulation *Modulation `json:"modulation,omitempty"`
	Delay      float64     `json:"delay,omitempty"`
	Size       int         `json:"size,omitempty"`
}

// LoRaHeader mirrors the MAC header flags of the bridged frame.
type LoRaHeader struct {
	ClassB    bool `json:"class_b"`
	Confirmed bool `json:"confirmed"`
	ADR       bool `json:"adr"`
	ADRAckReq bool `json:"adr_ack_req"`
	ACK       bool `json:"ack"`
	Version   int  `json:"version"`
	LoRaType  int  `json:"lora_type"`
}

// LoRaParams groups the MAC-level metadata of an uplink.
type LoRaParams struct {
	Header      LoRaHeader       `json:"header"`
	MACCommands []map[string]any `json:"mac_commands"`
}

// UplinkParams is the params body of an uplink message.
type UplinkParams struct {
	Port             int         `json:"port"`
	Payload          string      `json:"payload"` // base64 decrypted payload
	EncryptedPayload string      `json:"encrypted_payload"`
	RxTime           float64     `json:"rx_time"`
	CounterUp        int         `json:"counter_up"`
	Duplicate        bool        `json:"duplicate"`
	Radio            *Radio      `json:"radio,omitempty"`
	LoRa             *LoRaParams `json:"lora,omitempty"`
}

// DownlinkParams is the params body of a downlink command message.
type DownlinkParams struct {
	Port             int     `json:"port"`
	Payload          string  `json:"payload"` // base64 application payload
	EncryptedPayload string  `json:"encrypted_payload,omitempty"`
	Freq             float64 `json:"freq,omitempty"`
	Datarate         string  `json:"datarate,omitempty"`
	Time             float64 `json:"time,omitempty"`
	CounterDown      int     `json:"counter_down,omitempty"`
	Confirmed        bool    `json:"confirmed,omitempty"`
}

// DownlinkRequestParams is the params body of a downlink_request message.
type DownlinkRequestParams struct {
	CounterDown int     `json:"counter_down"`
	MaxSize     int     `json:"max_size"`
	TxTime      float64 `json:"tx_time"`
}

// DownlinkResponseParams is the params body of a downlink_response message.
type DownlinkResponseParams struct {
	Pending          bool   `json:"pending"`
	Confirmed        bool   `json:"confirmed"`
	CounterDown      int    `json:"counter_down"`
	Port             int    `json:"port"`
	Payload          string `json:"payload"`
	EncryptedPayload string `json:"encrypted_payload,omitempty"`
	QueueIfLate      bool   `json:"queue_if_late"`
}

// ErrorParams is the params body of an error message.
type ErrorParams struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// Message is the Everynet MQTT envelope. Params is kept raw so the
// envelope can be decoded before the type is known.
type Message struct {
	Type   MessageType     `json:"type"`
	Meta   Meta            `json:"meta"`
	Params json.RawMessage `json:"params"`
}

// NewMessage builds an envelope with the params encoded in place.
func NewMessage(t MessageType, meta Meta, params any) (*Message, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}
	return &Message{Type: t, Meta: meta, Params: raw}, nil
}

// DecodeParams unmarshals the params body into the given struct.
func (m *Message) DecodeParams(v any) error {
	if len(m.Params) == 0 {
		return fmt.Errorf("message has no params")
	}
	if err := json.Unmarshal(m.Params, v); err != nil {
		return fmt.Errorf("decode %s params: %w", m.Type, err)
	}
	return nil
}

// PacketID derives the deterministic 16-hex-char packet identifier from
// the raw rxpk JSON the packet came in with.
func PacketID(rxpkJSON []byte) string {
	sum := sha256.Sum256(rxpkJSON)
	return hex.EncodeToString(sum[:])[:16]
}

// NewPacketHash returns a random 16-byte hex packet hash.
func NewPacketHash() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failing is unrecoverable; fall back to the clock
		// so the hash is still unique enough for correlation.
		return fmt.Sprintf("%032x", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
