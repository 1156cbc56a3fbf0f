package model

import "time"

// UplinkFrame is a bridged uplink as persisted and exposed over the
// admin API. Payload is the decrypted application payload.
type UplinkFrame struct {
	ID         string    `json:"id"`
	GatewayEUI string    `json:"gateway_eui"`
	DevAddr    string    `json:"dev_addr"`
	DevEUI     string    `json:"dev_eui"`
	AppEUI     string    `json:"app_eui"`
	FCnt       uint32    `json:"f_cnt"`
	FPort      int       `json:"f_port"`
	Payload    []byte    `json:"payload"`
	Freq       float64   `json:"freq"`
	DataRate   string    `json:"data_rate"`
	RSSI       float64   `json:"rssi"`
	SNR        float64   `json:"snr"`
	Duplicate  bool      `json:"duplicate"`
	RawFrame   []byte    `json:"-"` // original PHYPayload
	ReceivedAt time.Time `json:"received_at"`
}

// DeviceActivity aggregates frame volume per device session for the
// admin stats endpoint.
type DeviceActivity struct {
	DevAddr  string    `json:"dev_addr"`
	Frames   int64     `json:"frames"`
	LastSeen time.Time `json:"last_seen"`
}
