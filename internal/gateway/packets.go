package gateway

import "encoding/base64"

// Rxpk is a received radio packet as reported by the packet forwarder.
type Rxpk struct {
	Jver  int     `json:"jver,omitempty"` // JSON structure version
	Tmst  uint32  `json:"tmst"`           // concentrator timestamp, microseconds
	Tmms  *int64  `json:"tmms,omitempty"` // GPS time, milliseconds since epoch
	Chan  int     `json:"chan"`           // concentrator IF channel
	RFCh  int     `json:"rfch"`           // concentrator RF chain
	Freq  float64 `json:"freq"`           // RX frequency, MHz
	Mid   int     `json:"mid,omitempty"`  // message identifier
	Stat  int     `json:"stat"`           // CRC status: 1 OK, -1 fail, 0 none
	Modu  string  `json:"modu"`           // "LORA" or "FSK"
	Datr  string  `json:"datr"`           // data rate, e.g. SF10BW125
	Codr  string  `json:"codr"`           // coding rate, e.g. 4/5
	RSSIS float64 `json:"rssis,omitempty"`
	LSNR  float64 `json:"lsnr"` // SNR, dB
	FOff  int     `json:"foff,omitempty"`
	RSSI  float64 `json:"rssi"` // RSSI, dBm
	Size  int     `json:"size"` // payload size, bytes
	Data  string  `json:"data"` // base64 PHYPayload
}

// Txpk is a packet scheduled for transmission by the gateway.
type Txpk struct {
	Imme bool    `json:"imme"`           // immediate transmission
	Tmst uint32  `json:"tmst"`           // concentrator timestamp, microseconds
	Tmms *int64  `json:"tmms,omitempty"` // GPS time, milliseconds
	Freq float64 `json:"freq"`           // TX frequency, MHz
	RFCh int     `json:"rfch"`           // RF chain
	Powe int     `json:"powe"`           // TX power, dBm
	Datr string  `json:"datr"`           // data rate
	Modu string  `json:"modu"`           // modulation
	Codr string  `json:"codr"`           // coding rate
	IPol bool    `json:"ipol"`           // invert polarity
	Size int     `json:"size"`           // payload size, bytes
	Data string  `json:"data"`           // base64 PHYPayload
}

// NewTxpk returns a Txpk with the transmit defaults the gateways expect.
func NewTxpk() Txpk {
	return Txpk{
		Freq: 916.2,
		Powe: 12,
		Datr: "SF10BW500",
		Modu: "LORA",
		Codr: "4/5",
	}
}

// PHYPayload decodes the base64 radio payload.
func (r *Rxpk) PHYPayload() ([]byte, error) {
	return base64.StdEncoding.DecodeString(r.Data)
}

// SetData stores the radio payload, keeping Size consistent.
func (t *Txpk) SetData(raw []byte) {
	t.Data = base64.StdEncoding.EncodeToString(raw)
	t.Size = len(raw)
}

// PushPayload is the JSON body of a PUSH_DATA packet.
type PushPayload struct {
	Rxpk []Rxpk `json:"rxpk"`
}

// PullRespPayload is the JSON body of a PULL_RESP packet.
type PullRespPayload struct {
	Txpk Txpk `json:"txpk"`
}
