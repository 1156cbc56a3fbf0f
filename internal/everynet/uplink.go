package everynet

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lktlns/lktlns/internal/gateway"
	"github.com/lktlns/lktlns/internal/lorawan"
	"github.com/lktlns/lktlns/internal/model"
)

// NewUplinkMessage converts a received rxpk plus its decrypted payload
// into the Everynet uplink envelope published to the broker.
func NewUplinkMessage(rx gateway.Rxpk, gatewayEUI string, device *model.Device, port int, counter uint32, decrypted []byte) (*Message, error) {
	dr, err := lorawan.ParseDataRate(rx.Datr)
	if err != nil {
		return nil, fmt.Errorf("uplink data rate: %w", err)
	}

	rxpkJSON, err := json.Marshal(rx)
	if err != nil {
		return nil, fmt.Errorf("encode rxpk: %w", err)
	}

	meta := Meta{
		Application: device.AppEUI,
		Device:      device.DevEUI,
		DeviceAddr:  device.DevAddr,
		Gateway:     gatewayEUI,
		Time:        float64(time.Now().UnixNano()) / float64(time.Second),
		PacketID:    PacketID(rxpkJSON),
		PacketHash:  NewPacketHash(),
		Version:     1,
	}

	params := UplinkParams{
		Port:             port,
		Payload:          base64.StdEncoding.EncodeToString(decrypted),
		EncryptedPayload: rx.Data,
		RxTime:           float64(rx.Tmst),
		CounterUp:        int(counter),
		Radio: &Radio{
			Freq: rx.Freq,
			Size: rx.Size,
			Hardware: &Hardware{
				Status:  1,
				Chain:   rx.RFCh,
				Tmst:    rx.Tmst,
				SNR:     rx.LSNR,
				RSSI:    rx.RSSI,
				Channel: rx.Chan,
			},
			Modulation: &Modulation{
				Bandwidth: dr.Bandwidth(),
				Type:      rx.Modu,
				Coderate:  rx.Codr,
				Spreading: dr.SpreadingFactor(),
			},
		},
		LoRa: &LoRaParams{
			Header: LoRaHeader{
				Version:  1,
				LoRaType: 2,
			},
			MACCommands: []map[string]any{},
		},
	}

	return NewMessage(TypeUplink, meta, params)
}
