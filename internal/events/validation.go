package events

import "fmt"

const (
	devAddrHexLength   = 8
	maxPayloadLength   = 256
	maxDataRateLength  = 16
	maxFrequencyMHz    = 1000
	gatewayEUIHexChars = 16
)

// ValidateFrameEventPayload validates frame event payload fields.
func ValidateFrameEventPayload(payload FrameEventPayload) error {
	if payload.GatewayEUI == "" {
		return fmt.Errorf("gateway EUI is required")
	}
	if len(payload.GatewayEUI) != gatewayEUIHexChars || !isHex(payload.GatewayEUI) {
		return fmt.Errorf("gateway EUI must be %d hex chars", gatewayEUIHexChars)
	}
	if len(payload.DevAddr) != devAddrHexLength || !isHex(payload.DevAddr) {
		return fmt.Errorf("dev_addr must be %d hex chars", devAddrHexLength)
	}
	if payload.FPort < 0 || payload.FPort > 255 {
		return fmt.Errorf("f_port out of range")
	}
	if len(payload.Payload) > maxPayloadLength {
		return fmt.Errorf("payload too long")
	}
	if payload.Freq <= 0 || payload.Freq > maxFrequencyMHz {
		return fmt.Errorf("freq out of range")
	}
	if payload.DataRate == "" || len(payload.DataRate) > maxDataRateLength {
		return fmt.Errorf("data rate is required")
	}
	if payload.ReceivedAt <= 0 {
		return fmt.Errorf("received_at must be set")
	}
	return nil
}

func isHex(value string) bool {
	for i := 0; i < len(value); i++ {
		ch := value[i]
		if (ch >= '0' && ch <= '9') || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F') {
			continue
		}
		return false
	}
	return true
}
