package lorawan

import (
	"errors"
	"fmt"
)

// P2PCutoffMHz separates raw point-to-point traffic from LoRaWAN frames.
// Anything received below this frequency is not LoRaWAN.
const P2PCutoffMHz = 903.5

// The deployment's channel plan: eight 125 kHz uplink channels map
// index-wise onto eight 500 kHz downlink channels.
var (
	uplinkChannels   [8]string
	downlinkChannels [8]float64
)

func init() {
	for i := 0; i < 8; i++ {
		uplinkChannels[i] = fmt.Sprintf("%.1f", 915.2+float64(i)*0.2)
		downlinkChannels[i] = 923.3 + float64(i)*0.6
	}
}

// ErrUnknownChannel indicates an uplink frequency outside the plan.
var ErrUnknownChannel = errors.New("frequency not in uplink channel plan")

// DownlinkFrequency maps an uplink channel frequency (MHz) to its paired
// downlink channel. Matching is done at one-decimal precision, the
// resolution the packet forwarder reports.
func DownlinkFrequency(uplink float64) (float64, error) {
	key := fmt.Sprintf("%.1f", uplink)
	for i, ch := range uplinkChannels {
		if ch == key {
			return downlinkChannels[i], nil
		}
	}
	return 0, fmt.Errorf("%w: %s MHz", ErrUnknownChannel, key)
}

// IsP2P reports whether a received frequency belongs to the
// point-to-point band rather than the LoRaWAN plan.
func IsP2P(freq float64) bool {
	return freq < P2PCutoffMHz
}
