package lorawan

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// DataRate is a LoRa data rate identifier such as "SF10BW500".
type DataRate string

// Data rates DR0..DR13 for the US915-style channel plan.
const (
	DR0  DataRate = "SF12BW125"
	DR1  DataRate = "SF11BW125"
	DR2  DataRate = "SF10BW125"
	DR3  DataRate = "SF9BW125"
	DR4  DataRate = "SF8BW125"
	DR5  DataRate = "SF7BW125"
	DR6  DataRate = "SF8BW500"
	DR7  DataRate = "SF12BW500"
	DR8  DataRate = "SF12BW500"
	DR9  DataRate = "SF11BW500"
	DR10 DataRate = "SF10BW500"
	DR11 DataRate = "SF9BW500"
	DR12 DataRate = "SF8BW500"
	DR13 DataRate = "SF7BW500"
)

// ErrInvalidDataRate indicates a malformed data rate string.
var ErrInvalidDataRate = errors.New("invalid data rate")

var dataRatePattern = regexp.MustCompile(`^SF(\d{1,2})BW(\d{3})$`)

// ParseDataRate validates and returns a data rate identifier.
func ParseDataRate(s string) (DataRate, error) {
	m := dataRatePattern.FindStringSubmatch(s)
	if m == nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidDataRate, s)
	}
	sf, _ := strconv.Atoi(m[1])
	if sf < 7 || sf > 12 {
		return "", fmt.Errorf("%w: spreading factor %d", ErrInvalidDataRate, sf)
	}
	return DataRate(s), nil
}

// SpreadingFactor returns the SF component (7..12).
func (d DataRate) SpreadingFactor() int {
	m := dataRatePattern.FindStringSubmatch(string(d))
	if m == nil {
		return 0
	}
	sf, _ := strconv.Atoi(m[1])
	return sf
}

// Bandwidth returns the channel bandwidth in Hz.
func (d DataRate) Bandwidth() int {
	m := dataRatePattern.FindStringSubmatch(string(d))
	if m == nil {
		return 0
	}
	bw, _ := strconv.Atoi(m[2])
	return bw * 1000
}
