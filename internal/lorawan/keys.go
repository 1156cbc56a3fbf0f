// Package lorawan implements the LoRaWAN 1.0 framing and session crypto
// used on the bridge: FRMPayload encryption, frame MIC, and PHYPayload
// parsing/building for ABP devices.
package lorawan

import (
	"encoding/hex"
	"errors"
	"fmt"
)

// Direction of a frame relative to the end device.
type Direction byte

const (
	// DirectionUp is device to network.
	DirectionUp Direction = 0
	// DirectionDown is network to device.
	DirectionDown Direction = 1
)

var (
	// ErrInvalidKey indicates a session key is not 16 bytes of hex.
	ErrInvalidKey = errors.New("session key must be 32 hex characters")
	// ErrInvalidDevAddr indicates a device address is not 4 bytes of hex.
	ErrInvalidDevAddr = errors.New("device address must be 8 hex characters")
)

// AES128Key is a LoRaWAN session key (NwkSKey or AppSKey).
type AES128Key [16]byte

// ParseKey decodes a hex-encoded session key.
func ParseKey(s string) (AES128Key, error) {
	var key AES128Key
	b, err := hex.DecodeString(s)
	if err != nil {
		return key, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(b) != len(key) {
		return key, ErrInvalidKey
	}
	copy(key[:], b)
	return key, nil
}

// String returns the hex encoding of the key.
func (k AES128Key) String() string {
	return hex.EncodeToString(k[:])
}

// DevAddr is a 4-byte device address, stored big-endian.
// The wire encoding inside frames is little-endian.
type DevAddr [4]byte

// ParseDevAddr decodes a big-endian hex device address (e.g. "26011f2a").
func ParseDevAddr(s string) (DevAddr, error) {
	var addr DevAddr
	b, err := hex.DecodeString(s)
	if err != nil {
		return addr, fmt.Errorf("%w: %v", ErrInvalidDevAddr, err)
	}
	if len(b) != len(addr) {
		return addr, ErrInvalidDevAddr
	}
	copy(addr[:], b)
	return addr, nil
}

// String returns the big-endian hex encoding, the form used as registry key.
func (a DevAddr) String() string {
	return hex.EncodeToString(a[:])
}

// littleEndian returns the wire (little-endian) byte order of the address.
func (a DevAddr) littleEndian() [4]byte {
	return [4]byte{a[3], a[2], a[1], a[0]}
}
