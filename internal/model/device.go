// Package model defines domain entities for the application.
package model

import (
	"errors"
	"strings"
	"time"

	"github.com/lktlns/lktlns/internal/lorawan"
)

// ErrMissingSessionKeys indicates a device record without ABP session keys.
var ErrMissingSessionKeys = errors.New("device has no session keys")

// Device is a provisioned end device as known by the registry.
// Sessions are ABP: the registry hands out the DevAddr and both session
// keys directly.
type Device struct {
	DevEUI     string     `json:"dev_eui"`
	AppEUI     string     `json:"app_eui"`
	DevAddr    string     `json:"dev_addr"` // big-endian hex, lowercase
	NwkSKey    string     `json:"-"`        // never serialize key material
	AppSKey    string     `json:"-"`
	Tags       []string   `json:"tags,omitempty"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
}

// Addr parses the device address.
func (d *Device) Addr() (lorawan.DevAddr, error) {
	return lorawan.ParseDevAddr(strings.ToLower(d.DevAddr))
}

// SessionKeys parses both session keys.
func (d *Device) SessionKeys() (nwkSKey, appSKey lorawan.AES128Key, err error) {
	if d.NwkSKey == "" || d.AppSKey == "" {
		return nwkSKey, appSKey, ErrMissingSessionKeys
	}
	if nwkSKey, err = lorawan.ParseKey(d.NwkSKey); err != nil {
		return nwkSKey, appSKey, err
	}
	appSKey, err = lorawan.ParseKey(d.AppSKey)
	return nwkSKey, appSKey, err
}

// CachedDevice is the device representation stored in the Redis hash.
// String fields only, for Redis hash compatibility.
type CachedDevice struct {
	DevEUI  string `redis:"dev_eui"`
	AppEUI  string `redis:"app_eui"`
	DevAddr string `redis:"dev_addr"`
	NwkSKey string `redis:"nwkskey"`
	AppSKey string `redis:"appskey"`
}

// ToDevice converts the cached form back to a Device.
func (c *CachedDevice) ToDevice() *Device {
	return &Device{
		DevEUI:  c.DevEUI,
		AppEUI:  c.AppEUI,
		DevAddr: c.DevAddr,
		NwkSKey: c.NwkSKey,
		AppSKey: c.AppSKey,
	}
}

// FromDevice converts a Device into its cached form.
func FromDevice(d *Device) *CachedDevice {
	return &CachedDevice{
		DevEUI:  d.DevEUI,
		AppEUI:  d.AppEUI,
		DevAddr: d.DevAddr,
		NwkSKey: d.NwkSKey,
		AppSKey: d.AppSKey,
	}
}
