// Package integration delivers device events to per-application HTTP
// endpoints with HMAC signing and retries.
package integration

import "errors"

// Sentinel errors for integration operations.
var (
	ErrEndpointNotFound = errors.New("integration endpoint not found")
	ErrDeliveryNotFound = errors.New("integration delivery not found")
)
