package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lktlns/lktlns/internal/model"
)

const (
	// deviceCachePrefix is the Redis key prefix for device session cache.
	deviceCachePrefix = "device:"
	// deviceCacheTTL bounds how long a registry snapshot stays usable
	// without a refresh.
	deviceCacheTTL = 30 * time.Minute
)

// ErrCacheMiss is returned when the requested device is not cached.
var ErrCacheMiss = errors.New("cache: device not found")

func deviceKey(devAddr string) string {
	return deviceCachePrefix + strings.ToLower(devAddr)
}

// GetDevice retrieves a cached device session by DevAddr.
// Returns ErrCacheMiss when no entry exists.
func (c *Cache) GetDevice(ctx context.Context, devAddr string) (*model.Device, error) {
	key := deviceKey(devAddr)

	res := c.client.HGetAll(ctx, key)
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("hgetall device: %w", err)
	}
	if len(res.Val()) == 0 {
		return nil, ErrCacheMiss
	}

	var cached model.CachedDevice
	if err := res.Scan(&cached); err != nil {
		return nil, fmt.Errorf("scan device: %w", err)
	}

	return cached.ToDevice(), nil
}

// SetDevice caches a device session keyed by its DevAddr.
func (c *Cache) SetDevice(ctx context.Context, device *model.Device) error {
	key := deviceKey(device.DevAddr)
	cached := model.FromDevice(device)

	pipe := c.client.Pipeline()
	pipe.HSet(ctx, key, cached)
	pipe.Expire(ctx, key, deviceCacheTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("hset device: %w", err)
	}
	return nil
}

// SetDevices caches a batch of device sessions in one round trip.
// Used when the registry snapshot is refreshed.
func (c *Cache) SetDevices(ctx context.Context, devices map[string]*model.Device) error {
	if len(devices) == 0 {
		return nil
	}

	pipe := c.client.Pipeline()
	for devAddr, device := range devices {
		key := deviceKey(devAddr)
		pipe.HSet(ctx, key, model.FromDevice(device))
		pipe.Expire(ctx, key, deviceCacheTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("hset devices: %w", err)
	}
	return nil
}
