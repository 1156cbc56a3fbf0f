// Package upstream serves the gateway's PUSH side: it receives uplink
// datagrams, resolves device sessions, decrypts payloads and bridges
// them to the MQTT broker and the persistence pipeline.
package upstream

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lktlns/lktlns/internal/cache"
	"github.com/lktlns/lktlns/internal/everynet"
	"github.com/lktlns/lktlns/internal/metrics"
	"github.com/lktlns/lktlns/internal/model"
)

// DefaultRefreshInterval is how often the full registry snapshot is
// refetched while traffic is flowing.
const DefaultRefreshInterval = 60 * time.Second

// ErrDeviceNotFound indicates the registry does not know the DevAddr.
var ErrDeviceNotFound = errors.New("device not provisioned")

// registryClient is the subset of the registry API the store needs.
type registryClient interface {
	Devices(ctx context.Context) (map[string]*model.Device, error)
	DevicesBy(ctx context.Context, column everynet.Column, value string) (map[string]*model.Device, error)
}

// sessionCache is the subset of the Redis cache the store needs.
type sessionCache interface {
	GetDevice(ctx context.Context, devAddr string) (*model.Device, error)
	SetDevice(ctx context.Context, device *model.Device) error
	SetDevices(ctx context.Context, devices map[string]*model.Device) error
}

// DeviceStore resolves DevAddrs to provisioned device sessions. It keeps
// an in-memory snapshot of the registry, refreshed periodically, with
// Redis as a shared second level and an on-demand registry lookup for
// devices provisioned after the last refresh.
type DeviceStore struct {
	client          registryClient
	cache           sessionCache
	logger          *slog.Logger
	metrics         metrics.Recorder
	refreshInterval time.Duration

	mu          sync.RWMutex
	devices     map[string]*model.Device
	lastRefresh time.Time
}

// NewDeviceStore creates a store. cache may be nil when Redis is not
// configured.
func NewDeviceStore(client *everynet.Client, sessions *cache.Cache, logger *slog.Logger, recorder metrics.Recorder) *DeviceStore {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	store := &DeviceStore{
		client:          client,
		logger:          logger.With("component", "upstream.devices"),
		metrics:         recorder,
		refreshInterval: DefaultRefreshInterval,
		devices:         make(map[string]*model.Device),
	}
	if sessions != nil {
		store.cache = sessions
	}
	return store
}

// SetRefreshInterval overrides the default snapshot refresh interval.
func (s *DeviceStore) SetRefreshInterval(interval time.Duration) {
	if interval > 0 {
		s.refreshInterval = interval
	}
}

// Refresh replaces the in-memory snapshot with the registry's current
// device list.
func (s *DeviceStore) Refresh(ctx context.Context) error {
	devices, err := s.client.Devices(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.devices = devices
	s.lastRefresh = time.Now()
	s.mu.Unlock()

	s.logger.Info("device list updated", "devices", len(devices))

	if s.cache != nil {
		if err := s.cache.SetDevices(ctx, devices); err != nil {
			s.logger.Warn("failed to warm device cache", "error", err)
		}
	}
	return nil
}

// MaybeRefresh refreshes the snapshot when it has gone stale. Errors are
// logged, a stale snapshot is still usable.
func (s *DeviceStore) MaybeRefresh(ctx context.Context) {
	s.mu.RLock()
	stale := time.Since(s.lastRefresh) > s.refreshInterval
	s.mu.RUnlock()
	if !stale {
		return
	}

	if err := s.Refresh(ctx); err != nil {
		s.logger.Error("failed to update device list", "error", err)
	}
}

// Lookup resolves a device session by DevAddr, trying the snapshot, the
// shared cache, then a targeted registry query for a just-provisioned
// device.
func (s *DeviceStore) Lookup(ctx context.Context, devAddr string) (*model.Device, error) {
	devAddr = strings.ToLower(devAddr)

	s.mu.RLock()
	device, ok := s.devices[devAddr]
	s.mu.RUnlock()
	if ok {
		s.metrics.IncDeviceCacheHit()
		return device, nil
	}

	if s.cache != nil {
		cached, err := s.cache.GetDevice(ctx, devAddr)
		if err == nil && cached != nil {
			s.metrics.IncDeviceCacheHit()
			s.remember(devAddr, cached)
			return cached, nil
		}
		if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("device cache lookup failed", "dev_addr", devAddr, "error", err)
		}
	}

	s.metrics.IncDeviceCacheMiss()

	fetched, err := s.client.DevicesBy(ctx, everynet.ColumnDeviceAddress, devAddr)
	if err != nil {
		return nil, err
	}
	device, ok = fetched[devAddr]
	if !ok {
		return nil, ErrDeviceNotFound
	}

	s.remember(devAddr, device)
	if s.cache != nil {
		if err := s.cache.SetDevice(ctx, device); err != nil {
			s.logger.Warn("failed to cache device", "dev_addr", devAddr, "error", err)
		}
	}
	return device, nil
}

func (s *DeviceStore) remember(devAddr string, device *model.Device) {
	s.mu.Lock()
	s.devices[devAddr] = device
	s.mu.Unlock()
}

// Devices returns the devices currently in the snapshot, sorted by
// DevAddr for stable listings.
func (s *DeviceStore) Devices() []*model.Device {
	s.mu.RLock()
	devices := make([]*model.Device, 0, len(s.devices))
	for _, device := range s.devices {
		devices = append(devices, device)
	}
	s.mu.RUnlock()

	sort.Slice(devices, func(i, j int) bool {
		return devices[i].DevAddr < devices[j].DevAddr
	})
	return devices
}
