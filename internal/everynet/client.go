package everynet

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lktlns/lktlns/internal/model"
)

// Client timeouts for registry calls.
const (
	clientTimeout         = 30 * time.Second
	dialTimeout           = 10 * time.Second
	tlsHandshakeTimeout   = 10 * time.Second
	responseHeaderTimeout = 15 * time.Second
)

// Column is a registry filter column.
type Column string

const (
	// ColumnDeviceAddress filters by DevAddr.
	ColumnDeviceAddress Column = "device_address"
	// ColumnDevEUI filters by DevEUI.
	ColumnDevEUI Column = "dev_eui"
)

// Client talks to the Everynet-style device registry HTTP API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a registry client with bearer-token auth.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http: &http.Client{
			Timeout: clientTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   dialTimeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   tlsHandshakeTimeout,
				ResponseHeaderTimeout: responseHeaderTimeout,
				MaxIdleConns:          10,
				IdleConnTimeout:       90 * time.Second,
			},
		},
	}
}

// deviceRecord is the registry's wire representation of a device.
type deviceRecord struct {
	DevEUI  string `json:"dev_eui"`
	AppEUI  string `json:"app_eui"`
	DevAddr string `json:"dev_addr"`
	NwkSKey string `json:"nwkskey"`
	AppSKey string `json:"appskey"`
}

// Devices fetches the full device list, keyed by lowercase DevAddr.
func (c *Client) Devices(ctx context.Context) (map[string]*model.Device, error) {
	return c.DevicesBy(ctx, "", "")
}

// DevicesBy fetches devices filtered by a registry column value.
func (c *Client) DevicesBy(ctx context.Context, column Column, value string) (map[string]*model.Device, error) {
	endpoint := c.baseURL + "/devices"
	if column != "" {
		endpoint += "?" + url.Values{string(column): []string{value}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build registry request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registry request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("registry returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var records []deviceRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode registry response: %w", err)
	}

	devices := make(map[string]*model.Device, len(records))
	for _, rec := range records {
		if rec.DevAddr == "" {
			continue
		}
		addr := strings.ToLower(rec.DevAddr)
		devices[addr] = &model.Device{
			DevEUI:  strings.ToLower(rec.DevEUI),
			AppEUI:  strings.ToLower(rec.AppEUI),
			DevAddr: addr,
			NwkSKey: rec.NwkSKey,
			AppSKey: rec.AppSKey,
		}
	}
	return devices, nil
}
