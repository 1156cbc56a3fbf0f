// Package mqtt wraps the paho client for the bridge's broker connection.
package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/lktlns/lktlns/internal/metrics"
)

const (
	// ConnectTimeout bounds the initial broker handshake.
	ConnectTimeout = 10 * time.Second

	// PublishTimeout bounds a single publish token wait.
	PublishTimeout = 5 * time.Second

	// KeepAlive is the MQTT keep-alive interval.
	KeepAlive = 60 * time.Second
)

// ErrNotConnected is returned when publishing without a broker connection.
var ErrNotConnected = errors.New("mqtt: not connected")

// Options configures the broker connection.
type Options struct {
	Host     string
	Port     int
	Username string
	Password string
	UseTLS   bool
}

// MessageHandler receives payloads from subscribed topics.
type MessageHandler func(topic string, payload []byte)

// Client is a thin wrapper over the paho client with logging and metrics.
type Client struct {
	client  paho.Client
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewClient creates a configured but unconnected Client.
func NewClient(opts Options, logger *slog.Logger, recorder metrics.Recorder) *Client {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}

	clientID := fmt.Sprintf("LNS_%06d", rand.Intn(900000)+100000)

	scheme := "tcp"
	if opts.UseTLS {
		scheme = "ssl"
	}
	broker := fmt.Sprintf("%s://%s:%d", scheme, opts.Host, opts.Port)

	log := logger.With("component", "mqtt.client", "broker", broker, "client_id", clientID)

	pahoOpts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetUsername(opts.Username).
		SetPassword(opts.Password).
		SetKeepAlive(KeepAlive).
		SetAutoReconnect(true).
		SetConnectTimeout(ConnectTimeout)

	if opts.UseTLS {
		pahoOpts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	pahoOpts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		log.Warn("mqtt connection lost", "error", err)
	})
	pahoOpts.SetOnConnectHandler(func(_ paho.Client) {
		log.Info("mqtt connected")
	})

	return &Client{
		client:  paho.NewClient(pahoOpts),
		logger:  log,
		metrics: recorder,
	}
}

// Connect establishes the broker connection, honoring ctx cancellation.
func (c *Client) Connect(ctx context.Context) error {
	token := c.client.Connect()
	if err := waitToken(ctx, token); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

// Publish sends a payload at QoS 0. The uplink path tolerates loss, a
// dropped publish is counted rather than retried.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	if !c.client.IsConnected() {
		c.metrics.IncMQTTPublished("dropped")
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, PublishTimeout)
	defer cancel()

	token := c.client.Publish(topic, 0, false, payload)
	if err := waitToken(ctx, token); err != nil {
		c.metrics.IncMQTTPublished("dropped")
		return fmt.Errorf("mqtt publish: %w", err)
	}

	c.metrics.IncMQTTPublished("success")
	c.logger.Debug("message published", "topic", topic, "bytes", len(payload))
	return nil
}

// Subscribe registers a handler for a topic at QoS 0.
func (c *Client) Subscribe(ctx context.Context, topic string, handler MessageHandler) error {
	token := c.client.Subscribe(topic, 0, func(_ paho.Client, msg paho.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if err := waitToken(ctx, token); err != nil {
		return fmt.Errorf("mqtt subscribe %q: %w", topic, err)
	}

	c.logger.Info("subscribed", "topic", topic)
	return nil
}

// Connected reports whether the broker connection is up.
func (c *Client) Connected() bool {
	return c.client.IsConnected()
}

// Shutdown disconnects from the broker, waiting briefly for in-flight work.
// It implements server.ShutdownFunc for integration with graceful shutdown.
func (c *Client) Shutdown(ctx context.Context) error {
	quiesce := uint(250)
	if deadline, ok := ctx.Deadline(); ok {
		if ms := time.Until(deadline).Milliseconds(); ms > 0 && ms < int64(quiesce) {
			quiesce = uint(ms)
		}
	}
	c.client.Disconnect(quiesce)
	c.logger.Info("mqtt disconnected")
	return nil
}

// waitToken waits for a paho token, respecting context cancellation.
func waitToken(ctx context.Context, token paho.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
