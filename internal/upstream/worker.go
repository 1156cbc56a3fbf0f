package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/lktlns/lktlns/internal/downstream"
	"github.com/lktlns/lktlns/internal/events"
	"github.com/lktlns/lktlns/internal/everynet"
	"github.com/lktlns/lktlns/internal/gateway"
	"github.com/lktlns/lktlns/internal/lorawan"
	"github.com/lktlns/lktlns/internal/metrics"
	"github.com/lktlns/lktlns/internal/model"
	"github.com/lktlns/lktlns/internal/p2p"
)

const (
	// readBufferSize fits any packet-forwarder datagram.
	readBufferSize = 4096

	// readDeadline bounds each blocking read so the loop can observe
	// context cancellation.
	readDeadline = time.Second

	// p2pReplyDelay is the wall-clock window for the peer-to-peer echo.
	p2pReplyDelay = time.Second

	// lorawanReplyDelay is the wall-clock window for a class-A downlink
	// scheduled against the uplink's concentrator timestamp.
	lorawanReplyDelay = 5 * time.Second

	// lorawanTmstOffset is the concentrator-clock offset of that window.
	lorawanTmstOffset = 5_000_000 // microseconds

	// DownlinkDataRate is the fixed class-A downlink data rate.
	DownlinkDataRate = "SF10BW500"
)

// DeviceResolver resolves device sessions by DevAddr.
type DeviceResolver interface {
	Lookup(ctx context.Context, devAddr string) (*model.Device, error)
	MaybeRefresh(ctx context.Context)
}

// Publisher sends bridged messages to the MQTT broker.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// EventSink accepts frame events for asynchronous persistence.
type EventSink interface {
	PublishAsync(event events.FrameEventPayload)
}

// uplinkContext remembers where a device was last heard, so a later
// downlink can be scheduled into its receive window.
type uplinkContext struct {
	GatewayEUI string
	Tmst       uint32
	Freq       float64
	At         time.Time
}

// Worker listens for PUSH_DATA datagrams on the uplink port and bridges
// application payloads to the broker.
type Worker struct {
	addr      string
	topic     string // broker topic for bridged uplinks
	devices   DeviceResolver
	publisher Publisher
	sink      EventSink
	scheduler *downstream.Scheduler
	logger    *slog.Logger
	metrics   metrics.Recorder

	conn net.PacketConn

	ctxMu       sync.Mutex
	lastUplinks map[string]uplinkContext
	countersMu  sync.Mutex
	countersDn  map[string]uint32

	started  bool
	draining bool
	cancel   context.CancelFunc
	done     chan struct{}
	mu       sync.Mutex
}

// NewWorker creates an upstream worker bound to addr, e.g. ":1730".
// sink may be nil when frame persistence is disabled.
func NewWorker(addr, topic string, devices DeviceResolver, publisher Publisher, sink EventSink, scheduler *downstream.Scheduler, logger *slog.Logger, recorder metrics.Recorder) *Worker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Worker{
		addr:        addr,
		topic:       topic,
		devices:     devices,
		publisher:   publisher,
		sink:        sink,
		scheduler:   scheduler,
		logger:      logger.With("component", "upstream.worker"),
		metrics:     recorder,
		lastUplinks: make(map[string]uplinkContext),
		countersDn:  make(map[string]uint32),
	}
}

// Run binds the UDP socket and serves uplinks until the context is
// cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return errors.New("worker already started")
	}
	w.started = true
	w.done = make(chan struct{})
	ctx, w.cancel = context.WithCancel(ctx)

	conn, err := net.ListenPacket("udp", w.addr)
	if err != nil {
		w.mu.Unlock()
		return fmt.Errorf("bind uplink socket: %w", err)
	}
	w.conn = conn
	w.mu.Unlock()

	defer close(w.done)
	defer conn.Close()

	w.logger.Info("upstream worker started", "addr", w.addr)

	// Warm the device snapshot before serving traffic.
	w.devices.MaybeRefresh(ctx)

	buf := make([]byte, readBufferSize)
	for {
		w.mu.Lock()
		draining := w.draining
		w.mu.Unlock()
		if draining {
			w.logger.Info("upstream worker draining, stopping")
			return nil
		}

		select {
		case <-ctx.Done():
			w.logger.Info("upstream worker stopping")
			return ctx.Err()
		default:
		}

		if err := conn.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
			return fmt.Errorf("set read deadline: %w", err)
		}

		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Error("read error", "error", err)
			continue
		}

		w.devices.MaybeRefresh(ctx)
		w.handleDatagram(ctx, buf[:n], addr)
	}
}

// Shutdown gracefully stops the worker.
// It implements server.ShutdownFunc for integration with graceful shutdown.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return nil
	}
	w.draining = true
	cancel := w.cancel
	done := w.done
	w.mu.Unlock()

	w.logger.Info("upstream worker shutdown initiated")

	if cancel != nil {
		cancel()
	}

	if done != nil {
		select {
		case <-done:
			w.logger.Info("upstream worker shutdown complete")
			return nil
		case <-ctx.Done():
			w.logger.Warn("upstream worker shutdown timed out")
			return ctx.Err()
		}
	}
	return nil
}

// handleDatagram processes one datagram from a gateway.
func (w *Worker) handleDatagram(ctx context.Context, data []byte, addr net.Addr) {
	start := time.Now()

	pkt, err := gateway.ParsePacket(data)
	if err != nil {
		w.logger.Warn("unparseable datagram", "from", addr.String(), "error", err)
		w.metrics.IncUplinkDropped("parse_error")
		return
	}

	if pkt.Type != gateway.PushData {
		// PULL traffic belongs on the downlink port.
		return
	}

	ack := gateway.BuildACK(pkt.Version, pkt.Token, gateway.PushACK, pkt.GatewayEUI)
	if _, err := w.conn.WriteTo(ack, addr); err != nil {
		w.logger.Error("failed to send PUSH_ACK", "to", addr.String(), "error", err)
		return
	}

	w.logger.Debug("uplink received",
		"from", addr.String(),
		"gateway", pkt.GatewayEUI.String(),
	)

	payload, err := pkt.UplinkPayload()
	if err != nil {
		w.logger.Warn("bad rxpk payload", "gateway", pkt.GatewayEUI.String(), "error", err)
		w.metrics.IncUplinkDropped("parse_error")
		return
	}
	if payload == nil || len(payload.Rxpk) == 0 {
		// Stat-only PUSH_DATA, nothing to bridge.
		return
	}

	// Gateways may batch several receptions; the newest one wins.
	rx := payload.Rxpk[len(payload.Rxpk)-1]

	if lorawan.IsP2P(rx.Freq) {
		w.handleP2P(rx)
	} else {
		w.handleLoRaWAN(ctx, pkt.GatewayEUI, rx)
	}

	w.metrics.ObserveUplinkDuration(time.Since(start))
}

// handleP2P answers a raw LoRa frame with the scheduled echo.
func (w *Worker) handleP2P(rx gateway.Rxpk) {
	raw, err := rx.PHYPayload()
	if err != nil {
		w.logger.Warn("bad p2p payload", "error", err)
		w.metrics.IncUplinkDropped("parse_error")
		return
	}

	frame, err := p2p.ParseFrame(raw)
	if err != nil {
		w.logger.Warn("invalid p2p frame", "error", err)
		w.metrics.IncUplinkDropped("parse_error")
		return
	}

	w.metrics.IncUplinkReceived("p2p")
	w.logger.Info("p2p uplink",
		"counter", frame.Counter,
		"node_id", fmt.Sprintf("%x", frame.NodeID),
		"data", fmt.Sprintf("%x", frame.Data),
	)

	w.scheduler.Enqueue(downstream.Item{
		Txpk:     frame.BuildDownlink(rx, nil),
		Kind:     "p2p",
		Deadline: time.Now().Add(p2pReplyDelay),
	})
}

// handleLoRaWAN decrypts an ABP uplink and bridges it to the broker.
func (w *Worker) handleLoRaWAN(ctx context.Context, gatewayEUI gateway.EUI64, rx gateway.Rxpk) {
	raw, err := rx.PHYPayload()
	if err != nil {
		w.logger.Warn("bad uplink payload", "error", err)
		w.metrics.IncUplinkDropped("parse_error")
		return
	}

	frame, err := lorawan.ParseUplink(raw)
	if err != nil {
		w.logger.Warn("invalid uplink frame", "error", err)
		w.metrics.IncUplinkDropped("parse_error")
		return
	}

	w.metrics.IncUplinkReceived("lorawan")

	devAddr := frame.DevAddr.String()
	w.logger.Info("lorawan uplink",
		"dev_addr", devAddr,
		"f_cnt", frame.FCnt,
		"f_port", frame.FPort,
		"freq", rx.Freq,
		"datr", rx.Datr,
	)

	if !frame.HasAppPayload() {
		w.logger.Warn("no application payload", "dev_addr", devAddr)
		w.metrics.IncUplinkDropped("no_payload")
		return
	}

	device, err := w.devices.Lookup(ctx, devAddr)
	if err != nil {
		w.logger.Warn("unknown device", "dev_addr", devAddr, "error", err)
		w.metrics.IncUplinkDropped("unknown_device")
		return
	}

	_, appSKey, err := device.SessionKeys()
	if err != nil {
		w.logger.Error("bad session keys", "dev_addr", devAddr, "error", err)
		w.metrics.IncUplinkDropped("bad_keys")
		return
	}

	decrypted, err := frame.DecryptPayload(appSKey)
	if err != nil {
		w.logger.Error("decrypt failed", "dev_addr", devAddr, "error", err)
		w.metrics.IncUplinkDropped("decrypt_error")
		return
	}

	w.logger.Debug("payload decrypted", "dev_addr", devAddr, "bytes", len(decrypted))

	w.rememberUplink(devAddr, gatewayEUI.String(), rx)

	msg, err := everynet.NewUplinkMessage(rx, gatewayEUI.String(), device, int(frame.FPort), uint32(frame.FCnt), decrypted)
	if err != nil {
		w.logger.Error("failed to build uplink message", "dev_addr", devAddr, "error", err)
		return
	}

	body, err := json.Marshal(msg)
	if err != nil {
		w.logger.Error("failed to encode uplink message", "dev_addr", devAddr, "error", err)
		return
	}

	if err := w.publisher.Publish(ctx, w.topic, body); err != nil {
		w.logger.Error("mqtt publish failed", "dev_addr", devAddr, "error", err)
	}

	if w.sink != nil {
		w.sink.PublishAsync(events.FrameEventPayload{
			GatewayEUI: gatewayEUI.String(),
			DevAddr:    devAddr,
			DevEUI:     device.DevEUI,
			AppEUI:     device.AppEUI,
			FCnt:       uint32(frame.FCnt),
			FPort:      int(frame.FPort),
			Payload:    decrypted,
			Freq:       rx.Freq,
			DataRate:   rx.Datr,
			RSSI:       rx.RSSI,
			SNR:        rx.LSNR,
			RawFrame:   raw,
			ReceivedAt: time.Now().UnixMilli(),
		})
	}
}

// rememberUplink stores the device's latest receive window context.
func (w *Worker) rememberUplink(devAddr, gatewayEUI string, rx gateway.Rxpk) {
	w.ctxMu.Lock()
	w.lastUplinks[devAddr] = uplinkContext{
		GatewayEUI: gatewayEUI,
		Tmst:       rx.Tmst,
		Freq:       rx.Freq,
		At:         time.Now(),
	}
	w.ctxMu.Unlock()
}

// lastUplink returns the device's latest receive window context.
func (w *Worker) lastUplink(devAddr string) (uplinkContext, bool) {
	w.ctxMu.Lock()
	defer w.ctxMu.Unlock()
	uc, ok := w.lastUplinks[devAddr]
	return uc, ok
}

// nextCounterDown advances the network-side downlink counter.
func (w *Worker) nextCounterDown(devAddr string) uint32 {
	w.countersMu.Lock()
	defer w.countersMu.Unlock()
	w.countersDn[devAddr]++
	return w.countersDn[devAddr]
}

func isTimeout(err error) bool {
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
