package downstream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/lktlns/lktlns/internal/gateway"
	"github.com/lktlns/lktlns/internal/metrics"
)

const (
	// readBufferSize fits any packet-forwarder datagram.
	readBufferSize = 4096

	// readDeadline bounds each blocking read so the loop can observe
	// context cancellation.
	readDeadline = time.Second
)

// Worker listens for PULL_DATA polls and TX_ACK reports on the downlink
// port and hands queued downlinks to the polling gateway.
type Worker struct {
	addr      string
	scheduler *Scheduler
	logger    *slog.Logger
	metrics   metrics.Recorder

	conn net.PacketConn

	started  bool
	draining bool
	cancel   context.CancelFunc
	done     chan struct{}
	mu       sync.Mutex
}

// NewWorker creates a downstream worker bound to addr, e.g. ":1700".
func NewWorker(addr string, scheduler *Scheduler, logger *slog.Logger, recorder metrics.Recorder) *Worker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Worker{
		addr:      addr,
		scheduler: scheduler,
		logger:    logger.With("component", "downstream.worker"),
		metrics:   recorder,
	}
}

// Run binds the UDP socket and serves polls until the context is
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
		return fmt.Errorf("bind downlink socket: %w", err)
	}
	w.conn = conn
	w.mu.Unlock()

	defer close(w.done)
	defer conn.Close()

	w.logger.Info("downstream worker started", "addr", w.addr)

	buf := make([]byte, readBufferSize)
	for {
		w.mu.Lock()
		draining := w.draining
		w.mu.Unlock()
		if draining {
			w.logger.Info("downstream worker draining, stopping")
			return nil
		}

		select {
		case <-ctx.Done():
			w.logger.Info("downstream worker stopping")
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

		w.handleDatagram(buf[:n], addr)
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

	w.logger.Info("downstream worker shutdown initiated")

	if cancel != nil {
		cancel()
	}

	if done != nil {
		select {
		case <-done:
			w.logger.Info("downstream worker shutdown complete")
			return nil
		case <-ctx.Done():
			w.logger.Warn("downstream worker shutdown timed out")
			return ctx.Err()
		}
	}
	return nil
}

// handleDatagram dispatches one datagram from a gateway.
func (w *Worker) handleDatagram(data []byte, addr net.Addr) {
	pkt, err := gateway.ParsePacket(data)
	if err != nil {
		w.logger.Warn("unparseable datagram", "from", addr.String(), "error", err)
		return
	}

	w.logger.Debug("datagram received",
		"from", addr.String(),
		"type", pkt.Type.String(),
		"gateway", pkt.GatewayEUI.String(),
	)

	switch pkt.Type {
	case gateway.TXACK:
		w.handleTxAck(pkt)
	case gateway.PullData:
		w.handlePullData(pkt, addr)
	default:
		// PUSH traffic belongs on the uplink port.
	}
}

// handleTxAck records the gateway's transmission report.
func (w *Worker) handleTxAck(pkt *gateway.Packet) {
	status := "ok"
	if len(pkt.Payload) > 0 {
		// A non-empty body means the gateway rejected the downlink.
		status = "error"
		w.logger.Warn("gateway rejected downlink",
			"gateway", pkt.GatewayEUI.String(),
			"detail", string(pkt.Payload),
		)
	} else {
		w.logger.Debug("downlink sent to device", "gateway", pkt.GatewayEUI.String())
	}
	w.metrics.IncTxAck(status)
}

// handlePullData acknowledges the poll and, if a downlink is due, sends
// it back in a PULL_RESP addressed with the poll's token.
func (w *Worker) handlePullData(pkt *gateway.Packet, addr net.Addr) {
	ack := gateway.BuildACK(pkt.Version, pkt.Token, gateway.PullACK, pkt.GatewayEUI)
	if _, err := w.conn.WriteTo(ack, addr); err != nil {
		w.logger.Error("failed to send PULL_ACK", "to", addr.String(), "error", err)
		return
	}

	item, ok := w.scheduler.Next(time.Now())
	if !ok {
		return
	}

	resp, err := gateway.BuildPullResp(pkt.Token, pkt.GatewayEUI, item.Txpk)
	if err != nil {
		w.logger.Error("failed to encode PULL_RESP", "error", err)
		return
	}

	if _, err := w.conn.WriteTo(resp, addr); err != nil {
		w.logger.Error("failed to send PULL_RESP", "to", addr.String(), "error", err)
		return
	}

	w.metrics.IncDownlinkSent()
	w.logger.Info("downlink sent",
		"gateway", pkt.GatewayEUI.String(),
		"kind", item.Kind,
		"freq", item.Txpk.Freq,
		"datr", item.Txpk.Datr,
	)
}

func isTimeout(err error) bool {
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
