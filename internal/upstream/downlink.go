package upstream

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	"github.com/lktlns/lktlns/internal/downstream"
	"github.com/lktlns/lktlns/internal/everynet"
	"github.com/lktlns/lktlns/internal/gateway"
	"github.com/lktlns/lktlns/internal/lorawan"
	"github.com/lktlns/lktlns/internal/model"
)

// DefaultDownlinkPort is used when a downlink command carries no FPort.
const DefaultDownlinkPort = 1

// brokerTimeout bounds handling of a single broker message.
const brokerTimeout = 10 * time.Second

// ErrNoReceiveWindow means the device has not been heard recently, so
// there is no class-A window to aim a downlink at.
var ErrNoReceiveWindow = errors.New("device has no open receive window")

// HandleBrokerMessage processes a message from the subscribed downlink
// topic. It matches mqtt.MessageHandler so it can be registered directly
// as the subscription callback.
func (w *Worker) HandleBrokerMessage(topic string, payload []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), brokerTimeout)
	defer cancel()

	var msg everynet.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		w.logger.Warn("undecodable broker message", "topic", topic, "error", err)
		return
	}

	switch msg.Type {
	case everynet.TypeDownlink:
		w.handleDownlinkCommand(ctx, &msg)
	case everynet.TypeDownlinkResponse, everynet.TypeUplink:
		// Our own traffic echoed back on a shared topic.
	default:
		w.logger.Debug("ignoring broker message", "type", string(msg.Type))
	}
}

// handleDownlinkCommand builds and queues a class-A downlink for the
// device's next receive window.
func (w *Worker) handleDownlinkCommand(ctx context.Context, msg *everynet.Message) {
	var params everynet.DownlinkParams
	if err := msg.DecodeParams(&params); err != nil {
		w.logger.Warn("bad downlink params", "error", err)
		w.respondError(ctx, msg, "invalid downlink params")
		return
	}

	devAddr := msg.Meta.DeviceAddr
	if devAddr == "" {
		w.logger.Warn("downlink without device_addr")
		w.respondError(ctx, msg, "device_addr is required")
		return
	}

	device, err := w.devices.Lookup(ctx, devAddr)
	if err != nil {
		w.logger.Warn("downlink for unknown device", "dev_addr", devAddr, "error", err)
		w.respondError(ctx, msg, "device not provisioned")
		return
	}

	uc, ok := w.lastUplink(device.DevAddr)
	if !ok {
		w.logger.Warn("no receive window for device", "dev_addr", devAddr)
		w.respondError(ctx, msg, "device has no open receive window")
		return
	}

	appPayload, err := base64.StdEncoding.DecodeString(params.Payload)
	if err != nil {
		w.logger.Warn("undecodable downlink payload", "dev_addr", devAddr, "error", err)
		w.respondError(ctx, msg, "payload must be base64")
		return
	}

	port := params.Port
	if port == 0 {
		port = DefaultDownlinkPort
	}
	counter := uint32(params.CounterDown)
	if params.CounterDown <= 0 {
		counter = w.nextCounterDown(device.DevAddr)
	}

	tx, err := w.buildClassADownlink(device, uc, appPayload, byte(port), counter, params.Confirmed)
	if err != nil {
		w.logger.Error("failed to build downlink", "dev_addr", devAddr, "error", err)
		w.respondError(ctx, msg, "failed to build downlink")
		return
	}

	w.scheduler.Enqueue(downstream.Item{
		Txpk:     tx,
		Kind:     "lorawan",
		Deadline: uc.At.Add(lorawanReplyDelay),
	})

	w.logger.Info("downlink queued",
		"dev_addr", devAddr,
		"port", port,
		"counter_down", counter,
		"freq", tx.Freq,
	)

	w.respondDownlink(ctx, msg, device, &params, counter)
}

// ScheduleDownlink builds and queues a class-A downlink outside the
// broker path, for the admin API. counter <= 0 picks the next local
// downlink counter.
func (w *Worker) ScheduleDownlink(ctx context.Context, devAddr string, port int, payload []byte, confirmed bool, counter int) (uint32, error) {
	device, err := w.devices.Lookup(ctx, devAddr)
	if err != nil {
		return 0, err
	}

	uc, ok := w.lastUplink(device.DevAddr)
	if !ok {
		return 0, ErrNoReceiveWindow
	}

	if port <= 0 {
		port = DefaultDownlinkPort
	}
	fcnt := uint32(counter)
	if counter <= 0 {
		fcnt = w.nextCounterDown(device.DevAddr)
	}

	tx, err := w.buildClassADownlink(device, uc, payload, byte(port), fcnt, confirmed)
	if err != nil {
		return 0, err
	}

	w.scheduler.Enqueue(downstream.Item{
		Txpk:     tx,
		Kind:     "lorawan",
		Deadline: uc.At.Add(lorawanReplyDelay),
	})

	w.logger.Info("downlink queued",
		"dev_addr", devAddr,
		"port", port,
		"counter_down", fcnt,
		"freq", tx.Freq,
	)
	return fcnt, nil
}

// buildClassADownlink encrypts the payload and wraps it in a transmit
// descriptor aimed at the device's first receive window.
func (w *Worker) buildClassADownlink(device *model.Device, uc uplinkContext, payload []byte, port byte, counter uint32, confirmed bool) (gateway.Txpk, error) {
	addr, err := device.Addr()
	if err != nil {
		return gateway.Txpk{}, err
	}
	nwkSKey, appSKey, err := device.SessionKeys()
	if err != nil {
		return gateway.Txpk{}, err
	}

	phy, err := lorawan.BuildDownlink(lorawan.DownlinkParams{
		DevAddr:   addr,
		NwkSKey:   nwkSKey,
		AppSKey:   appSKey,
		FCnt:      counter,
		FPort:     port,
		Confirmed: confirmed,
		Payload:   payload,
	})
	if err != nil {
		return gateway.Txpk{}, err
	}

	freq, err := lorawan.DownlinkFrequency(uc.Freq)
	if err != nil {
		return gateway.Txpk{}, err
	}

	tx := gateway.NewTxpk()
	tx.Tmst = uc.Tmst + lorawanTmstOffset
	tx.Freq = freq
	tx.Datr = DownlinkDataRate
	tx.IPol = true // network-to-device frames are sent inverted
	tx.SetData(phy)
	return tx, nil
}

// respondDownlink publishes the acceptance response for a queued downlink.
func (w *Worker) respondDownlink(ctx context.Context, req *everynet.Message, device *model.Device, params *everynet.DownlinkParams, counter uint32) {
	meta := everynet.Meta{
		Application: device.AppEUI,
		Device:      device.DevEUI,
		DeviceAddr:  device.DevAddr,
		PacketID:    everynet.NewPacketHash(),
		PacketHash:  req.Meta.PacketHash,
		Time:        float64(time.Now().UnixNano()) / float64(time.Second),
	}

	resp, err := everynet.NewMessage(everynet.TypeDownlinkResponse, meta, everynet.DownlinkResponseParams{
		Confirmed:   params.Confirmed,
		CounterDown: int(counter),
		Port:        params.Port,
		Payload:     params.Payload,
	})
	if err != nil {
		w.logger.Error("failed to build downlink response", "error", err)
		return
	}

	w.publishMessage(ctx, resp)
}

// respondError publishes an error message correlated to the request.
func (w *Worker) respondError(ctx context.Context, req *everynet.Message, detail string) {
	meta := everynet.Meta{
		DeviceAddr: req.Meta.DeviceAddr,
		PacketID:   everynet.NewPacketHash(),
		PacketHash: req.Meta.PacketHash,
		Time:       float64(time.Now().UnixNano()) / float64(time.Second),
	}

	resp, err := everynet.NewMessage(everynet.TypeError, meta, everynet.ErrorParams{Message: detail})
	if err != nil {
		w.logger.Error("failed to build error response", "error", err)
		return
	}

	w.publishMessage(ctx, resp)
}

func (w *Worker) publishMessage(ctx context.Context, msg *everynet.Message) {
	body, err := json.Marshal(msg)
	if err != nil {
		w.logger.Error("failed to encode broker message", "error", err)
		return
	}
	if err := w.publisher.Publish(ctx, w.topic, body); err != nil {
		w.logger.Error("mqtt publish failed", "type", string(msg.Type), "error", err)
	}
}
