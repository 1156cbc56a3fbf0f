package upstream

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/lktlns/lktlns/internal/downstream"
	"github.com/lktlns/lktlns/internal/events"
	"github.com/lktlns/lktlns/internal/everynet"
	"github.com/lktlns/lktlns/internal/gateway"
	"github.com/lktlns/lktlns/internal/lorawan"
	"github.com/lktlns/lktlns/internal/metrics"
	"github.com/lktlns/lktlns/internal/model"
)

type fakeResolver struct {
	devices map[string]*model.Device
}

func (f *fakeResolver) Lookup(_ context.Context, devAddr string) (*model.Device, error) {
	device, ok := f.devices[devAddr]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return device, nil
}

func (f *fakeResolver) MaybeRefresh(context.Context) {}

type fakePublisher struct {
	topics   []string
	messages [][]byte
}

func (f *fakePublisher) Publish(_ context.Context, topic string, payload []byte) error {
	f.topics = append(f.topics, topic)
	f.messages = append(f.messages, payload)
	return nil
}

type fakeSink struct {
	events []events.FrameEventPayload
}

func (f *fakeSink) PublishAsync(event events.FrameEventPayload) {
	f.events = append(f.events, event)
}

func testDevice() *model.Device {
	return &model.Device{
		DevEUI:  "70b3d5b020000001",
		AppEUI:  "70b3d5b020000000",
		DevAddr: "0102aabb",
		NwkSKey: "2b7e151628aed2a6abf7158809cf4f3c",
		AppSKey: "3b7e151628aed2a6abf7158809cf4f3c",
	}
}

func newTestWorker(t *testing.T, device *model.Device) (*Worker, *fakePublisher, *fakeSink, *downstream.Scheduler) {
	t.Helper()

	resolver := &fakeResolver{devices: map[string]*model.Device{}}
	if device != nil {
		resolver.devices[device.DevAddr] = device
	}
	publisher := &fakePublisher{}
	sink := &fakeSink{}
	scheduler := downstream.NewScheduler(slog.Default(), metrics.NewNoop())

	w := NewWorker(":0", "lns/up", resolver, publisher, sink, scheduler, slog.Default(), metrics.NewNoop())
	return w, publisher, sink, scheduler
}

// buildUplinkPHY assembles an unconfirmed data-up frame carrying the
// given plaintext, encrypted with the device's AppSKey.
func buildUplinkPHY(t *testing.T, device *model.Device, fcnt uint16, fport byte, plaintext []byte) []byte {
	t.Helper()

	addr, err := device.Addr()
	if err != nil {
		t.Fatalf("parse dev addr: %v", err)
	}
	_, appSKey, err := device.SessionKeys()
	if err != nil {
		t.Fatalf("parse session keys: %v", err)
	}

	// The keystream XOR is self-inverse, so encrypting the plaintext
	// produces exactly the bytes a device would put on the air.
	enc, err := lorawan.EncryptFRMPayload(appSKey, addr, uint32(fcnt), lorawan.DirectionUp, plaintext)
	if err != nil {
		t.Fatalf("encrypt payload: %v", err)
	}

	phy := []byte{0x40}
	phy = append(phy, 0xbb, 0xaa, 0x02, 0x01) // DevAddr little-endian
	phy = append(phy, 0x00)                   // FCtrl
	phy = append(phy, byte(fcnt), byte(fcnt>>8))
	phy = append(phy, fport)
	phy = append(phy, enc...)
	phy = append(phy, 0xde, 0xad, 0xbe, 0xef) // MIC, not verified by the bridge
	return phy
}

func TestHandleLoRaWAN_BridgesUplink(t *testing.T) {
	device := testDevice()
	w, publisher, sink, _ := newTestWorker(t, device)

	plaintext := []byte{0x01, 0x02, 0x03, 0x04}
	phy := buildUplinkPHY(t, device, 42, 2, plaintext)

	rx := gateway.Rxpk{
		Tmst: 1_000_000,
		Freq: 915.2,
		Datr: "SF10BW125",
		Codr: "4/5",
		Modu: "LORA",
		RSSI: -104,
		LSNR: 5.5,
		Size: len(phy),
		Data: base64.StdEncoding.EncodeToString(phy),
	}

	var eui gateway.EUI64
	copy(eui[:], []byte{0xaa, 0x55, 0x5a, 0x00, 0x00, 0x00, 0x01, 0x01})

	w.handleLoRaWAN(context.Background(), eui, rx)

	if len(publisher.messages) != 1 {
		t.Fatalf("Expected 1 published message, got %d", len(publisher.messages))
	}
	if publisher.topics[0] != "lns/up" {
		t.Errorf("Published to %q, want lns/up", publisher.topics[0])
	}

	var msg everynet.Message
	if err := json.Unmarshal(publisher.messages[0], &msg); err != nil {
		t.Fatalf("decode published message: %v", err)
	}
	if msg.Type != everynet.TypeUplink {
		t.Errorf("Type = %q, want uplink", msg.Type)
	}
	if msg.Meta.DeviceAddr != device.DevAddr {
		t.Errorf("DeviceAddr = %q, want %q", msg.Meta.DeviceAddr, device.DevAddr)
	}

	var params everynet.UplinkParams
	if err := msg.DecodeParams(&params); err != nil {
		t.Fatalf("decode params: %v", err)
	}
	decoded, err := base64.StdEncoding.DecodeString(params.Payload)
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if string(decoded) != string(plaintext) {
		t.Errorf("Payload = %x, want %x", decoded, plaintext)
	}
	if params.CounterUp != 42 {
		t.Errorf("CounterUp = %d, want 42", params.CounterUp)
	}

	if len(sink.events) != 1 {
		t.Fatalf("Expected 1 frame event, got %d", len(sink.events))
	}
	if sink.events[0].DevAddr != device.DevAddr || sink.events[0].FCnt != 42 {
		t.Errorf("Frame event = %+v, want DevAddr %s FCnt 42", sink.events[0], device.DevAddr)
	}

	if _, ok := w.lastUplink(device.DevAddr); !ok {
		t.Error("Receive window context should be recorded")
	}
}

func TestHandleLoRaWAN_UnknownDevice(t *testing.T) {
	device := testDevice()
	w, publisher, _, _ := newTestWorker(t, nil) // resolver knows nothing

	phy := buildUplinkPHY(t, device, 1, 2, []byte{0xff})
	rx := gateway.Rxpk{
		Freq: 915.2,
		Datr: "SF10BW125",
		Data: base64.StdEncoding.EncodeToString(phy),
	}

	w.handleLoRaWAN(context.Background(), gateway.EUI64{}, rx)

	if len(publisher.messages) != 0 {
		t.Errorf("Unknown device should not be bridged, published %d", len(publisher.messages))
	}
}

func TestHandleLoRaWAN_NoAppPayload(t *testing.T) {
	device := testDevice()
	w, publisher, _, _ := newTestWorker(t, device)

	// FPort 0 frame: MAC-only traffic.
	phy := []byte{0x40, 0xbb, 0xaa, 0x02, 0x01, 0x00, 0x01, 0x00, 0x00, 0x11, 0x22, 0x33, 0x44}
	rx := gateway.Rxpk{
		Freq: 915.2,
		Datr: "SF10BW125",
		Data: base64.StdEncoding.EncodeToString(phy),
	}

	w.handleLoRaWAN(context.Background(), gateway.EUI64{}, rx)

	if len(publisher.messages) != 0 {
		t.Errorf("MAC-only frame should not be bridged, published %d", len(publisher.messages))
	}
}

func TestHandleP2P_SchedulesEcho(t *testing.T) {
	w, _, _, scheduler := newTestWorker(t, nil)

	raw := []byte{0x07, 0xaa, 0xbb, 0xcc, 0x01, 0x02}
	rx := gateway.Rxpk{
		Tmst: 2_000_000,
		Freq: 902.3,
		Datr: "SF11BW500",
		Data: base64.StdEncoding.EncodeToString(raw),
	}

	w.handleP2P(rx)

	if scheduler.Len() != 1 {
		t.Fatalf("Expected 1 queued echo, got %d", scheduler.Len())
	}

	item, ok := scheduler.Next(time.Now())
	if !ok {
		t.Fatal("Echo should be inside its transmit window")
	}
	if item.Kind != "p2p" {
		t.Errorf("Kind = %q, want p2p", item.Kind)
	}
	if item.Txpk.Tmst != 3_000_000 {
		t.Errorf("Tmst = %d, want one second after uplink", item.Txpk.Tmst)
	}
	if item.Txpk.IPol {
		t.Error("Echo should not be polarity inverted")
	}
}

func TestHandleBrokerMessage_QueuesDownlink(t *testing.T) {
	device := testDevice()
	w, publisher, _, scheduler := newTestWorker(t, device)

	// Device was heard on channel 0 just now.
	w.rememberUplink(device.DevAddr, "aa555a0000000101", gateway.Rxpk{
		Tmst: 10_000_000,
		Freq: 915.2,
	})

	cmd, err := everynet.NewMessage(everynet.TypeDownlink,
		everynet.Meta{DeviceAddr: device.DevAddr, PacketHash: "feed"},
		everynet.DownlinkParams{
			Port:        7,
			Payload:     base64.StdEncoding.EncodeToString([]byte("ping")),
			CounterDown: 3,
		})
	if err != nil {
		t.Fatalf("build command: %v", err)
	}
	body, _ := json.Marshal(cmd)

	w.HandleBrokerMessage("lns/down", body)

	if scheduler.Len() != 1 {
		t.Fatalf("Expected 1 queued downlink, got %d", scheduler.Len())
	}

	item, ok := scheduler.Next(time.Now())
	if !ok {
		t.Fatal("Downlink should be inside its transmit window")
	}
	if item.Kind != "lorawan" {
		t.Errorf("Kind = %q, want lorawan", item.Kind)
	}
	if item.Txpk.Tmst != 15_000_000 {
		t.Errorf("Tmst = %d, want uplink tmst + 5s", item.Txpk.Tmst)
	}
	if item.Txpk.Freq != 923.3 {
		t.Errorf("Freq = %v, want 923.3 (downlink channel 0)", item.Txpk.Freq)
	}
	if !item.Txpk.IPol {
		t.Error("Class-A downlink should be polarity inverted")
	}
	if item.Txpk.Datr != DownlinkDataRate {
		t.Errorf("Datr = %q, want %q", item.Txpk.Datr, DownlinkDataRate)
	}

	// The queued PHYPayload must decrypt back to the command payload.
	phy, err := base64.StdEncoding.DecodeString(item.Txpk.Data)
	if err != nil {
		t.Fatalf("decode queued data: %v", err)
	}
	addr, _ := device.Addr()
	_, appSKey, _ := device.SessionKeys()
	decrypted, err := lorawan.EncryptFRMPayload(appSKey, addr, 3, lorawan.DirectionDown, phy[9:len(phy)-4])
	if err != nil {
		t.Fatalf("decrypt queued payload: %v", err)
	}
	if string(decrypted) != "ping" {
		t.Errorf("Queued payload = %q, want ping", decrypted)
	}

	if len(publisher.messages) != 1 {
		t.Fatalf("Expected 1 response message, got %d", len(publisher.messages))
	}
	var resp everynet.Message
	if err := json.Unmarshal(publisher.messages[0], &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Type != everynet.TypeDownlinkResponse {
		t.Errorf("Response type = %q, want downlink_response", resp.Type)
	}
	if resp.Meta.PacketHash != "feed" {
		t.Errorf("PacketHash = %q, want request hash echoed", resp.Meta.PacketHash)
	}
}

func TestHandleBrokerMessage_NoReceiveWindow(t *testing.T) {
	device := testDevice()
	w, publisher, _, scheduler := newTestWorker(t, device)

	cmd, _ := everynet.NewMessage(everynet.TypeDownlink,
		everynet.Meta{DeviceAddr: device.DevAddr},
		everynet.DownlinkParams{Payload: base64.StdEncoding.EncodeToString([]byte{0x01})})
	body, _ := json.Marshal(cmd)

	w.HandleBrokerMessage("lns/down", body)

	if scheduler.Len() != 0 {
		t.Errorf("No downlink should be queued without a receive window, got %d", scheduler.Len())
	}
	if len(publisher.messages) != 1 {
		t.Fatalf("Expected an error response, got %d messages", len(publisher.messages))
	}
	var resp everynet.Message
	if err := json.Unmarshal(publisher.messages[0], &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Type != everynet.TypeError {
		t.Errorf("Response type = %q, want error", resp.Type)
	}
}
