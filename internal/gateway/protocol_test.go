package gateway

import (
	"bytes"
	"encoding/json"
	"testing"
)

func testEUI(t *testing.T) EUI64 {
	t.Helper()
	eui, err := ParseEUI64("aa555a0000000101")
	if err != nil {
		t.Fatalf("parse EUI: %v", err)
	}
	return eui
}

func TestParsePacket_PushData(t *testing.T) {
	eui := testEUI(t)
	body := []byte(`{"rxpk":[{"tmst":1000,"chan":2,"rfch":0,"freq":915.2,"stat":1,"modu":"LORA","datr":"SF10BW125","codr":"4/5","lsnr":5.5,"rssi":-85,"size":3,"data":"AQID"}]}`)

	datagram := append([]byte{ProtocolVersion, 0x12, 0x34, byte(PushData)}, eui[:]...)
	datagram = append(datagram, body...)

	pkt, err := ParsePacket(datagram)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if pkt.Version != ProtocolVersion {
		t.Errorf("Version = %#x, want %#x", pkt.Version, ProtocolVersion)
	}
	if pkt.Token != [2]byte{0x12, 0x34} {
		t.Errorf("Token = %x, want 1234", pkt.Token)
	}
	if pkt.Type != PushData {
		t.Errorf("Type = %s, want PUSH_DATA", pkt.Type)
	}
	if pkt.GatewayEUI != eui {
		t.Errorf("GatewayEUI = %s, want %s", pkt.GatewayEUI, eui)
	}

	payload, err := pkt.UplinkPayload()
	if err != nil {
		t.Fatalf("uplink payload: %v", err)
	}
	if len(payload.Rxpk) != 1 {
		t.Fatalf("rxpk count = %d, want 1", len(payload.Rxpk))
	}
	rx := payload.Rxpk[0]
	if rx.Freq != 915.2 {
		t.Errorf("Freq = %v, want 915.2", rx.Freq)
	}
	if rx.Datr != "SF10BW125" {
		t.Errorf("Datr = %q, want SF10BW125", rx.Datr)
	}
	if rx.Tmst != 1000 {
		t.Errorf("Tmst = %d, want 1000", rx.Tmst)
	}
}

func TestParsePacket_HeaderOnly(t *testing.T) {
	eui := testEUI(t)
	datagram := append([]byte{ProtocolVersion, 0x00, 0x01, byte(PullData)}, eui[:]...)

	pkt, err := ParsePacket(datagram)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if pkt.Type != PullData {
		t.Errorf("Type = %s, want PULL_DATA", pkt.Type)
	}
	if len(pkt.Payload) != 0 {
		t.Errorf("Payload length = %d, want 0", len(pkt.Payload))
	}
	payload, err := pkt.UplinkPayload()
	if err != nil || payload != nil {
		t.Errorf("UplinkPayload() = %v, %v; want nil, nil", payload, err)
	}
}

func TestParsePacket_Errors(t *testing.T) {
	if _, err := ParsePacket(make([]byte, HeaderLen-1)); err == nil {
		t.Error("short datagram accepted")
	}

	eui := testEUI(t)
	bad := append([]byte{ProtocolVersion, 0x00, 0x01, 0x09}, eui[:]...)
	if _, err := ParsePacket(bad); err == nil {
		t.Error("unknown packet type accepted")
	}
}

func TestBuildACK(t *testing.T) {
	eui := testEUI(t)
	ack := BuildACK(ProtocolVersion, [2]byte{0xab, 0xcd}, PushACK, eui)

	if len(ack) != HeaderLen {
		t.Fatalf("ACK length = %d, want %d", len(ack), HeaderLen)
	}

	pkt, err := ParsePacket(ack)
	if err != nil {
		t.Fatalf("parse ACK: %v", err)
	}
	if pkt.Type != PushACK {
		t.Errorf("Type = %s, want PUSH_ACK", pkt.Type)
	}
	if pkt.Token != [2]byte{0xab, 0xcd} {
		t.Errorf("Token = %x, want abcd", pkt.Token)
	}
	if pkt.GatewayEUI != eui {
		t.Errorf("GatewayEUI = %s, want %s", pkt.GatewayEUI, eui)
	}
}

func TestBuildPullResp(t *testing.T) {
	eui := testEUI(t)
	txpk := NewTxpk()
	txpk.Tmst = 5000000
	txpk.IPol = true
	txpk.Size = 4
	txpk.Data = "yv66vg=="

	datagram, err := BuildPullResp([2]byte{0x01, 0x02}, eui, txpk)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	pkt, err := ParsePacket(datagram)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if pkt.Type != PullResp {
		t.Errorf("Type = %s, want PULL_RESP", pkt.Type)
	}

	var body PullRespPayload
	if err := json.Unmarshal(pkt.Payload, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Txpk.Tmst != 5000000 {
		t.Errorf("Tmst = %d, want 5000000", body.Txpk.Tmst)
	}
	if !body.Txpk.IPol {
		t.Error("IPol not preserved")
	}
	if body.Txpk.Data != "yv66vg==" {
		t.Errorf("Data = %q", body.Txpk.Data)
	}
	if body.Txpk.Powe != 12 || body.Txpk.Codr != "4/5" {
		t.Error("Txpk defaults not preserved")
	}
	if !bytes.Equal(pkt.GatewayEUI[:], eui[:]) {
		t.Errorf("GatewayEUI = %s, want %s", pkt.GatewayEUI, eui)
	}
}

func TestPacketTypeString(t *testing.T) {
	tests := []struct {
		t    PacketType
		want string
	}{
		{PushData, "PUSH_DATA"},
		{PushACK, "PUSH_ACK"},
		{PullData, "PULL_DATA"},
		{PullResp, "PULL_RESP"},
		{PullACK, "PULL_ACK"},
		{TXACK, "TX_ACK"},
	}
	for _, tt := range tests {
		if got := tt.t.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
