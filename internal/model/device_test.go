package model

import "testing"

func TestDevice_SessionKeys(t *testing.T) {
	d := &Device{
		DevAddr: "26011f2a",
		NwkSKey: "00112233445566778899aabbccddeeff",
		AppSKey: "ffeeddccbbaa99887766554433221100",
	}

	nwkSKey, appSKey, err := d.SessionKeys()
	if err != nil {
		t.Fatalf("SessionKeys: %v", err)
	}
	if nwkSKey.String() != d.NwkSKey {
		t.Errorf("NwkSKey = %s, want %s", nwkSKey, d.NwkSKey)
	}
	if appSKey.String() != d.AppSKey {
		t.Errorf("AppSKey = %s, want %s", appSKey, d.AppSKey)
	}

	addr, err := d.Addr()
	if err != nil {
		t.Fatalf("Addr: %v", err)
	}
	if addr.String() != "26011f2a" {
		t.Errorf("Addr = %s, want 26011f2a", addr)
	}
}

func TestDevice_SessionKeys_Missing(t *testing.T) {
	d := &Device{DevAddr: "26011f2a"}
	if _, _, err := d.SessionKeys(); err == nil {
		t.Error("expected error for device without keys")
	}
}

func TestCachedDevice_RoundTrip(t *testing.T) {
	d := &Device{
		DevEUI:  "70b3d57ed0000001",
		AppEUI:  "70b3d57ed0000000",
		DevAddr: "26011f2a",
		NwkSKey: "00112233445566778899aabbccddeeff",
		AppSKey: "ffeeddccbbaa99887766554433221100",
	}

	back := FromDevice(d).ToDevice()
	if back.DevEUI != d.DevEUI || back.AppEUI != d.AppEUI || back.DevAddr != d.DevAddr {
		t.Errorf("identity fields = %+v, want %+v", back, d)
	}
	if back.NwkSKey != d.NwkSKey || back.AppSKey != d.AppSKey {
		t.Error("session keys not preserved")
	}
}
