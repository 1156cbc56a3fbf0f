package lorawan

import "testing"

func TestParseDataRate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		sf      int
		bw      int
	}{
		{name: "DR0", input: "SF12BW125", sf: 12, bw: 125000},
		{name: "DR10", input: "SF10BW500", sf: 10, bw: 500000},
		{name: "DR5", input: "SF7BW125", sf: 7, bw: 125000},
		{name: "bad format", input: "LORA125", wantErr: true},
		{name: "sf out of range", input: "SF6BW125", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dr, err := ParseDataRate(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseDataRate(%q) succeeded, want error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDataRate(%q): %v", tt.input, err)
			}
			if got := dr.SpreadingFactor(); got != tt.sf {
				t.Errorf("SpreadingFactor() = %d, want %d", got, tt.sf)
			}
			if got := dr.Bandwidth(); got != tt.bw {
				t.Errorf("Bandwidth() = %d, want %d", got, tt.bw)
			}
		})
	}
}

func TestDownlinkFrequency(t *testing.T) {
	tests := []struct {
		uplink  float64
		want    float64
		wantErr bool
	}{
		{uplink: 915.2, want: 923.3},
		{uplink: 915.4, want: 923.9},
		{uplink: 916.6, want: 927.5},
		{uplink: 868.1, wantErr: true},
		{uplink: 915.3, wantErr: true},
	}

	for _, tt := range tests {
		got, err := DownlinkFrequency(tt.uplink)
		if tt.wantErr {
			if err == nil {
				t.Errorf("DownlinkFrequency(%v) succeeded, want error", tt.uplink)
			}
			continue
		}
		if err != nil {
			t.Errorf("DownlinkFrequency(%v): %v", tt.uplink, err)
			continue
		}
		if got != tt.want {
			t.Errorf("DownlinkFrequency(%v) = %v, want %v", tt.uplink, got, tt.want)
		}
	}
}

func TestIsP2P(t *testing.T) {
	if !IsP2P(902.3) {
		t.Error("902.3 MHz should be P2P")
	}
	if IsP2P(915.2) {
		t.Error("915.2 MHz should not be P2P")
	}
}
