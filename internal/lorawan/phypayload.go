package lorawan

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// MType is the LoRaWAN message type carried in the MHDR.
type MType byte

const (
	MTypeJoinRequest MType = iota
	MTypeJoinAccept
	MTypeUnconfirmedUp
	MTypeUnconfirmedDown
	MTypeConfirmedUp
	MTypeConfirmedDown
	MTypeRejoinRequest
	MTypeProprietary
)

// MinUplinkLen is the smallest PHYPayload the parser accepts:
// MHDR + DevAddr + FCtrl + FCnt + MIC, with FPort and FRMPayload absent.
const MinUplinkLen = 12

var (
	// ErrFrameTooShort indicates the PHYPayload is below MinUplinkLen.
	ErrFrameTooShort = errors.New("PHYPayload too short")
	// ErrNoAppPayload indicates FPort 0 or an empty FRMPayload.
	ErrNoAppPayload = errors.New("no application payload")
)

// UplinkFrame is the parsed subset of an uplink PHYPayload the bridge
// needs. FOpts are assumed empty (FOptsLen 0), matching the ABP devices
// this network serves.
type UplinkFrame struct {
	MType      MType
	DevAddr    DevAddr
	FCnt       uint16
	FPort      byte
	FRMPayload []byte // still encrypted
	MIC        [4]byte
}

// ParseUplink extracts the frame header fields from a raw PHYPayload.
func ParseUplink(phy []byte) (*UplinkFrame, error) {
	if len(phy) < MinUplinkLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooShort, len(phy))
	}

	frame := &UplinkFrame{
		MType: MType(phy[0] >> 5),
		FCnt:  binary.LittleEndian.Uint16(phy[6:8]),
	}

	// DevAddr is little-endian on the wire.
	frame.DevAddr = DevAddr{phy[4], phy[3], phy[2], phy[1]}
	copy(frame.MIC[:], phy[len(phy)-4:])

	// At exactly MinUplinkLen the MIC follows FCnt directly: the frame
	// has no FPort byte and no FRMPayload.
	if len(phy) > MinUplinkLen {
		frame.FPort = phy[8]
		frame.FRMPayload = phy[9 : len(phy)-4]
	}

	return frame, nil
}

// HasAppPayload reports whether the frame carries application data.
func (f *UplinkFrame) HasAppPayload() bool {
	return f.FPort != 0 && len(f.FRMPayload) > 0
}

// DecryptPayload decrypts the FRMPayload with the device AppSKey.
func (f *UplinkFrame) DecryptPayload(appSKey AES128Key) ([]byte, error) {
	if !f.HasAppPayload() {
		return nil, ErrNoAppPayload
	}
	return EncryptFRMPayload(appSKey, f.DevAddr, uint32(f.FCnt), DirectionUp, f.FRMPayload)
}

// DownlinkParams describes a downlink data frame to build.
type DownlinkParams struct {
	DevAddr   DevAddr
	NwkSKey   AES128Key
	AppSKey   AES128Key
	FCnt      uint32
	FPort     byte
	Confirmed bool
	Payload   []byte
}

// BuildDownlink assembles a complete downlink PHYPayload: MHDR, FHDR
// (empty FCtrl), FPort, encrypted FRMPayload and the MIC.
func BuildDownlink(p DownlinkParams) ([]byte, error) {
	mhdr := byte(0x60) // unconfirmed data down
	if p.Confirmed {
		mhdr = 0xa0
	}

	addrLE := p.DevAddr.littleEndian()

	frm, err := EncryptFRMPayload(p.AppSKey, p.DevAddr, p.FCnt, DirectionDown, p.Payload)
	if err != nil {
		return nil, fmt.Errorf("encrypt payload: %w", err)
	}

	phy := make([]byte, 0, 9+len(frm)+4)
	phy = append(phy, mhdr)
	phy = append(phy, addrLE[:]...)
	phy = append(phy, 0x00) // FCtrl
	phy = append(phy, byte(p.FCnt), byte(p.FCnt>>8))
	phy = append(phy, p.FPort)
	phy = append(phy, frm...)

	mic, err := ComputeMIC(p.NwkSKey, p.DevAddr, p.FCnt, DirectionDown, phy)
	if err != nil {
		return nil, fmt.Errorf("compute mic: %w", err)
	}
	phy = append(phy, mic[:]...)

	return phy, nil
}
