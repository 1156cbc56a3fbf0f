package lorawan

import (
	"crypto/aes"
	"encoding/binary"
	"fmt"

	"github.com/aead/cmac"
)

// EncryptFRMPayload encrypts or decrypts an FRMPayload with the session
// key per LoRaWAN 1.0 section 4.3.3. The keystream is built from AES-ECB
// encrypted A_i blocks and XORed with the payload, so the operation is
// its own inverse.
func EncryptFRMPayload(key AES128Key, addr DevAddr, fcnt uint32, dir Direction, payload []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}

	addrLE := addr.littleEndian()
	out := make([]byte, len(payload))
	var stream [16]byte

	for offset := 0; offset < len(payload); offset += 16 {
		var ai [16]byte
		ai[0] = 0x01
		ai[5] = byte(dir)
		copy(ai[6:10], addrLE[:])
		binary.LittleEndian.PutUint32(ai[10:14], fcnt)
		ai[15] = byte(offset/16 + 1)

		block.Encrypt(stream[:], ai[:])
		for i := offset; i < len(payload) && i < offset+16; i++ {
			out[i] = payload[i] ^ stream[i-offset]
		}
	}

	return out, nil
}

// ComputeMIC computes the 4-byte frame MIC per LoRaWAN 1.0 section 4.4:
// AES-CMAC under the NwkSKey over the B0 block followed by MHDR|MACPayload.
func ComputeMIC(key AES128Key, addr DevAddr, fcnt uint32, dir Direction, msg []byte) ([4]byte, error) {
	var mic [4]byte

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return mic, fmt.Errorf("init cipher: %w", err)
	}

	addrLE := addr.littleEndian()
	var b0 [16]byte
	b0[0] = 0x49
	b0[5] = byte(dir)
	copy(b0[6:10], addrLE[:])
	binary.LittleEndian.PutUint32(b0[10:14], fcnt)
	b0[15] = byte(len(msg))

	mac, err := cmac.New(block)
	if err != nil {
		return mic, fmt.Errorf("init cmac: %w", err)
	}
	mac.Write(b0[:])
	mac.Write(msg)

	copy(mic[:], mac.Sum(nil)[:4])
	return mic, nil
}
