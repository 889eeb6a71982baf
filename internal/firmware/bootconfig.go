package firmware

import (
	"encoding/binary"
	"fmt"
)

var le = binary.LittleEndian

// Bank is a firmware slot on the external flash
type Bank uint32

const (
	BankA      Bank = 0
	BankB      Bank = 1
	BankGolden Bank = 2 // recovery image, never written over the network
)

func (b Bank) String() string {
	switch b {
	case BankA:
		return "A"
	case BankB:
		return "B"
	case BankGolden:
		return "golden"
	default:
		return fmt.Sprintf("bank(%d)", uint32(b))
	}
}

func (b Bank) Valid() bool {
	return b <= BankGolden
}

// Complement returns the writable bank an update should target while b is
// active. Anything but bank A maps to bank A.
func (b Bank) Complement() Bank {
	if b == BankA {
		return BankB
	}
	return BankA
}

// ImageInfo describes the image stored in one bank
type ImageInfo struct {
	Size     uint32
	Checksum uint32
}

// BootConfig is the record the boot loader reads to pick a bank
type BootConfig struct {
	Active Bank
	Images [3]ImageInfo
}

const BootConfigSize = 4 + 3*8

func (c *BootConfig) Marshal() []byte {
	buf := make([]byte, BootConfigSize)
	le.PutUint32(buf[0:4], uint32(c.Active))
	for i, img := range c.Images {
		off := 4 + i*8
		le.PutUint32(buf[off:], img.Size)
		le.PutUint32(buf[off+4:], img.Checksum)
	}
	return buf
}

func UnmarshalBootConfig(data []byte) (BootConfig, error) {
	if len(data) < BootConfigSize {
		return BootConfig{}, fmt.Errorf("boot config of %d bytes", len(data))
	}

	cfg := BootConfig{Active: Bank(le.Uint32(data[0:4]))}
	for i := range cfg.Images {
		off := 4 + i*8
		cfg.Images[i] = ImageInfo{
			Size:     le.Uint32(data[off:]),
			Checksum: le.Uint32(data[off+4:]),
		}
	}
	return cfg, nil
}
