package firmware

import (
	"bytes"
	"testing"
	"time"

	"github.com/goodieshq/linkrelay/internal/flash"
	"github.com/goodieshq/linkrelay/internal/platform"
	"github.com/goodieshq/linkrelay/internal/protocol"
	"github.com/goodieshq/linkrelay/internal/protocol/packets/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLayout = flash.Layout{
	BootConfig: 0x1000,
	AppConfig:  0x2000,
	Banks:      [3]uint32{0x10000, 0x20000, 0x30000},
	BankSize:   0x10000,
	SectorSize: 0x1000,
	PageSize:   0x1000,
}

type harness struct {
	dev      *flash.MemDevice
	platform *platform.Platform
	updater  *Updater
	replies  []packets.ErrorCode
}

func newHarness(t *testing.T) *harness {
	return newHarnessWithDevice(t, flash.NewMemDevice(testLayout.DeviceSize(), testLayout.SectorSize))
}

// newHarnessWithBoot starts from a device whose boot record is cfg
func newHarnessWithBoot(t *testing.T, cfg BootConfig) *harness {
	dev := flash.NewMemDevice(testLayout.DeviceSize(), testLayout.SectorSize)
	require.NoError(t, dev.EraseSector(testLayout.BootConfig))
	require.NoError(t, dev.Program(testLayout.BootConfig, cfg.Marshal()))
	return newHarnessWithDevice(t, dev)
}

func newHarnessWithDevice(t *testing.T, dev *flash.MemDevice) *harness {
	h := &harness{
		dev:      dev,
		platform: platform.New(platform.Opts{}),
	}
	h.platform.SetMode(platform.ModeRunning)
	h.updater = NewUpdater(Opts{
		Device:   h.dev,
		Layout:   testLayout,
		Platform: h.platform,
		Reply:    func(code packets.ErrorCode) { h.replies = append(h.replies, code) },
	})
	require.NoError(t, h.updater.Load())
	return h
}

func (h *harness) send(t *testing.T, op protocol.Opcode, pkt packets.Packet) (packets.ErrorCode, error) {
	msg, err := packets.NewMessage(1, op, pkt)
	require.NoError(t, err)

	before := len(h.replies)
	err = h.updater.Handle(msg)
	if len(h.replies) == before {
		return packets.ErrorNone, err
	}
	require.Len(t, h.replies, before+1, "exactly one reply per message")
	return h.replies[before], err
}

func (h *harness) start(t *testing.T, size uint32) packets.ErrorCode {
	code, err := h.send(t, protocol.OpFirmwareStart, &packets.PktFirmwareStart{ImageSize: size})
	require.NoError(t, err)
	return code
}

// packet builds the payload by hand so tests can use pages larger than
// one frame, as the updater is driven in-process here.
func (h *harness) packet(t *testing.T, offset uint32, data []byte) packets.ErrorCode {
	return h.rawPacket(t, offset, uint16(len(data)), data)
}

func (h *harness) rawPacket(t *testing.T, offset uint32, length uint16, data []byte) packets.ErrorCode {
	payload := make([]byte, packets.PktFirmwarePacketHeaderSize+len(data))
	le.PutUint32(payload[0:4], offset)
	le.PutUint16(payload[4:6], length)
	copy(payload[6:], data)

	before := len(h.replies)
	err := h.updater.Handle(&protocol.Message{Address: 1, Opcode: protocol.OpFirmwarePacket, Payload: payload})
	require.NoError(t, err)
	require.Len(t, h.replies, before+1, "exactly one reply per message")
	return h.replies[before]
}

func (h *harness) end(t *testing.T, checksum uint32) packets.ErrorCode {
	code, err := h.send(t, protocol.OpFirmwareEnd, &packets.PktFirmwareEnd{Checksum: checksum})
	require.NoError(t, err)
	return code
}

func (h *harness) bootRecord(t *testing.T) BootConfig {
	buf := make([]byte, BootConfigSize)
	require.NoError(t, h.dev.Read(testLayout.BootConfig, buf))
	cfg, err := UnmarshalBootConfig(buf)
	require.NoError(t, err)
	return cfg
}

func ones(n int) []byte {
	return bytes.Repeat([]byte{0x01}, n)
}

func TestBankComplement(t *testing.T) {
	assert.Equal(t, BankB, BankA.Complement())
	assert.Equal(t, BankA, BankB.Complement())
	assert.Equal(t, BankA, BankGolden.Complement())
}

func TestBootConfigEncoding(t *testing.T) {
	cfg := BootConfig{Active: BankB}
	cfg.Images[BankB] = ImageInfo{Size: 8192, Checksum: 0x2000}

	data := cfg.Marshal()
	require.Len(t, data, BootConfigSize)
	assert.Equal(t, []byte{1, 0, 0, 0}, data[0:4])

	got, err := UnmarshalBootConfig(data)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestLoadErasedRecordTargetsBankA(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, BankA, h.updater.Target())
	assert.Equal(t, StateIdle, h.updater.State())
}

func TestOTAHappyPath(t *testing.T) {
	h := newHarness(t)

	require.Equal(t, packets.ErrorNone, h.start(t, 8192))
	assert.Equal(t, platform.ModeFlashing, h.platform.Mode())

	sess, ok := h.updater.Session()
	require.True(t, ok)
	assert.Equal(t, BankA, sess.Bank)
	assert.Equal(t, uint32(0x10000), sess.Base)

	require.Equal(t, packets.ErrorNone, h.packet(t, 0, ones(4096)))
	require.Equal(t, packets.ErrorNone, h.packet(t, 4096, ones(4096)))

	sess, _ = h.updater.Session()
	assert.Equal(t, uint32(8192), sess.Checksum)
	assert.Equal(t, uint32(8192), sess.Written)

	require.Equal(t, packets.ErrorNone, h.end(t, 8192))
	assert.Equal(t, StateIdle, h.updater.State())

	boot := h.bootRecord(t)
	assert.Equal(t, BankA, boot.Active)
	assert.Equal(t, ImageInfo{Size: 8192, Checksum: 8192}, boot.Images[BankA])
	assert.Equal(t, BankA, h.updater.Target(), "target is fixed until reboot")

	buf := make([]byte, 8192)
	require.NoError(t, h.dev.Read(testLayout.Banks[BankA], buf))
	assert.Equal(t, ones(8192), buf)
}

func TestOTATargetFixedUntilReboot(t *testing.T) {
	running := BootConfig{Active: BankA}
	running.Images[BankA] = ImageInfo{Size: 4, Checksum: 4}
	h := newHarnessWithBoot(t, running)
	require.Equal(t, BankB, h.updater.Target())

	for _, size := range []uint32{8192, 16} {
		require.Equal(t, packets.ErrorNone, h.start(t, size))
		sess, ok := h.updater.Session()
		require.True(t, ok)
		assert.Equal(t, BankB, sess.Bank)
		assert.Equal(t, testLayout.Banks[BankB], sess.Base)

		for off := uint32(0); off < size; off += testLayout.PageSize {
			n := min(testLayout.PageSize, size-off)
			require.Equal(t, packets.ErrorNone, h.packet(t, off, ones(int(n))))
		}
		require.Equal(t, packets.ErrorNone, h.end(t, size))
		assert.Equal(t, BankB, h.updater.Target())
	}

	boot := h.bootRecord(t)
	assert.Equal(t, BankB, boot.Active)
	assert.Equal(t, ImageInfo{Size: 4, Checksum: 4}, boot.Images[BankA], "running bank untouched")
	assert.Equal(t, ImageInfo{Size: 16, Checksum: 16}, boot.Images[BankB])

	// the running image is still erased flash, never programmed
	buf := make([]byte, 16)
	require.NoError(t, h.dev.Read(testLayout.Banks[BankA], buf))
	assert.Equal(t, bytes.Repeat([]byte{0xFF}, 16), buf)

	// a reboot reloads the record and flips the target
	reloaded := newHarnessWithDevice(t, h.dev)
	assert.Equal(t, BankA, reloaded.updater.Target())
}

func TestOTAChecksumMismatch(t *testing.T) {
	h := newHarness(t)
	before := h.bootRecord(t)

	require.Equal(t, packets.ErrorNone, h.start(t, 8192))
	require.Equal(t, packets.ErrorNone, h.packet(t, 0, ones(4096)))
	require.Equal(t, packets.ErrorNone, h.packet(t, 4096, ones(4096)))
	assert.Equal(t, packets.ErrorMismatchChecksum, h.end(t, 8193))

	assert.Equal(t, before, h.bootRecord(t))
	assert.Equal(t, StateIdle, h.updater.State())
	assert.Equal(t, platform.ModeRunning, h.platform.Mode())
	assert.Equal(t, BankA, h.updater.Target())
}

func TestOTABusyStart(t *testing.T) {
	h := newHarness(t)

	require.Equal(t, packets.ErrorNone, h.start(t, 8192))
	require.Equal(t, packets.ErrorNone, h.packet(t, 0, ones(4096)))
	before, _ := h.updater.Session()

	assert.Equal(t, packets.ErrorBusy, h.start(t, 100))

	after, ok := h.updater.Session()
	require.True(t, ok)
	assert.Equal(t, before, after)
	assert.Equal(t, StateReceiving, h.updater.State())
}

func TestOTAIdleMessagesAreNotHandled(t *testing.T) {
	h := newHarness(t)

	code, err := h.send(t, protocol.OpFirmwarePacket, packets.NewFirmwarePacket(0, ones(4)))
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Equal(t, packets.ErrorNone, code)

	_, err = h.send(t, protocol.OpFirmwareEnd, &packets.PktFirmwareEnd{})
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Empty(t, h.replies)
}

func TestOTAStartRejections(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, packets.ErrorInvalidPacketLength, h.start(t, 0))
	assert.Equal(t, packets.ErrorImageTooLarge, h.start(t, testLayout.BankSize+1))
	assert.Equal(t, StateIdle, h.updater.State())

	h.platform.Reboot(time.Hour)
	defer h.platform.Stop()
	assert.Equal(t, packets.ErrorInternal, h.start(t, 16))
	assert.Equal(t, StateIdle, h.updater.State())
}

func TestOTAPacketValidation(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, packets.ErrorNone, h.start(t, 8192))

	tests := []struct {
		name   string
		offset uint32
		length uint16
		data   []byte
		code   packets.ErrorCode
	}{
		{"offset past image", 8192, 1, ones(1), packets.ErrorInvalidPacketAddress},
		{"runs past image", 8000, 256, ones(256), packets.ErrorInvalidPacketAddress},
		{"larger than a page", 0, 4097, ones(4097), packets.ErrorInvalidPacketLength},
		{"declared length mismatch", 0, 10, ones(4), packets.ErrorInvalidPacketLength},
		{"empty", 0, 0, nil, packets.ErrorInvalidPacketLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, h.rawPacket(t, tt.offset, tt.length, tt.data))
		})
	}

	sess, ok := h.updater.Session()
	require.True(t, ok, "session survives rejected packets")
	assert.Zero(t, sess.Checksum)
	assert.Equal(t, StateReceiving, h.updater.State())
}

func TestOTAFlashFailures(t *testing.T) {
	tests := []struct {
		name   string
		inject func(dev *flash.MemDevice)
		code   packets.ErrorCode
	}{
		{"erase", func(dev *flash.MemDevice) {
			dev.FailErase = func(uint32) bool { return true }
		}, packets.ErrorEraseFailure},
		{"write", func(dev *flash.MemDevice) {
			dev.FailProgram = func(uint32) bool { return true }
		}, packets.ErrorWriteFailure},
		{"read", func(dev *flash.MemDevice) {
			dev.FailRead = func(uint32) bool { return true }
		}, packets.ErrorReadFailure},
		{"compare", func(dev *flash.MemDevice) {
			dev.Corrupt = func(_ uint32, buf []byte) { buf[len(buf)-1] ^= 0x80 }
		}, packets.ErrorCompareFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			require.Equal(t, packets.ErrorNone, h.start(t, 8192))

			tt.inject(h.dev)
			assert.Equal(t, tt.code, h.packet(t, 0, ones(4096)))
			assert.True(t, tt.code.Retryable())

			sess, ok := h.updater.Session()
			require.True(t, ok)
			assert.Zero(t, sess.Checksum, "failed packets do not count")
		})
	}
}

func TestOTAResentPacketCountsOnce(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, packets.ErrorNone, h.start(t, 512))

	require.Equal(t, packets.ErrorNone, h.packet(t, 0, ones(256)))
	require.Equal(t, packets.ErrorNone, h.packet(t, 0, ones(256)))
	require.Equal(t, packets.ErrorNone, h.packet(t, 256, ones(256)))

	assert.Equal(t, packets.ErrorNone, h.end(t, 512))
}

func TestOTAEndSurvivesBusyRecord(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, packets.ErrorNone, h.start(t, 16))
	require.Equal(t, packets.ErrorNone, h.packet(t, 0, ones(16)))

	require.True(t, h.updater.record.TryLock())
	assert.Equal(t, packets.ErrorBusy, h.end(t, 16))
	assert.Equal(t, StateReceiving, h.updater.State())

	h.updater.record.Unlock()
	assert.Equal(t, packets.ErrorNone, h.end(t, 16))
}
