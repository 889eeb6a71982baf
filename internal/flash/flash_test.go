package flash

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDevices(t *testing.T) map[string]Device {
	file, err := OpenFileDevice(filepath.Join(t.TempDir(), "flash.img"), 0x4000, 0x1000)
	require.NoError(t, err)
	t.Cleanup(func() { file.Close() })

	return map[string]Device{
		"mem":  NewMemDevice(0x4000, 0x1000),
		"file": file,
	}
}

func TestDeviceNORSemantics(t *testing.T) {
	for name, dev := range testDevices(t) {
		t.Run(name, func(t *testing.T) {
			buf := make([]byte, 4)
			require.NoError(t, dev.Read(0x1000, buf))
			assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFF}, buf, "starts erased")

			require.NoError(t, dev.Program(0x1000, []byte{0x0F, 0xF0, 0x55, 0xAA}))
			require.NoError(t, dev.Program(0x1000, []byte{0xFF, 0x0F, 0xFF, 0xFF}))
			require.NoError(t, dev.Read(0x1000, buf))
			assert.Equal(t, []byte{0x0F, 0x00, 0x55, 0xAA}, buf, "program only clears bits")

			require.NoError(t, dev.EraseSector(0x1000))
			require.NoError(t, dev.Read(0x1000, buf))
			assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFF}, buf)
		})
	}
}

func TestDeviceBounds(t *testing.T) {
	for name, dev := range testDevices(t) {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, dev.EraseSector(0x1001), ErrUnaligned)
			assert.ErrorIs(t, dev.EraseSector(0x4000), ErrOutOfRange)
			assert.ErrorIs(t, dev.Program(0x3FFF, []byte{0, 0}), ErrOutOfRange)
			assert.ErrorIs(t, dev.Read(0x4000, make([]byte, 1)), ErrOutOfRange)
		})
	}
}

func TestMemDeviceFaults(t *testing.T) {
	dev := NewMemDevice(0x2000, 0x1000)
	dev.FailErase = func(addr uint32) bool { return addr == 0x1000 }
	assert.NoError(t, dev.EraseSector(0))
	assert.ErrorIs(t, dev.EraseSector(0x1000), ErrInjected)

	dev.Corrupt = func(addr uint32, buf []byte) { buf[0] ^= 1 }
	buf := make([]byte, 1)
	require.NoError(t, dev.Read(0, buf))
	assert.Equal(t, byte(0xFE), buf[0])
}

func TestDefaultLayout(t *testing.T) {
	l := DefaultLayout()
	assert.Equal(t, uint32(0x800000), l.DeviceSize())

	base, err := l.BankBase(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x400000), base)

	_, err = l.BankBase(3)
	assert.ErrorIs(t, err, ErrInvalidBank)
}

func TestRecordGuard(t *testing.T) {
	dev := NewMemDevice(0x2000, 0x1000)
	rec := NewRecord(dev, 0x1000)

	require.NoError(t, rec.Save([]byte{1, 2, 3}))
	require.NoError(t, rec.Save([]byte{4, 5}))

	buf := make([]byte, 3)
	require.NoError(t, rec.Load(buf))
	assert.Equal(t, []byte{4, 5, 0xFF}, buf, "each save erases the sector first")

	require.True(t, rec.TryLock())
	assert.True(t, rec.Saving())
	assert.ErrorIs(t, rec.Save([]byte{9}), ErrSaveInProgress)
	rec.Unlock()
	assert.NoError(t, rec.Save([]byte{9}))
}
