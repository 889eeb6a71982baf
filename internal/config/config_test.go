package config

import (
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, uint16(DefaultPort), cfg.Master.Port)
	assert.Equal(t, 300*time.Millisecond, cfg.Link.ConnectionTimeout)
	assert.Equal(t, 5*time.Second, cfg.Link.ActiveTimeout)
	assert.Equal(t, 200, cfg.Link.QueueSize)
	assert.Equal(t, 100*time.Millisecond, cfg.Telemetry.Interval)
	assert.Equal(t, 100*time.Millisecond, cfg.Firmware.QuiesceDelay)
	assert.Equal(t, 700*time.Millisecond, cfg.Firmware.BootDelay)
	assert.False(t, cfg.Slave.Address.IsValid())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.ini")
	data := `
[master]
interface = eth0
port = 6000

[slave]
interface = eth1
address = 192.168.1.2

[link]
connection_timeout = 500ms
active_timeout = 0s

[actuator]
can_interface = can0
can_id = 0x120
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "eth0", cfg.Master.Interface)
	assert.Equal(t, uint16(6000), cfg.Master.Port)
	assert.Equal(t, netip.MustParseAddrPort("192.168.1.2:5000"), cfg.Slave.Address)
	assert.Equal(t, 500*time.Millisecond, cfg.Link.ConnectionTimeout)
	assert.Zero(t, cfg.Link.ActiveTimeout)
	assert.Equal(t, "can0", cfg.Actuator.CANInterface)
	assert.Equal(t, uint32(0x120), cfg.Actuator.CANID)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load([]byte("[slave]\naddress = not-an-address\n"))
	assert.Error(t, err)

	_, err = Load([]byte("[link]\nqueue_size = -1\n"))
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.ini"))
	assert.Error(t, err)
}
