package client

import (
	"context"
	"math/rand"
	"net/netip"
	"testing"
	"time"

	"github.com/goodieshq/linkrelay/internal/firmware"
	"github.com/goodieshq/linkrelay/internal/flash"
	"github.com/goodieshq/linkrelay/internal/protocol"
	"github.com/goodieshq/linkrelay/internal/protocol/packets/v1"
	"github.com/goodieshq/linkrelay/internal/server"
	"github.com/goodieshq/linkrelay/internal/transport"
	"github.com/goodieshq/linkrelay/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	updaterAddr = netip.MustParseAddrPort("10.0.0.1:9000")
	unusedAddr  = netip.MustParseAddrPort("10.0.9.9:5000")
)

var testLayout = flash.Layout{
	BootConfig: 0x1000,
	AppConfig:  0x2000,
	Banks:      [3]uint32{0x10000, 0x20000, 0x30000},
	BankSize:   0x10000,
	SectorSize: 0x1000,
	PageSize:   1024,
}

type testNode struct {
	*server.Server
	device *flash.MemDevice
	master netip.AddrPort
}

// startNode runs a node whose slave link points at next
func startNode(t *testing.T, hub *transport.Hub, index int, next netip.AddrPort) *testNode {
	return startNodeWithLayout(t, hub, index, next, testLayout)
}

func startNodeWithLayout(t *testing.T, hub *transport.Hub, index int, next netip.AddrPort, layout flash.Layout) *testNode {
	n := &testNode{
		device: flash.NewMemDevice(layout.DeviceSize(), layout.SectorSize),
		master: netip.AddrPortFrom(netip.AddrFrom4([4]byte{10, 0, byte(index), 1}), 5000),
	}
	slave := netip.AddrPortFrom(netip.AddrFrom4([4]byte{10, 0, byte(index), 2}), 5000)

	srv, err := server.NewServer(server.ServerOpts{
		Master:        hub.Listen(n.master),
		Slave:         hub.Listen(slave),
		SlaveAddr:     next,
		ActiveTimeout: utils.Ptr(time.Duration(0)),
		Device:        n.device,
		Layout:        layout,
		QuiesceDelay:  utils.Ptr(time.Duration(0)),
	})
	require.NoError(t, err)
	n.Server = srv

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("node did not stop")
		}
	})
	return n
}

func testImage(size int) []byte {
	image := make([]byte, size)
	rand.New(rand.NewSource(1)).Read(image)
	return image
}

func newTestClient(hub *transport.Hub, dest netip.AddrPort) *ClientUDP {
	return NewClientUDP(hub.Listen(updaterAddr), dest, utils.Ptr(500*time.Millisecond))
}

func TestRunOptsDefaults(t *testing.T) {
	var opts RunOpts
	assert.Equal(t, uint8(DEFAULT_TARGET), opts.GetTarget())
	assert.Equal(t, uint8(DEFAULT_FIRST_HOP), opts.GetFirstHop())
	assert.True(t, opts.GetAssignAddress())
	assert.Equal(t, uint32(DEFAULT_PAGE_SIZE), opts.GetPageSize())
	assert.Equal(t, DEFAULT_RETRIES, opts.GetRetries())
	assert.False(t, opts.GetBoot())

	opts.PageSize = utils.Ptr(uint32(protocol.MTU))
	assert.Equal(t, uint32(packets.MaxFirmwareData), opts.GetPageSize())
}

func TestUploadFirstUnit(t *testing.T) {
	hub := transport.NewHub()
	node := startNode(t, hub, 1, unusedAddr)
	c := newTestClient(hub, node.master)

	image := testImage(5000)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, c.Upload(ctx, image, RunOpts{}))

	boot := node.Updater().BootConfig()
	assert.Equal(t, firmware.BankA, boot.Active)
	assert.Equal(t, uint32(len(image)), boot.Images[firmware.BankA].Size)
	assert.Equal(t, protocol.Checksum32(0, image), boot.Images[firmware.BankA].Checksum)

	got := make([]byte, len(image))
	require.NoError(t, node.device.Read(testLayout.Banks[firmware.BankA], got))
	assert.Equal(t, image, got)
}

func TestUploadDefaultsMatchNode(t *testing.T) {
	layout := flash.DefaultLayout()
	hub := transport.NewHub()
	node := startNodeWithLayout(t, hub, 1, unusedAddr, layout)
	c := newTestClient(hub, node.master)

	image := testImage(4096)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, c.Upload(ctx, image, RunOpts{}))

	boot := node.Updater().BootConfig()
	assert.Equal(t, firmware.BankA, boot.Active)
	assert.Equal(t, uint32(len(image)), boot.Images[firmware.BankA].Size)

	got := make([]byte, len(image))
	require.NoError(t, node.device.Read(layout.Banks[firmware.BankA], got))
	assert.Equal(t, image, got)
}

func TestUploadAddressesBeforeStart(t *testing.T) {
	hub := transport.NewHub()
	node := startNode(t, hub, 1, unusedAddr)
	c := newTestClient(hub, node.master)

	// without resends the first Start must already find the unit addressed
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, c.Upload(ctx, testImage(2000), RunOpts{Retries: utils.Ptr(0)}))
	assert.Equal(t, uint8(1), node.Registry().LocalID())
}

func TestUploadThroughRelay(t *testing.T) {
	hub := transport.NewHub()
	second := startNode(t, hub, 2, unusedAddr)
	first := startNode(t, hub, 1, second.master)
	c := newTestClient(hub, first.master)

	image := testImage(3000)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, c.Upload(ctx, image, RunOpts{Target: utils.Ptr(uint8(2))}))

	assert.Equal(t, firmware.BankA, second.Updater().BootConfig().Active)
	assert.Equal(t, firmware.BankGolden, first.Updater().BootConfig().Active, "relaying unit is untouched")
	assert.Equal(t, firmware.StateIdle, first.Updater().State())
}

func TestUploadReportsNack(t *testing.T) {
	hub := transport.NewHub()
	node := startNode(t, hub, 1, unusedAddr)
	node.device.FailProgram = func(addr uint32) bool { return true }
	c := newTestClient(hub, node.master)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := c.Upload(ctx, testImage(2048), RunOpts{Retries: utils.Ptr(1)})

	var nack *NackError
	require.ErrorAs(t, err, &nack)
	assert.Equal(t, "packet", nack.Stage)
	assert.Equal(t, packets.ErrorWriteFailure, nack.Code)
	assert.ErrorIs(t, err, packets.ErrorWriteFailure)
}

func TestUploadTooLarge(t *testing.T) {
	hub := transport.NewHub()
	node := startNode(t, hub, 1, unusedAddr)
	c := newTestClient(hub, node.master)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := c.Upload(ctx, testImage(int(testLayout.BankSize)+1), RunOpts{})
	assert.ErrorIs(t, err, packets.ErrorImageTooLarge)
	assert.Equal(t, firmware.StateIdle, node.Updater().State())
}

func TestUploadWithoutTarget(t *testing.T) {
	hub := transport.NewHub()
	c := newTestClient(hub, unusedAddr)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.Upload(ctx, testImage(10), RunOpts{Retries: utils.Ptr(0)})
	assert.ErrorIs(t, err, ErrNoReply)
	assert.Error(t, c.Upload(ctx, nil, RunOpts{}))
}
