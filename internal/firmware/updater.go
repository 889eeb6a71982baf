package firmware

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goodieshq/linkrelay/internal/flash"
	"github.com/goodieshq/linkrelay/internal/platform"
	"github.com/goodieshq/linkrelay/internal/protocol"
	"github.com/goodieshq/linkrelay/internal/protocol/packets/v1"
	"github.com/goodieshq/linkrelay/internal/utils"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
)

// State of the updater
type State uint32

const (
	StateIdle       State = 0 // no transfer open
	StateReceiving  State = 1 // transfer open, waiting for the next message
	StateProcessing State = 2 // a message is being applied to flash
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReceiving:
		return "receiving"
	case StateProcessing:
		return "processing"
	default:
		return "unknown"
	}
}

// Session is a snapshot of the open transfer
type Session struct {
	ID       ulid.ULID
	Bank     Bank
	Base     uint32
	Size     uint32
	Checksum uint32
	Written  uint32 // bytes acknowledged so far

	last    uint32 // offset of the last accepted packet
	lastLen int
	lastSum uint32
}

// Updater writes firmware images received over the network into the
// inactive bank and switches the boot record once the image is verified.
type Updater struct {
	dev      flash.Device
	layout   flash.Layout
	platform *platform.Platform
	reply    func(packets.ErrorCode)
	quiesce  time.Duration
	record   *flash.Record

	state atomic.Uint32

	mu      sync.Mutex
	boot    BootConfig
	target  Bank
	session Session
}

type Opts struct {
	Device       flash.Device
	Layout       flash.Layout
	Platform     *platform.Platform
	Reply        func(packets.ErrorCode) // sends the Ack/Nack for each handled message
	QuiesceDelay time.Duration           // pause after Start so streams can stop
}

func NewUpdater(opts Opts) *Updater {
	if opts.Reply == nil {
		opts.Reply = func(packets.ErrorCode) {}
	}
	if opts.Layout == (flash.Layout{}) {
		opts.Layout = flash.DefaultLayout()
	}

	return &Updater{
		dev:      opts.Device,
		layout:   opts.Layout,
		platform: opts.Platform,
		reply:    opts.Reply,
		quiesce:  opts.QuiesceDelay,
		record:   flash.NewRecord(opts.Device, opts.Layout.BootConfig),
		target:   BankA,
	}
}

// Load reads the boot record and selects the bank the next update targets
func (u *Updater) Load() error {
	buf := make([]byte, BootConfigSize)
	if err := u.record.Load(buf); err != nil {
		return err
	}

	cfg, err := UnmarshalBootConfig(buf)
	if err != nil {
		return err
	}
	if !cfg.Active.Valid() {
		log.Warn().Uint32("bank", uint32(cfg.Active)).Msg("Boot configuration is not initialized")
		cfg = BootConfig{Active: BankGolden}
	}

	u.mu.Lock()
	u.boot = cfg
	u.target = cfg.Active.Complement()
	u.mu.Unlock()

	log.Info().Str("active", cfg.Active.String()).Str("target", u.Target().String()).Msg("Boot configuration loaded")
	return nil
}

func (u *Updater) State() State {
	return State(u.state.Load())
}

// Target returns the bank the next update writes
func (u *Updater) Target() Bank {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.target
}

// BootConfig returns the last loaded or written boot record
func (u *Updater) BootConfig() BootConfig {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.boot
}

// Session returns the open transfer, ok is false when idle
func (u *Updater) Session() (Session, bool) {
	if u.State() == StateIdle {
		return Session{}, false
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.session, true
}

// Handle applies one firmware message. Every message that belongs to this
// node is answered through Reply exactly once. Packet and End messages
// received while idle return ErrNoSession without a reply.
func (u *Updater) Handle(msg *protocol.Message) error {
	switch msg.Opcode {
	case protocol.OpFirmwareStart:
		u.start(msg.Payload)
		return nil
	case protocol.OpFirmwarePacket:
		return u.acquire(func() { u.packet(msg.Payload) })
	case protocol.OpFirmwareEnd:
		return u.acquire(func() { u.end(msg.Payload) })
	default:
		return fmt.Errorf("%w: %s", protocol.ErrUnknownOpcode, msg.Opcode)
	}
}

// acquire runs fn while holding the session in the processing state
func (u *Updater) acquire(fn func()) error {
	if !u.state.CompareAndSwap(uint32(StateReceiving), uint32(StateProcessing)) {
		if u.State() == StateIdle {
			return ErrNoSession
		}
		u.reply(packets.ErrorBusy)
		return nil
	}
	fn()
	return nil
}

func (u *Updater) start(payload []byte) {
	if !u.state.CompareAndSwap(uint32(StateIdle), uint32(StateProcessing)) {
		log.Warn().Msg("Firmware start rejected, transfer already in progress")
		u.reply(packets.ErrorBusy)
		return
	}

	code := u.open(payload)
	if code != packets.ErrorNone {
		u.state.Store(uint32(StateIdle))
	} else {
		u.state.Store(uint32(StateReceiving))
	}
	u.reply(code)
}

func (u *Updater) open(payload []byte) packets.ErrorCode {
	pkt, err := packets.UnmarshalFirmwareStart(payload)
	if err != nil {
		log.Warn().Err(err).Msg("Invalid firmware start")
		return packets.ErrorInvalidPacketLength
	}
	if u.platform.RebootPending() {
		return packets.ErrorInternal
	}
	if pkt.ImageSize == 0 {
		return packets.ErrorInvalidPacketLength
	}
	if pkt.ImageSize > u.layout.BankSize {
		log.Warn().Uint32("size", pkt.ImageSize).Uint32("bank_size", u.layout.BankSize).Msg("Firmware image does not fit a bank")
		return packets.ErrorImageTooLarge
	}

	target := u.Target()
	base, err := u.layout.BankBase(uint32(target))
	if err != nil {
		log.Error().Err(err).Msg("Unknown firmware target bank")
		return packets.ErrorInternal
	}

	id, err := utils.NewULID()
	if err != nil {
		return packets.ErrorInternal
	}

	if !u.platform.SetMode(platform.ModeFlashing) {
		return packets.ErrorInternal
	}
	time.Sleep(u.quiesce)

	u.mu.Lock()
	u.session = Session{ID: id, Bank: target, Base: base, Size: pkt.ImageSize}
	u.mu.Unlock()

	log.Info().
		Str("session", id.String()).
		Str("bank", target.String()).
		Str("size", utils.DisplayBi(uint64(pkt.ImageSize))).
		Msg("Firmware transfer started")
	return packets.ErrorNone
}

func (u *Updater) packet(payload []byte) {
	defer u.state.Store(uint32(StateReceiving))

	code := u.write(payload)
	if code != packets.ErrorNone {
		log.Warn().Str("error", code.String()).Msg("Firmware packet rejected")
	}
	u.reply(code)
}

func (u *Updater) write(payload []byte) packets.ErrorCode {
	pkt, err := packets.UnmarshalFirmwarePacket(payload)
	if err != nil {
		return packets.ErrorInvalidPacketLength
	}

	u.mu.Lock()
	sess := u.session
	u.mu.Unlock()

	n := len(pkt.Data)
	if pkt.Offset >= sess.Size || uint64(pkt.Offset)+uint64(n) > uint64(sess.Size) {
		return packets.ErrorInvalidPacketAddress
	}
	if n == 0 || int(pkt.Length) != n || uint32(n) > u.layout.PageSize {
		return packets.ErrorInvalidPacketLength
	}

	addr := sess.Base + pkt.Offset
	end := addr + uint32(n)
	sector := u.layout.SectorSize
	for s := (addr + sector - 1) / sector * sector; s < end; s += sector {
		if err := u.dev.EraseSector(s); err != nil {
			log.Error().Err(err).Uint32("addr", s).Msg("Failed to erase firmware sector")
			return packets.ErrorEraseFailure
		}
	}

	if err := u.dev.Program(addr, pkt.Data); err != nil {
		log.Error().Err(err).Uint32("addr", addr).Msg("Failed to program firmware page")
		return packets.ErrorWriteFailure
	}

	readback := make([]byte, n)
	if err := u.dev.Read(addr, readback); err != nil {
		log.Error().Err(err).Uint32("addr", addr).Msg("Failed to read back firmware page")
		return packets.ErrorReadFailure
	}
	if !bytes.Equal(readback, pkt.Data) {
		return packets.ErrorCompareFailure
	}

	sum := protocol.Checksum32(0, pkt.Data)

	u.mu.Lock()
	// a resent packet replaces its previous contribution
	if sess.lastLen > 0 && sess.last == pkt.Offset && sess.lastLen == n {
		u.session.Checksum -= sess.lastSum
		u.session.Written -= uint32(n)
	}
	u.session.Checksum += sum
	u.session.Written += uint32(n)
	u.session.last = pkt.Offset
	u.session.lastLen = n
	u.session.lastSum = sum
	u.mu.Unlock()

	return packets.ErrorNone
}

func (u *Updater) end(payload []byte) {
	pkt, err := packets.UnmarshalFirmwareEnd(payload)
	if err != nil {
		u.state.Store(uint32(StateReceiving))
		u.reply(packets.ErrorInvalidPacketLength)
		return
	}

	u.mu.Lock()
	sess := u.session
	u.mu.Unlock()

	logger := log.With().Str("session", sess.ID.String()).Logger()

	if pkt.Checksum != sess.Checksum {
		logger.Warn().
			Uint32("expected", pkt.Checksum).
			Uint32("actual", sess.Checksum).
			Msg("Firmware checksum mismatch, transfer aborted")
		u.close()
		u.reply(packets.ErrorMismatchChecksum)
		return
	}

	u.mu.Lock()
	boot := u.boot
	u.mu.Unlock()

	boot.Active = sess.Bank
	boot.Images[sess.Bank] = ImageInfo{Size: sess.Size, Checksum: sess.Checksum}

	if err := u.record.Save(boot.Marshal()); err != nil {
		if errors.Is(err, flash.ErrSaveInProgress) {
			u.state.Store(uint32(StateReceiving))
			u.reply(packets.ErrorBusy)
			return
		}
		logger.Error().Err(err).Msg("Failed to write boot configuration")
		u.close()
		u.reply(packets.ErrorWriteFailure)
		return
	}

	u.mu.Lock()
	u.boot = boot
	u.session = Session{}
	u.mu.Unlock()
	u.state.Store(uint32(StateIdle))

	logger.Info().
		Str("bank", sess.Bank.String()).
		Uint32("checksum", sess.Checksum).
		Msg("Firmware transfer complete, awaiting reboot")
	u.reply(packets.ErrorNone)
}

// close ends a failed transfer and resumes normal operation
func (u *Updater) close() {
	u.mu.Lock()
	u.session = Session{}
	u.mu.Unlock()
	u.state.Store(uint32(StateIdle))
	u.platform.SetMode(platform.ModeRunning)
}
