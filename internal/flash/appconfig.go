package flash

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/goodieshq/linkrelay/internal/platform"
	"github.com/goodieshq/linkrelay/internal/protocol"
	"github.com/goodieshq/linkrelay/internal/protocol/packets/v1"
	"github.com/rs/zerolog/log"
)

// CalibrationSize is the number of calibration slots, indexed from 1
const CalibrationSize = 4

const appConfigSize = CalibrationSize*2 + 1 + 4

var le = binary.LittleEndian

// AppConfig is the persisted application configuration
type AppConfig struct {
	Calibration  [CalibrationSize]uint16
	FlippedDrive bool
	Checksum     uint32
}

func (c *AppConfig) body() []byte {
	buf := make([]byte, appConfigSize-4)
	for i, v := range c.Calibration {
		le.PutUint16(buf[i*2:], v)
	}
	if c.FlippedDrive {
		buf[CalibrationSize*2] = 1
	}
	return buf
}

// Marshal encodes the record and refreshes its checksum
func (c *AppConfig) Marshal() []byte {
	body := c.body()
	c.Checksum = protocol.Checksum32(0, body)
	return le.AppendUint32(body, c.Checksum)
}

// UnmarshalAppConfig decodes a record. ok is false when the checksum does not match.
func UnmarshalAppConfig(data []byte) (cfg AppConfig, ok bool) {
	if len(data) < appConfigSize {
		return AppConfig{}, false
	}
	for i := range cfg.Calibration {
		cfg.Calibration[i] = le.Uint16(data[i*2:])
	}
	cfg.FlippedDrive = data[CalibrationSize*2]&0x01 != 0
	cfg.Checksum = le.Uint32(data[appConfigSize-4:])

	return cfg, protocol.Checksum32(0, data[:appConfigSize-4]) == cfg.Checksum
}

// AppStore owns the application configuration and its persisted record
type AppStore struct {
	rec      *Record
	platform *platform.Platform
	quiesce  time.Duration

	mu  sync.Mutex
	cfg AppConfig
}

type AppStoreOpts struct {
	Device       Device
	Layout       Layout
	Platform     *platform.Platform
	QuiesceDelay time.Duration // pause before writing so streams can stop
}

func NewAppStore(opts AppStoreOpts) *AppStore {
	return &AppStore{
		rec:      NewRecord(opts.Device, opts.Layout.AppConfig),
		platform: opts.Platform,
		quiesce:  opts.QuiesceDelay,
	}
}

// Load reads the persisted record. An invalid record is replaced by defaults.
func (s *AppStore) Load() error {
	buf := make([]byte, appConfigSize)
	if err := s.rec.Load(buf); err != nil {
		return err
	}

	cfg, ok := UnmarshalAppConfig(buf)
	if ok {
		s.mu.Lock()
		s.cfg = cfg
		s.mu.Unlock()
		return nil
	}

	log.Warn().Msg("Invalid configuration checksum, restoring defaults")
	s.mu.Lock()
	s.cfg = AppConfig{}
	data := s.cfg.Marshal()
	s.mu.Unlock()

	if err := s.rec.Save(data); err != nil {
		return fmt.Errorf("failed to save default configuration: %w", err)
	}
	return nil
}

// Config returns a copy of the current configuration
func (s *AppStore) Config() AppConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Calibration returns the value of slot index (1-based), 0 when out of range
func (s *AppStore) Calibration(index uint8) uint16 {
	if index < 1 || index > CalibrationSize {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Calibration[index-1]
}

// SetCalibration updates slot index (1-based) in memory; out of range is ignored
func (s *AppStore) SetCalibration(index uint8, value uint16) {
	if index < 1 || index > CalibrationSize {
		return
	}
	s.mu.Lock()
	s.cfg.Calibration[index-1] = value
	s.mu.Unlock()
}

func (s *AppStore) SetFlippedDrive(flipped bool) {
	s.mu.Lock()
	s.cfg.FlippedDrive = flipped
	s.mu.Unlock()
}

// Save persists the configuration in the background and reboots the node so
// the new settings take effect. A save requested while one is running is
// rejected with ErrSaveInProgress.
func (s *AppStore) Save() error {
	if !s.rec.TryLock() {
		log.Warn().Msg("Configuration saving is already in progress")
		return ErrSaveInProgress
	}

	go func() {
		s.platform.SetMode(platform.ModeFlashing)
		time.Sleep(s.quiesce)

		s.mu.Lock()
		data := s.cfg.Marshal()
		s.mu.Unlock()

		err := s.rec.Write(data)
		s.rec.Unlock()
		if err != nil {
			log.Error().Err(err).Msg("Failed to save configuration")
		} else {
			log.Info().Msg("Configuration saved")
		}
		s.platform.Reboot(0)
	}()
	return nil
}

// ApplyConfig applies a CONFIG message payload and persists it
func (s *AppStore) ApplyConfig(pkt *packets.PktConfig) error {
	switch pkt.Type {
	case packets.ConfigFlippedDrive:
		s.SetFlippedDrive(pkt.FlippedDrive())
	case packets.ConfigCalibration:
		index, value := pkt.Calibration()
		if index < 1 || index > CalibrationSize {
			return fmt.Errorf("%w: calibration index %d", protocol.ErrInvalidPayload, index)
		}
		s.SetCalibration(index, value)
	default:
		return fmt.Errorf("%w: config type %d", protocol.ErrUnknownType, pkt.Type)
	}
	return s.Save()
}
