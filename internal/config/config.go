package config

import (
	"fmt"
	"net/netip"
	"time"

	"gopkg.in/ini.v1"
)

const DefaultPort = 5000

type Master struct {
	Interface string
	Port      uint16
}

type Slave struct {
	Interface string
	Address   netip.AddrPort // destination of frames relayed downstream
	Port      uint16
}

type Link struct {
	ConnectionTimeout time.Duration
	ActiveTimeout     time.Duration // no master traffic for this long restarts the node, 0 disables
	ReceiveTimeout    time.Duration
	QueueSize         int
}

type Telemetry struct {
	Interval time.Duration
	Platform uint8
}

type Flash struct {
	Image  string
	Create bool
}

type Firmware struct {
	QuiesceDelay time.Duration
	BootDelay    time.Duration
}

type Actuator struct {
	CANInterface string
	CANID        uint32
}

type Log struct {
	Level  string
	Remote bool
}

// Config is the node configuration file
type Config struct {
	Master    Master
	Slave     Slave
	Link      Link
	Telemetry Telemetry
	Flash     Flash
	Firmware  Firmware
	Actuator  Actuator
	Log       Log
}

// Load reads an ini file from a path, []byte or io.Reader. Missing keys take
// their default value.
func Load(source any) (*Config, error) {
	f, err := ini.Load(source)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return parse(f)
}

// Default returns the configuration of an empty file
func Default() *Config {
	cfg, _ := parse(ini.Empty())
	return cfg
}

func parse(f *ini.File) (*Config, error) {
	master := f.Section("master")
	slave := f.Section("slave")
	lnk := f.Section("link")
	tel := f.Section("telemetry")
	fl := f.Section("flash")
	fw := f.Section("firmware")
	act := f.Section("actuator")
	lg := f.Section("log")

	cfg := &Config{
		Master: Master{
			Interface: master.Key("interface").MustString(""),
			Port:      uint16(master.Key("port").MustUint(DefaultPort)),
		},
		Slave: Slave{
			Interface: slave.Key("interface").MustString(""),
			Port:      uint16(slave.Key("port").MustUint(DefaultPort)),
		},
		Link: Link{
			ConnectionTimeout: lnk.Key("connection_timeout").MustDuration(300 * time.Millisecond),
			ActiveTimeout:     lnk.Key("active_timeout").MustDuration(5 * time.Second),
			ReceiveTimeout:    lnk.Key("receive_timeout").MustDuration(20 * time.Millisecond),
			QueueSize:         lnk.Key("queue_size").MustInt(200),
		},
		Telemetry: Telemetry{
			Interval: tel.Key("interval").MustDuration(100 * time.Millisecond),
			Platform: uint8(tel.Key("platform").MustUint(0)),
		},
		Flash: Flash{
			Image:  fl.Key("image").MustString("flash.img"),
			Create: fl.Key("create").MustBool(true),
		},
		Firmware: Firmware{
			QuiesceDelay: fw.Key("quiesce_delay").MustDuration(100 * time.Millisecond),
			BootDelay:    fw.Key("boot_delay").MustDuration(700 * time.Millisecond),
		},
		Actuator: Actuator{
			CANInterface: act.Key("can_interface").MustString(""),
			CANID:        uint32(act.Key("can_id").MustUint(0x100)),
		},
		Log: Log{
			Level:  lg.Key("level").MustString("info"),
			Remote: lg.Key("remote").MustBool(true),
		},
	}

	addr := slave.Key("address").MustString("")
	if addr != "" {
		ap, err := netip.ParseAddrPort(addr)
		if err != nil {
			ip, ipErr := netip.ParseAddr(addr)
			if ipErr != nil {
				return nil, fmt.Errorf("invalid slave address %q: %w", addr, err)
			}
			ap = netip.AddrPortFrom(ip, cfg.Slave.Port)
		}
		cfg.Slave.Address = ap
	}

	if cfg.Link.QueueSize <= 0 {
		return nil, fmt.Errorf("invalid queue size %d", cfg.Link.QueueSize)
	}
	return cfg, nil
}
