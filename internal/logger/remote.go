package logger

import (
	"bytes"
	"io"

	"github.com/goodieshq/linkrelay/internal/entity"
	"github.com/goodieshq/linkrelay/internal/protocol"
	"github.com/rs/zerolog"
)

// Submit enqueues a message toward the master, reporting whether it was accepted
type Submit func(msg *protocol.Message) bool

// Remote is a zerolog writer that forwards log lines to the master as Log
// messages. It never blocks and drops lines while the node has no identity.
type Remote struct {
	level   zerolog.Level
	console zerolog.ConsoleWriter
}

type sender struct {
	registry *entity.Registry
	submit   Submit
}

func (s *sender) Write(p []byte) (int, error) {
	id := s.registry.LocalID()
	if id == entity.Unassigned {
		return len(p), nil
	}

	line := bytes.TrimRight(p, "\r\n")
	if len(line) > protocol.MTU {
		line = line[:protocol.MTU]
	}

	s.submit(&protocol.Message{
		Address: id,
		Opcode:  protocol.OpLog,
		Payload: bytes.Clone(line),
	})
	return len(p), nil
}

// NewRemote returns a writer forwarding events at level and above
func NewRemote(registry *entity.Registry, submit Submit, level zerolog.Level) *Remote {
	return &Remote{
		level: level,
		console: zerolog.ConsoleWriter{
			Out:          &sender{registry: registry, submit: submit},
			NoColor:      true,
			PartsExclude: []string{zerolog.TimestampFieldName},
		},
	}
}

func (r *Remote) Write(p []byte) (int, error) {
	return r.console.Write(p)
}

func (r *Remote) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < r.level {
		return len(p), nil
	}
	return r.console.Write(p)
}

// Output combines the console with remote forwarding
func Output(console io.Writer, remote *Remote) zerolog.LevelWriter {
	return zerolog.MultiLevelWriter(console, remote)
}
