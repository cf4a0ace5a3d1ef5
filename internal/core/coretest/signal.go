// Package coretest provides in-memory transports for tests.
package coretest

import (
	"encoding/json"
	"sync"

	"github.com/dkeye/Relay/internal/core"
)

// Signal is a SignalConnection that records every frame it accepts.
type Signal struct {
	mu     sync.Mutex
	frames []core.Frame
	closed bool
	// Full makes TrySend report backpressure.
	Full bool
}

func NewSignal() *Signal { return &Signal{} }

func (s *Signal) TrySend(f core.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.ErrClosed
	}
	if s.Full {
		return core.ErrBackpressure
	}
	s.frames = append(s.frames, append(core.Frame(nil), f...))
	return nil
}

func (s *Signal) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

func (s *Signal) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *Signal) SetFull(full bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Full = full
}

func (s *Signal) Frames() []core.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Frame(nil), s.frames...)
}

// Decoded unmarshals every recorded frame into a generic map.
func (s *Signal) Decoded() []map[string]any {
	var out []map[string]any
	for _, f := range s.Frames() {
		var m map[string]any
		if err := json.Unmarshal(f, &m); err == nil {
			out = append(out, m)
		}
	}
	return out
}
