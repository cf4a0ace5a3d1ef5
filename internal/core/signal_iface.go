package core

import "errors"

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

// Frame is a serialized payload ready for the wire.
type Frame []byte

// SignalConnection abstracts the realtime messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend queues f without blocking. ErrBackpressure when the queue is
	// full, ErrClosed after Close.
	TrySend(f Frame) error
	IsOpen() bool
	Close()
}
