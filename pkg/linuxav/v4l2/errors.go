//go:build linux

package v4l2

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Device operations.
var (
	// ErrNoFrame signals that no completed frame was available on a
	// non-blocking dequeue. It is an expected outcome, not a failure;
	// callers poll again or wait on Device.Fd.
	ErrNoFrame = errors.New("v4l2: no frame available")

	// ErrNotOpen is returned when an operation requires an open device.
	ErrNotOpen = errors.New("v4l2: device not open")

	// ErrNotStreaming is returned by ReadFrame when streaming is off.
	ErrNotStreaming = errors.New("v4l2: device not streaming")

	// ErrNoBuffers is returned by StartStreaming when no buffer pool
	// has been mapped.
	ErrNoBuffers = errors.New("v4l2: no buffers mapped")
)

// ProtocolError reports a buffer index returned by the driver that lies
// outside the mapped pool. This breaches the V4L2 contract and the
// device should be torn down; the pool itself is left untouched.
type ProtocolError struct {
	Index uint32
	Count int
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("v4l2: driver returned buffer index %d outside pool of %d", e.Index, e.Count)
}
