//go:build linux

package v4l2

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// StartStreaming enqueues every buffer in index order and turns
// streaming on. If any enqueue fails, streaming is not started and the
// device stays idle; a partial enqueue followed by stream-on would
// leave the driver queue in an inconsistent state.
func (d *Device) StartStreaming() error {
	if d.fd < 0 {
		return ErrNotOpen
	}
	if len(d.bufs) == 0 {
		return ErrNoBuffers
	}
	if d.streaming {
		return nil
	}

	for i := range d.bufs {
		if err := d.enqueue(uint32(i)); err != nil {
			return err
		}
	}

	typ := uint32(bufTypeVideoCapture)
	if err := d.sys.ioctl(d.fd, vidiocStreamon, unsafe.Pointer(&typ)); err != nil {
		return fmt.Errorf("VIDIOC_STREAMON: %w", err)
	}

	d.streaming = true
	return nil
}

// StopStreaming turns streaming off and drains the driver queue. The
// buffer pool stays mapped. Calling StopStreaming on an idle device is
// a no-op returning success.
func (d *Device) StopStreaming() error {
	if !d.streaming {
		return nil
	}

	typ := uint32(bufTypeVideoCapture)
	if err := d.sys.ioctl(d.fd, vidiocStreamoff, unsafe.Pointer(&typ)); err != nil {
		return fmt.Errorf("VIDIOC_STREAMOFF: %w", err)
	}

	d.gen++
	d.streaming = false
	return nil
}

// ReadFrame dequeues one completed buffer, re-enqueues it immediately
// and returns a Frame borrowing its mapped region. When no frame is
// ready the descriptor's non-blocking mode reports EAGAIN and ReadFrame
// returns ErrNoFrame; poll again or wait on Fd. A buffer index outside
// the pool is a driver contract breach reported as *ProtocolError with
// the pool left untouched.
//
// The returned Frame is valid only until the next ReadFrame,
// StopStreaming or Close call on this device.
func (d *Device) ReadFrame() (Frame, error) {
	if d.fd < 0 {
		return Frame{}, ErrNotOpen
	}
	if !d.streaming {
		return Frame{}, ErrNotStreaming
	}

	buf := v4l2Buffer{
		typ:    bufTypeVideoCapture,
		memory: memoryMmap,
	}
	if err := d.sys.ioctl(d.fd, vidiocDqbuf, unsafe.Pointer(&buf)); err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return Frame{}, ErrNoFrame
		}
		return Frame{}, fmt.Errorf("VIDIOC_DQBUF: %w", err)
	}

	if int(buf.index) >= len(d.bufs) {
		return Frame{}, &ProtocolError{Index: buf.index, Count: len(d.bufs)}
	}

	used := buf.bytesused
	if used > d.bufs[buf.index].length {
		used = d.bufs[buf.index].length
	}

	// Invalidate the previous borrow before handing out a new one.
	d.gen++
	frame := Frame{
		dev:      d,
		gen:      d.gen,
		index:    buf.index,
		sequence: buf.sequence,
		data:     d.bufs[buf.index].data[:used],
	}

	if err := d.enqueue(buf.index); err != nil {
		return Frame{}, err
	}
	return frame, nil
}

// QueueBuffer hands the buffer at index back to the driver. The default
// acquisition loop recycles automatically; this is for callers that
// manage buffer return themselves.
func (d *Device) QueueBuffer(index uint32) error {
	if d.fd < 0 {
		return ErrNotOpen
	}
	if int(index) >= len(d.bufs) {
		return fmt.Errorf("v4l2: buffer index %d outside pool of %d", index, len(d.bufs))
	}
	return d.enqueue(index)
}

func (d *Device) enqueue(index uint32) error {
	buf := v4l2Buffer{
		index:  index,
		typ:    bufTypeVideoCapture,
		memory: memoryMmap,
	}
	if err := d.sys.ioctl(d.fd, vidiocQbuf, unsafe.Pointer(&buf)); err != nil {
		return fmt.Errorf("VIDIOC_QBUF index %d: %w", index, err)
	}
	return nil
}

// Frame is a borrowed view of one captured frame inside the
// kernel-shared buffer pool. The borrow is tied to the device's
// mutation counter: after the next ReadFrame, StopStreaming or Close on
// the same device the view is stale and Bytes returns nil.
type Frame struct {
	dev      *Device
	gen      uint64
	index    uint32
	sequence uint32
	data     []byte
}

// Valid reports whether the borrow is still current.
func (f Frame) Valid() bool {
	return f.dev != nil && f.gen == f.dev.gen
}

// Bytes returns the frame payload, or nil if the borrow is stale.
func (f Frame) Bytes() []byte {
	if !f.Valid() {
		return nil
	}
	return f.data
}

// Len returns the device-reported number of payload bytes.
func (f Frame) Len() int {
	return len(f.data)
}

// Index returns the pool index of the buffer this frame was captured in.
func (f Frame) Index() uint32 {
	return f.index
}

// Sequence returns the driver's frame sequence counter.
func (f Frame) Sequence() uint32 {
	return f.sequence
}

// Copy returns a heap copy of the payload that outlives the borrow, or
// nil if the borrow is already stale.
func (f Frame) Copy() []byte {
	b := f.Bytes()
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
