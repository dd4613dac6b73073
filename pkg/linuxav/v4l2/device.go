//go:build linux

package v4l2

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Device is a handle to an open V4L2 capture device. It owns the
// descriptor, the mapped buffer pool and the streaming flag; after any
// public operation returns the handle is either fully open or fully
// closed, never in between.
//
// A Device must be used from a single goroutine.
type Device struct {
	fd        int
	path      string
	streaming bool
	bufs      []mappedBuffer
	gen       uint64 // borrow generation, bumped by every mutating call
	sys       sysOps
	logger    *slog.Logger
}

type mappedBuffer struct {
	index  uint32
	data   []byte
	length uint32
}

// Open opens the video device at path for non-blocking capture.
func Open(path string) (*Device, error) {
	fd, err := openNonblock(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &Device{
		fd:     fd,
		path:   path,
		sys:    realSys(),
		logger: slog.With("component", "linuxav", "device", path),
	}, nil
}

// Path returns the device path the handle was opened with.
func (d *Device) Path() string {
	return d.path
}

// Fd returns the underlying descriptor for external readiness polling.
// The Device retains ownership; callers must not close it.
func (d *Device) Fd() int {
	return d.fd
}

// IsOpen reports whether the handle currently owns a descriptor.
func (d *Device) IsOpen() bool {
	return d.fd >= 0
}

// IsStreaming reports whether the device is in the streaming state.
func (d *Device) IsStreaming() bool {
	return d.streaming
}

// Close tears the handle down from any state: streaming is stopped, the
// buffer pool is released and the descriptor is closed, in that order.
// Close is idempotent and safe to call out of normal sequence, for
// example from a signal-driven shutdown path.
func (d *Device) Close() error {
	if d.fd < 0 {
		return nil
	}

	var errs []error
	if d.streaming {
		if err := d.StopStreaming(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := d.ReleaseBuffers(); err != nil {
		errs = append(errs, err)
	}

	d.gen++
	if err := d.sys.close(d.fd); err != nil {
		errs = append(errs, fmt.Errorf("close %s: %w", d.path, err))
	}
	d.fd = -1

	return errors.Join(errs...)
}

// Capability queries the device identity and capability bits. When the
// driver sets V4L2_CAP_DEVICE_CAPS the per-device field is authoritative
// and replaces the aggregate one, which may advertise capabilities this
// node does not implement.
func (d *Device) Capability() (Capability, error) {
	if d.fd < 0 {
		return Capability{}, ErrNotOpen
	}

	var cap v4l2Capability
	if err := d.sys.ioctl(d.fd, vidiocQuerycap, unsafe.Pointer(&cap)); err != nil {
		return Capability{}, fmt.Errorf("VIDIOC_QUERYCAP: %w", err)
	}

	caps := cap.capabilities
	if caps&capDeviceCaps != 0 {
		caps = cap.deviceCaps
	}

	return Capability{
		Driver:  cstr(cap.driver[:]),
		Card:    cstr(cap.card[:]),
		BusInfo: cstr(cap.busInfo[:]),
		Version: fmt.Sprintf("%d.%d.%d", byte(cap.version>>16), byte(cap.version>>8), byte(cap.version)),
		Caps:    caps,
	}, nil
}

// Formats enumerates the pixel formats the device supports for video
// capture, in driver order. The enumeration starts from index 0 on
// every call.
func (d *Device) Formats() ([]uint32, error) {
	if d.fd < 0 {
		return nil, ErrNotOpen
	}

	var formats []uint32
	for i := uint32(0); ; i++ {
		desc := v4l2Fmtdesc{
			index: i,
			typ:   bufTypeVideoCapture,
		}
		if err := d.sys.ioctl(d.fd, vidiocEnumFmt, unsafe.Pointer(&desc)); err != nil {
			if errors.Is(err, unix.EINVAL) {
				break // end of enumeration
			}
			return nil, fmt.Errorf("VIDIOC_ENUM_FMT index %d: %w", i, err)
		}
		formats = append(formats, desc.pixelformat)
	}

	return formats, nil
}

// SetFormat requests a capture format and returns the format the device
// actually applied. The driver may coerce width and height or
// substitute a different pixel encoding; a substitution is logged as a
// warning but is not an error. Callers that require the exact requested
// encoding must compare the returned format themselves.
func (d *Device) SetFormat(width, height, pixelFormat uint32) (Format, error) {
	if d.fd < 0 {
		return Format{}, ErrNotOpen
	}

	f := v4l2Format{typ: bufTypeVideoCapture}
	f.pix.width = width
	f.pix.height = height
	f.pix.pixelformat = pixelFormat
	f.pix.field = fieldInterlaced

	if err := d.sys.ioctl(d.fd, vidiocSFmt, unsafe.Pointer(&f)); err != nil {
		return Format{}, fmt.Errorf("VIDIOC_S_FMT: %w", err)
	}

	applied := pixToFormat(&f.pix)
	if applied.PixelFormat != pixelFormat {
		d.logger.Warn("device substituted pixel format",
			"requested", FourCC(pixelFormat), "applied", FourCC(applied.PixelFormat))
	}
	return applied, nil
}

// Format queries the currently active capture format without changing it.
func (d *Device) Format() (Format, error) {
	if d.fd < 0 {
		return Format{}, ErrNotOpen
	}

	f := v4l2Format{typ: bufTypeVideoCapture}
	if err := d.sys.ioctl(d.fd, vidiocGFmt, unsafe.Pointer(&f)); err != nil {
		return Format{}, fmt.Errorf("VIDIOC_G_FMT: %w", err)
	}
	return pixToFormat(&f.pix), nil
}

func pixToFormat(pix *v4l2PixFormat) Format {
	return Format{
		Width:        pix.width,
		Height:       pix.height,
		PixelFormat:  pix.pixelformat,
		BytesPerLine: pix.bytesperline,
		SizeImage:    pix.sizeimage,
	}
}

// cstr converts a null-terminated byte slice to a Go string.
func cstr(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
