//go:build linux

package v4l2

import "fmt"

// Capability describes a device as reported by VIDIOC_QUERYCAP.
// Caps holds the effective capability bits: the per-device field when the
// driver advertises V4L2_CAP_DEVICE_CAPS, otherwise the aggregate field.
type Capability struct {
	Driver  string
	Card    string
	BusInfo string
	Version string
	Caps    uint32
}

// HasVideoCapture reports whether the device can capture video frames.
func (c Capability) HasVideoCapture() bool {
	return c.Caps&CapVideoCapture != 0
}

// HasStreaming reports whether the device supports the streaming I/O method.
func (c Capability) HasStreaming() bool {
	return c.Caps&CapStreaming != 0
}

// Format is a negotiated capture format. After SetFormat the device may
// have coerced Width/Height or substituted PixelFormat; callers that
// require an exact encoding must compare against what they requested.
type Format struct {
	Width        uint32
	Height       uint32
	PixelFormat  uint32
	BytesPerLine uint32
	SizeImage    uint32
}

func (f Format) String() string {
	return fmt.Sprintf("%dx%d %s", f.Width, f.Height, FourCC(f.PixelFormat))
}

// Buffer describes one mapped buffer in the pool.
type Buffer struct {
	Index  uint32
	Length uint32
}

// Capability flags.
const (
	CapVideoCapture = 0x00000001
	CapStreaming    = 0x04000000
	capDeviceCaps   = 0x80000000
)

// Buffer and memory types.
const (
	bufTypeVideoCapture = 1
	memoryMmap          = 1
	fieldInterlaced     = 4
)

// Common pixel formats, encoded LSB-first.
const (
	PixFmtYUYV   = 0x56595559 // 'YUYV' packed 4:2:2
	PixFmtUYVY   = 0x59565955 // 'UYVY' packed 4:2:2
	PixFmtYUV420 = 0x32315559 // 'YU12' planar 4:2:0
	PixFmtNV12   = 0x3231564e // 'NV12' semi-planar 4:2:0
	PixFmtMJPEG  = 0x47504a4d // 'MJPG'
	PixFmtJPEG   = 0x4745504a // 'JPEG'
	PixFmtH264   = 0x34363248 // 'H264'
)
