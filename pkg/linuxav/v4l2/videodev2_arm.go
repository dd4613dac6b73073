//go:build linux && arm && !arm64

package v4l2

import "unsafe"

// Compile-time struct size assertions for 32-bit ARM.
// These will cause build failures if struct sizes don't match kernel expectations.
var (
	_ [104]byte = [unsafe.Sizeof(v4l2Capability{})]byte{}
	_ [64]byte  = [unsafe.Sizeof(v4l2Fmtdesc{})]byte{}
	_ [204]byte = [unsafe.Sizeof(v4l2Format{})]byte{}
	_ [48]byte  = [unsafe.Sizeof(v4l2PixFormat{})]byte{}
	_ [20]byte  = [unsafe.Sizeof(v4l2RequestBuffers{})]byte{}
	_ [80]byte  = [unsafe.Sizeof(v4l2Buffer{})]byte{}
	_ [16]byte  = [unsafe.Sizeof(v4l2Timecode{})]byte{}
)

// IOCTL request numbers for 32-bit ARM.
// v4l2_format is 204 bytes (the union is not 8-byte aligned) and
// v4l2_buffer is 80 bytes (time64 timestamp, 4-byte m union).
const (
	vidiocQuerycap  = 0x80685600
	vidiocEnumFmt   = 0xc0405602
	vidiocGFmt      = 0xc0cc5604
	vidiocSFmt      = 0xc0cc5605
	vidiocReqbufs   = 0xc0145608
	vidiocQuerybuf  = 0xc0505609
	vidiocQbuf      = 0xc050560f
	vidiocDqbuf     = 0xc0505611
	vidiocStreamon  = 0x40045612
	vidiocStreamoff = 0x40045613
)

// v4l2Capability has size 104 bytes (same as 64-bit).
type v4l2Capability struct {
	driver       [16]byte
	card         [32]byte
	busInfo      [32]byte
	version      uint32
	capabilities uint32
	deviceCaps   uint32
	reserved     [3]uint32
}

// v4l2Fmtdesc has size 64 bytes (same as 64-bit).
type v4l2Fmtdesc struct {
	index       uint32
	typ         uint32
	flags       uint32
	description [32]byte
	pixelformat uint32
	mbusCode    uint32
	reserved    [3]uint32
}

// v4l2PixFormat has size 48 bytes (same as 64-bit).
type v4l2PixFormat struct {
	width        uint32
	height       uint32
	pixelformat  uint32
	field        uint32
	bytesperline uint32
	sizeimage    uint32
	colorspace   uint32
	priv         uint32
	flags        uint32
	ycbcrEnc     uint32
	quantization uint32
	xferFunc     uint32
}

// v4l2Format has size 204 bytes: the fmt union follows the type field
// directly on 32-bit.
type v4l2Format struct {
	typ uint32
	pix v4l2PixFormat
	_   [200 - 48]byte
}

// v4l2RequestBuffers has size 20 bytes (same as 64-bit).
type v4l2RequestBuffers struct {
	count        uint32
	typ          uint32
	memory       uint32
	capabilities uint32
	flags        uint8
	reserved     [3]uint8
}

// v4l2Timecode has size 16 bytes (same as 64-bit).
type v4l2Timecode struct {
	typ      uint32
	flags    uint32
	frames   uint8
	seconds  uint8
	minutes  uint8
	hours    uint8
	userbits [4]uint8
}

// v4l2Buffer has size 80 bytes on 32-bit ARM.
type v4l2Buffer struct {
	index     uint32       // offset 0
	typ       uint32       // offset 4
	bytesused uint32       // offset 8
	flags     uint32       // offset 12
	field     uint32       // offset 16
	_         uint32       // offset 20, timestamp alignment
	timestamp [16]byte     // offset 24, struct __kernel_timeval (time64)
	timecode  v4l2Timecode // offset 40
	sequence  uint32       // offset 56
	memory    uint32       // offset 60
	m         [4]byte      // offset 64, union: mmap offset
	length    uint32       // offset 68
	reserved2 uint32       // offset 72
	requestFd uint32       // offset 76
}

// mmapOffset extracts the mmap offset from the m union.
func (b *v4l2Buffer) mmapOffset() uint32 {
	return uint32(b.m[0]) | uint32(b.m[1])<<8 | uint32(b.m[2])<<16 | uint32(b.m[3])<<24
}

// setMmapOffset stores an mmap offset into the m union.
func (b *v4l2Buffer) setMmapOffset(off uint32) {
	b.m[0] = byte(off)
	b.m[1] = byte(off >> 8)
	b.m[2] = byte(off >> 16)
	b.m[3] = byte(off >> 24)
}
