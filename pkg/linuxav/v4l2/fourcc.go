//go:build linux

package v4l2

import "fmt"

// FourCC renders a pixel format code as its four-character name.
// V4L2 packs the characters least significant byte first, so 'YUYV'
// is 0x56595559. Non-printable bytes fall back to a hex rendering.
func FourCC(pix uint32) string {
	b := [4]byte{
		byte(pix),
		byte(pix >> 8),
		byte(pix >> 16),
		byte(pix >> 24),
	}
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return fmt.Sprintf("0x%08x", pix)
		}
	}
	return string(b[:])
}

// FourCCCode builds a pixel format code from its four-character name.
func FourCCCode(s string) (uint32, error) {
	if len(s) != 4 {
		return 0, fmt.Errorf("v4l2: fourcc %q must be 4 characters", s)
	}
	return uint32(s[0]) | uint32(s[1])<<8 | uint32(s[2])<<16 | uint32(s[3])<<24, nil
}
