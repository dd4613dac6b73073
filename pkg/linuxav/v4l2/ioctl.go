//go:build linux

package v4l2

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// sysOps abstracts the kernel entry points used by a Device so that
// package tests can drive the full buffer and streaming protocol
// against a fake device.
type sysOps struct {
	ioctl  func(fd int, req uint, arg unsafe.Pointer) error
	mmap   func(fd int, offset int64, length int) ([]byte, error)
	munmap func(data []byte) error
	close  func(fd int) error
}

func realSys() sysOps {
	return sysOps{
		ioctl:  ioctl,
		mmap:   mmapShared,
		munmap: unix.Munmap,
		close:  unix.Close,
	}
}

func ioctl(fd int, req uint, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(req), uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

func mmapShared(fd int, offset int64, length int) ([]byte, error) {
	return unix.Mmap(fd, offset, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
}

func openNonblock(path string) (int, error) {
	return unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
}
