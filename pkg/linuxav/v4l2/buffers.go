//go:build linux

package v4l2

import (
	"errors"
	"fmt"
	"unsafe"
)

// RequestBuffers negotiates a pool of count kernel-owned buffers and
// maps each of them read-write, shared with the kernel. The pool is
// created atomically: if the device grants fewer than two buffers, or
// any individual query or mapping fails, every mapping made by this
// call is unwound and the kernel grant released before the error is
// returned. A pool that already exists on the handle is released first.
func (d *Device) RequestBuffers(count uint32) error {
	if d.fd < 0 {
		return ErrNotOpen
	}
	if err := d.ReleaseBuffers(); err != nil {
		return err
	}

	req := v4l2RequestBuffers{
		count:  count,
		typ:    bufTypeVideoCapture,
		memory: memoryMmap,
	}
	if err := d.sys.ioctl(d.fd, vidiocReqbufs, unsafe.Pointer(&req)); err != nil {
		return fmt.Errorf("VIDIOC_REQBUFS: %w", err)
	}

	// Fewer than two buffers cannot sustain double-buffered streaming.
	if req.count < 2 {
		d.releaseKernelBuffers()
		return fmt.Errorf("v4l2: insufficient buffer memory: requested %d, granted %d", count, req.count)
	}

	bufs := make([]mappedBuffer, 0, req.count)
	for i := uint32(0); i < req.count; i++ {
		buf := v4l2Buffer{
			index:  i,
			typ:    bufTypeVideoCapture,
			memory: memoryMmap,
		}
		if err := d.sys.ioctl(d.fd, vidiocQuerybuf, unsafe.Pointer(&buf)); err != nil {
			d.unwindMappings(bufs)
			return fmt.Errorf("VIDIOC_QUERYBUF index %d: %w", i, err)
		}

		data, err := d.sys.mmap(d.fd, int64(buf.mmapOffset()), int(buf.length))
		if err != nil {
			d.unwindMappings(bufs)
			return fmt.Errorf("mmap buffer %d: %w", i, err)
		}

		bufs = append(bufs, mappedBuffer{index: i, data: data, length: buf.length})
	}

	d.bufs = bufs
	return nil
}

// ReleaseBuffers unmaps every buffer in the pool and returns the kernel
// grant, so a new pool can be negotiated on the same handle. It is
// idempotent and safe on an empty pool. Any outstanding frame borrow is
// invalidated.
func (d *Device) ReleaseBuffers() error {
	if len(d.bufs) == 0 {
		return nil
	}

	d.gen++
	var errs []error
	for i := range d.bufs {
		if d.bufs[i].data == nil {
			continue
		}
		if err := d.sys.munmap(d.bufs[i].data); err != nil {
			errs = append(errs, fmt.Errorf("munmap buffer %d: %w", i, err))
		}
		d.bufs[i].data = nil
	}
	d.bufs = nil

	d.releaseKernelBuffers()
	return errors.Join(errs...)
}

// releaseKernelBuffers returns the kernel-side buffer grant. Failure is
// ignored: some drivers reject a zero-count REQBUFS and the grant dies
// with the descriptor anyway.
func (d *Device) releaseKernelBuffers() {
	req := v4l2RequestBuffers{
		typ:    bufTypeVideoCapture,
		memory: memoryMmap,
	}
	_ = d.sys.ioctl(d.fd, vidiocReqbufs, unsafe.Pointer(&req))
}

// unwindMappings unmaps the buffers mapped so far by a failed
// RequestBuffers call and releases the kernel grant.
func (d *Device) unwindMappings(bufs []mappedBuffer) {
	for i := range bufs {
		if bufs[i].data != nil {
			_ = d.sys.munmap(bufs[i].data)
		}
	}
	d.releaseKernelBuffers()
}

// BufferCount returns the number of buffers in the current pool.
func (d *Device) BufferCount() int {
	return len(d.bufs)
}

// Buffers returns descriptions of the mapped pool, in index order.
func (d *Device) Buffers() []Buffer {
	out := make([]Buffer, len(d.bufs))
	for i := range d.bufs {
		out[i] = Buffer{Index: d.bufs[i].index, Length: d.bufs[i].length}
	}
	return out
}
