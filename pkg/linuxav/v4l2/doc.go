//go:build linux

// Package v4l2 provides pure Go bindings to the Video4Linux2 (V4L2)
// memory-mapped capture API: format negotiation, kernel-shared buffer
// pools, and the streaming queue/dequeue protocol.
//
// This package does not use cgo, enabling simple cross-compilation for
// different Linux architectures (amd64, arm64, arm).
//
// # Capture Lifecycle
//
// A Device moves through a strict lifecycle: open, negotiate a format,
// map a buffer pool, stream, read frames, tear down.
//
//	dev, err := v4l2.Open("/dev/video0")
//	defer dev.Close()
//
//	applied, _ := dev.SetFormat(640, 480, v4l2.PixFmtYUYV)
//	_ = dev.RequestBuffers(4)
//	_ = dev.StartStreaming()
//
//	for {
//	    frame, err := dev.ReadFrame()
//	    if errors.Is(err, v4l2.ErrNoFrame) {
//	        continue // non-blocking: no frame ready yet
//	    }
//	    process(frame.Bytes())
//	}
//
// # Frame Borrowing
//
// ReadFrame returns a Frame that borrows the kernel-shared mapping. The
// borrow is valid only until the next ReadFrame, StopStreaming or Close
// call on the same Device; after that Frame.Bytes returns nil. Callers
// that need to retain frame data must use Frame.Copy before the next
// call.
//
// # Concurrency
//
// A Device is owned by exactly one goroutine. The descriptor is opened
// non-blocking so ReadFrame never suspends the caller; multiplexing
// across devices is done externally by polling Device.Fd.
package v4l2
