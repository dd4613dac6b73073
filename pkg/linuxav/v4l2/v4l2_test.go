//go:build linux

package v4l2

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"unsafe"

	"golang.org/x/sys/unix"
)

const fakeBufLen = 0x1000

// fakeKernel emulates the driver side of the capture protocol: the
// buffer grant, the mmap table with reference counts, the enqueue
// order and the ready-frame queue.
type fakeKernel struct {
	formats []uint32
	grant   uint32 // buffers granted per REQBUFS, 0 means echo the request

	// substitute, when nonzero, replaces any requested pixel format.
	substitute uint32

	streaming bool
	queued    []uint32 // QBUF order since the fake was created
	ready     []uint32 // buffer indices DQBUF will deliver
	sequence  uint32

	mappings map[int64][]byte // offset -> live mapping
	refs     int              // live mapping count

	closedFds []int

	failQuerybufAt int // index that fails, -1 disables
	failMmapAt     int
	failQbufAt     int // position in QBUF order that fails, -1 disables
}

func newFakeKernel() *fakeKernel {
	return &fakeKernel{
		formats:        []uint32{PixFmtYUYV, PixFmtMJPEG},
		mappings:       make(map[int64][]byte),
		failQuerybufAt: -1,
		failMmapAt:     -1,
		failQbufAt:     -1,
	}
}

func (k *fakeKernel) ioctl(fd int, req uint, arg unsafe.Pointer) error {
	switch req {
	case vidiocQuerycap:
		cap := (*v4l2Capability)(arg)
		copy(cap.driver[:], "fakevid")
		copy(cap.card[:], "Fake Camera")
		copy(cap.busInfo[:], "platform:fake")
		cap.version = 6<<16 | 1<<8 | 0
		cap.capabilities = CapVideoCapture | CapStreaming | capDeviceCaps | 0x00200000
		cap.deviceCaps = CapVideoCapture | CapStreaming
		return nil

	case vidiocEnumFmt:
		desc := (*v4l2Fmtdesc)(arg)
		if int(desc.index) >= len(k.formats) {
			return unix.EINVAL
		}
		desc.pixelformat = k.formats[desc.index]
		return nil

	case vidiocSFmt, vidiocGFmt:
		f := (*v4l2Format)(arg)
		if req == vidiocSFmt {
			if k.substitute != 0 {
				f.pix.pixelformat = k.substitute
			}
			f.pix.bytesperline = f.pix.width * 2
			f.pix.sizeimage = f.pix.bytesperline * f.pix.height
		} else {
			f.pix.width = 640
			f.pix.height = 480
			f.pix.pixelformat = k.formats[0]
		}
		return nil

	case vidiocReqbufs:
		r := (*v4l2RequestBuffers)(arg)
		if r.count == 0 {
			return nil
		}
		if k.grant != 0 {
			r.count = k.grant
		}
		return nil

	case vidiocQuerybuf:
		buf := (*v4l2Buffer)(arg)
		if int(buf.index) == k.failQuerybufAt {
			return unix.EINVAL
		}
		buf.length = fakeBufLen
		buf.setMmapOffset(buf.index * fakeBufLen)
		return nil

	case vidiocQbuf:
		buf := (*v4l2Buffer)(arg)
		if len(k.queued) == k.failQbufAt {
			return unix.EIO
		}
		k.queued = append(k.queued, buf.index)
		return nil

	case vidiocDqbuf:
		buf := (*v4l2Buffer)(arg)
		if len(k.ready) == 0 {
			return unix.EAGAIN
		}
		idx := k.ready[0]
		k.ready = k.ready[1:]
		buf.index = idx
		buf.bytesused = fakeBufLen / 2
		k.sequence++
		buf.sequence = k.sequence
		return nil

	case vidiocStreamon:
		k.streaming = true
		return nil

	case vidiocStreamoff:
		k.streaming = false
		return nil
	}
	return unix.ENOTTY
}

func (k *fakeKernel) mmap(fd int, offset int64, length int) ([]byte, error) {
	if k.refs == k.failMmapAt {
		return nil, unix.ENOMEM
	}
	data := make([]byte, length)
	k.mappings[offset] = data
	k.refs++
	return data, nil
}

func (k *fakeKernel) munmap(data []byte) error {
	for off, m := range k.mappings {
		if len(m) > 0 && len(data) > 0 && &m[0] == &data[0] {
			delete(k.mappings, off)
			k.refs--
			return nil
		}
	}
	return unix.EINVAL
}

func (k *fakeKernel) close(fd int) error {
	k.closedFds = append(k.closedFds, fd)
	return nil
}

func newFakeDevice(k *fakeKernel) *Device {
	return &Device{
		fd:   42,
		path: "/dev/video0",
		sys: sysOps{
			ioctl:  k.ioctl,
			mmap:   k.mmap,
			munmap: k.munmap,
			close:  k.close,
		},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestCapability(t *testing.T) {
	dev := newFakeDevice(newFakeKernel())

	cap, err := dev.Capability()
	if err != nil {
		t.Fatalf("Capability failed: %v", err)
	}
	if cap.Driver != "fakevid" || cap.Card != "Fake Camera" {
		t.Errorf("unexpected identity: %q / %q", cap.Driver, cap.Card)
	}
	if cap.Version != "6.1.0" {
		t.Errorf("version = %q, want 6.1.0", cap.Version)
	}
	// The per-device field excludes the extra aggregate bit.
	if cap.Caps != CapVideoCapture|CapStreaming {
		t.Errorf("caps = %#x, want device_caps value", cap.Caps)
	}
	if !cap.HasVideoCapture() || !cap.HasStreaming() {
		t.Error("expected capture and streaming capabilities")
	}
}

func TestFormatsEnumeration(t *testing.T) {
	k := newFakeKernel()
	k.formats = []uint32{PixFmtYUYV, PixFmtUYVY, PixFmtMJPEG}
	dev := newFakeDevice(k)

	formats, err := dev.Formats()
	if err != nil {
		t.Fatalf("Formats failed: %v", err)
	}
	if len(formats) != 3 {
		t.Fatalf("got %d formats, want 3", len(formats))
	}
	for i, want := range k.formats {
		if formats[i] != want {
			t.Errorf("formats[%d] = %s, want %s", i, FourCC(formats[i]), FourCC(want))
		}
	}
}

func TestSetFormatSubstitution(t *testing.T) {
	k := newFakeKernel()
	k.substitute = PixFmtMJPEG
	dev := newFakeDevice(k)

	applied, err := dev.SetFormat(640, 480, PixFmtYUYV)
	if err != nil {
		t.Fatalf("SetFormat failed: %v", err)
	}
	if applied.PixelFormat != PixFmtMJPEG {
		t.Errorf("applied format = %s, want MJPG", FourCC(applied.PixelFormat))
	}
	if applied.Width != 640 || applied.Height != 480 {
		t.Errorf("applied size = %dx%d, want 640x480", applied.Width, applied.Height)
	}
}

func TestRequestBuffersMapsPool(t *testing.T) {
	k := newFakeKernel()
	dev := newFakeDevice(k)

	if err := dev.RequestBuffers(4); err != nil {
		t.Fatalf("RequestBuffers failed: %v", err)
	}
	if dev.BufferCount() != 4 {
		t.Errorf("BufferCount = %d, want 4", dev.BufferCount())
	}
	if k.refs != 4 {
		t.Errorf("live mappings = %d, want 4", k.refs)
	}
	for i, b := range dev.Buffers() {
		if b.Index != uint32(i) || b.Length != fakeBufLen {
			t.Errorf("buffer %d = %+v", i, b)
		}
	}
}

func TestRequestBuffersInsufficientGrant(t *testing.T) {
	k := newFakeKernel()
	k.grant = 1
	dev := newFakeDevice(k)

	err := dev.RequestBuffers(4)
	if err == nil {
		t.Fatal("expected error for single-buffer grant")
	}
	if dev.BufferCount() != 0 {
		t.Errorf("BufferCount = %d after failure, want 0", dev.BufferCount())
	}
	if k.refs != 0 {
		t.Errorf("live mappings = %d after failure, want 0", k.refs)
	}
}

func TestRequestBuffersMmapFailureUnwinds(t *testing.T) {
	k := newFakeKernel()
	k.failMmapAt = 2
	dev := newFakeDevice(k)

	err := dev.RequestBuffers(4)
	if err == nil {
		t.Fatal("expected error from mmap failure")
	}
	if k.refs != 0 {
		t.Errorf("live mappings = %d after rollback, want 0", k.refs)
	}
	if dev.BufferCount() != 0 {
		t.Errorf("BufferCount = %d after rollback, want 0", dev.BufferCount())
	}
}

func TestRequestBuffersQuerybufFailureUnwinds(t *testing.T) {
	k := newFakeKernel()
	k.failQuerybufAt = 3
	dev := newFakeDevice(k)

	if err := dev.RequestBuffers(4); err == nil {
		t.Fatal("expected error from QUERYBUF failure")
	}
	if k.refs != 0 {
		t.Errorf("live mappings = %d after rollback, want 0", k.refs)
	}
}

func TestReleaseBuffersIdempotent(t *testing.T) {
	k := newFakeKernel()
	dev := newFakeDevice(k)

	if err := dev.RequestBuffers(4); err != nil {
		t.Fatalf("RequestBuffers failed: %v", err)
	}
	if err := dev.ReleaseBuffers(); err != nil {
		t.Fatalf("ReleaseBuffers failed: %v", err)
	}
	if k.refs != 0 {
		t.Errorf("live mappings = %d after release, want 0", k.refs)
	}
	if err := dev.ReleaseBuffers(); err != nil {
		t.Errorf("second ReleaseBuffers failed: %v", err)
	}
}

func TestStartStreamingQueuesAllBuffers(t *testing.T) {
	k := newFakeKernel()
	dev := newFakeDevice(k)

	if err := dev.RequestBuffers(4); err != nil {
		t.Fatalf("RequestBuffers failed: %v", err)
	}
	if err := dev.StartStreaming(); err != nil {
		t.Fatalf("StartStreaming failed: %v", err)
	}
	if !dev.IsStreaming() || !k.streaming {
		t.Error("expected streaming state on both sides")
	}
	if len(k.queued) != 4 {
		t.Fatalf("queued %d buffers, want 4", len(k.queued))
	}
	for i, idx := range k.queued {
		if idx != uint32(i) {
			t.Errorf("queue position %d got index %d", i, idx)
		}
	}

	// Starting again is a no-op, buffers are not re-queued.
	if err := dev.StartStreaming(); err != nil {
		t.Fatalf("second StartStreaming failed: %v", err)
	}
	if len(k.queued) != 4 {
		t.Errorf("queued %d buffers after restart, want 4", len(k.queued))
	}
}

func TestStartStreamingWithoutBuffers(t *testing.T) {
	k := newFakeKernel()
	dev := newFakeDevice(k)

	if err := dev.StartStreaming(); !errors.Is(err, ErrNoBuffers) {
		t.Fatalf("err = %v, want ErrNoBuffers", err)
	}
	if k.streaming {
		t.Error("stream must not start without a pool")
	}
}

func TestStartStreamingEnqueueFailureAborts(t *testing.T) {
	k := newFakeKernel()
	k.failQbufAt = 2
	dev := newFakeDevice(k)

	if err := dev.RequestBuffers(4); err != nil {
		t.Fatalf("RequestBuffers failed: %v", err)
	}
	if err := dev.StartStreaming(); err == nil {
		t.Fatal("expected error from enqueue failure")
	}
	if dev.IsStreaming() || k.streaming {
		t.Error("stream must not start after a failed enqueue")
	}
}

func TestStopStreamingIdempotent(t *testing.T) {
	k := newFakeKernel()
	dev := newFakeDevice(k)

	if err := dev.StopStreaming(); err != nil {
		t.Fatalf("StopStreaming on idle device failed: %v", err)
	}

	if err := dev.RequestBuffers(4); err != nil {
		t.Fatalf("RequestBuffers failed: %v", err)
	}
	if err := dev.StartStreaming(); err != nil {
		t.Fatalf("StartStreaming failed: %v", err)
	}
	if err := dev.StopStreaming(); err != nil {
		t.Fatalf("StopStreaming failed: %v", err)
	}
	if dev.IsStreaming() || k.streaming {
		t.Error("expected idle state")
	}
	// Pool survives a stop.
	if dev.BufferCount() != 4 {
		t.Errorf("BufferCount = %d after stop, want 4", dev.BufferCount())
	}
	if err := dev.StopStreaming(); err != nil {
		t.Errorf("second StopStreaming failed: %v", err)
	}
}

func startStreamingDevice(t *testing.T, k *fakeKernel) *Device {
	t.Helper()
	dev := newFakeDevice(k)
	if err := dev.RequestBuffers(4); err != nil {
		t.Fatalf("RequestBuffers failed: %v", err)
	}
	if err := dev.StartStreaming(); err != nil {
		t.Fatalf("StartStreaming failed: %v", err)
	}
	return dev
}

func TestReadFrameNoFrame(t *testing.T) {
	k := newFakeKernel()
	dev := startStreamingDevice(t, k)

	if _, err := dev.ReadFrame(); !errors.Is(err, ErrNoFrame) {
		t.Fatalf("err = %v, want ErrNoFrame", err)
	}
}

func TestReadFrameNotStreaming(t *testing.T) {
	dev := newFakeDevice(newFakeKernel())
	if _, err := dev.ReadFrame(); !errors.Is(err, ErrNotStreaming) {
		t.Fatalf("err = %v, want ErrNotStreaming", err)
	}
}

func TestReadFrameRequeuesBuffer(t *testing.T) {
	k := newFakeKernel()
	dev := startStreamingDevice(t, k)
	k.ready = []uint32{1}
	copy(k.mappings[1*fakeBufLen], "frame-one")

	frame, err := dev.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if frame.Index() != 1 {
		t.Errorf("frame index = %d, want 1", frame.Index())
	}
	if frame.Len() != fakeBufLen/2 {
		t.Errorf("frame length = %d, want %d", frame.Len(), fakeBufLen/2)
	}
	if string(frame.Bytes()[:9]) != "frame-one" {
		t.Errorf("frame payload = %q", frame.Bytes()[:9])
	}
	if frame.Sequence() != 1 {
		t.Errorf("frame sequence = %d, want 1", frame.Sequence())
	}

	// 4 from stream start plus exactly one requeue.
	if len(k.queued) != 5 || k.queued[4] != 1 {
		t.Errorf("queue history = %v, want one trailing requeue of 1", k.queued)
	}
}

func TestReadFrameOutOfRangeIndex(t *testing.T) {
	k := newFakeKernel()
	dev := startStreamingDevice(t, k)
	k.ready = []uint32{9}

	_, err := dev.ReadFrame()
	var perr *ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want *ProtocolError", err)
	}
	if perr.Index != 9 || perr.Count != 4 {
		t.Errorf("ProtocolError = %+v", perr)
	}
	// No requeue of a bogus index, pool untouched.
	if len(k.queued) != 4 {
		t.Errorf("queue history = %v, want no requeue", k.queued)
	}
	if dev.BufferCount() != 4 {
		t.Errorf("BufferCount = %d, want 4", dev.BufferCount())
	}
}

func TestFrameBorrowInvalidation(t *testing.T) {
	t.Run("by next read", func(t *testing.T) {
		k := newFakeKernel()
		dev := startStreamingDevice(t, k)
		k.ready = []uint32{0, 1}

		first, err := dev.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame failed: %v", err)
		}
		if !first.Valid() {
			t.Fatal("fresh frame must be valid")
		}
		second, err := dev.ReadFrame()
		if err != nil {
			t.Fatalf("second ReadFrame failed: %v", err)
		}
		if first.Valid() {
			t.Error("first frame must be stale after the next read")
		}
		if first.Bytes() != nil || first.Copy() != nil {
			t.Error("stale frame must not expose buffer memory")
		}
		if !second.Valid() {
			t.Error("second frame must be valid")
		}
	})

	t.Run("by stop", func(t *testing.T) {
		k := newFakeKernel()
		dev := startStreamingDevice(t, k)
		k.ready = []uint32{0}

		frame, err := dev.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame failed: %v", err)
		}
		if err := dev.StopStreaming(); err != nil {
			t.Fatalf("StopStreaming failed: %v", err)
		}
		if frame.Valid() {
			t.Error("frame must be stale after streaming stops")
		}
	})

	t.Run("copy outlives borrow", func(t *testing.T) {
		k := newFakeKernel()
		dev := startStreamingDevice(t, k)
		k.ready = []uint32{2}
		copy(k.mappings[2*fakeBufLen], "persist")

		frame, err := dev.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame failed: %v", err)
		}
		kept := frame.Copy()
		if err := dev.StopStreaming(); err != nil {
			t.Fatalf("StopStreaming failed: %v", err)
		}
		if string(kept[:7]) != "persist" {
			t.Errorf("copied payload = %q", kept[:7])
		}
	})
}

func TestCloseFullTeardown(t *testing.T) {
	k := newFakeKernel()
	dev := startStreamingDevice(t, k)
	k.ready = []uint32{0}
	frame, err := dev.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}

	if err := dev.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if dev.IsOpen() || dev.IsStreaming() {
		t.Error("expected closed idle handle")
	}
	if k.streaming {
		t.Error("driver still streaming after Close")
	}
	if k.refs != 0 {
		t.Errorf("live mappings = %d after Close, want 0", k.refs)
	}
	if len(k.closedFds) != 1 || k.closedFds[0] != 42 {
		t.Errorf("closed fds = %v, want [42]", k.closedFds)
	}
	if frame.Valid() {
		t.Error("frame must be stale after Close")
	}

	// Close again is a no-op.
	if err := dev.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if len(k.closedFds) != 1 {
		t.Errorf("descriptor closed %d times", len(k.closedFds))
	}
}

func TestClosedDeviceRejectsOperations(t *testing.T) {
	dev := newFakeDevice(newFakeKernel())
	if err := dev.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := dev.Capability(); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Capability err = %v, want ErrNotOpen", err)
	}
	if _, err := dev.Formats(); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Formats err = %v, want ErrNotOpen", err)
	}
	if err := dev.RequestBuffers(4); !errors.Is(err, ErrNotOpen) {
		t.Errorf("RequestBuffers err = %v, want ErrNotOpen", err)
	}
	if err := dev.StartStreaming(); !errors.Is(err, ErrNotOpen) {
		t.Errorf("StartStreaming err = %v, want ErrNotOpen", err)
	}
	if _, err := dev.ReadFrame(); !errors.Is(err, ErrNotOpen) {
		t.Errorf("ReadFrame err = %v, want ErrNotOpen", err)
	}
}

func TestQueueBufferRange(t *testing.T) {
	k := newFakeKernel()
	dev := newFakeDevice(k)
	if err := dev.RequestBuffers(4); err != nil {
		t.Fatalf("RequestBuffers failed: %v", err)
	}

	if err := dev.QueueBuffer(3); err != nil {
		t.Errorf("QueueBuffer(3) failed: %v", err)
	}
	if err := dev.QueueBuffer(4); err == nil {
		t.Error("QueueBuffer(4) must fail for a pool of 4")
	}
}

func TestFourCC(t *testing.T) {
	tests := []struct {
		pix  uint32
		want string
	}{
		{PixFmtYUYV, "YUYV"},
		{PixFmtUYVY, "UYVY"},
		{PixFmtYUV420, "YU12"},
		{PixFmtMJPEG, "MJPG"},
		{PixFmtJPEG, "JPEG"},
		{PixFmtH264, "H264"},
		{0x00000001, "0x00000001"},
	}
	for _, tt := range tests {
		if got := FourCC(tt.pix); got != tt.want {
			t.Errorf("FourCC(%#x) = %q, want %q", tt.pix, got, tt.want)
		}
	}
}

func TestFourCCCode(t *testing.T) {
	code, err := FourCCCode("YUYV")
	if err != nil {
		t.Fatalf("FourCCCode failed: %v", err)
	}
	if code != PixFmtYUYV {
		t.Errorf("code = %#x, want %#x", code, PixFmtYUYV)
	}
	if _, err := FourCCCode("TOOLONG"); err == nil {
		t.Error("expected error for bad length")
	}
}

func TestFormatString(t *testing.T) {
	f := Format{Width: 1280, Height: 720, PixelFormat: PixFmtMJPEG}
	if got := f.String(); got != "1280x720 MJPG" {
		t.Errorf("String() = %q", got)
	}
}
