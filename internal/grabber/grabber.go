// Package grabber runs the capture session: it negotiates a format,
// maps the buffer pool, and pumps frames from the device into metrics,
// events, and the on-disk frame ring.
package grabber

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/framegrab/internal/events"
	"github.com/smazurov/framegrab/internal/logging"
	"github.com/smazurov/framegrab/internal/metrics"
	"github.com/smazurov/framegrab/internal/writer"
	"github.com/smazurov/framegrab/pkg/linuxav/v4l2"
)

// Defaults applied when Options fields are zero.
const (
	DefaultWidth        = 640
	DefaultHeight       = 480
	DefaultBuffers      = 4
	DefaultSaveInterval = time.Second

	// pollInterval is how long to back off when the driver has no
	// frame ready.
	pollInterval = 10 * time.Millisecond
)

// defaultFormats is the preference order used when the caller does not
// specify one.
var defaultFormats = []string{"YUYV", "UYVY", "YU12", "MJPG", "JPEG"}

// Options configures one capture session.
type Options struct {
	Device       string        // device node path
	Width        uint32        // requested frame width
	Height       uint32        // requested frame height
	Formats      []string      // fourcc preference order
	Buffers      uint32        // buffer pool size
	OutputDir    string        // frame ring directory; empty disables saving
	SaveInterval time.Duration // minimum gap between saved frames
	RingSize     int           // frame files kept on disk
}

// captureDevice is the slice of the device API the grabber drives.
type captureDevice interface {
	Formats() ([]uint32, error)
	SetFormat(width, height, pixelFormat uint32) (v4l2.Format, error)
	RequestBuffers(count uint32) error
	StartStreaming() error
	StopStreaming() error
	ReleaseBuffers() error
	Close() error
	BufferCount() int
	NextFrame() ([]byte, uint32, error)
}

// deviceAdapter narrows *v4l2.Device to captureDevice. NextFrame
// returns the borrowed payload directly; the grabber consumes it
// before the next acquisition invalidates it.
type deviceAdapter struct {
	*v4l2.Device
}

func (a deviceAdapter) NextFrame() ([]byte, uint32, error) {
	frame, err := a.ReadFrame()
	if err != nil {
		return nil, 0, err
	}
	return frame.Bytes(), frame.Sequence(), nil
}

// openDevice is swapped out in tests.
var openDevice = func(path string) (captureDevice, error) {
	dev, err := v4l2.Open(path)
	if err != nil {
		return nil, err
	}
	return deviceAdapter{dev}, nil
}

// Status is a snapshot of a running session.
type Status struct {
	Running bool    `json:"running"`
	Device  string  `json:"device"`
	Format  string  `json:"format,omitempty"`
	Frames  uint64  `json:"frames"`
	Saved   uint64  `json:"saved"`
	FPS     float64 `json:"fps"`
}

// Grabber owns one device and its capture loop.
type Grabber struct {
	opts     Options
	eventBus *events.Bus
	logger   *slog.Logger

	mu      sync.Mutex
	dev     captureDevice
	format  v4l2.Format
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	frames uint64
	saved  uint64
	fps    float64
}

// New creates a Grabber. Zero Options fields get defaults; Device is
// required.
func New(opts Options, bus *events.Bus) *Grabber {
	if opts.Width == 0 {
		opts.Width = DefaultWidth
	}
	if opts.Height == 0 {
		opts.Height = DefaultHeight
	}
	if opts.Buffers == 0 {
		opts.Buffers = DefaultBuffers
	}
	if len(opts.Formats) == 0 {
		opts.Formats = defaultFormats
	}
	if opts.SaveInterval <= 0 {
		opts.SaveInterval = DefaultSaveInterval
	}

	return &Grabber{
		opts:     opts,
		eventBus: bus,
		logger:   logging.GetLogger("grabber"),
	}
}

// Start opens the device, negotiates the format, maps the buffer pool,
// and launches the capture loop. It returns once streaming is live.
func (g *Grabber) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.running {
		return fmt.Errorf("capture already running on %s", g.opts.Device)
	}
	if g.opts.Device == "" {
		return errors.New("device path is required")
	}

	dev, err := openDevice(g.opts.Device)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", g.opts.Device, err)
	}

	format, err := g.negotiate(dev)
	if err != nil {
		dev.Close()
		return err
	}

	if err := dev.RequestBuffers(g.opts.Buffers); err != nil {
		dev.Close()
		return fmt.Errorf("failed to map buffer pool: %w", err)
	}

	if err := dev.StartStreaming(); err != nil {
		dev.ReleaseBuffers()
		dev.Close()
		return fmt.Errorf("failed to start streaming: %w", err)
	}

	g.dev = dev
	g.format = format
	g.running = true
	g.frames = 0
	g.saved = 0
	g.fps = 0

	ctx, g.cancel = context.WithCancel(ctx)
	g.done = make(chan struct{})

	metrics.SetStreaming(g.opts.Device, true)
	metrics.SetPoolSize(g.opts.Device, dev.BufferCount())

	g.logger.Info("Capture started", "device", g.opts.Device,
		"format", format.String(), "buffers", dev.BufferCount())
	g.eventBus.Publish(events.CaptureStartedEvent{
		DevicePath: g.opts.Device,
		Format:     format.String(),
		Buffers:    dev.BufferCount(),
		Timestamp:  time.Now().Format(time.RFC3339),
	})

	go g.run(ctx)
	return nil
}

// negotiate applies the first preferred format the device advertises.
// When none of the preferences are available, the first advertised
// format is used so capture still works on exotic hardware.
func (g *Grabber) negotiate(dev captureDevice) (v4l2.Format, error) {
	advertised, err := dev.Formats()
	if err != nil {
		return v4l2.Format{}, fmt.Errorf("failed to enumerate formats: %w", err)
	}
	if len(advertised) == 0 {
		return v4l2.Format{}, fmt.Errorf("device %s advertises no capture formats", g.opts.Device)
	}

	pix := advertised[0]
	for _, name := range g.opts.Formats {
		code, err := v4l2.FourCCCode(name)
		if err != nil {
			return v4l2.Format{}, fmt.Errorf("invalid format preference %q: %w", name, err)
		}
		if containsFormat(advertised, code) {
			pix = code
			break
		}
	}

	format, err := dev.SetFormat(g.opts.Width, g.opts.Height, pix)
	if err != nil {
		return v4l2.Format{}, fmt.Errorf("failed to set format: %w", err)
	}
	return format, nil
}

func containsFormat(formats []uint32, code uint32) bool {
	for _, f := range formats {
		if f == code {
			return true
		}
	}
	return false
}

// run is the capture loop. It exits when the context is cancelled or
// frame acquisition fails.
func (g *Grabber) run(ctx context.Context) {
	defer close(g.done)

	var sink *writer.FrameWriter
	if g.opts.OutputDir != "" {
		var err error
		sink, err = writer.New(g.opts.OutputDir, g.format.PixelFormat, g.opts.RingSize)
		if err != nil {
			g.logger.Error("Frame saving disabled", "error", err)
			g.publishError("Failed to prepare output directory", err)
		}
	}

	var (
		intervalFrames uint64
		intervalEmpty  uint64
		intervalSaved  uint64
		lastStats      = time.Now()
		lastSave       time.Time
	)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		data, _, err := g.dev.NextFrame()
		switch {
		case errors.Is(err, v4l2.ErrNoFrame):
			intervalEmpty++
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollInterval):
			}
		case err != nil:
			g.logger.Error("Frame acquisition failed", "device", g.opts.Device, "error", err)
			g.publishError("Frame acquisition failed", err)
			g.mu.Lock()
			if g.running && g.dev != nil {
				if terr := g.teardownLocked(); terr != nil {
					g.logger.Warn("Teardown after failure incomplete", "device", g.opts.Device, "error", terr)
				}
			}
			g.mu.Unlock()
			return
		default:
			intervalFrames++
			metrics.SetFrameBytes(g.opts.Device, len(data))

			if sink != nil && time.Since(lastSave) >= g.saveInterval() {
				path, werr := sink.Write(data)
				if werr != nil {
					g.logger.Warn("Frame write failed", "error", werr)
				} else {
					lastSave = time.Now()
					intervalSaved++
					g.eventBus.Publish(events.FrameSavedEvent{
						DevicePath: g.opts.Device,
						Path:       path,
						Bytes:      len(data),
						Timestamp:  time.Now().Format(time.RFC3339),
					})
				}
			}
		}

		if elapsed := time.Since(lastStats); elapsed >= time.Second {
			fps := float64(intervalFrames) / elapsed.Seconds()

			metrics.AddFrames(g.opts.Device, intervalFrames)
			metrics.AddEmptyPolls(g.opts.Device, intervalEmpty)
			metrics.AddSaved(g.opts.Device, intervalSaved)
			metrics.SetFPS(g.opts.Device, fps)

			g.eventBus.Publish(events.FrameStatsEvent{
				DevicePath: g.opts.Device,
				Frames:     intervalFrames,
				EmptyPolls: intervalEmpty,
				Saved:      intervalSaved,
				FPS:        fps,
				Timestamp:  time.Now().Format(time.RFC3339),
			})

			g.mu.Lock()
			g.frames += intervalFrames
			g.saved += intervalSaved
			g.fps = fps
			g.mu.Unlock()

			intervalFrames, intervalEmpty, intervalSaved = 0, 0, 0
			lastStats = time.Now()
		}
	}
}

func (g *Grabber) publishError(message string, err error) {
	g.eventBus.Publish(events.CaptureErrorEvent{
		DevicePath: g.opts.Device,
		Message:    message,
		Error:      err.Error(),
		Timestamp:  time.Now().Format(time.RFC3339),
	})
}

// Stop halts the loop, stops streaming, unmaps the pool, and closes
// the device. Safe to call when not running.
func (g *Grabber) Stop() error {
	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		return nil
	}
	cancel := g.cancel
	done := g.done
	g.mu.Unlock()

	cancel()
	<-done

	g.mu.Lock()
	defer g.mu.Unlock()

	// The loop tears the device down itself on fatal acquisition
	// errors, and a concurrent Stop may have finished first.
	if !g.running || g.dev == nil {
		return nil
	}
	return g.teardownLocked()
}

// teardownLocked stops streaming, unmaps the pool, and closes the
// device. Callers must hold g.mu with g.dev non-nil.
func (g *Grabber) teardownLocked() error {
	var errs []error
	if err := g.dev.StopStreaming(); err != nil {
		errs = append(errs, err)
	}
	if err := g.dev.ReleaseBuffers(); err != nil {
		errs = append(errs, err)
	}
	if err := g.dev.Close(); err != nil {
		errs = append(errs, err)
	}

	metrics.SetStreaming(g.opts.Device, false)
	metrics.SetFPS(g.opts.Device, 0)

	g.logger.Info("Capture stopped", "device", g.opts.Device, "frames", g.frames)
	g.eventBus.Publish(events.CaptureStoppedEvent{
		DevicePath: g.opts.Device,
		Frames:     g.frames,
		Timestamp:  time.Now().Format(time.RFC3339),
	})

	g.running = false
	g.dev = nil
	g.cancel = nil
	g.done = nil

	return errors.Join(errs...)
}

// SetSaveInterval applies a new minimum gap between saved frames. The
// running loop picks it up on the next frame.
func (g *Grabber) SetSaveInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	g.mu.Lock()
	g.opts.SaveInterval = d
	g.mu.Unlock()
}

func (g *Grabber) saveInterval() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.opts.SaveInterval
}

// Status returns a snapshot of the session.
func (g *Grabber) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := Status{
		Running: g.running,
		Device:  g.opts.Device,
		Frames:  g.frames,
		Saved:   g.saved,
		FPS:     g.fps,
	}
	if g.running {
		s.Format = g.format.String()
	}
	return s
}
