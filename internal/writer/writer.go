// Package writer persists captured frames to disk as a rotating ring
// of files so the newest frames are always available without unbounded
// disk growth.
package writer

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/smazurov/framegrab/internal/logging"
	"github.com/smazurov/framegrab/pkg/linuxav/v4l2"
)

// DefaultRingSize is how many frame files are kept before the oldest
// slot is overwritten.
const DefaultRingSize = 20

// FrameWriter writes frames into a directory as frame_NNN files,
// cycling through a fixed number of slots.
type FrameWriter struct {
	mu      sync.Mutex
	dir     string
	ext     string
	size    int
	slot    int
	written uint64
}

// New creates a FrameWriter for the given output directory. The file
// extension is chosen from the pixel format: compressed JPEG streams
// get .jpg, everything else .raw. The directory is created if needed.
func New(dir string, pixelFormat uint32, ringSize int) (*FrameWriter, error) {
	if dir == "" {
		return nil, fmt.Errorf("writer: output directory is required")
	}
	if ringSize <= 0 {
		ringSize = DefaultRingSize
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	ext := ".raw"
	if pixelFormat == v4l2.PixFmtMJPEG || pixelFormat == v4l2.PixFmtJPEG {
		ext = ".jpg"
	}

	return &FrameWriter{
		dir:  dir,
		ext:  ext,
		size: ringSize,
	}, nil
}

// Write stores one frame payload in the next ring slot and returns the
// path it was written to.
func (w *FrameWriter) Write(data []byte) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	path := filepath.Join(w.dir, fmt.Sprintf("frame_%03d%s", w.slot, w.ext))

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write frame file %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to place frame file %s: %w", path, err)
	}

	w.slot = (w.slot + 1) % w.size
	w.written++

	logger := logging.GetLogger("writer")
	logger.Debug("Frame written", "path", path, "bytes", len(data), "total", w.written)
	return path, nil
}

// Written returns how many frames have been saved in total.
func (w *FrameWriter) Written() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// Dir returns the output directory.
func (w *FrameWriter) Dir() string {
	return w.dir
}

// Ext returns the file extension used for frame files.
func (w *FrameWriter) Ext() string {
	return w.ext
}
