//go:build linux

package devices

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/smazurov/framegrab/internal/logging"
)

// Uevent action constants.
const (
	ActionAdd    = "add"
	ActionRemove = "remove"
	ActionChange = "change"
)

const (
	subsystemVideo4Linux = "video4linux"

	// netlinkKobjectUEvent is the netlink protocol for kernel object events.
	netlinkKobjectUEvent = 15
)

// UEvent is one parsed kernel device event.
type UEvent struct {
	Action    string            // "add", "remove", "change", etc.
	KObj      string            // Kernel object path: /devices/pci0000:00/...
	Subsystem string            // "video4linux", "usb", etc.
	DevName   string            // Device name (e.g., "video0")
	Env       map[string]string // All environment variables from the event
}

// Watcher listens for video4linux hotplug events via netlink and
// notifies an EventBroadcaster with full device information.
type Watcher struct {
	fd     int
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher opens the kernel uevent socket.
func NewWatcher() (*Watcher, error) {
	fd, err := syscall.Socket(syscall.AF_NETLINK, syscall.SOCK_DGRAM|syscall.SOCK_CLOEXEC, netlinkKobjectUEvent)
	if err != nil {
		return nil, err
	}

	addr := &syscall.SockaddrNetlink{
		Family: syscall.AF_NETLINK,
		Groups: 1, // kernel broadcast group
	}
	if err := syscall.Bind(fd, addr); err != nil {
		syscall.Close(fd)
		return nil, err
	}

	return &Watcher{fd: fd}, nil
}

// Start begins delivering video device add/remove notifications to the
// broadcaster until the context is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context, broadcaster EventBroadcaster) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx, broadcaster)
	}()
}

// Stop shuts the watcher down and releases the socket.
func (w *Watcher) Stop() error {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	return syscall.Close(w.fd)
}

func (w *Watcher) run(ctx context.Context, broadcaster EventBroadcaster) {
	logger := logging.GetLogger("devices")
	buf := make([]byte, 8192)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Read timeout so the context is checked periodically.
		tv := syscall.Timeval{Sec: 1}
		if err := syscall.SetsockoptTimeval(w.fd, syscall.SOL_SOCKET, syscall.SO_RCVTIMEO, &tv); err != nil {
			logger.Warn("Hotplug socket option failed", "error", err)
			return
		}

		n, _, err := syscall.Recvfrom(w.fd, buf, 0)
		if err != nil {
			if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK) || errors.Is(err, syscall.EINTR) {
				continue
			}
			logger.Warn("Hotplug read failed", "error", err)
			return
		}
		if n == 0 {
			continue
		}

		event := ParseUEvent(buf[:n])
		if event == nil || event.Subsystem != subsystemVideo4Linux {
			continue
		}
		if event.DevName == "" {
			continue
		}

		w.dispatch(event, broadcaster, logger)
	}
}

func (w *Watcher) dispatch(event *UEvent, broadcaster EventBroadcaster, logger *slog.Logger) {
	path := "/dev/" + event.DevName
	timestamp := time.Now().Format(time.RFC3339)

	switch event.Action {
	case ActionAdd, ActionChange:
		// The node may take a moment to become openable after the
		// uevent arrives.
		info, ok := probe(path)
		if !ok {
			logger.Debug("Hotplug node not usable", "device", path, "action", event.Action)
			return
		}
		logger.Info("Video device added", "device", path, "card", info.DeviceName)
		broadcaster.BroadcastDeviceDiscovery(event.Action, info, timestamp)

	case ActionRemove:
		logger.Info("Video device removed", "device", path)
		broadcaster.BroadcastDeviceDiscovery(ActionRemove, DeviceInfo{DevicePath: path}, timestamp)
	}
}

// ParseUEvent parses a kernel uevent message.
// Format: "ACTION@KOBJ\0KEY=VALUE\0KEY=VALUE\0..."
func ParseUEvent(data []byte) *UEvent {
	if len(data) == 0 {
		return nil
	}

	// Skip the binary libudev header if present; the real uevent
	// follows it and starts with "action@path".
	if bytes.HasPrefix(data, []byte("libudev")) {
		for i := 0; i < len(data)-1; i++ {
			if data[i] == 0 {
				rest := data[i+1:]
				if idx := bytes.IndexByte(rest, '@'); idx > 0 && idx < 20 {
					data = rest
					break
				}
			}
		}
	}

	parts := bytes.Split(data, []byte{0})
	if len(parts) < 1 || len(parts[0]) == 0 {
		return nil
	}

	header := string(parts[0])
	atIdx := strings.Index(header, "@")
	if atIdx < 1 {
		return nil
	}

	event := &UEvent{
		Action: header[:atIdx],
		KObj:   header[atIdx+1:],
		Env:    make(map[string]string),
	}

	for _, part := range parts[1:] {
		if len(part) == 0 {
			continue
		}

		kv := string(part)
		eqIdx := strings.Index(kv, "=")
		if eqIdx < 1 {
			continue
		}

		key := kv[:eqIdx]
		value := kv[eqIdx+1:]
		event.Env[key] = value

		switch key {
		case "SUBSYSTEM":
			event.Subsystem = value
		case "DEVNAME":
			event.DevName = value
		}
	}

	return event
}
