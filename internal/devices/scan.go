//go:build linux

package devices

import (
	"path/filepath"
	"sort"

	"github.com/smazurov/framegrab/internal/logging"
	"github.com/smazurov/framegrab/pkg/linuxav/v4l2"
)

// scanPattern is overridable in tests.
var scanPattern = "/dev/video*"

// Scan enumerates video device nodes and returns the ones that support
// memory-mapped video capture. Nodes that cannot be opened or queried
// are skipped; a missing or busy node is normal on shared systems, so
// skips are logged at debug level only.
func Scan() ([]DeviceInfo, error) {
	logger := logging.GetLogger("devices")

	paths, err := filepath.Glob(scanPattern)
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	var found []DeviceInfo
	for _, path := range paths {
		info, ok := probe(path)
		if !ok {
			continue
		}
		found = append(found, info)
	}

	logger.Debug("Device scan complete", "candidates", len(paths), "usable", len(found))
	return found, nil
}

// probe opens one node and checks it is a streaming capture device.
func probe(path string) (DeviceInfo, bool) {
	logger := logging.GetLogger("devices")

	dev, err := v4l2.Open(path)
	if err != nil {
		logger.Debug("Skipping device node", "device", path, "error", err)
		return DeviceInfo{}, false
	}
	defer dev.Close()

	cap, err := dev.Capability()
	if err != nil {
		logger.Debug("Skipping device node", "device", path, "error", err)
		return DeviceInfo{}, false
	}
	if !cap.HasVideoCapture() || !cap.HasStreaming() {
		logger.Debug("Skipping non-capture node", "device", path,
			"card", cap.Card, "caps", cap.Caps)
		return DeviceInfo{}, false
	}

	formats, err := dev.Formats()
	if err != nil {
		logger.Debug("Skipping device node", "device", path, "error", err)
		return DeviceInfo{}, false
	}

	return DeviceInfo{
		DevicePath: path,
		DeviceName: cap.Card,
		DeviceId:   cap.BusInfo,
		Caps:       cap.Caps,
		Formats:    formats,
	}, true
}

// Formats returns the pixel formats a device node advertises.
func Formats(path string) ([]uint32, error) {
	dev, err := v4l2.Open(path)
	if err != nil {
		return nil, err
	}
	defer dev.Close()
	return dev.Formats()
}

// Resolve maps a stable device identifier back to its current node
// path. Paths are passed through untouched so callers can use either.
func Resolve(idOrPath string) (string, error) {
	if filepath.IsAbs(idOrPath) {
		return idOrPath, nil
	}

	infos, err := Scan()
	if err != nil {
		return "", err
	}
	for _, info := range infos {
		if info.DeviceId == idOrPath {
			return info.DevicePath, nil
		}
	}
	return "", &NotFoundError{ID: idOrPath}
}

// NotFoundError reports a device identifier that matched no node.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return "devices: no device with identifier " + e.ID
}
