// Package metrics provides Prometheus metrics for capture sessions.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	captureFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "framegrab",
		Subsystem: "capture",
		Name:      "frames_total",
		Help:      "Total frames dequeued from the device",
	}, []string{"device"})

	captureEmptyPolls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "framegrab",
		Subsystem: "capture",
		Name:      "empty_polls_total",
		Help:      "Total polls that found no frame ready",
	}, []string{"device"})

	captureSaved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "framegrab",
		Subsystem: "capture",
		Name:      "frames_saved_total",
		Help:      "Total frames written to the output ring",
	}, []string{"device"})

	captureFPS = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "framegrab",
		Subsystem: "capture",
		Name:      "fps",
		Help:      "Capture rate over the last stats interval",
	}, []string{"device"})

	captureFrameBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "framegrab",
		Subsystem: "capture",
		Name:      "frame_bytes",
		Help:      "Payload size of the most recent frame",
	}, []string{"device"})

	captureStreaming = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "framegrab",
		Subsystem: "capture",
		Name:      "streaming",
		Help:      "Whether the device is currently streaming (0 or 1)",
	}, []string{"device"})

	capturePoolSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "framegrab",
		Subsystem: "capture",
		Name:      "buffer_pool_size",
		Help:      "Number of mapped buffers in the pool",
	}, []string{"device"})

	// Local cache so the API can report current values without
	// scraping the registry.
	captureCache   = make(map[string]*CaptureMetrics)
	captureCacheMu sync.RWMutex
)

// CaptureMetrics holds current metric values for one device.
type CaptureMetrics struct {
	Frames     uint64
	EmptyPolls uint64
	Saved      uint64
	FPS        float64
	FrameBytes int
	Streaming  bool
	PoolSize   int
}

// AddFrames increments the dequeued frame counter for a device.
func AddFrames(device string, n uint64) {
	captureFrames.WithLabelValues(device).Add(float64(n))
	updateCache(device, func(m *CaptureMetrics) { m.Frames += n })
}

// AddEmptyPolls increments the empty poll counter for a device.
func AddEmptyPolls(device string, n uint64) {
	captureEmptyPolls.WithLabelValues(device).Add(float64(n))
	updateCache(device, func(m *CaptureMetrics) { m.EmptyPolls += n })
}

// AddSaved increments the saved frame counter for a device.
func AddSaved(device string, n uint64) {
	captureSaved.WithLabelValues(device).Add(float64(n))
	updateCache(device, func(m *CaptureMetrics) { m.Saved += n })
}

// SetFPS sets the current capture rate for a device.
func SetFPS(device string, fps float64) {
	captureFPS.WithLabelValues(device).Set(fps)
	updateCache(device, func(m *CaptureMetrics) { m.FPS = fps })
}

// SetFrameBytes records the payload size of the latest frame.
func SetFrameBytes(device string, n int) {
	captureFrameBytes.WithLabelValues(device).Set(float64(n))
	updateCache(device, func(m *CaptureMetrics) { m.FrameBytes = n })
}

// SetStreaming records whether a device is streaming.
func SetStreaming(device string, streaming bool) {
	v := 0.0
	if streaming {
		v = 1.0
	}
	captureStreaming.WithLabelValues(device).Set(v)
	updateCache(device, func(m *CaptureMetrics) { m.Streaming = streaming })
}

// SetPoolSize records the mapped buffer pool size for a device.
func SetPoolSize(device string, n int) {
	capturePoolSize.WithLabelValues(device).Set(float64(n))
	updateCache(device, func(m *CaptureMetrics) { m.PoolSize = n })
}

// DeleteCaptureMetrics removes all metrics for a device.
func DeleteCaptureMetrics(device string) {
	captureFrames.DeleteLabelValues(device)
	captureEmptyPolls.DeleteLabelValues(device)
	captureSaved.DeleteLabelValues(device)
	captureFPS.DeleteLabelValues(device)
	captureFrameBytes.DeleteLabelValues(device)
	captureStreaming.DeleteLabelValues(device)
	capturePoolSize.DeleteLabelValues(device)

	captureCacheMu.Lock()
	delete(captureCache, device)
	captureCacheMu.Unlock()
}

// GetCaptureMetrics returns current metric values for a device.
func GetCaptureMetrics(device string) *CaptureMetrics {
	captureCacheMu.RLock()
	defer captureCacheMu.RUnlock()
	if m, ok := captureCache[device]; ok {
		dup := *m
		return &dup
	}
	return nil
}

// GetAllCaptureMetrics returns metrics for all known devices.
func GetAllCaptureMetrics() map[string]*CaptureMetrics {
	captureCacheMu.RLock()
	defer captureCacheMu.RUnlock()
	out := make(map[string]*CaptureMetrics, len(captureCache))
	for device, m := range captureCache {
		dup := *m
		out[device] = &dup
	}
	return out
}

func updateCache(device string, apply func(*CaptureMetrics)) {
	captureCacheMu.Lock()
	defer captureCacheMu.Unlock()
	m, ok := captureCache[device]
	if !ok {
		m = &CaptureMetrics{}
		captureCache[device] = m
	}
	apply(m)
}
