package api

import (
	"context"
	"net/http"
	"sort"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/framegrab/internal/api/models"
	"github.com/smazurov/framegrab/internal/events"
	"github.com/smazurov/framegrab/internal/metrics"
)

// registerMetricsRoutes registers capture metrics endpoints.
func (s *Server) registerMetricsRoutes() {
	// Snapshot of per-device counters
	huma.Register(s.api, huma.Operation{
		OperationID: "capture-metrics",
		Method:      http.MethodGet,
		Path:        "/api/metrics/capture",
		Summary:     "Capture Metrics",
		Description: "Per-device capture counters as JSON. The Prometheus exposition is at /metrics.",
		Tags:        []string{"metrics"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, input *struct{}) (*models.CaptureMetricsListResponse, error) {
		all := metrics.GetAllCaptureMetrics()

		paths := make([]string, 0, len(all))
		for device := range all {
			paths = append(paths, device)
		}
		sort.Strings(paths)

		data := models.CaptureMetricsListData{
			Captures: make([]models.CaptureMetricsData, 0, len(all)),
			Count:    len(all),
		}
		for _, device := range paths {
			m := all[device]
			data.Captures = append(data.Captures, models.CaptureMetricsData{
				Device:     device,
				Frames:     m.Frames,
				EmptyPolls: m.EmptyPolls,
				Saved:      m.Saved,
				FPS:        m.FPS,
				FrameBytes: m.FrameBytes,
				Streaming:  m.Streaming,
				PoolSize:   m.PoolSize,
			})
		}
		return &models.CaptureMetricsListResponse{Body: data}, nil
	})

	// Live per-second stats over SSE
	sse.Register(s.api, huma.Operation{
		OperationID: "metrics-stream",
		Method:      http.MethodGet,
		Path:        "/api/metrics/stream",
		Summary:     "Metrics Server-Sent Events Stream",
		Description: "Real-time per-second capture statistics",
		Tags:        []string{"metrics"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"frame-stats": events.FrameStatsEvent{},
	}, func(ctx context.Context, input *struct{}, send sse.Sender) {
		eventCh := make(chan any, 10)

		unsubscribe := events.SubscribeToChannel[events.FrameStatsEvent](s.eventBus, eventCh)
		defer unsubscribe()

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
