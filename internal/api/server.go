package api

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/smazurov/framegrab/internal/api/models"
	"github.com/smazurov/framegrab/internal/devices"
	"github.com/smazurov/framegrab/internal/events"
	"github.com/smazurov/framegrab/internal/grabber"
	"github.com/smazurov/framegrab/internal/logging"
	"github.com/smazurov/framegrab/internal/version"
)

// Server is the Huma v2 API server.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	grabber    *grabber.Grabber
	eventBus   *events.Bus
	options    *Options
	hotplug    *devices.Watcher
	logger     *slog.Logger
}

// Options configures the API server.
type Options struct {
	AuthUsername      string
	AuthPassword      string
	Grabber           *grabber.Grabber
	EventBus          *events.Bus
	PrometheusHandler http.Handler // Optional Prometheus metrics handler
}

// basicAuthMiddleware creates middleware for HTTP basic authentication
func (s *Server) basicAuthMiddleware(username, password string) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		// Operations without security requirements skip auth
		op := ctx.Operation()
		if op != nil && len(op.Security) == 0 {
			next(ctx)
			return
		}

		unauthorized := func(message string, errs ...error) {
			ctx.SetHeader("WWW-Authenticate", `Basic realm="Framegrab API"`)
			huma.WriteErr(s.api, ctx, http.StatusUnauthorized, message, errs...)
		}

		var credentials string
		if authHeader := ctx.Header("Authorization"); authHeader != "" {
			const prefix = "Basic "
			if !strings.HasPrefix(authHeader, prefix) {
				unauthorized("Invalid authentication type")
				return
			}
			decoded, err := base64.StdEncoding.DecodeString(authHeader[len(prefix):])
			if err != nil {
				unauthorized("Invalid credentials format", err)
				return
			}
			credentials = string(decoded)
		} else if queryAuth := ctx.Query("auth"); queryAuth != "" {
			// SSE clients cannot set headers; allow base64 creds in the
			// query string as a fallback.
			decoded, err := base64.StdEncoding.DecodeString(queryAuth)
			if err != nil {
				unauthorized("Invalid credentials format", err)
				return
			}
			credentials = string(decoded)
		}

		if credentials == "" {
			unauthorized("Authentication required")
			return
		}

		parts := strings.SplitN(credentials, ":", 2)
		if len(parts) != 2 || parts[0] != username || parts[1] != password {
			unauthorized("Invalid credentials")
			return
		}

		next(ctx)
	}
}

// NewServer creates the API server using Go 1.22+ native routing.
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()

	corsConfig := DefaultCORSConfig()
	AddCORSHandler(mux, corsConfig)

	config := huma.DefaultConfig("Framegrab API", "1.0.0")
	config.Info.Description = "Memory-mapped V4L2 frame capture API"
	// Empty servers list makes OpenAPI use relative paths, working with any host
	config.Servers = []*huma.Server{}

	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"basicAuth": {
			Type:   "http",
			Scheme: "basic",
		},
	}

	api := humago.New(mux, config)

	server := &Server{
		api:      api,
		mux:      mux,
		grabber:  opts.Grabber,
		eventBus: opts.EventBus,
		options:  opts,
		logger:   logging.GetLogger("api"),
	}

	api.UseMiddleware(NewCORSMiddleware(corsConfig))
	api.UseMiddleware(HTTPLoggingMiddleware)

	if opts.AuthUsername != "" && opts.AuthPassword != "" {
		api.UseMiddleware(server.basicAuthMiddleware(opts.AuthUsername, opts.AuthPassword))
	}

	// Prometheus scrape endpoint sits outside the Huma API, no auth
	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}

	server.registerRoutes()

	return server
}

// GetMux returns the underlying HTTP ServeMux for additional setup
func (s *Server) GetMux() *http.ServeMux {
	return s.mux
}

// GetAPI returns the Huma API instance
func (s *Server) GetAPI() huma.API {
	return s.api
}

// BroadcastDeviceDiscovery implements devices.EventBroadcaster; hotplug
// notifications are republished on the event bus for SSE clients.
func (s *Server) BroadcastDeviceDiscovery(action string, device devices.DeviceInfo, timestamp string) {
	s.eventBus.Publish(events.DeviceDiscoveryEvent{
		DeviceInfo: models.DeviceInfo{
			DevicePath:   device.DevicePath,
			DeviceName:   device.DeviceName,
			DeviceId:     device.DeviceId,
			Caps:         device.Caps,
			Capabilities: translateCapabilities(device.Caps),
		},
		Action:    action,
		Timestamp: timestamp,
	})
}

// Start begins serving on addr and starts hotplug monitoring.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting Framegrab API server", "addr", addr)
	s.logger.Info("OpenAPI documentation available", "url", "http://"+addr+"/docs")

	watcher, err := devices.NewWatcher()
	if err != nil {
		s.logger.Warn("Device hotplug monitoring unavailable", "error", err)
	} else {
		s.hotplug = watcher
		s.hotplug.Start(context.Background(), s)
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}

	return s.httpServer.ListenAndServe()
}

// Stop shuts the server down without waiting for open connections.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")

	if s.hotplug != nil {
		if err := s.hotplug.Stop(); err != nil {
			s.logger.Warn("Hotplug watcher shutdown failed", "error", err)
		}
	}

	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

// registerRoutes sets up all API endpoints
func (s *Server) registerRoutes() {
	// Health check endpoint, no auth required
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Description: "Check API health status",
		Tags:        []string{"health"},
		Security:    []map[string][]string{},
	}, func(ctx context.Context, input *struct{}) (*models.HealthResponse, error) {
		return &models.HealthResponse{
			Body: models.HealthData{
				Status:  "ok",
				Message: "API is healthy",
			},
		}, nil
	})

	// Version endpoint, no auth required
	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Get application version information",
		Tags:        []string{"system"},
		Security:    []map[string][]string{},
	}, func(ctx context.Context, input *struct{}) (*models.VersionResponse, error) {
		versionInfo := version.Get()
		return &models.VersionResponse{
			Body: models.VersionData{
				Version:   versionInfo.Version,
				GitCommit: versionInfo.GitCommit,
				BuildDate: versionInfo.BuildDate,
				BuildID:   versionInfo.BuildID,
				GoVersion: versionInfo.GoVersion,
				Compiler:  versionInfo.Compiler,
				Platform:  versionInfo.Platform,
			},
		}, nil
	})

	s.registerDeviceRoutes()
	s.registerCaptureRoutes()
	s.registerSSERoutes()
	s.registerMetricsRoutes()
	s.registerLogRoutes()
}

// registerCaptureRoutes wires the capture session lifecycle.
func (s *Server) registerCaptureRoutes() {
	captureStatus := func(ctx context.Context, input *struct{}) (*models.CaptureStatusResponse, error) {
		st := s.grabber.Status()
		return &models.CaptureStatusResponse{
			Body: models.CaptureStatusData{
				Running: st.Running,
				Device:  st.Device,
				Format:  st.Format,
				Frames:  st.Frames,
				Saved:   st.Saved,
				FPS:     st.FPS,
			},
		}, nil
	}

	// /api/status is the conventional name; /api/capture groups with
	// the start/stop controls.
	huma.Register(s.api, huma.Operation{
		OperationID: "node-status",
		Method:      http.MethodGet,
		Path:        "/api/status",
		Summary:     "Node Status",
		Description: "Get the current capture session state",
		Tags:        []string{"capture"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, captureStatus)

	huma.Register(s.api, huma.Operation{
		OperationID: "capture-status",
		Method:      http.MethodGet,
		Path:        "/api/capture",
		Summary:     "Capture Status",
		Description: "Get the current capture session state",
		Tags:        []string{"capture"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, captureStatus)

	huma.Register(s.api, huma.Operation{
		OperationID: "capture-start",
		Method:      http.MethodPost,
		Path:        "/api/capture/start",
		Summary:     "Start Capture",
		Description: "Start the configured capture session",
		Tags:        []string{"capture"},
		Security:    withAuth(),
		Errors:      []int{401, 409},
	}, func(ctx context.Context, input *struct{}) (*models.CaptureControlResponse, error) {
		if err := s.grabber.Start(context.Background()); err != nil {
			return nil, huma.Error409Conflict("Failed to start capture", err)
		}
		st := s.grabber.Status()
		return &models.CaptureControlResponse{
			Body: models.CaptureControlData{
				Status:  "started",
				Message: "Capture started on " + st.Device,
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "capture-stop",
		Method:      http.MethodPost,
		Path:        "/api/capture/stop",
		Summary:     "Stop Capture",
		Description: "Stop the running capture session",
		Tags:        []string{"capture"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(ctx context.Context, input *struct{}) (*models.CaptureControlResponse, error) {
		if err := s.grabber.Stop(); err != nil {
			return nil, huma.Error500InternalServerError("Failed to stop capture", err)
		}
		return &models.CaptureControlResponse{
			Body: models.CaptureControlData{
				Status:  "stopped",
				Message: "Capture stopped at " + time.Now().Format(time.RFC3339),
			},
		}, nil
	})
}

// withAuth returns security requirement for basic auth
func withAuth() []map[string][]string {
	return []map[string][]string{
		{"basicAuth": {}},
	}
}
