package models

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Capture session models
type CaptureStatusData struct {
	Running bool    `json:"running" example:"true" doc:"Whether a capture session is active"`
	Device  string  `json:"device" example:"/dev/video0" doc:"Device node in use"`
	Format  string  `json:"format,omitempty" example:"640x480 YUYV" doc:"Negotiated capture format"`
	Frames  uint64  `json:"frames" example:"1800" doc:"Frames captured so far"`
	Saved   uint64  `json:"saved" example:"60" doc:"Frames written to disk"`
	FPS     float64 `json:"fps" example:"29.97" doc:"Current capture rate"`
}

type CaptureStatusResponse struct {
	Body CaptureStatusData
}

type CaptureControlData struct {
	Status  string `json:"status" example:"started" doc:"Resulting session state"`
	Message string `json:"message" example:"Capture started on /dev/video0" doc:"Status message"`
}

type CaptureControlResponse struct {
	Body CaptureControlData
}

// Capture metrics models
type CaptureMetricsData struct {
	Device     string  `json:"device" example:"/dev/video0" doc:"Device node"`
	Frames     uint64  `json:"frames" example:"1800" doc:"Total frames captured"`
	EmptyPolls uint64  `json:"empty_polls" example:"240" doc:"Polls that found no frame ready"`
	Saved      uint64  `json:"saved" example:"60" doc:"Total frames written to disk"`
	FPS        float64 `json:"fps" example:"29.97" doc:"Current capture rate"`
	FrameBytes int     `json:"frame_bytes" example:"614400" doc:"Size of the last frame payload"`
	Streaming  bool    `json:"streaming" example:"true" doc:"Whether the device is streaming"`
	PoolSize   int     `json:"pool_size" example:"4" doc:"Mapped buffer pool size"`
}

type CaptureMetricsListData struct {
	Captures []CaptureMetricsData `json:"captures" doc:"Per-device capture metrics"`
	Count    int                  `json:"count" example:"1" doc:"Number of tracked devices"`
}

type CaptureMetricsListResponse struct {
	Body CaptureMetricsListData
}

// Error response
type ErrorData struct {
	Status  string `json:"status" example:"error" doc:"Error status"`
	Message string `json:"message" example:"Device not found" doc:"Error message"`
}

type ErrorResponse struct {
	Body ErrorData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"dev" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit SHA"`
	BuildDate string `json:"build_date" example:"2024-12-15 14:30" doc:"Build timestamp"`
	BuildID   string `json:"build_id" example:"a1b2c3d4" doc:"Unique build identifier"`
	GoVersion string `json:"go_version" example:"go1.21.0" doc:"Go compiler version"`
	Compiler  string `json:"compiler" example:"gc" doc:"Compiler used"`
	Platform  string `json:"platform" example:"linux/amd64" doc:"Platform"`
}

type VersionResponse struct {
	Body VersionData
}
