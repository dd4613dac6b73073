package models

// DeviceInfo represents a video capture device with snake_case fields
type DeviceInfo struct {
	DevicePath   string   `json:"device_path" example:"/dev/video0" doc:"System device path"`
	DeviceName   string   `json:"device_name" example:"USB Camera" doc:"Device name"`
	DeviceId     string   `json:"device_id" example:"usb-0000:00:14.0-1" doc:"Stable device identifier"`
	Caps         uint32   `json:"caps" example:"84000001" doc:"Raw V4L2 capability flags"`
	Capabilities []string `json:"capabilities" example:"[\"Video Capture\", \"Streaming I/O\"]" doc:"Device capabilities"`
}

// FormatInfo represents one pixel format a device advertises
type FormatInfo struct {
	FourCC    string `json:"fourcc" example:"YUYV" doc:"Four-character pixel format code"`
	PixFormat uint32 `json:"pix_format" example:"1448695129" doc:"Raw V4L2 pixel format code"`
}

// Device API response models
type DeviceData struct {
	Devices []DeviceInfo `json:"devices" doc:"List of available video devices"`
	Count   int          `json:"count" example:"2" doc:"Number of devices found"`
}

type DeviceResponse struct {
	Body DeviceData
}

type DeviceFormatsData struct {
	DevicePath string       `json:"device_path" example:"/dev/video0" doc:"Path to the video device"`
	Formats    []FormatInfo `json:"formats" doc:"Supported pixel formats"`
}

type DeviceFormatsResponse struct {
	Body DeviceFormatsData
}
