package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/framegrab/internal/api/models"
	"github.com/smazurov/framegrab/internal/devices"
	"github.com/smazurov/framegrab/pkg/linuxav/v4l2"
)

// Device path parameter input
type DevicePathInput struct {
	DeviceID string `path:"device_id" example:"usb-0000:00:14.0-1" doc:"Stable device identifier or node path"`
}

// V4L2 capability constants (from linux/videodev2.h)
const (
	capVideoCapture = 0x00000001
	capVideoOutput  = 0x00000002
	capVideoM2M     = 0x00008000
	capAudio        = 0x00020000
	capExtPixFormat = 0x00200000
	capMetaCapture  = 0x00800000
	capReadWrite    = 0x01000000
	capAsyncIO      = 0x02000000
	capStreaming    = 0x04000000
	capIOMC         = 0x20000000
)

// translateCapabilities converts V4L2 capability flags to readable strings
func translateCapabilities(caps uint32) []string {
	named := []struct {
		flag uint32
		name string
	}{
		{capVideoCapture, "Video Capture"},
		{capVideoOutput, "Video Output"},
		{capVideoM2M, "Video Memory-to-Memory"},
		{capAudio, "Audio"},
		{capExtPixFormat, "Extended Pix Format"},
		{capMetaCapture, "Metadata Capture"},
		{capReadWrite, "Read/Write"},
		{capAsyncIO, "Async I/O"},
		{capStreaming, "Streaming I/O"},
		{capIOMC, "I/O Media Controller"},
	}

	var capabilities []string
	for _, c := range named {
		if caps&c.flag != 0 {
			capabilities = append(capabilities, c.name)
		}
	}
	return capabilities
}

// registerDeviceRoutes sets up device discovery endpoints.
func (s *Server) registerDeviceRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-devices",
		Method:      http.MethodGet,
		Path:        "/api/devices",
		Summary:     "List Devices",
		Description: "List V4L2 devices that support memory-mapped capture",
		Tags:        []string{"devices"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(ctx context.Context, input *struct{}) (*models.DeviceResponse, error) {
		found, err := devices.Scan()
		if err != nil {
			s.logger.Error("Device scan failed", "error", err)
			return nil, huma.Error500InternalServerError("Failed to scan devices", err)
		}

		data := models.DeviceData{
			Devices: make([]models.DeviceInfo, 0, len(found)),
			Count:   len(found),
		}
		for _, dev := range found {
			data.Devices = append(data.Devices, models.DeviceInfo{
				DevicePath:   dev.DevicePath,
				DeviceName:   dev.DeviceName,
				DeviceId:     dev.DeviceId,
				Caps:         dev.Caps,
				Capabilities: translateCapabilities(dev.Caps),
			})
		}
		return &models.DeviceResponse{Body: data}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-device-formats",
		Method:      http.MethodGet,
		Path:        "/api/devices/{device_id}/formats",
		Summary:     "Device Formats",
		Description: "List the pixel formats a device advertises for capture",
		Tags:        []string{"devices"},
		Security:    withAuth(),
		Errors:      []int{401, 404, 500},
	}, func(ctx context.Context, input *DevicePathInput) (*models.DeviceFormatsResponse, error) {
		path, err := devices.Resolve(input.DeviceID)
		if err != nil {
			var nfe *devices.NotFoundError
			if errors.As(err, &nfe) {
				return nil, huma.Error404NotFound("Device not found", err)
			}
			return nil, huma.Error500InternalServerError("Failed to resolve device", err)
		}

		formats, err := devices.Formats(path)
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to query formats", err)
		}

		data := models.DeviceFormatsData{
			DevicePath: path,
			Formats:    make([]models.FormatInfo, 0, len(formats)),
		}
		for _, pix := range formats {
			data.Formats = append(data.Formats, models.FormatInfo{
				FourCC:    v4l2.FourCC(pix),
				PixFormat: pix,
			})
		}
		return &models.DeviceFormatsResponse{Body: data}, nil
	})
}
