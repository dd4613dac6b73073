// Package devices discovers V4L2 capture devices and tracks hotplug
// events.
package devices

// DeviceInfo describes one usable capture device.
type DeviceInfo struct {
	DevicePath string // /dev/videoN
	DeviceName string // driver-reported card name
	DeviceId   string // stable bus identifier
	Caps       uint32 // effective capability bits
	Formats    []uint32
}

// EventBroadcaster receives device hotplug notifications.
type EventBroadcaster interface {
	BroadcastDeviceDiscovery(action string, device DeviceInfo, timestamp string)
}
