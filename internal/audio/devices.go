package audio

import (
	"fmt"
	"strings"
)

// monitorKeywords are name fragments that mark a capture device as a
// loopback/monitor source on the platforms miniaudio backs.
var monitorKeywords = []string{
	"monitor",
	"loopback",
	"stereo mix",
	"what u hear",
}

// IsMonitorDevice reports whether the device name looks like a
// loopback/monitor capture source.
func IsMonitorDevice(name string) bool {
	lname := strings.ToLower(name)
	for _, kw := range monitorKeywords {
		if strings.Contains(lname, kw) {
			return true
		}
	}
	return false
}

// matchDeviceName resolves name against the device list: an exact name
// match wins, otherwise a case-insensitive substring match that hits
// exactly one device.
func matchDeviceName(devs []Device, name string) (Device, error) {
	for _, d := range devs {
		if d.Name == name {
			return d, nil
		}
	}

	var matches []Device
	lname := strings.ToLower(name)
	for _, d := range devs {
		if strings.Contains(strings.ToLower(d.Name), lname) {
			matches = append(matches, d)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return Device{}, fmt.Errorf("%w: %q", ErrDeviceNotFound, name)
	default:
		return Device{}, fmt.Errorf("%w: %q matches %d devices",
			ErrDeviceNotFound, name, len(matches))
	}
}

// pickLoopbackDevice selects the capture device that records system output.
// It prefers the monitor of the default playback device, then any
// monitor-like capture device.
func pickLoopbackDevice(devs Devices) (Device, error) {
	var defPlayback string
	for _, d := range devs.Playback {
		if d.IsDefault {
			defPlayback = strings.ToLower(d.Name)
			break
		}
	}

	if defPlayback != "" {
		for _, d := range devs.Capture {
			if IsMonitorDevice(d.Name) &&
				strings.Contains(strings.ToLower(d.Name), defPlayback) {
				return d, nil
			}
		}
	}

	for _, d := range devs.Capture {
		if IsMonitorDevice(d.Name) {
			return d, nil
		}
	}

	return Device{}, fmt.Errorf("%w: no loopback/monitor capture device",
		ErrDeviceNotFound)
}

// defaultCaptureDevice returns the device a user would consider "the mic":
// the default capture device, or failing that the first capture device that
// is not a monitor source.
func defaultCaptureDevice(devs []Device) (Device, bool) {
	for _, d := range devs {
		if d.IsDefault {
			return d, true
		}
	}
	for _, d := range devs {
		if !IsMonitorDevice(d.Name) {
			return d, true
		}
	}
	return Device{}, false
}
