package device

import (
	"fmt"
	"strings"
)

// ListedDevice is one line of `adb devices`.
type ListedDevice struct {
	Serial string
	State  string // device, offline, unauthorized
}

// ListDevices lists devices known to the default adb server.
func ListDevices() ([]ListedDevice, error) {
	adbPath, err := findADB()
	if err != nil {
		return nil, err
	}
	d := &AndroidDevice{adbPath: adbPath, run: execRun}
	return d.listDevices()
}

func (d *AndroidDevice) listDevices() ([]ListedDevice, error) {
	out, _, err := d.run(d.adbPath, d.baseArgs(false, "devices")...)
	if err != nil {
		return nil, fmt.Errorf("adb devices: %w", err)
	}
	return parseDevices(string(out)), nil
}

func parseDevices(out string) []ListedDevice {
	var devices []ListedDevice
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of") || strings.HasPrefix(line, "*") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) >= 2 {
			devices = append(devices, ListedDevice{Serial: parts[0], State: parts[1]})
		}
	}
	return devices
}

func firstOnline(devices []ListedDevice) (ListedDevice, error) {
	for _, dev := range devices {
		if dev.State == "device" {
			return dev, nil
		}
	}
	return ListedDevice{}, fmt.Errorf("no connected devices found")
}
