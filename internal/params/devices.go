package params

import (
	"strings"

	"github.com/chromedp/chromedp/device"
)

// preset is satisfied by the chromedp/device constants.
type preset interface {
	Device() device.Info
}

var devicePresets = []preset{
	device.IPhoneX,
	device.IPhone11,
	device.IPhone11Pro,
	device.IPhone11ProMax,
	device.IPadPro,
	device.Pixel2,
	device.Pixel2XL,
	device.GalaxyS5,
	device.Nexus7,
}

// LookupDevice returns the emulation preset with the given (case-insensitive) name.
func LookupDevice(name string) (device.Info, bool) {
	for _, d := range devicePresets {
		info := d.Device()
		if strings.EqualFold(info.Name, strings.TrimSpace(name)) {
			return info, true
		}
	}
	return device.Info{}, false
}

// DeviceNames lists the supported preset names.
func DeviceNames() []string {
	names := make([]string, 0, len(devicePresets))
	for _, d := range devicePresets {
		names = append(names, d.Device().Name)
	}
	return names
}
