package eds

import (
	"strconv"
	"strings"

	"example.com/enersight/services/telemetry/internal/dates"
)

// The controller's user API. The repeated "?" separators are not a typo:
// the firmware parses every parameter as "?name=value" regardless of
// position, and rejects "&"-joined queries.
const (
	apiPrefix          = "/services/user/"
	recordsResource    = "records.xml"
	valuesResource     = "values.xml"
	deviceInfoResource = "deviceInfo.xml"
)

// Variable suffixes reported by the controllers
const (
	VarActiveEnergy   = "EPimp"
	VarReactiveEnergy = "EQimp"
	VarSummatoryDP    = "DP"
)

// RecordsQuery builds the time-series records URL for a service's device
// list. The device at index 0 is the service's main incomer and is never
// selected. With withReactive set, each device also gets a reactive-energy
// selector for power-factor derivation.
func RecordsQuery(hostname string, devices []string, w dates.Window, withReactive bool) string {
	var b strings.Builder
	b.WriteString(hostname)
	b.WriteString(apiPrefix)
	b.WriteString(recordsResource)
	b.WriteString("?begin=")
	b.WriteString(w.BeginParam())
	b.WriteString("?end=")
	b.WriteString(w.EndParam())
	for i, device := range devices {
		if i == 0 {
			continue
		}
		b.WriteString("?var=")
		b.WriteString(device)
		b.WriteString(".")
		b.WriteString(VarActiveEnergy)
		if withReactive {
			b.WriteString("?var=")
			b.WriteString(device)
			b.WriteString(".")
			b.WriteString(VarReactiveEnergy)
		}
	}
	b.WriteString("?period=")
	b.WriteString(strconv.Itoa(w.Period))
	return b.String()
}

// ValuesQuery builds the instantaneous-value URL for the meter's designated
// summing device.
func ValuesQuery(hostname, summatoryDevice string) string {
	var b strings.Builder
	b.WriteString(hostname)
	b.WriteString(apiPrefix)
	b.WriteString(valuesResource)
	b.WriteString("?var=")
	b.WriteString(summatoryDevice)
	b.WriteString(".")
	b.WriteString(VarSummatoryDP)
	return b.String()
}

// DeviceInfoQuery builds the device-description URL for a meter's devices
func DeviceInfoQuery(hostname string, deviceIDs []string) string {
	var b strings.Builder
	b.WriteString(hostname)
	b.WriteString(apiPrefix)
	b.WriteString(deviceInfoResource)
	for _, id := range deviceIDs {
		b.WriteString("?id=")
		b.WriteString(id)
	}
	return b.String()
}
