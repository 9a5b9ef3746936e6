package eds

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/enersight/services/telemetry/internal/dates"
)

func testWindow() dates.Window {
	return dates.Window{
		Begin:  time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC),
		End:    time.Date(2026, time.August, 15, 10, 30, 0, 0, time.UTC),
		Period: 86400,
	}
}

func TestRecordsQuerySkipsMainIncomer(t *testing.T) {
	url := RecordsQuery("http://10.0.0.5", []string{"GEN", "T2", "T3"}, testWindow(), false)
	require.Equal(t,
		"http://10.0.0.5/services/user/records.xml"+
			"?begin=01082026000000?end=15082026103000"+
			"?var=T2.EPimp?var=T3.EPimp?period=86400",
		url)
	require.NotContains(t, url, "GEN")
}

func TestRecordsQueryWithReactive(t *testing.T) {
	url := RecordsQuery("http://10.0.0.5", []string{"GEN", "T2"}, testWindow(), true)
	require.Equal(t,
		"http://10.0.0.5/services/user/records.xml"+
			"?begin=01082026000000?end=15082026103000"+
			"?var=T2.EPimp?var=T2.EQimp?period=86400",
		url)
}

func TestValuesQuery(t *testing.T) {
	url := ValuesQuery("http://10.0.0.5", "SUM1")
	require.Equal(t, "http://10.0.0.5/services/user/values.xml?var=SUM1.DP", url)
}

func TestDeviceInfoQuery(t *testing.T) {
	url := DeviceInfoQuery("http://10.0.0.5", []string{"GEN", "T2"})
	require.Equal(t, "http://10.0.0.5/services/user/deviceInfo.xml?id=GEN?id=T2", url)
}
