// Package derive computes the published business metrics from normalized
// controller records. Everything here is pure arithmetic; polling,
// persistence, and the capacity clamp live in the pipeline.
package derive

import (
	"math"
	"strconv"

	"example.com/enersight/services/telemetry/internal/eds"
)

// Round2 rounds to two decimal places, the precision every published
// aggregate carries
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Fixed2 formats a value with exactly two decimals
func Fixed2(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// DeviceTotal is one device's accumulated consumption across the whole
// queried window
type DeviceTotal struct {
	Device string  `json:"device"`
	Value  float64 `json:"value"`
}

// ConsumptionSummary totals field values per device position across all
// records of the window. Devices are labeled through the description
// lookup keyed by the field's device prefix. The result is one total per
// position for the whole window, not a per-bucket series.
func ConsumptionSummary(records []eds.Record, descriptions map[string]string) map[int]DeviceTotal {
	totals := make(map[int]DeviceTotal)
	for _, record := range records {
		for i, field := range record.Fields {
			t := totals[i]
			t.Device = descriptions[field.Device()]
			t.Value += float64(field.Int())
			totals[i] = t
		}
	}
	if len(totals) == 0 {
		return nil
	}
	return totals
}

// DailyReadings is the derived prior-day bundle
type DailyReadings struct {
	LastUpdated        string `json:"lastUpdated"`
	Consumption        string `json:"consumption"`
	Distribution       string `json:"distribution"`
	ChargeDistribution string `json:"chargeDistribution"`

	// Capacity is filled in by the pipeline's clamp step
	Capacity float64 `json:"capacity"`
}

// Daily derives the prior-day consumption and distribution figures from the
// window's single record. Consumption is truncated to whole units before
// normalization, matching the billing convention.
func Daily(record eds.Record, hours int, chargeFactor, distributionPrice float64) DailyReadings {
	var consumption float64
	for _, field := range record.Fields {
		consumption += field.Float()
	}
	distribution := math.Trunc(consumption) / (float64(hours) * 1 * chargeFactor)
	return DailyReadings{
		Consumption:        Fixed2(consumption),
		Distribution:       Fixed2(distribution),
		ChargeDistribution: Fixed2(distribution * distributionPrice),
	}
}

// MonthlyReadings is the derived prior-month bundle
type MonthlyReadings struct {
	Consumption  string `json:"consumption"`
	Distribution string `json:"distribution"`

	// Capacity is filled in by the pipeline's clamp step
	Capacity float64 `json:"capacity"`
}

// Monthly derives the prior-month consumption and distribution figures
// from the window's single record
func Monthly(record eds.Record, days int, chargeFactor float64) MonthlyReadings {
	var consumption float64
	for _, field := range record.Fields {
		consumption += float64(field.Int())
	}
	distribution := consumption / (24 * float64(days) * chargeFactor)
	return MonthlyReadings{
		Consumption:  Fixed2(consumption),
		Distribution: Fixed2(distribution),
	}
}

// Distribution extracts the numeric distribution from a formatted bundle
// value for the capacity clamp
func Distribution(formatted string) float64 {
	v, err := strconv.ParseFloat(formatted, 64)
	if err != nil {
		return 0
	}
	return v
}

// HistoryPoint is one time bucket of the active-energy history
type HistoryPoint struct {
	Value string `json:"value"`
	Date  string `json:"date"`
}

// EpimpHistory totals each record's fields into one value per time bucket,
// keyed by bucket position. The result fully replaces any prior history.
func EpimpHistory(records []eds.Record) map[int]HistoryPoint {
	history := make(map[int]HistoryPoint)
	for i, record := range records {
		var total float64
		for _, field := range record.Fields {
			total += field.Float()
		}
		point := HistoryPoint{Date: record.DateTime}
		if len(record.Fields) == 0 {
			point.Value = "0"
		} else {
			point.Value = Fixed2(total)
		}
		history[i] = point
	}
	if len(history) == 0 {
		return nil
	}
	return history
}

// PowerFactor partitions one record's fields into active and reactive
// accumulators by variable suffix and derives the power factor percentage
// alongside the reactive total. Only the window's first record is used;
// later buckets are deliberately ignored.
func PowerFactor(record eds.Record) (fp, reactive float64) {
	var p, q float64
	for _, field := range record.Fields {
		if field.Variable() == eds.VarActiveEnergy {
			p += field.Float()
		} else {
			q += field.Float()
		}
	}
	return Round2(p / math.Sqrt(p*p+q*q) * 100), Round2(q)
}

// Odometer scales a raw summatory value to the published odometer figure.
// A zero (or unparseable) reading reports ok=false: the controller answers
// zero while re-synchronizing, and publishing it would wipe a valid
// odometer, so zero means "no update" rather than "update to zero".
func Odometer(raw float64) (dp float64, ok bool) {
	dp = raw / 1000
	if dp == 0 || math.IsNaN(dp) {
		return 0, false
	}
	return Round2(dp), true
}
