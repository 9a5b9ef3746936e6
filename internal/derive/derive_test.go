package derive

import (
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/enersight/services/telemetry/internal/eds"
)

func TestConsumptionSummaryAccumulatesPerPosition(t *testing.T) {
	records := []eds.Record{
		{Fields: []eds.Field{
			{ID: "T2.EPimp", Value: "100.9"},
			{ID: "T3.EPimp", Value: "50"},
		}},
		{Fields: []eds.Field{
			{ID: "T2.EPimp", Value: "200.1"},
			{ID: "T3.EPimp", Value: "25"},
		}},
	}
	descriptions := map[string]string{"T2": "Chiller plant", "T3": "Lighting"}

	summary := ConsumptionSummary(records, descriptions)
	require.Len(t, summary, 2)
	// fractions are dropped per record before accumulation
	require.Equal(t, DeviceTotal{Device: "Chiller plant", Value: 300}, summary[0])
	require.Equal(t, DeviceTotal{Device: "Lighting", Value: 75}, summary[1])
}

func TestConsumptionSummaryEmpty(t *testing.T) {
	require.Nil(t, ConsumptionSummary(nil, nil))
	require.Nil(t, ConsumptionSummary([]eds.Record{}, nil))
}

func TestDaily(t *testing.T) {
	record := eds.Record{Fields: []eds.Field{
		{ID: "T2.EPimp", Value: "47999.5"},
		{ID: "T3.EPimp", Value: "0.5"},
	}}

	bundle := Daily(record, 24, 1000, 73.04)
	require.Equal(t, "48000.00", bundle.Consumption)
	require.Equal(t, "2.00", bundle.Distribution)
	require.Equal(t, "146.08", bundle.ChargeDistribution)
	require.Zero(t, bundle.Capacity)
}

func TestDailyTruncatesBeforeNormalizing(t *testing.T) {
	record := eds.Record{Fields: []eds.Field{{ID: "T2.EPimp", Value: "5.9"}}}

	bundle := Daily(record, 1, 1, 1)
	require.Equal(t, "5.90", bundle.Consumption)
	// whole units only feed the normalization
	require.Equal(t, "5.00", bundle.Distribution)
	require.Equal(t, "5.00", bundle.ChargeDistribution)
}

func TestMonthly(t *testing.T) {
	record := eds.Record{Fields: []eds.Field{
		{ID: "T2.EPimp", Value: "700000"},
		{ID: "T3.EPimp", Value: "44000"},
	}}

	bundle := Monthly(record, 31, 1000)
	require.Equal(t, "744000.00", bundle.Consumption)
	require.Equal(t, "1.00", bundle.Distribution)
}

func TestDistribution(t *testing.T) {
	require.InDelta(t, 2.15, Distribution("2.15"), 1e-9)
	require.Zero(t, Distribution("not a number"))
}

func TestEpimpHistory(t *testing.T) {
	records := []eds.Record{
		{DateTime: "01/08/2026 00:00:00", Fields: []eds.Field{
			{ID: "T2.EPimp", Value: "1.25"},
			{ID: "T3.EPimp", Value: "2.50"},
		}},
		{DateTime: "02/08/2026 00:00:00"},
	}

	history := EpimpHistory(records)
	require.Len(t, history, 2)
	require.Equal(t, HistoryPoint{Value: "3.75", Date: "01/08/2026 00:00:00"}, history[0])
	require.Equal(t, HistoryPoint{Value: "0", Date: "02/08/2026 00:00:00"}, history[1])

	require.Nil(t, EpimpHistory(nil))
}

func TestPowerFactor(t *testing.T) {
	record := eds.Record{Fields: []eds.Field{
		{ID: "T2.EPimp", Value: "3"},
		{ID: "T2.EQimp", Value: "4"},
	}}

	fp, reactive := PowerFactor(record)
	require.InDelta(t, 60.0, fp, 1e-9)
	require.InDelta(t, 4.0, reactive, 1e-9)
}

func TestPowerFactorPureActive(t *testing.T) {
	record := eds.Record{Fields: []eds.Field{{ID: "T2.EPimp", Value: "10"}}}

	fp, reactive := PowerFactor(record)
	require.InDelta(t, 100.0, fp, 1e-9)
	require.Zero(t, reactive)
}

func TestPowerFactorPureReactive(t *testing.T) {
	record := eds.Record{Fields: []eds.Field{{ID: "T2.EQimp", Value: "10"}}}

	fp, reactive := PowerFactor(record)
	require.Zero(t, fp)
	require.InDelta(t, 10.0, reactive, 1e-9)
}

func TestOdometer(t *testing.T) {
	dp, ok := Odometer(12345)
	require.True(t, ok)
	require.InDelta(t, 12.35, dp, 1e-9)

	_, ok = Odometer(0)
	require.False(t, ok)
}

func TestRounding(t *testing.T) {
	require.InDelta(t, 1.24, Round2(1.235), 1e-9)
	require.Equal(t, "1.20", Fixed2(1.2))
	require.Equal(t, "0.00", Fixed2(0))
}
