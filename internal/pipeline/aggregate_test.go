package pipeline

import (
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forecasting/internal/types"
)

func TestAggregateCity(t *testing.T) {
	summary := types.CitySummary{City: "MOSCOW", Days: []types.DaySummary{
		{Date: "2022-05-26", HoursCount: 11, TempAvg: floatPtr(18), RelevantCondHours: intPtr(7)},
		{Date: "2022-05-27", HoursCount: 11, TempAvg: floatPtr(13), RelevantCondHours: intPtr(0)},
		{Date: "2022-05-28", HoursCount: 0, TempAvg: nil, RelevantCondHours: nil},
		{Date: "2022-05-29", HoursCount: 5, TempAvg: floatPtr(10), RelevantCondHours: nil},
		{Date: "2022-05-30", HoursCount: 11, TempAvg: nil, RelevantCondHours: intPtr(5)},
	}}

	total, err := AggregateCity(summary)

	require.NoError(t, err)
	assert.Equal(t, "MOSCOW", total.City())
	assert.InDelta(t, 18*11+13*11, total.TempSum, 1e-9)
	assert.Equal(t, 7, total.ShinyHours)
	assert.Equal(t, 22, total.AnalyzingHours)
	assert.Equal(t, 2, total.AnalyzingDays)
	assert.Equal(t, 15.5, total.TempAvg())
	assert.Equal(t, 3.5, total.ShinyHoursAvg())
	assert.Len(t, total.CitySummary.Days, 5, "all days are kept for the report")
}

func TestAggregateCity_EachFilterAloneDropsTheDay(t *testing.T) {
	base := types.DaySummary{Date: "2022-05-26", HoursCount: 11, TempAvg: floatPtr(18), RelevantCondHours: intPtr(7)}

	tests := []struct {
		name string
		edit func(*types.DaySummary)
	}{
		{"no hours", func(d *types.DaySummary) { d.HoursCount = 0 }},
		{"no temperature", func(d *types.DaySummary) { d.TempAvg = nil }},
		{"no condition count", func(d *types.DaySummary) { d.RelevantCondHours = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dropped := base
			dropped.Date = "2022-05-27"
			tt.edit(&dropped)

			total, err := AggregateCity(types.CitySummary{City: "PARIS", Days: []types.DaySummary{base, dropped}})

			require.NoError(t, err)
			assert.InDelta(t, 18*11, total.TempSum, 1e-9)
			assert.Equal(t, 7, total.ShinyHours)
			assert.Equal(t, 11, total.AnalyzingHours)
			assert.Equal(t, 1, total.AnalyzingDays)
		})
	}
}

func TestAggregateCity_NoRetainedDays(t *testing.T) {
	total, err := AggregateCity(types.CitySummary{City: "NOWHERE", Days: []types.DaySummary{}})

	require.NoError(t, err)
	assert.Equal(t, 0, total.AnalyzingDays)
	assert.Equal(t, 0.0, total.TempAvg())
	assert.Equal(t, 0.0, total.ShinyHoursAvg())
}

func TestAggregateCity_MissingDays(t *testing.T) {
	_, err := AggregateCity(types.CitySummary{City: "X"})

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeSummaryMalformed, appErr.Code)
}

func TestAggregator_Filters(t *testing.T) {
	logger, logs := newTestLogger()
	agg := NewAggregator(logger)

	outcomes := []types.Outcome[types.CitySummary]{
		types.Success(types.CitySummary{City: "PARIS", Days: []types.DaySummary{
			{Date: "d1", HoursCount: 11, TempAvg: floatPtr(20), RelevantCondHours: intPtr(9)},
		}}),
		types.Failure[types.CitySummary]("fetch LONDON: timeout"),
		types.Success(types.CitySummary{City: "BROKEN"}),
		types.Success(types.CitySummary{}),
	}

	totals := slices.Collect(agg.Aggregate(slices.Values(outcomes)))

	require.Len(t, totals, 1)
	assert.Equal(t, "PARIS", totals[0].City())
	assert.Equal(t, AggregateStats{Succeeded: 1, Failed: 1, Malformed: 1, Skipped: 1}, agg.Stats())

	out := logs.String()
	assert.Contains(t, out, "city summary failed")
	assert.Contains(t, out, "fetch LONDON: timeout")
	assert.Contains(t, out, "incorrect city summary format")
}

func TestAggregator_IsLazy(t *testing.T) {
	pulled := 0
	source := func(yield func(types.Outcome[types.CitySummary]) bool) {
		for _, city := range []string{"A", "B", "C"} {
			pulled++
			if !yield(types.Success(types.CitySummary{City: city, Days: []types.DaySummary{}})) {
				return
			}
		}
	}

	for range NewAggregator(nil).Aggregate(source) {
		break
	}
	assert.Equal(t, 1, pulled)
}
