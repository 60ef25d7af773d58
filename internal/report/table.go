package report

import (
	"slices"
	"strconv"

	"forecasting/internal/rank"
	"forecasting/internal/types"
)

// Row labels of the two-row block emitted per city.
const (
	LabelTemperature = "temperature"
	LabelShinyHours  = "shiny hours"
)

// Table is a rectangular report: a header row followed by two rows per city.
type Table [][]string

// Header returns the header row, or nil for an empty table.
func (t Table) Header() []string {
	if len(t) == 0 {
		return nil
	}
	return t[0]
}

// Build sorts totals by descending rating, ranks the ratings, and lays out
// the report:
//
//	City, Measurement/days, <date>..., Average, Rating
//	<city>, temperature, <temp per date>..., <average temp>, <rank>
//	"", shiny hours, <shiny hours per date>..., <average shiny hours>, ""
//
// The date columns are the sorted union of every date seen in any city's
// summary. Cells for dates a city has no value for are empty.
func Build(totals []types.TotalSummary) Table {
	sorted := slices.Clone(totals)
	slices.SortStableFunc(sorted, func(a, b types.TotalSummary) int {
		return b.Rating().Compare(a.Rating())
	})

	dates := collectDates(sorted)

	header := make([]string, 0, len(dates)+4)
	header = append(header, "City", "Measurement/days")
	header = append(header, dates...)
	header = append(header, "Average", "Rating")

	ratings := make([]types.Rating, len(sorted))
	for i, total := range sorted {
		ratings[i] = total.Rating()
	}
	ranks := rank.Dense(ratings, rank.Descending(types.Rating.Compare))

	table := make(Table, 0, 1+2*len(sorted))
	table = append(table, header)
	for i, total := range sorted {
		temps := make([]string, 0, len(header))
		temps = append(temps, total.City(), LabelTemperature)
		shiny := make([]string, 0, len(header))
		shiny = append(shiny, "", LabelShinyHours)

		for _, date := range dates {
			day, ok := total.CitySummary.Day(date)
			temps = append(temps, formatFloatPtr(day.TempAvg, ok))
			shiny = append(shiny, formatIntPtr(day.RelevantCondHours, ok))
		}

		temps = append(temps, formatFloat(total.TempAvg()), strconv.Itoa(ranks[i]))
		shiny = append(shiny, formatFloat(total.ShinyHoursAvg()), "")
		table = append(table, temps, shiny)
	}
	return table
}

func collectDates(totals []types.TotalSummary) []string {
	seen := make(map[string]struct{})
	var dates []string
	for _, total := range totals {
		for _, day := range total.CitySummary.Days {
			if _, ok := seen[day.Date]; ok {
				continue
			}
			seen[day.Date] = struct{}{}
			dates = append(dates, day.Date)
		}
	}
	slices.Sort(dates)
	return dates
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatFloatPtr(v *float64, present bool) string {
	if !present || v == nil {
		return ""
	}
	return formatFloat(*v)
}

func formatIntPtr(v *int, present bool) string {
	if !present || v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
