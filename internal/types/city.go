package types

import "encoding/json"

// Source identifies a city and the URL its forecast is fetched from.
type Source struct {
	City string `json:"city"`
	URL  string `json:"url"`
}

// RawCityData is the unparsed forecast document fetched for one city.
type RawCityData struct {
	City    string          `json:"city"`
	Payload json.RawMessage `json:"payload"`
}

// DaySummary holds the daytime statistics of a single forecast day.
// TempAvg and RelevantCondHours are nil when the analyzer had no hours
// inside the daytime window to measure.
type DaySummary struct {
	Date              string   `json:"date"`
	HoursStart        int      `json:"hours_start"`
	HoursEnd          int      `json:"hours_end"`
	HoursCount        int      `json:"hours_count"`
	TempAvg           *float64 `json:"temp_avg"`
	RelevantCondHours *int     `json:"relevant_cond_hours,omitempty"`
}

// CitySummary is the per-day analysis of one city's forecast.
// A nil Days slice means the days collection was missing from the
// analysis; an empty non-nil slice is a valid summary without days.
type CitySummary struct {
	City string       `json:"city"`
	Days []DaySummary `json:"days"`
}

// Dates returns the dates of every day in the summary, in summary order.
func (s CitySummary) Dates() []string {
	dates := make([]string, 0, len(s.Days))
	for _, d := range s.Days {
		dates = append(dates, d.Date)
	}
	return dates
}

// Day returns the summary for the given date.
func (s CitySummary) Day(date string) (DaySummary, bool) {
	for _, d := range s.Days {
		if d.Date == date {
			return d, true
		}
	}
	return DaySummary{}, false
}
