package types

import (
	"cmp"
	"math"
)

// MinRating compares below any rating a real city can produce.
var MinRating = Rating{ShinyHours: 0, TempAvg: -271}

// Rating orders cities by favorability: more shiny hours first, then the
// warmer average temperature.
type Rating struct {
	ShinyHours int     `json:"shiny_hours"`
	TempAvg    float64 `json:"temp_avg"`
}

// Compare returns -1, 0 or +1 depending on whether r orders before, equal
// to, or after other.
func (r Rating) Compare(other Rating) int {
	if c := cmp.Compare(r.ShinyHours, other.ShinyHours); c != 0 {
		return c
	}
	return cmp.Compare(r.TempAvg, other.TempAvg)
}

// TotalSummary accumulates the retained days of one city. It is built by
// the aggregator, one day at a time, and treated as read-only afterwards.
type TotalSummary struct {
	CitySummary    CitySummary `json:"city_summary"`
	TempSum        float64     `json:"temp_sum"`
	ShinyHours     int         `json:"shiny_hours"`
	AnalyzingHours int         `json:"analyzing_hours"`
	AnalyzingDays  int         `json:"analyzing_days"`
}

// City returns the name of the summarized city.
func (t TotalSummary) City() string {
	return t.CitySummary.City
}

// TempAvg is the hour-weighted mean daytime temperature rounded to one
// decimal. It is 0 when no hours were analyzed.
func (t TotalSummary) TempAvg() float64 {
	if t.AnalyzingHours == 0 {
		return 0
	}
	return round1(t.TempSum / float64(t.AnalyzingHours))
}

// ShinyHoursAvg is the mean number of shiny hours per analyzed day rounded
// to one decimal. It is 0 when no days were analyzed.
func (t TotalSummary) ShinyHoursAvg() float64 {
	if t.AnalyzingDays == 0 {
		return 0
	}
	return round1(float64(t.ShinyHours) / float64(t.AnalyzingDays))
}

// Rating returns the (shiny hours, average temperature) pair used to rank
// cities.
func (t TotalSummary) Rating() Rating {
	return Rating{ShinyHours: t.ShinyHours, TempAvg: t.TempAvg()}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
