package forecasts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"forecasting/internal/types"
)

// Daytime window analyzed for every forecast day, both bounds inclusive.
const (
	DayHoursStart = 9
	DayHoursEnd   = 19
)

// relevantConditions are the precipitation-free conditions counted as
// shiny hours.
var relevantConditions = map[string]bool{
	"clear":         true,
	"partly-cloudy": true,
	"cloudy":        true,
	"overcast":      true,
}

type forecastDocument struct {
	Forecasts []forecastDay `json:"forecasts"`
}

type forecastDay struct {
	Date  string         `json:"date"`
	Hours []forecastHour `json:"hours"`
}

type forecastHour struct {
	Hour      hourOfDay `json:"hour"`
	Temp      float64   `json:"temp"`
	Condition string    `json:"condition"`
}

// hourOfDay accepts both "13" and 13; the weather API sends strings.
type hourOfDay int

func (h *hourOfDay) UnmarshalJSON(data []byte) error {
	s := string(bytes.Trim(data, `"`))
	v, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid hour %s: %w", data, err)
	}
	*h = hourOfDay(v)
	return nil
}

// Analyze summarizes the daytime hours of every forecast day in raw.
//
// A payload that is not a JSON object, or whose forecasts cannot be decoded,
// is a transform_failed error. A payload without a forecasts collection
// yields a summary with nil Days, which the aggregator rejects as malformed.
func Analyze(raw types.RawCityData) (types.CitySummary, error) {
	trimmed := bytes.TrimSpace(raw.Payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return types.CitySummary{}, types.NewAppErrorWithDetails(
			types.ErrCodeTransformFailed,
			fmt.Sprintf("forecast for %s is not a JSON object", raw.City),
			nil,
			map[string]any{"city": raw.City},
		)
	}

	var doc forecastDocument
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return types.CitySummary{}, types.NewAppErrorWithDetails(
			types.ErrCodeTransformFailed,
			fmt.Sprintf("cannot decode forecast for %s", raw.City),
			err,
			map[string]any{"city": raw.City},
		)
	}

	summary := types.CitySummary{City: raw.City}
	if doc.Forecasts == nil {
		return summary, nil
	}

	summary.Days = make([]types.DaySummary, 0, len(doc.Forecasts))
	for _, day := range doc.Forecasts {
		summary.Days = append(summary.Days, analyzeDay(day))
	}
	return summary, nil
}

func analyzeDay(day forecastDay) types.DaySummary {
	out := types.DaySummary{
		Date:       day.Date,
		HoursStart: DayHoursStart,
		HoursEnd:   DayHoursEnd,
	}

	var tempSum float64
	relevant := 0
	for _, h := range day.Hours {
		if int(h.Hour) < DayHoursStart || int(h.Hour) > DayHoursEnd {
			continue
		}
		out.HoursCount++
		tempSum += h.Temp
		if relevantConditions[h.Condition] {
			relevant++
		}
	}

	if out.HoursCount > 0 {
		avg := math.Round(tempSum/float64(out.HoursCount)*1000) / 1000
		out.TempAvg = &avg
		out.RelevantCondHours = &relevant
	}
	return out
}
