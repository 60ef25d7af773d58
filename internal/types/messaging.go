package types

import "time"

// RankingCompleted is published to the ranking queue after every scheduled
// run. Consumers use it to pick up the report and the winners.
type RankingCompleted struct {
	RunID       string     `json:"run_id"`
	Best        []BestCity `json:"best"`
	Ranked      int        `json:"ranked"`
	Failed      int        `json:"failed"`
	Report      string     `json:"report,omitempty"`
	GeneratedAt time.Time  `json:"generated_at"`
}

// BestCity is the public view of a winning city.
type BestCity struct {
	City       string  `json:"city"`
	ShinyHours int     `json:"shiny_hours"`
	TempAvg    float64 `json:"temp_avg"`
}

// NewBestCity projects a TotalSummary onto its public view.
func NewBestCity(t TotalSummary) BestCity {
	return BestCity{City: t.City(), ShinyHours: t.ShinyHours, TempAvg: t.TempAvg()}
}
