// Package report turns aggregated city totals into the final output of a
// ranking run: the best city (or cities, on a tie) and the tabular rating
// report, together with the sinks that persist the report.
package report

import (
	"iter"

	"forecasting/internal/types"
)

// FindBest makes a single pass over totals and returns every city sharing
// the highest rating. It returns nil when totals is empty.
func FindBest(totals iter.Seq[types.TotalSummary]) []types.TotalSummary {
	maxRating := types.MinRating
	var best []types.TotalSummary

	for total := range totals {
		switch c := total.Rating().Compare(maxRating); {
		case c > 0:
			maxRating = total.Rating()
			best = []types.TotalSummary{total}
		case c == 0:
			best = append(best, total)
		}
	}
	return best
}
