package pipeline

import (
	"fmt"
	"iter"
	"log/slog"

	"forecasting/internal/types"
)

// AggregateStats counts what the aggregator did with the drained outcomes.
type AggregateStats struct {
	Succeeded int // cities folded into a TotalSummary
	Failed    int // failed outcomes (fetch or analysis)
	Malformed int // summaries rejected by the structural check
	Skipped   int // successful outcomes without usable data
}

// Aggregator folds drained city summaries into per-city totals. It is the
// single consumer of the result queue and is not safe for concurrent use.
type Aggregator struct {
	logger *slog.Logger
	stats  AggregateStats
}

// NewAggregator creates an Aggregator that reports skipped items to logger.
func NewAggregator(logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{logger: logger}
}

// Aggregate returns a lazy sequence with one TotalSummary per successfully
// processed city. Failed outcomes are logged as warnings and skipped;
// malformed summaries are logged as errors and produce no record at all.
func (a *Aggregator) Aggregate(outcomes iter.Seq[types.Outcome[types.CitySummary]]) iter.Seq[types.TotalSummary] {
	return func(yield func(types.TotalSummary) bool) {
		for o := range outcomes {
			if !o.OK() {
				a.stats.Failed++
				a.logger.Warn("city summary failed", "message", o.Message())
				continue
			}

			summary := o.Data()
			if summary.City == "" && summary.Days == nil {
				a.stats.Skipped++
				continue
			}

			total, err := AggregateCity(summary)
			if err != nil {
				a.stats.Malformed++
				a.logger.Error("incorrect city summary format",
					"city", summary.City,
					"error", err,
				)
				continue
			}

			a.stats.Succeeded++
			if !yield(total) {
				return
			}
		}
	}
}

// Stats returns the counts accumulated so far.
func (a *Aggregator) Stats() AggregateStats {
	return a.stats
}

// AggregateCity folds the retained days of one summary into a fresh total.
// It returns a summary_malformed AppError when the days collection is
// missing.
func AggregateCity(summary types.CitySummary) (types.TotalSummary, error) {
	if summary.Days == nil {
		return types.TotalSummary{}, types.NewAppError(
			types.ErrCodeSummaryMalformed,
			fmt.Sprintf("summary for %q has no days collection", summary.City),
			nil,
		)
	}

	total := types.TotalSummary{CitySummary: summary}
	for _, day := range summary.Days {
		if !retainDay(day) {
			continue
		}
		total.TempSum += *day.TempAvg * float64(day.HoursCount)
		total.ShinyHours += *day.RelevantCondHours
		total.AnalyzingHours += day.HoursCount
		total.AnalyzingDays++
	}
	return total, nil
}

// retainDay keeps only days that have measured hours, an average
// temperature and a relevant-condition count.
func retainDay(day types.DaySummary) bool {
	return day.HoursCount != 0 &&
		day.TempAvg != nil &&
		day.RelevantCondHours != nil
}
