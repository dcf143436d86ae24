// Package stats aggregates schedule classifications over work-item
// collections.
package stats

import (
	"math"
	"time"

	"github.com/habitaworks/habita/internal/domain"
	"github.com/habitaworks/habita/internal/schedule"
)

// Stats summarizes classified completed work. AvgDelay is computed over late
// items only and is zero when none are late. EfficiencyRate is the rounded
// percentage of completed items finished early or on time, zero for an empty
// collection.
type Stats struct {
	Total          int           `json:"total"`
	Early          int           `json:"early"`
	OnTime         int           `json:"on_time"`
	Late           int           `json:"late"`
	AvgDuration    time.Duration `json:"avg_duration"`
	AvgDelay       time.Duration `json:"avg_delay"`
	EfficiencyRate int           `json:"efficiency_rate"`
}

// Aggregate classifies every completed item with both actual timestamps and
// accumulates the summary. Items still pending are ignored. The result is
// independent of input order and stable across repeated calls.
func Aggregate(items []domain.WorkItem) Stats {
	var s Stats
	var durationSum time.Duration
	var delaySum time.Duration

	for _, item := range items {
		class := schedule.Classify(item)
		if class == schedule.Pending {
			continue
		}
		s.Total++
		durationSum += schedule.Duration(*item.ActualStart, *item.ActualEnd)
		switch class {
		case schedule.Early:
			s.Early++
		case schedule.OnTime:
			s.OnTime++
		case schedule.Late:
			s.Late++
			delaySum += schedule.Difference(item)
		}
	}

	if s.Total > 0 {
		s.AvgDuration = durationSum / time.Duration(s.Total)
		s.EfficiencyRate = int(math.Round(100 * float64(s.Early+s.OnTime) / float64(s.Total)))
	}
	if s.Late > 0 {
		s.AvgDelay = delaySum / time.Duration(s.Late)
	}
	return s
}
