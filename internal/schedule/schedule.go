// Package schedule provides pure helpers that compare a work item's actual
// time window against its scheduled one.
package schedule

import (
	"time"

	"github.com/habitaworks/habita/internal/domain"
)

// Classification is the tri-state schedule comparison, plus pending for items
// that have not finished yet.
type Classification string

// Classification values.
const (
	Early   Classification = "early"
	OnTime  Classification = "on_time"
	Late    Classification = "late"
	Pending Classification = "pending"
)

// Tolerance is the absolute window inside which an item counts as on time.
// A fixed absolute tolerance keeps classification meaningful for both short
// and multi-day scheduled windows.
const Tolerance = time.Hour

// Duration returns end minus start. The result may be negative; callers rely
// on signed differences to detect early completion, so nothing is clamped or
// rejected here.
func Duration(start, end time.Time) time.Duration {
	return end.Sub(start)
}

// Classify compares the item's actual duration against its scheduled one.
// It returns Pending unless the item is completed with both actual timestamps
// recorded.
func Classify(item domain.WorkItem) Classification {
	if item.Status != domain.StatusCompleted {
		return Pending
	}
	if item.ActualStart == nil || item.ActualEnd == nil {
		return Pending
	}
	diff := Difference(item)
	switch {
	case diff > Tolerance:
		return Late
	case diff < -Tolerance:
		return Early
	default:
		return OnTime
	}
}

// Difference returns actual duration minus scheduled duration. Only valid for
// items with both actual timestamps; callers gate on Classify != Pending.
func Difference(item domain.WorkItem) time.Duration {
	actual := Duration(*item.ActualStart, *item.ActualEnd)
	scheduled := Duration(item.ScheduledStart, item.ScheduledEnd)
	return actual - scheduled
}
