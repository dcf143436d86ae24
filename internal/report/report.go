// Package report builds on-demand monthly summaries of completed work. A
// report is ephemeral: constructed synchronously from one query, never
// persisted, and returned all-or-nothing.
package report

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/habitaworks/habita/internal/domain"
	"github.com/habitaworks/habita/internal/schedule"
	"github.com/habitaworks/habita/internal/stats"
)

// Uncategorized is the bucket for items without a category.
const Uncategorized = "uncategorized"

// Validation failures rejected before any query runs.
var (
	ErrInvalidMonth = errors.New("month must be between 1 and 12")
	ErrInvalidYear  = errors.New("year must be a 4-digit value")
)

// GenerationError wraps a failed report query. No partial report accompanies
// it.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return "report generation failed: " + e.Err.Error()
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Source provides the completed work and roster the builder reads.
type Source interface {
	ListCompletedBetween(ctx context.Context, start, end time.Time) ([]domain.WorkItem, error)
	ListWorkers(ctx context.Context) ([]domain.Worker, error)
}

// Clock returns the current time.
type Clock func() time.Time

// Summary holds the report's headline numbers.
type Summary struct {
	TotalItems     int     `json:"total_items"`
	TotalCost      float64 `json:"total_cost"`
	EfficiencyRate int     `json:"efficiency_rate"`
	WorkerCount    int     `json:"worker_count"`
	CategoryCount  int     `json:"category_count"`
}

// WorkerStats is one per-worker row. TotalCost carries each item's cost
// divided by its assignee count so that summing rows never double-counts an
// item. SubtasksCompleted is matched by completer identity, independent of
// item assignment.
type WorkerStats struct {
	WorkerID          string  `json:"worker_id"`
	Name              string  `json:"name"`
	Completed         int     `json:"completed"`
	Early             int     `json:"early"`
	OnTime            int     `json:"on_time"`
	Late              int     `json:"late"`
	TotalCost         float64 `json:"total_cost"`
	SubtasksCompleted int     `json:"subtasks_completed"`
}

// CategoryStats is one per-category row. Cost is the full item cost, not
// split: an item belongs to exactly one category bucket.
type CategoryStats struct {
	Category  string  `json:"category"`
	Count     int     `json:"count"`
	TotalCost float64 `json:"total_cost"`
	Percent   float64 `json:"percent"`
}

// Monthly is a complete month report.
type Monthly struct {
	Month           int               `json:"month"`
	Year            int               `json:"year"`
	PeriodStart     time.Time         `json:"period_start"`
	PeriodEnd       time.Time         `json:"period_end"`
	Summary         Summary           `json:"summary"`
	TimePerformance stats.Stats       `json:"time_performance"`
	Workers         []WorkerStats     `json:"workers"`
	Categories      []CategoryStats   `json:"categories"`
	Items           []domain.WorkItem `json:"items"`
	GeneratedAt     time.Time         `json:"generated_at"`
}

// Builder constructs monthly reports from a source.
type Builder struct {
	source Source
	clock  Clock
}

// NewBuilder constructs a report builder.
func NewBuilder(source Source, clock Clock) *Builder {
	if clock == nil {
		clock = time.Now
	}
	return &Builder{source: source, clock: clock}
}

// MonthWindow returns the first and last instants of the calendar month in
// UTC, the fixed reference location for report periods.
func MonthWindow(month, year int) (time.Time, time.Time, error) {
	if month < 1 || month > 12 {
		return time.Time{}, time.Time{}, ErrInvalidMonth
	}
	if year < 1000 || year > 9999 {
		return time.Time{}, time.Time{}, ErrInvalidYear
	}
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0).Add(-time.Nanosecond)
	return start, end, nil
}

// Monthly builds the report for one calendar month. Input validation happens
// before any query; a failed query surfaces as GenerationError with no
// partial result.
func (b *Builder) Monthly(ctx context.Context, month, year int) (Monthly, error) {
	start, end, err := MonthWindow(month, year)
	if err != nil {
		return Monthly{}, err
	}

	items, err := b.source.ListCompletedBetween(ctx, start, end)
	if err != nil {
		return Monthly{}, &GenerationError{Err: fmt.Errorf("list completed items: %w", err)}
	}
	roster, err := b.source.ListWorkers(ctx)
	if err != nil {
		return Monthly{}, &GenerationError{Err: fmt.Errorf("list workers: %w", err)}
	}
	names := make(map[string]string, len(roster))
	for _, w := range roster {
		names[w.ID] = w.Name
	}

	perf := stats.Aggregate(items)
	workers := workerBreakdown(items, names)
	categories := categoryBreakdown(items)

	totalCost := 0.0
	for _, item := range items {
		totalCost += item.TotalCost()
	}

	return Monthly{
		Month:           month,
		Year:            year,
		PeriodStart:     start,
		PeriodEnd:       end,
		Summary: Summary{
			TotalItems:     len(items),
			TotalCost:      totalCost,
			EfficiencyRate: perf.EfficiencyRate,
			WorkerCount:    len(workers),
			CategoryCount:  len(categories),
		},
		TimePerformance: perf,
		Workers:         workers,
		Categories:      categories,
		Items:           items,
		GeneratedAt:     b.clock().UTC(),
	}, nil
}

// workerBreakdown attributes each item's cost proportionally across its
// assignees and applies the item's classification identically to every
// assignee. Subtask completions also create rows for workers who finished
// subtasks on items they were not assigned to.
func workerBreakdown(items []domain.WorkItem, names map[string]string) []WorkerStats {
	rows := map[string]*WorkerStats{}
	row := func(workerID string) *WorkerStats {
		if r, ok := rows[workerID]; ok {
			return r
		}
		name, ok := names[workerID]
		if !ok {
			name = workerID
		}
		r := &WorkerStats{WorkerID: workerID, Name: name}
		rows[workerID] = r
		return r
	}

	for _, item := range items {
		class := schedule.Classify(item)
		share := 0.0
		if n := len(item.AssignedWorkerIDs); n > 0 {
			share = item.TotalCost() / float64(n)
		}
		for _, workerID := range item.AssignedWorkerIDs {
			r := row(workerID)
			r.Completed++
			r.TotalCost += share
			switch class {
			case schedule.Early:
				r.Early++
			case schedule.OnTime:
				r.OnTime++
			case schedule.Late:
				r.Late++
			}
		}
		for _, sub := range item.Subtasks {
			if sub.Done && sub.CompletedBy != "" {
				row(sub.CompletedBy).SubtasksCompleted++
			}
		}
	}

	out := make([]WorkerStats, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Completed != out[j].Completed {
			return out[i].Completed > out[j].Completed
		}
		return out[i].WorkerID < out[j].WorkerID
	})
	return out
}

// categoryBreakdown groups items by category with the full item cost per
// bucket and a display-rounded percentage of total item count.
func categoryBreakdown(items []domain.WorkItem) []CategoryStats {
	rows := map[string]*CategoryStats{}
	for _, item := range items {
		category := strings.TrimSpace(item.Category)
		if category == "" {
			category = Uncategorized
		}
		r, ok := rows[category]
		if !ok {
			r = &CategoryStats{Category: category}
			rows[category] = r
		}
		r.Count++
		r.TotalCost += item.TotalCost()
	}

	out := make([]CategoryStats, 0, len(rows))
	for _, r := range rows {
		if len(items) > 0 {
			r.Percent = math.Round(100*float64(r.Count)/float64(len(items))*10) / 10
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Category < out[j].Category
	})
	return out
}
