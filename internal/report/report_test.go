package report

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/habitaworks/habita/internal/domain"
)

type fakeSource struct {
	items   []domain.WorkItem
	workers []domain.Worker
	listErr error

	gotStart time.Time
	gotEnd   time.Time
}

func (f *fakeSource) ListCompletedBetween(_ context.Context, start, end time.Time) ([]domain.WorkItem, error) {
	f.gotStart = start
	f.gotEnd = end
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]domain.WorkItem, 0, len(f.items))
	for _, item := range f.items {
		if item.ActualEnd == nil || item.ActualEnd.Before(start) || item.ActualEnd.After(end) {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

func (f *fakeSource) ListWorkers(context.Context) ([]domain.Worker, error) {
	return f.workers, nil
}

func completed(id string, end time.Time, assignees []string, costs ...domain.CostEntry) domain.WorkItem {
	start := end.Add(-8 * time.Hour)
	return domain.WorkItem{
		ID:                id,
		Title:             id,
		Status:            domain.StatusCompleted,
		ScheduledStart:    start,
		ScheduledEnd:      end,
		ActualStart:       &start,
		ActualEnd:         &end,
		AssignedWorkerIDs: assignees,
		CostEntries:       costs,
	}
}

func testClock() time.Time {
	return time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)
}

func TestMonthlyValidation(t *testing.T) {
	b := NewBuilder(&fakeSource{}, testClock)
	if _, err := b.Monthly(context.Background(), 0, 2025); err != ErrInvalidMonth {
		t.Fatalf("expected ErrInvalidMonth, got %v", err)
	}
	if _, err := b.Monthly(context.Background(), 13, 2025); err != ErrInvalidMonth {
		t.Fatalf("expected ErrInvalidMonth, got %v", err)
	}
	if _, err := b.Monthly(context.Background(), 2, 25); err != ErrInvalidYear {
		t.Fatalf("expected ErrInvalidYear, got %v", err)
	}
}

func TestMonthlyWindow(t *testing.T) {
	src := &fakeSource{}
	b := NewBuilder(src, testClock)
	if _, err := b.Monthly(context.Background(), 2, 2025); err != nil {
		t.Fatalf("Monthly() error = %v", err)
	}
	wantStart := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	if !src.gotStart.Equal(wantStart) {
		t.Fatalf("window start = %v, want %v", src.gotStart, wantStart)
	}
	// Last instant of February, not the first of March.
	if !src.gotEnd.Before(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("window end %v reaches into March", src.gotEnd)
	}
	if src.gotEnd.Day() != 28 {
		t.Fatalf("window end day = %d, want 28", src.gotEnd.Day())
	}
}

func TestMonthlyFiltersToPeriod(t *testing.T) {
	feb := time.Date(2025, 2, 10, 17, 0, 0, 0, time.UTC)
	src := &fakeSource{
		items: []domain.WorkItem{
			completed("a", feb, []string{"w1"}),
			completed("b", feb.AddDate(0, 0, 5), []string{"w1"}),
			completed("c", feb.AddDate(0, 0, 10), []string{"w2"}),
			completed("jan", time.Date(2025, 1, 20, 17, 0, 0, 0, time.UTC), []string{"w1"}),
		},
	}
	b := NewBuilder(src, testClock)
	rep, err := b.Monthly(context.Background(), 2, 2025)
	if err != nil {
		t.Fatalf("Monthly() error = %v", err)
	}
	if rep.Summary.TotalItems != 3 {
		t.Fatalf("TotalItems = %d, want 3", rep.Summary.TotalItems)
	}
	if len(rep.Items) != 3 {
		t.Fatalf("len(Items) = %d, want 3", len(rep.Items))
	}
	if !rep.GeneratedAt.Equal(testClock()) {
		t.Fatalf("GeneratedAt = %v, want clock value", rep.GeneratedAt)
	}
}

func TestProportionalCostSplit(t *testing.T) {
	end := time.Date(2025, 2, 10, 17, 0, 0, 0, time.UTC)
	src := &fakeSource{
		items: []domain.WorkItem{
			completed("a", end, []string{"w1", "w2"},
				domain.CostEntry{ID: "c1", Amount: 10000, Category: domain.CostMaterials},
				domain.CostEntry{ID: "c2", Amount: 5000, Category: domain.CostLabor},
			),
		},
		workers: []domain.Worker{
			{ID: "w1", Name: "Alice"},
			{ID: "w2", Name: "Bob"},
		},
	}
	b := NewBuilder(src, testClock)
	rep, err := b.Monthly(context.Background(), 2, 2025)
	if err != nil {
		t.Fatalf("Monthly() error = %v", err)
	}
	if len(rep.Workers) != 2 {
		t.Fatalf("len(Workers) = %d, want 2", len(rep.Workers))
	}
	for _, row := range rep.Workers {
		if row.TotalCost != 7500 {
			t.Fatalf("worker %s TotalCost = %v, want 7500", row.WorkerID, row.TotalCost)
		}
	}
	if rep.Workers[0].Name != "Alice" && rep.Workers[1].Name != "Alice" {
		t.Fatal("roster names not resolved")
	}
}

func TestCostSplitConservation(t *testing.T) {
	end := time.Date(2025, 2, 10, 17, 0, 0, 0, time.UTC)
	for _, n := range []int{1, 2, 5} {
		assignees := make([]string, n)
		for i := range assignees {
			assignees[i] = string(rune('a' + i))
		}
		src := &fakeSource{
			items: []domain.WorkItem{
				completed("item", end, assignees, domain.CostEntry{ID: "c", Amount: 10000, Category: domain.CostOther}),
			},
		}
		rep, err := NewBuilder(src, testClock).Monthly(context.Background(), 2, 2025)
		if err != nil {
			t.Fatalf("Monthly() error = %v", err)
		}
		sum := 0.0
		for _, row := range rep.Workers {
			sum += row.TotalCost
		}
		if math.Abs(sum-10000) > 1e-6 {
			t.Fatalf("n=%d: cost sum = %v, want 10000", n, sum)
		}
	}
}

func TestWorkerClassificationAndSubtasks(t *testing.T) {
	end := time.Date(2025, 2, 10, 19, 30, 0, 0, time.UTC)
	late := completed("late-item", end, []string{"w1", "w2"})
	// Actual runs 2.5h over the 8h schedule.
	lateStart := end.Add(-(8*time.Hour + 2*time.Hour + 30*time.Minute))
	late.ActualStart = &lateStart
	done := end
	late.Subtasks = []domain.Subtask{
		{ID: "s1", Title: "prep", Done: true, CompletedBy: "w3", CompletedAt: &done},
		{ID: "s2", Title: "cleanup", Done: true, CompletedBy: "w1", CompletedAt: &done},
		{ID: "s3", Title: "skipped"},
	}

	src := &fakeSource{items: []domain.WorkItem{late}}
	rep, err := NewBuilder(src, testClock).Monthly(context.Background(), 2, 2025)
	if err != nil {
		t.Fatalf("Monthly() error = %v", err)
	}

	rows := map[string]WorkerStats{}
	for _, row := range rep.Workers {
		rows[row.WorkerID] = row
	}
	// Both assignees carry the item's classification.
	if rows["w1"].Late != 1 || rows["w2"].Late != 1 {
		t.Fatalf("assignee late counts = %+v", rows)
	}
	if rows["w1"].SubtasksCompleted != 1 {
		t.Fatalf("w1 SubtasksCompleted = %d, want 1", rows["w1"].SubtasksCompleted)
	}
	// w3 finished a subtask without being assigned to the item.
	w3, ok := rows["w3"]
	if !ok {
		t.Fatal("expected a row for unassigned subtask completer w3")
	}
	if w3.Completed != 0 || w3.SubtasksCompleted != 1 {
		t.Fatalf("w3 row = %+v", w3)
	}
}

func TestCategoryBreakdown(t *testing.T) {
	end := time.Date(2025, 2, 10, 17, 0, 0, 0, time.UTC)
	plumbing1 := completed("p1", end, []string{"w1"}, domain.CostEntry{ID: "c", Amount: 200, Category: domain.CostMaterials})
	plumbing1.Category = "plumbing"
	plumbing2 := completed("p2", end.AddDate(0, 0, 1), []string{"w1", "w2"}, domain.CostEntry{ID: "c", Amount: 100, Category: domain.CostLabor})
	plumbing2.Category = "plumbing"
	other := completed("o1", end.AddDate(0, 0, 2), []string{"w2"})

	src := &fakeSource{items: []domain.WorkItem{plumbing1, plumbing2, other}}
	rep, err := NewBuilder(src, testClock).Monthly(context.Background(), 2, 2025)
	if err != nil {
		t.Fatalf("Monthly() error = %v", err)
	}
	if len(rep.Categories) != 2 {
		t.Fatalf("len(Categories) = %d, want 2", len(rep.Categories))
	}
	top := rep.Categories[0]
	if top.Category != "plumbing" || top.Count != 2 {
		t.Fatalf("top category = %+v", top)
	}
	// Category cost is the full item cost, never split by assignee count.
	if top.TotalCost != 300 {
		t.Fatalf("plumbing TotalCost = %v, want 300", top.TotalCost)
	}
	if top.Percent != 66.7 {
		t.Fatalf("plumbing Percent = %v, want 66.7", top.Percent)
	}
	if rep.Categories[1].Category != Uncategorized {
		t.Fatalf("fallback bucket = %q, want %q", rep.Categories[1].Category, Uncategorized)
	}
}

func TestGenerationErrorHasNoPartialReport(t *testing.T) {
	src := &fakeSource{listErr: errors.New("store offline")}
	rep, err := NewBuilder(src, testClock).Monthly(context.Background(), 2, 2025)
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected GenerationError, got %v", err)
	}
	if rep.Summary.TotalItems != 0 || rep.Items != nil {
		t.Fatalf("expected zero-value report alongside error, got %+v", rep)
	}
}
