package app

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/habitaworks/habita/internal/domain"
)

type fakeRepo struct {
	items      map[string]domain.WorkItem
	workers    map[string]domain.Worker
	attendance map[string]domain.AttendanceRecord // workerID|day
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		items:      map[string]domain.WorkItem{},
		workers:    map[string]domain.Worker{},
		attendance: map[string]domain.AttendanceRecord{},
	}
}

func attendanceKey(workerID string, day time.Time) string {
	return workerID + "|" + day.Format("2006-01-02")
}

func (f *fakeRepo) CreateWorkItem(_ context.Context, item domain.WorkItem) error {
	f.items[item.ID] = item
	return nil
}

func (f *fakeRepo) UpdateWorkItem(_ context.Context, item domain.WorkItem) error {
	f.items[item.ID] = item
	return nil
}

func (f *fakeRepo) GetWorkItem(_ context.Context, id string) (domain.WorkItem, error) {
	item, ok := f.items[id]
	if !ok {
		return domain.WorkItem{}, ErrNotFound
	}
	return item, nil
}

func (f *fakeRepo) ListWorkItems(_ context.Context, filter WorkItemFilter) ([]domain.WorkItem, error) {
	out := make([]domain.WorkItem, 0, len(f.items))
	for _, item := range f.items {
		if filter.Status != "" && item.Status != filter.Status {
			continue
		}
		if filter.AssignedTo != "" && !item.AssignedTo(filter.AssignedTo) {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

func (f *fakeRepo) DeleteWorkItem(_ context.Context, id string) error {
	delete(f.items, id)
	return nil
}

func (f *fakeRepo) ListCompletedBetween(_ context.Context, start, end time.Time) ([]domain.WorkItem, error) {
	var out []domain.WorkItem
	for _, item := range f.items {
		if item.Status != domain.StatusCompleted || item.ActualEnd == nil {
			continue
		}
		if item.ActualEnd.Before(start) || item.ActualEnd.After(end) {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

func (f *fakeRepo) CreateWorker(_ context.Context, w domain.Worker) error {
	f.workers[w.ID] = w
	return nil
}

func (f *fakeRepo) GetWorker(_ context.Context, id string) (domain.Worker, error) {
	w, ok := f.workers[id]
	if !ok {
		return domain.Worker{}, ErrNotFound
	}
	return w, nil
}

func (f *fakeRepo) ListWorkers(_ context.Context) ([]domain.Worker, error) {
	out := make([]domain.Worker, 0, len(f.workers))
	for _, w := range f.workers {
		out = append(out, w)
	}
	return out, nil
}

func (f *fakeRepo) GetAttendance(_ context.Context, workerID string, day time.Time) (*domain.AttendanceRecord, error) {
	rec, ok := f.attendance[attendanceKey(workerID, day)]
	if !ok {
		return nil, nil
	}
	out := rec
	return &out, nil
}

func (f *fakeRepo) GetOpenAttendance(_ context.Context, workerID string) (*domain.AttendanceRecord, error) {
	for _, rec := range f.attendance {
		if rec.WorkerID == workerID && rec.Open() {
			out := rec
			return &out, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) SaveAttendance(_ context.Context, rec domain.AttendanceRecord) error {
	f.attendance[attendanceKey(rec.WorkerID, rec.Day)] = rec
	return nil
}

func newTestService(repo *fakeRepo) (*Service, *time.Time) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	current := &now
	counter := 0
	idGen := func() string {
		counter++
		return fmt.Sprintf("id-%d", counter)
	}
	svc := NewService(repo, idGen, func() time.Time { return *current })
	return svc, current
}

func seedWorker(t *testing.T, svc *Service, name string) domain.Worker {
	t.Helper()
	w, err := svc.CreateWorker(context.Background(), name, domain.RoleWorker)
	if err != nil {
		t.Fatalf("CreateWorker() error = %v", err)
	}
	return w
}

func TestCreateWorkItemValidatesAssignees(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(repo)
	ctx := context.Background()
	w := seedWorker(t, svc, "Alice")

	in := CreateWorkItemInput{
		Title:             "Fix gate",
		ScheduledStart:    time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC),
		ScheduledEnd:      time.Date(2026, 3, 3, 17, 0, 0, 0, time.UTC),
		AssignedWorkerIDs: []string{w.ID},
	}
	item, err := svc.CreateWorkItem(ctx, in)
	if err != nil {
		t.Fatalf("CreateWorkItem() error = %v", err)
	}
	if item.Status != domain.StatusPending {
		t.Fatalf("status = %q, want pending", item.Status)
	}

	in.AssignedWorkerIDs = []string{"ghost"}
	if _, err := svc.CreateWorkItem(ctx, in); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for unknown assignee, got %v", err)
	}

	in.AssignedWorkerIDs = nil
	if _, err := svc.CreateWorkItem(ctx, in); err != domain.ErrNoAssignees {
		t.Fatalf("expected ErrNoAssignees, got %v", err)
	}
	// Validation failures must not touch the store.
	if len(repo.items) != 1 {
		t.Fatalf("repo items = %d, want 1", len(repo.items))
	}
}

func TestChangeStatusStampsActuals(t *testing.T) {
	repo := newFakeRepo()
	svc, current := newTestService(repo)
	ctx := context.Background()
	w := seedWorker(t, svc, "Alice")

	item, err := svc.CreateWorkItem(ctx, CreateWorkItemInput{
		Title:             "Paint hallway",
		ScheduledStart:    *current,
		ScheduledEnd:      current.Add(8 * time.Hour),
		AssignedWorkerIDs: []string{w.ID},
	})
	if err != nil {
		t.Fatalf("CreateWorkItem() error = %v", err)
	}

	item, err = svc.ChangeStatus(ctx, item.ID, domain.StatusInProgress)
	if err != nil {
		t.Fatalf("ChangeStatus() error = %v", err)
	}
	if item.ActualStart == nil {
		t.Fatal("expected ActualStart stamped")
	}

	*current = current.Add(9 * time.Hour)
	item, err = svc.ChangeStatus(ctx, item.ID, domain.StatusCompleted)
	if err != nil {
		t.Fatalf("ChangeStatus() error = %v", err)
	}
	if item.ActualEnd == nil || !item.ActualEnd.After(*item.ActualStart) {
		t.Fatalf("unexpected actual window %v..%v", item.ActualStart, item.ActualEnd)
	}

	if _, err := svc.ChangeStatus(ctx, item.ID, "paused"); err != domain.ErrInvalidStatus {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestCheckInConflictAndRemediation(t *testing.T) {
	repo := newFakeRepo()
	svc, current := newTestService(repo)
	ctx := context.Background()
	w := seedWorker(t, svc, "Alice")

	rec, err := svc.CheckIn(ctx, w.ID)
	if err != nil {
		t.Fatalf("CheckIn() error = %v", err)
	}
	if !rec.Open() {
		t.Fatal("check-in must open a session")
	}

	// Second check-in while the session is open: distinguishable conflict.
	_, err = svc.CheckIn(ctx, w.ID)
	if !domain.IsOpenSessionConflict(err) {
		t.Fatalf("expected open-session conflict, got %v", err)
	}

	// A session forgotten yesterday blocks today's check-in too.
	*current = current.Add(24 * time.Hour)
	_, err = svc.CheckIn(ctx, w.ID)
	if !domain.IsOpenSessionConflict(err) {
		t.Fatalf("expected open-session conflict across days, got %v", err)
	}

	if err := svc.CloseStaleAttendance(ctx, w.ID); err != nil {
		t.Fatalf("CloseStaleAttendance() error = %v", err)
	}
	if _, err := svc.CheckIn(ctx, w.ID); err != nil {
		t.Fatalf("CheckIn() after cleanup error = %v", err)
	}
}

func TestCheckOutAndReentry(t *testing.T) {
	repo := newFakeRepo()
	svc, current := newTestService(repo)
	ctx := context.Background()
	w := seedWorker(t, svc, "Alice")

	if _, err := svc.CheckOut(ctx, w.ID); err != domain.ErrNoOpenSession {
		t.Fatalf("expected ErrNoOpenSession, got %v", err)
	}

	if _, err := svc.CheckIn(ctx, w.ID); err != nil {
		t.Fatalf("CheckIn() error = %v", err)
	}
	*current = current.Add(4 * time.Hour)
	rec, err := svc.CheckOut(ctx, w.ID)
	if err != nil {
		t.Fatalf("CheckOut() error = %v", err)
	}
	if rec.Open() {
		t.Fatal("checked-out session must be closed")
	}

	// Re-entry after a break replaces the day's pair.
	*current = current.Add(time.Hour)
	again, err := svc.CheckIn(ctx, w.ID)
	if err != nil {
		t.Fatalf("re-entry CheckIn() error = %v", err)
	}
	if !again.Open() || again.CheckOut != nil {
		t.Fatalf("re-entry record = %+v", again)
	}

	today, err := svc.TodayAttendance(ctx, w.ID)
	if err != nil {
		t.Fatalf("TodayAttendance() error = %v", err)
	}
	if today == nil || !today.Open() {
		t.Fatalf("TodayAttendance() = %+v, want the reopened pair", today)
	}
}

func TestCloseStaleAttendanceNoopWithoutSession(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(repo)
	w := seedWorker(t, svc, "Alice")
	if err := svc.CloseStaleAttendance(context.Background(), w.ID); err != nil {
		t.Fatalf("CloseStaleAttendance() error = %v", err)
	}
}

func TestSubtasksAndCostsThroughService(t *testing.T) {
	repo := newFakeRepo()
	svc, current := newTestService(repo)
	ctx := context.Background()
	w := seedWorker(t, svc, "Alice")

	item, err := svc.CreateWorkItem(ctx, CreateWorkItemInput{
		Title:             "Garden maintenance",
		Category:          "Gardening",
		ScheduledStart:    *current,
		ScheduledEnd:      current.Add(4 * time.Hour),
		AssignedWorkerIDs: []string{w.ID},
	})
	if err != nil {
		t.Fatalf("CreateWorkItem() error = %v", err)
	}
	if item.Category != "gardening" {
		t.Fatalf("category = %q, want normalized", item.Category)
	}

	item, err = svc.AddSubtask(ctx, item.ID, "Trim hedges")
	if err != nil {
		t.Fatalf("AddSubtask() error = %v", err)
	}
	item, err = svc.CompleteSubtask(ctx, item.ID, item.Subtasks[0].ID, w.ID)
	if err != nil {
		t.Fatalf("CompleteSubtask() error = %v", err)
	}
	if !item.Subtasks[0].Done {
		t.Fatal("subtask not marked done")
	}
	if _, err := svc.CompleteSubtask(ctx, item.ID, item.Subtasks[0].ID, "ghost"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for unknown worker, got %v", err)
	}

	item, err = svc.AddCostEntry(ctx, item.ID, "fertilizer", 120.50, domain.CostMaterials)
	if err != nil {
		t.Fatalf("AddCostEntry() error = %v", err)
	}
	if item.TotalCost() != 120.50 {
		t.Fatalf("TotalCost() = %v", item.TotalCost())
	}
}

func TestDashboardCounters(t *testing.T) {
	repo := newFakeRepo()
	svc, current := newTestService(repo)
	ctx := context.Background()
	w := seedWorker(t, svc, "Alice")

	for i := 0; i < 3; i++ {
		item, err := svc.CreateWorkItem(ctx, CreateWorkItemInput{
			Title:             fmt.Sprintf("item %d", i),
			ScheduledStart:    *current,
			ScheduledEnd:      current.Add(time.Hour),
			AssignedWorkerIDs: []string{w.ID},
		})
		if err != nil {
			t.Fatalf("CreateWorkItem() error = %v", err)
		}
		if i == 0 {
			if _, err := svc.ChangeStatus(ctx, item.ID, domain.StatusCompleted); err != nil {
				t.Fatalf("ChangeStatus() error = %v", err)
			}
		}
	}

	counters, err := svc.Dashboard(ctx)
	if err != nil {
		t.Fatalf("Dashboard() error = %v", err)
	}
	if counters.Pending != 2 || counters.Completed != 1 || counters.Workers != 1 {
		t.Fatalf("counters = %+v", counters)
	}
}

func TestMonthlyReportThroughService(t *testing.T) {
	repo := newFakeRepo()
	svc, current := newTestService(repo)
	ctx := context.Background()
	w := seedWorker(t, svc, "Alice")

	item, err := svc.CreateWorkItem(ctx, CreateWorkItemInput{
		Title:             "February job",
		ScheduledStart:    *current,
		ScheduledEnd:      current.Add(8 * time.Hour),
		AssignedWorkerIDs: []string{w.ID},
	})
	if err != nil {
		t.Fatalf("CreateWorkItem() error = %v", err)
	}
	if _, err := svc.ChangeStatus(ctx, item.ID, domain.StatusCompleted); err != nil {
		t.Fatalf("ChangeStatus() error = %v", err)
	}

	rep, err := svc.MonthlyReport(ctx, int(current.Month()), current.Year())
	if err != nil {
		t.Fatalf("MonthlyReport() error = %v", err)
	}
	if rep.Summary.TotalItems != 1 {
		t.Fatalf("TotalItems = %d, want 1", rep.Summary.TotalItems)
	}
}
