package tui

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/habitaworks/habita/internal/app"
	"github.com/habitaworks/habita/internal/cache"
	"github.com/habitaworks/habita/internal/domain"
	"github.com/habitaworks/habita/internal/report"
)

// fakeService backs the dashboard with in-memory state.
type fakeService struct {
	items      []domain.WorkItem
	workers    []domain.Worker
	attendance *domain.AttendanceRecord

	checkInErr    error
	statusErr     error
	listCalls     atomic.Int64
	todayCalls    atomic.Int64
	staleClosed   atomic.Int64
	lastStatusID  string
	lastNewStatus domain.Status
}

func (f *fakeService) CreateWorkItem(_ context.Context, _ app.CreateWorkItemInput) (domain.WorkItem, error) {
	return domain.WorkItem{}, nil
}

func (f *fakeService) UpdateWorkItem(_ context.Context, _ app.UpdateWorkItemInput) (domain.WorkItem, error) {
	return domain.WorkItem{}, nil
}

func (f *fakeService) GetWorkItem(_ context.Context, id string) (domain.WorkItem, error) {
	for _, item := range f.items {
		if item.ID == id {
			return item, nil
		}
	}
	return domain.WorkItem{}, app.ErrNotFound
}

func (f *fakeService) ListWorkItems(_ context.Context, filter app.WorkItemFilter) ([]domain.WorkItem, error) {
	f.listCalls.Add(1)
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

func (f *fakeService) DeleteWorkItem(_ context.Context, _ string) error { return nil }

func (f *fakeService) ChangeStatus(_ context.Context, id string, status domain.Status) (domain.WorkItem, error) {
	if f.statusErr != nil {
		return domain.WorkItem{}, f.statusErr
	}
	f.lastStatusID = id
	f.lastNewStatus = status
	for i := range f.items {
		if f.items[i].ID != id {
			continue
		}
		now := time.Now()
		var err error
		switch status {
		case domain.StatusInProgress:
			err = f.items[i].Start(now)
		case domain.StatusCompleted:
			err = f.items[i].Complete(now)
		case domain.StatusCancelled:
			err = f.items[i].Cancel(now)
		}
		return f.items[i], err
	}
	return domain.WorkItem{}, app.ErrNotFound
}

func (f *fakeService) AddSubtask(_ context.Context, _, _ string) (domain.WorkItem, error) {
	return domain.WorkItem{}, nil
}

func (f *fakeService) CompleteSubtask(_ context.Context, _, _, _ string) (domain.WorkItem, error) {
	return domain.WorkItem{}, nil
}

func (f *fakeService) AddCostEntry(_ context.Context, _, _ string, _ float64, _ domain.CostCategory) (domain.WorkItem, error) {
	return domain.WorkItem{}, nil
}

func (f *fakeService) CreateWorker(_ context.Context, _ string, _ domain.Role) (domain.Worker, error) {
	return domain.Worker{}, nil
}

func (f *fakeService) ListWorkers(_ context.Context) ([]domain.Worker, error) {
	return f.workers, nil
}

func (f *fakeService) CheckIn(_ context.Context, workerID string) (domain.AttendanceRecord, error) {
	if f.checkInErr != nil {
		return domain.AttendanceRecord{}, f.checkInErr
	}
	rec, err := domain.NewAttendanceCheckIn(workerID, time.Now())
	if err != nil {
		return domain.AttendanceRecord{}, err
	}
	f.attendance = &rec
	return rec, nil
}

func (f *fakeService) CheckOut(_ context.Context, _ string) (domain.AttendanceRecord, error) {
	if f.attendance == nil {
		return domain.AttendanceRecord{}, domain.ErrNoOpenSession
	}
	if err := f.attendance.Close(time.Now()); err != nil {
		return domain.AttendanceRecord{}, err
	}
	return *f.attendance, nil
}

func (f *fakeService) CloseStaleAttendance(_ context.Context, _ string) error {
	f.staleClosed.Add(1)
	f.attendance = nil
	return nil
}

func (f *fakeService) TodayAttendance(_ context.Context, _ string) (*domain.AttendanceRecord, error) {
	f.todayCalls.Add(1)
	return f.attendance, nil
}

func (f *fakeService) Dashboard(_ context.Context) (app.DashboardCounters, error) {
	counters := app.DashboardCounters{Workers: len(f.workers)}
	for _, item := range f.items {
		switch item.Status {
		case domain.StatusPending:
			counters.Pending++
		case domain.StatusInProgress:
			counters.InProgress++
		case domain.StatusCompleted:
			counters.Completed++
		case domain.StatusCancelled:
			counters.Cancelled++
		}
	}
	return counters, nil
}

func (f *fakeService) MonthlyReport(_ context.Context, _, _ int) (report.Monthly, error) {
	return report.Monthly{}, nil
}

func testItem(t *testing.T, id, title string) domain.WorkItem {
	t.Helper()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	item, err := domain.NewWorkItem(domain.WorkItemInput{
		ID:                id,
		Title:             title,
		ScheduledStart:    now,
		ScheduledEnd:      now.Add(2 * time.Hour),
		AssignedWorkerIDs: []string{"w-1"},
	}, now)
	if err != nil {
		t.Fatalf("NewWorkItem() error = %v", err)
	}
	return item
}

func newTestModel(t *testing.T, svc *fakeService) Model {
	t.Helper()
	store := cache.NewStore()
	t.Cleanup(store.Close)
	m := NewModel(svc, store, WithWorkerID("w-1"))
	m = applyMsg(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})
	m = applyCmd(t, m, m.Init())
	return m
}

func applyMsg(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	updated, cmd := m.Update(msg)
	out, ok := updated.(Model)
	if !ok {
		t.Fatalf("expected Model, got %T", updated)
	}
	return applyCmd(t, out, cmd)
}

func applyCmd(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	out := m
	currentCmd := cmd
	for i := 0; i < 6 && currentCmd != nil; i++ {
		msg := currentCmd()
		updated, nextCmd := out.Update(msg)
		casted, ok := updated.(Model)
		if !ok {
			t.Fatalf("expected Model, got %T", updated)
		}
		out = casted
		currentCmd = nextCmd
	}
	return out
}

func keyRune(r rune) tea.KeyPressMsg {
	return tea.KeyPressMsg{Code: r, Text: string(r)}
}

func TestInitialLoadPopulatesBoard(t *testing.T) {
	svc := &fakeService{
		items:   []domain.WorkItem{testItem(t, "item-1", "Fix gate"), testItem(t, "item-2", "Prune hedges")},
		workers: []domain.Worker{{ID: "w-1", Name: "Alma"}},
	}
	m := newTestModel(t, svc)

	if len(m.items) != 2 {
		t.Fatalf("items = %d, want 2", len(m.items))
	}
	if m.counters.Pending != 2 || m.counters.Workers != 1 {
		t.Fatalf("counters = %+v", m.counters)
	}
	if m.status != "ready" {
		t.Fatalf("status = %q", m.status)
	}
}

func TestNavigationClamps(t *testing.T) {
	svc := &fakeService{items: []domain.WorkItem{testItem(t, "item-1", "A"), testItem(t, "item-2", "B")}}
	m := newTestModel(t, svc)

	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyDown})
	if m.selected != 1 {
		t.Fatalf("selected = %d, want 1", m.selected)
	}
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyDown})
	if m.selected != 1 {
		t.Fatalf("selected = %d, want clamp at 1", m.selected)
	}
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyUp})
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyUp})
	if m.selected != 0 {
		t.Fatalf("selected = %d, want clamp at 0", m.selected)
	}
}

func TestFilterCycleResetsSelection(t *testing.T) {
	svc := &fakeService{items: []domain.WorkItem{testItem(t, "item-1", "A"), testItem(t, "item-2", "B")}}
	m := newTestModel(t, svc)

	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyDown})
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyTab})
	if m.filterIdx != 1 || m.selected != 0 {
		t.Fatalf("filterIdx = %d, selected = %d", m.filterIdx, m.selected)
	}
}

func TestCompleteItemCommitsThroughCache(t *testing.T) {
	svc := &fakeService{items: []domain.WorkItem{testItem(t, "item-1", "Fix gate")}}
	m := newTestModel(t, svc)

	m = applyMsg(t, m, keyRune('c'))
	m.store.WaitInflight()

	if svc.lastStatusID != "item-1" || svc.lastNewStatus != domain.StatusCompleted {
		t.Fatalf("service saw %q -> %q", svc.lastStatusID, svc.lastNewStatus)
	}
	m = applyCmd(t, m, m.loadData)
	if len(m.items) != 1 || m.items[0].Status != domain.StatusCompleted {
		t.Fatalf("board item = %+v", m.items)
	}
}

func TestCheckInCollapsesAttendancePanel(t *testing.T) {
	svc := &fakeService{}
	m := newTestModel(t, svc)
	if !m.attendanceExpanded {
		t.Fatal("panel should start expanded")
	}

	m = applyMsg(t, m, keyRune('i'))
	if m.attendanceExpanded {
		t.Fatal("panel should collapse on optimistic check-in")
	}
	m.store.WaitInflight()
	m = applyCmd(t, m, m.loadData)
	if m.attendance == nil || !m.attendance.Open() {
		t.Fatalf("attendance = %+v", m.attendance)
	}
}

func TestCheckInConflictPointsAtRemediation(t *testing.T) {
	svc := &fakeService{
		checkInErr: domain.NewConflictError(domain.ConflictOpenSession, "an attendance session is already open"),
	}
	m := newTestModel(t, svc)

	m = applyMsg(t, m, keyRune('i'))
	if !strings.Contains(m.status, "press S") {
		t.Fatalf("status = %q, want close-stale hint", m.status)
	}
}

func TestCloseStaleLeavesCacheEmptyWithoutRefetch(t *testing.T) {
	rec, err := domain.NewAttendanceCheckIn("w-1", time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("NewAttendanceCheckIn() error = %v", err)
	}
	svc := &fakeService{attendance: &rec}
	m := newTestModel(t, svc)
	fetchesBefore := svc.todayCalls.Load()

	updated, cmd := m.handleKey(keyRune('S'))
	m = updated.(Model)
	msg := cmd()
	action, ok := msg.(actionMsg)
	if !ok || action.err != nil {
		t.Fatalf("close-stale msg = %#v", msg)
	}
	if svc.staleClosed.Load() != 1 {
		t.Fatalf("staleClosed = %d", svc.staleClosed.Load())
	}

	raw, ok := m.store.Get(cache.EntryTodayAttendance)
	if !ok {
		t.Fatal("entry should hold an authoritative value")
	}
	if got, _ := raw.(*domain.AttendanceRecord); got != nil {
		t.Fatalf("cached attendance = %+v, want nil", got)
	}
	if svc.todayCalls.Load() != fetchesBefore {
		t.Fatalf("close-stale must not refetch; fetches %d -> %d", fetchesBefore, svc.todayCalls.Load())
	}
}

func TestTransportFailureRevertsOptimisticWrite(t *testing.T) {
	svc := &fakeService{items: []domain.WorkItem{testItem(t, "item-1", "Fix gate")}}
	m := newTestModel(t, svc)
	svc.statusErr = &domain.TransportError{Err: context.DeadlineExceeded}

	m = applyMsg(t, m, keyRune('c'))
	if !strings.Contains(m.status, "offline") {
		t.Fatalf("status = %q", m.status)
	}
	if len(m.items) != 1 || m.items[0].Status != domain.StatusPending {
		t.Fatalf("board after rollback = %+v", m.items)
	}
}
