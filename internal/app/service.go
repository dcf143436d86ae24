package app

import (
	"context"
	"time"

	"github.com/habitaworks/habita/internal/domain"
	"github.com/habitaworks/habita/internal/report"
)

// IDGenerator returns unique identifiers for new entities.
type IDGenerator func() string

// Clock returns the current time.
type Clock func() time.Time

// Service implements the workforce operations against the authoritative
// store. Validation errors are returned before the repository is touched.
type Service struct {
	repo    Repository
	idGen   IDGenerator
	clock   Clock
	reports *report.Builder
}

// NewService constructs a new service.
func NewService(repo Repository, idGen IDGenerator, clock Clock) *Service {
	if idGen == nil {
		idGen = func() string { return "" }
	}
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		repo:    repo,
		idGen:   idGen,
		clock:   clock,
		reports: report.NewBuilder(repo, report.Clock(clock)),
	}
}

// CreateWorkItemInput holds input values for create operations.
type CreateWorkItemInput struct {
	Title             string
	Description       string
	Category          string
	Priority          domain.Priority
	ScheduledStart    time.Time
	ScheduledEnd      time.Time
	AssignedWorkerIDs []string
}

// CreateWorkItem validates input, verifies the assignees against the roster,
// and persists a pending work item.
func (s *Service) CreateWorkItem(ctx context.Context, in CreateWorkItemInput) (domain.WorkItem, error) {
	item, err := domain.NewWorkItem(domain.WorkItemInput{
		ID:                s.idGen(),
		Title:             in.Title,
		Description:       in.Description,
		Category:          in.Category,
		Priority:          in.Priority,
		ScheduledStart:    in.ScheduledStart,
		ScheduledEnd:      in.ScheduledEnd,
		AssignedWorkerIDs: in.AssignedWorkerIDs,
	}, s.clock())
	if err != nil {
		return domain.WorkItem{}, err
	}
	for _, workerID := range item.AssignedWorkerIDs {
		if _, err := s.repo.GetWorker(ctx, workerID); err != nil {
			return domain.WorkItem{}, err
		}
	}
	if err := s.repo.CreateWorkItem(ctx, item); err != nil {
		return domain.WorkItem{}, err
	}
	return item, nil
}

// UpdateWorkItemInput holds input values for update operations.
type UpdateWorkItemInput struct {
	ItemID            string
	Title             string
	Description       string
	Category          string
	Priority          domain.Priority
	ScheduledStart    time.Time
	ScheduledEnd      time.Time
	AssignedWorkerIDs []string
}

// UpdateWorkItem replaces the item's editable fields.
func (s *Service) UpdateWorkItem(ctx context.Context, in UpdateWorkItemInput) (domain.WorkItem, error) {
	item, err := s.repo.GetWorkItem(ctx, in.ItemID)
	if err != nil {
		return domain.WorkItem{}, err
	}
	if err := item.UpdateDetails(in.Title, in.Description, in.Category, in.Priority, in.ScheduledStart, in.ScheduledEnd, in.AssignedWorkerIDs, s.clock()); err != nil {
		return domain.WorkItem{}, err
	}
	if err := s.repo.UpdateWorkItem(ctx, item); err != nil {
		return domain.WorkItem{}, err
	}
	return item, nil
}

// GetWorkItem returns one work item.
func (s *Service) GetWorkItem(ctx context.Context, id string) (domain.WorkItem, error) {
	return s.repo.GetWorkItem(ctx, id)
}

// ListWorkItems returns items matching the filter.
func (s *Service) ListWorkItems(ctx context.Context, filter WorkItemFilter) ([]domain.WorkItem, error) {
	return s.repo.ListWorkItems(ctx, filter)
}

// DeleteWorkItem removes the item permanently.
func (s *Service) DeleteWorkItem(ctx context.Context, id string) error {
	if _, err := s.repo.GetWorkItem(ctx, id); err != nil {
		return err
	}
	return s.repo.DeleteWorkItem(ctx, id)
}

// ChangeStatus applies a lifecycle transition, stamping actual timestamps as
// side effects.
func (s *Service) ChangeStatus(ctx context.Context, id string, status domain.Status) (domain.WorkItem, error) {
	item, err := s.repo.GetWorkItem(ctx, id)
	if err != nil {
		return domain.WorkItem{}, err
	}
	now := s.clock()
	switch domain.NormalizeStatus(status) {
	case domain.StatusInProgress:
		err = item.Start(now)
	case domain.StatusCompleted:
		err = item.Complete(now)
	case domain.StatusCancelled:
		err = item.Cancel(now)
	default:
		return domain.WorkItem{}, domain.ErrInvalidStatus
	}
	if err != nil {
		return domain.WorkItem{}, err
	}
	if err := s.repo.UpdateWorkItem(ctx, item); err != nil {
		return domain.WorkItem{}, err
	}
	return item, nil
}

// AddSubtask appends a subtask to the item.
func (s *Service) AddSubtask(ctx context.Context, itemID, title string) (domain.WorkItem, error) {
	item, err := s.repo.GetWorkItem(ctx, itemID)
	if err != nil {
		return domain.WorkItem{}, err
	}
	if err := item.AddSubtask(s.idGen(), title, s.clock()); err != nil {
		return domain.WorkItem{}, err
	}
	if err := s.repo.UpdateWorkItem(ctx, item); err != nil {
		return domain.WorkItem{}, err
	}
	return item, nil
}

// CompleteSubtask marks a subtask done on behalf of a worker.
func (s *Service) CompleteSubtask(ctx context.Context, itemID, subtaskID, workerID string) (domain.WorkItem, error) {
	item, err := s.repo.GetWorkItem(ctx, itemID)
	if err != nil {
		return domain.WorkItem{}, err
	}
	if _, err := s.repo.GetWorker(ctx, workerID); err != nil {
		return domain.WorkItem{}, err
	}
	if err := item.CompleteSubtask(subtaskID, workerID, s.clock()); err != nil {
		return domain.WorkItem{}, err
	}
	if err := s.repo.UpdateWorkItem(ctx, item); err != nil {
		return domain.WorkItem{}, err
	}
	return item, nil
}

// AddCostEntry appends a cost entry to the item.
func (s *Service) AddCostEntry(ctx context.Context, itemID, description string, amount float64, category domain.CostCategory) (domain.WorkItem, error) {
	item, err := s.repo.GetWorkItem(ctx, itemID)
	if err != nil {
		return domain.WorkItem{}, err
	}
	if err := item.AddCostEntry(s.idGen(), description, amount, category, s.clock()); err != nil {
		return domain.WorkItem{}, err
	}
	if err := s.repo.UpdateWorkItem(ctx, item); err != nil {
		return domain.WorkItem{}, err
	}
	return item, nil
}

// CreateWorker adds a member to the roster.
func (s *Service) CreateWorker(ctx context.Context, name string, role domain.Role) (domain.Worker, error) {
	worker, err := domain.NewWorker(s.idGen(), name, role, s.clock())
	if err != nil {
		return domain.Worker{}, err
	}
	if err := s.repo.CreateWorker(ctx, worker); err != nil {
		return domain.Worker{}, err
	}
	return worker, nil
}

// ListWorkers returns the roster.
func (s *Service) ListWorkers(ctx context.Context) ([]domain.Worker, error) {
	return s.repo.ListWorkers(ctx)
}

// CheckIn opens an attendance session for today. A session left open, on any
// day, rejects the check-in with a distinguishable conflict so clients can
// offer stale-session cleanup.
func (s *Service) CheckIn(ctx context.Context, workerID string) (domain.AttendanceRecord, error) {
	if _, err := s.repo.GetWorker(ctx, workerID); err != nil {
		return domain.AttendanceRecord{}, err
	}
	open, err := s.repo.GetOpenAttendance(ctx, workerID)
	if err != nil {
		return domain.AttendanceRecord{}, err
	}
	if open != nil {
		return domain.AttendanceRecord{}, domain.NewConflictError(domain.ConflictOpenSession, "an attendance session is already open")
	}

	now := s.clock()
	today, err := s.repo.GetAttendance(ctx, workerID, domain.DayOf(now))
	if err != nil {
		return domain.AttendanceRecord{}, err
	}
	var rec domain.AttendanceRecord
	if today != nil {
		rec = *today
		if err := rec.Reopen(now); err != nil {
			return domain.AttendanceRecord{}, err
		}
	} else {
		rec, err = domain.NewAttendanceCheckIn(workerID, now)
		if err != nil {
			return domain.AttendanceRecord{}, err
		}
	}
	if err := s.repo.SaveAttendance(ctx, rec); err != nil {
		return domain.AttendanceRecord{}, err
	}
	return rec, nil
}

// CheckOut closes today's open session.
func (s *Service) CheckOut(ctx context.Context, workerID string) (domain.AttendanceRecord, error) {
	open, err := s.repo.GetOpenAttendance(ctx, workerID)
	if err != nil {
		return domain.AttendanceRecord{}, err
	}
	if open == nil {
		return domain.AttendanceRecord{}, domain.ErrNoOpenSession
	}
	rec := *open
	if err := rec.Close(s.clock()); err != nil {
		return domain.AttendanceRecord{}, err
	}
	if err := s.repo.SaveAttendance(ctx, rec); err != nil {
		return domain.AttendanceRecord{}, err
	}
	return rec, nil
}

// CloseStaleAttendance force-closes whatever session the worker left open,
// letting a fresh check-in proceed.
func (s *Service) CloseStaleAttendance(ctx context.Context, workerID string) error {
	open, err := s.repo.GetOpenAttendance(ctx, workerID)
	if err != nil {
		return err
	}
	if open == nil {
		return nil
	}
	rec := *open
	if err := rec.Close(s.clock()); err != nil {
		return err
	}
	return s.repo.SaveAttendance(ctx, rec)
}

// TodayAttendance returns the worker's record for the current day, nil when
// none exists.
func (s *Service) TodayAttendance(ctx context.Context, workerID string) (*domain.AttendanceRecord, error) {
	return s.repo.GetAttendance(ctx, workerID, domain.DayOf(s.clock()))
}

// DashboardCounters summarize current workload for overview views.
type DashboardCounters struct {
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Cancelled  int `json:"cancelled"`
	Workers    int `json:"workers"`
}

// Dashboard computes the overview counters.
func (s *Service) Dashboard(ctx context.Context) (DashboardCounters, error) {
	items, err := s.repo.ListWorkItems(ctx, WorkItemFilter{})
	if err != nil {
		return DashboardCounters{}, err
	}
	workers, err := s.repo.ListWorkers(ctx)
	if err != nil {
		return DashboardCounters{}, err
	}
	counters := DashboardCounters{Workers: len(workers)}
	for _, item := range items {
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

// MonthlyReport builds the report for one calendar month.
func (s *Service) MonthlyReport(ctx context.Context, month, year int) (report.Monthly, error) {
	return s.reports.Monthly(ctx, month, year)
}
