package app

import (
	"context"
	"time"

	"github.com/habitaworks/habita/internal/domain"
)

// WorkItemFilter selects work items for list queries. Zero values match
// everything.
type WorkItemFilter struct {
	Status     domain.Status
	AssignedTo string
}

// Repository is the authoritative store the service writes through. Absent
// optional records are explicit nils, not errors.
type Repository interface {
	CreateWorkItem(context.Context, domain.WorkItem) error
	UpdateWorkItem(context.Context, domain.WorkItem) error
	GetWorkItem(context.Context, string) (domain.WorkItem, error)
	ListWorkItems(context.Context, WorkItemFilter) ([]domain.WorkItem, error)
	DeleteWorkItem(context.Context, string) error
	ListCompletedBetween(context.Context, time.Time, time.Time) ([]domain.WorkItem, error)

	CreateWorker(context.Context, domain.Worker) error
	GetWorker(context.Context, string) (domain.Worker, error)
	ListWorkers(context.Context) ([]domain.Worker, error)

	GetAttendance(context.Context, string, time.Time) (*domain.AttendanceRecord, error)
	GetOpenAttendance(context.Context, string) (*domain.AttendanceRecord, error)
	SaveAttendance(context.Context, domain.AttendanceRecord) error
}
