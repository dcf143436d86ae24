// Package common holds the wire types and the app-facing service port shared
// by the HTTP and MCP transports and the remote client.
package common

import (
	"context"
	"time"

	"github.com/habitaworks/habita/internal/app"
	"github.com/habitaworks/habita/internal/domain"
	"github.com/habitaworks/habita/internal/report"
	"github.com/habitaworks/habita/internal/schedule"
)

// Service is the operation surface transports expose. *app.Service satisfies
// it; the remote client reimplements it over HTTP.
type Service interface {
	CreateWorkItem(ctx context.Context, in app.CreateWorkItemInput) (domain.WorkItem, error)
	UpdateWorkItem(ctx context.Context, in app.UpdateWorkItemInput) (domain.WorkItem, error)
	GetWorkItem(ctx context.Context, id string) (domain.WorkItem, error)
	ListWorkItems(ctx context.Context, filter app.WorkItemFilter) ([]domain.WorkItem, error)
	DeleteWorkItem(ctx context.Context, id string) error
	ChangeStatus(ctx context.Context, id string, status domain.Status) (domain.WorkItem, error)
	AddSubtask(ctx context.Context, itemID, title string) (domain.WorkItem, error)
	CompleteSubtask(ctx context.Context, itemID, subtaskID, workerID string) (domain.WorkItem, error)
	AddCostEntry(ctx context.Context, itemID, description string, amount float64, category domain.CostCategory) (domain.WorkItem, error)

	CreateWorker(ctx context.Context, name string, role domain.Role) (domain.Worker, error)
	ListWorkers(ctx context.Context) ([]domain.Worker, error)

	CheckIn(ctx context.Context, workerID string) (domain.AttendanceRecord, error)
	CheckOut(ctx context.Context, workerID string) (domain.AttendanceRecord, error)
	CloseStaleAttendance(ctx context.Context, workerID string) error
	TodayAttendance(ctx context.Context, workerID string) (*domain.AttendanceRecord, error)

	Dashboard(ctx context.Context) (app.DashboardCounters, error)
	MonthlyReport(ctx context.Context, month, year int) (report.Monthly, error)
}

// Subtask is the wire form of a work-item subtask.
type Subtask struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Done        bool       `json:"done"`
	CompletedBy string     `json:"completed_by,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// CostEntry is the wire form of a work-item cost entry.
type CostEntry struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Category    string  `json:"category"`
}

// WorkItem is the wire form of a work item. Classification and variance are
// derived on the way out and never round-trip back in.
type WorkItem struct {
	ID                string      `json:"id"`
	Title             string      `json:"title"`
	Description       string      `json:"description,omitempty"`
	Category          string      `json:"category,omitempty"`
	Status            string      `json:"status"`
	Priority          string      `json:"priority"`
	ScheduledStart    time.Time   `json:"scheduled_start"`
	ScheduledEnd      time.Time   `json:"scheduled_end"`
	ActualStart       *time.Time  `json:"actual_start,omitempty"`
	ActualEnd         *time.Time  `json:"actual_end,omitempty"`
	Classification    string      `json:"classification"`
	Variance          string      `json:"variance,omitempty"`
	Subtasks          []Subtask   `json:"subtasks"`
	CostEntries       []CostEntry `json:"cost_entries"`
	TotalCost         float64     `json:"total_cost"`
	AssignedWorkerIDs []string    `json:"assigned_worker_ids"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// Worker is the wire form of a roster member.
type Worker struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Attendance is the wire form of an attendance record.
type Attendance struct {
	WorkerID  string     `json:"worker_id"`
	Day       string     `json:"day"`
	CheckIn   *time.Time `json:"check_in,omitempty"`
	CheckOut  *time.Time `json:"check_out,omitempty"`
	Open      bool       `json:"open"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// CreateWorkItemRequest is the POST /workitems payload.
type CreateWorkItemRequest struct {
	Title             string    `json:"title"`
	Description       string    `json:"description,omitempty"`
	Category          string    `json:"category,omitempty"`
	Priority          string    `json:"priority,omitempty"`
	ScheduledStart    time.Time `json:"scheduled_start"`
	ScheduledEnd      time.Time `json:"scheduled_end"`
	AssignedWorkerIDs []string  `json:"assigned_worker_ids"`
}

// UpdateWorkItemRequest is the PUT /workitems/{id} payload.
type UpdateWorkItemRequest struct {
	Title             string    `json:"title"`
	Description       string    `json:"description,omitempty"`
	Category          string    `json:"category,omitempty"`
	Priority          string    `json:"priority"`
	ScheduledStart    time.Time `json:"scheduled_start"`
	ScheduledEnd      time.Time `json:"scheduled_end"`
	AssignedWorkerIDs []string  `json:"assigned_worker_ids"`
}

// ChangeStatusRequest is the POST /workitems/{id}/status payload.
type ChangeStatusRequest struct {
	Status string `json:"status"`
}

// AddSubtaskRequest is the POST /workitems/{id}/subtasks payload.
type AddSubtaskRequest struct {
	Title string `json:"title"`
}

// CompleteSubtaskRequest is the POST /workitems/{id}/subtasks/{sid}/complete payload.
type CompleteSubtaskRequest struct {
	WorkerID string `json:"worker_id"`
}

// AddCostEntryRequest is the POST /workitems/{id}/costs payload.
type AddCostEntryRequest struct {
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Category    string  `json:"category,omitempty"`
}

// CreateWorkerRequest is the POST /workers payload.
type CreateWorkerRequest struct {
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

// AttendanceRequest identifies the worker for check-in/check-out endpoints.
type AttendanceRequest struct {
	WorkerID string `json:"worker_id"`
}

// WorkItemList wraps list responses.
type WorkItemList struct {
	Items []WorkItem `json:"items"`
}

// WorkerList wraps roster responses.
type WorkerList struct {
	Workers []Worker `json:"workers"`
}

// FromWorkItem converts a domain work item into its wire form.
func FromWorkItem(item domain.WorkItem) WorkItem {
	out := WorkItem{
		ID:                item.ID,
		Title:             item.Title,
		Description:       item.Description,
		Category:          item.Category,
		Status:            string(item.Status),
		Priority:          string(item.Priority),
		ScheduledStart:    item.ScheduledStart,
		ScheduledEnd:      item.ScheduledEnd,
		ActualStart:       item.ActualStart,
		ActualEnd:         item.ActualEnd,
		Classification:    string(schedule.Classify(item)),
		Subtasks:          make([]Subtask, 0, len(item.Subtasks)),
		CostEntries:       make([]CostEntry, 0, len(item.CostEntries)),
		TotalCost:         item.TotalCost(),
		AssignedWorkerIDs: append([]string(nil), item.AssignedWorkerIDs...),
		CreatedAt:         item.CreatedAt,
		UpdatedAt:         item.UpdatedAt,
	}
	if out.Classification != string(schedule.Pending) {
		out.Variance = schedule.FormatDuration(schedule.Difference(item))
	}
	for _, sub := range item.Subtasks {
		out.Subtasks = append(out.Subtasks, Subtask{
			ID:          sub.ID,
			Title:       sub.Title,
			Done:        sub.Done,
			CompletedBy: sub.CompletedBy,
			CompletedAt: sub.CompletedAt,
		})
	}
	for _, cost := range item.CostEntries {
		out.CostEntries = append(out.CostEntries, CostEntry{
			ID:          cost.ID,
			Description: cost.Description,
			Amount:      cost.Amount,
			Category:    string(cost.Category),
		})
	}
	return out
}

// FromWorkItems converts a slice of work items.
func FromWorkItems(items []domain.WorkItem) []WorkItem {
	out := make([]WorkItem, 0, len(items))
	for _, item := range items {
		out = append(out, FromWorkItem(item))
	}
	return out
}

// FromWorker converts a domain worker into its wire form.
func FromWorker(w domain.Worker) Worker {
	return Worker{
		ID:        w.ID,
		Name:      w.Name,
		Role:      string(w.Role),
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}
}

// FromWorkers converts a slice of workers.
func FromWorkers(workers []domain.Worker) []Worker {
	out := make([]Worker, 0, len(workers))
	for _, w := range workers {
		out = append(out, FromWorker(w))
	}
	return out
}

// FromAttendance converts a domain attendance record into its wire form.
func FromAttendance(rec domain.AttendanceRecord) Attendance {
	return Attendance{
		WorkerID:  rec.WorkerID,
		Day:       rec.Day.Format("2006-01-02"),
		CheckIn:   rec.CheckIn,
		CheckOut:  rec.CheckOut,
		Open:      rec.Open(),
		UpdatedAt: rec.UpdatedAt,
	}
}
