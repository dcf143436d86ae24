package domain

import (
	"slices"
	"strings"
	"time"
)

// Status represents canonical work-item lifecycle states.
type Status string

// Canonical lifecycle states.
const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

var validStatuses = []Status{StatusPending, StatusInProgress, StatusCompleted, StatusCancelled}

// Priority represents work-item priority values.
type Priority string

// Priority values.
const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

var validPriorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

// CostCategory classifies cost entries attached to a work item.
type CostCategory string

// CostCategory values.
const (
	CostMaterials CostCategory = "materials"
	CostLabor     CostCategory = "labor"
	CostOther     CostCategory = "other"
)

var validCostCategories = []CostCategory{CostMaterials, CostLabor, CostOther}

// Subtask is a checklist child of a work item. CompletedBy records the worker
// who personally finished it, independent of item assignment.
type Subtask struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Done        bool       `json:"done"`
	CompletedBy string     `json:"completed_by,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// CostEntry is a positive expense attached to a work item.
type CostEntry struct {
	ID          string       `json:"id"`
	Description string       `json:"description"`
	Amount      float64      `json:"amount"`
	Category    CostCategory `json:"category"`
}

// WorkItem is a schedulable, assignable unit of work. The scheduled window is
// always present; actual timestamps are set only as side effects of status
// transitions. ActualEnd is never set while ActualStart is nil.
type WorkItem struct {
	ID                string
	Title             string
	Description       string
	Category          string
	Status            Status
	Priority          Priority
	ScheduledStart    time.Time
	ScheduledEnd      time.Time
	ActualStart       *time.Time
	ActualEnd         *time.Time
	Subtasks          []Subtask
	CostEntries       []CostEntry
	AssignedWorkerIDs []string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// WorkItemInput carries raw values for constructing a work item.
type WorkItemInput struct {
	ID                string
	Title             string
	Description       string
	Category          string
	Priority          Priority
	ScheduledStart    time.Time
	ScheduledEnd      time.Time
	AssignedWorkerIDs []string
}

// NewWorkItem validates input and constructs a pending work item.
func NewWorkItem(in WorkItemInput, now time.Time) (WorkItem, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)

	if in.ID == "" {
		return WorkItem{}, ErrInvalidID
	}
	if in.Title == "" {
		return WorkItem{}, ErrInvalidTitle
	}
	if in.Priority == "" {
		in.Priority = PriorityMedium
	}
	if !slices.Contains(validPriorities, in.Priority) {
		return WorkItem{}, ErrInvalidPriority
	}
	if in.ScheduledStart.IsZero() || in.ScheduledEnd.IsZero() || in.ScheduledEnd.Before(in.ScheduledStart) {
		return WorkItem{}, ErrInvalidSchedule
	}
	assignees := normalizeIDList(in.AssignedWorkerIDs)
	if len(assignees) == 0 {
		return WorkItem{}, ErrNoAssignees
	}

	return WorkItem{
		ID:                in.ID,
		Title:             in.Title,
		Description:       in.Description,
		Category:          strings.ToLower(strings.TrimSpace(in.Category)),
		Status:            StatusPending,
		Priority:          in.Priority,
		ScheduledStart:    in.ScheduledStart.UTC().Truncate(time.Second),
		ScheduledEnd:      in.ScheduledEnd.UTC().Truncate(time.Second),
		AssignedWorkerIDs: assignees,
		CreatedAt:         now.UTC(),
		UpdatedAt:         now.UTC(),
	}, nil
}

// UpdateDetails replaces editable fields after validation.
func (w *WorkItem) UpdateDetails(title, description, category string, priority Priority, scheduledStart, scheduledEnd time.Time, assignees []string, now time.Time) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrInvalidTitle
	}
	if !slices.Contains(validPriorities, priority) {
		return ErrInvalidPriority
	}
	if scheduledStart.IsZero() || scheduledEnd.IsZero() || scheduledEnd.Before(scheduledStart) {
		return ErrInvalidSchedule
	}
	normalized := normalizeIDList(assignees)
	if len(normalized) == 0 {
		return ErrNoAssignees
	}
	w.Title = title
	w.Description = strings.TrimSpace(description)
	w.Category = strings.ToLower(strings.TrimSpace(category))
	w.Priority = priority
	w.ScheduledStart = scheduledStart.UTC().Truncate(time.Second)
	w.ScheduledEnd = scheduledEnd.UTC().Truncate(time.Second)
	w.AssignedWorkerIDs = normalized
	w.UpdatedAt = now.UTC()
	return nil
}

// Start moves the item into progress, stamping ActualStart on the first call.
func (w *WorkItem) Start(now time.Time) error {
	switch w.Status {
	case StatusCompleted, StatusCancelled:
		return NewConflictError(ConflictStatus, "cannot start a "+string(w.Status)+" item")
	}
	ts := now.UTC().Truncate(time.Second)
	if w.ActualStart == nil {
		w.ActualStart = &ts
	}
	w.Status = StatusInProgress
	w.UpdatedAt = now.UTC()
	return nil
}

// Complete finishes the item, stamping ActualEnd and backfilling ActualStart
// when the item was completed without an explicit start.
func (w *WorkItem) Complete(now time.Time) error {
	if w.Status == StatusCancelled {
		return NewConflictError(ConflictStatus, "cannot complete a cancelled item")
	}
	ts := now.UTC().Truncate(time.Second)
	if w.ActualStart == nil {
		w.ActualStart = &ts
	}
	w.ActualEnd = &ts
	w.Status = StatusCompleted
	w.UpdatedAt = now.UTC()
	return nil
}

// Cancel marks the item cancelled. Actual timestamps already recorded are kept.
func (w *WorkItem) Cancel(now time.Time) error {
	if w.Status == StatusCompleted {
		return NewConflictError(ConflictStatus, "cannot cancel a completed item")
	}
	w.Status = StatusCancelled
	w.UpdatedAt = now.UTC()
	return nil
}

// AddSubtask appends a validated subtask.
func (w *WorkItem) AddSubtask(id, title string, now time.Time) error {
	id = strings.TrimSpace(id)
	title = strings.TrimSpace(title)
	if id == "" {
		return ErrInvalidID
	}
	if title == "" {
		return ErrInvalidTitle
	}
	w.Subtasks = append(w.Subtasks, Subtask{ID: id, Title: title})
	w.UpdatedAt = now.UTC()
	return nil
}

// CompleteSubtask marks the identified subtask done, recording who finished it.
func (w *WorkItem) CompleteSubtask(subtaskID, workerID string, now time.Time) error {
	subtaskID = strings.TrimSpace(subtaskID)
	workerID = strings.TrimSpace(workerID)
	if workerID == "" {
		return ErrInvalidID
	}
	for i := range w.Subtasks {
		if w.Subtasks[i].ID != subtaskID {
			continue
		}
		ts := now.UTC().Truncate(time.Second)
		w.Subtasks[i].Done = true
		w.Subtasks[i].CompletedBy = workerID
		w.Subtasks[i].CompletedAt = &ts
		w.UpdatedAt = now.UTC()
		return nil
	}
	return ErrInvalidID
}

// AddCostEntry appends a validated cost entry.
func (w *WorkItem) AddCostEntry(id, description string, amount float64, category CostCategory, now time.Time) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrInvalidID
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if category == "" {
		category = CostOther
	}
	if !slices.Contains(validCostCategories, category) {
		return ErrInvalidCategory
	}
	w.CostEntries = append(w.CostEntries, CostEntry{
		ID:          id,
		Description: strings.TrimSpace(description),
		Amount:      amount,
		Category:    category,
	})
	w.UpdatedAt = now.UTC()
	return nil
}

// TotalCost sums the item's cost entries.
func (w WorkItem) TotalCost() float64 {
	total := 0.0
	for _, entry := range w.CostEntries {
		total += entry.Amount
	}
	return total
}

// AssignedTo reports whether the worker is among the item's assignees.
func (w WorkItem) AssignedTo(workerID string) bool {
	return slices.Contains(w.AssignedWorkerIDs, strings.TrimSpace(workerID))
}

// NormalizeStatus canonicalizes status aliases.
func NormalizeStatus(status Status) Status {
	switch strings.TrimSpace(strings.ToLower(string(status))) {
	case "pending", "todo":
		return StatusPending
	case "in_progress", "in-progress", "progress", "doing":
		return StatusInProgress
	case "completed", "complete", "done":
		return StatusCompleted
	case "cancelled", "canceled":
		return StatusCancelled
	default:
		return Status(strings.TrimSpace(strings.ToLower(string(status))))
	}
}

// IsValidStatus reports whether the status is canonical.
func IsValidStatus(status Status) bool {
	return slices.Contains(validStatuses, NormalizeStatus(status))
}

// normalizeIDList trims, deduplicates, and sorts identifier slices.
func normalizeIDList(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, raw := range in {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
