// Package client implements the service port over the REST API, so the TUI
// and CLI run identically against an embedded service or a remote server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/habitaworks/habita/internal/adapters/server/common"
	"github.com/habitaworks/habita/internal/app"
	"github.com/habitaworks/habita/internal/domain"
	"github.com/habitaworks/habita/internal/report"
)

// defaultTimeout bounds one request round trip when the caller's context has
// no earlier deadline.
const defaultTimeout = 10 * time.Second

// Client talks to one habita server's REST API.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// Option customizes client construction.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) {
		if httpc != nil {
			c.httpc = httpc
		}
	}
}

// New constructs a client for the API mounted at baseURL, typically
// "http://127.0.0.1:8080/api/v1".
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("base url is required")
	}
	c := &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

var _ common.Service = (*Client)(nil)

// CreateWorkItem posts a new work item.
func (c *Client) CreateWorkItem(ctx context.Context, in app.CreateWorkItemInput) (domain.WorkItem, error) {
	req := common.CreateWorkItemRequest{
		Title:             in.Title,
		Description:       in.Description,
		Category:          in.Category,
		Priority:          string(in.Priority),
		ScheduledStart:    in.ScheduledStart,
		ScheduledEnd:      in.ScheduledEnd,
		AssignedWorkerIDs: in.AssignedWorkerIDs,
	}
	var out common.WorkItem
	if err := c.do(ctx, http.MethodPost, "/workitems", req, &out); err != nil {
		return domain.WorkItem{}, err
	}
	return toDomainItem(out)
}

// UpdateWorkItem replaces the item's editable fields.
func (c *Client) UpdateWorkItem(ctx context.Context, in app.UpdateWorkItemInput) (domain.WorkItem, error) {
	req := common.UpdateWorkItemRequest{
		Title:             in.Title,
		Description:       in.Description,
		Category:          in.Category,
		Priority:          string(in.Priority),
		ScheduledStart:    in.ScheduledStart,
		ScheduledEnd:      in.ScheduledEnd,
		AssignedWorkerIDs: in.AssignedWorkerIDs,
	}
	var out common.WorkItem
	if err := c.do(ctx, http.MethodPut, "/workitems/"+url.PathEscape(in.ItemID), req, &out); err != nil {
		return domain.WorkItem{}, err
	}
	return toDomainItem(out)
}

// GetWorkItem fetches one work item.
func (c *Client) GetWorkItem(ctx context.Context, id string) (domain.WorkItem, error) {
	var out common.WorkItem
	if err := c.do(ctx, http.MethodGet, "/workitems/"+url.PathEscape(id), nil, &out); err != nil {
		return domain.WorkItem{}, err
	}
	return toDomainItem(out)
}

// ListWorkItems fetches items matching the filter.
func (c *Client) ListWorkItems(ctx context.Context, filter app.WorkItemFilter) ([]domain.WorkItem, error) {
	query := url.Values{}
	if filter.Status != "" {
		query.Set("status", string(filter.Status))
	}
	if filter.AssignedTo != "" {
		query.Set("assigned_to", filter.AssignedTo)
	}
	path := "/workitems"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	var out common.WorkItemList
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return toDomainItems(out.Items)
}

// DeleteWorkItem removes the item permanently.
func (c *Client) DeleteWorkItem(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/workitems/"+url.PathEscape(id), nil, nil)
}

// ChangeStatus applies a lifecycle transition.
func (c *Client) ChangeStatus(ctx context.Context, id string, status domain.Status) (domain.WorkItem, error) {
	var out common.WorkItem
	req := common.ChangeStatusRequest{Status: string(status)}
	if err := c.do(ctx, http.MethodPost, "/workitems/"+url.PathEscape(id)+"/status", req, &out); err != nil {
		return domain.WorkItem{}, err
	}
	return toDomainItem(out)
}

// AddSubtask appends a subtask to the item.
func (c *Client) AddSubtask(ctx context.Context, itemID, title string) (domain.WorkItem, error) {
	var out common.WorkItem
	req := common.AddSubtaskRequest{Title: title}
	if err := c.do(ctx, http.MethodPost, "/workitems/"+url.PathEscape(itemID)+"/subtasks", req, &out); err != nil {
		return domain.WorkItem{}, err
	}
	return toDomainItem(out)
}

// CompleteSubtask marks a subtask done on behalf of a worker.
func (c *Client) CompleteSubtask(ctx context.Context, itemID, subtaskID, workerID string) (domain.WorkItem, error) {
	var out common.WorkItem
	req := common.CompleteSubtaskRequest{WorkerID: workerID}
	path := "/workitems/" + url.PathEscape(itemID) + "/subtasks/" + url.PathEscape(subtaskID) + "/complete"
	if err := c.do(ctx, http.MethodPost, path, req, &out); err != nil {
		return domain.WorkItem{}, err
	}
	return toDomainItem(out)
}

// AddCostEntry appends a cost entry to the item.
func (c *Client) AddCostEntry(ctx context.Context, itemID, description string, amount float64, category domain.CostCategory) (domain.WorkItem, error) {
	var out common.WorkItem
	req := common.AddCostEntryRequest{Description: description, Amount: amount, Category: string(category)}
	if err := c.do(ctx, http.MethodPost, "/workitems/"+url.PathEscape(itemID)+"/costs", req, &out); err != nil {
		return domain.WorkItem{}, err
	}
	return toDomainItem(out)
}

// CreateWorker adds a roster member.
func (c *Client) CreateWorker(ctx context.Context, name string, role domain.Role) (domain.Worker, error) {
	var out common.Worker
	req := common.CreateWorkerRequest{Name: name, Role: string(role)}
	if err := c.do(ctx, http.MethodPost, "/workers", req, &out); err != nil {
		return domain.Worker{}, err
	}
	return toDomainWorker(out), nil
}

// ListWorkers fetches the roster.
func (c *Client) ListWorkers(ctx context.Context) ([]domain.Worker, error) {
	var out common.WorkerList
	if err := c.do(ctx, http.MethodGet, "/workers", nil, &out); err != nil {
		return nil, err
	}
	workers := make([]domain.Worker, 0, len(out.Workers))
	for _, w := range out.Workers {
		workers = append(workers, toDomainWorker(w))
	}
	return workers, nil
}

// CheckIn opens an attendance session for the worker.
func (c *Client) CheckIn(ctx context.Context, workerID string) (domain.AttendanceRecord, error) {
	var out common.Attendance
	req := common.AttendanceRequest{WorkerID: workerID}
	if err := c.do(ctx, http.MethodPost, "/attendance/checkin", req, &out); err != nil {
		return domain.AttendanceRecord{}, err
	}
	return toDomainAttendance(out)
}

// CheckOut closes the worker's open session.
func (c *Client) CheckOut(ctx context.Context, workerID string) (domain.AttendanceRecord, error) {
	var out common.Attendance
	req := common.AttendanceRequest{WorkerID: workerID}
	if err := c.do(ctx, http.MethodPost, "/attendance/checkout", req, &out); err != nil {
		return domain.AttendanceRecord{}, err
	}
	return toDomainAttendance(out)
}

// CloseStaleAttendance closes any open session left by a missed check-out.
func (c *Client) CloseStaleAttendance(ctx context.Context, workerID string) error {
	req := common.AttendanceRequest{WorkerID: workerID}
	return c.do(ctx, http.MethodPost, "/attendance/close-stale", req, nil)
}

// TodayAttendance fetches the worker's record for today, nil when absent.
func (c *Client) TodayAttendance(ctx context.Context, workerID string) (*domain.AttendanceRecord, error) {
	var out struct {
		Attendance *common.Attendance `json:"attendance"`
	}
	if err := c.do(ctx, http.MethodGet, "/attendance/today?worker_id="+url.QueryEscape(workerID), nil, &out); err != nil {
		return nil, err
	}
	if out.Attendance == nil {
		return nil, nil
	}
	rec, err := toDomainAttendance(*out.Attendance)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Dashboard fetches overview counters.
func (c *Client) Dashboard(ctx context.Context) (app.DashboardCounters, error) {
	var out app.DashboardCounters
	if err := c.do(ctx, http.MethodGet, "/dashboard", nil, &out); err != nil {
		return app.DashboardCounters{}, err
	}
	return out, nil
}

// MonthlyReport fetches the monthly report.
func (c *Client) MonthlyReport(ctx context.Context, month, year int) (report.Monthly, error) {
	path := "/reports/monthly?month=" + strconv.Itoa(month) + "&year=" + strconv.Itoa(year)
	var out report.Monthly
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return report.Monthly{}, err
	}
	return out, nil
}

// do performs one API round trip. Network failures come back wrapped in
// domain.TransportError; structured API errors map onto domain sentinels.
func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return &domain.TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.TransportError{Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// decodeAPIError converts one error envelope into a domain error. Conflict
// codes survive the trip so callers can branch on remediation.
func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Error.Code == "" {
		return &domain.TransportError{Err: fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(raw)))}
	}
	switch resp.StatusCode {
	case http.StatusConflict:
		return domain.NewConflictError(envelope.Error.Code, envelope.Error.Message)
	case http.StatusNotFound:
		return app.ErrNotFound
	case http.StatusBadRequest:
		return fmt.Errorf("rejected: %s", envelope.Error.Message)
	default:
		return fmt.Errorf("server error (%s): %s", envelope.Error.Code, envelope.Error.Message)
	}
}

func toDomainItem(in common.WorkItem) (domain.WorkItem, error) {
	item := domain.WorkItem{
		ID:                in.ID,
		Title:             in.Title,
		Description:       in.Description,
		Category:          in.Category,
		Status:            domain.Status(in.Status),
		Priority:          domain.Priority(in.Priority),
		ScheduledStart:    in.ScheduledStart,
		ScheduledEnd:      in.ScheduledEnd,
		ActualStart:       in.ActualStart,
		ActualEnd:         in.ActualEnd,
		AssignedWorkerIDs: append([]string(nil), in.AssignedWorkerIDs...),
		CreatedAt:         in.CreatedAt,
		UpdatedAt:         in.UpdatedAt,
	}
	for _, sub := range in.Subtasks {
		item.Subtasks = append(item.Subtasks, domain.Subtask{
			ID:          sub.ID,
			Title:       sub.Title,
			Done:        sub.Done,
			CompletedBy: sub.CompletedBy,
			CompletedAt: sub.CompletedAt,
		})
	}
	for _, cost := range in.CostEntries {
		item.CostEntries = append(item.CostEntries, domain.CostEntry{
			ID:          cost.ID,
			Description: cost.Description,
			Amount:      cost.Amount,
			Category:    domain.CostCategory(cost.Category),
		})
	}
	return item, nil
}

func toDomainItems(in []common.WorkItem) ([]domain.WorkItem, error) {
	out := make([]domain.WorkItem, 0, len(in))
	for _, wire := range in {
		item, err := toDomainItem(wire)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

func toDomainWorker(in common.Worker) domain.Worker {
	return domain.Worker{
		ID:        in.ID,
		Name:      in.Name,
		Role:      domain.Role(in.Role),
		CreatedAt: in.CreatedAt,
		UpdatedAt: in.UpdatedAt,
	}
}

func toDomainAttendance(in common.Attendance) (domain.AttendanceRecord, error) {
	day, err := time.ParseInLocation("2006-01-02", in.Day, time.UTC)
	if err != nil {
		return domain.AttendanceRecord{}, &domain.TransportError{Err: fmt.Errorf("decode attendance day: %w", err)}
	}
	return domain.AttendanceRecord{
		WorkerID:  in.WorkerID,
		Day:       day,
		CheckIn:   in.CheckIn,
		CheckOut:  in.CheckOut,
		UpdatedAt: in.UpdatedAt,
	}, nil
}
