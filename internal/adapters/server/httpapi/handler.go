// Package httpapi provides the REST HTTP adapter mounted under `/api/v1`.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/habitaworks/habita/internal/adapters/server/common"
	"github.com/habitaworks/habita/internal/app"
	"github.com/habitaworks/habita/internal/domain"
	"github.com/habitaworks/habita/internal/report"
)

// maxRequestBodyBytes limits decoded JSON payload size.
const maxRequestBodyBytes int64 = 1 << 20

// Handler serves the versioned API subrouter.
type Handler struct {
	svc common.Service
}

// APIError represents one structured API failure response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// ErrorEnvelope wraps one structured API error.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// NewHandler constructs one HTTP API adapter over the app service.
func NewHandler(svc common.Service) *Handler {
	return &Handler{svc: svc}
}

// ServeHTTP routes one versioned API request to the matching handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	segments := splitPath(r.URL.Path)
	switch {
	case len(segments) >= 1 && segments[0] == "workitems":
		h.routeWorkItems(w, r, segments[1:])
	case len(segments) == 1 && segments[0] == "workers":
		h.routeWorkers(w, r)
	case len(segments) == 2 && segments[0] == "attendance":
		h.routeAttendance(w, r, segments[1])
	case len(segments) == 2 && segments[0] == "reports" && segments[1] == "monthly":
		h.requireMethod(w, r, http.MethodGet, h.handleMonthlyReport)
	case len(segments) == 1 && segments[0] == "dashboard":
		h.requireMethod(w, r, http.MethodGet, h.handleDashboard)
	default:
		writeJSONError(w, http.StatusNotFound, APIError{Code: "not_found", Message: "endpoint not found"})
	}
}

func (h *Handler) routeWorkItems(w http.ResponseWriter, r *http.Request, rest []string) {
	switch {
	case len(rest) == 0:
		switch r.Method {
		case http.MethodGet:
			h.handleListWorkItems(w, r)
		case http.MethodPost:
			h.handleCreateWorkItem(w, r)
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
	case len(rest) == 1:
		itemID := rest[0]
		switch r.Method {
		case http.MethodGet:
			h.handleGetWorkItem(w, r, itemID)
		case http.MethodPut:
			h.handleUpdateWorkItem(w, r, itemID)
		case http.MethodDelete:
			h.handleDeleteWorkItem(w, r, itemID)
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPut, http.MethodDelete)
		}
	case len(rest) == 2 && rest[1] == "status":
		h.requirePost(w, r, func(w http.ResponseWriter, r *http.Request) { h.handleChangeStatus(w, r, rest[0]) })
	case len(rest) == 2 && rest[1] == "subtasks":
		h.requirePost(w, r, func(w http.ResponseWriter, r *http.Request) { h.handleAddSubtask(w, r, rest[0]) })
	case len(rest) == 4 && rest[1] == "subtasks" && rest[3] == "complete":
		h.requirePost(w, r, func(w http.ResponseWriter, r *http.Request) { h.handleCompleteSubtask(w, r, rest[0], rest[2]) })
	case len(rest) == 2 && rest[1] == "costs":
		h.requirePost(w, r, func(w http.ResponseWriter, r *http.Request) { h.handleAddCostEntry(w, r, rest[0]) })
	default:
		writeJSONError(w, http.StatusNotFound, APIError{Code: "not_found", Message: "endpoint not found"})
	}
}

func (h *Handler) routeWorkers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleListWorkers(w, r)
	case http.MethodPost:
		h.handleCreateWorker(w, r)
	default:
		writeMethodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (h *Handler) routeAttendance(w http.ResponseWriter, r *http.Request, action string) {
	switch action {
	case "checkin":
		h.requirePost(w, r, h.handleCheckIn)
	case "checkout":
		h.requirePost(w, r, h.handleCheckOut)
	case "close-stale":
		h.requirePost(w, r, h.handleCloseStale)
	case "today":
		h.requireMethod(w, r, http.MethodGet, h.handleTodayAttendance)
	default:
		writeJSONError(w, http.StatusNotFound, APIError{Code: "not_found", Message: "endpoint not found"})
	}
}

// handleListWorkItems serves GET `/workitems`.
func (h *Handler) handleListWorkItems(w http.ResponseWriter, r *http.Request) {
	filter := app.WorkItemFilter{
		Status:     domain.Status(strings.TrimSpace(r.URL.Query().Get("status"))),
		AssignedTo: strings.TrimSpace(r.URL.Query().Get("assigned_to")),
	}
	if filter.Status != "" && !domain.IsValidStatus(filter.Status) {
		writeJSONError(w, http.StatusBadRequest, APIError{Code: "invalid_request", Message: "unknown status filter"})
		return
	}
	items, err := h.svc.ListWorkItems(r.Context(), filter)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, common.WorkItemList{Items: common.FromWorkItems(items)})
}

// handleCreateWorkItem serves POST `/workitems`.
func (h *Handler) handleCreateWorkItem(w http.ResponseWriter, r *http.Request) {
	var req common.CreateWorkItemRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	item, err := h.svc.CreateWorkItem(r.Context(), app.CreateWorkItemInput{
		Title:             req.Title,
		Description:       req.Description,
		Category:          req.Category,
		Priority:          domain.Priority(req.Priority),
		ScheduledStart:    req.ScheduledStart,
		ScheduledEnd:      req.ScheduledEnd,
		AssignedWorkerIDs: req.AssignedWorkerIDs,
	})
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, common.FromWorkItem(item))
}

// handleGetWorkItem serves GET `/workitems/{id}`.
func (h *Handler) handleGetWorkItem(w http.ResponseWriter, r *http.Request, itemID string) {
	item, err := h.svc.GetWorkItem(r.Context(), itemID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, common.FromWorkItem(item))
}

// handleUpdateWorkItem serves PUT `/workitems/{id}`.
func (h *Handler) handleUpdateWorkItem(w http.ResponseWriter, r *http.Request, itemID string) {
	var req common.UpdateWorkItemRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	item, err := h.svc.UpdateWorkItem(r.Context(), app.UpdateWorkItemInput{
		ItemID:            itemID,
		Title:             req.Title,
		Description:       req.Description,
		Category:          req.Category,
		Priority:          domain.Priority(req.Priority),
		ScheduledStart:    req.ScheduledStart,
		ScheduledEnd:      req.ScheduledEnd,
		AssignedWorkerIDs: req.AssignedWorkerIDs,
	})
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, common.FromWorkItem(item))
}

// handleDeleteWorkItem serves DELETE `/workitems/{id}`.
func (h *Handler) handleDeleteWorkItem(w http.ResponseWriter, r *http.Request, itemID string) {
	if err := h.svc.DeleteWorkItem(r.Context(), itemID); err != nil {
		writeErrorFrom(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleChangeStatus serves POST `/workitems/{id}/status`.
func (h *Handler) handleChangeStatus(w http.ResponseWriter, r *http.Request, itemID string) {
	var req common.ChangeStatusRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	item, err := h.svc.ChangeStatus(r.Context(), itemID, domain.Status(req.Status))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, common.FromWorkItem(item))
}

// handleAddSubtask serves POST `/workitems/{id}/subtasks`.
func (h *Handler) handleAddSubtask(w http.ResponseWriter, r *http.Request, itemID string) {
	var req common.AddSubtaskRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	item, err := h.svc.AddSubtask(r.Context(), itemID, req.Title)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, common.FromWorkItem(item))
}

// handleCompleteSubtask serves POST `/workitems/{id}/subtasks/{sid}/complete`.
func (h *Handler) handleCompleteSubtask(w http.ResponseWriter, r *http.Request, itemID, subtaskID string) {
	var req common.CompleteSubtaskRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	item, err := h.svc.CompleteSubtask(r.Context(), itemID, subtaskID, req.WorkerID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, common.FromWorkItem(item))
}

// handleAddCostEntry serves POST `/workitems/{id}/costs`.
func (h *Handler) handleAddCostEntry(w http.ResponseWriter, r *http.Request, itemID string) {
	var req common.AddCostEntryRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	item, err := h.svc.AddCostEntry(r.Context(), itemID, req.Description, req.Amount, domain.CostCategory(req.Category))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, common.FromWorkItem(item))
}

// handleListWorkers serves GET `/workers`.
func (h *Handler) handleListWorkers(w http.ResponseWriter, r *http.Request) {
	workers, err := h.svc.ListWorkers(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, common.WorkerList{Workers: common.FromWorkers(workers)})
}

// handleCreateWorker serves POST `/workers`.
func (h *Handler) handleCreateWorker(w http.ResponseWriter, r *http.Request) {
	var req common.CreateWorkerRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	worker, err := h.svc.CreateWorker(r.Context(), req.Name, domain.Role(req.Role))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, common.FromWorker(worker))
}

// handleCheckIn serves POST `/attendance/checkin`.
func (h *Handler) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	workerID, ok := h.decodeAttendanceWorker(w, r)
	if !ok {
		return
	}
	rec, err := h.svc.CheckIn(r.Context(), workerID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, common.FromAttendance(rec))
}

// handleCheckOut serves POST `/attendance/checkout`.
func (h *Handler) handleCheckOut(w http.ResponseWriter, r *http.Request) {
	workerID, ok := h.decodeAttendanceWorker(w, r)
	if !ok {
		return
	}
	rec, err := h.svc.CheckOut(r.Context(), workerID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, common.FromAttendance(rec))
}

// handleCloseStale serves POST `/attendance/close-stale`.
func (h *Handler) handleCloseStale(w http.ResponseWriter, r *http.Request) {
	workerID, ok := h.decodeAttendanceWorker(w, r)
	if !ok {
		return
	}
	if err := h.svc.CloseStaleAttendance(r.Context(), workerID); err != nil {
		writeErrorFrom(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleTodayAttendance serves GET `/attendance/today?worker_id=`.
func (h *Handler) handleTodayAttendance(w http.ResponseWriter, r *http.Request) {
	workerID := strings.TrimSpace(r.URL.Query().Get("worker_id"))
	if workerID == "" {
		writeJSONError(w, http.StatusBadRequest, APIError{Code: "invalid_request", Message: "worker_id is required"})
		return
	}
	rec, err := h.svc.TodayAttendance(r.Context(), workerID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusOK, map[string]any{"attendance": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"attendance": common.FromAttendance(*rec)})
}

// handleMonthlyReport serves GET `/reports/monthly?month=&year=`.
func (h *Handler) handleMonthlyReport(w http.ResponseWriter, r *http.Request) {
	month, err := strconv.Atoi(r.URL.Query().Get("month"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, APIError{Code: "invalid_request", Message: "month must be an integer"})
		return
	}
	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, APIError{Code: "invalid_request", Message: "year must be an integer"})
		return
	}
	monthly, err := h.svc.MonthlyReport(r.Context(), month, year)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, monthly)
}

// handleDashboard serves GET `/dashboard`.
func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	counters, err := h.svc.Dashboard(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counters)
}

func (h *Handler) requirePost(w http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	h.requireMethod(w, r, http.MethodPost, next)
}

func (h *Handler) requireMethod(w http.ResponseWriter, r *http.Request, method string, next http.HandlerFunc) {
	if r.Method != method {
		writeMethodNotAllowed(w, method)
		return
	}
	next(w, r)
}

func (h *Handler) decodeAttendanceWorker(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req common.AttendanceRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return "", false
	}
	workerID := strings.TrimSpace(req.WorkerID)
	if workerID == "" {
		writeJSONError(w, http.StatusBadRequest, APIError{Code: "invalid_request", Message: "worker_id is required"})
		return "", false
	}
	return workerID, true
}

// splitPath canonicalizes one request path into non-empty segments.
func splitPath(path string) []string {
	trimmed := strings.Trim(strings.TrimSpace(path), "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// errInvalidBody marks malformed request payloads.
var errInvalidBody = errors.New("invalid request body")

// writeErrorFrom maps service errors into structured HTTP responses.
func writeErrorFrom(w http.ResponseWriter, err error) {
	if conflict, ok := domain.AsConflict(err); ok {
		apiErr := APIError{Code: conflict.Code, Message: conflict.Message}
		if conflict.Code == domain.ConflictOpenSession {
			apiErr.Hint = "Close the stale session with POST /attendance/close-stale, then retry."
		}
		writeJSONError(w, http.StatusConflict, apiErr)
		return
	}
	var genErr *report.GenerationError
	switch {
	case err == nil:
		writeJSONError(w, http.StatusInternalServerError, APIError{Code: "internal_error", Message: "unknown error"})
	case errors.Is(err, app.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, APIError{Code: "not_found", Message: err.Error()})
	case errors.As(err, &genErr):
		writeJSONError(w, http.StatusInternalServerError, APIError{Code: "report_generation_failed", Message: err.Error()})
	case errors.Is(err, errInvalidBody),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrInvalidName),
		errors.Is(err, domain.ErrInvalidTitle),
		errors.Is(err, domain.ErrInvalidPriority),
		errors.Is(err, domain.ErrInvalidStatus),
		errors.Is(err, domain.ErrInvalidSchedule),
		errors.Is(err, domain.ErrNoAssignees),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidCategory),
		errors.Is(err, domain.ErrInvalidRole),
		errors.Is(err, domain.ErrNoOpenSession),
		errors.Is(err, report.ErrInvalidMonth),
		errors.Is(err, report.ErrInvalidYear):
		writeJSONError(w, http.StatusBadRequest, APIError{Code: "invalid_request", Message: err.Error()})
	default:
		writeJSONError(w, http.StatusInternalServerError, APIError{Code: "internal_error", Message: err.Error()})
	}
}

// writeMethodNotAllowed writes a structured 405 response with `Allow` headers.
func writeMethodNotAllowed(w http.ResponseWriter, methods ...string) {
	if len(methods) > 0 {
		w.Header().Set("Allow", strings.Join(methods, ", "))
	}
	writeJSONError(w, http.StatusMethodNotAllowed, APIError{Code: "method_not_allowed", Message: "method not allowed"})
}

// writeJSONError writes one structured error envelope.
func writeJSONError(w http.ResponseWriter, statusCode int, apiErr APIError) {
	writeJSON(w, statusCode, ErrorEnvelope{Error: apiErr})
}

// writeJSON writes one JSON response envelope.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":{"code":"encode_error","message":"%s"}}`, err.Error()), http.StatusInternalServerError)
	}
}

// decodeJSONBody decodes one required JSON request body with strict shape checks.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode request body: %w", errors.Join(errInvalidBody, err))
	}
	// Reject trailing payloads so malformed JSON bodies fail closed.
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode request body: trailing content: %w", errInvalidBody)
	}
	return nil
}
