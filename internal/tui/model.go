// Package tui renders the workforce dashboard: the work-item board, today's
// attendance, and overview counters, with optimistic mutations over the
// cache layer.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/key"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/habitaworks/habita/internal/adapters/server/common"
	"github.com/habitaworks/habita/internal/app"
	"github.com/habitaworks/habita/internal/cache"
	"github.com/habitaworks/habita/internal/domain"
	"github.com/habitaworks/habita/internal/schedule"
)

// statusFilters is the tab-cycled board filter order; empty means all.
var statusFilters = []domain.Status{
	"",
	domain.StatusPending,
	domain.StatusInProgress,
	domain.StatusCompleted,
}

// loadedMsg carries message data through update handling.
type loadedMsg struct {
	items      []domain.WorkItem
	counters   app.DashboardCounters
	attendance *domain.AttendanceRecord
	err        error
}

// actionMsg carries message data through update handling.
type actionMsg struct {
	err         error
	status      string
	reload      bool
	openSession bool
}

// Model represents model data used by this package.
type Model struct {
	svc   common.Service
	store *cache.Store

	workerID      string
	showCancelled bool

	ready  bool
	width  int
	height int
	err    error

	status string

	help help.Model
	keys keyMap

	items      []domain.WorkItem
	counters   app.DashboardCounters
	attendance *domain.AttendanceRecord

	selected           int
	filterIdx          int
	attendanceExpanded bool
}

// NewModel constructs the dashboard model and registers its cached views.
func NewModel(svc common.Service, store *cache.Store, opts ...Option) Model {
	h := help.New()
	h.ShowAll = false
	m := Model{
		svc:                svc,
		store:              store,
		status:             "loading...",
		help:               h,
		keys:               newKeyMap(),
		attendanceExpanded: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&m)
		}
	}

	store.Register(cache.EntryAdminWorkItems, func(ctx context.Context) (any, error) {
		return svc.ListWorkItems(ctx, app.WorkItemFilter{})
	})
	store.Register(cache.EntryWorkerWorkItems, func(ctx context.Context) (any, error) {
		return svc.ListWorkItems(ctx, app.WorkItemFilter{AssignedTo: m.workerID})
	})
	store.Register(cache.EntryDashboard, func(ctx context.Context) (any, error) {
		return svc.Dashboard(ctx)
	})
	store.Register(cache.EntryTodayAttendance, func(ctx context.Context) (any, error) {
		if m.workerID == "" {
			return (*domain.AttendanceRecord)(nil), nil
		}
		return svc.TodayAttendance(ctx, m.workerID)
	})
	store.Register(cache.EntryWorkerRoster, func(ctx context.Context) (any, error) {
		return svc.ListWorkers(ctx)
	})
	return m
}

// Init handles init.
func (m Model) Init() tea.Cmd {
	return m.loadData
}

// Update updates state for the requested operation.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.items = msg.items
		m.counters = msg.counters
		m.attendance = msg.attendance
		m.status = "ready"
		m.clampSelection()
		return m, nil

	case actionMsg:
		if msg.err != nil {
			m.status = "error: " + msg.err.Error()
			if msg.openSession {
				m.status = "a session is already open — press S to close it"
			}
			if domain.IsTransport(msg.err) {
				m.status = "offline: change reverted (" + msg.err.Error() + ")"
			}
			return m, nil
		}
		if msg.status != "" {
			m.status = msg.status
		}
		if msg.reload {
			return m, m.loadData
		}
		return m, nil

	case tea.KeyPressMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		m.store.Close()
		return m, tea.Quit
	case key.Matches(msg, m.keys.toggleHelp):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.reload):
		m.status = "reloading..."
		m.invalidateAll()
		return m, m.loadData
	case key.Matches(msg, m.keys.moveUp):
		m.selected--
		m.clampSelection()
		return m, nil
	case key.Matches(msg, m.keys.moveDown):
		m.selected++
		m.clampSelection()
		return m, nil
	case key.Matches(msg, m.keys.cycleFilter):
		m.filterIdx = (m.filterIdx + 1) % len(statusFilters)
		m.selected = 0
		return m, nil
	case key.Matches(msg, m.keys.startItem):
		return m.changeStatus(domain.StatusInProgress)
	case key.Matches(msg, m.keys.completeItm):
		return m.changeStatus(domain.StatusCompleted)
	case key.Matches(msg, m.keys.cancelItem):
		return m.changeStatus(domain.StatusCancelled)
	case key.Matches(msg, m.keys.checkIn):
		return m.checkIn()
	case key.Matches(msg, m.keys.checkOut):
		return m.checkOut()
	case key.Matches(msg, m.keys.closeStale):
		return m.closeStale()
	case key.Matches(msg, m.keys.attendance):
		m.attendanceExpanded = !m.attendanceExpanded
		return m, nil
	}
	return m, nil
}

// changeStatus applies the transition optimistically: the board shows the
// moved item before the server confirms, and snaps back if the send fails.
func (m Model) changeStatus(target domain.Status) (tea.Model, tea.Cmd) {
	item, ok := m.selectedItem()
	if !ok {
		m.status = "no item selected"
		return m, nil
	}
	provisional := item
	now := time.Now()
	var err error
	switch target {
	case domain.StatusInProgress:
		err = provisional.Start(now)
	case domain.StatusCompleted:
		err = provisional.Complete(now)
	case domain.StatusCancelled:
		err = provisional.Cancel(now)
	}
	if err != nil {
		m.status = err.Error()
		return m, nil
	}
	m.status = fmt.Sprintf("%s → %s", item.Title, target)

	svc, store := m.svc, m.store
	cmd := func() tea.Msg {
		_, err := cache.Run(context.Background(), store, cache.Mutation[domain.WorkItem]{
			Entries:     []cache.EntryID{cache.EntryAdminWorkItems, cache.EntryWorkerWorkItems},
			Groups:      []cache.Group{cache.GroupTaskUpdate},
			Provisional: provisional,
			Apply:       mergeItem,
			Send: func(ctx context.Context) (domain.WorkItem, error) {
				return svc.ChangeStatus(ctx, item.ID, target)
			},
		})
		if err != nil {
			return actionMsg{err: err, reload: true}
		}
		return actionMsg{reload: true}
	}
	return m, cmd
}

// checkIn opens today's session. The attendance panel collapses on the
// optimistic write, before the server replies.
func (m Model) checkIn() (tea.Model, tea.Cmd) {
	if m.workerID == "" {
		m.status = "set client.worker_id to use attendance"
		return m, nil
	}
	provisional, err := domain.NewAttendanceCheckIn(m.workerID, time.Now())
	if err != nil {
		m.status = err.Error()
		return m, nil
	}
	m.attendanceExpanded = false
	m.status = "checked in"

	svc, store, workerID := m.svc, m.store, m.workerID
	cmd := func() tea.Msg {
		_, err := cache.Run(context.Background(), store, cache.Mutation[*domain.AttendanceRecord]{
			Entries:     []cache.EntryID{cache.EntryTodayAttendance},
			Groups:      []cache.Group{cache.GroupAttendanceChange},
			Provisional: &provisional,
			Send: func(ctx context.Context) (*domain.AttendanceRecord, error) {
				rec, err := svc.CheckIn(ctx, workerID)
				if err != nil {
					return nil, err
				}
				return &rec, nil
			},
		})
		if err != nil {
			return actionMsg{err: err, openSession: domain.IsOpenSessionConflict(err), reload: true}
		}
		return actionMsg{reload: true}
	}
	return m, cmd
}

func (m Model) checkOut() (tea.Model, tea.Cmd) {
	if m.workerID == "" {
		m.status = "set client.worker_id to use attendance"
		return m, nil
	}
	var provisional *domain.AttendanceRecord
	if m.attendance != nil {
		copied := *m.attendance
		if err := copied.Close(time.Now()); err != nil {
			m.status = err.Error()
			return m, nil
		}
		provisional = &copied
	}
	m.status = "checked out"

	svc, store, workerID := m.svc, m.store, m.workerID
	cmd := func() tea.Msg {
		_, err := cache.Run(context.Background(), store, cache.Mutation[*domain.AttendanceRecord]{
			Entries:     []cache.EntryID{cache.EntryTodayAttendance},
			Groups:      []cache.Group{cache.GroupAttendanceChange},
			Provisional: provisional,
			Send: func(ctx context.Context) (*domain.AttendanceRecord, error) {
				rec, err := svc.CheckOut(ctx, workerID)
				if err != nil {
					return nil, err
				}
				return &rec, nil
			},
		})
		if err != nil {
			return actionMsg{err: err, reload: true}
		}
		return actionMsg{reload: true}
	}
	return m, cmd
}

// closeStale remediates an open-session conflict. On success the cached
// attendance is authoritatively empty; no refetch runs.
func (m Model) closeStale() (tea.Model, tea.Cmd) {
	if m.workerID == "" {
		m.status = "set client.worker_id to use attendance"
		return m, nil
	}
	m.status = "closing stale session..."
	svc, store, workerID := m.svc, m.store, m.workerID
	cmd := func() tea.Msg {
		_, err := cache.Run(context.Background(), store, cache.Mutation[*domain.AttendanceRecord]{
			Entries:     []cache.EntryID{cache.EntryTodayAttendance},
			Provisional: nil,
			Send: func(ctx context.Context) (*domain.AttendanceRecord, error) {
				if err := svc.CloseStaleAttendance(ctx, workerID); err != nil {
					return nil, err
				}
				return nil, nil
			},
		})
		if err != nil {
			return actionMsg{err: err}
		}
		return actionMsg{status: "stale session closed — check in again", reload: true}
	}
	return m, cmd
}

// loadData reads the cached views, refreshing stale ones first. It waits out
// background invalidations so a reload after a commit sees fresh data.
func (m Model) loadData() tea.Msg {
	ctx := context.Background()
	m.store.WaitInflight()

	items, err := ensure[[]domain.WorkItem](ctx, m.store, cache.EntryAdminWorkItems)
	if err != nil {
		return loadedMsg{err: err}
	}
	counters, err := ensure[app.DashboardCounters](ctx, m.store, cache.EntryDashboard)
	if err != nil {
		return loadedMsg{err: err}
	}
	attendance, err := ensure[*domain.AttendanceRecord](ctx, m.store, cache.EntryTodayAttendance)
	if err != nil {
		return loadedMsg{err: err}
	}
	return loadedMsg{items: items, counters: counters, attendance: attendance}
}

// ensure returns the entry's value, fetching only when stale.
func ensure[T any](ctx context.Context, store *cache.Store, id cache.EntryID) (T, error) {
	var zero T
	if !store.Fresh(id) {
		if err := store.RefreshNow(ctx, id); err != nil {
			return zero, err
		}
	}
	raw, ok := store.Get(id)
	if !ok || raw == nil {
		return zero, nil
	}
	value, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("cache entry %s holds %T", id, raw)
	}
	return value, nil
}

func (m *Model) invalidateAll() {
	go func(store *cache.Store) {
		store.Invalidate(context.Background(),
			cache.GroupTaskMutation, cache.GroupAttendanceChange, cache.GroupRosterChange)
	}(m.store)
}

// mergeItem replaces the mutated item inside a cached work-item list.
func mergeItem(prev any, ok bool, value domain.WorkItem) any {
	items, isList := prev.([]domain.WorkItem)
	if !ok || !isList {
		return []domain.WorkItem{value}
	}
	out := make([]domain.WorkItem, len(items))
	copy(out, items)
	for i := range out {
		if out[i].ID == value.ID {
			out[i] = value
			return out
		}
	}
	return append(out, value)
}

func (m Model) visibleItems() []domain.WorkItem {
	filter := statusFilters[m.filterIdx]
	out := make([]domain.WorkItem, 0, len(m.items))
	for _, item := range m.items {
		if !m.showCancelled && item.Status == domain.StatusCancelled && filter != domain.StatusCancelled {
			continue
		}
		if filter != "" && item.Status != filter {
			continue
		}
		out = append(out, item)
	}
	return out
}

func (m Model) selectedItem() (domain.WorkItem, bool) {
	visible := m.visibleItems()
	if len(visible) == 0 || m.selected < 0 || m.selected >= len(visible) {
		return domain.WorkItem{}, false
	}
	return visible[m.selected], true
}

func (m *Model) clampSelection() {
	visible := len(m.visibleItems())
	if visible == 0 {
		m.selected = 0
		return
	}
	if m.selected < 0 {
		m.selected = 0
	}
	if m.selected >= visible {
		m.selected = visible - 1
	}
}

// View renders the dashboard.
func (m Model) View() tea.View {
	if m.err != nil {
		v := tea.NewView("error: " + m.err.Error() + "\n\npress r to retry • q quit\n")
		v.AltScreen = true
		return v
	}
	if !m.ready {
		v := tea.NewView("loading...")
		v.AltScreen = true
		return v
	}

	accent := lipgloss.Color("62")
	muted := lipgloss.Color("241")
	dim := lipgloss.Color("239")
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	selectedStyle := lipgloss.NewStyle().Bold(true).Foreground(accent)
	mutedStyle := lipgloss.NewStyle().Foreground(muted)
	statusStyle := lipgloss.NewStyle().Foreground(dim)

	var b strings.Builder
	b.WriteString(titleStyle.Render("habita"))
	b.WriteString("  ")
	b.WriteString(mutedStyle.Render(fmt.Sprintf(
		"pending %d • in progress %d • completed %d • workers %d",
		m.counters.Pending, m.counters.InProgress, m.counters.Completed, m.counters.Workers)))
	b.WriteString("\n\n")

	filter := statusFilters[m.filterIdx]
	filterLabel := "all"
	if filter != "" {
		filterLabel = string(filter)
	}
	b.WriteString(mutedStyle.Render("items • " + filterLabel))
	b.WriteString("\n")

	visible := m.visibleItems()
	if len(visible) == 0 {
		b.WriteString(statusStyle.Render("  nothing here"))
		b.WriteString("\n")
	}
	for i, item := range visible {
		line := fmt.Sprintf("%-12s %s", badge(item), item.Title)
		if i == m.selected {
			b.WriteString(selectedStyle.Render("> " + line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.renderAttendance(mutedStyle, statusStyle))
	b.WriteString("\n")

	helpBubble := m.help
	helpBubble.SetWidth(max(0, m.width-2))
	b.WriteString(statusStyle.Render(m.status))
	b.WriteString("\n")
	b.WriteString(helpBubble.View(m.keys))

	v := tea.NewView(b.String())
	v.AltScreen = true
	return v
}

func (m Model) renderAttendance(mutedStyle, statusStyle lipgloss.Style) string {
	if !m.attendanceExpanded {
		return statusStyle.Render(attendanceSummary(m.attendance))
	}
	var b strings.Builder
	b.WriteString(mutedStyle.Render("attendance"))
	b.WriteString("\n")
	switch {
	case m.workerID == "":
		b.WriteString(statusStyle.Render("  no worker configured"))
	case m.attendance == nil:
		b.WriteString(statusStyle.Render("  not checked in today"))
	default:
		b.WriteString("  " + attendanceSummary(m.attendance))
	}
	return b.String()
}

func attendanceSummary(rec *domain.AttendanceRecord) string {
	if rec == nil {
		return "attendance: —"
	}
	if rec.Open() {
		return "attendance: on site since " + rec.CheckIn.Format("15:04")
	}
	if rec.CheckIn == nil || rec.CheckOut == nil {
		return "attendance: —"
	}
	worked := schedule.FormatDuration(rec.CheckOut.Sub(*rec.CheckIn))
	return "attendance: done, " + worked + " on site"
}

// badge renders the status cell, switching to the schedule classification
// once an item completes.
func badge(item domain.WorkItem) string {
	if item.Status == domain.StatusCompleted {
		return "[" + string(schedule.Classify(item)) + "]"
	}
	return "[" + string(item.Status) + "]"
}
