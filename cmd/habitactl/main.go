// habitactl is the scripting companion to the habita dashboard: roster and
// work-item management, attendance actions, and rendered monthly reports,
// against either the local database or a running server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/google/uuid"
	"github.com/habitaworks/habita/internal/adapters/server/common"
	"github.com/habitaworks/habita/internal/adapters/storage/sqlite"
	"github.com/habitaworks/habita/internal/app"
	"github.com/habitaworks/habita/internal/client"
	"github.com/habitaworks/habita/internal/config"
	"github.com/habitaworks/habita/internal/domain"
	"github.com/habitaworks/habita/internal/platform"
	"github.com/habitaworks/habita/internal/schedule"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := fang.Execute(ctx, newRootCmd(), fang.WithVersion(version)); err != nil {
		os.Exit(1)
	}
}

// cliState carries flag values and the lazily resolved service.
type cliState struct {
	configPath string
	dbPath     string
	remoteURL  string
	workerID   string
	asJSON     bool

	cfg     config.Config
	svc     common.Service
	cleanup func()
}

func newRootCmd() *cobra.Command {
	state := &cliState{}
	root := &cobra.Command{
		Use:           "habitactl",
		Short:         "Manage the condominium workforce from the command line",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return state.connect()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if state.cleanup != nil {
				state.cleanup()
			}
		},
	}
	root.PersistentFlags().StringVar(&state.configPath, "config", "", "path to config TOML")
	root.PersistentFlags().StringVar(&state.dbPath, "db", "", "path to sqlite database")
	root.PersistentFlags().StringVar(&state.remoteURL, "remote", "", "remote API base URL")
	root.PersistentFlags().StringVar(&state.workerID, "worker", "", "acting worker id")
	root.PersistentFlags().BoolVar(&state.asJSON, "json", false, "emit raw JSON instead of rendered output")

	root.AddCommand(
		newItemsCmd(state),
		newWorkersCmd(state),
		newStatusCmd(state),
		newCheckInCmd(state),
		newCheckOutCmd(state),
		newCloseStaleCmd(state),
		newReportCmd(state),
	)
	return root
}

// connect resolves config and backs the CLI with either the embedded store
// or a remote server, mirroring the dashboard's selection logic.
func (s *cliState) connect() error {
	paths, err := platform.DefaultPaths()
	if err != nil {
		return err
	}
	configPath := s.configPath
	if configPath == "" {
		if envPath := strings.TrimSpace(os.Getenv("HABITA_CONFIG")); envPath != "" {
			configPath = envPath
		} else {
			configPath = paths.ConfigPath
		}
	}
	dbPath := strings.TrimSpace(s.dbPath)
	dbOverridden := dbPath != ""
	if !dbOverridden {
		dbPath = paths.DBPath
	}

	cfg, err := config.Load(configPath, config.Default(dbPath))
	if err != nil {
		return fmt.Errorf("load config %q: %w", configPath, err)
	}
	if dbOverridden {
		cfg.Database.Path = dbPath
	}
	if strings.TrimSpace(s.remoteURL) != "" {
		cfg.Client.RemoteURL = strings.TrimSpace(s.remoteURL)
	}
	if strings.TrimSpace(s.workerID) != "" {
		cfg.Client.WorkerID = strings.TrimSpace(s.workerID)
	}
	s.cfg = cfg

	if remote := strings.TrimSpace(cfg.Client.RemoteURL); remote != "" {
		remoteClient, err := client.New(remote)
		if err != nil {
			return fmt.Errorf("configure remote client: %w", err)
		}
		s.svc = remoteClient
		return nil
	}

	repo, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open sqlite repository: %w", err)
	}
	s.cleanup = func() { _ = repo.Close() }
	s.svc = app.NewService(repo, uuid.NewString, nil)
	return nil
}

// actingWorker returns the configured worker id or fails with guidance.
func (s *cliState) actingWorker() (string, error) {
	workerID := strings.TrimSpace(s.cfg.Client.WorkerID)
	if workerID == "" {
		return "", fmt.Errorf("no acting worker: pass --worker or set client.worker_id")
	}
	return workerID, nil
}

func newItemsCmd(state *cliState) *cobra.Command {
	items := &cobra.Command{Use: "items", Short: "Inspect and create work items"}

	var (
		filterStatus   string
		filterAssignee string
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List work items",
		RunE: func(cmd *cobra.Command, _ []string) error {
			found, err := state.svc.ListWorkItems(cmd.Context(), app.WorkItemFilter{
				Status:     domain.Status(strings.TrimSpace(filterStatus)),
				AssignedTo: strings.TrimSpace(filterAssignee),
			})
			if err != nil {
				return err
			}
			if state.asJSON {
				return emitJSON(cmd, found)
			}
			for _, item := range found {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-12s  %s\n", item.ID, itemBadge(item), item.Title)
			}
			return nil
		},
	}
	list.Flags().StringVar(&filterStatus, "status", "", "filter by status (pending|in_progress|completed|cancelled)")
	list.Flags().StringVar(&filterAssignee, "assignee", "", "filter by assigned worker id")

	var (
		title       string
		description string
		category    string
		priority    string
		startAt     string
		endAt       string
		assignees   []string
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Schedule a new work item",
		RunE: func(cmd *cobra.Command, _ []string) error {
			start, err := parseWhen(startAt)
			if err != nil {
				return fmt.Errorf("parse --start: %w", err)
			}
			end, err := parseWhen(endAt)
			if err != nil {
				return fmt.Errorf("parse --end: %w", err)
			}
			item, err := state.svc.CreateWorkItem(cmd.Context(), app.CreateWorkItemInput{
				Title:             title,
				Description:       description,
				Category:          category,
				Priority:          domain.Priority(priority),
				ScheduledStart:    start,
				ScheduledEnd:      end,
				AssignedWorkerIDs: assignees,
			})
			if err != nil {
				return err
			}
			if state.asJSON {
				return emitJSON(cmd, item)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s  %s\n", item.ID, item.Title)
			return nil
		},
	}
	create.Flags().StringVar(&title, "title", "", "work item title")
	create.Flags().StringVar(&description, "description", "", "work item description")
	create.Flags().StringVar(&category, "category", "", "cost/report category")
	create.Flags().StringVar(&priority, "priority", "", "priority (low|medium|high|urgent)")
	create.Flags().StringVar(&startAt, "start", "", "scheduled start (RFC3339 or 2006-01-02T15:04)")
	create.Flags().StringVar(&endAt, "end", "", "scheduled end (RFC3339 or 2006-01-02T15:04)")
	create.Flags().StringSliceVar(&assignees, "assign", nil, "assigned worker id (repeatable)")
	_ = create.MarkFlagRequired("title")
	_ = create.MarkFlagRequired("start")
	_ = create.MarkFlagRequired("end")

	items.AddCommand(list, create)
	return items
}

func newWorkersCmd(state *cliState) *cobra.Command {
	workers := &cobra.Command{Use: "workers", Short: "Manage the workforce roster"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List workers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			roster, err := state.svc.ListWorkers(cmd.Context())
			if err != nil {
				return err
			}
			if state.asJSON {
				return emitJSON(cmd, roster)
			}
			for _, w := range roster {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-8s  %s\n", w.ID, w.Role, w.Name)
			}
			return nil
		},
	}

	var role string
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a worker to the roster",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := state.svc.CreateWorker(cmd.Context(), args[0], domain.Role(role))
			if err != nil {
				return err
			}
			if state.asJSON {
				return emitJSON(cmd, w)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s  %s (%s)\n", w.ID, w.Name, w.Role)
			return nil
		},
	}
	add.Flags().StringVar(&role, "role", string(domain.RoleWorker), "role (admin|worker)")

	workers.AddCommand(list, add)
	return workers
}

func newStatusCmd(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "status <item-id> <pending|in_progress|completed|cancelled>",
		Short: "Change a work item's status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			item, err := state.svc.ChangeStatus(cmd.Context(), args[0], domain.Status(args[1]))
			if err != nil {
				return err
			}
			if state.asJSON {
				return emitJSON(cmd, item)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", item.ID, itemBadge(item))
			return nil
		},
	}
}

func newCheckInCmd(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "checkin",
		Short: "Open today's attendance session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			workerID, err := state.actingWorker()
			if err != nil {
				return err
			}
			rec, err := state.svc.CheckIn(cmd.Context(), workerID)
			if domain.IsOpenSessionConflict(err) {
				return fmt.Errorf("%w\nrun `habitactl close-stale` first", err)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "checked in at %s\n", rec.CheckIn.Local().Format("15:04"))
			return nil
		},
	}
}

func newCheckOutCmd(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "checkout",
		Short: "Close today's attendance session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			workerID, err := state.actingWorker()
			if err != nil {
				return err
			}
			rec, err := state.svc.CheckOut(cmd.Context(), workerID)
			if err != nil {
				return err
			}
			worked := schedule.FormatDuration(rec.CheckOut.Sub(*rec.CheckIn))
			fmt.Fprintf(cmd.OutOrStdout(), "checked out, %s on site\n", worked)
			return nil
		},
	}
}

func newCloseStaleCmd(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "close-stale",
		Short: "Close a stale attendance session left open on a previous day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			workerID, err := state.actingWorker()
			if err != nil {
				return err
			}
			if err := state.svc.CloseStaleAttendance(cmd.Context(), workerID); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "stale session closed")
			return nil
		},
	}
}

func newReportCmd(state *cliState) *cobra.Command {
	var wrapWidth int
	report := &cobra.Command{
		Use:   "report <month> <year>",
		Short: "Render the monthly workforce report",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			month, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("parse month %q: %w", args[0], err)
			}
			year, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("parse year %q: %w", args[1], err)
			}
			monthly, err := state.svc.MonthlyReport(cmd.Context(), month, year)
			if err != nil {
				return err
			}
			if state.asJSON {
				return emitJSON(cmd, monthly)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderReport(monthly, wrapWidth))
			return nil
		},
	}
	report.Flags().IntVar(&wrapWidth, "width", 80, "wrap width for rendered output")
	return report
}

// itemBadge shows the status, upgraded to the schedule classification once
// the item completes.
func itemBadge(item domain.WorkItem) string {
	if item.Status == domain.StatusCompleted {
		return "[" + string(schedule.Classify(item)) + "]"
	}
	return "[" + string(item.Status) + "]"
}

// parseWhen accepts RFC3339 or a local minute-precision form.
func parseWhen(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02T15:04", raw, time.Local)
}

func emitJSON(cmd *cobra.Command, v any) error {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
	return nil
}
