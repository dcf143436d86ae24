// Package mcpapi provides a stateless MCP streamable-HTTP adapter.
package mcpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/habitaworks/habita/internal/adapters/server/common"
	"github.com/habitaworks/habita/internal/app"
	"github.com/habitaworks/habita/internal/domain"
	"github.com/habitaworks/habita/internal/report"
	"github.com/habitaworks/habita/internal/stats"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// Config captures MCP transport configuration.
type Config struct {
	ServerName    string
	ServerVersion string
	EndpointPath  string
}

// Handler wraps one stateless MCP streamable HTTP handler.
type Handler struct {
	httpHandler http.Handler
}

// NewHandler builds one stateless MCP adapter exposing the workforce surface.
func NewHandler(cfg Config, svc common.Service) (*Handler, error) {
	if svc == nil {
		return nil, fmt.Errorf("service is required")
	}
	cfg = normalizeConfig(cfg)

	mcpSrv := mcpserver.NewMCPServer(
		cfg.ServerName,
		cfg.ServerVersion,
		mcpserver.WithToolCapabilities(false),
	)
	registerWorkItemTools(mcpSrv, svc)
	registerWorkforceTools(mcpSrv, svc)
	registerReportTools(mcpSrv, svc)

	streamable := mcpserver.NewStreamableHTTPServer(
		mcpSrv,
		mcpserver.WithEndpointPath(cfg.EndpointPath),
		mcpserver.WithStateLess(true),
	)
	return &Handler{httpHandler: streamable}, nil
}

// ServeHTTP handles one MCP streamable HTTP request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.httpHandler == nil {
		http.Error(w, "mcp handler unavailable", http.StatusServiceUnavailable)
		return
	}
	h.httpHandler.ServeHTTP(w, r)
}

// normalizeConfig applies deterministic defaults to MCP adapter config.
func normalizeConfig(cfg Config) Config {
	cfg.ServerName = strings.TrimSpace(cfg.ServerName)
	if cfg.ServerName == "" {
		cfg.ServerName = "habita"
	}
	cfg.ServerVersion = strings.TrimSpace(cfg.ServerVersion)
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "dev"
	}
	cfg.EndpointPath = strings.TrimSpace(cfg.EndpointPath)
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/mcp"
	}
	if !strings.HasPrefix(cfg.EndpointPath, "/") {
		cfg.EndpointPath = "/" + cfg.EndpointPath
	}
	cfg.EndpointPath = "/" + strings.Trim(cfg.EndpointPath, "/")
	return cfg
}

// registerWorkItemTools registers list/get/status work-item tools.
func registerWorkItemTools(srv *mcpserver.MCPServer, svc common.Service) {
	srv.AddTool(
		mcp.NewTool(
			"habita.list_work_items",
			mcp.WithDescription("List work items, optionally filtered by status or assigned worker."),
			mcp.WithString("status", mcp.Description("Lifecycle status filter"), mcp.Enum("pending", "in_progress", "completed", "cancelled")),
			mcp.WithString("assigned_to", mcp.Description("Worker identifier filter")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			filter := app.WorkItemFilter{
				Status:     domain.Status(req.GetString("status", "")),
				AssignedTo: req.GetString("assigned_to", ""),
			}
			if filter.Status != "" && !domain.IsValidStatus(filter.Status) {
				return mcp.NewToolResultError("unknown status filter"), nil
			}
			items, err := svc.ListWorkItems(ctx, filter)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(common.WorkItemList{Items: common.FromWorkItems(items)})
			if err != nil {
				return nil, fmt.Errorf("encode list_work_items result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"habita.get_work_item",
			mcp.WithDescription("Return one work item with its schedule classification, subtasks, and costs."),
			mcp.WithString("item_id", mcp.Required(), mcp.Description("Work item identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			itemID, err := req.RequireString("item_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			item, err := svc.GetWorkItem(ctx, itemID)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(common.FromWorkItem(item))
			if err != nil {
				return nil, fmt.Errorf("encode get_work_item result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"habita.change_status",
			mcp.WithDescription("Apply a lifecycle transition to one work item."),
			mcp.WithString("item_id", mcp.Required(), mcp.Description("Work item identifier")),
			mcp.WithString("status", mcp.Required(), mcp.Description("Target status"), mcp.Enum("in_progress", "completed", "cancelled")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			itemID, err := req.RequireString("item_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			status, err := req.RequireString("status")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			item, err := svc.ChangeStatus(ctx, itemID, domain.Status(status))
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(common.FromWorkItem(item))
			if err != nil {
				return nil, fmt.Errorf("encode change_status result: %w", err)
			}
			return result, nil
		},
	)
}

// registerWorkforceTools registers roster and efficiency summary tools.
func registerWorkforceTools(srv *mcpserver.MCPServer, svc common.Service) {
	srv.AddTool(
		mcp.NewTool(
			"habita.list_workers",
			mcp.WithDescription("List the workforce roster."),
		),
		func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			workers, err := svc.ListWorkers(ctx)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(common.WorkerList{Workers: common.FromWorkers(workers)})
			if err != nil {
				return nil, fmt.Errorf("encode list_workers result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"habita.workforce_summary",
			mcp.WithDescription("Return aggregate schedule-adherence statistics over all work items, optionally scoped to one worker."),
			mcp.WithString("assigned_to", mcp.Description("Worker identifier filter")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			items, err := svc.ListWorkItems(ctx, app.WorkItemFilter{
				AssignedTo: req.GetString("assigned_to", ""),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(stats.Aggregate(items))
			if err != nil {
				return nil, fmt.Errorf("encode workforce_summary result: %w", err)
			}
			return result, nil
		},
	)
}

// registerReportTools registers the monthly report tool.
func registerReportTools(srv *mcpserver.MCPServer, svc common.Service) {
	srv.AddTool(
		mcp.NewTool(
			"habita.monthly_report",
			mcp.WithDescription("Build the monthly workforce report with per-worker and per-category breakdowns."),
			mcp.WithNumber("month", mcp.Required(), mcp.Description("Calendar month, 1-12")),
			mcp.WithNumber("year", mcp.Required(), mcp.Description("Four-digit year")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			month, err := req.RequireInt("month")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			year, err := req.RequireInt("year")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			monthly, err := svc.MonthlyReport(ctx, month, year)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(monthly)
			if err != nil {
				return nil, fmt.Errorf("encode monthly_report result: %w", err)
			}
			return result, nil
		},
	)
}

// toolResultFromError converts service failures into MCP tool errors.
func toolResultFromError(err error) *mcp.CallToolResult {
	if err == nil {
		return mcp.NewToolResultError("unknown error")
	}
	if conflict, ok := domain.AsConflict(err); ok {
		return mcp.NewToolResultError(fmt.Sprintf("[%s] %s", conflict.Code, conflict.Message))
	}
	if errors.Is(err, app.ErrNotFound) {
		return mcp.NewToolResultError("not found: " + err.Error())
	}
	var genErr *report.GenerationError
	if errors.As(err, &genErr) {
		return mcp.NewToolResultError(genErr.Error())
	}
	return mcp.NewToolResultError(err.Error())
}
