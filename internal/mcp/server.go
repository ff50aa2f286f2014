package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/itrack/internal/models"
	"github.com/joescharf/itrack/internal/service"
	"github.com/joescharf/itrack/internal/store"
)

// Server exposes the issue service as MCP tools.
type Server struct {
	svc     *service.IssueService
	version string
}

// NewServer creates the MCP server wrapper.
func NewServer(svc *service.IssueService, version string) *Server {
	if version == "" {
		version = "dev"
	}
	return &Server{svc: svc, version: version}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("itrack", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.listIssuesTool())
	srv.AddTool(s.getIssueTool())
	srv.AddTool(s.createIssueTool())
	srv.AddTool(s.updateIssueTool())
	srv.AddTool(s.deleteIssueTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// itrack_list_issues
func (s *Server) listIssuesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("itrack_list_issues",
		mcp.WithDescription("Search, filter, sort and page through issues. Returns a JSON object with issues, total, page and pageSize."),
		mcp.WithString("search", mcp.Description("Case-insensitive substring of the title")),
		mcp.WithString("status", mcp.Description("Status filter: open, in-progress, closed")),
		mcp.WithString("priority", mcp.Description("Priority filter: low, medium, high")),
		mcp.WithString("assignee", mcp.Description("Case-insensitive substring of the assignee")),
		mcp.WithString("sort_by", mcp.Description("Sort field: "+strings.Join(store.SortKeys(), ", ")+" (default: updatedAt)")),
		mcp.WithString("order", mcp.Description("Sort order: asc or desc (default: desc)")),
		mcp.WithNumber("page", mcp.Description("1-based page number (default: 1)")),
		mcp.WithNumber("page_size", mcp.Description("Issues per page (default: 10)")),
	)
	return tool, s.handleListIssues
}

func (s *Server) handleListIssues(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	c := models.ListCriteria{
		Search:   request.GetString("search", ""),
		Status:   models.IssueStatus(request.GetString("status", "")),
		Priority: models.IssuePriority(request.GetString("priority", "")),
		Assignee: request.GetString("assignee", ""),
		SortBy:   request.GetString("sort_by", ""),
		Order:    request.GetString("order", ""),
		Page:     request.GetInt("page", 1),
		PageSize: request.GetInt("page_size", 0),
	}

	page, err := s.svc.ListIssues(ctx, c)
	if err != nil {
		return toolError(ctx, "failed to list issues", err), nil
	}
	return jsonResult(page)
}

// itrack_get_issue
func (s *Server) getIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("itrack_get_issue",
		mcp.WithDescription("Get a single issue by id."),
		mcp.WithString("issue_id", mcp.Required(), mcp.Description("Issue ID")),
	)
	return tool, s.handleGetIssue
}

func (s *Server) handleGetIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	issueID, err := request.RequireString("issue_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: issue_id"), nil
	}

	issue, err := s.svc.GetIssue(ctx, issueID)
	if err != nil {
		return toolError(ctx, "failed to get issue", err), nil
	}
	return jsonResult(issue)
}

// itrack_create_issue
func (s *Server) createIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("itrack_create_issue",
		mcp.WithDescription("Create a new issue. Returns the created issue as JSON."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Issue title")),
		mcp.WithString("status", mcp.Description("Issue status: open, in-progress, closed (default: open)")),
		mcp.WithString("priority", mcp.Description("Issue priority: low, medium, high (default: medium)")),
		mcp.WithString("assignee", mcp.Description("Person the issue is assigned to")),
	)
	return tool, s.handleCreateIssue
}

func (s *Server) handleCreateIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := request.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: title"), nil
	}

	in := models.IssueInput{
		Title:    title,
		Status:   models.IssueStatus(request.GetString("status", "")),
		Priority: models.IssuePriority(request.GetString("priority", "")),
	}
	if a := request.GetString("assignee", ""); a != "" {
		in.Assignee = &a
	}

	issue, err := s.svc.CreateIssue(ctx, in)
	if err != nil {
		return toolError(ctx, "failed to create issue", err), nil
	}
	return jsonResult(issue)
}

// itrack_update_issue
func (s *Server) updateIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("itrack_update_issue",
		mcp.WithDescription("Update an existing issue. Only the fields provided are changed; an empty assignee unassigns the issue. Returns the updated issue as JSON."),
		mcp.WithString("issue_id", mcp.Required(), mcp.Description("Issue ID")),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("status", mcp.Description("New status: open, in-progress, closed")),
		mcp.WithString("priority", mcp.Description("New priority: low, medium, high")),
		mcp.WithString("assignee", mcp.Description("New assignee, empty to unassign")),
	)
	return tool, s.handleUpdateIssue
}

func (s *Server) handleUpdateIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	issueID, err := request.RequireString("issue_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: issue_id"), nil
	}

	args := request.GetArguments()
	var patch models.IssuePatch
	if _, ok := args["title"]; ok {
		patch.Title = models.Some(request.GetString("title", ""))
	}
	if _, ok := args["status"]; ok {
		patch.Status = models.Some(models.IssueStatus(request.GetString("status", "")))
	}
	if _, ok := args["priority"]; ok {
		patch.Priority = models.Some(models.IssuePriority(request.GetString("priority", "")))
	}
	if v, ok := args["assignee"]; ok {
		if v == nil {
			patch.Assignee = models.Null[string]()
		} else {
			patch.Assignee = models.Some(request.GetString("assignee", ""))
		}
	}

	if patch.Empty() {
		return mcp.NewToolResultError("no fields provided to update; specify at least one of: title, status, priority, assignee"), nil
	}

	issue, err := s.svc.UpdateIssue(ctx, issueID, patch)
	if err != nil {
		return toolError(ctx, "failed to update issue", err), nil
	}
	return jsonResult(issue)
}

// itrack_delete_issue
func (s *Server) deleteIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("itrack_delete_issue",
		mcp.WithDescription("Delete an issue permanently."),
		mcp.WithString("issue_id", mcp.Required(), mcp.Description("Issue ID")),
	)
	return tool, s.handleDeleteIssue
}

func (s *Server) handleDeleteIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	issueID, err := request.RequireString("issue_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: issue_id"), nil
	}

	if err := s.svc.DeleteIssue(ctx, issueID); err != nil {
		return toolError(ctx, "failed to delete issue", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted issue %s", issueID)), nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// toolError reports caller mistakes verbatim and logs internal causes.
func toolError(ctx context.Context, prefix string, err error) *mcp.CallToolResult {
	if !service.IsInternal(err) {
		return mcp.NewToolResultError(fmt.Sprintf("%s: %v", prefix, err))
	}
	slog.ErrorContext(ctx, prefix, "error", err)
	return mcp.NewToolResultError(prefix + ": internal error")
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
