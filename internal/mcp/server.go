package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/digest/internal/digest"
	"github.com/joescharf/digest/internal/models"
	"github.com/joescharf/digest/internal/projects"
	"github.com/joescharf/digest/internal/tracker"
)

// Server exposes the issue tracker, projects and digests as MCP tools.
type Server struct {
	tracker     *tracker.Tracker
	projects    *projects.Manager
	digests     *digest.Service
	defaultUser string
	version     string
}

// NewServer creates the MCP server wrapper. The digest service may be nil;
// defaultUser is used when a tool call omits "user".
func NewServer(t *tracker.Tracker, pm *projects.Manager, d *digest.Service, defaultUser, version string) *Server {
	if version == "" {
		version = "dev"
	}
	return &Server{tracker: t, projects: pm, digests: d, defaultUser: defaultUser, version: version}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("digest", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.listIssuesTool())
	srv.AddTool(s.getIssueTool())
	srv.AddTool(s.searchIssuesTool())
	srv.AddTool(s.issueStatsTool())
	srv.AddTool(s.updateIssueStatusTool())
	srv.AddTool(s.scanMessagesTool())
	srv.AddTool(s.listProjectsTool())
	if s.digests != nil {
		srv.AddTool(s.channelDigestTool())
	}
	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

func userArg() mcp.ToolOption {
	return mcp.WithString("user", mcp.Description("User whose data to read (defaults to the configured user)"))
}

func (s *Server) user(request mcp.CallToolRequest) (string, error) {
	if u := strings.TrimSpace(request.GetString("user", "")); u != "" {
		return u, nil
	}
	if s.defaultUser != "" {
		return s.defaultUser, nil
	}
	return "", errors.New("user is required (no default user configured)")
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

type issueOut struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Status      string   `json:"status"`
	Priority    string   `json:"priority"`
	Channel     string   `json:"channel"`
	Reporter    string   `json:"reporter"`
	Tags        []string `json:"tags"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
}

func toIssueOut(issues []*models.Issue) []issueOut {
	out := make([]issueOut, len(issues))
	for i, issue := range issues {
		out[i] = issueOut{
			ID:          issue.ID,
			Title:       issue.Title,
			Description: issue.Description,
			Status:      string(issue.Status),
			Priority:    string(issue.Priority),
			Channel:     issue.Channel,
			Reporter:    issue.Reporter,
			Tags:        issue.Tags,
			CreatedAt:   issue.CreatedAt.Format(time.RFC3339),
			UpdatedAt:   issue.UpdatedAt.Format(time.RFC3339),
		}
	}
	return out
}

// digest_list_issues
func (s *Server) listIssuesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("digest_list_issues",
		mcp.WithDescription("List tracked issues, ordered by status then priority. Returns a JSON array with id, title, description, status (open/investigating/resolved/closed), priority (critical/high/medium/low), channel, reporter and tags."),
		userArg(),
		mcp.WithString("status", mcp.Description("Status filter: open, investigating, resolved, closed")),
		mcp.WithString("priority", mcp.Description("Priority filter: critical, high, medium, low")),
		mcp.WithString("tag", mcp.Description("Only issues carrying this tag")),
		mcp.WithString("channel", mcp.Description("Only issues reported in this channel")),
	)
	return tool, s.handleListIssues
}

func (s *Server) handleListIssues(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	user, err := s.user(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	filter := models.IssueFilter{
		Status:   models.IssueStatus(request.GetString("status", "")),
		Priority: models.IssuePriority(request.GetString("priority", "")),
		Tag:      request.GetString("tag", ""),
		Channel:  strings.TrimPrefix(request.GetString("channel", ""), "#"),
	}
	issues, err := s.tracker.List(ctx, user, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list issues: %v", err)), nil
	}
	return jsonResult(toIssueOut(issues))
}

// digest_get_issue
func (s *Server) getIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("digest_get_issue",
		mcp.WithDescription("Get one issue with its original message, related messages and full status history. Accepts a unique ID prefix."),
		userArg(),
		mcp.WithString("id", mcp.Required(), mcp.Description("Issue ID or unique prefix")),
	)
	return tool, s.handleGetIssue
}

func (s *Server) handleGetIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	user, err := s.user(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id is required"), nil
	}
	issue, err := s.tracker.Get(ctx, user, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(issue)
}

// digest_search_issues
func (s *Server) searchIssuesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("digest_search_issues",
		mcp.WithDescription("Case-insensitive search over issue titles, descriptions and tags, most recently updated first."),
		userArg(),
		mcp.WithString("query", mcp.Required(), mcp.Description("Text to search for")),
	)
	return tool, s.handleSearchIssues
}

func (s *Server) handleSearchIssues(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	user, err := s.user(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query is required"), nil
	}
	issues, err := s.tracker.Search(ctx, user, query)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	return jsonResult(toIssueOut(issues))
}

// digest_issue_stats
func (s *Server) issueStatsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("digest_issue_stats",
		mcp.WithDescription("Issue counts by status and priority, plus the number updated in the last 24 hours."),
		userArg(),
	)
	return tool, s.handleIssueStats
}

func (s *Server) handleIssueStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	user, err := s.user(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	stats, err := s.tracker.Stats(ctx, user)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to compute stats: %v", err)), nil
	}
	return jsonResult(stats)
}

// digest_update_issue_status
func (s *Server) updateIssueStatusTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("digest_update_issue_status",
		mcp.WithDescription("Move an issue to a new status and append the change to its history. Returns the updated issue."),
		userArg(),
		mcp.WithString("id", mcp.Required(), mcp.Description("Issue ID or unique prefix")),
		mcp.WithString("status", mcp.Required(), mcp.Description("New status: open, investigating, resolved, closed")),
		mcp.WithString("actor", mcp.Description("Who made the change (defaults to the user)")),
	)
	return tool, s.handleUpdateIssueStatus
}

func (s *Server) handleUpdateIssueStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	user, err := s.user(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id is required"), nil
	}
	status, err := request.RequireString("status")
	if err != nil {
		return mcp.NewToolResultError("status is required"), nil
	}
	issue, err := s.tracker.Transition(ctx, user, id, models.IssueStatus(strings.ToLower(status)), request.GetString("actor", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to update issue: %v", err)), nil
	}
	return jsonResult(issue)
}

// digest_scan_messages
func (s *Server) scanMessagesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("digest_scan_messages",
		mcp.WithDescription("Classify chat messages and record each one that describes a technical problem as an open issue. Returns created issues, per-message errors and the number of messages that were not issues."),
		userArg(),
		mcp.WithArray("messages", mcp.Required(),
			mcp.Description("Messages to scan"),
			mcp.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"text":    map[string]any{"type": "string"},
					"channel": map[string]any{"type": "string"},
					"author":  map[string]any{"type": "string"},
				},
				"required": []string{"text", "channel", "author"},
			}),
		),
	)
	return tool, s.handleScanMessages
}

func (s *Server) handleScanMessages(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	user, err := s.user(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, ok := request.GetArguments()["messages"]
	if !ok {
		return mcp.NewToolResultError("messages is required"), nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid messages: %v", err)), nil
	}
	var msgs []models.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid messages: %v", err)), nil
	}

	res, err := s.tracker.Scan(ctx, user, msgs)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("scan failed: %v", err)), nil
	}

	type scanOut struct {
		Created []issueOut `json:"created"`
		Errors  []string   `json:"errors"`
		Skipped int        `json:"skipped"`
	}
	out := scanOut{Created: toIssueOut(res.Created), Errors: []string{}, Skipped: res.Skipped}
	for _, e := range res.Errors {
		out.Errors = append(out.Errors, e.Error())
	}
	return jsonResult(out)
}

// digest_list_projects
func (s *Server) listProjectsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("digest_list_projects",
		mcp.WithDescription("List digest projects with their channels, keywords and active flag."),
		userArg(),
	)
	return tool, s.handleListProjects
}

func (s *Server) handleListProjects(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	user, err := s.user(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	list, err := s.projects.List(ctx, user)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list projects: %v", err)), nil
	}
	if list == nil {
		list = []*models.Project{}
	}
	return jsonResult(list)
}

// digest_channel_digest
func (s *Server) channelDigestTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("digest_channel_digest",
		mcp.WithDescription("Summarize recent activity in one or more Slack channels, filtered by the user's keywords. Returns bullets with links and message counts."),
		userArg(),
		mcp.WithString("channels", mcp.Required(), mcp.Description("Comma-separated channel names")),
		mcp.WithNumber("hours", mcp.Description("Look-back window in hours, 1-168 (defaults to the user's setting)")),
	)
	return tool, s.handleChannelDigest
}

func (s *Server) handleChannelDigest(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	user, err := s.user(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	channels, err := request.RequireString("channels")
	if err != nil {
		return mcp.NewToolResultError("channels is required"), nil
	}
	res, err := s.digests.ChannelDigest(ctx, digest.Request{
		User:     user,
		Channels: strings.Split(channels, ","),
		Hours:    request.GetInt("hours", 0),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("digest failed: %v", err)), nil
	}
	return jsonResult(res)
}
