package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/digest/internal/digest"
	"github.com/joescharf/digest/internal/llm"
	"github.com/joescharf/digest/internal/models"
	"github.com/joescharf/digest/internal/projects"
	"github.com/joescharf/digest/internal/settings"
	"github.com/joescharf/digest/internal/store"
	"github.com/joescharf/digest/internal/tracker"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type testEnv struct {
	srv      *Server
	tracker  *tracker.Tracker
	projects *projects.Manager
}

type fakeHistory map[string][]models.Message

func (f fakeHistory) FetchMessages(_ context.Context, channel string, _ int) ([]models.Message, error) {
	return f[channel], nil
}

type fakeSummarizer struct{}

func (fakeSummarizer) Summarize(context.Context, llm.SummaryRequest) (*llm.Summary, error) {
	return &llm.Summary{Bullets: []llm.Bullet{{Text: "Board bring-up on track"}}}, nil
}

func newTestEnv(t *testing.T, withDigests bool) *testEnv {
	t.Helper()
	s, err := store.NewJSONStore(filepath.Join(t.TempDir(), "digest.json"))
	require.NoError(t, err)

	tr := tracker.New(s, nil)
	pm := projects.NewManager(s)
	var svc *digest.Service
	if withDigests {
		history := fakeHistory{"hardware": {{Text: "bring-up done", Channel: "hardware", Author: "ana"}}}
		svc = digest.NewService(history, fakeSummarizer{}, settings.NewManager(s), pm, tr, nil)
	}
	return &testEnv{srv: NewServer(tr, pm, svc, "U1", "test"), tracker: tr, projects: pm}
}

// callToolReq builds a CallToolRequest with the given tool name and arguments.
func callToolReq(name string, args map[string]any) mcpgo.CallToolRequest {
	return mcpgo.CallToolRequest{
		Params: mcpgo.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// resultText extracts the concatenated text from a CallToolResult.
func resultText(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()
	var b strings.Builder
	for _, c := range result.Content {
		tc, ok := c.(mcpgo.TextContent)
		if ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

// resultJSON parses the text result as JSON into the provided target.
func resultJSON(t *testing.T, result *mcpgo.CallToolResult, target any) {
	t.Helper()
	text := resultText(t, result)
	err := json.Unmarshal([]byte(text), target)
	require.NoError(t, err, "failed to parse result JSON: %s", text)
}

func (e *testEnv) seedIssue(t *testing.T, user, text string) *models.Issue {
	t.Helper()
	res, err := e.tracker.Scan(context.Background(), user, []models.Message{{Text: text, Channel: "hardware", Author: "ana"}})
	require.NoError(t, err)
	require.Len(t, res.Created, 1)
	return res.Created[0]
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestMCPServer_Tools(t *testing.T) {
	names := func(srv *mcpserver.MCPServer) []string {
		var out []string
		for name := range srv.ListTools() {
			out = append(out, name)
		}
		return out
	}

	base := names(newTestEnv(t, false).srv.MCPServer())
	assert.ElementsMatch(t, []string{
		"digest_list_issues", "digest_get_issue", "digest_search_issues", "digest_issue_stats",
		"digest_update_issue_status", "digest_scan_messages", "digest_list_projects",
	}, base)

	full := names(newTestEnv(t, true).srv.MCPServer())
	assert.Contains(t, full, "digest_channel_digest")
}

func TestListIssues(t *testing.T) {
	env := newTestEnv(t, false)
	env.seedIssue(t, "U1", "Critical PCB thermal failure")
	env.seedIssue(t, "U1", "minor typo bug in the docs")
	env.seedIssue(t, "U2", "other user crash")

	result, err := env.srv.handleListIssues(context.Background(), callToolReq("digest_list_issues", nil))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	var issues []issueOut
	resultJSON(t, result, &issues)
	require.Len(t, issues, 2)
	assert.Equal(t, "critical", issues[0].Priority)
	assert.Equal(t, "low", issues[1].Priority)

	result, err = env.srv.handleListIssues(context.Background(), callToolReq("digest_list_issues", map[string]any{
		"user": "U2",
	}))
	require.NoError(t, err)
	resultJSON(t, result, &issues)
	assert.Len(t, issues, 1)

	result, err = env.srv.handleListIssues(context.Background(), callToolReq("digest_list_issues", map[string]any{
		"priority": "critical",
	}))
	require.NoError(t, err)
	resultJSON(t, result, &issues)
	assert.Len(t, issues, 1)

	result, err = env.srv.handleListIssues(context.Background(), callToolReq("digest_list_issues", map[string]any{
		"status": "sideways",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestNoDefaultUser(t *testing.T) {
	env := newTestEnv(t, false)
	srv := NewServer(env.tracker, env.projects, nil, "", "")
	result, err := srv.handleIssueStats(context.Background(), callToolReq("digest_issue_stats", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "user is required")
}

func TestGetAndUpdateIssue(t *testing.T) {
	env := newTestEnv(t, false)
	issue := env.seedIssue(t, "U1", "motor controller failure on bench")
	ctx := context.Background()

	result, err := env.srv.handleGetIssue(ctx, callToolReq("digest_get_issue", map[string]any{"id": issue.ID}))
	require.NoError(t, err)
	var got models.Issue
	resultJSON(t, result, &got)
	assert.Equal(t, issue.ID, got.ID)

	result, err = env.srv.handleUpdateIssueStatus(ctx, callToolReq("digest_update_issue_status", map[string]any{
		"id": issue.ID, "status": "Resolved", "actor": "bo",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))
	resultJSON(t, result, &got)
	assert.Equal(t, models.IssueStatusResolved, got.Status)
	require.Len(t, got.StatusHistory, 2)
	assert.Equal(t, "bo", got.StatusHistory[1].Actor)

	result, err = env.srv.handleUpdateIssueStatus(ctx, callToolReq("digest_update_issue_status", map[string]any{
		"id": "NOPE", "status": "closed",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = env.srv.handleGetIssue(ctx, callToolReq("digest_get_issue", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestSearchAndStats(t *testing.T) {
	env := newTestEnv(t, false)
	env.seedIssue(t, "U1", "thermal failure on rev B")
	ctx := context.Background()

	result, err := env.srv.handleSearchIssues(ctx, callToolReq("digest_search_issues", map[string]any{"query": "THERMAL"}))
	require.NoError(t, err)
	var issues []issueOut
	resultJSON(t, result, &issues)
	assert.Len(t, issues, 1)

	result, err = env.srv.handleSearchIssues(ctx, callToolReq("digest_search_issues", map[string]any{"query": "  "}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = env.srv.handleIssueStats(ctx, callToolReq("digest_issue_stats", nil))
	require.NoError(t, err)
	var stats models.IssueStats
	resultJSON(t, result, &stats)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.ByStatus[models.IssueStatusOpen])
	assert.Equal(t, 0, stats.ByStatus[models.IssueStatusClosed])
}

func TestScanMessages(t *testing.T) {
	env := newTestEnv(t, false)

	result, err := env.srv.handleScanMessages(context.Background(), callToolReq("digest_scan_messages", map[string]any{
		"messages": []any{
			map[string]any{"text": "urgent: firmware bug bricks the board", "channel": "firmware", "author": "ana"},
			map[string]any{"text": "", "channel": "firmware", "author": "ana"},
			map[string]any{"text": "good morning", "channel": "general", "author": "bo"},
		},
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	var out struct {
		Created []issueOut `json:"created"`
		Errors  []string   `json:"errors"`
		Skipped int        `json:"skipped"`
	}
	resultJSON(t, result, &out)
	require.Len(t, out.Created, 1)
	assert.Equal(t, "critical", out.Created[0].Priority)
	assert.Len(t, out.Errors, 1)
	assert.Equal(t, 1, out.Skipped)

	result, err = env.srv.handleScanMessages(context.Background(), callToolReq("digest_scan_messages", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestListProjects(t *testing.T) {
	env := newTestEnv(t, false)
	_, err := env.projects.Create(context.Background(), "U1", "rover", []string{"hardware"}, nil)
	require.NoError(t, err)

	result, err := env.srv.handleListProjects(context.Background(), callToolReq("digest_list_projects", nil))
	require.NoError(t, err)
	var list []models.Project
	resultJSON(t, result, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "rover", list[0].Name)
}

func TestChannelDigest(t *testing.T) {
	env := newTestEnv(t, true)
	result, err := env.srv.handleChannelDigest(context.Background(), callToolReq("digest_channel_digest", map[string]any{
		"channels": "hardware", "hours": float64(6),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	var res map[string]any
	resultJSON(t, result, &res)
	assert.EqualValues(t, 6, res["hours"])
	assert.Contains(t, resultText(t, result), "Board bring-up on track")
}
