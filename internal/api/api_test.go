package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/digest/internal/chat"
	"github.com/joescharf/digest/internal/digest"
	"github.com/joescharf/digest/internal/llm"
	"github.com/joescharf/digest/internal/models"
	"github.com/joescharf/digest/internal/projects"
	"github.com/joescharf/digest/internal/settings"
	"github.com/joescharf/digest/internal/store"
	"github.com/joescharf/digest/internal/tracker"
)

type fakeHistory map[string][]models.Message

func (f fakeHistory) FetchMessages(_ context.Context, channel string, _ int) ([]models.Message, error) {
	msgs, ok := f[channel]
	if !ok {
		return nil, chat.ErrChannelNotFound
	}
	return msgs, nil
}

type fakeSummarizer struct{}

func (fakeSummarizer) Summarize(context.Context, llm.SummaryRequest) (*llm.Summary, error) {
	return &llm.Summary{Bullets: []llm.Bullet{{Text: "Thermal failure on rev B"}}}, nil
}

func setupTestServer(t *testing.T, withDigests bool) (http.Handler, *tracker.Tracker) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	tr := tracker.New(s, nil)
	pm := projects.NewManager(s)
	sm := settings.NewManager(s)
	var svc *digest.Service
	if withDigests {
		history := fakeHistory{"hardware": {
			{Text: "Critical PCB thermal failure on rev B", Channel: "hardware", Author: "ana"},
			{Text: "lunch?", Channel: "hardware", Author: "bo"},
		}}
		svc = digest.NewService(history, fakeSummarizer{}, sm, pm, tr, nil)
	}
	return NewServer(s, tr, pm, sm, svc).Router(), tr
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var buf *bytes.Buffer
	if body != "" {
		buf = bytes.NewBufferString(body)
	} else {
		buf = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, buf)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestHealthAndCORS(t *testing.T) {
	h, _ := setupTestServer(t, false)

	w := do(t, h, "GET", "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, false, decodeBody[map[string]any](t, w)["digests"])

	w = do(t, h, "OPTIONS", "/api/v1/users/U1/issues", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestListIssues_Empty(t *testing.T) {
	h, _ := setupTestServer(t, false)
	w := do(t, h, "GET", "/api/v1/users/U1/issues", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestScanAndIssueLifecycle(t *testing.T) {
	h, _ := setupTestServer(t, false)

	w := do(t, h, "POST", "/api/v1/users/U1/issues/scan", `{"messages":[
		{"text":"Critical PCB thermal failure blocking ship date","channel":"hardware","author":"U7"},
		{"text":"","channel":"hardware","author":"U7"},
		{"text":"lunch at noon","channel":"general","author":"U8"}
	]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	scan := decodeBody[scanResponse](t, w)
	require.Len(t, scan.Created, 1)
	require.Len(t, scan.Errors, 1)
	assert.Equal(t, 1, scan.Errors[0].Index)
	assert.Equal(t, 1, scan.Skipped)

	id := scan.Created[0].ID
	assert.Equal(t, models.IssuePriorityCritical, scan.Created[0].Priority)

	w = do(t, h, "GET", "/api/v1/users/U1/issues/"+id, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, "PUT", "/api/v1/users/U1/issues/"+id+"/status", `{"status":"investigating","actor":"ana"}`)
	require.Equal(t, http.StatusOK, w.Code)
	issue := decodeBody[models.Issue](t, w)
	assert.Equal(t, models.IssueStatusInvestigating, issue.Status)
	require.Len(t, issue.StatusHistory, 2)
	assert.Equal(t, "ana", issue.StatusHistory[1].Actor)

	w = do(t, h, "PUT", "/api/v1/users/U1/issues/"+id+"/status", `{"status":"sideways"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, "POST", "/api/v1/users/U1/issues/"+id+"/messages", `{"text":"replaced the regulator","channel":"hardware","author":"bo"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[models.Issue](t, w).RelatedMessages, 1)

	w = do(t, h, "GET", "/api/v1/users/U1/issues?status=investigating", "")
	assert.Len(t, decodeBody[[]models.Issue](t, w), 1)
	w = do(t, h, "GET", "/api/v1/users/U1/issues?status=open", "")
	assert.Empty(t, decodeBody[[]models.Issue](t, w))

	w = do(t, h, "GET", "/api/v1/users/U1/issues/search?q=thermal", "")
	assert.Len(t, decodeBody[[]models.Issue](t, w), 1)
	w = do(t, h, "GET", "/api/v1/users/U1/issues/search", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, "GET", "/api/v1/users/U1/issues/stats", "")
	stats := decodeBody[models.IssueStats](t, w)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.ByStatus[models.IssueStatusInvestigating])

	// Another user sees nothing.
	w = do(t, h, "GET", "/api/v1/users/U2/issues", "")
	assert.JSONEq(t, "[]", w.Body.String())

	// Mutations never resolve id prefixes.
	w = do(t, h, "PUT", "/api/v1/users/U1/issues/"+id[:1]+"/status", `{"status":"closed"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(t, h, "DELETE", "/api/v1/users/U1/issues/"+id[:1], "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, "DELETE", "/api/v1/users/U1/issues/"+id, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, h, "GET", "/api/v1/users/U1/issues/"+id, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, "GET", "/api/v1/users", "")
	assert.Equal(t, []string{"U1"}, decodeBody[[]string](t, w))
}

func TestCreateIssue(t *testing.T) {
	h, _ := setupTestServer(t, false)

	w := do(t, h, "POST", "/api/v1/users/U1/issues", `{"text":"motor hums at idle","channel":"hardware","author":"ana","priority":"low"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	issue := decodeBody[models.Issue](t, w)
	assert.Equal(t, models.IssuePriorityLow, issue.Priority)
	assert.Equal(t, models.IssueStatusOpen, issue.Status)

	w = do(t, h, "POST", "/api/v1/users/U1/issues", `{"text":"x","channel":"hardware","author":"ana","priority":"meh"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, "POST", "/api/v1/users/U1/issues", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProjectsAPI(t *testing.T) {
	h, _ := setupTestServer(t, false)

	w := do(t, h, "POST", "/api/v1/users/U1/projects", `{"name":"rover","channels":["#hardware","firmware"],"keywords":["pcb"]}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	p := decodeBody[models.Project](t, w)
	assert.Equal(t, []string{"hardware", "firmware"}, p.Channels)
	assert.True(t, p.Active)

	w = do(t, h, "POST", "/api/v1/users/U1/projects", `{"name":"rover","channels":["hardware"]}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, h, "POST", "/api/v1/users/U1/projects", `{"name":"empty","channels":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, "PUT", "/api/v1/users/U1/projects/rover", `{"active":false,"keywords":["pcb","motor"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	p = decodeBody[models.Project](t, w)
	assert.False(t, p.Active)
	assert.Equal(t, []string{"pcb", "motor"}, p.Keywords)

	w = do(t, h, "GET", "/api/v1/users/U1/projects", "")
	assert.Len(t, decodeBody[[]models.Project](t, w), 1)

	w = do(t, h, "DELETE", "/api/v1/users/U1/projects/rover", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, h, "GET", "/api/v1/users/U1/projects/rover", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSettingsAPI(t *testing.T) {
	h, _ := setupTestServer(t, false)

	w := do(t, h, "GET", "/api/v1/users/U1/settings", "")
	assert.Equal(t, 24, decodeBody[models.Settings](t, w).DefaultHours)

	w = do(t, h, "PUT", "/api/v1/users/U1/settings", `{"default_hours":48,"custom_prompt":"be brief","keywords":["pcb"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	st := decodeBody[models.Settings](t, w)
	assert.Equal(t, 48, st.DefaultHours)
	assert.Equal(t, "be brief", st.Prompt)
	assert.Equal(t, []string{"pcb"}, st.Keywords)

	w = do(t, h, "PUT", "/api/v1/users/U1/settings", `{"default_hours":0,"custom_prompt":"ignored"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, h, "GET", "/api/v1/users/U1/settings", "")
	assert.Equal(t, "be brief", decodeBody[models.Settings](t, w).Prompt)

	w = do(t, h, "DELETE", "/api/v1/users/U1/settings", "")
	assert.Equal(t, models.DefaultSettings(), decodeBody[models.Settings](t, w))
}

func TestDigestsAPI(t *testing.T) {
	h, _ := setupTestServer(t, true)

	w := do(t, h, "POST", "/api/v1/users/U1/digests", `{"channels":["hardware"],"hours":12}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decodeBody[map[string]any](t, w)
	assert.Equal(t, "channel", res["kind"])
	assert.EqualValues(t, 12, res["hours"])

	w = do(t, h, "POST", "/api/v1/users/U1/digests", `{"channels":["ghost"]}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, "POST", "/api/v1/users/U1/digests", `{"hours":12}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, "POST", "/api/v1/users/U1/digests", `{"project":"ghost"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, "POST", "/api/v1/users/U1/digests/issues", `{"channels":["hardware"]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res = decodeBody[map[string]any](t, w)
	assert.Len(t, res["created_issues"], 1)
}

func TestDigestsAPI_NotConfigured(t *testing.T) {
	h, _ := setupTestServer(t, false)
	w := do(t, h, "POST", "/api/v1/users/U1/digests", `{"channels":["hardware"]}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAggregateAPI(t *testing.T) {
	h, _ := setupTestServer(t, false)

	w := do(t, h, "PUT", "/api/v1/users/U1/settings", `{"keywords":["firmware"]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := `{"channel_messages":{"hardware":[
		{"text":"Firmware build is failing","channel":"hardware","author":"ana"},
		{"text":"lunch?","channel":"hardware","author":"bo"}]}}`
	w = do(t, h, "POST", "/api/v1/users/U1/aggregate", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decodeBody[digest.Payload](t, w)
	require.Len(t, res.Channels, 1)
	assert.Equal(t, 1, res.Channels[0].MatchedCount)
	assert.Equal(t, 2, res.Channels[0].TotalCount)

	w = do(t, h, "POST", "/api/v1/users/U1/aggregate", `{"channel_messages":{"hardware":[{"text":"x","channel":"hardware","author":"ana"}]},"keywords":[]}`)
	require.Equal(t, http.StatusOK, w.Code)
	empty := decodeBody[digest.Payload](t, w)
	assert.Equal(t, 1, empty.MatchedCount())

	w = do(t, h, "POST", "/api/v1/users/U1/aggregate", `{"channel_messages":{"hardware":[{"text":""}]}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
