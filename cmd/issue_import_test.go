package cmd

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/digest/internal/models"
)

func TestParseTranscript(t *testing.T) {
	t.Run("bracketed lines with continuations", func(t *testing.T) {
		in := `notes from standup

[ana] Critical thermal failure on the rev B board
  seen on two units
- [bo] lunch?
• [cy] firmware bug in the boot loader
`
		msgs, err := parseTranscript(strings.NewReader(in), "hardware")
		require.NoError(t, err)
		require.Len(t, msgs, 3)

		assert.Equal(t, "ana", msgs[0].Author)
		assert.Equal(t, "Critical thermal failure on the rev B board\nseen on two units", msgs[0].Text)
		assert.Equal(t, "hardware", msgs[0].Channel)
		assert.Equal(t, "bo", msgs[1].Author)
		assert.Equal(t, "lunch?", msgs[1].Text)
		assert.Equal(t, "cy", msgs[2].Author)
	})

	t.Run("no messages", func(t *testing.T) {
		msgs, err := parseTranscript(strings.NewReader("just prose\n\nmore prose"), "x")
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})
}

func writeExportDay(t *testing.T, root, channel, day, body string) {
	t.Helper()
	dir := filepath.Join(root, channel)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, day+".json"), []byte(body), 0o644))
}

func TestReadSlackExport(t *testing.T) {
	root := t.TempDir()
	writeExportDay(t, root, "hardware", "2024-03-02", `[
		{"type":"message","user":"U2","text":"PCB is overheating again","ts":"1709400000.000200","user_profile":{"display_name":"bo"}}
	]`)
	writeExportDay(t, root, "hardware", "2024-03-01", `[
		{"type":"message","subtype":"channel_join","user":"U1","text":"<@U1> has joined","ts":"1709300000.000100"},
		{"type":"message","user":"U1","text":"board boots fine","ts":"1709300001.000100","user_profile":{"real_name":"Ana Lima"}},
		{"type":"message","user":"U3","text":"   ","ts":"1709300002.000100"}
	]`)

	msgs, err := readSlackExport(root)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, "Ana Lima", msgs[0].Author)
	assert.Equal(t, "U1", msgs[0].AuthorID)
	assert.Equal(t, "board boots fine", msgs[0].Text)
	assert.Equal(t, "hardware", msgs[0].Channel)
	assert.Equal(t, time.Unix(1709300001, 100000).UTC(), msgs[0].Timestamp)
	assert.Equal(t, "1709300001.000100", msgs[0].MessageTS)
	assert.Equal(t, "bo", msgs[1].Author)
}

func TestReadSlackExport_BadJSON(t *testing.T) {
	root := t.TempDir()
	writeExportDay(t, root, "hardware", "2024-03-01", `{not json`)

	_, err := readSlackExport(root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}

func TestIssueImportRun(t *testing.T) {
	dir := testEnv(t)

	path := filepath.Join(dir, "standup.txt")
	require.NoError(t, os.WriteFile(path, []byte(
		"[ana] Critical thermal failure on the rev B board\n[bo] lunch?\n"), 0o644))

	importChannel = ""
	err := issueImportRun(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--channel")

	importChannel = "#hardware"
	t.Cleanup(func() { importChannel = "" })
	require.NoError(t, issueImportRun(path))

	tr, err := getTracker()
	require.NoError(t, err)
	issues, err := tr.List(context.Background(), currentUser(), models.IssueFilter{})
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "hardware", issues[0].Channel)
	assert.Equal(t, models.IssuePriorityCritical, issues[0].Priority)
}

func TestIssueImportRun_DryRun(t *testing.T) {
	dir := testEnv(t)
	dryRun = true
	t.Cleanup(func() { dryRun = false })

	root := filepath.Join(dir, "export")
	writeExportDay(t, root, "firmware", "2024-03-01", `[
		{"type":"message","user":"U1","text":"firmware bug in the updater","ts":"1709300001.000100"}
	]`)
	require.NoError(t, issueImportRun(root))

	tr, err := getTracker()
	require.NoError(t, err)
	issues, err := tr.List(context.Background(), currentUser(), models.IssueFilter{})
	require.NoError(t, err)
	assert.Empty(t, issues)
}
