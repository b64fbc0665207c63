package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lrsweek/internal/pipeline"
	"github.com/roach88/lrsweek/internal/store"
)

const csvHeader = "classLabel,sex,scholarship,repeatingClass,log_week,cumulative_logs\n"

func assertFeatureFiles(t *testing.T, dir, prefix string) {
	t.Helper()
	w20, err := os.ReadFile(filepath.Join(dir, prefix+"_w20.csv"))
	require.NoError(t, err)
	assert.Equal(t, csvHeader+"pass,F,true,0,1,1\n", string(w20))

	w21, err := os.ReadFile(filepath.Join(dir, prefix+"_w21.csv"))
	require.NoError(t, err)
	assert.Equal(t, csvHeader+"pass,F,true,0,1,2\n", string(w21))
}

func TestFeaturesCommand_FromLRS(t *testing.T) {
	noDotEnv(t)
	srv := newFakeLRS(t)
	outDir := t.TempDir()

	buf := &bytes.Buffer{}
	cmd := newFeaturesCommand(&FeaturesOptions{
		RootOptions: &RootOptions{Format: "text"},
		IDs:         pipeline.NewFixedGenerator("run-1"),
	})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append(lrsArgs(t, srv), "--output-dir", outDir))

	require.NoError(t, cmd.Execute())
	assertFeatureFiles(t, outDir, "logSP31")

	output := buf.String()
	assert.Contains(t, output, "Exported 2 row(s) over 2 week(s)")
	assert.Contains(t, output, "logSP31_w20.csv")
	assert.Contains(t, output, "Run: run-1")
}

func TestFeaturesCommand_ReplayFromDB(t *testing.T) {
	noDotEnv(t)
	srv := newFakeLRS(t)
	dbPath := filepath.Join(t.TempDir(), "lrs.db")

	fetch := newFetchCommand(&FetchOptions{
		RootOptions: &RootOptions{Format: "text"},
		IDs:         pipeline.NewFixedGenerator("run-1"),
	})
	fetch.SetOut(&bytes.Buffer{})
	fetch.SetErr(&bytes.Buffer{})
	fetch.SetArgs(append(lrsArgs(t, srv), "--db", dbPath))
	require.NoError(t, fetch.Execute())

	// The LRS is gone; the replay reads only the store.
	srv.Close()

	outDir := t.TempDir()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--format", "json", "features",
		"--from-db", dbPath, "--run", "run-1", "--output-dir", outDir, "--prefix", "logSP32"})
	require.NoError(t, cmd.Execute())

	assertFeatureFiles(t, outDir, "logSP32")

	var resp struct {
		Status string         `json:"status"`
		Data   FeaturesResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "run-1", resp.Data.RunID)
	assert.Equal(t, dbPath, resp.Data.Source)
	assert.Equal(t, []int{20, 21}, resp.Data.Weeks)
	assert.Equal(t, 2, resp.Data.Rows)
	assert.Len(t, resp.Data.Files, 2)
}

func TestFeaturesCommand_UnknownRun(t *testing.T) {
	noDotEnv(t)
	srv := newFakeLRS(t)
	dbPath := filepath.Join(t.TempDir(), "lrs.db")

	fetch := NewFetchCommand(&RootOptions{Format: "text"})
	fetch.SetOut(&bytes.Buffer{})
	fetch.SetErr(&bytes.Buffer{})
	fetch.SetArgs(append(lrsArgs(t, srv), "--db", dbPath))
	require.NoError(t, fetch.Execute())

	cmd := NewFeaturesCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--from-db", dbPath, "--run", "no-such-run", "--output-dir", t.TempDir()})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestFeaturesCommand_FromDBMissingFile(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "missing.db")

	cmd := NewFeaturesCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--from-db", dbPath, "--output-dir", t.TempDir()})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "file not found")

	_, statErr := os.Stat(dbPath)
	assert.True(t, os.IsNotExist(statErr), "no database file is created")
}

func TestFeaturesCommand_ReplaySkipsIncompleteRun(t *testing.T) {
	noDotEnv(t)
	srv := newFakeLRS(t)
	dbPath := filepath.Join(t.TempDir(), "lrs.db")

	fetch := newFetchCommand(&FetchOptions{
		RootOptions: &RootOptions{Format: "text"},
		IDs:         pipeline.NewFixedGenerator("run-1"),
	})
	fetch.SetOut(&bytes.Buffer{})
	fetch.SetErr(&bytes.Buffer{})
	fetch.SetArgs(append(lrsArgs(t, srv), "--db", dbPath))
	require.NoError(t, fetch.Execute())

	// A later fetch that died after its run row was written.
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.WriteRun(context.Background(), store.Run{ID: "run-2", StartedAt: time.Now(), Source: srv.URL}))
	require.NoError(t, st.Close())

	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--format", "json", "features", "--from-db", dbPath, "--output-dir", t.TempDir()})
	require.NoError(t, cmd.Execute())

	var resp struct {
		Data FeaturesResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "run-1", resp.Data.RunID)
	assert.Equal(t, []string{"run-2"}, resp.Data.Incomplete)

	byID := NewFeaturesCommand(&RootOptions{Format: "text"})
	byID.SetOut(&bytes.Buffer{})
	byID.SetErr(&bytes.Buffer{})
	byID.SetArgs([]string{"--from-db", dbPath, "--run", "run-2", "--output-dir", t.TempDir()})
	err = byID.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "incomplete")
}

func TestFeaturesCommand_RunNeedsFromDB(t *testing.T) {
	cmd := NewFeaturesCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--run", "run-1"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "--run requires --from-db")
}

func TestFeaturesCommand_MalformedStatementWritesNothing(t *testing.T) {
	noDotEnv(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"statements": [{"actor": {"name": "no mbox"},
			"verb": {"id": "http://id.tincanapi.com/verb/viewed"},
			"object": {"id": "http://lola.example/page_1"},
			"timestamp": "2018-01-10T10:00:00Z"}]}`))
	}))
	t.Cleanup(srv.Close)
	outDir := t.TempDir()

	cmd := NewFeaturesCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append(lrsArgs(t, srv), "--output-dir", outDir))

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
