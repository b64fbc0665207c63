package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lrsweek/internal/pipeline"
	"github.com/roach88/lrsweek/internal/store"
)

const testCourse = "http://lola.example/course_1"

func scoredStatement(student int, ts string) string {
	return fmt.Sprintf(`{"actor": {"mbox": "mailto:%d@lola.example"},
		"verb": {"id": "http://adlnet.gov/expapi/verbs/scored"},
		"object": {"id": "http://lola.example/quiz_1"},
		"context": {"contextActivities": {"parent": [{"id": %q}]}},
		"result": {"score": {"raw": 12}},
		"timestamp": %q}`, student, testCourse, ts)
}

func viewedStatement(student int, ts string) string {
	return fmt.Sprintf(`{"actor": {"mbox": "mailto:%d@lola.example"},
		"verb": {"id": "http://id.tincanapi.com/verb/viewed"},
		"object": {"id": "http://lola.example/page_1"},
		"context": {"contextActivities": {"parent": [{"id": %q}]}},
		"timestamp": %q}`, student, testCourse, ts)
}

// newFakeLRS serves one statement page: student 42 is scored and views the
// course in computed weeks 20 and 21.
func newFakeLRS(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "testsuite", user)
		assert.Equal(t, "password", pass)

		switch r.URL.Path {
		case "/trax/ws/xapi/statements":
			fmt.Fprintf(w, `{"statements": [%s, %s, %s]}`,
				scoredStatement(42, "2018-01-10T09:00:00Z"),
				viewedStatement(42, "2018-01-10T10:00:00Z"),
				viewedStatement(42, "2018-01-17T10:00:00Z"))
		case "/trax/ws/xapi/agents/profile":
			fmt.Fprint(w, `{"userid": "42", "Sex": "F", "RegistrationDate": "20/12/2017",
				"StartDate": "03/01/2018", "scholarship": true, "repeatingClass": 0,
				"AvgScore": 12, "classLabel": "pass"}`)
		case "/trax/ws/xapi/activities/profile":
			fmt.Fprint(w, `{"course_id": "1", "StartDate": "04/09/2017", "EndDate": "30/01/2018"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// lrsArgs returns the --url and --port flags addressing srv.
func lrsArgs(t *testing.T, srv *httptest.Server) []string {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return []string{"--url", "http://" + u.Hostname(), "--port", u.Port()}
}

// noDotEnv runs the test from an empty directory so no .env file is read.
func noDotEnv(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestFetchCommand_WritesRun(t *testing.T) {
	noDotEnv(t)
	srv := newFakeLRS(t)
	dbPath := filepath.Join(t.TempDir(), "lrs.db")

	buf := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}
	cmd := newFetchCommand(&FetchOptions{
		RootOptions: &RootOptions{Format: "text"},
		IDs:         pipeline.NewFixedGenerator("run-1"),
	})
	cmd.SetOut(buf)
	cmd.SetErr(errBuf)
	cmd.SetArgs(append(lrsArgs(t, srv), "--db", dbPath))

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "Fetched 3 statement(s), 1 agent profile(s), 1 activity profile(s)")
	assert.Contains(t, buf.String(), "Run: run-1")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()
	run, err := st.LatestRun(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "run-1", run.ID)
}

func TestFetchCommand_JSONAndMetrics(t *testing.T) {
	noDotEnv(t)
	srv := newFakeLRS(t)
	dir := t.TempDir()
	metricsPath := filepath.Join(dir, "lrsweek.prom")

	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	args := append([]string{"--format", "json", "fetch"}, lrsArgs(t, srv)...)
	cmd.SetArgs(append(args, "--db", filepath.Join(dir, "lrs.db"), "--metrics-file", metricsPath))

	require.NoError(t, cmd.Execute())

	var resp struct {
		Status string      `json:"status"`
		Data   FetchResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 3, resp.Data.Statements)
	assert.Equal(t, 1, resp.Data.Agents)
	assert.NotEmpty(t, resp.Data.RunID)

	data, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "lrsweek_statement_page_seconds_count 1")
}

func TestFetchCommand_RequiresStore(t *testing.T) {
	noDotEnv(t)
	srv := newFakeLRS(t)

	cmd := NewFetchCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs(lrsArgs(t, srv))

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "--db")
}

func TestFetchCommand_MissingURL(t *testing.T) {
	noDotEnv(t)

	cmd := NewFetchCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--db", filepath.Join(t.TempDir(), "lrs.db")})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "lrs.url")
}

func TestFetchCommand_TransportError(t *testing.T) {
	noDotEnv(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	cmd := NewFetchCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append(lrsArgs(t, srv), "--db", filepath.Join(t.TempDir(), "lrs.db")))

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "fetch failed")
}

func TestFetchCommand_BadAuth(t *testing.T) {
	noDotEnv(t)

	cmd := NewFetchCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--url", "lrs.example", "--port", "80", "--auth", "nocolon", "--db", "x.db"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid configuration")
}
