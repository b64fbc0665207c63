package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type renderedResult struct{ Rows int }

func (r renderedResult) RenderText(w io.Writer) {
	fmt.Fprintf(w, "rows=%d\n", r.Rows)
}

func decodeResponse(t *testing.T, buf *bytes.Buffer) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	return resp
}

func TestOutputFormatter_Success(t *testing.T) {
	tests := []struct {
		name   string
		format string
		data   any
		want   string
	}{
		{"text renderer", "text", renderedResult{Rows: 4}, "rows=4\n"},
		{"plain value", "text", "Exported 4 row(s)", "Exported 4 row(s)\n"},
		{"json", "json", renderedResult{Rows: 4}, `{"status":"ok","data":{"Rows":4}}` + "\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{Format: tt.format, Writer: buf}
			require.NoError(t, formatter.Success(tt.data))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestOutputFormatter_SuccessRunAddsRunID(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.SuccessRun("run-1", renderedResult{Rows: 4}))

	resp := decodeResponse(t, buf)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "run-1", resp.RunID)
	assert.Equal(t, map[string]any{"Rows": float64(4)}, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	details := map[string]string{"run_id": "run-1", "page": "2"}
	require.NoError(t, formatter.Error("E_COMMAND", "malformed statement", details))

	resp := decodeResponse(t, buf)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_COMMAND", resp.Error.Code)
	assert.Equal(t, "malformed statement", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
	assert.Empty(t, resp.RunID)
}

func TestOutputFormatter_TextError(t *testing.T) {
	details := map[string]string{"url": "http://lrs.example/trax/ws/xapi/statements"}

	quiet := &bytes.Buffer{}
	f := &OutputFormatter{Format: "text", Writer: quiet}
	require.NoError(t, f.Error("E_COMMAND", "statement page request failed", details))
	assert.Equal(t, "Error [E_COMMAND]: statement page request failed\n", quiet.String())

	verbose := &bytes.Buffer{}
	f = &OutputFormatter{Format: "text", Writer: verbose, Verbose: true}
	require.NoError(t, f.Error("E_COMMAND", "statement page request failed", details))
	assert.Contains(t, verbose.String(), "Details: map[url:http://lrs.example/trax/ws/xapi/statements]")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "text", Writer: buf, Verbose: tt.verbose}

			formatter.VerboseLog("Merging %d file(s)", 2)

			if tt.wantLog {
				assert.Equal(t, "Merging 2 file(s)\n", buf.String())
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestOutputFormatter_VerboseLogUsesErrWriter(t *testing.T) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut, Verbose: true}

	formatter.VerboseLog("Merging %d file(s)", 3)
	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "Merging 3 file(s)")
	assert.Equal(t, errOut, formatter.GetErrWriter())

	formatter.ErrWriter = nil
	assert.Equal(t, out, formatter.GetErrWriter())
}

func TestExitError(t *testing.T) {
	cause := errors.New("connection refused")
	err := WrapExitError(ExitCommandError, "fetch failed", cause)

	assert.Equal(t, "fetch failed: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("run: %w", err)))
	assert.Equal(t, ExitFailure, GetExitCode(NewExitError(ExitFailure, "1 scenario(s) failed")))
	assert.Equal(t, ExitFailure, GetExitCode(cause))
	assert.Equal(t, "1 scenario(s) failed", NewExitError(ExitFailure, "1 scenario(s) failed").Error())
}
