package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeLabelFiles writes a labels file and a predictions file named
// predict_3 that agree on three of four rows.
func writeLabelFiles(t *testing.T) (dir, labels, predictions string) {
	t.Helper()
	dir = t.TempDir()
	labels = filepath.Join(dir, "labels")
	predictions = filepath.Join(dir, "predict_3")
	require.NoError(t, os.WriteFile(labels, []byte("classLabel\npass\nfail\npass\nfail\n"), 0o644))
	require.NoError(t, os.WriteFile(predictions, []byte("classLabel\npass\nfail\nfail\nfail\n"), 0o644))
	return dir, labels, predictions
}

func TestEvaluateCommand_WritesResult(t *testing.T) {
	dir, labels, predictions := writeLabelFiles(t)
	out := filepath.Join(dir, "result.json")

	buf := &bytes.Buffer{}
	cmd := NewEvaluateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--labels", labels, "--predictions", predictions, "--out", out,
		"--indicator", "accuracy", "--tag", "rf_w20"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "Wrote "+out)
	assert.Contains(t, buf.String(), "rf_w20[3] accuracy = [0.75]")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var doc map[string]map[string][]map[string][]float64
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, 0.75, doc["rf_w20"]["3"][0]["accuracy"][0])
}

func TestEvaluateCommand_DefaultTagAndNoIndicators(t *testing.T) {
	dir, labels, predictions := writeLabelFiles(t)
	out := filepath.Join(dir, "result.json")

	cmd := NewEvaluateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"-r", labels, "-p", predictions, "-f", out})
	require.NoError(t, cmd.Execute())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var doc map[string]map[string][]any
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Contains(t, doc, "predict_3")
	assert.Empty(t, doc["predict_3"]["3"])
}

func TestEvaluateCommand_JSON(t *testing.T) {
	dir, labels, predictions := writeLabelFiles(t)

	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--format", "json", "evaluate", "--labels", labels, "--predictions", predictions,
		"--out", filepath.Join(dir, "result.json"), "--indicator", "accuracy,recall_macro"})
	require.NoError(t, cmd.Execute())

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "result.json"), data["output"])
	scores, ok := data["scores"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, scores, "predict_3")
}

func TestEvaluateCommand_Errors(t *testing.T) {
	dir, labels, predictions := writeLabelFiles(t)
	badName := filepath.Join(dir, "predictions")
	require.NoError(t, os.WriteFile(badName, []byte("classLabel\npass\n"), 0o644))
	short := filepath.Join(dir, "short_1")
	require.NoError(t, os.WriteFile(short, []byte("classLabel\npass\n"), 0o644))

	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantErr  string
	}{
		{
			name:     "missing labels",
			args:     []string{"--labels", filepath.Join(dir, "nope"), "--predictions", predictions},
			wantCode: ExitCommandError,
			wantErr:  "file does not exist",
		},
		{
			name:     "unsupported predictions name",
			args:     []string{"--labels", labels, "--predictions", badName},
			wantCode: ExitCommandError,
			wantErr:  "filename not supported",
		},
		{
			name:     "unknown indicator",
			args:     []string{"--labels", labels, "--predictions", predictions, "--indicator", "auc"},
			wantCode: ExitCommandError,
			wantErr:  `unknown indicator "auc"`,
		},
		{
			name:     "label count mismatch",
			args:     []string{"--labels", labels, "--predictions", short, "--indicator", "accuracy"},
			wantCode: ExitFailure,
			wantErr:  "label count mismatch",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := filepath.Join(t.TempDir(), "result.json")
			cmd := NewEvaluateCommand(&RootOptions{Format: "text"})
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetArgs(append(tt.args, "--out", out))

			err := cmd.Execute()
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.NoFileExists(t, out)
		})
	}
}

func TestEvaluateCommand_RequiredFlags(t *testing.T) {
	cmd := NewEvaluateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag(s)")
}
