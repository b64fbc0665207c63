package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot renders the exported files of a result for golden comparison:
// each file as a "== name ==" line followed by its content. A failed
// pipeline renders as its error.
func Snapshot(scenarioName string, result *Result) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# scenario: %s\n", scenarioName)
	if result.Err != nil {
		fmt.Fprintf(&buf, "error: %v\n", result.Err)
		return buf.Bytes()
	}
	for _, f := range result.Files {
		fmt.Fprintf(&buf, "== %s ==\n", f.Name)
		buf.WriteString(f.Content)
	}
	return buf.Bytes()
}

// RunWithGolden executes a scenario and compares the exported files against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, Snapshot(scenario.Name, result))
	return result, nil
}

// GoldenPath returns golden/<name>.golden next to a scenario file.
func GoldenPath(scenarioFile string) string {
	dir := filepath.Dir(scenarioFile)
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, "golden", name+".golden")
}

// UpdateGolden writes the current snapshot as the golden file of a scenario file.
func UpdateGolden(scenarioFile string, scenario *Scenario, result *Result) error {
	goldenPath := GoldenPath(scenarioFile)
	if err := os.MkdirAll(filepath.Dir(goldenPath), 0o755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	if err := os.WriteFile(goldenPath, Snapshot(scenario.Name, result), 0o644); err != nil {
		return fmt.Errorf("failed to write golden file: %w", err)
	}
	return nil
}

// MatchesGolden compares the current snapshot against the golden file of a
// scenario file. ok is false with a nil error when the file differs;
// os.ErrNotExist is returned when there is no golden file.
func MatchesGolden(scenarioFile string, scenario *Scenario, result *Result) (bool, error) {
	golden, err := os.ReadFile(GoldenPath(scenarioFile))
	if err != nil {
		return false, err
	}
	return bytes.Equal(golden, Snapshot(scenario.Name, result)), nil
}
