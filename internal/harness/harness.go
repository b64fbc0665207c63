package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/roach88/lrsweek/internal/features"
	"github.com/roach88/lrsweek/internal/pipeline"
	"github.com/roach88/lrsweek/internal/store"
	"github.com/roach88/lrsweek/internal/testutil"
	"github.com/roach88/lrsweek/internal/xapi"
)

// scenarioTime is the fixed start time of every scenario run.
var scenarioTime = time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database. The statements and
// profiles are written as one stored run, then the feature pass loads that
// run and exports into a temporary directory, exactly as `lrsweek features
// --from-db` does.
//
// A non-nil error means the scenario could not be executed at all; pipeline
// failures are reported through the Result.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	outDir, err := os.MkdirTemp("", "lrsweek-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	ctx := context.Background()
	clock := testutil.NewStepClock(scenarioTime, 0)
	if err := seed(ctx, st, scenario, clock.Now()); err != nil {
		return nil, err
	}

	p, err := pipeline.New(pipeline.Config{
		Store:  st,
		IDs:    testutil.NewFixedRunID(scenario.RunID),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:    clock.Now,
	})
	if err != nil {
		return nil, err
	}

	result := NewResult()
	res, err := runFeatures(ctx, p, scenario, outDir, result)
	if err != nil {
		result.Err = err
		switch {
		case scenario.ExpectError == "":
			result.AddError(fmt.Sprintf("pipeline failed: %v", err))
		case !strings.Contains(err.Error(), scenario.ExpectError):
			result.AddError(fmt.Sprintf("expected error containing %q, got: %v", scenario.ExpectError, err))
		}
		return result, nil
	}
	if scenario.ExpectError != "" {
		result.AddError(fmt.Sprintf("expected error containing %q, pipeline succeeded", scenario.ExpectError))
	}

	result.Table = res.Table
	result.Join = res.Join
	for _, path := range res.Paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read exported file: %w", err)
		}
		result.Files = append(result.Files, ExportedFile{Name: filepath.Base(path), Content: string(data)})
	}

	for _, msg := range EvaluateAssertions(ctx, st, result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func runFeatures(ctx context.Context, p *pipeline.Pipeline, scenario *Scenario, outDir string, result *Result) (pipeline.Result, error) {
	snap, err := p.Load(ctx, scenario.RunID)
	if err != nil {
		return pipeline.Result{}, err
	}
	result.Degraded = snap.Log.Degraded
	res, err := p.Features(snap, features.Exporter{Dir: outDir, Prefix: scenario.Prefix})
	if err != nil {
		return pipeline.Result{}, err
	}
	return res, nil
}

// seed writes the scenario as a stored run.
func seed(ctx context.Context, st *store.Store, scenario *Scenario, startedAt time.Time) error {
	run := store.Run{ID: scenario.RunID, StartedAt: startedAt, Source: "scenario:" + scenario.Name}
	if err := st.WriteRun(ctx, run); err != nil {
		return err
	}

	stmts := make([]xapi.Statement, 0, len(scenario.Statements))
	for i, raw := range scenario.Statements {
		data, err := json.Marshal(raw)
		if err != nil {
			return fmt.Errorf("statements[%d]: %w", i, err)
		}
		stmt, err := xapi.DecodeStatement(data)
		if err != nil {
			return fmt.Errorf("statements[%d]: %w", i, err)
		}
		stmts = append(stmts, stmt)
	}
	if err := st.WriteStatements(ctx, run.ID, 0, stmts); err != nil {
		return err
	}

	for i, doc := range scenario.Agents {
		body, err := json.Marshal(doc.Body)
		if err != nil {
			return fmt.Errorf("agents[%d]: %w", i, err)
		}
		if err := st.WriteAgentProfile(ctx, run.ID, int64(i), doc.Key, body); err != nil {
			return err
		}
	}
	for i, doc := range scenario.Activities {
		body, err := json.Marshal(doc.Body)
		if err != nil {
			return fmt.Errorf("activities[%d]: %w", i, err)
		}
		if err := st.WriteActivityProfile(ctx, run.ID, int64(i), doc.Key, body); err != nil {
			return err
		}
	}
	return st.CompleteRun(ctx, run.ID, startedAt)
}
