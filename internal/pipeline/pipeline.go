// Package pipeline runs lrsweek end to end: fetch statements and profiles
// from the LRS (optionally caching them in the store under a run id), then
// normalize, join, aggregate and export weekly feature files.
//
// A run is single-threaded. Statement pages are normalized as they arrive,
// profiles are fetched one at a time afterwards, and the first failure
// aborts the run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/lrsweek/internal/features"
	"github.com/roach88/lrsweek/internal/lrs"
	"github.com/roach88/lrsweek/internal/store"
	"github.com/roach88/lrsweek/internal/xapi"
)

// Config wires a Pipeline. Client is needed by Fetch; Store by Load and,
// when set, Fetch persists into it.
type Config struct {
	Client  *lrs.Client
	Store   *store.Store
	IDs     IDGenerator
	Metrics *Metrics
	Logger  *slog.Logger
	Now     func() time.Time
}

// Pipeline orchestrates one lrsweek run.
type Pipeline struct {
	client  *lrs.Client
	store   *store.Store
	decoder *xapi.ProfileDecoder
	ids     IDGenerator
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// Snapshot is the raw input of a feature pass: the normalized log plus the
// profile documents fetched for it.
type Snapshot struct {
	RunID            string
	Log              *xapi.Log
	AgentProfiles    []store.Profile
	ActivityProfiles []store.Profile
}

// Result summarizes a feature pass.
type Result struct {
	RunID     string
	Table     features.Table
	Paths     []string
	Join      features.JoinStats
	Schedules []features.Schedule
}

// New builds a Pipeline, filling in defaults for the optional fields.
func New(cfg Config) (*Pipeline, error) {
	decoder, err := xapi.NewProfileDecoder()
	if err != nil {
		return nil, err
	}
	if cfg.IDs == nil {
		cfg.IDs = UUIDv7Generator{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Pipeline{
		client:  cfg.Client,
		store:   cfg.Store,
		decoder: decoder,
		ids:     cfg.IDs,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		now:     cfg.Now,
	}, nil
}

// Metrics returns the collectors updated by this pipeline.
func (p *Pipeline) Metrics() *Metrics {
	return p.metrics
}

// Fetch pulls every statement page, then the agent profile of each scored
// student and the activity profile of each scored course. With a store
// configured, everything is written under a fresh run id as it arrives and
// the run is marked complete only after the last profile. A failed fetch
// leaves an incomplete run that Load refuses.
func (p *Pipeline) Fetch(ctx context.Context) (Snapshot, error) {
	if p.client == nil {
		return Snapshot{}, errors.New("fetch: no LRS client configured")
	}

	run := store.Run{
		ID:        p.ids.Generate(),
		StartedAt: p.now().UTC(),
		Source:    p.client.Base(),
	}
	logger := p.logger.With("run_id", run.ID)
	if p.store != nil {
		if err := p.store.WriteRun(ctx, run); err != nil {
			return Snapshot{}, err
		}
	}

	snap := Snapshot{RunID: run.ID, Log: &xapi.Log{}}
	pager := p.client.Statements()
	var seq int64
	pageStart := time.Now()
	err := pager.Each(ctx, func(stmts []xapi.Statement) error {
		if p.store != nil {
			if err := p.store.WriteStatements(ctx, run.ID, seq, stmts); err != nil {
				return err
			}
		}
		seq += int64(len(stmts))
		if err := snap.Log.AddPage(stmts); err != nil {
			return err
		}
		p.metrics.ObservePage(time.Since(pageStart))
		pageStart = time.Now()
		return nil
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch statements: %w", err)
	}
	logger.Info("statements fetched", "pages", pager.Pages(), "statements", snap.Log.Total)

	for i, ref := range snap.Log.Agents() {
		body, err := p.client.AgentProfile(ctx, ref.Actor)
		if err != nil {
			return Snapshot{}, fmt.Errorf("fetch agent profile %s: %w", ref.StudentID, err)
		}
		if p.store != nil {
			if err := p.store.WriteAgentProfile(ctx, run.ID, int64(i), ref.StudentID, body); err != nil {
				return Snapshot{}, err
			}
		}
		snap.AgentProfiles = append(snap.AgentProfiles, store.Profile{Key: ref.StudentID, Body: body})
	}

	for i, course := range snap.Log.Courses() {
		body, err := p.client.ActivityProfile(ctx, course)
		if err != nil {
			return Snapshot{}, fmt.Errorf("fetch activity profile %s: %w", course, err)
		}
		if p.store != nil {
			if err := p.store.WriteActivityProfile(ctx, run.ID, int64(i), course, body); err != nil {
				return Snapshot{}, err
			}
		}
		snap.ActivityProfiles = append(snap.ActivityProfiles, store.Profile{Key: course, Body: body})
	}
	logger.Info("profiles fetched", "agents", len(snap.AgentProfiles), "courses", len(snap.ActivityProfiles))

	if p.store != nil {
		if err := p.store.CompleteRun(ctx, run.ID, p.now().UTC()); err != nil {
			return Snapshot{}, err
		}
	}
	return snap, nil
}

// Load rebuilds a snapshot from the store. An empty runID selects the
// latest completed run.
func (p *Pipeline) Load(ctx context.Context, runID string) (Snapshot, error) {
	if p.store == nil {
		return Snapshot{}, errors.New("load: no store configured")
	}

	var run store.Run
	var err error
	if runID == "" {
		run, err = p.store.LatestRun(ctx)
	} else {
		run, err = p.store.ReadRun(ctx, runID)
	}
	if err != nil {
		return Snapshot{}, err
	}

	stmts, err := p.store.ReadStatements(ctx, run.ID)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{RunID: run.ID, Log: &xapi.Log{}}
	if err := snap.Log.AddPage(stmts); err != nil {
		return Snapshot{}, fmt.Errorf("run %s: %w", run.ID, err)
	}
	if snap.AgentProfiles, err = p.store.ReadAgentProfiles(ctx, run.ID); err != nil {
		return Snapshot{}, err
	}
	if snap.ActivityProfiles, err = p.store.ReadActivityProfiles(ctx, run.ID); err != nil {
		return Snapshot{}, err
	}

	p.logger.Info("run loaded",
		"run_id", run.ID,
		"source", run.Source,
		"statements", snap.Log.Total,
		"agents", len(snap.AgentProfiles),
		"courses", len(snap.ActivityProfiles))
	return snap, nil
}

// Features decodes the snapshot's profiles, joins them with the event log,
// aggregates weekly features and exports one file per week.
func (p *Pipeline) Features(snap Snapshot, exp features.Exporter) (Result, error) {
	logger := p.logger.With("run_id", snap.RunID)
	res := Result{RunID: snap.RunID}

	agents := make([]xapi.AgentProfile, 0, len(snap.AgentProfiles))
	for _, raw := range snap.AgentProfiles {
		a, err := p.decoder.Agent(raw.Key, raw.Body)
		if err != nil {
			return res, err
		}
		agents = append(agents, a)
	}

	res.Schedules = make([]features.Schedule, 0, len(snap.ActivityProfiles))
	for _, raw := range snap.ActivityProfiles {
		a, err := p.decoder.Activity(raw.Key, raw.Body)
		if err != nil {
			return res, err
		}
		sched, err := features.CourseSchedule(a)
		if err != nil {
			return res, err
		}
		logger.Debug("course schedule",
			"course", sched.CourseID,
			"start_week", sched.StartWeek,
			"end_week", sched.EndWeek,
			"exams", len(sched.ExamWeeks))
		res.Schedules = append(res.Schedules, sched)
	}

	eventLog := snap.Log
	if eventLog == nil {
		eventLog = &xapi.Log{}
	}
	if eventLog.Degraded > 0 {
		logger.Warn("course id fell back to object id", "events", eventLog.Degraded)
	}

	rows, stats, err := features.Join(eventLog.Events, agents)
	if err != nil {
		return res, fmt.Errorf("join: %w", err)
	}
	res.Join = stats
	if stats.UnmatchedEvents > 0 || stats.DuplicateProfiles > 0 {
		logger.Info("join discarded data",
			"unmatched_events", stats.UnmatchedEvents,
			"duplicate_profiles", stats.DuplicateProfiles)
	}

	res.Table = features.Aggregate(rows)
	paths, err := exp.Export(res.Table)
	res.Paths = paths
	if err != nil {
		return res, err
	}
	for i, w := range res.Table.Weeks {
		logger.Debug("week exported", "week", w, "rows", len(res.Table.Week(w)), "path", paths[i])
	}

	p.metrics.ObserveLog(eventLog)
	p.metrics.ObserveTable(res.Table)
	p.metrics.MarkSuccess(p.now())

	logger.Info("features exported", "weeks", len(res.Table.Weeks), "rows", res.Table.Len())
	return res, nil
}
