package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/lrsweek/internal/config"
	"github.com/roach88/lrsweek/internal/lrs"
	"github.com/roach88/lrsweek/internal/pipeline"
	"github.com/roach88/lrsweek/internal/store"
)

// FetchOptions holds flags for the fetch command.
type FetchOptions struct {
	*RootOptions
	IDs pipeline.IDGenerator // nil uses UUIDv7 run ids
}

// FetchResult summarizes a fetch run.
type FetchResult struct {
	RunID      string `json:"run_id"`
	Database   string `json:"database"`
	Statements int    `json:"statements"`
	Degraded   int    `json:"degraded"`
	Agents     int    `json:"agent_profiles"`
	Activities int    `json:"activity_profiles"`
}

// NewFetchCommand creates the fetch command.
func NewFetchCommand(rootOpts *RootOptions) *cobra.Command {
	return newFetchCommand(&FetchOptions{RootOptions: rootOpts})
}

func newFetchCommand(opts *FetchOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Pull statements and profiles into the store",
		Long: `Fetch every xAPI statement page from the LRS, then the agent profile of
each scored student and the activity profile of each scored course, and
write them to the SQLite store under a new run id.

Examples:
  lrsweek fetch --url http://lrs.example --port 8080 --db lrs.db
  lrsweek fetch --url lrs.example --port 80 --auth admin:secret --db lrs.db
  lrsweek fetch --config lrsweek.yaml --db lrs.db --metrics-file lrsweek.prom`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(opts, cmd)
		},
	}

	config.RegisterFlags(cmd.Flags())

	return cmd
}

func runFetch(opts *FetchOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	if cfg.Store.Path == "" {
		return NewExitError(ExitCommandError, "fetch needs a store: set --db or store.path")
	}

	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	client, err := newClient(cfg, logger)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	p, err := pipeline.New(pipeline.Config{
		Client: client,
		Store:  st,
		IDs:    opts.IDs,
		Logger: logger,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build pipeline", err)
	}

	snap, err := p.Fetch(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "fetch failed", err)
	}
	if err := writeMetrics(cfg, p, logger); err != nil {
		return err
	}

	result := FetchResult{
		RunID:      snap.RunID,
		Database:   cfg.Store.Path,
		Statements: snap.Log.Total,
		Degraded:   snap.Log.Degraded,
		Agents:     len(snap.AgentProfiles),
		Activities: len(snap.ActivityProfiles),
	}

	return newFormatter(opts.RootOptions, cmd).SuccessRun(result.RunID, result)
}

// RenderText implements TextRenderer.
func (r FetchResult) RenderText(w io.Writer) {
	fmt.Fprintf(w, "✓ Fetched %d statement(s), %d agent profile(s), %d activity profile(s)\n",
		r.Statements, r.Agents, r.Activities)
	if r.Degraded > 0 {
		fmt.Fprintf(w, "Warning: %d event(s) without a course id used the object id\n", r.Degraded)
	}
	fmt.Fprintf(w, "Stored in %s\n", r.Database)
	fmt.Fprintf(w, "Run: %s\n", r.RunID)
}

// newClient validates the LRS settings and builds a client from them.
func newClient(cfg config.Config, logger *slog.Logger) (*lrs.Client, error) {
	if err := cfg.ValidateLRS(); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid LRS settings", err)
	}
	client, err := lrs.NewClient(lrs.ClientConfig{
		BaseURL:  cfg.LRS.URL,
		Port:     cfg.LRS.Port,
		User:     cfg.LRS.User,
		Password: cfg.LRS.Password,
		Headers:  cfg.LRS.Headers,
		Params:   cfg.LRS.Params,
		Timeout:  cfg.LRS.Timeout,
		Logger:   logger,
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid LRS settings", err)
	}
	return client, nil
}

// writeMetrics writes the run's collectors when metrics.file is set.
func writeMetrics(cfg config.Config, p *pipeline.Pipeline, logger *slog.Logger) error {
	if cfg.Metrics.File == "" {
		return nil
	}
	if err := p.Metrics().WriteFile(cfg.Metrics.File); err != nil {
		return WrapExitError(ExitCommandError, "failed to write metrics", err)
	}
	logger.Debug("wrote metrics", "path", cfg.Metrics.File)
	return nil
}
