package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/lrsweek/internal/config"
	"github.com/roach88/lrsweek/internal/features"
	"github.com/roach88/lrsweek/internal/pipeline"
	"github.com/roach88/lrsweek/internal/store"
)

// FeaturesOptions holds flags for the features command.
type FeaturesOptions struct {
	*RootOptions
	FromDB string // replay a stored run instead of contacting the LRS
	RunID  string // stored run to replay; empty means the latest
	IDs    pipeline.IDGenerator
}

// FeaturesResult summarizes a feature export.
type FeaturesResult struct {
	RunID      string   `json:"run_id"`
	Source     string   `json:"source"`
	Weeks      []int    `json:"weeks"`
	Rows       int      `json:"rows"`
	Files      []string `json:"files"`
	Degraded   int      `json:"degraded"`
	Unmatched  int      `json:"unmatched_events"`
	Incomplete []string `json:"incomplete_runs,omitempty"` // stored runs that never finished
}

// NewFeaturesCommand creates the features command.
func NewFeaturesCommand(rootOpts *RootOptions) *cobra.Command {
	return newFeaturesCommand(&FeaturesOptions{RootOptions: rootOpts})
}

func newFeaturesCommand(opts *FeaturesOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "features",
		Short: "Export weekly feature tables",
		Long: `Run the full pipeline and write one CSV per academic week to the
output directory, named <prefix>_w<week>.csv.

By default statements and profiles are fetched from the LRS (and kept in
--db when one is given). With --from-db the latest stored run, or the run
named by --run, is replayed without network access.

Examples:
  lrsweek features --url http://lrs.example --port 8080 --output-dir out
  lrsweek features --from-db lrs.db --output-dir out --prefix logSP32
  lrsweek features --from-db lrs.db --run 0190c1e2-... --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFeatures(opts, cmd)
		},
	}

	config.RegisterFlags(cmd.Flags())
	cmd.Flags().StringVar(&opts.FromDB, "from-db", "", "replay a stored run from this SQLite file")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "stored run id (default: latest)")

	return cmd
}

func runFeatures(opts *FeaturesOptions, cmd *cobra.Command) error {
	if opts.RunID != "" && opts.FromDB == "" {
		return NewExitError(ExitCommandError, "--run requires --from-db")
	}
	if opts.FromDB != "" {
		if _, err := os.Stat(opts.FromDB); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return WrapExitError(ExitCommandError, "file not found", err)
			}
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
	}

	cfg, err := loadConfig(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	pcfg := pipeline.Config{IDs: opts.IDs, Logger: logger}
	source := opts.FromDB
	dbPath := opts.FromDB
	if dbPath == "" {
		client, err := newClient(cfg, logger)
		if err != nil {
			return err
		}
		pcfg.Client = client
		source = client.Base()
		dbPath = cfg.Store.Path
	}

	var st *store.Store
	if dbPath != "" {
		st, err = store.Open(dbPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer st.Close()
		pcfg.Store = st
	}

	p, err := pipeline.New(pcfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build pipeline", err)
	}

	var snap pipeline.Snapshot
	if opts.FromDB != "" {
		snap, err = p.Load(cmd.Context(), opts.RunID)
	} else {
		snap, err = p.Fetch(cmd.Context())
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read statements", err)
	}

	res, err := p.Features(snap, features.Exporter{Dir: cfg.Output.Dir, Prefix: cfg.Output.Prefix})
	if err != nil {
		return WrapExitError(ExitCommandError, "feature export failed", err)
	}
	if err := writeMetrics(cfg, p, logger); err != nil {
		return err
	}

	result := FeaturesResult{
		RunID:     res.RunID,
		Source:    source,
		Weeks:     res.Table.Weeks,
		Rows:      res.Table.Len(),
		Files:     res.Paths,
		Degraded:  snap.Log.Degraded,
		Unmatched: res.Join.UnmatchedEvents,
	}
	if opts.FromDB != "" {
		if result.Incomplete, err = incompleteRuns(cmd, st); err != nil {
			return WrapExitError(ExitCommandError, "failed to list stored runs", err)
		}
		for _, id := range result.Incomplete {
			logger.Warn("skipped incomplete run", "run_id", id)
		}
	}
	return newFormatter(opts.RootOptions, cmd).SuccessRun(result.RunID, result)
}

// RenderText implements TextRenderer.
func (result FeaturesResult) RenderText(w io.Writer) {
	fmt.Fprintf(w, "✓ Exported %d row(s) over %d week(s)\n", result.Rows, len(result.Weeks))
	for _, path := range result.Files {
		fmt.Fprintf(w, "  %s\n", filepath.Base(path))
	}
	if result.Degraded > 0 {
		fmt.Fprintf(w, "Warning: %d event(s) without a course id used the object id\n", result.Degraded)
	}
	if result.Unmatched > 0 {
		fmt.Fprintf(w, "Warning: %d event(s) had no matching student profile\n", result.Unmatched)
	}
	if len(result.Incomplete) > 0 {
		fmt.Fprintf(w, "Warning: %d stored run(s) never finished and were not replayed\n", len(result.Incomplete))
	}
	fmt.Fprintf(w, "Run: %s\n", result.RunID)
}

// incompleteRuns returns the ids of stored runs whose fetch failed partway.
func incompleteRuns(cmd *cobra.Command, st *store.Store) ([]string, error) {
	runs, err := st.ReadRuns(cmd.Context())
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, run := range runs {
		if !run.Completed() {
			ids = append(ids, run.ID)
		}
	}
	return ids, nil
}
