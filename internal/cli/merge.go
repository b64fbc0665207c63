package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/lrsweek/internal/merge"
)

// MergeOptions holds flags for the merge command.
type MergeOptions struct {
	*RootOptions
	Mode   string
	Output string
}

// MergeResult summarizes a merge.
type MergeResult struct {
	Mode   string   `json:"mode"`
	Inputs []string `json:"inputs"`
	Output string   `json:"output"`
}

// NewMergeCommand creates the merge command.
func NewMergeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MergeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "merge INPUT...",
		Short: "Merge JSON result files",
		Long: fmt.Sprintf(`Merge JSON documents, in argument order, into one output file.

Modes %v:
  deep    - objects merge recursively, later scalars win
  shallow - top-level keys of later documents replace earlier ones
  list    - the documents are collected into an array

Examples:
  lrsweek merge -o all.json result_1.json result_2.json
  lrsweek merge --mode list -o runs.json run_*.json`, merge.Modes),
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMerge(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Mode, "mode", "deep", "merge mode (deep|shallow|list)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "merged JSON file")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func runMerge(opts *MergeOptions, inputs []string, cmd *cobra.Command) error {
	mode, err := merge.ParseMode(opts.Mode)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --mode", err)
	}

	formatter := newFormatter(opts.RootOptions, cmd)
	formatter.VerboseLog("Merging %d file(s) in %s mode", len(inputs), opts.Mode)

	if _, err := merge.Files(mode, inputs, opts.Output); err != nil {
		return WrapExitError(ExitCommandError, "merge failed", err)
	}

	return formatter.Success(MergeResult{Mode: opts.Mode, Inputs: inputs, Output: opts.Output})
}

// RenderText implements TextRenderer.
func (r MergeResult) RenderText(w io.Writer) {
	fmt.Fprintf(w, "✓ Merged %d file(s) into %s\n", len(r.Inputs), r.Output)
}
