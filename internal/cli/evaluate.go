package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/lrsweek/internal/evaluate"
	"github.com/roach88/lrsweek/internal/jsontree"
)

// EvaluateOptions holds flags for the evaluate command.
type EvaluateOptions struct {
	*RootOptions
	Labels      string
	Predictions string
	Output      string
	Indicators  []string
	Tag         string
}

// EvaluateResult is the written result document and its path.
type EvaluateResult struct {
	Output string          `json:"output"`
	Scores jsontree.Object `json:"scores"`
}

// NewEvaluateCommand creates the evaluate command.
func NewEvaluateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EvaluateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score predictions against true labels",
		Long: fmt.Sprintf(`Compare a predictions file with the true labels and write the chosen
indicators as {tag: {index: [{indicator: [value]}, ...]}}.

The predictions file name must end in _<index>, e.g. predict_3. With no
--indicator the result holds an empty indicator list.

Valid indicators: %s

Exit codes:
  0 - Result written
  1 - Labels could not be evaluated (count mismatch, no labels)
  2 - Command error (missing files, bad file name, unknown indicator)

Examples:
  lrsweek evaluate --labels labels --predictions predict_3 --out result.json \
    --indicator accuracy --indicator f1_macro
  lrsweek evaluate --labels labels --predictions predict_3 --out result.json \
    --indicator accuracy,recall_micro --tag rf_w20`, strings.Join(evaluate.Indicators, ", ")),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluate(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Labels, "labels", "r", "", "true labels CSV, first column after the header")
	cmd.Flags().StringVarP(&opts.Predictions, "predictions", "p", "", "predictions CSV, named <name>_<index>")
	cmd.Flags().StringVarP(&opts.Output, "out", "f", "", "result JSON file")
	cmd.Flags().StringSliceVarP(&opts.Indicators, "indicator", "i", nil, "indicator to compute (repeatable)")
	cmd.Flags().StringVar(&opts.Tag, "tag", "", "result tag (default: predictions file name)")
	_ = cmd.MarkFlagRequired("labels")
	_ = cmd.MarkFlagRequired("predictions")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}

func runEvaluate(opts *EvaluateOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	for _, name := range opts.Indicators {
		if !evaluate.IsIndicator(name) {
			return NewExitError(ExitCommandError,
				fmt.Sprintf("unknown indicator %q (valid: %s)", name, strings.Join(evaluate.Indicators, ", ")))
		}
	}

	result, err := evaluate.Run(evaluate.Options{
		Labels:      opts.Labels,
		Predictions: opts.Predictions,
		Output:      opts.Output,
		Indicators:  opts.Indicators,
		Tag:         opts.Tag,
	})
	if err != nil {
		if errors.Is(err, evaluate.ErrFileNotExist) || errors.Is(err, evaluate.ErrFilenameNotSupported) {
			return WrapExitError(ExitCommandError, "invalid input", err)
		}
		return WrapExitError(ExitFailure, "evaluation failed", err)
	}

	return formatter.Success(EvaluateResult{Output: opts.Output, Scores: result})
}

// RenderText implements TextRenderer. Each score is listed as
// "tag[index] indicator = [value]".
func (r EvaluateResult) RenderText(w io.Writer) {
	fmt.Fprintf(w, "✓ Wrote %s\n", r.Output)
	for _, tag := range r.Scores.SortedKeys() {
		byIndex, ok := r.Scores[tag].(jsontree.Object)
		if !ok {
			continue
		}
		for _, index := range byIndex.SortedKeys() {
			list, _ := byIndex[index].(jsontree.Array)
			for _, item := range list {
				entry, _ := item.(jsontree.Object)
				for _, name := range entry.SortedKeys() {
					fmt.Fprintf(w, "  %s[%s] %s = %s\n", tag, index, name, formatValues(entry[name]))
				}
			}
		}
	}
}

func formatValues(v jsontree.Value) string {
	data, err := jsontree.Marshal(v)
	if err != nil {
		return "?"
	}
	return string(data)
}
