// Package evaluate scores a predictions file against true labels and writes
// the indicators as {tag: {week: [{indicator: [value]}]}}.
package evaluate

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/roach88/lrsweek/internal/jsontree"
)

var (
	// ErrFileNotExist is returned when an input file is missing.
	ErrFileNotExist = errors.New("file does not exist")

	// ErrFilenameNotSupported is returned when a predictions file name does
	// not end in _<index>.
	ErrFilenameNotSupported = errors.New("filename not supported")
)

var filenamePattern = regexp.MustCompile(`.*_([0-9]+)$`)

// VerifyFilename checks that path exists and that its base name ends in
// _<index>, returning the index.
func VerifyFilename(path string) (int, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("%s: %w", path, ErrFileNotExist)
		}
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	m := filenamePattern.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return 0, fmt.Errorf("%q does not match %s: %w", path, filenamePattern, ErrFilenameNotSupported)
	}
	idx, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("%q index: %w", path, ErrFilenameNotSupported)
	}
	return idx, nil
}

// ReadLabels returns the first column of a CSV file, skipping the header row.
// Numeric labels are normalized so 1 and 1.0 compare equal.
func ReadLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrFileNotExist)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	labels := make([]string, 0)
	header := true
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if header {
			header = false
			continue
		}
		if len(rec) == 0 {
			continue
		}
		labels = append(labels, normalizeLabel(rec[0]))
	}
	return labels, nil
}

func normalizeLabel(s string) string {
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return s
}

// Options describes one evaluation run.
type Options struct {
	Labels      string   // CSV of true labels, first column
	Predictions string   // CSV of predictions, name ends in _<index>
	Output      string   // result JSON path
	Indicators  []string // empty yields an empty indicator list
	Tag         string   // defaults to the predictions file name
}

// Run verifies the predictions file name, computes the indicators and writes
// the result. Nothing is written when any check fails.
func Run(opts Options) (jsontree.Object, error) {
	index, err := VerifyFilename(opts.Predictions)
	if err != nil {
		return nil, err
	}
	for _, name := range opts.Indicators {
		if !IsIndicator(name) {
			return nil, fmt.Errorf("unknown indicator %q (valid: %v)", name, Indicators)
		}
	}

	truth, err := ReadLabels(opts.Labels)
	if err != nil {
		return nil, err
	}
	pred, err := ReadLabels(opts.Predictions)
	if err != nil {
		return nil, err
	}
	scores, err := Compute(truth, pred, opts.Indicators)
	if err != nil {
		return nil, err
	}

	tag := opts.Tag
	if tag == "" {
		tag = filepath.Base(opts.Predictions)
	}
	result := Result(tag, index, scores)

	if opts.Output != "" {
		if err := WriteResult(opts.Output, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// Result builds {tag: {index: [{indicator: [value]}, ...]}}.
func Result(tag string, index int, scores []Score) jsontree.Object {
	list := make(jsontree.Array, 0, len(scores))
	for _, s := range scores {
		list = append(list, jsontree.Object{s.Name: jsontree.Array{jsontree.Float(s.Value)}})
	}
	return jsontree.Object{
		tag: jsontree.Object{strconv.Itoa(index): list},
	}
}

// WriteResult writes a result document indented by four spaces.
func WriteResult(path string, result jsontree.Value) error {
	data, err := jsontree.MarshalIndent(result, "    ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
