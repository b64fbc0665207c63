package features

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

// DefaultPrefix names the weekly feature files.
const DefaultPrefix = "logSP31"

// Header is the column row of every weekly CSV.
var Header = []string{"classLabel", "sex", "scholarship", "repeatingClass", "log_week", "cumulative_logs"}

// Exporter writes one CSV per week to Dir.
type Exporter struct {
	Dir    string
	Prefix string
}

// Path returns <dir>/<prefix>_w<week>.csv.
func (e Exporter) Path(week int) string {
	prefix := e.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return filepath.Join(e.Dir, fmt.Sprintf("%s_w%d.csv", prefix, week))
}

// Export writes every week of t and returns the written paths in week
// order. The first failure aborts the export.
func (e Exporter) Export(t Table) ([]string, error) {
	if e.Dir != "" {
		if err := os.MkdirAll(e.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}

	paths := make([]string, 0, len(t.Weeks))
	for _, w := range t.Weeks {
		path := e.Path(w)
		if err := writeFile(path, t.Week(w)); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeFile(path string, rows []FeatureRow) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()

	if err := WriteCSV(f, rows); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// WriteCSV writes the header and one record per row.
func WriteCSV(w io.Writer, rows []FeatureRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range rows {
		record := []string{
			r.ClassLabel,
			r.Sex,
			r.Scholarship,
			r.RepeatingClass,
			strconv.Itoa(r.LogWeek),
			strconv.Itoa(r.CumulativeLogs),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
