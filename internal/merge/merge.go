// Package merge combines JSON result documents.
package merge

import (
	"fmt"
	"os"

	"github.com/roach88/lrsweek/internal/jsontree"
)

// Mode selects how documents are combined.
type Mode string

const (
	// Deep overlays documents recursively; nested objects merge and later
	// scalars and arrays win.
	Deep Mode = "deep"
	// Shallow overlays top-level keys; later documents replace whole keys.
	Shallow Mode = "shallow"
	// List collects the documents into a JSON array, in input order.
	List Mode = "list"
)

// Modes lists the valid modes.
var Modes = []Mode{Deep, Shallow, List}

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	for _, m := range Modes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("invalid merge mode %q: must be one of %v", s, Modes)
}

// Documents combines already-decoded documents.
func Documents(mode Mode, docs []jsontree.Value) (jsontree.Value, error) {
	switch mode {
	case Deep:
		var out jsontree.Value = jsontree.Object{}
		for _, d := range docs {
			out = jsontree.DeepMerge(out, d)
		}
		return out, nil

	case Shallow:
		out := jsontree.Object{}
		for i, d := range docs {
			obj, ok := d.(jsontree.Object)
			if !ok {
				return nil, fmt.Errorf("document %d: shallow merge needs a JSON object, got %T", i, d)
			}
			out = jsontree.Overlay(out, obj)
		}
		return out, nil

	case List:
		out := make(jsontree.Array, 0, len(docs))
		for _, d := range docs {
			out = append(out, jsontree.Clone(d))
		}
		return out, nil

	default:
		return nil, fmt.Errorf("invalid merge mode %q", mode)
	}
}

// Files reads every input, merges them and writes the result to output.
// List mode output is indented by four spaces; the others are compact.
func Files(mode Mode, inputs []string, output string) (jsontree.Value, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no input files")
	}

	docs := make([]jsontree.Value, 0, len(inputs))
	for _, path := range inputs {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		v, err := jsontree.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		docs = append(docs, v)
	}

	merged, err := Documents(mode, docs)
	if err != nil {
		return nil, err
	}

	var out []byte
	if mode == List {
		out, err = jsontree.MarshalIndent(merged, "    ")
	} else {
		out, err = jsontree.Marshal(merged)
	}
	if err != nil {
		return nil, fmt.Errorf("encode merged document: %w", err)
	}
	if err := os.WriteFile(output, out, 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", output, err)
	}
	return merged, nil
}
