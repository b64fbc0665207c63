package harness

import (
	"github.com/roach88/lrsweek/internal/features"
)

// ExportedFile is one weekly CSV written by a scenario run.
type ExportedFile struct {
	Name    string
	Content string
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall scenario success.
	Pass bool `json:"pass"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Err is the pipeline error, if any.
	Err error `json:"-"`

	Table    features.Table     `json:"-"`
	Join     features.JoinStats `json:"-"`
	Files    []ExportedFile     `json:"-"`
	Degraded int                `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
		Files:  []ExportedFile{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
