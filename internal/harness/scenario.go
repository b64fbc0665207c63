package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines a feature scenario: a statement stream and the profiles
// fetched for it, run through the feature pipeline and checked against
// assertions on the weekly table.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// RunID is the run id the scenario is stored under. Defaults to
	// "scenario-run".
	RunID string `yaml:"run_id,omitempty"`

	// Prefix names the exported files. Defaults to the exporter default.
	Prefix string `yaml:"prefix,omitempty"`

	// Statements are raw xAPI statements in stream order.
	Statements []map[string]any `yaml:"statements"`

	// Agents are agent profile documents in fetch order.
	Agents []Document `yaml:"agents"`

	// Activities are activity profile documents in fetch order.
	Activities []Document `yaml:"activities,omitempty"`

	// ExpectError, when set, is a substring of the error the pipeline must
	// fail with. Assertions are not evaluated for failing scenarios.
	ExpectError string `yaml:"expect_error,omitempty"`

	// Assertions validate the feature table and the stored run.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Document is a profile body keyed by student or course id.
type Document struct {
	Key  string         `yaml:"key"`
	Body map[string]any `yaml:"body"`
}

// Assertion validates the feature table or the stored run.
type Assertion struct {
	// Type specifies the assertion type:
	// - "weeks": the exported weeks, in order
	// - "row": the row of a student in a week (subset match on Expect)
	// - "absent": a student has no row in a week
	// - "row_count": number of rows in a week
	// - "invariants": cumulative and eligibility invariants hold for every row
	// - "degraded": number of events whose course id fell back to the object id
	// - "stored": number of rows in a store table matching Where
	Type string `yaml:"type"`

	// Week is the computed week (used by row, absent, row_count).
	Week int `yaml:"week,omitempty"`

	// Student is the student id (used by row, absent).
	Student string `yaml:"student,omitempty"`

	// Weeks is the expected week list (used by weeks).
	Weeks []int `yaml:"weeks,omitempty"`

	// Expect contains expected row fields (used by row). Keys are the CSV
	// column names plus student_id and week.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Count is the expected count (used by row_count, degraded, stored).
	Count int `yaml:"count,omitempty"`

	// Table and Where select store rows (used by stored).
	Table string         `yaml:"table,omitempty"`
	Where map[string]any `yaml:"where,omitempty"`
}

// Assertion type constants.
const (
	AssertWeeks      = "weeks"
	AssertRow        = "row"
	AssertAbsent     = "absent"
	AssertRowCount   = "row_count"
	AssertInvariants = "invariants"
	AssertDegraded   = "degraded"
	AssertStored     = "stored"
)

// DefaultRunID is used when a scenario does not name its run.
const DefaultRunID = "scenario-run"

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	if scenario.RunID == "" {
		scenario.RunID = DefaultRunID
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Statements) == 0 {
		return fmt.Errorf("statements list is required and must be non-empty")
	}
	if s.ExpectError == "" && len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required unless expect_error is set")
	}

	for i, doc := range s.Agents {
		if doc.Key == "" {
			return fmt.Errorf("agents[%d]: key is required", i)
		}
		if doc.Body == nil {
			return fmt.Errorf("agents[%d]: body is required", i)
		}
	}
	for i, doc := range s.Activities {
		if doc.Key == "" {
			return fmt.Errorf("activities[%d]: key is required", i)
		}
		if doc.Body == nil {
			return fmt.Errorf("activities[%d]: body is required", i)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertWeeks:
		if a.Weeks == nil {
			return fmt.Errorf("assertions[%d]: weeks list is required for weeks", index)
		}
	case AssertRow:
		if a.Week == 0 || a.Student == "" {
			return fmt.Errorf("assertions[%d]: week and student are required for row", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for row", index)
		}
	case AssertAbsent:
		if a.Week == 0 || a.Student == "" {
			return fmt.Errorf("assertions[%d]: week and student are required for absent", index)
		}
	case AssertRowCount:
		if a.Week == 0 {
			return fmt.Errorf("assertions[%d]: week is required for row_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for row_count", index)
		}
	case AssertInvariants:
	case AssertDegraded:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for degraded", index)
		}
	case AssertStored:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for stored", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
