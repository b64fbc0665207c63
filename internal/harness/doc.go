// Package harness runs feature scenarios: small, declarative statement
// streams with their profiles, pushed through the same store and pipeline
// code as `lrsweek features --from-db`, and checked against the resulting
// weekly feature table.
//
// # Scenario Format
//
// Scenarios are YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	statements:
//	  - actor: {mbox: "mailto:42@lola.example"}
//	    verb: {id: "http://id.tincanapi.com/verb/viewed"}
//	    object: {id: "http://lola.example/page_1"}
//	    timestamp: "2018-01-10T10:00:00Z"
//	agents:
//	  - key: "42"
//	    body: {userid: "42", Sex: F, StartDate: "03/01/2018", ...}
//	activities:
//	  - key: "http://lola.example/course_1"
//	    body: {course_id: "1", StartDate: "04/09/2017", EndDate: "30/01/2018"}
//	assertions:
//	  - type: row
//	    week: 20
//	    student: "42"
//	    expect: {log_week: 1, cumulative_logs: 1}
//
// A scenario with expect_error passes when the pipeline fails with an
// error containing that text.
//
// # Assertion Types
//
//   - weeks: the exported weeks, in order
//   - row: fields of a student's row in a week (subset match)
//   - absent: a student has no row in a week
//   - row_count: the number of rows in a week
//   - invariants: cumulative and eligibility invariants hold for every row
//   - degraded: the number of events whose course id fell back to the object id
//   - stored: the number of rows in a store table matching a where clause
//
// # Deterministic Testing
//
// Every scenario runs against a fresh in-memory SQLite store with a fixed
// run id (testutil.FixedRunID) and start time (testutil.StepClock with a
// zero step), so the exported files are byte-identical across runs and can
// be compared against golden snapshots.
package harness
