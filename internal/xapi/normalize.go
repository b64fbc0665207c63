package xapi

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
)

// Verb URIs with dedicated handling. Every other verb is treated as a view.
const (
	VerbScored = "http://adlnet.gov/expapi/verbs/scored"
	VerbSubmit = "http://activitystrea.ms/schema/1.0/submit"
)

var mboxPattern = regexp.MustCompile(`mailto:(\d+)`)

// MalformedStatementError reports a statement missing a field the pipeline
// needs to attribute it.
type MalformedStatementError struct {
	Field   string
	Message string
}

func (e *MalformedStatementError) Error() string {
	return fmt.Sprintf("malformed statement: %s: %s", e.Field, e.Message)
}

// Event is the canonical tuple extracted from one statement.
type Event struct {
	StudentID string
	ObjectID  string
	CourseID  string
	Timestamp string
	Action    string
}

// Record is a normalized statement. The set of implementations is closed:
// Scored, Submitted and Viewed.
type Record interface {
	Base() Event
	record()
}

// Scored carries a grade and the actor payload used to resolve the agent profile.
type Scored struct {
	Event
	Grade float64
	Actor json.RawMessage
}

// Submitted is a submission log entry.
type Submitted struct {
	Event
}

// Viewed is any other log entry. HasContext is false when the statement had
// no context block and CourseID fell back to the object id.
type Viewed struct {
	Event
	HasContext bool
}

func (r Scored) Base() Event    { return r.Event }
func (r Submitted) Base() Event { return r.Event }
func (r Viewed) Base() Event    { return r.Event }

func (Scored) record()    {}
func (Submitted) record() {}
func (Viewed) record()    {}

// StudentID extracts the digits of a mailto: mbox.
func StudentID(mbox string) (string, bool) {
	m := mboxPattern.FindStringSubmatch(mbox)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Normalize branches on the verb and returns the matching Record.
func Normalize(stmt Statement) (Record, error) {
	studentID, ok := StudentID(stmt.Actor.Mbox)
	if !ok {
		return nil, &MalformedStatementError{
			Field:   "actor.mbox",
			Message: fmt.Sprintf("no student id in %q", stmt.Actor.Mbox),
		}
	}
	if stmt.Object.ID == "" {
		return nil, &MalformedStatementError{Field: "object.id", Message: "missing"}
	}
	if stmt.Timestamp == "" {
		return nil, &MalformedStatementError{Field: "timestamp", Message: "missing"}
	}

	ev := Event{
		StudentID: studentID,
		ObjectID:  stmt.Object.ID,
		Timestamp: stmt.Timestamp,
		Action:    stmt.Verb.ID,
	}

	switch stmt.Verb.ID {
	case VerbScored:
		course, err := parentCourse(stmt)
		if err != nil {
			return nil, err
		}
		ev.CourseID = course
		grade, err := rawScore(stmt)
		if err != nil {
			return nil, err
		}
		return Scored{Event: ev, Grade: grade, Actor: stmt.Actor.Raw}, nil

	case VerbSubmit:
		course, err := parentCourse(stmt)
		if err != nil {
			return nil, err
		}
		ev.CourseID = course
		return Submitted{Event: ev}, nil

	default:
		if stmt.Context == nil {
			ev.CourseID = stmt.Object.ID
			return Viewed{Event: ev}, nil
		}
		course, err := parentCourse(stmt)
		if err != nil {
			return nil, err
		}
		ev.CourseID = course
		return Viewed{Event: ev, HasContext: true}, nil
	}
}

func parentCourse(stmt Statement) (string, error) {
	if stmt.Context == nil {
		return "", &MalformedStatementError{Field: "context", Message: "missing"}
	}
	parents := stmt.Context.ContextActivities.Parent
	if len(parents) == 0 || parents[0].ID == "" {
		return "", &MalformedStatementError{
			Field:   "context.contextActivities.parent",
			Message: "no parent activity",
		}
	}
	return parents[0].ID, nil
}

func rawScore(stmt Statement) (float64, error) {
	if stmt.Result == nil || stmt.Result.Score == nil || stmt.Result.Score.Raw == nil {
		return 0, &MalformedStatementError{Field: "result.score.raw", Message: "missing"}
	}
	f, err := strconv.ParseFloat(string(*stmt.Result.Score.Raw), 64)
	if err != nil {
		return 0, &MalformedStatementError{Field: "result.score.raw", Message: err.Error()}
	}
	return f, nil
}
