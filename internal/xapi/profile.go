package xapi

import (
	_ "embed"
	"fmt"
	"strconv"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cuejson "cuelang.org/go/encoding/json"

	"github.com/roach88/lrsweek/internal/jsontree"
)

//go:embed profile.cue
var profileSchema []byte

// AgentProfile holds a student's demographic record and class label.
// Scalar fields keep the textual rendering of whatever the LRS stored.
type AgentProfile struct {
	StudentID        string
	Sex              string
	RegistrationDate string
	StartDate        string
	Scholarship      string
	RepeatingClass   string
	AvgScore         string
	ClassLabel       string
}

// Exam is one dated assessment of a course.
type Exam struct {
	ID       string
	Deadline string
}

// ActivityProfile holds a course schedule.
type ActivityProfile struct {
	CourseID  string
	StartDate string
	EndDate   string
	Exams     []Exam
}

// ProfileError reports a profile document that failed schema validation.
type ProfileError struct {
	Kind    string // "agent" | "activity"
	ID      string
	Field   string
	Message string
}

func (e *ProfileError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s profile %s: %s: %s", e.Kind, e.ID, e.Field, e.Message)
	}
	return fmt.Sprintf("%s profile %s: %s", e.Kind, e.ID, e.Message)
}

// ProfileDecoder validates profile documents against the embedded CUE
// definitions before extracting fields. Not safe for concurrent use.
type ProfileDecoder struct {
	ctx      *cue.Context
	agent    cue.Value
	activity cue.Value
}

// NewProfileDecoder compiles the profile schema.
func NewProfileDecoder() (*ProfileDecoder, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileBytes(profileSchema, cue.Filename("profile.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile profile schema: %w", err)
	}
	return &ProfileDecoder{
		ctx:      ctx,
		agent:    schema.LookupPath(cue.ParsePath("#AgentProfile")),
		activity: schema.LookupPath(cue.ParsePath("#ActivityProfile")),
	}, nil
}

// Agent validates and decodes an agent profile. id names the document in errors.
func (d *ProfileDecoder) Agent(id string, data []byte) (AgentProfile, error) {
	obj, err := d.validate("agent", id, d.agent, data)
	if err != nil {
		return AgentProfile{}, err
	}
	return AgentProfile{
		StudentID:        Text(obj["userid"]),
		Sex:              Text(obj["Sex"]),
		RegistrationDate: Text(obj["RegistrationDate"]),
		StartDate:        Text(obj["StartDate"]),
		Scholarship:      Text(obj["scholarship"]),
		RepeatingClass:   Text(obj["repeatingClass"]),
		AvgScore:         Text(obj["AvgScore"]),
		ClassLabel:       Text(obj["classLabel"]),
	}, nil
}

// Activity validates and decodes an activity profile.
func (d *ProfileDecoder) Activity(id string, data []byte) (ActivityProfile, error) {
	obj, err := d.validate("activity", id, d.activity, data)
	if err != nil {
		return ActivityProfile{}, err
	}
	p := ActivityProfile{
		CourseID:  Text(obj["course_id"]),
		StartDate: Text(obj["StartDate"]),
		EndDate:   Text(obj["EndDate"]),
		Exams:     make([]Exam, 0),
	}
	if exams, ok := obj["Exams"].(jsontree.Array); ok {
		for _, e := range exams {
			eo, _ := e.(jsontree.Object)
			p.Exams = append(p.Exams, Exam{ID: Text(eo["id"]), Deadline: Text(eo["Deadline"])})
		}
	}
	return p, nil
}

func (d *ProfileDecoder) validate(kind, id string, def cue.Value, data []byte) (jsontree.Object, error) {
	expr, err := cuejson.Extract(kind+"-profile.json", data)
	if err != nil {
		return nil, &ProfileError{Kind: kind, ID: id, Message: fmt.Sprintf("invalid JSON: %v", err)}
	}
	v := def.Unify(d.ctx.BuildExpr(expr))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, cueProfileError(kind, id, err)
	}

	tree, err := jsontree.Decode(data)
	if err != nil {
		return nil, &ProfileError{Kind: kind, ID: id, Message: err.Error()}
	}
	obj, ok := tree.(jsontree.Object)
	if !ok {
		return nil, &ProfileError{Kind: kind, ID: id, Message: "not a JSON object"}
	}
	return obj, nil
}

func cueProfileError(kind, id string, err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &ProfileError{Kind: kind, ID: id, Message: err.Error()}
	}
	first := errs[0]
	format, args := first.Msg()
	return &ProfileError{
		Kind:    kind,
		ID:      id,
		Field:   strings.Join(first.Path(), "."),
		Message: fmt.Sprintf(format, args...),
	}
}

// Text renders a scalar the way it appears in the source document: strings
// unquoted, numbers as their literal, booleans as true/false, null as "".
func Text(v jsontree.Value) string {
	switch val := v.(type) {
	case jsontree.String:
		return string(val)
	case jsontree.Number:
		return string(val)
	case jsontree.Bool:
		return strconv.FormatBool(bool(val))
	case nil, jsontree.Null:
		return ""
	default:
		out, err := jsontree.Marshal(v)
		if err != nil {
			return ""
		}
		return string(out)
	}
}
