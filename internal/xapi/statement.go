package xapi

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Statement is the subset of an xAPI statement the pipeline reads.
type Statement struct {
	Actor     Actor    `json:"actor"`
	Verb      Verb     `json:"verb"`
	Object    Object   `json:"object"`
	Context   *Context `json:"context,omitempty"`
	Result    *Result  `json:"result,omitempty"`
	Timestamp string   `json:"timestamp"`
}

// Actor keeps the mbox and the full actor payload. The payload is sent back
// verbatim as the agent parameter of the agent-profile request.
type Actor struct {
	Mbox string
	Raw  json.RawMessage
}

// UnmarshalJSON decodes the mbox and retains the raw bytes.
func (a *Actor) UnmarshalJSON(data []byte) error {
	var aux struct {
		Mbox string `json:"mbox"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	a.Mbox = aux.Mbox
	a.Raw = append(json.RawMessage(nil), bytes.TrimSpace(data)...)
	return nil
}

// MarshalJSON writes the retained payload, or a minimal actor when none was decoded.
func (a Actor) MarshalJSON() ([]byte, error) {
	if len(a.Raw) > 0 {
		return a.Raw, nil
	}
	return json.Marshal(struct {
		Mbox string `json:"mbox,omitempty"`
	}{a.Mbox})
}

type Verb struct {
	ID string `json:"id"`
}

type Object struct {
	ID string `json:"id"`
}

type Context struct {
	ContextActivities ContextActivities `json:"contextActivities"`
}

type ContextActivities struct {
	Parent []Object `json:"parent"`
}

type Result struct {
	Score *Score `json:"score,omitempty"`
}

type Score struct {
	Raw *json.Number `json:"raw,omitempty"`
}

// Page is one response of the statements resource.
type Page struct {
	Statements []Statement `json:"statements"`
	More       string      `json:"more,omitempty"`
}

// DecodeStatement parses a single statement document.
func DecodeStatement(data []byte) (Statement, error) {
	var stmt Statement
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&stmt); err != nil {
		return Statement{}, fmt.Errorf("decode statement: %w", err)
	}
	return stmt, nil
}

// DecodePage parses a statements page.
func DecodePage(data []byte) (Page, error) {
	var page Page
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&page); err != nil {
		return Page{}, fmt.Errorf("decode statements page: %w", err)
	}
	return page, nil
}
