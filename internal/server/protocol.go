package server

import (
	"encoding/json"

	"github.com/admitly/admissions/pkg/form"
)

// Client message types.
const (
	msgMount  = "mount"
	msgQuery  = "query"
	msgSet    = "set"
	msgSubmit = "submit"
)

// Server message types.
const (
	msgState      = "state"
	msgURLReplace = "url_replace"
	msgSubmitted  = "submitted"
	msgError      = "error"
)

// clientMessage is any message a form page sends.
type clientMessage struct {
	Type  string          `json:"type"`
	Query string          `json:"query,omitempty"`
	Field string          `json:"field,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

// serverMessage is any message the session sends.
type serverMessage struct {
	Type     string     `json:"type"`
	Phase    string     `json:"phase,omitempty"`
	State    form.State `json:"state,omitempty"`
	Mirrored []string   `json:"mirrored,omitempty"`
	Query    *string    `json:"query,omitempty"`
	Name     string     `json:"name,omitempty"`
	Code     string     `json:"code,omitempty"`
	Message  string     `json:"message,omitempty"`
	Field    string     `json:"field,omitempty"`
}
