package frappe

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/admitly/admissions/internal/errors"
)

// detailEntry is one field-level problem. Proxies in front of the CRM send
// {"loc": [...], "msg": "..."}; Frappe validation hooks send
// {"field": "...", "message": "..."}.
type detailEntry struct {
	Loc     []any  `json:"loc"`
	Field   string `json:"field"`
	Msg     string `json:"msg"`
	Message string `json:"message"`
}

func (d detailEntry) text() string {
	if d.Msg != "" {
		return d.Msg
	}
	return d.Message
}

func (d detailEntry) field() string {
	if d.Field != "" {
		return d.Field
	}
	for i := len(d.Loc) - 1; i >= 0; i-- {
		if s, ok := d.Loc[i].(string); ok && s != "body" {
			return s
		}
	}
	return ""
}

type errorBody struct {
	Detail         json.RawMessage `json:"detail"`
	Errors         []detailEntry   `json:"errors"`
	ServerMessages string          `json:"_server_messages"`
	Exception      string          `json:"exception"`
	ExcType        string          `json:"exc_type"`
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// rejection turns a non-2xx submit response into a user-facing error.
func rejection(resp response) *errors.Error {
	e := errors.New(errors.CodeSubmitRejected).
		WithDetail(fmt.Sprintf("status %d", resp.status))

	var body errorBody
	if err := json.Unmarshal(resp.body, &body); err != nil {
		return e
	}

	var entries []detailEntry
	if len(body.Detail) > 0 {
		var list []detailEntry
		if json.Unmarshal(body.Detail, &list) == nil {
			entries = append(entries, list...)
		} else {
			var s string
			if json.Unmarshal(body.Detail, &s) == nil && s != "" {
				entries = append(entries, detailEntry{Message: s})
			}
		}
	}
	entries = append(entries, body.Errors...)

	first := ""
	for _, d := range entries {
		msg := strings.TrimSpace(d.text())
		if msg == "" {
			continue
		}
		if first == "" {
			first = msg
		}
		if name := d.field(); name != "" {
			if _, seen := e.Fields[name]; !seen {
				e.WithField(name, msg)
			}
		}
	}
	if first == "" {
		first = firstServerMessage(body.ServerMessages)
	}
	if first != "" {
		e.WithMessage(first)
	}
	if body.ExcType != "" {
		e.WithDetail(fmt.Sprintf("status %d: %s", resp.status, body.ExcType))
	}
	return e
}

// firstServerMessage decodes Frappe's _server_messages: a JSON array of
// JSON-encoded objects carrying a "message".
func firstServerMessage(raw string) string {
	if raw == "" {
		return ""
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return ""
	}
	for _, item := range list {
		var m struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			continue
		}
		if msg := strings.TrimSpace(tagPattern.ReplaceAllString(m.Message, "")); msg != "" {
			return msg
		}
	}
	return ""
}
