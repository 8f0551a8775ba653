// Package server exposes the admissions forms over HTTP.
//
// # Routes
//
//	GET  /healthz
//	GET  /metrics
//	GET  /api/metadata                 option catalog
//	GET  /api/forms                    form schemas
//	GET  /api/forms/{form}/hydrate?... one-shot hydration of a query string
//	POST /api/forms/{form}/submit      validate and forward to the CRM
//	GET  /api/leads?...                one page of leads
//	GET  /ws/forms/{form}              form session
//
// # Form sessions
//
// Each WebSocket connection owns one formsync.Controller. A single event
// loop goroutine touches the controller; the read loop only decodes client
// messages and queues them, and background work (the metadata fetch, a
// submission) posts its result back onto the loop. Results arriving after
// the session closed are dropped.
//
// Client messages:
//
//	{"type": "mount", "query": "gender=Nam&aspirations=cntt"}
//	{"type": "query", "query": "..."}            back/forward navigation
//	{"type": "set", "field": "fullName", "value": "Nguyễn Văn A"}
//	{"type": "submit"}
//
// Server messages:
//
//	{"type": "state", "phase": "ready", "state": {...}}
//	{"type": "url_replace", "query": "..."}      history.replaceState, no scroll
//	{"type": "submitted", "name": "ADM-0001"}
//	{"type": "error", "code": "A040", "message": "...", "field": "phone"}
package server
