package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/admitly/admissions/internal/errors"
	"github.com/admitly/admissions/pkg/form"
	"github.com/admitly/admissions/pkg/formsync"
	"github.com/admitly/admissions/pkg/leads"
	"github.com/admitly/admissions/pkg/urlparam"
)

const maxSubmitBody = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError renders err as {"error": {...}}. Errors that are not
// *errors.Error are reported as a bare 500 without their text.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	e, ok := errors.As(err)
	if !ok {
		s.logger.Error("unhandled error", "path", r.URL.Path, "error", err)
		e = errors.Newf("", "Internal server error")
	}
	status := e.Status()
	if status >= 500 {
		s.logger.Warn("request failed", "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, map[string]any{"error": e})
}

func (s *Server) schema(w http.ResponseWriter, r *http.Request) (*form.Schema, bool) {
	name := chi.URLParam(r, "form")
	schema, ok := s.forms.Get(name)
	if !ok {
		s.writeError(w, r, errors.New(errors.CodeUnknownForm).WithDetail(name))
		return nil, false
	}
	return schema, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.loader.Load(r.Context()))
}

type formSummary struct {
	Name    string       `json:"name"`
	Title   string       `json:"title,omitempty"`
	Doctype string       `json:"doctype"`
	Fields  []form.Field `json:"fields"`
}

func (s *Server) handleForms(w http.ResponseWriter, r *http.Request) {
	names := s.forms.Names()
	sort.Strings(names)
	out := make([]formSummary, 0, len(names))
	for _, name := range names {
		schema, _ := s.forms.Get(name)
		out = append(out, formSummary{
			Name:    schema.Name,
			Title:   schema.Title,
			Doctype: schema.Doctype,
			Fields:  schema.Fields,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"forms": out})
}

type hydrateResponse struct {
	Form  string     `json:"form"`
	State form.State `json:"state"`

	// Query is the canonical query string for State.
	Query string `json:"query"`
}

// handleHydrate decodes the request's own query string for a form, the way
// a session would on mount.
func (s *Server) handleHydrate(w http.ResponseWriter, r *http.Request) {
	schema, ok := s.schema(w, r)
	if !ok {
		return
	}
	catalog := s.loader.Load(r.Context())
	st := formsync.Hydrate(schema, r.URL.RawQuery, catalog)
	writeJSON(w, http.StatusOK, hydrateResponse{
		Form:  schema.Name,
		State: st,
		Query: urlparam.Encode(st),
	})
}

type submitRequest struct {
	// State carries field values; missing fields take their defaults.
	State map[string]json.RawMessage `json:"state"`

	// Query is used instead of State when State is empty.
	Query string `json:"query"`
}

type submitResponse struct {
	Doctype string `json:"doctype"`
	Name    string `json:"name"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	schema, ok := s.schema(w, r)
	if !ok {
		return
	}
	var req submitRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSubmitBody))
	if err == nil {
		err = json.Unmarshal(body, &req)
	}
	if err != nil {
		s.writeError(w, r, errors.New(errors.CodeBadMessage).WithDetail(err.Error()))
		return
	}

	var st form.State
	if len(req.State) > 0 {
		st, err = decodeState(schema, req.State)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
	} else {
		st = formsync.Hydrate(schema, req.Query, s.loader.Load(r.Context()))
	}

	receipt, err := s.submit(r.Context(), schema, st)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

// decodeState converts raw JSON field values, checking names and kinds.
func decodeState(schema *form.Schema, raw map[string]json.RawMessage) (form.State, error) {
	st := make(form.State, len(raw))
	for name, data := range raw {
		if _, ok := schema.Field(name); !ok {
			return nil, errors.New(errors.CodeUnknownField).WithField(name, "unknown field")
		}
		var v form.Value
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, errors.New(errors.CodeFieldKind).WithField(name, err.Error())
		}
		if err := schema.Check(name, v); err != nil {
			return nil, errors.New(errors.CodeFieldKind).WithField(name, err.Error())
		}
		st[name] = v
	}
	return st, nil
}

// submit validates st and forwards its payload to the CRM.
func (s *Server) submit(ctx context.Context, schema *form.Schema, st form.State) (_ submitResponse, err error) {
	defer func() {
		if s.metrics == nil {
			return
		}
		outcome := "accepted"
		if e, ok := errors.As(err); ok {
			outcome = string(e.Category)
		} else if err != nil {
			outcome = "error"
		}
		s.metrics.Submissions.WithLabelValues(schema.Name, outcome).Inc()
	}()

	full := schema.Complete(st)
	if verrs := schema.Validate(full); len(verrs) > 0 {
		e := errors.New(errors.CodeValidation).WithFields(verrs.ErrorMap())
		if verrs[0].Message != "" {
			e.WithMessage(verrs[0].Message)
		}
		return submitResponse{}, e
	}
	if s.crm == nil {
		return submitResponse{}, errors.New(errors.CodeUpstreamRequest).WithDetail("no CRM configured")
	}
	r, err := s.crm.Submit(ctx, schema.Doctype, schema.Payload(full))
	if err != nil {
		return submitResponse{}, errors.FromError(err, errors.CodeSubmitRejected)
	}
	return submitResponse{Doctype: r.Doctype, Name: r.Name}, nil
}

type leadsResponse struct {
	Data       []leads.Record   `json:"data"`
	Pagination leads.Pagination `json:"pagination"`
	PageState  leads.PageState  `json:"page_state"`
	Query      string           `json:"query"`
	Links      leads.Links      `json:"links"`
}

func (s *Server) handleLeads(w http.ResponseWriter, r *http.Request) {
	if s.crm == nil {
		s.writeError(w, r, errors.New(errors.CodeUpstreamRequest).WithDetail("no CRM configured"))
		return
	}
	statuses := s.loader.Load(r.Context()).Set(leads.StatusSet)
	p := leads.Decode(r.URL.RawQuery, s.limits, statuses)

	res, err := s.crm.Leads(r.Context(), p.Query())
	if err != nil {
		s.writeError(w, r, errors.FromError(err, errors.CodeUpstreamRequest))
		return
	}
	leads.Decorate(&res, statuses)
	writeJSON(w, http.StatusOK, leadsResponse{
		Data:       res.Data,
		Pagination: res.Pagination,
		PageState:  p,
		Query:      leads.Encode(p),
		Links:      leads.PageLinks(p, res.Pagination),
	})
}
