package frappe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/admitly/admissions/internal/errors"
	"github.com/admitly/admissions/pkg/leads"
	"github.com/admitly/admissions/pkg/options"
)

// Metadata fetches the option catalog from the metadata method.
func (c *Client) Metadata(ctx context.Context) (options.Catalog, error) {
	path := "/api/method/" + c.metadataMethod
	resp, err := c.do(ctx, "metadata", http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, errors.New(errors.CodeUpstreamRequest).WithDetail("GET " + path).Wrap(err)
	}
	if !resp.ok() {
		return nil, errors.New(errors.CodeUpstreamStatus).
			WithDetail(fmt.Sprintf("GET %s returned %d", path, resp.status))
	}
	catalog, err := options.ParseCatalog(unwrapMessage(resp.body))
	if err != nil {
		return nil, errors.New(errors.CodeUpstreamDecode).Wrap(err)
	}
	return catalog, nil
}

// Receipt identifies a document the CRM accepted.
type Receipt struct {
	Doctype string `json:"doctype"`
	Name    string `json:"name"`
}

// Submit inserts payload as a new document of doctype. Rejections come back
// as *errors.Error whose Message is the first field-level detail the CRM
// sent, or a generic message.
func (c *Client) Submit(ctx context.Context, doctype string, payload map[string]any) (Receipt, error) {
	path := "/api/resource/" + doctype
	resp, err := c.do(ctx, "submit", http.MethodPost, path, nil, payload)
	if err != nil {
		return Receipt{}, errors.New(errors.CodeSubmitRejected).Wrap(err)
	}
	if !resp.ok() {
		e := rejection(resp)
		c.logger.Info("crm rejected submission",
			"doctype", doctype,
			"status", resp.status,
			"message", e.Message,
		)
		return Receipt{}, e
	}

	var body struct {
		Data struct {
			Name    string `json:"name"`
			Doctype string `json:"doctype"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.body, &body); err != nil {
		return Receipt{}, errors.New(errors.CodeUpstreamDecode).Wrap(err)
	}
	r := Receipt{Doctype: body.Data.Doctype, Name: body.Data.Name}
	if r.Doctype == "" {
		r.Doctype = doctype
	}
	return r, nil
}

// Leads fetches one page of leads.
func (c *Client) Leads(ctx context.Context, q leads.Query) (leads.Result, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(q.Page))
	params.Set("page_size", strconv.Itoa(q.PageSize))
	if q.OrderBy != "" {
		params.Set("order_by", q.OrderBy)
	}
	if len(q.Filters) > 0 {
		filters, err := json.Marshal(q.Filters)
		if err != nil {
			return leads.Result{}, fmt.Errorf("frappe: encode filters: %w", err)
		}
		params.Set("filters", string(filters))
	}
	if q.Search != "" {
		params.Set("search", q.Search)
	}

	path := "/api/method/" + c.leadsMethod
	resp, err := c.do(ctx, "leads", http.MethodGet, path, params, nil)
	if err != nil {
		return leads.Result{}, errors.New(errors.CodeUpstreamRequest).WithDetail("GET " + path).Wrap(err)
	}
	if !resp.ok() {
		return leads.Result{}, errors.New(errors.CodeUpstreamStatus).
			WithDetail(fmt.Sprintf("GET %s returned %d", path, resp.status))
	}

	var res leads.Result
	if err := json.Unmarshal(unwrapMessage(resp.body), &res); err != nil {
		return leads.Result{}, errors.New(errors.CodeUpstreamDecode).Wrap(err)
	}
	if res.Data == nil {
		res.Data = []leads.Record{}
	}
	if res.Pagination.Page == 0 {
		res.Pagination.Page = q.Page
	}
	if res.Pagination.PageSize == 0 {
		res.Pagination.PageSize = q.PageSize
	}
	return res, nil
}
