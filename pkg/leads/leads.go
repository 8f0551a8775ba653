package leads

import (
	"strconv"
	"strings"

	"github.com/admitly/admissions/pkg/form"
	"github.com/admitly/admissions/pkg/options"
	"github.com/admitly/admissions/pkg/urlparam"
)

// StatusSet is the catalog set holding lead statuses and their styling.
const StatusSet = "lead_statuses"

// DefaultOrder is the ordering used when the URL does not name a known one.
const DefaultOrder = "modified desc"

// Orderings lists the sort orders the listing accepts.
var Orderings = options.NewSet(
	options.OptionItem{Value: "modified desc", Display: "Mới cập nhật"},
	options.OptionItem{Value: "creation desc", Display: "Mới tạo"},
	options.OptionItem{Value: "creation asc", Display: "Cũ nhất"},
	options.OptionItem{Value: "lead_name asc", Display: "Tên A-Z"},
)

// Limits bounds the page size.
type Limits struct {
	DefaultPageSize int
	MaxPageSize     int
}

// DefaultLimits is used when the service configuration does not say
// otherwise.
var DefaultLimits = Limits{DefaultPageSize: 20, MaxPageSize: 100}

func (l Limits) clamp(size int) int {
	def := l.DefaultPageSize
	if def < 1 {
		def = DefaultLimits.DefaultPageSize
	}
	max := l.MaxPageSize
	if max < def {
		max = def
	}
	switch {
	case size < 1:
		return def
	case size > max:
		return max
	}
	return size
}

// PageState is the listing state mirrored in the URL.
type PageState struct {
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
	OrderBy  string `json:"order_by"`
	Status   string `json:"status"`
	Search   string `json:"search"`
}

// Default returns the first page with the default ordering.
func Default(l Limits) PageState {
	return PageState{Page: 1, PageSize: l.clamp(0), OrderBy: DefaultOrder}
}

// WithPage returns a copy of p on page n (at least 1).
func (p PageState) WithPage(n int) PageState {
	if n < 1 {
		n = 1
	}
	p.Page = n
	return p
}

// schema is the listing's URL shape: text and select fields only.
var schema = mustSchema()

func mustSchema() *form.Schema {
	s := &form.Schema{
		Name: "leads",
		Fields: []form.Field{
			{Name: "page", Kind: form.KindText, Default: "1"},
			{Name: "page_size", Kind: form.KindText},
			{Name: "order_by", Kind: form.KindSelect, Default: DefaultOrder},
			{Name: "status", Kind: form.KindSelect, Options: StatusSet},
			{Name: "search", Kind: form.KindText},
		},
	}
	if err := s.Compile(); err != nil {
		panic(err)
	}
	return s
}

// State converts p into the codec's form state.
func (p PageState) State() form.State {
	return form.State{
		"page":      form.String(strconv.Itoa(p.Page)),
		"page_size": form.String(strconv.Itoa(p.PageSize)),
		"order_by":  form.String(p.OrderBy),
		"status":    form.String(p.Status),
		"search":    form.String(p.Search),
	}
}

// Encode renders p as a canonical query string.
func Encode(p PageState) string {
	return urlparam.Encode(p.State())
}

// Decode reads a listing query string. Unknown orderings fall back to
// DefaultOrder, unknown statuses to "" (all), pages below 1 to 1 and page
// sizes are clamped to l. An empty status set disables status validation.
func Decode(query string, l Limits, statuses options.Set) PageState {
	allowed := map[string]options.Set{
		"order_by": Orderings,
		"status":   statuses,
	}
	st := schema.Complete(urlparam.Decode(query, schema, allowed))

	p := Default(l)
	if n, err := strconv.Atoi(strings.TrimSpace(st["page"].Text())); err == nil && n > 1 {
		p.Page = n
	}
	if n, err := strconv.Atoi(strings.TrimSpace(st["page_size"].Text())); err == nil {
		p.PageSize = l.clamp(n)
	}
	if o := st["order_by"].Text(); o != "" {
		p.OrderBy = o
	}
	p.Status = st["status"].Text()
	p.Search = strings.TrimSpace(st["search"].Text())
	return p
}

// Query is what the CRM listing endpoint receives.
type Query struct {
	Page     int
	PageSize int
	OrderBy  string
	Filters  map[string]string
	Search   string
}

// Query converts p into collaborator parameters.
func (p PageState) Query() Query {
	q := Query{
		Page:     p.Page,
		PageSize: p.PageSize,
		OrderBy:  p.OrderBy,
		Search:   p.Search,
	}
	if p.Status != "" {
		q.Filters = map[string]string{"status": p.Status}
	}
	return q
}

// Record is one lead row as returned by the CRM.
type Record map[string]any

// Pagination describes where a page sits in the full listing.
type Pagination struct {
	Page       int `json:"page"`
	TotalPages int `json:"total_pages"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
}

// Result is one page of leads.
type Result struct {
	Data       []Record   `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// Links holds the query strings of neighbouring pages. Empty means no such
// page.
type Links struct {
	Prev string `json:"prev,omitempty"`
	Next string `json:"next,omitempty"`
}

// PageLinks computes prev/next queries for p given the server pagination.
func PageLinks(p PageState, pg Pagination) Links {
	var l Links
	if p.Page > 1 {
		l.Prev = Encode(p.WithPage(p.Page - 1))
	}
	if pg.TotalPages > 0 && p.Page < pg.TotalPages {
		l.Next = Encode(p.WithPage(p.Page + 1))
	}
	return l
}
