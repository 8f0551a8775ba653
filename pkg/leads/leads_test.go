package leads

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/admitly/admissions/pkg/options"
)

var statuses = options.NewSet(
	options.OptionItem{Value: "Open", Display: "Mới", Style: options.Style{Color: "#1D4ED8", Background: "#DBEAFE"}},
	options.OptionItem{Value: "Contacted", Display: "Đã liên hệ", Style: options.Style{Color: "#047857"}},
	options.OptionItem{Value: "Converted", Display: "Đã nhập học"},
)

func TestDecode(t *testing.T) {
	limits := Limits{DefaultPageSize: 20, MaxPageSize: 50}
	tests := []struct {
		name  string
		query string
		want  PageState
	}{
		{
			name:  "empty query",
			query: "",
			want:  PageState{Page: 1, PageSize: 20, OrderBy: DefaultOrder},
		},
		{
			name:  "all fields",
			query: "page=3&page_size=10&order_by=creation+asc&status=Contacted&search=Nguy%E1%BB%85n",
			want:  PageState{Page: 3, PageSize: 10, OrderBy: "creation asc", Status: "Contacted", Search: "Nguyễn"},
		},
		{
			name:  "page below one",
			query: "page=-4",
			want:  PageState{Page: 1, PageSize: 20, OrderBy: DefaultOrder},
		},
		{
			name:  "garbage page",
			query: "page=abc&page_size=xyz",
			want:  PageState{Page: 1, PageSize: 20, OrderBy: DefaultOrder},
		},
		{
			name:  "page size clamped",
			query: "page_size=1000",
			want:  PageState{Page: 1, PageSize: 50, OrderBy: DefaultOrder},
		},
		{
			name:  "unknown ordering",
			query: "order_by=password+desc",
			want:  PageState{Page: 1, PageSize: 20, OrderBy: DefaultOrder},
		},
		{
			name:  "status by display",
			query: "status=%C4%90%C3%A3+li%C3%AAn+h%E1%BB%87",
			want:  PageState{Page: 1, PageSize: 20, OrderBy: DefaultOrder, Status: "Contacted"},
		},
		{
			name:  "unknown status means all",
			query: "status=Lost",
			want:  PageState{Page: 1, PageSize: 20, OrderBy: DefaultOrder},
		},
		{
			name:  "empty sentinel search",
			query: "search=__empty",
			want:  PageState{Page: 1, PageSize: 20, OrderBy: DefaultOrder},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decode(tt.query, limits, statuses)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Decode(%q) mismatch (-want +got):\n%s", tt.query, diff)
			}
		})
	}
}

func TestDecodeWithoutStatuses(t *testing.T) {
	got := Decode("status=Lost", DefaultLimits, options.Set{})
	if got.Status != "Lost" {
		t.Errorf("Status = %q, unknown metadata should pass through", got.Status)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	p := PageState{Page: 2, PageSize: 30, OrderBy: "creation desc", Status: "Open", Search: "Trần Văn A"}
	got := Decode(Encode(p), DefaultLimits, statuses)
	if diff := cmp.Diff(p, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeUsesSentinels(t *testing.T) {
	q := Encode(Default(DefaultLimits))
	want := "order_by=modified+desc&page=1&page_size=20&search=__empty&status=__empty"
	if q != want {
		t.Errorf("Encode = %q, want %q", q, want)
	}
}

func TestQuery(t *testing.T) {
	p := PageState{Page: 2, PageSize: 10, OrderBy: DefaultOrder, Status: "Open"}
	q := p.Query()
	if q.Filters["status"] != "Open" || q.Page != 2 || q.PageSize != 10 {
		t.Errorf("Query = %+v", q)
	}
	if Default(DefaultLimits).Query().Filters != nil {
		t.Error("no status should mean no filters")
	}
}

func TestPageLinks(t *testing.T) {
	p := PageState{Page: 2, PageSize: 20, OrderBy: DefaultOrder}
	l := PageLinks(p, Pagination{Page: 2, TotalPages: 3})
	if got := Decode(l.Prev, DefaultLimits, statuses).Page; got != 1 {
		t.Errorf("prev page = %d", got)
	}
	if got := Decode(l.Next, DefaultLimits, statuses).Page; got != 3 {
		t.Errorf("next page = %d", got)
	}

	last := PageLinks(p.WithPage(3), Pagination{Page: 3, TotalPages: 3})
	if last.Next != "" {
		t.Errorf("last page should have no next link, got %q", last.Next)
	}
	first := PageLinks(p.WithPage(0), Pagination{TotalPages: 0})
	if first.Prev != "" || first.Next != "" {
		t.Errorf("single page links = %+v", first)
	}
}

func TestResolvePill(t *testing.T) {
	tests := []struct {
		status string
		want   Pill
	}{
		{"Open", Pill{Label: "Mới", Color: "#1D4ED8", Background: "#DBEAFE"}},
		{"Đã liên hệ", Pill{Label: "Đã liên hệ", Color: "#047857", Background: NeutralBackground}},
		{"Converted", Pill{Label: "Đã nhập học", Color: NeutralColor, Background: NeutralBackground}},
		{"Lost", Pill{Label: "Lost", Color: NeutralColor, Background: NeutralBackground}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, ResolvePill(tt.status, statuses)); diff != "" {
			t.Errorf("ResolvePill(%q) mismatch (-want +got):\n%s", tt.status, diff)
		}
	}
}

func TestDecorate(t *testing.T) {
	res := Result{Data: []Record{
		{"name": "LEAD-1", "status": "Open"},
		{"name": "LEAD-2"},
	}}
	Decorate(&res, statuses)
	pill, ok := res.Data[0]["status_pill"].(Pill)
	if !ok || pill.Label != "Mới" {
		t.Errorf("status_pill = %#v", res.Data[0]["status_pill"])
	}
	if _, ok := res.Data[1]["status_pill"]; ok {
		t.Error("records without status should be left alone")
	}
}
