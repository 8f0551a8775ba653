package urlparam

import (
	"net/url"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/admitly/admissions/pkg/form"
	"github.com/admitly/admissions/pkg/options"
)

func testSchema(t *testing.T) *form.Schema {
	t.Helper()
	s, err := form.Parse([]byte(`
name: test
fields:
  - {name: fullName, kind: text}
  - {name: note, kind: text, default: "n/a"}
  - {name: gender, kind: select, options: genders, default: nam}
  - {name: method, kind: select, options: methods}
  - {name: aspirations, kind: multiselect, options: majors}
  - {name: tags, kind: multiselect}
  - {name: confirmAccuracy, kind: bool}
`))
	if err != nil {
		t.Fatalf("parse schema: %v", err)
	}
	return s
}

func TestEncodeValue(t *testing.T) {
	tests := []struct {
		name string
		v    form.Value
		want string
		ok   bool
	}{
		{"true", form.Bool(true), "true", true},
		{"false", form.Bool(false), "false", true},
		{"empty string", form.String(""), EmptySentinel, true},
		{"text", form.String("Nguyen Van A"), "Nguyen Van A", true},
		{"empty list", form.List(), NoneSentinel, true},
		{"list", form.List("CNTT", "Luat"), "CNTT,Luat", true},
		{"unset", form.Value{}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := EncodeValue(tt.v)
			if got != tt.want || ok != tt.ok {
				t.Errorf("EncodeValue = %q, %v; want %q, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestEncodeIsCanonical(t *testing.T) {
	st := form.State{
		"b":     form.String("x y"),
		"a":     form.Bool(true),
		"unset": form.Value{},
	}
	if got := Encode(st); got != "a=true&b=x+y" {
		t.Errorf("Encode = %q", got)
	}
	if Encode(st) != Encode(st.Clone()) {
		t.Error("equal states encoded differently")
	}
}

func TestSentinelDisambiguation(t *testing.T) {
	s := testSchema(t)

	got := Decode("fullName=__empty&aspirations=none", s, nil)
	if v, ok := got["fullName"]; !ok || !v.Equal(form.String("")) {
		t.Errorf("fullName = %v (present %v), want empty string", v, ok)
	}
	if v, ok := got["aspirations"]; !ok || !v.Equal(form.List()) {
		t.Errorf("aspirations = %v (present %v), want []", v, ok)
	}

	absent := Decode("", s, nil)
	if _, ok := absent["fullName"]; ok {
		t.Error("absent fullName decoded as present")
	}
	if _, ok := absent["aspirations"]; ok {
		t.Error("absent aspirations decoded as present")
	}
}

func TestEmptyListRoundTrip(t *testing.T) {
	s := testSchema(t)

	q := Encode(form.State{"aspirations": form.List()})
	if q != "aspirations=none" {
		t.Fatalf("Encode = %q, want aspirations=none", q)
	}
	got := Decode(q, s, nil)["aspirations"]
	if !got.Equal(form.List()) || got.Shape() != form.ShapeList {
		t.Errorf("decoded %v, want []", got)
	}
}

func TestListItemsKeepSpaces(t *testing.T) {
	s := testSchema(t)
	st := form.State{"tags": form.List(" lead", "trail ", "mid dle")}
	got := Decode(Encode(st), s, nil)["tags"]
	if diff := cmp.Diff([]string{" lead", "trail ", "mid dle"}, got.Items()); diff != "" {
		t.Errorf("tags mismatch (-want +got):\n%s", diff)
	}
}

func TestOptionFallback(t *testing.T) {
	s := testSchema(t)
	allowed := map[string]options.Set{
		"gender": options.NewSet(
			options.OptionItem{Value: "nam", Display: "Nam"},
			options.OptionItem{Value: "nu", Display: "Nữ"},
		),
		"method": options.Strings("hoc_ba", "thpt"),
	}

	got := Decode("gender=khac&method=khac", s, allowed)
	if v := got["gender"]; !v.Equal(form.String("nam")) {
		t.Errorf("gender = %v, want default nam", v)
	}
	if v := got["method"]; !v.Equal(form.String("")) {
		t.Errorf("method = %v, want empty string (no valid default)", v)
	}

	f, _ := s.Field("gender")
	if _, outcome := DecodeField(ParseQuery("gender=khac"), f, allowed["gender"]); outcome != Fallback {
		t.Errorf("outcome = %v, want fallback", outcome)
	}
}

func TestCoerceByDisplay(t *testing.T) {
	s := testSchema(t)
	allowed := map[string]options.Set{
		"gender": options.NewSet(
			options.OptionItem{Value: "nam", Display: "Nam"},
			options.OptionItem{Value: "nu", Display: "Nữ"},
		),
	}
	got := Decode("gender="+url.QueryEscape("Nữ"), s, allowed)
	if v := got["gender"]; !v.Equal(form.String("nu")) {
		t.Errorf("gender = %v, want nu", v)
	}
}

func TestEmptyAllowedSetPassesThrough(t *testing.T) {
	s := testSchema(t)
	got := Decode("method=anything", s, map[string]options.Set{"method": {}})
	if v := got["method"]; !v.Equal(form.String("anything")) {
		t.Errorf("method = %v, want raw value", v)
	}
}

func TestDoubleDecoding(t *testing.T) {
	s := testSchema(t)
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"plus as space", "fullName=Nguyen+Van+A", "Nguyen Van A"},
		{"percent space", "fullName=Nguyen%20Van%20A", "Nguyen Van A"},
		{"doubly encoded", "fullName=Nguy%25E1%25BB%2585n%2520A", "Nguyễn A"},
		{"broken second pass", "fullName=100%25", "100%"},
		{"second pass not utf-8", "fullName=50%25AB", "50%AB"},
		{"literal plus survives", "fullName=C%2B%2B", "C++"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decode(tt.query, s, nil)["fullName"]
			if got.Text() != tt.want {
				t.Errorf("fullName = %q, want %q", got.Text(), tt.want)
			}
		})
	}
}

func TestDecodeBool(t *testing.T) {
	s := testSchema(t)
	if v := Decode("confirmAccuracy=true", s, nil)["confirmAccuracy"]; !v.Equal(form.Bool(true)) {
		t.Errorf("true decoded as %v", v)
	}
	if v := Decode("confirmAccuracy=false", s, nil)["confirmAccuracy"]; !v.Equal(form.Bool(false)) {
		t.Errorf("false decoded as %v", v)
	}
	if _, ok := Decode("confirmAccuracy=maybe", s, nil)["confirmAccuracy"]; ok {
		t.Error("garbage flag should be absent")
	}
}

func TestDecodeListFiltersAgainstOptions(t *testing.T) {
	s := testSchema(t)
	allowed := map[string]options.Set{
		"aspirations": options.NewSet(
			options.OptionItem{Value: "CNTT", Display: "Công nghệ thông tin"},
			options.OptionItem{Value: "Luat", Display: "Luật"},
		),
	}
	q := "aspirations=" + url.QueryEscape("Công nghệ thông tin,,Luat,Bogus,CNTT")
	got := Decode(q, s, allowed)["aspirations"]
	if diff := cmp.Diff([]string{"CNTT", "Luat"}, got.Items()); diff != "" {
		t.Errorf("aspirations mismatch (-want +got):\n%s", diff)
	}

	free := Decode("tags=a,,b,%20c%20", s, allowed)["tags"]
	if diff := cmp.Diff([]string{"a", "b", " c "}, free.Items()); diff != "" {
		t.Errorf("tags mismatch (-want +got):\n%s", diff)
	}
}

func TestEndToEndDecode(t *testing.T) {
	s := testSchema(t)
	allowed := map[string]options.Set{
		"gender": options.NewSet(options.OptionItem{Value: "nam", Display: "Nam"}),
	}

	got := Decode("?fullName=Nguyen%20Van%20A&gender=nam&confirmAccuracy=true&aspirations=CNTT,Luat", s, allowed)
	want := form.State{
		"fullName":        form.String("Nguyen Van A"),
		"gender":          form.String("nam"),
		"confirmAccuracy": form.Bool(true),
		"aspirations":     form.List("CNTT", "Luat"),
	}
	if !got.Equal(want) {
		t.Errorf("Decode = %v, want %v", got, want)
	}
}

func TestCanonical(t *testing.T) {
	if Canonical("?b=2&a=1") != Canonical("a=1&b=2") {
		t.Error("Canonical should ignore key order")
	}
}

func TestNavigatorSuppressesRepeats(t *testing.T) {
	var got []string
	nav := NewNavigator(func(q string, mode URLMode) {
		if mode != ModeReplace {
			t.Errorf("mode = %v, want replace", mode)
		}
		got = append(got, q)
	})

	nav.Navigate("a=1", ModeReplace)
	nav.Navigate("a=1", ModeReplace)
	nav.Navigate("a=2", ModeReplace)

	if diff := cmp.Diff([]string{"a=1", "a=2"}, got); diff != "" {
		t.Errorf("writes mismatch (-want +got):\n%s", diff)
	}
	if nav.Writes() != 2 || nav.Last() != "a=2" {
		t.Errorf("Writes = %d, Last = %q", nav.Writes(), nav.Last())
	}

	// The very first write goes through even when it is the empty string.
	empty := NewNavigator(nil)
	if !empty.Navigate("", ModeReplace) {
		t.Error("first empty write suppressed")
	}
}
