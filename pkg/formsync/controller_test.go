package formsync

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/admitly/admissions/internal/metadata"
	"github.com/admitly/admissions/pkg/form"
	"github.com/admitly/admissions/pkg/options"
	"github.com/admitly/admissions/pkg/urlparam"
)

const addressSchema = `
name: address
fields:
  - {name: fullName, kind: text}
  - {name: gender, kind: select, options: genders, default: nam}
  - {name: permanentProvince, kind: select, options: provinces}
  - {name: permanentWard, kind: select, options: wards, parent: permanentProvince}
  - {name: permanentHamlet, kind: text}
  - {name: permanentStreet, kind: text}
  - {name: sameAddress, kind: bool}
  - {name: receivingProvince, kind: select, options: provinces}
  - {name: receivingWard, kind: select, options: wards, parent: receivingProvince}
  - {name: receivingHamlet, kind: text}
  - {name: receivingStreet, kind: text}
  - {name: aspirations, kind: multiselect, options: majors}
  - {name: confirmAccuracy, kind: bool}
mirrors:
  - flag: sameAddress
    pairs:
      - {from: permanentProvince, to: receivingProvince}
      - {from: permanentWard, to: receivingWard}
      - {from: permanentHamlet, to: receivingHamlet}
      - {from: permanentStreet, to: receivingStreet}
`

func testCatalog() options.Catalog {
	return options.Catalog{
		"genders": options.NewSet(
			options.OptionItem{Value: "nam", Display: "Nam"},
			options.OptionItem{Value: "nu", Display: "Nữ"},
		),
		"provinces": options.NewSet(
			options.OptionItem{Value: "hn", Display: "Hà Nội"},
			options.OptionItem{Value: "hcm", Display: "TP. Hồ Chí Minh"},
		),
		"wards": options.NewSet(
			options.OptionItem{Value: "ba-dinh", Display: "Ba Đình", Parent: "hn"},
			options.OptionItem{Value: "ben-thanh", Display: "Bến Thành", Parent: "hcm"},
		),
	}
}

type recorder struct {
	writes []string
}

func (r *recorder) sink(q string, mode urlparam.URLMode) {
	r.writes = append(r.writes, q)
}

func newController(t *testing.T) (*Controller, *recorder) {
	t.Helper()
	s, err := form.Parse([]byte(addressSchema))
	if err != nil {
		t.Fatalf("parse schema: %v", err)
	}
	rec := &recorder{}
	return New(s, urlparam.NewNavigator(rec.sink)), rec
}

func TestStartsHydratingWithDefaults(t *testing.T) {
	c, _ := newController(t)
	if c.Phase() != PhaseHydrating {
		t.Fatalf("Phase = %v, want hydrating", c.Phase())
	}
	if got := c.State()["gender"]; !got.Equal(form.String("nam")) {
		t.Errorf("gender = %v, want default", got)
	}
	if res := c.Sync(); res != SyncNotReady {
		t.Errorf("Sync = %v, want not_ready", res)
	}
}

func TestNoWriteAfterHydration(t *testing.T) {
	c, rec := newController(t)
	c.SetMetadata(testCatalog())

	if !c.ObserveQuery("?fullName=Nguyen+Van+A&gender=khac&permanentProvince=hn") {
		t.Fatal("ObserveQuery did not hydrate")
	}
	if c.Phase() != PhaseReady {
		t.Fatalf("Phase = %v, want ready", c.Phase())
	}
	if !c.SyncArmed() {
		t.Fatal("hydration did not arm the sync guard")
	}

	if res := c.Sync(); res != SyncSettled {
		t.Errorf("first Sync = %v, want settled", res)
	}
	if res := c.Sync(); res == SyncWritten {
		t.Errorf("second Sync wrote %q", rec.writes)
	}
	if len(rec.writes) > 1 {
		t.Errorf("writes after hydration = %q", rec.writes)
	}
}

func TestHydrationWithCanonicalQueryDoesNotWrite(t *testing.T) {
	c, rec := newController(t)
	c.SetMetadata(testCatalog())

	// A query that already spells out the whole state canonically.
	q := urlparam.Encode(c.schema.Defaults())
	c.ObserveQuery(q)
	c.Sync()
	c.Sync()

	if len(rec.writes) != 0 {
		t.Errorf("writes = %q, want none", rec.writes)
	}
}

func TestEditWritesURL(t *testing.T) {
	c, rec := newController(t)
	c.SetMetadata(testCatalog())
	c.ObserveQuery("fullName=An")
	c.Sync()

	if err := c.Set("fullName", form.String("Binh")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if res := c.Sync(); res != SyncWritten {
		t.Fatalf("Sync = %v, want written", res)
	}
	if res := c.Sync(); res != SyncUnchanged {
		t.Errorf("repeated Sync = %v, want unchanged", res)
	}
	if len(rec.writes) != 1 {
		t.Fatalf("writes = %q, want one", rec.writes)
	}
	got := urlparam.ParseQuery(rec.writes[0])
	if got.Get("fullName") != "Binh" {
		t.Errorf("written fullName = %q", got.Get("fullName"))
	}

	// The shell echoing our own write is not an external change.
	if c.ObserveQuery(rec.writes[0]) {
		t.Error("own write triggered a hydration")
	}
}

func TestEditBeforeSettleStillWrites(t *testing.T) {
	c, rec := newController(t)
	c.SetMetadata(testCatalog())
	c.ObserveQuery("fullName=An")

	// The user types before the post-hydration observation runs.
	if err := c.Set("fullName", form.String("Anh")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if res := c.Sync(); res != SyncWritten {
		t.Errorf("Sync = %v, want written", res)
	}
	if c.SyncArmed() {
		t.Error("guard still armed")
	}
	if len(rec.writes) != 1 {
		t.Errorf("writes = %q", rec.writes)
	}
}

func TestExternalChangeRehydrates(t *testing.T) {
	c, _ := newController(t)
	c.SetMetadata(testCatalog())
	c.ObserveQuery("fullName=An&gender=nu&permanentProvince=hn")
	c.Sync()

	if !c.ObserveQuery("fullName=Binh") {
		t.Fatal("external change did not hydrate")
	}
	if c.Phase() != PhaseReady {
		t.Errorf("Phase = %v", c.Phase())
	}

	got := c.State()
	want := c.schema.Defaults()
	want["fullName"] = form.String("Binh")
	if !got.Equal(want) {
		t.Errorf("state merged old query:\n got %v\nwant %v", got, want)
	}
	if res := c.Sync(); res != SyncSettled {
		t.Errorf("Sync after re-hydration = %v, want settled", res)
	}
}

func TestBackNavigationThenSameEditWrites(t *testing.T) {
	c, rec := newController(t)
	c.SetMetadata(testCatalog())
	c.ObserveQuery("fullName=An")
	c.Sync()

	c.Set("fullName", form.String("Binh"))
	c.Sync()
	written := rec.writes[0]

	// Back button: the address bar shows the original link again.
	if !c.ObserveQuery("fullName=An") {
		t.Fatal("back navigation did not hydrate")
	}
	c.Sync()

	// Repeating the same edit must write again: the URL no longer shows it.
	c.Set("fullName", form.String("Binh"))
	if res := c.Sync(); res != SyncWritten {
		t.Fatalf("Sync = %v, want written", res)
	}
	if diff := cmp.Diff([]string{written, written}, rec.writes); diff != "" {
		t.Errorf("writes mismatch (-want +got):\n%s", diff)
	}
}

func TestQueryBeforeMetadataIsDeferred(t *testing.T) {
	c, _ := newController(t)

	if c.ObserveQuery("gender=nu") {
		t.Fatal("hydrated without metadata")
	}
	if c.Phase() != PhaseHydrating {
		t.Fatalf("Phase = %v, want hydrating", c.Phase())
	}

	var calls []bool
	c.hooks.OnHydrated = func(_ form.State, initial bool) { calls = append(calls, initial) }

	c.SetMetadata(testCatalog())
	if c.Phase() != PhaseReady {
		t.Fatalf("Phase = %v, want ready", c.Phase())
	}
	if got := c.State()["gender"]; !got.Equal(form.String("nu")) {
		t.Errorf("gender = %v, want nu", got)
	}
	if diff := cmp.Diff([]bool{true}, calls); diff != "" {
		t.Errorf("OnHydrated calls mismatch (-want +got):\n%s", diff)
	}
}

func TestCascadingValidation(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		province string
		ward     string
	}{
		{"valid pair", "permanentProvince=hn&permanentWard=ba-dinh", "hn", "ba-dinh"},
		{"ward by label", "permanentProvince=hn&permanentWard=Ba+%C4%90%C3%ACnh", "hn", "ba-dinh"},
		{"ward of another province", "permanentProvince=hn&permanentWard=ben-thanh", "hn", ""},
		{"unknown province drops ward", "permanentProvince=xx&permanentWard=ba-dinh", "", ""},
		{"no province drops ward", "permanentWard=ba-dinh", "", ""},
		{"province by label", "permanentProvince=H%C3%A0+N%E1%BB%99i", "hn", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newController(t)
			c.SetMetadata(testCatalog())
			c.ObserveQuery(tt.query)
			st := c.State()
			if got := st["permanentProvince"].Text(); got != tt.province {
				t.Errorf("province = %q, want %q", got, tt.province)
			}
			if got := st["permanentWard"].Text(); got != tt.ward {
				t.Errorf("ward = %q, want %q", got, tt.ward)
			}
		})
	}
}

func TestHydrateFillsEveryField(t *testing.T) {
	c, _ := newController(t)
	st := Hydrate(c.schema, "fullName=An", testCatalog())
	for _, f := range c.schema.Fields {
		if !st[f.Name].IsSet() {
			t.Errorf("field %s unset after hydration", f.Name)
		}
	}
}

func TestSetRejectsWrongShape(t *testing.T) {
	c, _ := newController(t)
	if err := c.Set("fullName", form.Bool(true)); err == nil {
		t.Error("expected shape error")
	}
	if err := c.Set("nope", form.String("x")); err == nil {
		t.Error("expected unknown field error")
	}
}

func TestMirroring(t *testing.T) {
	c, _ := newController(t)
	c.SetMetadata(testCatalog())
	c.ObserveQuery("receivingStreet=Old+street")
	c.Sync()

	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}

	must(c.Set("permanentStreet", form.String("12 Le Loi")))
	if got := c.State()["receivingStreet"].Text(); got != "Old street" {
		t.Errorf("mirrored while flag off: %q", got)
	}

	must(c.Set("sameAddress", form.Bool(true)))
	if got := c.State()["receivingStreet"].Text(); got != "12 Le Loi" {
		t.Errorf("turning flag on did not copy: %q", got)
	}
	if !c.Mirrored("receivingStreet") {
		t.Error("Mirrored = false with flag on")
	}

	must(c.Set("permanentProvince", form.String("hcm")))
	must(c.Set("permanentWard", form.String("ben-thanh")))
	st := c.State()
	if st["receivingProvince"].Text() != "hcm" || st["receivingWard"].Text() != "ben-thanh" {
		t.Errorf("receiving = %v / %v", st["receivingProvince"], st["receivingWard"])
	}

	must(c.Set("sameAddress", form.Bool(false)))
	if got := c.State()["receivingStreet"].Text(); got != "12 Le Loi" {
		t.Errorf("turning flag off cleared target: %q", got)
	}
	must(c.Set("permanentStreet", form.String("99 Tran Phu")))
	if got := c.State()["receivingStreet"].Text(); got != "12 Le Loi" {
		t.Errorf("edited permanent field leaked after flag off: %q", got)
	}
}

func TestHydrationDoesNotMirror(t *testing.T) {
	c, _ := newController(t)
	c.SetMetadata(testCatalog())
	c.ObserveQuery("sameAddress=true&permanentStreet=A&receivingStreet=B")
	st := c.State()
	if st["receivingStreet"].Text() != "B" {
		t.Errorf("hydration mirrored: receivingStreet = %q", st["receivingStreet"].Text())
	}
}

func TestEmptyListEditRoundTrip(t *testing.T) {
	c, rec := newController(t)
	c.SetMetadata(options.Catalog{})
	c.ObserveQuery("aspirations=CNTT,Luat")
	c.Sync()

	c.Set("aspirations", form.List())
	c.Sync()
	if len(rec.writes) != 1 {
		t.Fatalf("writes = %q", rec.writes)
	}
	if got := urlparam.ParseQuery(rec.writes[0]).Get("aspirations"); got != urlparam.NoneSentinel {
		t.Errorf("aspirations = %q, want none", got)
	}

	other, _ := newController(t)
	other.SetMetadata(options.Catalog{})
	other.ObserveQuery(rec.writes[0])
	if got := other.State()["aspirations"]; !got.Equal(form.List()) {
		t.Errorf("decoded aspirations = %v, want []", got)
	}
}

func TestOrphanedChildrenTakeDefaults(t *testing.T) {
	reg, err := form.Builtin()
	if err != nil {
		t.Fatalf("Builtin: %v", err)
	}
	schema, _ := reg.Get("admission")

	st := Hydrate(schema, "permanentWard=ben-thanh&highSchool=garbage", metadata.Defaults())
	for _, name := range []string{"permanentProvince", "permanentWard", "highSchool"} {
		if got := st[name].Text(); got != "" {
			t.Errorf("%s = %q, want empty", name, got)
		}
	}

	st = Hydrate(schema, "permanentProvince=ho-chi-minh&permanentWard=ben-thanh", metadata.Defaults())
	if got := st["permanentWard"].Text(); got != "ben-thanh" {
		t.Errorf("permanentWard = %q, want ben-thanh", got)
	}
}
