package urlparam

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/admitly/admissions/pkg/form"
	"github.com/admitly/admissions/pkg/options"
)

// text mixes plain words with percent signs that the second decoding pass
// must leave alone: a bare '%', or escapes of lone UTF-8 continuation bytes.
var text = gen.RegexMatch(`([g-zG-Z ]|%|%[89AB][0-9A-F])*`)

// Property: decode(encode(s)) == s whenever every enumerated value is an
// allowed option.
func TestRoundTripProperty(t *testing.T) {
	s := testSchema(t)
	allowed := map[string]options.Set{
		"gender":      options.Strings("nam", "nu"),
		"method":      options.Strings("hoc_ba", "thpt"),
		"aspirations": options.Strings("CNTT", "Luat", "KinhTe"),
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("decode inverts encode", prop.ForAll(
		func(first, last string, gender, method string, pick []bool, tags []string, agree bool) bool {
			var aspirations []string
			for i, major := range []string{"CNTT", "Luat", "KinhTe"} {
				if i < len(pick) && pick[i] {
					aspirations = append(aspirations, major)
				}
			}
			if len(tags) == 1 && tags[0] == NoneSentinel {
				return true // a lone "none" item is the documented ambiguity
			}

			st := form.State{
				"fullName":        form.String(first + " & " + last + "+=?"),
				"note":            form.String(last),
				"gender":          form.String(gender),
				"method":          form.String(method),
				"aspirations":     form.List(aspirations...),
				"tags":            form.List(tags...),
				"confirmAccuracy": form.Bool(agree),
			}
			got := Decode(Encode(st), s, allowed)
			return got.Equal(st)
		},
		text,
		text,
		gen.OneConstOf("nam", "nu"),
		gen.OneConstOf("hoc_ba", "thpt"),
		gen.SliceOfN(3, gen.Bool()),
		gen.SliceOf(gen.Identifier()),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
