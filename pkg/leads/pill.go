package leads

import "github.com/admitly/admissions/pkg/options"

// Neutral styling for statuses the metadata does not describe.
const (
	NeutralColor      = "#374151"
	NeutralBackground = "#F3F4F6"
)

// Pill is the rendered badge for a lead status.
type Pill struct {
	Label      string `json:"label"`
	Color      string `json:"color"`
	Background string `json:"background"`
}

// ResolvePill looks status up by value, then by display text, in statuses.
// Unknown statuses keep their raw text with neutral styling.
func ResolvePill(status string, statuses options.Set) Pill {
	p := Pill{Label: status, Color: NeutralColor, Background: NeutralBackground}
	item, ok := statuses.Lookup(status)
	if !ok {
		return p
	}
	if item.Display != "" {
		p.Label = item.Display
	}
	if item.Style.Color != "" {
		p.Color = item.Style.Color
	}
	if item.Style.Background != "" {
		p.Background = item.Style.Background
	}
	return p
}

// Decorate attaches a "status_pill" entry to every record carrying a
// "status" string.
func Decorate(res *Result, statuses options.Set) {
	for _, rec := range res.Data {
		s, ok := rec["status"].(string)
		if !ok {
			continue
		}
		rec["status_pill"] = ResolvePill(s, statuses)
	}
}
