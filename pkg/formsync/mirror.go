package formsync

import "github.com/admitly/admissions/pkg/form"

// applyMirrors runs the schema's mirror rules after field changed.
//
// A rule copies its source fields onto its targets while the flag is on.
// The copy is one-way and happens on change, so switching the flag off keeps
// whatever was last mirrored until the user edits the targets.
func (c *Controller) applyMirrors(changed string) {
	for _, rule := range c.schema.Mirrors {
		if !c.state[rule.Flag].Flag() {
			continue
		}
		if changed == rule.Flag {
			// Turned on: bring every target in line.
			for _, pair := range rule.Pairs {
				c.copyField(pair)
			}
			continue
		}
		for _, pair := range rule.Pairs {
			if pair.From == changed {
				c.copyField(pair)
			}
		}
	}
}

func (c *Controller) copyField(pair form.MirrorPair) {
	v := c.state[pair.From]
	if v.Shape() == form.ShapeList {
		v = form.List(v.Items()...)
	}
	c.state[pair.To] = v
}

// Mirrored reports whether target currently mirrors a source field, that is
// a rule naming it is switched on.
func (c *Controller) Mirrored(target string) bool {
	for _, rule := range c.schema.Mirrors {
		if !c.state[rule.Flag].Flag() {
			continue
		}
		for _, pair := range rule.Pairs {
			if pair.To == target {
				return true
			}
		}
	}
	return false
}
