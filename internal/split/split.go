// Package split cuts a chart into consecutive standalone parts.
package split

import (
	"errors"

	"github.com/phobologic/chartmerge/internal/model"
)

// ErrNoSections is returned for charts with nothing to split.
var ErrNoSections = errors.New("chart has no sections")

// Split divides c's sections into at most parts chunks of ceil(n/parts)
// sections each. Parts keep absolute times; an event goes to the part whose
// time range holds it, with earlier events in the first part and later ones
// in the last. c is not modified.
func Split(c *model.CanonicalChart, parts int) ([]*model.CanonicalChart, error) {
	n := len(c.Sections)
	if n == 0 {
		return nil, ErrNoSections
	}
	parts = max(parts, 1)
	size := (n + parts - 1) / parts

	var out []*model.CanonicalChart
	for lo := 0; lo < n; lo += size {
		hi := min(lo+size, n)
		p := &model.CanonicalChart{
			Source:      c.Source,
			Format:      c.Format,
			Bpm:         c.Bpm,
			ScrollSpeed: c.ScrollSpeed,
			Extra:       c.Extra.Clone(),
			RootExtra:   c.RootExtra.Clone(),
			Sections:    make([]model.Section, 0, hi-lo),
		}
		for i := lo; i < hi; i++ {
			s := c.Sections[i].Clone()
			for j := range s.Notes {
				s.Notes[j].Section = i - lo
			}
			p.Sections = append(p.Sections, s)
		}
		out = append(out, p)
	}

	for _, e := range c.Events {
		i := len(out) - 1
		for i > 0 && e.TimeMs < out[i].Sections[0].StartMs {
			i--
		}
		if e.Args != nil {
			e.Args = append([]string(nil), e.Args...)
		}
		out[i].Events = append(out[i].Events, e)
	}
	return out, nil
}
