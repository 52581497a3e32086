// Package fill copies a chart's notes into its empty sections.
package fill

import "github.com/phobologic/chartmerge/internal/model"

// Fill returns a copy of c where every section without notes holds the
// whole note pool of c, shifted so the pool's first section lines up with
// the empty section's start. The pool keeps its length and may run past the
// section it fills. c is not modified; filled counts the sections written.
func Fill(c *model.CanonicalChart) (out *model.CanonicalChart, filled int) {
	out = clone(c)

	var pool []model.Note
	poolStart := 0.0
	for i := range c.Sections {
		s := &c.Sections[i]
		if len(s.Notes) == 0 {
			continue
		}
		if pool == nil {
			poolStart = s.StartMs
		}
		pool = append(pool, s.Notes...)
	}
	if len(pool) == 0 {
		return out, 0
	}

	for i := range out.Sections {
		s := &out.Sections[i]
		if len(s.Notes) > 0 {
			continue
		}
		shift := s.StartMs - poolStart
		s.Notes = make([]model.Note, len(pool))
		for j, n := range pool {
			n.TimeMs += shift
			n.Section = i
			n.Extra = n.Extra.Clone()
			s.Notes[j] = n
		}
		filled++
	}
	return out, filled
}

func clone(c *model.CanonicalChart) *model.CanonicalChart {
	out := *c
	out.Extra = c.Extra.Clone()
	out.RootExtra = c.RootExtra.Clone()
	out.Sections = make([]model.Section, len(c.Sections))
	for i, s := range c.Sections {
		out.Sections[i] = s.Clone()
	}
	out.Events = nil
	for _, e := range c.Events {
		if e.Args != nil {
			e.Args = append([]string(nil), e.Args...)
		}
		out.Events = append(out.Events, e)
	}
	return &out
}
