// Package multiply repeats every section of a chart in place.
package multiply

import (
	"errors"
	"fmt"

	"github.com/phobologic/chartmerge/internal/model"
)

// ErrNoSections is returned for charts with nothing to repeat.
var ErrNoSections = errors.New("chart has no sections")

// Multiply returns a copy of c where each section is played factor times in a
// row before the next one. Repeats are shifted onto fresh time so no two
// copies overlap; gaps between authored sections are kept. Events repeat with
// the section that covers them. c is not modified.
func Multiply(c *model.CanonicalChart, factor int) (*model.CanonicalChart, error) {
	if factor < 1 {
		return nil, fmt.Errorf("factor %d: must be at least 1", factor)
	}
	if len(c.Sections) == 0 {
		return nil, ErrNoSections
	}

	out := &model.CanonicalChart{
		Source:      c.Source,
		Format:      c.Format,
		Bpm:         c.Bpm,
		ScrollSpeed: c.ScrollSpeed,
		Extra:       c.Extra.Clone(),
		RootExtra:   c.RootExtra.Clone(),
		Sections:    make([]model.Section, 0, len(c.Sections)*factor),
	}
	events := bySection(c)

	cursor := c.Sections[0].StartMs
	bpm := c.Bpm
	for i, src := range c.Sections {
		if src.ChangeBPM && src.Bpm > 0 {
			bpm = src.Bpm
		}
		// The last section ends at its last note; repeats use the authored length.
		length := src.EndMs - src.StartMs
		if bpm > 0 {
			length = max(length, src.Beats*60000/bpm)
		}
		for range factor {
			shift := cursor - src.StartMs
			s := src.Clone()
			s.StartMs += shift
			s.EndMs += shift
			for j := range s.Notes {
				s.Notes[j].TimeMs += shift
				s.Notes[j].Section = len(out.Sections)
			}
			out.Sections = append(out.Sections, s)

			for _, e := range events[i] {
				e.TimeMs += shift
				if e.Args != nil {
					e.Args = append([]string(nil), e.Args...)
				}
				out.Events = append(out.Events, e)
			}
			cursor += length
		}
		if i+1 < len(c.Sections) {
			cursor += max(c.Sections[i+1].StartMs-src.StartMs-length, 0)
		}
	}
	return out, nil
}

// bySection groups events under the last section starting at or before
// them. Events before the first section belong to it.
func bySection(c *model.CanonicalChart) [][]model.Event {
	out := make([][]model.Event, len(c.Sections))
	for _, e := range c.Events {
		i := len(c.Sections) - 1
		for i > 0 && e.TimeMs < c.Sections[i].StartMs {
			i--
		}
		out[i] = append(out[i], e)
	}
	return out
}
