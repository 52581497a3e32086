// Package merge combines canonical charts into a single merged timeline.
package merge

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/phobologic/chartmerge/internal/model"
	"github.com/phobologic/chartmerge/internal/report"
)

// ErrNothingToMerge is returned when no charts are given.
var ErrNothingToMerge = errors.New("no charts to merge")

// timeKey quantizes a time to 1 µs so independently authored floats compare.
func timeKey(ms float64) int64 {
	return int64(math.Round(ms * 1000))
}

func sameValue(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// Charts merges charts in input order under policy. Records are appended to
// rep; a nil rep gets a private collector. The merged chart's Conflicts hold
// everything in rep after the merge.
func Charts(charts []*model.CanonicalChart, policy model.MergePolicy, rep *report.Collector) (*model.MergedChart, error) {
	if len(charts) == 0 {
		return nil, ErrNothingToMerge
	}
	policy, err := policy.Canonical()
	if err != nil {
		return nil, fmt.Errorf("merge policy: %w", err)
	}
	if rep == nil {
		rep = &report.Collector{}
	}
	m := &merger{
		charts:   charts,
		policy:   policy,
		rep:      rep,
		rejected: make(map[int]float64),
		touched:  make(map[*model.Section]bool),
	}
	return m.run(), nil
}

type merger struct {
	charts   []*model.CanonicalChart
	policy   model.MergePolicy
	rep      *report.Collector
	out      []*model.Section
	carried  []model.Note
	rejected map[int]float64 // input index -> time from which its content is discarded
	touched  map[*model.Section]bool
}

func (m *merger) path(i int) string {
	return m.charts[i].Source
}

func (m *merger) run() *model.MergedChart {
	first := m.charts[0]
	merged := &model.MergedChart{
		CanonicalChart: model.CanonicalChart{
			Source:      first.Source,
			Format:      first.Format,
			Bpm:         m.agree("bpm", func(c *model.CanonicalChart) float64 { return c.Bpm }),
			ScrollSpeed: m.agree("scroll speed", func(c *model.CanonicalChart) float64 { return c.ScrollSpeed }),
			Extra:       first.Extra.Clone(),
			RootExtra:   first.RootExtra.Clone(),
		},
	}
	for _, c := range m.charts {
		merged.Sources = append(merged.Sources, model.SourceInfo{Path: c.Source, Format: c.Format})
	}

	for _, sec := range m.pool() {
		m.place(sec)
	}
	m.placeCarried()
	m.resolveDuplicates()

	if len(m.out) > 0 {
		merged.Sections = make([]model.Section, len(m.out))
		for i, s := range m.out {
			if m.touched[s] {
				sort.SliceStable(s.Notes, func(a, b int) bool { return s.Notes[a].TimeMs < s.Notes[b].TimeMs })
			}
			for j := range s.Notes {
				s.Notes[j].Section = i
			}
			merged.Sections[i] = *s
		}
	}
	merged.Events = m.events()
	merged.Conflicts = m.rep.Records()
	return merged
}

// agree adopts the first chart's value and records the discarded alternatives.
func (m *merger) agree(what string, get func(*model.CanonicalChart) float64) float64 {
	want := get(m.charts[0])
	var alts []string
	for i, c := range m.charts[1:] {
		if v := get(c); !sameValue(v, want) {
			alts = append(alts, fmt.Sprintf("%g (%s)", v, m.path(i+1)))
		}
	}
	if len(alts) > 0 {
		m.rep.Addf(model.AmbiguousBpm, 0, m.path(0),
			fmt.Sprintf("kept %g from the first chart", want),
			"%s differs across inputs; discarded %s", what, strings.Join(alts, ", "))
	}
	return want
}

// pool copies every section, tags it with its input index, and sorts by start
// time. The sort is stable, so ties keep input order.
func (m *merger) pool() []*model.Section {
	var all []*model.Section
	for i, c := range m.charts {
		for _, s := range c.Sections {
			sec := s.Clone()
			sec.Source = i
			for j := range sec.Notes {
				sec.Notes[j].Source = i
			}
			all = append(all, &sec)
		}
	}
	sort.SliceStable(all, func(a, b int) bool {
		return all[a].StartMs < all[b].StartMs
	})
	return all
}

func (m *merger) place(s *model.Section) {
	if from, ok := m.rejected[s.Source]; ok && s.StartMs >= from {
		return
	}
	switch m.policy.OnOverlappingSection {
	case model.Interleave:
		for _, a := range m.out {
			if overlaps(a, s) {
				m.rep.Addf(model.OverlappingSection, s.StartMs, m.path(s.Source),
					"kept both sections",
					"section %s from %s overlaps section %s from %s",
					span(s), m.path(s.Source), span(a), m.path(a.Source))
			}
		}
	case model.OverlapError:
		for len(m.out) > 0 {
			a := m.out[len(m.out)-1]
			if !overlaps(a, s) {
				break
			}
			later := max(a.Source, s.Source)
			at := s.StartMs
			if later == a.Source {
				at = a.StartMs
			}
			m.rejected[later] = at
			m.rep.Addf(model.UnreadableSource, at, m.path(later),
				fmt.Sprintf("merge aborted for this pair; discarded %s from %s on", m.path(later), ms(at)),
				"section %s from %s overlaps section %s from %s",
				span(s), m.path(s.Source), span(a), m.path(a.Source))
			if later == s.Source {
				return
			}
			m.out = m.out[:len(m.out)-1]
		}
	default:
		if n := len(m.out); n > 0 && overlaps(m.out[n-1], s) {
			m.truncate(n-1, s)
		}
	}
	m.out = append(m.out, s)
}

// overlaps reports whether b starts before a ends. Sections arrive sorted by
// start, so b never starts before a.
func overlaps(a, b *model.Section) bool {
	return b.StartMs < a.EndMs
}

// truncate clips m.out[i] to end where s starts and moves its later notes.
func (m *merger) truncate(i int, s *model.Section) {
	a := m.out[i]
	before := span(a)
	a.EndMs = s.StartMs

	var kept []model.Note
	moved, carried := 0, 0
	for _, n := range a.Notes {
		switch {
		case n.TimeMs < a.EndMs:
			kept = append(kept, n)
		case n.TimeMs < s.EndMs:
			s.Notes = append(s.Notes, n)
			moved++
		default:
			m.carried = append(m.carried, n)
			carried++
		}
	}
	if moved > 0 {
		m.touched[s] = true
	}
	a.Notes = kept

	resolution := fmt.Sprintf("clipped earlier section to %s; reassigned %d notes to the later section", span(a), moved)
	if carried > 0 {
		resolution += fmt.Sprintf("; %d notes past its end carried forward", carried)
	}
	m.rep.Addf(model.OverlappingSection, s.StartMs, m.path(a.Source), resolution,
		"section %s from %s overlaps section %s from %s",
		before, m.path(a.Source), span(s), m.path(s.Source))

	if a.EndMs <= a.StartMs && len(a.Notes) == 0 {
		m.out = append(m.out[:i], m.out[i+1:]...)
	}
}

// placeCarried puts notes cut past a later section's end into whichever
// merged section covers them.
func (m *merger) placeCarried() {
	for _, n := range m.carried {
		if from, ok := m.rejected[n.Source]; ok && n.TimeMs >= from {
			continue
		}
		idx := sort.Search(len(m.out), func(i int) bool { return m.out[i].StartMs > n.TimeMs }) - 1
		if idx >= 0 && (n.TimeMs < m.out[idx].EndMs || idx == len(m.out)-1) {
			s := m.out[idx]
			s.Notes = append(s.Notes, n)
			m.touched[s] = true
			continue
		}
		m.rep.Addf(model.OverlappingSection, n.TimeMs, m.path(n.Source), "note dropped",
			"note at %s lane %d was cut from a truncated section and no merged section covers it", ms(n.TimeMs), n.Lane)
	}
	m.carried = nil
}

type noteRef struct {
	sec *model.Section
	idx int
}

type noteKey struct {
	t    int64
	lane int
}

// resolveDuplicates groups notes by (time, lane). Only groups spanning more
// than one input are duplicates; repeats inside one chart are left alone.
func (m *merger) resolveDuplicates() {
	groups := make(map[noteKey][]noteRef)
	var keys []noteKey
	for _, s := range m.out {
		for j := range s.Notes {
			k := noteKey{timeKey(s.Notes[j].TimeMs), s.Notes[j].Lane}
			if _, ok := groups[k]; !ok {
				keys = append(keys, k)
			}
			groups[k] = append(groups[k], noteRef{s, j})
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].t != keys[j].t {
			return keys[i].t < keys[j].t
		}
		return keys[i].lane < keys[j].lane
	})

	drop := make(map[*model.Section]map[int]bool)
	for _, k := range keys {
		refs := groups[k]
		lo, hi := refs[0].source(), refs[0].source()
		for _, r := range refs[1:] {
			lo = min(lo, r.source())
			hi = max(hi, r.source())
		}
		if lo == hi {
			continue
		}

		var sources []string
		seen := make(map[int]bool)
		for _, r := range refs {
			if src := r.source(); !seen[src] {
				seen[src] = true
				sources = append(sources, m.path(src))
			}
		}
		keep, discarded := -1, hi
		var resolution string
		switch m.policy.OnDuplicateNote {
		case model.KeepBoth:
			resolution = fmt.Sprintf("kept all %d notes", len(refs))
		case model.KeepLast:
			keep, discarded = hi, lo
			resolution = "kept the note from " + m.path(hi)
		default:
			keep = lo
			resolution = "kept the note from " + m.path(lo)
		}
		if keep >= 0 {
			for _, r := range refs {
				if r.source() != keep {
					if drop[r.sec] == nil {
						drop[r.sec] = make(map[int]bool)
					}
					drop[r.sec][r.idx] = true
				}
			}
		}
		t := refs[0].note().TimeMs
		m.rep.Addf(model.DuplicateNote, t, m.path(discarded), resolution,
			"%d notes at %s lane %d from %s", len(refs), ms(t), k.lane, strings.Join(sources, ", "))
	}

	for s, idx := range drop {
		kept := s.Notes[:0:0]
		for j, n := range s.Notes {
			if !idx[j] {
				kept = append(kept, n)
			}
		}
		s.Notes = kept
	}
}

func (r noteRef) note() *model.Note { return &r.sec.Notes[r.idx] }
func (r noteRef) source() int       { return r.sec.Notes[r.idx].Source }

type eventKey struct {
	t    int64
	name string
}

// events concatenates every timeline, sorts by time (ties in input order) and
// drops repeats of the same name at the same time.
func (m *merger) events() []model.Event {
	var all []model.Event
	for i, c := range m.charts {
		from, rejected := m.rejected[i]
		for _, e := range c.Events {
			if rejected && e.TimeMs >= from {
				continue
			}
			e.Source = i
			if e.Args != nil {
				e.Args = append([]string(nil), e.Args...)
			}
			all = append(all, e)
		}
	}
	sort.SliceStable(all, func(a, b int) bool { return all[a].TimeMs < all[b].TimeMs })

	var out []model.Event
	seen := make(map[eventKey]struct{}, len(all))
	for _, e := range all {
		k := eventKey{timeKey(e.TimeMs), norm.NFC.String(e.Name)}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, e)
	}
	return out
}

func ms(v float64) string {
	return fmt.Sprintf("%gms", v)
}

func span(s *model.Section) string {
	return fmt.Sprintf("[%g,%g)", s.StartMs, s.EndMs)
}
