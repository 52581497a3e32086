// Package serialize renders canonical charts back into chart JSON.
package serialize

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/phobologic/chartmerge/internal/model"
	"github.com/phobologic/chartmerge/internal/report"
)

// UnsupportedFormatError reports a target that cannot represent part of the
// chart. When Omitted or Losses is non-zero the output was still produced.
type UnsupportedFormatError struct {
	Target  model.Format
	Losses  int
	Omitted int // notes left out
	Reason  string
}

func (e *UnsupportedFormatError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("format %q: %s", e.Target, e.Reason)
	}
	return fmt.Sprintf("format %q cannot represent the whole chart: %d losses, %d notes omitted", e.Target, e.Losses, e.Omitted)
}

// Options controls output layout.
type Options struct {
	Indent bool
}

// Result holds the rendered document. Report is the merged chart's report
// followed by Losses.
type Result struct {
	Format model.Format
	Data   []byte
	Losses report.Report
	Report report.Report
}

// Merged renders m in target format. An empty or unknown target means the
// merged chart's own format. Lossy output comes back together with an
// *UnsupportedFormatError; only an unrenderable target returns a nil Result.
func Merged(m *model.MergedChart, target model.Format, opts Options) (*Result, error) {
	if !target.Known() {
		target = m.Format
	}
	r, ok := renderers[target]
	if !ok {
		return nil, &UnsupportedFormatError{Target: target, Reason: "no serializer for this format"}
	}

	w := &writer{m: m, target: target, layout: r}
	doc := w.document()

	var data []byte
	var err error
	if opts.Indent {
		data, err = json.MarshalIndent(doc, "", "  ")
	} else {
		data, err = json.Marshal(doc)
	}
	if err != nil {
		return nil, fmt.Errorf("encoding %s chart: %w", target, err)
	}

	res := &Result{
		Format: target,
		Data:   data,
		Losses: w.losses.Records(),
	}
	res.Report = append(append(report.Report(nil), m.Conflicts...), res.Losses...)
	if len(res.Losses) > 0 {
		return res, &UnsupportedFormatError{Target: target, Losses: len(res.Losses), Omitted: w.omitted}
	}
	return res, nil
}

// Chart renders a single canonical chart, as if merged on its own.
func Chart(c *model.CanonicalChart, target model.Format, opts Options) (*Result, error) {
	m := &model.MergedChart{
		CanonicalChart: *c,
		Sources:        []model.SourceInfo{{Path: c.Source, Format: c.Format}},
	}
	return Merged(m, target, opts)
}

// renderer captures the per-format output differences.
type renderer struct {
	events  bool            // song.events timeline; otherwise inline lane -1 entries
	length  model.LengthKey // length field written for sections of other formats
	lengths model.LengthKey // length fields the format can carry
}

var renderers = map[model.Format]renderer{
	model.FormatV1:      {length: model.StepsKey, lengths: model.StepsKey},
	model.FormatV2Psych: {events: true, length: model.BeatsKey, lengths: model.BeatsKey | model.StepsKey},
}

type writer struct {
	m       *model.MergedChart
	target  model.Format
	layout  renderer
	losses  report.Collector
	omitted int
}

func (w *writer) sourceFormat(i int) model.Format {
	if i >= 0 && i < len(w.m.Sources) {
		return w.m.Sources[i].Format
	}
	return w.m.Format
}

func (w *writer) document() map[string]any {
	root := map[string]any{}
	song := map[string]any{}
	if w.m.Format == w.target {
		for k, v := range w.m.RootExtra {
			root[k] = v
		}
		for k, v := range w.m.Extra {
			song[k] = v
		}
	}
	song["bpm"] = w.m.Bpm
	song["speed"] = w.m.ScrollSpeed
	song["notes"] = w.sections()
	if w.layout.events {
		song["events"] = w.events()
	}
	root["song"] = song
	return root
}

const stepEpsilon = 1e-6

func (w *writer) sections() []any {
	secs := w.m.Sections
	filler := len(secs) > 0 && secs[0].StartMs > 0
	var starts []float64
	if filler {
		starts = append(starts, 0)
	}
	for i := range secs {
		starts = append(starts, secs[i].StartMs)
	}
	inline := w.inlineEvents(starts)

	out := make([]any, 0, len(starts))
	if filler {
		// Sequential formats start at 0.
		out = append(out, w.section(&model.Section{Source: -1}, w.beats(secs[0].StartMs, w.m.Bpm), inline[0]))
	}

	curBpm := w.m.Bpm
	for i := range secs {
		s := &secs[i]
		if s.ChangeBPM && s.Bpm > 0 {
			curBpm = s.Bpm
		}
		var beats float64
		if i+1 < len(secs) {
			next := secs[i+1].StartMs
			if next < s.EndMs {
				w.losses.Addf(model.UnreadableSource, s.StartMs, w.m.SourcePath(s.Source),
					fmt.Sprintf("emitted section %s as ending at %gms", span(s), next),
					"format %s cannot represent overlapping sections", w.target)
			}
			beats = w.beats(next-s.StartMs, curBpm)
		} else {
			beats = s.Beats
			if beats <= 0 && s.EndMs > s.StartMs {
				beats = w.beats(s.EndMs-s.StartMs, curBpm)
			}
		}
		idx := i
		if filler {
			idx++
		}
		out = append(out, w.section(s, beats, inline[idx]))
	}
	return out
}

// inlineEvents places events as [time, -1, name, args...] entries in the
// emitted section covering them, keyed by emitted section index. Formats
// with an event timeline get none.
func (w *writer) inlineEvents(starts []float64) map[int][]any {
	if w.layout.events || len(w.m.Events) == 0 {
		return nil
	}
	if len(starts) == 0 {
		w.losses.Addf(model.UnreadableSource, w.m.Events[0].TimeMs, "",
			fmt.Sprintf("dropped %d events", len(w.m.Events)),
			"format %s stores events inside sections and the chart has none", w.target)
		return nil
	}
	out := make(map[int][]any)
	for _, e := range w.m.Events {
		i := max(sort.SearchFloat64s(starts, e.TimeMs+stepEpsilon)-1, 0)
		entry := []any{e.TimeMs, -1, e.Name}
		for _, a := range e.Args {
			entry = append(entry, a)
		}
		out[i] = append(out[i], entry)
	}
	return out
}

// lengthKeys picks the length fields for s: the authored ones when s comes
// from a chart in the target format, the format's own field otherwise.
func (w *writer) lengthKeys(s *model.Section) model.LengthKey {
	if w.sourceFormat(s.Source) == w.target {
		if keys := s.Lengths & w.layout.lengths; keys != 0 {
			return keys
		}
	}
	return w.layout.length
}

func (w *writer) beats(ms, bpm float64) float64 {
	return ms * bpm / 60000
}

func (w *writer) section(s *model.Section, beats float64, events []any) map[string]any {
	out := map[string]any{}
	if w.sourceFormat(s.Source) == w.target {
		for k, v := range s.Extra {
			out[k] = v
		}
	}

	notes := make([]any, 0, len(s.Notes))
	laneCount := w.target.LaneCount()
	for i := range s.Notes {
		n := &s.Notes[i]
		if n.Lane >= laneCount {
			w.omitted++
			w.losses.Addf(model.UnreadableSource, n.TimeMs, w.m.SourcePath(n.Source), "note omitted",
				"lane %d exceeds the %d lanes of format %s", n.Lane, laneCount, w.target)
			continue
		}
		notes = append(notes, w.note(n, s.MustHit, laneCount))
	}
	out["sectionNotes"] = append(notes, events...)
	out["mustHitSection"] = s.MustHit

	if s.Bpm > 0 {
		out["bpm"] = s.Bpm
	}
	out["changeBPM"] = s.ChangeBPM

	keys := w.lengthKeys(s)
	if keys&model.BeatsKey != 0 {
		out["sectionBeats"] = roundBeats(beats)
	}
	if keys&model.StepsKey != 0 {
		steps := beats * 4
		rounded := math.Round(steps)
		if math.Abs(steps-rounded) > stepEpsilon {
			w.losses.Addf(model.UnreadableSource, s.StartMs, w.m.SourcePath(s.Source),
				fmt.Sprintf("rounded to %d steps", int(rounded)),
				"section %s is %g steps long; lengthInSteps only stores whole steps", span(s), steps)
		}
		out["lengthInSteps"] = int(rounded)
	}
	return out
}

func (w *writer) note(n *model.Note, mustHit bool, laneCount int) []any {
	arr := []any{n.TimeMs, model.SwapLane(n.Lane, mustHit, laneCount), n.SustainMs}
	passthrough := w.sourceFormat(n.Source) == w.target
	var extra []int
	if passthrough {
		for k := range n.Extra {
			if i, err := strconv.Atoi(k); err == nil && i >= 3 {
				extra = append(extra, i)
			}
		}
		sort.Ints(extra)
	}
	last := 2
	if n.Type != "" {
		last = 3
	}
	if len(extra) > 0 {
		last = max(last, extra[len(extra)-1])
	}
	for pos := 3; pos <= last; pos++ {
		switch v, ok := n.Extra[strconv.Itoa(pos)]; {
		case pos == 3 && n.Type != "":
			arr = append(arr, n.Type)
		case ok && passthrough:
			arr = append(arr, v)
		case pos == 3:
			arr = append(arr, "")
		default:
			arr = append(arr, nil)
		}
	}
	return arr
}

// events groups events sharing a time: [[time, [[name, args...], ...]], ...].
func (w *writer) events() []any {
	out := []any{}
	var group []any
	var groupTime float64
	flush := func() {
		if group != nil {
			out = append(out, []any{groupTime, group})
		}
	}
	for i, e := range w.m.Events {
		if i == 0 || !sameTime(e.TimeMs, groupTime) {
			flush()
			group = []any{}
			groupTime = e.TimeMs
		}
		entry := []any{e.Name}
		for _, a := range e.Args {
			entry = append(entry, a)
		}
		group = append(group, entry)
	}
	flush()
	return out
}

func sameTime(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func roundBeats(b float64) float64 {
	return math.Round(b*1e6) / 1e6
}

func span(s *model.Section) string {
	return fmt.Sprintf("[%g,%g)", s.StartMs, s.EndMs)
}
