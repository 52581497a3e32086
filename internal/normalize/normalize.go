// Package normalize converts detected chart documents into the canonical model.
package normalize

import (
	"fmt"
	"math"
	"strconv"

	"github.com/phobologic/chartmerge/internal/detect"
	"github.com/phobologic/chartmerge/internal/model"
)

// ErrorKind classifies a normalization failure.
type ErrorKind string

const (
	MissingRequiredField ErrorKind = "missing_required_field"
	InvalidTimeValue     ErrorKind = "invalid_time_value"
)

// NormalizationError reports a structurally invalid chart of a known format.
type NormalizationError struct {
	Source string
	Kind   ErrorKind
	Field  string
	Detail string
}

func (e *NormalizationError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Field)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Source != "" {
		msg = e.Source + ": " + msg
	}
	return msg
}

// formatRules describes how one format maps onto the canonical model.
type formatRules struct {
	format      model.Format
	songKeys    map[string]struct{} // interpreted song-level keys
	sectionKeys map[string]struct{} // interpreted section-level keys
	songEvents  bool                // song.events timeline
}

func keySet(keys ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		m[k] = struct{}{}
	}
	return m
}

var rules = map[model.Format]formatRules{
	model.FormatV1: {
		format:      model.FormatV1,
		songKeys:    keySet("bpm", "speed", "notes", "sections"),
		sectionKeys: keySet("sectionNotes", "lengthInSteps", "mustHitSection", "bpm", "changeBPM"),
	},
	model.FormatV2Psych: {
		format:      model.FormatV2Psych,
		songKeys:    keySet("bpm", "speed", "notes", "sections", "events"),
		sectionKeys: keySet("sectionNotes", "sectionBeats", "lengthInSteps", "mustHitSection", "bpm", "changeBPM"),
		songEvents:  true,
	},
}

const defaultBeats = 4.0

// Chart converts doc into a CanonicalChart. Structural problems return a
// *NormalizationError.
func Chart(doc *model.ChartDocument) (*model.CanonicalChart, error) {
	r, ok := rules[doc.Format]
	if !ok {
		return nil, &NormalizationError{Source: doc.SourcePath, Kind: MissingRequiredField, Field: "format", Detail: fmt.Sprintf("no normalizer for %q", doc.Format)}
	}
	n := &normalizer{doc: doc, rules: r, laneCount: doc.Format.LaneCount()}
	return n.run()
}

type normalizer struct {
	doc       *model.ChartDocument
	rules     formatRules
	laneCount int
	events    []model.Event
}

func (n *normalizer) fail(kind ErrorKind, field, format string, args ...any) error {
	return &NormalizationError{Source: n.doc.SourcePath, Kind: kind, Field: field, Detail: fmt.Sprintf(format, args...)}
}

func (n *normalizer) run() (*model.CanonicalChart, error) {
	song, rawSections, ok := detect.Container(n.doc.Root, n.doc.Layout)
	if !ok {
		return nil, n.fail(MissingRequiredField, detect.SectionsKey(n.doc.Layout), "section list missing or malformed")
	}

	bpmVal, has := song["bpm"]
	if !has {
		return nil, n.fail(MissingRequiredField, "bpm", "required")
	}
	bpm, ok := bpmVal.(float64)
	if !ok || bpm <= 0 || math.IsInf(bpm, 0) {
		return nil, n.fail(InvalidTimeValue, "bpm", "want a positive number, got %v", bpmVal)
	}

	speed := 1.0
	if v, has := song["speed"]; has {
		s, ok := v.(float64)
		if !ok || s <= 0 {
			return nil, n.fail(InvalidTimeValue, "speed", "want a positive number, got %v", v)
		}
		speed = s
	}

	chart := &model.CanonicalChart{
		Source:      n.doc.SourcePath,
		Format:      n.doc.Format,
		Bpm:         bpm,
		ScrollSpeed: speed,
		Extra:       extras(song, n.rules.songKeys),
	}
	if n.doc.Layout != model.LayoutBare {
		chart.RootExtra = extras(n.doc.Root, keySet("song"))
	}

	sections, err := n.sections(rawSections, bpm)
	if err != nil {
		return nil, err
	}
	chart.Sections = sections

	if n.rules.songEvents {
		if err := n.songEvents(song); err != nil {
			return nil, err
		}
	}
	chart.Events = n.events
	return chart, nil
}

func (n *normalizer) sections(raw []any, bpm float64) ([]model.Section, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]model.Section, len(raw))
	maxTimes := make([]float64, len(raw))
	cur := 0.0
	curBpm := bpm

	for i, r := range raw {
		sec := r.(map[string]any) // shape checked by detect.Container
		field := fmt.Sprintf("%s[%d]", detect.SectionsKey(n.doc.Layout), i)

		s := model.Section{
			StartMs: cur,
			Extra:   extras(sec, n.rules.sectionKeys),
		}
		if v, has := sec["mustHitSection"]; has {
			b, ok := v.(bool)
			if !ok {
				return nil, n.fail(MissingRequiredField, field+".mustHitSection", "want a boolean, got %v", v)
			}
			s.MustHit = b
		}
		if v, has := sec["bpm"]; has {
			b, ok := v.(float64)
			if !ok || b < 0 {
				return nil, n.fail(InvalidTimeValue, field+".bpm", "want a number, got %v", v)
			}
			s.Bpm = b
		}
		if v, ok := sec["changeBPM"].(bool); ok {
			s.ChangeBPM = v
		}
		if s.ChangeBPM && s.Bpm > 0 {
			curBpm = s.Bpm
		}

		beats, keys, err := n.sectionBeats(sec, field)
		if err != nil {
			return nil, err
		}
		s.Beats, s.Lengths = beats, keys

		notes, maxT, err := n.notes(sec["sectionNotes"].([]any), field, i, s.MustHit)
		if err != nil {
			return nil, err
		}
		s.Notes = notes
		maxTimes[i] = math.Max(cur, maxT)

		out[i] = s
		cur += beats * 60000 / curBpm
	}

	for i := range out {
		if i+1 < len(out) {
			out[i].EndMs = out[i+1].StartMs
		} else {
			out[i].EndMs = maxTimes[i]
		}
	}
	return out, nil
}

// sectionBeats returns the authored length in beats and which length fields
// carried it. Psych prefers sectionBeats over lengthInSteps.
func (n *normalizer) sectionBeats(sec map[string]any, field string) (float64, model.LengthKey, error) {
	var keys model.LengthKey
	beats := defaultBeats
	if v, has := sec["lengthInSteps"]; has {
		st, ok := v.(float64)
		if !ok || st < 0 {
			return 0, 0, n.fail(InvalidTimeValue, field+".lengthInSteps", "want a non-negative number, got %v", v)
		}
		beats = st / 4
		keys |= model.StepsKey
	}
	if v, has := sec["sectionBeats"]; has && n.doc.Format == model.FormatV2Psych {
		b, ok := v.(float64)
		if !ok || b < 0 {
			return 0, 0, n.fail(InvalidTimeValue, field+".sectionBeats", "want a non-negative number, got %v", v)
		}
		beats = b
		keys |= model.BeatsKey
	}
	return beats, keys, nil
}

// notes converts one sectionNotes array and returns the max item time.
func (n *normalizer) notes(raw []any, field string, section int, mustHit bool) ([]model.Note, float64, error) {
	var notes []model.Note
	maxT := 0.0
	for j, r := range raw {
		arr := r.([]any)
		nf := fmt.Sprintf("%s.sectionNotes[%d]", field, j)

		t, ok := arr[0].(float64)
		if !ok {
			return nil, 0, n.fail(InvalidTimeValue, nf, "time %v is not a number", arr[0])
		}
		if t < 0 || math.IsInf(t, 0) {
			return nil, 0, n.fail(InvalidTimeValue, nf, "negative time %v", t)
		}
		maxT = math.Max(maxT, t)

		lane, ok := arr[1].(float64)
		if !ok {
			return nil, 0, n.fail(InvalidTimeValue, nf, "lane %v is not a number", arr[1])
		}
		if lane < 0 {
			if len(arr) > 2 {
				if name, ok := arr[2].(string); ok {
					n.events = append(n.events, model.Event{TimeMs: t, Name: name, Args: stringArgs(arr[3:])})
					continue
				}
			}
			return nil, 0, n.fail(InvalidTimeValue, nf, "negative lane %v", lane)
		}
		if lane != math.Trunc(lane) {
			return nil, 0, n.fail(InvalidTimeValue, nf, "lane %v is not an integer", lane)
		}

		note := model.Note{
			TimeMs:  t,
			Lane:    model.SwapLane(int(lane), mustHit, n.laneCount),
			Section: section,
		}
		if len(arr) > 2 {
			sus, ok := arr[2].(float64)
			if !ok {
				return nil, 0, n.fail(InvalidTimeValue, nf, "sustain %v is not a number", arr[2])
			}
			note.SustainMs = sus
		}
		for k := 3; k < len(arr); k++ {
			if s, ok := arr[k].(string); ok && k == 3 {
				note.Type = s
				continue
			}
			if note.Extra == nil {
				note.Extra = model.Passthrough{}
			}
			note.Extra[strconv.Itoa(k)] = arr[k]
		}
		notes = append(notes, note)
	}
	return notes, maxT, nil
}

// songEvents reads [[time, [[name, v1, v2], ...]], ...].
func (n *normalizer) songEvents(song map[string]any) error {
	raw, has := song["events"]
	if !has {
		return nil
	}
	groups, ok := raw.([]any)
	if !ok {
		return n.fail(MissingRequiredField, "events", "want an array, got %T", raw)
	}
	for i, g := range groups {
		field := fmt.Sprintf("events[%d]", i)
		group, ok := g.([]any)
		if !ok || len(group) < 2 {
			return n.fail(MissingRequiredField, field, "want [time, [events...]]")
		}
		t, ok := group[0].(float64)
		if !ok || t < 0 {
			return n.fail(InvalidTimeValue, field, "invalid time %v", group[0])
		}
		entries, ok := group[1].([]any)
		if !ok {
			return n.fail(MissingRequiredField, field, "event list is not an array")
		}
		for j, e := range entries {
			entry, ok := e.([]any)
			if !ok || len(entry) == 0 {
				return n.fail(MissingRequiredField, fmt.Sprintf("%s[%d]", field, j), "want [name, values...]")
			}
			name, ok := entry[0].(string)
			if !ok {
				return n.fail(MissingRequiredField, fmt.Sprintf("%s[%d]", field, j), "event name is not a string")
			}
			n.events = append(n.events, model.Event{TimeMs: t, Name: name, Args: stringArgs(entry[1:])})
		}
	}
	return nil
}

func extras(obj map[string]any, known map[string]struct{}) model.Passthrough {
	out := model.Passthrough{}
	for k, v := range obj {
		if _, ok := known[k]; !ok {
			out[k] = v
		}
	}
	return out
}

func stringArgs(vals []any) []string {
	if len(vals) == 0 {
		return nil
	}
	out := make([]string, len(vals))
	for i, v := range vals {
		switch x := v.(type) {
		case string:
			out[i] = x
		case float64:
			out[i] = strconv.FormatFloat(x, 'f', -1, 64)
		case bool:
			out[i] = strconv.FormatBool(x)
		case nil:
			out[i] = ""
		default:
			out[i] = fmt.Sprint(x)
		}
	}
	return out
}
