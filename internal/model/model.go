// Package model defines core data structures for chartmerge.
package model

import (
	"fmt"
	"strings"
)

// Format identifies a chart schema variant.
type Format string

const (
	FormatUnknown Format = "unknown"
	FormatV1      Format = "v1"
	FormatV2Psych Format = "psych"
)

// LaneCount returns the number of lanes a format can represent, or 0 for
// unknown formats. Both supported formats use four lanes per side.
func (f Format) LaneCount() int {
	switch f {
	case FormatV1, FormatV2Psych:
		return 8
	}
	return 0
}

// Known reports whether f is one of the supported formats.
func (f Format) Known() bool {
	return f.LaneCount() > 0
}

// ParseFormat parses a format name. An empty string or "auto" returns
// FormatUnknown, which callers treat as "same as the input".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto", "unknown":
		return FormatUnknown, nil
	case "v1", "legacy", "base":
		return FormatV1, nil
	case "psych", "v2", "v2psych", "psych-engine":
		return FormatV2Psych, nil
	}
	return FormatUnknown, fmt.Errorf("unsupported format %q", s)
}

// Layout indicates where the section list lives in a raw chart tree.
type Layout string

const (
	LayoutSongNotes    Layout = "song.notes"
	LayoutSongSections Layout = "song.sections"
	LayoutBare         Layout = "notes"
)

// Passthrough holds fields the normalizer does not interpret. Values are
// decoded JSON and are written back untouched.
type Passthrough map[string]any

// Clone returns a shallow copy, preserving nil.
func (p Passthrough) Clone() Passthrough {
	if p == nil {
		return nil
	}
	out := make(Passthrough, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// ChartDocument is a parsed chart file plus its detected schema.
type ChartDocument struct {
	SourcePath  string
	Root        map[string]any
	Format      Format
	Layout      Layout
	Confidence  float64
	Fingerprint string
}

// Note is a single timed input.
type Note struct {
	TimeMs    float64
	Lane      int // canonical: 0-3 opponent, 4-7 player
	SustainMs float64
	Type      string
	Section   int // index of the owning section
	Source    int // input index
	Extra     Passthrough
}

// Event is an entry on the event timeline, separate from notes.
type Event struct {
	TimeMs float64
	Name   string
	Args   []string
	Source int
}

// LengthKey is a set of section length fields.
type LengthKey uint8

const (
	BeatsKey LengthKey = 1 << iota // sectionBeats
	StepsKey                       // lengthInSteps
)

// Section is a contiguous time range grouping notes.
type Section struct {
	StartMs   float64
	EndMs     float64
	Notes     []Note
	MustHit   bool
	Beats     float64   // authored length
	Lengths   LengthKey // length fields present in the source; 0 when none
	Bpm       float64
	ChangeBPM bool
	Source    int
	Extra     Passthrough
}

// Clone returns a deep copy of the section's slices and maps.
func (s Section) Clone() Section {
	out := s
	if s.Notes != nil {
		out.Notes = make([]Note, len(s.Notes))
		for i, n := range s.Notes {
			n.Extra = n.Extra.Clone()
			out.Notes[i] = n
		}
	}
	out.Extra = s.Extra.Clone()
	return out
}

// CanonicalChart is the format-independent chart model.
type CanonicalChart struct {
	Source      string
	Format      Format
	Bpm         float64
	ScrollSpeed float64
	Sections    []Section
	Events      []Event
	Extra       Passthrough // song-level fields
	RootExtra   Passthrough // top-level fields outside the song object
}

// NoteCount returns the total number of notes across all sections.
func (c *CanonicalChart) NoteCount() int {
	n := 0
	for i := range c.Sections {
		n += len(c.Sections[i].Notes)
	}
	return n
}

// SourceInfo describes one merged input.
type SourceInfo struct {
	Path   string `json:"path" yaml:"path"`
	Format Format `json:"format" yaml:"format"`
}

// MergedChart is the result of a merge: a canonical chart plus the report.
type MergedChart struct {
	CanonicalChart
	Sources   []SourceInfo
	Conflicts []ConflictRecord
}

// SourcePath returns the path of input i, or "" if out of range.
func (m *MergedChart) SourcePath(i int) string {
	if i < 0 || i >= len(m.Sources) {
		return ""
	}
	return m.Sources[i].Path
}

// ConflictKind classifies a conflict record.
type ConflictKind string

const (
	DuplicateNote      ConflictKind = "duplicate_note"
	OverlappingSection ConflictKind = "overlapping_section"
	AmbiguousBpm       ConflictKind = "ambiguous_bpm"
	UnreadableSource   ConflictKind = "unreadable_source"
)

// ConflictKinds lists every kind in report order.
var ConflictKinds = []ConflictKind{UnreadableSource, AmbiguousBpm, OverlappingSection, DuplicateNote}

// ParseConflictKind parses a kind name, accepting camelCase as well.
func ParseConflictKind(s string) (ConflictKind, error) {
	key := normalizeKey(s)
	for _, k := range ConflictKinds {
		if normalizeKey(string(k)) == key {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown conflict kind %q", s)
}

// ConflictRecord describes one lossy or ambiguous decision.
type ConflictRecord struct {
	TimeMs     float64      `json:"time_ms" yaml:"time_ms"`
	Kind       ConflictKind `json:"kind" yaml:"kind"`
	Source     string       `json:"source,omitempty" yaml:"source,omitempty"`
	Detail     string       `json:"detail" yaml:"detail"`
	Resolution string       `json:"resolution" yaml:"resolution"`
}

// SwapLane converts between raw section-relative lanes and canonical lanes.
// Raw lanes in a must-hit section have their halves swapped; the mapping is
// its own inverse. Lanes outside [0, laneCount) are returned unchanged.
func SwapLane(lane int, mustHit bool, laneCount int) int {
	if !mustHit || lane < 0 || lane >= laneCount || laneCount < 2 {
		return lane
	}
	half := laneCount / 2
	return (lane + half) % laneCount
}

func normalizeKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "_", "")
	return strings.ReplaceAll(s, "-", "")
}
