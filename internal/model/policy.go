package model

import "fmt"

// DuplicatePolicy selects how notes sharing a time and lane across inputs are
// resolved.
type DuplicatePolicy string

const (
	KeepFirst DuplicatePolicy = "keepFirst"
	KeepLast  DuplicatePolicy = "keepLast"
	KeepBoth  DuplicatePolicy = "keepBoth"
)

// OverlapPolicy selects how overlapping sections are resolved.
type OverlapPolicy string

const (
	OverlapError    OverlapPolicy = "error"
	TruncateEarlier OverlapPolicy = "truncateEarlier"
	Interleave      OverlapPolicy = "interleave"
)

// MergePolicy configures the timeline merger. The zero value is equivalent
// to DefaultPolicy.
type MergePolicy struct {
	OnDuplicateNote      DuplicatePolicy `json:"on_duplicate_note" yaml:"on_duplicate_note"`
	OnOverlappingSection OverlapPolicy   `json:"on_overlapping_section" yaml:"on_overlapping_section"`
}

// DefaultPolicy returns keepFirst / truncateEarlier.
func DefaultPolicy() MergePolicy {
	return MergePolicy{OnDuplicateNote: KeepFirst, OnOverlappingSection: TruncateEarlier}
}

// WithDefaults fills unset fields from DefaultPolicy.
func (p MergePolicy) WithDefaults() MergePolicy {
	d := DefaultPolicy()
	if p.OnDuplicateNote == "" {
		p.OnDuplicateNote = d.OnDuplicateNote
	}
	if p.OnOverlappingSection == "" {
		p.OnOverlappingSection = d.OnOverlappingSection
	}
	return p
}

// Canonical parses both fields into their named constants, filling unset
// fields from DefaultPolicy. Unknown values are an error.
func (p MergePolicy) Canonical() (MergePolicy, error) {
	dup, err := ParseDuplicatePolicy(string(p.OnDuplicateNote))
	if err != nil {
		return p, err
	}
	overlap, err := ParseOverlapPolicy(string(p.OnOverlappingSection))
	if err != nil {
		return p, err
	}
	return MergePolicy{OnDuplicateNote: dup, OnOverlappingSection: overlap}, nil
}

// String returns a compact description, e.g. "keepFirst/truncateEarlier".
func (p MergePolicy) String() string {
	if c, err := p.Canonical(); err == nil {
		p = c
	}
	p = p.WithDefaults()
	return string(p.OnDuplicateNote) + "/" + string(p.OnOverlappingSection)
}

// ParseDuplicatePolicy accepts keepFirst, keep-first, keep_first (any case).
// An empty string yields KeepFirst.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch normalizeKey(s) {
	case "", "keepfirst", "first":
		return KeepFirst, nil
	case "keeplast", "last":
		return KeepLast, nil
	case "keepboth", "both":
		return KeepBoth, nil
	}
	return "", fmt.Errorf("unknown duplicate-note policy %q (want keepFirst, keepLast or keepBoth)", s)
}

// ParseOverlapPolicy accepts error, truncateEarlier, interleave in the same
// spellings as ParseDuplicatePolicy. An empty string yields TruncateEarlier.
func ParseOverlapPolicy(s string) (OverlapPolicy, error) {
	switch normalizeKey(s) {
	case "", "truncateearlier", "truncate":
		return TruncateEarlier, nil
	case "interleave":
		return Interleave, nil
	case "error", "fail":
		return OverlapError, nil
	}
	return "", fmt.Errorf("unknown overlapping-section policy %q (want error, truncateEarlier or interleave)", s)
}
