// Package detect classifies raw chart documents into known schema variants.
package detect

import (
	"fmt"
	"strings"

	"github.com/phobologic/chartmerge/internal/model"
)

// Result is the outcome of detection.
type Result struct {
	Format      model.Format
	Layout      model.Layout
	Confidence  float64
	Fingerprint string
}

// Fingerprint is one structural test. Psych charts are a superset of legacy
// charts, so fingerprints are tested in order and the first match wins.
type Fingerprint struct {
	Name       string
	Format     model.Format
	Layout     model.Layout
	Confidence float64
	Match      func(root map[string]any) bool
}

// DetectionFailure is returned for documents no fingerprint matches.
type DetectionFailure struct {
	Path   string
	Reason string
}

func (e *DetectionFailure) Error() string {
	if e.Path == "" {
		return "unrecognized chart format: " + e.Reason
	}
	return fmt.Sprintf("%s: unrecognized chart format: %s", e.Path, e.Reason)
}

var psychSongKeys = []string{"events", "gfVersion", "player3", "stage", "arrowSkin", "splashSkin"}

var psychSectionKeys = []string{"sectionBeats", "gfSection"}

// Fingerprints is the ordered fingerprint list.
var Fingerprints = []Fingerprint{
	{
		Name:       "psych-format-marker",
		Format:     model.FormatV2Psych,
		Confidence: 1.0,
		Match: func(root map[string]any) bool {
			for _, layout := range []model.Layout{model.LayoutSongNotes, model.LayoutSongSections, model.LayoutBare} {
				song, _, ok := Container(root, layout)
				if ok && hasPsychFormatMarker(song, root) {
					return true
				}
			}
			return false
		},
	},
	{
		Name:       "psych-song",
		Format:     model.FormatV2Psych,
		Layout:     model.LayoutSongNotes,
		Confidence: 0.9,
		Match:      psychMatcher(model.LayoutSongNotes),
	},
	{
		Name:       "legacy-song-notes",
		Format:     model.FormatV1,
		Layout:     model.LayoutSongNotes,
		Confidence: 1.0,
		Match:      layoutMatcher(model.LayoutSongNotes),
	},
	{
		Name:       "psych-bare",
		Format:     model.FormatV2Psych,
		Layout:     model.LayoutBare,
		Confidence: 0.7,
		Match:      psychMatcher(model.LayoutBare),
	},
	{
		Name:       "legacy-song-sections",
		Format:     model.FormatV1,
		Layout:     model.LayoutSongSections,
		Confidence: 0.8,
		Match:      layoutMatcher(model.LayoutSongSections),
	},
	{
		Name:       "legacy-bare",
		Format:     model.FormatV1,
		Layout:     model.LayoutBare,
		Confidence: 0.6,
		Match:      layoutMatcher(model.LayoutBare),
	},
}

// Detect returns the first matching fingerprint's classification, or
// FormatUnknown with confidence 0.
func Detect(root any) Result {
	obj, ok := root.(map[string]any)
	if !ok {
		return Result{Format: model.FormatUnknown}
	}
	for _, fp := range Fingerprints {
		if !fp.Match(obj) {
			continue
		}
		layout := fp.Layout
		if layout == "" {
			layout = firstLayout(obj)
		}
		return Result{
			Format:      fp.Format,
			Layout:      layout,
			Confidence:  fp.Confidence,
			Fingerprint: fp.Name,
		}
	}
	return Result{Format: model.FormatUnknown}
}

// Document classifies root and wraps it in a ChartDocument. Unrecognized
// documents return a *DetectionFailure.
func Document(path string, root any) (*model.ChartDocument, error) {
	res := Detect(root)
	if res.Format == model.FormatUnknown {
		return nil, &DetectionFailure{Path: path, Reason: describeMiss(root)}
	}
	return &model.ChartDocument{
		SourcePath:  path,
		Root:        root.(map[string]any),
		Format:      res.Format,
		Layout:      res.Layout,
		Confidence:  res.Confidence,
		Fingerprint: res.Fingerprint,
	}, nil
}

// Container returns the object holding chart metadata for layout and the raw
// section list. ok is false unless the section list is well formed.
func Container(root map[string]any, layout model.Layout) (song map[string]any, sections []any, ok bool) {
	var key string
	switch layout {
	case model.LayoutSongNotes, model.LayoutSongSections:
		song, ok = root["song"].(map[string]any)
		if !ok {
			return nil, nil, false
		}
		key = "notes"
		if layout == model.LayoutSongSections {
			key = "sections"
		}
	case model.LayoutBare:
		song = root
		key = "notes"
	default:
		return nil, nil, false
	}
	sections, ok = song[key].([]any)
	if !ok || !validSections(sections) {
		return nil, nil, false
	}
	return song, sections, true
}

// SectionsKey returns the key holding the section list for layout.
func SectionsKey(layout model.Layout) string {
	if layout == model.LayoutSongSections {
		return "sections"
	}
	return "notes"
}

func layoutMatcher(layout model.Layout) func(map[string]any) bool {
	return func(root map[string]any) bool {
		_, _, ok := Container(root, layout)
		return ok
	}
}

func psychMatcher(layout model.Layout) func(map[string]any) bool {
	return func(root map[string]any) bool {
		song, sections, ok := Container(root, layout)
		if !ok {
			return false
		}
		for _, k := range psychSongKeys {
			if _, has := song[k]; has {
				return true
			}
		}
		for _, s := range sections {
			sec := s.(map[string]any)
			for _, k := range psychSectionKeys {
				if _, has := sec[k]; has {
					return true
				}
			}
		}
		return false
	}
}

func hasPsychFormatMarker(objs ...map[string]any) bool {
	for _, o := range objs {
		if f, ok := o["format"].(string); ok && strings.Contains(strings.ToLower(f), "psych") {
			return true
		}
	}
	return false
}

func firstLayout(root map[string]any) model.Layout {
	for _, layout := range []model.Layout{model.LayoutSongNotes, model.LayoutSongSections, model.LayoutBare} {
		if _, _, ok := Container(root, layout); ok {
			return layout
		}
	}
	return ""
}

// validSections checks the section-list shape: objects with a sectionNotes
// array of array entries. Field values are left to the normalizer.
func validSections(sections []any) bool {
	for _, s := range sections {
		sec, ok := s.(map[string]any)
		if !ok {
			return false
		}
		notes, ok := sec["sectionNotes"].([]any)
		if !ok {
			return false
		}
		for _, n := range notes {
			if arr, ok := n.([]any); !ok || len(arr) < 2 {
				return false
			}
		}
	}
	return true
}

func describeMiss(root any) string {
	obj, ok := root.(map[string]any)
	if !ok {
		return "top-level value is not an object"
	}
	if song, ok := obj["song"]; ok {
		if _, isObj := song.(map[string]any); !isObj {
			return `"song" is not an object`
		}
		return `"song" has no well-formed "notes" or "sections" list`
	}
	if _, ok := obj["notes"]; ok {
		return `top-level "notes" is not a well-formed section list`
	}
	return `no "song" object or "notes" list`
}
