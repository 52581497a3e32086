package report

import (
	"github.com/phobologic/chartmerge/internal/model"
)

// Summary describes one finished merge for display.
type Summary struct {
	Output    string             `json:"output,omitempty" yaml:"output,omitempty"`
	Format    model.Format       `json:"format" yaml:"format"`
	Policy    string             `json:"policy" yaml:"policy"`
	Sources   []model.SourceInfo `json:"sources" yaml:"sources"`
	Sections  int                `json:"sections" yaml:"sections"`
	Notes     int                `json:"notes" yaml:"notes"`
	Events    int                `json:"events" yaml:"events"`
	Counts    []KindCount        `json:"counts" yaml:"counts"`
	Conflicts Report             `json:"conflicts" yaml:"conflicts"`
}

// Summarize builds a Summary. m may be nil when nothing could be merged;
// rep is the full report, including serializer losses.
func Summarize(m *model.MergedChart, rep Report, format model.Format, policy model.MergePolicy, output string) *Summary {
	s := &Summary{
		Output:    output,
		Format:    format,
		Policy:    policy.WithDefaults().String(),
		Counts:    rep.Counts(),
		Conflicts: rep,
	}
	if s.Conflicts == nil {
		s.Conflicts = Report{}
	}
	if m != nil {
		s.Sources = append(s.Sources, m.Sources...)
		s.Sections = len(m.Sections)
		s.Notes = m.NoteCount()
		s.Events = len(m.Events)
		if s.Format == "" {
			s.Format = m.Format
		}
	}
	return s
}
