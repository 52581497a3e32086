package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/phobologic/chartmerge/internal/model"
	"github.com/phobologic/chartmerge/internal/report"
	"github.com/phobologic/chartmerge/internal/toon"
)

var kindColors = map[model.ConflictKind]lipgloss.Color{
	model.UnreadableSource:   lipgloss.Color("9"),
	model.AmbiguousBpm:       lipgloss.Color("11"),
	model.OverlappingSection: lipgloss.Color("13"),
	model.DuplicateNote:      lipgloss.Color("14"),
}

// renderReports writes summaries in format. Structured formats emit a single
// document for a batch and a bare object for one summary.
func renderReports(w io.Writer, format string, summaries []*report.Summary) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if len(summaries) == 1 {
			return enc.Encode(summaries[0])
		}
		return enc.Encode(summaries)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		var err error
		if len(summaries) == 1 {
			err = enc.Encode(summaries[0])
		} else {
			err = enc.Encode(summaries)
		}
		if err != nil {
			return err
		}
		return enc.Close()
	case "toon":
		parts := make([]string, len(summaries))
		for i, s := range summaries {
			parts[i] = toon.Encode(s)
		}
		_, err := fmt.Fprintln(w, strings.Join(parts, "\n\n"))
		return err
	default:
		r := lipgloss.NewRenderer(w)
		for i, s := range summaries {
			if i > 0 {
				_, _ = fmt.Fprintln(w)
			}
			renderText(w, r, s)
		}
		return nil
	}
}

func renderText(w io.Writer, r *lipgloss.Renderer, s *report.Summary) {
	bold := r.NewStyle().Bold(true)
	faint := r.NewStyle().Faint(true)

	if s.Output != "" {
		_, _ = fmt.Fprintf(w, "%s %s\n", bold.Render("Output:"), s.Output)
	}
	_, _ = fmt.Fprintf(w, "%s %s, policy %s, %d sections, %d notes, %d events\n",
		bold.Render("Format:"), s.Format, s.Policy, s.Sections, s.Notes, s.Events)

	if len(s.Sources) > 0 {
		_, _ = fmt.Fprintln(w, bold.Render("Sources:"))
		for i, src := range s.Sources {
			_, _ = fmt.Fprintf(w, "  [%d] %s %s\n", i, src.Path, faint.Render("("+string(src.Format)+")"))
		}
	}

	if len(s.Conflicts) == 0 {
		_, _ = fmt.Fprintln(w, bold.Render("Conflicts:")+" none")
		return
	}

	counts := make([]string, len(s.Counts))
	for i, c := range s.Counts {
		counts[i] = fmt.Sprintf("%d %s", c.Count, c.Kind)
	}
	_, _ = fmt.Fprintf(w, "%s %d (%s)\n", bold.Render("Conflicts:"), len(s.Conflicts), strings.Join(counts, ", "))

	width := 0
	for _, k := range model.ConflictKinds {
		width = max(width, len(k))
	}
	for _, rec := range s.Conflicts {
		kind := r.NewStyle().Foreground(kindColors[rec.Kind]).Width(width).Render(string(rec.Kind))
		line := fmt.Sprintf("  %10s  %s  %s", formatMs(rec.TimeMs), kind, rec.Detail)
		if rec.Source != "" {
			line += faint.Render(" [" + rec.Source + "]")
		}
		_, _ = fmt.Fprintln(w, line)
		_, _ = fmt.Fprintf(w, "  %10s  %s -> %s\n", "", strings.Repeat(" ", width), rec.Resolution)
	}
}

func formatMs(ms float64) string {
	return strconv.FormatFloat(ms, 'f', -1, 64) + "ms"
}
