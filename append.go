package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/phobologic/chartmerge/internal/fill"
	"github.com/phobologic/chartmerge/internal/model"
)

const appendDir = "Append"

func newAppendCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "append [flags] <chart.json>",
		Short: "Fill a chart's empty sections with its own notes",
		Long: `Copy every note of a chart into each of its empty sections, shifted to start
where the section starts. Written to Append/<name>_appended.json next to the
chart.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolving chart: %w", err)
			}
			if err := a.setup(cmd, filepath.Dir(path)); err != nil {
				return err
			}
			return a.runAppend(cmd, path)
		},
	}
}

func (a *app) runAppend(cmd *cobra.Command, path string) error {
	m, err := a.load(cmd, path)
	if err != nil {
		return err
	}

	c, filled := fill.Fill(&m.CanonicalChart)
	out := filepath.Join(filepath.Dir(path), appendDir, chartStem(path)+"_appended.json")
	results := a.writeCharts(m, path, []*model.CanonicalChart{c}, []string{out})
	if err := a.finish(results); err != nil {
		return err
	}
	if err := failed(results); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(a.stdout, "Sections filled: %d, %d notes, %s %s\n", filled, c.NoteCount(), a.writeVerb(), out)
	return nil
}
