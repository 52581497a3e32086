package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/phobologic/chartmerge/internal/model"
	"github.com/phobologic/chartmerge/internal/multiply"
	"github.com/phobologic/chartmerge/internal/split"
)

const multipliedDir = "Multiplied"

func newMultiplyCmd(a *app) *cobra.Command {
	var factor, splits int

	cmd := &cobra.Command{
		Use:   "multiply [flags] <chart.json>",
		Short: "Repeat every section of a chart",
		Long: `Play each section of a chart N times in a row, shifting later sections so
nothing overlaps. Written to Multiplied/<name>_xN.json next to the chart, or
split into parts <name>_xN_partK.json with --splits.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolving chart: %w", err)
			}
			if err := a.setup(cmd, filepath.Dir(path)); err != nil {
				return err
			}
			return a.runMultiply(cmd, path, factor, splits)
		},
	}
	cmd.Flags().IntVarP(&factor, "times", "x", 2, "number of times each section plays")
	cmd.Flags().IntVarP(&splits, "splits", "n", 1, "number of output parts")
	return cmd
}

func (a *app) runMultiply(cmd *cobra.Command, path string, factor, splits int) error {
	if factor < 1 {
		return fmt.Errorf("--times must be at least 1")
	}
	if splits < 1 {
		return fmt.Errorf("--splits must be at least 1")
	}
	m, err := a.load(cmd, path)
	if err != nil {
		return err
	}

	c, err := multiply.Multiply(&m.CanonicalChart, factor)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	charts := []*model.CanonicalChart{c}
	if splits > 1 {
		if charts, err = split.Split(c, splits); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}

	base := filepath.Join(filepath.Dir(path), multipliedDir, fmt.Sprintf("%s_x%d", chartStem(path), factor))
	outputs := make([]string, len(charts))
	for i := range charts {
		outputs[i] = base + ".json"
		if splits > 1 {
			outputs[i] = fmt.Sprintf("%s_part%d.json", base, i+1)
		}
	}

	results := a.writeCharts(m, path, charts, outputs)
	if err := a.finish(results); err != nil {
		return err
	}
	for i, r := range results {
		if r.Err != nil {
			continue
		}
		_, _ = fmt.Fprintf(a.stdout, "x%d: %d sections, %d notes, %s %s\n", factor, len(charts[i].Sections), r.Merged.NoteCount(), a.writeVerb(), outputs[i])
	}
	return failed(results)
}
