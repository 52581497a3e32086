package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/phobologic/chartmerge/internal/model"
)

const compressedDir = "Compressed"

func newCompressCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "compress [flags] <chart.json>",
		Short: "Rewrite a chart as compact JSON",
		Long: `Rewrite a chart without indentation or whitespace, keeping its structure.
Written to Compressed/<name>_compressed.json next to the chart.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolving chart: %w", err)
			}
			if err := a.setup(cmd, filepath.Dir(path)); err != nil {
				return err
			}
			a.cfg.Output.Indent = false
			return a.runCompress(cmd, path)
		},
	}
}

func (a *app) runCompress(cmd *cobra.Command, path string) error {
	m, err := a.load(cmd, path)
	if err != nil {
		return err
	}

	out := filepath.Join(filepath.Dir(path), compressedDir, chartStem(path)+"_compressed.json")
	results := a.writeCharts(m, path, []*model.CanonicalChart{&m.CanonicalChart}, []string{out})
	if err := a.finish(results); err != nil {
		return err
	}
	if err := failed(results); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(a.stdout, "Compressed %d notes, %s %s\n", m.NoteCount(), a.writeVerb(), out)
	return nil
}
