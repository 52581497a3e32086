package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/phobologic/chartmerge/internal/engine"
	"github.com/phobologic/chartmerge/internal/model"
	"github.com/phobologic/chartmerge/internal/report"
	"github.com/phobologic/chartmerge/internal/serialize"
	"github.com/phobologic/chartmerge/internal/split"
)

const splitDir = "Split"

func newSplitCmd(a *app) *cobra.Command {
	var parts int

	cmd := &cobra.Command{
		Use:   "split [flags] <chart.json>",
		Short: "Split a chart into consecutive parts",
		Long: `Split a chart's sections into N parts of equal section count, written to
Split/<name>_partK.json next to the chart. Parts keep absolute note times.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolving chart: %w", err)
			}
			if err := a.setup(cmd, filepath.Dir(path)); err != nil {
				return err
			}
			return a.runSplit(cmd, path, parts)
		},
	}
	cmd.Flags().IntVarP(&parts, "parts", "n", 2, "number of parts")
	return cmd
}

func (a *app) runSplit(cmd *cobra.Command, path string, parts int) error {
	if parts < 1 {
		return fmt.Errorf("--parts must be at least 1")
	}
	m, err := a.load(cmd, path)
	if err != nil {
		return err
	}

	chunks, err := split.Split(&m.CanonicalChart, parts)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	stem := chartStem(path)
	outputs := make([]string, len(chunks))
	for i := range chunks {
		outputs[i] = filepath.Join(filepath.Dir(path), splitDir, fmt.Sprintf("%s_part%d.json", stem, i+1))
	}
	results := a.writeCharts(m, path, chunks, outputs)
	if err := a.finish(results); err != nil {
		return err
	}
	for i, r := range results {
		if r.Err != nil {
			continue
		}
		_, _ = fmt.Fprintf(a.stdout, "Part %d: %d notes, %s %s\n", i+1, r.Merged.NoteCount(), a.writeVerb(), outputs[i])
	}
	return failed(results)
}

// load merges the single chart at path, reporting it when unreadable.
func (a *app) load(cmd *cobra.Command, path string) (*model.MergedChart, error) {
	m, rep, err := a.eng.MergeFiles(cmd.Context(), []string{path})
	if err != nil {
		_ = a.finish([]engine.JobResult{{Job: engine.Job{Name: path}, Report: rep, Err: err}})
		return nil, err
	}
	return m, nil
}

// writeCharts serializes charts derived from the chart at path, one per
// output. Lossy output is still written; its losses are in the report.
func (a *app) writeCharts(m *model.MergedChart, path string, charts []*model.CanonicalChart, outputs []string) []engine.JobResult {
	results := make([]engine.JobResult, len(charts))
	for i, c := range charts {
		job := a.job(strings.TrimSuffix(filepath.Base(outputs[i]), filepath.Ext(outputs[i])), []string{path}, outputs[i])
		res := engine.JobResult{Job: job, Report: report.Report{}}

		ser, err := serialize.Chart(c, job.Format, job.Options)
		var ue *serialize.UnsupportedFormatError
		if err != nil && !(errors.As(err, &ue) && ser != nil) {
			res.Err = err
			results[i] = res
			continue
		}
		res.Output = ser
		res.Report = ser.Report
		res.Merged = partChart(m, c)
		if job.Output != "" {
			res.Err = engine.WriteFile(job.Output, ser.Data)
		}
		results[i] = res
	}
	return results
}

func (a *app) writeVerb() string {
	if a.dryRun {
		return "would write"
	}
	return "wrote"
}

func chartStem(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func partChart(m *model.MergedChart, c *model.CanonicalChart) *model.MergedChart {
	return &model.MergedChart{CanonicalChart: *c, Sources: m.Sources}
}
