package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/phobologic/chartmerge/internal/discover"
	"github.com/phobologic/chartmerge/internal/engine"
)

var errNoSongs = errors.New("no song folders with charts found")

func newBatchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch [flags] <root>",
		Short: "Merge the charts of every song folder under root",
		Long: `Walk root and merge the charts found in each folder into that folder's
Merged/merged.json. Folders are merged in parallel and reported in path order.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) > 0 {
				root = args[0]
			}
			root, err := filepath.Abs(root)
			if err != nil {
				return fmt.Errorf("resolving root: %w", err)
			}
			if err := a.setup(cmd, root); err != nil {
				return err
			}
			return a.runBatch(cmd, root)
		},
	}
	cmd.Flags().IntP("workers", "j", 0, "parallel merges (default: GOMAXPROCS)")
	cmd.Flags().BoolVar(&a.fresh, "skip-fresh", false, "skip folders whose output is newer than every input")
	bind(a.v, cmd.Flags(), map[string]string{"workers": "workers"})
	return cmd
}

func (a *app) runBatch(cmd *cobra.Command, root string) error {
	dirs, err := discover.SongDirs(root, discover.Options{Ignore: a.cfg.Ignore})
	if err != nil {
		return fmt.Errorf("discovering charts: %w", err)
	}

	var jobs []engine.Job
	for _, d := range dirs {
		paths := make([]string, len(d.Files))
		for i, f := range d.Files {
			paths[i] = filepath.Join(root, f.Path)
		}
		output := filepath.Join(root, d.Path, mergedDir, mergedName)
		if a.fresh && !a.dryRun && outputIsFresh(output, paths) {
			_, _ = fmt.Fprintf(a.stdout, "Up to date: %s\n", output)
			continue
		}
		jobs = append(jobs, a.job(d.Path, paths, output))
	}
	if len(jobs) == 0 {
		if len(dirs) > 0 {
			return nil
		}
		return errNoSongs
	}

	results := a.eng.Batch(cmd.Context(), jobs, a.cfg.Workers)
	if err := a.finish(results); err != nil {
		return err
	}

	merged := 0
	for _, r := range results {
		if r.Err == nil {
			merged++
		}
	}
	verb := "Merged"
	if a.dryRun {
		verb = "Dry run: would merge"
	}
	_, _ = fmt.Fprintf(a.stdout, "%s %d of %d song folders\n", verb, merged, len(results))
	return failed(results)
}

func failed(results []engine.JobResult) error {
	var n int
	var first error
	for _, r := range results {
		if r.Err != nil {
			n++
			if first == nil {
				first = fmt.Errorf("%s: %w", r.Job.Name, r.Err)
			}
		}
	}
	switch n {
	case 0:
		return nil
	case 1:
		return first
	default:
		return fmt.Errorf("%d of %d song folders failed; first: %w", n, len(results), first)
	}
}
