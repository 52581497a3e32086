// chartmerge merges rhythm-game chart files and reports every conflict.
package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/phobologic/chartmerge/internal/config"
	"github.com/phobologic/chartmerge/internal/discover"
	"github.com/phobologic/chartmerge/internal/engine"
	"github.com/phobologic/chartmerge/internal/logutil"
	"github.com/phobologic/chartmerge/internal/model"
	"github.com/phobologic/chartmerge/internal/report"
	"github.com/phobologic/chartmerge/internal/serialize"
)

var version = "dev"

const (
	mergedDir  = "Merged"
	mergedName = "merged.json"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	cmd := newRootCmd(&app{v: config.New(), stdout: stdout, stderr: stderr})
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	return cmd.ExecuteContext(context.Background())
}

// app holds per-invocation state so run can be called concurrently.
type app struct {
	v      *viper.Viper
	stdout io.Writer
	stderr io.Writer

	cfg    config.Config
	log    *slog.Logger
	eng    *engine.Engine
	dryRun bool
	fresh  bool
}

func newRootCmd(a *app) *cobra.Command {
	var showVersion bool

	cmd := &cobra.Command{
		Use:   "chartmerge [flags] <dir | chart.json...>",
		Short: "Merge rhythm-game charts into one, reporting every conflict",
		Long: `Merge Friday Night Funkin' charts (base-game or Psych Engine JSON) into one
chart. A single directory argument merges every chart file in it, in sorted
path order; otherwise files merge in argument order. The merged chart is
written to <dir of first chart>/Merged/merged.json unless -o is given.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				_, _ = fmt.Fprintf(a.stdout, "chartmerge %s\n", version)
				return nil
			}
			return a.runMerge(cmd, args)
		},
	}

	pf := cmd.PersistentFlags()
	pf.String("config", "", "config file (default: "+config.FileName+" in the chart folder)")
	pf.String("on-duplicate", "", "duplicate note policy: keepFirst|keepLast|keepBoth")
	pf.String("on-overlap", "", "overlapping section policy: error|truncateEarlier|interleave")
	pf.StringP("format", "f", "", "output chart format: auto|v1|psych")
	pf.String("report", "", "report format: "+strings.Join(config.ReportFormats, "|"))
	pf.String("report-file", "", "write the report to this file instead of stdout")
	pf.StringSlice("only", nil, "report only these conflict kinds: "+kindNames())
	pf.Bool("indent", false, "indent the output JSON")
	pf.Int64("max-file-size", 0, "skip chart files larger than this many bytes")
	pf.Bool("dry-run", false, "merge and report without writing files")
	pf.String("log-level", "", "logging level: debug|info|warn|error")

	bind(a.v, pf, map[string]string{
		"policy.on_duplicate_note":      "on-duplicate",
		"policy.on_overlapping_section": "on-overlap",
		"output.format":                 "format",
		"output.indent":                 "indent",
		"report.format":                 "report",
		"report.path":                   "report-file",
		"report.only":                   "only",
		"max_file_size":                 "max-file-size",
		"logging.level":                 "log-level",
	})

	cmd.Flags().StringP("output", "o", "", "output file path")
	cmd.Flags().BoolVar(&a.fresh, "skip-fresh", false, "do nothing when the output is newer than every input")
	cmd.Flags().BoolVarP(&showVersion, "version", "V", false, "show version and exit")
	bind(a.v, cmd.Flags(), map[string]string{"output.path": "output"})

	cmd.AddCommand(newBatchCmd(a), newSplitCmd(a), newAppendCmd(a), newMultiplyCmd(a), newCompressCmd(a), newInitCmd(a))
	return cmd
}

func kindNames() string {
	names := make([]string, len(model.ConflictKinds))
	for i, k := range model.ConflictKinds {
		names[i] = string(k)
	}
	return strings.Join(names, ",")
}

func bind(v *viper.Viper, fs *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		_ = v.BindPFlag(key, fs.Lookup(name))
	}
}

// setup loads configuration for a run rooted at dir.
func (a *app) setup(cmd *cobra.Command, dir string) error {
	explicit, _ := cmd.Flags().GetString("config")
	used, err := config.Load(a.v, explicit, dir)
	if err != nil {
		return err
	}
	if a.cfg, err = config.FromViper(a.v); err != nil {
		return err
	}
	if a.log, err = logutil.LoggerFromReader(a.v, a.stderr); err != nil {
		return err
	}
	if used != "" {
		a.log.Debug("loaded config", "path", used)
	}
	a.dryRun, _ = cmd.Flags().GetBool("dry-run")
	a.eng = &engine.Engine{
		Policy:      a.cfg.Policy,
		MaxFileSize: a.cfg.MaxFileSize,
		Logger:      a.log,
	}
	return nil
}

func (a *app) runMerge(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		args = []string{"."}
	}
	paths, dir, err := resolveInputs(args)
	if err != nil {
		return err
	}
	if err := a.setup(cmd, dir); err != nil {
		return err
	}
	if len(paths) == 0 {
		paths, err = a.discoverDir(dir)
		if err != nil {
			return err
		}
	}

	output := a.cfg.Output.Path
	if output == "" {
		output = filepath.Join(filepath.Dir(paths[0]), mergedDir, mergedName)
	}

	if a.fresh && !a.dryRun && outputIsFresh(output, paths) {
		_, _ = fmt.Fprintf(a.stdout, "Up to date: %s\n", output)
		return nil
	}

	job := a.job(filepath.Base(dir), paths, output)
	res := a.eng.Run(cmd.Context(), job)
	if err := a.finish([]engine.JobResult{res}); err != nil {
		return err
	}
	if res.Err != nil {
		return res.Err
	}

	verb := "Merged"
	if a.dryRun {
		verb = "Dry run: would merge"
	}
	_, _ = fmt.Fprintf(a.stdout, "%s %d charts -> %d notes (%s)\n", verb, len(res.Merged.Sources), res.Merged.NoteCount(), output)
	return nil
}

func (a *app) job(name string, paths []string, output string) engine.Job {
	j := engine.Job{
		Name:    name,
		Paths:   paths,
		Output:  output,
		Format:  a.cfg.OutputFormat(),
		Options: serialize.Options{Indent: a.cfg.Output.Indent},
	}
	if a.dryRun {
		j.Output = ""
	}
	return j
}

// finish prints skip warnings to stderr and the report to stdout or the
// report file. It always runs before the completion line.
func (a *app) finish(results []engine.JobResult) error {
	summaries := make([]*report.Summary, len(results))
	for i, r := range results {
		for _, rec := range r.Report.Filter(model.UnreadableSource) {
			if rec.Resolution == "source skipped" {
				_, _ = fmt.Fprintf(a.stderr, "Warning: %s: %s\n", rec.Source, rec.Detail)
			}
		}
		format := r.Job.Format
		if r.Output != nil {
			format = r.Output.Format
		}
		output := r.Job.Output
		if r.Err != nil {
			output = ""
		}
		summaries[i] = report.Summarize(r.Merged, r.Report.Filter(a.cfg.Report.Only...), format, a.cfg.Policy, output)
	}

	if a.cfg.Report.Path == "" {
		return renderReports(a.stdout, a.cfg.Report.Format, summaries)
	}
	var buf bytes.Buffer
	if err := renderReports(&buf, a.cfg.Report.Format, summaries); err != nil {
		return err
	}
	if err := engine.WriteFile(a.cfg.Report.Path, buf.Bytes()); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

// resolveInputs returns explicit chart paths, or no paths and a directory to
// discover. dir is always the folder config is looked up in.
func resolveInputs(args []string) (paths []string, dir string, err error) {
	if len(args) == 1 {
		root, err := filepath.Abs(args[0])
		if err != nil {
			return nil, "", fmt.Errorf("resolving root: %w", err)
		}
		if info, err := os.Stat(root); err == nil && info.IsDir() {
			return nil, root, nil
		}
	}
	for _, arg := range args {
		if info, err := os.Stat(arg); err == nil && info.IsDir() {
			return nil, "", fmt.Errorf("%s: is a directory; pass one directory or chart files", arg)
		}
		paths = append(paths, arg)
	}
	return paths, filepath.Dir(paths[0]), nil
}

func (a *app) discoverDir(dir string) ([]string, error) {
	files, err := discover.Files(dir, discover.Options{Ignore: a.cfg.Ignore})
	if err != nil {
		return nil, fmt.Errorf("discovering charts: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no chart files found in %s", dir)
	}
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = filepath.Join(dir, f.Path)
	}
	return paths, nil
}

// outputIsFresh reports whether output exists and is newer than every input.
func outputIsFresh(output string, paths []string) bool {
	outInfo, err := os.Stat(output)
	if err != nil {
		return false
	}
	outMtime := outInfo.ModTime()

	for _, p := range paths {
		fi, err := os.Stat(p)
		if err != nil {
			return false
		}
		if !fi.ModTime().Before(outMtime) {
			return false
		}
	}
	return true
}
