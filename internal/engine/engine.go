// Package engine runs the chart pipeline: it loads source files, detects and
// normalizes them, merges the results and writes the serialized chart.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/phobologic/chartmerge/internal/detect"
	"github.com/phobologic/chartmerge/internal/merge"
	"github.com/phobologic/chartmerge/internal/model"
	"github.com/phobologic/chartmerge/internal/normalize"
	"github.com/phobologic/chartmerge/internal/report"
	"github.com/phobologic/chartmerge/internal/serialize"
	"github.com/phobologic/chartmerge/internal/syntax"
)

// DefaultMaxFileSize is the largest chart file read by default.
const DefaultMaxFileSize = 16 << 20

// ErrNoMergeableSources is returned when every source was skipped.
var ErrNoMergeableSources = errors.New("no mergeable sources")

// Source is one chart input held in memory.
type Source struct {
	Path string
	Data []byte
}

// Engine holds the settings shared by every merge it runs. The zero value
// merges with the default policy, no size limit and logging discarded.
type Engine struct {
	Policy      model.MergePolicy
	MaxFileSize int64 // bytes; 0 means no limit
	Logger      *slog.Logger
}

// Merge merges the chart files at paths, in order, under policy.
func Merge(paths []string, policy model.MergePolicy) (*model.MergedChart, report.Report, error) {
	e := &Engine{Policy: policy, MaxFileSize: DefaultMaxFileSize}
	return e.MergeFiles(context.Background(), paths)
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MergeFiles reads and merges paths. Unreadable files are recorded and
// skipped; the returned report always holds every record, even on error.
func (e *Engine) MergeFiles(ctx context.Context, paths []string) (*model.MergedChart, report.Report, error) {
	log := e.logger().With("job", uuid.NewString())
	var rep report.Collector

	var charts []*model.CanonicalChart
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, rep.Records(), err
		}
		data, err := readSource(p, e.MaxFileSize)
		if err != nil {
			e.skip(log, &rep, p, err.Error())
			continue
		}
		if c := e.load(log, &rep, Source{Path: p, Data: data}); c != nil {
			charts = append(charts, c)
		}
	}
	return e.merge(log, &rep, charts, len(paths))
}

// MergeSources merges charts already in memory.
func (e *Engine) MergeSources(sources []Source) (*model.MergedChart, report.Report, error) {
	log := e.logger().With("job", uuid.NewString())
	var rep report.Collector

	var charts []*model.CanonicalChart
	for _, src := range sources {
		if c := e.load(log, &rep, src); c != nil {
			charts = append(charts, c)
		}
	}
	return e.merge(log, &rep, charts, len(sources))
}

func (e *Engine) load(log *slog.Logger, rep *report.Collector, src Source) *model.CanonicalChart {
	c, reason := load(src)
	if c == nil {
		e.skip(log, rep, src.Path, reason)
		return nil
	}
	log.Debug("loaded chart", "path", src.Path, "format", c.Format,
		"sections", len(c.Sections), "notes", c.NoteCount(), "events", len(c.Events))
	return c
}

func (e *Engine) merge(log *slog.Logger, rep *report.Collector, charts []*model.CanonicalChart, total int) (*model.MergedChart, report.Report, error) {
	if len(charts) == 0 {
		return nil, rep.Records(), fmt.Errorf("%w: all %d sources skipped", ErrNoMergeableSources, total)
	}

	m, err := merge.Charts(charts, e.Policy, rep)
	if err != nil {
		return nil, rep.Records(), err
	}
	log.Info("merged charts", "sources", len(charts), "skipped", total-len(charts),
		"policy", e.Policy.WithDefaults().String(), "notes", m.NoteCount(), "conflicts", len(m.Conflicts))
	return m, report.Report(m.Conflicts), nil
}

func (e *Engine) skip(log *slog.Logger, rep *report.Collector, path, reason string) {
	log.Warn("skipping source", "path", path, "reason", reason)
	rep.Add(model.ConflictRecord{
		Kind:       model.UnreadableSource,
		Source:     path,
		Detail:     reason,
		Resolution: "source skipped",
	})
}

// load decodes, detects and normalizes one source. A nil chart comes with
// the reason it was skipped.
func load(src Source) (*model.CanonicalChart, string) {
	var root any
	if err := json.Unmarshal(src.Data, &root); err != nil {
		return nil, syntax.Explain(src.Data, err)
	}
	doc, err := detect.Document(src.Path, root)
	if err != nil {
		var df *detect.DetectionFailure
		if errors.As(err, &df) {
			return nil, "unrecognized chart format: " + df.Reason
		}
		return nil, err.Error()
	}
	c, err := normalize.Chart(doc)
	if err != nil {
		var ne *normalize.NormalizationError
		if errors.As(err, &ne) {
			ne.Source = ""
			return nil, ne.Error()
		}
		return nil, err.Error()
	}
	return c, ""
}

func readSource(path string, maxSize int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if maxSize <= 0 {
		return io.ReadAll(f)
	}
	if fi, err := f.Stat(); err == nil && fi.Size() > maxSize {
		return nil, fmt.Errorf("%d bytes exceeds the %d byte limit", fi.Size(), maxSize)
	}
	data, err := io.ReadAll(io.LimitReader(f, maxSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxSize {
		return nil, fmt.Errorf("file exceeds the %d byte limit", maxSize)
	}
	return data, nil
}

// WriteFile writes data to path through a temporary file in the same
// directory, so readers never observe a partial chart.
func WriteFile(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err = tmp.Chmod(0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// Job is one merge-and-write unit.
type Job struct {
	Name    string
	Paths   []string
	Output  string // empty means render without writing
	Format  model.Format
	Options serialize.Options
}

// JobResult is the outcome of a Job. Report holds the merge records followed
// by any serializer losses. Err is nil for lossy but written output.
type JobResult struct {
	Job    Job
	Merged *model.MergedChart
	Output *serialize.Result
	Report report.Report
	Err    error
}

// Run merges, renders and optionally writes one job.
func (e *Engine) Run(ctx context.Context, job Job) JobResult {
	res := JobResult{Job: job}
	m, rep, err := e.MergeFiles(ctx, job.Paths)
	res.Merged, res.Report = m, rep
	if err != nil {
		res.Err = err
		return res
	}

	out, err := serialize.Merged(m, job.Format, job.Options)
	var ue *serialize.UnsupportedFormatError
	switch {
	case err == nil:
	case errors.As(err, &ue) && out != nil:
		e.logger().Warn("lossy output", "job", job.Name, "format", out.Format, "losses", ue.Losses, "omitted", ue.Omitted)
	default:
		res.Err = err
		return res
	}
	res.Output = out
	res.Report = out.Report

	if job.Output != "" {
		if err := WriteFile(job.Output, out.Data); err != nil {
			res.Err = err
		}
	}
	return res
}
