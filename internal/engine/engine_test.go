package engine

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/phobologic/chartmerge/internal/model"
	"github.com/phobologic/chartmerge/internal/serialize"
)

const chartA = `{"song": {"song": "Tutorial", "bpm": 120, "speed": 1, "notes": [
  {"sectionNotes": [[0, 0, 0], [500, 1, 0]], "lengthInSteps": 16, "mustHitSection": false},
  {"sectionNotes": [[2000, 2, 0]], "lengthInSteps": 16, "mustHitSection": true}
]}}`

const chartB = `{"song": {"song": "Tutorial", "bpm": 120, "speed": 1, "notes": [
  {"sectionNotes": [[250, 4, 0], [500, 1, 0]], "lengthInSteps": 16, "mustHitSection": false},
  {"sectionNotes": [[3000, 7, 100]], "lengthInSteps": 16, "mustHitSection": false}
]}}`

const chartC = `{"song": {"bpm": 120, "speed": 1.4, "stage": "mall",
  "events": [[1000, [["Hey!", "BF", "0.6"]]]],
  "notes": [{"sectionNotes": [[1500, 3, 0]], "sectionBeats": 4, "mustHitSection": false}]}}`

func writeTestFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestMergeSkipsUnrecognizedSource(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	paths := []string{
		writeTestFile(t, dir, "a.json", chartA),
		writeTestFile(t, dir, "meta.json", `{"title": "not a chart", "notes": 3}`),
		writeTestFile(t, dir, "b.json", chartB),
	}

	m, rep, err := Merge(paths, model.MergePolicy{})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	unreadable := rep.Filter(model.UnreadableSource)
	if len(unreadable) != 1 {
		t.Fatalf("got %d UnreadableSource records, want 1: %+v", len(unreadable), unreadable)
	}
	if unreadable[0].Source != paths[1] {
		t.Errorf("record source = %q, want %q", unreadable[0].Source, paths[1])
	}
	if !strings.Contains(unreadable[0].Detail, "unrecognized chart format") {
		t.Errorf("detail = %q", unreadable[0].Detail)
	}
	if len(m.Sources) != 2 {
		t.Errorf("got %d sources, want 2", len(m.Sources))
	}
	if len(rep) != len(m.Conflicts) {
		t.Errorf("report has %d records, merged chart %d", len(rep), len(m.Conflicts))
	}
	// (500, lane 1) is in both charts.
	if !rep.Has(model.DuplicateNote) {
		t.Error("expected a DuplicateNote record")
	}
}

func TestMergeIsDeterministic(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	paths := []string{
		writeTestFile(t, dir, "a.json", chartA),
		writeTestFile(t, dir, "b.json", chartB),
		writeTestFile(t, dir, "c.json", chartC),
	}

	render := func() ([]byte, int) {
		m, rep, err := Merge(paths, model.MergePolicy{})
		if err != nil {
			t.Fatalf("Merge: %v", err)
		}
		res, err := serialize.Merged(m, model.FormatV2Psych, serialize.Options{})
		if err != nil {
			t.Fatalf("serialize: %v", err)
		}
		return res.Data, len(rep)
	}

	first, n1 := render()
	second, n2 := render()
	if !bytes.Equal(first, second) {
		t.Errorf("outputs differ:\n%s\n%s", first, second)
	}
	if n1 != n2 {
		t.Errorf("report sizes differ: %d vs %d", n1, n2)
	}
}

func TestMergeNoMergeableSources(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	paths := []string{
		writeTestFile(t, dir, "broken.json", "{\n  \"song\": {\n    \"bpm\": 150 \"speed\": 1\n  }\n}\n"),
		filepath.Join(dir, "missing.json"),
	}

	m, rep, err := Merge(paths, model.MergePolicy{})
	if !errors.Is(err, ErrNoMergeableSources) {
		t.Fatalf("err = %v, want ErrNoMergeableSources", err)
	}
	if m != nil {
		t.Error("expected nil merged chart")
	}
	if rep.Count(model.UnreadableSource) != 2 {
		t.Fatalf("got %+v, want two UnreadableSource records", rep)
	}
	if !strings.HasPrefix(rep[0].Detail, "invalid JSON") {
		t.Errorf("detail = %q", rep[0].Detail)
	}
}

func TestMergeInvalidTimeValue(t *testing.T) {
	t.Parallel()

	e := &Engine{}
	_, rep, err := e.MergeSources([]Source{
		{Path: "bad.json", Data: []byte(`{"song":{"bpm":120,"events":[],"notes":[{"sectionNotes":[["abc",1,0]]}]}}`)},
		{Path: "a.json", Data: []byte(chartA)},
	})
	if err != nil {
		t.Fatalf("MergeSources: %v", err)
	}
	recs := rep.Filter(model.UnreadableSource)
	if len(recs) != 1 || recs[0].Source != "bad.json" {
		t.Fatalf("got %+v", recs)
	}
	if !strings.HasPrefix(recs[0].Detail, "invalid_time_value: notes[0].sectionNotes[0]") {
		t.Errorf("detail = %q", recs[0].Detail)
	}
}

func TestMergeRejectsUnknownPolicy(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeTestFile(t, dir, "a.json", chartA)

	if _, _, err := Merge([]string{path}, model.MergePolicy{OnOverlappingSection: "sideways"}); err == nil {
		t.Error("expected an error for an unknown policy")
	}
}

func TestMergeNormalizationError(t *testing.T) {
	t.Parallel()

	e := &Engine{}
	_, rep, err := e.MergeSources([]Source{
		{Path: "nobpm.json", Data: []byte(`{"song": {"notes": [{"sectionNotes": [[0, 1, 0]]}]}}`)},
		{Path: "a.json", Data: []byte(chartA)},
	})
	if err != nil {
		t.Fatalf("MergeSources: %v", err)
	}
	recs := rep.Filter(model.UnreadableSource)
	if len(recs) != 1 || recs[0].Source != "nobpm.json" {
		t.Fatalf("got %+v", recs)
	}
	if !strings.Contains(recs[0].Detail, "bpm") {
		t.Errorf("detail = %q", recs[0].Detail)
	}
}

func TestMergeFileSizeLimit(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	big := writeTestFile(t, dir, "big.json", chartA)
	small := writeTestFile(t, dir, "small.json", `{"notes": [{"sectionNotes": []}], "bpm": 100}`)

	e := &Engine{MaxFileSize: 64}
	_, rep, err := e.MergeFiles(context.Background(), []string{big, small})
	if err != nil {
		t.Fatalf("MergeFiles: %v", err)
	}
	recs := rep.Filter(model.UnreadableSource)
	if len(recs) != 1 || recs[0].Source != big {
		t.Fatalf("got %+v", recs)
	}
	if !strings.Contains(recs[0].Detail, "limit") {
		t.Errorf("detail = %q", recs[0].Detail)
	}
}

func TestMergeCanceled(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := &Engine{}
	_, _, err := e.MergeFiles(ctx, []string{writeTestFile(t, dir, "a.json", chartA)})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestWriteFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "Merged", "merged.json")

	if err := WriteFile(path, []byte("one")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := WriteFile(path, []byte("two")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "two" {
		t.Errorf("content = %q, want %q", data, "two")
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("temporary files left behind: %v", entries)
	}
}

func TestWriteFileCleansUpOnError(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	// The target is a directory, so the final rename fails.
	target := filepath.Join(dir, "out")
	if err := os.MkdirAll(filepath.Join(target, "child"), 0o755); err != nil {
		t.Fatal(err)
	}

	if err := WriteFile(target, []byte("x")); err == nil {
		t.Fatal("expected an error")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("temporary files left behind: %v", entries)
	}
}

func TestRunWritesLossyOutput(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	out := filepath.Join(dir, "Merged", "merged.json")

	// 2.3 beats is 9.2 steps, which V1 must round.
	odd := `{"song": {"bpm": 120, "events": [], "notes": [{"sectionNotes": [[0, 1, 0]], "sectionBeats": 2.3}]}}`

	e := &Engine{}
	res := e.Run(context.Background(), Job{
		Name:   "song",
		Paths:  []string{writeTestFile(t, dir, "odd.json", odd)},
		Output: out,
		Format: model.FormatV1,
	})
	if res.Err != nil {
		t.Fatalf("Run: %v", res.Err)
	}
	if res.Output == nil || res.Output.Format != model.FormatV1 {
		t.Fatalf("output = %+v", res.Output)
	}
	if res.Report.Count(model.UnreadableSource) != 1 {
		t.Errorf("expected the rounded section to be recorded, got %+v", res.Report)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("output not written: %v", err)
	}
}

func TestBatch(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	jobs := []Job{
		{Name: "one", Paths: []string{writeTestFile(t, dir, "one/a.json", chartA), writeTestFile(t, dir, "one/b.json", chartB)}, Output: filepath.Join(dir, "one", "Merged", "merged.json")},
		{Name: "bad", Paths: []string{writeTestFile(t, dir, "bad/x.json", `[]`)}, Output: filepath.Join(dir, "bad", "Merged", "merged.json")},
		{Name: "two", Paths: []string{writeTestFile(t, dir, "two/c.json", chartC)}},
	}

	e := &Engine{}
	results := e.Batch(context.Background(), jobs, 2)
	if len(results) != len(jobs) {
		t.Fatalf("got %d results, want %d", len(results), len(jobs))
	}
	for i, r := range results {
		if r.Job.Name != jobs[i].Name {
			t.Errorf("result %d is for %q, want %q", i, r.Job.Name, jobs[i].Name)
		}
	}

	if results[0].Err != nil {
		t.Errorf("job one: %v", results[0].Err)
	}
	if _, err := os.Stat(jobs[0].Output); err != nil {
		t.Errorf("job one output: %v", err)
	}
	if !errors.Is(results[1].Err, ErrNoMergeableSources) {
		t.Errorf("job bad: err = %v", results[1].Err)
	}
	if _, err := os.Stat(jobs[1].Output); !os.IsNotExist(err) {
		t.Errorf("job bad should not write output, stat err = %v", err)
	}
	if results[2].Err != nil || results[2].Output == nil {
		t.Errorf("job two: %+v", results[2])
	}
	if results[2].Output.Format != model.FormatV2Psych {
		t.Errorf("job two format = %s, want merged chart's own", results[2].Output.Format)
	}
}

func TestBatchEmpty(t *testing.T) {
	t.Parallel()

	e := &Engine{}
	if got := e.Batch(context.Background(), nil, 4); got != nil {
		t.Errorf("got %v, want nil", got)
	}
}
