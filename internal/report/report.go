// Package report accumulates conflict records and answers queries over them.
package report

import (
	"fmt"

	"github.com/phobologic/chartmerge/internal/model"
)

// Report is an ordered sequence of conflict records.
type Report []model.ConflictRecord

// Filter returns the records whose kind is one of kinds, in order.
// With no kinds it returns a copy of the whole report.
func (r Report) Filter(kinds ...model.ConflictKind) Report {
	if len(kinds) == 0 {
		return append(Report(nil), r...)
	}
	want := make(map[model.ConflictKind]struct{}, len(kinds))
	for _, k := range kinds {
		want[k] = struct{}{}
	}
	var out Report
	for _, rec := range r {
		if _, ok := want[rec.Kind]; ok {
			out = append(out, rec)
		}
	}
	return out
}

// Count returns the number of records of the given kind.
func (r Report) Count(kind model.ConflictKind) int {
	n := 0
	for i := range r {
		if r[i].Kind == kind {
			n++
		}
	}
	return n
}

// Has reports whether any record has the given kind.
func (r Report) Has(kind model.ConflictKind) bool {
	return r.Count(kind) > 0
}

// KindCount pairs a kind with its number of records.
type KindCount struct {
	Kind  model.ConflictKind `json:"kind" yaml:"kind"`
	Count int                `json:"count" yaml:"count"`
}

// Counts returns per-kind totals in model.ConflictKinds order, omitting
// kinds with no records.
func (r Report) Counts() []KindCount {
	var out []KindCount
	for _, k := range model.ConflictKinds {
		if n := r.Count(k); n > 0 {
			out = append(out, KindCount{Kind: k, Count: n})
		}
	}
	return out
}

// Collector gathers records in the order they are produced.
// The zero value is ready to use.
type Collector struct {
	records Report
}

// Add appends a record.
func (c *Collector) Add(rec model.ConflictRecord) {
	c.records = append(c.records, rec)
}

// Addf appends a record with a formatted detail.
func (c *Collector) Addf(kind model.ConflictKind, timeMs float64, source, resolution, format string, args ...any) {
	c.Add(model.ConflictRecord{
		TimeMs:     timeMs,
		Kind:       kind,
		Source:     source,
		Detail:     fmt.Sprintf(format, args...),
		Resolution: resolution,
	})
}

// Records returns a copy of the collected records.
func (c *Collector) Records() Report {
	return append(Report(nil), c.records...)
}
