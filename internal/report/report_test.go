package report

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/phobologic/chartmerge/internal/model"
)

func sample() Report {
	var c Collector
	c.Addf(model.UnreadableSource, 0, "a.json", "source skipped", "unrecognized chart format")
	c.Addf(model.DuplicateNote, 1500, "b.json", "kept a.json", "lane %d", 2)
	c.Addf(model.UnreadableSource, 0, "c.json", "source skipped", "invalid JSON")
	return c.Records()
}

func TestCollectorPreservesOrder(t *testing.T) {
	t.Parallel()

	r := sample()
	assert.Len(t, r, 3)
	assert.Equal(t, "a.json", r[0].Source)
	assert.Equal(t, "lane 2", r[1].Detail)
	assert.Equal(t, "c.json", r[2].Source)
}

func TestCollectorRecordsIsCopy(t *testing.T) {
	t.Parallel()

	var c Collector
	c.Addf(model.AmbiguousBpm, 0, "", "kept 150", "bpm differs")
	r := c.Records()
	r[0].Detail = "changed"
	assert.Equal(t, "bpm differs", c.Records()[0].Detail)
}

func TestFilter(t *testing.T) {
	t.Parallel()

	r := sample()
	unreadable := r.Filter(model.UnreadableSource)
	assert.Len(t, unreadable, 2)
	assert.Equal(t, "c.json", unreadable[1].Source)

	assert.Empty(t, r.Filter(model.OverlappingSection))
	assert.Len(t, r.Filter(), 3)
	assert.Len(t, r.Filter(model.DuplicateNote, model.UnreadableSource), 3)
}

func TestCounts(t *testing.T) {
	t.Parallel()

	r := sample()
	assert.True(t, r.Has(model.DuplicateNote))
	assert.False(t, r.Has(model.AmbiguousBpm))
	assert.Equal(t, []KindCount{
		{Kind: model.UnreadableSource, Count: 2},
		{Kind: model.DuplicateNote, Count: 1},
	}, r.Counts())
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	m := &model.MergedChart{
		CanonicalChart: model.CanonicalChart{
			Format:   model.FormatV2Psych,
			Sections: []model.Section{{Notes: []model.Note{{}, {}}}, {Notes: []model.Note{{}}}},
			Events:   []model.Event{{Name: "Hey!"}},
		},
		Sources: []model.SourceInfo{{Path: "b.json", Format: model.FormatV1}},
	}
	s := Summarize(m, sample(), "", model.MergePolicy{}, "Merged/merged.json")
	assert.Equal(t, model.FormatV2Psych, s.Format)
	assert.Equal(t, "keepFirst/truncateEarlier", s.Policy)
	assert.Equal(t, 2, s.Sections)
	assert.Equal(t, 3, s.Notes)
	assert.Equal(t, 1, s.Events)
	assert.Len(t, s.Sources, 1)
	assert.Len(t, s.Conflicts, 3)
	assert.Len(t, s.Counts, 2)

	empty := Summarize(nil, nil, model.FormatV1, model.MergePolicy{}, "")
	assert.NotNil(t, empty.Conflicts)
	assert.Zero(t, empty.Notes)
}
