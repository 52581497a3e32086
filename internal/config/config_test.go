package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/chartmerge/internal/model"
)

func TestDefaults(t *testing.T) {
	t.Parallel()

	c, err := FromViper(New())
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
	assert.Equal(t, model.FormatUnknown, c.OutputFormat())
}

func TestLoadFromDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	body := `policy:
  on_duplicate_note: keep-last
  on_overlapping_section: interleave
output:
  format: v1
  indent: true
report:
  format: YAML
ignore:
  - "*-old.json"
workers: 3
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0o644))

	v := New()
	used, err := Load(v, "", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, FileName), used)

	c, err := FromViper(v)
	require.NoError(t, err)
	assert.Equal(t, model.KeepLast, c.Policy.OnDuplicateNote)
	assert.Equal(t, model.Interleave, c.Policy.OnOverlappingSection)
	assert.Equal(t, model.FormatV1, c.OutputFormat())
	assert.True(t, c.Output.Indent)
	assert.Equal(t, "yaml", c.Report.Format)
	assert.Equal(t, []string{"*-old.json"}, c.Ignore)
	assert.Equal(t, 3, c.Workers)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	used, err := Load(New(), "", t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, used)

	_, err = Load(New(), filepath.Join(t.TempDir(), "nope.yaml"), "")
	assert.Error(t, err, "an explicit path must exist")
}

func TestFromViperRejectsBadValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		key, value string
	}{
		{"policy.on_duplicate_note", "keepMiddle"},
		{"policy.on_overlapping_section", "merge"},
		{"output.format", "osu"},
		{"report.format", "html"},
		{"report.only", "notes"},
	}
	for _, tt := range tests {
		v := New()
		v.Set(tt.key, tt.value)
		_, err := FromViper(v)
		assert.ErrorContains(t, err, tt.key)
	}
}

func TestReportOnly(t *testing.T) {
	t.Parallel()

	v := New()
	v.Set("report.only", []string{"duplicateNote", "unreadable_source", "duplicate-note"})
	c, err := FromViper(v)
	require.NoError(t, err)
	assert.Equal(t, []model.ConflictKind{model.DuplicateNote, model.UnreadableSource}, c.Report.Only)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("CHARTMERGE_POLICY_ON_DUPLICATE_NOTE", "keepBoth")
	t.Setenv("CHARTMERGE_MAX_FILE_SIZE", "1024")

	c, err := FromViper(New())
	require.NoError(t, err)
	assert.Equal(t, model.KeepBoth, c.Policy.OnDuplicateNote)
	assert.Equal(t, int64(1024), c.MaxFileSize)
}

func TestDefaultYAMLLoadsBack(t *testing.T) {
	t.Parallel()

	body, err := DefaultYAML()
	require.NoError(t, err)
	assert.Contains(t, body, "on_duplicate_note: keepFirst")

	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	v := New()
	_, err = Load(v, path, "")
	require.NoError(t, err)
	c, err := FromViper(v)
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}
