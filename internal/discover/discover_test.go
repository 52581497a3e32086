package discover

import (
	"os"
	"path/filepath"
	"testing"
)

func paths(entries []FileEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Path
	}
	return out
}

func TestDiscoverChartFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	writeFile(t, dir, "bopeebo-hard.json", "{}")
	writeFile(t, dir, "bopeebo-easy.JSON", "{}")
	writeFile(t, dir, "bopeebo.ogg", "audio")
	// Hidden file should be ignored
	writeFile(t, dir, ".backup.json", "{}")
	// Subfolders are not searched by default
	writeFile(t, dir, "old/bopeebo.json", "{}")

	entries, err := Files(dir, Options{})
	if err != nil {
		t.Fatalf("Files: %v", err)
	}

	got := paths(entries)
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d: %v", len(got), got)
	}
	// Should be sorted
	if got[0] != "bopeebo-easy.JSON" || got[1] != "bopeebo-hard.json" {
		t.Errorf("got %v", got)
	}
}

func TestDiscoverRecursiveSkipDirs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	writeFile(t, dir, "song/chart.json", "{}")
	writeFile(t, dir, "song/Merged/merged.json", "{}")
	writeFile(t, dir, "song/Split/chart_part1.json", "{}")
	writeFile(t, dir, "song/Append/chart.json", "{}")
	writeFile(t, dir, "song/Compressed/chart.json", "{}")
	writeFile(t, dir, "song/Multiplied/chart_x2.json", "{}")
	writeFile(t, dir, "node_modules/pkg.json", "{}")
	writeFile(t, dir, ".hidden/secret.json", "{}")

	entries, err := Files(dir, Options{Recursive: true})
	if err != nil {
		t.Fatalf("Files: %v", err)
	}

	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %v", paths(entries))
	}
	if entries[0].Path != filepath.Join("song", "chart.json") {
		t.Errorf("expected song/chart.json, got %q", entries[0].Path)
	}
}

func TestDiscoverIgnoreFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	writeFile(t, dir, ".gitignore", "*-old.json\n")
	writeFile(t, dir, IgnoreFile, "events.json\n# comment\n")
	writeFile(t, dir, "chart.json", "{}")
	writeFile(t, dir, "chart-old.json", "{}")
	writeFile(t, dir, "events.json", "{}")
	writeFile(t, dir, "meta.json", "{}")

	entries, err := Files(dir, Options{Ignore: []string{"meta.json"}})
	if err != nil {
		t.Fatalf("Files: %v", err)
	}

	got := paths(entries)
	if len(got) != 1 || got[0] != "chart.json" {
		t.Errorf("got %v, want [chart.json]", got)
	}
}

func TestDiscoverSymlinksSkipped(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "real.json", "{}")

	// Create symlink
	err := os.Symlink(filepath.Join(dir, "real.json"), filepath.Join(dir, "link.json"))
	if err != nil {
		t.Skip("symlinks not supported")
	}

	entries, err := Files(dir, Options{})
	if err != nil {
		t.Fatalf("Files: %v", err)
	}

	if len(entries) != 1 {
		t.Fatalf("expected 1 entry (no symlink), got %d", len(entries))
	}
	if entries[0].Path != "real.json" {
		t.Errorf("expected real.json, got %q", entries[0].Path)
	}
}

func TestSongDirs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	writeFile(t, dir, "week1/dadbattle/dadbattle-hard.json", "{}")
	writeFile(t, dir, "week1/bopeebo/bopeebo.json", "{}")
	writeFile(t, dir, "week1/bopeebo/bopeebo-hard.json", "{}")
	writeFile(t, dir, "week1/bopeebo/Merged/merged.json", "{}")
	writeFile(t, dir, "loose.json", "{}")

	dirs, err := SongDirs(dir, Options{})
	if err != nil {
		t.Fatalf("SongDirs: %v", err)
	}

	want := []struct {
		path  string
		files int
	}{
		{".", 1},
		{filepath.Join("week1", "bopeebo"), 2},
		{filepath.Join("week1", "dadbattle"), 1},
	}
	if len(dirs) != len(want) {
		t.Fatalf("got %d dirs, want %d: %+v", len(dirs), len(want), dirs)
	}
	for i, w := range want {
		if dirs[i].Path != w.path || len(dirs[i].Files) != w.files {
			t.Errorf("dir %d = %s (%d files), want %s (%d files)", i, dirs[i].Path, len(dirs[i].Files), w.path, w.files)
		}
	}
	if got := dirs[1].Files[0].Path; got != filepath.Join("week1", "bopeebo", "bopeebo-hard.json") {
		t.Errorf("first bopeebo file = %q", got)
	}
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
