// Package discover finds chart files in a song folder tree.
package discover

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	ignore "github.com/sabhiram/go-gitignore"
)

// FileEntry represents a discovered chart file.
type FileEntry struct {
	Path string // Relative to root
}

// Dir returns the folder holding the chart, relative to root.
func (e FileEntry) Dir() string {
	return filepath.Dir(e.Path)
}

// Options narrows discovery.
type Options struct {
	Ignore    []string // extra gitignore-style patterns
	Recursive bool     // descend into subfolders
}

// IgnoreFile is the per-folder pattern file read alongside .gitignore.
const IgnoreFile = ".chartignore"

var skipDirs = map[string]struct{}{
	// Output folders written by this tool.
	"Merged":     {},
	"Split":      {},
	"Append":     {},
	"Compressed": {},
	"Multiplied": {},

	"node_modules": {},
	".git":         {},
	".hg":          {},
	".svn":         {},
	"build":        {},
	"dist":         {},
	"export":       {},
}

// Files returns the chart files under root sorted by relative path. That
// order is the merge input order.
func Files(root string, opts Options) ([]FileEntry, error) {
	gitFiles := gitLsFiles(root)
	gi := loadIgnore(root, gitFiles == nil, opts.Ignore)

	var results []FileEntry

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip errors
		}

		name := d.Name()

		if d.IsDir() {
			if path == root {
				return nil
			}
			if !opts.Recursive {
				return filepath.SkipDir
			}
			if _, skip := skipDirs[name]; skip || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(name, ".") {
			return nil
		}

		// Skip symlinks
		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}

		if !strings.EqualFold(filepath.Ext(name), ".json") {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}

		if gitFiles != nil {
			if _, ok := gitFiles[filepath.ToSlash(rel)]; !ok {
				return nil
			}
		}
		if gi != nil && gi.MatchesPath(filepath.ToSlash(rel)) {
			return nil
		}

		results = append(results, FileEntry{Path: rel})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Path < results[j].Path
	})

	return results, nil
}

// SongDir is a folder holding charts that merge together.
type SongDir struct {
	Path  string // Relative to root; "." for root itself
	Files []FileEntry
}

// SongDirs walks root recursively and groups chart files by folder, sorted by
// folder path. Each group keeps the sorted file order of Files.
func SongDirs(root string, opts Options) ([]SongDir, error) {
	opts.Recursive = true
	files, err := Files(root, opts)
	if err != nil {
		return nil, err
	}

	var dirs []SongDir
	index := make(map[string]int)
	for _, f := range files {
		d := f.Dir()
		i, ok := index[d]
		if !ok {
			i = len(dirs)
			index[d] = i
			dirs = append(dirs, SongDir{Path: d})
		}
		dirs[i].Files = append(dirs[i].Files, f)
	}

	sort.SliceStable(dirs, func(i, j int) bool {
		return dirs[i].Path < dirs[j].Path
	})
	return dirs, nil
}

func gitLsFiles(root string) map[string]struct{} {
	gitDir := filepath.Join(root, ".git")
	info, err := os.Stat(gitDir)
	if err != nil || !info.IsDir() {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	out, err := cmd.Output()
	if err != nil {
		return nil
	}

	files := make(map[string]struct{})
	for _, line := range strings.Split(strings.TrimRight(string(out), "\n"), "\n") {
		if line != "" {
			files[line] = struct{}{}
		}
	}
	return files
}

// loadIgnore compiles the root .chartignore, the root .gitignore when git is
// not doing the filtering, and extra patterns. It returns nil when there is
// nothing to ignore.
func loadIgnore(root string, withGitignore bool, extra []string) *ignore.GitIgnore {
	var lines []string
	files := []string{IgnoreFile}
	if withGitignore {
		files = append(files, ".gitignore")
	}
	for _, name := range files {
		data, err := os.ReadFile(filepath.Join(root, name))
		if err != nil {
			continue
		}
		lines = append(lines, strings.Split(string(data), "\n")...)
	}
	lines = append(lines, extra...)
	if len(lines) == 0 {
		return nil
	}
	return ignore.CompileIgnoreLines(lines...)
}
