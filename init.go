package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/phobologic/chartmerge/internal/config"
)

const (
	sentinelStart = "# >>> chartmerge managed >>>"
	sentinelEnd   = "# <<< chartmerge managed <<<"
)

// newInitCmd implements `chartmerge init`, which writes (or updates) the
// managed default-settings block in a .chartmerge.yaml file.
func newInitCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init [flags] [path]",
		Short: "Write the default settings to " + config.FileName,
		Long: `Write chartmerge's default settings to a config file. The block is wrapped in
sentinel comments so it can be updated in place on subsequent runs without
touching surrounding content. Creates the file if it does not exist.

path defaults to ./` + config.FileName + `; a directory means the file inside it.
Keys set outside the managed block must not repeat keys inside it.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dryRun, _ := cmd.Flags().GetBool("dry-run")

			section, err := generateSection()
			if err != nil {
				return err
			}

			// --dry-run with no path: just print the section itself.
			if dryRun && len(args) == 0 {
				_, _ = fmt.Fprintln(a.stdout, section)
				return nil
			}

			path := config.FileName
			if len(args) > 0 {
				path = args[0]
			}
			if info, err := os.Stat(path); err == nil && info.IsDir() {
				path = filepath.Join(path, config.FileName)
			}

			existing, _ := os.ReadFile(path)
			updated := applySection(string(existing), section)

			if dryRun {
				_, _ = fmt.Fprint(a.stdout, updated)
				return nil
			}

			if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", path, err)
			}

			_, _ = fmt.Fprintf(a.stderr, "wrote chartmerge settings to %s\n", path)
			return nil
		},
	}
	return cmd
}

// generateSection returns the full sentinel-wrapped settings block.
func generateSection() (string, error) {
	body, err := config.DefaultYAML()
	if err != nil {
		return "", fmt.Errorf("rendering default config: %w", err)
	}

	header := `# chartmerge settings. Every key can also be set with a CHARTMERGE_*
# environment variable (e.g. CHARTMERGE_POLICY_ON_DUPLICATE_NOTE) or a flag.
#
# policy.on_duplicate_note:      keepFirst | keepLast | keepBoth
# policy.on_overlapping_section: error | truncateEarlier | interleave
# output.format:                 auto | v1 | psych
# report.format:                 ` + strings.Join(config.ReportFormats, " | ") + `
# ignore:                        gitignore-style patterns, like .chartignore
#
# See ` + "`chartmerge --help`" + ` for all flags.
`

	return sentinelStart + "\n" + header + strings.TrimRight(body, "\n") + "\n" + sentinelEnd, nil
}

// applySection inserts section into content, replacing an existing sentinel
// block if present or appending if not. It is a pure function for easy testing.
func applySection(content, section string) string {
	start := strings.Index(content, sentinelStart)
	end := strings.Index(content, sentinelEnd)

	if start >= 0 && end > start {
		return content[:start] + section + content[end+len(sentinelEnd):]
	}

	// Append, ensuring a blank line separator.
	if len(content) > 0 && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return content + "\n" + section + "\n"
}
