// Package config loads chartmerge settings from an optional YAML file,
// CHARTMERGE_* environment variables and command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/phobologic/chartmerge/internal/engine"
	"github.com/phobologic/chartmerge/internal/model"
)

const (
	EnvPrefix = "CHARTMERGE"
	FileName  = ".chartmerge.yaml"
)

// ReportFormats lists the accepted report.format values.
var ReportFormats = []string{"text", "toon", "json", "yaml"}

// Config is the resolved settings for one run.
type Config struct {
	Policy      model.MergePolicy `yaml:"policy"`
	Output      Output            `yaml:"output"`
	Report      Report            `yaml:"report"`
	MaxFileSize int64             `yaml:"max_file_size"`
	Workers     int               `yaml:"workers"`
	Ignore      []string          `yaml:"ignore"`
	Logging     Logging           `yaml:"logging"`
}

// Output controls where and how the merged chart is written. An empty Path
// means the default Merged/ folder.
type Output struct {
	Path   string `yaml:"path"`
	Format string `yaml:"format"` // auto, v1 or psych
	Indent bool   `yaml:"indent"`
}

// Report controls the conflict report. Only, when set, keeps just the
// records of those kinds; counts follow the filtered records.
type Report struct {
	Format string               `yaml:"format"`
	Path   string               `yaml:"path"` // stdout when empty
	Only   []model.ConflictKind `yaml:"only,omitempty"`
}

// Logging configures the slog logger built by logutil.
type Logging struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Policy:      model.DefaultPolicy(),
		Output:      Output{Format: "auto"},
		Report:      Report{Format: "text"},
		MaxFileSize: engine.DefaultMaxFileSize,
		Logging:     Logging{Level: "warn", Format: "text"},
	}
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	d := Default()
	v.SetDefault("policy.on_duplicate_note", string(d.Policy.OnDuplicateNote))
	v.SetDefault("policy.on_overlapping_section", string(d.Policy.OnOverlappingSection))
	v.SetDefault("output.path", d.Output.Path)
	v.SetDefault("output.format", d.Output.Format)
	v.SetDefault("output.indent", d.Output.Indent)
	v.SetDefault("report.format", d.Report.Format)
	v.SetDefault("report.path", d.Report.Path)
	v.SetDefault("report.only", []string{})
	v.SetDefault("max_file_size", d.MaxFileSize)
	v.SetDefault("workers", d.Workers)
	v.SetDefault("ignore", []string{})
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.add_source", d.Logging.AddSource)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path into v. An empty path looks for FileName in dir and is not
// an error when the file is absent. It returns the file actually read.
func Load(v *viper.Viper, path, dir string) (string, error) {
	if path == "" {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err != nil {
			return "", nil
		}
		path = candidate
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return "", fmt.Errorf("reading config %s: %w", path, err)
	}
	return path, nil
}

// FromViper decodes and validates the settings held by v.
func FromViper(v *viper.Viper) (Config, error) {
	var c Config
	var err error

	if c.Policy.OnDuplicateNote, err = model.ParseDuplicatePolicy(v.GetString("policy.on_duplicate_note")); err != nil {
		return c, fmt.Errorf("policy.on_duplicate_note: %w", err)
	}
	if c.Policy.OnOverlappingSection, err = model.ParseOverlapPolicy(v.GetString("policy.on_overlapping_section")); err != nil {
		return c, fmt.Errorf("policy.on_overlapping_section: %w", err)
	}

	c.Output = Output{
		Path:   v.GetString("output.path"),
		Format: strings.TrimSpace(v.GetString("output.format")),
		Indent: v.GetBool("output.indent"),
	}
	if _, err := model.ParseFormat(c.Output.Format); err != nil {
		return c, fmt.Errorf("output.format: %w", err)
	}

	c.Report = Report{
		Format: strings.ToLower(strings.TrimSpace(v.GetString("report.format"))),
		Path:   v.GetString("report.path"),
	}
	if !slices.Contains(ReportFormats, c.Report.Format) {
		return c, fmt.Errorf("report.format: unknown format %q (want %s)", c.Report.Format, strings.Join(ReportFormats, ", "))
	}
	for _, name := range v.GetStringSlice("report.only") {
		kind, err := model.ParseConflictKind(name)
		if err != nil {
			return c, fmt.Errorf("report.only: %w", err)
		}
		if !slices.Contains(c.Report.Only, kind) {
			c.Report.Only = append(c.Report.Only, kind)
		}
	}

	c.MaxFileSize = v.GetInt64("max_file_size")
	if c.MaxFileSize < 0 {
		return c, fmt.Errorf("max_file_size: must not be negative")
	}
	c.Workers = v.GetInt("workers")
	if ignore := v.GetStringSlice("ignore"); len(ignore) > 0 {
		c.Ignore = ignore
	}
	c.Logging = Logging{
		Level:     v.GetString("logging.level"),
		Format:    v.GetString("logging.format"),
		AddSource: v.GetBool("logging.add_source"),
	}
	return c, nil
}

// OutputFormat is Output.Format as a model.Format; auto is FormatUnknown.
func (c Config) OutputFormat() model.Format {
	f, _ := model.ParseFormat(c.Output.Format)
	return f
}

// DefaultYAML renders the default settings as a YAML document body.
func DefaultYAML() (string, error) {
	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", err
	}
	return string(data), nil
}
