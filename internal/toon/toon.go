// Package toon implements TOON (Token-Oriented Object Notation) encoding.
package toon

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/phobologic/chartmerge/internal/report"
)

var (
	needsQuoting = regexp.MustCompile(`[,:"\\{}\[\]]`)
	looksNumeric = regexp.MustCompile(`^-?(?:0|[1-9]\d*)(?:\.\d+)?$`)
	keywords     = map[string]struct{}{
		"true":  {},
		"false": {},
		"null":  {},
	}
)

// Encode converts a merge summary into TOON format.
func Encode(s *report.Summary) string {
	var parts []string

	if s.Output != "" {
		parts = append(parts, fmt.Sprintf("output: %s", encodeValue(s.Output)))
	}
	parts = append(parts, fmt.Sprintf("format: %s", encodeValue(string(s.Format))))
	parts = append(parts, fmt.Sprintf("policy: %s", encodeValue(s.Policy)))
	parts = append(parts, fmt.Sprintf("sections: %d", s.Sections))
	parts = append(parts, fmt.Sprintf("notes: %d", s.Notes))
	parts = append(parts, fmt.Sprintf("events: %d", s.Events))

	var sourceRows [][]string
	for i, src := range s.Sources {
		sourceRows = append(sourceRows, []string{strconv.Itoa(i), src.Path, string(src.Format)})
	}
	parts = append(parts, formatTabular("sources", []string{"index", "path", "format"}, sourceRows))

	var countRows [][]string
	for _, c := range s.Counts {
		countRows = append(countRows, []string{string(c.Kind), strconv.Itoa(c.Count)})
	}
	parts = append(parts, formatTabular("counts", []string{"kind", "count"}, countRows))

	parts = append(parts, EncodeConflicts(s.Conflicts))

	return strings.Join(parts, "\n")
}

// EncodeConflicts renders records alone as a TOON table.
func EncodeConflicts(r report.Report) string {
	var rows [][]string
	for i := range r {
		rec := &r[i]
		rows = append(rows, []string{
			strconv.FormatFloat(rec.TimeMs, 'f', -1, 64),
			string(rec.Kind),
			rec.Source,
			rec.Detail,
			rec.Resolution,
		})
	}
	return formatTabular("conflicts", []string{"time_ms", "kind", "source", "detail", "resolution"}, rows)
}

func formatTabular(name string, columns []string, rows [][]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%d]{%s}:", name, len(rows), strings.Join(columns, ","))
	for _, row := range rows {
		encoded := make([]string, len(row))
		for i, cell := range row {
			encoded[i] = encodeValue(cell)
		}
		fmt.Fprintf(&b, "\n  %s", strings.Join(encoded, ","))
	}
	return b.String()
}

func encodeValue(value string) string {
	if value == "" {
		return `""`
	}

	if value != strings.TrimSpace(value) {
		return quote(value)
	}

	if strings.ContainsAny(value, "\n\r\t") {
		return quote(value)
	}

	if _, ok := keywords[strings.ToLower(value)]; ok {
		return quote(value)
	}

	if looksNumeric.MatchString(value) {
		return value
	}

	if needsQuoting.MatchString(value) {
		return quote(value)
	}

	if strings.HasPrefix(value, "-") {
		return quote(value)
	}

	return value
}

func quote(value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	escaped = strings.ReplaceAll(escaped, "\n", `\n`)
	escaped = strings.ReplaceAll(escaped, "\r", `\r`)
	escaped = strings.ReplaceAll(escaped, "\t", `\t`)
	return `"` + escaped + `"`
}
