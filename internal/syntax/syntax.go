// Package syntax locates problems in chart files that fail strict JSON
// decoding, using tree-sitter's error-tolerant JavaScript grammar.
package syntax

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
)

// Problem is one syntax error location. Line and Column are 1-based.
type Problem struct {
	Line    int
	Column  int
	Missing bool   // tree-sitter inserted a missing token
	Token   string // node type for missing tokens, source excerpt otherwise
}

func (p Problem) String() string {
	if p.Missing {
		return fmt.Sprintf("line %d col %d: missing %s", p.Line, p.Column, p.Token)
	}
	return fmt.Sprintf("line %d col %d: unexpected %q", p.Line, p.Column, p.Token)
}

const maxExcerpt = 24

// Diagnose parses src and returns up to limit problems in document order.
// A chart is an object literal, so it is parsed as a parenthesized
// expression; JavaScript also accepts trailing commas, comments and
// single-quoted strings, which strict JSON rejects.
func Diagnose(src []byte, limit int) []Problem {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(javascript.GetLanguage())

	wrapped := make([]byte, 0, len(src)+2)
	wrapped = append(wrapped, '(')
	wrapped = append(wrapped, src...)
	wrapped = append(wrapped, ')')

	tree, err := parser.ParseCtx(context.Background(), nil, wrapped)
	if err != nil {
		return nil
	}
	defer tree.Close()

	var problems []Problem
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if limit > 0 && len(problems) >= limit {
			return
		}
		if n.IsMissing() || n.IsError() {
			problems = append(problems, problemAt(n, wrapped))
			return
		}
		if !n.HasError() {
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(tree.RootNode())
	return problems
}

func problemAt(n *sitter.Node, wrapped []byte) Problem {
	pt := n.StartPoint()
	col := int(pt.Column)
	if pt.Row == 0 {
		col-- // opening parenthesis
	}
	p := Problem{Line: int(pt.Row) + 1, Column: max(col, 0) + 1, Missing: n.IsMissing()}
	if p.Missing {
		p.Token = n.Type()
		return p
	}
	start, end := n.StartByte(), n.EndByte()
	if end > uint32(len(wrapped)) {
		end = uint32(len(wrapped))
	}
	text := strings.Join(strings.Fields(string(wrapped[start:end])), " ")
	if len(text) > maxExcerpt {
		text = text[:maxExcerpt] + "..."
	}
	p.Token = text
	return p
}

// Explain describes why src failed to decode. decodeErr is the error from
// encoding/json; its offset is used when tree-sitter finds nothing.
func Explain(src []byte, decodeErr error) string {
	if problems := Diagnose(src, 3); len(problems) > 0 {
		parts := make([]string, len(problems))
		for i, p := range problems {
			parts[i] = p.String()
		}
		return "invalid JSON: " + strings.Join(parts, "; ")
	}

	var se *json.SyntaxError
	if errors.As(decodeErr, &se) {
		line, col := Position(src, se.Offset)
		return fmt.Sprintf("invalid JSON at line %d col %d: %v (not strict JSON: trailing comma, comment or single quotes?)", line, col, se)
	}
	if decodeErr != nil {
		return "invalid JSON: " + decodeErr.Error()
	}
	return "invalid JSON"
}

// Position converts a byte offset into a 1-based line and column.
func Position(src []byte, offset int64) (line, col int) {
	if offset > int64(len(src)) {
		offset = int64(len(src))
	}
	line, col = 1, 1
	for _, b := range src[:offset] {
		if b == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
