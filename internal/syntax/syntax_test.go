package syntax

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestDiagnoseFindsBrokenChart(t *testing.T) {
	t.Parallel()

	src := []byte("{\n  \"song\": {\n    \"bpm\": 150 \"speed\": 1\n  }\n}\n")
	problems := Diagnose(src, 0)
	if len(problems) == 0 {
		t.Fatal("expected at least one problem")
	}
	for _, p := range problems {
		if p.Line < 1 || p.Line > 5 || p.Column < 1 {
			t.Errorf("problem outside the document: %+v", p)
		}
	}

	var v any
	err := json.Unmarshal(src, &v)
	if err == nil {
		t.Fatal("expected a decode error")
	}
	msg := Explain(src, err)
	if !strings.HasPrefix(msg, "invalid JSON") {
		t.Errorf("Explain = %q", msg)
	}
}

func TestDiagnoseLimit(t *testing.T) {
	t.Parallel()

	src := []byte(`{"a": 1 "b": 2 "c": 3 "d": 4 "e": 5}`)
	if got := Diagnose(src, 1); len(got) > 1 {
		t.Errorf("got %d problems, want at most 1", len(got))
	}
}

func TestExplainLooseJSON(t *testing.T) {
	t.Parallel()

	// Valid as a JavaScript literal but not as JSON.
	src := []byte("{\"notes\": [1, 2,],}")
	if got := Diagnose(src, 0); len(got) != 0 {
		t.Errorf("Diagnose = %v, want none", got)
	}

	var v any
	err := json.Unmarshal(src, &v)
	if err == nil {
		t.Fatal("expected a decode error")
	}
	msg := Explain(src, err)
	if !strings.Contains(msg, "line 1") || !strings.Contains(msg, "not strict JSON") {
		t.Errorf("Explain = %q", msg)
	}
}

func TestPosition(t *testing.T) {
	t.Parallel()

	src := []byte("ab\ncd\nef")
	tests := []struct {
		offset    int64
		line, col int
	}{
		{0, 1, 1},
		{2, 1, 3},
		{3, 2, 1},
		{7, 3, 2},
		{100, 3, 3},
	}
	for _, tt := range tests {
		line, col := Position(src, tt.offset)
		if line != tt.line || col != tt.col {
			t.Errorf("Position(%d) = %d:%d, want %d:%d", tt.offset, line, col, tt.line, tt.col)
		}
	}
}

func TestProblemString(t *testing.T) {
	t.Parallel()

	if got := (Problem{Line: 2, Column: 5, Missing: true, Token: ","}).String(); got != "line 2 col 5: missing ," {
		t.Errorf("String() = %q", got)
	}
	if got := (Problem{Line: 1, Column: 1, Token: "@"}).String(); got != `line 1 col 1: unexpected "@"` {
		t.Errorf("String() = %q", got)
	}
}
