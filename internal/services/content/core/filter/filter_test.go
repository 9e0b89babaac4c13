package filter

import (
	"errors"
	"testing"
	"time"

	apperrors "github.com/louisbranch/contentstream/internal/platform/errors"
)

func TestParseEmptyMatchesAll(t *testing.T) {
	f, err := Parse("  ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !f.IsEmpty() {
		t.Fatal("expected empty filter")
	}
	if got := f.SQL(); got.Clause != "" || len(got.Params) != 0 {
		t.Fatalf("SQL() = %+v, want empty", got)
	}
	if !f.Match(Fields{Type: "anything"}) {
		t.Fatal("expected empty filter to match")
	}
}

func TestParseSQL(t *testing.T) {
	tests := []struct {
		name       string
		filter     string
		wantClause string
		wantParams []any
	}{
		{
			name:       "equals",
			filter:     `type = "subtree.tagged"`,
			wantClause: "type = ?",
			wantParams: []any{"subtree.tagged"},
		},
		{
			name:       "int comparison",
			filter:     `seq > 10`,
			wantClause: "seq > ?",
			wantParams: []any{int64(10)},
		},
		{
			name:       "and",
			filter:     `stream = "contentstream:a" AND command_type != "subtree.tag"`,
			wantClause: "(stream = ? AND command_type != ?)",
			wantParams: []any{"contentstream:a", "subtree.tag"},
		},
		{
			name:       "or",
			filter:     `type = "a" OR type = "b"`,
			wantClause: "(type = ? OR type = ?)",
			wantParams: []any{"a", "b"},
		},
		{
			name:       "timestamp",
			filter:     `ts >= timestamp("2026-01-02T03:04:05Z")`,
			wantClause: "timestamp >= ?",
			wantParams: []any{time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC).UnixMilli()},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Parse(tt.filter)
			if err != nil {
				t.Fatalf("parse %q: %v", tt.filter, err)
			}
			got := f.SQL()
			if got.Clause != tt.wantClause {
				t.Fatalf("clause = %q, want %q", got.Clause, tt.wantClause)
			}
			if len(got.Params) != len(tt.wantParams) {
				t.Fatalf("params = %v, want %v", got.Params, tt.wantParams)
			}
			for i := range got.Params {
				if got.Params[i] != tt.wantParams[i] {
					t.Fatalf("params[%d] = %v (%T), want %v (%T)", i, got.Params[i], got.Params[i], tt.wantParams[i], tt.wantParams[i])
				}
			}
		})
	}
}

func TestMatch(t *testing.T) {
	fields := Fields{
		Stream:      "contentstream:a",
		Type:        "subtree.tagged",
		CommandType: "subtree.tag",
		Seq:         7,
		Timestamp:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	tests := []struct {
		filter string
		want   bool
	}{
		{`type = "subtree.tagged"`, true},
		{`type = "subtree.untagged"`, false},
		{`seq >= 7 AND seq < 8`, true},
		{`seq > 7`, false},
		{`stream = "contentstream:b" OR command_type = "subtree.tag"`, true},
		{`NOT type = "subtree.tagged"`, false},
		{`ts > timestamp("2026-02-01T00:00:00Z")`, true},
		{`ts < timestamp("2026-02-01T00:00:00Z")`, false},
	}
	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			f, err := Parse(tt.filter)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if got := f.Match(fields); got != tt.want {
				t.Fatalf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseInvalid(t *testing.T) {
	for _, input := range []string{
		`unknown = "x"`,
		`type = `,
		`seq = "abc"`,
	} {
		t.Run(input, func(t *testing.T) {
			_, err := Parse(input)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, ErrInvalidFilter) {
				t.Fatalf("error = %v, want ErrInvalidFilter", err)
			}
			if apperrors.GetCode(err) != apperrors.CodeInvalidFilter {
				t.Fatalf("code = %s, want %s", apperrors.GetCode(err), apperrors.CodeInvalidFilter)
			}
		})
	}
}
