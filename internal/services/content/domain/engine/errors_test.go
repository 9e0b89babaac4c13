package engine

import (
	"errors"
	"fmt"
	"testing"

	apperrors "github.com/louisbranch/contentstream/internal/platform/errors"
	"github.com/louisbranch/contentstream/internal/services/content/domain/command"
)

func TestIsCommandFailure(t *testing.T) {
	rejection := &command.RejectionError{Rejections: []command.Rejection{{Code: "NODE_NOT_FOUND"}}}
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "rejection", err: wrapNonRetryable(rejection), want: true},
		{name: "validation", err: apperrors.Wrap(apperrors.CodeInvalidCommand, "bad", errors.New("bad")), want: true},
		{name: "relational", err: fmt.Errorf("decide: %w", apperrors.New(apperrors.CodePointNotInAllowedSubspace, "outside")), want: true},
		{name: "append", err: &appendError{err: errors.New("disk full")}, want: false},
		{name: "concurrency", err: apperrors.New(apperrors.CodeConcurrencyConflict, "conflict"), want: false},
		{name: "uncoded", err: errors.New("connection reset"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsCommandFailure(tt.err); got != tt.want {
				t.Fatalf("IsCommandFailure(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
