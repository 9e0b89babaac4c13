package subscription

import (
	"context"
	"regexp"
	"strings"
	"time"

	apperrors "github.com/louisbranch/contentstream/internal/platform/errors"
	"github.com/louisbranch/contentstream/internal/services/content/domain/event"
	"github.com/louisbranch/contentstream/internal/services/content/storage"
)

var (
	// ErrInvalidID reports a malformed subscription identifier.
	ErrInvalidID = apperrors.New(apperrors.CodeInvalidSubscriptionID, "invalid subscription id")
	// ErrNotFound reports an unregistered subscription.
	ErrNotFound = apperrors.New(apperrors.CodeSubscriptionNotFound, "subscription not found")
	// ErrAlreadyRegistered reports a duplicate registration.
	ErrAlreadyRegistered = apperrors.New(apperrors.CodeSubscriptionAlreadyExists, "subscription already registered")
	// ErrFailed reports a subscription parked in the failed state.
	ErrFailed = apperrors.New(apperrors.CodeSubscriptionFailed, "subscription failed")
	// ErrSequenceGap reports a hole in the global sequence.
	ErrSequenceGap = apperrors.New(apperrors.CodeSubscriptionSequenceGap, "event sequence gap")
	// ErrResetUnsupported reports a projection that cannot be rebuilt.
	ErrResetUnsupported = apperrors.New(apperrors.CodeSubscriptionResetUnsupported, "projection does not support reset")
)

var idPattern = regexp.MustCompile(`^[a-z][a-z0-9_.-]{0,63}$`)

// ParseID validates a subscription identifier.
func ParseID(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if !idPattern.MatchString(id) {
		return "", apperrors.WrapWithMetadata(apperrors.CodeInvalidSubscriptionID,
			"subscription id must match "+idPattern.String(), map[string]string{"id": raw}, ErrInvalidID)
	}
	return id, nil
}

// Status is the lifecycle state of a subscription.
type Status string

const (
	// StatusActive subscriptions run on every pass.
	StatusActive Status = "active"
	// StatusRetrying subscriptions run once their backoff elapses.
	StatusRetrying Status = "retrying"
	// StatusFailed subscriptions wait for an operator.
	StatusFailed Status = "failed"
)

// Projection is a read model fed from the global log.
//
// ApplyEvent must write the projection's state and advance its checkpoint to
// evt.Seq in one transactional unit, and must be idempotent for events at or
// below the checkpoint.
type Projection interface {
	ApplyEvent(ctx context.Context, evt event.Event) error
	CurrentCheckpoint(ctx context.Context) (int64, error)
}

// Resetter is implemented by projections that can be rebuilt from scratch.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Subscription is the bookkeeping of one registered projection.
type Subscription struct {
	ID           string
	Position     int64
	Status       Status
	RetryAttempt int
	LastError    string
	LastSavedAt  time.Time
}

func fromRecord(rec storage.SubscriptionRecord) Subscription {
	return Subscription{
		ID:           rec.ID,
		Position:     rec.Position,
		Status:       Status(rec.Status),
		RetryAttempt: rec.RetryAttempt,
		LastError:    rec.LastError,
		LastSavedAt:  rec.LastSavedAt,
	}
}

func (s Subscription) record() storage.SubscriptionRecord {
	return storage.SubscriptionRecord{
		ID:           s.ID,
		Position:     s.Position,
		Status:       string(s.Status),
		RetryAttempt: s.RetryAttempt,
		LastError:    s.LastError,
		LastSavedAt:  s.LastSavedAt,
	}
}

// Result summarizes one catch-up pass.
type Result struct {
	ID       string
	Applied  int
	Position int64
	Status   Status
	// Deferred is set when a retrying subscription was not yet due.
	Deferred bool
	// Interrupted is set when the pass's context ended before it caught up.
	// Progress up to Position is kept and no retry attempt is counted.
	Interrupted bool
}
