package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/louisbranch/contentstream/internal/platform/errors"
	"github.com/louisbranch/contentstream/internal/platform/pagination"
	"github.com/louisbranch/contentstream/internal/services/content/domain/event"
)

// ErrNotFound indicates a requested persistence record is missing.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// ErrConcurrencyConflict matches every *ConcurrencyError via errors.Is.
var ErrConcurrencyConflict = apperrors.New(apperrors.CodeConcurrencyConflict, "expected version mismatch")

// AllStreams is the virtual stream name covering the whole log.
const AllStreams = "$all"

// CategoryPrefix introduces a virtual stream covering every stream in one
// category, for example "category:workspace".
const CategoryPrefix = "category:"

// StreamCategory returns the part of a stream name before the first colon.
func StreamCategory(stream string) string {
	category, _, _ := strings.Cut(stream, ":")
	return category
}

// ParseVirtualStream maps "$all" (or "") and "category:<name>" to the
// category filter used by ReadAll. An empty category means the whole log.
func ParseVirtualStream(name string) (string, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "" || name == AllStreams:
		return "", nil
	case strings.HasPrefix(name, CategoryPrefix):
		category := strings.TrimPrefix(name, CategoryPrefix)
		if category == "" || strings.Contains(category, ":") {
			return "", fmt.Errorf("invalid virtual stream %q", name)
		}
		return category, nil
	default:
		return "", fmt.Errorf("unknown virtual stream %q", name)
	}
}

// ExpectedVersion is the optimistic concurrency precondition of an append.
type ExpectedVersion struct {
	version int64
	any     bool
}

// ExpectAny skips the version check.
func ExpectAny() ExpectedVersion { return ExpectedVersion{any: true} }

// ExpectNoStream requires the stream to have no events.
func ExpectNoStream() ExpectedVersion { return ExpectedVersion{} }

// ExpectVersion requires the stream's last version to be exactly v.
func ExpectVersion(v int64) ExpectedVersion { return ExpectedVersion{version: v} }

// IsAny reports whether the check is skipped.
func (e ExpectedVersion) IsAny() bool { return e.any }

// Version returns the expected last version; zero means no stream.
func (e ExpectedVersion) Version() int64 { return e.version }

// String renders the expectation for logs.
func (e ExpectedVersion) String() string {
	if e.any {
		return "any"
	}
	return fmt.Sprintf("%d", e.version)
}

// Check returns a *ConcurrencyError when actual does not satisfy e.
func (e ExpectedVersion) Check(stream string, actual int64) error {
	if e.any || e.version == actual {
		return nil
	}
	return &ConcurrencyError{Stream: stream, Expected: e, Actual: actual}
}

// ConcurrencyError reports an expected-version mismatch. It is recoverable:
// the caller reloads the stream and retries.
type ConcurrencyError struct {
	Stream   string
	Expected ExpectedVersion
	Actual   int64
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("concurrency conflict on %s: expected version %s, actual %d", e.Stream, e.Expected, e.Actual)
}

// Is matches ErrConcurrencyConflict.
func (e *ConcurrencyError) Is(target error) bool {
	t, ok := target.(*apperrors.Error)
	return ok && t.Code == apperrors.CodeConcurrencyConflict
}

// ReadPageSize bounds ReadAll pages.
var ReadPageSize = pagination.PageSizeConfig{Default: 500, Max: 5000}

// ReadAllRequest selects events from the global log.
type ReadAllRequest struct {
	// AfterSeq excludes events at or below this global sequence.
	AfterSeq int64
	// Limit caps the page size; zero or negative means the store default.
	Limit int
	// Category restricts results to streams in one category.
	Category string
	// Filter is an AIP-160 expression over stream, type, command_type and seq.
	Filter string
}

// StreamInfo summarizes one stream.
type StreamInfo struct {
	Name    string
	Version int64
}

// EventStore is the append-only event log.
type EventStore interface {
	// AppendEvents appends events to stream atomically if the stream's last
	// version satisfies expected, assigning Version and Seq. Events are
	// returned as stored.
	AppendEvents(ctx context.Context, stream string, expected ExpectedVersion, events []event.Event) ([]event.Event, error)
	// ReadStream returns up to limit events of stream with Version > afterVersion.
	// A non-positive limit returns the rest of the stream.
	ReadStream(ctx context.Context, stream string, afterVersion int64, limit int) ([]event.Event, error)
	// ReadAll returns events in global sequence order.
	ReadAll(ctx context.Context, req ReadAllRequest) ([]event.Event, error)
	// StreamVersion returns the last version of stream, zero when it has no events.
	StreamVersion(ctx context.Context, stream string) (int64, error)
	// LatestSeq returns the highest global sequence, zero for an empty log.
	LatestSeq(ctx context.Context) (int64, error)
	// ListStreams returns the streams of a category ordered by name. An empty
	// category lists every stream.
	ListStreams(ctx context.Context, category string) ([]StreamInfo, error)
}

// SubscriptionRecord is the persisted state of one subscription.
type SubscriptionRecord struct {
	ID           string
	Position     int64
	Status       string
	RetryAttempt int
	LastError    string
	LastSavedAt  time.Time
}

// SubscriptionStore persists subscription bookkeeping.
type SubscriptionStore interface {
	GetSubscription(ctx context.Context, id string) (SubscriptionRecord, error)
	PutSubscription(ctx context.Context, rec SubscriptionRecord) error
	ListSubscriptions(ctx context.Context) ([]SubscriptionRecord, error)
}

// TagGrant is one (content stream, aggregate, tag, point) grant of the
// subtree tag read model. RevokedVersion is zero while the grant is active.
type TagGrant struct {
	ContentStreamID string
	AggregateID     string
	Tag             string
	PointHash       string
	Point           string
	GrantedVersion  int64
	RevokedVersion  int64
}

// Active reports whether the grant is in effect at version v of its stream.
func (g TagGrant) Active(v int64) bool {
	return g.GrantedVersion <= v && (g.RevokedVersion == 0 || g.RevokedVersion > v)
}

// TagGrantRevocation revokes the active grants matching its key at Version.
type TagGrantRevocation struct {
	ContentStreamID string
	AggregateID     string
	Tag             string
	PointHash       string
	Version         int64
}

// TagGrantFork copies the grants of SourceID active at SourceVersion into
// ContentStreamID as pre-fork grants (GrantedVersion zero).
type TagGrantFork struct {
	ContentStreamID string
	SourceID        string
	SourceVersion   int64
}

// TagGrantChanges is the write produced by one event.
type TagGrantChanges struct {
	Grants      []TagGrant
	Revocations []TagGrantRevocation
	Fork        *TagGrantFork
}

// TagGrantQuery selects grants.
type TagGrantQuery struct {
	ContentStreamID string
	AggregateIDs    []string
	PointHash       string
	Tag             string
	ActiveOnly      bool
}

// TagGrantStore persists the subtree tag read model with its checkpoint.
type TagGrantStore interface {
	// ApplyTagGrantChanges applies changes and advances the projection's
	// checkpoint to seq in one transaction. It returns false without writing
	// when seq is at or below the checkpoint.
	ApplyTagGrantChanges(ctx context.Context, projection string, seq int64, changes TagGrantChanges) (bool, error)
	// ProjectionCheckpoint returns the last sequence applied by projection.
	ProjectionCheckpoint(ctx context.Context, projection string) (int64, error)
	// ListTagGrants returns grants ordered by aggregate, tag and point hash.
	ListTagGrants(ctx context.Context, query TagGrantQuery) ([]TagGrant, error)
	// ResetTagGrants removes every grant and the projection's checkpoint.
	ResetTagGrants(ctx context.Context, projection string) error
}
