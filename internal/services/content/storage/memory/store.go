// Package memory provides an in-process implementation of the content
// storage contracts, used by tests and the embedded runtime.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/louisbranch/contentstream/internal/platform/pagination"
	"github.com/louisbranch/contentstream/internal/services/content/core/filter"
	"github.com/louisbranch/contentstream/internal/services/content/domain/event"
	"github.com/louisbranch/contentstream/internal/services/content/storage"
)

var errStoreRequired = errors.New("memory store is required")

// Store keeps the event log, subscription records and tag grants in memory.
type Store struct {
	mu            sync.Mutex
	log           []event.Event
	streams       map[string][]int
	subscriptions map[string]storage.SubscriptionRecord
	grants        []storage.TagGrant
	checkpoints   map[string]int64
	now           func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		streams:       make(map[string][]int),
		subscriptions: make(map[string]storage.SubscriptionRecord),
		checkpoints:   make(map[string]int64),
		now:           time.Now,
	}
}

var (
	_ storage.EventStore        = (*Store)(nil)
	_ storage.SubscriptionStore = (*Store)(nil)
	_ storage.TagGrantStore     = (*Store)(nil)
)

func (s *Store) guard(ctx context.Context) error {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	if s == nil {
		return errStoreRequired
	}
	return nil
}

// AppendEvents appends events to stream under the expected version check.
func (s *Store) AppendEvents(ctx context.Context, stream string, expected storage.ExpectedVersion, events []event.Event) ([]event.Event, error) {
	if err := s.guard(ctx); err != nil {
		return nil, err
	}
	stream = strings.TrimSpace(stream)
	if stream == "" {
		return nil, event.ErrStreamRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	version := int64(len(s.streams[stream]))
	if err := expected.Check(stream, version); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}

	stored := make([]event.Event, 0, len(events))
	for _, evt := range events {
		evt.Stream = stream
		if err := evt.Validate(); err != nil {
			return nil, err
		}
		version++
		evt.Version = version
		evt.Seq = int64(len(s.log) + len(stored) + 1)
		if evt.Timestamp.IsZero() {
			evt.Timestamp = s.now().UTC()
		}
		stored = append(stored, cloneEvent(evt))
	}

	for _, evt := range stored {
		s.streams[stream] = append(s.streams[stream], len(s.log))
		s.log = append(s.log, evt)
	}
	out := make([]event.Event, len(stored))
	for i, evt := range stored {
		out[i] = cloneEvent(evt)
	}
	return out, nil
}

// ReadStream returns events of stream after afterVersion.
func (s *Store) ReadStream(ctx context.Context, stream string, afterVersion int64, limit int) ([]event.Event, error) {
	if err := s.guard(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	indexes := s.streams[strings.TrimSpace(stream)]
	if afterVersion < 0 {
		afterVersion = 0
	}
	if afterVersion >= int64(len(indexes)) {
		return nil, nil
	}
	indexes = indexes[afterVersion:]
	if limit > 0 && len(indexes) > limit {
		indexes = indexes[:limit]
	}
	out := make([]event.Event, 0, len(indexes))
	for _, idx := range indexes {
		out = append(out, cloneEvent(s.log[idx]))
	}
	return out, nil
}

// ReadAll returns events in global order after req.AfterSeq.
func (s *Store) ReadAll(ctx context.Context, req storage.ReadAllRequest) ([]event.Event, error) {
	if err := s.guard(ctx); err != nil {
		return nil, err
	}
	f, err := filter.Parse(req.Filter)
	if err != nil {
		return nil, err
	}
	limit := pageSize(req.Limit)

	s.mu.Lock()
	defer s.mu.Unlock()

	start := req.AfterSeq
	if start < 0 {
		start = 0
	}
	var out []event.Event
	for i := start; i < int64(len(s.log)) && len(out) < limit; i++ {
		evt := s.log[i]
		if req.Category != "" && storage.StreamCategory(evt.Stream) != req.Category {
			continue
		}
		if !f.Match(filter.FieldsOf(evt)) {
			continue
		}
		out = append(out, cloneEvent(evt))
	}
	return out, nil
}

// StreamVersion returns the last version of stream.
func (s *Store) StreamVersion(ctx context.Context, stream string) (int64, error) {
	if err := s.guard(ctx); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.streams[strings.TrimSpace(stream)])), nil
}

// LatestSeq returns the highest global sequence.
func (s *Store) LatestSeq(ctx context.Context) (int64, error) {
	if err := s.guard(ctx); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.log)), nil
}

// ListStreams lists streams of category ordered by name.
func (s *Store) ListStreams(ctx context.Context, category string) ([]storage.StreamInfo, error) {
	if err := s.guard(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]storage.StreamInfo, 0, len(s.streams))
	for name, indexes := range s.streams {
		if category != "" && storage.StreamCategory(name) != category {
			continue
		}
		out = append(out, storage.StreamInfo{Name: name, Version: int64(len(indexes))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// GetSubscription returns the record for id or storage.ErrNotFound.
func (s *Store) GetSubscription(ctx context.Context, id string) (storage.SubscriptionRecord, error) {
	if err := s.guard(ctx); err != nil {
		return storage.SubscriptionRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.subscriptions[strings.TrimSpace(id)]
	if !ok {
		return storage.SubscriptionRecord{}, storage.ErrNotFound
	}
	return rec, nil
}

// PutSubscription upserts a subscription record.
func (s *Store) PutSubscription(ctx context.Context, rec storage.SubscriptionRecord) error {
	if err := s.guard(ctx); err != nil {
		return err
	}
	rec.ID = strings.TrimSpace(rec.ID)
	if rec.ID == "" {
		return fmt.Errorf("subscription id is required")
	}
	if rec.LastSavedAt.IsZero() {
		rec.LastSavedAt = s.now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions[rec.ID] = rec
	return nil
}

// ListSubscriptions returns every record ordered by id.
func (s *Store) ListSubscriptions(ctx context.Context) ([]storage.SubscriptionRecord, error) {
	if err := s.guard(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]storage.SubscriptionRecord, 0, len(s.subscriptions))
	for _, rec := range s.subscriptions {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ApplyTagGrantChanges applies changes unless seq was already applied.
func (s *Store) ApplyTagGrantChanges(ctx context.Context, projection string, seq int64, changes storage.TagGrantChanges) (bool, error) {
	if err := s.guard(ctx); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq <= s.checkpoints[projection] {
		return false, nil
	}
	if fork := changes.Fork; fork != nil {
		for _, grant := range s.grants {
			if grant.ContentStreamID != fork.SourceID || !grant.Active(fork.SourceVersion) {
				continue
			}
			grant.ContentStreamID = fork.ContentStreamID
			grant.GrantedVersion = 0
			grant.RevokedVersion = 0
			s.grants = append(s.grants, grant)
		}
	}
	for _, rev := range changes.Revocations {
		for i := range s.grants {
			g := &s.grants[i]
			if g.ContentStreamID == rev.ContentStreamID && g.AggregateID == rev.AggregateID &&
				g.Tag == rev.Tag && g.PointHash == rev.PointHash && g.RevokedVersion == 0 {
				g.RevokedVersion = rev.Version
			}
		}
	}
	s.grants = append(s.grants, changes.Grants...)
	s.checkpoints[projection] = seq
	return true, nil
}

// ProjectionCheckpoint returns the last applied sequence of projection.
func (s *Store) ProjectionCheckpoint(ctx context.Context, projection string) (int64, error) {
	if err := s.guard(ctx); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkpoints[projection], nil
}

// ListTagGrants returns grants matching query.
func (s *Store) ListTagGrants(ctx context.Context, query storage.TagGrantQuery) ([]storage.TagGrant, error) {
	if err := s.guard(ctx); err != nil {
		return nil, err
	}
	aggregates := make(map[string]bool, len(query.AggregateIDs))
	for _, id := range query.AggregateIDs {
		aggregates[id] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []storage.TagGrant
	for _, g := range s.grants {
		switch {
		case query.ContentStreamID != "" && g.ContentStreamID != query.ContentStreamID:
			continue
		case len(aggregates) > 0 && !aggregates[g.AggregateID]:
			continue
		case query.PointHash != "" && g.PointHash != query.PointHash:
			continue
		case query.Tag != "" && g.Tag != query.Tag:
			continue
		case query.ActiveOnly && g.RevokedVersion != 0:
			continue
		}
		out = append(out, g)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.AggregateID != b.AggregateID {
			return a.AggregateID < b.AggregateID
		}
		if a.Tag != b.Tag {
			return a.Tag < b.Tag
		}
		if a.PointHash != b.PointHash {
			return a.PointHash < b.PointHash
		}
		return a.GrantedVersion < b.GrantedVersion
	})
	return out, nil
}

// ResetTagGrants drops every grant and the projection checkpoint.
func (s *Store) ResetTagGrants(ctx context.Context, projection string) error {
	if err := s.guard(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants = nil
	delete(s.checkpoints, projection)
	return nil
}

func pageSize(limit int) int {
	return pagination.ClampPageSize(limit, storage.ReadPageSize)
}

func cloneEvent(evt event.Event) event.Event {
	out := evt
	out.PayloadJSON = append([]byte(nil), evt.PayloadJSON...)
	out.Metadata.CommandPayloadJSON = append([]byte(nil), evt.Metadata.CommandPayloadJSON...)
	return out
}
