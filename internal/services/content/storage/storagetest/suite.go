// Package storagetest holds behavior tests shared by every storage backend.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/louisbranch/contentstream/internal/services/content/domain/event"
	"github.com/louisbranch/contentstream/internal/services/content/storage"
)

// Backend is the set of contracts a storage implementation provides.
type Backend interface {
	storage.EventStore
	storage.SubscriptionStore
	storage.TagGrantStore
}

// Run exercises the storage contracts against fresh backends from newBackend.
func Run(t *testing.T, newBackend func(t *testing.T) Backend) {
	t.Run("append assigns versions and sequences", func(t *testing.T) {
		testAppendAssigns(t, newBackend(t))
	})
	t.Run("expected version conflicts", func(t *testing.T) {
		testExpectedVersion(t, newBackend(t))
	})
	t.Run("read stream pages", func(t *testing.T) {
		testReadStream(t, newBackend(t))
	})
	t.Run("read all filters", func(t *testing.T) {
		testReadAll(t, newBackend(t))
	})
	t.Run("list streams", func(t *testing.T) {
		testListStreams(t, newBackend(t))
	})
	t.Run("metadata round trip", func(t *testing.T) {
		testMetadata(t, newBackend(t))
	})
	t.Run("subscriptions", func(t *testing.T) {
		testSubscriptions(t, newBackend(t))
	})
	t.Run("tag grants", func(t *testing.T) {
		testTagGrants(t, newBackend(t))
	})
}

func newEvent(typ event.Type, payload string) event.Event {
	return event.Event{
		Type:        typ,
		Timestamp:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		PayloadJSON: []byte(payload),
	}
}

func mustAppend(t *testing.T, store storage.EventStore, stream string, expected storage.ExpectedVersion, events ...event.Event) []event.Event {
	t.Helper()
	stored, err := store.AppendEvents(context.Background(), stream, expected, events)
	if err != nil {
		t.Fatalf("append to %s: %v", stream, err)
	}
	return stored
}

func testAppendAssigns(t *testing.T, store Backend) {
	ctx := context.Background()
	stored := mustAppend(t, store, "contentstream:a", storage.ExpectNoStream(),
		newEvent(event.TypeContentStreamCreated, `{"content_stream_id":"a"}`),
		newEvent(event.TypeSubtreeTagged, `{}`),
	)
	if len(stored) != 2 {
		t.Fatalf("stored = %d events, want 2", len(stored))
	}
	for i, evt := range stored {
		if evt.Stream != "contentstream:a" {
			t.Fatalf("stored[%d].Stream = %q, want contentstream:a", i, evt.Stream)
		}
		if evt.Version != int64(i+1) || evt.Seq != int64(i+1) {
			t.Fatalf("stored[%d] version/seq = %d/%d, want %d/%d", i, evt.Version, evt.Seq, i+1, i+1)
		}
	}

	other := mustAppend(t, store, "workspace:live", storage.ExpectAny(), newEvent(event.TypeWorkspaceCreated, `{}`))
	if other[0].Version != 1 || other[0].Seq != 3 {
		t.Fatalf("other version/seq = %d/%d, want 1/3", other[0].Version, other[0].Seq)
	}

	version, err := store.StreamVersion(ctx, "contentstream:a")
	if err != nil {
		t.Fatalf("stream version: %v", err)
	}
	if version != 2 {
		t.Fatalf("StreamVersion = %d, want 2", version)
	}
	missing, err := store.StreamVersion(ctx, "contentstream:missing")
	if err != nil {
		t.Fatalf("stream version of missing stream: %v", err)
	}
	if missing != 0 {
		t.Fatalf("StreamVersion(missing) = %d, want 0", missing)
	}
	seq, err := store.LatestSeq(ctx)
	if err != nil {
		t.Fatalf("latest seq: %v", err)
	}
	if seq != 3 {
		t.Fatalf("LatestSeq = %d, want 3", seq)
	}
}

func testExpectedVersion(t *testing.T, store Backend) {
	ctx := context.Background()
	mustAppend(t, store, "contentstream:a", storage.ExpectNoStream(), newEvent(event.TypeContentStreamCreated, `{}`))

	_, err := store.AppendEvents(ctx, "contentstream:a", storage.ExpectNoStream(), []event.Event{newEvent(event.TypeSubtreeTagged, `{}`)})
	if !errors.Is(err, storage.ErrConcurrencyConflict) {
		t.Fatalf("append with stale expectation error = %v, want ErrConcurrencyConflict", err)
	}
	var conflict *storage.ConcurrencyError
	if !errors.As(err, &conflict) {
		t.Fatalf("error %T is not *ConcurrencyError", err)
	}
	if conflict.Actual != 1 || conflict.Expected.Version() != 0 {
		t.Fatalf("conflict = %+v, want actual 1 expected 0", conflict)
	}

	mustAppend(t, store, "contentstream:a", storage.ExpectVersion(1), newEvent(event.TypeSubtreeTagged, `{}`))
	seq, err := store.LatestSeq(ctx)
	if err != nil {
		t.Fatalf("latest seq: %v", err)
	}
	if seq != 2 {
		t.Fatalf("LatestSeq = %d after rejected append, want 2", seq)
	}

	_, err = store.AppendEvents(ctx, "contentstream:a", storage.ExpectAny(), []event.Event{{Type: event.TypeSubtreeTagged, PayloadJSON: []byte("{")}})
	if !errors.Is(err, event.ErrPayloadInvalid) {
		t.Fatalf("invalid payload error = %v, want ErrPayloadInvalid", err)
	}
	version, err := store.StreamVersion(ctx, "contentstream:a")
	if err != nil {
		t.Fatalf("stream version: %v", err)
	}
	if version != 2 {
		t.Fatalf("StreamVersion = %d after invalid batch, want 2", version)
	}
}

func testReadStream(t *testing.T, store Backend) {
	ctx := context.Background()
	var batch []event.Event
	for i := 0; i < 5; i++ {
		batch = append(batch, newEvent(event.TypeSubtreeTagged, `{}`))
	}
	mustAppend(t, store, "contentstream:a", storage.ExpectNoStream(), batch...)
	mustAppend(t, store, "contentstream:b", storage.ExpectNoStream(), newEvent(event.TypeContentStreamCreated, `{}`))

	page, err := store.ReadStream(ctx, "contentstream:a", 1, 2)
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if len(page) != 2 || page[0].Version != 2 || page[1].Version != 3 {
		t.Fatalf("page = %+v, want versions 2 and 3", page)
	}
	rest, err := store.ReadStream(ctx, "contentstream:a", 3, 0)
	if err != nil {
		t.Fatalf("read stream rest: %v", err)
	}
	if len(rest) != 2 || rest[1].Version != 5 {
		t.Fatalf("rest = %d events, want versions 4..5", len(rest))
	}
	none, err := store.ReadStream(ctx, "contentstream:missing", 0, 0)
	if err != nil {
		t.Fatalf("read missing stream: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("missing stream returned %d events", len(none))
	}
}

func testReadAll(t *testing.T, store Backend) {
	ctx := context.Background()
	mustAppend(t, store, "contentstream:a", storage.ExpectNoStream(), newEvent(event.TypeContentStreamCreated, `{}`))
	mustAppend(t, store, "workspace:live", storage.ExpectNoStream(), newEvent(event.TypeWorkspaceCreated, `{}`))
	mustAppend(t, store, "contentstream:a", storage.ExpectVersion(1), newEvent(event.TypeSubtreeTagged, `{}`))
	mustAppend(t, store, "contentstream:b", storage.ExpectNoStream(), newEvent(event.TypeContentStreamCreated, `{}`))

	all, err := store.ReadAll(ctx, storage.ReadAllRequest{})
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("ReadAll = %d events, want 4", len(all))
	}
	for i, evt := range all {
		if evt.Seq != int64(i+1) {
			t.Fatalf("all[%d].Seq = %d, want %d", i, evt.Seq, i+1)
		}
	}

	after, err := store.ReadAll(ctx, storage.ReadAllRequest{AfterSeq: 2, Limit: 1})
	if err != nil {
		t.Fatalf("read all after: %v", err)
	}
	if len(after) != 1 || after[0].Seq != 3 {
		t.Fatalf("after = %+v, want seq 3", after)
	}

	category, err := store.ReadAll(ctx, storage.ReadAllRequest{Category: "contentstream"})
	if err != nil {
		t.Fatalf("read category: %v", err)
	}
	if len(category) != 3 {
		t.Fatalf("category read = %d events, want 3", len(category))
	}

	filtered, err := store.ReadAll(ctx, storage.ReadAllRequest{Filter: `type = "content_stream.created" AND seq > 1`})
	if err != nil {
		t.Fatalf("read filtered: %v", err)
	}
	if len(filtered) != 1 || filtered[0].Stream != "contentstream:b" {
		t.Fatalf("filtered = %+v, want contentstream:b creation", filtered)
	}

	if _, err := store.ReadAll(ctx, storage.ReadAllRequest{Filter: `nope = "x"`}); err == nil {
		t.Fatal("expected invalid filter error")
	}
}

func testListStreams(t *testing.T, store Backend) {
	ctx := context.Background()
	mustAppend(t, store, "workspace:live", storage.ExpectNoStream(), newEvent(event.TypeWorkspaceCreated, `{}`))
	mustAppend(t, store, "contentstream:b", storage.ExpectNoStream(), newEvent(event.TypeContentStreamCreated, `{}`), newEvent(event.TypeSubtreeTagged, `{}`))
	mustAppend(t, store, "contentstream:a", storage.ExpectNoStream(), newEvent(event.TypeContentStreamCreated, `{}`))

	streams, err := store.ListStreams(ctx, "contentstream")
	if err != nil {
		t.Fatalf("list streams: %v", err)
	}
	if len(streams) != 2 {
		t.Fatalf("streams = %+v, want 2", streams)
	}
	if streams[0] != (storage.StreamInfo{Name: "contentstream:a", Version: 1}) || streams[1] != (storage.StreamInfo{Name: "contentstream:b", Version: 2}) {
		t.Fatalf("streams = %+v", streams)
	}
	all, err := store.ListStreams(ctx, "")
	if err != nil {
		t.Fatalf("list all streams: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("all streams = %d, want 3", len(all))
	}
}

func testMetadata(t *testing.T, store Backend) {
	ctx := context.Background()
	evt := newEvent(event.TypeSubtreeTagged, `{"tag":"x"}`)
	evt.Metadata = event.Metadata{
		CommandID:          "cmd-1",
		CommandType:        "subtree.tag",
		CommandPayloadJSON: []byte(`{"tag":"x"}`),
		InitiatingUserID:   "user-1",
		CorrelationID:      "corr-1",
		CausationID:        "cause-1",
	}
	mustAppend(t, store, "contentstream:a", storage.ExpectAny(), evt)

	read, err := store.ReadStream(ctx, "contentstream:a", 0, 0)
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	got := read[0]
	if got.Metadata.CommandID != "cmd-1" || got.Metadata.CommandType != "subtree.tag" ||
		string(got.Metadata.CommandPayloadJSON) != `{"tag":"x"}` || got.Metadata.InitiatingUserID != "user-1" ||
		got.Metadata.CorrelationID != "corr-1" || got.Metadata.CausationID != "cause-1" {
		t.Fatalf("metadata = %+v", got.Metadata)
	}
	if string(got.PayloadJSON) != `{"tag":"x"}` {
		t.Fatalf("payload = %s", got.PayloadJSON)
	}
	if !got.Timestamp.Equal(evt.Timestamp) {
		t.Fatalf("timestamp = %v, want %v", got.Timestamp, evt.Timestamp)
	}
}

func testSubscriptions(t *testing.T, store Backend) {
	ctx := context.Background()
	if _, err := store.GetSubscription(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("get missing subscription error = %v, want ErrNotFound", err)
	}
	rec := storage.SubscriptionRecord{ID: "tags", Position: 4, Status: "retrying", RetryAttempt: 2, LastError: "boom"}
	if err := store.PutSubscription(ctx, rec); err != nil {
		t.Fatalf("put subscription: %v", err)
	}
	if err := store.PutSubscription(ctx, storage.SubscriptionRecord{ID: "audit", Status: "active"}); err != nil {
		t.Fatalf("put second subscription: %v", err)
	}
	got, err := store.GetSubscription(ctx, "tags")
	if err != nil {
		t.Fatalf("get subscription: %v", err)
	}
	if got.Position != 4 || got.Status != "retrying" || got.RetryAttempt != 2 || got.LastError != "boom" {
		t.Fatalf("subscription = %+v", got)
	}
	if got.LastSavedAt.IsZero() {
		t.Fatal("expected LastSavedAt to be stamped")
	}

	rec.Position = 9
	rec.Status = "active"
	rec.RetryAttempt = 0
	rec.LastError = ""
	if err := store.PutSubscription(ctx, rec); err != nil {
		t.Fatalf("update subscription: %v", err)
	}
	list, err := store.ListSubscriptions(ctx)
	if err != nil {
		t.Fatalf("list subscriptions: %v", err)
	}
	if len(list) != 2 || list[0].ID != "audit" || list[1].ID != "tags" || list[1].Position != 9 {
		t.Fatalf("subscriptions = %+v", list)
	}
}

func testTagGrants(t *testing.T, store Backend) {
	ctx := context.Background()
	grant := func(aggregate, tag, hash string, version int64) storage.TagGrant {
		return storage.TagGrant{ContentStreamID: "a", AggregateID: aggregate, Tag: tag, PointHash: hash, Point: `{"lang":"` + hash + `"}`, GrantedVersion: version}
	}

	applied, err := store.ApplyTagGrantChanges(ctx, "tags", 1, storage.TagGrantChanges{
		Grants: []storage.TagGrant{grant("n1", "disabled", "p1", 2), grant("n1", "disabled", "p2", 2)},
	})
	if err != nil {
		t.Fatalf("apply grants: %v", err)
	}
	if !applied {
		t.Fatal("expected first apply to write")
	}

	replayed, err := store.ApplyTagGrantChanges(ctx, "tags", 1, storage.TagGrantChanges{
		Grants: []storage.TagGrant{grant("n9", "disabled", "p1", 2)},
	})
	if err != nil {
		t.Fatalf("replay apply: %v", err)
	}
	if replayed {
		t.Fatal("expected replay at checkpoint to be skipped")
	}

	if _, err := store.ApplyTagGrantChanges(ctx, "tags", 2, storage.TagGrantChanges{
		Revocations: []storage.TagGrantRevocation{{ContentStreamID: "a", AggregateID: "n1", Tag: "disabled", PointHash: "p2", Version: 3}},
	}); err != nil {
		t.Fatalf("apply revocation: %v", err)
	}

	checkpoint, err := store.ProjectionCheckpoint(ctx, "tags")
	if err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	if checkpoint != 2 {
		t.Fatalf("checkpoint = %d, want 2", checkpoint)
	}

	active, err := store.ListTagGrants(ctx, storage.TagGrantQuery{ContentStreamID: "a", ActiveOnly: true})
	if err != nil {
		t.Fatalf("list active grants: %v", err)
	}
	if len(active) != 1 || active[0].PointHash != "p1" {
		t.Fatalf("active grants = %+v, want only p1", active)
	}
	all, err := store.ListTagGrants(ctx, storage.TagGrantQuery{ContentStreamID: "a", AggregateIDs: []string{"n1"}})
	if err != nil {
		t.Fatalf("list all grants: %v", err)
	}
	if len(all) != 2 || all[1].RevokedVersion != 3 {
		t.Fatalf("grants = %+v, want p2 revoked at 3", all)
	}

	// Fork at version 2 sees both grants; p2 was revoked later.
	if _, err := store.ApplyTagGrantChanges(ctx, "tags", 3, storage.TagGrantChanges{
		Fork: &storage.TagGrantFork{ContentStreamID: "b", SourceID: "a", SourceVersion: 2},
	}); err != nil {
		t.Fatalf("apply fork: %v", err)
	}
	forked, err := store.ListTagGrants(ctx, storage.TagGrantQuery{ContentStreamID: "b", ActiveOnly: true})
	if err != nil {
		t.Fatalf("list forked grants: %v", err)
	}
	if len(forked) != 2 {
		t.Fatalf("forked grants = %+v, want 2", forked)
	}
	for _, g := range forked {
		if g.GrantedVersion != 0 || g.RevokedVersion != 0 {
			t.Fatalf("forked grant = %+v, want pre-fork active grant", g)
		}
	}

	byPoint, err := store.ListTagGrants(ctx, storage.TagGrantQuery{PointHash: "p1", Tag: "disabled", ActiveOnly: true})
	if err != nil {
		t.Fatalf("list by point: %v", err)
	}
	if len(byPoint) != 2 {
		t.Fatalf("by point = %+v, want one per stream", byPoint)
	}

	if err := store.ResetTagGrants(ctx, "tags"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	checkpoint, err = store.ProjectionCheckpoint(ctx, "tags")
	if err != nil {
		t.Fatalf("checkpoint after reset: %v", err)
	}
	empty, err := store.ListTagGrants(ctx, storage.TagGrantQuery{})
	if err != nil {
		t.Fatalf("list after reset: %v", err)
	}
	if checkpoint != 0 || len(empty) != 0 {
		t.Fatalf("after reset checkpoint=%d grants=%d, want 0/0", checkpoint, len(empty))
	}
}
