package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/louisbranch/contentstream/internal/platform/pagination"
	"github.com/louisbranch/contentstream/internal/services/content/core/filter"
	"github.com/louisbranch/contentstream/internal/services/content/domain/event"
	"github.com/louisbranch/contentstream/internal/services/content/storage"
)

const eventColumns = `seq, stream, version, type, timestamp, payload_json, command_id, command_type,
	command_payload_json, initiating_user_id, correlation_id, causation_id`

// AppendEvents appends events to stream atomically under the expected version.
func (s *Store) AppendEvents(ctx context.Context, stream string, expected storage.ExpectedVersion, events []event.Event) ([]event.Event, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	stream = strings.TrimSpace(stream)
	if stream == "" {
		return nil, event.ErrStreamRequired
	}
	prepared := make([]event.Event, len(events))
	for i, evt := range events {
		evt.Stream = stream
		if err := evt.Validate(); err != nil {
			return nil, err
		}
		if evt.Timestamp.IsZero() {
			evt.Timestamp = s.now().UTC()
		}
		prepared[i] = evt
	}

	var stored []event.Event
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		version, err := streamVersion(ctx, tx, stream)
		if err != nil {
			return err
		}
		if err := expected.Check(stream, version); err != nil {
			return err
		}
		if len(prepared) == 0 {
			return nil
		}
		stored = make([]event.Event, 0, len(prepared))
		for _, evt := range prepared {
			version++
			evt.Version = version
			res, err := tx.ExecContext(ctx, `
INSERT INTO events (
	stream, category, version, type, timestamp, payload_json, command_id, command_type,
	command_payload_json, initiating_user_id, correlation_id, causation_id
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
				evt.Stream,
				storage.StreamCategory(evt.Stream),
				evt.Version,
				string(evt.Type),
				toMillis(evt.Timestamp),
				evt.PayloadJSON,
				evt.Metadata.CommandID,
				evt.Metadata.CommandType,
				evt.Metadata.CommandPayloadJSON,
				evt.Metadata.InitiatingUserID,
				evt.Metadata.CorrelationID,
				evt.Metadata.CausationID,
			)
			if isUniqueViolation(err) {
				return &storage.ConcurrencyError{Stream: stream, Expected: expected, Actual: version - 1}
			}
			if err != nil {
				return fmt.Errorf("insert event: %w", err)
			}
			seq, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("event seq: %w", err)
			}
			evt.Seq = seq
			evt.Timestamp = fromMillis(toMillis(evt.Timestamp))
			stored = append(stored, evt)
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO streams (name, category, version) VALUES (?, ?, ?)
ON CONFLICT(name) DO UPDATE SET version = excluded.version
`, stream, storage.StreamCategory(stream), version)
		if err != nil {
			return fmt.Errorf("update stream version: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func streamVersion(ctx context.Context, q queryer, stream string) (int64, error) {
	var version int64
	err := q.QueryRowContext(ctx, `SELECT version FROM streams WHERE name = ?`, stream).Scan(&version)
	if isNoRows(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read stream version: %w", err)
	}
	return version, nil
}

// ReadStream returns events of stream after afterVersion.
func (s *Store) ReadStream(ctx context.Context, stream string, afterVersion int64, limit int) ([]event.Event, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	query := `SELECT ` + eventColumns + ` FROM events WHERE stream = ? AND version > ? ORDER BY version`
	args := []any{strings.TrimSpace(stream), afterVersion}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryEvents(ctx, query, args...)
}

// ReadAll returns events in global sequence order.
func (s *Store) ReadAll(ctx context.Context, req storage.ReadAllRequest) ([]event.Event, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	f, err := filter.Parse(req.Filter)
	if err != nil {
		return nil, err
	}
	clauses := []string{"seq > ?"}
	args := []any{req.AfterSeq}
	if req.Category != "" {
		clauses = append(clauses, "category = ?")
		args = append(args, req.Category)
	}
	if cond := f.SQL(); cond.Clause != "" {
		clauses = append(clauses, cond.Clause)
		args = append(args, cond.Params...)
	}
	args = append(args, pagination.ClampPageSize(req.Limit, storage.ReadPageSize))
	query := `SELECT ` + eventColumns + ` FROM events WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY seq LIMIT ?`
	return s.queryEvents(ctx, query, args...)
}

// StreamVersion returns the last version of stream.
func (s *Store) StreamVersion(ctx context.Context, stream string) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	return streamVersion(ctx, s.sqlDB, strings.TrimSpace(stream))
}

// LatestSeq returns the highest global sequence.
func (s *Store) LatestSeq(ctx context.Context) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	var seq sql.NullInt64
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT MAX(seq) FROM events`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("latest seq: %w", err)
	}
	return seq.Int64, nil
}

// ListStreams lists streams of category ordered by name.
func (s *Store) ListStreams(ctx context.Context, category string) ([]storage.StreamInfo, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	query := `SELECT name, version FROM streams`
	var args []any
	if category != "" {
		query += ` WHERE category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY name`
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list streams: %w", err)
	}
	defer rows.Close()

	var out []storage.StreamInfo
	for rows.Next() {
		var info storage.StreamInfo
		if err := rows.Scan(&info.Name, &info.Version); err != nil {
			return nil, fmt.Errorf("scan stream: %w", err)
		}
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate streams: %w", err)
	}
	return out, nil
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]event.Event, error) {
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []event.Event
	for rows.Next() {
		var (
			evt       event.Event
			eventType string
			timestamp int64
		)
		if err := rows.Scan(
			&evt.Seq,
			&evt.Stream,
			&evt.Version,
			&eventType,
			&timestamp,
			&evt.PayloadJSON,
			&evt.Metadata.CommandID,
			&evt.Metadata.CommandType,
			&evt.Metadata.CommandPayloadJSON,
			&evt.Metadata.InitiatingUserID,
			&evt.Metadata.CorrelationID,
			&evt.Metadata.CausationID,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		evt.Type = event.Type(eventType)
		evt.Timestamp = fromMillis(timestamp)
		out = append(out, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}
