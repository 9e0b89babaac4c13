package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/louisbranch/contentstream/internal/services/content/storage"
)

// GetSubscription returns the record for id or storage.ErrNotFound.
func (s *Store) GetSubscription(ctx context.Context, id string) (storage.SubscriptionRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.SubscriptionRecord{}, err
	}
	var (
		rec     storage.SubscriptionRecord
		savedAt int64
	)
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT id, position, status, retry_attempt, last_error, last_saved_at
FROM subscriptions WHERE id = ?
`, strings.TrimSpace(id)).Scan(&rec.ID, &rec.Position, &rec.Status, &rec.RetryAttempt, &rec.LastError, &savedAt)
	if isNoRows(err) {
		return storage.SubscriptionRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.SubscriptionRecord{}, fmt.Errorf("get subscription: %w", err)
	}
	rec.LastSavedAt = fromMillis(savedAt)
	return rec, nil
}

// PutSubscription upserts a subscription record.
func (s *Store) PutSubscription(ctx context.Context, rec storage.SubscriptionRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	rec.ID = strings.TrimSpace(rec.ID)
	if rec.ID == "" {
		return fmt.Errorf("subscription id is required")
	}
	if rec.LastSavedAt.IsZero() {
		rec.LastSavedAt = s.now()
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO subscriptions (id, position, status, retry_attempt, last_error, last_saved_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	position = excluded.position,
	status = excluded.status,
	retry_attempt = excluded.retry_attempt,
	last_error = excluded.last_error,
	last_saved_at = excluded.last_saved_at
`, rec.ID, rec.Position, rec.Status, rec.RetryAttempt, rec.LastError, toMillis(rec.LastSavedAt))
	if err != nil {
		return fmt.Errorf("put subscription: %w", err)
	}
	return nil
}

// ListSubscriptions returns every record ordered by id.
func (s *Store) ListSubscriptions(ctx context.Context) ([]storage.SubscriptionRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, position, status, retry_attempt, last_error, last_saved_at
FROM subscriptions ORDER BY id
`)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var out []storage.SubscriptionRecord
	for rows.Next() {
		var (
			rec     storage.SubscriptionRecord
			savedAt int64
		)
		if err := rows.Scan(&rec.ID, &rec.Position, &rec.Status, &rec.RetryAttempt, &rec.LastError, &savedAt); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		rec.LastSavedAt = fromMillis(savedAt)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}
	return out, nil
}
