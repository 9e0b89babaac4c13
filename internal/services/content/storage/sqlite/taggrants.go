package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/louisbranch/contentstream/internal/services/content/storage"
)

// ApplyTagGrantChanges applies changes and advances the checkpoint in one
// transaction unless seq was already applied.
func (s *Store) ApplyTagGrantChanges(ctx context.Context, projection string, seq int64, changes storage.TagGrantChanges) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	applied := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		checkpoint, err := projectionCheckpoint(ctx, tx, projection)
		if err != nil {
			return err
		}
		if seq <= checkpoint {
			return nil
		}
		if fork := changes.Fork; fork != nil {
			_, err := tx.ExecContext(ctx, `
INSERT INTO tag_grants (content_stream_id, aggregate_id, tag, point_hash, point, granted_version, revoked_version)
SELECT ?, aggregate_id, tag, point_hash, point, 0, 0
FROM tag_grants
WHERE content_stream_id = ?
	AND granted_version <= ?
	AND (revoked_version = 0 OR revoked_version > ?)
ORDER BY id
`, fork.ContentStreamID, fork.SourceID, fork.SourceVersion, fork.SourceVersion)
			if err != nil {
				return fmt.Errorf("fork tag grants: %w", err)
			}
		}
		for _, rev := range changes.Revocations {
			_, err := tx.ExecContext(ctx, `
UPDATE tag_grants SET revoked_version = ?
WHERE content_stream_id = ? AND aggregate_id = ? AND tag = ? AND point_hash = ? AND revoked_version = 0
`, rev.Version, rev.ContentStreamID, rev.AggregateID, rev.Tag, rev.PointHash)
			if err != nil {
				return fmt.Errorf("revoke tag grant: %w", err)
			}
		}
		for _, grant := range changes.Grants {
			_, err := tx.ExecContext(ctx, `
INSERT INTO tag_grants (content_stream_id, aggregate_id, tag, point_hash, point, granted_version, revoked_version)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, grant.ContentStreamID, grant.AggregateID, grant.Tag, grant.PointHash, grant.Point, grant.GrantedVersion, grant.RevokedVersion)
			if err != nil {
				return fmt.Errorf("insert tag grant: %w", err)
			}
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO projection_checkpoints (projection, seq, updated_at) VALUES (?, ?, ?)
ON CONFLICT(projection) DO UPDATE SET seq = excluded.seq, updated_at = excluded.updated_at
`, projection, seq, toMillis(s.now()))
		if err != nil {
			return fmt.Errorf("save checkpoint: %w", err)
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// ProjectionCheckpoint returns the last applied sequence of projection.
func (s *Store) ProjectionCheckpoint(ctx context.Context, projection string) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	return projectionCheckpoint(ctx, s.sqlDB, projection)
}

func projectionCheckpoint(ctx context.Context, q queryer, projection string) (int64, error) {
	var seq int64
	err := q.QueryRowContext(ctx, `SELECT seq FROM projection_checkpoints WHERE projection = ?`, projection).Scan(&seq)
	if isNoRows(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read checkpoint: %w", err)
	}
	return seq, nil
}

// ListTagGrants returns grants matching query.
func (s *Store) ListTagGrants(ctx context.Context, query storage.TagGrantQuery) ([]storage.TagGrant, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	var (
		clauses []string
		args    []any
	)
	if query.ContentStreamID != "" {
		clauses = append(clauses, "content_stream_id = ?")
		args = append(args, query.ContentStreamID)
	}
	if len(query.AggregateIDs) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(query.AggregateIDs)), ",")
		clauses = append(clauses, "aggregate_id IN ("+placeholders+")")
		for _, id := range query.AggregateIDs {
			args = append(args, id)
		}
	}
	if query.PointHash != "" {
		clauses = append(clauses, "point_hash = ?")
		args = append(args, query.PointHash)
	}
	if query.Tag != "" {
		clauses = append(clauses, "tag = ?")
		args = append(args, query.Tag)
	}
	if query.ActiveOnly {
		clauses = append(clauses, "revoked_version = 0")
	}
	sqlQuery := `SELECT content_stream_id, aggregate_id, tag, point_hash, point, granted_version, revoked_version FROM tag_grants`
	if len(clauses) > 0 {
		sqlQuery += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	sqlQuery += ` ORDER BY aggregate_id, tag, point_hash, granted_version, id`

	rows, err := s.sqlDB.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("list tag grants: %w", err)
	}
	defer rows.Close()

	var out []storage.TagGrant
	for rows.Next() {
		var g storage.TagGrant
		if err := rows.Scan(&g.ContentStreamID, &g.AggregateID, &g.Tag, &g.PointHash, &g.Point, &g.GrantedVersion, &g.RevokedVersion); err != nil {
			return nil, fmt.Errorf("scan tag grant: %w", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tag grants: %w", err)
	}
	return out, nil
}

// ResetTagGrants drops every grant and the projection checkpoint.
func (s *Store) ResetTagGrants(ctx context.Context, projection string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM tag_grants`); err != nil {
			return fmt.Errorf("delete tag grants: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM projection_checkpoints WHERE projection = ?`, projection); err != nil {
			return fmt.Errorf("delete checkpoint: %w", err)
		}
		return nil
	})
}
