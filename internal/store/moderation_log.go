package store

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"listingmod/internal/models"
)

const logColumns = `id,listing_id,moderator_id,old_status,new_status,reason,version,changed_at`

func (s *Store) insertLogTx(ctx context.Context, tx *sqlx.Tx, e models.ModerationLogEntry) error {
	_, err := tx.ExecContext(ctx, s.q(`INSERT INTO moderation_logs(`+logColumns+`) VALUES(?,?,?,?,?,?,?,?)`),
		e.ID, e.ListingID, e.ModeratorID, e.OldStatus, e.NewStatus, e.Reason, e.Version, e.ChangedAt,
	)
	return err
}

// ListModerationLog returns a listing's entries oldest first. With limit > 0
// only the most recent limit entries are returned.
func (s *Store) ListModerationLog(ctx context.Context, listingID string, limit int) ([]models.ModerationLogEntry, error) {
	out := []models.ModerationLogEntry{}
	if limit <= 0 {
		err := s.db.SelectContext(ctx, &out, s.q(
			`SELECT `+logColumns+` FROM moderation_logs WHERE listing_id=? ORDER BY version ASC`), listingID)
		return out, err
	}
	err := s.db.SelectContext(ctx, &out, s.q(
		`SELECT `+logColumns+` FROM moderation_logs WHERE listing_id=? ORDER BY version DESC LIMIT ?`), listingID, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *Store) CountModerationLog(ctx context.Context, since *time.Time) (int, error) {
	query := `SELECT COUNT(1) FROM moderation_logs`
	var args []any
	if since != nil {
		query += ` WHERE changed_at>=?`
		args = append(args, *since)
	}
	var n int
	err := s.db.GetContext(ctx, &n, s.q(query), args...)
	return n, err
}

// ModeratorActivity counts log entries per moderator. Owner-triggered
// entries carry no moderator and are excluded.
func (s *Store) ModeratorActivity(ctx context.Context, since *time.Time) ([]models.ModeratorActivity, error) {
	query := `SELECT moderator_id, COUNT(1) AS actions FROM moderation_logs WHERE moderator_id IS NOT NULL`
	var args []any
	if since != nil {
		query += ` AND changed_at>=?`
		args = append(args, *since)
	}
	query += ` GROUP BY moderator_id ORDER BY actions DESC, moderator_id ASC`
	out := []models.ModeratorActivity{}
	err := s.db.SelectContext(ctx, &out, s.q(query), args...)
	return out, err
}
