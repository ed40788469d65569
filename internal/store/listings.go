package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"listingmod/internal/models"
)

const listingColumns = `id,owner_id,title,description,price_cents,currency,city,region,status,version,` +
	`moderator_id,moderation_date,rejection_reason,featured,views,created_at,updated_at`

func (s *Store) CreateListing(ctx context.Context, l models.Listing) error {
	_, err := s.db.ExecContext(ctx, s.q(
		`INSERT INTO listings(`+listingColumns+`) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`),
		l.ID, l.OwnerID, l.Title, l.Description, l.PriceCents, l.Currency, l.City, l.Region, l.Status, l.Version,
		l.ModeratorID, l.ModerationDate, l.RejectionReason, l.Featured, l.Views, l.CreatedAt, l.UpdatedAt,
	)
	return err
}

func (s *Store) GetListing(ctx context.Context, id string) (models.Listing, error) {
	var l models.Listing
	err := s.db.GetContext(ctx, &l, s.q(`SELECT `+listingColumns+` FROM listings WHERE id=?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Listing{}, fmt.Errorf("%w: listing %s", models.ErrNotFound, id)
	}
	if err != nil {
		return models.Listing{}, err
	}
	return l, nil
}

// ConditionalUpdate writes next only if the stored row still has the status
// and version of expected, and appends entry in the same transaction. A
// failed append rolls the write back.
func (s *Store) ConditionalUpdate(ctx context.Context, expected, next models.Listing, entry *models.ModerationLogEntry) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.updateListingTx(ctx, tx, expected, next); err != nil {
			return err
		}
		if entry != nil {
			return s.insertLogTx(ctx, tx, *entry)
		}
		return nil
	})
}

// DeleteListing removes the listing under the same guard as ConditionalUpdate.
func (s *Store) DeleteListing(ctx context.Context, expected models.Listing, entry *models.ModerationLogEntry) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, s.q(`DELETE FROM listings WHERE id=? AND status=? AND version=?`),
			expected.ID, expected.Status, expected.Version)
		if err != nil {
			return err
		}
		if err := s.checkListingRows(ctx, tx, res, expected.ID); err != nil {
			return err
		}
		if entry != nil {
			return s.insertLogTx(ctx, tx, *entry)
		}
		return nil
	})
}

func (s *Store) updateListingTx(ctx context.Context, tx *sqlx.Tx, expected, next models.Listing) error {
	res, err := tx.ExecContext(ctx, s.q(
		`UPDATE listings SET title=?,description=?,price_cents=?,currency=?,city=?,region=?,status=?,version=?,`+
			`moderator_id=?,moderation_date=?,rejection_reason=?,featured=?,updated_at=? `+
			`WHERE id=? AND status=? AND version=?`),
		next.Title, next.Description, next.PriceCents, next.Currency, next.City, next.Region, next.Status, next.Version,
		next.ModeratorID, next.ModerationDate, next.RejectionReason, next.Featured, next.UpdatedAt,
		expected.ID, expected.Status, expected.Version,
	)
	if err != nil {
		return err
	}
	return s.checkListingRows(ctx, tx, res, expected.ID)
}

func (s *Store) checkListingRows(ctx context.Context, tx *sqlx.Tx, res sql.Result, id string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}
	var n int
	if err := tx.GetContext(ctx, &n, s.q(`SELECT COUNT(1) FROM listings WHERE id=?`), id); err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrListingGone, id)
	}
	return fmt.Errorf("%w: %s", ErrStaleListing, id)
}

// IncrementViews counts a public view. Only published listings are counted;
// the boolean reports whether the counter moved.
func (s *Store) IncrementViews(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE listings SET views=views+1 WHERE id=? AND status=?`), id, models.StatusPublished)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

var queueSortColumns = map[string]string{
	"createdAt": "created_at",
	"updatedAt": "updated_at",
}

// ListPending returns one page of pending listings ordered by the requested
// column with id as tie-breaker. q must already be normalized.
func (s *Store) ListPending(ctx context.Context, q models.QueueQuery) ([]models.Listing, int, error) {
	col, ok := queueSortColumns[q.SortBy]
	if !ok {
		col = "created_at"
	}
	order := "ASC"
	if q.Order == "DESC" {
		order = "DESC"
	}
	var total int
	if err := s.db.GetContext(ctx, &total, s.q(`SELECT COUNT(1) FROM listings WHERE status=?`), models.StatusPending); err != nil {
		return nil, 0, err
	}
	items := make([]models.Listing, 0, q.Limit)
	err := s.db.SelectContext(ctx, &items, s.q(
		`SELECT `+listingColumns+` FROM listings WHERE status=? ORDER BY `+col+` `+order+`, id `+order+` LIMIT ? OFFSET ?`),
		models.StatusPending, q.Limit, (q.Page-1)*q.Limit,
	)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ListingStatusCounts counts listings per status. Pending listings are
// counted by creation time, decided ones by moderation time.
func (s *Store) ListingStatusCounts(ctx context.Context, since *time.Time) (map[models.Status]int, error) {
	query := `SELECT status, COUNT(1) AS n FROM listings`
	var args []any
	if since != nil {
		query += ` WHERE (status=? AND created_at>=?) OR (status<>? AND moderation_date>=?)`
		args = append(args, models.StatusPending, *since, models.StatusPending, *since)
	}
	query += ` GROUP BY status`
	var rows []struct {
		Status models.Status `db:"status"`
		N      int           `db:"n"`
	}
	if err := s.db.SelectContext(ctx, &rows, s.q(query), args...); err != nil {
		return nil, err
	}
	out := make(map[models.Status]int, len(rows))
	for _, r := range rows {
		out[r.Status] = r.N
	}
	return out, nil
}
