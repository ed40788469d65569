package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"listingmod/internal/models"
)

func (s *Store) CreateComment(ctx context.Context, c models.Comment) error {
	_, err := s.db.ExecContext(ctx, s.q(
		`INSERT INTO comments(id,listing_id,user_id,content,is_hidden,created_at) VALUES(?,?,?,?,?,?)`),
		c.ID, c.ListingID, c.UserID, c.Content, c.IsHidden, c.CreatedAt,
	)
	return err
}

func (s *Store) GetComment(ctx context.Context, id string) (models.Comment, error) {
	var c models.Comment
	err := s.db.GetContext(ctx, &c, s.q(`SELECT id,listing_id,user_id,content,is_hidden,created_at FROM comments WHERE id=?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Comment{}, fmt.Errorf("%w: comment %s", models.ErrNotFound, id)
	}
	if err != nil {
		return models.Comment{}, err
	}
	return c, nil
}

func (s *Store) SetCommentHidden(ctx context.Context, id string, hidden bool) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		return s.setCommentHiddenTx(ctx, tx, id, hidden)
	})
}

func (s *Store) setCommentHiddenTx(ctx context.Context, tx *sqlx.Tx, id string, hidden bool) error {
	res, err := tx.ExecContext(ctx, s.q(`UPDATE comments SET is_hidden=? WHERE id=?`), hidden, id)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		// MySQL reports zero affected rows when the value is unchanged.
		var n int
		if err := tx.GetContext(ctx, &n, s.q(`SELECT COUNT(1) FROM comments WHERE id=?`), id); err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: comment %s", models.ErrNotFound, id)
		}
	}
	return nil
}
