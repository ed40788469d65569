package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"listingmod/internal/models"
)

const reportColumns = `id,reporter_id,listing_id,comment_id,reason,details,status,handled_by,handled_at,created_at`

// ListingChange is a guarded listing write with its optional log entry.
type ListingChange struct {
	Expected models.Listing
	Next     models.Listing
	Entry    *models.ModerationLogEntry
}

// ReportDecision moves a report from Expected to Next and applies the side
// effects on its target in one transaction.
type ReportDecision struct {
	Expected    models.Report
	Next        models.Report
	Listing     *ListingChange
	HideComment string
}

// activeKey is unique among open and in-progress reports, which limits a
// reporter to one active report per target.
func activeKey(r models.Report) *string {
	if r.Status.Terminal() {
		return nil
	}
	k := r.ReporterID + "|" + r.TargetKey()
	return &k
}

func (s *Store) CreateReport(ctx context.Context, r models.Report) error {
	_, err := s.db.ExecContext(ctx, s.q(
		`INSERT INTO reports(`+reportColumns+`,active_key) VALUES(?,?,?,?,?,?,?,?,?,?,?)`),
		r.ID, r.ReporterID, r.ListingID, r.CommentID, r.Reason, r.Details, r.Status, r.HandledBy, r.HandledAt, r.CreatedAt,
		activeKey(r),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: an active report for this target already exists", models.ErrConflict)
	}
	return err
}

func (s *Store) GetReport(ctx context.Context, id string) (models.Report, error) {
	var r models.Report
	err := s.db.GetContext(ctx, &r, s.q(`SELECT `+reportColumns+` FROM reports WHERE id=?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Report{}, fmt.Errorf("%w: report %s", models.ErrNotFound, id)
	}
	if err != nil {
		return models.Report{}, err
	}
	return r, nil
}

func (s *Store) ListReports(ctx context.Context, q models.ReportQuery) ([]models.Report, int, error) {
	where := ` WHERE 1=1`
	var args []any
	if q.Status != "" {
		where += ` AND status=?`
		args = append(args, q.Status)
	}
	if q.ReporterID != "" {
		where += ` AND reporter_id=?`
		args = append(args, q.ReporterID)
	}
	var total int
	if err := s.db.GetContext(ctx, &total, s.q(`SELECT COUNT(1) FROM reports`+where), args...); err != nil {
		return nil, 0, err
	}
	items := make([]models.Report, 0, q.Limit)
	err := s.db.SelectContext(ctx, &items, s.q(
		`SELECT `+reportColumns+` FROM reports`+where+` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`),
		append(args, q.Limit, (q.Page-1)*q.Limit)...,
	)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ApplyReportDecision commits a report status change together with the
// listing archive or comment hide it implies. Losing the race on the report
// yields models.ErrConflict; losing it on the listing yields ErrStaleListing.
func (s *Store) ApplyReportDecision(ctx context.Context, d ReportDecision) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if d.Listing != nil {
			if err := s.updateListingTx(ctx, tx, d.Listing.Expected, d.Listing.Next); err != nil {
				return err
			}
			if d.Listing.Entry != nil {
				if err := s.insertLogTx(ctx, tx, *d.Listing.Entry); err != nil {
					return err
				}
			}
		}
		if d.HideComment != "" {
			if err := s.setCommentHiddenTx(ctx, tx, d.HideComment, true); err != nil {
				return err
			}
		}
		return s.updateReportTx(ctx, tx, d.Expected, d.Next)
	})
}

func (s *Store) updateReportTx(ctx context.Context, tx *sqlx.Tx, expected, next models.Report) error {
	res, err := tx.ExecContext(ctx, s.q(
		`UPDATE reports SET status=?,handled_by=?,handled_at=?,active_key=? WHERE id=? AND status=?`),
		next.Status, next.HandledBy, next.HandledAt, activeKey(next), expected.ID, expected.Status,
	)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		var n int
		if err := tx.GetContext(ctx, &n, s.q(`SELECT COUNT(1) FROM reports WHERE id=?`), expected.ID); err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: report %s", models.ErrNotFound, expected.ID)
		}
		return fmt.Errorf("%w: report %s was handled concurrently", models.ErrConflict, expected.ID)
	}
	return nil
}
