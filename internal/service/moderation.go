package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"listingmod/internal/models"
	"listingmod/internal/policy"
)

// MaxBatchApprove caps the number of ids accepted by BatchApprove.
const MaxBatchApprove = 50

const recentHistoryLimit = 10

type BatchResult struct {
	ApprovedIDs []string          `json:"approved_ids"`
	SkippedIDs  []string          `json:"skipped_ids"`
	Failures    map[string]string `json:"failures,omitempty"`
}

type ModerationView struct {
	Listing          models.Listing              `json:"listing"`
	History          []models.ModerationLogEntry `json:"history"`
	AlreadyProcessed bool                        `json:"already_processed"`
	Warning          string                      `json:"warning,omitempty"`
}

type AuditCheck struct {
	ListingID  string        `json:"listing_id"`
	Stored     models.Status `json:"stored_status"`
	Replayed   models.Status `json:"replayed_status"`
	Entries    int           `json:"entries"`
	Consistent bool          `json:"consistent"`
	Problem    string        `json:"problem,omitempty"`
}

// DecideListing approves or rejects a pending listing on behalf of a
// moderator. req must be a policy.ApproveRequest or policy.RejectRequest.
func (s *Service) DecideListing(ctx context.Context, listingID, moderatorID string, role models.Role, req policy.Request) (models.Listing, error) {
	switch req.(type) {
	case policy.ApproveRequest, policy.RejectRequest:
	default:
		return models.Listing{}, fmt.Errorf("%w: decision must be approve or reject", models.ErrValidation)
	}
	return s.transition(ctx, listingID, policy.Actor{ID: moderatorID, Role: role}, req)
}

// BatchApprove approves each id independently. Per-item failures are
// collected in the result; only malformed input fails the whole call.
func (s *Service) BatchApprove(ctx context.Context, ids []string, moderatorID string, role models.Role) (BatchResult, error) {
	if len(ids) == 0 {
		return BatchResult{}, fmt.Errorf("%w: ids must be a non-empty list", models.ErrValidation)
	}
	if len(ids) > MaxBatchApprove {
		return BatchResult{}, fmt.Errorf("%w: at most %d ids per batch", models.ErrValidation, MaxBatchApprove)
	}
	if err := requireModerator(role); err != nil {
		return BatchResult{}, err
	}
	seen := make(map[string]bool, len(ids))
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		id, err := canonicalID("listing", id)
		if err != nil || seen[id] {
			continue
		}
		seen[id] = true
		valid = append(valid, id)
	}
	if len(valid) == 0 {
		return BatchResult{}, fmt.Errorf("%w: no valid listing ids", models.ErrValidation)
	}

	res := BatchResult{ApprovedIDs: []string{}, SkippedIDs: []string{}, Failures: map[string]string{}}
	for _, id := range valid {
		if _, err := s.DecideListing(ctx, id, moderatorID, role, policy.ApproveRequest{}); err != nil {
			res.SkippedIDs = append(res.SkippedIDs, id)
			res.Failures[id] = err.Error()
			continue
		}
		res.ApprovedIDs = append(res.ApprovedIDs, id)
	}
	s.log.WithFields(logrus.Fields{
		"moderator_id": moderatorID,
		"approved":     len(res.ApprovedIDs),
		"skipped":      len(res.SkippedIDs),
	}).Info("batch approve finished")
	return res, nil
}

// ModerationQueue lists pending listings in a stable order. It never writes.
func (s *Service) ModerationQueue(ctx context.Context, q models.QueueQuery) (models.QueuePage, error) {
	q.Page, q.Limit = normalizePage(q.Page, q.Limit, s.cfg.QueueDefaultLimit, s.cfg.QueueMaxLimit)
	if q.SortBy != "createdAt" && q.SortBy != "updatedAt" {
		q.SortBy = "createdAt"
	}
	q.Order = strings.ToUpper(strings.TrimSpace(q.Order))
	if q.Order != "DESC" {
		q.Order = "ASC"
	}
	items, total, err := s.st.ListPending(ctx, q)
	if err != nil {
		return models.QueuePage{}, err
	}
	return models.QueuePage{
		Items:      items,
		Total:      total,
		Page:       q.Page,
		Limit:      q.Limit,
		TotalPages: (total + q.Limit - 1) / q.Limit,
	}, nil
}

// ListingForModeration returns a listing with its most recent log entries.
func (s *Service) ListingForModeration(ctx context.Context, listingID string, role models.Role) (ModerationView, error) {
	if err := requireModerator(role); err != nil {
		return ModerationView{}, err
	}
	listingID, err := canonicalID("listing", listingID)
	if err != nil {
		return ModerationView{}, err
	}
	l, err := s.st.GetListing(ctx, listingID)
	if err != nil {
		return ModerationView{}, err
	}
	history, err := s.st.ListModerationLog(ctx, listingID, recentHistoryLimit)
	if err != nil {
		return ModerationView{}, err
	}
	v := ModerationView{Listing: l, History: history}
	if l.Status != models.StatusPending {
		v.AlreadyProcessed = true
		v.Warning = fmt.Sprintf("listing is already %s", l.Status)
	}
	return v, nil
}

// VerifyAuditTrail replays the moderation log and compares the result with
// the stored status.
func (s *Service) VerifyAuditTrail(ctx context.Context, listingID string, role models.Role) (AuditCheck, error) {
	if err := requireModerator(role); err != nil {
		return AuditCheck{}, err
	}
	listingID, err := canonicalID("listing", listingID)
	if err != nil {
		return AuditCheck{}, err
	}
	l, err := s.st.GetListing(ctx, listingID)
	if err != nil {
		return AuditCheck{}, err
	}
	entries, err := s.st.ListModerationLog(ctx, listingID, 0)
	if err != nil {
		return AuditCheck{}, err
	}
	c := AuditCheck{ListingID: l.ID, Stored: l.Status, Entries: len(entries)}
	c.Replayed, err = policy.Replay(entries)
	if err != nil {
		c.Problem = err.Error()
	} else if c.Replayed != c.Stored {
		c.Problem = fmt.Sprintf("log replays to %s but listing is %s", c.Replayed, c.Stored)
	}
	c.Consistent = c.Problem == ""
	if !c.Consistent {
		s.log.WithFields(logrus.Fields{"listing_id": l.ID, "problem": c.Problem}).Error("audit trail mismatch")
	}
	return c, nil
}

// ModerationStats summarizes moderation activity for period today, week,
// month or all.
func (s *Service) ModerationStats(ctx context.Context, period string, role models.Role) (models.ModerationStats, error) {
	if err := requireModerator(role); err != nil {
		return models.ModerationStats{}, err
	}
	if period == "" {
		period = "today"
	}
	now := s.now()
	var since *time.Time
	switch period {
	case "today":
		t := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		since = &t
	case "week":
		t := now.AddDate(0, 0, -7)
		since = &t
	case "month":
		t := now.AddDate(0, -1, 0)
		since = &t
	case "all":
	default:
		return models.ModerationStats{}, fmt.Errorf("%w: period must be one of today, week, month, all", models.ErrValidation)
	}

	counts, err := s.st.ListingStatusCounts(ctx, since)
	if err != nil {
		return models.ModerationStats{}, err
	}
	actions, err := s.st.CountModerationLog(ctx, since)
	if err != nil {
		return models.ModerationStats{}, err
	}
	mods, err := s.st.ModeratorActivity(ctx, since)
	if err != nil {
		return models.ModerationStats{}, err
	}
	return models.ModerationStats{
		Period:       period,
		Since:        since,
		Pending:      counts[models.StatusPending],
		Published:    counts[models.StatusPublished],
		Rejected:     counts[models.StatusRejected],
		Archived:     counts[models.StatusArchived],
		TotalActions: actions,
		Moderators:   mods,
	}, nil
}
