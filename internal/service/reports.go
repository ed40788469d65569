package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"listingmod/internal/models"
	"listingmod/internal/notify"
	"listingmod/internal/policy"
	"listingmod/internal/store"
)

const (
	maxReportDetailsLength = 2000
	// archiveAttempts bounds how often accepting a report re-reads a listing
	// that keeps changing underneath it.
	archiveAttempts = 3
)

type ReportResolution struct {
	Report  models.Report   `json:"report"`
	Listing *models.Listing `json:"listing,omitempty"`
	Comment *models.Comment `json:"comment,omitempty"`
}

func (s *Service) CreateReport(ctx context.Context, reporter models.Principal, in models.ReportInput) (models.Report, error) {
	if strings.TrimSpace(reporter.UserID) == "" {
		return models.Report{}, fmt.Errorf("%w: authentication required", models.ErrUnauthorized)
	}
	listingID, commentID := trimmedID(in.ListingID), trimmedID(in.CommentID)
	if (listingID == nil) == (commentID == nil) {
		return models.Report{}, fmt.Errorf("%w: a report targets exactly one listing or comment", models.ErrValidation)
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return models.Report{}, fmt.Errorf("%w: report reason is required", models.ErrValidation)
	}
	if utf8.RuneCountInString(reason) > policy.MaxReasonLength {
		return models.Report{}, fmt.Errorf("%w: report reason exceeds %d characters", models.ErrValidation, policy.MaxReasonLength)
	}
	var details *string
	if in.Details != nil {
		if d := strings.TrimSpace(*in.Details); d != "" {
			if utf8.RuneCountInString(d) > maxReportDetailsLength {
				return models.Report{}, fmt.Errorf("%w: report details exceed %d characters", models.ErrValidation, maxReportDetailsLength)
			}
			details = &d
		}
	}

	if listingID != nil {
		id, err := canonicalID("listing", *listingID)
		if err != nil {
			return models.Report{}, err
		}
		listingID = &id
		l, err := s.st.GetListing(ctx, *listingID)
		if err != nil {
			return models.Report{}, err
		}
		if l.OwnerID == reporter.UserID {
			return models.Report{}, fmt.Errorf("%w: you cannot report your own listing", models.ErrUnauthorized)
		}
	} else {
		id, err := canonicalID("comment", *commentID)
		if err != nil {
			return models.Report{}, err
		}
		commentID = &id
		c, err := s.st.GetComment(ctx, *commentID)
		if err != nil {
			return models.Report{}, err
		}
		if c.UserID == reporter.UserID {
			return models.Report{}, fmt.Errorf("%w: you cannot report your own comment", models.ErrUnauthorized)
		}
	}

	r := models.Report{
		ID:         uuid.NewString(),
		ReporterID: reporter.UserID,
		ListingID:  listingID,
		CommentID:  commentID,
		Reason:     reason,
		Details:    details,
		Status:     models.ReportOpen,
		CreatedAt:  s.now(),
	}
	if err := s.st.CreateReport(ctx, r); err != nil {
		return models.Report{}, err
	}
	s.log.WithFields(logrus.Fields{"report_id": r.ID, "reporter_id": r.ReporterID, "target": r.TargetKey()}).Info("report created")
	return r, nil
}

// AcceptReport resolves a report. A reported listing is force-archived and a
// reported comment hidden, in the same transaction as the resolution.
func (s *Service) AcceptReport(ctx context.Context, reportID, handlerID string, role models.Role) (ReportResolution, error) {
	if err := requireModerator(role); err != nil {
		return ReportResolution{}, err
	}
	reportID, err := canonicalID("report", reportID)
	if err != nil {
		return ReportResolution{}, err
	}
	handler := policy.Actor{ID: handlerID, Role: role}
	for attempt := 1; ; attempt++ {
		res, retry, err := s.acceptOnce(ctx, reportID, handler)
		if err == nil {
			return res, nil
		}
		if !retry || attempt >= archiveAttempts {
			return ReportResolution{}, err
		}
		s.log.WithFields(logrus.Fields{"report_id": reportID, "attempt": attempt}).Debug("listing changed while accepting report, retrying")
	}
}

// acceptOnce reports retry=true when only the listing side of the write lost
// a race. Force-archive holds from any status, so a fresh read can succeed.
func (s *Service) acceptOnce(ctx context.Context, reportID string, handler policy.Actor) (ReportResolution, bool, error) {
	r, err := s.st.GetReport(ctx, reportID)
	if err != nil {
		return ReportResolution{}, false, err
	}
	if r.Status.Terminal() {
		return ReportResolution{}, false, fmt.Errorf("%w: report is already %s", models.ErrConflict, r.Status)
	}
	now := s.now()
	next := handled(r, models.ReportResolved, handler.ID, now)
	d := store.ReportDecision{Expected: r, Next: next}
	res := ReportResolution{Report: next}
	var verdict *policy.Verdict

	switch {
	case r.ListingID != nil:
		l, err := s.st.GetListing(ctx, *r.ListingID)
		if errors.Is(err, models.ErrNotFound) {
			break
		}
		if err != nil {
			return ReportResolution{}, false, err
		}
		v, err := policy.Decide(l, handler, policy.ForceArchiveRequest{ReportID: r.ID, Reason: r.Reason}, now)
		if err != nil {
			return ReportResolution{}, false, err
		}
		if v.Noop {
			res.Listing = &l
			break
		}
		d.Listing = &store.ListingChange{Expected: l, Next: v.Next, Entry: v.LogEntry(uuid.NewString())}
		res.Listing = &v.Next
		verdict = &v
	case r.CommentID != nil:
		c, err := s.st.GetComment(ctx, *r.CommentID)
		if errors.Is(err, models.ErrNotFound) {
			break
		}
		if err != nil {
			return ReportResolution{}, false, err
		}
		c.IsHidden = true
		d.HideComment = c.ID
		res.Comment = &c
	}

	if err := s.st.ApplyReportDecision(ctx, d); err != nil {
		retry := errors.Is(err, store.ErrStaleListing) || errors.Is(err, store.ErrListingGone)
		return ReportResolution{}, retry, err
	}
	if verdict != nil {
		s.logTransition(*verdict, handler)
		s.publishTransition(*verdict, handler)
	}
	s.reportHandled(r, next, handler.ID)
	return res, false, nil
}

// DismissReport closes a report without touching its target.
func (s *Service) DismissReport(ctx context.Context, reportID, handlerID string, role models.Role) (models.Report, error) {
	if err := requireModerator(role); err != nil {
		return models.Report{}, err
	}
	reportID, err := canonicalID("report", reportID)
	if err != nil {
		return models.Report{}, err
	}
	r, err := s.st.GetReport(ctx, reportID)
	if err != nil {
		return models.Report{}, err
	}
	if r.Status.Terminal() {
		return models.Report{}, fmt.Errorf("%w: report is already %s", models.ErrConflict, r.Status)
	}
	next := handled(r, models.ReportDismissed, handlerID, s.now())
	if err := s.st.ApplyReportDecision(ctx, store.ReportDecision{Expected: r, Next: next}); err != nil {
		return models.Report{}, err
	}
	s.reportHandled(r, next, handlerID)
	return next, nil
}

// UpdateReportStatus moves a report to any status. Resolved and dismissed
// behave as AcceptReport and DismissReport; terminal reports cannot change.
func (s *Service) UpdateReportStatus(ctx context.Context, reportID, handlerID string, role models.Role, status models.ReportStatus) (ReportResolution, error) {
	if err := requireModerator(role); err != nil {
		return ReportResolution{}, err
	}
	if !status.Valid() {
		return ReportResolution{}, fmt.Errorf("%w: unknown report status %q", models.ErrValidation, status)
	}
	switch status {
	case models.ReportResolved:
		return s.AcceptReport(ctx, reportID, handlerID, role)
	case models.ReportDismissed:
		r, err := s.DismissReport(ctx, reportID, handlerID, role)
		if err != nil {
			return ReportResolution{}, err
		}
		return ReportResolution{Report: r}, nil
	}

	reportID, err := canonicalID("report", reportID)
	if err != nil {
		return ReportResolution{}, err
	}
	r, err := s.st.GetReport(ctx, reportID)
	if err != nil {
		return ReportResolution{}, err
	}
	if r.Status.Terminal() {
		return ReportResolution{}, fmt.Errorf("%w: report is already %s", models.ErrConflict, r.Status)
	}
	next := r
	next.Status = status
	next.HandledAt = nil
	next.HandledBy = nil
	if status == models.ReportInProgress {
		h := handlerID
		next.HandledBy = &h
	}
	if next.Status == r.Status && equalPtr(next.HandledBy, r.HandledBy) {
		return ReportResolution{Report: r}, nil
	}
	if err := s.st.ApplyReportDecision(ctx, store.ReportDecision{Expected: r, Next: next}); err != nil {
		return ReportResolution{}, err
	}
	s.reportHandled(r, next, handlerID)
	return ReportResolution{Report: next}, nil
}

// GetReport returns a report to a moderator or to its reporter.
func (s *Service) GetReport(ctx context.Context, reportID string, viewer models.Principal) (models.Report, error) {
	reportID, err := canonicalID("report", reportID)
	if err != nil {
		return models.Report{}, err
	}
	r, err := s.st.GetReport(ctx, reportID)
	if err != nil {
		return models.Report{}, err
	}
	if r.ReporterID != viewer.UserID && !viewer.Role.CanModerate() {
		return models.Report{}, fmt.Errorf("%w: report belongs to another user", models.ErrUnauthorized)
	}
	return r, nil
}

func (s *Service) ListReports(ctx context.Context, q models.ReportQuery, role models.Role) ([]models.Report, int, error) {
	if err := requireModerator(role); err != nil {
		return nil, 0, err
	}
	if q.Status != "" && !q.Status.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown report status %q", models.ErrValidation, q.Status)
	}
	q.Page, q.Limit = normalizePage(q.Page, q.Limit, s.cfg.QueueDefaultLimit, s.cfg.QueueMaxLimit)
	return s.st.ListReports(ctx, q)
}

func (s *Service) MyReports(ctx context.Context, reporterID string, page, limit int) ([]models.Report, int, error) {
	if strings.TrimSpace(reporterID) == "" {
		return nil, 0, fmt.Errorf("%w: authentication required", models.ErrUnauthorized)
	}
	page, limit = normalizePage(page, limit, s.cfg.QueueDefaultLimit, s.cfg.QueueMaxLimit)
	return s.st.ListReports(ctx, models.ReportQuery{ReporterID: reporterID, Page: page, Limit: limit})
}

// SetCommentHidden flips the visibility of a comment.
func (s *Service) SetCommentHidden(ctx context.Context, commentID string, hidden bool, role models.Role) (models.Comment, error) {
	if err := requireModerator(role); err != nil {
		return models.Comment{}, err
	}
	commentID, err := canonicalID("comment", commentID)
	if err != nil {
		return models.Comment{}, err
	}
	if err := s.st.SetCommentHidden(ctx, commentID, hidden); err != nil {
		return models.Comment{}, err
	}
	return s.st.GetComment(ctx, commentID)
}

func (s *Service) reportHandled(before, after models.Report, handlerID string) {
	e := notify.Event{
		Kind:     notify.KindReportHandled,
		ReportID: after.ID,
		ActorID:  handlerID,
		From:     string(before.Status),
		To:       string(after.Status),
		Reason:   after.Reason,
		At:       s.now(),
	}
	if after.ListingID != nil {
		e.ListingID = *after.ListingID
	}
	s.log.WithFields(logrus.Fields{
		"report_id":  after.ID,
		"handler_id": handlerID,
		"from":       e.From,
		"to":         e.To,
	}).Info("report status changed")
	s.events.Publish(e)
}

func handled(r models.Report, status models.ReportStatus, handlerID string, at time.Time) models.Report {
	h, ts := handlerID, at
	r.Status = status
	r.HandledBy = &h
	r.HandledAt = &ts
	return r
}

func trimmedID(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	if v == "" {
		return nil
	}
	return &v
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
