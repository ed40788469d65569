package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"listingmod/internal/models"
	"listingmod/internal/policy"
)

// transition is the single write path for listing status: load, decide,
// then write under the observed status and version. A lost race surfaces
// as models.ErrConflict and is not retried.
func (s *Service) transition(ctx context.Context, listingID string, actor policy.Actor, req policy.Request) (models.Listing, error) {
	listingID, err := canonicalID("listing", listingID)
	if err != nil {
		return models.Listing{}, err
	}
	l, err := s.st.GetListing(ctx, listingID)
	if err != nil {
		return models.Listing{}, err
	}
	v, err := policy.Decide(l, actor, req, s.now())
	if err != nil {
		return models.Listing{}, err
	}
	if v.Noop {
		return l, nil
	}
	entry := v.LogEntry(uuid.NewString())
	if v.Remove {
		err = s.st.DeleteListing(ctx, l, entry)
	} else {
		err = s.st.ConditionalUpdate(ctx, l, v.Next, entry)
	}
	if err != nil {
		return models.Listing{}, err
	}
	if v.StatusChanged() {
		s.logTransition(v, actor)
		s.publishTransition(v, actor)
	}
	return v.Next, nil
}

func (s *Service) CreateListing(ctx context.Context, owner models.Principal, in models.NewListing) (models.Listing, error) {
	if strings.TrimSpace(owner.UserID) == "" {
		return models.Listing{}, fmt.Errorf("%w: authentication required", models.ErrUnauthorized)
	}
	if err := policy.ValidateNewListing(in); err != nil {
		return models.Listing{}, err
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = "EUR"
	}
	now := s.now()
	l := models.Listing{
		ID:          uuid.NewString(),
		OwnerID:     owner.UserID,
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		PriceCents:  in.PriceCents,
		Currency:    currency,
		City:        strings.TrimSpace(in.City),
		Region:      strings.TrimSpace(in.Region),
		Status:      models.StatusPending,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.st.CreateListing(ctx, l); err != nil {
		return models.Listing{}, err
	}
	s.log.WithFields(logrus.Fields{"listing_id": l.ID, "owner_id": l.OwnerID}).Info("listing created")
	return l, nil
}

// SubmitListing applies an owner edit. Editing title, price or description
// of a published or rejected listing sends it back to pending.
func (s *Service) SubmitListing(ctx context.Context, listingID, ownerID string, patch models.ListingPatch) (models.Listing, error) {
	return s.transition(ctx, listingID, policy.Actor{ID: ownerID, Role: models.RoleUser}, policy.SubmitRequest{Patch: patch})
}

func (s *Service) DeleteListing(ctx context.Context, listingID, ownerID string) error {
	_, err := s.transition(ctx, listingID, policy.Actor{ID: ownerID, Role: models.RoleUser}, policy.DeleteRequest{})
	return err
}

func (s *Service) MarkSold(ctx context.Context, listingID, ownerID string) (models.Listing, error) {
	return s.transition(ctx, listingID, policy.Actor{ID: ownerID, Role: models.RoleUser}, policy.MarkSoldRequest{})
}

// ViewListing is the public read path. Non-published listings are visible
// to their owner and to moderators only, and only published listings count
// views.
func (s *Service) ViewListing(ctx context.Context, listingID string, viewer *models.Principal) (models.Listing, error) {
	listingID, err := canonicalID("listing", listingID)
	if err != nil {
		return models.Listing{}, err
	}
	l, err := s.st.GetListing(ctx, listingID)
	if err != nil {
		return models.Listing{}, err
	}
	if l.Status != models.StatusPublished {
		if viewer == nil || (viewer.UserID != l.OwnerID && !viewer.Role.CanModerate()) {
			return models.Listing{}, fmt.Errorf("%w: listing is not public", models.ErrUnauthorized)
		}
		return l, nil
	}
	counted, err := s.st.IncrementViews(ctx, l.ID)
	if err != nil {
		s.log.WithError(err).WithField("listing_id", l.ID).Warn("view count update failed")
		return l, nil
	}
	if counted {
		l.Views++
	}
	return l, nil
}

// ListingHistory returns the full moderation log of a listing to its owner
// or to a moderator. Moderators can still read the log of a deleted listing.
func (s *Service) ListingHistory(ctx context.Context, listingID string, viewer models.Principal) ([]models.ModerationLogEntry, error) {
	listingID, err := canonicalID("listing", listingID)
	if err != nil {
		return nil, err
	}
	l, err := s.st.GetListing(ctx, listingID)
	switch {
	case errors.Is(err, models.ErrNotFound) && viewer.Role.CanModerate():
	case err != nil:
		return nil, err
	case viewer.UserID != l.OwnerID && !viewer.Role.CanModerate():
		return nil, fmt.Errorf("%w: only the owner or a moderator may read the history", models.ErrUnauthorized)
	}
	entries, err := s.st.ListModerationLog(ctx, listingID, 0)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 && l.ID == "" {
		return nil, fmt.Errorf("%w: listing %s", models.ErrNotFound, listingID)
	}
	return entries, nil
}
