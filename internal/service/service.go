package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"listingmod/internal/config"
	"listingmod/internal/logging"
	"listingmod/internal/models"
	"listingmod/internal/notify"
	"listingmod/internal/policy"
	"listingmod/internal/store"
)

const (
	defaultQueueLimit = 20
	maxQueueLimit     = 100
)

// EventPublisher receives committed changes. Publish must not block.
type EventPublisher interface {
	Publish(e notify.Event) bool
}

type nopPublisher struct{}

func (nopPublisher) Publish(notify.Event) bool { return false }

// Repository is the persistence the service needs. *store.Store implements it.
type Repository interface {
	Ping(ctx context.Context) error

	CreateListing(ctx context.Context, l models.Listing) error
	GetListing(ctx context.Context, id string) (models.Listing, error)
	ConditionalUpdate(ctx context.Context, expected, next models.Listing, entry *models.ModerationLogEntry) error
	DeleteListing(ctx context.Context, expected models.Listing, entry *models.ModerationLogEntry) error
	IncrementViews(ctx context.Context, id string) (bool, error)
	ListPending(ctx context.Context, q models.QueueQuery) ([]models.Listing, int, error)
	ListingStatusCounts(ctx context.Context, since *time.Time) (map[models.Status]int, error)

	ListModerationLog(ctx context.Context, listingID string, limit int) ([]models.ModerationLogEntry, error)
	CountModerationLog(ctx context.Context, since *time.Time) (int, error)
	ModeratorActivity(ctx context.Context, since *time.Time) ([]models.ModeratorActivity, error)

	CreateReport(ctx context.Context, r models.Report) error
	GetReport(ctx context.Context, id string) (models.Report, error)
	ListReports(ctx context.Context, q models.ReportQuery) ([]models.Report, int, error)
	ApplyReportDecision(ctx context.Context, d store.ReportDecision) error

	GetComment(ctx context.Context, id string) (models.Comment, error)
	SetCommentHidden(ctx context.Context, id string, hidden bool) error
}

var _ Repository = (*store.Store)(nil)

type Service struct {
	cfg    config.Config
	st     Repository
	events EventPublisher
	log    logrus.FieldLogger
	now    func() time.Time
}

func New(cfg config.Config, st Repository, events EventPublisher, log logrus.FieldLogger) *Service {
	if events == nil {
		events = nopPublisher{}
	}
	if log == nil {
		log = logging.Discard()
	}
	if cfg.QueueDefaultLimit <= 0 {
		cfg.QueueDefaultLimit = defaultQueueLimit
	}
	if cfg.QueueMaxLimit < cfg.QueueDefaultLimit {
		cfg.QueueMaxLimit = maxQueueLimit
	}
	return &Service{
		cfg:    cfg,
		st:     st,
		events: events,
		log:    log,
		now:    func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

func (s *Service) Ready(ctx context.Context) error {
	return s.st.Ping(ctx)
}

// canonicalID parses id in any form uuid.Parse accepts and returns the
// lowercase hyphenated form ids are stored in.
func canonicalID(kind, id string) (string, error) {
	u, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return "", fmt.Errorf("%w: malformed %s id %q", models.ErrValidation, kind, id)
	}
	return u.String(), nil
}

func requireModerator(role models.Role) error {
	if !role.CanModerate() {
		return fmt.Errorf("%w: moderator or admin role required", models.ErrUnauthorized)
	}
	return nil
}

func (s *Service) logTransition(v policy.Verdict, actor policy.Actor) {
	s.log.WithFields(logrus.Fields{
		"listing_id": v.Next.ID,
		"actor_id":   actor.ID,
		"action":     string(v.Action),
		"from":       string(v.From),
		"to":         string(v.To),
		"version":    v.Next.Version,
	}).Info("listing transition")
}

func (s *Service) publishTransition(v policy.Verdict, actor policy.Actor) {
	e := notify.Event{
		Kind:      notify.KindListingTransition,
		ListingID: v.Next.ID,
		OwnerID:   v.Next.OwnerID,
		ActorID:   actor.ID,
		From:      string(v.From),
		To:        string(v.To),
		At:        v.Next.UpdatedAt,
	}
	if v.Reason != nil {
		e.Reason = *v.Reason
	}
	s.events.Publish(e)
}

func normalizePage(page, limit, def, max int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	return page, limit
}
