package models

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusPublished Status = "published"
	StatusRejected  Status = "rejected"
	StatusSold      Status = "sold"
	StatusArchived  Status = "archived"

	// StatusRemoved only appears as the new status of a delete entry in the
	// moderation log; no stored listing ever carries it.
	StatusRemoved Status = "removed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPublished, StatusRejected, StatusSold, StatusArchived:
		return true
	}
	return false
}

// EditTerminal reports whether owners can no longer edit or delete the listing.
func (s Status) EditTerminal() bool {
	return s == StatusSold || s == StatusArchived
}

type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleModerator, RoleAdmin:
		return true
	}
	return false
}

func (r Role) CanModerate() bool {
	return r == RoleModerator || r == RoleAdmin
}

type Principal struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

type Listing struct {
	ID              string     `db:"id" json:"id"`
	OwnerID         string     `db:"owner_id" json:"owner_id"`
	Title           string     `db:"title" json:"title"`
	Description     string     `db:"description" json:"description"`
	PriceCents      int64      `db:"price_cents" json:"price_cents"`
	Currency        string     `db:"currency" json:"currency"`
	City            string     `db:"city" json:"city"`
	Region          string     `db:"region" json:"region"`
	Status          Status     `db:"status" json:"status"`
	Version         int64      `db:"version" json:"version"`
	ModeratorID     *string    `db:"moderator_id" json:"moderator_id,omitempty"`
	ModerationDate  *time.Time `db:"moderation_date" json:"moderation_date,omitempty"`
	RejectionReason *string    `db:"rejection_reason" json:"rejection_reason,omitempty"`
	Featured        bool       `db:"featured" json:"featured"`
	Views           int64      `db:"views" json:"views"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// NewListing is the owner-supplied content of a listing being created.
type NewListing struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	PriceCents  int64  `json:"price_cents"`
	Currency    string `json:"currency"`
	City        string `json:"city"`
	Region      string `json:"region"`
}

// ListingPatch is a partial owner edit. Nil fields are left untouched.
type ListingPatch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	PriceCents  *int64  `json:"price_cents,omitempty"`
	Currency    *string `json:"currency,omitempty"`
	City        *string `json:"city,omitempty"`
	Region      *string `json:"region,omitempty"`
}

func (p ListingPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.PriceCents == nil &&
		p.Currency == nil && p.City == nil && p.Region == nil
}

// TouchesCore reports whether the patch edits a field that requires the
// listing to be reviewed again.
func (p ListingPatch) TouchesCore() bool {
	return p.Title != nil || p.Description != nil || p.PriceCents != nil
}

type ModerationLogEntry struct {
	ID          string    `db:"id" json:"id"`
	ListingID   string    `db:"listing_id" json:"listing_id"`
	ModeratorID *string   `db:"moderator_id" json:"moderator_id"`
	OldStatus   Status    `db:"old_status" json:"old_status"`
	NewStatus   Status    `db:"new_status" json:"new_status"`
	Reason      *string   `db:"reason" json:"reason,omitempty"`
	Version     int64     `db:"version" json:"version"`
	ChangedAt   time.Time `db:"changed_at" json:"changed_at"`
}

type ReportStatus string

const (
	ReportOpen       ReportStatus = "open"
	ReportInProgress ReportStatus = "in_progress"
	ReportResolved   ReportStatus = "resolved"
	ReportDismissed  ReportStatus = "dismissed"
)

func (s ReportStatus) Valid() bool {
	switch s {
	case ReportOpen, ReportInProgress, ReportResolved, ReportDismissed:
		return true
	}
	return false
}

func (s ReportStatus) Terminal() bool {
	return s == ReportResolved || s == ReportDismissed
}

type Report struct {
	ID         string       `db:"id" json:"id"`
	ReporterID string       `db:"reporter_id" json:"reporter_id"`
	ListingID  *string      `db:"listing_id" json:"listing_id,omitempty"`
	CommentID  *string      `db:"comment_id" json:"comment_id,omitempty"`
	Reason     string       `db:"reason" json:"reason"`
	Details    *string      `db:"details" json:"details,omitempty"`
	Status     ReportStatus `db:"status" json:"status"`
	HandledBy  *string      `db:"handled_by" json:"handled_by,omitempty"`
	HandledAt  *time.Time   `db:"handled_at" json:"handled_at,omitempty"`
	CreatedAt  time.Time    `db:"created_at" json:"created_at"`
}

// TargetKey identifies the reported object, e.g. "listing:<id>".
func (r Report) TargetKey() string {
	if r.ListingID != nil {
		return "listing:" + *r.ListingID
	}
	if r.CommentID != nil {
		return "comment:" + *r.CommentID
	}
	return ""
}

type ReportInput struct {
	ListingID *string `json:"listing_id,omitempty"`
	CommentID *string `json:"comment_id,omitempty"`
	Reason    string  `json:"reason"`
	Details   *string `json:"details,omitempty"`
}

type Comment struct {
	ID        string    `db:"id" json:"id"`
	ListingID string    `db:"listing_id" json:"listing_id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Content   string    `db:"content" json:"content"`
	IsHidden  bool      `db:"is_hidden" json:"is_hidden"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type QueueQuery struct {
	Page   int
	Limit  int
	SortBy string
	Order  string
}

type QueuePage struct {
	Items      []Listing `json:"items"`
	Total      int       `json:"total"`
	Page       int       `json:"page"`
	Limit      int       `json:"limit"`
	TotalPages int       `json:"total_pages"`
}

type ReportQuery struct {
	Status     ReportStatus
	ReporterID string
	Page       int
	Limit      int
}

type ModeratorActivity struct {
	ModeratorID string `db:"moderator_id" json:"moderator_id"`
	Actions     int    `db:"actions" json:"actions"`
}

type ModerationStats struct {
	Period       string              `json:"period"`
	Since        *time.Time          `json:"since,omitempty"`
	Pending      int                 `json:"pending"`
	Published    int                 `json:"published"`
	Rejected     int                 `json:"rejected"`
	Archived     int                 `json:"archived"`
	TotalActions int                 `json:"total_actions"`
	Moderators   []ModeratorActivity `json:"moderators"`
}
