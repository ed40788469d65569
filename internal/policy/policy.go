// Package policy decides listing status transitions. It performs no I/O; the
// caller loads the listing, asks Decide, and applies the verdict under a
// conditional write.
package policy

import (
	"fmt"
	"strings"
	"time"

	"listingmod/internal/models"
)

type Actor struct {
	ID   string
	Role models.Role
}

// Verdict is the outcome of an allowed request. Next is the listing as it
// must be stored; Remove means the listing is deleted instead.
type Verdict struct {
	Action      Action
	From        models.Status
	To          models.Status
	Next        models.Listing
	Remove      bool
	Noop        bool
	ModeratorID *string
	Reason      *string
}

func (v Verdict) StatusChanged() bool { return v.From != v.To }

// LogEntry returns the moderation log entry for the verdict, or nil when the
// status does not change.
func (v Verdict) LogEntry(id string) *models.ModerationLogEntry {
	if v.Noop || !v.StatusChanged() {
		return nil
	}
	return &models.ModerationLogEntry{
		ID:          id,
		ListingID:   v.Next.ID,
		ModeratorID: v.ModeratorID,
		OldStatus:   v.From,
		NewStatus:   v.To,
		Reason:      v.Reason,
		Version:     v.Next.Version,
		ChangedAt:   v.Next.UpdatedAt,
	}
}

// Decide evaluates req against the current listing. Returned errors wrap
// models.ErrUnauthorized, models.ErrValidation or models.ErrConflict.
func Decide(l models.Listing, actor Actor, req Request, at time.Time) (Verdict, error) {
	if req == nil {
		return Verdict{}, fmt.Errorf("%w: missing request", models.ErrValidation)
	}
	v := Verdict{Action: req.Action(), From: l.Status, To: l.Status, Next: l}
	var err error
	switch r := req.(type) {
	case SubmitRequest:
		err = decideSubmit(&v, l, actor, r)
	case ApproveRequest:
		err = decideApprove(&v, l, actor, r, at)
	case RejectRequest:
		err = decideReject(&v, l, actor, r, at)
	case ForceArchiveRequest:
		err = decideForceArchive(&v, l, actor, r, at)
	case DeleteRequest:
		err = decideDelete(&v, l, actor)
	case MarkSoldRequest:
		err = decideMarkSold(&v, l, actor)
	default:
		err = fmt.Errorf("%w: unsupported action %q", models.ErrValidation, req.Action())
	}
	if err != nil {
		return Verdict{}, err
	}
	if !v.Noop {
		v.Next.Status = v.To
		v.Next.Version = l.Version + 1
		v.Next.UpdatedAt = at
	}
	return v, nil
}

func requireOwner(l models.Listing, actor Actor) error {
	if actor.ID == "" || actor.ID != l.OwnerID {
		return fmt.Errorf("%w: only the owner may change this listing", models.ErrUnauthorized)
	}
	return nil
}

func requireModerator(actor Actor) error {
	if actor.ID == "" || !actor.Role.CanModerate() {
		return fmt.Errorf("%w: moderator or admin role required", models.ErrUnauthorized)
	}
	return nil
}

func decideSubmit(v *Verdict, l models.Listing, actor Actor, r SubmitRequest) error {
	if err := requireOwner(l, actor); err != nil {
		return err
	}
	if err := r.Validate(); err != nil {
		return err
	}
	if l.Status.EditTerminal() {
		return fmt.Errorf("%w: a %s listing cannot be edited", models.ErrValidation, l.Status)
	}
	applyPatch(&v.Next, r.Patch)
	if r.Patch.TouchesCore() && (l.Status == models.StatusPublished || l.Status == models.StatusRejected) {
		v.To = models.StatusPending
		clearModeration(&v.Next)
	}
	return nil
}

func decideApprove(v *Verdict, l models.Listing, actor Actor, r ApproveRequest, at time.Time) error {
	if err := requireModerator(actor); err != nil {
		return err
	}
	if l.Status != models.StatusPending {
		return fmt.Errorf("%w: listing is %s, only pending listings can be approved", models.ErrConflict, l.Status)
	}
	v.To = models.StatusPublished
	setModeration(v, actor, at)
	v.Next.RejectionReason = nil
	if r.Featured != nil {
		v.Next.Featured = *r.Featured
	}
	return nil
}

func decideReject(v *Verdict, l models.Listing, actor Actor, r RejectRequest, at time.Time) error {
	if err := requireModerator(actor); err != nil {
		return err
	}
	if err := r.Validate(); err != nil {
		return err
	}
	if l.Status != models.StatusPending {
		return fmt.Errorf("%w: listing is %s, only pending listings can be rejected", models.ErrConflict, l.Status)
	}
	reason := strings.TrimSpace(r.Reason)
	v.To = models.StatusRejected
	setModeration(v, actor, at)
	v.Next.RejectionReason = &reason
	v.Reason = &reason
	return nil
}

func decideForceArchive(v *Verdict, l models.Listing, actor Actor, r ForceArchiveRequest, at time.Time) error {
	if err := requireModerator(actor); err != nil {
		return err
	}
	if err := r.Validate(); err != nil {
		return err
	}
	if l.Status == models.StatusArchived {
		v.Noop = true
		return nil
	}
	reason := "report " + r.ReportID
	if s := strings.TrimSpace(r.Reason); s != "" {
		reason += ": " + s
	}
	v.To = models.StatusArchived
	setModeration(v, actor, at)
	v.Next.RejectionReason = nil
	v.Reason = &reason
	return nil
}

func decideDelete(v *Verdict, l models.Listing, actor Actor) error {
	if err := requireOwner(l, actor); err != nil {
		return err
	}
	if l.Status.EditTerminal() {
		return fmt.Errorf("%w: a %s listing cannot be deleted", models.ErrValidation, l.Status)
	}
	v.To = models.StatusRemoved
	v.Remove = true
	return nil
}

func decideMarkSold(v *Verdict, l models.Listing, actor Actor) error {
	if err := requireOwner(l, actor); err != nil {
		return err
	}
	if l.Status != models.StatusPublished {
		return fmt.Errorf("%w: listing is %s, only published listings can be sold", models.ErrConflict, l.Status)
	}
	v.To = models.StatusSold
	return nil
}

func setModeration(v *Verdict, actor Actor, at time.Time) {
	id := actor.ID
	ts := at
	v.Next.ModeratorID = &id
	v.Next.ModerationDate = &ts
	v.ModeratorID = &id
}

func clearModeration(l *models.Listing) {
	l.ModeratorID = nil
	l.ModerationDate = nil
	l.RejectionReason = nil
}

func applyPatch(l *models.Listing, p models.ListingPatch) {
	if p.Title != nil {
		l.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		l.Description = strings.TrimSpace(*p.Description)
	}
	if p.PriceCents != nil {
		l.PriceCents = *p.PriceCents
	}
	if p.Currency != nil {
		l.Currency = strings.ToUpper(strings.TrimSpace(*p.Currency))
	}
	if p.City != nil {
		l.City = strings.TrimSpace(*p.City)
	}
	if p.Region != nil {
		l.Region = strings.TrimSpace(*p.Region)
	}
}

// Replay folds a listing's log entries, ordered by version, starting from
// pending. It fails when an entry does not chain from the previous one.
func Replay(entries []models.ModerationLogEntry) (models.Status, error) {
	cur := models.StatusPending
	for i, e := range entries {
		if e.OldStatus != cur {
			return cur, fmt.Errorf("log entry %d (%s) starts from %s, expected %s", i, e.ID, e.OldStatus, cur)
		}
		cur = e.NewStatus
	}
	return cur, nil
}
