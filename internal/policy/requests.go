package policy

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"listingmod/internal/models"
)

type Action string

const (
	ActionSubmit       Action = "submit"
	ActionApprove      Action = "approve"
	ActionReject       Action = "reject"
	ActionForceArchive Action = "force_archive"
	ActionDelete       Action = "delete"
	ActionMarkSold     Action = "mark_sold"
)

const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 5000
	MaxPlaceLength       = 100
	MaxReasonLength      = 255
	// MaxPriceCents mirrors a DECIMAL(12,2) column.
	MaxPriceCents int64 = 99999999999999
)

// Request is one of SubmitRequest, ApproveRequest, RejectRequest,
// ForceArchiveRequest, DeleteRequest or MarkSoldRequest.
type Request interface {
	Action() Action
	Validate() error
}

// SubmitRequest is an owner edit. Editing title, price or description of a
// published or rejected listing sends it back to review.
type SubmitRequest struct {
	Patch models.ListingPatch
}

type ApproveRequest struct {
	Featured *bool
}

type RejectRequest struct {
	Reason string
}

// ForceArchiveRequest is issued when a report against the listing is accepted.
type ForceArchiveRequest struct {
	ReportID string
	Reason   string
}

type DeleteRequest struct{}

type MarkSoldRequest struct{}

func (SubmitRequest) Action() Action       { return ActionSubmit }
func (ApproveRequest) Action() Action      { return ActionApprove }
func (RejectRequest) Action() Action       { return ActionReject }
func (ForceArchiveRequest) Action() Action { return ActionForceArchive }
func (DeleteRequest) Action() Action       { return ActionDelete }
func (MarkSoldRequest) Action() Action     { return ActionMarkSold }

func (r SubmitRequest) Validate() error {
	p := r.Patch
	if p.Empty() {
		return fmt.Errorf("%w: no fields to update", models.ErrValidation)
	}
	if p.Title != nil {
		if err := validateTitle(*p.Title); err != nil {
			return err
		}
	}
	if p.Description != nil && utf8.RuneCountInString(*p.Description) > MaxDescriptionLength {
		return fmt.Errorf("%w: description exceeds %d characters", models.ErrValidation, MaxDescriptionLength)
	}
	if p.PriceCents != nil {
		if err := validatePrice(*p.PriceCents); err != nil {
			return err
		}
	}
	if p.Currency != nil {
		if err := validateCurrency(*p.Currency); err != nil {
			return err
		}
	}
	if p.City != nil && utf8.RuneCountInString(strings.TrimSpace(*p.City)) > MaxPlaceLength {
		return fmt.Errorf("%w: city exceeds %d characters", models.ErrValidation, MaxPlaceLength)
	}
	if p.Region != nil && utf8.RuneCountInString(strings.TrimSpace(*p.Region)) > MaxPlaceLength {
		return fmt.Errorf("%w: region exceeds %d characters", models.ErrValidation, MaxPlaceLength)
	}
	return nil
}

func (ApproveRequest) Validate() error { return nil }

func (r RejectRequest) Validate() error {
	reason := strings.TrimSpace(r.Reason)
	if reason == "" {
		return fmt.Errorf("%w: rejection reason is required", models.ErrValidation)
	}
	if utf8.RuneCountInString(reason) > MaxReasonLength {
		return fmt.Errorf("%w: rejection reason exceeds %d characters", models.ErrValidation, MaxReasonLength)
	}
	return nil
}

func (r ForceArchiveRequest) Validate() error {
	if strings.TrimSpace(r.ReportID) == "" {
		return fmt.Errorf("%w: force archive requires a report", models.ErrValidation)
	}
	return nil
}

func (DeleteRequest) Validate() error   { return nil }
func (MarkSoldRequest) Validate() error { return nil }

// ValidateNewListing checks the content of a listing being created.
func ValidateNewListing(in models.NewListing) error {
	if err := validateTitle(in.Title); err != nil {
		return err
	}
	if utf8.RuneCountInString(in.Description) > MaxDescriptionLength {
		return fmt.Errorf("%w: description exceeds %d characters", models.ErrValidation, MaxDescriptionLength)
	}
	if err := validatePrice(in.PriceCents); err != nil {
		return err
	}
	if in.Currency != "" {
		if err := validateCurrency(in.Currency); err != nil {
			return err
		}
	}
	if utf8.RuneCountInString(strings.TrimSpace(in.City)) > MaxPlaceLength ||
		utf8.RuneCountInString(strings.TrimSpace(in.Region)) > MaxPlaceLength {
		return fmt.Errorf("%w: location exceeds %d characters", models.ErrValidation, MaxPlaceLength)
	}
	return nil
}

func validateTitle(title string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(title))
	if n == 0 {
		return fmt.Errorf("%w: title is required", models.ErrValidation)
	}
	if n > MaxTitleLength {
		return fmt.Errorf("%w: title exceeds %d characters", models.ErrValidation, MaxTitleLength)
	}
	return nil
}

func validatePrice(cents int64) error {
	if cents <= 0 || cents > MaxPriceCents {
		return fmt.Errorf("%w: price must be positive and at most 999999999999.99", models.ErrValidation)
	}
	return nil
}

func validateCurrency(code string) error {
	code = strings.TrimSpace(code)
	if len(code) != 3 {
		return fmt.Errorf("%w: currency must be a 3-letter code", models.ErrValidation)
	}
	for _, r := range code {
		if !unicode.IsLetter(r) || r > unicode.MaxASCII {
			return fmt.Errorf("%w: currency must be a 3-letter code", models.ErrValidation)
		}
	}
	return nil
}
