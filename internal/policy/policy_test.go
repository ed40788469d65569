package policy

import (
	"errors"
	"testing"
	"time"

	"listingmod/internal/models"
)

var (
	owner     = Actor{ID: "owner-1", Role: models.RoleUser}
	stranger  = Actor{ID: "user-2", Role: models.RoleUser}
	moderator = Actor{ID: "mod-1", Role: models.RoleModerator}
	admin     = Actor{ID: "admin-1", Role: models.RoleAdmin}
)

func listing(status models.Status) models.Listing {
	l := models.Listing{
		ID:         "l-1",
		OwnerID:    owner.ID,
		Title:      "Skoda Octavia 2015",
		PriceCents: 950000,
		Currency:   "EUR",
		Status:     status,
		Version:    3,
	}
	switch status {
	case models.StatusPublished, models.StatusArchived:
		mod := moderator.ID
		at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		l.ModeratorID, l.ModerationDate = &mod, &at
	case models.StatusRejected:
		mod := moderator.ID
		at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		reason := "blurry photos"
		l.ModeratorID, l.ModerationDate, l.RejectionReason = &mod, &at, &reason
	}
	return l
}

func ptr[T any](v T) *T { return &v }

func TestDecideTransitionTable(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name    string
		status  models.Status
		actor   Actor
		req     Request
		wantTo  models.Status
		wantErr error
	}{
		{"approve pending", models.StatusPending, moderator, ApproveRequest{}, models.StatusPublished, nil},
		{"admin approves pending", models.StatusPending, admin, ApproveRequest{}, models.StatusPublished, nil},
		{"approve published conflicts", models.StatusPublished, moderator, ApproveRequest{}, "", models.ErrConflict},
		{"approve rejected conflicts", models.StatusRejected, moderator, ApproveRequest{}, "", models.ErrConflict},
		{"approve archived conflicts", models.StatusArchived, moderator, ApproveRequest{}, "", models.ErrConflict},
		{"user cannot approve", models.StatusPending, stranger, ApproveRequest{}, "", models.ErrUnauthorized},
		{"owner cannot approve own", models.StatusPending, owner, ApproveRequest{}, "", models.ErrUnauthorized},
		{"reject pending", models.StatusPending, moderator, RejectRequest{Reason: " spam "}, models.StatusRejected, nil},
		{"reject without reason", models.StatusPending, moderator, RejectRequest{Reason: "   "}, "", models.ErrValidation},
		{"reject reason checked before status", models.StatusPublished, moderator, RejectRequest{}, "", models.ErrValidation},
		{"reject published conflicts", models.StatusPublished, moderator, RejectRequest{Reason: "spam"}, "", models.ErrConflict},
		{"force archive published", models.StatusPublished, moderator, ForceArchiveRequest{ReportID: "r-1"}, models.StatusArchived, nil},
		{"force archive rejected", models.StatusRejected, admin, ForceArchiveRequest{ReportID: "r-1"}, models.StatusArchived, nil},
		{"force archive sold", models.StatusSold, admin, ForceArchiveRequest{ReportID: "r-1"}, models.StatusArchived, nil},
		{"force archive needs moderator", models.StatusPublished, owner, ForceArchiveRequest{ReportID: "r-1"}, "", models.ErrUnauthorized},
		{"owner edits title of published", models.StatusPublished, owner, SubmitRequest{Patch: models.ListingPatch{Title: ptr("New title")}}, models.StatusPending, nil},
		{"owner edits price of rejected", models.StatusRejected, owner, SubmitRequest{Patch: models.ListingPatch{PriceCents: ptr(int64(800000))}}, models.StatusPending, nil},
		{"owner edits city of published", models.StatusPublished, owner, SubmitRequest{Patch: models.ListingPatch{City: ptr("Brno")}}, models.StatusPublished, nil},
		{"owner edits pending", models.StatusPending, owner, SubmitRequest{Patch: models.ListingPatch{Description: ptr("more")}}, models.StatusPending, nil},
		{"edit sold", models.StatusSold, owner, SubmitRequest{Patch: models.ListingPatch{Title: ptr("x")}}, "", models.ErrValidation},
		{"edit archived", models.StatusArchived, owner, SubmitRequest{Patch: models.ListingPatch{Title: ptr("x")}}, "", models.ErrValidation},
		{"empty edit", models.StatusPending, owner, SubmitRequest{}, "", models.ErrValidation},
		{"negative price", models.StatusPending, owner, SubmitRequest{Patch: models.ListingPatch{PriceCents: ptr(int64(-5))}}, "", models.ErrValidation},
		{"stranger edit", models.StatusPending, stranger, SubmitRequest{Patch: models.ListingPatch{Title: ptr("x")}}, "", models.ErrUnauthorized},
		{"moderator cannot edit", models.StatusPending, moderator, SubmitRequest{Patch: models.ListingPatch{Title: ptr("x")}}, "", models.ErrUnauthorized},
		{"delete published", models.StatusPublished, owner, DeleteRequest{}, models.StatusRemoved, nil},
		{"delete sold", models.StatusSold, owner, DeleteRequest{}, "", models.ErrValidation},
		{"delete archived", models.StatusArchived, owner, DeleteRequest{}, "", models.ErrValidation},
		{"stranger delete", models.StatusPending, stranger, DeleteRequest{}, "", models.ErrUnauthorized},
		{"mark sold published", models.StatusPublished, owner, MarkSoldRequest{}, models.StatusSold, nil},
		{"mark sold pending", models.StatusPending, owner, MarkSoldRequest{}, "", models.ErrConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := Decide(listing(tc.status), tc.actor, tc.req, now)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if v.To != tc.wantTo {
				t.Fatalf("expected transition to %s, got %s", tc.wantTo, v.To)
			}
			if !v.Remove && v.Next.Status != tc.wantTo {
				t.Fatalf("next listing status %s, want %s", v.Next.Status, tc.wantTo)
			}
			if v.Next.Version != 4 {
				t.Fatalf("expected version bump to 4, got %d", v.Next.Version)
			}
			if (v.Next.RejectionReason != nil) != (v.Next.Status == models.StatusRejected) && !v.Remove {
				t.Fatalf("rejection reason present=%v with status %s", v.Next.RejectionReason != nil, v.Next.Status)
			}
		})
	}
}

func TestApproveSetsModerationFields(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	v, err := Decide(listing(models.StatusPending), moderator, ApproveRequest{Featured: ptr(true)}, now)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if v.Next.ModeratorID == nil || *v.Next.ModeratorID != moderator.ID {
		t.Fatalf("expected moderator id %s, got %v", moderator.ID, v.Next.ModeratorID)
	}
	if v.Next.ModerationDate == nil || !v.Next.ModerationDate.Equal(now) {
		t.Fatalf("expected moderation date %v, got %v", now, v.Next.ModerationDate)
	}
	if !v.Next.Featured {
		t.Fatalf("expected featured flag to be set")
	}
	entry := v.LogEntry("e-1")
	if entry == nil || entry.OldStatus != models.StatusPending || entry.NewStatus != models.StatusPublished {
		t.Fatalf("unexpected log entry %+v", entry)
	}
	if entry.ModeratorID == nil || *entry.ModeratorID != moderator.ID || entry.Reason != nil {
		t.Fatalf("approve entry must carry moderator and no reason: %+v", entry)
	}
}

func TestApproveLeavesFeaturedWhenOmitted(t *testing.T) {
	l := listing(models.StatusPending)
	l.Featured = true
	v, err := Decide(l, moderator, ApproveRequest{}, time.Now())
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if !v.Next.Featured {
		t.Fatalf("featured flag must stay untouched when not supplied")
	}
}

func TestResubmitClearsModerationFields(t *testing.T) {
	v, err := Decide(listing(models.StatusRejected), owner, SubmitRequest{Patch: models.ListingPatch{Title: ptr("  Fixed title ")}}, time.Now())
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if v.Next.ModeratorID != nil || v.Next.ModerationDate != nil || v.Next.RejectionReason != nil {
		t.Fatalf("expected moderation fields cleared, got %+v", v.Next)
	}
	if v.Next.Title != "Fixed title" {
		t.Fatalf("expected trimmed title, got %q", v.Next.Title)
	}
	entry := v.LogEntry("e-1")
	if entry == nil || entry.ModeratorID != nil {
		t.Fatalf("owner resubmission must log a null moderator, got %+v", entry)
	}
}

func TestNonCoreEditKeepsModerationFields(t *testing.T) {
	v, err := Decide(listing(models.StatusPublished), owner, SubmitRequest{Patch: models.ListingPatch{Region: ptr("South Moravia")}}, time.Now())
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if v.Next.ModeratorID == nil || v.Next.ModerationDate == nil {
		t.Fatalf("non-core edit must not clear moderation fields")
	}
	if v.LogEntry("e-1") != nil {
		t.Fatalf("edit without status change must not produce a log entry")
	}
}

func TestForceArchiveOnArchivedIsNoop(t *testing.T) {
	l := listing(models.StatusArchived)
	v, err := Decide(l, moderator, ForceArchiveRequest{ReportID: "r-9"}, time.Now())
	if err != nil {
		t.Fatalf("force archive: %v", err)
	}
	if !v.Noop || v.Next.Version != l.Version || v.LogEntry("e-1") != nil {
		t.Fatalf("expected noop verdict, got %+v", v)
	}
}

func TestForceArchiveReasonMentionsReport(t *testing.T) {
	v, err := Decide(listing(models.StatusPublished), moderator, ForceArchiveRequest{ReportID: "r-9", Reason: "fraud"}, time.Now())
	if err != nil {
		t.Fatalf("force archive: %v", err)
	}
	if v.Reason == nil || *v.Reason != "report r-9: fraud" {
		t.Fatalf("unexpected audit reason %v", v.Reason)
	}
}

func TestDecideRejectsNilRequest(t *testing.T) {
	if _, err := Decide(listing(models.StatusPending), owner, nil, time.Now()); !errors.Is(err, models.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestReplay(t *testing.T) {
	entries := []models.ModerationLogEntry{
		{ID: "1", OldStatus: models.StatusPending, NewStatus: models.StatusRejected},
		{ID: "2", OldStatus: models.StatusRejected, NewStatus: models.StatusPending},
		{ID: "3", OldStatus: models.StatusPending, NewStatus: models.StatusPublished},
		{ID: "4", OldStatus: models.StatusPublished, NewStatus: models.StatusArchived},
	}
	got, err := Replay(entries)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if got != models.StatusArchived {
		t.Fatalf("expected archived, got %s", got)
	}

	if got, err := Replay(nil); err != nil || got != models.StatusPending {
		t.Fatalf("empty log must replay to pending, got %s %v", got, err)
	}

	broken := []models.ModerationLogEntry{
		{ID: "1", OldStatus: models.StatusPending, NewStatus: models.StatusPublished},
		{ID: "2", OldStatus: models.StatusPending, NewStatus: models.StatusRejected},
	}
	if _, err := Replay(broken); err == nil {
		t.Fatalf("expected broken chain to fail")
	}
}

func TestValidateNewListing(t *testing.T) {
	ok := models.NewListing{Title: "Golf", PriceCents: 100, Currency: "eur"}
	if err := ValidateNewListing(ok); err != nil {
		t.Fatalf("valid listing rejected: %v", err)
	}
	for name, in := range map[string]models.NewListing{
		"blank title":    {Title: "  ", PriceCents: 100},
		"zero price":     {Title: "Golf"},
		"huge price":     {Title: "Golf", PriceCents: MaxPriceCents + 1},
		"bad currency":   {Title: "Golf", PriceCents: 100, Currency: "EURO"},
		"digit currency": {Title: "Golf", PriceCents: 100, Currency: "EU1"},
	} {
		if err := ValidateNewListing(in); !errors.Is(err, models.ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
}
