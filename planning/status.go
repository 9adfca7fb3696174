/*
status.go - Status enums and the amendment transition table

PURPOSE:
  Replaces free-form status strings with closed types. The amendment
  status set historically carried near-duplicates (admin_approved vs
  approved, admin_rejected vs rejected); ParseAmendmentStatus folds them
  into one canonical value so nothing downstream has to care.

AMENDMENT LIFECYCLE:

    draft ──▶ pending ──▶ submitted ──▶ admin_review
                 │  ▲         │               │
                 │  └─(edit)  │               │
                 ▼            ▼               ▼
             approved / rejected  (terminal)

  pending may go straight to approved/rejected (admin acting on an
  unsubmitted line) and to admin_review.

SEE ALSO:
  - amendments.go: Enforces transitions on every write
  - reconcile.go: Tallies statuses into the admin level status
*/
package planning

import "strings"

// =============================================================================
// LEVEL STATUS - derived per-level state in SubmissionStatus
// =============================================================================

type LevelStatus string

const (
	StatusNotSubmitted LevelStatus = "not_submitted"
	StatusPending      LevelStatus = "pending"
	StatusSubmitted    LevelStatus = "submitted"
	StatusApproved     LevelStatus = "approved"
	StatusRejected     LevelStatus = "rejected"
)

func ParseLevelStatus(s string) (LevelStatus, error) {
	switch st := LevelStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusNotSubmitted, StatusPending, StatusSubmitted, StatusApproved, StatusRejected:
		return st, nil
	}
	return "", &UnknownValueError{Kind: "submission status", Value: s}
}

// =============================================================================
// WEEK STATUS
// =============================================================================

type WeekStatus string

const (
	WeekOpen   WeekStatus = "open"
	WeekClosed WeekStatus = "closed"
)

func ParseWeekStatus(s string) (WeekStatus, error) {
	switch st := WeekStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case WeekOpen, WeekClosed:
		return st, nil
	case "":
		return WeekOpen, nil
	}
	return "", &UnknownValueError{Kind: "week status", Value: s}
}

// =============================================================================
// AMENDMENT STATUS
// =============================================================================

type AmendmentStatus string

const (
	AmendmentDraft       AmendmentStatus = "draft"
	AmendmentPending     AmendmentStatus = "pending"
	AmendmentSubmitted   AmendmentStatus = "submitted"
	AmendmentAdminReview AmendmentStatus = "admin_review"
	AmendmentApproved    AmendmentStatus = "approved"
	AmendmentRejected    AmendmentStatus = "rejected"
)

// ParseAmendmentStatus accepts every spelling found in stored rows and
// returns the canonical status.
func ParseAmendmentStatus(s string) (AmendmentStatus, error) {
	switch v := strings.ToLower(strings.TrimSpace(s)); v {
	case "admin_approved":
		return AmendmentApproved, nil
	case "admin_rejected":
		return AmendmentRejected, nil
	case string(AmendmentDraft), string(AmendmentPending), string(AmendmentSubmitted),
		string(AmendmentAdminReview), string(AmendmentApproved), string(AmendmentRejected):
		return AmendmentStatus(v), nil
	}
	return "", &UnknownValueError{Kind: "amendment status", Value: s}
}

// Normalize folds legacy values without failing on unknown ones.
func (s AmendmentStatus) Normalize() AmendmentStatus {
	if parsed, err := ParseAmendmentStatus(string(s)); err == nil {
		return parsed
	}
	return s
}

// IsOpen reports whether the owner may still edit the amendment.
func (s AmendmentStatus) IsOpen() bool {
	return s == AmendmentDraft || s == AmendmentPending
}

// IsTerminal reports whether no further transition is allowed.
func (s AmendmentStatus) IsTerminal() bool {
	return s == AmendmentApproved || s == AmendmentRejected
}

var allowedTransitions = map[AmendmentStatus][]AmendmentStatus{
	AmendmentDraft:       {AmendmentPending, AmendmentSubmitted},
	AmendmentPending:     {AmendmentPending, AmendmentSubmitted, AmendmentAdminReview, AmendmentApproved, AmendmentRejected},
	AmendmentSubmitted:   {AmendmentAdminReview, AmendmentApproved, AmendmentRejected},
	AmendmentAdminReview: {AmendmentApproved, AmendmentRejected},
}

// CanTransition reports whether moving from s to next is allowed.
func (s AmendmentStatus) CanTransition(next AmendmentStatus) bool {
	for _, allowed := range allowedTransitions[s.Normalize()] {
		if allowed == next.Normalize() {
			return true
		}
	}
	return false
}

// Transition returns next if the move is legal, or a *TransitionError.
func (s AmendmentStatus) Transition(id string, next AmendmentStatus) (AmendmentStatus, error) {
	if !s.CanTransition(next) {
		return s, &TransitionError{AmendmentID: id, From: s.Normalize(), To: next.Normalize()}
	}
	return next.Normalize(), nil
}

// =============================================================================
// STATUS TALLY - histogram used by reconciliation
// =============================================================================

// StatusTally counts amendment statuses across all roles for one store.
// Drafts are not counted.
type StatusTally struct {
	Approved    int
	Rejected    int
	Pending     int
	Submitted   int
	AdminReview int
}

func (t *StatusTally) Add(s AmendmentStatus) {
	switch s.Normalize() {
	case AmendmentApproved:
		t.Approved++
	case AmendmentRejected:
		t.Rejected++
	case AmendmentPending:
		t.Pending++
	case AmendmentSubmitted:
		t.Submitted++
	case AmendmentAdminReview:
		t.AdminReview++
	}
}

func (t StatusTally) Total() int {
	return t.Approved + t.Rejected + t.Pending + t.Submitted + t.AdminReview
}

// Resolve collapses the tally into one admin level status.
// Priority: any rejection, then any open work, then all-approved.
// Anything else (nothing counted) stays pending.
func (t StatusTally) Resolve() LevelStatus {
	switch {
	case t.Rejected > 0:
		return StatusRejected
	case t.Pending > 0 || t.Submitted > 0 || t.AdminReview > 0:
		return StatusPending
	case t.Approved > 0 && t.Approved == t.Total():
		return StatusApproved
	}
	return StatusPending
}
