/*
amendments.go - Amendment workflow

PURPOSE:
  Every write to the amendment and submission tables goes through here.
  Each operation runs in one transaction, checks the actor's authority
  against the hierarchy, enforces the status transition table and, on
  success, invalidates the week's cached dataset and publishes a change
  event.

WORKFLOW:
  ┌──────────────┐  SaveAmendment   ┌─────────┐  SubmitWeek  ┌───────────┐
  │ store / area │ ───────────────▶ │ pending │ ───────────▶ │ submitted │
  │ / regional   │  (edit in place) └─────────┘              └───────────┘
  └──────────────┘                       │                        │
                                         ▼                        ▼
                                 Approve / Reject / Modify (admin only)

  Modify rejects the original and inserts an approved admin_edit row that
  points back at it through ReplacesID.

SEE ALSO:
  - status.go: Transition table
  - tracking.go: Reads what this writes
*/
package planning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AmendmentInput is a manager's requested change to one plan line.
type AmendmentInput struct {
	WeekReference string
	StoreID       string
	StockCode     string
	Category      string
	WeeklyPlanID  string
	Type          AmendmentType
	OriginalQty   int
	AmendedQty    int
	Justification string
}

func (in AmendmentInput) validate() error {
	switch {
	case strings.TrimSpace(in.WeekReference) == "":
		return fmt.Errorf("%w: week_reference is required", ErrInvalidInput)
	case strings.TrimSpace(in.StoreID) == "":
		return fmt.Errorf("%w: store_id is required", ErrInvalidInput)
	case strings.TrimSpace(in.StockCode) == "":
		return fmt.Errorf("%w: stock_code is required", ErrInvalidInput)
	case in.AmendedQty < 0:
		return fmt.Errorf("%w: amended_qty must not be negative", ErrInvalidInput)
	}
	return nil
}

type AmendmentService struct {
	Repo     TxRepository
	Datasets *DatasetLoader
	Events   Publisher
	Log      zerolog.Logger

	Now   func() time.Time
	NewID func() string
}

func NewAmendmentService(repo TxRepository, datasets *DatasetLoader, events Publisher, log zerolog.Logger) *AmendmentService {
	return &AmendmentService{
		Repo:     repo,
		Datasets: datasets,
		Events:   events,
		Log:      log,
		Now:      time.Now,
		NewID:    uuid.NewString,
	}
}

// =============================================================================
// MANAGER OPERATIONS
// =============================================================================

// SaveAmendment records a manager's quantity change. An open (draft or
// pending) row by the same actor for the same store, stock code, week and
// role is edited in place; otherwise a new pending row is inserted.
func (s *AmendmentService) SaveAmendment(ctx context.Context, actor User, in AmendmentInput) (*Amendment, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if !actor.Role.IsManager() && actor.Role != RoleAdmin {
		return nil, &AccessError{UserID: actor.ID, StoreID: in.StoreID, Reason: "role " + string(actor.Role) + " cannot amend"}
	}
	if in.Type == "" {
		in.Type = AmendmentQuantityChange
	}

	var saved Amendment
	err := s.Repo.WithTx(ctx, func(tx Repository) error {
		if _, err := openWeek(ctx, tx, in.WeekReference); err != nil {
			return err
		}
		if _, err := authorize(ctx, tx, actor, in.StoreID); err != nil {
			return err
		}

		existing, err := tx.ListAmendments(ctx, AmendmentFilter{
			WeekReference: in.WeekReference,
			StoreIDs:      []string{in.StoreID},
			UserID:        actor.ID,
			Role:          actor.Role,
			StockCode:     in.StockCode,
			Statuses:      []AmendmentStatus{AmendmentDraft, AmendmentPending},
		})
		if err != nil {
			return fmt.Errorf("failed to look up open amendment: %w", err)
		}

		now := s.now()
		if len(existing) > 0 {
			a := existing[0]
			next, err := a.Status.Transition(a.ID, AmendmentPending)
			if err != nil {
				return err
			}
			a.Status = next
			a.AmendedQty = in.AmendedQty
			a.Justification = in.Justification
			a.Type = in.Type
			if in.Category != "" {
				a.Category = in.Category
			}
			a.UpdatedAt = now
			if err := tx.UpdateAmendment(ctx, a); err != nil {
				return fmt.Errorf("failed to update amendment: %w", err)
			}
			saved = a
			return nil
		}

		saved = Amendment{
			ID:            s.NewID(),
			WeeklyPlanID:  in.WeeklyPlanID,
			StoreID:       in.StoreID,
			StockCode:     in.StockCode,
			Category:      in.Category,
			UserID:        actor.ID,
			CreatedByRole: actor.Role,
			Type:          in.Type,
			OriginalQty:   in.OriginalQty,
			AmendedQty:    in.AmendedQty,
			Justification: in.Justification,
			Status:        AmendmentPending,
			WeekReference: in.WeekReference,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.InsertAmendment(ctx, saved); err != nil {
			return fmt.Errorf("failed to insert amendment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	amendmentTransitions.WithLabelValues(string(saved.Status)).Inc()
	s.changed(ChangeEvent{
		Kind:          EventAmendmentSaved,
		WeekReference: saved.WeekReference,
		StoreID:       saved.StoreID,
		EntityID:      saved.ID,
		ActorID:       actor.ID,
	})
	return &saved, nil
}

// SubmitWeek marks the actor's level as submitted for the week. Store
// managers submit per store; area and regional managers submit once for
// everything under them unless storeID narrows it. The actor's pending
// amendments in scope move to submitted.
func (s *AmendmentService) SubmitWeek(ctx context.Context, actor User, weekRef, storeID string) (*SubmissionRecord, error) {
	level, ok := actor.Role.Level()
	if !ok {
		return nil, &AccessError{UserID: actor.ID, StoreID: storeID, Reason: "role " + string(actor.Role) + " does not submit"}
	}
	if level == LevelStore && storeID == "" {
		return nil, fmt.Errorf("%w: store_id is required for store submissions", ErrInvalidInput)
	}

	var rec SubmissionRecord
	var moved int
	err := s.Repo.WithTx(ctx, func(tx Repository) error {
		week, err := openWeek(ctx, tx, weekRef)
		if err != nil {
			return err
		}
		if storeID != "" {
			if _, err := authorize(ctx, tx, actor, storeID); err != nil {
				return err
			}
		}

		prior, err := tx.ListSubmissions(ctx, weekRef)
		if err != nil {
			return fmt.Errorf("failed to load submissions: %w", err)
		}
		for _, p := range prior {
			pl, ok := p.ResolveLevel()
			if ok && pl == level && p.UserID == actor.ID && p.StoreID == storeID && p.Status == StatusSubmitted {
				return fmt.Errorf("%w: %s %s", ErrAlreadySubmitted, level, weekRef)
			}
		}

		rec = SubmissionRecord{
			ID:            s.NewID(),
			UserID:        actor.ID,
			StoreID:       storeID,
			WeekReference: weekRef,
			Type:          SubmissionTypeFor(level),
			Level:         level,
			Status:        StatusSubmitted,
			WeekStatus:    week.Status,
			CreatedAt:     s.now(),
		}
		if err := tx.AppendSubmission(ctx, rec); err != nil {
			return fmt.Errorf("failed to record submission: %w", err)
		}

		filter := AmendmentFilter{
			WeekReference: weekRef,
			UserID:        actor.ID,
			Role:          actor.Role,
			Statuses:      []AmendmentStatus{AmendmentDraft, AmendmentPending},
		}
		if storeID != "" {
			filter.StoreIDs = []string{storeID}
		}
		open, err := tx.ListAmendments(ctx, filter)
		if err != nil {
			return fmt.Errorf("failed to load open amendments: %w", err)
		}
		for _, a := range open {
			next, err := a.Status.Transition(a.ID, AmendmentSubmitted)
			if err != nil {
				return err
			}
			a.Status = next
			a.UpdatedAt = rec.CreatedAt
			if err := tx.UpdateAmendment(ctx, a); err != nil {
				return fmt.Errorf("failed to submit amendment %s: %w", a.ID, err)
			}
		}
		moved = len(open)
		return nil
	})
	if err != nil {
		return nil, err
	}

	amendmentTransitions.WithLabelValues(string(AmendmentSubmitted)).Add(float64(moved))
	s.Log.Info().
		Str("user", actor.ID).
		Str("level", string(level)).
		Str("week", weekRef).
		Str("store", storeID).
		Int("amendments", moved).
		Msg("week submitted")
	s.changed(ChangeEvent{
		Kind:          EventWeekSubmitted,
		WeekReference: weekRef,
		StoreID:       storeID,
		EntityID:      rec.ID,
		ActorID:       actor.ID,
	})
	return &rec, nil
}

// =============================================================================
// ADMIN OPERATIONS
// =============================================================================

// Approve accepts an amendment. approvedQty defaults to the amended qty.
func (s *AmendmentService) Approve(ctx context.Context, admin User, id string, approvedQty *int, notes string) (*Amendment, error) {
	return s.decide(ctx, admin, id, AmendmentApproved, approvedQty, notes, EventAmendmentApproved)
}

// Reject declines an amendment.
func (s *AmendmentService) Reject(ctx context.Context, admin User, id, notes string) (*Amendment, error) {
	return s.decide(ctx, admin, id, AmendmentRejected, nil, notes, EventAmendmentRejected)
}

func (s *AmendmentService) decide(
	ctx context.Context,
	admin User,
	id string,
	to AmendmentStatus,
	approvedQty *int,
	notes string,
	kind EventKind,
) (*Amendment, error) {
	if admin.Role != RoleAdmin {
		return nil, &AccessError{UserID: admin.ID, Reason: "only admins decide amendments"}
	}

	var a Amendment
	err := s.Repo.WithTx(ctx, func(tx Repository) error {
		found, err := loadAmendment(ctx, tx, id)
		if err != nil {
			return err
		}
		a = *found
		next, err := a.Status.Transition(a.ID, to)
		if err != nil {
			return err
		}

		a.Status = next
		a.AdminID = admin.ID
		a.AdminNotes = notes
		a.UpdatedAt = s.now()
		if next == AmendmentApproved {
			qty := a.AmendedQty
			if approvedQty != nil {
				qty = *approvedQty
			}
			a.ApprovedQty = &qty
		}
		if err := tx.UpdateAmendment(ctx, a); err != nil {
			return fmt.Errorf("failed to update amendment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	amendmentTransitions.WithLabelValues(string(a.Status)).Inc()
	s.Log.Info().Str("amendment", a.ID).Str("admin", admin.ID).Str("status", string(a.Status)).Msg("amendment decided")
	s.changed(ChangeEvent{Kind: kind, WeekReference: a.WeekReference, StoreID: a.StoreID, EntityID: a.ID, ActorID: admin.ID})
	return &a, nil
}

// Modify overrides a manager's quantity. The original is rejected and an
// approved admin_edit replacement is inserted in the same transaction.
// Returns the replacement.
func (s *AmendmentService) Modify(ctx context.Context, admin User, id string, qty int, reason string) (*Amendment, error) {
	if admin.Role != RoleAdmin {
		return nil, &AccessError{UserID: admin.ID, Reason: "only admins modify amendments"}
	}
	if strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("%w: a reason is required to modify an amendment", ErrInvalidInput)
	}
	if qty < 0 {
		return nil, fmt.Errorf("%w: quantity must not be negative", ErrInvalidInput)
	}

	var replacement Amendment
	err := s.Repo.WithTx(ctx, func(tx Repository) error {
		found, err := loadAmendment(ctx, tx, id)
		if err != nil {
			return err
		}
		original := *found
		next, err := original.Status.Transition(original.ID, AmendmentRejected)
		if err != nil {
			return err
		}

		now := s.now()
		original.Status = next
		original.AdminID = admin.ID
		original.AdminNotes = fmt.Sprintf("Modified by admin. Original quantity: %d, modified to: %d. Reason: %s",
			original.AmendedQty, qty, reason)
		original.UpdatedAt = now
		if err := tx.UpdateAmendment(ctx, original); err != nil {
			return fmt.Errorf("failed to reject original amendment: %w", err)
		}

		approved := qty
		replacement = Amendment{
			ID:            s.NewID(),
			WeeklyPlanID:  original.WeeklyPlanID,
			StoreID:       original.StoreID,
			StockCode:     original.StockCode,
			Category:      original.Category,
			UserID:        admin.ID,
			CreatedByRole: RoleAdmin,
			Type:          AmendmentAdminEdit,
			OriginalQty:   original.AmendedQty,
			AmendedQty:    qty,
			ApprovedQty:   &approved,
			Justification: fmt.Sprintf("Admin modification of amendment %s. %s", original.ID, reason),
			AdminID:       admin.ID,
			AdminNotes:    fmt.Sprintf("Admin modified from %d to %d", original.AmendedQty, qty),
			Status:        AmendmentApproved,
			WeekReference: original.WeekReference,
			ReplacesID:    original.ID,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.InsertAmendment(ctx, replacement); err != nil {
			return fmt.Errorf("failed to insert replacement amendment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	amendmentTransitions.WithLabelValues(string(AmendmentRejected)).Inc()
	amendmentTransitions.WithLabelValues(string(AmendmentApproved)).Inc()
	s.Log.Info().Str("amendment", id).Str("replacement", replacement.ID).Str("admin", admin.ID).Int("qty", qty).Msg("amendment modified")
	s.changed(ChangeEvent{
		Kind:          EventAmendmentModified,
		WeekReference: replacement.WeekReference,
		StoreID:       replacement.StoreID,
		EntityID:      replacement.ID,
		ActorID:       admin.ID,
	})
	return &replacement, nil
}

// List returns amendments visible to the actor. Managers see stores they
// manage; admins see everything.
func (s *AmendmentService) List(ctx context.Context, actor User, f AmendmentFilter) ([]Amendment, error) {
	if actor.Role == RoleAdmin {
		return s.Repo.ListAmendments(ctx, f)
	}
	if !actor.Role.IsManager() {
		return nil, &AccessError{UserID: actor.ID, Reason: "role " + string(actor.Role) + " cannot view amendments"}
	}

	hierarchy, err := s.Repo.ListHierarchy(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load hierarchy: %w", err)
	}
	allowed := map[string]bool{}
	for _, h := range hierarchy {
		if h.ManagedBy(actor.ID) {
			allowed[h.StoreID] = true
		}
	}

	var scoped []string
	if len(f.StoreIDs) > 0 {
		for _, id := range f.StoreIDs {
			if allowed[id] {
				scoped = append(scoped, id)
			}
		}
	} else {
		for id := range allowed {
			scoped = append(scoped, id)
		}
	}
	if len(scoped) == 0 {
		return []Amendment{}, nil
	}
	f.StoreIDs = scoped
	return s.Repo.ListAmendments(ctx, f)
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *AmendmentService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *AmendmentService) changed(e ChangeEvent) {
	s.Datasets.Invalidate(e.WeekReference)
	e.At = s.now()
	publish(s.Events, e)
}

// openWeek loads the week and fails unless it is open.
func openWeek(ctx context.Context, tx Repository, ref string) (*WeekSelection, error) {
	w, err := tx.GetWeek(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to load week %s: %w", ref, err)
	}
	if w == nil {
		return nil, fmt.Errorf("%w: %s", ErrWeekNotFound, ref)
	}
	if w.Status == WeekClosed {
		return nil, fmt.Errorf("%w: %s", ErrWeekClosed, ref)
	}
	return w, nil
}

// authorize checks that actor manages storeID at their own level. Admins
// may act on any existing store.
func authorize(ctx context.Context, tx Repository, actor User, storeID string) (*HierarchyRow, error) {
	rows, err := tx.ListHierarchy(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load hierarchy: %w", err)
	}
	for i := range rows {
		h := rows[i]
		if h.StoreID != storeID {
			continue
		}
		if actor.Role == RoleAdmin {
			return &h, nil
		}
		level, ok := actor.Role.Level()
		if !ok || h.ManagerAt(level) != actor.ID {
			return nil, &AccessError{UserID: actor.ID, StoreID: storeID, Reason: "not assigned to this store"}
		}
		return &h, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrStoreNotFound, storeID)
}

func loadAmendment(ctx context.Context, tx Repository, id string) (*Amendment, error) {
	a, err := tx.GetAmendment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load amendment %s: %w", id, err)
	}
	if a == nil {
		return nil, fmt.Errorf("%w: %s", ErrAmendmentNotFound, id)
	}
	return a, nil
}
