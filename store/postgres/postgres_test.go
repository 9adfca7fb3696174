package postgres_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/backoffice/planning"
	"github.com/warp/backoffice/store/postgres"
)

// These tests need a scratch database:
//
//	BACKOFFICE_TEST_POSTGRES_DSN=postgres://localhost:5432/backoffice_test go test ./store/postgres
func newStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := os.Getenv("BACKOFFICE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("BACKOFFICE_TEST_POSTGRES_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := postgres.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

// unique keeps runs against a shared database from colliding.
func unique(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8]
}

func TestUpsertStore_ReportsCreatedThenUpdated(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	code := unique("ST")

	first, created, err := s.UpsertStore(ctx, planning.Store{Code: code, Name: "Durban North", Region: "KZN", Active: true})
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := s.UpsertStore(ctx, planning.Store{Code: code, Name: "Durban North Mall", Active: true})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "KZN", second.Region)
}

func TestAmendments_FilterAndUpdate(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	week := unique("Week")
	store := unique("store")

	require.NoError(t, s.InsertAmendment(ctx, planning.Amendment{
		ID: unique("a"), StoreID: store, StockCode: "SKU-1", UserID: "u1", CreatedByRole: planning.RoleStoreManager,
		AmendedQty: 3, Status: "admin_rejected", WeekReference: week,
	}))
	pending := planning.Amendment{
		ID: unique("a"), StoreID: store, StockCode: "SKU-2", UserID: "u1", CreatedByRole: planning.RoleStoreManager,
		AmendedQty: 1, Status: planning.AmendmentPending, WeekReference: week,
	}
	require.NoError(t, s.InsertAmendment(ctx, pending))

	rejected, err := s.ListAmendments(ctx, planning.AmendmentFilter{
		WeekReference: week,
		StoreIDs:      []string{store},
		Statuses:      []planning.AmendmentStatus{planning.AmendmentRejected},
	})
	require.NoError(t, err)
	require.Len(t, rejected, 1)
	assert.Equal(t, planning.AmendmentRejected, rejected[0].Status)

	qty := 2
	pending.Status = planning.AmendmentApproved
	pending.ApprovedQty = &qty
	pending.UpdatedAt = time.Now()
	require.NoError(t, s.UpdateAmendment(ctx, pending))

	got, err := s.GetAmendment(ctx, pending.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NotNil(t, got.ApprovedQty)
	assert.Equal(t, 2, *got.ApprovedQty)

	assert.ErrorIs(t, s.UpdateAmendment(ctx, planning.Amendment{ID: unique("ghost")}), planning.ErrAmendmentNotFound)
}

func TestWeeklyPlan_BatchInsertAndPage(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	week := unique("Week")

	require.NoError(t, s.AppendWeeklyPlan(ctx, []planning.WeeklyPlanLine{
		{WeekReference: week, StockCode: "B", Volume: decimal.RequireFromString("0.5")},
		{WeekReference: week, StockCode: "A", Volume: decimal.RequireFromString("2.25")},
	}))

	page, err := s.ListWeeklyPlanPage(ctx, week, 1, 10)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "A", page[0].StockCode)
	assert.True(t, decimal.RequireFromString("2.25").Equal(page[0].Volume))
}

func TestWithTx_RollsBack(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	code := unique("TX")
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx planning.Repository) error {
		if _, _, err := tx.UpsertStore(ctx, planning.Store{Code: code, Name: "Rollback", Active: true}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	st, err := s.GetStoreByCode(ctx, code)
	require.NoError(t, err)
	assert.Nil(t, st)
}

func pendingAmendment(week string) planning.Amendment {
	return planning.Amendment{
		ID: unique("a"), StoreID: unique("store"), StockCode: "SKU-1", UserID: unique("u"),
		CreatedByRole: planning.RoleStoreManager, AmendedQty: 4, Status: planning.AmendmentPending,
		WeekReference: week, CreatedAt: time.Now(),
	}
}

func TestWithTx_AmendmentReadWaitsForConcurrentDecision(t *testing.T) {
	// GIVEN: Transaction A has read a pending amendment
	// WHEN: Transaction B reads the same row while A approves and commits
	// THEN: B waits for A and sees approved, not the stale pending

	s := newStore(t)
	ctx := context.Background()
	a := pendingAmendment(unique("Week"))
	require.NoError(t, s.InsertAmendment(ctx, a))

	locked := make(chan struct{})
	seen := make(chan planning.AmendmentStatus, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-locked
		_ = s.WithTx(ctx, func(tx planning.Repository) error {
			got, err := tx.GetAmendment(ctx, a.ID)
			if err != nil || got == nil {
				seen <- ""
				return err
			}
			seen <- got.Status
			return nil
		})
	}()

	err := s.WithTx(ctx, func(tx planning.Repository) error {
		got, err := tx.GetAmendment(ctx, a.ID)
		if err != nil {
			return err
		}
		close(locked)
		time.Sleep(200 * time.Millisecond)
		got.Status = planning.AmendmentApproved
		got.UpdatedAt = time.Now()
		return tx.UpdateAmendment(ctx, *got)
	})
	require.NoError(t, err)
	wg.Wait()

	assert.Equal(t, planning.AmendmentApproved, <-seen)
}

func TestConcurrentApproveAndReject_OnlyOneWins(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	a := pendingAmendment(unique("Week"))
	require.NoError(t, s.InsertAmendment(ctx, a))

	svc := planning.NewAmendmentService(s, nil, nil, zerolog.Nop())
	admin := planning.User{ID: unique("admin"), Role: planning.RoleAdmin}

	errs := make([]error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = svc.Approve(ctx, admin, a.ID, nil, "ok")
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = svc.Reject(ctx, admin, a.ID, "no")
	}()
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, planning.ErrInvalidTransition)
			failed++
		}
	}
	assert.Equal(t, 1, failed)
}

func TestInsertAmendment_SecondOpenRowConflicts(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	first := pendingAmendment(unique("Week"))
	require.NoError(t, s.InsertAmendment(ctx, first))

	dup := first
	dup.ID = unique("a")
	err := s.InsertAmendment(ctx, dup)
	require.ErrorIs(t, err, planning.ErrConflict)
	assert.True(t, planning.IsConflict(err))

	// Once the first row is no longer open another may be inserted.
	first.Status = planning.AmendmentSubmitted
	require.NoError(t, s.UpdateAmendment(ctx, first))
	require.NoError(t, s.InsertAmendment(ctx, dup))
}

func TestAppendSubmission_DuplicateIsAlreadySubmitted(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	week := unique("Week")
	user := unique("am")

	rec := planning.SubmissionRecord{
		UserID: user, WeekReference: week, Type: planning.SubmissionArea,
		Level: planning.LevelArea, Status: planning.StatusSubmitted,
	}
	require.NoError(t, s.AppendSubmission(ctx, rec))
	assert.ErrorIs(t, s.AppendSubmission(ctx, rec), planning.ErrAlreadySubmitted)

	rec.StoreID = unique("store")
	assert.NoError(t, s.AppendSubmission(ctx, rec))
}
