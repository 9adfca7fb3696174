package planning_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/backoffice/planning"
	memstore "github.com/warp/backoffice/planning/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type recorder struct {
	mu     sync.Mutex
	events []planning.ChangeEvent
}

func (r *recorder) Publish(e planning.ChangeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) kinds() []planning.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []planning.EventKind
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

type workflow struct {
	repo     *memstore.Memory
	svc      *planning.AmendmentService
	weeks    *planning.WeekService
	tracker  *planning.Tracker
	datasets *planning.DatasetLoader
	events   *recorder

	admin, sm1, sm2, am1, rm1 planning.User
	s1, s2                    planning.Store
}

func newWorkflow(t *testing.T) *workflow {
	t.Helper()
	ctx := context.Background()
	repo := memstore.NewMemory()
	log := zerolog.Nop()

	user := func(email string, role planning.Role) planning.User {
		u, _, err := repo.UpsertUser(ctx, planning.User{Email: email, FirstName: string(role), Role: role, Active: true})
		require.NoError(t, err)
		return u
	}
	shop := func(code, name string) planning.Store {
		s, _, err := repo.UpsertStore(ctx, planning.Store{Code: code, Name: name, Active: true})
		require.NoError(t, err)
		return s
	}
	assign := func(kind planning.AssignmentKind, manager, subject string) {
		_, err := repo.UpsertAssignment(ctx, planning.Assignment{Kind: kind, ManagerID: manager, SubjectID: subject})
		require.NoError(t, err)
	}

	w := &workflow{repo: repo, events: &recorder{}}
	w.admin = user("admin@example.com", planning.RoleAdmin)
	w.sm1 = user("sm1@example.com", planning.RoleStoreManager)
	w.sm2 = user("sm2@example.com", planning.RoleStoreManager)
	w.am1 = user("am1@example.com", planning.RoleAreaManager)
	w.rm1 = user("rm1@example.com", planning.RoleRegionalManager)
	w.s1 = shop("DBN01", "Durban North")
	w.s2 = shop("DBN02", "Durban South")

	assign(planning.AssignStoreManager, w.sm1.ID, w.s1.ID)
	assign(planning.AssignStoreManager, w.sm2.ID, w.s2.ID)
	assign(planning.AssignAreaManager, w.am1.ID, w.s1.ID)
	assign(planning.AssignAreaManager, w.am1.ID, w.s2.ID)
	assign(planning.AssignRegionalArea, w.rm1.ID, w.am1.ID)

	require.NoError(t, repo.SaveWeek(ctx, planning.WeekSelection{
		Reference: week, StartDate: t0, EndDate: t0.AddDate(0, 0, 6), Year: 2025, WeekNumber: 12,
		IsCurrent: true, IsActive: true, Status: planning.WeekOpen,
	}))

	w.datasets = planning.NewDatasetLoader(repo, time.Hour, 2, log)
	w.svc = planning.NewAmendmentService(repo, w.datasets, w.events, log)
	w.weeks = planning.NewWeekService(repo, w.datasets, w.events, log)
	w.tracker = planning.NewTracker(repo, log)
	return w
}

func (w *workflow) input(storeID string, qty int) planning.AmendmentInput {
	return planning.AmendmentInput{
		WeekReference: week,
		StoreID:       storeID,
		StockCode:     "SKU-100",
		Category:      "MATTRESS",
		OriginalQty:   2,
		AmendedQty:    qty,
		Justification: "promo weekend",
	}
}

// =============================================================================
// SAVE
// =============================================================================

func TestSaveAmendment_EditsOpenRowInPlace(t *testing.T) {
	// GIVEN: A store manager saved an amendment for SKU-100
	// WHEN: Saving the same line again with a new quantity
	// THEN: The existing row is updated, not duplicated

	w := newWorkflow(t)
	ctx := context.Background()

	first, err := w.svc.SaveAmendment(ctx, w.sm1, w.input(w.s1.ID, 5))
	require.NoError(t, err)
	assert.Equal(t, planning.AmendmentPending, first.Status)
	assert.Equal(t, planning.RoleStoreManager, first.CreatedByRole)

	second, err := w.svc.SaveAmendment(ctx, w.sm1, w.input(w.s1.ID, 8))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	all, err := w.repo.ListAmendments(ctx, planning.AmendmentFilter{WeekReference: week})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 8, all[0].AmendedQty)
	assert.Equal(t, []planning.EventKind{planning.EventAmendmentSaved, planning.EventAmendmentSaved}, w.events.kinds())
}

func TestSaveAmendment_RolesKeepSeparateRows(t *testing.T) {
	// GIVEN: The store manager amended SKU-100
	// WHEN: The area manager amends the same line
	// THEN: Two rows exist, one per role

	w := newWorkflow(t)
	ctx := context.Background()

	_, err := w.svc.SaveAmendment(ctx, w.sm1, w.input(w.s1.ID, 5))
	require.NoError(t, err)
	_, err = w.svc.SaveAmendment(ctx, w.am1, w.input(w.s1.ID, 3))
	require.NoError(t, err)

	all, err := w.repo.ListAmendments(ctx, planning.AmendmentFilter{WeekReference: week})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSaveAmendment_RejectsStoreOutsideActorsHierarchy(t *testing.T) {
	w := newWorkflow(t)

	_, err := w.svc.SaveAmendment(context.Background(), w.sm1, w.input(w.s2.ID, 5))

	assert.True(t, planning.IsForbidden(err))
	var access *planning.AccessError
	assert.ErrorAs(t, err, &access)
}

func TestSaveAmendment_UnknownStore(t *testing.T) {
	w := newWorkflow(t)

	_, err := w.svc.SaveAmendment(context.Background(), w.admin, w.input("nope", 5))

	assert.True(t, planning.IsNotFound(err))
}

func TestSaveAmendment_ClosedWeek(t *testing.T) {
	// GIVEN: The admin closed the week
	// WHEN: A store manager tries to amend
	// THEN: ErrWeekClosed and nothing is written

	w := newWorkflow(t)
	ctx := context.Background()
	_, err := w.weeks.SetWeekStatus(ctx, w.admin, week, planning.WeekClosed)
	require.NoError(t, err)

	_, err = w.svc.SaveAmendment(ctx, w.sm1, w.input(w.s1.ID, 5))

	assert.ErrorIs(t, err, planning.ErrWeekClosed)
	all, _ := w.repo.ListAmendments(ctx, planning.AmendmentFilter{WeekReference: week})
	assert.Empty(t, all)
}

func TestSaveAmendment_ValidatesInput(t *testing.T) {
	w := newWorkflow(t)
	in := w.input(w.s1.ID, -1)

	_, err := w.svc.SaveAmendment(context.Background(), w.sm1, in)

	assert.True(t, planning.IsClientError(err))
}

// =============================================================================
// SUBMIT
// =============================================================================

func TestSubmitWeek_StoreManagerMovesPendingToSubmitted(t *testing.T) {
	w := newWorkflow(t)
	ctx := context.Background()
	a, err := w.svc.SaveAmendment(ctx, w.sm1, w.input(w.s1.ID, 5))
	require.NoError(t, err)

	rec, err := w.svc.SubmitWeek(ctx, w.sm1, week, w.s1.ID)
	require.NoError(t, err)
	assert.Equal(t, planning.SubmissionStore, rec.Type)
	assert.Equal(t, w.s1.ID, rec.StoreID)

	got, err := w.repo.GetAmendment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, planning.AmendmentSubmitted, got.Status)

	_, err = w.svc.SubmitWeek(ctx, w.sm1, week, w.s1.ID)
	assert.ErrorIs(t, err, planning.ErrAlreadySubmitted)
}

func TestSubmitWeek_StoreManagerNeedsStore(t *testing.T) {
	w := newWorkflow(t)

	_, err := w.svc.SubmitWeek(context.Background(), w.sm1, week, "")

	assert.ErrorIs(t, err, planning.ErrInvalidInput)
}

func TestSubmitWeek_AdminCannotSubmit(t *testing.T) {
	w := newWorkflow(t)

	_, err := w.svc.SubmitWeek(context.Background(), w.admin, week, "")

	assert.True(t, planning.IsForbidden(err))
}

func TestSubmitWeek_AreaAggregateShowsOnEveryStore(t *testing.T) {
	// GIVEN: am1 manages s1 and s2, nobody amended anything
	// WHEN: am1 submits the week without a store
	// THEN: Tracking shows both stores area-submitted and auto-approved

	w := newWorkflow(t)
	ctx := context.Background()

	rec, err := w.svc.SubmitWeek(ctx, w.am1, week, "")
	require.NoError(t, err)
	assert.Empty(t, rec.StoreID)

	tracking, err := w.tracker.Track(ctx, week)
	require.NoError(t, err)
	require.Len(t, tracking.Statuses, 2)
	for _, st := range tracking.Statuses {
		assert.Equal(t, planning.StatusSubmitted, st.AreaSubmissionStatus)
		assert.Equal(t, planning.StatusApproved, st.AdminSubmissionStatus)
	}
	assert.Equal(t, 1, tracking.Summary.AreaManagersSubmitted)
}

// =============================================================================
// ADMIN DECISIONS
// =============================================================================

func TestApprove_SetsApprovedQtyAndIsFinal(t *testing.T) {
	w := newWorkflow(t)
	ctx := context.Background()
	a, err := w.svc.SaveAmendment(ctx, w.sm1, w.input(w.s1.ID, 5))
	require.NoError(t, err)

	approved, err := w.svc.Approve(ctx, w.admin, a.ID, nil, "ok")
	require.NoError(t, err)
	assert.Equal(t, planning.AmendmentApproved, approved.Status)
	require.NotNil(t, approved.ApprovedQty)
	assert.Equal(t, 5, *approved.ApprovedQty)
	assert.Equal(t, w.admin.ID, approved.AdminID)

	_, err = w.svc.Reject(ctx, w.admin, a.ID, "changed my mind")
	assert.ErrorIs(t, err, planning.ErrInvalidTransition)
}

func TestApprove_OnlyAdmins(t *testing.T) {
	w := newWorkflow(t)
	ctx := context.Background()
	a, err := w.svc.SaveAmendment(ctx, w.sm1, w.input(w.s1.ID, 5))
	require.NoError(t, err)

	_, err = w.svc.Approve(ctx, w.am1, a.ID, nil, "")

	assert.True(t, planning.IsForbidden(err))
}

func TestReject_MissingAmendment(t *testing.T) {
	w := newWorkflow(t)

	_, err := w.svc.Reject(context.Background(), w.admin, "missing", "")

	assert.ErrorIs(t, err, planning.ErrAmendmentNotFound)
}

func TestModify_RejectsOriginalAndInsertsReplacement(t *testing.T) {
	// GIVEN: A submitted store amendment of 5
	// WHEN: The admin modifies it to 3
	// THEN: The original is rejected and an approved admin_edit replaces it

	w := newWorkflow(t)
	ctx := context.Background()
	a, err := w.svc.SaveAmendment(ctx, w.sm1, w.input(w.s1.ID, 5))
	require.NoError(t, err)
	_, err = w.svc.SubmitWeek(ctx, w.sm1, week, w.s1.ID)
	require.NoError(t, err)

	repl, err := w.svc.Modify(ctx, w.admin, a.ID, 3, "stock constraint")
	require.NoError(t, err)

	assert.Equal(t, a.ID, repl.ReplacesID)
	assert.Equal(t, planning.AmendmentApproved, repl.Status)
	assert.Equal(t, planning.AmendmentAdminEdit, repl.Type)
	assert.Equal(t, planning.RoleAdmin, repl.CreatedByRole)
	assert.Equal(t, 5, repl.OriginalQty)
	assert.Equal(t, 3, repl.EffectiveQty())

	orig, err := w.repo.GetAmendment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, planning.AmendmentRejected, orig.Status)
	assert.Contains(t, orig.AdminNotes, "stock constraint")
}

func TestModify_IllegalTransitionLeavesNothingBehind(t *testing.T) {
	// GIVEN: An already approved amendment
	// WHEN: The admin tries to modify it
	// THEN: The call fails and no replacement row exists

	w := newWorkflow(t)
	ctx := context.Background()
	a, err := w.svc.SaveAmendment(ctx, w.sm1, w.input(w.s1.ID, 5))
	require.NoError(t, err)
	_, err = w.svc.Approve(ctx, w.admin, a.ID, nil, "")
	require.NoError(t, err)

	_, err = w.svc.Modify(ctx, w.admin, a.ID, 1, "late change")

	assert.ErrorIs(t, err, planning.ErrInvalidTransition)
	all, _ := w.repo.ListAmendments(ctx, planning.AmendmentFilter{WeekReference: week})
	assert.Len(t, all, 1)
}

func TestModify_RequiresReason(t *testing.T) {
	w := newWorkflow(t)

	_, err := w.svc.Modify(context.Background(), w.admin, "any", 1, "  ")

	assert.ErrorIs(t, err, planning.ErrInvalidInput)
}

// =============================================================================
// VISIBILITY, CACHE, WEEKS
// =============================================================================

func TestList_ScopesManagersToTheirStores(t *testing.T) {
	w := newWorkflow(t)
	ctx := context.Background()
	_, err := w.svc.SaveAmendment(ctx, w.sm1, w.input(w.s1.ID, 5))
	require.NoError(t, err)
	_, err = w.svc.SaveAmendment(ctx, w.sm2, w.input(w.s2.ID, 7))
	require.NoError(t, err)

	mine, err := w.svc.List(ctx, w.sm2, planning.AmendmentFilter{WeekReference: week})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, w.s2.ID, mine[0].StoreID)

	area, err := w.svc.List(ctx, w.am1, planning.AmendmentFilter{WeekReference: week})
	require.NoError(t, err)
	assert.Len(t, area, 2)

	all, err := w.svc.List(ctx, w.admin, planning.AmendmentFilter{WeekReference: week})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestDataset_CachedUntilWrite(t *testing.T) {
	// GIVEN: A week with three plan lines, loaded once
	// WHEN: Loading again, then after an amendment is saved
	// THEN: The second load is cached; the write invalidates it

	w := newWorkflow(t)
	ctx := context.Background()
	require.NoError(t, w.repo.AppendWeeklyPlan(ctx, []planning.WeeklyPlanLine{
		{WeekReference: week, StockCode: "A", Volume: decimal.RequireFromString("1.25"), OrderQty: 2},
		{WeekReference: week, StockCode: "B", Volume: decimal.RequireFromString("0.50"), OrderQty: 1},
		{WeekReference: week, StockCode: "C", Volume: decimal.RequireFromString("2.00"), OrderQty: 4},
	}))

	var pages int
	first, err := w.datasets.Load(ctx, week, func(int) { pages++ })
	require.NoError(t, err)
	assert.Len(t, first.Lines, 3)
	assert.Equal(t, 2, pages)
	assert.True(t, decimal.RequireFromString("3.75").Equal(first.TotalVolume))
	assert.Equal(t, 7, first.TotalOrderQty)

	cached, err := w.datasets.Load(ctx, week, nil)
	require.NoError(t, err)
	assert.Same(t, first, cached)

	_, err = w.svc.SaveAmendment(ctx, w.sm1, w.input(w.s1.ID, 5))
	require.NoError(t, err)

	fresh, err := w.datasets.Load(ctx, week, nil)
	require.NoError(t, err)
	assert.NotSame(t, first, fresh)
	assert.Len(t, fresh.Amendments, 1)
}

// pausingRepo holds the first ListAmendments result until release is closed.
type pausingRepo struct {
	planning.Repository
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (p *pausingRepo) ListAmendments(ctx context.Context, f planning.AmendmentFilter) ([]planning.Amendment, error) {
	rows, err := p.Repository.ListAmendments(ctx, f)
	p.once.Do(func() {
		close(p.entered)
		<-p.release
	})
	return rows, err
}

func TestDataset_WriteDuringLoadIsNotLostFromCache(t *testing.T) {
	// GIVEN: A dataset load that has read its amendments but not stored them
	// WHEN: An amendment is saved before the load finishes
	// THEN: The in-flight result is not cached; the next load sees the write

	w := newWorkflow(t)
	ctx := context.Background()
	slow := &pausingRepo{Repository: w.repo, entered: make(chan struct{}), release: make(chan struct{})}
	w.datasets.Repo = slow

	type result struct {
		ds  *planning.WeekDataset
		err error
	}
	done := make(chan result, 1)
	go func() {
		ds, err := w.datasets.Load(ctx, week, nil)
		done <- result{ds, err}
	}()

	<-slow.entered
	_, err := w.svc.SaveAmendment(ctx, w.sm1, w.input(w.s1.ID, 5))
	require.NoError(t, err)
	close(slow.release)

	inflight := <-done
	require.NoError(t, inflight.err)
	assert.Empty(t, inflight.ds.Amendments)

	after, err := w.datasets.Load(ctx, week, nil)
	require.NoError(t, err)
	assert.Len(t, after.Amendments, 1)
}

func TestSetWeekStatus_UpdatesSubmissions(t *testing.T) {
	w := newWorkflow(t)
	ctx := context.Background()
	_, err := w.svc.SubmitWeek(ctx, w.sm1, week, w.s1.ID)
	require.NoError(t, err)

	closed, err := w.weeks.SetWeekStatus(ctx, w.admin, week, planning.WeekClosed)
	require.NoError(t, err)
	assert.Equal(t, planning.WeekClosed, closed.Status)

	subs, err := w.repo.ListSubmissions(ctx, week)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, planning.WeekClosed, subs[0].WeekStatus)

	_, err = w.weeks.SetWeekStatus(ctx, w.sm1, week, planning.WeekOpen)
	assert.True(t, planning.IsForbidden(err))

	_, err = w.weeks.SetWeekStatus(ctx, w.admin, "Week 99", planning.WeekOpen)
	assert.True(t, planning.IsNotFound(err))
}

func TestEnsureWeek_CreatesIsoWeekAndMarksCurrent(t *testing.T) {
	// GIVEN: Week 12 is current
	// WHEN: Ensuring the week of 2025-03-26 (ISO week 13)
	// THEN: "Week 13" is created Monday to Sunday and becomes current

	w := newWorkflow(t)
	ctx := context.Background()

	wk, created, err := w.weeks.EnsureWeek(ctx, time.Date(2025, 3, 26, 15, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "Week 13", wk.Reference)
	assert.Equal(t, time.Monday, wk.StartDate.Weekday())
	assert.Equal(t, time.Date(2025, 3, 24, 0, 0, 0, 0, time.UTC), wk.StartDate)
	assert.Equal(t, time.Date(2025, 3, 30, 0, 0, 0, 0, time.UTC), wk.EndDate)

	current, err := w.weeks.CurrentWeek(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Week 13", current.Reference)

	_, created, err = w.weeks.EnsureWeek(ctx, time.Date(2025, 3, 27, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, created)
}

func TestWeekFor_YearBoundary(t *testing.T) {
	// 2024-12-30 is a Monday in ISO week 1 of 2025.
	wk := planning.WeekFor(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "Week 01", wk.Reference)
	assert.Equal(t, 2025, wk.Year)
	assert.Equal(t, time.Date(2024, 12, 30, 0, 0, 0, 0, time.UTC), wk.StartDate)
}
