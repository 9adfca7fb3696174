package planning_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/backoffice/planning"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const week = "Week 12"

var (
	t0      = time.Date(2025, time.March, 17, 9, 0, 0, 0, time.UTC)
	fixedAt = time.Date(2025, time.March, 20, 12, 0, 0, 0, time.UTC)
)

func fixedReconciler() *planning.Reconciler {
	return &planning.Reconciler{Now: func() time.Time { return fixedAt }}
}

// store builds a hierarchy row. Empty manager ids mean vacant.
func store(id, sm, am, rm string) planning.HierarchyRow {
	return planning.HierarchyRow{
		StoreID:           id,
		StoreCode:         "C" + id,
		StoreName:         "Store " + id,
		StoreActive:       true,
		StoreManagerID:    sm,
		AreaManagerID:     am,
		RegionalManagerID: rm,
	}
}

func submission(userID, storeID string, typ planning.SubmissionType, at time.Time) planning.SubmissionRecord {
	level, _ := typ.Level()
	return planning.SubmissionRecord{
		ID:            userID + "-" + storeID + "-" + string(typ),
		UserID:        userID,
		StoreID:       storeID,
		WeekReference: week,
		Type:          typ,
		Level:         level,
		Status:        planning.StatusSubmitted,
		CreatedAt:     at,
	}
}

func amendment(storeID string, role planning.Role, status planning.AmendmentStatus, qty int) planning.Amendment {
	return planning.Amendment{
		ID:            string(role) + "-" + storeID + "-" + string(status),
		StoreID:       storeID,
		StockCode:     "SKU-1",
		CreatedByRole: role,
		AmendedQty:    qty,
		Status:        status,
		WeekReference: week,
		CreatedAt:     t0,
	}
}

func statusFor(t *testing.T, rec planning.Reconciliation, storeID string) planning.SubmissionStatus {
	t.Helper()
	for _, s := range rec.Statuses {
		if s.StoreID == storeID {
			return s
		}
	}
	require.Failf(t, "missing status", "no status for store %s", storeID)
	return planning.SubmissionStatus{}
}

// =============================================================================
// SEEDING
// =============================================================================

func TestReconcile_EveryStoreGetsExactlyOneStatus(t *testing.T) {
	// GIVEN: Three stores and no submissions or amendments
	// WHEN: Reconciling
	// THEN: One default status per store, in hierarchy order

	rec := fixedReconciler().Reconcile(planning.ReconcileInput{
		WeekReference: week,
		Hierarchy:     []planning.HierarchyRow{store("s1", "", "a1", ""), store("s2", "", "", ""), store("s3", "", "a1", "r1")},
	})

	require.Len(t, rec.Statuses, 3)
	for i, id := range []string{"s1", "s2", "s3"} {
		st := rec.Statuses[i]
		assert.Equal(t, id, st.StoreID)
		assert.Equal(t, week, st.WeekReference)
		assert.Equal(t, planning.WeekOpen, st.WeekStatus)
		assert.Equal(t, planning.StatusNotSubmitted, st.StoreSubmissionStatus)
		assert.Equal(t, planning.StatusNotSubmitted, st.AreaSubmissionStatus)
		assert.Equal(t, planning.StatusNotSubmitted, st.RegionalSubmissionStatus)
		assert.Equal(t, planning.StatusNotSubmitted, st.AdminSubmissionStatus)
		assert.Zero(t, st.TotalAmendments())
		assert.Nil(t, st.AdminSubmittedAt)
	}
}

func TestReconcile_DuplicateHierarchyRowsCollapse(t *testing.T) {
	// GIVEN: The same store listed twice
	// WHEN: Reconciling
	// THEN: Only one status is emitted and the summary counts it once

	rec := fixedReconciler().Reconcile(planning.ReconcileInput{
		WeekReference: week,
		Hierarchy:     []planning.HierarchyRow{store("s1", "", "a1", ""), store("s1", "", "a2", "")},
	})

	assert.Len(t, rec.Statuses, 1)
	assert.Equal(t, 1, rec.Summary.TotalStores)
}

func TestReconcile_IgnoresRowsForUnknownStores(t *testing.T) {
	// GIVEN: Submissions and amendments for a store outside the hierarchy
	// WHEN: Reconciling
	// THEN: They are dropped without error

	rec := fixedReconciler().Reconcile(planning.ReconcileInput{
		WeekReference: week,
		Hierarchy:     []planning.HierarchyRow{store("s1", "m1", "", "")},
		Submissions:   []planning.SubmissionRecord{submission("m9", "s9", planning.SubmissionStore, t0)},
		Amendments:    []planning.Amendment{amendment("s9", planning.RoleStoreManager, planning.AmendmentPending, 4)},
	})

	require.Len(t, rec.Statuses, 1)
	assert.Equal(t, planning.StatusNotSubmitted, rec.Statuses[0].StoreSubmissionStatus)
	assert.Zero(t, rec.Summary.TotalAmendments)
}

// =============================================================================
// SUBMISSIONS
// =============================================================================

func TestReconcile_DirectStoreSubmission(t *testing.T) {
	// GIVEN: A store manager submitted store s1
	// WHEN: Reconciling
	// THEN: Only s1's store level is submitted with the record's timestamp

	rec := fixedReconciler().Reconcile(planning.ReconcileInput{
		WeekReference: week,
		Hierarchy:     []planning.HierarchyRow{store("s1", "m1", "a1", ""), store("s2", "m2", "a1", "")},
		Submissions:   []planning.SubmissionRecord{submission("m1", "s1", planning.SubmissionStore, t0)},
	})

	s1 := statusFor(t, rec, "s1")
	assert.Equal(t, planning.StatusSubmitted, s1.StoreSubmissionStatus)
	require.NotNil(t, s1.StoreSubmittedAt)
	assert.True(t, t0.Equal(*s1.StoreSubmittedAt))
	assert.Equal(t, planning.StatusNotSubmitted, statusFor(t, rec, "s2").StoreSubmissionStatus)
}

func TestReconcile_RegionalAggregatePropagatesToManagedStores(t *testing.T) {
	// GIVEN: r1 manages s1 and s3, r2 manages s2
	// WHEN: r1 submits an aggregate regional submission (no store id)
	// THEN: s1 and s3 are regional-submitted, s2 is not

	rec := fixedReconciler().Reconcile(planning.ReconcileInput{
		WeekReference: week,
		Hierarchy: []planning.HierarchyRow{
			store("s1", "", "a1", "r1"),
			store("s2", "", "a2", "r2"),
			store("s3", "", "a3", "r1"),
		},
		Submissions: []planning.SubmissionRecord{submission("r1", "", planning.SubmissionRegional, t0)},
	})

	assert.Equal(t, planning.StatusSubmitted, statusFor(t, rec, "s1").RegionalSubmissionStatus)
	assert.Equal(t, planning.StatusNotSubmitted, statusFor(t, rec, "s2").RegionalSubmissionStatus)
	assert.Equal(t, planning.StatusSubmitted, statusFor(t, rec, "s3").RegionalSubmissionStatus)
	assert.Equal(t, 1, rec.Summary.RegionalManagersSubmitted)
	assert.Equal(t, 1, rec.Summary.RegionalManagersPending)
}

func TestReconcile_LevelResolvedFromLevelColumn(t *testing.T) {
	// GIVEN: A record with no submission type but level=area
	// WHEN: Reconciling
	// THEN: It applies as an area submission

	sub := planning.SubmissionRecord{UserID: "a1", WeekReference: week, Level: planning.LevelArea, Status: planning.StatusSubmitted, CreatedAt: t0}
	rec := fixedReconciler().Reconcile(planning.ReconcileInput{
		WeekReference: week,
		Hierarchy:     []planning.HierarchyRow{store("s1", "", "a1", "")},
		Submissions:   []planning.SubmissionRecord{sub},
	})

	assert.Equal(t, planning.StatusSubmitted, rec.Statuses[0].AreaSubmissionStatus)
}

func TestReconcile_NonSubmittedRecordsIgnored(t *testing.T) {
	// GIVEN: A pending submission record
	// WHEN: Reconciling
	// THEN: The store stays not_submitted

	sub := submission("m1", "s1", planning.SubmissionStore, t0)
	sub.Status = planning.StatusPending
	rec := fixedReconciler().Reconcile(planning.ReconcileInput{
		WeekReference: week,
		Hierarchy:     []planning.HierarchyRow{store("s1", "m1", "", "")},
		Submissions:   []planning.SubmissionRecord{sub},
	})

	assert.Equal(t, planning.StatusNotSubmitted, rec.Statuses[0].StoreSubmissionStatus)
}

func TestReconcile_LatestSubmissionWinsRegardlessOfOrder(t *testing.T) {
	// GIVEN: Two store submissions for s1, the later one listed first
	// WHEN: Reconciling
	// THEN: The later created_at is the recorded timestamp

	later := t0.Add(2 * time.Hour)
	first := submission("m1", "s1", planning.SubmissionStore, later)
	second := submission("m1", "s1", planning.SubmissionStore, t0)

	rec := fixedReconciler().Reconcile(planning.ReconcileInput{
		WeekReference: week,
		Hierarchy:     []planning.HierarchyRow{store("s1", "m1", "", "")},
		Submissions:   []planning.SubmissionRecord{first, second},
	})

	require.NotNil(t, rec.Statuses[0].StoreSubmittedAt)
	assert.True(t, later.Equal(*rec.Statuses[0].StoreSubmittedAt))
}

// =============================================================================
// AMENDMENTS AND ADMIN STATUS
// =============================================================================

func TestReconcile_RejectionWins(t *testing.T) {
	// GIVEN: s1 has a rejected store-manager amendment and an approved admin one
	// WHEN: Reconciling
	// THEN: Admin status is rejected

	rec := fixedReconciler().Reconcile(planning.ReconcileInput{
		WeekReference: week,
		Hierarchy:     []planning.HierarchyRow{store("s1", "m1", "a1", "r1")},
		Amendments: []planning.Amendment{
			amendment("s1", planning.RoleStoreManager, planning.AmendmentRejected, 3),
			amendment("s1", planning.RoleAdmin, planning.AmendmentApproved, 5),
		},
	})

	s1 := rec.Statuses[0]
	assert.Equal(t, planning.StatusRejected, s1.AdminSubmissionStatus)
	assert.Equal(t, 3, s1.StoreAmendmentCount)
	assert.Equal(t, 5, s1.AdminAmendmentCount)
}

func TestReconcile_RejectionWinsOverManyApprovals(t *testing.T) {
	// GIVEN: Ten approved amendments and one rejected
	// WHEN: Reconciling
	// THEN: Admin status is still rejected

	var amends []planning.Amendment
	for i := 0; i < 10; i++ {
		a := amendment("s1", planning.RoleAreaManager, planning.AmendmentApproved, 1)
		a.ID = a.ID + string(rune('a'+i))
		amends = append(amends, a)
	}
	amends = append(amends, amendment("s1", planning.RoleRegionalManager, planning.AmendmentRejected, 1))

	rec := fixedReconciler().Reconcile(planning.ReconcileInput{
		WeekReference: week,
		Hierarchy:     []planning.HierarchyRow{store("s1", "", "a1", "r1")},
		Amendments:    amends,
	})

	assert.Equal(t, planning.StatusRejected, rec.Statuses[0].AdminSubmissionStatus)
}

func TestReconcile_OpenWorkIsPending(t *testing.T) {
	// GIVEN: One approved and one submitted amendment
	// WHEN: Reconciling
	// THEN: Admin status is pending

	rec := fixedReconciler().Reconcile(planning.ReconcileInput{
		WeekReference: week,
		Hierarchy:     []planning.HierarchyRow{store("s1", "m1", "", "")},
		Amendments: []planning.Amendment{
			amendment("s1", planning.RoleStoreManager, planning.AmendmentApproved, 1),
			amendment("s1", planning.RoleStoreManager, planning.AmendmentSubmitted, 1),
		},
	})

	assert.Equal(t, planning.StatusPending, rec.Statuses[0].AdminSubmissionStatus)
}

func TestReconcile_LegacyAdminStatusesFold(t *testing.T) {
	// GIVEN: Amendments stored as admin_approved
	// WHEN: Reconciling
	// THEN: They count as approved

	a := amendment("s1", planning.RoleStoreManager, planning.AmendmentStatus("admin_approved"), 2)
	rec := fixedReconciler().Reconcile(planning.ReconcileInput{
		WeekReference: week,
		Hierarchy:     []planning.HierarchyRow{store("s1", "m1", "", "")},
		Amendments:    []planning.Amendment{a},
	})

	assert.Equal(t, planning.StatusApproved, rec.Statuses[0].AdminSubmissionStatus)
}

func TestReconcile_DraftsOnlyStayPending(t *testing.T) {
	// GIVEN: A store whose only amendment is a draft
	// WHEN: Reconciling
	// THEN: Admin status falls through to pending, timestamp is the clock

	rec := fixedReconciler().Reconcile(planning.ReconcileInput{
		WeekReference: week,
		Hierarchy:     []planning.HierarchyRow{store("s1", "m1", "", "")},
		Amendments:    []planning.Amendment{amendment("s1", planning.RoleStoreManager, planning.AmendmentDraft, 2)},
	})

	st := rec.Statuses[0]
	assert.Equal(t, planning.StatusPending, st.AdminSubmissionStatus)
	require.NotNil(t, st.AdminSubmittedAt)
	assert.True(t, fixedAt.Equal(*st.AdminSubmittedAt))
}

func TestReconcile_AdminTimestampIsLatestAdminTouch(t *testing.T) {
	// GIVEN: Two admin amendments, one updated later than the other
	// WHEN: Reconciling
	// THEN: admin_submitted_at is the latest updated_at

	a1 := amendment("s1", planning.RoleAdmin, planning.AmendmentApproved, 1)
	a2 := amendment("s1", planning.RoleAdmin, planning.AmendmentApproved, 1)
	a2.ID = "second"
	touched := t0.Add(5 * time.Hour)
	a2.UpdatedAt = touched

	rec := fixedReconciler().Reconcile(planning.ReconcileInput{
		WeekReference: week,
		Hierarchy:     []planning.HierarchyRow{store("s1", "m1", "", "")},
		Amendments:    []planning.Amendment{a1, a2},
	})

	require.NotNil(t, rec.Statuses[0].AdminSubmittedAt)
	assert.True(t, touched.Equal(*rec.Statuses[0].AdminSubmittedAt))
}

// =============================================================================
// AUTO-APPROVAL
// =============================================================================

func TestReconcile_ApprovedLowerLevelAmendmentsResolveApproved(t *testing.T) {
	// GIVEN: Approved amendments from store and area managers only,
	//        and the area manager has submitted
	// WHEN: Reconciling
	// THEN: Admin status is approved

	rec := fixedReconciler().Reconcile(planning.ReconcileInput{
		WeekReference: week,
		Hierarchy:     []planning.HierarchyRow{store("s1", "m1", "a1", "r1")},
		Submissions:   []planning.SubmissionRecord{submission("a1", "", planning.SubmissionArea, t0)},
		Amendments: []planning.Amendment{
			amendment("s1", planning.RoleStoreManager, planning.AmendmentApproved, 2),
			amendment("s1", planning.RoleAreaManager, planning.AmendmentApproved, 1),
		},
	})

	assert.Equal(t, planning.StatusApproved, rec.Statuses[0].AdminSubmissionStatus)
}

func TestReconcile_AutoApprovalUsesLatestManagementSubmission(t *testing.T) {
	// GIVEN: Area and regional both submitted with no amendments
	// WHEN: Reconciling
	// THEN: Admin is auto-approved at the later of the two timestamps

	regionalAt := t0.Add(3 * time.Hour)
	rec := fixedReconciler().Reconcile(planning.ReconcileInput{
		WeekReference: week,
		Hierarchy:     []planning.HierarchyRow{store("s1", "", "a1", "r1")},
		Submissions: []planning.SubmissionRecord{
			submission("a1", "", planning.SubmissionArea, t0),
			submission("r1", "", planning.SubmissionRegional, regionalAt),
		},
	})

	st := rec.Statuses[0]
	assert.Equal(t, planning.StatusApproved, st.AdminSubmissionStatus)
	require.NotNil(t, st.AdminSubmittedAt)
	assert.True(t, regionalAt.Equal(*st.AdminSubmittedAt))
}

func TestReconcile_NoAutoApprovalForStoreSubmissionOnly(t *testing.T) {
	// GIVEN: Only the store manager submitted, no amendments
	// WHEN: Reconciling
	// THEN: Admin stays not_submitted

	rec := fixedReconciler().Reconcile(planning.ReconcileInput{
		WeekReference: week,
		Hierarchy:     []planning.HierarchyRow{store("s1", "m1", "a1", "")},
		Submissions:   []planning.SubmissionRecord{submission("m1", "s1", planning.SubmissionStore, t0)},
	})

	assert.Equal(t, planning.StatusNotSubmitted, rec.Statuses[0].AdminSubmissionStatus)
}

func TestReconcile_ZeroQtyAmendmentBlocksAutoApproval(t *testing.T) {
	// GIVEN: The area manager submitted and a pending store amendment of qty 0 exists
	// WHEN: Reconciling
	// THEN: The record counts as work to review; admin status is pending

	rec := fixedReconciler().Reconcile(planning.ReconcileInput{
		WeekReference: week,
		Hierarchy:     []planning.HierarchyRow{store("s1", "m1", "a1", "")},
		Submissions:   []planning.SubmissionRecord{submission("a1", "", planning.SubmissionArea, t0)},
		Amendments:    []planning.Amendment{amendment("s1", planning.RoleStoreManager, planning.AmendmentPending, 0)},
	})

	assert.Equal(t, planning.StatusPending, rec.Statuses[0].AdminSubmissionStatus)
}

// =============================================================================
// SUMMARY
// =============================================================================

func TestSummarize_CountsDistinctAreaManagers(t *testing.T) {
	// GIVEN: a1 manages three submitted stores, a2 manages one unsubmitted store
	// WHEN: Reconciling
	// THEN: One area manager submitted, one pending

	rec := fixedReconciler().Reconcile(planning.ReconcileInput{
		WeekReference: week,
		Hierarchy: []planning.HierarchyRow{
			store("s1", "", "a1", ""),
			store("s2", "", "a1", ""),
			store("s3", "", "a1", ""),
			store("s4", "", "a2", ""),
		},
		Submissions: []planning.SubmissionRecord{submission("a1", "", planning.SubmissionArea, t0)},
	})

	assert.Equal(t, 1, rec.Summary.AreaManagersSubmitted)
	assert.Equal(t, 1, rec.Summary.AreaManagersPending)
	assert.Equal(t, 4, rec.Summary.TotalStores)
	assert.Equal(t, 0, rec.Summary.StoresSubmitted)
	assert.Equal(t, 4, rec.Summary.StoresPending)
}

// =============================================================================
// END-TO-END SCENARIOS
// =============================================================================

func TestScenario_AreaAggregateAutoApprovesAllStores(t *testing.T) {
	// GIVEN: S1, S2, S3 all under area manager A1 and no amendments
	// WHEN: A1 submits an aggregate area submission
	// THEN: Every store is area-submitted and auto-approved with zero amendments

	rec := fixedReconciler().Reconcile(planning.ReconcileInput{
		WeekReference: week,
		Hierarchy: []planning.HierarchyRow{
			store("S1", "", "A1", ""),
			store("S2", "", "A1", ""),
			store("S3", "", "A1", ""),
		},
		Submissions: []planning.SubmissionRecord{submission("A1", "", planning.SubmissionArea, t0)},
	})

	require.Len(t, rec.Statuses, 3)
	for _, st := range rec.Statuses {
		assert.Equal(t, planning.StatusSubmitted, st.AreaSubmissionStatus, st.StoreID)
		assert.Equal(t, planning.StatusApproved, st.AdminSubmissionStatus, st.StoreID)
		require.NotNil(t, st.AdminSubmittedAt)
		assert.True(t, t0.Equal(*st.AdminSubmittedAt))
	}
	assert.Equal(t, 0, rec.Summary.TotalAmendments)
	assert.Equal(t, 1, rec.Summary.AreaManagersSubmitted)
	assert.Equal(t, 0, rec.Summary.AreaManagersPending)
}

func TestScenario_RejectedStoreAmendmentBeatsApprovedAdminAmendment(t *testing.T) {
	// GIVEN: S1 has a rejected store_manager amendment and an approved admin amendment
	// WHEN: Reconciling
	// THEN: S1's admin status is rejected

	rec := fixedReconciler().Reconcile(planning.ReconcileInput{
		WeekReference: week,
		Hierarchy:     []planning.HierarchyRow{store("S1", "M1", "A1", "R1")},
		Amendments: []planning.Amendment{
			amendment("S1", planning.RoleStoreManager, planning.AmendmentRejected, 4),
			amendment("S1", planning.RoleAdmin, planning.AmendmentApproved, 6),
		},
	})

	assert.Equal(t, planning.StatusRejected, statusFor(t, rec, "S1").AdminSubmissionStatus)
	assert.Equal(t, 10, rec.Summary.TotalAmendments)
}

func TestReconcile_ClosedWeekStatusCarried(t *testing.T) {
	rec := fixedReconciler().Reconcile(planning.ReconcileInput{
		WeekReference: week,
		WeekStatus:    planning.WeekClosed,
		Hierarchy:     []planning.HierarchyRow{store("s1", "", "", "")},
	})
	assert.Equal(t, planning.WeekClosed, rec.Statuses[0].WeekStatus)
}
