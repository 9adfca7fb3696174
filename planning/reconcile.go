/*
reconcile.go - Amendment status reconciliation

PURPOSE:
  Derives one authoritative SubmissionStatus per store for a week from the
  raw submission rows, the raw amendment rows and the store hierarchy.
  Nothing here touches storage; callers fetch the rows and hand them over.

ALGORITHM:
  1. Seed:      one not_submitted / zero-count entry per hierarchy store
  2. Submit:    apply every submitted record, directly (store_id set) or
                fanned out to every store under the submitting manager
  3. Amend:     per store, sum amended_qty per role and tally statuses
                across roles; resolve the admin level by priority
                rejected > pending > approved > pending
  4. Auto:      a management submission with no line changes below admin
                is approved without review
  5. Summarize: distinct submitting managers, amendment totals

ORDERING:
  For the same (store, level) the record with the latest created_at wins.
  Records with identical timestamps fall back to input order (last wins).
  Inputs need not be sorted.

SEE ALSO:
  - status.go: StatusTally.Resolve
  - tracking.go: Tracker.Track fetches inputs and calls Reconcile
*/
package planning

import (
	"time"
)

// Reconciler turns raw rows into per-store statuses.
type Reconciler struct {
	// Now supplies the fallback admin timestamp. Defaults to time.Now.
	Now func() time.Time
}

func NewReconciler() *Reconciler {
	return &Reconciler{Now: time.Now}
}

// ReconcileInput is everything one reconciliation needs.
type ReconcileInput struct {
	WeekReference string
	WeekStatus    WeekStatus
	Hierarchy     []HierarchyRow
	Submissions   []SubmissionRecord
	Amendments    []Amendment
}

// Reconciliation is the result: statuses in hierarchy order plus a summary.
type Reconciliation struct {
	WeekReference string             `json:"week_reference"`
	Statuses      []SubmissionStatus `json:"statuses"`
	Summary       SubmissionSummary  `json:"summary"`
}

// roleRecords counts amendment rows (not quantities) per role for a store.
type roleRecords map[Role]int

// Reconcile runs the full algorithm. It never fails; malformed rows are
// skipped.
func (r *Reconciler) Reconcile(in ReconcileInput) Reconciliation {
	now := time.Now
	if r != nil && r.Now != nil {
		now = r.Now
	}
	weekStatus := in.WeekStatus
	if weekStatus == "" {
		weekStatus = WeekOpen
	}

	// 1. Seed every store in the snapshot. Duplicate hierarchy rows for the
	// same store collapse onto the first.
	statuses := make([]SubmissionStatus, 0, len(in.Hierarchy))
	index := make(map[string]int, len(in.Hierarchy))
	rows := make([]HierarchyRow, 0, len(in.Hierarchy))
	for _, h := range in.Hierarchy {
		if h.StoreID == "" {
			continue
		}
		if _, seen := index[h.StoreID]; seen {
			continue
		}
		index[h.StoreID] = len(statuses)
		rows = append(rows, h)
		statuses = append(statuses, SubmissionStatus{
			StoreID:                  h.StoreID,
			WeekReference:            in.WeekReference,
			WeekStatus:               weekStatus,
			StoreSubmissionStatus:    StatusNotSubmitted,
			AreaSubmissionStatus:     StatusNotSubmitted,
			RegionalSubmissionStatus: StatusNotSubmitted,
			AdminSubmissionStatus:    StatusNotSubmitted,
		})
	}

	// 2. Submissions.
	for _, sub := range in.Submissions {
		if sub.Status != StatusSubmitted {
			continue
		}
		level, ok := sub.ResolveLevel()
		if !ok {
			continue
		}
		if sub.StoreID != "" {
			if i, ok := index[sub.StoreID]; ok {
				applySubmission(&statuses[i], level, sub.CreatedAt)
			}
			continue
		}
		if sub.UserID == "" {
			continue
		}
		for i, h := range rows {
			if h.ManagerAt(level) == sub.UserID {
				applySubmission(&statuses[i], level, sub.CreatedAt)
			}
		}
	}

	// 3. Amendments, grouped by store.
	groups := make(map[string][]Amendment)
	for _, a := range in.Amendments {
		if a.StoreID == "" {
			continue
		}
		if _, ok := index[a.StoreID]; !ok {
			continue
		}
		groups[a.StoreID] = append(groups[a.StoreID], a)
	}

	records := make(map[string]roleRecords, len(groups))
	for storeID, group := range groups {
		st := &statuses[index[storeID]]
		counts := roleRecords{}
		var tally StatusTally
		var latestAdmin time.Time

		for _, a := range group {
			switch a.CreatedByRole {
			case RoleStoreManager:
				st.StoreAmendmentCount += a.AmendedQty
			case RoleAreaManager:
				st.AreaAmendmentCount += a.AmendedQty
			case RoleRegionalManager:
				st.RegionalAmendmentCount += a.AmendedQty
			case RoleAdmin:
				st.AdminAmendmentCount += a.AmendedQty
				if t := a.LastTouched(); t.After(latestAdmin) {
					latestAdmin = t
				}
			}
			counts[a.CreatedByRole]++
			tally.Add(a.Status)
		}
		records[storeID] = counts

		st.AdminSubmissionStatus = tally.Resolve()
		if latestAdmin.IsZero() {
			latestAdmin = now()
		}
		st.AdminSubmittedAt = timePtr(latestAdmin)
	}

	// 4. Auto-approval for management submissions with nothing to review.
	for i := range statuses {
		st := &statuses[i]
		counts := records[st.StoreID]

		managementSubmitted := st.AreaSubmissionStatus == StatusSubmitted ||
			st.RegionalSubmissionStatus == StatusSubmitted
		lowerLevelAmendments := counts[RoleStoreManager]+counts[RoleAreaManager]+counts[RoleRegionalManager] > 0
		adminAction := counts[RoleAdmin] > 0

		if managementSubmitted && !lowerLevelAmendments && !adminAction &&
			st.AdminSubmissionStatus == StatusNotSubmitted {
			st.AdminSubmissionStatus = StatusApproved
			st.AdminSubmittedAt = timePtr(latestOf(st.AreaSubmittedAt, st.RegionalSubmittedAt, now))
		}
	}

	return Reconciliation{
		WeekReference: in.WeekReference,
		Statuses:      statuses,
		Summary:       Summarize(rows, statuses),
	}
}

// applySubmission records a submitted level unless a later record for the
// same level was already applied.
func applySubmission(st *SubmissionStatus, level Level, at time.Time) {
	var status *LevelStatus
	var stamp **time.Time
	switch level {
	case LevelStore:
		status, stamp = &st.StoreSubmissionStatus, &st.StoreSubmittedAt
	case LevelArea:
		status, stamp = &st.AreaSubmissionStatus, &st.AreaSubmittedAt
	case LevelRegional:
		status, stamp = &st.RegionalSubmissionStatus, &st.RegionalSubmittedAt
	default:
		return
	}
	if *stamp != nil && at.Before(**stamp) {
		return
	}
	*status = StatusSubmitted
	*stamp = timePtr(at)
}

// Summarize computes dashboard counters. Managers are counted once no matter
// how many of their stores submitted.
func Summarize(hierarchy []HierarchyRow, statuses []SubmissionStatus) SubmissionSummary {
	byStore := make(map[string]SubmissionStatus, len(statuses))
	for _, s := range statuses {
		byStore[s.StoreID] = s
	}

	areaManagers := map[string]struct{}{}
	regionalManagers := map[string]struct{}{}
	submittedArea := map[string]struct{}{}
	submittedRegional := map[string]struct{}{}
	seen := map[string]struct{}{}

	var summary SubmissionSummary
	for _, h := range hierarchy {
		if _, dup := seen[h.StoreID]; dup {
			continue
		}
		seen[h.StoreID] = struct{}{}
		summary.TotalStores++

		if h.AreaManagerID != "" {
			areaManagers[h.AreaManagerID] = struct{}{}
		}
		if h.RegionalManagerID != "" {
			regionalManagers[h.RegionalManagerID] = struct{}{}
		}

		st, ok := byStore[h.StoreID]
		if !ok {
			continue
		}
		if st.StoreSubmissionStatus == StatusSubmitted {
			summary.StoresSubmitted++
		}
		if st.AreaSubmissionStatus == StatusSubmitted && h.AreaManagerID != "" {
			submittedArea[h.AreaManagerID] = struct{}{}
		}
		if st.RegionalSubmissionStatus == StatusSubmitted && h.RegionalManagerID != "" {
			submittedRegional[h.RegionalManagerID] = struct{}{}
		}
		summary.TotalAmendments += st.TotalAmendments()
	}

	summary.StoresPending = summary.TotalStores - summary.StoresSubmitted
	summary.AreaManagersSubmitted = len(submittedArea)
	summary.AreaManagersPending = len(areaManagers) - len(submittedArea)
	summary.RegionalManagersSubmitted = len(submittedRegional)
	summary.RegionalManagersPending = len(regionalManagers) - len(submittedRegional)
	return summary
}

func latestOf(a, b *time.Time, now func() time.Time) time.Time {
	switch {
	case a != nil && b != nil:
		if b.After(*a) {
			return *b
		}
		return *a
	case a != nil:
		return *a
	case b != nil:
		return *b
	}
	return now()
}

func timePtr(t time.Time) *time.Time {
	return &t
}
