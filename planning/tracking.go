/*
tracking.go - Submission tracking for a week

PURPOSE:
  Glue between storage and the reconciler. Fetches the week row, the
  hierarchy, the week's submissions and amendments, runs Reconcile and
  hands back everything the tracking dashboard needs.

FETCHING:
  The three row sets are independent, so they are fetched concurrently.
  The first failure cancels the others and is returned to the caller
  wrapped; there is no retry.

SEE ALSO:
  - reconcile.go: The algorithm
  - filter.go: Narrowing the result for display
*/
package planning

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// WeekTracking is one reconciled week together with the hierarchy it was
// computed against.
type WeekTracking struct {
	Week      WeekSelection
	Hierarchy []HierarchyRow
	Reconciliation
}

type Tracker struct {
	Repo       Repository
	Reconciler *Reconciler
	Log        zerolog.Logger
}

func NewTracker(repo Repository, log zerolog.Logger) *Tracker {
	return &Tracker{Repo: repo, Reconciler: NewReconciler(), Log: log}
}

// Track reconciles the given week.
func (t *Tracker) Track(ctx context.Context, weekRef string) (*WeekTracking, error) {
	start := time.Now()
	defer func() { reconcileDuration.Observe(time.Since(start).Seconds()) }()

	week, err := t.Repo.GetWeek(ctx, weekRef)
	if err != nil {
		return nil, fmt.Errorf("failed to load week %s: %w", weekRef, err)
	}
	if week == nil {
		return nil, fmt.Errorf("%w: %s", ErrWeekNotFound, weekRef)
	}

	var (
		hierarchy   []HierarchyRow
		submissions []SubmissionRecord
		amendments  []Amendment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := t.Repo.ListHierarchy(gctx)
		if err != nil {
			return fmt.Errorf("failed to load hierarchy: %w", err)
		}
		hierarchy = rows
		return nil
	})
	g.Go(func() error {
		rows, err := t.Repo.ListSubmissions(gctx, weekRef)
		if err != nil {
			return fmt.Errorf("failed to load submissions: %w", err)
		}
		submissions = rows
		return nil
	})
	g.Go(func() error {
		rows, err := t.Repo.ListAmendments(gctx, AmendmentFilter{WeekReference: weekRef})
		if err != nil {
			return fmt.Errorf("failed to load amendments: %w", err)
		}
		amendments = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		t.Log.Error().Err(err).Str("week", weekRef).Msg("tracking fetch failed")
		return nil, err
	}

	rec := t.Reconciler.Reconcile(ReconcileInput{
		WeekReference: weekRef,
		WeekStatus:    week.Status,
		Hierarchy:     hierarchy,
		Submissions:   submissions,
		Amendments:    amendments,
	})
	reconciliationsTotal.Inc()

	t.Log.Debug().
		Str("week", weekRef).
		Int("stores", rec.Summary.TotalStores).
		Int("submissions", len(submissions)).
		Int("amendments", len(amendments)).
		Dur("took", time.Since(start)).
		Msg("week reconciled")

	return &WeekTracking{Week: *week, Hierarchy: hierarchy, Reconciliation: rec}, nil
}
