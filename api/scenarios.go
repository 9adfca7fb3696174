/*
scenarios.go - Demo scenario loaders for development and demonstrations

PURPOSE:

	Populates an empty database with a small but realistic region so the
	dashboard has something to show: managers at every level, stores, the
	current week and its weekly plan.

AVAILABLE SCENARIOS:

	fresh-week:  One region, two areas, four stores, nothing submitted yet
	mid-week:    fresh-week plus amendments, one store submission and an
	             area submission

HOW SCENARIOS WORK:
 1. Upsert managers, stores and assignments (safe to repeat)
 2. Ensure the current ISO week exists
 3. Append plan lines unless the week already has some
 4. mid-week only: save amendments and submit as the managers would

USAGE:

	server -scenario=mid-week

	POST /api/scenarios/load
	{"scenario_id": "mid-week"}

NOTE:

	The endpoints are only mounted when dev auth is enabled. Scenarios never
	delete data. The demo admin is admin@demo.local.

SEE ALSO:
  - handlers.go: Services the loaders drive
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/warp/backoffice/planning"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

var scenarios = []ScenarioDTO{
	{
		ID:          "fresh-week",
		Name:        "Fresh Week",
		Description: "One region, two areas, four stores; nothing submitted yet",
	},
	{
		ID:          "mid-week",
		Name:        "Mid-Week",
		Description: "Amendments saved, one store and one area submitted",
	},
}

// ListScenarios returns available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario loads a scenario into the database.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}

	week, err := h.RunScenario(r.Context(), req.ScenarioID)
	if err != nil {
		h.fail(w, r, "Failed to load scenario", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scenario_id": req.ScenarioID,
		"week":        toWeekDTO(*week),
	})
}

// RunScenario loads a scenario by id and returns the week it populated.
func (h *Handler) RunScenario(ctx context.Context, id string) (*planning.WeekSelection, error) {
	var (
		d   *demo
		err error
	)
	switch id {
	case "fresh-week":
		d, err = h.loadFreshWeek(ctx)
	case "mid-week":
		d, err = h.loadMidWeek(ctx)
	default:
		return nil, &planning.UnknownValueError{Kind: "scenario", Value: id}
	}
	if err != nil {
		return nil, err
	}
	h.Log.Info().Str("scenario", id).Str("week", d.week.Reference).Int("stores", len(d.stores)).Msg("scenario loaded")
	return &d.week, nil
}

// =============================================================================
// LOADERS
// =============================================================================

type demo struct {
	week     planning.WeekSelection
	admin    planning.User
	regional planning.User
	areas    []planning.User
	managers []planning.User
	stores   []planning.Store
}

var demoStores = []struct{ code, name, region string }{
	{"DBN01", "Durban North", "KZN"},
	{"DBN02", "Durban South", "KZN"},
	{"PMB01", "Pietermaritzburg", "KZN"},
	{"BAL01", "Ballito", "KZN"},
}

var demoLines = []struct {
	code, category, description string
	volume                      string
	onHand, order               int
}{
	{"MAT-Q-001", "MATT", "Queen mattress firm", "0.62", 4, 6},
	{"MAT-K-002", "MATT", "King mattress plush", "0.81", 2, 3},
	{"BAS-Q-010", "BASE", "Queen base", "0.44", 5, 4},
	{"PIL-STD-3", "PIL", "Standard pillow", "0.02", 30, 24},
}

// loadFreshWeek creates the directory, the current week and its plan.
func (h *Handler) loadFreshWeek(ctx context.Context) (*demo, error) {
	d := &demo{}
	user := func(email, first, last string, role planning.Role) (planning.User, error) {
		u, _, err := h.Repo.UpsertUser(ctx, planning.User{
			Email: email, FirstName: first, LastName: last, Role: role, Active: true,
		})
		return u, err
	}
	assign := func(kind planning.AssignmentKind, manager, subject string) error {
		_, err := h.Repo.UpsertAssignment(ctx, planning.Assignment{Kind: kind, ManagerID: manager, SubjectID: subject})
		return err
	}

	var err error
	if d.admin, err = user("admin@demo.local", "Demo", "Admin", planning.RoleAdmin); err != nil {
		return nil, err
	}
	if d.regional, err = user("rita.naidoo@demo.local", "Rita", "Naidoo", planning.RoleRegionalManager); err != nil {
		return nil, err
	}
	for i, name := range [][2]string{{"Andile", "Mokoena"}, {"Priya", "Govender"}} {
		am, err := user(fmt.Sprintf("area%d@demo.local", i+1), name[0], name[1], planning.RoleAreaManager)
		if err != nil {
			return nil, err
		}
		if err := assign(planning.AssignRegionalArea, d.regional.ID, am.ID); err != nil {
			return nil, err
		}
		d.areas = append(d.areas, am)
	}

	for i, s := range demoStores {
		st, _, err := h.Repo.UpsertStore(ctx, planning.Store{Code: s.code, Name: s.name, Region: s.region, Active: true})
		if err != nil {
			return nil, err
		}
		sm, err := user(fmt.Sprintf("%s@demo.local", st.Code), "Manager", st.Name, planning.RoleStoreManager)
		if err != nil {
			return nil, err
		}
		area := d.areas[i%len(d.areas)]
		for _, a := range []planning.Assignment{
			{Kind: planning.AssignStoreManager, ManagerID: sm.ID, SubjectID: st.ID},
			{Kind: planning.AssignAreaManager, ManagerID: area.ID, SubjectID: st.ID},
			{Kind: planning.AssignRegionalManager, ManagerID: d.regional.ID, SubjectID: st.ID},
		} {
			if err := assign(a.Kind, a.ManagerID, a.SubjectID); err != nil {
				return nil, err
			}
		}
		d.stores = append(d.stores, st)
		d.managers = append(d.managers, sm)
	}

	week, _, err := h.Weeks.EnsureWeek(ctx, h.Weeks.Now())
	if err != nil {
		return nil, err
	}
	d.week = *week

	existing, err := h.Repo.ListWeeklyPlanPage(ctx, week.Reference, 0, 1)
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		var lines []planning.WeeklyPlanLine
		for _, st := range d.stores {
			for _, l := range demoLines {
				lines = append(lines, planning.WeeklyPlanLine{
					WeekReference: week.Reference,
					StoreName:     st.Name,
					StockCode:     l.code,
					Category:      l.category,
					Description:   l.description,
					Volume:        decimal.RequireFromString(l.volume),
					QtyOnHand:     l.onHand,
					OrderQty:      l.order,
					ActOrderQty:   l.order,
				})
			}
		}
		if err := h.Repo.AppendWeeklyPlan(ctx, lines); err != nil {
			return nil, err
		}
		h.Datasets.Invalidate(week.Reference)
	}
	return d, nil
}

// loadMidWeek is fresh-week plus manager activity.
func (h *Handler) loadMidWeek(ctx context.Context) (*demo, error) {
	d, err := h.loadFreshWeek(ctx)
	if err != nil {
		return nil, err
	}
	if d.week.Status == planning.WeekClosed {
		return nil, fmt.Errorf("%w: %s", planning.ErrWeekClosed, d.week.Reference)
	}

	ref := d.week.Reference
	amend := func(actor planning.User, st planning.Store, line int, qty int, why string) error {
		l := demoLines[line]
		_, err := h.Amendments.SaveAmendment(ctx, actor, planning.AmendmentInput{
			WeekReference: ref,
			StoreID:       st.ID,
			StockCode:     l.code,
			Category:      l.category,
			OriginalQty:   l.order,
			AmendedQty:    qty,
			Justification: why,
		})
		return err
	}

	if err := amend(d.managers[0], d.stores[0], 0, 8, "Promotion weekend"); err != nil {
		return nil, err
	}
	if err := amend(d.managers[0], d.stores[0], 3, 30, "Pillow bundle deal"); err != nil {
		return nil, err
	}
	if err := amend(d.managers[1], d.stores[1], 1, 1, "Slow mover"); err != nil {
		return nil, err
	}
	if err := amend(d.areas[0], d.stores[2], 2, 6, "Area rebalance"); err != nil {
		return nil, err
	}

	submit := func(actor planning.User, storeID string) error {
		_, err := h.Amendments.SubmitWeek(ctx, actor, ref, storeID)
		if planning.IsClientError(err) {
			// Already submitted on an earlier load.
			return nil
		}
		return err
	}
	if err := submit(d.managers[0], d.stores[0].ID); err != nil {
		return nil, err
	}
	if err := submit(d.areas[0], ""); err != nil {
		return nil, err
	}
	return d, nil
}
