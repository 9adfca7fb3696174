// Package store provides an in-memory planning.TxRepository.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/warp/backoffice/planning"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type state struct {
	users       map[string]planning.User
	stores      map[string]planning.Store
	categories  map[string]planning.Category
	assignments map[planning.AssignmentKind]map[string]string // kind -> subject -> manager
	weeks       map[string]planning.WeekSelection
	submissions []planning.SubmissionRecord
	amendments  []planning.Amendment
	plan        map[string][]planning.WeeklyPlanLine
	syncLogs    map[string]planning.SyncLog
}

func newState() *state {
	return &state{
		users:       map[string]planning.User{},
		stores:      map[string]planning.Store{},
		categories:  map[string]planning.Category{},
		assignments: map[planning.AssignmentKind]map[string]string{},
		weeks:       map[string]planning.WeekSelection{},
		plan:        map[string][]planning.WeeklyPlanLine{},
		syncLogs:    map[string]planning.SyncLog{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.stores {
		c.stores[k] = v
	}
	for k, v := range s.categories {
		c.categories[k] = v
	}
	for kind, m := range s.assignments {
		cm := make(map[string]string, len(m))
		for k, v := range m {
			cm[k] = v
		}
		c.assignments[kind] = cm
	}
	for k, v := range s.weeks {
		c.weeks[k] = v
	}
	c.submissions = append([]planning.SubmissionRecord{}, s.submissions...)
	c.amendments = append([]planning.Amendment{}, s.amendments...)
	for k, v := range s.plan {
		c.plan[k] = append([]planning.WeeklyPlanLine{}, v...)
	}
	for k, v := range s.syncLogs {
		c.syncLogs[k] = v
	}
	return c
}

// Memory is safe for concurrent use. Transaction views share the parent's
// state and skip locking, since WithTx already holds the write lock.
type Memory struct {
	mu   *sync.RWMutex
	st   **state
	inTx bool
}

func NewMemory() *Memory {
	st := newState()
	return &Memory{mu: &sync.RWMutex{}, st: &st}
}

func (m *Memory) rlock() func() {
	if m.inTx {
		return func() {}
	}
	m.mu.RLock()
	return m.mu.RUnlock
}

func (m *Memory) wlock() func() {
	if m.inTx {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

func (m *Memory) s() *state { return *m.st }

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(planning.Repository) error) error {
	if m.inTx {
		return fn(m)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.s().clone()
	view := &Memory{mu: m.mu, st: m.st, inTx: true}
	if err := fn(view); err != nil {
		*m.st = snapshot
		return err
	}
	return nil
}

// =============================================================================
// DIRECTORY
// =============================================================================

func (m *Memory) ListHierarchy(_ context.Context) ([]planning.HierarchyRow, error) {
	defer m.rlock()()
	s := m.s()

	var rows []planning.HierarchyRow
	for _, st := range s.stores {
		if !st.Active {
			continue
		}
		h := planning.HierarchyRow{
			StoreID:     st.ID,
			StoreCode:   st.Code,
			StoreName:   st.Name,
			Region:      st.Region,
			StoreActive: st.Active,
		}
		if u, ok := s.users[s.assignments[planning.AssignStoreManager][st.ID]]; ok {
			h.StoreManagerID, h.StoreManagerName, h.StoreManagerEmail = u.ID, u.DisplayName(), u.Email
		}
		if u, ok := s.users[s.assignments[planning.AssignAreaManager][st.ID]]; ok {
			h.AreaManagerID, h.AreaManagerName, h.AreaManagerEmail = u.ID, u.DisplayName(), u.Email
		}
		rmID := s.assignments[planning.AssignRegionalManager][st.ID]
		if rmID == "" && h.AreaManagerID != "" {
			rmID = s.assignments[planning.AssignRegionalArea][h.AreaManagerID]
		}
		if u, ok := s.users[rmID]; ok {
			h.RegionalManagerID, h.RegionalManagerName, h.RegionalManagerEmail = u.ID, u.DisplayName(), u.Email
		}
		rows = append(rows, h)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].StoreName != rows[j].StoreName {
			return rows[i].StoreName < rows[j].StoreName
		}
		return rows[i].StoreID < rows[j].StoreID
	})
	return rows, nil
}

func (m *Memory) ListStores(_ context.Context) ([]planning.Store, error) {
	defer m.rlock()()
	out := make([]planning.Store, 0, len(m.s().stores))
	for _, st := range m.s().stores {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) GetStoreByCode(_ context.Context, code string) (*planning.Store, error) {
	defer m.rlock()()
	for _, st := range m.s().stores {
		if st.Code == code {
			return &st, nil
		}
	}
	return nil, nil
}

func (m *Memory) UpsertStore(_ context.Context, in planning.Store) (planning.Store, bool, error) {
	defer m.wlock()()
	s := m.s()
	for id, st := range s.stores {
		if st.Code != in.Code {
			continue
		}
		in.ID = id
		in.CreatedAt = st.CreatedAt
		if in.Region == "" {
			in.Region = st.Region
		}
		s.stores[id] = in
		return in, false, nil
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	s.stores[in.ID] = in
	return in, true, nil
}

func (m *Memory) UpsertCategory(_ context.Context, c planning.Category) (bool, error) {
	defer m.wlock()()
	_, exists := m.s().categories[c.Code]
	m.s().categories[c.Code] = c
	return !exists, nil
}

// Categories returns every category, ordered by sort order then code.
func (m *Memory) Categories() []planning.Category {
	defer m.rlock()()
	out := make([]planning.Category, 0, len(m.s().categories))
	for _, c := range m.s().categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].Code < out[j].Code
	})
	return out
}

func (m *Memory) GetUser(_ context.Context, id string) (*planning.User, error) {
	defer m.rlock()()
	if u, ok := m.s().users[id]; ok {
		return &u, nil
	}
	return nil, nil
}

func (m *Memory) GetUserByClerkID(_ context.Context, clerkID string) (*planning.User, error) {
	defer m.rlock()()
	for _, u := range m.s().users {
		if u.ClerkID != "" && u.ClerkID == clerkID {
			return &u, nil
		}
	}
	return nil, nil
}

func (m *Memory) GetUserByEmail(_ context.Context, email string) (*planning.User, error) {
	defer m.rlock()()
	for _, u := range m.s().users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, nil
}

func (m *Memory) ListUsersByRole(_ context.Context, role planning.Role) ([]planning.User, error) {
	defer m.rlock()()
	var out []planning.User
	for _, u := range m.s().users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (m *Memory) UpsertUser(_ context.Context, in planning.User) (planning.User, bool, error) {
	defer m.wlock()()
	s := m.s()
	in.Email = strings.ToLower(in.Email)
	for id, u := range s.users {
		if u.Email != in.Email {
			continue
		}
		in.ID = id
		if in.ClerkID == "" {
			in.ClerkID = u.ClerkID
		}
		in.CreatedAt = u.CreatedAt
		s.users[id] = in
		return in, false, nil
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	s.users[in.ID] = in
	return in, true, nil
}

func (m *Memory) UpsertAssignment(_ context.Context, a planning.Assignment) (bool, error) {
	defer m.wlock()()
	s := m.s()
	links, ok := s.assignments[a.Kind]
	if !ok {
		links = map[string]string{}
		s.assignments[a.Kind] = links
	}
	prev := links[a.SubjectID]
	links[a.SubjectID] = a.ManagerID
	return prev != a.ManagerID, nil
}

func (m *Memory) ClearAssignment(_ context.Context, kind planning.AssignmentKind, subjectID string) error {
	defer m.wlock()()
	delete(m.s().assignments[kind], subjectID)
	return nil
}

// =============================================================================
// WEEKS
// =============================================================================

func (m *Memory) ListWeeks(_ context.Context) ([]planning.WeekSelection, error) {
	defer m.rlock()()
	out := make([]planning.WeekSelection, 0, len(m.s().weeks))
	for _, w := range m.s().weeks {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.After(out[j].StartDate) })
	return out, nil
}

func (m *Memory) GetWeek(_ context.Context, ref string) (*planning.WeekSelection, error) {
	defer m.rlock()()
	if w, ok := m.s().weeks[ref]; ok {
		return &w, nil
	}
	return nil, nil
}

func (m *Memory) SaveWeek(_ context.Context, w planning.WeekSelection) error {
	defer m.wlock()()
	if w.Status == "" {
		w.Status = planning.WeekOpen
	}
	m.s().weeks[w.Reference] = w
	return nil
}

func (m *Memory) SetCurrentWeek(_ context.Context, ref string) error {
	defer m.wlock()()
	s := m.s()
	if _, ok := s.weeks[ref]; !ok {
		return planning.ErrWeekNotFound
	}
	for k, w := range s.weeks {
		w.IsCurrent = k == ref
		s.weeks[k] = w
	}
	return nil
}

func (m *Memory) SetWeekStatus(_ context.Context, ref string, status planning.WeekStatus) error {
	defer m.wlock()()
	s := m.s()
	w, ok := s.weeks[ref]
	if !ok {
		return planning.ErrWeekNotFound
	}
	w.Status = status
	s.weeks[ref] = w
	for i := range s.submissions {
		if s.submissions[i].WeekReference == ref {
			s.submissions[i].WeekStatus = status
		}
	}
	return nil
}

// =============================================================================
// SUBMISSIONS AND AMENDMENTS
// =============================================================================

func (m *Memory) ListSubmissions(_ context.Context, week string) ([]planning.SubmissionRecord, error) {
	defer m.rlock()()
	var out []planning.SubmissionRecord
	for _, sub := range m.s().submissions {
		if sub.WeekReference == week {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (m *Memory) AppendSubmission(_ context.Context, sub planning.SubmissionRecord) error {
	defer m.wlock()()
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	m.s().submissions = append(m.s().submissions, sub)
	return nil
}

func (m *Memory) ListAmendments(_ context.Context, f planning.AmendmentFilter) ([]planning.Amendment, error) {
	defer m.rlock()()
	var out []planning.Amendment
	for _, a := range m.s().amendments {
		if matchAmendment(f, a) {
			out = append(out, a)
		}
	}
	return out, nil
}

func matchAmendment(f planning.AmendmentFilter, a planning.Amendment) bool {
	if f.WeekReference != "" && a.WeekReference != f.WeekReference {
		return false
	}
	if f.UserID != "" && a.UserID != f.UserID {
		return false
	}
	if f.Role != "" && a.CreatedByRole != f.Role {
		return false
	}
	if f.StockCode != "" && a.StockCode != f.StockCode {
		return false
	}
	if len(f.StoreIDs) > 0 && !contains(f.StoreIDs, a.StoreID) {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, st := range f.Statuses {
			if st.Normalize() == a.Status.Normalize() {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func (m *Memory) GetAmendment(_ context.Context, id string) (*planning.Amendment, error) {
	defer m.rlock()()
	for _, a := range m.s().amendments {
		if a.ID == id {
			return &a, nil
		}
	}
	return nil, nil
}

func (m *Memory) InsertAmendment(_ context.Context, a planning.Amendment) error {
	defer m.wlock()()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	m.s().amendments = append(m.s().amendments, a)
	return nil
}

func (m *Memory) UpdateAmendment(_ context.Context, a planning.Amendment) error {
	defer m.wlock()()
	s := m.s()
	for i := range s.amendments {
		if s.amendments[i].ID == a.ID {
			s.amendments[i] = a
			return nil
		}
	}
	return planning.ErrAmendmentNotFound
}

// =============================================================================
// WEEKLY PLAN AND SYNC LOG
// =============================================================================

func (m *Memory) ListWeeklyPlanPage(_ context.Context, week string, offset, limit int) ([]planning.WeeklyPlanLine, error) {
	defer m.rlock()()
	lines := m.s().plan[week]
	if offset >= len(lines) {
		return nil, nil
	}
	end := offset + limit
	if end > len(lines) {
		end = len(lines)
	}
	return append([]planning.WeeklyPlanLine{}, lines[offset:end]...), nil
}

func (m *Memory) AppendWeeklyPlan(_ context.Context, lines []planning.WeeklyPlanLine) error {
	defer m.wlock()()
	s := m.s()
	for _, l := range lines {
		if l.ID == "" {
			l.ID = uuid.NewString()
		}
		s.plan[l.WeekReference] = append(s.plan[l.WeekReference], l)
	}
	return nil
}

func (m *Memory) SaveSyncLog(_ context.Context, l planning.SyncLog) error {
	defer m.wlock()()
	m.s().syncLogs[l.SyncID] = l
	return nil
}

// SyncLog returns a recorded sync log, for tests.
func (m *Memory) SyncLog(id string) (planning.SyncLog, bool) {
	defer m.rlock()()
	l, ok := m.s().syncLogs[id]
	return l, ok
}
