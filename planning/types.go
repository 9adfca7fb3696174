/*
Package planning provides the weekly plan amendment engine.

PURPOSE:
  This package owns the domain of the weekly plan back-office: the store
  hierarchy, the multi-level amendment workflow (store manager -> area
  manager -> regional manager -> admin), week management and the
  reconciliation that turns sparse submission and amendment rows into one
  authoritative status per store and week.

KEY CONCEPTS IN THIS FILE (types.go):
  - Role: Who created a record (store_manager, area_manager, ...)
  - Level: Which tier of the chain a submission belongs to
  - HierarchyRow: One store joined to its managers at every level
  - SubmissionRecord: A manager's "I'm done for this week" marker
  - Amendment: A quantity change to one stock line of the weekly plan
  - SubmissionStatus: Derived per-store view, never persisted

DESIGN PRINCIPLES:
  1. Closed enums: every status is a typed string with a parser
  2. Derived state is recomputed, never patched
  3. Storage is an interface; the engine never sees SQL

SEE ALSO:
  - status.go: Status enums and the amendment transition table
  - reconcile.go: The reconciliation algorithm
  - store.go: Persistence interfaces
*/
package planning

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ROLES AND LEVELS
// =============================================================================

type Role string

const (
	RoleCustomer        Role = "customer"
	RoleStoreManager    Role = "store_manager"
	RoleAreaManager     Role = "area_manager"
	RoleRegionalManager Role = "regional_manager"
	RoleAdmin           Role = "admin"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleCustomer, RoleStoreManager, RoleAreaManager, RoleRegionalManager, RoleAdmin:
		return r, nil
	}
	return "", &UnknownValueError{Kind: "role", Value: s}
}

// IsManager reports whether the role sits somewhere in the approval chain
// below admin.
func (r Role) IsManager() bool {
	return r == RoleStoreManager || r == RoleAreaManager || r == RoleRegionalManager
}

// Level returns the submission level a role submits at.
func (r Role) Level() (Level, bool) {
	switch r {
	case RoleStoreManager:
		return LevelStore, true
	case RoleAreaManager:
		return LevelArea, true
	case RoleRegionalManager:
		return LevelRegional, true
	}
	return "", false
}

type Level string

const (
	LevelStore    Level = "store"
	LevelArea     Level = "area"
	LevelRegional Level = "regional"
)

type SubmissionType string

const (
	SubmissionStore    SubmissionType = "store_submission"
	SubmissionArea     SubmissionType = "area_submission"
	SubmissionRegional SubmissionType = "regional_submission"
)

func (t SubmissionType) Level() (Level, bool) {
	switch t {
	case SubmissionStore:
		return LevelStore, true
	case SubmissionArea:
		return LevelArea, true
	case SubmissionRegional:
		return LevelRegional, true
	}
	return "", false
}

// SubmissionTypeFor maps a level back to the submission type written for it.
func SubmissionTypeFor(level Level) SubmissionType {
	switch level {
	case LevelArea:
		return SubmissionArea
	case LevelRegional:
		return SubmissionRegional
	default:
		return SubmissionStore
	}
}

type AmendmentType string

const (
	AmendmentAddOn          AmendmentType = "add_on"
	AmendmentQuantityChange AmendmentType = "quantity_change"
	AmendmentNewItem        AmendmentType = "new_item"
	AmendmentAdminEdit      AmendmentType = "admin_edit"
)

// =============================================================================
// DIRECTORY - users, stores, categories, assignments
// =============================================================================

type User struct {
	ID        string
	ClerkID   string
	Email     string
	Name      string
	FirstName string
	LastName  string
	Username  string
	Role      Role
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DisplayName picks the most human label available for a user.
func (u User) DisplayName() string {
	switch {
	case u.Name != "":
		return u.Name
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	case u.Username != "":
		return u.Username
	case u.Email != "":
		return u.Email
	}
	return "Unknown User"
}

type Store struct {
	ID            string
	Code          string
	Name          string
	Region        string
	Address       string
	ContactPerson string
	Phone         string
	Email         string
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Category struct {
	Code        string
	Name        string
	Description string
	SortOrder   int
	Active      bool
}

// AssignmentKind names the assignment table a manager link lives in.
type AssignmentKind string

const (
	AssignStoreManager    AssignmentKind = "store_manager_assignments"
	AssignAreaManager     AssignmentKind = "area_manager_store_assignments"
	AssignRegionalManager AssignmentKind = "regional_manager_assignments"
	AssignRegionalArea    AssignmentKind = "regional_area_manager_assignments"
)

// Assignment links a manager to what they manage. SubjectID is a store id
// for the three store-level kinds and an area manager's user id for
// AssignRegionalArea. A subject has at most one manager per kind.
type Assignment struct {
	Kind      AssignmentKind
	ManagerID string
	SubjectID string
}

// HierarchyRow is the denormalized join of a store to its managers.
// Empty ids mean the position is vacant.
type HierarchyRow struct {
	StoreID     string
	StoreCode   string
	StoreName   string
	Region      string
	StoreActive bool

	StoreManagerID    string
	StoreManagerName  string
	StoreManagerEmail string

	AreaManagerID    string
	AreaManagerName  string
	AreaManagerEmail string

	RegionalManagerID    string
	RegionalManagerName  string
	RegionalManagerEmail string
}

// ManagerAt returns the manager id responsible for the store at a level.
func (h HierarchyRow) ManagerAt(level Level) string {
	switch level {
	case LevelStore:
		return h.StoreManagerID
	case LevelArea:
		return h.AreaManagerID
	case LevelRegional:
		return h.RegionalManagerID
	}
	return ""
}

// ManagedBy reports whether userID manages this store at any level.
func (h HierarchyRow) ManagedBy(userID string) bool {
	if userID == "" {
		return false
	}
	return h.StoreManagerID == userID || h.AreaManagerID == userID || h.RegionalManagerID == userID
}

// =============================================================================
// WEEKS
// =============================================================================

type WeekSelection struct {
	Reference  string
	StartDate  time.Time
	EndDate    time.Time
	Year       int
	WeekNumber int
	IsCurrent  bool
	IsActive   bool
	Status     WeekStatus
	CreatedAt  time.Time
}

// =============================================================================
// SUBMISSIONS AND AMENDMENTS
// =============================================================================

// SubmissionRecord marks a manager's submission for a week. StoreID is empty
// for aggregate submissions, which cover every store under the submitter.
type SubmissionRecord struct {
	ID            string
	UserID        string
	StoreID       string
	WeekReference string
	Type          SubmissionType
	Level         Level
	Status        LevelStatus
	WeekStatus    WeekStatus
	CreatedAt     time.Time
}

// ResolveLevel decides which level a record applies to. Either the
// submission type or the level column may carry it; store wins over area,
// area over regional.
func (s SubmissionRecord) ResolveLevel() (Level, bool) {
	for _, l := range []Level{LevelStore, LevelArea, LevelRegional} {
		if tl, ok := s.Type.Level(); ok && tl == l {
			return l, true
		}
		if s.Level == l {
			return l, true
		}
	}
	return "", false
}

type Amendment struct {
	ID            string
	WeeklyPlanID  string
	StoreID       string
	StockCode     string
	Category      string
	UserID        string
	CreatedByRole Role
	Type          AmendmentType
	OriginalQty   int
	AmendedQty    int
	ApprovedQty   *int
	Justification string
	AdminID       string
	AdminNotes    string
	Status        AmendmentStatus
	WeekReference string
	ReplacesID    string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// LastTouched is UpdatedAt when set, CreatedAt otherwise.
func (a Amendment) LastTouched() time.Time {
	if !a.UpdatedAt.IsZero() {
		return a.UpdatedAt
	}
	return a.CreatedAt
}

// EffectiveQty is what the plan ends up with for this line: the approved
// quantity once an admin set one, otherwise the amended quantity.
func (a Amendment) EffectiveQty() int {
	if a.ApprovedQty != nil {
		return *a.ApprovedQty
	}
	return a.AmendedQty
}

// =============================================================================
// WEEKLY PLAN
// =============================================================================

type WeeklyPlanLine struct {
	ID            string
	WeekReference string
	StoreName     string
	StockCode     string
	Category      string
	Description   string
	Volume        decimal.Decimal
	QtyOnHand     int
	OrderQty      int
	AddOnsQty     int
	ActOrderQty   int
}

// =============================================================================
// SYNC LOG
// =============================================================================

type SyncLog struct {
	SyncID             string
	OperationType      string
	TotalRowsProcessed int
	Status             string
	UsersCreated       int
	UsersUpdated       int
	StoresCreated      int
	StoresUpdated      int
	AssignmentsCreated int
	ErrorCount         int
	StartedAt          time.Time
	CompletedAt        *time.Time
}

const (
	SyncStarted   = "started"
	SyncCompleted = "completed"
	SyncFailed    = "failed"
)

// =============================================================================
// DERIVED VIEW - computed per load, never persisted
// =============================================================================

// SubmissionStatus is the reconciled state of one store for one week.
type SubmissionStatus struct {
	StoreID       string     `json:"store_id"`
	WeekReference string     `json:"week_reference"`
	WeekStatus    WeekStatus `json:"week_status"`

	StoreSubmissionStatus    LevelStatus `json:"store_submission_status"`
	AreaSubmissionStatus     LevelStatus `json:"area_submission_status"`
	RegionalSubmissionStatus LevelStatus `json:"regional_submission_status"`
	AdminSubmissionStatus    LevelStatus `json:"admin_submission_status"`

	StoreSubmittedAt    *time.Time `json:"store_submitted_at,omitempty"`
	AreaSubmittedAt     *time.Time `json:"area_submitted_at,omitempty"`
	RegionalSubmittedAt *time.Time `json:"regional_submitted_at,omitempty"`
	AdminSubmittedAt    *time.Time `json:"admin_submitted_at,omitempty"`

	StoreAmendmentCount    int `json:"store_amendment_count"`
	AreaAmendmentCount     int `json:"area_amendment_count"`
	RegionalAmendmentCount int `json:"regional_amendment_count"`
	AdminAmendmentCount    int `json:"admin_amendment_count"`
}

// TotalAmendments sums the four per-role counts.
func (s SubmissionStatus) TotalAmendments() int {
	return s.StoreAmendmentCount + s.AreaAmendmentCount + s.RegionalAmendmentCount + s.AdminAmendmentCount
}

// LevelStatus returns the status recorded for a submission level.
func (s SubmissionStatus) LevelStatus(level Level) LevelStatus {
	switch level {
	case LevelStore:
		return s.StoreSubmissionStatus
	case LevelArea:
		return s.AreaSubmissionStatus
	case LevelRegional:
		return s.RegionalSubmissionStatus
	}
	return StatusNotSubmitted
}

// SubmissionSummary aggregates a week's statuses for the dashboard header.
type SubmissionSummary struct {
	TotalStores               int `json:"total_stores"`
	StoresSubmitted           int `json:"stores_submitted"`
	StoresPending             int `json:"stores_pending"`
	AreaManagersSubmitted     int `json:"area_managers_submitted"`
	AreaManagersPending       int `json:"area_managers_pending"`
	RegionalManagersSubmitted int `json:"regional_managers_submitted"`
	RegionalManagersPending   int `json:"regional_managers_pending"`
	TotalAmendments           int `json:"total_amendments"`
}
