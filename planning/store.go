/*
store.go - Persistence interfaces

PURPOSE:
  Defines the boundary between the planning engine and the relational
  store. The engine treats the database as a row store with eq/in/range
  filtering and upserts keyed on natural conflict targets.

KEY INTERFACES:
  DirectoryStore:        users, stores, categories, manager assignments
  WeekStore:             week selections and week open/closed state
  SubmissionRecordStore: submission rows
  AmendmentStore:        amendment rows
  PlanStore:             paged reads of the weekly plan
  SyncLogStore:          hierarchy sync audit rows
  Repository:            all of the above
  TxRepository:          Repository plus a transactional boundary

TRANSACTIONS:
  Multi-step workflows (hierarchy sync, admin modify, week close) run
  inside WithTx. If fn returns an error every write inside it is rolled
  back.

IMPLEMENTATIONS:
  - store/postgres: pgx pool, production
  - store/sqlite:   single-file or :memory:, development and tests
  - planning/store: in-memory, unit tests

SEE ALSO:
  - tracking.go: Uses Repository for reads
  - amendments.go, hierarchy.go, weeks.go: Use WithTx for writes
*/
package planning

import "context"

type DirectoryStore interface {
	// ListHierarchy returns one row per store, ordered by store name.
	ListHierarchy(ctx context.Context) ([]HierarchyRow, error)

	ListStores(ctx context.Context) ([]Store, error)
	GetStoreByCode(ctx context.Context, code string) (*Store, error)
	// UpsertStore inserts or updates by store code. Returns the stored row
	// and whether it was newly created.
	UpsertStore(ctx context.Context, s Store) (Store, bool, error)

	UpsertCategory(ctx context.Context, c Category) (bool, error)

	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByClerkID(ctx context.Context, clerkID string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	ListUsersByRole(ctx context.Context, role Role) ([]User, error)
	// UpsertUser inserts or updates by lower-cased email.
	UpsertUser(ctx context.Context, u User) (User, bool, error)

	// UpsertAssignment replaces the manager of a subject for the kind.
	// Returns true when a new link was created.
	UpsertAssignment(ctx context.Context, a Assignment) (bool, error)
	// ClearAssignment removes whatever manager the subject has for the kind.
	ClearAssignment(ctx context.Context, kind AssignmentKind, subjectID string) error
}

type WeekStore interface {
	ListWeeks(ctx context.Context) ([]WeekSelection, error)
	GetWeek(ctx context.Context, reference string) (*WeekSelection, error)
	SaveWeek(ctx context.Context, w WeekSelection) error
	// SetCurrentWeek flags reference as current and clears the flag on all
	// other weeks.
	SetCurrentWeek(ctx context.Context, reference string) error
	// SetWeekStatus updates the week row and the week_status column of its
	// submissions.
	SetWeekStatus(ctx context.Context, reference string, status WeekStatus) error
}

type SubmissionRecordStore interface {
	ListSubmissions(ctx context.Context, week string) ([]SubmissionRecord, error)
	AppendSubmission(ctx context.Context, s SubmissionRecord) error
}

// AmendmentFilter narrows ListAmendments. Empty fields don't filter.
type AmendmentFilter struct {
	WeekReference string
	StoreIDs      []string
	UserID        string
	Role          Role
	StockCode     string
	Statuses      []AmendmentStatus
}

type AmendmentStore interface {
	ListAmendments(ctx context.Context, f AmendmentFilter) ([]Amendment, error)
	GetAmendment(ctx context.Context, id string) (*Amendment, error)
	InsertAmendment(ctx context.Context, a Amendment) error
	UpdateAmendment(ctx context.Context, a Amendment) error
}

type PlanStore interface {
	// ListWeeklyPlanPage returns rows [offset, offset+limit) of the week's
	// plan in a stable order.
	ListWeeklyPlanPage(ctx context.Context, week string, offset, limit int) ([]WeeklyPlanLine, error)
	AppendWeeklyPlan(ctx context.Context, lines []WeeklyPlanLine) error
}

type SyncLogStore interface {
	SaveSyncLog(ctx context.Context, l SyncLog) error
}

// Repository is the full store surface used by the engine.
type Repository interface {
	DirectoryStore
	WeekStore
	SubmissionRecordStore
	AmendmentStore
	PlanStore
	SyncLogStore
}

// TxRepository wraps Repository with transaction support.
type TxRepository interface {
	Repository

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Repository) error) error
}
