package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/warp/backoffice/planning"
)

// =============================================================================
// HIERARCHY
// =============================================================================

const hierarchyQuery = `
	SELECT s.id, s.store_code, s.store_name, s.region, s.active,
		COALESCE(sm.id, ''), COALESCE(sm.name, ''), COALESCE(sm.first_name, ''), COALESCE(sm.last_name, ''), COALESCE(sm.username, ''), COALESCE(sm.email, ''),
		COALESCE(am.id, ''), COALESCE(am.name, ''), COALESCE(am.first_name, ''), COALESCE(am.last_name, ''), COALESCE(am.username, ''), COALESCE(am.email, ''),
		COALESCE(rm.id, ''), COALESCE(rm.name, ''), COALESCE(rm.first_name, ''), COALESCE(rm.last_name, ''), COALESCE(rm.username, ''), COALESCE(rm.email, '')
	FROM stores s
	LEFT JOIN store_manager_assignments sma ON sma.store_id = s.id
	LEFT JOIN users sm ON sm.id = sma.store_manager_id
	LEFT JOIN area_manager_store_assignments ama ON ama.store_id = s.id
	LEFT JOIN users am ON am.id = ama.area_manager_id
	LEFT JOIN regional_manager_assignments rma ON rma.store_id = s.id
	LEFT JOIN regional_area_manager_assignments raa ON raa.area_manager_id = am.id
	LEFT JOIN users rm ON rm.id = COALESCE(rma.regional_manager_id, raa.regional_manager_id)
	WHERE s.active
	ORDER BY s.store_name, s.id
`

func (r *repo) ListHierarchy(ctx context.Context) ([]planning.HierarchyRow, error) {
	rows, err := r.db.Query(ctx, hierarchyQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query hierarchy: %w", err)
	}
	defer rows.Close()

	var out []planning.HierarchyRow
	for rows.Next() {
		var h planning.HierarchyRow
		var sm, am, rm planning.User
		if err := rows.Scan(
			&h.StoreID, &h.StoreCode, &h.StoreName, &h.Region, &h.StoreActive,
			&sm.ID, &sm.Name, &sm.FirstName, &sm.LastName, &sm.Username, &sm.Email,
			&am.ID, &am.Name, &am.FirstName, &am.LastName, &am.Username, &am.Email,
			&rm.ID, &rm.Name, &rm.FirstName, &rm.LastName, &rm.Username, &rm.Email,
		); err != nil {
			return nil, err
		}
		if sm.ID != "" {
			h.StoreManagerID, h.StoreManagerName, h.StoreManagerEmail = sm.ID, sm.DisplayName(), sm.Email
		}
		if am.ID != "" {
			h.AreaManagerID, h.AreaManagerName, h.AreaManagerEmail = am.ID, am.DisplayName(), am.Email
		}
		if rm.ID != "" {
			h.RegionalManagerID, h.RegionalManagerName, h.RegionalManagerEmail = rm.ID, rm.DisplayName(), rm.Email
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// =============================================================================
// STORES AND CATEGORIES
// =============================================================================

const storeColumns = `id, store_code, store_name, region, address, contact_person, phone, email, active, created_at, updated_at`

func scanStore(row pgx.Row) (planning.Store, error) {
	var st planning.Store
	err := row.Scan(&st.ID, &st.Code, &st.Name, &st.Region, &st.Address, &st.ContactPerson,
		&st.Phone, &st.Email, &st.Active, &st.CreatedAt, &st.UpdatedAt)
	return st, err
}

func (r *repo) ListStores(ctx context.Context) ([]planning.Store, error) {
	rows, err := r.db.Query(ctx, "SELECT "+storeColumns+" FROM stores ORDER BY store_name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []planning.Store
	for rows.Next() {
		st, err := scanStore(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (r *repo) GetStoreByCode(ctx context.Context, code string) (*planning.Store, error) {
	st, err := scanStore(r.db.QueryRow(ctx, "SELECT "+storeColumns+" FROM stores WHERE store_code = $1", code))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// UpsertStore relies on xmax = 0 to tell an insert from an update.
func (r *repo) UpsertStore(ctx context.Context, in planning.Store) (planning.Store, bool, error) {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	var created bool
	err := r.db.QueryRow(ctx, `
		INSERT INTO stores (id, store_code, store_name, region, address, contact_person, phone, email, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (store_code) DO UPDATE SET
			store_name = EXCLUDED.store_name,
			region = COALESCE(NULLIF(EXCLUDED.region, ''), stores.region),
			address = EXCLUDED.address,
			contact_person = EXCLUDED.contact_person,
			phone = EXCLUDED.phone,
			email = EXCLUDED.email,
			active = EXCLUDED.active,
			updated_at = now()
		RETURNING id, region, created_at, updated_at, (xmax = 0)`,
		in.ID, in.Code, in.Name, in.Region, in.Address, in.ContactPerson, in.Phone, in.Email, in.Active,
	).Scan(&in.ID, &in.Region, &in.CreatedAt, &in.UpdatedAt, &created)
	if err != nil {
		return planning.Store{}, false, fmt.Errorf("failed to upsert store %s: %w", in.Code, err)
	}
	return in, created, nil
}

func (r *repo) UpsertCategory(ctx context.Context, c planning.Category) (bool, error) {
	var created bool
	err := r.db.QueryRow(ctx, `
		INSERT INTO categories (category_code, category_name, description, sort_order, active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (category_code) DO UPDATE SET
			category_name = EXCLUDED.category_name,
			description = EXCLUDED.description,
			sort_order = EXCLUDED.sort_order,
			active = EXCLUDED.active
		RETURNING (xmax = 0)`,
		c.Code, c.Name, c.Description, c.SortOrder, c.Active,
	).Scan(&created)
	if err != nil {
		return false, fmt.Errorf("failed to upsert category %s: %w", c.Code, err)
	}
	return created, nil
}

// =============================================================================
// USERS
// =============================================================================

const userColumns = `id, COALESCE(clerk_id, ''), email, name, first_name, last_name, username, role, is_active, created_at, updated_at`

func scanUser(row pgx.Row) (planning.User, error) {
	var u planning.User
	var role string
	err := row.Scan(&u.ID, &u.ClerkID, &u.Email, &u.Name, &u.FirstName, &u.LastName, &u.Username,
		&role, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	u.Role = planning.Role(role)
	return u, err
}

func (r *repo) getUser(ctx context.Context, where string, arg any) (*planning.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE "+where, arg))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *repo) GetUser(ctx context.Context, id string) (*planning.User, error) {
	return r.getUser(ctx, "id = $1", id)
}

func (r *repo) GetUserByClerkID(ctx context.Context, clerkID string) (*planning.User, error) {
	return r.getUser(ctx, "clerk_id = $1", clerkID)
}

func (r *repo) GetUserByEmail(ctx context.Context, email string) (*planning.User, error) {
	return r.getUser(ctx, "email = $1", strings.ToLower(email))
}

func (r *repo) ListUsersByRole(ctx context.Context, role planning.Role) ([]planning.User, error) {
	rows, err := r.db.Query(ctx, "SELECT "+userColumns+" FROM users WHERE role = $1 ORDER BY email", string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []planning.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *repo) UpsertUser(ctx context.Context, in planning.User) (planning.User, bool, error) {
	in.Email = strings.ToLower(in.Email)
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	var created bool
	err := r.db.QueryRow(ctx, `
		INSERT INTO users (id, clerk_id, email, name, first_name, last_name, username, role, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (email) DO UPDATE SET
			clerk_id = COALESCE(EXCLUDED.clerk_id, users.clerk_id),
			name = EXCLUDED.name,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			username = EXCLUDED.username,
			role = EXCLUDED.role,
			is_active = EXCLUDED.is_active,
			updated_at = now()
		RETURNING id, COALESCE(clerk_id, ''), created_at, updated_at, (xmax = 0)`,
		in.ID, nullString(in.ClerkID), in.Email, in.Name, in.FirstName, in.LastName, in.Username,
		string(in.Role), in.Active,
	).Scan(&in.ID, &in.ClerkID, &in.CreatedAt, &in.UpdatedAt, &created)
	if err != nil {
		if isUniqueViolation(err) {
			return planning.User{}, false, fmt.Errorf("%w: user %s conflicts with an existing account", planning.ErrInvalidInput, in.Email)
		}
		return planning.User{}, false, fmt.Errorf("failed to upsert user %s: %w", in.Email, err)
	}
	return in, created, nil
}

// =============================================================================
// ASSIGNMENTS
// =============================================================================

type assignmentTable struct {
	name       string
	subjectCol string
	managerCol string
}

var assignmentTables = map[planning.AssignmentKind]assignmentTable{
	planning.AssignStoreManager:    {"store_manager_assignments", "store_id", "store_manager_id"},
	planning.AssignAreaManager:     {"area_manager_store_assignments", "store_id", "area_manager_id"},
	planning.AssignRegionalManager: {"regional_manager_assignments", "store_id", "regional_manager_id"},
	planning.AssignRegionalArea:    {"regional_area_manager_assignments", "area_manager_id", "regional_manager_id"},
}

func tableFor(kind planning.AssignmentKind) (assignmentTable, error) {
	t, ok := assignmentTables[kind]
	if !ok {
		return assignmentTable{}, &planning.UnknownValueError{Kind: "assignment kind", Value: string(kind)}
	}
	return t, nil
}

func (r *repo) UpsertAssignment(ctx context.Context, a planning.Assignment) (bool, error) {
	t, err := tableFor(a.Kind)
	if err != nil {
		return false, err
	}

	var prev string
	err = r.db.QueryRow(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1", t.managerCol, t.name, t.subjectCol),
		a.SubjectID,
	).Scan(&prev)
	if err != nil && err != pgx.ErrNoRows {
		return false, err
	}

	_, err = r.db.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %[1]s (%[2]s, %[3]s) VALUES ($1, $2)
		ON CONFLICT (%[2]s) DO UPDATE SET %[3]s = EXCLUDED.%[3]s`,
		t.name, t.subjectCol, t.managerCol),
		a.SubjectID, a.ManagerID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to upsert %s: %w", t.name, err)
	}
	return prev != a.ManagerID, nil
}

func (r *repo) ClearAssignment(ctx context.Context, kind planning.AssignmentKind, subjectID string) error {
	t, err := tableFor(kind)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s = $1", t.name, t.subjectCol), subjectID)
	return err
}

// =============================================================================
// WEEKS
// =============================================================================

const weekColumns = `week_reference, week_start_date, week_end_date, year, week_number, is_current, is_active, week_status, created_at`

func scanWeek(row pgx.Row) (planning.WeekSelection, error) {
	var w planning.WeekSelection
	var status string
	err := row.Scan(&w.Reference, &w.StartDate, &w.EndDate, &w.Year, &w.WeekNumber, &w.IsCurrent, &w.IsActive, &status, &w.CreatedAt)
	w.Status, _ = planning.ParseWeekStatus(status)
	return w, err
}

func (r *repo) ListWeeks(ctx context.Context) ([]planning.WeekSelection, error) {
	rows, err := r.db.Query(ctx, "SELECT "+weekColumns+" FROM week_selections ORDER BY week_start_date DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []planning.WeekSelection
	for rows.Next() {
		w, err := scanWeek(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (r *repo) GetWeek(ctx context.Context, ref string) (*planning.WeekSelection, error) {
	w, err := scanWeek(r.db.QueryRow(ctx, "SELECT "+weekColumns+" FROM week_selections WHERE week_reference = $1", ref))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *repo) SaveWeek(ctx context.Context, w planning.WeekSelection) error {
	if w.Status == "" {
		w.Status = planning.WeekOpen
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now()
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO week_selections (`+weekColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (week_reference) DO UPDATE SET
			week_start_date = EXCLUDED.week_start_date,
			week_end_date = EXCLUDED.week_end_date,
			year = EXCLUDED.year,
			week_number = EXCLUDED.week_number,
			is_current = EXCLUDED.is_current,
			is_active = EXCLUDED.is_active,
			week_status = EXCLUDED.week_status`,
		w.Reference, w.StartDate, w.EndDate, w.Year, w.WeekNumber, w.IsCurrent, w.IsActive, string(w.Status), w.CreatedAt,
	)
	return err
}

func (r *repo) SetCurrentWeek(ctx context.Context, ref string) error {
	var exists bool
	if err := r.db.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM week_selections WHERE week_reference = $1)", ref).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return planning.ErrWeekNotFound
	}
	_, err := r.db.Exec(ctx, "UPDATE week_selections SET is_current = (week_reference = $1)", ref)
	return err
}

func (r *repo) SetWeekStatus(ctx context.Context, ref string, status planning.WeekStatus) error {
	tag, err := r.db.Exec(ctx, "UPDATE week_selections SET week_status = $1 WHERE week_reference = $2", string(status), ref)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return planning.ErrWeekNotFound
	}
	_, err = r.db.Exec(ctx, "UPDATE weekly_plan_submissions SET week_status = $1 WHERE week_reference = $2", string(status), ref)
	return err
}

// =============================================================================
// SUBMISSIONS
// =============================================================================

func (r *repo) ListSubmissions(ctx context.Context, week string) ([]planning.SubmissionRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, COALESCE(store_id, ''), week_reference, submission_type, level, status, week_status, created_at
		FROM weekly_plan_submissions
		WHERE week_reference = $1
		ORDER BY created_at`, week)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []planning.SubmissionRecord
	for rows.Next() {
		var s planning.SubmissionRecord
		var typ, level, status, weekStatus string
		if err := rows.Scan(&s.ID, &s.UserID, &s.StoreID, &s.WeekReference, &typ, &level, &status, &weekStatus, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.Type = planning.SubmissionType(typ)
		s.Level = planning.Level(level)
		s.Status = planning.LevelStatus(strings.ToLower(status))
		s.WeekStatus, _ = planning.ParseWeekStatus(weekStatus)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *repo) AppendSubmission(ctx context.Context, s planning.SubmissionRecord) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.WeekStatus == "" {
		s.WeekStatus = planning.WeekOpen
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO weekly_plan_submissions (id, user_id, store_id, week_reference, submission_type, level, status, week_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		s.ID, s.UserID, nullString(s.StoreID), s.WeekReference, string(s.Type), string(s.Level),
		string(s.Status), string(s.WeekStatus), s.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s %s", planning.ErrAlreadySubmitted, s.Level, s.WeekReference)
	}
	return err
}

// =============================================================================
// AMENDMENTS
// =============================================================================

const amendmentColumns = `id, weekly_plan_id, store_id, stock_code, category, user_id, created_by_role, amendment_type,
	original_qty, amended_qty, approved_qty, justification, admin_id, admin_notes, status, week_reference,
	replaces_id, created_at, updated_at`

func scanAmendment(row pgx.Row) (planning.Amendment, error) {
	var a planning.Amendment
	var role, typ, status string
	err := row.Scan(&a.ID, &a.WeeklyPlanID, &a.StoreID, &a.StockCode, &a.Category, &a.UserID, &role, &typ,
		&a.OriginalQty, &a.AmendedQty, &a.ApprovedQty, &a.Justification, &a.AdminID, &a.AdminNotes, &status,
		&a.WeekReference, &a.ReplacesID, &a.CreatedAt, &a.UpdatedAt)
	a.CreatedByRole = planning.Role(role)
	a.Type = planning.AmendmentType(typ)
	a.Status = planning.AmendmentStatus(status).Normalize()
	return a, err
}

// statusSpellings lists every stored spelling of a status.
func statusSpellings(statuses []planning.AmendmentStatus) []string {
	var out []string
	for _, s := range statuses {
		s = s.Normalize()
		out = append(out, string(s))
		switch s {
		case planning.AmendmentApproved:
			out = append(out, "admin_approved")
		case planning.AmendmentRejected:
			out = append(out, "admin_rejected")
		}
	}
	return out
}

func (r *repo) ListAmendments(ctx context.Context, f planning.AmendmentFilter) ([]planning.Amendment, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.WeekReference != "" {
		where = append(where, "week_reference = "+arg(f.WeekReference))
	}
	if f.UserID != "" {
		where = append(where, "user_id = "+arg(f.UserID))
	}
	if f.Role != "" {
		where = append(where, "created_by_role = "+arg(string(f.Role)))
	}
	if f.StockCode != "" {
		where = append(where, "stock_code = "+arg(f.StockCode))
	}
	if len(f.StoreIDs) > 0 {
		where = append(where, "store_id = ANY("+arg(f.StoreIDs)+")")
	}
	if len(f.Statuses) > 0 {
		where = append(where, "status = ANY("+arg(statusSpellings(f.Statuses))+")")
	}

	query := "SELECT " + amendmentColumns + " FROM weekly_plan_amendments"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, id"
	if r.inTx {
		query += " FOR UPDATE"
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query amendments: %w", err)
	}
	defer rows.Close()

	var out []planning.Amendment
	for rows.Next() {
		a, err := scanAmendment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *repo) GetAmendment(ctx context.Context, id string) (*planning.Amendment, error) {
	query := "SELECT " + amendmentColumns + " FROM weekly_plan_amendments WHERE id = $1"
	if r.inTx {
		query += " FOR UPDATE"
	}
	a, err := scanAmendment(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *repo) InsertAmendment(ctx context.Context, a planning.Amendment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO weekly_plan_amendments (`+amendmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		a.ID, a.WeeklyPlanID, a.StoreID, a.StockCode, a.Category, a.UserID, string(a.CreatedByRole), string(a.Type),
		a.OriginalQty, a.AmendedQty, a.ApprovedQty, a.Justification, a.AdminID, a.AdminNotes, string(a.Status),
		a.WeekReference, a.ReplacesID, a.CreatedAt, a.LastTouched(),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: open amendment for %s %s already exists", planning.ErrConflict, a.StoreID, a.StockCode)
	}
	if err != nil {
		return fmt.Errorf("failed to insert amendment: %w", err)
	}
	return nil
}

func (r *repo) UpdateAmendment(ctx context.Context, a planning.Amendment) error {
	updatedAt := a.LastTouched()
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE weekly_plan_amendments SET
			category = $1, amendment_type = $2, amended_qty = $3, approved_qty = $4, justification = $5,
			admin_id = $6, admin_notes = $7, status = $8, updated_at = $9
		WHERE id = $10`,
		a.Category, string(a.Type), a.AmendedQty, a.ApprovedQty, a.Justification,
		a.AdminID, a.AdminNotes, string(a.Status), updatedAt, a.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update amendment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return planning.ErrAmendmentNotFound
	}
	return nil
}

// =============================================================================
// WEEKLY PLAN
// =============================================================================

func (r *repo) ListWeeklyPlanPage(ctx context.Context, week string, offset, limit int) ([]planning.WeeklyPlanLine, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, week_reference, store_name, stock_code, category, description, volume::text,
			qty_on_hand, order_qty, add_ons_qty, act_order_qty
		FROM weekly_plan
		WHERE week_reference = $1
		ORDER BY seq
		LIMIT $2 OFFSET $3`, week, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []planning.WeeklyPlanLine
	for rows.Next() {
		var l planning.WeeklyPlanLine
		var volume string
		if err := rows.Scan(&l.ID, &l.WeekReference, &l.StoreName, &l.StockCode, &l.Category, &l.Description,
			&volume, &l.QtyOnHand, &l.OrderQty, &l.AddOnsQty, &l.ActOrderQty); err != nil {
			return nil, err
		}
		l.Volume, err = decimal.NewFromString(volume)
		if err != nil {
			return nil, fmt.Errorf("weekly plan %s: bad volume %q: %w", l.ID, volume, err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// AppendWeeklyPlan sends all lines in one batch.
func (r *repo) AppendWeeklyPlan(ctx context.Context, lines []planning.WeeklyPlanLine) error {
	if len(lines) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, l := range lines {
		if l.ID == "" {
			l.ID = uuid.NewString()
		}
		batch.Queue(`
			INSERT INTO weekly_plan (id, week_reference, store_name, stock_code, category, description, volume,
				qty_on_hand, order_qty, add_ons_qty, act_order_qty)
			VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9, $10, $11)`,
			l.ID, l.WeekReference, l.StoreName, l.StockCode, l.Category, l.Description, l.Volume.String(),
			l.QtyOnHand, l.OrderQty, l.AddOnsQty, l.ActOrderQty,
		)
	}

	br := r.db.SendBatch(ctx, batch)
	defer br.Close()
	for _, l := range lines {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to insert plan line %s: %w", l.StockCode, err)
		}
	}
	return nil
}

// =============================================================================
// SYNC LOG
// =============================================================================

func (r *repo) SaveSyncLog(ctx context.Context, l planning.SyncLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO excel_sync_logs (sync_id, operation_type, total_rows_processed, sync_status, users_created,
			users_updated, stores_created, stores_updated, assignments_created, error_count, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (sync_id) DO UPDATE SET
			sync_status = EXCLUDED.sync_status,
			users_created = EXCLUDED.users_created,
			users_updated = EXCLUDED.users_updated,
			stores_created = EXCLUDED.stores_created,
			stores_updated = EXCLUDED.stores_updated,
			assignments_created = EXCLUDED.assignments_created,
			error_count = EXCLUDED.error_count,
			completed_at = EXCLUDED.completed_at`,
		l.SyncID, l.OperationType, l.TotalRowsProcessed, l.Status, l.UsersCreated, l.UsersUpdated,
		l.StoresCreated, l.StoresUpdated, l.AssignmentsCreated, l.ErrorCount, l.StartedAt, l.CompletedAt,
	)
	return err
}
