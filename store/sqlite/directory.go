package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/warp/backoffice/planning"
)

// =============================================================================
// HIERARCHY
// =============================================================================

// The regional manager comes from the direct store link when present and
// from the area manager's regional link otherwise.
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
	WHERE s.active = TRUE
	ORDER BY s.store_name, s.id
`

func (r *repo) ListHierarchy(ctx context.Context) ([]planning.HierarchyRow, error) {
	defer r.rlock()()

	rows, err := r.q.QueryContext(ctx, hierarchyQuery)
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

func scanStore(row interface{ Scan(...any) error }) (planning.Store, error) {
	var st planning.Store
	var createdAt, updatedAt string
	err := row.Scan(&st.ID, &st.Code, &st.Name, &st.Region, &st.Address, &st.ContactPerson,
		&st.Phone, &st.Email, &st.Active, &createdAt, &updatedAt)
	st.CreatedAt = parseTime(createdAt)
	st.UpdatedAt = parseTime(updatedAt)
	return st, err
}

func (r *repo) ListStores(ctx context.Context) ([]planning.Store, error) {
	defer r.rlock()()

	rows, err := r.q.QueryContext(ctx, "SELECT "+storeColumns+" FROM stores ORDER BY store_name")
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
	defer r.rlock()()
	return r.storeByCode(ctx, code)
}

func (r *repo) storeByCode(ctx context.Context, code string) (*planning.Store, error) {
	st, err := scanStore(r.q.QueryRowContext(ctx, "SELECT "+storeColumns+" FROM stores WHERE store_code = ?", code))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (r *repo) UpsertStore(ctx context.Context, in planning.Store) (planning.Store, bool, error) {
	defer r.wlock()()

	existing, err := r.storeByCode(ctx, in.Code)
	if err != nil {
		return planning.Store{}, false, fmt.Errorf("failed to look up store %s: %w", in.Code, err)
	}
	now := time.Now()

	if existing != nil {
		in.ID = existing.ID
		in.CreatedAt = existing.CreatedAt
		if in.Region == "" {
			in.Region = existing.Region
		}
		in.UpdatedAt = now
		_, err := r.q.ExecContext(ctx, `
			UPDATE stores SET store_name = ?, region = ?, address = ?, contact_person = ?,
				phone = ?, email = ?, active = ?, updated_at = ?
			WHERE id = ?`,
			in.Name, in.Region, in.Address, in.ContactPerson, in.Phone, in.Email, in.Active,
			formatTime(now), in.ID,
		)
		if err != nil {
			return planning.Store{}, false, fmt.Errorf("failed to update store %s: %w", in.Code, err)
		}
		return in, false, nil
	}

	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	in.CreatedAt, in.UpdatedAt = now, now
	_, err = r.q.ExecContext(ctx, "INSERT INTO stores ("+storeColumns+") VALUES ("+placeholders(11)+")",
		in.ID, in.Code, in.Name, in.Region, in.Address, in.ContactPerson, in.Phone, in.Email, in.Active,
		formatTime(now), formatTime(now),
	)
	if err != nil {
		return planning.Store{}, false, fmt.Errorf("failed to insert store %s: %w", in.Code, err)
	}
	return in, true, nil
}

func (r *repo) UpsertCategory(ctx context.Context, c planning.Category) (bool, error) {
	defer r.wlock()()

	var exists int
	if err := r.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM categories WHERE category_code = ?", c.Code).Scan(&exists); err != nil {
		return false, err
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO categories (category_code, category_name, description, sort_order, active)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(category_code) DO UPDATE SET
			category_name = excluded.category_name,
			description = excluded.description,
			sort_order = excluded.sort_order,
			active = excluded.active`,
		c.Code, c.Name, c.Description, c.SortOrder, c.Active,
	)
	if err != nil {
		return false, fmt.Errorf("failed to upsert category %s: %w", c.Code, err)
	}
	return exists == 0, nil
}

// =============================================================================
// USERS
// =============================================================================

const userColumns = `id, COALESCE(clerk_id, ''), email, name, first_name, last_name, username, role, is_active, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (planning.User, error) {
	var u planning.User
	var role, createdAt, updatedAt string
	err := row.Scan(&u.ID, &u.ClerkID, &u.Email, &u.Name, &u.FirstName, &u.LastName, &u.Username,
		&role, &u.Active, &createdAt, &updatedAt)
	u.Role = planning.Role(role)
	u.CreatedAt = parseTime(createdAt)
	u.UpdatedAt = parseTime(updatedAt)
	return u, err
}

func (r *repo) getUser(ctx context.Context, where string, arg any) (*planning.User, error) {
	u, err := scanUser(r.q.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE "+where, arg))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *repo) GetUser(ctx context.Context, id string) (*planning.User, error) {
	defer r.rlock()()
	return r.getUser(ctx, "id = ?", id)
}

func (r *repo) GetUserByClerkID(ctx context.Context, clerkID string) (*planning.User, error) {
	defer r.rlock()()
	return r.getUser(ctx, "clerk_id = ?", clerkID)
}

func (r *repo) GetUserByEmail(ctx context.Context, email string) (*planning.User, error) {
	defer r.rlock()()
	return r.getUser(ctx, "email = ?", strings.ToLower(email))
}

func (r *repo) ListUsersByRole(ctx context.Context, role planning.Role) ([]planning.User, error) {
	defer r.rlock()()

	rows, err := r.q.QueryContext(ctx, "SELECT "+userColumns+" FROM users WHERE role = ? ORDER BY email", string(role))
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
	defer r.wlock()()

	in.Email = strings.ToLower(in.Email)
	existing, err := r.getUser(ctx, "email = ?", in.Email)
	if err != nil {
		return planning.User{}, false, fmt.Errorf("failed to look up user %s: %w", in.Email, err)
	}
	now := time.Now()

	if existing != nil {
		in.ID = existing.ID
		in.CreatedAt = existing.CreatedAt
		if in.ClerkID == "" {
			in.ClerkID = existing.ClerkID
		}
		in.UpdatedAt = now
		_, err := r.q.ExecContext(ctx, `
			UPDATE users SET clerk_id = ?, name = ?, first_name = ?, last_name = ?, username = ?,
				role = ?, is_active = ?, updated_at = ?
			WHERE id = ?`,
			nullString(in.ClerkID), in.Name, in.FirstName, in.LastName, in.Username,
			string(in.Role), in.Active, formatTime(now), in.ID,
		)
		if err != nil {
			return planning.User{}, false, fmt.Errorf("failed to update user %s: %w", in.Email, err)
		}
		return in, false, nil
	}

	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	in.CreatedAt, in.UpdatedAt = now, now
	_, err = r.q.ExecContext(ctx, `
		INSERT INTO users (id, clerk_id, email, name, first_name, last_name, username, role, is_active, created_at, updated_at)
		VALUES (`+placeholders(11)+`)`,
		in.ID, nullString(in.ClerkID), in.Email, in.Name, in.FirstName, in.LastName, in.Username,
		string(in.Role), in.Active, formatTime(now), formatTime(now),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return planning.User{}, false, fmt.Errorf("%w: user %s conflicts with an existing account", planning.ErrInvalidInput, in.Email)
		}
		return planning.User{}, false, fmt.Errorf("failed to insert user %s: %w", in.Email, err)
	}
	return in, true, nil
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
	defer r.wlock()()

	t, err := tableFor(a.Kind)
	if err != nil {
		return false, err
	}

	var prev string
	err = r.q.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", t.managerCol, t.name, t.subjectCol),
		a.SubjectID,
	).Scan(&prev)
	if err != nil && err != sql.ErrNoRows {
		return false, err
	}

	_, err = r.q.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %[1]s (%[2]s, %[3]s, created_at) VALUES (?, ?, ?)
		ON CONFLICT(%[2]s) DO UPDATE SET %[3]s = excluded.%[3]s`,
		t.name, t.subjectCol, t.managerCol),
		a.SubjectID, a.ManagerID, formatTime(time.Now()),
	)
	if err != nil {
		return false, fmt.Errorf("failed to upsert %s: %w", t.name, err)
	}
	return prev != a.ManagerID, nil
}

func (r *repo) ClearAssignment(ctx context.Context, kind planning.AssignmentKind, subjectID string) error {
	defer r.wlock()()

	t, err := tableFor(kind)
	if err != nil {
		return err
	}
	_, err = r.q.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s = ?", t.name, t.subjectCol), subjectID)
	return err
}
