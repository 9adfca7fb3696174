package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/backoffice/planning"
)

// =============================================================================
// WEEKS
// =============================================================================

const weekColumns = `week_reference, week_start_date, week_end_date, year, week_number, is_current, is_active, week_status, created_at`

func scanWeek(row interface{ Scan(...any) error }) (planning.WeekSelection, error) {
	var w planning.WeekSelection
	var start, end, status, createdAt string
	err := row.Scan(&w.Reference, &start, &end, &w.Year, &w.WeekNumber, &w.IsCurrent, &w.IsActive, &status, &createdAt)
	w.StartDate = parseTime(start)
	w.EndDate = parseTime(end)
	w.Status, _ = planning.ParseWeekStatus(status)
	w.CreatedAt = parseTime(createdAt)
	return w, err
}

func (r *repo) ListWeeks(ctx context.Context) ([]planning.WeekSelection, error) {
	defer r.rlock()()

	rows, err := r.q.QueryContext(ctx, "SELECT "+weekColumns+" FROM week_selections ORDER BY week_start_date DESC")
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
	defer r.rlock()()

	w, err := scanWeek(r.q.QueryRowContext(ctx, "SELECT "+weekColumns+" FROM week_selections WHERE week_reference = ?", ref))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *repo) SaveWeek(ctx context.Context, w planning.WeekSelection) error {
	defer r.wlock()()

	if w.Status == "" {
		w.Status = planning.WeekOpen
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO week_selections (`+weekColumns+`)
		VALUES (`+placeholders(9)+`)
		ON CONFLICT(week_reference) DO UPDATE SET
			week_start_date = excluded.week_start_date,
			week_end_date = excluded.week_end_date,
			year = excluded.year,
			week_number = excluded.week_number,
			is_current = excluded.is_current,
			is_active = excluded.is_active,
			week_status = excluded.week_status`,
		w.Reference, formatTime(w.StartDate), formatTime(w.EndDate), w.Year, w.WeekNumber,
		w.IsCurrent, w.IsActive, string(w.Status), formatTime(w.CreatedAt),
	)
	return err
}

func (r *repo) SetCurrentWeek(ctx context.Context, ref string) error {
	defer r.wlock()()

	var found int
	if err := r.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM week_selections WHERE week_reference = ?", ref).Scan(&found); err != nil {
		return err
	}
	if found == 0 {
		return planning.ErrWeekNotFound
	}
	_, err := r.q.ExecContext(ctx, "UPDATE week_selections SET is_current = (week_reference = ?)", ref)
	return err
}

func (r *repo) SetWeekStatus(ctx context.Context, ref string, status planning.WeekStatus) error {
	defer r.wlock()()

	res, err := r.q.ExecContext(ctx, "UPDATE week_selections SET week_status = ? WHERE week_reference = ?", string(status), ref)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return planning.ErrWeekNotFound
	}
	_, err = r.q.ExecContext(ctx, "UPDATE weekly_plan_submissions SET week_status = ? WHERE week_reference = ?", string(status), ref)
	return err
}

// =============================================================================
// SUBMISSIONS
// =============================================================================

func (r *repo) ListSubmissions(ctx context.Context, week string) ([]planning.SubmissionRecord, error) {
	defer r.rlock()()

	rows, err := r.q.QueryContext(ctx, `
		SELECT id, user_id, COALESCE(store_id, ''), week_reference, submission_type, level, status, week_status, created_at
		FROM weekly_plan_submissions
		WHERE week_reference = ?
		ORDER BY created_at`, week)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []planning.SubmissionRecord
	for rows.Next() {
		var s planning.SubmissionRecord
		var typ, level, status, weekStatus, createdAt string
		if err := rows.Scan(&s.ID, &s.UserID, &s.StoreID, &s.WeekReference, &typ, &level, &status, &weekStatus, &createdAt); err != nil {
			return nil, err
		}
		s.Type = planning.SubmissionType(typ)
		s.Level = planning.Level(level)
		s.Status = planning.LevelStatus(strings.ToLower(status))
		s.WeekStatus, _ = planning.ParseWeekStatus(weekStatus)
		s.CreatedAt = parseTime(createdAt)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *repo) AppendSubmission(ctx context.Context, s planning.SubmissionRecord) error {
	defer r.wlock()()

	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.WeekStatus == "" {
		s.WeekStatus = planning.WeekOpen
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO weekly_plan_submissions (id, user_id, store_id, week_reference, submission_type, level, status, week_status, created_at)
		VALUES (`+placeholders(9)+`)`,
		s.ID, s.UserID, nullString(s.StoreID), s.WeekReference, string(s.Type), string(s.Level),
		string(s.Status), string(s.WeekStatus), formatTime(s.CreatedAt),
	)
	return err
}

// =============================================================================
// AMENDMENTS
// =============================================================================

const amendmentColumns = `id, weekly_plan_id, store_id, stock_code, category, user_id, created_by_role, amendment_type,
	original_qty, amended_qty, approved_qty, justification, admin_id, admin_notes, status, week_reference,
	replaces_id, created_at, updated_at`

func scanAmendment(row interface{ Scan(...any) error }) (planning.Amendment, error) {
	var a planning.Amendment
	var role, typ, status, createdAt, updatedAt string
	var approved sql.NullInt64
	err := row.Scan(&a.ID, &a.WeeklyPlanID, &a.StoreID, &a.StockCode, &a.Category, &a.UserID, &role, &typ,
		&a.OriginalQty, &a.AmendedQty, &approved, &a.Justification, &a.AdminID, &a.AdminNotes, &status,
		&a.WeekReference, &a.ReplacesID, &createdAt, &updatedAt)
	a.CreatedByRole = planning.Role(role)
	a.Type = planning.AmendmentType(typ)
	a.Status = planning.AmendmentStatus(status).Normalize()
	if approved.Valid {
		v := int(approved.Int64)
		a.ApprovedQty = &v
	}
	a.CreatedAt = parseTime(createdAt)
	a.UpdatedAt = parseTime(updatedAt)
	return a, err
}

// statusSpellings lists every stored spelling of a status.
func statusSpellings(statuses []planning.AmendmentStatus) []any {
	var out []any
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
	defer r.rlock()()

	var where []string
	var args []any
	if f.WeekReference != "" {
		where = append(where, "week_reference = ?")
		args = append(args, f.WeekReference)
	}
	if f.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.Role != "" {
		where = append(where, "created_by_role = ?")
		args = append(args, string(f.Role))
	}
	if f.StockCode != "" {
		where = append(where, "stock_code = ?")
		args = append(args, f.StockCode)
	}
	if len(f.StoreIDs) > 0 {
		where = append(where, "store_id IN ("+placeholders(len(f.StoreIDs))+")")
		for _, id := range f.StoreIDs {
			args = append(args, id)
		}
	}
	if len(f.Statuses) > 0 {
		spellings := statusSpellings(f.Statuses)
		where = append(where, "status IN ("+placeholders(len(spellings))+")")
		args = append(args, spellings...)
	}

	query := "SELECT " + amendmentColumns + " FROM weekly_plan_amendments"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, id"

	rows, err := r.q.QueryContext(ctx, query, args...)
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
	defer r.rlock()()

	a, err := scanAmendment(r.q.QueryRowContext(ctx, "SELECT "+amendmentColumns+" FROM weekly_plan_amendments WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func approvedArg(a planning.Amendment) sql.NullInt64 {
	if a.ApprovedQty == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*a.ApprovedQty), Valid: true}
}

func (r *repo) InsertAmendment(ctx context.Context, a planning.Amendment) error {
	defer r.wlock()()

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	_, err := r.q.ExecContext(ctx, "INSERT INTO weekly_plan_amendments ("+amendmentColumns+") VALUES ("+placeholders(19)+")",
		a.ID, a.WeeklyPlanID, a.StoreID, a.StockCode, a.Category, a.UserID, string(a.CreatedByRole), string(a.Type),
		a.OriginalQty, a.AmendedQty, approvedArg(a), a.Justification, a.AdminID, a.AdminNotes, string(a.Status),
		a.WeekReference, a.ReplacesID, formatTime(a.CreatedAt), formatTime(a.LastTouched()),
	)
	if err != nil {
		return fmt.Errorf("failed to insert amendment: %w", err)
	}
	return nil
}

func (r *repo) UpdateAmendment(ctx context.Context, a planning.Amendment) error {
	defer r.wlock()()

	res, err := r.q.ExecContext(ctx, `
		UPDATE weekly_plan_amendments SET
			category = ?, amendment_type = ?, amended_qty = ?, approved_qty = ?, justification = ?,
			admin_id = ?, admin_notes = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		a.Category, string(a.Type), a.AmendedQty, approvedArg(a), a.Justification,
		a.AdminID, a.AdminNotes, string(a.Status), formatTime(a.LastTouched()), a.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update amendment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return planning.ErrAmendmentNotFound
	}
	return nil
}

// =============================================================================
// WEEKLY PLAN
// =============================================================================

func (r *repo) ListWeeklyPlanPage(ctx context.Context, week string, offset, limit int) ([]planning.WeeklyPlanLine, error) {
	defer r.rlock()()

	rows, err := r.q.QueryContext(ctx, `
		SELECT id, week_reference, store_name, stock_code, category, description, volume,
			qty_on_hand, order_qty, add_ons_qty, act_order_qty
		FROM weekly_plan
		WHERE week_reference = ?
		ORDER BY seq
		LIMIT ? OFFSET ?`, week, limit, offset)
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

func (r *repo) AppendWeeklyPlan(ctx context.Context, lines []planning.WeeklyPlanLine) error {
	defer r.wlock()()

	for _, l := range lines {
		if l.ID == "" {
			l.ID = uuid.NewString()
		}
		_, err := r.q.ExecContext(ctx, `
			INSERT INTO weekly_plan (id, week_reference, store_name, stock_code, category, description, volume,
				qty_on_hand, order_qty, add_ons_qty, act_order_qty)
			VALUES (`+placeholders(11)+`)`,
			l.ID, l.WeekReference, l.StoreName, l.StockCode, l.Category, l.Description, l.Volume.String(),
			l.QtyOnHand, l.OrderQty, l.AddOnsQty, l.ActOrderQty,
		)
		if err != nil {
			return fmt.Errorf("failed to insert plan line %s: %w", l.StockCode, err)
		}
	}
	return nil
}

// =============================================================================
// SYNC LOG
// =============================================================================

func (r *repo) SaveSyncLog(ctx context.Context, l planning.SyncLog) error {
	defer r.wlock()()

	var completedAt sql.NullString
	if l.CompletedAt != nil {
		completedAt = sql.NullString{String: formatTime(*l.CompletedAt), Valid: true}
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO excel_sync_logs (sync_id, operation_type, total_rows_processed, sync_status, users_created,
			users_updated, stores_created, stores_updated, assignments_created, error_count, started_at, completed_at)
		VALUES (`+placeholders(12)+`)
		ON CONFLICT(sync_id) DO UPDATE SET
			sync_status = excluded.sync_status,
			users_created = excluded.users_created,
			users_updated = excluded.users_updated,
			stores_created = excluded.stores_created,
			stores_updated = excluded.stores_updated,
			assignments_created = excluded.assignments_created,
			error_count = excluded.error_count,
			completed_at = excluded.completed_at`,
		l.SyncID, l.OperationType, l.TotalRowsProcessed, l.Status, l.UsersCreated, l.UsersUpdated,
		l.StoresCreated, l.StoresUpdated, l.AssignmentsCreated, l.ErrorCount, formatTime(l.StartedAt), completedAt,
	)
	return err
}

// GetSyncLog returns a recorded sync log or nil.
func (r *repo) GetSyncLog(ctx context.Context, syncID string) (*planning.SyncLog, error) {
	defer r.rlock()()

	var l planning.SyncLog
	var startedAt string
	var completedAt sql.NullString
	err := r.q.QueryRowContext(ctx, `
		SELECT sync_id, operation_type, total_rows_processed, sync_status, users_created, users_updated,
			stores_created, stores_updated, assignments_created, error_count, started_at, completed_at
		FROM excel_sync_logs WHERE sync_id = ?`, syncID,
	).Scan(&l.SyncID, &l.OperationType, &l.TotalRowsProcessed, &l.Status, &l.UsersCreated, &l.UsersUpdated,
		&l.StoresCreated, &l.StoresUpdated, &l.AssignmentsCreated, &l.ErrorCount, &startedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	l.StartedAt = parseTime(startedAt)
	if completedAt.Valid {
		t := parseTime(completedAt.String)
		l.CompletedAt = &t
	}
	return &l, nil
}

var _ planning.TxRepository = (*Store)(nil)
