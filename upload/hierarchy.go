package upload

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/warp/backoffice/planning"
	"github.com/warp/backoffice/sheet"
)

// HierarchySheet is the worksheet the hierarchy is read from.
const HierarchySheet = "Sheet1"

var hierarchyColumns = []string{
	"rm_name", "rm_surname", "rm_email", "rm_username",
	"am_name", "am_surname", "am_username", "am_email",
	"Store", "store_code", "store_manager", "Store_manager_email", "Store_manager_username",
}

type managerRow struct {
	Email string `validate:"omitempty,email"`
}

// HierarchyEntries converts the sheet to sync entries. Rows with neither a
// store name nor a code are skipped. Malformed manager emails are returned
// as row errors and the row is dropped.
func (p *Processor) HierarchyEntries(t *sheet.Table) ([]planning.HierarchyEntry, []planning.RowError, error) {
	if err := requireColumns(t, hierarchyColumns...); err != nil {
		return nil, nil, err
	}

	var entries []planning.HierarchyEntry
	var rowErrors []planning.RowError
rows:
	for _, row := range t.Rows {
		e := planning.HierarchyEntry{
			RowNumber:            row.Number,
			RegionalName:         row.Get("rm_name"),
			RegionalSurname:      row.Get("rm_surname"),
			RegionalEmail:        row.Get("rm_email"),
			RegionalUsername:     row.Get("rm_username"),
			AreaName:             row.Get("am_name"),
			AreaSurname:          row.Get("am_surname"),
			AreaUsername:         row.Get("am_username"),
			AreaEmail:            row.Get("am_email"),
			StoreName:            row.Get("Store"),
			StoreCode:            row.Get("store_code"),
			StoreManagerName:     row.Get("store_manager"),
			StoreManagerEmail:    row.Get("Store_manager_email"),
			StoreManagerUsername: row.Get("Store_manager_username"),
		}
		if e.StoreName == "" && e.StoreCode == "" {
			continue
		}

		for _, f := range []struct{ field, email string }{
			{"rm_email", e.RegionalEmail},
			{"am_email", e.AreaEmail},
			{"Store_manager_email", e.StoreManagerEmail},
		} {
			if strings.EqualFold(f.email, "vacant") {
				continue
			}
			if p.check(managerRow{Email: f.email}, nil) != "" {
				rowErrors = append(rowErrors, planning.RowError{
					Row: row.Number, Field: f.field, Value: f.email, Message: "Invalid email format: " + f.email,
				})
				continue rows
			}
		}
		entries = append(entries, e)
	}
	return entries, rowErrors, nil
}

// Hierarchy parses the sheet and runs the hierarchy sync.
func (p *Processor) Hierarchy(ctx context.Context, t *sheet.Table) (*planning.SyncResult, error) {
	if p.Sync == nil {
		return nil, errors.New("hierarchy sync is not configured")
	}
	entries, rowErrors, err := p.HierarchyEntries(t)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no hierarchy rows found", planning.ErrInvalidInput)
	}

	res, err := p.Sync.Sync(ctx, entries)
	if err != nil {
		return nil, err
	}
	res.TotalRows += len(rowErrors)
	res.Errors = append(rowErrors, res.Errors...)
	slices.SortStableFunc(res.Errors, func(a, b planning.RowError) int { return a.Row - b.Row })
	return res, nil
}
