package upload

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/warp/backoffice/planning"
	"github.com/warp/backoffice/sheet"
)

// =============================================================================
// STORES
// =============================================================================

type storeRow struct {
	Code          string `validate:"required,storecode"`
	Name          string `validate:"required"`
	Region        string
	Address       string
	ContactPerson string
	Phone         string
	Email         string `validate:"omitempty,email"`
}

var storeMessages = map[string]string{
	"Code.required":  "Store Code is required",
	"Name.required":  "Store Name is required",
	"Code.storecode": "Store Code must be 3-10 characters, alphanumeric",
	"Email.email":    "Invalid email format",
}

// Stores upserts stores by code. A code repeated within the file is an
// error on every row after the first.
func (p *Processor) Stores(ctx context.Context, t *sheet.Table) (*Result, error) {
	if err := requireColumns(t, "Store Code", "Store Name"); err != nil {
		return nil, err
	}
	res := newResult(t)

	var valid []planning.Store
	firstRow := map[string]int{}
	for _, row := range t.Rows {
		in := storeRow{
			Code:          row.Get("Store Code"),
			Name:          row.Get("Store Name"),
			Region:        row.Get("Region"),
			Address:       row.Get("Address"),
			ContactPerson: row.Get("Contact Person"),
			Phone:         row.Get("Phone"),
			Email:         row.Get("Email"),
		}
		if msg := p.check(in, storeMessages); msg != "" {
			res.fail(row, msg)
			continue
		}
		if first, dup := firstRow[in.Code]; dup {
			res.fail(row, fmt.Sprintf("Duplicate Store Code %s (first seen on row %d)", in.Code, first))
			continue
		}
		firstRow[in.Code] = row.Number
		valid = append(valid, planning.Store{
			Code: in.Code, Name: in.Name, Region: in.Region, Address: in.Address,
			ContactPerson: in.ContactPerson, Phone: in.Phone, Email: in.Email, Active: true,
		})
		res.SuccessfulRows++
	}

	var created, updated int
	err := p.Repo.WithTx(ctx, func(tx planning.Repository) error {
		for _, st := range valid {
			_, isNew, err := tx.UpsertStore(ctx, st)
			if err != nil {
				return err
			}
			if isNew {
				created++
			} else {
				updated++
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save stores: %w", err)
	}

	p.Log.Debug().Int("new", created).Int("updated", updated).Msg("stores saved")
	p.completed("stores", res)
	return res.finish(), nil
}

// =============================================================================
// CATEGORIES
// =============================================================================

type categoryRow struct {
	Code        string `validate:"required,categorycode"`
	Name        string `validate:"required"`
	Description string
	SortOrder   *int `validate:"omitempty,min=1,max=999"`
}

var categoryMessages = map[string]string{
	"Code.required":     "Category Code is required",
	"Name.required":     "Category Name is required",
	"Code.categorycode": "Category Code must be 2-10 characters, alphanumeric uppercase",
	"SortOrder.min":     "Sort Order must be between 1 and 999",
	"SortOrder.max":     "Sort Order must be between 1 and 999",
}

// Categories upserts categories by code. A non-numeric Sort Order is
// treated as absent.
func (p *Processor) Categories(ctx context.Context, t *sheet.Table) (*Result, error) {
	if err := requireColumns(t, "Category Code", "Category Name"); err != nil {
		return nil, err
	}
	res := newResult(t)

	var valid []planning.Category
	for _, row := range t.Rows {
		in := categoryRow{
			Code:        row.Get("Category Code"),
			Name:        row.Get("Category Name"),
			Description: row.Get("Description"),
		}
		if n, err := strconv.Atoi(row.Get("Sort Order")); err == nil {
			in.SortOrder = &n
		}
		if msg := p.check(in, categoryMessages); msg != "" {
			res.fail(row, msg)
			continue
		}
		c := planning.Category{Code: in.Code, Name: in.Name, Description: in.Description, Active: true}
		if in.SortOrder != nil {
			c.SortOrder = *in.SortOrder
		}
		valid = append(valid, c)
		res.SuccessfulRows++
	}

	err := p.Repo.WithTx(ctx, func(tx planning.Repository) error {
		for _, c := range valid {
			if _, err := tx.UpsertCategory(ctx, c); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save categories: %w", err)
	}

	p.completed("categories", res)
	return res.finish(), nil
}

// =============================================================================
// ALLOCATIONS
// =============================================================================

type allocationRow struct {
	Email     string `validate:"required,email"`
	StoreCode string `validate:"required"`
}

var allocationMessages = map[string]string{
	"Email.required":     "Regional Manager Email is required",
	"Email.email":        "Invalid email format",
	"StoreCode.required": "Store Code is required",
}

// Allocations links stores directly to regional managers. Rows whose link
// already exists are counted and reported once under row 0.
func (p *Processor) Allocations(ctx context.Context, t *sheet.Table) (*Result, error) {
	if err := requireColumns(t, "Regional Manager Email", "Store Code"); err != nil {
		return nil, err
	}

	managers, err := p.Repo.ListUsersByRole(ctx, planning.RoleRegionalManager)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch users: %w", err)
	}
	stores, err := p.Repo.ListStores(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch stores: %w", err)
	}
	managerByEmail := make(map[string]string, len(managers))
	for _, u := range managers {
		managerByEmail[strings.ToLower(u.Email)] = u.ID
	}
	storeByCode := make(map[string]string, len(stores))
	for _, s := range stores {
		if s.Active {
			storeByCode[s.Code] = s.ID
		}
	}

	res := newResult(t)
	var valid []planning.Assignment
	for _, row := range t.Rows {
		in := allocationRow{
			Email:     strings.ToLower(row.Get("Regional Manager Email")),
			StoreCode: strings.ToUpper(row.Get("Store Code")),
		}
		if msg := p.check(in, allocationMessages); msg != "" {
			res.fail(row, msg)
			continue
		}
		managerID, ok := managerByEmail[in.Email]
		if !ok {
			res.fail(row, "Regional manager not found with email: "+in.Email)
			continue
		}
		storeID, ok := storeByCode[in.StoreCode]
		if !ok {
			res.fail(row, "Store not found with code: "+in.StoreCode)
			continue
		}
		valid = append(valid, planning.Assignment{Kind: planning.AssignRegionalManager, ManagerID: managerID, SubjectID: storeID})
		res.SuccessfulRows++
	}

	var duplicates int
	err = p.Repo.WithTx(ctx, func(tx planning.Repository) error {
		for _, a := range valid {
			created, err := tx.UpsertAssignment(ctx, a)
			if err != nil {
				return err
			}
			if !created {
				duplicates++
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save allocations: %w", err)
	}
	if duplicates > 0 {
		res.Errors = append(res.Errors, RowError{
			Row:   0,
			Error: fmt.Sprintf("%d duplicate allocations were skipped (already exist)", duplicates),
		})
	}

	p.completed("allocations", res)
	return res.finish(), nil
}
