/*
hierarchy.go - Store hierarchy sync

PURPOSE:
  Replaces the manager directory from one hierarchy sheet. Each sheet row
  names a store and the regional, area and store manager responsible for
  it. The same manager appears on many rows; users are deduplicated by
  lower-cased email before anything is written.

SYNC FLOW:
  1. Collect:  walk rows, skip vacant positions, derive missing manager
               emails as <username>@<domain>, dedupe users by email
  2. Log:      write a SyncLog in state "started"
  3. Apply:    in ONE transaction upsert users, upsert stores by code,
               then point every store at its managers (vacant positions
               clear the link) and link regional managers to area managers
  4. Finish:   mark the SyncLog completed or failed

  Row-level problems (missing store code, one-word store manager name)
  are reported in SyncResult.Errors and the row or position is skipped.
  A store failure aborts the transaction and nothing is kept.

SEE ALSO:
  - upload/hierarchy.go: Parses and validates the sheet into entries
*/
package planning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultEmailDomain is used to derive addresses for managers listed with a
// username only.
const DefaultEmailDomain = "thebedshop.co.za"

const vacant = "vacant"

// HierarchyEntry is one parsed row of the hierarchy sheet.
type HierarchyEntry struct {
	RowNumber int

	RegionalName     string
	RegionalSurname  string
	RegionalEmail    string
	RegionalUsername string

	AreaName     string
	AreaSurname  string
	AreaUsername string
	AreaEmail    string

	StoreName string
	StoreCode string

	StoreManagerName     string
	StoreManagerEmail    string
	StoreManagerUsername string
}

// RowError is a problem with one input row.
type RowError struct {
	Row     int    `json:"row"`
	Field   string `json:"field,omitempty"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Message)
}

// SyncResult summarizes a hierarchy sync.
type SyncResult struct {
	SyncID             string     `json:"sync_id"`
	TotalRows          int        `json:"total_rows"`
	UsersCreated       int        `json:"users_created"`
	UsersUpdated       int        `json:"users_updated"`
	StoresCreated      int        `json:"stores_created"`
	StoresUpdated      int        `json:"stores_updated"`
	AssignmentsCreated int        `json:"assignments_created"`
	Errors             []RowError `json:"errors"`
}

type HierarchySync struct {
	Repo        TxRepository
	EmailDomain string
	Events      Publisher
	Log         zerolog.Logger

	Now   func() time.Time
	NewID func() string
}

func NewHierarchySync(repo TxRepository, emailDomain string, events Publisher, log zerolog.Logger) *HierarchySync {
	if emailDomain == "" {
		emailDomain = DefaultEmailDomain
	}
	return &HierarchySync{
		Repo:        repo,
		EmailDomain: emailDomain,
		Events:      events,
		Log:         log,
		Now:         time.Now,
		NewID:       uuid.NewString,
	}
}

// pendingUser is a deduplicated manager waiting to be written.
type pendingUser struct {
	user User
	row  int
}

// rowLinks holds the resolved manager emails for one accepted row.
type rowLinks struct {
	entry         HierarchyEntry
	regionalEmail string
	areaEmail     string
	storeEmail    string
}

// Sync applies entries to the directory.
func (s *HierarchySync) Sync(ctx context.Context, entries []HierarchyEntry) (*SyncResult, error) {
	result := &SyncResult{SyncID: s.NewID(), TotalRows: len(entries), Errors: []RowError{}}
	users, order, rows := s.collect(entries, result)

	log := SyncLog{
		SyncID:             result.SyncID,
		OperationType:      "full_sync",
		TotalRowsProcessed: len(entries),
		Status:             SyncStarted,
		StartedAt:          s.Now(),
	}
	if err := s.Repo.SaveSyncLog(ctx, log); err != nil {
		return nil, fmt.Errorf("failed to start sync log: %w", err)
	}

	err := s.Repo.WithTx(ctx, func(tx Repository) error {
		counts := *result
		ids := make(map[string]string, len(users))
		for _, email := range order {
			pu := users[email]
			saved, created, err := tx.UpsertUser(ctx, pu.user)
			if err != nil {
				return fmt.Errorf("row %d: failed to save user %s: %w", pu.row, email, err)
			}
			if created {
				counts.UsersCreated++
			} else {
				counts.UsersUpdated++
			}
			ids[email] = saved.ID
		}

		regionalAreas := map[[2]string]bool{}
		for _, r := range rows {
			store, created, err := tx.UpsertStore(ctx, Store{
				Code:   r.entry.StoreCode,
				Name:   r.entry.StoreName,
				Active: true,
			})
			if err != nil {
				return fmt.Errorf("row %d: failed to save store %s: %w", r.entry.RowNumber, r.entry.StoreCode, err)
			}
			if created {
				counts.StoresCreated++
			} else {
				counts.StoresUpdated++
			}

			links := []struct {
				kind  AssignmentKind
				email string
			}{
				{AssignStoreManager, r.storeEmail},
				{AssignAreaManager, r.areaEmail},
				{AssignRegionalManager, r.regionalEmail},
			}
			for _, l := range links {
				managerID := ids[l.email]
				if l.email == "" || managerID == "" {
					if err := tx.ClearAssignment(ctx, l.kind, store.ID); err != nil {
						return fmt.Errorf("row %d: failed to clear %s: %w", r.entry.RowNumber, l.kind, err)
					}
					continue
				}
				made, err := tx.UpsertAssignment(ctx, Assignment{Kind: l.kind, ManagerID: managerID, SubjectID: store.ID})
				if err != nil {
					return fmt.Errorf("row %d: failed to assign %s: %w", r.entry.RowNumber, l.kind, err)
				}
				if made {
					counts.AssignmentsCreated++
				}
			}

			rmID, amID := ids[r.regionalEmail], ids[r.areaEmail]
			if rmID == "" || amID == "" || regionalAreas[[2]string{rmID, amID}] {
				continue
			}
			regionalAreas[[2]string{rmID, amID}] = true
			made, err := tx.UpsertAssignment(ctx, Assignment{Kind: AssignRegionalArea, ManagerID: rmID, SubjectID: amID})
			if err != nil {
				return fmt.Errorf("row %d: failed to link regional to area manager: %w", r.entry.RowNumber, err)
			}
			if made {
				counts.AssignmentsCreated++
			}
		}

		*result = counts
		return nil
	})

	done := s.Now()
	log.CompletedAt = &done
	log.ErrorCount = len(result.Errors)
	if err != nil {
		log.Status = SyncFailed
		syncRuns.WithLabelValues(SyncFailed).Inc()
		if logErr := s.Repo.SaveSyncLog(ctx, log); logErr != nil {
			s.Log.Error().Err(logErr).Str("sync_id", result.SyncID).Msg("failed to record sync failure")
		}
		s.Log.Error().Err(err).Str("sync_id", result.SyncID).Msg("hierarchy sync failed")
		return nil, err
	}

	log.Status = SyncCompleted
	log.UsersCreated = result.UsersCreated
	log.UsersUpdated = result.UsersUpdated
	log.StoresCreated = result.StoresCreated
	log.StoresUpdated = result.StoresUpdated
	log.AssignmentsCreated = result.AssignmentsCreated
	if err := s.Repo.SaveSyncLog(ctx, log); err != nil {
		s.Log.Error().Err(err).Str("sync_id", result.SyncID).Msg("failed to complete sync log")
	}
	syncRuns.WithLabelValues(SyncCompleted).Inc()

	s.Log.Info().
		Str("sync_id", result.SyncID).
		Int("rows", result.TotalRows).
		Int("users_created", result.UsersCreated).
		Int("stores_created", result.StoresCreated).
		Int("assignments", result.AssignmentsCreated).
		Int("errors", len(result.Errors)).
		Msg("hierarchy synced")
	publish(s.Events, ChangeEvent{Kind: EventHierarchySynced, EntityID: result.SyncID, At: done})
	return result, nil
}

// collect dedupes users and resolves each accepted row's manager emails.
// Problems are appended to result.Errors.
func (s *HierarchySync) collect(entries []HierarchyEntry, result *SyncResult) (map[string]pendingUser, []string, []rowLinks) {
	users := map[string]pendingUser{}
	var order []string
	add := func(email string, u User, row int) {
		if _, ok := users[email]; ok {
			return
		}
		u.Email = email
		u.Active = true
		u.Name = strings.TrimSpace(u.FirstName + " " + u.LastName)
		users[email] = pendingUser{user: u, row: row}
		order = append(order, email)
	}

	seenStores := map[string]bool{}
	var rows []rowLinks
	for _, e := range entries {
		if e.StoreCode == "" || e.StoreName == "" {
			result.Errors = append(result.Errors, RowError{Row: e.RowNumber, Field: "store_code", Message: "store name and store code are required"})
			continue
		}
		if seenStores[e.StoreCode] {
			result.Errors = append(result.Errors, RowError{Row: e.RowNumber, Field: "store_code", Value: e.StoreCode, Message: "duplicate store code " + e.StoreCode})
			continue
		}
		seenStores[e.StoreCode] = true
		link := rowLinks{entry: e}

		if !isVacant(e.RegionalEmail) {
			link.regionalEmail = strings.ToLower(e.RegionalEmail)
			add(link.regionalEmail, User{
				Username:  e.RegionalUsername,
				FirstName: e.RegionalName,
				LastName:  e.RegionalSurname,
				Role:      RoleRegionalManager,
			}, e.RowNumber)
		}

		if !isVacant(e.AreaName) && e.AreaUsername != "" {
			email := s.managerEmail(e.AreaEmail, e.AreaUsername)
			if e.AreaSurname == "" {
				result.Errors = append(result.Errors, RowError{Row: e.RowNumber, Field: "am_surname", Value: email, Message: "area manager surname is required"})
			} else {
				link.areaEmail = email
				add(email, User{
					Username:  e.AreaUsername,
					FirstName: e.AreaName,
					LastName:  e.AreaSurname,
					Role:      RoleAreaManager,
				}, e.RowNumber)
			}
		}

		if !isVacant(e.StoreManagerName) && e.StoreManagerUsername != "" {
			email := s.managerEmail(e.StoreManagerEmail, e.StoreManagerUsername)
			first, last, ok := splitName(e.StoreManagerName)
			if _, known := users[email]; !ok && !known {
				result.Errors = append(result.Errors, RowError{Row: e.RowNumber, Field: "store_manager", Value: e.StoreManagerName, Message: "store manager needs a first and last name"})
			} else {
				link.storeEmail = email
				add(email, User{
					Username:  e.StoreManagerUsername,
					FirstName: first,
					LastName:  last,
					Role:      RoleStoreManager,
				}, e.RowNumber)
			}
		}

		rows = append(rows, link)
	}
	return users, order, rows
}

func (s *HierarchySync) managerEmail(email, username string) string {
	if !isVacant(email) {
		return strings.ToLower(email)
	}
	return strings.ToLower(username + "@" + s.EmailDomain)
}

func isVacant(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || strings.EqualFold(v, vacant)
}

// splitName splits "First Rest Of Name". ok is false for one-word names.
func splitName(full string) (first, last string, ok bool) {
	parts := strings.Fields(full)
	if len(parts) < 2 {
		return full, "", false
	}
	return parts[0], strings.Join(parts[1:], " "), true
}
