package planning_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/backoffice/planning"
	memstore "github.com/warp/backoffice/planning/store"
)

func hierarchyEntry(row int, code, name string) planning.HierarchyEntry {
	return planning.HierarchyEntry{
		RowNumber:            row,
		RegionalName:         "Rita",
		RegionalSurname:      "Naidoo",
		RegionalEmail:        "Rita.Naidoo@example.com",
		RegionalUsername:     "rnaidoo",
		AreaName:             "Andile",
		AreaSurname:          "Mokoena",
		AreaUsername:         "amokoena",
		AreaEmail:            "vacant",
		StoreName:            name,
		StoreCode:            code,
		StoreManagerName:     "Sam " + code,
		StoreManagerEmail:    code + "@example.com",
		StoreManagerUsername: "sm" + code,
	}
}

func TestHierarchySync_DedupesManagersAndLinksStores(t *testing.T) {
	// GIVEN: Two rows sharing a regional and an area manager
	// WHEN: Syncing
	// THEN: Shared managers are created once, both stores are linked, and
	//       the area manager's email is derived from the username

	repo := memstore.NewMemory()
	sync := planning.NewHierarchySync(repo, "", &recorder{}, zerolog.Nop())
	ctx := context.Background()

	res, err := sync.Sync(ctx, []planning.HierarchyEntry{
		hierarchyEntry(2, "DBN01", "Durban North"),
		hierarchyEntry(3, "DBN02", "Durban South"),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.TotalRows)
	assert.Equal(t, 4, res.UsersCreated)
	assert.Equal(t, 2, res.StoresCreated)
	assert.Equal(t, 7, res.AssignmentsCreated)
	assert.Empty(t, res.Errors)

	am, err := repo.GetUserByEmail(ctx, "amokoena@thebedshop.co.za")
	require.NoError(t, err)
	require.NotNil(t, am)
	assert.Equal(t, planning.RoleAreaManager, am.Role)

	rm, err := repo.GetUserByEmail(ctx, "rita.naidoo@example.com")
	require.NoError(t, err)
	require.NotNil(t, rm)

	rows, err := repo.ListHierarchy(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, h := range rows {
		assert.Equal(t, am.ID, h.AreaManagerID)
		assert.Equal(t, rm.ID, h.RegionalManagerID)
		assert.NotEmpty(t, h.StoreManagerID)
	}

	log, ok := repo.SyncLog(res.SyncID)
	require.True(t, ok)
	assert.Equal(t, planning.SyncCompleted, log.Status)
	assert.Equal(t, 4, log.UsersCreated)
	assert.NotNil(t, log.CompletedAt)
}

func TestHierarchySync_SecondRunUpdates(t *testing.T) {
	repo := memstore.NewMemory()
	sync := planning.NewHierarchySync(repo, "", nil, zerolog.Nop())
	ctx := context.Background()
	entries := []planning.HierarchyEntry{hierarchyEntry(2, "DBN01", "Durban North")}

	_, err := sync.Sync(ctx, entries)
	require.NoError(t, err)
	res, err := sync.Sync(ctx, entries)
	require.NoError(t, err)

	assert.Equal(t, 0, res.UsersCreated)
	assert.Equal(t, 3, res.UsersUpdated)
	assert.Equal(t, 1, res.StoresUpdated)
	assert.Equal(t, 0, res.AssignmentsCreated)
}

func TestHierarchySync_VacantStoreManagerClearsLink(t *testing.T) {
	// GIVEN: A store synced with a store manager
	// WHEN: The next sheet lists the position as vacant
	// THEN: The store no longer has a store manager

	repo := memstore.NewMemory()
	sync := planning.NewHierarchySync(repo, "", nil, zerolog.Nop())
	ctx := context.Background()

	entry := hierarchyEntry(2, "DBN01", "Durban North")
	_, err := sync.Sync(ctx, []planning.HierarchyEntry{entry})
	require.NoError(t, err)

	entry.StoreManagerName = "Vacant"
	entry.StoreManagerEmail = "vacant"
	_, err = sync.Sync(ctx, []planning.HierarchyEntry{entry})
	require.NoError(t, err)

	rows, err := repo.ListHierarchy(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Empty(t, rows[0].StoreManagerID)
}

func TestHierarchySync_RowProblemsAreReported(t *testing.T) {
	repo := memstore.NewMemory()
	sync := planning.NewHierarchySync(repo, "", nil, zerolog.Nop())

	noCode := hierarchyEntry(2, "", "Nameless")
	dup1 := hierarchyEntry(3, "DBN01", "Durban North")
	dup2 := hierarchyEntry(4, "DBN01", "Durban North Again")
	oneWord := hierarchyEntry(5, "DBN03", "Durban Central")
	oneWord.StoreManagerName = "Cher"

	res, err := sync.Sync(context.Background(), []planning.HierarchyEntry{noCode, dup1, dup2, oneWord})
	require.NoError(t, err)

	var rowsWithErrors []int
	for _, e := range res.Errors {
		rowsWithErrors = append(rowsWithErrors, e.Row)
	}
	assert.Equal(t, []int{2, 4, 5}, rowsWithErrors)
	assert.Equal(t, 2, res.StoresCreated)
}
