package planning_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/backoffice/planning"
)

func filterFixture() ([]planning.HierarchyRow, []planning.SubmissionStatus) {
	h := []planning.HierarchyRow{
		{StoreID: "s1", StoreCode: "DBN01", StoreName: "Durban North", Region: "KZN", AreaManagerID: "a1", RegionalManagerID: "r1"},
		{StoreID: "s2", StoreCode: "CPT01", StoreName: "Canal Walk", Region: "Western Cape", AreaManagerID: "a2", RegionalManagerID: "r2"},
		{StoreID: "s3", StoreCode: "JHB07", StoreName: "Sandton", Region: "Gauteng", AreaManagerID: "a1", RegionalManagerID: "r1"},
	}
	st := []planning.SubmissionStatus{
		{StoreID: "s1", StoreSubmissionStatus: planning.StatusSubmitted, AreaSubmissionStatus: planning.StatusNotSubmitted, RegionalSubmissionStatus: planning.StatusNotSubmitted},
		{StoreID: "s2", StoreSubmissionStatus: planning.StatusNotSubmitted, AreaSubmissionStatus: planning.StatusNotSubmitted, RegionalSubmissionStatus: planning.StatusNotSubmitted, AreaAmendmentCount: 3},
	}
	return h, st
}

func ids(views []planning.StoreView) []string {
	var out []string
	for _, v := range views {
		out = append(out, v.Store.StoreID)
	}
	return out
}

func TestStoreFilter_Search(t *testing.T) {
	h, st := filterFixture()

	assert.Equal(t, []string{"s2"}, ids(planning.StoreFilter{Search: "canal"}.Apply(h, st)))
	assert.Equal(t, []string{"s3"}, ids(planning.StoreFilter{Search: "jhb"}.Apply(h, st)))
	assert.Equal(t, []string{"s1"}, ids(planning.StoreFilter{Search: "kzn"}.Apply(h, st)))
}

func TestStoreFilter_Managers(t *testing.T) {
	h, st := filterFixture()

	assert.Equal(t, []string{"s1", "s3"}, ids(planning.StoreFilter{AreaManagerID: "a1"}.Apply(h, st)))
	assert.Equal(t, []string{"s2"}, ids(planning.StoreFilter{RegionalManagerID: "r2", Status: planning.FilterAll}.Apply(h, st)))
	assert.Len(t, planning.StoreFilter{StoreID: "all"}.Apply(h, st), 3)
}

func TestStoreFilter_Status(t *testing.T) {
	// s3 has no reconciled entry and therefore counts as pending.
	h, st := filterFixture()

	assert.Equal(t, []string{"s1"}, ids(planning.StoreFilter{Status: planning.FilterSubmitted}.Apply(h, st)))
	assert.Equal(t, []string{"s2", "s3"}, ids(planning.StoreFilter{Status: planning.FilterPending}.Apply(h, st)))
	assert.Equal(t, []string{"s2"}, ids(planning.StoreFilter{Status: planning.FilterAmendments}.Apply(h, st)))
}

func TestParseStatusFilter(t *testing.T) {
	f, err := planning.ParseStatusFilter("")
	require.NoError(t, err)
	assert.Equal(t, planning.FilterAll, f)

	_, err = planning.ParseStatusFilter("approved")
	assert.Error(t, err)
}
