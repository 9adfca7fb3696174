package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/warp/backoffice/planning"
	"github.com/warp/backoffice/sheet"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var exportHeaders = []string{
	"Store Code", "Store Name", "Region",
	"Regional Manager", "Area Manager", "Store Manager",
	"Store Status", "Area Status", "Regional Status", "Admin Status",
	"Store Amendments", "Area Amendments", "Regional Amendments", "Admin Amendments",
	"Store Submitted At", "Area Submitted At", "Regional Submitted At",
}

// ExportSubmissions writes the filtered tracking view as a workbook.
// GET /api/submissions/export?week=
func (h *Handler) ExportSubmissions(w http.ResponseWriter, r *http.Request) {
	resp, views, err := h.trackingView(r)
	if err != nil {
		h.fail(w, r, "Failed to load submissions", err)
		return
	}

	rows := make([][]any, 0, len(views))
	for _, v := range views {
		st := v.Status
		if !v.HasStatus {
			st = planning.SubmissionStatus{
				StoreSubmissionStatus:    planning.StatusNotSubmitted,
				AreaSubmissionStatus:     planning.StatusNotSubmitted,
				RegionalSubmissionStatus: planning.StatusNotSubmitted,
				AdminSubmissionStatus:    planning.StatusNotSubmitted,
			}
		}
		rows = append(rows, []any{
			v.Store.StoreCode, v.Store.StoreName, v.Store.Region,
			v.Store.RegionalManagerName, v.Store.AreaManagerName, v.Store.StoreManagerName,
			string(st.StoreSubmissionStatus), string(st.AreaSubmissionStatus),
			string(st.RegionalSubmissionStatus), string(st.AdminSubmissionStatus),
			st.StoreAmendmentCount, st.AreaAmendmentCount, st.RegionalAmendmentCount, st.AdminAmendmentCount,
			exportTime(st.StoreSubmittedAt), exportTime(st.AreaSubmittedAt), exportTime(st.RegionalSubmittedAt),
		})
	}

	name := "submissions-" + strings.ReplaceAll(strings.ToLower(resp.Week.Reference), " ", "-") + ".xlsx"
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if err := sheet.Write(w, "Tracking", exportHeaders, rows); err != nil {
		// Headers are gone; all we can do is log.
		h.Log.Error().Err(err).Str("week", resp.Week.Reference).Msg("export write failed")
	}
}

func exportTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04")
}
