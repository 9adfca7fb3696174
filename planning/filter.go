package planning

import "strings"

// StatusFilter selects stores by where they are in the week's workflow.
type StatusFilter string

const (
	FilterAll        StatusFilter = "all"
	FilterSubmitted  StatusFilter = "submitted"
	FilterPending    StatusFilter = "pending"
	FilterAmendments StatusFilter = "amendments"
)

func ParseStatusFilter(s string) (StatusFilter, error) {
	switch f := StatusFilter(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterSubmitted, FilterPending, FilterAmendments:
		return f, nil
	}
	return "", &UnknownValueError{Kind: "status filter", Value: s}
}

// StoreFilter narrows the tracking view. Empty fields and "all" match
// everything.
type StoreFilter struct {
	Search            string
	RegionalManagerID string
	AreaManagerID     string
	StoreID           string
	Status            StatusFilter
}

// StoreView pairs a hierarchy row with its reconciled status.
type StoreView struct {
	Store  HierarchyRow
	Status SubmissionStatus
	// HasStatus is false when the store had no reconciled entry.
	HasStatus bool
}

// Apply returns the rows that match, in hierarchy order.
func (f StoreFilter) Apply(hierarchy []HierarchyRow, statuses []SubmissionStatus) []StoreView {
	byStore := make(map[string]SubmissionStatus, len(statuses))
	for _, s := range statuses {
		byStore[s.StoreID] = s
	}

	out := make([]StoreView, 0, len(hierarchy))
	for _, h := range hierarchy {
		st, ok := byStore[h.StoreID]
		v := StoreView{Store: h, Status: st, HasStatus: ok}
		if f.Match(v) {
			out = append(out, v)
		}
	}
	return out
}

func (f StoreFilter) Match(v StoreView) bool {
	if term := strings.ToLower(strings.TrimSpace(f.Search)); term != "" {
		if !strings.Contains(strings.ToLower(v.Store.StoreName), term) &&
			!strings.Contains(strings.ToLower(v.Store.StoreCode), term) &&
			!strings.Contains(strings.ToLower(v.Store.Region), term) {
			return false
		}
	}
	if !matchID(f.RegionalManagerID, v.Store.RegionalManagerID) ||
		!matchID(f.AreaManagerID, v.Store.AreaManagerID) ||
		!matchID(f.StoreID, v.Store.StoreID) {
		return false
	}

	switch f.Status {
	case "", FilterAll:
		return true
	case FilterPending:
		if !v.HasStatus {
			return true
		}
		return v.Status.StoreSubmissionStatus == StatusNotSubmitted &&
			v.Status.AreaSubmissionStatus == StatusNotSubmitted &&
			v.Status.RegionalSubmissionStatus == StatusNotSubmitted
	case FilterSubmitted:
		return v.HasStatus && (v.Status.StoreSubmissionStatus == StatusSubmitted ||
			v.Status.AreaSubmissionStatus == StatusSubmitted ||
			v.Status.RegionalSubmissionStatus == StatusSubmitted)
	case FilterAmendments:
		return v.HasStatus && (v.Status.StoreAmendmentCount > 0 ||
			v.Status.AreaAmendmentCount > 0 ||
			v.Status.RegionalAmendmentCount > 0)
	}
	return false
}

func matchID(want, got string) bool {
	return want == "" || want == "all" || want == got
}
