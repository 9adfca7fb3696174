/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON shapes of the HTTP API. Domain types in planning/ carry no JSON
  contract of their own (except the derived tracking view), so every
  response goes through a DTO here.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Request types carry validator/v10 tags and are checked by decode() in
  handlers.go before reaching the services. Business rules (week open,
  actor authority, transitions) stay in planning/.

SEE ALSO:
  - handlers.go: Uses these types
  - planning/types.go: Domain types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/backoffice/planning"
)

const dateLayout = "2006-01-02"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// =============================================================================
// DIRECTORY
// =============================================================================

type UserDTO struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
	Role      string `json:"role"`
	Active    bool   `json:"is_active"`
}

func toUserDTO(u planning.User) UserDTO {
	return UserDTO{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.DisplayName(),
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Username:  u.Username,
		Role:      string(u.Role),
		Active:    u.Active,
	}
}

type StoreDTO struct {
	ID            string `json:"id"`
	Code          string `json:"store_code"`
	Name          string `json:"store_name"`
	Region        string `json:"region,omitempty"`
	Address       string `json:"address,omitempty"`
	ContactPerson string `json:"contact_person,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Email         string `json:"email,omitempty"`
	Active        bool   `json:"is_active"`
}

func toStoreDTO(s planning.Store) StoreDTO {
	return StoreDTO{
		ID:            s.ID,
		Code:          s.Code,
		Name:          s.Name,
		Region:        s.Region,
		Address:       s.Address,
		ContactPerson: s.ContactPerson,
		Phone:         s.Phone,
		Email:         s.Email,
		Active:        s.Active,
	}
}

// HierarchyDTO is one store with its managers. Vacant positions have empty
// ids.
type HierarchyDTO struct {
	StoreID              string `json:"store_id"`
	StoreCode            string `json:"store_code"`
	StoreName            string `json:"store_name"`
	Region               string `json:"region,omitempty"`
	StoreActive          bool   `json:"store_is_active"`
	StoreManagerID       string `json:"store_manager_id,omitempty"`
	StoreManagerName     string `json:"store_manager_name,omitempty"`
	StoreManagerEmail    string `json:"store_manager_email,omitempty"`
	AreaManagerID        string `json:"area_manager_id,omitempty"`
	AreaManagerName      string `json:"area_manager_name,omitempty"`
	AreaManagerEmail     string `json:"area_manager_email,omitempty"`
	RegionalManagerID    string `json:"regional_manager_id,omitempty"`
	RegionalManagerName  string `json:"regional_manager_name,omitempty"`
	RegionalManagerEmail string `json:"regional_manager_email,omitempty"`
}

func toHierarchyDTO(h planning.HierarchyRow) HierarchyDTO {
	return HierarchyDTO{
		StoreID:              h.StoreID,
		StoreCode:            h.StoreCode,
		StoreName:            h.StoreName,
		Region:               h.Region,
		StoreActive:          h.StoreActive,
		StoreManagerID:       h.StoreManagerID,
		StoreManagerName:     h.StoreManagerName,
		StoreManagerEmail:    h.StoreManagerEmail,
		AreaManagerID:        h.AreaManagerID,
		AreaManagerName:      h.AreaManagerName,
		AreaManagerEmail:     h.AreaManagerEmail,
		RegionalManagerID:    h.RegionalManagerID,
		RegionalManagerName:  h.RegionalManagerName,
		RegionalManagerEmail: h.RegionalManagerEmail,
	}
}

// =============================================================================
// WEEKS
// =============================================================================

type WeekDTO struct {
	Reference  string `json:"week_reference"`
	StartDate  string `json:"week_start_date"`
	EndDate    string `json:"week_end_date"`
	Year       int    `json:"year"`
	WeekNumber int    `json:"week_number"`
	IsCurrent  bool   `json:"is_current"`
	IsActive   bool   `json:"is_active"`
	Status     string `json:"week_status"`
}

func toWeekDTO(w planning.WeekSelection) WeekDTO {
	return WeekDTO{
		Reference:  w.Reference,
		StartDate:  w.StartDate.Format(dateLayout),
		EndDate:    w.EndDate.Format(dateLayout),
		Year:       w.Year,
		WeekNumber: w.WeekNumber,
		IsCurrent:  w.IsCurrent,
		IsActive:   w.IsActive,
		Status:     string(w.Status),
	}
}

type WeekStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=open closed"`
}

// =============================================================================
// SUBMISSIONS
// =============================================================================

// SubmitWeekRequest submits the caller's level for a week. StoreID is
// empty for an aggregate area or regional submission.
type SubmitWeekRequest struct {
	WeekReference string `json:"week_reference" validate:"required"`
	StoreID       string `json:"store_id"`
}

type SubmissionDTO struct {
	ID            string `json:"id"`
	UserID        string `json:"user_id"`
	StoreID       string `json:"store_id,omitempty"`
	WeekReference string `json:"week_reference"`
	Type          string `json:"submission_type"`
	Level         string `json:"submission_level"`
	Status        string `json:"status"`
	WeekStatus    string `json:"week_status"`
	CreatedAt     string `json:"created_at"`
}

func toSubmissionDTO(s planning.SubmissionRecord) SubmissionDTO {
	return SubmissionDTO{
		ID:            s.ID,
		UserID:        s.UserID,
		StoreID:       s.StoreID,
		WeekReference: s.WeekReference,
		Type:          string(s.Type),
		Level:         string(s.Level),
		Status:        string(s.Status),
		WeekStatus:    string(s.WeekStatus),
		CreatedAt:     formatTime(s.CreatedAt),
	}
}

// StoreStatusDTO is one row of the tracking dashboard.
type StoreStatusDTO struct {
	Store  HierarchyDTO               `json:"store"`
	Status *planning.SubmissionStatus `json:"status,omitempty"`
}

// TrackingResponse is returned by GET /api/submissions.
type TrackingResponse struct {
	Week    WeekDTO                    `json:"week"`
	Stores  []StoreStatusDTO           `json:"stores"`
	Summary planning.SubmissionSummary `json:"summary"`
}

// =============================================================================
// AMENDMENTS
// =============================================================================

type AmendmentRequest struct {
	WeekReference string `json:"week_reference" validate:"required"`
	StoreID       string `json:"store_id" validate:"required"`
	StockCode     string `json:"stock_code" validate:"required"`
	Category      string `json:"category"`
	WeeklyPlanID  string `json:"weekly_plan_id"`
	Type          string `json:"amendment_type" validate:"omitempty,oneof=add_on quantity_change new_item"`
	OriginalQty   int    `json:"original_qty" validate:"gte=0"`
	AmendedQty    int    `json:"amended_qty" validate:"gte=0"`
	Justification string `json:"justification" validate:"max=1000"`
}

type ApproveRequest struct {
	ApprovedQty *int   `json:"approved_qty" validate:"omitempty,gte=0"`
	Notes       string `json:"admin_notes"`
}

type RejectRequest struct {
	Notes string `json:"admin_notes"`
}

type ModifyRequest struct {
	Quantity int    `json:"quantity" validate:"gte=0"`
	Reason   string `json:"reason" validate:"required"`
}

type AmendmentDTO struct {
	ID            string `json:"id"`
	WeeklyPlanID  string `json:"weekly_plan_id,omitempty"`
	StoreID       string `json:"store_id"`
	StockCode     string `json:"stock_code"`
	Category      string `json:"category,omitempty"`
	UserID        string `json:"user_id"`
	CreatedByRole string `json:"created_by_role"`
	Type          string `json:"amendment_type"`
	OriginalQty   int    `json:"original_qty"`
	AmendedQty    int    `json:"amended_qty"`
	ApprovedQty   *int   `json:"approved_qty,omitempty"`
	Justification string `json:"justification,omitempty"`
	AdminID       string `json:"admin_id,omitempty"`
	AdminNotes    string `json:"admin_notes,omitempty"`
	Status        string `json:"status"`
	WeekReference string `json:"week_reference"`
	ReplacesID    string `json:"replaces_id,omitempty"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at,omitempty"`
}

func toAmendmentDTO(a planning.Amendment) AmendmentDTO {
	return AmendmentDTO{
		ID:            a.ID,
		WeeklyPlanID:  a.WeeklyPlanID,
		StoreID:       a.StoreID,
		StockCode:     a.StockCode,
		Category:      a.Category,
		UserID:        a.UserID,
		CreatedByRole: string(a.CreatedByRole),
		Type:          string(a.Type),
		OriginalQty:   a.OriginalQty,
		AmendedQty:    a.AmendedQty,
		ApprovedQty:   a.ApprovedQty,
		Justification: a.Justification,
		AdminID:       a.AdminID,
		AdminNotes:    a.AdminNotes,
		Status:        string(a.Status),
		WeekReference: a.WeekReference,
		ReplacesID:    a.ReplacesID,
		CreatedAt:     formatTime(a.CreatedAt),
		UpdatedAt:     formatTime(a.UpdatedAt),
	}
}

func toAmendmentDTOs(in []planning.Amendment) []AmendmentDTO {
	out := make([]AmendmentDTO, len(in))
	for i, a := range in {
		out[i] = toAmendmentDTO(a)
	}
	return out
}

// =============================================================================
// DATASET
// =============================================================================

type PlanLineDTO struct {
	ID          string          `json:"id"`
	StoreName   string          `json:"store_name"`
	StockCode   string          `json:"stock_code"`
	Category    string          `json:"category,omitempty"`
	Description string          `json:"description,omitempty"`
	Volume      decimal.Decimal `json:"volume"`
	QtyOnHand   int             `json:"qty_on_hand"`
	OrderQty    int             `json:"order_qty"`
	AddOnsQty   int             `json:"add_ons_qty"`
	ActOrderQty int             `json:"act_order_qty"`
}

type DatasetResponse struct {
	WeekReference string          `json:"week_reference"`
	Lines         []PlanLineDTO   `json:"lines"`
	Amendments    []AmendmentDTO  `json:"amendments"`
	TotalVolume   decimal.Decimal `json:"total_volume"`
	TotalOrderQty int             `json:"total_order_qty"`
	LoadedAt      string          `json:"loaded_at"`
}

func toDatasetResponse(ds *planning.WeekDataset) DatasetResponse {
	lines := make([]PlanLineDTO, len(ds.Lines))
	for i, l := range ds.Lines {
		lines[i] = PlanLineDTO{
			ID:          l.ID,
			StoreName:   l.StoreName,
			StockCode:   l.StockCode,
			Category:    l.Category,
			Description: l.Description,
			Volume:      l.Volume,
			QtyOnHand:   l.QtyOnHand,
			OrderQty:    l.OrderQty,
			AddOnsQty:   l.AddOnsQty,
			ActOrderQty: l.ActOrderQty,
		}
	}
	return DatasetResponse{
		WeekReference: ds.WeekReference,
		Lines:         lines,
		Amendments:    toAmendmentDTOs(ds.Amendments),
		TotalVolume:   ds.TotalVolume,
		TotalOrderQty: ds.TotalOrderQty,
		LoadedAt:      formatTime(ds.LoadedAt),
	}
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}
