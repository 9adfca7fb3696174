/*
handlers.go - HTTP API handlers for the weekly plan back-office

PURPOSE:
  Exposes the planning engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the planning services.

ENDPOINTS:
  Identity:
    GET    /api/me                          Current user

  Weeks:
    GET    /api/weeks                       All weeks, newest first
    GET    /api/weeks/current               Current week
    POST   /api/weeks/{week}/status         Open or close a week (admin)
    GET    /api/weeks/{week}/dataset        Weekly plan + amendments (cached)

  Submissions:
    GET    /api/submissions                 Reconciled tracking view
    GET    /api/submissions/export          Same view as .xlsx
    POST   /api/submissions                 Submit the caller's level

  Amendments:
    GET    /api/amendments                  Visible amendments
    POST   /api/amendments                  Create or edit a pending amendment
    POST   /api/amendments/{id}/approve     Admin
    POST   /api/amendments/{id}/reject      Admin
    POST   /api/amendments/{id}/modify      Admin

  Directory:
    GET    /api/stores                      Stores
    GET    /api/hierarchy                   Stores with their managers

  Uploads (admin, see uploads.go), feed (see feed.go)

REQUEST FLOW:
  1. Identify the caller (auth.go)
  2. Parse and validate input
  3. Call the planning service
  4. Serialize response
  5. Map errors through statusForError

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, illegal transitions, closed week
  - 401: No or bad credentials
  - 403: Actor may not touch the target
  - 404: Resource not found
  - 409: Level already submitted for the week
  - 429: Upload rate limit
  - 500: Internal errors (logged)

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/warp/backoffice/planning"
	"github.com/warp/backoffice/upload"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Options tunes the services a Handler builds.
type Options struct {
	CacheTTL            time.Duration
	PageSize            int
	EmailDomain         string
	UploadRatePerMinute float64
	UploadBurst         int
	// Scenarios mounts the demo scenario loaders.
	Scenarios bool
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Repo       planning.TxRepository
	Amendments *planning.AmendmentService
	Weeks      *planning.WeekService
	Tracker    *planning.Tracker
	Datasets   *planning.DatasetLoader
	Uploads    *upload.Processor
	Feed       *Hub
	Log        zerolog.Logger

	validate  *validator.Validate
	limiter   *uploadLimiter
	scenarios bool
}

// NewHandler wires the planning services over repo. feed may be nil.
func NewHandler(repo planning.TxRepository, feed *Hub, opts Options, log zerolog.Logger) *Handler {
	var events planning.Publisher
	if feed != nil {
		events = feed
	}
	datasets := planning.NewDatasetLoader(repo, opts.CacheTTL, opts.PageSize, log)
	sync := planning.NewHierarchySync(repo, opts.EmailDomain, events, log)
	return &Handler{
		Repo:       repo,
		Amendments: planning.NewAmendmentService(repo, datasets, events, log),
		Weeks:      planning.NewWeekService(repo, datasets, events, log),
		Tracker:    planning.NewTracker(repo, log),
		Datasets:   datasets,
		Uploads:    upload.NewProcessor(repo, sync, events, log),
		Feed:       feed,
		Log:        log,
		validate:   validator.New(),
		limiter:    newUploadLimiter(opts.UploadRatePerMinute, opts.UploadBurst),
		scenarios:  opts.Scenarios,
	}
}

// =============================================================================
// HEALTH & IDENTITY
// =============================================================================

// Health reports liveness.
// GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Me returns the authenticated user.
// GET /api/me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	u, _ := userFrom(r.Context())
	writeJSON(w, http.StatusOK, toUserDTO(u))
}

// =============================================================================
// DIRECTORY
// =============================================================================

// ListStores returns all stores.
// GET /api/stores
func (h *Handler) ListStores(w http.ResponseWriter, r *http.Request) {
	stores, err := h.Repo.ListStores(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list stores", err)
		return
	}
	dtos := make([]StoreDTO, len(stores))
	for i, s := range stores {
		dtos[i] = toStoreDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListHierarchy returns the stores the caller can see with their managers.
// GET /api/hierarchy
func (h *Handler) ListHierarchy(w http.ResponseWriter, r *http.Request) {
	u, _ := userFrom(r.Context())
	rows, err := h.Repo.ListHierarchy(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to load hierarchy", err)
		return
	}
	rows = visibleTo(u, rows)
	dtos := make([]HierarchyDTO, len(rows))
	for i, row := range rows {
		dtos[i] = toHierarchyDTO(row)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// visibleTo narrows the hierarchy to the stores a manager manages. Admins
// see everything; other roles see nothing.
func visibleTo(u planning.User, rows []planning.HierarchyRow) []planning.HierarchyRow {
	if u.Role == planning.RoleAdmin {
		return rows
	}
	out := make([]planning.HierarchyRow, 0, len(rows))
	for _, row := range rows {
		if row.ManagedBy(u.ID) {
			out = append(out, row)
		}
	}
	return out
}

// =============================================================================
// WEEKS
// =============================================================================

// ListWeeks returns every week, newest first.
// GET /api/weeks
func (h *Handler) ListWeeks(w http.ResponseWriter, r *http.Request) {
	weeks, err := h.Weeks.ListWeeks(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list weeks", err)
		return
	}
	dtos := make([]WeekDTO, len(weeks))
	for i, wk := range weeks {
		dtos[i] = toWeekDTO(wk)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CurrentWeek returns the week flagged current.
// GET /api/weeks/current
func (h *Handler) CurrentWeek(w http.ResponseWriter, r *http.Request) {
	week, err := h.Weeks.CurrentWeek(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to get current week", err)
		return
	}
	writeJSON(w, http.StatusOK, toWeekDTO(*week))
}

// SetWeekStatus opens or closes a week.
// POST /api/weeks/{week}/status
func (h *Handler) SetWeekStatus(w http.ResponseWriter, r *http.Request) {
	var req WeekStatusRequest
	if !h.decode(w, r, &req) {
		return
	}
	u, _ := userFrom(r.Context())
	week, err := h.Weeks.SetWeekStatus(r.Context(), u, weekParam(r), planning.WeekStatus(req.Status))
	if err != nil {
		h.fail(w, r, "Failed to change week status", err)
		return
	}
	writeJSON(w, http.StatusOK, toWeekDTO(*week))
}

// WeekDataset returns the weekly plan and amendments for a week.
// GET /api/weeks/{week}/dataset
func (h *Handler) WeekDataset(w http.ResponseWriter, r *http.Request) {
	ref := weekParam(r)
	week, err := h.Repo.GetWeek(r.Context(), ref)
	if err != nil {
		h.fail(w, r, "Failed to load week", err)
		return
	}
	if week == nil {
		writeError(w, http.StatusNotFound, "Week not found", nil)
		return
	}
	ds, err := h.Datasets.Load(r.Context(), ref, nil)
	if err != nil {
		h.fail(w, r, "Failed to load weekly dataset", err)
		return
	}
	writeJSON(w, http.StatusOK, toDatasetResponse(ds))
}

func weekParam(r *http.Request) string {
	ref := chi.URLParam(r, "week")
	if unescaped, err := url.PathUnescape(ref); err == nil {
		ref = unescaped
	}
	return ref
}

// =============================================================================
// SUBMISSIONS
// =============================================================================

// trackingView reconciles the requested week and applies the query filters.
// Managers only ever see their own stores.
func (h *Handler) trackingView(r *http.Request) (*TrackingResponse, []planning.StoreView, error) {
	ctx := r.Context()
	q := r.URL.Query()
	u, _ := userFrom(ctx)

	status, err := planning.ParseStatusFilter(q.Get("status"))
	if err != nil {
		return nil, nil, err
	}

	ref := q.Get("week")
	if ref == "" {
		week, err := h.Weeks.CurrentWeek(ctx)
		if err != nil {
			return nil, nil, err
		}
		ref = week.Reference
	}

	tracking, err := h.Tracker.Track(ctx, ref)
	if err != nil {
		return nil, nil, err
	}

	scoped := visibleTo(u, tracking.Hierarchy)
	summary := tracking.Summary
	if u.Role != planning.RoleAdmin {
		summary = planning.Summarize(scoped, tracking.Statuses)
	}

	filter := planning.StoreFilter{
		Search:            q.Get("search"),
		RegionalManagerID: q.Get("regional_manager"),
		AreaManagerID:     q.Get("area_manager"),
		StoreID:           q.Get("store"),
		Status:            status,
	}
	views := filter.Apply(scoped, tracking.Statuses)

	resp := &TrackingResponse{
		Week:    toWeekDTO(tracking.Week),
		Stores:  make([]StoreStatusDTO, len(views)),
		Summary: summary,
	}
	for i, v := range views {
		resp.Stores[i] = StoreStatusDTO{Store: toHierarchyDTO(v.Store)}
		if v.HasStatus {
			st := v.Status
			resp.Stores[i].Status = &st
		}
	}
	return resp, views, nil
}

// ListSubmissions returns the reconciled submission status of every
// visible store for a week.
// GET /api/submissions?week=&status=&regional_manager=&area_manager=&store=&search=
func (h *Handler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	resp, _, err := h.trackingView(r)
	if err != nil {
		h.fail(w, r, "Failed to load submissions", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// SubmitWeek submits the caller's level.
// POST /api/submissions
func (h *Handler) SubmitWeek(w http.ResponseWriter, r *http.Request) {
	var req SubmitWeekRequest
	if !h.decode(w, r, &req) {
		return
	}
	u, _ := userFrom(r.Context())
	rec, err := h.Amendments.SubmitWeek(r.Context(), u, req.WeekReference, req.StoreID)
	if err != nil {
		h.fail(w, r, "Failed to submit week", err)
		return
	}
	writeJSON(w, http.StatusCreated, toSubmissionDTO(*rec))
}

// =============================================================================
// AMENDMENTS
// =============================================================================

// ListAmendments returns amendments visible to the caller.
// GET /api/amendments?week=&store=&status=&stock_code=
func (h *Handler) ListAmendments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := planning.AmendmentFilter{
		WeekReference: q.Get("week"),
		StockCode:     q.Get("stock_code"),
	}
	if store := q.Get("store"); store != "" {
		f.StoreIDs = []string{store}
	}
	if raw := q.Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			st, err := planning.ParseAmendmentStatus(s)
			if err != nil {
				h.fail(w, r, "Invalid status filter", err)
				return
			}
			f.Statuses = append(f.Statuses, st)
		}
	}

	u, _ := userFrom(r.Context())
	list, err := h.Amendments.List(r.Context(), u, f)
	if err != nil {
		h.fail(w, r, "Failed to list amendments", err)
		return
	}
	writeJSON(w, http.StatusOK, toAmendmentDTOs(list))
}

// SaveAmendment creates or edits the caller's open amendment for a line.
// POST /api/amendments
func (h *Handler) SaveAmendment(w http.ResponseWriter, r *http.Request) {
	var req AmendmentRequest
	if !h.decode(w, r, &req) {
		return
	}
	u, _ := userFrom(r.Context())
	a, err := h.Amendments.SaveAmendment(r.Context(), u, planning.AmendmentInput{
		WeekReference: req.WeekReference,
		StoreID:       req.StoreID,
		StockCode:     req.StockCode,
		Category:      req.Category,
		WeeklyPlanID:  req.WeeklyPlanID,
		Type:          planning.AmendmentType(req.Type),
		OriginalQty:   req.OriginalQty,
		AmendedQty:    req.AmendedQty,
		Justification: req.Justification,
	})
	if err != nil {
		h.fail(w, r, "Failed to save amendment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAmendmentDTO(*a))
}

// ApproveAmendment approves an amendment, optionally with a different qty.
// POST /api/amendments/{id}/approve
func (h *Handler) ApproveAmendment(w http.ResponseWriter, r *http.Request) {
	var req ApproveRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	u, _ := userFrom(r.Context())
	a, err := h.Amendments.Approve(r.Context(), u, chi.URLParam(r, "id"), req.ApprovedQty, req.Notes)
	if err != nil {
		h.fail(w, r, "Failed to approve amendment", err)
		return
	}
	writeJSON(w, http.StatusOK, toAmendmentDTO(*a))
}

// RejectAmendment rejects an amendment.
// POST /api/amendments/{id}/reject
func (h *Handler) RejectAmendment(w http.ResponseWriter, r *http.Request) {
	var req RejectRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	u, _ := userFrom(r.Context())
	a, err := h.Amendments.Reject(r.Context(), u, chi.URLParam(r, "id"), req.Notes)
	if err != nil {
		h.fail(w, r, "Failed to reject amendment", err)
		return
	}
	writeJSON(w, http.StatusOK, toAmendmentDTO(*a))
}

// ModifyAmendment replaces an amendment with an approved admin edit.
// POST /api/amendments/{id}/modify
func (h *Handler) ModifyAmendment(w http.ResponseWriter, r *http.Request) {
	var req ModifyRequest
	if !h.decode(w, r, &req) {
		return
	}
	u, _ := userFrom(r.Context())
	a, err := h.Amendments.Modify(r.Context(), u, chi.URLParam(r, "id"), req.Quantity, req.Reason)
	if err != nil {
		h.fail(w, r, "Failed to modify amendment", err)
		return
	}
	writeJSON(w, http.StatusOK, toAmendmentDTO(*a))
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads and validates a JSON body. On failure it writes the response
// and returns false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return h.check(w, dst)
}

// decodeOptional is decode for endpoints whose body may be empty.
func (h *Handler) decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.ContentLength == 0 {
		return h.check(w, dst)
	}
	return h.decode(w, r, dst)
}

func (h *Handler) check(w http.ResponseWriter, dst any) bool {
	err := h.validate.Struct(dst)
	if err == nil {
		return true
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return false
	}
	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		if fe.Param() != "" {
			fields[fe.Field()] = fmt.Sprintf("%s=%s", fe.Tag(), fe.Param())
		} else {
			fields[fe.Field()] = fe.Tag()
		}
	}
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Validation failed", Code: "validation", Details: fields})
	return false
}

// statusForError maps planning errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case planning.IsConflict(err):
		return http.StatusConflict
	case planning.IsNotFound(err):
		return http.StatusNotFound
	case planning.IsForbidden(err):
		return http.StatusForbidden
	case planning.IsClientError(err):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// fail writes err with the status it maps to. Server errors are logged and
// reported under message; client errors report err itself.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		h.Log.Error().
			Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("path", r.URL.Path).
			Msg(message)
		writeError(w, status, message, err)
		return
	}
	writeError(w, status, err.Error(), nil)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
