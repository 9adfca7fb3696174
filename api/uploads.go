package api

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"github.com/warp/backoffice/sheet"
	"github.com/warp/backoffice/upload"
)

// maxUploadBytes bounds an uploaded workbook.
const maxUploadBytes = 10 << 20

// uploadLimiter hands each admin their own token bucket.
type uploadLimiter struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// newUploadLimiter returns nil, meaning unlimited, when perMinute <= 0.
func newUploadLimiter(perMinute float64, burst int) *uploadLimiter {
	if perMinute <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &uploadLimiter{
		limit:   rate.Limit(perMinute / 60),
		burst:   burst,
		buckets: make(map[string]*rate.Limiter),
	}
}

func (l *uploadLimiter) allow(userID string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	b, ok := l.buckets[userID]
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
		l.buckets[userID] = b
	}
	l.mu.Unlock()
	return b.Allow()
}

// readUpload enforces the rate limit and parses the multipart "file" field.
// On failure it writes the response and returns nil.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request, sheetName string) *sheet.Table {
	u, _ := userFrom(r.Context())
	if !h.limiter.allow(u.ID) {
		writeError(w, http.StatusTooManyRequests, "Too many uploads, try again shortly", nil)
		return nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			writeError(w, http.StatusBadRequest, "No file uploaded", nil)
			return nil
		}
		writeError(w, http.StatusBadRequest, "Invalid upload", err)
		return nil
	}
	defer file.Close()

	t, err := sheet.Read(file, header.Filename, sheetName)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read spreadsheet", err)
		return nil
	}
	h.Log.Info().Str("user", u.ID).Str("file", header.Filename).Int("rows", len(t.Rows)).Msg("upload received")
	return t
}

// UploadStores processes a store master sheet.
// POST /api/admin/stores-upload
func (h *Handler) UploadStores(w http.ResponseWriter, r *http.Request) {
	h.directoryUpload(w, r, "stores", h.Uploads.Stores)
}

// UploadCategories processes a category sheet.
// POST /api/admin/categories-upload
func (h *Handler) UploadCategories(w http.ResponseWriter, r *http.Request) {
	h.directoryUpload(w, r, "categories", h.Uploads.Categories)
}

// UploadAllocations processes a regional manager to store allocation sheet.
// POST /api/admin/allocations-upload
func (h *Handler) UploadAllocations(w http.ResponseWriter, r *http.Request) {
	h.directoryUpload(w, r, "allocations", h.Uploads.Allocations)
}

func (h *Handler) directoryUpload(
	w http.ResponseWriter,
	r *http.Request,
	kind string,
	process func(context.Context, *sheet.Table) (*upload.Result, error),
) {
	t := h.readUpload(w, r, "")
	if t == nil {
		return
	}
	res, err := process(r.Context(), t)
	if err != nil {
		h.fail(w, r, "Failed to process "+kind+" upload", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// UploadHierarchy syncs the full manager hierarchy from "Sheet1".
// POST /api/admin/hierarchy-upload
func (h *Handler) UploadHierarchy(w http.ResponseWriter, r *http.Request) {
	t := h.readUpload(w, r, upload.HierarchySheet)
	if t == nil {
		return
	}
	res, err := h.Uploads.Hierarchy(r.Context(), t)
	if err != nil {
		h.fail(w, r, "Failed to sync hierarchy", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
