/*
Package upload turns admin spreadsheet uploads into directory writes.

PURPOSE:
  Four sheets feed the directory: stores, categories, regional manager
  allocations and the full hierarchy. Each processor follows the same
  contract:

    1. Missing required columns reject the whole file before any write
    2. Every data row is validated on its own; bad rows are reported with
       their spreadsheet row number and skipped
    3. Valid rows are written

ROW VALIDATION:
  Rows are bound to small structs and checked with validator/v10 tags.
  Failures are translated to the messages admins already know
  ("Store Code is required", "Invalid email format", ...).

SEE ALSO:
  - sheet/: Workbook parsing
  - planning/hierarchy.go: The hierarchy sync the hierarchy sheet feeds
*/
package upload

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/warp/backoffice/planning"
	"github.com/warp/backoffice/sheet"
)

// Result is returned for every processed upload.
type Result struct {
	Success        bool       `json:"success"`
	TotalRows      int        `json:"totalRows"`
	SuccessfulRows int        `json:"successfulRows"`
	ErrorRows      int        `json:"errorRows"`
	Errors         []RowError `json:"errors"`
}

// RowError reports one rejected row. Row 0 carries file-level notes.
type RowError struct {
	Row   int      `json:"row"`
	Error string   `json:"error"`
	Data  []string `json:"data,omitempty"`
}

func newResult(t *sheet.Table) *Result {
	return &Result{TotalRows: len(t.Rows), Errors: []RowError{}}
}

func (r *Result) fail(row sheet.Row, msg string) {
	r.ErrorRows++
	r.Errors = append(r.Errors, RowError{Row: row.Number, Error: msg, Data: row.Cells})
}

func (r *Result) finish() *Result {
	r.Success = r.ErrorRows == 0
	return r
}

// MissingColumnsError rejects a file that lacks required headers.
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return "Missing required columns: " + strings.Join(e.Columns, ", ")
}

func (e *MissingColumnsError) Unwrap() error { return planning.ErrInvalidInput }

func requireColumns(t *sheet.Table, cols ...string) error {
	if missing := t.Missing(cols...); len(missing) > 0 {
		return &MissingColumnsError{Columns: missing}
	}
	return nil
}

// =============================================================================
// PROCESSOR
// =============================================================================

type Processor struct {
	Repo   planning.TxRepository
	Sync   *planning.HierarchySync
	Events planning.Publisher
	Log    zerolog.Logger

	validate *validator.Validate
}

var (
	storeCodePattern    = regexp.MustCompile(`^[A-Z0-9]{3,10}$`)
	categoryCodePattern = regexp.MustCompile(`^[A-Z0-9]{2,10}$`)
)

func NewProcessor(repo planning.TxRepository, sync *planning.HierarchySync, events planning.Publisher, log zerolog.Logger) *Processor {
	v := validator.New()
	_ = v.RegisterValidation("storecode", func(fl validator.FieldLevel) bool {
		return storeCodePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("categorycode", func(fl validator.FieldLevel) bool {
		return categoryCodePattern.MatchString(fl.Field().String())
	})
	return &Processor{Repo: repo, Sync: sync, Events: events, Log: log, validate: v}
}

// check validates a row struct and returns the first failure as a message
// from messages, keyed by "Field.tag".
func (p *Processor) check(row any, messages map[string]string) string {
	err := p.validate.Struct(row)
	if err == nil {
		return ""
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return err.Error()
	}
	fe := ve[0]
	if msg, ok := messages[fe.Field()+"."+fe.Tag()]; ok {
		return msg
	}
	return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
}

func (p *Processor) completed(kind string, res *Result) {
	p.Log.Info().
		Str("upload", kind).
		Int("rows", res.TotalRows).
		Int("ok", res.SuccessfulRows).
		Int("errors", res.ErrorRows).
		Msg("upload processed")
	if p.Events != nil {
		p.Events.Publish(planning.ChangeEvent{Kind: planning.EventUploadCompleted, EntityID: kind, At: time.Now()})
	}
}
