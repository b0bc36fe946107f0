package batch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/jackzampolin/problembook/internal/home"
	"github.com/jackzampolin/problembook/internal/jobs"
	"github.com/jackzampolin/problembook/internal/jobs/ocr_page"
)

// Per-kind target caps. Larger requests are rejected, never truncated.
const (
	MaxOCRTargets   = 100
	MaxSolveTargets = 50
)

// OCRRequest asks for a set of pages to be extracted. Pages are given as
// explicit Targets or as BookID with StartPage..EndPage.
type OCRRequest struct {
	Targets   []ocr_page.Target `json:"targets,omitempty" validate:"omitempty,dive"`
	BookID    string            `json:"book_id,omitempty" validate:"omitempty,bookid"`
	StartPage int               `json:"start_page,omitempty" validate:"min=0"`
	EndPage   int               `json:"end_page,omitempty" validate:"min=0"`
	// Chapter applies to range targets whose text has no chapter heading.
	Chapter     int  `json:"chapter,omitempty" validate:"min=0"`
	Incremental bool `json:"incremental,omitempty"`
	Force       bool `json:"force,omitempty"`
}

// SolveRequest asks for a set of problems to be solved.
type SolveRequest struct {
	ProblemIDs []string `json:"problem_ids" validate:"required,min=1,dive,required"`
	// Provider names the solve provider; empty uses the default order.
	Provider string `json:"provider,omitempty"`
	Force    bool   `json:"force,omitempty"`
}

// ValidationError rejects a batch request before any job is created.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// ReasonCode returns the stable machine-readable failure reason.
func (e *ValidationError) ReasonCode() string { return jobs.ReasonValidation }

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// bookid keeps IDs usable as a single path segment under the home dir.
	_ = v.RegisterValidation("bookid", func(fl validator.FieldLevel) bool {
		return home.ValidBookID(fl.Field().String())
	})
	return v
}

// checkStruct runs struct tag validation and reports the first failure.
func checkStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := strings.ToLower(fe.Namespace())
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		return &ValidationError{Field: field, Message: fmt.Sprintf("failed %q check", fe.Tag())}
	}
	return &ValidationError{Message: err.Error()}
}

// expand returns the OCR targets of a request.
func (r OCRRequest) expand() ([]ocr_page.Target, error) {
	hasRange := r.StartPage > 0 || r.EndPage > 0
	switch {
	case len(r.Targets) > 0 && hasRange:
		return nil, &ValidationError{Field: "targets", Message: "give either targets or a page range, not both"}
	case len(r.Targets) > 0:
		if len(r.Targets) > MaxOCRTargets {
			return nil, capError(len(r.Targets), MaxOCRTargets)
		}
		return r.Targets, nil
	case !hasRange:
		return nil, &ValidationError{Field: "targets", Message: "no pages requested"}
	}

	if r.BookID == "" {
		return nil, &ValidationError{Field: "book_id", Message: "required with a page range"}
	}
	if r.StartPage < 1 || r.EndPage < r.StartPage {
		return nil, &ValidationError{Field: "start_page", Message: fmt.Sprintf("bad page range %d..%d", r.StartPage, r.EndPage)}
	}
	n := r.EndPage - r.StartPage + 1
	if n > MaxOCRTargets {
		return nil, capError(n, MaxOCRTargets)
	}
	targets := make([]ocr_page.Target, 0, n)
	for p := r.StartPage; p <= r.EndPage; p++ {
		targets = append(targets, ocr_page.Target{BookID: r.BookID, Page: p, Chapter: r.Chapter})
	}
	return targets, nil
}

func capError(n, max int) error {
	return &ValidationError{Field: "targets", Message: fmt.Sprintf("%d targets exceeds the limit of %d", n, max)}
}
