// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Request-level errors raised before a request reaches a finance service.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrValidation   = errors.New("validation failed")
	ErrMissingScope = errors.New("caller scope missing")
)

// RespondError maps request-level errors to problem documents. Unknown errors
// are reported as 500 without leaking their text.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		WriteProblem(w, ProblemDetail{Title: "Not Found", Status: http.StatusNotFound, Detail: err.Error(), Code: "NOT_FOUND"})
	case errors.Is(err, ErrValidation):
		WriteProblem(w, ProblemDetail{Title: "Validation Failed", Status: http.StatusBadRequest, Detail: err.Error(), Code: "VALIDATION_FAILED"})
	case errors.Is(err, ErrMissingScope):
		WriteProblem(w, ProblemDetail{Title: "Missing Scope", Status: http.StatusBadRequest, Detail: err.Error(), Code: "MISSING_SCOPE"})
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
