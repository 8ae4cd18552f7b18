package httpx

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

// Header names carrying the caller scope.
const (
	HeaderHospitalID = "X-Hospital-ID"
	HeaderActorID    = "X-Actor-ID"
)

const dateLayout = "2006-01-02"

// HospitalID reads the hospital scope from the request header.
func HospitalID(r *http.Request) (int64, error) {
	return positiveHeader(r, HeaderHospitalID)
}

// ActorID reads the acting user from the request header.
func ActorID(r *http.Request) (int64, error) {
	return positiveHeader(r, HeaderActorID)
}

// PathInt64 parses a numeric chi URL parameter.
func PathInt64(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s", ErrValidation, name)
	}
	return id, nil
}

// QueryInt64 parses a required positive query parameter.
func QueryInt64(r *http.Request, name string) (int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s", ErrValidation, name)
	}
	return id, nil
}

// QueryDate parses a YYYY-MM-DD query parameter, falling back when absent.
func QueryDate(r *http.Request, name string, fallback time.Time) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, nil
	}
	return ParseDate(raw)
}

// QueryTime parses an RFC3339 query parameter.
func QueryTime(r *http.Request, name string) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be RFC3339", ErrValidation, name)
	}
	return ts, nil
}

// ParseDate parses a YYYY-MM-DD value as a UTC calendar date.
func ParseDate(raw string) (time.Time, error) {
	ts, err := time.ParseInLocation(dateLayout, raw, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrValidation, raw)
	}
	return ts, nil
}

func positiveHeader(r *http.Request, name string) (int64, error) {
	raw := strings.TrimSpace(r.Header.Get(name))
	if raw == "" {
		return 0, fmt.Errorf("%w: %s header required", ErrMissingScope, name)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s header invalid", ErrValidation, name)
	}
	return id, nil
}
