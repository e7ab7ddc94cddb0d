package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/fleetledger/internal/store"
	"github.com/kiranshivaraju/fleetledger/internal/workflow"
)

const maxBodyBytes = 1 << 20

// dateLayout is the calendar-date form accepted alongside RFC 3339.
const dateLayout = "2006-01-02"

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, &workflow.ValidationError{Field: "id", Message: "must be a UUID"}
	}
	return id, nil
}

func queryUUID(r *http.Request, name string) (*uuid.UUID, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, &workflow.ValidationError{Field: name, Message: "must be a UUID"}
	}
	return &id, nil
}

func queryBool(r *http.Request, name string) (*bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, &workflow.ValidationError{Field: name, Message: "must be true or false"}
	}
	return &b, nil
}

// pageParams reads page and limit. Out-of-range values are clamped by the store.
func pageParams(r *http.Request) (store.Page, error) {
	var p store.Page
	for _, q := range []struct {
		name string
		dst  *int
	}{{"page", &p.Page}, {"limit", &p.Limit}} {
		raw := r.URL.Query().Get(q.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return p, &workflow.ValidationError{Field: q.name, Message: "must be a positive integer"}
		}
		*q.dst = n
	}
	return p.Normalize(), nil
}

// decodeJSON reads a single JSON object. An empty body decodes to the zero
// value when allowEmpty is set.
func decodeJSON(r *http.Request, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) && allowEmpty {
			return nil
		}
		return &workflow.ValidationError{Field: "body", Message: fmt.Sprintf("invalid JSON: %v", err)}
	}
	return nil
}

// parseDate accepts YYYY-MM-DD or RFC 3339 and returns UTC.
func parseDate(field, raw string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, &workflow.ValidationError{Field: field, Message: "must be YYYY-MM-DD or RFC 3339"}
	}
	return t.UTC(), nil
}

// optionalDate parses a calendar date. An RFC 3339 value keeps the day it
// names in its own offset, so 2025-06-01T23:00:00-05:00 is June 1st.
func optionalDate(field string, raw *string) (*time.Time, error) {
	if raw == nil {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, *raw)
	if err != nil {
		if t, err = time.Parse(time.RFC3339, *raw); err != nil {
			return nil, &workflow.ValidationError{Field: field, Message: "must be YYYY-MM-DD or RFC 3339"}
		}
	}
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &day, nil
}
