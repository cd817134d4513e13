// Package record defines the record-oriented contract the pipeline has with
// the external store. The core depends only on these operations; everything
// specific to a hosted database product lives in the backend packages.
package record

import (
	"context"
	"errors"
	"fmt"

	"github.com/windtest/scoreentry/internal/model"
)

var (
	// ErrNotFound means the record id or query target does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict means a conditional update lost a version race.
	ErrConflict = errors.New("record version conflict")
)

// UnavailableError wraps a transient store failure (network fault, 5xx,
// rate limit). Callers may retry; everything else is permanent.
type UnavailableError struct {
	Op    string
	Cause error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("store unavailable during %s: %v", e.Op, e.Cause)
}

func (e *UnavailableError) Unwrap() error { return e.Cause }

// Unavailable wraps err as a transient store failure.
func Unavailable(op string, err error) error {
	return &UnavailableError{Op: op, Cause: err}
}

// IsUnavailable reports whether err is a transient store failure.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}

// Record is one stored entity. Fields hold flat values (string, int, float64,
// bool, time-formatted string); the backend maps them to its native schema.
// Version is an opaque token for conditional updates.
type Record struct {
	ID         string
	Collection model.Collection
	Fields     map[string]any
	Version    string
}

// Filter is one equality constraint on a query. Multiple filters are ANDed.
type Filter struct {
	Field  string
	Equals any
}

// Store is the external store collaborator. Query results are fully
// paginated internally; callers always see the complete match set.
type Store interface {
	CreateRecord(ctx context.Context, collection model.Collection, fields map[string]any) (Record, error)
	QueryRecords(ctx context.Context, collection model.Collection, filters ...Filter) ([]Record, error)
	GetRecord(ctx context.Context, collection model.Collection, id string) (Record, error)
	// UpdateRecord writes fields to an existing record. A non-empty
	// ifVersion makes the write conditional: when the stored version no
	// longer matches, the update fails with ErrConflict and writes nothing.
	UpdateRecord(ctx context.Context, collection model.Collection, id string, fields map[string]any, ifVersion string) (Record, error)
}

// Notifier is an optional side channel some backends offer for poking a
// human after a report lands. Failures here must never fail a submission.
type Notifier interface {
	Notify(ctx context.Context, recordID, message string) error
}

// String formats a field value for display, tolerating absent keys.
func (r Record) String(field string) string {
	v, ok := r.Fields[field]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// Int reads an integer field, accepting the numeric types JSON decoding
// and the backends produce.
func (r Record) Int(field string) int {
	switch v := r.Fields[field].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
