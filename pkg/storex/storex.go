// Package storex is a keyed document store with atomic update-by-id.
//
// Each record has a string id, an optional unique lookup key (for example a
// lower-cased email) and a JSON document. Update takes a transform that must
// be a pure function of the current value: implementations may call it more
// than once when they lose an optimistic race.
package storex

import (
	"context"
	"net/http"

	"github.com/Abraxas-365/keystone/pkg/errx"
)

// UpdateFunc maps the current value to the next one. It must not have side
// effects; returning an error aborts the update and leaves the record as is.
type UpdateFunc[T any] func(current T) (T, error)

// Store is implemented by Memory and Postgres.
type Store[T any] interface {
	Get(ctx context.Context, id string) (T, error)
	FindByKey(ctx context.Context, key string) (T, error)
	Exists(ctx context.Context, id string) (bool, error)
	List(ctx context.Context) ([]T, error)
	Create(ctx context.Context, id string, value T, actor string) (T, error)
	Update(ctx context.Context, id string, fn UpdateFunc[T], actor string) (T, error)
	Delete(ctx context.Context, id string) error
}

// Options describes how a store derives keys from values.
type Options[T any] struct {
	// Key returns the unique lookup key of a value, "" for none.
	Key func(T) string
	// Clone deep-copies a value so transforms never see shared state.
	Clone func(T) T
}

func (o Options[T]) key(v T) string {
	if o.Key == nil {
		return ""
	}
	return o.Key(v)
}

func (o Options[T]) clone(v T) T {
	if o.Clone == nil {
		return v
	}
	return o.Clone(v)
}

// MaxAttempts bounds optimistic retries of one Update call.
const MaxAttempts = 8

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("STORE")

var (
	CodeNotFound     = ErrRegistry.Register("NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Record not found")
	CodeDuplicateKey = ErrRegistry.Register("DUPLICATE_KEY", errx.TypeConflict, http.StatusConflict, "Record already exists")
	CodeContention   = ErrRegistry.Register("CONTENTION", errx.TypeInternal, http.StatusServiceUnavailable, "Record is being modified concurrently")
)

func ErrNotFound(id string) *errx.Error {
	return ErrRegistry.New(CodeNotFound).WithDetail("id", id)
}

func ErrDuplicateKey(field, value string) *errx.Error {
	return ErrRegistry.New(CodeDuplicateKey).WithDetail(field, value)
}

func ErrContention(id string) *errx.Error {
	return ErrRegistry.New(CodeContention).WithDetail("id", id)
}

// IsNotFound reports a missing record
func IsNotFound(err error) bool { return errx.HasCode(err, CodeNotFound) }

// IsDuplicateKey reports an id or lookup key collision
func IsDuplicateKey(err error) bool { return errx.HasCode(err, CodeDuplicateKey) }

// IsDuplicateID reports a collision on the record id rather than the lookup key
func IsDuplicateID(err error) bool {
	var e *errx.Error
	if !errx.As(err, &e) || e.Code != CodeDuplicateKey.Code {
		return false
	}
	_, ok := e.Details["id"]
	return ok
}
