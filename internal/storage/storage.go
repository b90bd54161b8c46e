// Package storage defines the uniform adapter contract the broker's
// dispatcher speaks to, and the concrete adapters behind it. This mirrors
// the way bringyour-connect's PlatformTransport abstracts over the actual
// wire in connect/transport.go: one interface, several concrete backends
// selected at runtime.
package storage

import (
	"context"

	"github.com/bringyour/kvbroker/internal/document"
)

// Options is a free-form hint carrier. Adapters must ignore hints they do
// not understand rather than fail.
type Options map[string]document.Value

// SetResult is returned by Set. Success is always true on a non-error
// return; adapters never construct a SetResult{Success: false} — a failed
// Set instead returns a non-nil error, which the dispatcher turns into an
// error response.
type SetResult struct {
	Success   bool   `json:"success"`
	Key       string `json:"key"`
	Timestamp int64  `json:"timestamp"`
}

// DeleteResult is returned by Delete. Delete is idempotent: deleting an
// absent key is still a success.
type DeleteResult struct {
	Deleted string `json:"deleted"`
}

// Row is one match from Query: the key plus the matched document's fields
// flattened alongside it, in a `{key, ...fields}` shape.
type Row struct {
	Key    string
	Fields map[string]document.Value
}

// Adapter is the storage contract every concrete backend implements.
// Get never fails on a missing key; it returns document.Null.
type Adapter interface {
	Get(ctx context.Context, collection, key string, opts Options) (document.Value, error)
	Set(ctx context.Context, collection, key string, value document.Value, opts Options) (SetResult, error)
	Delete(ctx context.Context, collection, key string, opts Options) (DeleteResult, error)
	Query(ctx context.Context, collection string, predicate map[string]document.Value, opts Options) ([]Row, error)
	// Close releases adapter-owned resources (file handles, db handles,
	// network clients) deterministically on broker shutdown.
	Close() error
}

// matches reports whether a document's fields satisfy a flat conjunctive
// equality predicate. An empty predicate matches everything.
func matches(fields map[string]document.Value, predicate map[string]document.Value) bool {
	for field, expected := range predicate {
		actual, ok := fields[field]
		if !ok || !actual.Equal(expected) {
			return false
		}
	}
	return true
}

func fieldsOf(v document.Value) map[string]document.Value {
	if v.Kind != document.KindObject {
		return map[string]document.Value{}
	}
	return v.Object
}
