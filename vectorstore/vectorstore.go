// Package vectorstore defines the abstract external vector-database client
// and an HTTP-based implementation of it, grounded on the
// request/response shape and error handling of antfly/client.go and
// antfly/operations.go.
package vectorstore

import (
	"context"
)

// Filter is a metadata filter expression. Keys are either field names
// (implying $eq against the given value) or one of the operator keys
// below nested under a field, or $and/$or combining sub-filters.
//
// Supported operators: $eq, $ne, $gt, $gte, $lt, $lte, $in, $nin,
// $and, $or. The store passes these through to the remote query language
// rather than interpreting them itself.
type Filter map[string]any

const (
	OpEq  = "$eq"
	OpNe  = "$ne"
	OpGt  = "$gt"
	OpGte = "$gte"
	OpLt  = "$lt"
	OpLte = "$lte"
	OpIn  = "$in"
	OpNin = "$nin"
	OpAnd = "$and"
	OpOr  = "$or"
)

// Handle identifies a collection once created or looked up.
type Handle struct {
	Name string
}

// QueryResult is the column-wise response to Query, one outer slot per
// input text.
type QueryResult struct {
	IDs       [][]string
	Distances [][]float64
	Documents [][]string
	Metadatas [][]map[string]any
}

// GetResult is the column-wise response to Get.
type GetResult struct {
	IDs       []string
	Documents []string
	Metadatas []map[string]any
}

// UpsertError is the error family upsert can raise.
type UpsertError struct {
	Kind ErrorKind
	// DuplicateIDs is populated when Kind is ErrDuplicateID, naming the
	// ids the store rejected as already present.
	DuplicateIDs []string
	Message      string
}

func (e *UpsertError) Error() string {
	return e.Message
}

// ErrorKind is the closed error taxonomy a store implementation must
// classify its failures into.
type ErrorKind string

const (
	ErrDuplicateID  ErrorKind = "duplicate_id"
	ErrRateLimited  ErrorKind = "rate_limited"
	ErrTransient    ErrorKind = "transient"
	ErrAuthFailed   ErrorKind = "auth_failed"
	ErrInvalidInput ErrorKind = "invalid_request"
)

// IsTransient reports whether kind is eligible for the Orchestrator's
// single retry-after-all-other-work-completes policy.
func (k ErrorKind) IsTransient() bool {
	return k == ErrTransient || k == ErrRateLimited
}

// Client is the abstract vector-store contract. Implementations
// must make Upsert atomic per call: either all documents in the batch are
// applied, or none are.
type Client interface {
	GetOrCreateCollection(ctx context.Context, name string) (Handle, error)

	// Upsert applies ids/texts/metadatas atomically. Returns *UpsertError
	// for classified failures.
	Upsert(ctx context.Context, h Handle, ids, texts []string, metadatas []map[string]any) error

	Delete(ctx context.Context, h Handle, where Filter) error

	Query(ctx context.Context, h Handle, texts []string, nResults int, where Filter) (*QueryResult, error)

	Get(ctx context.Context, h Handle, ids []string, where Filter, limit, offset int) (*GetResult, error)

	Count(ctx context.Context, h Handle, where Filter) (int, error)
}
