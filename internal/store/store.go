// Package store defines the persistence contracts of the resource engine:
// a system-of-record document store, a query-capable search index, and the
// DualStore wrapper that keeps both sides consistent.
package store

import (
	"context"
	"errors"

	"github.com/opennewsroom/newsdesk-api/internal/models"
)

var (
	// ErrNotFound signals a missing document.
	ErrNotFound = errors.New("store: document not found")
	// ErrPrecondition signals a failed conditional replace (stale etag).
	ErrPrecondition = errors.New("store: etag precondition failed")
	// ErrDuplicate signals a unique-constraint violation.
	ErrDuplicate = errors.New("store: duplicate key")
)

// DocumentStore is the system-of-record contract. Implementations assign
// a monotonic unique_id on insert when the document does not carry one.
type DocumentStore interface {
	Insert(ctx context.Context, collection string, doc models.Doc) (string, error)
	FindByID(ctx context.Context, collection, id string) (models.Doc, error)
	FindOne(ctx context.Context, collection string, where Cond) (models.Doc, error)
	Find(ctx context.Context, collection string, q Query) (*Result, error)
	// Replace swaps the stored document. A non-empty ifETag makes the
	// write conditional on the stored _etag, failing with ErrPrecondition
	// on mismatch.
	Replace(ctx context.Context, collection, id string, doc models.Doc, ifETag string) error
	Delete(ctx context.Context, collection, id string) error
	DeleteWhere(ctx context.Context, collection string, where Cond) (int, error)
	Count(ctx context.Context, collection string, where Cond) (int, error)
}

// SearchIndex is the query-side contract, fed best-effort after every
// document-store write.
type SearchIndex interface {
	Index(ctx context.Context, collection string, doc models.Doc) error
	Remove(ctx context.Context, collection, id string) error
	Get(ctx context.Context, collection, id string) (models.Doc, error)
	Search(ctx context.Context, collection string, q Query) (*Result, error)
}
