package domain

import "context"

// Collections known to the document store.
const (
	CollectionReports  = "reports"
	CollectionActivity = "activity"
)

// Document is a stored record: an id plus its serialized JSON body.
type Document struct {
	ID   string
	Body []byte
}

// Filter is a store-level equality predicate on a top-level document field.
type Filter struct {
	Field string
	Value string
}

// Query selects documents from one collection.
type Query struct {
	Collection string
	OrderBy    string
	Descending bool
	Filters    []Filter
	Limit      int // 0 means unlimited
}

// Unsubscribe cancels a live subscription. Calling it more than once is a no-op.
type Unsubscribe func()

// DocumentStore is the authoritative remote record store. Set replaces the
// whole document and fails with ErrDocumentTooLarge when the body exceeds
// the store's size ceiling.
type DocumentStore interface {
	Get(ctx context.Context, collection, id string) ([]byte, error)
	Set(ctx context.Context, collection, id string, body []byte) error
	SetAll(ctx context.Context, collection string, docs []Document) error
	Delete(ctx context.Context, collection, id string) error
	Query(ctx context.Context, q Query) ([]Document, error)
	Subscribe(ctx context.Context, q Query, onSnapshot func([]Document), onError func(error)) (Unsubscribe, error)
}

// BlobStore is an optional remote binary object store. Delete on a missing
// path is a no-op; Get on a missing path returns ErrBlobNotFound.
type BlobStore interface {
	Put(ctx context.Context, path string, data []byte, mimeType string) (RemoteRef, error)
	Get(ctx context.Context, path string) ([]byte, error)
	Delete(ctx context.Context, path string) error
}

// OverflowStore is a durable, device-local key/payload map.
type OverflowStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, keys ...string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}
