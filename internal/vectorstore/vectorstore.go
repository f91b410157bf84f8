package vectorstore

import (
	"context"
	"errors"
)

// ErrDimensionMismatch is returned when a vector does not match the store's width.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Point is a vector with its id and metadata, scoped to a namespace by the caller.
type Point struct {
	ID       string
	Vector   []float32
	Metadata map[string]any
}

// Match is a single ranked query hit.
type Match struct {
	ID       string
	Score    float32
	Metadata map[string]any
}

// QueryOptions controls a nearest-neighbour query.
type QueryOptions struct {
	TopK            int
	Offset          int
	IncludeMetadata bool
}

// Store is a namespace-scoped vector index. Namespaces need not exist before
// they are written to; reading from an unknown namespace yields no matches.
type Store interface {
	Upsert(ctx context.Context, namespace string, points []Point) error
	Query(ctx context.Context, namespace string, vector []float32, opts QueryOptions) ([]Match, error)
	// Fetch returns the stored points for ids that exist; missing ids are omitted.
	Fetch(ctx context.Context, namespace string, ids []string) (map[string]Point, error)
	// Update replaces the vector and metadata of an existing point.
	Update(ctx context.Context, namespace string, point Point) error
	// Delete removes ids; unknown ids are ignored.
	Delete(ctx context.Context, namespace string, ids []string) error
	DeleteAll(ctx context.Context, namespace string) error
	// DeleteWhere removes every point whose metadata field equals value.
	DeleteWhere(ctx context.Context, namespace, field, value string) error
	// Stats returns the number of points per namespace.
	Stats(ctx context.Context) (map[string]int, error)
	Close() error
}
