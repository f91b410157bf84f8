package knowledge

import "errors"

// Failure kinds surfaced at the external-call boundaries. Public operations
// that degrade instead of failing log these; those that return errors wrap them.
var (
	// ErrEmbedding indicates the embedding capability failed or returned nothing.
	ErrEmbedding = errors.New("embedding failed")

	// ErrVectorStore indicates a vector store call failed.
	ErrVectorStore = errors.New("vector store failed")

	// ErrNotFound indicates the requested entry does not exist.
	ErrNotFound = errors.New("entry not found")
)
