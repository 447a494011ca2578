package vecstore

import "errors"

var (
	// ErrEmbedderRequired indicates no embedder was provided.
	ErrEmbedderRequired = errors.New("embedder is required")

	// ErrCollectionClosed indicates an operation on a closed handle.
	ErrCollectionClosed = errors.New("collection is closed")

	// ErrInvalidTopK indicates a non-positive result count.
	ErrInvalidTopK = errors.New("top-k must be positive")
)
