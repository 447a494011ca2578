package query

import "errors"

var (
	// ErrLedgerRequired indicates no ledger was provided.
	ErrLedgerRequired = errors.New("ledger is required")

	// ErrCacheRequired indicates no vector store cache was provided.
	ErrCacheRequired = errors.New("vector store cache is required")

	// ErrChatModelRequired indicates no chat model was provided.
	ErrChatModelRequired = errors.New("chat model is required")

	// ErrChunkStoreRequired indicates no chunk store was provided.
	ErrChunkStoreRequired = errors.New("chunk store is required")
)
