package chat

import "errors"

var (
	// ErrLedgerRequired indicates no ledger was provided.
	ErrLedgerRequired = errors.New("ledger is required")

	// ErrEngineRequired indicates no query engine was provided.
	ErrEngineRequired = errors.New("query engine is required")

	// ErrAnswerNotFound indicates a rating for an unknown answer.
	ErrAnswerNotFound = errors.New("answer not found")

	// ErrAlreadyRated indicates this user already rated this answer.
	// The first rating stands.
	ErrAlreadyRated = errors.New("answer already rated by this user")
)
