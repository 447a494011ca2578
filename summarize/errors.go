package summarize

import "errors"

var (
	// ErrChatModelRequired indicates no chat model was provided and
	// passthrough mode is off.
	ErrChatModelRequired = errors.New("chat model is required")

	// ErrInvalidMaxAttempts indicates a non-positive retry budget.
	ErrInvalidMaxAttempts = errors.New("max attempts must be positive")

	// ErrBatchCountMismatch indicates the model returned a different
	// number of summaries than chunks submitted.
	ErrBatchCountMismatch = errors.New("summary count does not match batch size")
)
