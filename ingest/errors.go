package ingest

import "errors"

var (
	// ErrLedgerRequired indicates no ledger was provided.
	ErrLedgerRequired = errors.New("ledger is required")

	// ErrChunkStoreRequired indicates no chunk store was provided.
	ErrChunkStoreRequired = errors.New("chunk store is required")

	// ErrPartitionerRequired indicates no partitioner was provided.
	ErrPartitionerRequired = errors.New("partitioner is required")

	// ErrSummarizerRequired indicates no summarizer was provided.
	ErrSummarizerRequired = errors.New("summarizer is required")

	// ErrCacheRequired indicates no vector store cache was provided.
	ErrCacheRequired = errors.New("vector store cache is required")

	// ErrOrchestratorRequired indicates no orchestrator was provided.
	ErrOrchestratorRequired = errors.New("orchestrator is required")

	// ErrTaskNotRunning indicates a cancel for a task that is not
	// currently executing.
	ErrTaskNotRunning = errors.New("task is not running")

	// ErrRunnerClosed indicates a submit after shutdown.
	ErrRunnerClosed = errors.New("runner is closed")
)
