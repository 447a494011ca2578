// Package ingest builds module vector stores from registered documents.
//
// The Orchestrator executes one ingestion run: snapshot the module's
// active documents, partition and summarize each one, index the
// summaries in the module's vector collection and persist the raw
// chunks in the docstore. Per-document failures are counted and
// skipped; only infrastructure failures abort a run.
//
// The Runner executes orchestrator runs asynchronously on a worker
// pool and tracks cancellation per task. Cancels are observed at
// document boundaries.
package ingest
