// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/poiesic/docqa/core"
	"github.com/poiesic/docqa/partition"
	"github.com/poiesic/docqa/storage"
	"github.com/poiesic/docqa/summarize"
	"github.com/poiesic/docqa/vecstore"
)

// Orchestrator executes ingestion runs.
type Orchestrator struct {
	ledger      storage.Ledger
	chunkStore  storage.ChunkStore
	partitioner *partition.Partitioner
	summarizer  *summarize.Summarizer
	cache       *vecstore.Cache
	logger      *slog.Logger
}

// NewOrchestrator wires an orchestrator from its collaborators.
func NewOrchestrator(
	ledger storage.Ledger,
	chunkStore storage.ChunkStore,
	partitioner *partition.Partitioner,
	summarizer *summarize.Summarizer,
	cache *vecstore.Cache,
	logger *slog.Logger,
) (*Orchestrator, error) {
	if ledger == nil {
		return nil, ErrLedgerRequired
	}
	if chunkStore == nil {
		return nil, ErrChunkStoreRequired
	}
	if partitioner == nil {
		return nil, ErrPartitionerRequired
	}
	if summarizer == nil {
		return nil, ErrSummarizerRequired
	}
	if cache == nil {
		return nil, ErrCacheRequired
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		ledger:      ledger,
		chunkStore:  chunkStore,
		partitioner: partitioner,
		summarizer:  summarizer,
		cache:       cache,
		logger:      logger.With("component", "ingest"),
	}, nil
}

// docOutcome carries per-document statistics back to the run loop.
type docOutcome struct {
	chunks int
	tokens int64
}

// Run executes one ingestion run to completion. Per-document errors
// increment the failed counter and the run continues; a run with zero
// successes still completes with the store in error status. Only
// infrastructure failures (missing rows, ledger writes, opening the
// collection) mark the task failed, wrapped as core.InfraError.
func (o *Orchestrator) Run(ctx context.Context, taskID string) error {
	task, err := o.ledger.GetTask(ctx, taskID)
	if err != nil {
		o.logger.Error("cannot load task", "task_id", taskID, "err", err)
		return &core.InfraError{Err: err}
	}

	store, err := o.ledger.GetStore(ctx, task.VectorStoreID)
	if err != nil {
		return o.failTask(ctx, task, err)
	}

	logger := o.logger.With("task_id", task.ID, "module_id", store.ModuleID)

	docs, err := o.ledger.ListActiveDocuments(ctx, store.ModuleID)
	if err != nil {
		return o.failTask(ctx, task, err)
	}

	// The snapshot is fixed here. Documents added mid-run wait for the
	// next run.
	started := time.Now()
	task.MarkStarted(len(docs))
	task.CurrentStep = "indexing"
	if err := o.ledger.UpdateTask(ctx, task); err != nil {
		return &core.InfraError{Err: err}
	}

	if len(docs) == 0 {
		logger.Info("no active documents, completing without indexing")
		task.MarkCompleted(map[string]any{
			"message":         "no documents to index",
			"total_documents": 0,
		})
		if err := o.ledger.UpdateTask(ctx, task); err != nil {
			return &core.InfraError{Err: err}
		}
		return nil
	}

	// A rebuild starts from an empty collection, docstore and store row.
	if err := o.ResetStore(ctx, store); err != nil {
		return o.failTask(ctx, task, err)
	}

	// One collection handle serves the whole run. Failing to open it
	// fails the run, not every document in turn.
	collection, err := o.cache.Get(store.CollectionName)
	if err != nil {
		return o.failTask(ctx, task, err)
	}

	store.Status = core.StoreStatusIndexing
	if err := o.ledger.UpdateStore(ctx, store); err != nil {
		return o.failTask(ctx, task, err)
	}

	var totalChunks int
	var totalTokens int64

	for _, doc := range docs {
		// Cancellation is observed at document boundaries only; the
		// document in flight always finishes or fails on its own.
		if ctx.Err() != nil {
			return o.cancelRun(task, store)
		}

		task.CurrentDocument = doc.Title
		outcome, err := o.processDocument(ctx, collection, store, doc)
		if err != nil {
			logger.Warn("document failed", "doc_id", doc.ID, "err", err)
			task.IncrementProcessed(false)
		} else {
			task.IncrementProcessed(true)
			totalChunks += outcome.chunks
			totalTokens += outcome.tokens
		}

		// Progress writes survive cancellation; the cancel itself is
		// handled at the next boundary check.
		if err := o.ledger.UpdateTask(context.WithoutCancel(ctx), task); err != nil {
			return &core.InfraError{Err: err}
		}
	}

	// Store statistics and final status. Partial success is ready;
	// a run where every document failed leaves the store in error.
	store.DocumentCount = task.SuccessfulDocuments
	store.TotalChunks = totalChunks
	store.TotalTokens = totalTokens
	if task.SuccessfulDocuments > 0 {
		store.Status = core.StoreStatusReady
		store.LastIndexedAt = time.Now().UTC()
	} else {
		store.Status = core.StoreStatusError
	}
	if err := o.ledger.UpdateStore(context.WithoutCancel(ctx), store); err != nil {
		return o.failTask(ctx, task, err)
	}

	task.CurrentDocument = ""
	task.CurrentStep = "done"
	task.MarkCompleted(map[string]any{
		"total_documents":      task.TotalDocuments,
		"successful_documents": task.SuccessfulDocuments,
		"failed_documents":     task.FailedDocuments,
		"total_chunks":         totalChunks,
		"total_tokens":         totalTokens,
		"collection_name":      store.CollectionName,
		"elapsed_seconds":      time.Since(started).Seconds(),
	})
	if err := o.ledger.UpdateTask(context.WithoutCancel(ctx), task); err != nil {
		return &core.InfraError{Err: err}
	}

	logger.Info("ingestion run completed",
		"successful", task.SuccessfulDocuments,
		"failed", task.FailedDocuments,
		"chunks", totalChunks)
	return nil
}

// ResetStore deletes the module's collection and raw chunk payloads and
// returns the store row to empty with zeroed statistics, whatever state
// the previous run left behind.
func (o *Orchestrator) ResetStore(ctx context.Context, store *core.VectorStore) error {
	if err := o.cache.Reset(store.CollectionName); err != nil {
		return err
	}
	if err := o.chunkStore.DropModule(ctx, store.ModuleID); err != nil {
		return err
	}

	store.Status = core.StoreStatusEmpty
	store.DocumentCount = 0
	store.TotalChunks = 0
	store.TotalTokens = 0
	return o.ledger.UpdateStore(ctx, store)
}

// processDocument runs partition -> summarize -> index for one
// document. Any error fails just this document.
func (o *Orchestrator) processDocument(ctx context.Context, collection *vecstore.Collection, store *core.VectorStore, doc *core.Document) (docOutcome, error) {
	var outcome docOutcome

	chunks, err := o.partitioner.Partition(doc.FilePath)
	if err != nil {
		return outcome, err
	}

	summaries, err := o.summarizer.Summarize(ctx, chunks)
	if err != nil {
		return outcome, err
	}

	vdocs := make([]vecstore.Document, len(summaries))
	raw := make([]storage.RawChunk, len(summaries))
	for i, summary := range summaries {
		chunkID := core.NewID()

		content := summary.Chunk.Text
		mime := ""
		if summary.Chunk.Kind == core.ChunkImage {
			content = summary.Chunk.ImageBase64
			mime = summary.Chunk.ImageMIME
		}
		raw[i] = storage.RawChunk{
			ID:      chunkID,
			Kind:    summary.Chunk.Kind,
			Content: content,
			MIME:    mime,
		}

		vdocs[i] = vecstore.Document{
			ID:      core.NewID(),
			Content: summary.Text,
			Metadata: map[string]string{
				"doc_id":   doc.ID,
				"chunk_id": chunkID,
				"kind":     kindLabel(summary.Chunk.Kind),
			},
		}

		outcome.tokens += int64(summary.Chunk.TokenCount())
	}
	outcome.chunks = len(summaries)

	// Raw chunks land first so every indexed summary can resolve its
	// payload.
	if err := o.chunkStore.PutChunks(ctx, store.ModuleID, raw); err != nil {
		return outcome, err
	}
	if err := collection.Add(ctx, vdocs); err != nil {
		return outcome, err
	}

	return outcome, nil
}

// cancelRun records an external cancel. The store reverts to empty so a
// later run starts from a clean slate; partial collections are not
// served.
func (o *Orchestrator) cancelRun(task *core.IndexTask, store *core.VectorStore) error {
	// The run context is already cancelled; persistence uses a fresh one.
	ctx := context.Background()

	task.MarkCancelled("cancelled by request")
	if store.Status == core.StoreStatusIndexing {
		store.Status = core.StoreStatusEmpty
		store.DocumentCount = 0
		store.TotalChunks = 0
		store.TotalTokens = 0
		if err := o.ledger.UpdateStore(ctx, store); err != nil {
			o.logger.Error("failed to revert store after cancel", "store_id", store.ID, "err", err)
		}
	}
	if err := o.ledger.UpdateTask(ctx, task); err != nil {
		return &core.InfraError{Err: err}
	}

	o.logger.Info("ingestion run cancelled", "task_id", task.ID, "processed", task.ProcessedDocuments)
	return nil
}

// failTask marks the task failed after an infrastructure error.
func (o *Orchestrator) failTask(ctx context.Context, task *core.IndexTask, cause error) error {
	task.MarkFailed(cause.Error())
	if err := o.ledger.UpdateTask(context.WithoutCancel(ctx), task); err != nil {
		o.logger.Error("failed to persist task failure", "task_id", task.ID, "err", err)
	}
	return &core.InfraError{Err: cause}
}

func kindLabel(kind core.ChunkKind) string {
	if kind == core.ChunkImage {
		return "image"
	}
	return "text"
}
