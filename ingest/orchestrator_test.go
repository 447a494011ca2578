package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/poiesic/docqa/ai/mock"
	"github.com/poiesic/docqa/core"
	"github.com/poiesic/docqa/partition"
	"github.com/poiesic/docqa/storage"
	"github.com/poiesic/docqa/storage/badger"
	"github.com/poiesic/docqa/storage/sqlite"
	"github.com/poiesic/docqa/summarize"
	"github.com/poiesic/docqa/vecstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	ledger     storage.Ledger
	chunkStore storage.ChunkStore
	cache      *vecstore.Cache
	orch       *Orchestrator
	store      *core.VectorStore
	docDir     string
	vecDir     string
}

func newFixture(t *testing.T, chatModel *mock.ChatModel) *fixture {
	t.Helper()

	ledger, err := sqlite.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })

	chunkStore, err := badger.NewMemoryChunkStore()
	require.NoError(t, err)
	t.Cleanup(func() { chunkStore.Close() })

	vecDir := t.TempDir()
	cache, err := vecstore.NewCache(vecDir, &mock.Embedder{})
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	partitioner, err := partition.New()
	require.NoError(t, err)

	var summarizer *summarize.Summarizer
	if chatModel != nil {
		summarizer, err = summarize.New(chatModel,
			summarize.WithInterBatchDelay(0),
			summarize.WithRetryBaseDelay(time.Millisecond),
			summarize.WithMaxRetries(2))
	} else {
		summarizer, err = summarize.New(nil, summarize.WithPassthrough(true), summarize.WithInterBatchDelay(0))
	}
	require.NoError(t, err)

	orch, err := NewOrchestrator(ledger, chunkStore, partitioner, summarizer, cache, nil)
	require.NoError(t, err)

	store := &core.VectorStore{ModuleID: "42"}
	require.NoError(t, ledger.CreateStore(context.Background(), store))

	return &fixture{
		ledger:     ledger,
		chunkStore: chunkStore,
		cache:      cache,
		orch:       orch,
		store:      store,
		docDir:     t.TempDir(),
		vecDir:     vecDir,
	}
}

func (f *fixture) addDocument(t *testing.T, name, content string) *core.Document {
	t.Helper()
	path := filepath.Join(f.docDir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	doc := &core.Document{ModuleID: f.store.ModuleID, Title: name, FilePath: path, Active: true}
	require.NoError(t, f.ledger.AddDocument(context.Background(), doc))
	return doc
}

func (f *fixture) createTask(t *testing.T) *core.IndexTask {
	t.Helper()
	task := &core.IndexTask{VectorStoreID: f.store.ID}
	require.NoError(t, f.ledger.CreateTask(context.Background(), task))
	return task
}

func TestOrchestrator_Run_PartialFailure(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.addDocument(t, "one.txt", "the first document body")
	f.addDocument(t, "two.txt", "the second document body")
	// Unsupported extension fails partitioning for this document only.
	f.addDocument(t, "broken.xlsx", "not partitionable")

	task := f.createTask(t)
	require.NoError(t, f.orch.Run(ctx, task.ID))

	done, err := f.ledger.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, core.TaskStatusCompleted, done.Status)
	assert.Equal(t, 100, done.ProgressPct)
	assert.Equal(t, 3, done.TotalDocuments)
	assert.Equal(t, 3, done.ProcessedDocuments)
	assert.Equal(t, 2, done.SuccessfulDocuments)
	assert.Equal(t, 1, done.FailedDocuments)

	store, err := f.ledger.GetStore(ctx, f.store.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StoreStatusReady, store.Status)
	assert.Equal(t, 2, store.DocumentCount)
	assert.Positive(t, store.TotalChunks)
	assert.Positive(t, store.TotalTokens)
	assert.False(t, store.LastIndexedAt.IsZero())

	// The indexed summaries are searchable.
	collection, err := f.cache.Get(store.CollectionName)
	require.NoError(t, err)
	count, err := collection.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.TotalChunks, count)
}

func TestOrchestrator_Run_ZeroDocuments(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	task := f.createTask(t)
	require.NoError(t, f.orch.Run(ctx, task.ID))

	done, err := f.ledger.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, core.TaskStatusCompleted, done.Status)
	assert.Equal(t, 100, done.ProgressPct)
	assert.Equal(t, "no documents to index", done.Result["message"])

	// The store is untouched.
	store, err := f.ledger.GetStore(ctx, f.store.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StoreStatusEmpty, store.Status)
}

func TestOrchestrator_Run_AllDocumentsFail(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.addDocument(t, "a.xlsx", "nope")
	f.addDocument(t, "b.xlsx", "nope")

	task := f.createTask(t)
	require.NoError(t, f.orch.Run(ctx, task.ID))

	done, err := f.ledger.GetTask(ctx, task.ID)
	require.NoError(t, err)
	// Zero successes is still a completed run.
	assert.Equal(t, core.TaskStatusCompleted, done.Status)
	assert.Equal(t, 2, done.FailedDocuments)

	store, err := f.ledger.GetStore(ctx, f.store.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StoreStatusError, store.Status)
}

func TestOrchestrator_Run_CancelAtDocumentBoundary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The model cancels the run while the first document is in flight,
	// so the cancel is observed before the second document starts.
	chatModel := &mock.ChatModel{
		CompleteFunc: func(_ context.Context, prompt string) (string, error) {
			cancel()
			return "summary", nil
		},
	}
	f := newFixture(t, chatModel)

	f.addDocument(t, "one.txt", "first document")
	f.addDocument(t, "two.txt", "second document")

	task := f.createTask(t)
	require.NoError(t, f.orch.Run(ctx, task.ID))

	done, err := f.ledger.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, core.TaskStatusCancelled, done.Status)
	assert.Equal(t, 1, done.ProcessedDocuments)

	store, err := f.ledger.GetStore(context.Background(), f.store.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StoreStatusEmpty, store.Status)
	assert.Zero(t, store.TotalChunks)
}

func TestOrchestrator_Run_MissingTask(t *testing.T) {
	f := newFixture(t, nil)

	err := f.orch.Run(context.Background(), "no-such-task")
	require.Error(t, err)

	var infra *core.InfraError
	assert.ErrorAs(t, err, &infra)
}

func TestOrchestrator_Run_RawChunksStored(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.addDocument(t, "body.txt", "alpha beta gamma delta")

	task := f.createTask(t)
	require.NoError(t, f.orch.Run(ctx, task.ID))

	store, err := f.ledger.GetStore(ctx, f.store.ID)
	require.NoError(t, err)

	collection, err := f.cache.Get(store.CollectionName)
	require.NoError(t, err)

	hits, err := collection.Search(ctx, "alpha beta gamma delta", 1, -1)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	chunkID := hits[0].Metadata["chunk_id"]
	require.NotEmpty(t, chunkID)

	raw, err := f.chunkStore.GetChunk(ctx, "42", chunkID)
	require.NoError(t, err)
	assert.Equal(t, "alpha beta gamma delta", raw.Content)
}

func TestOrchestrator_Run_CollectionOpenFailureFailsTask(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("directory permissions do not apply to root")
	}

	f := newFixture(t, nil)
	ctx := context.Background()

	f.addDocument(t, "doc.txt", "some content")

	// A read-only persist dir makes opening the collection fail before
	// any document is attempted.
	require.NoError(t, os.Chmod(f.vecDir, 0o555))
	t.Cleanup(func() { os.Chmod(f.vecDir, 0o755) })

	task := f.createTask(t)
	err := f.orch.Run(ctx, task.ID)
	require.Error(t, err)

	var infra *core.InfraError
	assert.ErrorAs(t, err, &infra)

	// The run failed outright; no document was counted as failed.
	done, err := f.ledger.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, core.TaskStatusFailed, done.Status)
	assert.Zero(t, done.ProcessedDocuments)
	assert.Zero(t, done.FailedDocuments)
}

func TestOrchestrator_ResetStore_ZeroesStoreRow(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.addDocument(t, "doc.txt", "document body")
	task := f.createTask(t)
	require.NoError(t, f.orch.Run(ctx, task.ID))

	store, err := f.ledger.GetStore(ctx, f.store.ID)
	require.NoError(t, err)
	require.Equal(t, core.StoreStatusReady, store.Status)
	require.Positive(t, store.TotalChunks)

	require.NoError(t, f.orch.ResetStore(ctx, store))

	// The ledger row is back to empty with zeroed statistics.
	store, err = f.ledger.GetStore(ctx, f.store.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StoreStatusEmpty, store.Status)
	assert.Zero(t, store.DocumentCount)
	assert.Zero(t, store.TotalChunks)
	assert.Zero(t, store.TotalTokens)

	// The collection starts over from scratch.
	collection, err := f.cache.Get(store.CollectionName)
	require.NoError(t, err)
	count, err := collection.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestOrchestrator_Run_RebuildReplacesCollection(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.addDocument(t, "doc.txt", "original content")

	first := f.createTask(t)
	require.NoError(t, f.orch.Run(ctx, first.ID))

	second := f.createTask(t)
	require.NoError(t, f.orch.Run(ctx, second.ID))

	store, err := f.ledger.GetStore(ctx, f.store.ID)
	require.NoError(t, err)

	collection, err := f.cache.Get(store.CollectionName)
	require.NoError(t, err)
	count, err := collection.Count(ctx)
	require.NoError(t, err)

	// The rebuild starts from empty; chunks are not duplicated.
	assert.Equal(t, 1, count)
}
