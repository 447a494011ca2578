package query

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/poiesic/docqa/ai/mock"
	"github.com/poiesic/docqa/core"
	"github.com/poiesic/docqa/storage"
	"github.com/poiesic/docqa/storage/badger"
	"github.com/poiesic/docqa/storage/sqlite"
	"github.com/poiesic/docqa/vecstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type engineFixture struct {
	ledger     storage.Ledger
	cache      *vecstore.Cache
	chunkStore storage.ChunkStore
	chatModel  *mock.ChatModel
	engine     *Engine
	store      *core.VectorStore
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	ledger, err := sqlite.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })

	cache, err := vecstore.NewCache(t.TempDir(), &mock.Embedder{})
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	chunkStore, err := badger.NewMemoryChunkStore()
	require.NoError(t, err)
	t.Cleanup(func() { chunkStore.Close() })

	chatModel := &mock.ChatModel{}

	engine, err := NewEngine(ledger, cache, chatModel, chunkStore)
	require.NoError(t, err)

	store := &core.VectorStore{ModuleID: "42", Status: core.StoreStatusReady}
	require.NoError(t, ledger.CreateStore(context.Background(), store))

	return &engineFixture{
		ledger:     ledger,
		cache:      cache,
		chunkStore: chunkStore,
		chatModel:  chatModel,
		engine:     engine,
		store:      store,
	}
}

// index puts a summary into the collection and its raw chunk into the
// docstore, the way an ingestion run would.
func (f *engineFixture) index(t *testing.T, summary, rawContent string) {
	t.Helper()
	ctx := context.Background()

	chunkID := core.NewID()
	require.NoError(t, f.chunkStore.PutChunks(ctx, f.store.ModuleID, []storage.RawChunk{
		{ID: chunkID, Kind: core.ChunkText, Content: rawContent},
	}))

	collection, err := f.cache.Get(f.store.CollectionName)
	require.NoError(t, err)
	require.NoError(t, collection.Add(ctx, []vecstore.Document{{
		Content:  summary,
		Metadata: map[string]string{"chunk_id": chunkID, "doc_id": "d1", "kind": "text"},
	}}))
}

func TestEngine_Ask_ReturnsAnswerWithSources(t *testing.T) {
	f := newEngineFixture(t)
	f.index(t, "summary about gradient descent", "gradient descent raw chunk body")

	f.chatModel.CompleteFunc = func(_ context.Context, prompt string) (string, error) {
		// The prompt carries the raw chunk body, not the summary.
		assert.Contains(t, prompt, "gradient descent raw chunk body")
		return "Gradient descent minimizes the loss.", nil
	}

	monitor := &TimingMonitor{}
	result, err := f.engine.Ask(context.Background(), "42", "summary about gradient descent", nil, monitor)
	require.NoError(t, err)

	assert.Equal(t, "Gradient descent minimizes the loss.", result.Answer)
	assert.False(t, result.Fallback)
	require.NotEmpty(t, result.Sources)
	assert.Equal(t, "gradient descent raw chunk body", result.Sources[0].Content)
	assert.Equal(t, "d1", result.Sources[0].Metadata["doc_id"])
	assert.Positive(t, monitor.TotalTime())
}

func TestEngine_Ask_NotReady(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.store.Status = core.StoreStatusIndexing
	require.NoError(t, f.ledger.UpdateStore(ctx, f.store))

	_, err := f.engine.Ask(ctx, "42", "anything", nil, nil)
	require.Error(t, err)

	var notReady *core.NotReadyError
	require.ErrorAs(t, err, &notReady)
	assert.Equal(t, core.StoreStatusIndexing, notReady.Status)

	// Retrieval was never attempted.
	assert.Empty(t, f.chatModel.Prompts)
}

func TestEngine_Ask_UnknownModule(t *testing.T) {
	f := newEngineFixture(t)

	_, err := f.engine.Ask(context.Background(), "does-not-exist", "anything", nil, nil)

	var notReady *core.NotReadyError
	assert.ErrorAs(t, err, &notReady)
}

func TestEngine_Ask_LedgerErrorNotMaskedAsNotReady(t *testing.T) {
	f := newEngineFixture(t)
	require.NoError(t, f.ledger.Close())

	_, err := f.engine.Ask(context.Background(), "42", "anything", nil, nil)
	require.Error(t, err)

	// A dead ledger is an infrastructure failure, not a store that
	// needs indexing.
	var notReady *core.NotReadyError
	assert.False(t, errors.As(err, &notReady))
}

func TestEngine_Ask_EmptyRetrievalFallsBack(t *testing.T) {
	f := newEngineFixture(t)
	f.index(t, "only about databases", "database chunk")

	// Threshold high enough that an unrelated query retrieves nothing.
	engine, err := NewEngine(f.ledger, f.cache, f.chatModel, f.chunkStore, WithScoreThreshold(0.999))
	require.NoError(t, err)

	result, err := engine.Ask(context.Background(), "42", "completely unrelated astronomy question", nil, nil)
	require.NoError(t, err)

	assert.True(t, result.Fallback)
	assert.Equal(t, FallbackAnswer, result.Answer)
	assert.Empty(t, result.Sources)

	// The fallback answer is produced without a generation call.
	assert.Empty(t, f.chatModel.Prompts)
}

func TestEngine_Ask_EmptyQuestion(t *testing.T) {
	f := newEngineFixture(t)

	_, err := f.engine.Ask(context.Background(), "42", "   ", nil, nil)
	assert.ErrorIs(t, err, core.ErrEmptyQuestion)
}

func TestEngine_Ask_HistoryInPrompt(t *testing.T) {
	f := newEngineFixture(t)
	f.index(t, "attention mechanisms summary", "attention raw content")

	// History widens the retrieval query, so the threshold is lifted to
	// keep the single indexed chunk retrievable.
	engine, err := NewEngine(f.ledger, f.cache, f.chatModel, f.chunkStore, WithScoreThreshold(-1))
	require.NoError(t, err)

	var captured string
	f.chatModel.CompleteFunc = func(_ context.Context, prompt string) (string, error) {
		captured = prompt
		return "answer", nil
	}

	history := []storage.Exchange{
		{Question: core.Question{Text: "newest question"}, Answer: core.Answer{Text: "newest answer"}},
		{Question: core.Question{Text: "older question"}, Answer: core.Answer{Text: "older answer"}},
	}

	_, err = engine.Ask(context.Background(), "42", "attention mechanisms summary", history, nil)
	require.NoError(t, err)

	// History appears chronologically: older turn before newer.
	older := strings.Index(captured, "older question")
	newer := strings.Index(captured, "newest question")
	require.GreaterOrEqual(t, older, 0)
	require.GreaterOrEqual(t, newer, 0)
	assert.Less(t, older, newer)
	assert.Contains(t, captured, "older answer")
}

func TestEngine_Ask_HistoryBounded(t *testing.T) {
	f := newEngineFixture(t)
	f.index(t, "topic summary", "topic content")

	engine, err := NewEngine(f.ledger, f.cache, f.chatModel, f.chunkStore,
		WithHistoryTurns(1), WithScoreThreshold(-1))
	require.NoError(t, err)

	var captured string
	f.chatModel.CompleteFunc = func(_ context.Context, prompt string) (string, error) {
		captured = prompt
		return "answer", nil
	}

	history := []storage.Exchange{
		{Question: core.Question{Text: "kept turn"}, Answer: core.Answer{Text: "kept answer"}},
		{Question: core.Question{Text: "dropped turn"}, Answer: core.Answer{Text: "dropped answer"}},
	}

	_, err = engine.Ask(context.Background(), "42", "topic summary", history, nil)
	require.NoError(t, err)

	assert.Contains(t, captured, "kept turn")
	assert.NotContains(t, captured, "dropped turn")
}

func TestNewEngine_Validation(t *testing.T) {
	f := newEngineFixture(t)

	_, err := NewEngine(nil, f.cache, f.chatModel, f.chunkStore)
	assert.ErrorIs(t, err, ErrLedgerRequired)

	_, err = NewEngine(f.ledger, nil, f.chatModel, f.chunkStore)
	assert.ErrorIs(t, err, ErrCacheRequired)

	_, err = NewEngine(f.ledger, f.cache, nil, f.chunkStore)
	assert.ErrorIs(t, err, ErrChatModelRequired)

	_, err = NewEngine(f.ledger, f.cache, f.chatModel, nil)
	assert.ErrorIs(t, err, ErrChunkStoreRequired)

	_, err = NewEngine(f.ledger, f.cache, f.chatModel, f.chunkStore, WithTopK(0))
	assert.Error(t, err)
}
