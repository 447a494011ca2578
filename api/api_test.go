package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/poiesic/docqa/ai/mock"
	"github.com/poiesic/docqa/chat"
	"github.com/poiesic/docqa/core"
	"github.com/poiesic/docqa/ingest"
	"github.com/poiesic/docqa/partition"
	"github.com/poiesic/docqa/query"
	"github.com/poiesic/docqa/storage"
	"github.com/poiesic/docqa/storage/badger"
	"github.com/poiesic/docqa/storage/sqlite"
	"github.com/poiesic/docqa/summarize"
	"github.com/poiesic/docqa/vecstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiFixture struct {
	handler    http.Handler
	ledger     storage.Ledger
	cache      *vecstore.Cache
	chunkStore storage.ChunkStore
	chatModel  *mock.ChatModel
	runner     *ingest.Runner
	docDir     string
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	ledger, err := sqlite.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })

	chunkStore, err := badger.NewMemoryChunkStore()
	require.NoError(t, err)
	t.Cleanup(func() { chunkStore.Close() })

	cache, err := vecstore.NewCache(t.TempDir(), &mock.Embedder{})
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	partitioner, err := partition.New()
	require.NoError(t, err)

	summarizer, err := summarize.New(nil, summarize.WithPassthrough(true), summarize.WithInterBatchDelay(0))
	require.NoError(t, err)

	orch, err := ingest.NewOrchestrator(ledger, chunkStore, partitioner, summarizer, cache, nil)
	require.NoError(t, err)

	runner, err := ingest.NewRunner(orch)
	require.NoError(t, err)
	t.Cleanup(runner.Close)

	chatModel := &mock.ChatModel{}
	engine, err := query.NewEngine(ledger, cache, chatModel, chunkStore,
		query.WithScoreThreshold(-1))
	require.NoError(t, err)

	chatService, err := chat.NewService(ledger, engine)
	require.NoError(t, err)

	handler := NewHandler(Deps{
		Ledger: ledger,
		Runner: runner,
		Chat:   chatService,
		Cache:  cache,
		Chunks: chunkStore,
	})

	return &apiFixture{
		handler:    handler,
		ledger:     ledger,
		cache:      cache,
		chunkStore: chunkStore,
		chatModel:  chatModel,
		runner:     runner,
		docDir:     t.TempDir(),
	}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&payload))
	return payload
}

func (f *apiFixture) addDocument(t *testing.T, moduleID, name, content string) {
	t.Helper()
	path := filepath.Join(f.docDir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	doc := &core.Document{ModuleID: moduleID, Title: name, FilePath: path, Active: true}
	require.NoError(t, f.ledger.AddDocument(context.Background(), doc))
}

// waitForTask polls until the task leaves the running states.
func (f *apiFixture) waitForTask(t *testing.T, taskID string) *core.IndexTask {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		task, err := f.ledger.GetTask(context.Background(), taskID)
		require.NoError(t, err)
		if task.IsDone() {
			return task
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("task %s did not finish", taskID)
	return nil
}

func (f *apiFixture) readyStore(t *testing.T, moduleID string) *core.VectorStore {
	t.Helper()
	store := &core.VectorStore{ModuleID: moduleID, Status: core.StoreStatusReady}
	require.NoError(t, f.ledger.CreateStore(context.Background(), store))
	return store
}

func TestAPI_CreateTask_RunsToCompletion(t *testing.T) {
	f := newAPIFixture(t)
	f.addDocument(t, "42", "notes.txt", "a short lecture transcript")

	rec := f.do(t, http.MethodPost, "/api/vectordb/create", map[string]any{"module_id": "42"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	payload := decodeResponse(t, rec)
	recordID := payload["task_record_id"].(string)
	assert.NotEmpty(t, payload["task_id"])
	assert.Equal(t, "/api/vectordb/status/"+recordID, payload["status_url"])

	task := f.waitForTask(t, recordID)
	assert.Equal(t, core.TaskStatusCompleted, task.Status)

	status := f.do(t, http.MethodGet, "/api/vectordb/status/"+recordID, nil)
	require.Equal(t, http.StatusOK, status.Code)
	view := decodeResponse(t, status)
	assert.Equal(t, "completed", view["status"])
	assert.EqualValues(t, 100, view["progress_pct"])
	assert.EqualValues(t, 1, view["successful_documents"])
}

func TestAPI_CreateTask_MissingModuleID(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/vectordb/create", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_CreateTask_ConflictOnSecond(t *testing.T) {
	f := newAPIFixture(t)

	// Seed a pending task directly so no runner race is involved.
	store := f.readyStore(t, "42")
	existing := &core.IndexTask{VectorStoreID: store.ID}
	require.NoError(t, f.ledger.CreateTask(context.Background(), existing))

	rec := f.do(t, http.MethodPost, "/api/vectordb/create", map[string]any{"module_id": "42"})
	require.Equal(t, http.StatusConflict, rec.Code)

	payload := decodeResponse(t, rec)
	assert.Equal(t, existing.ID, payload["task_id"])
}

func TestAPI_TaskStatus_NotFound(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/vectordb/status/"+core.NewID(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_CancelTask_NotRunning(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	store := f.readyStore(t, "42")
	task := &core.IndexTask{VectorStoreID: store.ID}
	require.NoError(t, f.ledger.CreateTask(ctx, task))
	task.MarkStarted(1)
	task.MarkCompleted(nil)
	require.NoError(t, f.ledger.UpdateTask(ctx, task))

	rec := f.do(t, http.MethodPost, "/api/vectordb/cancel/"+task.ID, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAPI_StoreDetail(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	store := f.readyStore(t, "42")
	task := &core.IndexTask{VectorStoreID: store.ID}
	require.NoError(t, f.ledger.CreateTask(ctx, task))

	rec := f.do(t, http.MethodGet, "/api/vectordb/stores/42", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	payload := decodeResponse(t, rec)
	assert.Equal(t, "42", payload["module_id"])
	assert.Equal(t, "ready", payload["status"])
	assert.Len(t, payload["recent_tasks"], 1)
}

func TestAPI_DeleteStore_RefusedWhileTaskRuns(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	store := f.readyStore(t, "42")
	task := &core.IndexTask{VectorStoreID: store.ID}
	require.NoError(t, f.ledger.CreateTask(ctx, task))

	rec := f.do(t, http.MethodDelete, "/api/vectordb/stores/42", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// The store row survived.
	_, err := f.ledger.GetStoreByModule(ctx, "42")
	assert.NoError(t, err)
}

func TestAPI_DeleteStore_RemovesEverything(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	f.readyStore(t, "42")
	require.NoError(t, f.chunkStore.PutChunks(ctx, "42", []storage.RawChunk{
		{ID: "c1", Kind: core.ChunkText, Content: "body"},
	}))

	rec := f.do(t, http.MethodDelete, "/api/vectordb/stores/42", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	_, err := f.ledger.GetStoreByModule(ctx, "42")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = f.chunkStore.GetChunk(ctx, "42", "c1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAPI_Chat_AnswersQuestion(t *testing.T) {
	f := newAPIFixture(t)
	store := f.readyStore(t, "42")
	indexChunk(t, f, store, "covers attention", "attention weighs token relevance")

	f.chatModel.CompleteFunc = func(_ context.Context, _ string) (string, error) {
		return "Attention weighs tokens.", nil
	}

	rec := f.do(t, http.MethodPost, "/api/modules/42/chat", map[string]any{
		"question": "What is attention?",
		"user_id":  "alice",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	payload := decodeResponse(t, rec)
	assert.Equal(t, "Attention weighs tokens.", payload["answer"])
	assert.NotEmpty(t, payload["answer_id"])
	assert.NotEmpty(t, payload["session_id"])
	assert.Equal(t, false, payload["fallback"])
}

func TestAPI_Chat_NotReady(t *testing.T) {
	f := newAPIFixture(t)
	store := &core.VectorStore{ModuleID: "42", Status: core.StoreStatusIndexing}
	require.NoError(t, f.ledger.CreateStore(context.Background(), store))

	rec := f.do(t, http.MethodPost, "/api/modules/42/chat", map[string]any{
		"question": "anyone home?",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAPI_Chat_EmptyQuestion(t *testing.T) {
	f := newAPIFixture(t)
	f.readyStore(t, "42")

	rec := f.do(t, http.MethodPost, "/api/modules/42/chat", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_RateAnswer_ConflictOnSecond(t *testing.T) {
	f := newAPIFixture(t)
	store := f.readyStore(t, "42")
	indexChunk(t, f, store, "covers pooling", "pooling reduces spatial size")

	ask := f.do(t, http.MethodPost, "/api/modules/42/chat", map[string]any{
		"question": "what is pooling?",
		"user_id":  "alice",
	})
	require.Equal(t, http.StatusOK, ask.Code)
	answerID := decodeResponse(t, ask)["answer_id"].(string)

	first := f.do(t, http.MethodPost, fmt.Sprintf("/api/answers/%s/rating", answerID), map[string]any{
		"rating": 5, "user_id": "alice",
	})
	require.Equal(t, http.StatusCreated, first.Code)
	assert.NotEmpty(t, decodeResponse(t, first)["rating_id"])

	second := f.do(t, http.MethodPost, fmt.Sprintf("/api/answers/%s/rating", answerID), map[string]any{
		"rating": 1, "user_id": "alice",
	})
	assert.Equal(t, http.StatusConflict, second.Code)
}

func TestAPI_RateAnswer_Invalid(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/answers/"+core.NewID()+"/rating", map[string]any{
		"rating": 9, "user_id": "alice",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_RateAnswer_UnknownAnswer(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/answers/"+core.NewID()+"/rating", map[string]any{
		"rating": 3, "user_id": "alice",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// indexChunk seeds one summary plus its raw chunk, the way an ingestion
// run would.
func indexChunk(t *testing.T, f *apiFixture, store *core.VectorStore, summary, rawContent string) {
	t.Helper()
	ctx := context.Background()

	chunkID := core.NewID()
	require.NoError(t, f.chunkStore.PutChunks(ctx, store.ModuleID, []storage.RawChunk{
		{ID: chunkID, Kind: core.ChunkText, Content: rawContent},
	}))

	collection, err := f.cache.Get(store.CollectionName)
	require.NoError(t, err)
	require.NoError(t, collection.Add(ctx, []vecstore.Document{{
		Content:  summary,
		Metadata: map[string]string{"chunk_id": chunkID, "doc_id": "d1", "kind": "text"},
	}}))
}
