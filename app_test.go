package docqa

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/poiesic/docqa/ai/mock"
	"github.com/poiesic/docqa/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) *App {
	t.Helper()

	app, err := NewApp(t.TempDir(), WithProvider(&mock.Provider{}), WithPoolSize(1))
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })
	return app
}

func TestNewApp_WiresEverySubsystem(t *testing.T) {
	app := newTestApp(t)

	assert.NotNil(t, app.Ledger())
	assert.NotNil(t, app.Runner())
	assert.NotNil(t, app.Chat())
	assert.NotNil(t, app.Engine())
	assert.NotNil(t, app.Handler())
}

// TestApp_IngestThenAsk drives the whole pipeline through the HTTP
// surface: register a document, index it, then ask about it.
func TestApp_IngestThenAsk(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()

	docDir := t.TempDir()
	path := filepath.Join(docDir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("the mitochondria is the powerhouse of the cell"), 0o644))
	require.NoError(t, app.Ledger().AddDocument(ctx, &core.Document{
		ModuleID: "7", Title: "notes.txt", FilePath: path, Active: true,
	}))

	handler := app.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/vectordb/create",
		map[string]any{"module_id": "7"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var created struct {
		TaskRecordID string `json:"task_record_id"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))

	waitForTaskDone(t, app, created.TaskRecordID)

	store, err := app.Ledger().GetStoreByModule(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, core.StoreStatusReady, store.Status)

	ask := doJSON(t, handler, http.MethodPost, "/api/modules/7/chat",
		map[string]any{"question": "the mitochondria is the powerhouse of the cell", "user_id": "alice"})
	require.Equal(t, http.StatusOK, ask.Code)

	// The mock embedder makes the retrieval score unpredictable, so the
	// answer may be the generated completion or the fallback. Either way
	// the exchange is persisted.
	var answered struct {
		Answer   string `json:"answer"`
		AnswerID string `json:"answer_id"`
	}
	require.NoError(t, json.NewDecoder(ask.Body).Decode(&answered))
	assert.NotEmpty(t, answered.Answer)
	assert.NotEmpty(t, answered.AnswerID)

	answer, err := app.Ledger().GetAnswer(ctx, answered.AnswerID)
	require.NoError(t, err)
	assert.Equal(t, answered.Answer, answer.Text)
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func waitForTaskDone(t *testing.T, app *App, taskID string) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		task, err := app.Ledger().GetTask(context.Background(), taskID)
		require.NoError(t, err)
		if task.IsDone() {
			require.Equal(t, core.TaskStatusCompleted, task.Status)
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("task %s did not finish", taskID)
}
