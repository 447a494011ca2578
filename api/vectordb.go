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


package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/poiesic/docqa/core"
	"github.com/poiesic/docqa/ingest"
	"github.com/poiesic/docqa/storage"
)

const recentTaskLimit = 10

type createTaskRequest struct {
	ModuleID       string `json:"module_id"`
	EmbeddingModel string `json:"embedding_model"`
	ChunkSize      int    `json:"chunk_size"`
	ChunkOverlap   int    `json:"chunk_overlap"`
}

func handleCreateTask(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createTaskRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.ModuleID == "" {
			httpError(w, http.StatusBadRequest, "module_id is required")
			return
		}

		ctx := r.Context()
		store, err := deps.Ledger.GetStoreByModule(ctx, req.ModuleID)
		if errors.Is(err, storage.ErrNotFound) {
			store = &core.VectorStore{
				ModuleID:       req.ModuleID,
				EmbeddingModel: req.EmbeddingModel,
				ChunkSize:      req.ChunkSize,
				ChunkOverlap:   req.ChunkOverlap,
			}
			err = deps.Ledger.CreateStore(ctx, store)
		}
		if err != nil {
			deps.Logger.Error("resolving vector store", "module_id", req.ModuleID, "err", err)
			httpError(w, http.StatusInternalServerError, "could not resolve vector store")
			return
		}

		task := &core.IndexTask{
			JobID:          core.NewID(),
			VectorStoreID:  store.ID,
			EmbeddingModel: firstNonEmpty(req.EmbeddingModel, store.EmbeddingModel),
			ChunkSize:      firstNonZero(req.ChunkSize, store.ChunkSize),
			ChunkOverlap:   firstNonZero(req.ChunkOverlap, store.ChunkOverlap),
		}
		if err := deps.Ledger.CreateTask(ctx, task); err != nil {
			var conflict *core.ConflictError
			if errors.As(err, &conflict) {
				writeJSON(w, http.StatusConflict, map[string]any{
					"error": map[string]any{
						"message": "an indexing task is already running for this module",
					},
					"task_id": conflict.ExistingTaskID,
				})
				return
			}
			deps.Logger.Error("creating index task", "module_id", req.ModuleID, "err", err)
			httpError(w, http.StatusInternalServerError, "could not create indexing task")
			return
		}

		if err := deps.Runner.Submit(task.ID); err != nil {
			deps.Logger.Error("submitting index task", "task_id", task.ID, "err", err)
			task.MarkFailed("could not schedule task")
			if uerr := deps.Ledger.UpdateTask(ctx, task); uerr != nil {
				deps.Logger.Error("marking task failed", "task_id", task.ID, "err", uerr)
			}
			httpError(w, http.StatusInternalServerError, "could not schedule indexing task")
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]any{
			"task_id":        task.JobID,
			"task_record_id": task.ID,
			"status_url":     "/api/vectordb/status/" + task.ID,
		})
	}
}

func handleTaskStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID := chi.URLParam(r, "taskID")

		task, err := deps.Ledger.GetTask(r.Context(), taskID)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "task not found")
			return
		}
		if err != nil {
			deps.Logger.Error("loading task", "task_id", taskID, "err", err)
			httpError(w, http.StatusInternalServerError, "could not load task")
			return
		}

		writeJSON(w, http.StatusOK, taskView(task))
	}
}

func handleCancelTask(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID := chi.URLParam(r, "taskID")

		task, err := deps.Ledger.GetTask(r.Context(), taskID)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "task not found")
			return
		}
		if err != nil {
			deps.Logger.Error("loading task", "task_id", taskID, "err", err)
			httpError(w, http.StatusInternalServerError, "could not load task")
			return
		}
		if !task.IsRunning() {
			httpError(w, http.StatusConflict, "task is not running")
			return
		}

		if err := deps.Runner.Cancel(task.ID); err != nil {
			if errors.Is(err, ingest.ErrTaskNotRunning) {
				httpError(w, http.StatusConflict, "task is not running")
				return
			}
			deps.Logger.Error("cancelling task", "task_id", taskID, "err", err)
			httpError(w, http.StatusInternalServerError, "could not cancel task")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"task_id": task.ID,
			"status":  "cancelling",
		})
	}
}

func handleStoreDetail(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		moduleID := chi.URLParam(r, "moduleID")
		ctx := r.Context()

		store, err := deps.Ledger.GetStoreByModule(ctx, moduleID)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "vector store not found")
			return
		}
		if err != nil {
			deps.Logger.Error("loading vector store", "module_id", moduleID, "err", err)
			httpError(w, http.StatusInternalServerError, "could not load vector store")
			return
		}

		tasks, err := deps.Ledger.RecentTasksForStore(ctx, store.ID, recentTaskLimit)
		if err != nil {
			deps.Logger.Error("loading recent tasks", "module_id", moduleID, "err", err)
			httpError(w, http.StatusInternalServerError, "could not load vector store")
			return
		}

		views := make([]map[string]any, 0, len(tasks))
		for _, task := range tasks {
			views = append(views, taskView(task))
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"id":              store.ID,
			"module_id":       store.ModuleID,
			"collection_name": store.CollectionName,
			"status":          store.Status,
			"embedding_model": store.EmbeddingModel,
			"document_count":  store.DocumentCount,
			"total_chunks":    store.TotalChunks,
			"total_tokens":    store.TotalTokens,
			"last_indexed_at": timeView(store.LastIndexedAt),
			"recent_tasks":    views,
		})
	}
}

// handleDeleteStore removes a store and everything derived from it. The
// vector collection and the raw chunks go first so a crash mid-delete
// leaves the ledger row behind as evidence, not orphaned data.
func handleDeleteStore(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		moduleID := chi.URLParam(r, "moduleID")
		ctx := r.Context()

		store, err := deps.Ledger.GetStoreByModule(ctx, moduleID)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "vector store not found")
			return
		}
		if err != nil {
			deps.Logger.Error("loading vector store", "module_id", moduleID, "err", err)
			httpError(w, http.StatusInternalServerError, "could not load vector store")
			return
		}

		if active, err := deps.Ledger.ActiveTaskForStore(ctx, store.ID); err == nil && active != nil {
			httpError(w, http.StatusConflict, "an indexing task is running for this module")
			return
		} else if err != nil && !errors.Is(err, storage.ErrNotFound) {
			deps.Logger.Error("checking active task", "module_id", moduleID, "err", err)
			httpError(w, http.StatusInternalServerError, "could not delete vector store")
			return
		}

		if err := deps.Cache.Reset(store.CollectionName); err != nil {
			deps.Logger.Error("dropping collection", "module_id", moduleID, "err", err)
			httpError(w, http.StatusInternalServerError, "could not delete vector store")
			return
		}
		if err := deps.Chunks.DropModule(ctx, store.ModuleID); err != nil {
			deps.Logger.Error("dropping raw chunks", "module_id", moduleID, "err", err)
			httpError(w, http.StatusInternalServerError, "could not delete vector store")
			return
		}
		if err := deps.Ledger.DeleteStore(ctx, store.ID); err != nil {
			deps.Logger.Error("deleting vector store", "module_id", moduleID, "err", err)
			httpError(w, http.StatusInternalServerError, "could not delete vector store")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"module_id": moduleID,
			"status":    "deleted",
		})
	}
}

func taskView(task *core.IndexTask) map[string]any {
	view := map[string]any{
		"id":                   task.ID,
		"job_id":               task.JobID,
		"vector_store_id":      task.VectorStoreID,
		"status":               task.Status,
		"progress_pct":         task.ProgressPct,
		"current_step":         task.CurrentStep,
		"current_document":     task.CurrentDocument,
		"total_documents":      task.TotalDocuments,
		"processed_documents":  task.ProcessedDocuments,
		"successful_documents": task.SuccessfulDocuments,
		"failed_documents":     task.FailedDocuments,
		"duration_seconds":     task.Duration().Seconds(),
		"created_at":           timeView(task.CreatedAt),
		"started_at":           timeView(task.StartedAt),
		"completed_at":         timeView(task.CompletedAt),
	}
	if task.Result != nil {
		view["result"] = task.Result
	}
	if task.ErrorMessage != "" {
		view["error_message"] = task.ErrorMessage
	}
	return view
}

func timeView(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonZero(values ...int) int {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}
