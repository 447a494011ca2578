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
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/poiesic/docqa/chat"
	"github.com/poiesic/docqa/ingest"
	"github.com/poiesic/docqa/storage"
	"github.com/poiesic/docqa/vecstore"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Deps carries everything the handlers need.
type Deps struct {
	Ledger storage.Ledger
	Runner *ingest.Runner
	Chat   *chat.Service
	Cache  *vecstore.Cache
	Chunks storage.ChunkStore
	Logger *slog.Logger
}

// NewHandler builds the API router.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default().With("component", "api")
	}

	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		r.Route("/vectordb", func(r chi.Router) {
			r.Post("/create", handleCreateTask(deps))
			r.Get("/status/{taskID}", handleTaskStatus(deps))
			r.Post("/cancel/{taskID}", handleCancelTask(deps))
			r.Get("/stores/{moduleID}", handleStoreDetail(deps))
			r.Delete("/stores/{moduleID}", handleDeleteStore(deps))
		})
		r.Post("/modules/{moduleID}/chat", handleChat(deps))
		r.Post("/answers/{answerID}/rating", handleRateAnswer(deps))
	})

	return r
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func httpError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{"message": message},
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
