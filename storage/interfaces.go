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


package storage

import (
	"context"

	"github.com/poiesic/docqa/core"
)

// StoreRepository manages vector store rows.
type StoreRepository interface {
	// CreateStore inserts a new store. The collection name must be
	// unique; violations return ErrDuplicateKey.
	CreateStore(ctx context.Context, store *core.VectorStore) error

	// GetStore retrieves a store by ID.
	// Returns ErrNotFound if it doesn't exist.
	GetStore(ctx context.Context, id string) (*core.VectorStore, error)

	// GetStoreByModule retrieves the store owned by a module.
	// Returns ErrNotFound if the module has no store.
	GetStoreByModule(ctx context.Context, moduleID string) (*core.VectorStore, error)

	// UpdateStore persists status and statistics changes.
	// Returns ErrNotFound if the store doesn't exist.
	UpdateStore(ctx context.Context, store *core.VectorStore) error

	// DeleteStore removes a store row.
	// Returns ErrNotFound if the store doesn't exist.
	DeleteStore(ctx context.Context, id string) error

	// ListStores returns all stores ordered by creation time.
	ListStores(ctx context.Context) ([]*core.VectorStore, error)
}

// TaskRepository manages ingestion task rows.
type TaskRepository interface {
	// CreateTask inserts a new task. When the store already has a
	// pending or processing task the insert fails with
	// core.ConflictError carrying the existing task's ID.
	CreateTask(ctx context.Context, task *core.IndexTask) error

	// GetTask retrieves a task by ID.
	// Returns ErrNotFound if it doesn't exist.
	GetTask(ctx context.Context, id string) (*core.IndexTask, error)

	// UpdateTask persists status, progress and counter changes.
	// Returns ErrNotFound if the task doesn't exist.
	UpdateTask(ctx context.Context, task *core.IndexTask) error

	// ActiveTaskForStore returns the pending or processing task for a
	// store. Returns ErrNotFound when none is active.
	ActiveTaskForStore(ctx context.Context, storeID string) (*core.IndexTask, error)

	// RecentTasksForStore returns up to limit tasks for a store, most
	// recent first.
	RecentTasksForStore(ctx context.Context, storeID string, limit int) ([]*core.IndexTask, error)
}

// DocumentRepository manages the module document registry. Ingestion
// only reads it; writes come from seeding and the surrounding
// application.
type DocumentRepository interface {
	// AddDocument registers a document for a module.
	AddDocument(ctx context.Context, doc *core.Document) error

	// ListActiveDocuments returns a module's active documents in a
	// stable order (ascending ID). Two runs over an unchanged module
	// observe the same snapshot order.
	ListActiveDocuments(ctx context.Context, moduleID string) ([]*core.Document, error)

	// SetDocumentActive flips a document's active flag.
	// Returns ErrNotFound if the document doesn't exist.
	SetDocumentActive(ctx context.Context, id string, active bool) error
}

// Exchange is one answered question, used for chat history.
type Exchange struct {
	Question core.Question
	Answer   core.Answer
}

// ChatRepository manages sessions, questions, answers, ratings and the
// query log.
type ChatRepository interface {
	// CreateSession inserts a new chat session.
	CreateSession(ctx context.Context, session *core.ChatSession) error

	// GetSessionByKey retrieves a session by its derived session key.
	// Returns ErrNotFound if it doesn't exist.
	GetSessionByKey(ctx context.Context, sessionKey string) (*core.ChatSession, error)

	// CreateQuestion inserts one inbound question.
	CreateQuestion(ctx context.Context, question *core.Question) error

	// CreateAnswer inserts the answer to a question.
	CreateAnswer(ctx context.Context, answer *core.Answer) error

	// GetAnswer retrieves an answer by ID.
	// Returns ErrNotFound if it doesn't exist.
	GetAnswer(ctx context.Context, id string) (*core.Answer, error)

	// RecentExchanges returns up to limit answered questions for a
	// session, most recent first.
	RecentExchanges(ctx context.Context, sessionKey string, limit int) ([]Exchange, error)

	// ListQuestions returns every question in a session in insertion
	// order, answered or not.
	ListQuestions(ctx context.Context, sessionKey string) ([]*core.Question, error)

	// CreateRating inserts feedback for an answer. A second rating by
	// the same user for the same answer returns ErrDuplicateKey; the
	// first write wins.
	CreateRating(ctx context.Context, rating *core.Rating) error

	// CreateQueryLog appends one query log row.
	CreateQueryLog(ctx context.Context, log *core.QueryLog) error
}

// Ledger combines the relational repositories behind one handle.
type Ledger interface {
	StoreRepository
	TaskRepository
	DocumentRepository
	ChatRepository

	// Close closes the storage backend and releases resources.
	Close() error
}

// RawChunk is the payload persisted per indexed chunk: the original
// content the summary stands for.
type RawChunk struct {
	ID      string
	Kind    core.ChunkKind
	Content string // text body, or base64 payload for images
	MIME    string // set for images
}

// ChunkStore persists raw chunk payloads per module. The vector
// collection indexes summaries; answers resolve the raw payload by
// chunk ID when available.
type ChunkStore interface {
	// PutChunks stores raw chunks for a module.
	PutChunks(ctx context.Context, moduleID string, chunks []RawChunk) error

	// GetChunk retrieves one raw chunk.
	// Returns ErrNotFound if it doesn't exist.
	GetChunk(ctx context.Context, moduleID, chunkID string) (*RawChunk, error)

	// DropModule removes every chunk stored for a module.
	DropModule(ctx context.Context, moduleID string) error

	// Close closes the backing database.
	Close() error
}
