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


package vecstore

import (
	"container/heap"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/docqa/ai"
	"github.com/poiesic/docqa/core"

	_ "modernc.org/sqlite"
)

// collectionFile is the database filename inside each collection
// directory.
const collectionFile = "collection.db"

// Document is one indexable unit: summary text plus metadata pointing
// back at the raw chunk it represents.
type Document struct {
	ID        string
	Content   string
	Metadata  map[string]string
	Embedding []float32
	CreatedAt time.Time
}

// ScoredDocument is a search hit with its cosine similarity score.
type ScoredDocument struct {
	Document
	Score float32
}

// Collection is one module's vector store, backed by a standalone
// SQLite file. All writes are serialized; reads run concurrently.
type Collection struct {
	name     string
	db       *sql.DB
	embedder ai.Embedder
	logger   *slog.Logger

	mu     sync.Mutex
	closed bool
}

// CollectionPath returns the database file path for a collection under
// persistDir.
func CollectionPath(collectionName, persistDir string) string {
	return filepath.Join(persistDir, collectionName, collectionFile)
}

// Open opens (or creates) the collection database. Opening an existing
// collection is idempotent: the schema is created only when missing and
// existing rows are preserved.
func Open(collectionName, persistDir string, embedder ai.Embedder) (*Collection, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	dir := filepath.Join(persistDir, collectionName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, storeErr(collectionName, "open", fmt.Errorf("creating collection directory: %w", err))
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, collectionFile))
	if err != nil {
		return nil, storeErr(collectionName, "open", fmt.Errorf("opening database: %w", err))
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode=WAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, storeErr(collectionName, "open", fmt.Errorf("applying %q: %w", pragma, err))
		}
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		doc_id TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		embedding BLOB NOT NULL,
		created_at TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, storeErr(collectionName, "open", fmt.Errorf("creating chunks table: %w", err))
	}

	return &Collection{
		name:     collectionName,
		db:       db,
		embedder: embedder,
		logger:   slog.Default().With("component", "vecstore", "collection", collectionName),
	}, nil
}

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.name
}

// Add embeds the documents' content and persists them durably. Each
// document receives a fresh identifier unless one is already set.
func (c *Collection) Add(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Content
	}

	embeddings, err := c.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return storeErr(c.name, "add", fmt.Errorf("embedding %d documents: %w", len(docs), err))
	}
	if len(embeddings) != len(docs) {
		return storeErr(c.name, "add", fmt.Errorf("embedding count mismatch: expected %d, got %d", len(docs), len(embeddings)))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return storeErr(c.name, "add", ErrCollectionClosed)
	}

	tx, err := c.db.Begin()
	if err != nil {
		return storeErr(c.name, "add", fmt.Errorf("beginning transaction: %w", err))
	}

	stmt, err := tx.Prepare(`INSERT INTO chunks (id, doc_id, content, metadata, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return storeErr(c.name, "add", fmt.Errorf("preparing insert: %w", err))
	}
	defer stmt.Close()

	for i, doc := range docs {
		id := doc.ID
		if id == "" {
			id = uuid.NewString()
		}

		metadata, err := json.Marshal(doc.Metadata)
		if err != nil {
			tx.Rollback()
			return storeErr(c.name, "add", fmt.Errorf("encoding metadata for %s: %w", id, err))
		}

		createdAt := doc.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}

		blob := encodeFloat32s(NormalizeVector(embeddings[i]))
		if _, err := stmt.Exec(id, doc.Metadata["doc_id"], doc.Content, string(metadata), blob, createdAt.Format(time.RFC3339)); err != nil {
			tx.Rollback()
			return storeErr(c.name, "add", fmt.Errorf("inserting document %s: %w", id, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return storeErr(c.name, "add", fmt.Errorf("committing: %w", err))
	}

	return nil
}

// Search embeds the query and returns the top-K documents above the
// score threshold, ordered by descending cosine similarity.
func (c *Collection) Search(ctx context.Context, query string, topK int, scoreThreshold float32) ([]ScoredDocument, error) {
	if topK <= 0 {
		return nil, storeErr(c.name, "search", ErrInvalidTopK)
	}

	queryVector, err := c.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, storeErr(c.name, "search", fmt.Errorf("embedding query: %w", err))
	}

	queryNorm := norm(queryVector)
	if queryNorm == 0 {
		return nil, nil
	}

	// Phase 1: scan only id + embedding to find top-K candidates.
	rows, err := c.db.QueryContext(ctx, `SELECT id, embedding FROM chunks`)
	if err != nil {
		return nil, storeErr(c.name, "search", fmt.Errorf("querying vectors: %w", err))
	}
	defer rows.Close()

	h := &idScoreHeap{}
	heap.Init(h)

	var buf []float32
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, storeErr(c.name, "search", fmt.Errorf("scanning row: %w", err))
		}

		buf, err = decodeFloat32sInto(buf, blob)
		if err != nil {
			return nil, storeErr(c.name, "search", fmt.Errorf("decoding embedding for %s: %w", id, err))
		}

		score := cosine(queryVector, buf, queryNorm)
		if score < scoreThreshold {
			continue
		}

		if h.Len() < topK {
			heap.Push(h, idScore{ID: id, Score: score})
		} else if score > (*h)[0].Score {
			(*h)[0] = idScore{ID: id, Score: score}
			heap.Fix(h, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(c.name, "search", fmt.Errorf("iterating rows: %w", err))
	}

	if h.Len() == 0 {
		return nil, nil
	}

	// Phase 2: fetch full documents only for the winners.
	scores := make(map[string]float32, h.Len())
	ids := make([]string, h.Len())
	for i := len(ids) - 1; i >= 0; i-- {
		item := heap.Pop(h).(idScore)
		ids[i] = item.ID
		scores[item.ID] = item.Score
	}

	docs, err := c.fetchByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	results := make([]ScoredDocument, 0, len(docs))
	for _, doc := range docs {
		results = append(results, ScoredDocument{Document: doc, Score: scores[doc.ID]})
	}
	sortByScore(results)

	return results, nil
}

// Count returns the number of indexed documents.
func (c *Collection) Count(ctx context.Context) (int, error) {
	var count int
	err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&count)
	if err != nil {
		return 0, storeErr(c.name, "count", err)
	}
	return count, nil
}

// Entry is one stored row without its vector, as returned by Entries.
type Entry struct {
	ID      string
	Content string
}

// Entries pages through the collection in insertion order.
func (c *Collection) Entries(ctx context.Context, offset, limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, storeErr(c.name, "entries", fmt.Errorf("limit must be positive, got %d", limit))
	}

	rows, err := c.db.QueryContext(ctx,
		`SELECT id, content FROM chunks ORDER BY rowid LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, storeErr(c.name, "entries", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Content); err != nil {
			return nil, storeErr(c.name, "entries", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SetEmbeddings rewrites the stored vectors for the given row IDs.
// Vectors are normalized before storage so cosine scoring stays valid.
func (c *Collection) SetEmbeddings(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return storeErr(c.name, "set-embeddings",
			fmt.Errorf("id/vector count mismatch: %d vs %d", len(ids), len(vectors)))
	}
	if len(ids) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return storeErr(c.name, "set-embeddings", ErrCollectionClosed)
	}

	tx, err := c.db.Begin()
	if err != nil {
		return storeErr(c.name, "set-embeddings", fmt.Errorf("beginning transaction: %w", err))
	}

	stmt, err := tx.Prepare(`UPDATE chunks SET embedding = ? WHERE id = ?`)
	if err != nil {
		tx.Rollback()
		return storeErr(c.name, "set-embeddings", fmt.Errorf("preparing update: %w", err))
	}
	defer stmt.Close()

	for i, id := range ids {
		blob := encodeFloat32s(NormalizeVector(vectors[i]))
		if _, err := stmt.Exec(blob, id); err != nil {
			tx.Rollback()
			return storeErr(c.name, "set-embeddings", fmt.Errorf("updating %s: %w", id, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return storeErr(c.name, "set-embeddings", fmt.Errorf("committing: %w", err))
	}
	return nil
}

// Close releases the database handle.
func (c *Collection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.db.Close()
}

func (c *Collection) fetchByIDs(ctx context.Context, ids []string) ([]Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	args := make([]any, len(ids))
	placeholders := make([]byte, 0, len(ids)*2)
	for i, id := range ids {
		args[i] = id
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}

	query := `SELECT id, content, metadata, embedding, created_at FROM chunks WHERE id IN (` + string(placeholders) + `)`
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr(c.name, "search", fmt.Errorf("fetching top-K documents: %w", err))
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var (
			doc       Document
			metadata  string
			blob      []byte
			createdAt string
		)
		if err := rows.Scan(&doc.ID, &doc.Content, &metadata, &blob, &createdAt); err != nil {
			return nil, storeErr(c.name, "search", fmt.Errorf("scanning document: %w", err))
		}

		if err := json.Unmarshal([]byte(metadata), &doc.Metadata); err != nil {
			return nil, storeErr(c.name, "search", fmt.Errorf("decoding metadata for %s: %w", doc.ID, err))
		}
		if doc.Embedding, err = decodeFloat32s(blob); err != nil {
			return nil, storeErr(c.name, "search", fmt.Errorf("decoding embedding for %s: %w", doc.ID, err))
		}
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			doc.CreatedAt = t
		}

		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(c.name, "search", fmt.Errorf("iterating documents: %w", err))
	}

	return docs, nil
}

// Reset removes a collection's files from disk. Missing collections are
// not an error; partial removal failures are logged and returned.
func Reset(collectionName, persistDir string) error {
	dir := filepath.Join(persistDir, collectionName)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}

	if err := os.RemoveAll(dir); err != nil {
		slog.Warn("failed to remove collection directory", "collection", collectionName, "err", err)
		return storeErr(collectionName, "reset", err)
	}

	return nil
}

func storeErr(collection, op string, err error) error {
	return &core.VectorStoreError{Collection: collection, Op: op, Err: err}
}

// sortByScore sorts hits by score descending. Insertion sort is fine
// for topK-sized slices.
func sortByScore(results []ScoredDocument) {
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].Score > results[j-1].Score; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}

// idScore holds only the ID and score during the scan phase of Search.
type idScore struct {
	ID    string
	Score float32
}

// idScoreHeap is a min-heap of idScore ordered by Score.
type idScoreHeap []idScore

func (h idScoreHeap) Len() int          { return len(h) }
func (h idScoreHeap) Less(i, j int) bool { return h[i].Score < h[j].Score }
func (h idScoreHeap) Swap(i, j int)     { h[i], h[j] = h[j], h[i] }
func (h *idScoreHeap) Push(x any)       { *h = append(*h, x.(idScore)) }
func (h *idScoreHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
