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


package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/poiesic/docqa/core"
	"github.com/poiesic/docqa/storage"
)

const storeColumns = `id, module_id, collection_name, persist_dir, status,
	embedding_model, embedding_dim, chunk_size, chunk_overlap,
	document_count, total_chunks, total_tokens,
	created_at, updated_at, last_indexed_at`

// CreateStore inserts a new vector store row.
func (l *Ledger) CreateStore(ctx context.Context, store *core.VectorStore) error {
	if store.ID == "" {
		store.ID = core.NewID()
	}
	if store.CollectionName == "" {
		store.CollectionName = core.CollectionNameForModule(store.ModuleID)
	}
	if store.Status == "" {
		store.Status = core.StoreStatusEmpty
	}
	now := time.Now().UTC()
	if store.CreatedAt.IsZero() {
		store.CreatedAt = now
	}
	store.UpdatedAt = now

	_, err := l.db.ExecContext(ctx, `INSERT INTO vector_stores
		(id, module_id, collection_name, persist_dir, status,
		 embedding_model, embedding_dim, chunk_size, chunk_overlap,
		 document_count, total_chunks, total_tokens,
		 created_at, updated_at, last_indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		store.ID, store.ModuleID, store.CollectionName, store.PersistDir, string(store.Status),
		store.EmbeddingModel, store.EmbeddingDim, store.ChunkSize, store.ChunkOverlap,
		store.DocumentCount, store.TotalChunks, store.TotalTokens,
		formatTime(store.CreatedAt), formatTime(store.UpdatedAt), formatTime(store.LastIndexedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("creating store for module %s: %w", store.ModuleID, storage.ErrDuplicateKey)
		}
		return fmt.Errorf("creating store: %w", err)
	}
	return nil
}

// GetStore retrieves a store by ID.
func (l *Ledger) GetStore(ctx context.Context, id string) (*core.VectorStore, error) {
	row := l.db.QueryRowContext(ctx, `SELECT `+storeColumns+` FROM vector_stores WHERE id = ?`, id)
	return scanStore(row)
}

// GetStoreByModule retrieves the store owned by a module.
func (l *Ledger) GetStoreByModule(ctx context.Context, moduleID string) (*core.VectorStore, error) {
	row := l.db.QueryRowContext(ctx, `SELECT `+storeColumns+` FROM vector_stores WHERE module_id = ?`, moduleID)
	return scanStore(row)
}

// UpdateStore persists status and statistics changes.
func (l *Ledger) UpdateStore(ctx context.Context, store *core.VectorStore) error {
	store.UpdatedAt = time.Now().UTC()

	res, err := l.db.ExecContext(ctx, `UPDATE vector_stores SET
		status = ?, embedding_model = ?, embedding_dim = ?,
		chunk_size = ?, chunk_overlap = ?,
		document_count = ?, total_chunks = ?, total_tokens = ?,
		updated_at = ?, last_indexed_at = ?
		WHERE id = ?`,
		string(store.Status), store.EmbeddingModel, store.EmbeddingDim,
		store.ChunkSize, store.ChunkOverlap,
		store.DocumentCount, store.TotalChunks, store.TotalTokens,
		formatTime(store.UpdatedAt), formatTime(store.LastIndexedAt),
		store.ID)
	if err != nil {
		return fmt.Errorf("updating store %s: %w", store.ID, err)
	}
	return requireRow(res, store.ID)
}

// DeleteStore removes a store row and, through cascade, its tasks.
func (l *Ledger) DeleteStore(ctx context.Context, id string) error {
	res, err := l.db.ExecContext(ctx, `DELETE FROM vector_stores WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting store %s: %w", id, err)
	}
	return requireRow(res, id)
}

// ListStores returns all stores ordered by creation time.
func (l *Ledger) ListStores(ctx context.Context) ([]*core.VectorStore, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT `+storeColumns+` FROM vector_stores ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing stores: %w", err)
	}
	defer rows.Close()

	var stores []*core.VectorStore
	for rows.Next() {
		store, err := scanStore(rows)
		if err != nil {
			return nil, err
		}
		stores = append(stores, store)
	}
	return stores, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStore(row rowScanner) (*core.VectorStore, error) {
	var (
		store                             core.VectorStore
		status                            string
		createdAt, updatedAt, lastIndexed string
	)
	err := row.Scan(&store.ID, &store.ModuleID, &store.CollectionName, &store.PersistDir, &status,
		&store.EmbeddingModel, &store.EmbeddingDim, &store.ChunkSize, &store.ChunkOverlap,
		&store.DocumentCount, &store.TotalChunks, &store.TotalTokens,
		&createdAt, &updatedAt, &lastIndexed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning store: %w", err)
	}

	store.Status = core.StoreStatus(status)
	store.CreatedAt = parseTime(createdAt)
	store.UpdatedAt = parseTime(updatedAt)
	store.LastIndexedAt = parseTime(lastIndexed)
	return &store, nil
}

// requireRow converts a zero-row update or delete into ErrNotFound.
func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("row %s: %w", id, storage.ErrNotFound)
	}
	return nil
}
