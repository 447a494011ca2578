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


package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docqa/storage"
)

// ChunkStore implements storage.ChunkStore on a Backend.
type ChunkStore struct {
	backend *Backend
}

var _ storage.ChunkStore = (*ChunkStore)(nil)

// NewChunkStore creates a chunk store on an existing backend.
// Returns the storage.ChunkStore interface to enforce abstraction.
func NewChunkStore(backend *Backend) (storage.ChunkStore, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	return &ChunkStore{backend: backend}, nil
}

// PutChunks stores raw chunks for a module. Chunks are written in
// batches sized to stay under the transaction limit.
func (s *ChunkStore) PutChunks(ctx context.Context, moduleID string, chunks []storage.RawChunk) error {
	if s.backend.IsClosed() {
		return storage.ErrStorageClosed
	}

	batch := s.backend.db.NewWriteBatch()
	defer batch.Cancel()

	for _, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}

		value, err := json.Marshal(chunk)
		if err != nil {
			return fmt.Errorf("encoding chunk %s: %w", chunk.ID, err)
		}
		if err := batch.Set(makeChunkKey(moduleID, chunk.ID), value); err != nil {
			return fmt.Errorf("writing chunk %s: %w", chunk.ID, err)
		}
	}

	return batch.Flush()
}

// GetChunk retrieves one raw chunk.
func (s *ChunkStore) GetChunk(ctx context.Context, moduleID, chunkID string) (*storage.RawChunk, error) {
	if s.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}

	var chunk storage.RawChunk
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeChunkKey(moduleID, chunkID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &chunk)
		})
	}, false)
	if err != nil {
		return nil, err
	}
	return &chunk, nil
}

// DropModule removes every chunk stored for a module.
func (s *ChunkStore) DropModule(ctx context.Context, moduleID string) error {
	if s.backend.IsClosed() {
		return storage.ErrStorageClosed
	}

	prefix := makeModulePrefix(moduleID)

	// Collect keys first; Badger iterators cannot outlive the write.
	var keys [][]byte
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			keys = append(keys, iter.Item().KeyCopy(nil))
		}
		return nil
	}, false)
	if err != nil {
		return err
	}

	batch := s.backend.db.NewWriteBatch()
	defer batch.Cancel()
	for _, key := range keys {
		if err := batch.Delete(key); err != nil {
			return fmt.Errorf("deleting chunk key: %w", err)
		}
	}
	return batch.Flush()
}

// Close closes the underlying backend.
func (s *ChunkStore) Close() error {
	return s.backend.Close()
}
