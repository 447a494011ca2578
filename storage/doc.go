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


// Package storage provides the storage abstraction layer for docqa.
//
// This package defines repository interfaces that decouple storage
// implementation from business logic. The relational ledger (vector
// stores, index tasks, documents, chat history, ratings, query logs)
// lives behind these interfaces; the sqlite subpackage is the default
// implementation. Raw chunk payloads are stored separately behind
// ChunkStore, implemented by the badger subpackage.
//
// # Constructor Return Type Pattern
//
// Public constructors return interfaces to enforce abstraction and keep
// backends swappable:
//
//	ledger, err := sqlite.Open(dataDir)  // returns storage.Ledger
//
// Internal constructors may return concrete types since they are only
// used within the implementation package.
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
package storage
