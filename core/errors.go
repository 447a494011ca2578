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


package core

import (
	"errors"
	"fmt"
)

// Domain validation errors
var (
	// ErrInvalidRating indicates a Rating failed validation.
	ErrInvalidRating = errors.New("invalid rating")

	// ErrScoreOutOfRange indicates a rating score outside 1-5.
	ErrScoreOutOfRange = errors.New("score must be between 1 and 5")

	// ErrEmptyQuestion indicates an empty question text.
	ErrEmptyQuestion = errors.New("question cannot be empty")

	// ErrInvalidTransition indicates a status change the lifecycle does
	// not allow.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ParseError reports a source document that could not be decoded. Fatal
// for the enclosing document; never retried.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// SummarizationError reports a summarization batch that failed after
// exhausting its retries.
type SummarizationError struct {
	Attempts int
	Err      error
}

func (e *SummarizationError) Error() string {
	return fmt.Sprintf("summarization failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *SummarizationError) Unwrap() error { return e.Err }

// VectorStoreError reports an I/O failure on an embedding collection.
// Callers must not assume partial writes are visible.
type VectorStoreError struct {
	Collection string
	Op         string
	Err        error
}

func (e *VectorStoreError) Error() string {
	return fmt.Sprintf("vector store %s: %s: %v", e.Collection, e.Op, e.Err)
}

func (e *VectorStoreError) Unwrap() error { return e.Err }

// NotReadyError reports a query against a module whose vector store is
// not in ready status. The caller should trigger ingestion first.
type NotReadyError struct {
	ModuleID string
	Status   StoreStatus
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("vector store for module %s is not ready (status %s)", e.ModuleID, e.Status)
}

// ConflictError reports a duplicate active ingestion task for a store.
type ConflictError struct {
	ExistingTaskID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("ingestion already in progress (task %s)", e.ExistingTaskID)
}

// InfraError reports missing task/module/store rows or another failure
// that aborts a whole run, as opposed to a per-document failure.
type InfraError struct {
	Err error
}

func (e *InfraError) Error() string {
	return fmt.Sprintf("infrastructure failure: %v", e.Err)
}

func (e *InfraError) Unwrap() error { return e.Err }
