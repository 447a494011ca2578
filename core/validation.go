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

import "fmt"

// ValidateRating validates a Rating according to domain rules.
//
// Validation rules:
//   - Score must be between 1 and 5 inclusive
//   - AnswerID and CreatedBy must be set
//
// Uniqueness per (answer, user) is enforced at write time by the ledger,
// not here.
func ValidateRating(r *Rating) error {
	if r == nil {
		return fmt.Errorf("%w: rating is nil", ErrInvalidRating)
	}
	if r.Score < 1 || r.Score > 5 {
		return fmt.Errorf("%w: %w", ErrInvalidRating, ErrScoreOutOfRange)
	}
	if r.AnswerID == "" {
		return fmt.Errorf("%w: answer id required", ErrInvalidRating)
	}
	if r.CreatedBy == "" {
		return fmt.Errorf("%w: rater required", ErrInvalidRating)
	}
	return nil
}

// ValidateStoreTransition checks a vector store status change against the
// lifecycle empty -> indexing -> {ready, error}. Reset (any -> empty) is
// always allowed.
func ValidateStoreTransition(from, to StoreStatus) error {
	if to == StoreStatusEmpty {
		return nil
	}
	allowed := map[StoreStatus][]StoreStatus{
		StoreStatusEmpty:    {StoreStatusIndexing},
		StoreStatusIndexing: {StoreStatusReady, StoreStatusError},
		StoreStatusReady:    {StoreStatusIndexing},
		StoreStatusError:    {StoreStatusIndexing},
	}
	for _, s := range allowed[from] {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// ValidateTaskTransition checks an ingestion task status change.
// Cancellation is only valid while the task is running.
func ValidateTaskTransition(from, to TaskStatus) error {
	allowed := map[TaskStatus][]TaskStatus{
		TaskStatusPending:    {TaskStatusProcessing, TaskStatusFailed, TaskStatusCancelled},
		TaskStatusProcessing: {TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled},
	}
	for _, s := range allowed[from] {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
