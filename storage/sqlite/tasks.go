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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/poiesic/docqa/core"
	"github.com/poiesic/docqa/storage"
)

const taskColumns = `id, job_id, vector_store_id, status, progress_pct,
	current_step, current_document,
	total_documents, processed_documents, successful_documents, failed_documents,
	result, error_message, created_at, started_at, completed_at,
	chunk_size, chunk_overlap, embedding_model`

// CreateTask inserts a new ingestion task. The partial unique index on
// live tasks makes the duplicate-active-task race lose at the database
// rather than in a check-then-act read; the loser receives
// core.ConflictError carrying the surviving task's ID.
func (l *Ledger) CreateTask(ctx context.Context, task *core.IndexTask) error {
	if task.ID == "" {
		task.ID = core.NewID()
	}
	if task.Status == "" {
		task.Status = core.TaskStatusPending
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}

	result, err := encodeResult(task.Result)
	if err != nil {
		return err
	}

	_, err = l.db.ExecContext(ctx, `INSERT INTO index_tasks
		(id, job_id, vector_store_id, status, progress_pct,
		 current_step, current_document,
		 total_documents, processed_documents, successful_documents, failed_documents,
		 result, error_message, created_at, started_at, completed_at,
		 chunk_size, chunk_overlap, embedding_model)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.JobID, task.VectorStoreID, string(task.Status), task.ProgressPct,
		task.CurrentStep, task.CurrentDocument,
		task.TotalDocuments, task.ProcessedDocuments, task.SuccessfulDocuments, task.FailedDocuments,
		result, task.ErrorMessage, formatTime(task.CreatedAt), formatTime(task.StartedAt), formatTime(task.CompletedAt),
		task.ChunkSize, task.ChunkOverlap, task.EmbeddingModel)
	if err != nil {
		if isUniqueViolation(err) {
			existing, lookupErr := l.ActiveTaskForStore(ctx, task.VectorStoreID)
			if lookupErr != nil {
				return &core.ConflictError{}
			}
			return &core.ConflictError{ExistingTaskID: existing.ID}
		}
		return fmt.Errorf("creating task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by ID.
func (l *Ledger) GetTask(ctx context.Context, id string) (*core.IndexTask, error) {
	row := l.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM index_tasks WHERE id = ?`, id)
	return scanTask(row)
}

// UpdateTask persists status, progress and counter changes.
func (l *Ledger) UpdateTask(ctx context.Context, task *core.IndexTask) error {
	result, err := encodeResult(task.Result)
	if err != nil {
		return err
	}

	res, err := l.db.ExecContext(ctx, `UPDATE index_tasks SET
		status = ?, progress_pct = ?, current_step = ?, current_document = ?,
		total_documents = ?, processed_documents = ?, successful_documents = ?, failed_documents = ?,
		result = ?, error_message = ?, started_at = ?, completed_at = ?
		WHERE id = ?`,
		string(task.Status), task.ProgressPct, task.CurrentStep, task.CurrentDocument,
		task.TotalDocuments, task.ProcessedDocuments, task.SuccessfulDocuments, task.FailedDocuments,
		result, task.ErrorMessage, formatTime(task.StartedAt), formatTime(task.CompletedAt),
		task.ID)
	if err != nil {
		return fmt.Errorf("updating task %s: %w", task.ID, err)
	}
	return requireRow(res, task.ID)
}

// ActiveTaskForStore returns the live task for a store, if any.
func (l *Ledger) ActiveTaskForStore(ctx context.Context, storeID string) (*core.IndexTask, error) {
	row := l.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM index_tasks
		WHERE vector_store_id = ? AND status IN ('pending', 'processing')`, storeID)
	return scanTask(row)
}

// RecentTasksForStore returns up to limit tasks, most recent first.
func (l *Ledger) RecentTasksForStore(ctx context.Context, storeID string, limit int) ([]*core.IndexTask, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidQuery
	}

	rows, err := l.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM index_tasks
		WHERE vector_store_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`, storeID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing tasks for store %s: %w", storeID, err)
	}
	defer rows.Close()

	var tasks []*core.IndexTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func scanTask(row rowScanner) (*core.IndexTask, error) {
	var (
		task                             core.IndexTask
		status, result                   string
		createdAt, startedAt, completedAt string
	)
	err := row.Scan(&task.ID, &task.JobID, &task.VectorStoreID, &status, &task.ProgressPct,
		&task.CurrentStep, &task.CurrentDocument,
		&task.TotalDocuments, &task.ProcessedDocuments, &task.SuccessfulDocuments, &task.FailedDocuments,
		&result, &task.ErrorMessage, &createdAt, &startedAt, &completedAt,
		&task.ChunkSize, &task.ChunkOverlap, &task.EmbeddingModel)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning task: %w", err)
	}

	task.Status = core.TaskStatus(status)
	task.CreatedAt = parseTime(createdAt)
	task.StartedAt = parseTime(startedAt)
	task.CompletedAt = parseTime(completedAt)

	if result != "" {
		if err := json.Unmarshal([]byte(result), &task.Result); err != nil {
			return nil, fmt.Errorf("decoding task result: %w", err)
		}
	}
	return &task, nil
}

func encodeResult(result map[string]any) (string, error) {
	if result == nil {
		return "", nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("encoding task result: %w", err)
	}
	return string(data), nil
}
