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

// CreateSession inserts a new chat session.
func (l *Ledger) CreateSession(ctx context.Context, session *core.ChatSession) error {
	if session.ID == "" {
		session.ID = core.NewID()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}

	_, err := l.db.ExecContext(ctx, `INSERT INTO chat_sessions
		(id, session_key, title, user_id, vector_store_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		session.ID, session.SessionID, session.Title, session.UserID, session.VectorStoreID,
		formatTime(session.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("creating session %s: %w", session.SessionID, storage.ErrDuplicateKey)
		}
		return fmt.Errorf("creating session: %w", err)
	}
	return nil
}

// GetSessionByKey retrieves a session by its derived session key.
func (l *Ledger) GetSessionByKey(ctx context.Context, sessionKey string) (*core.ChatSession, error) {
	var (
		session   core.ChatSession
		createdAt string
	)
	err := l.db.QueryRowContext(ctx, `SELECT id, session_key, title, user_id, vector_store_id, created_at
		FROM chat_sessions WHERE session_key = ?`, sessionKey).
		Scan(&session.ID, &session.SessionID, &session.Title, &session.UserID, &session.VectorStoreID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting session %s: %w", sessionKey, err)
	}
	session.CreatedAt = parseTime(createdAt)
	return &session, nil
}

// CreateQuestion inserts one inbound question.
func (l *Ledger) CreateQuestion(ctx context.Context, question *core.Question) error {
	if question.ID == "" {
		question.ID = core.NewID()
	}
	if question.CreatedAt.IsZero() {
		question.CreatedAt = time.Now().UTC()
	}

	_, err := l.db.ExecContext(ctx, `INSERT INTO questions
		(id, vector_store_id, session_key, text, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		question.ID, question.VectorStoreID, question.SessionID, question.Text,
		question.CreatedBy, formatTime(question.CreatedAt))
	if err != nil {
		return fmt.Errorf("creating question: %w", err)
	}
	return nil
}

// CreateAnswer inserts the answer to a question.
func (l *Ledger) CreateAnswer(ctx context.Context, answer *core.Answer) error {
	if answer.ID == "" {
		answer.ID = core.NewID()
	}
	if answer.CreatedAt.IsZero() {
		answer.CreatedAt = time.Now().UTC()
	}

	_, err := l.db.ExecContext(ctx, `INSERT INTO answers
		(id, question_id, text, time_required, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		answer.ID, answer.QuestionID, answer.Text, answer.TimeRequired,
		answer.CreatedBy, formatTime(answer.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("creating answer for question %s: %w", answer.QuestionID, storage.ErrDuplicateKey)
		}
		return fmt.Errorf("creating answer: %w", err)
	}
	return nil
}

// GetAnswer retrieves an answer by ID.
func (l *Ledger) GetAnswer(ctx context.Context, id string) (*core.Answer, error) {
	var (
		answer    core.Answer
		createdAt string
	)
	err := l.db.QueryRowContext(ctx, `SELECT id, question_id, text, time_required, created_by, created_at
		FROM answers WHERE id = ?`, id).
		Scan(&answer.ID, &answer.QuestionID, &answer.Text, &answer.TimeRequired, &answer.CreatedBy, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting answer %s: %w", id, err)
	}
	answer.CreatedAt = parseTime(createdAt)
	return &answer, nil
}

// ListQuestions returns every question in a session in insertion order,
// answered or not.
func (l *Ledger) ListQuestions(ctx context.Context, sessionKey string) ([]*core.Question, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT id, vector_store_id, session_key, text, created_by, created_at
		FROM questions WHERE session_key = ?
		ORDER BY created_at ASC, rowid ASC`, sessionKey)
	if err != nil {
		return nil, fmt.Errorf("listing questions for session %s: %w", sessionKey, err)
	}
	defer rows.Close()

	var questions []*core.Question
	for rows.Next() {
		var (
			question  core.Question
			createdAt string
		)
		if err := rows.Scan(&question.ID, &question.VectorStoreID, &question.SessionID,
			&question.Text, &question.CreatedBy, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning question: %w", err)
		}
		question.CreatedAt = parseTime(createdAt)
		questions = append(questions, &question)
	}
	return questions, rows.Err()
}

// RecentExchanges returns up to limit answered questions for a session,
// most recent first. Questions without an answer yet are skipped.
func (l *Ledger) RecentExchanges(ctx context.Context, sessionKey string, limit int) ([]storage.Exchange, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidQuery
	}

	rows, err := l.db.QueryContext(ctx, `SELECT
			q.id, q.vector_store_id, q.session_key, q.text, q.created_by, q.created_at,
			a.id, a.question_id, a.text, a.time_required, a.created_by, a.created_at
		FROM questions q
		JOIN answers a ON a.question_id = q.id
		WHERE q.session_key = ?
		ORDER BY q.created_at DESC, q.rowid DESC
		LIMIT ?`, sessionKey, limit)
	if err != nil {
		return nil, fmt.Errorf("listing exchanges for session %s: %w", sessionKey, err)
	}
	defer rows.Close()

	var exchanges []storage.Exchange
	for rows.Next() {
		var (
			ex                   storage.Exchange
			qCreated, aCreated   string
		)
		if err := rows.Scan(
			&ex.Question.ID, &ex.Question.VectorStoreID, &ex.Question.SessionID, &ex.Question.Text,
			&ex.Question.CreatedBy, &qCreated,
			&ex.Answer.ID, &ex.Answer.QuestionID, &ex.Answer.Text, &ex.Answer.TimeRequired,
			&ex.Answer.CreatedBy, &aCreated); err != nil {
			return nil, fmt.Errorf("scanning exchange: %w", err)
		}
		ex.Question.CreatedAt = parseTime(qCreated)
		ex.Answer.CreatedAt = parseTime(aCreated)
		exchanges = append(exchanges, ex)
	}
	return exchanges, rows.Err()
}

// CreateRating inserts feedback for an answer. The unique index on
// (answer_id, created_by) makes the first write win.
func (l *Ledger) CreateRating(ctx context.Context, rating *core.Rating) error {
	if rating.ID == "" {
		rating.ID = core.NewID()
	}
	if rating.CreatedAt.IsZero() {
		rating.CreatedAt = time.Now().UTC()
	}

	_, err := l.db.ExecContext(ctx, `INSERT INTO ratings
		(id, answer_id, score, feedback_text, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rating.ID, rating.AnswerID, rating.Score, rating.FeedbackText,
		rating.CreatedBy, formatTime(rating.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("rating answer %s by %s: %w", rating.AnswerID, rating.CreatedBy, storage.ErrDuplicateKey)
		}
		return fmt.Errorf("creating rating: %w", err)
	}
	return nil
}

// CreateQueryLog appends one query log row.
func (l *Ledger) CreateQueryLog(ctx context.Context, log *core.QueryLog) error {
	if log.ID == "" {
		log.ID = core.NewID()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	_, err := l.db.ExecContext(ctx, `INSERT INTO query_logs
		(id, user_id, module_id, query_text, query_hash, response,
		 retrieval_time_ms, generation_time_ms, total_time_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.UserID, log.ModuleID, log.QueryText, log.QueryHash, log.Response,
		log.RetrievalTimeMs, log.GenerationTimeMs, log.TotalTimeMs, formatTime(log.CreatedAt))
	if err != nil {
		return fmt.Errorf("creating query log: %w", err)
	}
	return nil
}
