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


package chat

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/poiesic/docqa/core"
	"github.com/poiesic/docqa/query"
	"github.com/poiesic/docqa/storage"
)

// DefaultSessionTitle names sessions created implicitly by a message.
const DefaultSessionTitle = "Untitled session"

// AskRequest is one inbound chat message.
type AskRequest struct {
	ModuleID   string
	UserID     string
	Question   string
	SessionKey string // empty starts a new session
	Title      string // title for a newly created session
}

// AskResponse is the persisted outcome of one message.
type AskResponse struct {
	Question       string
	Answer         string
	AnswerID       string
	SessionKey     string
	ProcessingTime float64 // seconds
	Fallback       bool
	Sources        []query.Source
}

// RateRequest is user feedback on one answer.
type RateRequest struct {
	AnswerID string
	UserID   string
	Score    int
	Feedback string
}

// Service ties the query engine to the chat ledger.
type Service struct {
	ledger storage.Ledger
	engine *query.Engine
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewService creates a chat service.
func NewService(ledger storage.Ledger, engine *query.Engine, opts ...Option) (*Service, error) {
	if ledger == nil {
		return nil, ErrLedgerRequired
	}
	if engine == nil {
		return nil, ErrEngineRequired
	}

	s := &Service{
		ledger: ledger,
		engine: engine,
		logger: slog.Default().With("component", "chat"),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Ask answers one message inside a session. The inbound question is
// persisted before the engine runs, so a failed generation still leaves
// the message in the ledger; the answer row exists only for completed
// invocations. Fallback answers are persisted like any other, and a
// query log row records the stage timings.
func (s *Service) Ask(ctx context.Context, req AskRequest) (*AskResponse, error) {
	if req.Question == "" {
		return nil, core.ErrEmptyQuestion
	}

	store, err := s.ledger.GetStoreByModule(ctx, req.ModuleID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, &core.NotReadyError{ModuleID: req.ModuleID}
	}
	if err != nil {
		return nil, err
	}

	session, err := s.resolveSession(ctx, req, store)
	if err != nil {
		return nil, err
	}

	history, err := s.ledger.RecentExchanges(ctx, session.SessionID, query.DefaultHistoryTurns)
	if err != nil {
		return nil, err
	}

	question := &core.Question{
		VectorStoreID: store.ID,
		SessionID:     session.SessionID,
		Text:          req.Question,
		CreatedBy:     req.UserID,
	}
	if err := s.ledger.CreateQuestion(ctx, question); err != nil {
		return nil, err
	}

	started := time.Now()
	monitor := &query.TimingMonitor{}
	result, err := s.engine.Ask(ctx, req.ModuleID, req.Question, history, monitor)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(started)

	answer := &core.Answer{
		QuestionID:   question.ID,
		Text:         result.Answer,
		TimeRequired: elapsed.Seconds(),
		CreatedBy:    "assistant",
	}
	if err := s.ledger.CreateAnswer(ctx, answer); err != nil {
		return nil, err
	}

	// The query log is best-effort observability; a failed write never
	// fails the message.
	logRow := &core.QueryLog{
		UserID:           req.UserID,
		ModuleID:         req.ModuleID,
		QueryText:        req.Question,
		QueryHash:        core.HashID(req.Question),
		Response:         result.Answer,
		RetrievalTimeMs:  monitor.RetrievalTime().Milliseconds(),
		GenerationTimeMs: monitor.GenerationTime().Milliseconds(),
		TotalTimeMs:      elapsed.Milliseconds(),
	}
	if err := s.ledger.CreateQueryLog(ctx, logRow); err != nil {
		s.logger.Warn("failed to write query log", "module_id", req.ModuleID, "err", err)
	}

	return &AskResponse{
		Question:       req.Question,
		Answer:         result.Answer,
		AnswerID:       answer.ID,
		SessionKey:     session.SessionID,
		ProcessingTime: elapsed.Seconds(),
		Fallback:       result.Fallback,
		Sources:        result.Sources,
	}, nil
}

// Rate records feedback for an answer. Only the first rating per
// (answer, user) pair is kept; later attempts return ErrAlreadyRated.
func (s *Service) Rate(ctx context.Context, req RateRequest) (*core.Rating, error) {
	rating := &core.Rating{
		AnswerID:     req.AnswerID,
		Score:        req.Score,
		FeedbackText: req.Feedback,
		CreatedBy:    req.UserID,
	}
	if err := core.ValidateRating(rating); err != nil {
		return nil, err
	}

	if _, err := s.ledger.GetAnswer(ctx, req.AnswerID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrAnswerNotFound
		}
		return nil, err
	}

	if err := s.ledger.CreateRating(ctx, rating); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, ErrAlreadyRated
		}
		return nil, err
	}

	return rating, nil
}

// resolveSession returns the caller's existing session or derives a new
// one. A session key that does not exist, or that belongs to another
// user or module, silently starts a fresh session instead of leaking
// someone else's history.
func (s *Service) resolveSession(ctx context.Context, req AskRequest, store *core.VectorStore) (*core.ChatSession, error) {
	if req.SessionKey != "" {
		session, err := s.ledger.GetSessionByKey(ctx, req.SessionKey)
		if err == nil && session.UserID == req.UserID && session.VectorStoreID == store.ID {
			return session, nil
		}
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
	}

	title := req.Title
	if title == "" {
		title = DefaultSessionTitle
	}

	session := &core.ChatSession{
		SessionID:     core.HashID(req.UserID, req.ModuleID, strconv.FormatInt(time.Now().UnixNano(), 10)),
		Title:         title,
		UserID:        req.UserID,
		VectorStoreID: store.ID,
	}
	if err := s.ledger.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	s.logger.Debug("created chat session", "session_key", session.SessionID, "module_id", req.ModuleID)
	return session, nil
}
