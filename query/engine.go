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


package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/docqa/ai"
	"github.com/poiesic/docqa/core"
	"github.com/poiesic/docqa/storage"
	"github.com/poiesic/docqa/vecstore"
)

const (
	// DefaultTopK is the number of chunks retrieved per question.
	DefaultTopK = 4

	// DefaultScoreThreshold drops hits below this cosine similarity.
	DefaultScoreThreshold = 0.2

	// DefaultHistoryTurns bounds how many prior exchanges feed the
	// retrieval query and the prompt.
	DefaultHistoryTurns = 5

	// FallbackAnswer is returned verbatim when retrieval finds nothing
	// relevant. No generation call is made in that case.
	FallbackAnswer = "I could not find relevant information in the course materials to answer this question."
)

const answerPrompt = `You are an assistant answering questions about course materials.
Answer the question using only the provided context. If the context does not contain the answer, say that the materials do not cover it.

Context:
%s

%sQuestion: %s
Answer:`

// Source is one retrieved chunk backing an answer.
type Source struct {
	Content  string
	Metadata map[string]string
	Score    float32
}

// Result is the outcome of one Ask call.
type Result struct {
	Answer   string
	Sources  []Source
	Fallback bool // true when retrieval came back empty
}

// Engine answers questions against ready module stores.
type Engine struct {
	ledger         storage.StoreRepository
	cache          *vecstore.Cache
	chatModel      ai.ChatModel
	chunkStore     storage.ChunkStore
	topK           int
	scoreThreshold float32
	historyTurns   int
	logger         *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine) error

// WithTopK sets the number of chunks retrieved per question.
func WithTopK(k int) Option {
	return func(e *Engine) error {
		if k < 1 {
			return fmt.Errorf("top-k must be positive, got %d", k)
		}
		e.topK = k
		return nil
	}
}

// WithScoreThreshold sets the minimum similarity for retrieved chunks.
func WithScoreThreshold(threshold float32) Option {
	return func(e *Engine) error {
		e.scoreThreshold = threshold
		return nil
	}
}

// WithHistoryTurns bounds the prior exchanges considered per question.
func WithHistoryTurns(n int) Option {
	return func(e *Engine) error {
		if n < 0 {
			return fmt.Errorf("history turns must be non-negative, got %d", n)
		}
		e.historyTurns = n
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// NewEngine creates a question answering engine.
func NewEngine(
	ledger storage.StoreRepository,
	cache *vecstore.Cache,
	chatModel ai.ChatModel,
	chunkStore storage.ChunkStore,
	opts ...Option,
) (*Engine, error) {
	if ledger == nil {
		return nil, ErrLedgerRequired
	}
	if cache == nil {
		return nil, ErrCacheRequired
	}
	if chatModel == nil {
		return nil, ErrChatModelRequired
	}
	if chunkStore == nil {
		return nil, ErrChunkStoreRequired
	}

	e := &Engine{
		ledger:         ledger,
		cache:          cache,
		chatModel:      chatModel,
		chunkStore:     chunkStore,
		topK:           DefaultTopK,
		scoreThreshold: DefaultScoreThreshold,
		historyTurns:   DefaultHistoryTurns,
		logger:         slog.Default().With("component", "query-engine"),
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	return e, nil
}

// Ask answers one question against a module's store. The store must be
// ready; any other status returns core.NotReadyError without touching
// retrieval. History is given most recent first and consumed
// chronologically.
func (e *Engine) Ask(ctx context.Context, moduleID, question string, history []storage.Exchange, monitor Monitor) (*Result, error) {
	if strings.TrimSpace(question) == "" {
		return nil, core.ErrEmptyQuestion
	}
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	monitor.Start(question)

	store, err := e.ledger.GetStoreByModule(ctx, moduleID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, &core.NotReadyError{ModuleID: moduleID}
	}
	if err != nil {
		return nil, err
	}
	if store.Status != core.StoreStatusReady {
		return nil, &core.NotReadyError{ModuleID: moduleID, Status: store.Status}
	}

	if len(history) > e.historyTurns {
		history = history[:e.historyTurns]
	}

	collection, err := e.cache.Get(store.CollectionName)
	if err != nil {
		return nil, err
	}

	hits, err := collection.Search(ctx, e.retrievalQuery(question, history), e.topK, e.scoreThreshold)
	if err != nil {
		return nil, err
	}
	monitor.AfterRetrieval(hits)

	if len(hits) == 0 {
		result := &Result{Answer: FallbackAnswer, Fallback: true}
		monitor.Finish(result)
		e.logger.Debug("retrieval empty, returning fallback", "module_id", moduleID)
		return result, nil
	}

	sources := e.resolveSources(ctx, store.ModuleID, hits)

	answer, err := e.chatModel.Complete(ctx, e.buildPrompt(question, history, sources))
	if err != nil {
		return nil, err
	}
	monitor.AfterGeneration(answer)

	result := &Result{Answer: answer, Sources: sources}
	monitor.Finish(result)
	return result, nil
}

// retrievalQuery widens the search query with the session's prior
// questions so follow-ups retrieve against their full context.
func (e *Engine) retrievalQuery(question string, history []storage.Exchange) string {
	if len(history) == 0 {
		return question
	}

	var b strings.Builder
	for i := len(history) - 1; i >= 0; i-- {
		b.WriteString(history[i].Question.Text)
		b.WriteString(" ")
	}
	b.WriteString(question)
	return b.String()
}

// resolveSources swaps each summary hit for its raw chunk payload when
// available. Text chunks contribute their original body; image chunks
// keep the indexed description, since the raw payload is the image
// itself.
func (e *Engine) resolveSources(ctx context.Context, moduleID string, hits []vecstore.ScoredDocument) []Source {
	sources := make([]Source, len(hits))
	for i, hit := range hits {
		content := hit.Content

		if chunkID := hit.Metadata["chunk_id"]; chunkID != "" {
			raw, err := e.chunkStore.GetChunk(ctx, moduleID, chunkID)
			if err == nil && raw.Kind == core.ChunkText {
				content = raw.Content
			}
		}

		sources[i] = Source{Content: content, Metadata: hit.Metadata, Score: hit.Score}
	}
	return sources
}

func (e *Engine) buildPrompt(question string, history []storage.Exchange, sources []Source) string {
	contexts := make([]string, len(sources))
	for i, source := range sources {
		contexts[i] = source.Content
	}

	historyBlock := ""
	if len(history) > 0 {
		var b strings.Builder
		b.WriteString("Chat history:\n")
		for i := len(history) - 1; i >= 0; i-- {
			b.WriteString("User: ")
			b.WriteString(history[i].Question.Text)
			b.WriteString("\nAssistant: ")
			b.WriteString(history[i].Answer.Text)
			b.WriteString("\n")
		}
		b.WriteString("\n")
		historyBlock = b.String()
	}

	return fmt.Sprintf(answerPrompt, strings.Join(contexts, "\n\n"), historyBlock, question)
}
