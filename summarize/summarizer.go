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


package summarize

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/docqa/ai"
	"github.com/poiesic/docqa/core"
)

const (
	// DefaultBatchSize is the number of text chunks per completion call.
	DefaultBatchSize = 20

	// DefaultMaxRetries bounds attempts per batch before the run gives
	// up on it.
	DefaultMaxRetries = 4

	// DefaultRetryBaseDelay is the initial backoff delay.
	DefaultRetryBaseDelay = 2 * time.Second

	// DefaultInterBatchDelay is the pause after every completed batch.
	// Documents across concurrent runs share one rate-limited endpoint.
	DefaultInterBatchDelay = time.Second

	// batchSeparator delimits per-chunk summaries in a batched response.
	batchSeparator = "---"

	// imagePlaceholder stands in for an image whose description call
	// failed. A placeholder keeps the chunk retrievable by position
	// rather than aborting the whole batch.
	imagePlaceholder = "Image content (description unavailable)"
)

const textBatchPrompt = `You are an assistant tasked with summarizing text for retrieval.
These summaries will be embedded and used to retrieve the raw text elements.
Give a concise summary of each of the following text chunks, well optimized for retrieval.
Return exactly one summary per chunk, in the same order, separated by a line containing only ` + batchSeparator + `.

`

const imagePrompt = `Describe the image in detail. The description will be embedded and used to retrieve the original image.
Be specific about graphs, such as bar plots, and include any visible text.`

// Summary pairs a source chunk with the text that represents it in the
// vector index.
type Summary struct {
	Chunk core.Chunk
	Text  string
}

// Summarizer converts chunks into indexable summaries.
type Summarizer struct {
	chatModel       ai.ChatModel
	batchSize       int
	maxRetries      int
	retryBaseDelay  time.Duration
	interBatchDelay time.Duration
	passthrough     bool
	logger          *slog.Logger
}

// Option configures a Summarizer.
type Option func(*Summarizer) error

// WithBatchSize sets the number of text chunks sent per completion call.
func WithBatchSize(size int) Option {
	return func(s *Summarizer) error {
		if size < 1 {
			return fmt.Errorf("batch size must be positive, got %d", size)
		}
		s.batchSize = size
		return nil
	}
}

// WithMaxRetries sets the retry budget per batch.
func WithMaxRetries(n int) Option {
	return func(s *Summarizer) error {
		if n < 1 {
			return ErrInvalidMaxAttempts
		}
		s.maxRetries = n
		return nil
	}
}

// WithRetryBaseDelay sets the initial backoff delay.
func WithRetryBaseDelay(d time.Duration) Option {
	return func(s *Summarizer) error {
		s.retryBaseDelay = d
		return nil
	}
}

// WithInterBatchDelay sets the pause after each batch call.
func WithInterBatchDelay(d time.Duration) Option {
	return func(s *Summarizer) error {
		s.interBatchDelay = d
		return nil
	}
}

// WithPassthrough skips the model for text chunks and indexes the raw
// text directly. Useful for local setups without a capable model.
func WithPassthrough(enabled bool) Option {
	return func(s *Summarizer) error {
		s.passthrough = enabled
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Summarizer) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// New creates a Summarizer. The chat model may only be nil when
// passthrough mode is enabled.
func New(chatModel ai.ChatModel, opts ...Option) (*Summarizer, error) {
	s := &Summarizer{
		chatModel:       chatModel,
		batchSize:       DefaultBatchSize,
		maxRetries:      DefaultMaxRetries,
		retryBaseDelay:  DefaultRetryBaseDelay,
		interBatchDelay: DefaultInterBatchDelay,
		logger:          slog.Default().With("component", "summarizer"),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if s.chatModel == nil && !s.passthrough {
		return nil, ErrChatModelRequired
	}

	return s, nil
}

// Summarize processes chunks in document order. Text chunks accumulate
// into batches; an image chunk flushes the pending batch first so the
// output order matches the input order, then gets its own description
// call. A failed image description degrades to a placeholder and never
// aborts the run; a text batch that exhausts its retries returns
// core.SummarizationError.
func (s *Summarizer) Summarize(ctx context.Context, chunks []core.Chunk) ([]Summary, error) {
	summaries := make([]Summary, 0, len(chunks))
	var pending []core.Chunk

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		batch, err := s.summarizeTextBatch(ctx, pending)
		if err != nil {
			return err
		}
		summaries = append(summaries, batch...)
		pending = pending[:0]
		return nil
	}

	for _, chunk := range chunks {
		switch chunk.Kind {
		case core.ChunkImage:
			if err := flush(); err != nil {
				return nil, err
			}
			summaries = append(summaries, Summary{
				Chunk: chunk,
				Text:  s.describeImage(ctx, chunk),
			})
		default:
			pending = append(pending, chunk)
			if len(pending) >= s.batchSize {
				if err := flush(); err != nil {
					return nil, err
				}
			}
		}
	}

	if err := flush(); err != nil {
		return nil, err
	}

	return summaries, nil
}

func (s *Summarizer) summarizeTextBatch(ctx context.Context, batch []core.Chunk) ([]Summary, error) {
	if s.passthrough {
		summaries := make([]Summary, len(batch))
		for i, chunk := range batch {
			summaries[i] = Summary{Chunk: chunk, Text: chunk.Text}
		}
		return summaries, nil
	}

	prompt := s.buildBatchPrompt(batch)

	var parts []string
	err := retryWithBackoff(ctx, func() error {
		response, err := s.chatModel.Complete(ctx, prompt)
		if err != nil {
			return err
		}

		parts = splitBatchResponse(response)
		if len(parts) != len(batch) {
			return fmt.Errorf("%w: expected %d, got %d", ErrBatchCountMismatch, len(batch), len(parts))
		}
		return nil
	}, s.maxRetries, s.retryBaseDelay)

	if err != nil {
		return nil, &core.SummarizationError{Attempts: s.maxRetries, Err: err}
	}

	summaries := make([]Summary, len(batch))
	for i, chunk := range batch {
		summaries[i] = Summary{Chunk: chunk, Text: parts[i]}
	}

	s.pause(ctx)
	return summaries, nil
}

func (s *Summarizer) describeImage(ctx context.Context, chunk core.Chunk) string {
	if s.passthrough || s.chatModel == nil {
		return imagePlaceholder
	}

	description, err := s.chatModel.DescribeImage(ctx, imagePrompt, chunk.ImageBase64, chunk.ImageMIME)
	if err != nil || strings.TrimSpace(description) == "" {
		s.logger.Warn("image description failed, using placeholder", "err", err)
		description = imagePlaceholder
	}

	s.pause(ctx)
	return description
}

// pause applies the inter-batch delay, cut short by cancellation.
func (s *Summarizer) pause(ctx context.Context) {
	if s.interBatchDelay <= 0 {
		return
	}
	timer := time.NewTimer(s.interBatchDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (s *Summarizer) buildBatchPrompt(batch []core.Chunk) string {
	var b strings.Builder
	b.WriteString(textBatchPrompt)
	for i, chunk := range batch {
		if i > 0 {
			b.WriteString("\n" + batchSeparator + "\n")
		}
		b.WriteString(chunk.Text)
	}
	return b.String()
}

// splitBatchResponse splits a batched completion into per-chunk
// summaries on separator lines. Blank sections are dropped.
func splitBatchResponse(response string) []string {
	var parts []string
	for _, section := range strings.Split(response, "\n"+batchSeparator) {
		section = strings.TrimPrefix(section, "\n")
		section = strings.TrimSpace(section)
		if section != "" {
			parts = append(parts, section)
		}
	}
	return parts
}
