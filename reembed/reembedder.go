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


package reembed

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/poiesic/docqa/ai"
	"github.com/poiesic/docqa/vecstore"
)

// Config holds configuration for a reembedding run.
type Config struct {
	// BatchSize is the number of rows embedded per provider call
	BatchSize int

	// ReportInterval is how often to report progress (number of rows)
	ReportInterval int

	// MaxRetries is the maximum number of retry attempts for failed
	// embedding calls
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      100,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Reembedder rewrites every stored vector in one collection using the
// configured embedder.
type Reembedder struct {
	collection *vecstore.Collection
	embedder   ai.Embedder
	config     *Config
	progress   io.Writer
}

// NewReembedder creates a reembedder over one collection.
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(collection *vecstore.Collection, embedder ai.Embedder, config *Config, progress io.Writer) (*Reembedder, error) {
	if collection == nil {
		return nil, ErrCollectionRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}

	return &Reembedder{
		collection: collection,
		embedder:   embedder,
		config:     config,
		progress:   progress,
	}, nil
}

// Run reembeds every row. Rows are paged in insertion order; each page
// is embedded in one provider call and written back in one transaction,
// so a failed run leaves a mix of old and new vectors but never a
// half-written row.
func (r *Reembedder) Run(ctx context.Context) error {
	total, err := r.collection.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count rows: %w", err)
	}
	if total == 0 {
		fmt.Fprintf(r.progress, "Collection is empty (0 rows)\n")
		return nil
	}

	fmt.Fprintf(r.progress, "Starting reembedding of %d rows (batch size: %d)\n",
		total, r.config.BatchSize)

	tracker := NewProgressTracker(r.progress, total, r.config.ReportInterval)
	tracker.Start()

	processed := 0
	for offset := 0; ; offset += r.config.BatchSize {
		entries, err := r.collection.Entries(ctx, offset, r.config.BatchSize)
		if err != nil {
			return fmt.Errorf("failed to page rows at offset %d: %w", offset, err)
		}
		if len(entries) == 0 {
			break
		}

		if err := r.processBatch(ctx, entries); err != nil {
			return err
		}

		processed += len(entries)
		tracker.Update(processed)
	}

	tracker.Finish()

	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Reembedding complete. Processed %d rows in %v (%.1f rows/sec)\n",
		processed, elapsed.Round(time.Second), float64(processed)/elapsed.Seconds())

	return nil
}

func (r *Reembedder) processBatch(ctx context.Context, entries []vecstore.Entry) error {
	texts := make([]string, len(entries))
	ids := make([]string, len(entries))
	for i, entry := range entries {
		texts[i] = entry.Content
		ids[i] = entry.ID
	}

	var embeddings [][]float32
	err := RetryWithBackoff(ctx, func() error {
		var err error
		embeddings, err = r.embedder.EmbedTexts(ctx, texts)
		return err
	}, r.config.MaxRetries, r.config.RetryDelay)
	if err != nil {
		return fmt.Errorf("failed to generate embeddings after %d attempts: %w", r.config.MaxRetries, err)
	}
	if len(embeddings) != len(entries) {
		return fmt.Errorf("embedding count mismatch: expected %d, got %d", len(entries), len(embeddings))
	}

	if err := r.collection.SetEmbeddings(ctx, ids, embeddings); err != nil {
		return fmt.Errorf("failed to update vectors: %w", err)
	}
	return nil
}
