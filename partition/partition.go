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


package partition

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/poiesic/docqa/core"
	"github.com/tmc/langchaingo/textsplitter"
)

// Defaults for the layout thresholds. Text fragments shorter than the
// combine threshold merge into the preceding chunk; a chunk is closed
// once it passes the soft limit, and never grows past the hard maximum.
const (
	DefaultMaxCharacters          = 1000
	DefaultCombineTextUnderNChars = 200
	DefaultNewAfterNChars         = 800
	DefaultChunkOverlap           = 100
)

// Partitioner splits documents into chunks using configurable layout
// thresholds.
type Partitioner struct {
	maxCharacters          int
	combineTextUnderNChars int
	newAfterNChars         int
	chunkOverlap           int
	logger                 *slog.Logger
}

// Option configures a Partitioner.
type Option func(*Partitioner) error

// WithMaxCharacters sets the hard upper bound on chunk length.
func WithMaxCharacters(n int) Option {
	return func(p *Partitioner) error {
		if n < 1 {
			return fmt.Errorf("max characters must be positive, got %d", n)
		}
		p.maxCharacters = n
		return nil
	}
}

// WithCombineTextUnderNChars sets the threshold under which a fragment
// merges into the current chunk instead of starting a new one.
func WithCombineTextUnderNChars(n int) Option {
	return func(p *Partitioner) error {
		if n < 0 {
			return fmt.Errorf("combine threshold must be non-negative, got %d", n)
		}
		p.combineTextUnderNChars = n
		return nil
	}
}

// WithNewAfterNChars sets the soft limit after which the current chunk
// is closed before the next fragment.
func WithNewAfterNChars(n int) Option {
	return func(p *Partitioner) error {
		if n < 1 {
			return fmt.Errorf("soft limit must be positive, got %d", n)
		}
		p.newAfterNChars = n
		return nil
	}
}

// WithChunkOverlap sets the overlap used when an oversized fragment has
// to be split.
func WithChunkOverlap(n int) Option {
	return func(p *Partitioner) error {
		if n < 0 {
			return fmt.Errorf("chunk overlap must be non-negative, got %d", n)
		}
		p.chunkOverlap = n
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Partitioner) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// New creates a Partitioner with the default thresholds, then applies
// the provided options.
func New(opts ...Option) (*Partitioner, error) {
	p := &Partitioner{
		maxCharacters:          DefaultMaxCharacters,
		combineTextUnderNChars: DefaultCombineTextUnderNChars,
		newAfterNChars:         DefaultNewAfterNChars,
		chunkOverlap:           DefaultChunkOverlap,
		logger:                 slog.Default().With("component", "partitioner"),
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}

	if p.newAfterNChars > p.maxCharacters {
		p.newAfterNChars = p.maxCharacters
	}

	return p, nil
}

// Partition reads the file at path and splits it into ordered chunks.
// The document type is determined by extension. Corrupt or unsupported
// input returns a core.ParseError; such failures are fatal for the
// document and are never retried.
func (p *Partitioner) Partition(path string) ([]core.Chunk, error) {
	ext := strings.ToLower(filepath.Ext(path))

	var (
		chunks []core.Chunk
		err    error
	)

	switch ext {
	case ".pdf":
		chunks, err = p.partitionPDF(path)
	case ".txt", ".text", ".md", ".markdown":
		chunks, err = p.partitionText(path)
	case ".png":
		chunks, err = p.partitionImage(path, "image/png")
	case ".jpg", ".jpeg":
		chunks, err = p.partitionImage(path, "image/jpeg")
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	if err != nil {
		return nil, &core.ParseError{Path: path, Err: err}
	}

	if len(chunks) == 0 {
		return nil, &core.ParseError{Path: path, Err: ErrEmptyDocument}
	}

	p.logger.Debug("partitioned document", "path", path, "chunks", len(chunks))
	return chunks, nil
}

func (p *Partitioner) partitionText(path string) ([]core.Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	fragments := strings.Split(string(data), "\n\n")
	return p.combine(fragments), nil
}

func (p *Partitioner) partitionImage(path, mimeType string) ([]core.Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrEmptyDocument
	}

	payload := base64.StdEncoding.EncodeToString(data)
	return []core.Chunk{core.ImageChunk(payload, mimeType)}, nil
}

// combine merges fragments into chunks following the layout thresholds.
// Fragment order is preserved.
func (p *Partitioner) combine(fragments []string) []core.Chunk {
	var chunks []core.Chunk
	var current strings.Builder

	flush := func() {
		text := strings.TrimSpace(current.String())
		if text != "" {
			chunks = append(chunks, core.TextChunk(text))
		}
		current.Reset()
	}

	for _, fragment := range fragments {
		fragment = strings.TrimSpace(fragment)
		if fragment == "" {
			continue
		}

		for _, part := range p.splitOversized(fragment) {
			if current.Len() > 0 {
				wouldOverflow := current.Len()+len(part)+2 > p.maxCharacters
				pastSoftLimit := current.Len() >= p.newAfterNChars
				shortEnoughToMerge := len(part) < p.combineTextUnderNChars && !wouldOverflow

				if wouldOverflow || (pastSoftLimit && !shortEnoughToMerge) {
					flush()
				}
			}

			if current.Len() > 0 {
				current.WriteString("\n\n")
			}
			current.WriteString(part)
		}
	}

	flush()
	return chunks
}

// splitOversized breaks a fragment longer than the hard maximum into
// recursive-character pieces with overlap. Fragments within the limit
// pass through unchanged.
func (p *Partitioner) splitOversized(fragment string) []string {
	if len(fragment) <= p.maxCharacters {
		return []string{fragment}
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(p.maxCharacters),
		textsplitter.WithChunkOverlap(p.chunkOverlap),
	)

	parts, err := splitter.SplitText(fragment)
	if err != nil {
		p.logger.Warn("failed to split oversized fragment, keeping it whole", "err", err)
		return []string{fragment}
	}
	return parts
}
