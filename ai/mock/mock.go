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


// Package mock provides test doubles for the ai package interfaces.
// Each method delegates to an optional function field; when the field
// is nil a deterministic default is used, so tests only override what
// they care about.
package mock

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/poiesic/docqa/ai"
)

// DefaultDimensions is the vector size produced by the deterministic
// embedder when no override is installed.
const DefaultDimensions = 16

// Embedder is a test double for ai.Embedder.
type Embedder struct {
	EmbedTextFunc  func(ctx context.Context, text string) ([]float32, error)
	EmbedTextsFunc func(ctx context.Context, texts []string) ([][]float32, error)

	// Calls records every text passed through either method.
	Calls []string
}

var _ ai.Embedder = (*Embedder)(nil)

func (m *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	m.Calls = append(m.Calls, text)
	if m.EmbedTextFunc != nil {
		return m.EmbedTextFunc(ctx, text)
	}
	return DeterministicVector(text, DefaultDimensions), nil
}

func (m *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	m.Calls = append(m.Calls, texts...)
	if m.EmbedTextsFunc != nil {
		return m.EmbedTextsFunc(ctx, texts)
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = DeterministicVector(text, DefaultDimensions)
	}
	return vectors, nil
}

// ChatModel is a test double for ai.ChatModel.
type ChatModel struct {
	CompleteFunc      func(ctx context.Context, prompt string) (string, error)
	DescribeImageFunc func(ctx context.Context, prompt, imageBase64, mimeType string) (string, error)

	// Prompts records every prompt passed through either method.
	Prompts []string
}

var _ ai.ChatModel = (*ChatModel)(nil)

func (m *ChatModel) Complete(ctx context.Context, prompt string) (string, error) {
	m.Prompts = append(m.Prompts, prompt)
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, prompt)
	}
	return "mock completion", nil
}

func (m *ChatModel) DescribeImage(ctx context.Context, prompt, imageBase64, mimeType string) (string, error) {
	m.Prompts = append(m.Prompts, prompt)
	if m.DescribeImageFunc != nil {
		return m.DescribeImageFunc(ctx, prompt, imageBase64, mimeType)
	}
	return "mock image description", nil
}

// Provider combines the embedder and chat model doubles behind
// ai.Provider.
type Provider struct {
	Embedder  Embedder
	ChatModel ChatModel
	CloseFunc func() error
}

var _ ai.Provider = (*Provider)(nil)

func (m *Provider) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return m.Embedder.EmbedText(ctx, text)
}

func (m *Provider) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	return m.Embedder.EmbedTexts(ctx, texts)
}

func (m *Provider) Complete(ctx context.Context, prompt string) (string, error) {
	return m.ChatModel.Complete(ctx, prompt)
}

func (m *Provider) DescribeImage(ctx context.Context, prompt, imageBase64, mimeType string) (string, error) {
	return m.ChatModel.DescribeImage(ctx, prompt, imageBase64, mimeType)
}

func (m *Provider) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// DeterministicVector produces a unit-length vector derived from the
// FNV hash of the input. Equal inputs always embed identically, which
// makes similarity assertions in tests stable.
func DeterministicVector(text string, dims int) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vector := make([]float32, dims)
	var norm float64
	for i := range vector {
		seed = seed*6364136223846793005 + 1442695040888963407
		v := float64(int64(seed>>11)) / float64(1<<52)
		vector[i] = float32(v)
		norm += v * v
	}

	norm = math.Sqrt(norm)
	if norm == 0 {
		return vector
	}
	for i := range vector {
		vector[i] = float32(float64(vector[i]) / norm)
	}
	return vector
}
