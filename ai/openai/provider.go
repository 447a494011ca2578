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


package openai

import (
	"context"

	"github.com/poiesic/docqa/ai"
)

// Provider bundles an embedder and a chat model built from one Config.
type Provider struct {
	embedder  *Embedder
	chatModel *ChatModel
}

var _ ai.Provider = (*Provider)(nil)

// NewProvider builds both services from the given options applied over
// ai.DefaultConfig.
func NewProvider(opts ...ai.ConfigOption) (*Provider, error) {
	config := ai.NewConfig(opts...)
	config.Normalize()

	embedder, err := newEmbedder(config)
	if err != nil {
		return nil, err
	}

	chatModel, err := newChatModel(config)
	if err != nil {
		return nil, err
	}

	return &Provider{
		embedder:  embedder,
		chatModel: chatModel,
	}, nil
}

func (p *Provider) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return p.embedder.EmbedText(ctx, text)
}

func (p *Provider) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	return p.embedder.EmbedTexts(ctx, texts)
}

func (p *Provider) Complete(ctx context.Context, prompt string) (string, error) {
	return p.chatModel.Complete(ctx, prompt)
}

func (p *Provider) DescribeImage(ctx context.Context, prompt, imageBase64, mimeType string) (string, error) {
	return p.chatModel.DescribeImage(ctx, prompt, imageBase64, mimeType)
}

// Close releases provider resources. The HTTP-backed clients hold no
// long-lived connections so this is a no-op kept for interface symmetry.
func (p *Provider) Close() error {
	return nil
}
