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
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/docqa/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// ChatModel implements ai.ChatModel using OpenAI-compatible chat APIs.
type ChatModel struct {
	client      llms.Model
	temperature float64
	timeout     timeoutFunc
	logger      *slog.Logger
}

// timeoutFunc derives a bounded context for one provider call.
type timeoutFunc func(ctx context.Context) (context.Context, context.CancelFunc)

// boundedBy returns a timeoutFunc applying d to each call.
func boundedBy(d time.Duration) timeoutFunc {
	return func(ctx context.Context) (context.Context, context.CancelFunc) {
		return context.WithTimeout(ctx, d)
	}
}

// newChatModel is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newChatModel(config *ai.Config) (*ChatModel, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.ChatHost),
		openai.WithToken(config.APIToken),
		openai.WithModel(config.ChatModel),
	)
	if err != nil {
		return nil, err
	}

	return &ChatModel{
		client:      client,
		temperature: config.Temperature,
		timeout:     boundedBy(config.RequestTimeout),
		logger:      slog.Default().With("component", "openai-chat"),
	}, nil
}

// NewChatModel creates a new completion service using the provided
// configuration.
//
// Returns ai.ChatModel interface to enforce abstraction.
func NewChatModel(config *ai.Config) (ai.ChatModel, error) {
	return newChatModel(config)
}

// Complete sends one prompt and returns the raw answer text.
func (m *ChatModel) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := m.timeout(ctx)
	defer cancel()

	content := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(prompt)},
		},
	}

	return m.generate(ctx, content)
}

// DescribeImage sends a descriptive prompt with an inline base64 image
// payload, mirroring the data-URL image_url convention of
// OpenAI-compatible multimodal endpoints.
func (m *ChatModel) DescribeImage(ctx context.Context, prompt, imageBase64, mimeType string) (string, error) {
	ctx, cancel := m.timeout(ctx)
	defer cancel()

	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	content := []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.TextPart(prompt),
				llms.ImageURLPart("data:" + mimeType + ";base64," + imageBase64),
			},
		},
	}

	return m.generate(ctx, content)
}

func (m *ChatModel) generate(ctx context.Context, content []llms.MessageContent) (string, error) {
	response, err := m.client.GenerateContent(ctx, content, llms.WithTemperature(m.temperature))
	if err != nil {
		m.logger.Error("failed to generate content", "err", err)
		return "", err
	}

	if len(response.Choices) < 1 {
		m.logger.Debug("no choices returned from model")
		return "", errors.New("model returned no choices")
	}

	return strings.TrimSpace(response.Choices[0].Content), nil
}
