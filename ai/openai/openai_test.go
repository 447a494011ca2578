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
	"testing"
	"time"

	"github.com/poiesic/docqa/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider(t *testing.T) {
	provider, err := NewProvider(
		ai.WithHost("http://localhost:11434"),
		ai.WithAPIToken("test-token"),
	)
	require.NoError(t, err)
	require.NotNil(t, provider)
	defer provider.Close()

	assert.NotNil(t, provider.embedder)
	assert.NotNil(t, provider.chatModel)
}

func TestNewEmbedder_InvalidConfig(t *testing.T) {
	config := ai.NewConfig(ai.WithEmbeddingModel(""))

	_, err := NewEmbedder(config)
	require.Error(t, err)
}

func TestNewChatModel_InvalidConfig(t *testing.T) {
	config := ai.NewConfig(ai.WithChatModel(""))

	_, err := NewChatModel(config)
	require.Error(t, err)
}

func TestBoundedBy(t *testing.T) {
	fn := boundedBy(50 * time.Millisecond)

	ctx, cancel := fn(context.Background())
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(50*time.Millisecond), deadline, 20*time.Millisecond)
}
