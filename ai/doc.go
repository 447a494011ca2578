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


// Package ai provides abstractions for the model services docqa depends on.
//
// The ingestion pipeline and the QA engine never talk to a provider API
// directly; they depend on two capability interfaces:
//
//   - Embedder: text -> vector
//   - ChatModel: prompt -> completion (plus an image-description variant)
//
// Provider aggregates both for convenient initialization.
//
// # Implementation Packages
//
//   - ai/openai: production implementation for OpenAI-compatible APIs
//     (OpenAI, Ollama, LocalAI, vLLM) via langchaingo
//   - ai/mock: test doubles for unit testing without external services
//
// Public constructors in ai/openai return interface types to prevent
// coupling to concrete implementations; mock constructors return
// concrete types so tests can inject behavior and assert call counts.
//
// Configuration is an explicit Config struct handed to constructors. The
// package never reads or mutates process environment variables; wiring
// environment values into a Config is the caller's concern.
package ai
