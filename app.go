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


package docqa

import (
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/poiesic/docqa/ai"
	"github.com/poiesic/docqa/ai/openai"
	"github.com/poiesic/docqa/api"
	"github.com/poiesic/docqa/chat"
	"github.com/poiesic/docqa/ingest"
	"github.com/poiesic/docqa/partition"
	"github.com/poiesic/docqa/query"
	"github.com/poiesic/docqa/storage"
	"github.com/poiesic/docqa/storage/badger"
	"github.com/poiesic/docqa/storage/sqlite"
	"github.com/poiesic/docqa/summarize"
	"github.com/poiesic/docqa/vecstore"
)

// App wires every subsystem behind one handle: the relational ledger,
// the raw-chunk docstore, the vector collections, the AI provider, the
// ingestion runner and the chat service.
type App struct {
	ledger     storage.Ledger
	backend    *badger.Backend
	chunkStore storage.ChunkStore
	cache      *vecstore.Cache
	provider   ai.Provider
	runner     *ingest.Runner
	engine     *query.Engine
	chat       *chat.Service
	logger     *slog.Logger
}

// AppOption configures an App.
type AppOption func(*appOptions)

type appOptions struct {
	aiOptions []ai.ConfigOption
	provider  ai.Provider
	poolSize  int
	logger    *slog.Logger
}

// WithAIOptions forwards configuration to the OpenAI-compatible
// provider built by NewApp.
func WithAIOptions(opts ...ai.ConfigOption) AppOption {
	return func(o *appOptions) {
		o.aiOptions = append(o.aiOptions, opts...)
	}
}

// WithProvider injects a prebuilt AI provider instead of constructing
// one. The App takes ownership and closes it.
func WithProvider(provider ai.Provider) AppOption {
	return func(o *appOptions) {
		o.provider = provider
	}
}

// WithPoolSize sets the ingestion worker pool size.
func WithPoolSize(size int) AppOption {
	return func(o *appOptions) {
		o.poolSize = size
	}
}

// WithLogger sets the root logger; subsystems derive component loggers
// from it.
func WithLogger(logger *slog.Logger) AppOption {
	return func(o *appOptions) {
		o.logger = logger
	}
}

// NewApp opens every store under dataDir and wires the pipeline. The
// ledger lives in dataDir itself, raw chunks under dataDir/chunks and
// vector collections under dataDir/collections.
func NewApp(dataDir string, opts ...AppOption) (*App, error) {
	options := &appOptions{}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	ledger, err := sqlite.Open(dataDir)
	if err != nil {
		return nil, err
	}

	backend, err := badger.OpenBackend(filepath.Join(dataDir, "chunks"), false)
	if err != nil {
		ledger.Close()
		return nil, err
	}

	chunkStore, err := badger.NewChunkStore(backend)
	if err != nil {
		backend.Close()
		ledger.Close()
		return nil, err
	}

	provider := options.provider
	if provider == nil {
		provider, err = openai.NewProvider(options.aiOptions...)
		if err != nil {
			backend.Close()
			ledger.Close()
			return nil, err
		}
	}

	cache, err := vecstore.NewCache(filepath.Join(dataDir, "collections"), provider,
		vecstore.WithCacheLogger(options.logger.With("component", "vecstore")))
	if err != nil {
		provider.Close()
		backend.Close()
		ledger.Close()
		return nil, err
	}

	app := &App{
		ledger:     ledger,
		backend:    backend,
		chunkStore: chunkStore,
		cache:      cache,
		provider:   provider,
		logger:     options.logger,
	}

	if err := app.wirePipeline(options); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) wirePipeline(options *appOptions) error {
	partitioner, err := partition.New(
		partition.WithLogger(a.logger.With("component", "partition")))
	if err != nil {
		return err
	}

	summarizer, err := summarize.New(a.provider,
		summarize.WithLogger(a.logger.With("component", "summarize")))
	if err != nil {
		return err
	}

	orchestrator, err := ingest.NewOrchestrator(a.ledger, a.chunkStore,
		partitioner, summarizer, a.cache,
		a.logger.With("component", "ingest"))
	if err != nil {
		return err
	}

	var runnerOpts []ingest.RunnerOption
	if options.poolSize > 0 {
		runnerOpts = append(runnerOpts, ingest.WithPoolSize(options.poolSize))
	}
	runnerOpts = append(runnerOpts,
		ingest.WithRunnerLogger(a.logger.With("component", "runner")))
	a.runner, err = ingest.NewRunner(orchestrator, runnerOpts...)
	if err != nil {
		return err
	}

	a.engine, err = query.NewEngine(a.ledger, a.cache, a.provider, a.chunkStore,
		query.WithLogger(a.logger.With("component", "query")))
	if err != nil {
		return err
	}

	a.chat, err = chat.NewService(a.ledger, a.engine,
		chat.WithLogger(a.logger.With("component", "chat")))
	return err
}

// Close releases every subsystem. The runner goes first so no worker
// touches a store mid-shutdown.
func (a *App) Close() error {
	if a.runner != nil {
		a.runner.Close()
	}
	if err := a.provider.Close(); err != nil {
		a.logger.Error("error closing AI provider", "err", err)
	}
	if err := a.cache.Close(); err != nil {
		a.logger.Error("error closing collection cache", "err", err)
	}
	// Closing the backend closes the chunk store with it.
	if err := a.backend.Close(); err != nil {
		a.logger.Error("error closing chunk backend", "err", err)
		return err
	}
	if err := a.ledger.Close(); err != nil {
		a.logger.Error("error closing ledger", "err", err)
		return err
	}
	return nil
}

// Ledger exposes the relational store.
func (a *App) Ledger() storage.Ledger {
	return a.ledger
}

// Runner exposes the ingestion runner.
func (a *App) Runner() *ingest.Runner {
	return a.runner
}

// Chat exposes the chat service.
func (a *App) Chat() *chat.Service {
	return a.chat
}

// Engine exposes the query engine.
func (a *App) Engine() *query.Engine {
	return a.engine
}

// Handler builds the HTTP API over this App.
func (a *App) Handler() http.Handler {
	return api.NewHandler(api.Deps{
		Ledger: a.ledger,
		Runner: a.runner,
		Chat:   a.chat,
		Cache:  a.cache,
		Chunks: a.chunkStore,
		Logger: a.logger.With("component", "api"),
	})
}
