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


package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/poiesic/docqa"
	"github.com/poiesic/docqa/ai"
	"github.com/poiesic/docqa/ai/openai"
	"github.com/poiesic/docqa/chat"
	"github.com/poiesic/docqa/core"
	"github.com/poiesic/docqa/reembed"
	"github.com/poiesic/docqa/storage/sqlite"
	"github.com/poiesic/docqa/vecstore"
)

func main() {
	// Missing .env is fine; flags and the environment still apply.
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "docqa",
		Usage: "Document question answering over course materials",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API and the ingestion workers",
				Action: serveCommand,
				Flags: append(dataFlags(),
					&cli.StringFlag{
						Name:    "addr",
						Usage:   "HTTP listen address",
						Value:   ":8080",
						EnvVars: []string{"DOCQA_ADDR"},
					},
					&cli.IntFlag{
						Name:  "pool-size",
						Usage: "Number of concurrent ingestion workers (0 = auto)",
					},
				),
			},
			{
				Name:      "ask",
				Usage:     "Ask a one-shot question against an indexed module",
				ArgsUsage: "<question...>",
				Action:    askCommand,
				Flags: append(dataFlags(),
					&cli.StringFlag{
						Name:     "module",
						Aliases:  []string{"m"},
						Usage:    "Module ID to query",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "user",
						Usage: "User ID recorded with the question",
						Value: "cli",
					},
				),
			},
			{
				Name:   "reembed",
				Usage:  "Rewrite a module's stored vectors with a new embedding model",
				Action: reembedCommand,
				Flags: append(dataFlags(),
					&cli.StringFlag{
						Name:     "module",
						Aliases:  []string{"m"},
						Usage:    "Module ID whose collection should be reembedded",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of rows to embed in each provider call",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N rows",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed embedding calls",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
				),
			},
			{
				Name:      "seed",
				Usage:     "Register documents from a directory for a module",
				ArgsUsage: "<dir>",
				Action:    seedCommand,
				Flags: append(dataFlags(),
					&cli.StringFlag{
						Name:     "module",
						Aliases:  []string{"m"},
						Usage:    "Module ID to register the documents under",
						Required: true,
					},
				),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func dataFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "data",
			Aliases: []string{"d"},
			Usage:   "Path to the data directory",
			Value:   "./docqa_data",
			EnvVars: []string{"DOCQA_DATA_DIR"},
		},
		&cli.StringFlag{
			Name:    "ai-host",
			Usage:   "OpenAI-compatible service host URL",
			Value:   "http://localhost:11434",
			EnvVars: []string{"DOCQA_AI_HOST"},
		},
		&cli.StringFlag{
			Name:    "api-token",
			Usage:   "API token for the AI service",
			EnvVars: []string{"DOCQA_API_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "embedding-model",
			Usage:   "Embedding model name",
			EnvVars: []string{"DOCQA_EMBEDDING_MODEL"},
		},
		&cli.StringFlag{
			Name:    "chat-model",
			Usage:   "Chat model name",
			EnvVars: []string{"DOCQA_CHAT_MODEL"},
		},
	}
}

func openApp(c *cli.Context) (*docqa.App, error) {
	aiOpts := []ai.ConfigOption{
		ai.WithHost(c.String("ai-host")),
	}
	if token := c.String("api-token"); token != "" {
		aiOpts = append(aiOpts, ai.WithAPIToken(token))
	}
	if model := c.String("embedding-model"); model != "" {
		aiOpts = append(aiOpts, ai.WithEmbeddingModel(model))
	}
	if model := c.String("chat-model"); model != "" {
		aiOpts = append(aiOpts, ai.WithChatModel(model))
	}

	opts := []docqa.AppOption{docqa.WithAIOptions(aiOpts...)}
	if size := c.Int("pool-size"); size > 0 {
		opts = append(opts, docqa.WithPoolSize(size))
	}

	return docqa.NewApp(c.String("data"), opts...)
}

func serveCommand(c *cli.Context) error {
	app, err := openApp(c)
	if err != nil {
		return fmt.Errorf("failed to open application: %w", err)
	}
	defer app.Close()

	server := &http.Server{
		Addr:              c.String("addr"),
		Handler:           app.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		slog.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func askCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("a question is required")
	}
	question := strings.Join(c.Args().Slice(), " ")

	app, err := openApp(c)
	if err != nil {
		return fmt.Errorf("failed to open application: %w", err)
	}
	defer app.Close()

	resp, err := app.Chat().Ask(context.Background(), chat.AskRequest{
		ModuleID: c.String("module"),
		UserID:   c.String("user"),
		Question: question,
	})
	if err != nil {
		return fmt.Errorf("question failed: %w", err)
	}

	fmt.Println(resp.Answer)
	fmt.Fprintf(os.Stderr, "\nanswered in %.2fs", resp.ProcessingTime)
	if resp.Fallback {
		fmt.Fprint(os.Stderr, " (no relevant material found)")
	}
	fmt.Fprintln(os.Stderr)
	return nil
}

func reembedCommand(c *cli.Context) error {
	ctx := context.Background()
	moduleID := c.String("module")
	if c.String("embedding-model") == "" {
		return fmt.Errorf("embedding-model is required")
	}

	ledger, err := sqlite.Open(c.String("data"))
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer ledger.Close()

	store, err := ledger.GetStoreByModule(ctx, moduleID)
	if err != nil {
		return fmt.Errorf("no vector store for module %s: %w", moduleID, err)
	}

	aiConfig := ai.NewConfig(
		ai.WithHost(c.String("ai-host")),
		ai.WithAPIToken(c.String("api-token")),
		ai.WithEmbeddingModel(c.String("embedding-model")),
	)
	if err := aiConfig.Validate(); err != nil {
		return fmt.Errorf("invalid AI configuration: %w", err)
	}

	embedder, err := openai.NewEmbedder(aiConfig)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}

	collection, err := vecstore.Open(store.CollectionName,
		filepath.Join(c.String("data"), "collections"), embedder)
	if err != nil {
		return fmt.Errorf("failed to open collection: %w", err)
	}
	defer collection.Close()

	config := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
	}
	if config.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if config.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if config.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	reembedder, err := reembed.NewReembedder(collection, embedder, config, os.Stderr)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Module: %s\n", moduleID)
	fmt.Fprintf(os.Stderr, "Collection: %s\n", store.CollectionName)
	fmt.Fprintf(os.Stderr, "Embedding model: %s\n", c.String("embedding-model"))
	fmt.Fprintln(os.Stderr)

	if err := reembedder.Run(ctx); err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}

	// Record the model the collection now embeds with.
	store.EmbeddingModel = c.String("embedding-model")
	if err := ledger.UpdateStore(ctx, store); err != nil {
		return fmt.Errorf("failed to record new embedding model: %w", err)
	}

	return nil
}

func seedCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("a document directory is required")
	}
	dir := c.Args().First()
	moduleID := c.String("module")

	app, err := openApp(c)
	if err != nil {
		return fmt.Errorf("failed to open application: %w", err)
	}
	defer app.Close()

	ctx := context.Background()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}

	registered := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path, err := filepath.Abs(filepath.Join(dir, entry.Name()))
		if err != nil {
			return err
		}
		doc := &core.Document{
			ModuleID: moduleID,
			Title:    entry.Name(),
			FilePath: path,
			Active:   true,
		}
		if err := app.Ledger().AddDocument(ctx, doc); err != nil {
			return fmt.Errorf("failed to register %s: %w", entry.Name(), err)
		}
		registered++
	}

	fmt.Fprintf(os.Stderr, "registered %d documents for module %s\n", registered, moduleID)
	fmt.Fprintln(os.Stderr, "run the indexing task with: POST /api/vectordb/create")
	return nil
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
