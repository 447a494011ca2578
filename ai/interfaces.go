package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity
// search. Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates embeddings for multiple texts in one batch,
	// returned in input order. Batch calls are cheaper than repeated
	// EmbedText calls.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// ChatModel produces text completions from a language model.
// Implementations must be thread-safe for concurrent use.
type ChatModel interface {
	// Complete sends one prompt and returns the raw answer text.
	Complete(ctx context.Context, prompt string) (string, error)

	// DescribeImage sends a descriptive prompt together with an inline
	// base64 image payload and returns the model's description.
	DescribeImage(ctx context.Context, prompt, imageBase64, mimeType string) (string, error)
}

// Provider aggregates AI services for convenient initialization and
// lifecycle management. A provider creates and manages the embedding
// and completion services sharing one configuration, so it can stand
// in wherever either is needed.
type Provider interface {
	Embedder
	ChatModel

	// Close releases resources held by the provider and its services.
	Close() error
}
