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


package core

import "strings"

// ChunkKind discriminates the closed set of chunk variants. Dispatch on
// it exhaustively; there is no third kind.
type ChunkKind int

const (
	// ChunkText is a contiguous run of extracted document text.
	ChunkText ChunkKind = iota + 1
	// ChunkImage is an extracted image carried as an inline payload.
	ChunkImage
)

// Chunk is one ordered unit of partitioned document content, prior to
// summarization and embedding.
type Chunk struct {
	Kind ChunkKind

	// Text is set for ChunkText.
	Text string

	// ImageBase64 and ImageMIME are set for ChunkImage.
	ImageBase64 string
	ImageMIME   string
}

// TextChunk builds a text chunk.
func TextChunk(text string) Chunk {
	return Chunk{Kind: ChunkText, Text: text}
}

// ImageChunk builds an image chunk from an inline base64 payload.
func ImageChunk(b64, mime string) Chunk {
	return Chunk{Kind: ChunkImage, ImageBase64: b64, ImageMIME: mime}
}

// TokenCount approximates the chunk's token cost as a whitespace word
// count. Image chunks count zero.
func (c Chunk) TokenCount() int {
	if c.Kind != ChunkText {
		return 0
	}
	return len(strings.Fields(c.Text))
}
