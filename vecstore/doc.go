// Package vecstore persists and searches per-module embedding
// collections. Each collection is a standalone SQLite file holding
// summary text, metadata and little-endian float32 embedding blobs;
// search is brute-force cosine similarity with a min-heap for top-K
// selection. A keyed cache bounds the number of open collection
// handles.
package vecstore
