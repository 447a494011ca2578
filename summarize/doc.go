// Package summarize produces retrieval-oriented summaries for document
// chunks. Text chunks are summarized in batches through a single chat
// completion per batch; image chunks are described one at a time. The
// summaries are what gets embedded and indexed, while the raw chunk
// travels alongside for answer construction.
package summarize
