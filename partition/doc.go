// Package partition turns source documents into ordered chunks ready
// for summarization and indexing. PDF, plain-text and markdown files
// produce text chunks; PNG and JPEG files produce a single image chunk
// carrying the inline base64 payload.
package partition
