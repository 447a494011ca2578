// Package chat manages question answering sessions: session
// resolution, persistence of questions and answers with their
// wall-clock timing, answer ratings and the query log.
package chat
