package core

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
	"github.com/google/uuid"
)

// NewID returns a fresh unique identifier for a domain row.
func NewID() string {
	return uuid.New().String()
}

// HashID derives a deterministic hex identifier from the given parts
// using BLAKE2b. Identical inputs always produce identical IDs; used for
// chat session identifiers and query hashes.
func HashID(parts ...string) string {
	h, _ := blake2b.New(32, nil)
	h.Write([]byte(strings.Join(parts, "_")))
	return hex.EncodeToString(h.Sum(nil))
}

// StoreStatus is the lifecycle state of a module's vector store.
type StoreStatus string

const (
	StoreStatusEmpty    StoreStatus = "empty"
	StoreStatusIndexing StoreStatus = "indexing"
	StoreStatusReady    StoreStatus = "ready"
	StoreStatusError    StoreStatus = "error"
)

// VectorStore describes the embedding collection owned by one module.
// Status moves empty -> indexing -> {ready, error}; a reset returns it to
// empty with all statistics zeroed.
type VectorStore struct {
	ID             string
	ModuleID       string
	CollectionName string // globally unique, derived from the module ID
	PersistDir     string
	Status         StoreStatus

	EmbeddingModel string
	EmbeddingDim   int
	ChunkSize      int
	ChunkOverlap   int

	DocumentCount int
	TotalChunks   int
	TotalTokens   int64

	CreatedAt     time.Time
	UpdatedAt     time.Time
	LastIndexedAt time.Time // zero until the first successful index
}

// CollectionNameForModule derives the deterministic collection name for a
// module.
func CollectionNameForModule(moduleID string) string {
	return "module_" + moduleID + "_vector_store"
}

// TaskStatus is the lifecycle state of an ingestion run.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// IndexTask tracks a single ingestion run that (re)builds a module's
// vector store. The configuration snapshot (ChunkSize, ChunkOverlap,
// EmbeddingModel) is fixed once the task starts.
type IndexTask struct {
	ID            string
	JobID         string // correlates with the queue runner's job
	VectorStoreID string
	Status        TaskStatus

	ProgressPct     int // 0-100, non-decreasing while running
	CurrentStep     string
	CurrentDocument string

	TotalDocuments      int
	ProcessedDocuments  int
	SuccessfulDocuments int
	FailedDocuments     int

	Result       map[string]any
	ErrorMessage string

	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time

	ChunkSize      int
	ChunkOverlap   int
	EmbeddingModel string
}

// IsRunning reports whether the task still counts against the
// one-active-task-per-store invariant.
func (t *IndexTask) IsRunning() bool {
	return t.Status == TaskStatusPending || t.Status == TaskStatusProcessing
}

// IsDone reports whether the task reached a terminal state.
func (t *IndexTask) IsDone() bool {
	switch t.Status {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	}
	return false
}

// Duration returns the elapsed run time: completed minus started once
// terminal, time since start while running, zero before start.
func (t *IndexTask) Duration() time.Duration {
	if t.StartedAt.IsZero() {
		return 0
	}
	if !t.CompletedAt.IsZero() {
		return t.CompletedAt.Sub(t.StartedAt)
	}
	return time.Since(t.StartedAt)
}

// MarkStarted transitions the task to processing and fixes the document
// snapshot. Later additions to the module are not part of this run.
func (t *IndexTask) MarkStarted(totalDocs int) {
	t.Status = TaskStatusProcessing
	t.StartedAt = time.Now().UTC()
	t.TotalDocuments = totalDocs
}

// IncrementProcessed records one per-document outcome and recomputes the
// progress percentage as floor(processed/total*100).
func (t *IndexTask) IncrementProcessed(success bool) {
	t.ProcessedDocuments++
	if success {
		t.SuccessfulDocuments++
	} else {
		t.FailedDocuments++
	}
	if t.TotalDocuments > 0 {
		t.ProgressPct = t.ProcessedDocuments * 100 / t.TotalDocuments
	}
}

// MarkCompleted transitions the task to completed with its result
// summary. A run with zero successes still completes; only infrastructure
// failures mark a task failed.
func (t *IndexTask) MarkCompleted(result map[string]any) {
	t.Status = TaskStatusCompleted
	t.ProgressPct = 100
	t.CompletedAt = time.Now().UTC()
	t.Result = result
}

// MarkFailed transitions the task to failed, capturing the error message
// verbatim.
func (t *IndexTask) MarkFailed(errMsg string) {
	t.Status = TaskStatusFailed
	t.CompletedAt = time.Now().UTC()
	t.ErrorMessage = errMsg
}

// MarkCancelled records an external cancel. Valid only while running.
func (t *IndexTask) MarkCancelled(reason string) {
	t.Status = TaskStatusCancelled
	t.CompletedAt = time.Now().UTC()
	t.ErrorMessage = reason
}

// Document is owned by the surrounding application; the ingestion core
// only reads it.
type Document struct {
	ID       string
	ModuleID string
	Title    string
	FilePath string
	Active   bool
}

// ChatSession groups questions from one user against one module store.
type ChatSession struct {
	ID            string
	SessionID     string // derived hash, see HashID
	Title         string
	UserID        string
	VectorStoreID string
	CreatedAt     time.Time
}

// Question is one inbound chat message.
type Question struct {
	ID            string
	VectorStoreID string
	SessionID     string
	Text          string
	CreatedBy     string
	CreatedAt     time.Time
}

// Answer is the engine's response to exactly one question.
type Answer struct {
	ID           string
	QuestionID   string
	Text         string
	TimeRequired float64 // wall-clock seconds spent producing the answer
	CreatedBy    string
	CreatedAt    time.Time
}

// Rating is user feedback on one answer. At most one rating exists per
// (answer, user) pair; the first write wins.
type Rating struct {
	ID           string
	AnswerID     string
	Score        int // 1-5
	FeedbackText string
	CreatedBy    string
	CreatedAt    time.Time
}

// QueryLog records one retrieval-augmented query with stage timings.
type QueryLog struct {
	ID        string
	UserID    string
	ModuleID  string
	QueryText string
	QueryHash string
	Response  string

	RetrievalTimeMs  int64
	GenerationTimeMs int64
	TotalTimeMs      int64

	CreatedAt time.Time
}
