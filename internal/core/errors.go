package core

import "errors"

// Sentinel errors for the failure taxonomy. Callers branch with errors.Is;
// lower layers wrap them with fmt.Errorf("...: %w", Err...).
var (
	// ErrValidation rejects an upload before any record is persisted.
	ErrValidation = errors.New("validation failed")
	// ErrExtraction means the file content could not be turned into text.
	ErrExtraction = errors.New("text extraction failed")
	// ErrEmbedding means the embedding provider produced no usable vectors.
	ErrEmbedding = errors.New("embedding failed")
	// ErrIndexUnavailable means the vector index could not be reached.
	ErrIndexUnavailable = errors.New("vector index unavailable")
	// ErrNotFound covers both a missing resource and an ownership mismatch,
	// so callers cannot probe for existence of other users' data.
	ErrNotFound = errors.New("resource not found")
	// ErrLLM means response generation failed; the chat turn is incomplete.
	ErrLLM = errors.New("llm generation failed")
)
