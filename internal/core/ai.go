package core

import "context"

// Embedded pairs a vector with the index of the input text it came from.
// Batch embedding may drop blank inputs or lose whole sub-batches, so the
// caller re-aligns results by Index instead of assuming positional output.
type Embedded struct {
	Index  int
	Values []float32
}

// EmbeddingProvider converts text into fixed-dimension vectors. Document and
// query embedding may use different task modes but share one vector space.
type EmbeddingProvider interface {
	EmbedDocuments(ctx context.Context, texts []string) ([]Embedded, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// ChatTurn is one role-tagged turn of conversation history.
type ChatTurn struct {
	Role    string // models.RoleUser or models.RoleAssistant
	Content string
}

// TokenUsage reports the provider's token accounting for one generation.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Generation is the result of one LLM call.
type Generation struct {
	Text  string
	Usage TokenUsage
}

// LLMProvider generates a chat completion from a system instruction, prior
// history and the current user turn. Decoding parameters are fixed at
// construction, not per call.
type LLMProvider interface {
	Generate(ctx context.Context, system string, history []ChatTurn, user string) (*Generation, error)
}
