package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/ragchat-app/ragchat/internal/core"
)

const (
	// maxTextChars caps a single input; longer texts are truncated rather
	// than failing the whole batch.
	maxTextChars = 8000
	// maxBatchSize bounds one provider request.
	maxBatchSize = 100
)

var _ core.EmbeddingProvider = (*GeminiEmbedder)(nil)

// GeminiEmbedder embeds text with Gemini embedding models. Documents use the
// retrieval-document task type and queries the retrieval-query type; both
// produce vectors in the same space.
type GeminiEmbedder struct {
	client    *genai.Client
	modelName string
	dim       int
	log       *zap.Logger
}

func NewGeminiEmbedder(ctx context.Context, apiKey, modelName string, dim int, log *zap.Logger) (*GeminiEmbedder, error) {
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	if modelName == "" {
		modelName = "text-embedding-004"
	}
	return &GeminiEmbedder{client: cl, modelName: modelName, dim: dim, log: log}, nil
}

func (g *GeminiEmbedder) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func (g *GeminiEmbedder) Dimension() int { return g.dim }

// VerifyDimension embeds a probe string and compares the backend's output
// dimension with the configured one. Called once at startup so a
// misconfiguration fails fast instead of poisoning the index.
func (g *GeminiEmbedder) VerifyDimension(ctx context.Context) error {
	vec, err := g.EmbedQuery(ctx, "dimension probe")
	if err != nil {
		return err
	}
	if len(vec) != g.dim {
		return fmt.Errorf("embedding dimension mismatch: configured %d, model %q returns %d",
			g.dim, g.modelName, len(vec))
	}
	return nil
}

// EmbedDocuments embeds texts in sub-batches of at most maxBatchSize.
// Blank inputs are skipped and over-long inputs truncated; a failed
// sub-batch is logged and skipped rather than aborting the operation, so the
// result may cover fewer indices than the input. Fails only when nothing
// could be embedded.
func (g *GeminiEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([]core.Embedded, error) {
	valid := prepareTexts(texts, g.log)
	if len(valid) == 0 {
		return nil, fmt.Errorf("%w: no valid texts to embed", core.ErrEmbedding)
	}

	em := g.client.EmbeddingModel(g.modelName)
	em.TaskType = genai.TaskTypeRetrievalDocument

	out := make([]core.Embedded, 0, len(valid))
	batches := splitBatches(valid, maxBatchSize)
	for n, sub := range batches {
		b := em.NewBatch()
		for _, it := range sub {
			b.AddContent(genai.Text(it.Text))
		}

		resp, err := em.BatchEmbedContents(ctx, b)
		if err != nil {
			g.log.Warn("embedding sub-batch failed, continuing",
				zap.Int("batch", n+1),
				zap.Int("batches", len(batches)),
				zap.Int("size", len(sub)),
				zap.Error(err))
			continue
		}
		for i, e := range resp.Embeddings {
			if i >= len(sub) {
				break
			}
			out = append(out, core.Embedded{Index: sub[i].Index, Values: e.Values})
		}
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("%w: all %d sub-batches failed", core.ErrEmbedding, len(batches))
	}
	return out, nil
}

// EmbedQuery embeds a single retrieval query.
func (g *GeminiEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty query", core.ErrEmbedding)
	}

	em := g.client.EmbeddingModel(g.modelName)
	em.TaskType = genai.TaskTypeRetrievalQuery

	res, err := em.EmbedContent(ctx, genai.Text(truncateText(text, maxTextChars)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrEmbedding, err)
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("%w: empty embedding response", core.ErrEmbedding)
	}
	return res.Embedding.Values, nil
}
