package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/ragchat-app/ragchat/internal/core"
	"github.com/ragchat-app/ragchat/internal/models"
)

var _ core.LLMProvider = (*GeminiLLM)(nil)

// DecodingParams are the generation settings fixed at process start.
// Low temperature keeps RAG answers factually consistent.
type DecodingParams struct {
	Temperature     float32
	TopP            float32
	MaxOutputTokens int32
}

// GeminiLLM generates chat completions with a Gemini model.
type GeminiLLM struct {
	client    *genai.Client
	modelName string
	params    DecodingParams
}

func NewGeminiLLM(ctx context.Context, apiKey, modelName string, params DecodingParams) (*GeminiLLM, error) {
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	return &GeminiLLM{client: cl, modelName: modelName, params: params}, nil
}

func (g *GeminiLLM) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// Generate runs one chat completion: system instruction, prior history in
// order, then the current user turn.
func (g *GeminiLLM) Generate(ctx context.Context, system string, history []core.ChatTurn, user string) (*core.Generation, error) {
	m := g.client.GenerativeModel(g.modelName)
	m.SetTemperature(g.params.Temperature)
	m.SetTopP(g.params.TopP)
	m.SetMaxOutputTokens(g.params.MaxOutputTokens)
	if system != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(system)},
		}
	}

	cs := m.StartChat()
	cs.History = historyToContents(history)

	resp, err := cs.SendMessage(ctx, genai.Text(user))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrLLM, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("%w: empty response", core.ErrLLM)
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}

	gen := &core.Generation{Text: b.String()}
	if u := resp.UsageMetadata; u != nil {
		gen.Usage = core.TokenUsage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return gen, nil
}

// historyToContents maps role-tagged turns to the Gemini wire roles
// ("user" / "model").
func historyToContents(history []core.ChatTurn) []*genai.Content {
	out := make([]*genai.Content, 0, len(history))
	for _, turn := range history {
		role := "user"
		if turn.Role == models.RoleAssistant {
			role = "model"
		}
		out = append(out, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(turn.Content)},
		})
	}
	return out
}
