package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragchat-app/ragchat/internal/core"
	"github.com/ragchat-app/ragchat/internal/models"
)

func TestBuildSystemPrompt_WithHits(t *testing.T) {
	hits := []core.SearchHit{
		{Meta: core.VectorMeta{Filename: "report.pdf", ChunkIndex: 3, Text: "quarterly revenue grew"}},
		{Meta: core.VectorMeta{Filename: "notes.txt", ChunkIndex: 0, Text: "meeting on friday"}},
	}
	prompt := buildSystemPrompt(hits)

	assert.Contains(t, prompt, "[report.pdf, chunk 3]")
	assert.Contains(t, prompt, "quarterly revenue grew")
	assert.Contains(t, prompt, "[notes.txt, chunk 0]")
	// First hit is the most relevant and comes first.
	assert.Less(t, strings.Index(prompt, "report.pdf"), strings.Index(prompt, "notes.txt"))
}

func TestBuildSystemPrompt_NoHits(t *testing.T) {
	prompt := buildSystemPrompt(nil)
	assert.Contains(t, prompt, "No relevant document content was found")
	assert.NotContains(t, prompt, "Document context:")
}

func TestHistoryFromMessages(t *testing.T) {
	turns := historyFromMessages([]models.Message{
		{Role: models.RoleUser, Content: "hi"},
		{Role: models.RoleAssistant, Content: "hello"},
	})
	require.Len(t, turns, 2)
	assert.Equal(t, core.ChatTurn{Role: models.RoleUser, Content: "hi"}, turns[0])
	assert.Equal(t, core.ChatTurn{Role: models.RoleAssistant, Content: "hello"}, turns[1])
}

func TestBuildTranscript(t *testing.T) {
	out := buildTranscript([]models.Message{
		{Role: models.RoleUser, Content: "what changed?"},
		{Role: models.RoleAssistant, Content: "revenue grew"},
	})
	assert.Contains(t, out, "User: what changed?")
	assert.Contains(t, out, "Assistant: revenue grew")
}
