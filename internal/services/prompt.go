package services

import (
	"fmt"
	"strings"

	"github.com/ragchat-app/ragchat/internal/core"
	"github.com/ragchat-app/ragchat/internal/models"
)

const assistantInstructions = "You are an intelligent assistant answering questions about the user's documents. " +
	"Answer using only the provided document context and the conversation so far. " +
	"When the context does not contain enough information to answer, say so explicitly instead of guessing. " +
	"Cite the source document by filename when it supports your answer."

const noContextInstructions = "You are an intelligent assistant answering questions about the user's documents. " +
	"No relevant document content was found for this question. " +
	"Say that you could not find this in the user's documents, and answer from the conversation so far only if it already contains the information."

// buildSystemPrompt assembles the instruction block, embedding the retrieved
// chunks ordered by relevance.
func buildSystemPrompt(hits []core.SearchHit) string {
	if len(hits) == 0 {
		return noContextInstructions
	}

	var sb strings.Builder
	sb.WriteString(assistantInstructions)
	sb.WriteString("\n\nDocument context:\n")
	for _, h := range hits {
		fmt.Fprintf(&sb, "\n[%s, chunk %d]\n%s\n---\n", h.Meta.Filename, h.Meta.ChunkIndex, h.Meta.Text)
	}
	return sb.String()
}

// historyFromMessages maps stored messages to chat turns for the LLM.
func historyFromMessages(msgs []models.Message) []core.ChatTurn {
	out := make([]core.ChatTurn, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, core.ChatTurn{Role: m.Role, Content: m.Content})
	}
	return out
}

const summaryPrompt = "Summarize the conversation below for an email recap. Structure the summary as plain text with " +
	"these sections: Topic (one line), Key points (bullet list), Suggested actions (bullet list), Recommendation (one short paragraph). " +
	"Do not invent content that is not in the conversation.\n\nConversation:\n"

// buildTranscript renders the transcript handed to the LLM for the email
// summary. Also used verbatim as the fallback body when the LLM is down.
func buildTranscript(msgs []models.Message) string {
	var sb strings.Builder
	for _, m := range msgs {
		role := "User"
		if m.Role == models.RoleAssistant {
			role = "Assistant"
		}
		fmt.Fprintf(&sb, "%s: %s\n\n", role, m.Content)
	}
	return sb.String()
}
