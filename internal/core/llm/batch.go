package llm

import (
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

// indexedText keeps a text tied to its position in the caller's slice so
// partial batch results stay attributable.
type indexedText struct {
	Index int
	Text  string
}

// prepareTexts drops blank inputs and truncates over-long ones, preserving
// original indices.
func prepareTexts(texts []string, log *zap.Logger) []indexedText {
	out := make([]indexedText, 0, len(texts))
	for i, t := range texts {
		trimmed := strings.TrimSpace(t)
		if trimmed == "" {
			log.Warn("skipping empty text in embedding batch", zap.Int("index", i))
			continue
		}
		if utf8.RuneCountInString(trimmed) > maxTextChars {
			log.Warn("truncating over-long text in embedding batch",
				zap.Int("index", i),
				zap.Int("chars", utf8.RuneCountInString(trimmed)))
			trimmed = truncateText(trimmed, maxTextChars)
		}
		out = append(out, indexedText{Index: i, Text: trimmed})
	}
	return out
}

// splitBatches slices items into consecutive groups of at most size.
func splitBatches(items []indexedText, size int) [][]indexedText {
	if size <= 0 || len(items) == 0 {
		return nil
	}
	var out [][]indexedText
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[start:end])
	}
	return out
}

// truncateText cuts s to at most max runes.
func truncateText(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
