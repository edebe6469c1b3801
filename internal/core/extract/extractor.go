// Package extract turns uploaded file bytes into plain text.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"code.sajari.com/docconv"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"

	"github.com/ragchat-app/ragchat/internal/core"
)

var _ core.Extractor = (*DocExtractor)(nil)

// DocExtractor extracts text by file type: plain text via a multi-encoding
// decode chain, binary formats (pdf, docx, doc) via docconv.
type DocExtractor struct {
	log *zap.Logger
}

func NewDocExtractor(log *zap.Logger) *DocExtractor {
	return &DocExtractor{log: log}
}

// Extract returns the document's text, or ErrExtraction when the bytes
// cannot be converted or yield no text at all.
func (e *DocExtractor) Extract(ctx context.Context, data []byte, filename string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))

	var (
		text string
		err  error
	)
	switch ext {
	case "txt":
		text = decodePlainText(data)
	case "pdf", "docx", "doc":
		text, err = e.convert(data, filename)
	default:
		return "", fmt.Errorf("%w: unsupported file type %q", core.ErrExtraction, ext)
	}
	if err != nil {
		e.log.Error("text extraction failed",
			zap.String("filename", filename),
			zap.String("file_type", ext),
			zap.Error(err))
		return "", fmt.Errorf("%w: %v", core.ErrExtraction, err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: document %q produced no text", core.ErrExtraction, filename)
	}
	return text, nil
}

// convert runs docconv for binary formats. docconv concatenates per-unit
// text (pages, paragraphs) joined with newlines.
func (e *DocExtractor) convert(data []byte, filename string) (string, error) {
	mime := docconv.MimeTypeByExtension(filename)
	res, err := docconv.Convert(bytes.NewReader(data), mime, false)
	if err != nil {
		return "", fmt.Errorf("docconv %s: %w", mime, err)
	}
	return res.Body, nil
}

// decodePlainText never hard-fails on encoding: it tries UTF-8 first, then
// the common single-byte encodings, and finally a lossy UTF-8 pass that
// drops invalid bytes.
func decodePlainText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}

	for _, cm := range []*charmap.Charmap{charmap.ISO8859_1, charmap.Windows1252} {
		if decoded, err := cm.NewDecoder().Bytes(data); err == nil {
			return string(decoded)
		}
	}

	// Lossy fallback: keep valid runes, drop the rest.
	return strings.ToValidUTF8(string(data), "")
}
