package db

import (
	"encoding/json"
	"fmt"

	"github.com/ragchat-app/ragchat/internal/models"
)

// String slices and message sources live in jsonb columns. The pgx stdlib
// driver hands jsonb back as []byte, so these helpers do the round trip and
// normalize nil to an empty JSON array.

func stringsToJSON(vals []string) ([]byte, error) {
	if vals == nil {
		vals = []string{}
	}
	b, err := json.Marshal(vals)
	if err != nil {
		return nil, fmt.Errorf("marshal string list: %w", err)
	}
	return b, nil
}

func stringsFromJSON(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unmarshal string list: %w", err)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func sourcesToJSON(sources []models.Source) ([]byte, error) {
	if sources == nil {
		sources = []models.Source{}
	}
	b, err := json.Marshal(sources)
	if err != nil {
		return nil, fmt.Errorf("marshal sources: %w", err)
	}
	return b, nil
}

func sourcesFromJSON(raw []byte) ([]models.Source, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var out []models.Source
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unmarshal sources: %w", err)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}
