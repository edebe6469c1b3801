// Package chunker splits extracted document text into overlapping,
// character-bounded chunks. Splitting prefers the largest semantic boundary
// available (paragraph, then line, then sentence, then word) and only slices
// raw characters as a last resort, so chunk edges land on natural seams
// whenever the text allows it.
package chunker

import (
	"strings"
	"unicode/utf8"
)

// Policy floors keeping chunk geometry sane for very large documents:
// chunks never shrink below minChunkSize characters and overlap never
// exceeds maxOverlap, regardless of configuration.
const (
	minChunkSize = 1000
	maxOverlap   = 200
)

// separators in priority order; the empty string means per-character slicing.
var separators = []string{"\n\n", "\n", ". ", " ", ""}

// Chunk is one bounded slice of a document's text. Index is the stable
// zero-based position of the chunk inside the document.
type Chunk struct {
	Index      int
	Text       string
	TokenCount int
}

// Splitter performs deterministic recursive character splitting. Safe for
// concurrent use; it carries no mutable state.
type Splitter struct {
	chunkSize int
	overlap   int
}

func New(chunkSize, overlap int) *Splitter {
	if chunkSize < minChunkSize {
		chunkSize = minChunkSize
	}
	if overlap > maxOverlap {
		overlap = maxOverlap
	}
	if overlap < 0 {
		overlap = 0
	}
	return &Splitter{chunkSize: chunkSize, overlap: overlap}
}

// EstimateTokens approximates the token count of s (~4 chars per token).
// Display and analytics only, never correctness.
func EstimateTokens(s string) int {
	return utf8.RuneCountInString(s) / 4
}

// Chunk splits text into ordered chunks. Empty or whitespace-only input
// yields nil; whitespace-only pieces are filtered from the output, so the
// returned indices are contiguous 0..n-1.
func (s *Splitter) Chunk(text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var out []Chunk
	for _, piece := range s.splitText(text, separators) {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}
		out = append(out, Chunk{
			Index:      len(out),
			Text:       piece,
			TokenCount: EstimateTokens(piece),
		})
	}
	return out
}

// splitText recursively splits text on the first separator present, then
// merges the resulting pieces back into chunks of at most chunkSize
// characters. Pieces still longer than chunkSize descend to the next
// separator; at the final "" separator they are sliced per character.
func (s *Splitter) splitText(text string, seps []string) []string {
	sep := ""
	var next []string
	for i, sp := range seps {
		if sp == "" {
			break
		}
		if strings.Contains(text, sp) {
			sep = sp
			next = seps[i+1:]
			break
		}
	}

	var splits []string
	if sep == "" {
		splits = make([]string, 0, utf8.RuneCountInString(text))
		for _, r := range text {
			splits = append(splits, string(r))
		}
	} else {
		splits = strings.Split(text, sep)
	}

	var final []string
	var good []string
	for _, piece := range splits {
		if utf8.RuneCountInString(piece) < s.chunkSize {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			final = append(final, s.merge(good, sep)...)
			good = nil
		}
		if len(next) == 0 {
			final = append(final, piece)
		} else {
			final = append(final, s.splitText(piece, next)...)
		}
	}
	if len(good) > 0 {
		final = append(final, s.merge(good, sep)...)
	}
	return final
}

// merge greedily joins splits with sep into chunks of at most chunkSize
// characters, then keeps a tail of at most overlap characters as the seed of
// the next chunk.
func (s *Splitter) merge(splits []string, sep string) []string {
	sepLen := utf8.RuneCountInString(sep)

	var docs []string
	var current []string
	total := 0

	joinCurrent := func() {
		doc := strings.TrimSpace(strings.Join(current, sep))
		if doc != "" {
			docs = append(docs, doc)
		}
	}

	for _, d := range splits {
		l := utf8.RuneCountInString(d)

		extra := 0
		if len(current) > 0 {
			extra = sepLen
		}
		if total+l+extra > s.chunkSize && len(current) > 0 {
			joinCurrent()

			// Drop from the front until only the overlap tail remains and
			// the incoming piece fits.
			for total > s.overlap || (total > 0 && overflows(total, l, sepLen, len(current), s.chunkSize)) {
				dec := 0
				if len(current) > 1 {
					dec = sepLen
				}
				total -= utf8.RuneCountInString(current[0]) + dec
				current = current[1:]
			}
		}

		current = append(current, d)
		total += l
		if len(current) > 1 {
			total += sepLen
		}
	}
	joinCurrent()
	return docs
}

func overflows(total, l, sepLen, currentLen, chunkSize int) bool {
	extra := 0
	if currentLen > 0 {
		extra = sepLen
	}
	return total+l+extra > chunkSize
}
