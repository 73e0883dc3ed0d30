// Package chunker splits document text into overlapping segments sized for
// language-model context limits.
package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dtnitsch/challenge-miner/models"
)

// Chunk is one segment of a document's text. Start and End are rune offsets
// into the original text, so non-overlapping portions of consecutive chunks
// reconstruct the input exactly.
type Chunk struct {
	Text  string
	Index int
	Start int
	End   int
}

// Chunker produces deterministic overlapping chunks. Identical input and
// configuration always yield an identical sequence.
type Chunker struct {
	size     int
	overlap  int // runes shared with the previous chunk
	lookback int
}

// minChunkRunes drops trailing fragments too short to carry a statement.
const minChunkRunes = 50

// minDocumentRunes rejects documents too short to be worth extracting from.
const minDocumentRunes = 100

// New returns a Chunker with the given target size in runes and overlap
// fraction. Lookback bounds the search for a sentence boundary before the
// hard size limit.
func New(cfg models.ChunkerConfig) *Chunker {
	overlap := int(float64(cfg.Size) * cfg.Overlap)
	return &Chunker{size: cfg.Size, overlap: overlap, lookback: cfg.Lookback}
}

// Split validates the input and returns a Scanner over its chunks. Text with
// fewer than minDocumentRunes runes after trimming fails with
// models.ErrEmptyInput.
func (c *Chunker) Split(text string) (*Scanner, error) {
	if utf8.RuneCountInString(strings.TrimSpace(text)) < minDocumentRunes {
		return nil, models.ErrEmptyInput
	}
	return &Scanner{chunker: c, runes: []rune(text)}, nil
}

// SplitAll drains a Scanner into a slice.
func (c *Chunker) SplitAll(text string) ([]Chunk, error) {
	sc, err := c.Split(text)
	if err != nil {
		return nil, err
	}
	var chunks []Chunk
	for sc.Scan() {
		chunks = append(chunks, sc.Chunk())
	}
	return chunks, nil
}

// Scanner walks the chunk sequence lazily, in the manner of bufio.Scanner.
// Construct a fresh Scanner to restart from the beginning.
type Scanner struct {
	chunker *Chunker
	runes   []rune
	pos     int
	index   int
	current Chunk
	lastEnd int
	done    bool
}

// Scan advances to the next chunk. It returns false when the input is
// exhausted.
func (s *Scanner) Scan() bool {
	for !s.done {
		if s.pos >= len(s.runes) {
			s.done = true
			return false
		}

		end := s.pos + s.chunker.size
		if end >= len(s.runes) {
			end = len(s.runes)
		} else if adjusted := s.boundaryBefore(end); adjusted > s.pos {
			end = adjusted
		}

		chunk := Chunk{
			Text:  string(s.runes[s.pos:end]),
			Index: s.index,
			Start: s.pos,
			End:   end,
		}

		if end >= len(s.runes) {
			s.done = true
		} else {
			next := end - s.chunker.overlap
			if next <= s.pos {
				next = s.pos + 1 // always make progress
			}
			s.pos = next
		}

		// A short tail already covered by the previous chunk carries no
		// new text; dropping it keeps coverage exact.
		if chunk.Index > 0 && chunk.End <= s.lastEnd &&
			len(strings.TrimSpace(chunk.Text)) < minChunkRunes {
			continue
		}

		s.lastEnd = chunk.End
		s.current = chunk
		s.index++
		return true
	}
	return false
}

// Chunk returns the chunk produced by the last successful Scan.
func (s *Scanner) Chunk() Chunk { return s.current }

// boundaryBefore searches up to lookback runes before end for the last
// sentence terminator, so chunks avoid splitting inside a sentence. Returns
// the rune offset just past the boundary, or 0 when none is found.
func (s *Scanner) boundaryBefore(end int) int {
	low := end - s.chunker.lookback
	if low < s.pos {
		low = s.pos
	}
	for i := end - 1; i >= low; i-- {
		r := s.runes[i]
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			// Skip terminators embedded in tokens like "3.5" or "e.g".
			if r == '.' && i+1 < len(s.runes) && !unicode.IsSpace(s.runes[i+1]) {
				continue
			}
			return i + 1
		}
	}
	return 0
}
