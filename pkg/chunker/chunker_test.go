package chunker

import (
	"errors"
	"strings"
	"testing"

	"github.com/dtnitsch/challenge-miner/models"
)

func newChunker(size int, overlap float64, lookback int) *Chunker {
	return New(models.ChunkerConfig{Size: size, Overlap: overlap, Lookback: lookback})
}

// 2500 runes with no sentence boundaries force hard splits at the size
// limit: three chunks, each adjacent pair sharing 150 runes.
func TestSplitAll_FixedSizeWithOverlap(t *testing.T) {
	text := strings.Repeat("abcde", 500) // 2500 runes, no boundaries
	c := newChunker(1000, 0.15, 150)

	chunks, err := c.SplitAll(text)
	if err != nil {
		t.Fatalf("SplitAll() error = %v", err)
	}

	if len(chunks) != 3 {
		t.Fatalf("len(chunks) = %d, want 3", len(chunks))
	}

	wants := []struct{ start, end int }{
		{0, 1000},
		{850, 1850},
		{1700, 2500},
	}
	for i, want := range wants {
		if chunks[i].Start != want.start || chunks[i].End != want.end {
			t.Errorf("chunk %d span = [%d,%d), want [%d,%d)",
				i, chunks[i].Start, chunks[i].End, want.start, want.end)
		}
	}

	for i := 1; i < len(chunks); i++ {
		overlap := chunks[i-1].End - chunks[i].Start
		if overlap != 150 {
			t.Errorf("overlap between chunks %d and %d = %d, want 150", i-1, i, overlap)
		}
	}
}

func TestSplitAll_CoverageReconstructsInput(t *testing.T) {
	text := strings.Repeat("lorem ipsum dolor sit amet ", 200)
	c := newChunker(500, 0.15, 80)

	chunks, err := c.SplitAll(text)
	if err != nil {
		t.Fatalf("SplitAll() error = %v", err)
	}

	runes := []rune(text)
	var sb strings.Builder
	prevEnd := 0
	for _, ch := range chunks {
		if ch.Start > prevEnd {
			t.Fatalf("gap before chunk %d: start %d > previous end %d", ch.Index, ch.Start, prevEnd)
		}
		sb.WriteString(string(runes[prevEnd:ch.End]))
		prevEnd = ch.End
	}
	if prevEnd != len(runes) {
		t.Fatalf("coverage ends at %d, want %d", prevEnd, len(runes))
	}
	if sb.String() != text {
		t.Error("non-overlapping portions do not reconstruct the input")
	}
}

func TestSplitAll_PrefersSentenceBoundary(t *testing.T) {
	sentence := "This is a sentence about water access in rural districts. "
	text := strings.Repeat(sentence, 40)
	c := newChunker(300, 0.15, 100)

	chunks, err := c.SplitAll(text)
	if err != nil {
		t.Fatalf("SplitAll() error = %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("len(chunks) = %d, want at least 2", len(chunks))
	}

	runes := []rune(text)
	for _, ch := range chunks[:len(chunks)-1] {
		last := runes[ch.End-1]
		if last != '.' && last != ' ' {
			t.Errorf("chunk %d ends mid-sentence with %q", ch.Index, last)
		}
	}
}

func TestSplitAll_HardSplitWhenNoBoundaryInLookback(t *testing.T) {
	text := strings.Repeat("x", 1200)
	c := newChunker(500, 0.1, 60)

	chunks, err := c.SplitAll(text)
	if err != nil {
		t.Fatalf("SplitAll() error = %v", err)
	}
	if chunks[0].End != 500 {
		t.Errorf("first chunk end = %d, want hard split at 500", chunks[0].End)
	}
}

func TestSplit_EmptyInput(t *testing.T) {
	c := newChunker(1000, 0.15, 150)

	for _, text := range []string{"", "   ", "\n\t  \n"} {
		if _, err := c.Split(text); !errors.Is(err, models.ErrEmptyInput) {
			t.Errorf("Split(%q) error = %v, want ErrEmptyInput", text, err)
		}
	}
}

// Documents shorter than the minimum length carry too little context to
// extract from and must be rejected up front, not sent onward chunked.
func TestSplit_ShortDocumentRejected(t *testing.T) {
	c := newChunker(1000, 0.15, 150)

	text := "Rural clinics lack reliable refrigeration for vaccines."
	if _, err := c.Split(text); !errors.Is(err, models.ErrEmptyInput) {
		t.Errorf("Split(%d-rune doc) error = %v, want ErrEmptyInput", len([]rune(text)), err)
	}

	padded := "  " + strings.Repeat("x", minDocumentRunes-1) + "  \n"
	if _, err := c.Split(padded); !errors.Is(err, models.ErrEmptyInput) {
		t.Errorf("Split() error = %v, want ErrEmptyInput for %d trimmed runes", err, minDocumentRunes-1)
	}
	if _, err := c.Split(strings.Repeat("x", minDocumentRunes)); err != nil {
		t.Errorf("Split() error = %v for a document at the minimum length", err)
	}
}

func TestSplit_Deterministic(t *testing.T) {
	text := strings.Repeat("Droughts reduce crop yields. Wells run dry in summer. ", 60)
	c := newChunker(400, 0.2, 90)

	first, err := c.SplitAll(text)
	if err != nil {
		t.Fatalf("SplitAll() error = %v", err)
	}
	second, err := c.SplitAll(text)
	if err != nil {
		t.Fatalf("SplitAll() second call error = %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("chunk %d differs between runs", i)
		}
	}
}

func TestSplitAll_ShortInputSingleChunk(t *testing.T) {
	text := "Rural clinics lack reliable refrigeration for vaccines, and power outages spoil stock during the hot season."
	c := newChunker(1000, 0.15, 150)

	chunks, err := c.SplitAll(text)
	if err != nil {
		t.Fatalf("SplitAll() error = %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("len(chunks) = %d, want 1", len(chunks))
	}
	if chunks[0].Text != text {
		t.Errorf("chunk text = %q, want full input", chunks[0].Text)
	}
}
