// Package chunker splits normalized document text into overlapping,
// sentence-boundary-aware segments for indexing.
package chunker

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/custodia-labs/ragcore/internal/core/domain"
)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 1000

// DefaultOverlap is the default number of overlapping characters.
const DefaultOverlap = 200

// pageMarker matches the page annotations the text extractors leave in
// extracted PDF text.
var pageMarker = regexp.MustCompile(`\[Page (\d+)\]`)

// Splitter splits document content into chunks.
type Splitter struct {
	chunkSize int
	overlap   int
	lookback  int
}

// Option configures the splitter.
type Option func(*Splitter)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) Option {
	return func(s *Splitter) {
		s.chunkSize = size
	}
}

// WithOverlap sets the overlap between chunks in characters.
func WithOverlap(overlap int) Option {
	return func(s *Splitter) {
		s.overlap = overlap
	}
}

// WithLookback sets how far back from the window end the boundary
// search may reach. Defaults to half the chunk size.
func WithLookback(lookback int) Option {
	return func(s *Splitter) {
		s.lookback = lookback
	}
}

// New creates a splitter. The configuration must satisfy
// chunkSize > 0 and 0 <= overlap < chunkSize; anything else fails
// fast with domain.ErrInvalidInput.
func New(opts ...Option) (*Splitter, error) {
	s := &Splitter{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultOverlap,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", domain.ErrInvalidInput, s.chunkSize)
	}
	if s.overlap < 0 || s.overlap >= s.chunkSize {
		return nil, fmt.Errorf("%w: overlap must be in [0, chunk size), got %d", domain.ErrInvalidInput, s.overlap)
	}
	if s.lookback == 0 {
		s.lookback = s.chunkSize / 2
	}
	if s.lookback < 1 || s.lookback > s.chunkSize {
		return nil, fmt.Errorf("%w: lookback must be in [1, chunk size], got %d", domain.ErrInvalidInput, s.lookback)
	}

	return s, nil
}

// ChunkSize returns the configured chunk size.
func (s *Splitter) ChunkSize() int {
	return s.chunkSize
}

// Overlap returns the configured overlap.
func (s *Splitter) Overlap() int {
	return s.overlap
}

// Split scans text in a sliding window of chunkSize characters. When a
// window ends mid-sentence it searches backward, within a bounded
// look-back, for the nearest sentence-terminal character and cuts
// there; otherwise it cuts at the raw boundary. It never searches
// forward past the window, so a chunk may be shorter than chunkSize
// but never longer.
//
// Chunks are whitespace-trimmed; empty chunks are dropped without
// consuming an index, so indices are dense starting at 0. Vector IDs
// are assigned later, at indexing time.
func (s *Splitter) Split(documentID, text string) ([]domain.Chunk, error) {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil, nil
	}

	pages := markerPages(text)

	estimated := n/(s.chunkSize-s.overlap) + 1
	chunks := make([]domain.Chunk, 0, estimated)

	start := 0
	index := 0

	for start < n {
		// Leading whitespace carries no content and would misalign
		// the window against the snapped boundary of the previous
		// chunk.
		for start < n && isSpace(runes[start]) {
			start++
		}
		if start >= n {
			break
		}

		end := start + s.chunkSize
		if end >= n {
			end = n
		} else {
			end = snapBack(runes, start, end, s.lookback)
		}

		content := strings.TrimSpace(string(runes[start:end]))
		if content != "" {
			chunks = append(chunks, domain.Chunk{
				DocumentID:  documentID,
				Index:       index,
				Content:     content,
				StartOffset: start,
				EndOffset:   end,
				Page:        pages.at(start),
			})
			index++
		}

		if end >= n {
			break
		}

		// Clamp the next start strictly past the current one so the
		// scan always makes progress even when boundary snapping
		// shrinks the chunk below the overlap.
		next := end - s.overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}

	return chunks, nil
}

// snapBack searches backward from end-1 for a sentence-terminal rune,
// at most lookback runes and never at or before start. It returns the
// position one past the terminal, or the original end when none is
// found.
func snapBack(runes []rune, start, end, lookback int) int {
	limit := end - lookback
	if limit <= start {
		limit = start + 1
	}
	for i := end - 1; i >= limit; i-- {
		if isSentenceTerminal(runes[i]) {
			return i + 1
		}
	}
	return end
}

// isSentenceTerminal reports whether r ends a sentence. Both ASCII and
// CJK full-width terminals count, as does a newline.
func isSentenceTerminal(r rune) bool {
	switch r {
	case '.', '。', '!', '！', '?', '？', '\n':
		return true
	}
	return false
}

func isSpace(r rune) bool {
	return unicode.IsSpace(r)
}

// pageIndex maps rune offsets to the page markers preceding them.
type pageIndex struct {
	offsets []int // rune offset of each marker, ascending
	numbers []int
}

// markerPages extracts [Page N] markers with their rune offsets.
func markerPages(text string) pageIndex {
	var idx pageIndex
	matches := pageMarker.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return idx
	}

	// Byte offset -> rune offset, walked once in order.
	byteToRune := make(map[int]int, len(matches))
	runeOff := 0
	mi := 0
	for byteOff := range text {
		for mi < len(matches) && matches[mi][0] == byteOff {
			byteToRune[byteOff] = runeOff
			mi++
		}
		runeOff++
	}

	for _, m := range matches {
		page, err := strconv.Atoi(text[m[2]:m[3]])
		if err != nil {
			continue
		}
		idx.offsets = append(idx.offsets, byteToRune[m[0]])
		idx.numbers = append(idx.numbers, page)
	}
	return idx
}

// at returns the page in effect at the given rune offset, or nil when
// the text has no page markers before it.
func (p pageIndex) at(offset int) *int {
	if len(p.offsets) == 0 {
		return nil
	}
	i := sort.SearchInts(p.offsets, offset+1) - 1
	if i < 0 {
		return nil
	}
	page := p.numbers[i]
	return &page
}
