package document

import (
	"strings"
	"unicode/utf8"

	"github.com/kailas-cloud/docqa/internal/domain"
)

// Default chunking parameters, in characters.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 100
)

var separators = []string{"\n\n", "\n", " ", ""}

// Splitter cuts page text into overlapping chunks, trying paragraph, line and
// word boundaries before falling back to single characters. Chunks never span pages.
type Splitter struct {
	size    int
	overlap int
}

// Option configures the splitter.
type Option func(*Splitter)

// WithChunkSize sets the maximum chunk length in characters.
func WithChunkSize(size int) Option {
	return func(s *Splitter) {
		if size > 0 {
			s.size = size
		}
	}
}

// WithOverlap sets how many characters consecutive chunks may share.
func WithOverlap(overlap int) Option {
	return func(s *Splitter) {
		if overlap >= 0 {
			s.overlap = overlap
		}
	}
}

// NewSplitter creates a splitter. An overlap not smaller than the size is
// reduced to a quarter of the size.
func NewSplitter(opts ...Option) *Splitter {
	s := &Splitter{size: DefaultChunkSize, overlap: DefaultChunkOverlap}
	for _, opt := range opts {
		opt(s)
	}
	if s.overlap >= s.size {
		s.overlap = s.size / 4
	}
	return s
}

// Size returns the configured chunk size.
func (s *Splitter) Size() int { return s.size }

// Overlap returns the effective overlap.
func (s *Splitter) Overlap() int { return s.overlap }

// Split returns the non-blank chunks of pages in order. It fails with a
// *domain.DocumentError when nothing usable remains.
func (s *Splitter) Split(pages []domain.Page) ([]domain.Chunk, error) {
	if len(pages) == 0 {
		return nil, domain.NewDocumentError("", "document has no pages", nil)
	}

	var chunks []domain.Chunk
	for _, p := range pages {
		for _, text := range s.splitText(p.Text, separators) {
			if strings.TrimSpace(text) == "" {
				continue
			}
			chunks = append(chunks, domain.Chunk{Text: text, Page: p.Number})
		}
	}

	if len(chunks) == 0 {
		return nil, domain.NewDocumentError("",
			"no usable chunks, the document may contain only images or blank pages", nil)
	}
	return chunks, nil
}

func (s *Splitter) splitText(text string, seps []string) []string {
	sep := seps[len(seps)-1]
	var rest []string
	for i, c := range seps {
		if c == "" {
			sep = ""
			break
		}
		if strings.Contains(text, c) {
			sep = c
			rest = seps[i+1:]
			break
		}
	}

	var (
		out  []string
		good []string
	)
	for _, part := range splitOn(text, sep) {
		if utf8.RuneCountInString(part) < s.size {
			good = append(good, part)
			continue
		}
		if len(good) > 0 {
			out = append(out, s.merge(good, sep)...)
			good = nil
		}
		if len(rest) == 0 {
			out = append(out, part)
		} else {
			out = append(out, s.splitText(part, rest)...)
		}
	}
	if len(good) > 0 {
		out = append(out, s.merge(good, sep)...)
	}
	return out
}

// merge packs small pieces into chunks of at most size characters, carrying
// up to overlap characters of trailing pieces into the next chunk.
func (s *Splitter) merge(pieces []string, sep string) []string {
	sepLen := utf8.RuneCountInString(sep)

	var (
		out   []string
		cur   []string
		total int
	)
	joinLen := func() int {
		if len(cur) > 0 {
			return sepLen
		}
		return 0
	}

	for _, p := range pieces {
		n := utf8.RuneCountInString(p)
		if total+n+joinLen() > s.size && len(cur) > 0 {
			if doc := strings.TrimSpace(strings.Join(cur, sep)); doc != "" {
				out = append(out, doc)
			}
			for len(cur) > 0 && (total > s.overlap || total+n+joinLen() > s.size) {
				drop := utf8.RuneCountInString(cur[0])
				if len(cur) > 1 {
					drop += sepLen
				}
				total -= drop
				cur = cur[1:]
			}
		}
		cur = append(cur, p)
		total += n
		if len(cur) > 1 {
			total += sepLen
		}
	}

	if doc := strings.TrimSpace(strings.Join(cur, sep)); doc != "" {
		out = append(out, doc)
	}
	return out
}

func splitOn(text, sep string) []string {
	parts := strings.Split(text, sep)
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
