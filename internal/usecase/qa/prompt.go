package qa

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/index"
)

const promptTemplate = `You are an assistant answering questions about a PDF document.
Answer using only the context below. If the context does not contain the answer,
say that you don't know. Do not make up facts. Mention the page numbers you used.

Context:
%s

Question: %s
Answer:`

func buildPrompt(hits []index.Hit, query string) string {
	var b strings.Builder
	for i, h := range hits {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[Page %d]\n%s", h.Chunk.Page, h.Chunk.Text)
	}
	return fmt.Sprintf(promptTemplate, b.String(), query)
}

func sources(hits []index.Hit, excerptChars int) []domain.Source {
	out := make([]domain.Source, len(hits))
	for i, h := range hits {
		out[i] = domain.Source{
			Page:    h.Chunk.Page,
			Excerpt: excerpt(h.Chunk.Text, excerptChars),
			Score:   h.Score,
		}
	}
	return out
}

// excerpt collapses whitespace and keeps at most n characters.
func excerpt(text string, n int) string {
	s := strings.Join(strings.Fields(text), " ")
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n]))
}
