package domain

// Page is one physical PDF page in document order. Number is 1-based.
type Page struct {
	Number int
	Text   string
}

// Chunk is a bounded span of page text. Page is the page the span starts on.
type Chunk struct {
	Text string
	Page int
}

// ChunkTexts returns the chunk texts in order.
func ChunkTexts(chunks []Chunk) []string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	return texts
}
