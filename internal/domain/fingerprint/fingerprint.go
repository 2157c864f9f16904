// Package fingerprint derives content-addressed cache keys for chunked documents.
package fingerprint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/kailas-cloud/docqa/internal/domain"
)

// Size is the fingerprint length in bytes.
const Size = sha256.Size

// Fingerprint identifies an ordered sequence of chunk texts.
type Fingerprint [Size]byte

// Of hashes the chunk texts in order. Each text is prefixed with its byte length,
// so moving a boundary between two chunks changes the result. Page numbers are
// not hashed: re-chunking that yields the same texts maps to the same index.
func Of(chunks []domain.Chunk) Fingerprint {
	h := sha256.New()
	var lenBuf [8]byte
	for _, c := range chunks {
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(c.Text)))
		h.Write(lenBuf[:])
		h.Write([]byte(c.Text))
	}

	var fp Fingerprint
	h.Sum(fp[:0])
	return fp
}

// Parse decodes the hex form produced by String.
func Parse(s string) (Fingerprint, error) {
	var fp Fingerprint
	b, err := hex.DecodeString(s)
	if err != nil {
		return fp, fmt.Errorf("parse fingerprint: %w", err)
	}
	if len(b) != Size {
		return fp, fmt.Errorf("parse fingerprint: want %d bytes, got %d", Size, len(b))
	}
	copy(fp[:], b)
	return fp, nil
}

func (f Fingerprint) String() string { return hex.EncodeToString(f[:]) }

// Short returns the first 12 hex characters for log lines.
func (f Fingerprint) Short() string { return f.String()[:12] }
