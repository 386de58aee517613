// Package checksum hashes attachment bytes as they stream into storage. Every
// backend wraps its upload body in a Reader and records Sum and Size on the
// stored object, so the attachment row carries the SHA-256 of what was
// actually written rather than what the client claimed.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
)

// Reader hashes and counts everything read through it
type Reader struct {
	r      io.Reader
	hasher hash.Hash
	n      int64
}

// NewReader wraps r
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, hasher: sha256.New()}
}

func (h *Reader) Read(p []byte) (int, error) {
	n, err := h.r.Read(p)
	if n > 0 {
		h.hasher.Write(p[:n])
		h.n += int64(n)
	}
	return n, err
}

// Sum returns the hex SHA-256 of the bytes read so far
func (h *Reader) Sum() string {
	return hex.EncodeToString(h.hasher.Sum(nil))
}

// Size returns the number of bytes read so far
func (h *Reader) Size() int64 {
	return h.n
}
