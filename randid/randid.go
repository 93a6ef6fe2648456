// Package randid generates the random identifiers used for row ids, salts,
// session strings and the shared token secret.
package randid

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
)

const (
	Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
)

type (
	Generator struct {
		source io.Reader
	}
)

var (
	alphabetSize = big.NewInt(int64(len(Alphabet)))

	defaultGenerator = New(rand.Reader)
)

// New returns a generator reading entropy from source. Callers outside tests
// should use crypto/rand.Reader.
func New(source io.Reader) *Generator {
	return &Generator{source: source}
}

// String picks every character independently and uniformly from Alphabet.
func (g *Generator) String(length int) (string, error) {
	if length < 0 {
		return "", fmt.Errorf("randid: invalid length %v", length)
	}
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(g.source, alphabetSize)
		if err != nil {
			return "", fmt.Errorf("randid: unable to read random source, cause %w", err)
		}
		out[i] = Alphabet[n.Int64()]
	}
	return string(out), nil
}

// String uses crypto/rand.Reader.
func String(length int) (string, error) {
	return defaultGenerator.String(length)
}
