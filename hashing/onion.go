// Package hashing implements the layered ("onion") digests used across
// gatekeeper: plain, salted and keyed.
//
// Every layer produces the lowercase hex digest of its input, and every layer
// after the first digests the hex output of the previous one. Stored password
// hashes and token signatures depend on this exact shape, so changing it
// (or a round count) makes existing data unverifiable.
package hashing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"hash"
)

const (
	PasswordRounds = 1024
	IndexRounds    = 16
	TokenRounds    = 1024
)

// Hash digests message once and then re-digests the result rounds times.
func Hash(message string, rounds int) string {
	h := sha256.New()
	layer := digest(h, message)
	for i := 1; i <= rounds; i++ {
		layer = digest(h, layer)
	}
	return layer
}

// HashSalted mixes salt into every layer. Layer 0 digests secret+salt,
// even layers digest previous+salt and odd layers digest salt+previous.
func HashSalted(secret, salt string, rounds int) string {
	h := sha256.New()
	layer := digest(h, secret+salt)
	for i := 1; i <= rounds; i++ {
		if i%2 == 0 {
			layer = digest(h, layer+salt)
		} else {
			layer = digest(h, salt+layer)
		}
	}
	return layer
}

// HMAC is the keyed variant of Hash, each layer is an hmac-sha256.
func HMAC(message string, key []byte, rounds int) string {
	h := hmac.New(sha256.New, key)
	layer := digest(h, message)
	for i := 1; i <= rounds; i++ {
		layer = digest(h, layer)
	}
	return layer
}

func digest(h hash.Hash, input string) string {
	h.Reset()
	h.Write([]byte(input))
	return hex.EncodeToString(h.Sum(nil))
}
