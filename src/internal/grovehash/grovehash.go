// Package grovehash provides the hash used for content addressing throughout
// the module.
package grovehash

import (
	"encoding/hex"
	"hash"

	"golang.org/x/crypto/blake2b"

	"github.com/grovescm/grove/v2/src/internal/errors"
)

// OutputSize is the size of an Output in bytes.
const OutputSize = 32

// Output is the output of the hash function.
type Output = [OutputSize]byte

// Sum computes the hash of data.
func Sum(data []byte) Output {
	return blake2b.Sum256(data)
}

// New returns a new hasher.
func New() hash.Hash {
	h, err := blake2b.New256(nil)
	if err != nil {
		// New256 only errors when a key is passed.
		panic(err)
	}
	return h
}

// EncodeHash returns the canonical hex form of h.
func EncodeHash(h []byte) string {
	return hex.EncodeToString(h)
}

// DecodeHash parses the canonical hex form of a hash.
func DecodeHash(s string) ([]byte, error) {
	if len(s) != OutputSize*2 {
		return nil, errors.Errorf("hash has wrong length: %d, expected %d", len(s), OutputSize*2)
	}
	h, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.EnsureStack(err)
	}
	return h, nil
}
