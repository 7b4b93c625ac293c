// Package passgen produces random passwords that satisfy the identity
// provider's character-class policy.
package passgen

import (
	"crypto/rand"
	"encoding/binary"
	mathrand "math/rand"
)

const (
	upperChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lowerChars = "abcdefghijklmnopqrstuvwxyz"
	digitChars = "0123456789"

	// PunctChars is the punctuation allow-list accepted by the identity
	// provider's password policy. Characters outside this set are rejected
	// server-side, so the generator never emits them.
	PunctChars = "!#$%&()*+-./:;<=>?[\\]^_`{|}~"

	// Length is the fixed length of every generated password.
	Length = 16
)

// Generator produces policy-conforming passwords from a randomness source.
type Generator struct {
	rng *mathrand.Rand
}

// New creates a Generator seeded from the operating system's entropy pool.
func New() *Generator {
	var seed int64
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err == nil {
		seed = int64(binary.LittleEndian.Uint64(buf[:]))
	}
	return NewWithRand(mathrand.New(mathrand.NewSource(seed)))
}

// NewWithRand creates a Generator backed by the given randomness source.
// Passing a fixed-seed source makes the output deterministic, which is how
// the tests exercise the policy.
func NewWithRand(rng *mathrand.Rand) *Generator {
	return &Generator{rng: rng}
}

// Generate returns a 16-character password containing at least one uppercase
// letter, one lowercase letter, one digit, and one allow-listed punctuation
// character. The remaining characters are drawn uniformly from the union of
// all classes and the final order is shuffled.
func (g *Generator) Generate() string {
	union := upperChars + lowerChars + digitChars + PunctChars
	chars := []byte{
		upperChars[g.rng.Intn(len(upperChars))],
		lowerChars[g.rng.Intn(len(lowerChars))],
		digitChars[g.rng.Intn(len(digitChars))],
		PunctChars[g.rng.Intn(len(PunctChars))],
	}
	for len(chars) < Length {
		chars = append(chars, union[g.rng.Intn(len(union))])
	}
	g.rng.Shuffle(len(chars), func(i, j int) {
		chars[i], chars[j] = chars[j], chars[i]
	})
	return string(chars)
}
