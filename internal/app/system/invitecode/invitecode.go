// Package invitecode generates and normalizes team invitation codes.
//
// A code is Length characters drawn uniformly from Alphabet. Codes are
// stored uppercase and matched case-insensitively by normalizing input first.
package invitecode

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const (
	// Alphabet is the fixed draw alphabet.
	Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// Length is the number of characters in a code.
	Length = 8
)

var alphabetSize = big.NewInt(int64(len(Alphabet)))

// Generate returns a new random code.
func Generate() (string, error) {
	var b strings.Builder
	b.Grow(Length)
	for i := 0; i < Length; i++ {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", err
		}
		b.WriteByte(Alphabet[n.Int64()])
	}
	return b.String(), nil
}

// Normalize trims and uppercases user input.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Valid reports whether code (already normalized) has the generated shape.
func Valid(code string) bool {
	if len(code) != Length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(Alphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}
