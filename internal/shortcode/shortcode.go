// Package shortcode derives deterministic short codes from canonical
// URLs. The same (workspace, url, salt) triple always yields the same
// code, which is what makes link creation idempotent.
package shortcode

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// Alphabet is base58: 58 symbols, visually ambiguous 0, O, I and l
// excluded. The first symbol is the zero digit.
const Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// DefaultLength of a generated code. Long enough that a same-salt
// collision between two URLs in one workspace is negligible, short
// enough to stay typeable.
const DefaultLength = 8

var ErrEmptyURL = errors.New("canonical url is empty")

var base = big.NewInt(int64(len(Alphabet)))

// Generate derives a code of DefaultLength from the canonical URL,
// workspace id and retry salt. Salt is 0 on the first attempt and only
// grows when the resolver hits a true collision.
func Generate(canonicalURL string, workspaceID int64, salt int) (string, error) {
	return GenerateN(canonicalURL, workspaceID, salt, DefaultLength)
}

// GenerateN is Generate with an explicit code length.
func GenerateN(canonicalURL string, workspaceID int64, salt int, length int) (string, error) {
	const op = "shortcode.GenerateN"

	if canonicalURL == "" {
		return "", fmt.Errorf("%s: %w", op, ErrEmptyURL)
	}

	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%d", workspaceID, canonicalURL, salt)
	digest := h.Sum(nil)

	return Encode(new(big.Int).SetBytes(digest), length), nil
}

// Encode converts n (treated as an unsigned big-endian integer) into
// exactly length base58 symbols: repeated division by 58 emits digits
// least significant first, and small values come out left-padded with
// the zero symbol. Encode(0, 1) == "1".
func Encode(n *big.Int, length int) string {
	x := new(big.Int).Set(n)
	rem := new(big.Int)

	buf := make([]byte, length)
	for i := length - 1; i >= 0; i-- {
		x.DivMod(x, base, rem)
		buf[i] = Alphabet[rem.Int64()]
	}

	return string(buf)
}

// Valid reports whether s is a well-formed generated code.
func Valid(s string) bool {
	if len(s) != DefaultLength {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune(Alphabet, r) {
			return false
		}
	}
	return true
}
