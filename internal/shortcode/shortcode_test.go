package shortcode

import (
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlphabet(t *testing.T) {
	assert.Len(t, Alphabet, 58)
	assert.Equal(t, byte('1'), Alphabet[0])

	for _, excluded := range []string{"0", "O", "I", "l"} {
		assert.NotContains(t, Alphabet, excluded)
	}

	// no duplicate symbols
	seen := map[rune]bool{}
	for _, r := range Alphabet {
		assert.False(t, seen[r], "duplicate symbol %q", r)
		seen[r] = true
	}
}

func TestEncode(t *testing.T) {
	cases := []struct {
		name   string
		n      int64
		length int
		want   string
	}{
		{name: "zero", n: 0, length: 1, want: "1"},
		{name: "zero padded", n: 0, length: 4, want: "1111"},
		{name: "one", n: 1, length: 1, want: "2"},
		{name: "fifty-seven", n: 57, length: 1, want: "z"},
		{name: "fifty-eight rolls over", n: 58, length: 2, want: "21"},
		{name: "small value left-padded", n: 58, length: 5, want: "11121"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := Encode(big.NewInt(tc.n), tc.length)
			assert.Equal(t, tc.want, got)
			assert.Len(t, got, tc.length)
		})
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	a, err := Generate("http://example.com/path", 1, 0)
	require.NoError(t, err)

	b, err := Generate("http://example.com/path", 1, 0)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, DefaultLength)
	assert.True(t, Valid(a))
}

func TestGenerate_InputsChangeCode(t *testing.T) {
	base, err := Generate("http://example.com/path", 1, 0)
	require.NoError(t, err)

	otherURL, err := Generate("http://example.com/other", 1, 0)
	require.NoError(t, err)
	assert.NotEqual(t, base, otherURL)

	otherWorkspace, err := Generate("http://example.com/path", 2, 0)
	require.NoError(t, err)
	assert.NotEqual(t, base, otherWorkspace)

	otherSalt, err := Generate("http://example.com/path", 1, 1)
	require.NoError(t, err)
	assert.NotEqual(t, base, otherSalt)
}

func TestGenerate_EmptyURL(t *testing.T) {
	_, err := Generate("", 1, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyURL)
}

func TestGenerate_AlphabetOnly(t *testing.T) {
	for salt := 0; salt < 20; salt++ {
		code, err := Generate("https://example.com/some/long/path?a=1&b=2", 42, salt)
		require.NoError(t, err)

		for _, r := range code {
			assert.True(t, strings.ContainsRune(Alphabet, r), "symbol %q outside alphabet", r)
		}
	}
}
