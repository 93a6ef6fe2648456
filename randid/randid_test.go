package randid

import (
	"errors"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/require"
)

func TestStringAlphabet(t *testing.T) {
	for _, length := range []int{0, 1, 32, 512} {
		id, err := String(length)
		require.NoError(t, err)
		require.Len(t, id, length)
		for _, c := range id {
			if !strings.ContainsRune(Alphabet, c) {
				t.Fatalf("character %q is not part of the alphabet", c)
			}
		}
	}
}

func TestStringUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		id, err := String(32)
		require.NoError(t, err)
		require.False(t, seen[id], "duplicated id %v", id)
		seen[id] = true
	}
}

func TestStringDistribution(t *testing.T) {
	id, err := String(36 * 1000)
	require.NoError(t, err)
	counts := map[rune]int{}
	for _, c := range id {
		counts[c]++
	}
	require.Len(t, counts, len(Alphabet))
	for c, n := range counts {
		// expected 1000 per symbol, anything this far off means a broken picker
		if n < 700 || n > 1300 {
			t.Errorf("symbol %q appeared %v times", c, n)
		}
	}
}

func TestBrokenSource(t *testing.T) {
	g := New(iotest.ErrReader(errors.New("no entropy")))
	_, err := g.String(8)
	require.Error(t, err)
}

func TestNegativeLength(t *testing.T) {
	_, err := String(-1)
	require.Error(t, err)
}
