package randutil

import (
	"io"
	"math/rand"
	"testing"
	"time"

	"github.com/grovescm/grove/v2/src/internal/require"
)

var random = rand.New(rand.NewSource(time.Now().UTC().UnixNano()))

// testLetters assumes that with a large enough input every letter appears at
// least once.  1000 draws over 52 letters has been enough in practice; bump
// the count if this ever flakes.
func testLetters(t *testing.T, buf []byte) {
	t.Helper()
	got := map[byte]int{}
	for _, b := range buf {
		got[b]++
	}
	for _, letter := range letters {
		if n := got[letter]; n < 1 {
			t.Errorf("letter %s never appears", string(letter))
		}
	}
}

func TestBytes(t *testing.T) {
	testLetters(t, Bytes(random, 1000))
}

func TestBytesReader(t *testing.T) {
	r := NewBytesReader(random, 1000)
	buf, err := io.ReadAll(r)
	require.NoError(t, err)
	testLetters(t, buf)
}
