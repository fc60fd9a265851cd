package kv

import (
	"testing"
)

func TestMemStore(t *testing.T) {
	TestStore(t, func(t testing.TB) Store {
		return NewMemStore()
	})
}

func TestFSStore(t *testing.T) {
	TestStore(t, func(t testing.TB) Store {
		return NewFSStore(t.TempDir())
	})
}

func TestPrefixEnd(t *testing.T) {
	for _, c := range []struct {
		prefix, end []byte
	}{
		{nil, nil},
		{[]byte("a"), []byte("b")},
		{[]byte{0xff}, nil},
		{[]byte{0x01, 0xff}, []byte{0x02}},
	} {
		actual := PrefixEnd(c.prefix)
		if string(actual) != string(c.end) {
			t.Errorf("PrefixEnd(%x) = %x, expected %x", c.prefix, actual, c.end)
		}
	}
}
