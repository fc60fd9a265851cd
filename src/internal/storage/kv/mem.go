package kv

import (
	"bytes"
	"context"
	"encoding/hex"
	"sync"

	"github.com/google/btree"

	"github.com/grovescm/grove/v2/src/internal/groveerr"
	"github.com/grovescm/grove/v2/src/internal/stream"
)

var _ Store = &MemStore{}

type memItem struct {
	key, value []byte
}

func memLess(a, b memItem) bool {
	return bytes.Compare(a.key, b.key) < 0
}

// MemStore is an in-memory Store, ordered by key.  It is safe for concurrent
// use.
type MemStore struct {
	mu   sync.RWMutex
	tree *btree.BTreeG[memItem]
}

func NewMemStore() *MemStore {
	return &MemStore{
		tree: btree.NewG(2, memLess),
	}
}

func (s *MemStore) Get(ctx context.Context, key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.tree.Get(memItem{key: key})
	if !ok {
		return nil, groveerr.NewNotExist("kv.MemStore", hex.EncodeToString(key))
	}
	return append([]byte{}, item.value...), nil
}

func (s *MemStore) Put(ctx context.Context, key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree.ReplaceOrInsert(memItem{
		key:   append([]byte{}, key...),
		value: append([]byte{}, value...),
	})
	return nil
}

func (s *MemStore) Delete(ctx context.Context, key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree.Delete(memItem{key: key})
	return nil
}

func (s *MemStore) Exists(ctx context.Context, key []byte) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tree.Get(memItem{key: key})
	return ok, nil
}

// Len returns the number of entries in the store.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Len()
}

func (s *MemStore) NewKeyIterator(span Span) stream.Iterator[[]byte] {
	return &memIterator{s: s, span: span, next: span.Begin}
}

type memIterator struct {
	s    *MemStore
	span Span
	next []byte
	done bool
}

func (it *memIterator) Next(ctx context.Context, dst *[]byte) error {
	if it.done {
		return stream.EOS
	}
	it.s.mu.RLock()
	defer it.s.mu.RUnlock()
	var found []byte
	it.s.tree.AscendGreaterOrEqual(memItem{key: it.next}, func(x memItem) bool {
		found = x.key
		return false
	})
	if found == nil || !it.span.Contains(found) {
		it.done = true
		return stream.EOS
	}
	*dst = append((*dst)[:0], found...)
	it.next = KeyAfter(found)
	return nil
}
