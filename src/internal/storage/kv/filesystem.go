package kv

import (
	"context"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/grovescm/grove/v2/src/internal/errors"
	"github.com/grovescm/grove/v2/src/internal/groveerr"
	"github.com/grovescm/grove/v2/src/internal/log"
	"github.com/grovescm/grove/v2/src/internal/stream"
)

var _ Store = &FSStore{}

// FSStore is a Store backed by a directory on the local filesystem.  Writes
// go to a staging file first and are renamed into place, so a crashed write
// never leaves a partial entry.
type FSStore struct {
	dir      string
	initOnce sync.Once
}

func NewFSStore(dir string) *FSStore {
	return &FSStore{
		dir: dir,
	}
}

func (s *FSStore) Put(ctx context.Context, key, value []byte) (retErr error) {
	log.Debug(ctx, "put", zap.ByteString("key", key), zap.Int("value_len", len(value)))
	if err := s.ensureInit(ctx); err != nil {
		return err
	}
	staging := s.stagingPath()
	defer s.cleanupFile(ctx, &retErr, staging)
	if err := os.WriteFile(staging, value, 0o644); err != nil {
		return errors.EnsureStack(err)
	}
	return errors.EnsureStack(os.Rename(staging, s.finalPathFor(key)))
}

func (s *FSStore) Get(ctx context.Context, key []byte) ([]byte, error) {
	data, err := os.ReadFile(s.finalPathFor(key))
	if err != nil {
		return nil, s.transformError(err, key)
	}
	return data, nil
}

func (s *FSStore) Exists(ctx context.Context, key []byte) (bool, error) {
	_, err := os.Stat(s.finalPathFor(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, s.transformError(err, key)
	}
	return true, nil
}

func (s *FSStore) Delete(ctx context.Context, key []byte) error {
	if err := s.ensureInit(ctx); err != nil {
		return err
	}
	err := os.Remove(s.finalPathFor(key))
	if os.IsNotExist(err) {
		err = nil
	}
	return errors.EnsureStack(err)
}

func (s *FSStore) stagingPath() string {
	return filepath.Join(s.dir, "staging", uuid.NewString())
}

func (s *FSStore) finalPathFor(k []byte) string {
	return filepath.Join(s.dir, "objects", hex.EncodeToString(k))
}

func (s *FSStore) NewKeyIterator(span Span) stream.Iterator[[]byte] {
	return &fsIterator{s: s, span: span}
}

type fsIterator struct {
	s    *FSStore
	span Span
	keys [][]byte
	pos  int
}

func (it *fsIterator) Next(ctx context.Context, dst *[]byte) error {
	if it.keys == nil {
		dirEnts, err := os.ReadDir(filepath.Join(it.s.dir, "objects"))
		if err != nil {
			if os.IsNotExist(err) {
				return stream.EOS
			}
			return errors.EnsureStack(err)
		}
		keys := [][]byte{}
		for i := range dirEnts {
			key, err := hex.DecodeString(dirEnts[i].Name())
			if err != nil {
				return errors.EnsureStack(err)
			}
			keys = append(keys, key)
		}
		it.keys = keys
	}
	for it.pos < len(it.keys) {
		k := it.keys[it.pos]
		it.pos++
		if it.span.Contains(k) {
			*dst = append((*dst)[:0], k...)
			return nil
		}
	}
	return stream.EOS
}

func (s *FSStore) ensureInit(ctx context.Context) (err error) {
	s.initOnce.Do(func() {
		err = s.init(ctx)
	})
	return err
}

func (s *FSStore) init(ctx context.Context) error {
	if err := os.RemoveAll(filepath.Join(s.dir, "staging")); err != nil {
		return errors.EnsureStack(err)
	}
	if err := os.MkdirAll(filepath.Join(s.dir, "staging"), 0o755); err != nil {
		return errors.EnsureStack(err)
	}
	if err := os.MkdirAll(filepath.Join(s.dir, "objects"), 0o755); err != nil {
		return errors.EnsureStack(err)
	}
	log.Info(ctx, "initialized fs-backed store", zap.String("root", s.dir))
	return nil
}

func (s *FSStore) transformError(err error, key []byte) error {
	if err == nil {
		return nil
	}
	if os.IsNotExist(err) {
		return groveerr.NewNotExist("kv.FSStore", hex.EncodeToString(key))
	}
	return errors.EnsureStack(err)
}

// cleanupFile removes leftovers from the staging area.
func (s *FSStore) cleanupFile(ctx context.Context, retErr *error, p string) {
	err := os.Remove(p)
	if os.IsNotExist(err) {
		err = nil
	}
	if err != nil {
		if *retErr == nil {
			*retErr = err
		} else {
			log.Error(ctx, "error deleting staging file", zap.Error(err))
		}
	}
}
