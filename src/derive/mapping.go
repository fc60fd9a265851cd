package derive

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/grovescm/grove/v2/src/changeset"
	"github.com/grovescm/grove/v2/src/internal/errors"
	"github.com/grovescm/grove/v2/src/internal/groveerr"
	"github.com/grovescm/grove/v2/src/internal/storage/kv"
)

// Mapping is the persistent memoization store for one derived type.
type Mapping interface {
	// Get returns the values persisted for ids.  The result is partial:
	// ids with no entry are simply absent, never errors.
	Get(ctx context.Context, ids []changeset.ID) (map[changeset.ID]Value, error)
	// Put persists the value for id.  Put is idempotent, and a Get
	// immediately after a Put observes the value.
	Put(ctx context.Context, id changeset.ID, v Value) error
}

// DefaultMappingCacheSize is the number of decoded values a kv mapping keeps
// in memory.
const DefaultMappingCacheSize = 1024

// mappingEntry wire form: a small record referencing the value's own
// separately stored payload.  Field numbers are frozen.
const (
	meFieldVersion = 1
	meFieldValue   = 2
)

const mappingEntryVersion = 1

// kvMapping is a Mapping for one type, layered on a kv.Store.  Keys are
// derived_root_<type>.<prefix><commit-hex>.
type kvMapping struct {
	store    kv.Store
	typeName string
	prefix   string
	codec    Derivable
	cache    *lru.Cache[changeset.ID, Value]
}

// NewMapping returns the standard kv-backed Mapping for d.
func NewMapping(store kv.Store, d Derivable) Mapping {
	cache, err := lru.New[changeset.ID, Value](DefaultMappingCacheSize)
	if err != nil {
		// lru.New only errors on a non-positive size.
		panic(err)
	}
	return &kvMapping{
		store:    store,
		typeName: d.Name(),
		prefix:   d.KeyPrefix(),
		codec:    d,
		cache:    cache,
	}
}

// MappingKey returns the persisted key for (typeName, prefix, id).
func MappingKey(typeName, prefix string, id changeset.ID) []byte {
	return []byte(fmt.Sprintf("derived_root_%s.%s%s", typeName, prefix, id))
}

func (m *kvMapping) Get(ctx context.Context, ids []changeset.ID) (map[changeset.ID]Value, error) {
	ret := make(map[changeset.ID]Value)
	for _, id := range ids {
		if v, ok := m.cache.Get(id); ok {
			ret[id] = v
			continue
		}
		data, err := m.store.Get(ctx, MappingKey(m.typeName, m.prefix, id))
		if err != nil {
			if groveerr.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		v, err := m.decodeEntry(id, data)
		if err != nil {
			return nil, err
		}
		m.cache.Add(id, v)
		ret[id] = v
	}
	return ret, nil
}

func (m *kvMapping) Put(ctx context.Context, id changeset.ID, v Value) error {
	data, err := m.encodeEntry(v)
	if err != nil {
		return err
	}
	if err := m.store.Put(ctx, MappingKey(m.typeName, m.prefix, id), data); err != nil {
		return err
	}
	m.cache.Add(id, v)
	return nil
}

func (m *kvMapping) encodeEntry(v Value) ([]byte, error) {
	valueData, err := m.codec.EncodeValue(v)
	if err != nil {
		return nil, errors.Wrapf(err, "encoding %s value", m.typeName)
	}
	var buf []byte
	buf = protowire.AppendTag(buf, meFieldVersion, protowire.VarintType)
	buf = protowire.AppendVarint(buf, mappingEntryVersion)
	buf = protowire.AppendTag(buf, meFieldValue, protowire.BytesType)
	buf = protowire.AppendBytes(buf, valueData)
	return buf, nil
}

func (m *kvMapping) decodeEntry(id changeset.ID, data []byte) (Value, error) {
	var valueData []byte
	var version uint64
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, groveerr.NewDecodeError(m.typeName, id.String(), protowire.ParseError(n))
		}
		data = data[n:]
		switch num {
		case meFieldVersion:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, groveerr.NewDecodeError(m.typeName, id.String(), protowire.ParseError(n))
			}
			data = data[n:]
			version = v
		case meFieldValue:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, groveerr.NewDecodeError(m.typeName, id.String(), protowire.ParseError(n))
			}
			data = data[n:]
			valueData = v
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, groveerr.NewDecodeError(m.typeName, id.String(), protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	if version != mappingEntryVersion {
		return nil, groveerr.NewDecodeError(m.typeName, id.String(), errors.Errorf("unknown mapping entry version %d", version))
	}
	v, err := m.codec.DecodeValue(valueData)
	if err != nil {
		return nil, groveerr.NewDecodeError(m.typeName, id.String(), err)
	}
	return v, nil
}
