package manifest

import (
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/grovescm/grove/v2/src/internal/errors"
)

// Node and shard blobs are hand-rolled protobuf; the node id is the blake3
// hash of the encoding, so the encoding must stay canonical: fields in
// order, shards by ascending index, entries sorted by name.
const (
	nodeFieldShard = 1

	shardFieldIndex = 1
	shardFieldID    = 2

	entryFieldName  = 1
	entryFieldIsDir = 2
	entryFieldRef   = 3
)

func encodeNode(n *node) []byte {
	var buf []byte
	for i, id := range n.shards {
		if id == nil {
			continue
		}
		var sb []byte
		sb = protowire.AppendTag(sb, shardFieldIndex, protowire.VarintType)
		sb = protowire.AppendVarint(sb, uint64(i))
		sb = protowire.AppendTag(sb, shardFieldID, protowire.BytesType)
		sb = protowire.AppendBytes(sb, id)
		buf = protowire.AppendTag(buf, nodeFieldShard, protowire.BytesType)
		buf = protowire.AppendBytes(buf, sb)
	}
	return buf
}

func decodeNode(data []byte) (*node, error) {
	n := &node{}
	for len(data) > 0 {
		num, typ, sz := protowire.ConsumeTag(data)
		if sz < 0 {
			return nil, errors.EnsureStack(protowire.ParseError(sz))
		}
		data = data[sz:]
		if num != nodeFieldShard {
			sz := protowire.ConsumeFieldValue(num, typ, data)
			if sz < 0 {
				return nil, errors.EnsureStack(protowire.ParseError(sz))
			}
			data = data[sz:]
			continue
		}
		v, sz := protowire.ConsumeBytes(data)
		if sz < 0 {
			return nil, errors.EnsureStack(protowire.ParseError(sz))
		}
		data = data[sz:]
		idx, id, err := decodeShardRef(v)
		if err != nil {
			return nil, err
		}
		if idx < 0 || idx >= numShards {
			return nil, errors.Errorf("shard index %d out of range", idx)
		}
		n.shards[idx] = id
	}
	return n, nil
}

func decodeShardRef(data []byte) (int, []byte, error) {
	var idx int
	var id []byte
	for len(data) > 0 {
		num, typ, sz := protowire.ConsumeTag(data)
		if sz < 0 {
			return 0, nil, errors.EnsureStack(protowire.ParseError(sz))
		}
		data = data[sz:]
		switch num {
		case shardFieldIndex:
			v, sz := protowire.ConsumeVarint(data)
			if sz < 0 {
				return 0, nil, errors.EnsureStack(protowire.ParseError(sz))
			}
			data = data[sz:]
			idx = int(v)
		case shardFieldID:
			v, sz := protowire.ConsumeBytes(data)
			if sz < 0 {
				return 0, nil, errors.EnsureStack(protowire.ParseError(sz))
			}
			data = data[sz:]
			id = append([]byte{}, v...)
		default:
			sz := protowire.ConsumeFieldValue(num, typ, data)
			if sz < 0 {
				return 0, nil, errors.EnsureStack(protowire.ParseError(sz))
			}
			data = data[sz:]
		}
	}
	return idx, id, nil
}

func encodeShard(entries []Entry) []byte {
	var buf []byte
	for _, e := range entries {
		var eb []byte
		eb = protowire.AppendTag(eb, entryFieldName, protowire.BytesType)
		eb = protowire.AppendString(eb, e.Name)
		if e.IsDir {
			eb = protowire.AppendTag(eb, entryFieldIsDir, protowire.VarintType)
			eb = protowire.AppendVarint(eb, 1)
		}
		eb = protowire.AppendTag(eb, entryFieldRef, protowire.BytesType)
		eb = protowire.AppendBytes(eb, e.Ref)
		buf = protowire.AppendTag(buf, nodeFieldShard, protowire.BytesType)
		buf = protowire.AppendBytes(buf, eb)
	}
	return buf
}

func decodeShard(data []byte) ([]Entry, error) {
	var entries []Entry
	for len(data) > 0 {
		num, typ, sz := protowire.ConsumeTag(data)
		if sz < 0 {
			return nil, errors.EnsureStack(protowire.ParseError(sz))
		}
		data = data[sz:]
		if num != nodeFieldShard {
			sz := protowire.ConsumeFieldValue(num, typ, data)
			if sz < 0 {
				return nil, errors.EnsureStack(protowire.ParseError(sz))
			}
			data = data[sz:]
			continue
		}
		v, sz := protowire.ConsumeBytes(data)
		if sz < 0 {
			return nil, errors.EnsureStack(protowire.ParseError(sz))
		}
		data = data[sz:]
		e, err := decodeEntry(v)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func decodeEntry(data []byte) (Entry, error) {
	var e Entry
	for len(data) > 0 {
		num, typ, sz := protowire.ConsumeTag(data)
		if sz < 0 {
			return e, errors.EnsureStack(protowire.ParseError(sz))
		}
		data = data[sz:]
		switch num {
		case entryFieldName:
			v, sz := protowire.ConsumeString(data)
			if sz < 0 {
				return e, errors.EnsureStack(protowire.ParseError(sz))
			}
			data = data[sz:]
			e.Name = v
		case entryFieldIsDir:
			v, sz := protowire.ConsumeVarint(data)
			if sz < 0 {
				return e, errors.EnsureStack(protowire.ParseError(sz))
			}
			data = data[sz:]
			e.IsDir = v != 0
		case entryFieldRef:
			v, sz := protowire.ConsumeBytes(data)
			if sz < 0 {
				return e, errors.EnsureStack(protowire.ParseError(sz))
			}
			data = data[sz:]
			e.Ref = append([]byte{}, v...)
		default:
			sz := protowire.ConsumeFieldValue(num, typ, data)
			if sz < 0 {
				return e, errors.EnsureStack(protowire.ParseError(sz))
			}
			data = data[sz:]
		}
	}
	return e, nil
}
