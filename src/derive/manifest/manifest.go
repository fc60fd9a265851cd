// Package manifest implements directory-tree shaped derived types and the
// tree-construction primitive they share: building a new immutable tree from
// parent trees plus a change list, with untouched subtrees shared by
// reference, so that the cost of a commit is proportional to the number of
// changed paths rather than to the size of the tree.
package manifest

import (
	"bytes"
	"context"
	"sort"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/grovescm/grove/v2/src/changeset"
	"github.com/grovescm/grove/v2/src/internal/errors"
	"github.com/grovescm/grove/v2/src/internal/grovehash"
	"github.com/grovescm/grove/v2/src/internal/storage/kv"
)

// Directory entries are split across shards by name, so that updating one
// entry in a large directory rewrites one shard, not the whole listing.
const numShards = 16

const nodeKeyPrefix = "manifest/"

// Entry is one name in a directory.  Ref is the content ref for files and
// the child node id for directories.
type Entry struct {
	Name  string
	IsDir bool
	Ref   []byte
}

// node is a directory: per-shard blob ids, nil for empty shards.
type node struct {
	shards [numShards][]byte
}

func shardOf(name string) int {
	return int(name[0]) % numShards
}

func nodeKey(id []byte) []byte {
	return append([]byte(nodeKeyPrefix), []byte(grovehash.EncodeHash(id))...)
}

func putBlob(ctx context.Context, store kv.Store, data []byte) ([]byte, error) {
	sum := blake3.Sum256(data)
	id := sum[:]
	if err := store.Put(ctx, nodeKey(id), data); err != nil {
		return nil, err
	}
	return id, nil
}

func getBlob(ctx context.Context, store kv.Store, id []byte) ([]byte, error) {
	return store.Get(ctx, nodeKey(id))
}

type op struct {
	parts  []string
	remove bool
	ref    []byte
}

// Build constructs the tree for a changeset from its parent tree roots and
// its change list, and returns the new root id.  Unchanged subtrees and
// shards are carried over from the base parent by reference.  For merge
// commits the change list is expected to be relative to the first parent;
// how that parent is chosen is the caller's concern.
func Build(ctx context.Context, store kv.Store, parentRoots [][]byte, changes []changeset.Change) ([]byte, error) {
	ops := make([]op, 0, len(changes))
	for _, c := range changes {
		parts := strings.Split(c.Path, "/")
		for _, part := range parts {
			if part == "" {
				return nil, errors.Errorf("path %q has an empty component", c.Path)
			}
		}
		ops = append(ops, op{
			parts:  parts,
			remove: c.Op == changeset.OpDelete,
			ref:    c.ContentRef,
		})
	}
	var base []byte
	if len(parentRoots) > 0 {
		base = parentRoots[0]
	}
	id, _, err := build(ctx, store, base, ops)
	if err != nil {
		return nil, err
	}
	if id == nil {
		// Even an empty tree has a root, so that "derived" is always
		// distinguishable from "missing".
		return putBlob(ctx, store, encodeNode(&node{}))
	}
	return id, nil
}

func build(ctx context.Context, store kv.Store, baseID []byte, ops []op) (_ []byte, empty bool, _ error) {
	n := &node{}
	if baseID != nil {
		data, err := getBlob(ctx, store, baseID)
		if err != nil {
			return nil, false, err
		}
		if n, err = decodeNode(data); err != nil {
			return nil, false, err
		}
	}

	// Partition the change list by first path component.
	leaves := make(map[string]op)
	subs := make(map[string][]op)
	for _, o := range ops {
		name := o.parts[0]
		if len(o.parts) == 1 {
			leaves[name] = o
		} else {
			subs[name] = append(subs[name], op{parts: o.parts[1:], remove: o.remove, ref: o.ref})
		}
	}

	// Only shards holding a touched name are loaded and rewritten.
	touched := make(map[int][]string)
	for name := range leaves {
		touched[shardOf(name)] = append(touched[shardOf(name)], name)
	}
	for name := range subs {
		touched[shardOf(name)] = append(touched[shardOf(name)], name)
	}

	for si, names := range touched {
		entries, err := loadShard(ctx, store, n.shards[si])
		if err != nil {
			return nil, false, err
		}
		sort.Strings(names)
		seen := make(map[string]bool)
		for _, name := range names {
			if seen[name] {
				continue
			}
			seen[name] = true
			// A name can appear both as a leaf op and as a subdirectory
			// prefix (a file deleted and replaced by a directory, or the
			// reverse); apply the leaf op first.
			if o, ok := leaves[name]; ok {
				if o.remove {
					if !removeEntry(&entries, name) {
						return nil, false, errors.Errorf("delete of %q: no such entry", name)
					}
				} else {
					upsertEntry(&entries, Entry{Name: name, Ref: o.ref})
				}
			}
			sops, ok := subs[name]
			if !ok {
				continue
			}
			var childBase []byte
			if e := findEntry(entries, name); e != nil {
				if !e.IsDir {
					return nil, false, errors.Errorf("%q is a file, not a directory", name)
				}
				childBase = e.Ref
			}
			childID, childEmpty, err := build(ctx, store, childBase, sops)
			if err != nil {
				return nil, false, err
			}
			if childEmpty {
				removeEntry(&entries, name)
			} else {
				upsertEntry(&entries, Entry{Name: name, IsDir: true, Ref: childID})
			}
		}
		if len(entries) == 0 {
			n.shards[si] = nil
			continue
		}
		id, err := putBlob(ctx, store, encodeShard(entries))
		if err != nil {
			return nil, false, err
		}
		n.shards[si] = id
	}

	empty = true
	for _, s := range n.shards {
		if s != nil {
			empty = false
			break
		}
	}
	if empty {
		return nil, true, nil
	}
	id, err := putBlob(ctx, store, encodeNode(n))
	if err != nil {
		return nil, false, err
	}
	return id, false, nil
}

func loadShard(ctx context.Context, store kv.Store, id []byte) ([]Entry, error) {
	if id == nil {
		return nil, nil
	}
	data, err := getBlob(ctx, store, id)
	if err != nil {
		return nil, err
	}
	return decodeShard(data)
}

func findEntry(entries []Entry, name string) *Entry {
	i := sort.Search(len(entries), func(i int) bool { return entries[i].Name >= name })
	if i < len(entries) && entries[i].Name == name {
		return &entries[i]
	}
	return nil
}

func upsertEntry(entries *[]Entry, e Entry) {
	es := *entries
	i := sort.Search(len(es), func(i int) bool { return es[i].Name >= e.Name })
	if i < len(es) && es[i].Name == e.Name {
		es[i] = e
		return
	}
	es = append(es, Entry{})
	copy(es[i+1:], es[i:])
	es[i] = e
	*entries = es
}

func removeEntry(entries *[]Entry, name string) bool {
	es := *entries
	i := sort.Search(len(es), func(i int) bool { return es[i].Name >= name })
	if i >= len(es) || es[i].Name != name {
		return false
	}
	*entries = append(es[:i], es[i+1:]...)
	return true
}

// File is one file in a tree listing.
type File struct {
	Path string
	Ref  []byte
}

// List walks the tree at root and returns every file, sorted by path.
func List(ctx context.Context, store kv.Store, root []byte) ([]File, error) {
	var files []File
	if err := walk(ctx, store, root, "", &files); err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func walk(ctx context.Context, store kv.Store, id []byte, prefix string, files *[]File) error {
	data, err := getBlob(ctx, store, id)
	if err != nil {
		return err
	}
	n, err := decodeNode(data)
	if err != nil {
		return err
	}
	for _, shardID := range n.shards {
		entries, err := loadShard(ctx, store, shardID)
		if err != nil {
			return err
		}
		for _, e := range entries {
			path := prefix + e.Name
			if e.IsDir {
				if err := walk(ctx, store, e.Ref, path+"/", files); err != nil {
					return err
				}
				continue
			}
			*files = append(*files, File{Path: path, Ref: e.Ref})
		}
	}
	return nil
}

// SameSubtree reports whether two roots reference the identical node, i.e.
// the subtree is structurally shared.
func SameSubtree(a, b []byte) bool {
	return bytes.Equal(a, b)
}
