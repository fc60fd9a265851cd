package changeset

import (
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/grovescm/grove/v2/src/internal/errors"
	"github.com/grovescm/grove/v2/src/internal/groveerr"
)

func unixTime(v int64) time.Time {
	return time.Unix(v, 0).UTC()
}

// The wire form is hand-rolled protobuf: stable across processes and
// independent of in-memory layout.  Field numbers are frozen; add new fields,
// never renumber.
const (
	csFieldParent   = 1
	csFieldChange   = 2
	csFieldAuthor   = 3
	csFieldMessage  = 4
	csFieldTimeUnix = 5

	chFieldPath       = 1
	chFieldOp         = 2
	chFieldContentRef = 3
)

// Encode returns the stable wire form of cs.  The ID is not part of the
// encoding; it is derived from it.
func Encode(cs *Changeset) []byte {
	return appendChangesetBody(nil, cs)
}

func appendChangesetBody(buf []byte, cs *Changeset) []byte {
	for _, p := range cs.Parents {
		buf = protowire.AppendTag(buf, csFieldParent, protowire.BytesType)
		buf = protowire.AppendBytes(buf, p[:])
	}
	for _, c := range cs.Changes {
		buf = protowire.AppendTag(buf, csFieldChange, protowire.BytesType)
		buf = protowire.AppendBytes(buf, appendChange(nil, c))
	}
	if cs.Metadata.Author != "" {
		buf = protowire.AppendTag(buf, csFieldAuthor, protowire.BytesType)
		buf = protowire.AppendString(buf, cs.Metadata.Author)
	}
	if cs.Metadata.Message != "" {
		buf = protowire.AppendTag(buf, csFieldMessage, protowire.BytesType)
		buf = protowire.AppendString(buf, cs.Metadata.Message)
	}
	if !cs.Metadata.Time.IsZero() {
		buf = protowire.AppendTag(buf, csFieldTimeUnix, protowire.VarintType)
		buf = protowire.AppendVarint(buf, uint64(cs.Metadata.Time.Unix()))
	}
	return buf
}

func appendChange(buf []byte, c Change) []byte {
	buf = protowire.AppendTag(buf, chFieldPath, protowire.BytesType)
	buf = protowire.AppendString(buf, c.Path)
	buf = protowire.AppendTag(buf, chFieldOp, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(c.Op))
	if len(c.ContentRef) > 0 {
		buf = protowire.AppendTag(buf, chFieldContentRef, protowire.BytesType)
		buf = protowire.AppendBytes(buf, c.ContentRef)
	}
	return buf
}

// Decode parses the wire form of a changeset and recomputes its ID.
func Decode(data []byte) (*Changeset, error) {
	cs, err := decodeBody(data)
	if err != nil {
		return nil, groveerr.NewDecodeError("changeset", "", err)
	}
	cs.ID = cs.ComputeID()
	return cs, nil
}

func decodeBody(data []byte) (*Changeset, error) {
	cs := &Changeset{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, errors.EnsureStack(protowire.ParseError(n))
		}
		data = data[n:]
		switch num {
		case csFieldParent:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, errors.EnsureStack(protowire.ParseError(n))
			}
			data = data[n:]
			p, err := IDFromBytes(v)
			if err != nil {
				return nil, err
			}
			cs.Parents = append(cs.Parents, p)
		case csFieldChange:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, errors.EnsureStack(protowire.ParseError(n))
			}
			data = data[n:]
			c, err := decodeChange(v)
			if err != nil {
				return nil, err
			}
			cs.Changes = append(cs.Changes, c)
		case csFieldAuthor:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, errors.EnsureStack(protowire.ParseError(n))
			}
			data = data[n:]
			cs.Metadata.Author = v
		case csFieldMessage:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, errors.EnsureStack(protowire.ParseError(n))
			}
			data = data[n:]
			cs.Metadata.Message = v
		case csFieldTimeUnix:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, errors.EnsureStack(protowire.ParseError(n))
			}
			data = data[n:]
			cs.Metadata.Time = unixTime(int64(v))
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, errors.EnsureStack(protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return cs, nil
}

func decodeChange(data []byte) (Change, error) {
	var c Change
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return c, errors.EnsureStack(protowire.ParseError(n))
		}
		data = data[n:]
		switch num {
		case chFieldPath:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return c, errors.EnsureStack(protowire.ParseError(n))
			}
			data = data[n:]
			c.Path = v
		case chFieldOp:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return c, errors.EnsureStack(protowire.ParseError(n))
			}
			data = data[n:]
			c.Op = Op(v)
		case chFieldContentRef:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return c, errors.EnsureStack(protowire.ParseError(n))
			}
			data = data[n:]
			c.ContentRef = append([]byte{}, v...)
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return c, errors.EnsureStack(protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return c, nil
}
