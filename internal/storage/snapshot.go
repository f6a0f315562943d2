package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
	"google.golang.org/protobuf/encoding/protowire"
)

// Snapshot envelope fields. The file is a flat protobuf message:
//
//	1 version   varint
//	2 created   varint (unix seconds)
//	3 digest    bytes  (blake3-256 of the raw database)
//	4 data      bytes  (zstd-compressed database image)
const (
	snapFieldVersion protowire.Number = 1
	snapFieldCreated protowire.Number = 2
	snapFieldDigest  protowire.Number = 3
	snapFieldData    protowire.Number = 4
	snapFieldSize    protowire.Number = 5

	snapshotVersion = 1
)

var ErrCorruptSnapshot = errors.New("corrupt snapshot")

// Snapshot is a decoded, verified snapshot file.
type Snapshot struct {
	Version uint64
	Created time.Time
	Digest  [32]byte
	Raw     []byte
}

// Snapshot writes a consistent, compressed copy of the database to dst and
// returns the number of bytes written.
func (c *Catalog) Snapshot(ctx context.Context, dst string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, err
	}
	tmp := dst + ".vacuum"
	_ = os.Remove(tmp)
	if _, err := c.sql.ExecContext(ctx, "VACUUM INTO ?", tmp); err != nil {
		return 0, fmt.Errorf("vacuum into: %w", err)
	}
	defer os.Remove(tmp)

	raw, err := os.ReadFile(tmp)
	if err != nil {
		return 0, err
	}
	env := EncodeSnapshot(raw, time.Now())

	part := dst + ".part"
	if err := os.WriteFile(part, env, 0o644); err != nil {
		return 0, err
	}
	if err := os.Rename(part, dst); err != nil {
		_ = os.Remove(part)
		return 0, err
	}
	return int64(len(env)), nil
}

// EncodeSnapshot builds the envelope for a raw database image.
func EncodeSnapshot(raw []byte, created time.Time) []byte {
	sum := blake3.Sum256(raw)
	data := compressSnapshot(raw)

	var b []byte
	b = protowire.AppendTag(b, snapFieldVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, snapshotVersion)
	b = protowire.AppendTag(b, snapFieldCreated, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(created.Unix()))
	b = protowire.AppendTag(b, snapFieldDigest, protowire.BytesType)
	b = protowire.AppendBytes(b, sum[:])
	b = protowire.AppendTag(b, snapFieldData, protowire.BytesType)
	b = protowire.AppendBytes(b, data)
	b = protowire.AppendTag(b, snapFieldSize, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(len(raw)))
	return b
}

// DecodeSnapshot parses an envelope, decompresses the database image and
// checks it against the stored digest.
func DecodeSnapshot(b []byte) (*Snapshot, error) {
	var (
		s          Snapshot
		compressed []byte
		haveDigest bool
		rawSize    uint64
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == snapFieldVersion && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: version", ErrCorruptSnapshot)
			}
			s.Version = v
			b = b[n:]
		case num == snapFieldCreated && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: created", ErrCorruptSnapshot)
			}
			s.Created = time.Unix(int64(v), 0)
			b = b[n:]
		case num == snapFieldDigest && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 || len(v) != len(s.Digest) {
				return nil, fmt.Errorf("%w: digest", ErrCorruptSnapshot)
			}
			copy(s.Digest[:], v)
			haveDigest = true
			b = b[n:]
		case num == snapFieldData && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: data", ErrCorruptSnapshot)
			}
			compressed = v
			b = b[n:]
		case num == snapFieldSize && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: size", ErrCorruptSnapshot)
			}
			rawSize = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d", ErrCorruptSnapshot, num)
			}
			b = b[n:]
		}
	}

	if s.Version != snapshotVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptSnapshot, s.Version)
	}
	if !haveDigest || compressed == nil {
		return nil, fmt.Errorf("%w: missing fields", ErrCorruptSnapshot)
	}
	raw, err := decompressSnapshot(compressed, rawSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	if rawSize != 0 && uint64(len(raw)) != rawSize {
		return nil, fmt.Errorf("%w: size mismatch", ErrCorruptSnapshot)
	}
	sum := blake3.Sum256(raw)
	if !bytes.Equal(sum[:], s.Digest[:]) {
		return nil, fmt.Errorf("%w: digest mismatch", ErrCorruptSnapshot)
	}
	s.Raw = raw
	return &s, nil
}

// RestoreSnapshot decodes the snapshot at src and replaces the database file
// dst with its image. dst is untouched unless the snapshot verifies. The
// database must not be open while it is restored.
func RestoreSnapshot(src, dst string) (*Snapshot, error) {
	b, err := os.ReadFile(src)
	if err != nil {
		return nil, err
	}
	s, err := DecodeSnapshot(b)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return nil, err
	}
	part := dst + ".part"
	if err := os.WriteFile(part, s.Raw, 0o644); err != nil {
		return nil, err
	}
	if err := os.Rename(part, dst); err != nil {
		_ = os.Remove(part)
		return nil, err
	}
	// A rollback journal left by the replaced file must not be replayed onto the image.
	_ = os.Remove(dst + "-journal")
	return s, nil
}
