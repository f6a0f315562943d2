package storage

import (
	"fmt"
	"math"

	"github.com/klauspost/compress/zstd"
)

// maxSnapshotBytes bounds the decoded size of a snapshot so a corrupt or
// hostile frame header cannot force a huge allocation.
const maxSnapshotBytes int64 = 4 << 30

var (
	snapshotEncoder, _ = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedBetterCompression),
		zstd.WithEncoderCRC(true))
	snapshotDecoder, _ = zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(0),
		zstd.WithDecoderMaxMemory(uint64(maxSnapshotBytes)))
)

// compressSnapshot zstd-compresses a database image in one shot. SQLite pages
// are highly repetitive, so the output buffer starts at a quarter of the input.
func compressSnapshot(raw []byte) []byte {
	return snapshotEncoder.EncodeAll(raw, make([]byte, 0, len(raw)/4+64))
}

// decompressSnapshot reverses compressSnapshot. sizeHint, when known, avoids
// regrowing the destination; hints beyond the limit or the platform's int
// range are ignored.
func decompressSnapshot(data []byte, sizeHint uint64) ([]byte, error) {
	var dst []byte
	if sizeHint > 0 && sizeHint <= uint64(maxSnapshotBytes) && sizeHint <= math.MaxInt {
		dst = make([]byte, 0, int(sizeHint))
	}
	out, err := snapshotDecoder.DecodeAll(data, dst)
	if err != nil {
		return nil, fmt.Errorf("decompress snapshot: %w", err)
	}
	return out, nil
}
