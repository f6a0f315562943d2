// Package wire implements the catalog protocol: length-prefixed frames that
// carry either one JSON object or one raw image payload.
package wire

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// HeaderSize is the length prefix: a big-endian uint32 byte count.
const HeaderSize = 4

var ErrFrameTooLarge = errors.New("frame exceeds size limit")

// ReadHeader reads one length prefix.
func ReadHeader(r io.Reader) (uint32, error) {
	var lenBuf [HeaderSize]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(lenBuf[:]), nil
}

// WriteHeader writes one length prefix.
func WriteHeader(w io.Writer, n uint32) error {
	var lenBuf [HeaderSize]byte
	binary.BigEndian.PutUint32(lenBuf[:], n)
	_, err := w.Write(lenBuf[:])
	return err
}

// ReadFrame reads a whole frame of at most max bytes. An oversized frame is
// reported without consuming its body.
func ReadFrame(r io.Reader, max uint32) ([]byte, error) {
	n, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}
	if max > 0 && n > max {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, max)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf, nil
}

// WriteFrame writes header and payload with a single Write call.
func WriteFrame(w io.Writer, payload []byte) error {
	if uint64(len(payload)) > uint64(^uint32(0)) {
		return ErrFrameTooLarge
	}
	buf := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[HeaderSize:], payload)
	_, err := w.Write(buf)
	return err
}

// WriteJSON marshals v and sends it as one frame.
func WriteJSON(w io.Writer, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return WriteFrame(w, b)
}

// Discard skips n payload bytes so the stream stays aligned on frames.
func Discard(r io.Reader, n uint32) error {
	_, err := io.CopyN(io.Discard, r, int64(n))
	return err
}
