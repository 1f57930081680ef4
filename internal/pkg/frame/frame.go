/*
Package frame implements the length-prefixed framing used on every relay connection.

Each frame is a 4-byte unsigned big-endian length N followed by exactly N bytes of payload.
The package has no knowledge of what the payload means; it only guarantees that a payload
is handed to the caller once it has been received in full.
*/
package frame

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// HeaderLength is the size in bytes of the length prefix.
const HeaderLength = 4

var (
	// ErrEndOfStream is returned when the peer closed the stream before a complete frame arrived.
	// A clean close and a close in the middle of a frame are reported identically.
	ErrEndOfStream = errors.New("end of stream")

	// ErrFrameTooLarge is returned when a header announces a payload above the reader's limit.
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")
)

// Encode prefixes payload with its length as a 4-byte unsigned big-endian integer.
func Encode(payload []byte) []byte {
	buf := make([]byte, HeaderLength+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[HeaderLength:], payload)
	return buf
}

// Write encodes payload and writes the whole frame with a single Write call,
// so that concurrent writers serialized by the caller never interleave headers and bodies.
func Write(w io.Writer, payload []byte) error {
	if _, err := w.Write(Encode(payload)); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Reader decodes consecutive frames from an underlying byte stream.
type Reader struct {
	// r buffers the underlying stream.
	r *bufio.Reader

	// maxSize is the largest accepted payload in bytes. Zero means unbounded.
	maxSize uint32

	// header is reused between reads.
	header [HeaderLength]byte
}

// NewReader returns a Reader over r. A maxSize of zero disables the payload size limit.
func NewReader(r io.Reader, maxSize uint32) *Reader {
	return &Reader{
		r:       bufio.NewReader(r),
		maxSize: maxSize,
	}
}

// Next blocks until one complete frame has been read and returns its payload.
// It returns ErrEndOfStream when the stream ends before a full frame, ErrFrameTooLarge when
// the announced size exceeds the limit, and the wrapped transport error for any other failure.
func (fr *Reader) Next() ([]byte, error) {
	if _, err := io.ReadFull(fr.r, fr.header[:]); err != nil {
		return nil, translate(err)
	}

	size := binary.BigEndian.Uint32(fr.header[:])
	if fr.maxSize > 0 && size > fr.maxSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, size, fr.maxSize)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(fr.r, payload); err != nil {
		return nil, translate(err)
	}

	return payload, nil
}

// translate maps the io end-of-file conditions onto ErrEndOfStream.
func translate(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrEndOfStream
	}
	return fmt.Errorf("read frame: %w", err)
}
