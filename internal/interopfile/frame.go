// Package interopfile implements the binary intermediate file format QPACK
// interop tooling uses to exchange encoded header blocks out of band from a
// live connection (spec.md §6): a sequence of frames, each a big-endian
// uint64 stream id, a big-endian uint32 payload length, then the payload.
package interopfile

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

type Frame struct {
	StreamID uint64
	Payload  []byte
}

// WriteFrame appends one frame to w.
func WriteFrame(w io.Writer, f Frame) error {
	var hdr [12]byte
	binary.BigEndian.PutUint64(hdr[0:8], f.StreamID)
	binary.BigEndian.PutUint32(hdr[8:12], uint32(len(f.Payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(f.Payload)
	return err
}

// ReadFrame reads one frame from r, returning io.EOF only if no bytes of a
// new frame were read at all (a partial header or payload is a malformed
// stream, not a clean end).
func ReadFrame(r io.Reader) (Frame, error) {
	var hdr [12]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return Frame{}, fmt.Errorf("interopfile: truncated frame header: %w", err)
		}
		return Frame{}, err
	}
	streamID := binary.BigEndian.Uint64(hdr[0:8])
	length := binary.BigEndian.Uint32(hdr[8:12])
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Frame{}, fmt.Errorf("interopfile: truncated frame payload: %w", err)
	}
	return Frame{StreamID: streamID, Payload: payload}, nil
}

// ReadAll reads every frame until EOF.
func ReadAll(r io.Reader) ([]Frame, error) {
	br := bufio.NewReader(r)
	var frames []Frame
	for {
		f, err := ReadFrame(br)
		if err == io.EOF {
			return frames, nil
		}
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
}
