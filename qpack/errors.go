// Package qpack implements QPACK (RFC 9204) header compression for HTTP/3.
//
// The codec is a pure byte-in/byte-out state machine: it owns no transport,
// performs no I/O, and runs no goroutines. Every public operation either
// completes or returns an *Error. Output is appended to buffers the codec
// grows itself, so there is no out-of-buffer status for the caller to act
// on. A header block that references insertions not yet received returns
// an *Error wrapping the blocked condition (see Decoder.DecodeHeaderBlock).
package qpack

import "fmt"

// Code classifies the outcome of a codec operation, per the error taxonomy
// in spec.md §7. It is not an exhaustive replacement for Go's error values;
// it exists so embedders can decide, mechanically, whether a failure is
// fatal to the connection.
type Code int

const (
	// CodeMalformed covers integer overflow, invalid Huffman encodings,
	// unknown opcodes, dangling references, and other wire-format errors.
	// Fatal to the connection.
	CodeMalformed Code = iota + 1
	// CodeResourceExhausted covers the blocked-stream limit and a dynamic
	// table that cannot make room for an insertion, both fatal to the
	// connection. The status a header block returns while it waits for an
	// insertion (errBlocked) also carries this code and is not fatal.
	CodeResourceExhausted
	// CodeProtocolViolation covers peer misbehavior on the decoder or
	// encoder stream (unknown opcode, ack of an unknown id, over-ack).
	// Fatal to the encoder/decoder that observes it.
	CodeProtocolViolation
	// CodeUserError covers local misuse of the API (start_header while one
	// is open, encode with none open, and so on). Never affects the
	// connection.
	CodeUserError
)

func (c Code) String() string {
	switch c {
	case CodeMalformed:
		return "malformed"
	case CodeResourceExhausted:
		return "resource-exhausted"
	case CodeProtocolViolation:
		return "protocol-violation"
	case CodeUserError:
		return "user-error"
	default:
		return "unknown"
	}
}

// Error is the error type returned by every fallible operation in this
// package. Offset records the byte offset into the input (or -1 if not
// applicable) at which the problem was found, so an embedder can retrieve a
// {location, offset} pair as spec.md §7 requires of connection-ending errors.
type Error struct {
	Code   Code
	Op     string
	Offset int
	Err    error
}

func (e *Error) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("qpack: %s: %s (offset %d): %v", e.Op, e.Code, e.Offset, e.Err)
	}
	return fmt.Sprintf("qpack: %s: %s: %v", e.Op, e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(op string, code Code, offset int, err error) *Error {
	return &Error{Code: code, Op: op, Offset: offset, Err: err}
}

// Sentinel underlying errors. These are wrapped in *Error by the operations
// that produce them; embedders that only care about the condition can use
// errors.Is against these.
var (
	errIntegerOverflow    = fmt.Errorf("qpack: integer overflow")
	errHuffmanInvalid     = fmt.Errorf("qpack: invalid huffman encoding")
	errIndex              = fmt.Errorf("qpack: reference to an entry that does not exist")
	errTableFull          = fmt.Errorf("qpack: entry does not fit and cannot be freed")
	errTableTooSmall      = fmt.Errorf("qpack: entry is larger than the table capacity")
	errCapacityPinned     = fmt.Errorf("qpack: capacity reduction blocked by a pinned entry")
	errHeaderAlreadyOpen  = fmt.Errorf("qpack: start_header called while a header block is open")
	errNoHeaderOpen       = fmt.Errorf("qpack: no header block is open")
	errTooManyBlocked     = fmt.Errorf("qpack: max_blocked_streams would be exceeded")
	errUnknownOpcode      = fmt.Errorf("qpack: unknown instruction opcode")
	errUnknownStream      = fmt.Errorf("qpack: acknowledgement for an unknown stream")
	errOverAck            = fmt.Errorf("qpack: acknowledgement beyond insert count")
	errRiskBudgetExceeded = fmt.Errorf("qpack: max_risked_streams would be exceeded")
	errPseudoHeaderOrder  = fmt.Errorf("qpack: pseudo-header field after a regular field")
)
