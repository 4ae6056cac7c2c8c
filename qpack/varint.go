package qpack

// This implements the HPACK/QPACK prefix-integer encoding (RFC 7541 §5.1),
// grounded on hc/io.go's Reader.ReadInt/Writer.WriteInt from the teacher:
// the first byte carries up to prefixBits of value (OR'd into whatever flag
// bits the caller has already set in it); if the value doesn't fit, the
// prefix is maxPrefixValue and the remainder follows as 7-bit continuation
// bytes with the high bit set on every byte but the last.
//
// Unlike the teacher's version, decoding here is resumable: it is a small
// state machine that can be fed one chunk at a time and picks up where it
// left off, per spec.md §4.1.

// maxContinuationBytes bounds a 64-bit value's continuation bytes: a 64-bit
// value needs at most ceil(64/7) = 10 continuation bytes after the prefix
// octet; spec.md allows up to 11 to leave room for one extra all-zero
// continuation byte some encoders emit.
const maxContinuationBytes = 11

func prefixMask(prefixBits byte) uint64 {
	return (uint64(1) << prefixBits) - 1
}

// varintLen returns the exact number of bytes that AppendVarint will write
// for v with the given prefix size, including the leading byte that also
// carries the caller's flag bits.
func varintLen(v uint64, prefixBits byte) int {
	mask := prefixMask(prefixBits)
	if v < mask {
		return 1
	}
	n := 1
	v -= mask
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n + 1
}

// AppendVarint appends the prefix-integer encoding of v to dst. flagBits are
// OR'd into the high bits of the first byte (already shifted into position
// by the caller); prefixBits is the number of low bits of that first byte
// available to the integer (3..8).
func AppendVarint(dst []byte, flagBits byte, prefixBits byte, v uint64) []byte {
	mask := prefixMask(prefixBits)
	if v < mask {
		return append(dst, flagBits|byte(v))
	}
	dst = append(dst, flagBits|byte(mask))
	v -= mask
	for v >= 0x80 {
		dst = append(dst, byte(v&0x7f)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

// VarintDecoder decodes one prefix-integer, resumably. Call Reset with the
// prefix size before each integer; the zero value has a 0-bit prefix.
type VarintDecoder struct {
	prefixBits byte
	started    bool
	firstDone  bool
	val        uint64
	shift      uint
	nread      byte
}

// Reset prepares the decoder to read a new integer with the given prefix
// size. The first byte's flag bits must already have been stripped by the
// caller (or read separately); only the low prefixBits bits matter.
func (d *VarintDecoder) Reset(prefixBits byte) {
	*d = VarintDecoder{prefixBits: prefixBits, started: true}
}

// Decode consumes bytes from src, advancing *consumed by the number of bytes
// read. It returns (value, true, nil) once complete, (0, false, nil) if src
// was exhausted before the integer was complete (the caller must call Decode
// again with more bytes, without calling Reset), or (0, false, err) on a
// malformed integer (overflow).
func (d *VarintDecoder) Decode(src []byte, consumed *int) (uint64, bool, error) {
	if !d.started {
		d.started = true
	}
	i := 0
	defer func() { *consumed += i }()

	if !d.firstDone {
		if len(src) == 0 {
			return 0, false, nil
		}
		b := src[0] & byte(prefixMask(d.prefixBits))
		i++
		d.firstDone = true
		mask := prefixMask(d.prefixBits)
		if uint64(b) < mask {
			return uint64(b), true, nil
		}
		d.val = mask
		d.shift = 0
		d.nread = 0
	}

	for i < len(src) {
		if d.nread >= maxContinuationBytes {
			return 0, false, errIntegerOverflow
		}
		b := src[i]
		i++
		d.nread++

		cont := b & 0x7f
		add := uint64(cont) << d.shift
		// Detect overflow of the running total before it wraps.
		if d.shift >= 64 || (add>>d.shift) != uint64(cont) || d.val > ^uint64(0)-add {
			return 0, false, errIntegerOverflow
		}
		d.val += add
		d.shift += 7

		if b&0x80 == 0 {
			return d.val, true, nil
		}
	}
	return 0, false, nil
}

// DecodeVarint is a convenience wrapper for callers that always have the
// whole integer available in one slice (e.g. tests). It returns the value,
// the number of bytes consumed, and an error. Every call site in this
// package treats a returned count of 0 (with a nil error) as "not enough
// input yet, call again once more has arrived" — so on an incomplete
// integer this reports 0 consumed regardless of how many partial
// continuation bytes VarintDecoder looked at, since this wrapper holds no
// decoder state across calls for a caller to resume from.
func DecodeVarint(src []byte, prefixBits byte) (uint64, int, error) {
	var d VarintDecoder
	d.Reset(prefixBits)
	consumed := 0
	v, done, err := d.Decode(src, &consumed)
	if err != nil {
		return 0, 0, err
	}
	if !done {
		return 0, 0, nil
	}
	return v, consumed, nil
}
