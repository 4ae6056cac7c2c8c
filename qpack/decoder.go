package qpack

import (
	"fmt"

	"go.uber.org/zap"
)

// Decoder implements the QPACK decoder side: applying encoder-stream
// instructions to the dynamic table, and turning a header block back into a
// header list, blocking when it references an insertion it hasn't seen yet.
//
// Grounded on hc/qpackdecoder.go: decodeLargestBase's Required Insert Count
// modulo-reconstruction is carried over essentially unchanged (it is pure
// arithmetic, RFC-mandated, and has no reason to differ), readBase/
// ReadHeaderBlock's per-opcode read functions are the precedent for
// readField's dispatch. WaitForEntry's blocking sync.Cond wait is replaced
// by a non-blocking Blocked status (spec.md §4.6, §5): instead of blocking
// the calling goroutine, DecodeHeaderBlock returns immediately with
// errBlocked and remembers enough (including the sink) to finish the job
// itself, unprompted, the moment retryBlocked sees the missing insertion
// arrive — matching spec.md §8 property 9's requirement that a block be
// "unblocked and delivered" before the enc_in call that unblocked it
// returns.

// HeaderSink receives decoded header fields in order, mirroring spec.md
// §4.6's hset_if callback contract. Implementations typically append to a
// []HeaderField or write straight into an HTTP request/response builder.
type HeaderSink interface {
	OnHeaderField(HeaderField) error
}

// HeaderField is one decoded name/value pair. NameHash and NameValueHash are
// populated only when DecoderConfig.Opts enables HASH_NAME/HASH_NAMEVAL
// (spec.md §4.6's "static-table hint" contract); StaticIndex is the static
// table index this field resolved against, or -1 if it did not.
type HeaderField struct {
	Name, Value   string
	NameHash      uint64
	NameValueHash uint64
	StaticIndex   int
}

type headerFieldSlice struct{ fields *[]HeaderField }

func (s headerFieldSlice) OnHeaderField(hf HeaderField) error {
	*s.fields = append(*s.fields, hf)
	return nil
}

// SinkToSlice adapts a *[]HeaderField to a HeaderSink.
func SinkToSlice(fields *[]HeaderField) HeaderSink { return headerFieldSlice{fields: fields} }

// HTTP1xSink adapts a HeaderSink for an HTTP/1.x-facing peer (DecOpts'
// HTTP1X option, spec.md §4.6): HTTP/2+ sends repeated header fields (e.g.
// multiple "cookie" lines) as separate field lines, while HTTP/1.x
// represents them as one folded line. Wrap the real sink, decode as normal,
// then call Flush to deliver the folded result.
type HTTP1xSink struct {
	next    HeaderSink
	seen    map[string]int // name -> index into pending, for folding repeats
	pending []HeaderField
}

func NewHTTP1xSink(next HeaderSink) *HTTP1xSink {
	return &HTTP1xSink{next: next, seen: make(map[string]int)}
}

func (s *HTTP1xSink) OnHeaderField(hf HeaderField) error {
	if i, ok := s.seen[hf.Name]; ok {
		sep := ", " // RFC 7230 §3.2.2
		if hf.Name == "cookie" {
			sep = "; " // RFC 6265 §5.4
		}
		s.pending[i].Value += sep + hf.Value
		return nil
	}
	s.seen[hf.Name] = len(s.pending)
	s.pending = append(s.pending, hf)
	return nil
}

// Flush delivers the folded fields to the wrapped sink, in first-seen
// order, and resets state for the next header block.
func (s *HTTP1xSink) Flush() error {
	for _, hf := range s.pending {
		if err := s.next.OnHeaderField(hf); err != nil {
			return err
		}
	}
	s.pending = nil
	s.seen = make(map[string]int)
	return nil
}

// DecOpts is a bitmask of decoder-side behavior switches, named after
// spec.md §6's Opts table.
type DecOpts uint8

const (
	// OptHTTP1x signals that delivered fields will be folded through an
	// HTTP1xSink; this package does not behave differently itself, but
	// embedders gate whether they wrap the sink on this flag.
	OptHTTP1x DecOpts = 1 << iota
	// OptHashName populates HeaderField.NameHash on every delivered field.
	OptHashName
	// OptHashNameValue populates HeaderField.NameValueHash on every
	// delivered field.
	OptHashNameValue
)

// DecoderConfig bundles the tunables spec.md §6 lists as configuration
// options for the decoder side.
type DecoderConfig struct {
	TableCapacity     int
	MaxBlockedStreams int
	Opts              DecOpts
}

// pendingBlock holds a header block that blocked on a not-yet-arrived
// dynamic table insertion, so it can be retried later without re-parsing
// from scratch. sink is the HeaderSink the original DecodeHeaderBlock call
// was given, kept so retryBlocked can finish the decode itself once the
// block becomes ready, instead of just forgetting it.
type pendingBlock struct {
	streamID  uint64
	data      []byte
	reqInsert uint64
	sink      HeaderSink
}

type Decoder struct {
	logged

	table *DynamicTable
	cfg   DecoderConfig

	blocked map[uint64]*pendingBlock

	// onUnblocked, if set, is called with a stream's id the moment its
	// pending block becomes decodable (spec.md §4.6's dhi_unblocked), just
	// before retryBlocked delivers its fields.
	onUnblocked func(streamID uint64)

	// streamAckOut accumulates decoder-stream instruction bytes (Section
	// Ack, Stream Cancellation, Insert Count Increment) to be sent to the
	// peer's encoder.
	streamAckOut []byte
	sinceAck     uint64 // inserts processed since the last Insert Count Increment
	encPending   []byte // unconsumed tail of an incomplete encoder-stream instruction
}

func NewDecoder(cfg DecoderConfig) *Decoder {
	d := &Decoder{
		table:   NewDynamicTable(cfg.TableCapacity),
		cfg:     cfg,
		blocked: make(map[uint64]*pendingBlock),
	}
	d.initLogging("qpack.decoder")
	return d
}

// OnUnblocked registers fn to be called with a stream id the instant its
// blocked header block becomes decodable, before its fields are delivered.
// Passing nil clears any previously registered callback.
func (d *Decoder) OnUnblocked(fn func(streamID uint64)) {
	d.onUnblocked = fn
}

// EncoderIn applies encoder-stream instructions (Insert With Name
// Reference, Insert With Literal Name, Duplicate, Set Dynamic Table
// Capacity) to the dynamic table. Grounded on hc/qpackdecoder.go's
// readInsertWithNameReference/readInsertWithNameLiteral/readDuplicate/
// readDynamicUpdate/ReadTableUpdates.
func (d *Decoder) EncoderIn(data []byte) (err error) {
	data = append(d.encPending, data...)
	d.encPending = nil
	i := 0
	defer func() {
		if err == nil && i < len(data) {
			d.encPending = data[i:]
			d.retryBlocked()
		}
	}()
	for i < len(data) {
		b := data[i]
		switch {
		case b&0x80 != 0: // Insert With Name Reference: 1T + name index (6-bit)
			static := b&0x40 != 0
			idx, n, err := DecodeVarint(data[i:], 6)
			if err != nil {
				return newError("EncoderIn", CodeMalformed, i, err)
			}
			if n == 0 {
				return nil
			}
			rest := data[i+n:]
			name, nameOK := d.resolveName(static, idx)
			if !nameOK {
				return newError("EncoderIn", CodeMalformed, i, errIndex)
			}
			value, vn, err2 := decodeStringLiteral(rest)
			if err2 != nil {
				return newError("EncoderIn", CodeMalformed, i, err2)
			}
			if vn == 0 {
				return nil
			}
			i += n + vn
			if _, err := d.table.Insert(name, value); err != nil {
				return newError("EncoderIn", CodeResourceExhausted, i, err)
			}
			d.noteInsert()

		case b&0x40 != 0: // Insert With Literal Name: 01H + name length (5-bit)
			name, nn, err := decodeStringLiteralOpcode(data[i:], 5)
			if err != nil {
				return newError("EncoderIn", CodeMalformed, i, err)
			}
			if nn == 0 {
				return nil
			}
			value, vn, err2 := decodeStringLiteral(data[i+nn:])
			if err2 != nil {
				return newError("EncoderIn", CodeMalformed, i, err2)
			}
			if vn == 0 {
				return nil
			}
			i += nn + vn
			if _, err := d.table.Insert(name, value); err != nil {
				return newError("EncoderIn", CodeResourceExhausted, i, err)
			}
			d.noteInsert()

		case b&0x20 != 0: // Set Dynamic Table Capacity: 001 + capacity (5-bit)
			cap64, n, err := DecodeVarint(data[i:], 5)
			if err != nil {
				return newError("EncoderIn", CodeMalformed, i, err)
			}
			if n == 0 {
				return nil
			}
			i += n
			if err := d.table.SetCapacity(int(cap64)); err != nil {
				return newError("EncoderIn", CodeProtocolViolation, i, err)
			}
			d.log.Info("dynamic table capacity changed", zap.Uint64("capacity", cap64))

		default: // Duplicate: 000 + relative index (5-bit)
			rel, n, err := DecodeVarint(data[i:], 5)
			if err != nil {
				return newError("EncoderIn", CodeMalformed, i, err)
			}
			if n == 0 {
				return nil
			}
			i += n
			id := d.table.InsertCount() - 1 - rel
			if _, err := d.table.Duplicate(id); err != nil {
				return newError("EncoderIn", CodeMalformed, i, err)
			}
			d.noteInsert()
		}
	}
	d.retryBlocked()
	return nil
}

func (d *Decoder) resolveName(static bool, idx uint64) (string, bool) {
	if static {
		name, _, ok := staticEntryAt(int(idx))
		return name, ok
	}
	id := d.table.InsertCount() - 1 - idx
	name, _, ok := d.table.Get(id)
	return name, ok
}

func (d *Decoder) noteInsert() {
	d.sinceAck++
}

// decodeStringLiteral decodes a standalone length-prefixed string (7-bit
// prefix, bit 0x80 as the Huffman flag) — the form used for every field
// value, and for names that are not themselves carrying opcode bits.
func decodeStringLiteral(src []byte) (string, int, error) {
	return decodeStringLiteralOpcode(src, 7)
}

// decodeStringLiteralOpcode is the general form: the Huffman flag sits at
// bit (1<<prefixBits) of the leading byte, immediately above a prefixBits-
// wide length, mirroring appendStringLiteralOpcode on the encode side. It
// returns (value, bytesConsumed, err); bytesConsumed==0 with a nil err
// means more input is needed.
func decodeStringLiteralOpcode(src []byte, prefixBits byte) (string, int, error) {
	if len(src) == 0 {
		return "", 0, nil
	}
	hFlag := byte(1) << prefixBits
	huff := src[0]&hFlag != 0
	l, n, err := DecodeVarint(src, prefixBits)
	if err != nil {
		return "", 0, err
	}
	if n == 0 {
		return "", 0, nil
	}
	if len(src[n:]) < int(l) {
		return "", 0, nil
	}
	raw := src[n : n+int(l)]
	if !huff {
		return string(raw), n + int(l), nil
	}
	s, err := DecodeHuffman(raw, int(l)*8/5) // rough expected-length hint only
	if err != nil {
		return "", 0, err
	}
	return string(s), n + int(l), nil
}

// decodeLargestBase reconstructs the Required Insert Count from the raw
// encoded value on the wire, per RFC 9204 §4.5.1.1. This is
// hc/qpackdecoder.go's decodeLargestBase carried over essentially verbatim:
// it is specified arithmetic with no room for stylistic variance.
func decodeLargestBase(ricRaw uint64, insertCount uint64, maxEntries uint64) (uint64, error) {
	if ricRaw == 0 {
		return 0, nil
	}
	if maxEntries == 0 {
		return 0, errIndex
	}
	fullRange := 2 * maxEntries
	if ricRaw > fullRange {
		return 0, errIndex
	}
	maxValue := insertCount + maxEntries

	maxWrapped := (maxValue / fullRange) * fullRange
	reqInsertCount := maxWrapped + ricRaw - 1

	if reqInsertCount > maxValue {
		if reqInsertCount <= fullRange {
			return 0, errIndex
		}
		reqInsertCount -= fullRange
	}
	if reqInsertCount == 0 {
		return 0, errIndex
	}
	return reqInsertCount, nil
}

// errBlockedOn is the sentinel wrapped by DecodeHeaderBlock's returned
// *Error when the block references a dynamic-table insertion this decoder
// has not yet seen; callers can match it with errors.Is.
var errBlockedOn = fmt.Errorf("qpack: blocked on a pending dynamic table insertion")

var errBlocked = &Error{Code: CodeResourceExhausted, Op: "DecodeHeaderBlock", Offset: -1, Err: errBlockedOn}

// DecodeHeaderBlock decodes one complete header block (spec.md §6's
// wire format: Required Insert Count + Base prefix, then field lines),
// delivering fields to sink as they're parsed. If the block references an
// entry not yet inserted, it returns errBlocked (wrapping CodeResourceExhausted)
// and remembers the block, including sink, so a later EncoderIn call can
// retry and finish delivering it via retryBlocked without the caller
// needing to re-submit it (spec.md §4.6's Blocked/dhi_unblocked contract).
func (d *Decoder) DecodeHeaderBlock(streamID uint64, data []byte, sink HeaderSink) error {
	maxEntries := uint64(0)
	if entryOverhead > 0 {
		maxEntries = uint64(d.table.Capacity() / entryOverhead)
	}

	ricRaw, n, err := DecodeVarint(data, 8)
	if err != nil {
		return newError("DecodeHeaderBlock", CodeMalformed, 0, err)
	}
	if n == 0 {
		return newError("DecodeHeaderBlock", CodeMalformed, 0, errIntegerOverflow)
	}
	reqInsert, err := decodeLargestBase(ricRaw, d.table.InsertCount(), maxEntries)
	if err != nil {
		return newError("DecodeHeaderBlock", CodeMalformed, 0, err)
	}
	if reqInsert > d.table.InsertCount() {
		if len(d.blocked) >= d.cfg.MaxBlockedStreams {
			if _, already := d.blocked[streamID]; !already {
				d.log.Warn("refusing to block, at max_blocked_streams", zap.Uint64("stream", streamID))
				return newError("DecodeHeaderBlock", CodeResourceExhausted, 0, errTooManyBlocked)
			}
		}
		d.blocked[streamID] = &pendingBlock{streamID: streamID, data: data, reqInsert: reqInsert, sink: sink}
		d.log.Debug("blocked decoding header block", zap.Uint64("stream", streamID), zap.Uint64("required_insert_count", reqInsert))
		return errBlocked
	}

	rest := data[n:]
	signByte := byte(0)
	if len(rest) > 0 {
		signByte = rest[0] & sBit
	}
	delta, dn, err := DecodeVarint(rest, 7)
	if err != nil {
		return newError("DecodeHeaderBlock", CodeMalformed, n, err)
	}
	if dn == 0 {
		return newError("DecodeHeaderBlock", CodeMalformed, n, errIntegerOverflow)
	}
	var base uint64
	if signByte != 0 {
		base = reqInsert - delta - 1
	} else {
		base = reqInsert + delta
	}

	offset := n + dn
	refIDs := make([]uint64, 0, 8)
	for offset < len(rest)+n {
		consumed, refd, err := d.readField(data[offset:], base, sink)
		if err != nil {
			return newError("DecodeHeaderBlock", CodeMalformed, offset, err)
		}
		if consumed == 0 {
			return newError("DecodeHeaderBlock", CodeMalformed, offset, errIntegerOverflow)
		}
		offset += consumed
		refIDs = append(refIDs, refd...)
	}

	for _, id := range refIDs {
		d.table.Ref(id)
		d.table.Unref(id)
	}
	d.queueSectionAck(streamID)
	delete(d.blocked, streamID)
	return nil
}

// deliver builds a HeaderField and hands it to sink, attaching the
// DecOpts-gated hashes and the static-table hint (spec.md §4.6's
// dhi_process_header contract). staticIdx is -1 when the field did not
// resolve against the static table.
func (d *Decoder) deliver(sink HeaderSink, name, value string, staticIdx int) error {
	hf := HeaderField{Name: name, Value: value, StaticIndex: staticIdx}
	if d.cfg.Opts&OptHashName != 0 {
		hf.NameHash = hashName([]byte(name))
	}
	if d.cfg.Opts&OptHashNameValue != 0 {
		hf.NameValueHash = hashNameValue([]byte(name), []byte(value))
	}
	return sink.OnHeaderField(hf)
}

// readField decodes exactly one header field-line representation starting
// at src[0], delivering it to sink and returning the number of bytes
// consumed plus any dynamic-table ids it referenced (for refcount
// bookkeeping by the caller).
func (d *Decoder) readField(src []byte, base uint64, sink HeaderSink) (int, []uint64, error) {
	if len(src) == 0 {
		return 0, nil, nil
	}
	b := src[0]
	switch {
	case b&0x80 != 0: // Indexed Field Line: 1T + index (6-bit)
		static := b&0x40 != 0
		idx, n, err := DecodeVarint(src, 6)
		if err != nil || n == 0 {
			return n, nil, err
		}
		if static {
			name, value, ok := staticEntryAt(int(idx))
			if !ok {
				return n, nil, errIndex
			}
			return n, nil, d.deliver(sink, name, value, int(idx))
		}
		id := base - 1 - idx
		name, value, ok := d.table.Get(id)
		if !ok {
			return n, nil, errIndex
		}
		return n, []uint64{id}, d.deliver(sink, name, value, -1)

	case b&0xf0 == reprIndexedPostBase: // 0001....: post-base indexed
		idx, n, err := DecodeVarint(src, 4)
		if err != nil || n == 0 {
			return n, nil, err
		}
		id := base + idx
		name, value, ok := d.table.Get(id)
		if !ok {
			return n, nil, errIndex
		}
		return n, []uint64{id}, d.deliver(sink, name, value, -1)

	case b&0x40 != 0: // Literal Field Line With Name Reference: 01NT....
		static := b&0x10 != 0
		idx, n, err := DecodeVarint(src, 4)
		if err != nil || n == 0 {
			return n, nil, err
		}
		var name string
		var refs []uint64
		staticIdx := -1
		if static {
			nm, _, ok := staticEntryAt(int(idx))
			if !ok {
				return n, nil, errIndex
			}
			name = nm
			staticIdx = int(idx)
		} else {
			id := base - 1 - idx
			nm, _, ok := d.table.Get(id)
			if !ok {
				return n, nil, errIndex
			}
			name = nm
			refs = []uint64{id}
		}
		value, vn, err := decodeStringLiteral(src[n:])
		if err != nil || vn == 0 {
			return 0, nil, err
		}
		return n + vn, refs, d.deliver(sink, name, value, staticIdx)

	case b&0x20 != 0: // Literal Field Line With Literal Name: 001N....
		name, nn, err := decodeStringLiteralOpcode(src, 3)
		if err != nil || nn == 0 {
			return nn, nil, err
		}
		value, vn, err := decodeStringLiteral(src[nn:])
		if err != nil || vn == 0 {
			return vn, nil, err
		}
		return nn + vn, nil, d.deliver(sink, name, value, -1)

	default: // 0000....: Literal Field Line With Post-Base Name Reference
		idx, n, err := DecodeVarint(src, 3)
		if err != nil || n == 0 {
			return n, nil, err
		}
		id := base + idx
		name, _, ok := d.table.Get(id)
		if !ok {
			return n, nil, errIndex
		}
		value, vn, err := decodeStringLiteral(src[n:])
		if err != nil || vn == 0 {
			return 0, nil, err
		}
		return n + vn, []uint64{id}, d.deliver(sink, name, value, -1)
	}
}

// retryBlocked re-attempts every pending block whose Required Insert Count
// has now arrived: it fires onUnblocked (if registered) and then finishes
// decoding the block into the sink it was originally given, completing
// delivery before returning — satisfying spec.md §8 property 9's "unblocked
// and delivered before the next enc_in call returns". Blocks that still
// reference a future insertion are left in place.
func (d *Decoder) retryBlocked() {
	ready := make([]*pendingBlock, 0, len(d.blocked))
	for _, pb := range d.blocked {
		if pb.reqInsert > d.table.InsertCount() {
			continue
		}
		ready = append(ready, pb)
	}
	for _, pb := range ready {
		delete(d.blocked, pb.streamID)
		if d.onUnblocked != nil {
			d.onUnblocked(pb.streamID)
		}
		if err := d.DecodeHeaderBlock(pb.streamID, pb.data, pb.sink); err != nil {
			d.log.Warn("resumed header block failed", zap.Uint64("stream", pb.streamID), zap.Error(err))
		}
	}
}

// RetryBlocked attempts to finish decoding a specific stream's header block
// that previously returned errBlocked, now that more insertions may have
// arrived. It returns the same errBlocked sentinel if it is still not
// ready, and is mainly useful for a caller that wants to retry on its own
// schedule instead of relying on OnUnblocked/retryBlocked's automatic
// delivery during EncoderIn.
func (d *Decoder) RetryBlocked(streamID uint64, sink HeaderSink) error {
	pb, ok := d.blocked[streamID]
	if !ok {
		return newError("RetryBlocked", CodeUserError, -1, errUnknownStream)
	}
	delete(d.blocked, streamID)
	return d.DecodeHeaderBlock(streamID, pb.data, sink)
}

// CancelStream tells the decoder a stream was reset before its header block
// was fully processed: forgets any pending block and queues a Stream
// Cancellation instruction so the encoder can release its references
// (spec.md §5's supplemented CancelStream operation).
func (d *Decoder) CancelStream(streamID uint64) {
	delete(d.blocked, streamID)
	d.streamAckOut = AppendVarint(d.streamAckOut, instStreamCancel, 6, streamID)
}

func (d *Decoder) queueSectionAck(streamID uint64) {
	d.streamAckOut = AppendVarint(d.streamAckOut, instSectionAck, 7, streamID)
}

// MaybeFlushIncrement emits an Insert Count Increment instruction for every
// insertion processed since the last flush, if any are pending. This is the
// supplemented, caller-driven replacement (spec.md §5) for the teacher's
// timer-coalesced "Table State Synchronize" goroutine: instead of a
// background timer, the embedder decides when to flush (e.g. once per
// event-loop tick) by calling this directly.
func (d *Decoder) MaybeFlushIncrement() {
	if d.sinceAck == 0 {
		return
	}
	d.streamAckOut = AppendVarint(d.streamAckOut, instInsertCountInc, 6, d.sinceAck)
	d.sinceAck = 0
}

// DecoderStreamOut drains pending decoder-stream instruction bytes (Section
// Ack, Stream Cancellation, Insert Count Increment), ready to send to the
// peer's encoder.
func (d *Decoder) DecoderStreamOut() []byte {
	if len(d.streamAckOut) == 0 {
		return nil
	}
	out := d.streamAckOut
	d.streamAckOut = nil
	return out
}

// Close checks the Open Question decision in SPEC_FULL.md §7: every entry's
// refcount and the blocked set must be zero, reported as an error rather
// than a panic. It leaves the dynamic table itself in place.
func (d *Decoder) Close() error {
	if len(d.blocked) != 0 {
		return newError("Close", CodeUserError, -1, errTooManyBlocked)
	}
	for i := d.table.base; i < d.table.inserted; i++ {
		if d.table.refcount(i) != 0 {
			return newError("Close", CodeUserError, -1, errIndex)
		}
	}
	return nil
}
