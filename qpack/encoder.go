package qpack

import "go.uber.org/zap"

// Encoder implements the QPACK encoder side: turning a header list into a
// header block plus encoder-stream instructions, and consuming decoder-
// stream instructions to learn what the peer has processed.
//
// Grounded on hc/qpackencoder.go almost function-for-function:
// qpackWriterState's header tracking -> headerWrite below, writeTableChanges
// -> encodeField's decision tree, writeInsert/writeDuplicate -> appendInsert/
// appendDuplicate, AcknowledgeHeader/AcknowledgeInsert/AcknowledgeReset ->
// DecoderIn. Redesigned away from the teacher's sync.Mutex + blocking
// io.Writer + goroutine (ServiceAcknowledgments) model: this package is
// single-threaded and non-blocking per spec.md §5, so acknowledgements are
// consumed synchronously by a direct call (DecoderIn) instead of a
// goroutine reading a channel, and outgoing instructions accumulate in an
// internal buffer drained by EncoderStreamOut instead of being written
// straight to an io.Writer under a mutex.

// EncOpts is a bitmask of encoder-side behavior switches, named after
// spec.md §6's Opts table.
type EncOpts uint8

const (
	// OptServer tunes indexing for response-header traffic: in addition to
	// the base deny-list, shouldIndex also refuses to index "set-cookie",
	// which churns the dynamic table on a server the same way ":path" and
	// "referer" churn it on a client.
	OptServer EncOpts = 1 << iota
	// OptNoDup disables the Duplicate-before-eviction heuristic: a
	// dynamic-table hit that is about to be evicted is referenced directly
	// instead of re-inserted as a fresh entry.
	OptNoDup
	// OptIndexAggressive bypasses the two-hits-before-index heuristic
	// (history.go) and indexes on first sight instead, subject to the same
	// deny-list and budgets.
	OptIndexAggressive
	// OptNoMemGuard disables CanInsertGuarded's headroom check, falling
	// back to plain capacity accounting (DynamicTable.CanInsert).
	OptNoMemGuard
)

// EncodeFlags is a per-field bitmask, mirroring the four encode-time flags
// spec.md §6 lists (NEVER_INDEX, NO_INDEX, NO_DYN, NO_HIST_UPD).
type EncodeFlags uint8

const (
	// FlagNeverIndex sets the wire N-bit: even an intermediary forwarding
	// this field must re-encode it as a literal rather than index it. For
	// sensitive values (e.g. an Authorization header).
	FlagNeverIndex EncodeFlags = 1 << iota
	// FlagNoIndex suppresses inserting this field into the dynamic table
	// (unlike FlagNeverIndex, it does not set the wire N-bit, so a later
	// encode of the same field is still free to index it).
	FlagNoIndex
	// FlagNoDyn skips the dynamic table entirely for this field: no
	// lookup, no insert, no name-only reference. Only the static table or a
	// literal-with-literal-name encoding is considered.
	FlagNoDyn
	// FlagNoHistUpdate consults the two-hits heuristic without letting
	// this occurrence count toward a future field's threshold.
	FlagNoHistUpdate
)

// EncoderConfig bundles the tunables spec.md §6 lists as configuration
// options.
type EncoderConfig struct {
	TableCapacity int
	// MaxBlockedStreams is the peer's negotiated limit on how many streams
	// its decoder will tolerate blocked at once; the encoder never risks
	// more than this regardless of its own budget.
	MaxBlockedStreams int
	// MaxRiskedStreams is this encoder's own, possibly stricter, local
	// budget for cur_streams_at_risk (spec.md §4.5). Distinct from
	// MaxBlockedStreams: it is never wire-negotiated, just a local choice
	// about how much risk this encoder is willing to take on.
	MaxRiskedStreams int
	HistoryDepth     int // 0 disables the two-hits-before-index heuristic
	Opts             EncOpts
}

type headerWrite struct {
	streamID  uint64
	minRef    uint64 // smallest absolute id this block references, for RefHeap
	hasMinRef bool
	base      uint64
	reqInsert uint64 // largest absolute id referenced, used to compute Required Insert Count
	hasReq    bool
	risked    bool // this block has already taken on at-risk-stream budget
	buf       []byte
}

// Encoder is a single QPACK encoder instance. It is not safe for concurrent
// use from multiple goroutines; callers that run several independent
// encoders concurrently (e.g. the interop CLI's batch mode) must give each
// its own Encoder, per spec.md §5.
type Encoder struct {
	logged

	table *DynamicTable
	hist  *history
	refs  *RefHeap
	cfg   EncoderConfig

	// atRisk is spec.md §4.5's cur_streams_at_risk: streams whose most
	// recently sent header block references an unacknowledged dynamic
	// table entry, and so might make the decoder block. Distinct from (and
	// gated against) MaxRiskedStreams, not the decoder's MaxBlockedStreams.
	atRisk map[uint64]struct{}
	acked  uint64 // Known Received Insert Count

	current *headerWrite // the header block currently being built, or nil

	streamOut []byte // pending encoder-stream instruction bytes
}

func NewEncoder(cfg EncoderConfig) *Encoder {
	e := &Encoder{
		table:  NewDynamicTable(cfg.TableCapacity),
		hist:   newHistory(cfg.HistoryDepth),
		refs:   NewRefHeap(),
		cfg:    cfg,
		atRisk: make(map[uint64]struct{}),
	}
	e.initLogging("qpack.encoder")
	// init() (spec.md §4.5): an encoder that starts with a non-zero dynamic
	// table capacity announces it to the peer immediately, rather than
	// leaving the decoder to infer it from the first Insert.
	if cfg.TableCapacity > 0 {
		e.streamOut = AppendVarint(e.streamOut, instSetDynamicCapacity, 5, uint64(cfg.TableCapacity))
	}
	return e
}

// StartHeader begins encoding a header block for streamID. Only one header
// block may be open at a time (spec.md §4.5's start_header/end_header
// pairing).
func (e *Encoder) StartHeader(streamID uint64) error {
	if e.current != nil {
		return newError("StartHeader", CodeUserError, -1, errHeaderAlreadyOpen)
	}
	e.current = &headerWrite{streamID: streamID, base: e.table.InsertCount()}
	return nil
}

// Encode adds one header field to the currently open block.
func (e *Encoder) Encode(name, value string, flags EncodeFlags) error {
	if e.current == nil {
		return newError("Encode", CodeUserError, -1, errNoHeaderOpen)
	}
	e.encodeField(e.current, name, value, flags)
	return nil
}

// riskBudget is the number of streams this encoder may simultaneously keep
// at risk: its own max_risked_streams, capped by the decoder's negotiated
// max_blocked_streams when that happens to be the stricter of the two —
// exceeding what the decoder promised to tolerate would be a protocol
// violation, not just a missed local heuristic.
func (e *Encoder) riskBudget() int {
	budget := e.cfg.MaxRiskedStreams
	if e.cfg.MaxBlockedStreams < budget {
		budget = e.cfg.MaxBlockedStreams
	}
	return budget
}

// wouldExceedRiskBudget reports whether w.streamID would become a *new*
// entry in atRisk that pushes the budget over the limit. A stream already
// at risk (either earlier in this same block, or from a still-outstanding
// previous block) may accumulate further risked references for free, per
// spec.md §4.5.
func (e *Encoder) wouldExceedRiskBudget(w *headerWrite) bool {
	if w.risked {
		return false
	}
	if _, already := e.atRisk[w.streamID]; already {
		return false
	}
	return len(e.atRisk) >= e.riskBudget()
}

// risksOverBudget reports whether referencing an unacknowledged entry id
// from w would exceed the risk budget. Acknowledged entries are never a
// risk at all.
func (e *Encoder) risksOverBudget(w *headerWrite, id uint64) bool {
	if id < e.acked {
		return false
	}
	return e.wouldExceedRiskBudget(w)
}

// encodeField is the decision tree: try an exact dynamic match, then a
// static match, then decide whether to insert (subject to the history
// heuristic, never-index, and the risk and memory-guard budgets), then a
// dynamic name-only reference, else emit a literal. Grounded on
// hc/qpackencoder.go's writeTableChanges.
func (e *Encoder) encodeField(w *headerWrite, name, value string, flags EncodeFlags) {
	noDyn := flags&FlagNoDyn != 0

	if !noDyn {
		if id, ok := e.table.LookupNameValue(name, value); ok && !e.risksOverBudget(w, id) {
			if e.cfg.Opts&OptNoDup == 0 && e.nearEviction(id) && !e.wouldExceedRiskBudget(w) {
				if did, err := e.table.Duplicate(id); err == nil {
					e.appendDuplicateInstruction(id)
					e.useEntry(w, did)
					e.emitIndexed(w, did, true)
					return
				}
			}
			e.useEntry(w, id)
			e.emitIndexed(w, id, true)
			return
		}
	}
	if idx := lookupStaticNameValue([]byte(name), []byte(value)); idx >= 0 {
		w.buf = AppendVarint(w.buf, reprIndexed|0x40, 6, uint64(idx))
		return
	}

	var nameInDynamic uint64
	var nameHasDynamic bool
	if !noDyn {
		nameInDynamic, nameHasDynamic = e.table.LookupName(name)
	}
	nameStatic := lookupStaticName([]byte(name))

	neverIndex := flags&FlagNeverIndex != 0
	noIndex := noDyn || flags&(FlagNeverIndex|FlagNoIndex) != 0

	if !noIndex && e.shouldIndex(name, value, flags) && !e.wouldExceedRiskBudget(w) {
		size := len(name) + len(value) + entryOverhead
		guarded := e.cfg.Opts&OptNoMemGuard != 0 || e.table.CanInsertGuarded(size)
		if guarded {
			preInsertCount := e.table.InsertCount()
			if did, err := e.table.Insert(name, value); err == nil {
				e.appendInsertInstruction(name, value, nameHasDynamic, nameInDynamic, nameStatic, preInsertCount)
				e.useEntry(w, did)
				e.emitIndexed(w, did, true)
				return
			}
		}
	}

	if nameHasDynamic && !e.risksOverBudget(w, nameInDynamic) {
		e.useEntry(w, nameInDynamic)
		e.emitLiteralWithNameRef(w, nameInDynamic, value, false, neverIndex)
		return
	}
	if nameStatic >= 0 {
		e.emitLiteralWithNameRef(w, uint64(nameStatic), value, true, neverIndex)
		return
	}
	e.emitLiteralWithNameLit(w, name, value, neverIndex)
}

// nearEviction reports whether id is the oldest live entry — the next one
// evicted once the table needs room — and so a poor choice to keep
// referencing directly; better to Duplicate it into a fresh id first.
func (e *Encoder) nearEviction(id uint64) bool {
	return id == e.table.base
}

// shouldIndex applies the deny-list the teacher's hc package uses across
// every HPACK/QPACK variant (fields whose values are highly unique per
// message, where indexing would just churn the table), widened by
// OptServer, plus the two-hits heuristic from spec.md §4.5 step 3 (bypassed
// entirely by OptIndexAggressive, and left non-recording by NO_HIST_UPD).
func (e *Encoder) shouldIndex(name, value string, flags EncodeFlags) bool {
	switch name {
	case ":path", "content-length", "content-range", "date", "etag",
		"if-modified-since", "if-range", "if-unmodified-since",
		"last-modified", "link", "range", "referer", "refresh":
		return false
	}
	if e.cfg.Opts&OptServer != 0 && name == "set-cookie" {
		return false
	}
	if e.cfg.Opts&OptIndexAggressive != 0 {
		return true
	}
	nvh := hashNameValue([]byte(name), []byte(value))
	return e.hist.seen(nvh, flags&FlagNoHistUpdate == 0)
}

func (e *Encoder) useEntry(w *headerWrite, id uint64) {
	if !w.hasMinRef || id < w.minRef {
		w.minRef = id
		w.hasMinRef = true
	}
	if !w.hasReq || id+1 > w.reqInsert {
		w.reqInsert = id + 1
		w.hasReq = true
	}
	if id >= e.acked {
		w.risked = true
	}
	e.table.Ref(id)
}

func (e *Encoder) emitIndexed(w *headerWrite, id uint64, dynamic bool) {
	if dynamic && id >= w.base {
		// Post-base index: refers to an entry inserted after this block's Base.
		w.buf = AppendVarint(w.buf, reprIndexedPostBase, 4, id-w.base)
		return
	}
	idx := uint64(0)
	flag := byte(0)
	if dynamic {
		idx = w.base - 1 - id
		flag = 0 // T=0 dynamic
	} else {
		idx = id
		flag = 0x40 // T=1 static
	}
	w.buf = AppendVarint(w.buf, reprIndexed|flag, 6, idx)
}

func (e *Encoder) emitLiteralWithNameRef(w *headerWrite, id uint64, value string, static bool, neverIndex bool) {
	if !static && id >= w.base {
		// Post-base name reference: 0000N... (3-bit prefix), N at bit 0x08.
		flag := byte(0)
		if neverIndex {
			flag |= reprLiteralPostBaseNBit
		}
		w.buf = AppendVarint(w.buf, reprLiteralPostBase|flag, 3, id-w.base)
		w.buf = appendStringLiteral(w.buf, value)
		return
	}
	// 01NT.... (4-bit prefix): N at bit 0x20, T at bit 0x10.
	flag := byte(0)
	if neverIndex {
		flag |= 0x20
	}
	idx := id
	if static {
		flag |= 0x10
	} else {
		idx = w.base - 1 - id
	}
	w.buf = AppendVarint(w.buf, reprLiteralWithNameRef|flag, 4, idx)
	w.buf = appendStringLiteral(w.buf, value)
}

func (e *Encoder) emitLiteralWithNameLit(w *headerWrite, name, value string, neverIndex bool) {
	flag := byte(0)
	if neverIndex {
		flag |= 0x10
	}
	w.buf = appendStringLiteralOpcode(w.buf, reprLiteralWithNameLit|flag, 3, name)
	w.buf = appendStringLiteral(w.buf, value)
}

// appendStringLiteralOpcode writes a string preceded by an opcode byte that
// already carries some fixed high bits (e.g. "001N") plus the Huffman flag
// and a length of prefixBits width, per RFC 9204 §4.5.6's layout for a
// literal field line's name.
func appendStringLiteralOpcode(dst []byte, opcode byte, prefixBits byte, s string) []byte {
	raw := []byte(s)
	hlen := huffmanEncodedLen(raw)
	hFlag := byte(1) << (prefixBits)
	if hlen < len(raw) {
		dst = AppendVarint(dst, opcode|hFlag, prefixBits, uint64(hlen))
		return appendHuffman(dst, raw)
	}
	dst = AppendVarint(dst, opcode, prefixBits, uint64(len(raw)))
	return append(dst, raw...)
}

// appendStringLiteral appends a standalone length-prefixed string (the
// generic form used for every header field's value, and for the name when
// not itself carrying opcode bits), using Huffman encoding only when it is
// strictly shorter than the raw form, per spec.md §4.2.
func appendStringLiteral(dst []byte, s string) []byte {
	return appendStringLiteralOpcode(dst, 0, 7, s)
}

// appendInsertInstruction records an encoder-stream Insert instruction for
// an entry just added to the dynamic table (hc/qpackencoder.go's
// writeInsert).
func (e *Encoder) appendInsertInstruction(name, value string, nameHasDynamic bool, nameDynID uint64, nameStatic int, preInsertCount uint64) {
	switch {
	case nameStatic >= 0:
		e.streamOut = AppendVarint(e.streamOut, instInsertWithNameRef|0x40, 6, uint64(nameStatic))
	case nameHasDynamic:
		// Dynamic name references are relative to the insert count as of
		// just before this instruction's own insertion (RFC 9204 §4.3.1),
		// which is what the decoder will also have when it resolves the
		// name reference before applying the insert.
		rel := preInsertCount - 1 - nameDynID
		e.streamOut = AppendVarint(e.streamOut, instInsertWithNameRef, 6, rel)
	default:
		e.streamOut = appendStringLiteralOpcode(e.streamOut, instInsertWithNameLit, 5, name)
	}
	e.streamOut = appendStringLiteral(e.streamOut, value)
}

// appendDuplicateInstruction records an encoder-stream Duplicate
// instruction for the entry at id, re-inserting it at a fresh absolute id
// so a reference to it no longer pins the soon-to-be-evicted original
// (hc/qpackencoder.go's writeDuplicate; gated here by EncOpts' NO_DUP via
// encodeField's caller).
func (e *Encoder) appendDuplicateInstruction(id uint64) {
	rel := e.table.InsertCount() - 1 - id
	e.streamOut = AppendVarint(e.streamOut, instDuplicate, 5, rel)
}

// EndHeader finalizes the currently open header block, returning its wire
// bytes (the Required Insert Count + Base prefix followed by the field
// lines already accumulated by Encode). Per spec.md §4.5, every reference
// encodeField added was already gated against the risk budget as it was
// made (risksOverBudget/wouldExceedRiskBudget), so this is primarily a
// bookkeeping step: it records the block in atRisk if it turned out to
// reference anything unacknowledged. The refusal below is a backstop for a
// block that references an unacknowledged entry without having been marked
// risked; the per-reference checks in encodeField already rule that out.
func (e *Encoder) EndHeader() ([]byte, uint64, error) {
	w := e.current
	if w == nil {
		return nil, 0, newError("EndHeader", CodeUserError, -1, errNoHeaderOpen)
	}
	e.current = nil

	if w.hasReq && w.reqInsert > e.acked {
		if e.wouldExceedRiskBudget(w) {
			e.log.Warn("refusing to risk blocking, at max_risked_streams",
				zap.Uint64("stream", w.streamID), zap.Int("limit", e.riskBudget()))
			return nil, 0, newError("EndHeader", CodeResourceExhausted, -1, errRiskBudgetExceeded)
		}
		e.log.Debug("header block risks blocking", zap.Uint64("stream", w.streamID), zap.Uint64("required_insert_count", w.reqInsert))
		e.atRisk[w.streamID] = struct{}{}
	}
	if w.hasMinRef {
		e.refs.Track(w.streamID, w.minRef)
	}

	prefix := encodeHeaderBlockPrefix(w.reqInsert, w.base, w.hasReq, uint64(e.table.Capacity()/entryOverhead))
	return append(prefix, w.buf...), w.streamID, nil
}

// encodeHeaderBlockPrefix writes the Required Insert Count (encoded, per
// spec.md §4.6's decoder-side reconstruction, as a raw value the decoder
// must un-wrap) and the sign-and-delta Base, per RFC 9204 §4.5.1.
func encodeHeaderBlockPrefix(reqInsert, base uint64, hasReq bool, maxEntries uint64) []byte {
	var ric uint64
	if hasReq && reqInsert > 0 && maxEntries > 0 {
		ric = reqInsert%(2*maxEntries) + 1
	}
	dst := AppendVarint(nil, 0, 8, ric)
	if base >= reqInsert {
		dst = AppendVarint(dst, 0, 7, base-reqInsert)
	} else {
		dst = AppendVarint(dst, sBit, 7, reqInsert-base-1)
	}
	return dst
}

// CancelHeader abandons a header block that will never be sent (e.g. the
// stream was reset before it could be flushed). Any table references it
// would have held are released and it is removed from the at-risk set.
func (e *Encoder) CancelHeader(streamID uint64) {
	if e.current != nil && e.current.streamID == streamID {
		e.current = nil
	}
	delete(e.atRisk, streamID)
	e.refs.Release(streamID)
}

// StreamCancelled handles the peer-initiated equivalent: the decoder
// stream told us a stream was reset, so any references that header block
// held must be released the same way.
func (e *Encoder) StreamCancelled(streamID uint64) {
	delete(e.atRisk, streamID)
	e.refs.Release(streamID)
}

// EncoderStreamOut drains pending encoder-stream instruction bytes
// (Insert/Duplicate/Set Dynamic Table Capacity), ready to be sent to the
// peer. It returns nil if there is nothing pending.
func (e *Encoder) EncoderStreamOut() []byte {
	if len(e.streamOut) == 0 {
		return nil
	}
	out := e.streamOut
	e.streamOut = nil
	return out
}

// SetCapacity requests a dynamic table capacity change, queuing the
// corresponding encoder-stream instruction.
func (e *Encoder) SetCapacity(capacity int) error {
	if err := e.table.SetCapacity(capacity); err != nil {
		return newError("SetCapacity", CodeResourceExhausted, -1, err)
	}
	e.log.Info("dynamic table capacity changed", zap.Int("capacity", capacity))
	e.streamOut = AppendVarint(e.streamOut, instSetDynamicCapacity, 5, uint64(capacity))
	return nil
}

// DecoderIn consumes bytes from the peer's decoder stream: Section
// Acknowledgement, Stream Cancellation, and Insert Count Increment
// instructions (spec.md §4.7), updating the encoder's acked-insert-count
// and at-risk/ref-tracking state. Grounded on hc/qpackdecoder.go's
// writeAcknowledgements (there: a goroutine driving an io.Writer; here: a
// synchronous parse of an input buffer).
func (e *Encoder) DecoderIn(data []byte) error {
	i := 0
	for i < len(data) {
		b := data[i]
		switch {
		case b&0x80 != 0: // Section Acknowledgement: 1 + stream id (7-bit prefix)
			v, n, err := DecodeVarint(data[i:], 7)
			if err != nil {
				return newError("DecoderIn", CodeProtocolViolation, i, err)
			}
			if n == 0 {
				return nil // need more input; caller should re-call with more
			}
			i += n
			e.streamAcked(v)
		case b&0x40 != 0: // Stream Cancellation: 01 + stream id (6-bit prefix)
			v, n, err := DecodeVarint(data[i:], 6)
			if err != nil {
				return newError("DecoderIn", CodeProtocolViolation, i, err)
			}
			if n == 0 {
				return nil
			}
			i += n
			e.StreamCancelled(v)
		default: // Insert Count Increment: 00 + increment (6-bit prefix)
			v, n, err := DecodeVarint(data[i:], 6)
			if err != nil {
				return newError("DecoderIn", CodeProtocolViolation, i, err)
			}
			if n == 0 {
				return nil
			}
			i += n
			if v == 0 {
				return newError("DecoderIn", CodeProtocolViolation, i, errOverAck)
			}
			e.acked += v
			if e.acked > e.table.InsertCount() {
				return newError("DecoderIn", CodeProtocolViolation, i, errOverAck)
			}
		}
	}
	return nil
}

func (e *Encoder) streamAcked(streamID uint64) {
	delete(e.atRisk, streamID)
	e.refs.Release(streamID)
}
