package qpack

// Named instruction opcodes, lifted from the bit patterns spelled out across
// hc/qpackencoder.go and hc/qpackdecoder.go and restated here as named
// constants per spec.md §4.5/§4.7's opcode table, instead of inline magic
// numbers.

// Encoder-stream instructions (sent by the encoder, read by the decoder's
// ReadTableUpdates-equivalent in decoder.go).
const (
	instInsertWithNameRef  = 0x80 // 1T..... : T=1 static name ref, T=0 dynamic
	instInsertWithNameLit  = 0x40 // 01...... : new name literal, new value literal
	instDuplicate          = 0x00 // 000..... : 000 prefix, duplicate an entry
	instSetDynamicCapacity = 0x20 // 001..... : set dynamic table capacity
)

// Decoder-stream instructions (sent by the decoder, read by the encoder's
// AcknowledgeHeader/AcknowledgeInsert/AcknowledgeReset-equivalents).
const (
	instSectionAck     = 0x80 // 1....... : header block acknowledgement
	instStreamCancel   = 0x40 // 01...... : stream cancellation
	instInsertCountInc = 0x00 // 00...... : insert count increment
)

// Header-block prefix flags (spec.md §6 wire protocol).
const (
	sBit = 0x80 // sign bit in the Base delta of the header-block prefix
)

// Representation opcodes within a header block (spec.md §4.6, matching RFC
// 9204 §4.5's field-line patterns).
const (
	reprIndexed             = 0x80 // 1T...... indexed field line, T=1 static, T=0 dynamic, 6-bit prefix
	reprIndexedPostBase     = 0x10 // 0001.... indexed field line, post-base index, 4-bit prefix
	reprLiteralWithNameRef  = 0x40 // 01NT.... literal, name reference, N=never-index, T=1 static/T=0 dynamic, 4-bit prefix
	reprLiteralPostBase     = 0x00 // 0000.... literal, post-base name reference, N=bit3, 3-bit prefix
	reprLiteralWithNameLit  = 0x20 // 001NH... literal, literal name, N=never-index, 3-bit prefix
	reprLiteralPostBaseNBit = 0x08 // never-index bit within reprLiteralPostBase's byte
)
