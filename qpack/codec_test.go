package qpack

import (
	"testing"

	"github.com/stvp/assert"
)

// TestEncodeDecodeRoundTrip covers the end-to-end testable property from
// spec.md §8: a header list encoded and immediately fed through a decoder
// with the matching dynamic table state comes back unchanged.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	enc := NewEncoder(EncoderConfig{TableCapacity: 4096, MaxBlockedStreams: 16, MaxRiskedStreams: 16, HistoryDepth: 8})
	dec := NewDecoder(DecoderConfig{TableCapacity: 4096, MaxBlockedStreams: 16})

	headers := []HeaderField{
		{Name: ":method", Value: "GET"},
		{Name: ":scheme", Value: "https"},
		{Name: ":path", Value: "/index.html"},
		{Name: ":authority", Value: "example.com"},
		{Name: "user-agent", Value: "test-agent/1.0"},
		{Name: "custom-key", Value: "custom-value"},
	}

	assert.Nil(t, enc.StartHeader(4))
	for _, h := range headers {
		assert.Nil(t, enc.Encode(h.Name, h.Value, 0))
	}
	block, streamID, err := enc.EndHeader()
	assert.Nil(t, err)
	assert.Equal(t, streamID, uint64(4))

	if insertBytes := enc.EncoderStreamOut(); insertBytes != nil {
		assert.Nil(t, dec.EncoderIn(insertBytes))
	}

	var got []HeaderField
	err = dec.DecodeHeaderBlock(4, block, SinkToSlice(&got))
	assert.Nil(t, err)
	assert.Equal(t, len(got), len(headers))
	for i := range headers {
		assert.Equal(t, got[i].Name, headers[i].Name)
		assert.Equal(t, got[i].Value, headers[i].Value)
	}
}

// TestEncodeDecodeStaticOnly exercises a header list that resolves entirely
// against the static table (no dynamic table traffic at all).
func TestEncodeDecodeStaticOnly(t *testing.T) {
	enc := NewEncoder(EncoderConfig{TableCapacity: 0, MaxBlockedStreams: 16, MaxRiskedStreams: 16})
	dec := NewDecoder(DecoderConfig{TableCapacity: 0, MaxBlockedStreams: 16})

	assert.Nil(t, enc.StartHeader(0))
	assert.Nil(t, enc.Encode(":method", "GET", 0))
	assert.Nil(t, enc.Encode(":scheme", "https", 0))
	assert.Nil(t, enc.Encode(":status", "200", 0))
	block, _, err := enc.EndHeader()
	assert.Nil(t, err)

	var got []HeaderField
	assert.Nil(t, dec.DecodeHeaderBlock(0, block, SinkToSlice(&got)))
	assert.Equal(t, len(got), 3)
	assert.Equal(t, got[0].Value, "GET")
	assert.Equal(t, got[1].Value, "https")
	assert.Equal(t, got[2].Value, "200")
}

// TestEncodeDecodeRepeatedHeaderIndexes checks that a header seen twice
// (satisfying the two-hits-before-index heuristic) ends up referencing the
// same dynamic table entry on its second occurrence, across two separate
// header blocks.
func TestEncodeDecodeRepeatedHeaderIndexes(t *testing.T) {
	enc := NewEncoder(EncoderConfig{TableCapacity: 4096, MaxBlockedStreams: 16, MaxRiskedStreams: 16, HistoryDepth: 8})
	dec := NewDecoder(DecoderConfig{TableCapacity: 4096, MaxBlockedStreams: 16})

	send := func(streamID uint64) []HeaderField {
		assert.Nil(t, enc.StartHeader(streamID))
		assert.Nil(t, enc.Encode("x-trace-id", "abc123", 0))
		block, _, err := enc.EndHeader()
		assert.Nil(t, err)
		if ins := enc.EncoderStreamOut(); ins != nil {
			assert.Nil(t, dec.EncoderIn(ins))
		}
		var got []HeaderField
		assert.Nil(t, dec.DecodeHeaderBlock(streamID, block, SinkToSlice(&got)))
		if sectionAck := dec.DecoderStreamOut(); sectionAck != nil {
			assert.Nil(t, enc.DecoderIn(sectionAck))
		}
		return got
	}

	first := send(1)
	second := send(2)
	assert.Equal(t, first[0].Value, "abc123")
	assert.Equal(t, second[0].Value, "abc123")
	assert.True(t, dec.table.InsertCount() >= 1)
}

// TestCancelHeaderReleasesReferences is the risked-stream-bound property
// from spec.md §8: cancelling a block must not leak its table references.
func TestCancelHeaderReleasesReferences(t *testing.T) {
	enc := NewEncoder(EncoderConfig{TableCapacity: 4096, MaxBlockedStreams: 1, MaxRiskedStreams: 1, HistoryDepth: 8})
	assert.Nil(t, enc.StartHeader(1))
	assert.Nil(t, enc.Encode("custom-key", "custom-value", 0))
	assert.Nil(t, enc.Encode("custom-key", "custom-value", 0))
	_, _, err := enc.EndHeader()
	assert.Nil(t, err)
	enc.CancelHeader(1)

	assert.Nil(t, enc.StartHeader(2))
	assert.Nil(t, enc.Encode("another-key", "another-value", 0))
	_, _, err = enc.EndHeader()
	assert.Nil(t, err)
}
