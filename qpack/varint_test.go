package qpack

import (
	"testing"

	"github.com/stvp/assert"
)

func TestVarintRoundTrip(t *testing.T) {
	cases := []struct {
		prefix byte
		value  uint64
	}{
		{5, 10},
		{5, 31},
		{5, 1337},
		{7, 0},
		{7, 127},
		{8, 1 << 20},
		{8, ^uint64(0)},
	}
	for _, c := range cases {
		dst := AppendVarint(nil, 0, c.prefix, c.value)
		v, n, err := DecodeVarint(dst, c.prefix)
		assert.Nil(t, err)
		assert.Equal(t, n, len(dst))
		assert.Equal(t, v, c.value)
	}
}

func TestVarintResumable(t *testing.T) {
	dst := AppendVarint(nil, 0, 5, 1337)
	var d VarintDecoder
	d.Reset(5)
	consumed := 0
	for i := range dst {
		v, done, err := d.Decode(dst[i:i+1], &consumed)
		assert.Nil(t, err)
		if i < len(dst)-1 {
			assert.False(t, done)
		} else {
			assert.True(t, done)
			assert.Equal(t, v, uint64(1337))
		}
	}
	assert.Equal(t, consumed, len(dst))
}

func TestVarintNeedsMore(t *testing.T) {
	dst := AppendVarint(nil, 0, 5, 1337)
	var d VarintDecoder
	d.Reset(5)
	consumed := 0
	_, done, err := d.Decode(dst[:1], &consumed)
	assert.Nil(t, err)
	assert.False(t, done)
}

func TestVarintOverflow(t *testing.T) {
	// 12 continuation bytes, each with the continuation bit set: exceeds
	// maxContinuationBytes regardless of their value.
	buf := []byte{0x1f} // prefix=5 bits maxed out
	for i := 0; i < 12; i++ {
		buf = append(buf, 0xff)
	}
	buf = append(buf, 0x00)
	_, _, err := DecodeVarint(buf, 5)
	assert.NotNil(t, err)
}

func FuzzVarintRoundTrip(f *testing.F) {
	f.Add(uint8(5), uint64(42))
	f.Add(uint8(8), uint64(0))
	f.Fuzz(func(t *testing.T, prefix uint8, v uint64) {
		p := prefix%6 + 3 // keep prefix in [3,8]
		dst := AppendVarint(nil, 0, p, v)
		got, n, err := DecodeVarint(dst, p)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != len(dst) || got != v {
			t.Fatalf("round trip mismatch: got %d/%d want %d/%d", got, n, v, len(dst))
		}
	})
}
