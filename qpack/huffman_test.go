package qpack

import (
	"encoding/hex"
	"testing"

	"github.com/stvp/assert"
)

// TestHuffmanRFC7541ByteExact pins the Huffman codec to RFC 7541 Appendix
// B's actual bit patterns using spec.md §8's concrete scenarios: S2's
// "method" value, S3's "dude"/"where is my car?" field, and S6's
// "www.netbsd.org" insert. A table built from approximated byte-frequency
// weights instead of the canonical one would not reproduce these bytes.
func TestHuffmanRFC7541ByteExact(t *testing.T) {
	cases := []struct {
		name, s, wantHex string
	}{
		{"S2 value", "method", "a4a99cf27f"},
		{"S3 name", "dude", "92d90b"},
		{"S3 value", "where is my car?", "f1396c2a864294fa5083b3fc"},
		{"S6 value", "www.netbsd.org", "f1e3c2f51531a245cf64df"},
	}
	for _, c := range cases {
		want, err := hex.DecodeString(c.wantHex)
		assert.Nil(t, err)
		got := appendHuffman(nil, []byte(c.s))
		assert.Equal(t, hex.EncodeToString(got), hex.EncodeToString(want))

		back, err := DecodeHuffman(got, len(c.s))
		assert.Nil(t, err)
		assert.Equal(t, string(back), c.s)
	}
}

func TestHuffmanRoundTrip(t *testing.T) {
	cases := []string{
		"",
		"www.example.com",
		"no-cache",
		"custom-key",
		"custom-value",
		string(make([]byte, 64)), // all zero bytes: exercises the longest codes
	}
	for _, s := range cases {
		enc := appendHuffman(nil, []byte(s))
		dec, err := DecodeHuffman(enc, len(s))
		assert.Nil(t, err)
		assert.Equal(t, string(dec), s)
	}
}

func TestHuffmanResumable(t *testing.T) {
	s := "www.example.com/some/long/path?query=value"
	enc := appendHuffman(nil, []byte(s))

	var d HuffmanDecoder
	d.Reset(len(s))
	for _, b := range enc {
		assert.Nil(t, d.Write([]byte{b}))
	}
	out, err := d.Finish()
	assert.Nil(t, err)
	assert.Equal(t, string(out), s)
}

func TestHuffmanShorterThanRaw(t *testing.T) {
	// Common header bytes should always Huffman-encode shorter than raw.
	s := "accept-encoding"
	assert.True(t, huffmanEncodedLen([]byte(s)) < len(s))
}

func FuzzHuffmanRoundTrip(f *testing.F) {
	f.Add([]byte("www.example.com"))
	f.Add([]byte{})
	f.Add([]byte{0, 1, 2, 255, 254})
	f.Fuzz(func(t *testing.T, data []byte) {
		enc := appendHuffman(nil, data)
		dec, err := DecodeHuffman(enc, len(data))
		if err != nil {
			t.Fatalf("decode error: %v", err)
		}
		if string(dec) != string(data) {
			t.Fatalf("round trip mismatch: got %q want %q", dec, data)
		}
	})
}
