package qpack

import "github.com/cespare/xxhash/v2"

// HashSeed is the fixed seed used for every name/name-value hash this
// package computes. spec.md §9 leaves the exact seed an Open Question; this
// module settles it as a fixed, documented constant (SPEC_FULL.md §7) rather
// than something negotiated at runtime, since nothing in the wire protocol
// carries a seed and a fixed constant is what lets the static table's
// precomputed hashes (statictable.go) stay valid across processes.
const HashSeed uint64 = 0x259a8e6b

// hashName and hashNameValue back the decoder's HASH_NAME/HASH_NAMEVAL options
// (spec.md §4.6) and the static/dynamic table's lookup-by-hash paths.
// Grounded on MiraiMindz-watt/bolt's use of cespare/xxhash/v2 for exactly
// this kind of fast, fixed-seed content hash.
func hashName(name []byte) uint64 {
	var d xxhash.Digest
	d.Reset()
	seed := HashSeed // a variable: byte() of the constant itself would not compile
	seedBytes := [8]byte{
		byte(seed), byte(seed >> 8), byte(seed >> 16), byte(seed >> 24),
		byte(seed >> 32), byte(seed >> 40), byte(seed >> 48), byte(seed >> 56),
	}
	d.Write(seedBytes[:])
	d.Write(name)
	return d.Sum64()
}

func hashNameValue(name, value []byte) uint64 {
	var d xxhash.Digest
	d.Reset()
	seed := HashSeed // a variable: byte() of the constant itself would not compile
	seedBytes := [8]byte{
		byte(seed), byte(seed >> 8), byte(seed >> 16), byte(seed >> 24),
		byte(seed >> 32), byte(seed >> 40), byte(seed >> 48), byte(seed >> 56),
	}
	d.Write(seedBytes[:])
	d.Write(name)
	d.Write([]byte{0}) // separator: names/values may contain arbitrary bytes
	d.Write(value)
	return d.Sum64()
}
