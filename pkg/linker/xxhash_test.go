package linker

import "testing"

func TestXxhash64EmptyInputKnownVector(t *testing.T) {
	// Canonical xxHash64 test vector: hash of the empty string with seed 0.
	const want uint64 = 0xEF46DB3751D8E999
	if got := xxhash64(nil, 0); got != want {
		t.Errorf("xxhash64(nil, 0) = %#x, want %#x", got, want)
	}
}

func TestXxhash64SeedChangesDigest(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")
	if xxhash64(data, 0) == xxhash64(data, 1) {
		t.Error("different seeds produced the same digest")
	}
}

func TestXxhash64LongInput(t *testing.T) {
	data := make([]byte, 1000)
	for i := range data {
		data[i] = byte(i)
	}
	// Exercise the >=32-byte block path and the tail byte-by-byte path
	// together by hashing a buffer whose length isn't a multiple of 32.
	if xxhash64(data, 0) != xxhash64(data, 0) {
		t.Fatal("xxhash64 not deterministic")
	}
	if xxhash64(data, 0) == xxhash64(data[:999], 0) {
		t.Error("truncating the input should change the digest")
	}
}
