package linker

import "testing"

func TestElfHash(t *testing.T) {
	tests := []struct {
		name string
		want uint32
	}{
		// Known values for the classic SysV ".hash" function.
		{"", 0},
		{"printf", 0x077905a6},
		{"exit", 0x0006cf04},
	}
	for _, tt := range tests {
		if got := elfHash(tt.name); got != tt.want {
			t.Errorf("elfHash(%q) = %#x, want %#x", tt.name, got, tt.want)
		}
	}
}

func TestGnuHash(t *testing.T) {
	// djb2-style hash with seed 5381, h = h*33 + c.
	if got := gnuHash(""); got != 5381 {
		t.Errorf("gnuHash(\"\") = %d, want 5381", got)
	}
	want := uint32(5381)
	for _, c := range "printf" {
		want = want*33 + uint32(c)
	}
	if got := gnuHash("printf"); got != want {
		t.Errorf("gnuHash(\"printf\") = %#x, want %#x", got, want)
	}
}

func TestGnuHashBucketSizesDescending(t *testing.T) {
	for i := 1; i < len(gnuHashBucketSizes); i++ {
		if gnuHashBucketSizes[i] >= gnuHashBucketSizes[i-1] {
			t.Fatalf("gnuHashBucketSizes not strictly descending at %d: %d >= %d",
				i, gnuHashBucketSizes[i], gnuHashBucketSizes[i-1])
		}
	}
}
