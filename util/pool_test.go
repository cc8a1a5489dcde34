package util

import "testing"

func TestGetBuf_Sizes(t *testing.T) {
	tests := []struct {
		size int
		want int
	}{
		{0, DefaultBufSize},
		{-1, DefaultBufSize},
		{1024, 1024},
		{DefaultBufSize, DefaultBufSize},
		{DefaultBufSize + 1, DefaultBufSize},
	}
	for _, tt := range tests {
		bp := GetBuf(tt.size)
		if len(*bp) != tt.want {
			t.Errorf("GetBuf(%d) len = %d, want %d", tt.size, len(*bp), tt.want)
		}
		PutBuf(bp)
	}
}

// TestPutBuf_RestoresLength verifies a shrunk buffer comes back from
// the pool at full size.
func TestPutBuf_RestoresLength(t *testing.T) {
	bp := GetBuf(16)
	PutBuf(bp)
	if len(*bp) != DefaultBufSize {
		t.Errorf("len after PutBuf = %d, want %d", len(*bp), DefaultBufSize)
	}
}

func TestPutBuf_Ignored(t *testing.T) {
	PutBuf(nil) // must not panic

	small := make([]byte, 8)
	PutBuf(&small)
	if len(small) != 8 {
		t.Error("foreign undersized buffer should be left alone")
	}
}
