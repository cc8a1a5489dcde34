package util

import "sync"

// DefaultBufSize is the largest read a session issues (32 KiB).
const DefaultBufSize = 32 * 1024

var readBufs = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, DefaultBufSize)
		return &buf
	},
}

// GetBuf returns a pooled read buffer of length size, or
// DefaultBufSize when size is zero, negative or larger than the pool's
// buffers.  Return it with [PutBuf].
func GetBuf(size int) *[]byte {
	bp := readBufs.Get().(*[]byte)
	if size <= 0 || size > cap(*bp) {
		size = DefaultBufSize
	}
	*bp = (*bp)[:size]
	return bp
}

// PutBuf returns a buffer obtained from [GetBuf] to the pool.
func PutBuf(bp *[]byte) {
	if bp == nil || cap(*bp) < DefaultBufSize {
		return
	}
	*bp = (*bp)[:DefaultBufSize]
	readBufs.Put(bp)
}
