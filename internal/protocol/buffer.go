package protocol

import "sync"

// DefaultBufSize is the capacity a scratch buffer is shrunk back to after
// every fill, so residual-prepending across many requests never lets the
// buffer grow without bound.
const DefaultBufSize = 256

// MinBufSize is the smallest amount of data ReadOp needs to see in order
// to identify an opcode token.
const MinBufSize = 4

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, 0, DefaultBufSize)
		return &b
	},
}

// getScratchBuf returns a zero-length buffer with at least DefaultBufSize
// capacity, pulled from a shared pool.
func getScratchBuf() []byte {
	p := bufPool.Get().(*[]byte)
	return (*p)[:0]
}

// putScratchBuf returns buf to the pool. Oversized buffers (grown to serve
// an unusually large residual) are dropped rather than pooled, so one large
// request can't permanently inflate pool memory.
func putScratchBuf(buf []byte) {
	if cap(buf) > 64*1024 {
		return
	}
	buf = buf[:0]
	bufPool.Put(&buf)
}
