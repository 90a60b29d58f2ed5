// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>

package pool

// BytePool hands out empty byte slices with a minimum capacity. Slices
// that grew beyond maxRetain are left to the GC.
type BytePool struct {
	pool      *SyncPool[*[]byte]
	size      int
	maxRetain int
}

// NewBytePool creates a pool whose fresh buffers have capacity size.
func NewBytePool(size, maxRetain int) *BytePool {
	if maxRetain < size {
		maxRetain = size
	}
	return &BytePool{
		pool: NewSyncPool(func() *[]byte {
			b := make([]byte, 0, size)
			return &b
		}),
		size:      size,
		maxRetain: maxRetain,
	}
}

// GetBuffer returns a zero-length buffer with capacity of at least n.
func (b *BytePool) GetBuffer(n int) *[]byte {
	buf := b.pool.Get()
	if cap(*buf) < n {
		*buf = make([]byte, 0, n)
	}
	*buf = (*buf)[:0]
	return buf
}

// PutBuffer returns a buffer to the pool.
func (b *BytePool) PutBuffer(buf *[]byte) {
	if buf == nil || cap(*buf) > b.maxRetain {
		return
	}
	*buf = (*buf)[:0]
	b.pool.Put(buf)
}
