package internal

import "sync"

// maxPooledBuffer keeps exceptionally large batches from pinning
// memory in the pool.
const maxPooledBuffer = 64 << 20

var bufPool = sync.Pool{New: func() interface{} {
	return []byte(nil)
}}

/*
ReserveByteBuffer uses a sync.Pool to either reuse or make a slice of
bytes of length 0, but of capacity potentially larger than 0.

Use ReleaseByteBuffer to return slices of bytes to the internal pool.
*/
func ReserveByteBuffer() []byte {
	return bufPool.Get().([]byte)[:0]
}

/*
ReleaseByteBuffer returns the given slice of bytes to the internal
sync.Pool from which ReserveByteBuffer can fetch it again. The caller
must not use buf afterwards.
*/
func ReleaseByteBuffer(buf []byte) {
	if cap(buf) > maxPooledBuffer {
		return
	}
	bufPool.Put(buf[:0])
}
