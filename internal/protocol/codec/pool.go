package codec

import (
	"bytes"
	"sync"
)

// Buffer pool for envelope encoding. Heartbeats and game state updates are
// encoded at a steady rate, so buffers are reused instead of reallocated.
var bufferPool = sync.Pool{
	New: func() any {
		return new(bytes.Buffer)
	},
}

// maxPooledBuffer keeps oversized game-state buffers out of the pool
const maxPooledBuffer = 64 * 1024

// GetBuffer retrieves a bytes.Buffer from the pool
func GetBuffer() *bytes.Buffer {
	return bufferPool.Get().(*bytes.Buffer)
}

// PutBuffer returns a bytes.Buffer to the pool
// The buffer is reset but capacity is preserved
func PutBuffer(buf *bytes.Buffer) {
	if buf == nil || buf.Cap() > maxPooledBuffer {
		return
	}
	buf.Reset()
	bufferPool.Put(buf)
}
