package blobsink

// stagingBuffer accumulates incoming bytes into a fixed-capacity block.
// Bytes [0, filled) hold valid unsent data; the rest is undefined.
type stagingBuffer struct {
	data   []byte
	filled int
}

func newStagingBuffer(capacity int) *stagingBuffer {
	return &stagingBuffer{data: make([]byte, capacity)}
}

// write copies as much of p as fits, truncated down to a whole number of
// items, and returns the number of bytes copied.
func (b *stagingBuffer) write(p []byte, itemSize int) int {
	copyLen := len(b.data) - b.filled
	if len(p) < copyLen {
		copyLen = len(p)
	}
	copyLen -= copyLen % itemSize

	copy(b.data[b.filled:], p[:copyLen])
	b.filled += copyLen
	return copyLen
}

func (b *stagingBuffer) isFull() bool {
	return b.filled == len(b.data)
}

// bytes returns the valid portion of the buffer. The slice aliases the
// buffer's memory: hand it out only when the buffer is never written again.
func (b *stagingBuffer) bytes() []byte {
	return b.data[:b.filled]
}
