package blobsink

// blockQueue is a bounded FIFO hand-off buffer between the accumulator and
// the uploader. It is not safe for concurrent use on its own: the Sink mutex
// serializes all access.
type blockQueue struct {
	blocks [][]byte
	depth  int
}

func newBlockQueue(depth int) *blockQueue {
	return &blockQueue{depth: depth}
}

// tryEnqueue appends the block, reporting false when the queue is at capacity.
func (q *blockQueue) tryEnqueue(block []byte) bool {
	if len(q.blocks) >= q.depth {
		return false
	}
	q.blocks = append(q.blocks, block)
	return true
}

func (q *blockQueue) dequeue() ([]byte, bool) {
	if len(q.blocks) == 0 {
		return nil, false
	}
	block := q.blocks[0]
	q.blocks = q.blocks[1:]
	return block, true
}

// requeueFront puts back a block whose staging failed so the next drain
// retries it before anything newer.
func (q *blockQueue) requeueFront(block []byte) {
	q.blocks = append([][]byte{block}, q.blocks...)
}

func (q *blockQueue) length() int {
	return len(q.blocks)
}

func (q *blockQueue) isFull() bool {
	return len(q.blocks) >= q.depth
}
