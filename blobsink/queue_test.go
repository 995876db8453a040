package blobsink

import (
	"bytes"
	"testing"
)

func TestBlockQueue_FIFO(t *testing.T) {
	q := newBlockQueue(3)

	for _, b := range [][]byte{{1}, {2}, {3}} {
		if !q.tryEnqueue(b) {
			t.Fatalf("enqueue failed below capacity")
		}
	}

	for _, want := range []byte{1, 2, 3} {
		block, ok := q.dequeue()
		if !ok {
			t.Fatal("dequeue failed on non-empty queue")
		}
		if block[0] != want {
			t.Errorf("expected block %d, got %d", want, block[0])
		}
	}

	if _, ok := q.dequeue(); ok {
		t.Error("dequeue succeeded on empty queue")
	}
}

func TestBlockQueue_EnqueueAtCapacity(t *testing.T) {
	q := newBlockQueue(2)

	if !q.tryEnqueue([]byte{1}) || !q.tryEnqueue([]byte{2}) {
		t.Fatal("enqueue failed below capacity")
	}
	if q.tryEnqueue([]byte{3}) {
		t.Error("enqueue succeeded on full queue")
	}
	if !q.isFull() {
		t.Error("queue should report full")
	}

	q.dequeue()
	if !q.tryEnqueue([]byte{3}) {
		t.Error("enqueue failed after making room")
	}
}

func TestBlockQueue_RequeueFront(t *testing.T) {
	q := newBlockQueue(2)
	q.tryEnqueue([]byte{1})
	q.tryEnqueue([]byte{2})

	block, _ := q.dequeue()
	q.requeueFront(block)

	if q.length() != 2 {
		t.Fatalf("expected length 2, got %d", q.length())
	}

	got, _ := q.dequeue()
	if !bytes.Equal(got, []byte{1}) {
		t.Errorf("requeued block is not at the front, got %v", got)
	}
}
