package transport

// QueueCapacity is the number of requests a session may have waiting in a
// single priority class.
const QueueCapacity = 20

// RequestRecord is a request waiting to be served, enriched with the size of
// the archive it names. Block is the next block to send.
type RequestRecord struct {
	Index   uint8
	Archive uint16
	Size    int
	Block   int
}

// RequestQueue is a fixed capacity FIFO ring of RequestRecords. One slot is
// kept free so that read == write always means empty.
type RequestQueue struct {
	slots [QueueCapacity + 1]RequestRecord
	read  int
	write int
}

func NewRequestQueue() *RequestQueue {
	return &RequestQueue{}
}

// Push appends rec, returning false if the queue is full.
func (q *RequestQueue) Push(rec RequestRecord) bool {
	next := (q.write + 1) % len(q.slots)
	if next == q.read {
		return false
	}

	q.slots[q.write] = rec
	q.write = next

	return true
}

// Peek returns the head record without removing it, or nil if the queue is
// empty. The record may be modified in place.
func (q *RequestQueue) Peek() *RequestRecord {
	if q.IsEmpty() {
		return nil
	}

	return &q.slots[q.read]
}

// Pop removes the head record. It does nothing on an empty queue.
func (q *RequestQueue) Pop() {
	if q.IsEmpty() {
		return
	}

	q.slots[q.read] = RequestRecord{}
	q.read = (q.read + 1) % len(q.slots)
}

func (q *RequestQueue) Len() int {
	return (q.write - q.read + len(q.slots)) % len(q.slots)
}

func (q *RequestQueue) Cap() int {
	return QueueCapacity
}

func (q *RequestQueue) IsEmpty() bool {
	return q.read == q.write
}

func (q *RequestQueue) IsFull() bool {
	return (q.write+1)%len(q.slots) == q.read
}

// Clear drops every waiting record.
func (q *RequestQueue) Clear() {
	*q = RequestQueue{}
}
