package task

import "container/heap"

// pendingEntry is one pending queue slot. It holds only the task id and its
// ordering key; the task itself is resolved through the scheduler's index at
// dispatch time.
type pendingEntry struct {
	id string

	// priority is the ordering key captured when the entry was (re)inserted.
	// It can lag the task's current priority; the dispatcher re-keys stale
	// entries instead of re-heapifying in place.
	priority int

	// seq is the submission sequence number, monotonically increasing per
	// queue. It breaks priority ties first-in-first-out and is preserved
	// across re-insertions so a re-keyed or paused task keeps its place
	// among equals.
	seq uint64
}

// pendingQueue orders pending entries by priority (highest first), then by
// submission sequence (earliest first). Not safe for concurrent use; the
// scheduler guards it with its own lock.
type pendingQueue struct {
	entries entryHeap
	nextSeq uint64
}

func newPendingQueue() *pendingQueue {
	return &pendingQueue{}
}

// push inserts a new entry, capturing the next submission sequence number,
// and returns that sequence number.
func (q *pendingQueue) push(id string, priority int) uint64 {
	seq := q.nextSeq
	q.nextSeq++
	heap.Push(&q.entries, &pendingEntry{id: id, priority: priority, seq: seq})
	return seq
}

// pushWithSeq inserts an entry carrying a previously assigned sequence
// number. Used to supersede a stale entry after a priority change without
// searching the heap: the old entry stays behind and is dropped when popped.
func (q *pendingQueue) pushWithSeq(id string, priority int, seq uint64) {
	heap.Push(&q.entries, &pendingEntry{id: id, priority: priority, seq: seq})
}

// reinsert puts a previously popped entry back with a possibly updated
// ordering key, keeping its original submission sequence.
func (q *pendingQueue) reinsert(e *pendingEntry, priority int) {
	e.priority = priority
	heap.Push(&q.entries, e)
}

// pop removes and returns the highest-priority entry, or nil when empty.
func (q *pendingQueue) pop() *pendingEntry {
	if len(q.entries) == 0 {
		return nil
	}
	return heap.Pop(&q.entries).(*pendingEntry)
}

func (q *pendingQueue) len() int {
	return len(q.entries)
}

// entryHeap implements heap.Interface.
type entryHeap []*pendingEntry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x any) {
	*h = append(*h, x.(*pendingEntry))
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}
