package session

// Queue is the FIFO waiting list of session IDs awaiting assignment. A
// position index keeps membership checks O(1); removal still reindexes the
// tail, which is fine at queue lengths of a few hundred.
//
// Queue is not safe for concurrent use; the dispatcher serializes access.
type Queue struct {
	ids []string
	pos map[string]int
}

// NewQueue creates an empty waiting queue.
func NewQueue() *Queue {
	return &Queue{pos: make(map[string]int)}
}

// Enqueue appends a session ID to the tail. Duplicates are ignored so a
// session is queued at most once.
func (q *Queue) Enqueue(sessionID string) bool {
	if _, ok := q.pos[sessionID]; ok {
		return false
	}
	q.pos[sessionID] = len(q.ids)
	q.ids = append(q.ids, sessionID)
	return true
}

// Remove drops a session ID from the queue. Returns false if absent.
func (q *Queue) Remove(sessionID string) bool {
	idx, ok := q.pos[sessionID]
	if !ok {
		return false
	}
	q.ids = append(q.ids[:idx], q.ids[idx+1:]...)
	delete(q.pos, sessionID)
	for i := idx; i < len(q.ids); i++ {
		q.pos[q.ids[i]] = i
	}
	return true
}

// Position returns the 1-based queue position, or 0 when not queued.
func (q *Queue) Position(sessionID string) int {
	idx, ok := q.pos[sessionID]
	if !ok {
		return 0
	}
	return idx + 1
}

// Contains reports whether the session ID is queued.
func (q *Queue) Contains(sessionID string) bool {
	_, ok := q.pos[sessionID]
	return ok
}

// Entries returns a snapshot of queued session IDs, front to back.
func (q *Queue) Entries() []string {
	out := make([]string, len(q.ids))
	copy(out, q.ids)
	return out
}

// Len returns the number of queued sessions.
func (q *Queue) Len() int {
	return len(q.ids)
}
