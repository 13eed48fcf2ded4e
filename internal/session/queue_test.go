package session

import "testing"

func TestQueue_FIFOOrder(t *testing.T) {
	q := NewQueue()
	q.Enqueue("s1")
	q.Enqueue("s2")
	q.Enqueue("s3")

	entries := q.Entries()
	want := []string{"s1", "s2", "s3"}
	for i, id := range want {
		if entries[i] != id {
			t.Errorf("Expected entries[%d]=%s, got %s", i, id, entries[i])
		}
	}
}

func TestQueue_NoDuplicates(t *testing.T) {
	q := NewQueue()
	if !q.Enqueue("s1") {
		t.Error("Expected first enqueue to succeed")
	}
	if q.Enqueue("s1") {
		t.Error("Expected duplicate enqueue to be rejected")
	}
	if q.Len() != 1 {
		t.Errorf("Expected length 1, got %d", q.Len())
	}
}

func TestQueue_RemoveReindexes(t *testing.T) {
	q := NewQueue()
	q.Enqueue("s1")
	q.Enqueue("s2")
	q.Enqueue("s3")

	if !q.Remove("s2") {
		t.Fatal("Expected Remove to succeed")
	}
	if q.Remove("s2") {
		t.Error("Expected second Remove to report absence")
	}

	if got := q.Position("s1"); got != 1 {
		t.Errorf("Expected s1 at position 1, got %d", got)
	}
	if got := q.Position("s3"); got != 2 {
		t.Errorf("Expected s3 reindexed to position 2, got %d", got)
	}
}

func TestQueue_PositionAbsent(t *testing.T) {
	q := NewQueue()
	if got := q.Position("ghost"); got != 0 {
		t.Errorf("Expected position 0 for absent entry, got %d", got)
	}
	if q.Contains("ghost") {
		t.Error("Expected Contains false for absent entry")
	}
}
