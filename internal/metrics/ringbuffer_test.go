package metrics

import "testing"

func TestRingBufferOverwritesOldestPastCapacity(t *testing.T) {
	b := NewRingBuffer(3)
	b.Append(Record{Operation: "a"})
	b.Append(Record{Operation: "b"})
	b.Append(Record{Operation: "c"})
	b.Append(Record{Operation: "d"})

	snap := b.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected 3 retained records, got %d", len(snap))
	}
	if snap[0].Operation != "b" || snap[2].Operation != "d" {
		t.Fatalf("expected oldest-first order starting at 'b', got %+v", snap)
	}
}

func TestRingBufferDefaultCapacity(t *testing.T) {
	b := NewRingBuffer(0)
	if b.capacity != DefaultBufferSize {
		t.Fatalf("expected default capacity %d, got %d", DefaultBufferSize, b.capacity)
	}
}

func TestRingBufferLenBeforeWrap(t *testing.T) {
	b := NewRingBuffer(10)
	b.Append(Record{Operation: "a"})
	b.Append(Record{Operation: "b"})
	if b.Len() != 2 {
		t.Fatalf("expected len 2, got %d", b.Len())
	}
}
