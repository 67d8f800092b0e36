package recorder

import (
	"testing"
	"time"
)

func TestBuffer_AppendTryNext(t *testing.T) {
	buf := NewBuffer[int](10, 100)

	for i := 0; i < 5; i++ {
		if !buf.Append(i) {
			t.Fatalf("Append(%d) returned false", i)
		}
	}

	if buf.Len() != 5 {
		t.Errorf("Len() = %d, want 5", buf.Len())
	}

	for i := 0; i < 5; i++ {
		val, ok := buf.TryNext()
		if !ok {
			t.Fatalf("TryNext() returned false for item %d", i)
		}
		if val != i {
			t.Errorf("received %d, want %d", val, i)
		}
	}

	if _, ok := buf.TryNext(); ok {
		t.Error("TryNext should return false when empty")
	}
}

func TestBuffer_GrowAt70Percent(t *testing.T) {
	buf := NewBuffer[int](10, 100)

	// 7 items is 70% of the initial capacity.
	for i := 0; i < 7; i++ {
		buf.Append(i)
	}

	stats := buf.Stats()
	if stats.Cap <= 10 {
		t.Errorf("Cap = %d, expected growth after 70%% fill", stats.Cap)
	}
	if stats.Resizes != 1 {
		t.Errorf("Resizes = %d, want 1", stats.Resizes)
	}

	// All items should still be accessible in order.
	for i := 0; i < 7; i++ {
		val, ok := buf.TryNext()
		if !ok {
			t.Fatalf("TryNext() returned false for item %d", i)
		}
		if val != i {
			t.Errorf("received %d, want %d", val, i)
		}
	}
}

func TestBuffer_GrowthCappedDropsOldest(t *testing.T) {
	buf := NewBuffer[int](4, 16)

	for i := 0; i < 50; i++ {
		if !buf.Append(i) {
			t.Fatalf("Append(%d) returned false", i)
		}
	}

	stats := buf.Stats()
	if stats.Cap != 16 {
		t.Errorf("Cap = %d, want 16", stats.Cap)
	}
	if stats.Len != 16 {
		t.Errorf("Len = %d, want 16", stats.Len)
	}
	if stats.Dropped != 34 {
		t.Errorf("Dropped = %d, want 34", stats.Dropped)
	}

	// The survivors are the newest 16 items, still in order.
	for want := 34; want < 50; want++ {
		got, ok := buf.TryNext()
		if !ok {
			t.Fatalf("TryNext failed, expected %d", want)
		}
		if got != want {
			t.Errorf("got %d, want %d", got, want)
		}
	}
}

func TestBuffer_GrowWhileWrapped(t *testing.T) {
	buf := NewBuffer[int](10, 40)

	// Walk the read position towards the end of the ring.
	for i := 0; i < 8; i++ {
		buf.Append(i)
		if i%4 == 3 {
			for j := 0; j < 4; j++ {
				buf.TryNext()
			}
		}
	}

	// Fill past the end so the write position wraps behind the read
	// position, then push one more to trigger growth mid-wrap.
	for i := 8; i < 15; i++ {
		buf.Append(i)
	}

	stats := buf.Stats()
	if stats.Resizes != 1 {
		t.Errorf("Resizes = %d, want 1", stats.Resizes)
	}
	if stats.Cap != 20 {
		t.Errorf("Cap = %d, want 20", stats.Cap)
	}

	for want := 8; want < 15; want++ {
		got, ok := buf.TryNext()
		if !ok {
			t.Fatalf("TryNext failed, expected %d", want)
		}
		if got != want {
			t.Errorf("got %d, want %d", got, want)
		}
	}
}

func TestBuffer_Close(t *testing.T) {
	buf := NewBuffer[int](10, 10)

	buf.Append(1)
	buf.Append(2)

	buf.Close()

	if buf.Append(3) {
		t.Error("Append should return false after Close")
	}

	// Queued items remain readable.
	val, ok := buf.TryNext()
	if !ok || val != 1 {
		t.Errorf("TryNext() = %d, %v; want 1, true", val, ok)
	}

	val, ok = buf.TryNext()
	if !ok || val != 2 {
		t.Errorf("TryNext() = %d, %v; want 2, true", val, ok)
	}

	if _, ok = buf.TryNext(); ok {
		t.Error("TryNext should return false when empty and closed")
	}
}

func TestBuffer_ConcurrentAppendConsume(t *testing.T) {
	buf := NewBuffer[int](10, 10000)
	const numItems = 1000

	go func() {
		for i := 0; i < numItems; i++ {
			buf.Append(i)
		}
	}()

	deadline := time.Now().Add(5 * time.Second)
	received := make([]int, 0, numItems)
	for len(received) < numItems {
		if time.Now().After(deadline) {
			t.Fatalf("timed out after receiving %d items", len(received))
		}
		val, ok := buf.TryNext()
		if !ok {
			time.Sleep(time.Millisecond)
			continue
		}
		received = append(received, val)
	}

	// Single producer, single consumer: order is preserved.
	for i, val := range received {
		if val != i {
			t.Fatalf("received[%d] = %d, want %d", i, val, i)
		}
	}
}

func TestBuffer_Stats(t *testing.T) {
	buf := NewBuffer[int](10, 100)

	stats := buf.Stats()
	if stats.Len != 0 || stats.Cap != 10 || stats.Appended != 0 || stats.Consumed != 0 {
		t.Errorf("initial stats incorrect: %+v", stats)
	}

	buf.Append(1)
	buf.Append(2)
	buf.Append(3)

	stats = buf.Stats()
	if stats.Len != 3 || stats.Appended != 3 {
		t.Errorf("stats after appends: %+v", stats)
	}

	buf.TryNext()
	buf.TryNext()

	stats = buf.Stats()
	if stats.Len != 1 || stats.Consumed != 2 {
		t.Errorf("stats after consumes: %+v", stats)
	}
}

func TestNewBuffer_CapacityBounds(t *testing.T) {
	// Zero and negative initial capacities are raised to 1.
	buf := NewBuffer[int](0, 10)
	if buf.Cap() != 1 {
		t.Errorf("Cap() = %d, want 1 for initial capacity 0", buf.Cap())
	}

	buf = NewBuffer[int](-5, 10)
	if buf.Cap() != 1 {
		t.Errorf("Cap() = %d, want 1 for negative initial capacity", buf.Cap())
	}

	// A maximum below the initial capacity is raised to match.
	buf = NewBuffer[int](8, 2)
	for i := 0; i < 8; i++ {
		buf.Append(i)
	}
	if stats := buf.Stats(); stats.Dropped != 0 || stats.Len != 8 {
		t.Errorf("expected 8 items with no drops, got %+v", stats)
	}
}
