// ABOUTME: Tests for the SPSC ring buffer
// ABOUTME: Covers FIFO order, overflow policy, and cross-goroutine hand-off
package ring

import (
	"testing"

	"github.com/wavemesh/wavemesh-go/internal/audio"
)

func TestFIFOOrder(t *testing.T) {
	b := New[audio.Item](16)

	for i := 0; i < 10; i++ {
		it := audio.NewItem([]byte{byte(i), byte(i + 1), byte(i + 2)}, audio.RawPcm16)
		if !b.Push(it) {
			t.Fatalf("push %d failed unexpectedly", i)
		}
	}

	for i := 0; i < 10; i++ {
		it, ok := b.Pop()
		if !ok {
			t.Fatalf("pop %d: queue unexpectedly empty", i)
		}
		want := []byte{byte(i), byte(i + 1), byte(i + 2)}
		got := it.Bytes()
		if len(got) != 3 {
			t.Fatalf("pop %d: length %d, want 3", i, len(got))
		}
		for j := range want {
			if got[j] != want[j] {
				t.Errorf("pop %d byte %d: got %d, want %d", i, j, got[j], want[j])
			}
		}
	}

	if _, ok := b.Pop(); ok {
		t.Error("expected empty queue after draining")
	}
}

func TestOverflowDropsNewest(t *testing.T) {
	const capacity = 8
	b := New[audio.Item](capacity)

	for i := 0; i < capacity; i++ {
		if !b.Push(audio.NewItem([]byte{byte(i)}, audio.RawPcm16)) {
			t.Fatalf("push %d failed before capacity reached", i)
		}
	}

	if b.Push(audio.NewItem([]byte{0xEE}, audio.RawPcm16)) {
		t.Fatal("push beyond capacity succeeded")
	}
	if b.Dropped() != 1 {
		t.Errorf("dropped count = %d, want 1", b.Dropped())
	}

	// The first N items must be retrievable unchanged.
	for i := 0; i < capacity; i++ {
		it, ok := b.Pop()
		if !ok {
			t.Fatalf("pop %d: queue unexpectedly empty", i)
		}
		if it.Bytes()[0] != byte(i) {
			t.Errorf("pop %d: got %d, want %d", i, it.Bytes()[0], i)
		}
	}
}

func TestInterleavedPushPop(t *testing.T) {
	b := New[int](4)

	next := 0
	expect := 0
	for round := 0; round < 50; round++ {
		for i := 0; i < 3; i++ {
			b.Push(next)
			next++
		}
		for i := 0; i < 3; i++ {
			v, ok := b.Pop()
			if !ok {
				t.Fatalf("round %d: unexpected empty", round)
			}
			if v != expect {
				t.Fatalf("round %d: got %d, want %d", round, v, expect)
			}
			expect++
		}
	}
}

func TestConcurrentProducerConsumer(t *testing.T) {
	const total = 10000
	b := New[int](64)

	received := make([]int, 0, total)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for len(received) < total {
			if v, ok := b.Pop(); ok {
				received = append(received, v)
			}
		}
	}()

	for i := 0; i < total; {
		if b.Push(i) {
			i++
		}
	}
	<-done

	for i, v := range received {
		if v != i {
			t.Fatalf("item %d: got %d, want %d (order violated)", i, v, i)
		}
	}
}

func TestBadCapacityPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for non-power-of-two capacity")
		}
	}()
	New[int](12)
}
