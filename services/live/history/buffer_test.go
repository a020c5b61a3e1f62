package history

import (
	"reflect"
	"sync"
	"testing"
)

func TestBufferEvictsOldest(t *testing.T) {
	b := New[int](3)
	for i := 1; i <= 5; i++ {
		b.Append(i)
	}

	if got, want := b.Snapshot(), []int{3, 4, 5}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Snapshot() = %v, want %v", got, want)
	}
	if got, want := b.Newest(), []int{5, 4, 3}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Newest() = %v, want %v", got, want)
	}
	if b.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", b.Len())
	}
}

func TestBufferBelowCapacity(t *testing.T) {
	b := New[string](10)
	b.Append("a")
	b.Append("b")

	if got, want := b.Snapshot(), []string{"a", "b"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Snapshot() = %v, want %v", got, want)
	}
	if b.Cap() != 10 {
		t.Fatalf("Cap() = %d, want 10", b.Cap())
	}
}

func TestBufferUnbounded(t *testing.T) {
	b := New[int](0)
	for i := 0; i < 250; i++ {
		b.Append(i)
	}
	if b.Len() != 250 {
		t.Fatalf("Len() = %d, want 250", b.Len())
	}
	snap := b.Snapshot()
	if snap[0] != 0 || snap[249] != 249 {
		t.Fatalf("unexpected order: first=%d last=%d", snap[0], snap[249])
	}
}

func TestBufferSnapshotIsCopy(t *testing.T) {
	b := New[int](2)
	b.Append(1)
	snap := b.Snapshot()
	snap[0] = 99

	if got := b.Snapshot()[0]; got != 1 {
		t.Fatalf("buffer mutated through snapshot: got %d", got)
	}
}

func TestBufferReset(t *testing.T) {
	for _, capacity := range []int{0, 4} {
		b := New[int](capacity)
		b.Append(1)
		b.Append(2)
		b.Reset()
		if b.Len() != 0 {
			t.Fatalf("cap=%d: Len() after Reset = %d", capacity, b.Len())
		}
		b.Append(7)
		if got := b.Snapshot(); !reflect.DeepEqual(got, []int{7}) {
			t.Fatalf("cap=%d: Snapshot() after Reset = %v", capacity, got)
		}
	}
}

func TestBufferConcurrentAppend(t *testing.T) {
	b := New[int](30)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				b.Append(i)
				_ = b.Newest()
			}
		}()
	}
	wg.Wait()

	if b.Len() != 30 {
		t.Fatalf("Len() = %d, want 30", b.Len())
	}
}

func TestDefaultCapacities(t *testing.T) {
	c := DefaultCapacities()
	want := Capacities{WorkerAlerts: 10, WorkerTrend: 30, AdminLiveGraph: 100, AdminAlerts: 100}
	if c != want {
		t.Fatalf("DefaultCapacities() = %+v, want %+v", c, want)
	}
}
