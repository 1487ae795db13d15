package memory

import "testing"

type thing struct {
	id int
}

func (t *thing) Reset() { t.id = 0 }

func TestRetireRingBasic(t *testing.T) {
	r := NewRetireRing(4)
	a := &thing{id: 1}
	b := &thing{id: 2}

	if !r.Enqueue(a) || !r.Enqueue(b) {
		t.Fatal("enqueue failed unexpectedly")
	}
	if r.Dequeue() != a {
		t.Error("expected first dequeue to be a")
	}
	if r.Dequeue() != b {
		t.Error("expected second dequeue to be b")
	}
	if r.Dequeue() != nil {
		t.Error("expected empty ring to return nil")
	}
}

func TestRetireRingFull(t *testing.T) {
	r := NewRetireRing(2)
	if !r.Enqueue(&thing{}) || !r.Enqueue(&thing{}) {
		t.Fatal("ring should accept up to its capacity")
	}
	if r.Enqueue(&thing{}) {
		t.Error("full ring must reject enqueue")
	}
	if r.Len() != 2 {
		t.Errorf("Len = %d; want 2", r.Len())
	}
}

func TestRetireRingSizeMustBePowerOfTwo(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on non-power-of-two size")
		}
	}()
	NewRetireRing(3)
}

func TestAdvanceEpochReclaimsWhenIdle(t *testing.T) {
	ring := NewRetireRing(8)
	pool := NewPool(func() *thing { return &thing{} })
	reader := NewReaderEpoch()

	retired := &thing{id: 7}
	ring.Enqueue(retired)

	AdvanceEpochAndReclaim(ring, pool, reader)

	if ring.Len() != 0 {
		t.Fatal("idle reader should not block reclamation")
	}
	if retired.id != 0 {
		t.Error("reclaimed object was not reset")
	}
}

func TestDeferredReclaimPreservesOrder(t *testing.T) {
	ring := NewRetireRing(8)
	pool := NewPool(func() *thing { return &thing{} })
	reader := NewReaderEpoch()

	a, b := &thing{id: 1}, &thing{id: 2}
	reader.Enter()
	ring.Enqueue(a)
	ring.Enqueue(b)

	AdvanceEpochAndReclaim(ring, pool, reader)

	if ring.Dequeue() != a || ring.Dequeue() != b {
		t.Fatal("deferred reclaim must leave the ring in FIFO order")
	}
}

// Reclamation runs on its own goroutine; it must stay strictly on the
// consumer side of the ring while the writer keeps enqueueing.
func TestReclaimConcurrentWithProducer(t *testing.T) {
	ring := NewRetireRing(1 << 10)
	pool := NewPool(func() *thing { return &thing{} })
	reader := NewReaderEpoch()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5000; i++ {
			ring.Enqueue(&thing{id: i})
		}
	}()

	for i := 0; ; i++ {
		if i%2 == 0 {
			reader.Enter()
			AdvanceEpochAndReclaim(ring, pool, reader)
			reader.Exit()
		} else {
			AdvanceEpochAndReclaim(ring, pool, reader)
		}
		select {
		case <-done:
			AdvanceEpochAndReclaim(ring, pool, reader)
			if ring.Len() != 0 {
				t.Fatalf("ring not drained after producer finished: %d left", ring.Len())
			}
			return
		default:
		}
	}
}

func TestAdvanceEpochDefersForActiveReader(t *testing.T) {
	ring := NewRetireRing(8)
	pool := NewPool(func() *thing { return &thing{} })
	reader := NewReaderEpoch()

	reader.Enter()
	ring.Enqueue(&thing{id: 9})

	AdvanceEpochAndReclaim(ring, pool, reader)
	if ring.Len() != 1 {
		t.Fatal("object reclaimed while a reader was active")
	}

	reader.Exit()
	AdvanceEpochAndReclaim(ring, pool, reader)
	if ring.Len() != 0 {
		t.Fatal("object not reclaimed after reader exited")
	}
}
