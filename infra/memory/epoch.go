package memory

import "sync/atomic"

// GlobalEpoch monotonically increases.
var GlobalEpoch atomic.Uint64

const inactive = ^uint64(0)

// ReaderEpoch marks when a reader entered a read section.
type ReaderEpoch struct {
	epoch atomic.Uint64
}

func NewReaderEpoch() *ReaderEpoch {
	r := &ReaderEpoch{}
	r.epoch.Store(inactive)
	return r
}

func (r *ReaderEpoch) Enter() {
	r.epoch.Store(GlobalEpoch.Load())
}

func (r *ReaderEpoch) Exit() {
	r.epoch.Store(inactive)
}

func (r *ReaderEpoch) Value() uint64 {
	return r.epoch.Load()
}

// ReclaimablePool is the only requirement for reclamation. It is
// intentionally type-erased.
type ReclaimablePool interface {
	PutAny(any)
}

// Reclaimable objects are reset before going back to a pool.
type Reclaimable interface {
	Reset()
}

// AdvanceEpochAndReclaim advances the epoch and recycles retired
// objects that no active reader can still observe. With a reader in a
// read section the whole ring is left untouched: the ring is SPSC and
// re-enqueueing from here would make this goroutine a second producer
// racing the writer.
func AdvanceEpochAndReclaim(ring *RetireRing, pool ReclaimablePool, readers ...*ReaderEpoch) {
	GlobalEpoch.Add(1)
	if minReaderEpoch(readers...) != inactive {
		return
	}

	for {
		obj := ring.Dequeue()
		if obj == nil {
			return
		}
		if rec, ok := obj.(Reclaimable); ok {
			rec.Reset()
		}
		pool.PutAny(obj)
	}
}

func minReaderEpoch(rs ...*ReaderEpoch) uint64 {
	min := inactive
	for _, r := range rs {
		if r == nil {
			continue
		}
		v := r.Value()
		if v < min {
			min = v
		}
	}
	return min
}
