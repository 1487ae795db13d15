package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"fenrir/domain/orderbook"
	"fenrir/infra/memory"
	"fenrir/infra/outbox"
	"fenrir/infra/sequence"
)

// Engine serializes every mutation of one instrument's book. Admit
// and Cancel run under a single lock (price-time priority is only
// meaningful under a total order of admissions); top-of-book and
// depth queries share that serialization point, while Snapshot runs
// lock-free under an epoch guard for monitoring readers.
type Engine struct {
	mu sync.Mutex

	book   *orderbook.OrderBook
	pool   *memory.Pool[orderbook.Order]
	ring   *memory.RetireRing
	reader *memory.ReaderEpoch
	seq    *sequence.Sequencer
	out    *outbox.Outbox
	codec  outbox.Codec
	log    *zap.Logger

	admitted  atomic.Uint64
	fills     atomic.Uint64
	cancelled atomic.Uint64
}

// NewEngine wires all dependencies. A nil outbox disables event
// journaling (tests, dry runs).
func NewEngine(
	book *orderbook.OrderBook,
	pool *memory.Pool[orderbook.Order],
	ring *memory.RetireRing,
	seq *sequence.Sequencer,
	out *outbox.Outbox,
	log *zap.Logger,
) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		book:   book,
		pool:   pool,
		ring:   ring,
		reader: memory.NewReaderEpoch(),
		seq:    seq,
		out:    out,
		codec:  outbox.JSONCodec{},
		log:    log.Named("engine"),
	}
}

// ---- commands ----

// Admit submits a limit order. The id is caller-assigned and must be
// unique among resting orders. The outcome carries the fills in the
// order they occurred and whether residual quantity rested.
func (e *Engine) Admit(id uint64, side orderbook.Side, price, qty int64) (orderbook.Outcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	o := e.pool.Get()
	*o = orderbook.Order{
		ID:     id,
		Side:   side,
		Price:  price,
		Qty:    qty,
		SeqID:  e.seq.Next(),
		Status: orderbook.Active,
	}

	out, err := e.book.Admit(o, e.ring)
	if err != nil {
		o.Reset()
		e.pool.Put(o)
		e.log.Debug("order rejected",
			zap.Uint64("id", id),
			zap.Error(err),
		)
		return orderbook.Outcome{}, err
	}

	e.admitted.Add(1)
	e.fills.Add(uint64(len(out.Fills)))

	for _, f := range out.Fills {
		e.journalFill(f)
	}

	// Taker that neither rested nor survives matching goes straight
	// to the retire ring; resting orders stay owned by the book.
	if !out.Rested {
		if !e.ring.Enqueue(o) {
			e.log.Warn("retire ring full, leaking taker to GC", zap.Uint64("id", id))
		}
	}
	return out, nil
}

// Cancel removes a resting order. Unknown or already-gone ids are a
// safe no-op; the return value reports whether anything was removed.
func (e *Engine) Cancel(id uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	ok := e.book.Cancel(id, e.ring)
	if ok {
		e.cancelled.Add(1)
		e.journalCancel(id)
	}
	return ok
}

// ---- queries ----

func (e *Engine) BestBid() (int64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.BestBid()
}

func (e *Engine) BestAsk() (int64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.BestAsk()
}

// DepthSnapshot is both sides of the ladder in priority order.
type DepthSnapshot struct {
	Seq  uint64                 `json:"seq"`
	Time int64                  `json:"time"`
	Bids []orderbook.LevelDepth `json:"bids"`
	Asks []orderbook.LevelDepth `json:"asks"`
}

// Depth returns up to maxLevels per side; maxLevels <= 0 means all.
func (e *Engine) Depth(maxLevels int) DepthSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return DepthSnapshot{
		Seq:  e.book.LastSeq.Load(),
		Time: time.Now().UnixNano(),
		Bids: e.book.Depth(orderbook.Bid, maxLevels),
		Asks: e.book.Depth(orderbook.Ask, maxLevels),
	}
}

// Snapshot visits all active orders without taking the write lock.
// Retired orders cannot be recycled while the visit is in progress;
// monitoring readers tolerate in-flight mutations.
func (e *Engine) Snapshot(visit func(*orderbook.Order)) {
	e.reader.Enter()
	defer e.reader.Exit()

	e.book.SnapshotActive(visit)
}

// Stats are engine lifetime counters.
type Stats struct {
	Admitted  uint64
	Fills     uint64
	Cancelled uint64
}

func (e *Engine) Stats() Stats {
	return Stats{
		Admitted:  e.admitted.Load(),
		Fills:     e.fills.Load(),
		Cancelled: e.cancelled.Load(),
	}
}

// ---- reclamation ----

// AdvanceEpoch performs one reclamation step. Called periodically by
// StartReclaimJob.
func (e *Engine) AdvanceEpoch() {
	memory.AdvanceEpochAndReclaim(e.ring, e.pool, e.reader)
}

func (e *Engine) StartReclaimJob(ctx context.Context, interval time.Duration) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				e.AdvanceEpoch()
			}
		}
	}()
}

// ---- journaling ----

func (e *Engine) journalFill(f orderbook.Fill) {
	if e.out == nil {
		return
	}
	seq := e.seq.Next()
	payload, err := e.codec.Encode(outbox.FillEvent{
		V:       1,
		Seq:     seq,
		TakerID: f.TakerID,
		MakerID: f.MakerID,
		Price:   f.Price,
		Qty:     f.Qty,
		Time:    time.Now().UnixNano(),
	})
	if err == nil {
		err = e.out.Append(outbox.RecordFill, seq, payload)
	}
	if err != nil {
		e.log.Error("journal fill failed", zap.Uint64("seq", seq), zap.Error(err))
	}
}

func (e *Engine) journalCancel(id uint64) {
	if e.out == nil {
		return
	}
	seq := e.seq.Next()
	payload, err := e.codec.Encode(outbox.CancelEvent{
		V:       1,
		Seq:     seq,
		OrderID: id,
		Time:    time.Now().UnixNano(),
	})
	if err == nil {
		err = e.out.Append(outbox.RecordCancel, seq, payload)
	}
	if err != nil {
		e.log.Error("journal cancel failed", zap.Uint64("seq", seq), zap.Error(err))
	}
}
