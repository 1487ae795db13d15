package orderbook

import (
	"sync/atomic"

	"fenrir/infra/memory"
)

// OrderBook is single-writer and deterministic. Callers are expected
// to serialize Admit and Cancel; see the service package.
type OrderBook struct {
	Bids *LevelTree
	Asks *LevelTree

	// orders maps id -> resting order. An id is present exactly while
	// the order rests in the book.
	orders map[uint64]*Order

	LastSeq atomic.Uint64
}

func NewOrderBook() *OrderBook {
	return &OrderBook{
		Bids:   NewLevelTree(),
		Asks:   NewLevelTree(),
		orders: make(map[uint64]*Order, 1<<10),
	}
}

// Admit validates an incoming limit order, matches it against the
// opposite side under price-time priority, and rests any remainder.
// Rejected orders leave the book untouched. Fully-filled makers (and
// nothing else) are pushed onto rq for later reclamation; a nil ring
// leaves them to the garbage collector.
func (b *OrderBook) Admit(o *Order, rq *memory.RetireRing) (Outcome, error) {
	if err := b.validate(o); err != nil {
		return Outcome{}, err
	}
	b.LastSeq.Store(o.SeqID)

	out := Outcome{Fills: b.match(o, rq)}

	if o.Remaining() > 0 {
		side := b.tree(o.Side)
		side.GetOrCreate(o.Price).Enqueue(o)
		b.orders[o.ID] = o
		out.Rested = true
	} else {
		o.Status = Inactive
	}
	return out, nil
}

// Cancel removes a resting order by id. Unknown ids are a no-op and
// report false; cancelling twice is safe.
func (b *OrderBook) Cancel(id uint64, rq *memory.RetireRing) bool {
	o, ok := b.orders[id]
	if !ok {
		return false
	}
	lvl := b.tree(o.Side).Find(o.Price)
	if lvl == nil {
		// index and tree disagree; never expected
		panic("orderbook: resting order has no price level")
	}
	b.remove(o, lvl, rq)
	return true
}

// BestBid returns the highest active bid price.
func (b *OrderBook) BestBid() (int64, bool) {
	lvl := b.Bids.Max()
	if lvl == nil {
		return 0, false
	}
	return lvl.Price, true
}

// BestAsk returns the lowest active ask price.
func (b *OrderBook) BestAsk() (int64, bool) {
	lvl := b.Asks.Min()
	if lvl == nil {
		return 0, false
	}
	return lvl.Price, true
}

// Depth aggregates resting quantity per level in priority order:
// bids descending, asks ascending. maxLevels <= 0 returns everything.
// Read-only.
func (b *OrderBook) Depth(side Side, maxLevels int) []LevelDepth {
	out := make([]LevelDepth, 0, 16)
	visit := func(lvl *PriceLevel) bool {
		out = append(out, LevelDepth{Price: lvl.Price, Qty: lvl.TotalQty, Orders: lvl.OrderCount})
		return maxLevels <= 0 || len(out) < maxLevels
	}
	if side == Bid {
		b.Bids.WalkDesc(visit)
	} else {
		b.Asks.WalkAsc(visit)
	}
	return out
}

// ---- traversal helpers ----

func (b *OrderBook) WalkBids(fn func(*PriceLevel) bool) { b.Bids.WalkDesc(fn) }
func (b *OrderBook) WalkAsks(fn func(*PriceLevel) bool) { b.Asks.WalkAsc(fn) }

// SnapshotActive visits every active resting order, bids best-first
// then asks best-first.
func (b *OrderBook) SnapshotActive(visit func(*Order)) {
	walk := func(lvl *PriceLevel) bool {
		for o := lvl.Head(); o != nil; o = o.Next() {
			if o.Status == Active {
				visit(o)
			}
		}
		return true
	}
	b.Bids.WalkDesc(walk)
	b.Asks.WalkAsc(walk)
}

// ---- matching ----

func (b *OrderBook) match(o *Order, rq *memory.RetireRing) []Fill {
	var fills []Fill

	if o.Side == Bid {
		for o.Remaining() > 0 {
			best := b.Asks.Min()
			if best == nil || best.Price > o.Price {
				break
			}
			fills = append(fills, b.trade(o, best, rq))
		}
	} else {
		for o.Remaining() > 0 {
			best := b.Bids.Max()
			if best == nil || best.Price < o.Price {
				break
			}
			fills = append(fills, b.trade(o, best, rq))
		}
	}
	return fills
}

// trade crosses the incoming order against the oldest maker at the
// best level. The trade prints at the maker's price.
func (b *OrderBook) trade(o *Order, best *PriceLevel, rq *memory.RetireRing) Fill {
	maker := best.Head()
	qty := min(o.Remaining(), maker.Remaining())

	o.Filled += qty
	maker.Filled += qty
	best.reduce(qty)

	f := Fill{TakerID: o.ID, MakerID: maker.ID, Price: best.Price, Qty: qty}

	if maker.Remaining() == 0 {
		b.remove(maker, best, rq)
	}
	return f
}

// remove unlinks a resting order, drops its level if emptied, and
// deindexes it.
func (b *OrderBook) remove(o *Order, lvl *PriceLevel, rq *memory.RetireRing) {
	o.Status = Inactive
	lvl.Unlink(o)
	if lvl.Empty() {
		b.tree(o.Side).Delete(lvl.Price)
	}
	delete(b.orders, o.ID)

	// A full ring must not fail the removal; the order is already
	// unlinked and deindexed, so the garbage collector takes it.
	if rq != nil {
		_ = rq.Enqueue(o)
	}
}

func (b *OrderBook) tree(s Side) *LevelTree {
	if s == Bid {
		return b.Bids
	}
	return b.Asks
}

func (b *OrderBook) validate(o *Order) error {
	switch {
	case o.Side != Bid && o.Side != Ask:
		return ErrBadSide
	case o.Price <= 0:
		return ErrBadPrice
	case o.Qty <= 0 || o.Filled != 0:
		return ErrBadQty
	}
	if _, dup := b.orders[o.ID]; dup {
		return ErrDuplicateID
	}
	return nil
}
