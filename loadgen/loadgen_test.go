package loadgen

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"fenrir/domain/orderbook"
	"fenrir/infra/memory"
	"fenrir/infra/sequence"
	"fenrir/service"
)

func newEngine() *service.Engine {
	pool := memory.NewPool(func() *orderbook.Order { return &orderbook.Order{} })
	ring := memory.NewRetireRing(1 << 16)
	return service.NewEngine(orderbook.NewOrderBook(), pool, ring, sequence.New(0), nil, zap.NewNop())
}

func TestGeneratorDeterministic(t *testing.T) {
	a := New(Config{Seed: 7})
	b := New(Config{Seed: 7})

	for i := 0; i < 100; i++ {
		s1, p1, q1 := a.Next()
		s2, p2, q2 := b.Next()
		if s1 != s2 || p1 != p2 || q1 != q2 {
			t.Fatalf("diverged at order %d: (%v,%d,%d) vs (%v,%d,%d)", i, s1, p1, q1, s2, p2, q2)
		}
	}
}

func TestGeneratorBounds(t *testing.T) {
	g := New(Config{Seed: 1, MidPrice: 1000, Band: 50, MaxQty: 5})

	for i := 0; i < 1000; i++ {
		side, price, qty := g.Next()
		if qty < 1 || qty > 5 {
			t.Fatalf("qty %d out of range", qty)
		}
		switch side {
		case orderbook.Bid:
			if price < 950 || price > 1000 {
				t.Fatalf("bid price %d outside [950,1000]", price)
			}
		case orderbook.Ask:
			if price < 1000 || price > 1050 {
				t.Fatalf("ask price %d outside [1000,1050]", price)
			}
		}
	}
}

func TestRunFeedsEngine(t *testing.T) {
	engine := newEngine()
	g := New(Config{Orders: 2000, Seed: 3, MidPrice: 100, Band: 5, MaxQty: 10, CancelEvery: 50})

	stats := g.Run(context.Background(), engine)

	if stats.Orders != 2000 {
		t.Fatalf("processed %d orders; want 2000", stats.Orders)
	}
	if stats.Rejected != 0 {
		t.Errorf("generator produced %d invalid orders", stats.Rejected)
	}

	es := engine.Stats()
	if es.Admitted != 2000 {
		t.Errorf("engine admitted %d; want 2000", es.Admitted)
	}
	if stats.Fills != es.Fills {
		t.Errorf("loadgen counted %d fills, engine %d", stats.Fills, es.Fills)
	}
	if stats.Cancels != int(es.Cancelled) {
		t.Errorf("loadgen counted %d cancels, engine %d", stats.Cancels, es.Cancelled)
	}

	// Narrow overlapping band guarantees crossings.
	if stats.Fills == 0 {
		t.Error("expected at least one fill")
	}

	bid, hasBid := engine.BestBid()
	ask, hasAsk := engine.BestAsk()
	if hasBid && hasAsk && bid >= ask {
		t.Errorf("book left crossed: bid=%d ask=%d", bid, ask)
	}
}
