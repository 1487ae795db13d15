// Package loadgen drives the engine with randomized limit-order flow
// to measure matching throughput.
package loadgen

import (
	"context"
	"math/rand"
	"time"

	"fenrir/domain/orderbook"
	"fenrir/service"
)

type Config struct {
	Orders      int
	Seed        int64
	MidPrice    int64 // tick midpoint; buys price in [mid-band, mid], sells in [mid, mid+band]
	Band        int64
	MaxQty      int64
	CancelEvery int // cancel one recently rested order every n admissions; 0 disables
}

type Stats struct {
	Orders    int
	Fills     uint64
	QtyTraded int64
	Cancels   int
	Rejected  int
	Elapsed   time.Duration
	PerSecond float64
}

type Generator struct {
	cfg Config
	rng *rand.Rand
}

func New(cfg Config) *Generator {
	if cfg.MidPrice <= 0 {
		cfg.MidPrice = 10_000
	}
	if cfg.Band <= 0 {
		cfg.Band = 500
	}
	if cfg.MaxQty <= 0 {
		cfg.MaxQty = 10
	}
	return &Generator{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}
}

// Next produces the parameters of one random order.
func (g *Generator) Next() (side orderbook.Side, price, qty int64) {
	if g.rng.Intn(2) == 0 {
		side = orderbook.Bid
		price = g.cfg.MidPrice - g.rng.Int63n(g.cfg.Band+1)
	} else {
		side = orderbook.Ask
		price = g.cfg.MidPrice + g.rng.Int63n(g.cfg.Band+1)
	}
	qty = 1 + g.rng.Int63n(g.cfg.MaxQty)
	return side, price, qty
}

// Run feeds cfg.Orders random orders into the engine, interleaving
// occasional cancels, and reports throughput.
func (g *Generator) Run(ctx context.Context, engine *service.Engine) Stats {
	var stats Stats
	var rested []uint64

	start := time.Now()
	for i := 1; i <= g.cfg.Orders; i++ {
		if ctx.Err() != nil {
			break
		}

		id := uint64(i)
		side, price, qty := g.Next()

		out, err := engine.Admit(id, side, price, qty)
		if err != nil {
			stats.Rejected++
			continue
		}
		stats.Orders++
		stats.Fills += uint64(len(out.Fills))
		stats.QtyTraded += out.FilledQty()
		if out.Rested {
			rested = append(rested, id)
		}

		if g.cfg.CancelEvery > 0 && i%g.cfg.CancelEvery == 0 && len(rested) > 0 {
			pick := g.rng.Intn(len(rested))
			if engine.Cancel(rested[pick]) {
				stats.Cancels++
			}
			rested[pick] = rested[len(rested)-1]
			rested = rested[:len(rested)-1]
		}
	}

	stats.Elapsed = time.Since(start)
	if stats.Elapsed > 0 {
		stats.PerSecond = float64(stats.Orders) / stats.Elapsed.Seconds()
	}
	return stats
}
