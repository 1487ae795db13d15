package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fenrir/domain/orderbook"
	"fenrir/infra/memory"
	"fenrir/infra/outbox"
	"fenrir/infra/sequence"
	"fenrir/jobs/broadcaster"
	"fenrir/jobs/depthfeed"
	"fenrir/loadgen"
	"fenrir/service"
)

type options struct {
	brokers         []string
	tradesTopic     string
	depthTopic      string
	symbol          string
	outboxDir       string
	depthLevels     int
	depthInterval   time.Duration
	drainInterval   time.Duration
	reclaimInterval time.Duration
	linger          time.Duration

	orders      int
	seed        int64
	mid         int64
	band        int64
	maxQty      int64
	cancelEvery int
}

func main() {
	opts := &options{}

	root := &cobra.Command{
		Use:   "fenrird",
		Short: "single-instrument limit order book engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	fl := root.Flags()
	fl.StringSliceVar(&opts.brokers, "brokers", nil, "kafka brokers; empty disables publishing")
	fl.StringVar(&opts.tradesTopic, "trades-topic", "fenrir.trades", "topic for fill events")
	fl.StringVar(&opts.depthTopic, "depth-topic", "fenrir.depth", "topic for depth snapshots")
	fl.StringVar(&opts.symbol, "symbol", "FNR-USD", "instrument symbol used as message key")
	fl.StringVar(&opts.outboxDir, "outbox-dir", "./outbox", "directory for the event outbox")
	fl.IntVar(&opts.depthLevels, "depth-levels", 10, "levels per side in published snapshots")
	fl.DurationVar(&opts.depthInterval, "depth-interval", time.Second, "depth publish cadence")
	fl.DurationVar(&opts.drainInterval, "drain-interval", 250*time.Millisecond, "outbox drain cadence")
	fl.DurationVar(&opts.reclaimInterval, "reclaim-interval", 2*time.Second, "epoch reclamation cadence")
	fl.DurationVar(&opts.linger, "linger", 2*time.Second, "drain time before shutdown")

	fl.IntVar(&opts.orders, "orders", 1_000_000, "random orders to feed")
	fl.Int64Var(&opts.seed, "seed", 42, "load generator seed")
	fl.Int64Var(&opts.mid, "mid", 10_000, "midpoint price in ticks")
	fl.Int64Var(&opts.band, "band", 500, "half-spread of generated prices in ticks")
	fl.Int64Var(&opts.maxQty, "max-qty", 10, "maximum order quantity")
	fl.IntVar(&opts.cancelEvery, "cancel-every", 0, "cancel a resting order every n admissions")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts *options) error {
	log, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer log.Sync()

	// ---------------- Outbox ----------------

	out, err := outbox.Open(outbox.Config{Dir: opts.outboxDir})
	if err != nil {
		return fmt.Errorf("open outbox: %w", err)
	}
	defer out.Close()

	// ---------------- Memory ----------------

	pool := memory.NewPool(func() *orderbook.Order {
		return &orderbook.Order{}
	})
	ring := memory.NewRetireRing(1 << 18)

	// ---------------- Domain ----------------

	book := orderbook.NewOrderBook()
	seq := sequence.New(0)

	// ---------------- Engine ----------------

	engine := service.NewEngine(book, pool, ring, seq, out, log)

	jobCtx, cancelJobs := context.WithCancel(ctx)
	defer cancelJobs()

	engine.StartReclaimJob(jobCtx, opts.reclaimInterval)

	// ---------------- Egress jobs ----------------

	if len(opts.brokers) > 0 {
		bc, err := broadcaster.New(out, broadcaster.Config{
			Brokers:  opts.brokers,
			Topic:    opts.tradesTopic,
			Interval: opts.drainInterval,
		}, log)
		if err != nil {
			return fmt.Errorf("start broadcaster: %w", err)
		}
		defer bc.Close()
		bc.Start(jobCtx)

		feed := depthfeed.New(engine, depthfeed.Config{
			Brokers:  opts.brokers,
			Topic:    opts.depthTopic,
			Symbol:   opts.symbol,
			Levels:   opts.depthLevels,
			Interval: opts.depthInterval,
		}, log)
		defer feed.Close()
		feed.Start(jobCtx)
	}

	// ---------------- Load ----------------

	log.Info("feeding random orders",
		zap.Int("orders", opts.orders),
		zap.Int64("seed", opts.seed),
	)

	gen := loadgen.New(loadgen.Config{
		Orders:      opts.orders,
		Seed:        opts.seed,
		MidPrice:    opts.mid,
		Band:        opts.band,
		MaxQty:      opts.maxQty,
		CancelEvery: opts.cancelEvery,
	})
	stats := gen.Run(ctx, engine)

	printBook(engine, opts.depthLevels)
	printStats(stats)

	if err := out.Sync(); err != nil {
		log.Warn("sync outbox", zap.Error(err))
	}

	// Let the broadcaster drain before tearing down.
	if len(opts.brokers) > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(opts.linger):
		}
	}
	return nil
}

func printBook(engine *service.Engine, levels int) {
	snap := engine.Depth(levels)

	fmt.Println("\n--- ORDER BOOK ---")
	fmt.Println("\nAsks (price asc):")
	for _, l := range snap.Asks {
		fmt.Printf("%8d -> %d (%d orders)\n", l.Price, l.Qty, l.Orders)
	}
	fmt.Println("\nBids (price desc):")
	for _, l := range snap.Bids {
		fmt.Printf("%8d -> %d (%d orders)\n", l.Price, l.Qty, l.Orders)
	}
}

func printStats(s loadgen.Stats) {
	fmt.Printf("\nOrders processed : %d\n", s.Orders)
	fmt.Printf("Fills            : %d\n", s.Fills)
	fmt.Printf("Quantity traded  : %d\n", s.QtyTraded)
	fmt.Printf("Cancels          : %d\n", s.Cancels)
	fmt.Printf("Time taken       : %s\n", s.Elapsed)
	fmt.Printf("Orders per second: %.0f\n", s.PerSecond)
}
