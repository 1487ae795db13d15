package service

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fenrir/domain/orderbook"
	"fenrir/infra/memory"
	"fenrir/infra/outbox"
	"fenrir/infra/sequence"
)

func newTestEngine(t *testing.T, out *outbox.Outbox) *Engine {
	t.Helper()
	pool := memory.NewPool(func() *orderbook.Order { return &orderbook.Order{} })
	ring := memory.NewRetireRing(1 << 10)
	return NewEngine(orderbook.NewOrderBook(), pool, ring, sequence.New(0), out, zap.NewNop())
}

func TestEngineAdmitAndQuery(t *testing.T) {
	e := newTestEngine(t, nil)

	out, err := e.Admit(1, orderbook.Ask, 100, 10)
	require.NoError(t, err)
	require.True(t, out.Rested)

	out, err = e.Admit(2, orderbook.Bid, 100, 4)
	require.NoError(t, err)
	require.Len(t, out.Fills, 1)
	require.Equal(t, int64(100), out.Fills[0].Price)
	require.Equal(t, int64(4), out.Fills[0].Qty)

	ask, ok := e.BestAsk()
	require.True(t, ok)
	require.Equal(t, int64(100), ask)
	_, ok = e.BestBid()
	require.False(t, ok)

	depth := e.Depth(0)
	require.Empty(t, depth.Bids)
	require.Len(t, depth.Asks, 1)
	require.Equal(t, int64(6), depth.Asks[0].Qty)

	stats := e.Stats()
	require.Equal(t, uint64(2), stats.Admitted)
	require.Equal(t, uint64(1), stats.Fills)
}

func TestEngineRejectsInvalid(t *testing.T) {
	e := newTestEngine(t, nil)

	_, err := e.Admit(1, orderbook.Bid, 0, 5)
	require.ErrorIs(t, err, orderbook.ErrInvalidOrder)

	_, err = e.Admit(1, orderbook.Bid, 100, -1)
	require.ErrorIs(t, err, orderbook.ErrInvalidOrder)

	require.Equal(t, uint64(0), e.Stats().Admitted)
}

func TestEngineCancel(t *testing.T) {
	e := newTestEngine(t, nil)

	_, err := e.Admit(1, orderbook.Bid, 100, 5)
	require.NoError(t, err)

	require.True(t, e.Cancel(1))
	require.False(t, e.Cancel(1), "second cancel must be a no-op")
	require.False(t, e.Cancel(999), "unknown id must be a no-op")

	require.Equal(t, uint64(1), e.Stats().Cancelled)
}

func TestEngineJournalsFillsToOutbox(t *testing.T) {
	out, err := outbox.Open(outbox.Config{Dir: t.TempDir()})
	require.NoError(t, err)
	defer out.Close()

	e := newTestEngine(t, out)

	_, err = e.Admit(10, orderbook.Ask, 50, 5)
	require.NoError(t, err)
	_, err = e.Admit(11, orderbook.Ask, 50, 5)
	require.NoError(t, err)
	_, err = e.Admit(20, orderbook.Bid, 50, 7)
	require.NoError(t, err)

	require.True(t, e.Cancel(11))

	var fills []outbox.FillEvent
	var cancels []outbox.CancelEvent
	codec := outbox.JSONCodec{}

	require.NoError(t, out.ScanPending(func(seq uint64, _ outbox.StateRecord, rec *outbox.Record) error {
		switch rec.Type {
		case outbox.RecordFill:
			var ev outbox.FillEvent
			require.NoError(t, codec.Decode(rec.Data, &ev))
			fills = append(fills, ev)
		case outbox.RecordCancel:
			var ev outbox.CancelEvent
			require.NoError(t, codec.Decode(rec.Data, &ev))
			cancels = append(cancels, ev)
		}
		return nil
	}))

	require.Len(t, fills, 2)
	require.Equal(t, uint64(10), fills[0].MakerID)
	require.Equal(t, int64(5), fills[0].Qty)
	require.Equal(t, uint64(11), fills[1].MakerID)
	require.Equal(t, int64(2), fills[1].Qty)

	require.Len(t, cancels, 1)
	require.Equal(t, uint64(11), cancels[0].OrderID)
}

func TestEngineSnapshotAndReclaim(t *testing.T) {
	e := newTestEngine(t, nil)

	_, err := e.Admit(1, orderbook.Bid, 99, 1)
	require.NoError(t, err)
	_, err = e.Admit(2, orderbook.Ask, 101, 1)
	require.NoError(t, err)

	var ids []uint64
	e.Snapshot(func(o *orderbook.Order) { ids = append(ids, o.ID) })
	require.Equal(t, []uint64{1, 2}, ids)

	// Fill both sides; the retired orders drain on epoch advance.
	_, err = e.Admit(3, orderbook.Bid, 101, 1)
	require.NoError(t, err)
	e.AdvanceEpoch()

	ids = ids[:0]
	e.Snapshot(func(o *orderbook.Order) { ids = append(ids, o.ID) })
	require.Equal(t, []uint64{1}, ids, "filled orders must not appear in snapshots")
}
