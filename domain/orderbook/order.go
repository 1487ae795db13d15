package orderbook

import (
	"errors"
	"fmt"
)

type Side int
type Status int

const (
	Bid Side = iota
	Ask
)

const (
	Active Status = iota
	Inactive
)

func (s Side) String() string {
	if s == Ask {
		return "ask"
	}
	return "bid"
}

// Opposite returns the side an incoming order matches against.
func (s Side) Opposite() Side {
	if s == Bid {
		return Ask
	}
	return Bid
}

// ErrInvalidOrder is the sentinel for all admission rejections.
// A rejected order leaves the book untouched.
var ErrInvalidOrder = errors.New("invalid order")

var (
	ErrBadSide     = fmt.Errorf("unknown side: %w", ErrInvalidOrder)
	ErrBadPrice    = fmt.Errorf("price must be positive: %w", ErrInvalidOrder)
	ErrBadQty      = fmt.Errorf("quantity must be positive: %w", ErrInvalidOrder)
	ErrDuplicateID = fmt.Errorf("order id already resting: %w", ErrInvalidOrder)
)

// Order is a pure domain entity. Prices and quantities are integer
// ticks; the book never sees floating point.
type Order struct {
	ID     uint64
	Price  int64
	Qty    int64
	Filled int64
	SeqID  uint64

	Side   Side
	Status Status

	next *Order
	prev *Order
}

func (o *Order) Remaining() int64 {
	return o.Qty - o.Filled
}

// Read-only traversal helper for snapshot readers.
func (o *Order) Next() *Order {
	return o.next
}

// Reset implements memory.Reclaimable.
func (o *Order) Reset() { *o = Order{} }

// Fill is one trade produced while matching an incoming order.
// Price is always the maker's resting price.
type Fill struct {
	TakerID uint64
	MakerID uint64
	Price   int64
	Qty     int64
}

// Outcome reports what Admit did with an order: the fills in the
// order they occurred, and whether residual quantity was left resting.
type Outcome struct {
	Fills  []Fill
	Rested bool
}

// FilledQty is the total quantity traded across all fills.
func (out Outcome) FilledQty() int64 {
	var total int64
	for _, f := range out.Fills {
		total += f.Qty
	}
	return total
}

// LevelDepth is one rung of a depth snapshot.
type LevelDepth struct {
	Price  int64
	Qty    int64
	Orders int
}
