package orderbook

// PriceLevel is a FIFO queue of resting orders at a single price.
// A level exists in its side's tree only while the queue is non-empty.
type PriceLevel struct {
	Price int64

	head *Order
	tail *Order

	TotalQty   int64
	OrderCount int
}

func (p *PriceLevel) Enqueue(o *Order) {
	if p.head == nil {
		p.head = o
		p.tail = o
	} else {
		p.tail.next = o
		o.prev = p.tail
		p.tail = o
	}
	p.TotalQty += o.Remaining()
	p.OrderCount++
}

// Unlink removes an order from anywhere in the queue in O(1) using
// its intrusive links. The order's remaining quantity is deducted
// from the level aggregate.
func (p *PriceLevel) Unlink(o *Order) {
	if o.prev != nil {
		o.prev.next = o.next
	} else {
		p.head = o.next
	}
	if o.next != nil {
		o.next.prev = o.prev
	} else {
		p.tail = o.prev
	}
	o.next = nil
	o.prev = nil

	p.TotalQty -= o.Remaining()
	p.OrderCount--
}

// reduce deducts a partial fill from the level aggregate without
// touching queue position.
func (p *PriceLevel) reduce(qty int64) {
	p.TotalQty -= qty
}

func (p *PriceLevel) Empty() bool {
	return p.head == nil
}

// Read-only helper
func (p *PriceLevel) Head() *Order {
	return p.head
}
