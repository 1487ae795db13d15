package outbox

import "encoding/json"

// Codec turns events into journal payloads.
type Codec interface {
	Encode(any) ([]byte, error)
	Decode([]byte, any) error
}

// JSONCodec is the wire encoding for the trade feed.
type JSONCodec struct{}

func (JSONCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec) Decode(b []byte, v any) error {
	return json.Unmarshal(b, v)
}

// FillEvent is one trade on the feed.
type FillEvent struct {
	V       int    `json:"v"`
	Seq     uint64 `json:"seq"`
	TakerID uint64 `json:"taker_id"`
	MakerID uint64 `json:"maker_id"`
	Price   int64  `json:"price"`
	Qty     int64  `json:"qty"`
	Time    int64  `json:"time"`
}

// CancelEvent records an effective cancellation.
type CancelEvent struct {
	V       int    `json:"v"`
	Seq     uint64 `json:"seq"`
	OrderID uint64 `json:"order_id"`
	Time    int64  `json:"time"`
}
