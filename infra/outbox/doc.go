// Package outbox persists fill and cancel events on their way out to
// the trade feed. Payloads live in a segmented append-only journal
// with CRC-framed records; publish state (NEW, SENT, ACKED) lives in
// a pebble store keyed by sequence number and points back at the
// journal position of the payload. The broadcaster drains pending
// entries and acknowledges them, after which both sides can be
// garbage collected.
//
// The outbox is egress plumbing only: the book itself is never
// rebuilt from it.
package outbox
