// Package orderbook implements an in-memory limit order book for a
// single instrument under strict price-time priority. Each side keeps
// its price levels in a red-black tree; orders at a level form an
// intrusive FIFO list, and an id index gives O(1) cancellation from
// the middle of a queue.
//
// The book is a single-writer structure. It performs no locking of
// its own; serialization and memory reclamation of retired orders
// are owned by the caller (see the service package).
package orderbook
