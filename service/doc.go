// Package service hosts the Engine, the only write entry point into
// the book. All coordination between the domain (orderbook), infra
// (memory, sequence, outbox) and the egress jobs happens here.
package service
