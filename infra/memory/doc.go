// Package memory provides the primitives for object reuse and safe
// reclamation: a typed pool, a retire ring for objects unlinked from
// the book but possibly still visible to snapshot readers, and
// RCU-style epoch tracking that decides when a retired object may be
// recycled.
//
// The package is dependency-free.
package memory
