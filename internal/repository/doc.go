// Package repository defines the data access contract for the topology
// store.
//
// The store is deliberately dumb: point lookups and idempotent upserts keyed
// by device serial, index scans for "devices of role R directly downstream
// of serial S", and the open-ticket reference table. All graph reasoning
// (impact traversal, adjacency validation) lives in the service layer.
//
// The only implementation is the SQLite store in the sqlite subpackage.
// Serial-keyed upserts are commutative, so concurrent builder tasks can each
// hold their own connection without coordination.
package repository
