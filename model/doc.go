// Package model maps Go types to the protocol buffer wire format at runtime.
//
// A Registry holds one TypeEntry per Go type. Entries are created either
// explicitly (Add, Define) or by auto-discovery from `proto` struct tags and
// the ContractProvider interface. The first time an entry is used it is
// frozen and compiled into a Graph: a tree of encode/decode nodes that the
// hot path walks without taking any lock.
//
// # Field pipeline
//
// Every field compiles to the same fixed chain of nodes:
//
//	tag framing → presence → collection → default suppression → core
//	    │             │           │                │               │
//	  writes       skips nil   iterates      skips values     scalar, nested
//	  tag/block    pointers    items         equal to the     message, pair,
//	                                         default          reference
//
// The chain order is part of the wire contract and never changes.
//
// # Wire types
//
//	Go type                 Default     ZigZag   FixedSize   Group
//	───────────────────────────────────────────────────────────────
//	bool                    varint      -        fixed32     -
//	int8..int64, int        varint      varint   fixed32/64  -
//	uint8..uint64, uint     varint      -        fixed32/64  -
//	float32 / float64       fixed32/64  -        fixed32/64  -
//	string, []byte          bytes       -        -           -
//	decimal.Big, url.URL    bytes       -        -           -
//	uuid.UUID               bytes       -        -           -
//	time.Time, Duration     bytes       -        fixed64     group
//	registered enum         varint      -        -           -
//	struct / interface      bytes       -        -           group
//
// # Inheritance
//
// Go has no class inheritance, so a derived type is either a type
// implementing an interface base, or a struct embedding a struct base as an
// anonymous field. A derived value is written at its root: the subtype
// field comes first and wraps the derived fields, followed by the base
// fields.
//
// # Concurrency
//
// Metadata changes take the registry lock with a bounded wait and fail with
// a MetadataTimeout error instead of blocking forever. Built graphs are
// immutable and safe for concurrent use.
package model
