// Package wire implements the primitive protobuf codec the model layer
// writes through: field headers, varints, fixed-width values, byte blocks,
// length-delimited and group framing, and stream record prefixes.
//
// # Framing
//
//	Type        Payload
//	──────────────────────────────────────
//	varint      LEB128, zig-zag for sint32/sint64
//	fixed32     4 bytes little-endian
//	fixed64     8 bytes little-endian
//	bytes       varint length + payload
//	start_group fields until the matching end_group
//
// The Writer back-fills lengths of nested blocks, so callers never manage
// byte positions themselves:
//
//	tok := w.StartLengthDelimited()
//	// ... nested fields ...
//	err := w.EndLengthDelimited(tok)
//
// The Reader hands out sub-readers for nested messages and reports the end
// of a message as field number 0. Unknown fields are skipped with SkipField.
//
// # Streams
//
// ReadPrefix and AppendPrefix handle self-delimited records. ReadPrefix
// consumes exactly the header bytes from an io.Reader, so consecutive
// records can be read from the same stream without buffering ahead.
package wire
