// Package scalar classifies Go types handled directly by the core scalar
// transform: integers, floats, bool, strings, byte blocks and the
// well-known value types (time, duration, decimal, uuid, url).
package scalar
