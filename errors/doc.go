// Package errors provides structured error types for the protomodel library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). Every Kind belongs to a Class, which is what callers usually
// branch on:
//
//	configuration     duplicate tag/callback, frozen type, bad subtype, cycles
//	unsupported       no wire mapping, ambiguous collection, auto-add disabled
//	timeout           the metadata lock could not be taken in time
//	wire_format       malformed input or a mandatory field number mismatch
//	invalid_operation the registry state does not allow the call
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseConfigure, errors.KindInvalidFormat).
//		Path("Point", "Y").
//		GoType("uint32").
//		Detail("zig-zag is only valid for signed integers").
//		Build()
//
// Class sentinels work with errors.Is:
//
//	if errors.Is(err, errors.ErrMetadataTimeout) {
//		// pre-warm serializers at startup instead
//	}
package errors
