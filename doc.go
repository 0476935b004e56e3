// Package protomodel serializes plain Go values to the protocol buffer wire
// format without generated code.
//
// Types are described at runtime, either with `proto` struct tags, a
// ProtoContract method, or the fluent builder on a Registry. The first use of
// a type freezes its description and compiles it into a serializer graph that
// is reused for every later call.
//
// # Architecture Overview
//
//	protomodel/          Facade over the process-wide default registry
//	├── model/           Registry, type entries, serializer graphs, schema, streams
//	├── wire/            protobuf wire primitives and stream record prefixes
//	├── errors/          Structured error types with phase, kind and path
//	└── cmd/protomodel/  CLI: wire dump, interactive inspector, schema output
//
// # Quick Start
//
// Describe a type with tags and round-trip it:
//
//	type Point struct {
//	    X int32 `proto:"1"`
//	    Y int32 `proto:"2,zigzag"`
//	}
//
//	data, err := protomodel.Marshal(Point{X: 3, Y: -4})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	// data = 08 03 10 07
//
//	p, err := protomodel.Deserialize[Point](data)
//
// # Runtime Configuration
//
// Types without tags are configured through the builder:
//
//	protomodel.Define[Point]().
//	    Field(1, "X").
//	    Field(2, "Y", model.ZigZag()).
//	    Build()
//
// Configuration must happen before the first serialization of a type. After
// that the entry is frozen and further changes fail with a frozen error.
//
// # Inheritance
//
// A base is either an interface or a struct embedded anonymously by its
// derived types. Derived types are declared with SubType on the base:
//
//	protomodel.Define[Shape]().
//	    SubType(1, reflect.TypeFor[Circle]()).
//	    SubType(2, reflect.TypeFor[Square]())
//
// Decoding into a Shape picks the concrete type from the subtype field found
// in the payload.
//
// # Streams
//
// Records can be written back to back with a length prefix and read lazily:
//
//	for p, err := range protomodel.Items[Point](r, wire.PrefixBase128, 1) {
//	    ...
//	}
//
// # Error Handling
//
// All errors are *errors.Error values. Match the class with errors.Is:
//
//	if errors.Is(err, errors.ErrWireFormat) {
//	    // malformed input
//	}
package protomodel
