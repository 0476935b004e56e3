package model

import (
	"reflect"
	"strings"
	"testing"
)

func TestSchema_Point(t *testing.T) {
	got, err := New().Schema(reflect.TypeFor[point]())
	if err != nil {
		t.Fatalf("Schema: %v", err)
	}
	want := "syntax = \"proto2\";\n\nmessage Point {\n   optional int32 x = 1;\n   optional sint32 y = 2;\n}\n"
	if got != want {
		t.Errorf("schema:\n%s\nwant:\n%s", got, want)
	}
}

func TestSchema_Contents(t *testing.T) {
	tests := []struct {
		name  string
		typ   reflect.Type
		lines []string
	}{
		{
			name: "enum",
			typ:  reflect.TypeFor[paint](),
			lines: []string{
				"message Paint {\n   optional Color c = 1;\n}\n",
				"enum Color {\n   RED = 10;\n   GREEN = 20;\n   BLUE = 30;\n}\n",
			},
		},
		{
			name: "inheritance",
			typ:  reflect.TypeFor[Vehicle](),
			lines: []string{
				"message Vehicle {\n   optional int32 wheels = 1;\n   oneof subtype {\n      Car car = 10;\n   }\n}\n",
				"message Car {\n   optional string brand = 1;\n}\n",
			},
		},
		{
			name: "collections",
			typ:  reflect.TypeFor[inventory](),
			lines: []string{
				"repeated string tags = 1;",
				"repeated int32 counts = 2 [packed = true];",
				"repeated double scores = 3;",
				"repeated Point points = 4;",
				"map<string, int32> labels = 5;",
				"repeated int32 bag = 6;",
			},
		},
		{
			name: "defaults",
			typ:  reflect.TypeFor[withDefaults](),
			lines: []string{
				"optional int32 level = 1 [default = 5];",
				"optional string mode = 2 [default = \"fast\"];",
			},
		},
		{
			name: "well known types",
			typ:  reflect.TypeFor[record](),
			lines: []string{
				"import \"google/protobuf/duration.proto\";\nimport \"google/protobuf/timestamp.proto\";\n",
				"optional google.protobuf.Timestamp at = 1;",
				"optional google.protobuf.Duration ttl = 2;",
				"optional string price = 3;",
				"optional bytes id = 4;",
				"optional sfixed64 stamp = 6;",
			},
		},
		{
			name: "references",
			typ:  reflect.TypeFor[link](),
			lines: []string{
				"optional bytes next = 2; // reference to Link",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := New().Schema(tt.typ)
			if err != nil {
				t.Fatalf("Schema: %v", err)
			}
			for _, line := range tt.lines {
				if !strings.Contains(got, line) {
					t.Errorf("schema is missing %q:\n%s", line, got)
				}
			}
		})
	}
}

func TestSchema_AllTypes(t *testing.T) {
	r := New()
	for _, typ := range []reflect.Type{reflect.TypeFor[pair](), reflect.TypeFor[point]()} {
		if _, err := r.Add(typ, true); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	got, err := r.Schema(nil)
	if err != nil {
		t.Fatalf("Schema: %v", err)
	}
	pairAt, pointAt := strings.Index(got, "message Pair"), strings.Index(got, "message Point")
	if pairAt < 0 || pointAt < 0 || pairAt > pointAt {
		t.Errorf("messages missing or unsorted:\n%s", got)
	}
}
