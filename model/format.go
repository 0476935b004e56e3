package model

import "fmt"

// DataFormat is a per-field hint that selects among wire representations.
type DataFormat uint8

const (
	FormatDefault DataFormat = iota
	FormatZigZag
	FormatFixedSize
	FormatTwosComplement
	FormatGroup
)

var formatNames = [...]string{
	FormatDefault:        "default",
	FormatZigZag:         "zigzag",
	FormatFixedSize:      "fixed",
	FormatTwosComplement: "twos",
	FormatGroup:          "group",
}

func (f DataFormat) String() string {
	if int(f) < len(formatNames) {
		return formatNames[f]
	}
	return fmt.Sprintf("format(%d)", f)
}

// ParseDataFormat accepts the names used in struct tags.
func ParseDataFormat(s string) (DataFormat, bool) {
	for i, name := range formatNames {
		if name == s {
			return DataFormat(i), true
		}
	}
	return FormatDefault, false
}

// Construction selects how new instances are created during decoding.
type Construction uint8

const (
	// ConstructDefault allocates a zero value and applies field defaults.
	ConstructDefault Construction = iota
	// ConstructFactory calls the entry's factory function.
	ConstructFactory
	// ConstructSkip allocates a bare zero value without field defaults.
	ConstructSkip
)

func (c Construction) String() string {
	switch c {
	case ConstructDefault:
		return "default"
	case ConstructFactory:
		return "factory"
	case ConstructSkip:
		return "skip"
	default:
		return fmt.Sprintf("construction(%d)", c)
	}
}
