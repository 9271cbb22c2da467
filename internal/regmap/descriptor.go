// Package regmap compiles the declarative register schema shipped with a
// radar sensor into typed descriptors and provides the byte-level codec for
// reading and writing register values through those descriptors.
package regmap

import (
	"fmt"
	"sort"
)

// Type identifies the wire representation of a register value. The set is
// closed: the schema compiler rejects documents that declare anything else.
type Type int

const (
	TypeInt32 Type = iota
	TypeUint32
	TypeUint16
	TypeBool
	TypeEnum
	TypeBitmask
)

// String returns the schema tag for the type.
func (t Type) String() string {
	switch t {
	case TypeInt32:
		return "int32"
	case TypeUint32:
		return "uint32"
	case TypeUint16:
		return "uint16"
	case TypeBool:
		return "bool"
	case TypeEnum:
		return "enum"
	case TypeBitmask:
		return "bitmask"
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// Width returns the number of bytes the type occupies on the wire.
func (t Type) Width() int {
	switch t {
	case TypeUint16:
		return 2
	case TypeBool:
		return 1
	default:
		return 4
	}
}

// Access describes which directions a register supports.
type Access int

const (
	ReadOnly Access = iota
	WriteOnly
	ReadWrite
)

func (a Access) String() string {
	switch a {
	case ReadOnly:
		return "r"
	case WriteOnly:
		return "w"
	case ReadWrite:
		return "rw"
	}
	return fmt.Sprintf("Access(%d)", int(a))
}

// Readable reports whether the register may be read.
func (a Access) Readable() bool { return a == ReadOnly || a == ReadWrite }

// Writable reports whether the register may be written.
func (a Access) Writable() bool { return a == WriteOnly || a == ReadWrite }

// Category groups registers by their role in the protocol.
type Category int

const (
	CategoryGeneral Category = iota
	CategoryConfig
	CategoryMetadata
	CategoryResultInfo
)

func (c Category) String() string {
	switch c {
	case CategoryGeneral:
		return "general"
	case CategoryConfig:
		return "config"
	case CategoryMetadata:
		return "metadata"
	case CategoryResultInfo:
		return "result_info"
	}
	return fmt.Sprintf("Category(%d)", int(c))
}

// Mode names an operating mode of the sensor (e.g. "envelope", "sparse").
// A register is only addressable under the modes its descriptor declares.
type Mode string

// ModeAny marks a register valid under every operating mode.
const ModeAny Mode = "*"

// Descriptor is the compiled form of one schema entry. Descriptors are
// immutable after Compile returns; they are shared by reference between
// sessions without locking.
type Descriptor struct {
	Name     string
	Address  uint16
	Type     Type
	Scale    float64
	Access   Access
	Category Category
	Modes    []Mode

	// Values maps enum symbol to wire code. Only set for TypeEnum.
	Values map[string]uint32

	// Bits maps bitmask flag symbol to its bit. Only set for TypeBitmask.
	Bits map[string]uint32

	// StickyMask selects bits that persist until explicitly cleared;
	// ClearMask selects the write-one-to-clear region. Both are excluded
	// from flag decoding (they are control regions, not status flags).
	StickyMask uint32
	ClearMask  uint32
}

// ValidUnder reports whether the register is addressable in the given mode.
func (d *Descriptor) ValidUnder(mode Mode) bool {
	for _, m := range d.Modes {
		if m == ModeAny || m == mode {
			return true
		}
	}
	return false
}

// symbolFor returns the enum symbol for a wire code.
func (d *Descriptor) symbolFor(code uint32) (string, bool) {
	for sym, c := range d.Values {
		if c == code {
			return sym, true
		}
	}
	return "", false
}

// flagsFor splits a raw bitmask register into recognised flag symbols and
// the residual of bits the schema does not name. Sticky/clear mask regions
// are masked out first so control bits never surface as flags.
func (d *Descriptor) flagsFor(raw uint32) (flags []string, residual uint32) {
	semantic := raw &^ (d.StickyMask | d.ClearMask)
	for sym, bit := range d.Bits {
		if semantic&bit != 0 {
			flags = append(flags, sym)
			semantic &^= bit
		}
	}
	sort.Strings(flags)
	return flags, semantic
}
