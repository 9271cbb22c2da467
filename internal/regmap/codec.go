package regmap

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// All register values are little-endian on the wire. The schema version
// header pins this; a future big-endian sensor generation would bump the
// document version rather than flip a per-register flag.
var wireOrder = binary.LittleEndian

var (
	// ErrUnknownSymbol is returned when an enum or bitmask symbol is not in
	// the descriptor's value table.
	ErrUnknownSymbol = errors.New("unknown symbol")
	// ErrOutOfRange is returned when a scaled value does not fit the
	// register's declared width.
	ErrOutOfRange = errors.New("value out of range")
	// ErrShortBuffer is returned when a decode buffer is smaller than the
	// register's declared width.
	ErrShortBuffer = errors.New("short buffer")
)

// EncodeError wraps a codec failure with the register it occurred on.
type EncodeError struct {
	Register string
	Err      error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode register %q: %v", e.Register, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// Value is one decoded register value. Exactly the fields relevant to the
// descriptor's type are populated; Raw always carries the wire integer.
type Value struct {
	Type Type
	Raw  uint32

	// Number is the physical-unit value for int32/uint32/uint16 registers
	// (wire integer divided by scale).
	Number float64

	// Bool is set for bool registers.
	Bool bool

	// Symbol is set for enum registers.
	Symbol string

	// Flags holds the recognised set bits of a bitmask register, sorted.
	// Residual carries set bits the schema does not name; unknown bits are
	// preserved rather than rejected so newer firmware does not break older
	// clients.
	Flags    []string
	Residual uint32
}

// Encode serialises a value for the given descriptor. Accepted Go types:
// float64/int for numeric registers, bool for bool registers, string (the
// symbol) for enum registers, and []string (flag symbols) or uint32 (raw
// bits) for bitmask registers.
func Encode(d *Descriptor, v any) ([]byte, error) {
	raw, err := rawFor(d, v)
	if err != nil {
		return nil, &EncodeError{Register: d.Name, Err: err}
	}

	buf := make([]byte, d.Type.Width())
	switch d.Type.Width() {
	case 1:
		buf[0] = byte(raw)
	case 2:
		wireOrder.PutUint16(buf, uint16(raw))
	default:
		wireOrder.PutUint32(buf, raw)
	}
	return buf, nil
}

func rawFor(d *Descriptor, v any) (uint32, error) {
	switch d.Type {
	case TypeInt32, TypeUint32, TypeUint16:
		num, err := asFloat(v)
		if err != nil {
			return 0, err
		}
		scaled := math.Round(num * d.Scale)
		return checkRange(d.Type, scaled)

	case TypeBool:
		b, ok := v.(bool)
		if !ok {
			return 0, fmt.Errorf("expected bool, got %T", v)
		}
		if b {
			return 1, nil
		}
		return 0, nil

	case TypeEnum:
		sym, ok := v.(string)
		if !ok {
			return 0, fmt.Errorf("expected enum symbol string, got %T", v)
		}
		code, known := d.Values[sym]
		if !known {
			return 0, fmt.Errorf("%w: %q", ErrUnknownSymbol, sym)
		}
		return code, nil

	case TypeBitmask:
		switch flags := v.(type) {
		case uint32:
			return flags, nil
		case []string:
			var raw uint32
			for _, sym := range flags {
				bit, known := d.Bits[sym]
				if !known {
					return 0, fmt.Errorf("%w: %q", ErrUnknownSymbol, sym)
				}
				raw |= bit
			}
			return raw, nil
		default:
			return 0, fmt.Errorf("expected []string or uint32 for bitmask, got %T", v)
		}
	}
	return 0, fmt.Errorf("unsupported type %s", d.Type)
}

func asFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	}
	return 0, fmt.Errorf("expected numeric value, got %T", v)
}

func checkRange(t Type, scaled float64) (uint32, error) {
	switch t {
	case TypeInt32:
		if scaled < math.MinInt32 || scaled > math.MaxInt32 {
			return 0, fmt.Errorf("%w: scaled value %g exceeds int32", ErrOutOfRange, scaled)
		}
		return uint32(int32(scaled)), nil
	case TypeUint32:
		if scaled < 0 || scaled > math.MaxUint32 {
			return 0, fmt.Errorf("%w: scaled value %g exceeds uint32", ErrOutOfRange, scaled)
		}
		return uint32(scaled), nil
	case TypeUint16:
		if scaled < 0 || scaled > math.MaxUint16 {
			return 0, fmt.Errorf("%w: scaled value %g exceeds uint16", ErrOutOfRange, scaled)
		}
		return uint32(scaled), nil
	}
	return 0, fmt.Errorf("%w: type %s is not numeric", ErrOutOfRange, t)
}

// Decode interprets raw register bytes through the descriptor. Decoding is
// total for bitmask registers: unknown set bits land in Value.Residual.
// Enum registers with a code outside the value table report the residual in
// Symbol as an empty string with Raw preserved.
func Decode(d *Descriptor, b []byte) (Value, error) {
	width := d.Type.Width()
	if len(b) < width {
		return Value{}, &EncodeError{
			Register: d.Name,
			Err:      fmt.Errorf("%w: need %d bytes, have %d", ErrShortBuffer, width, len(b)),
		}
	}

	var raw uint32
	switch width {
	case 1:
		raw = uint32(b[0])
	case 2:
		raw = uint32(wireOrder.Uint16(b))
	default:
		raw = wireOrder.Uint32(b)
	}

	val := Value{Type: d.Type, Raw: raw}
	switch d.Type {
	case TypeInt32:
		val.Number = float64(int32(raw)) / d.Scale
	case TypeUint32, TypeUint16:
		val.Number = float64(raw) / d.Scale
	case TypeBool:
		val.Bool = raw != 0
	case TypeEnum:
		val.Symbol, _ = d.symbolFor(raw)
	case TypeBitmask:
		val.Flags, val.Residual = d.flagsFor(raw)
	}
	return val, nil
}
