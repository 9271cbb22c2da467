package regmap

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// regmap.json is the canonical register map for the supported sensor
// generation. External schema files with the same layout may be loaded via
// LoadDocument for newer firmware.
//
//go:embed regmap.json
var embeddedSchema []byte

// SchemaError reports a malformed schema document. It is fatal at startup:
// a registry is either fully valid or not produced at all.
type SchemaError struct {
	Register string
	Reason   string
}

func (e *SchemaError) Error() string {
	if e.Register == "" {
		return fmt.Sprintf("schema: %s", e.Reason)
	}
	return fmt.Sprintf("schema: register %q: %s", e.Register, e.Reason)
}

// ConfigPath records how a given operating mode is configured on the wire.
type ConfigPath string

const (
	// PathRegisters configures the mode through individual register writes.
	PathRegisters ConfigPath = "registers"
	// PathMessage configures the mode through one structured config message.
	PathMessage ConfigPath = "message"
)

// Document is the on-disk schema layout. One entry per register, plus a
// per-mode record of which configuration path applies.
type Document struct {
	Version   string                `json:"version"`
	Registers []RegisterEntry       `json:"registers"`
	Modes     map[string]ModeRecord `json:"modes"`
}

// RegisterEntry is the raw, untyped form of a descriptor as it appears in
// the schema document.
type RegisterEntry struct {
	Name       string            `json:"name"`
	Address    uint16            `json:"address"`
	Type       string            `json:"type"`
	Scale      float64           `json:"scale,omitempty"`
	Access     string            `json:"access"`
	Category   string            `json:"category"`
	Modes      []string          `json:"modes"`
	Values     map[string]uint32 `json:"values,omitempty"`
	Bits       map[string]uint32 `json:"bits,omitempty"`
	StickyMask uint32            `json:"sticky_mask,omitempty"`
	ClearMask  uint32            `json:"clear_mask,omitempty"`
}

// ModeRecord describes a single operating mode.
type ModeRecord struct {
	Path ConfigPath `json:"path"`
}

// Registry is the compiled, queryable register map. It is immutable after
// Compile and safe to share across sessions.
type Registry struct {
	Version string

	byName map[string]*Descriptor
	byAddr map[addrKey]*Descriptor
	modes  map[Mode]ConfigPath
}

type addrKey struct {
	addr uint16
	mode Mode
}

// DefaultRegistry compiles the embedded schema. The embedded document is
// validated at program start; an error here means a broken build.
func DefaultRegistry() (*Registry, error) {
	var doc Document
	if err := json.Unmarshal(embeddedSchema, &doc); err != nil {
		return nil, &SchemaError{Reason: fmt.Sprintf("embedded schema: %v", err)}
	}
	return Compile(&doc)
}

// LoadDocument reads a schema document from a JSON file.
func LoadDocument(path string) (*Document, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("schema file must have .json extension, got %q", ext)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse schema file %s: %w", cleanPath, err)
	}
	return &doc, nil
}

// Compile validates a schema document and produces the lookup tables. It is
// pure: the document is not retained and no state outside the returned
// Registry is touched.
func Compile(doc *Document) (*Registry, error) {
	reg := &Registry{
		Version: doc.Version,
		byName:  make(map[string]*Descriptor, len(doc.Registers)),
		byAddr:  make(map[addrKey]*Descriptor, len(doc.Registers)),
		modes:   make(map[Mode]ConfigPath, len(doc.Modes)),
	}

	for name, rec := range doc.Modes {
		switch rec.Path {
		case PathRegisters, PathMessage:
		default:
			return nil, &SchemaError{Reason: fmt.Sprintf("mode %q: unknown config path %q", name, rec.Path)}
		}
		reg.modes[Mode(name)] = rec.Path
	}

	for _, entry := range doc.Registers {
		d, err := compileEntry(entry)
		if err != nil {
			return nil, err
		}

		if _, dup := reg.byName[d.Name]; dup {
			return nil, &SchemaError{Register: d.Name, Reason: "duplicate register name"}
		}
		reg.byName[d.Name] = d

		for _, mode := range d.Modes {
			if mode != ModeAny {
				if _, known := reg.modes[mode]; !known {
					return nil, &SchemaError{Register: d.Name, Reason: fmt.Sprintf("references undeclared mode %q", mode)}
				}
			}
			for existing := range reg.modes {
				if mode != ModeAny && mode != existing {
					continue
				}
				key := addrKey{addr: d.Address, mode: existing}
				if prev, collision := reg.byAddr[key]; collision && prev != d {
					return nil, &SchemaError{
						Register: d.Name,
						Reason:   fmt.Sprintf("address 0x%02x collides with %q under mode %q", d.Address, prev.Name, existing),
					}
				}
				reg.byAddr[key] = d
			}
		}
	}

	return reg, nil
}

func compileEntry(entry RegisterEntry) (*Descriptor, error) {
	d := &Descriptor{
		Name:       entry.Name,
		Address:    entry.Address,
		Scale:      entry.Scale,
		Values:     entry.Values,
		Bits:       entry.Bits,
		StickyMask: entry.StickyMask,
		ClearMask:  entry.ClearMask,
	}
	if d.Name == "" {
		return nil, &SchemaError{Reason: "register with empty name"}
	}
	if d.Scale == 0 {
		d.Scale = 1
	}
	if d.Scale < 0 {
		return nil, &SchemaError{Register: d.Name, Reason: fmt.Sprintf("scale must be positive, got %g", d.Scale)}
	}

	switch entry.Type {
	case "int32":
		d.Type = TypeInt32
	case "uint32":
		d.Type = TypeUint32
	case "uint16":
		d.Type = TypeUint16
	case "bool":
		d.Type = TypeBool
	case "enum":
		d.Type = TypeEnum
	case "bitmask":
		d.Type = TypeBitmask
	default:
		return nil, &SchemaError{Register: d.Name, Reason: fmt.Sprintf("unknown type tag %q", entry.Type)}
	}

	switch entry.Access {
	case "r":
		d.Access = ReadOnly
	case "w":
		d.Access = WriteOnly
	case "rw":
		d.Access = ReadWrite
	default:
		return nil, &SchemaError{Register: d.Name, Reason: fmt.Sprintf("unknown access tag %q", entry.Access)}
	}

	switch entry.Category {
	case "general":
		d.Category = CategoryGeneral
	case "config":
		d.Category = CategoryConfig
	case "metadata":
		d.Category = CategoryMetadata
	case "result_info":
		d.Category = CategoryResultInfo
	default:
		return nil, &SchemaError{Register: d.Name, Reason: fmt.Sprintf("unknown category tag %q", entry.Category)}
	}

	if len(entry.Modes) == 0 {
		return nil, &SchemaError{Register: d.Name, Reason: "no applicable modes declared"}
	}
	for _, m := range entry.Modes {
		d.Modes = append(d.Modes, Mode(m))
	}

	switch d.Type {
	case TypeEnum:
		if len(d.Values) == 0 {
			return nil, &SchemaError{Register: d.Name, Reason: "enum register with no value table"}
		}
		seen := make(map[uint32]string, len(d.Values))
		for sym, code := range d.Values {
			if prev, dup := seen[code]; dup {
				return nil, &SchemaError{
					Register: d.Name,
					Reason:   fmt.Sprintf("enum code %d assigned to both %q and %q", code, prev, sym),
				}
			}
			seen[code] = sym
		}
	case TypeBitmask:
		if len(d.Bits) == 0 {
			return nil, &SchemaError{Register: d.Name, Reason: "bitmask register with no bit table"}
		}
		var occupied uint32
		for sym, bit := range d.Bits {
			if bit == 0 || bit&(bit-1) != 0 {
				return nil, &SchemaError{
					Register: d.Name,
					Reason:   fmt.Sprintf("bitmask flag %q is not a single bit (0x%x)", sym, bit),
				}
			}
			if occupied&bit != 0 {
				return nil, &SchemaError{
					Register: d.Name,
					Reason:   fmt.Sprintf("bitmask flag %q overlaps another flag (0x%x)", sym, bit),
				}
			}
			occupied |= bit
		}
	default:
		if len(d.Values) != 0 || len(d.Bits) != 0 {
			return nil, &SchemaError{Register: d.Name, Reason: "value table on non-enum, non-bitmask register"}
		}
	}

	return d, nil
}

// Lookup returns the descriptor with the given name.
func (r *Registry) Lookup(name string) (*Descriptor, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// LookupAddress returns the descriptor at the given address under the given
// operating mode.
func (r *Registry) LookupAddress(addr uint16, mode Mode) (*Descriptor, bool) {
	d, ok := r.byAddr[addrKey{addr: addr, mode: mode}]
	return d, ok
}

// PathFor reports how the given mode is configured on the wire.
func (r *Registry) PathFor(mode Mode) (ConfigPath, bool) {
	p, ok := r.modes[mode]
	return p, ok
}

// Names returns all register names. Order is unspecified.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	return names
}

// Len returns the number of compiled descriptors.
func (r *Registry) Len() int { return len(r.byName) }
