package session

import (
	"fmt"

	"github.com/banshee-data/radarlink/internal/regmap"
)

// PRF names the pulse repetition frequencies the streaming-protocol sensor
// generation supports.
var validPRFs = map[string]bool{
	"19.5MHz": true,
	"15.6MHz": true,
	"13.0MHz": true,
	"8.7MHz":  true,
	"6.5MHz":  true,
	"5.2MHz":  true,
}

// SubsweepConfig describes one subsweep of a streaming-protocol sensor.
type SubsweepConfig struct {
	// StartPoint is the index of the first sample point; may be negative
	// for close-range configurations.
	StartPoint int `json:"start_point"`

	// StepLength is the distance between points in base steps.
	StepLength int `json:"step_length"`

	// NumPoints is the number of sample points in the subsweep.
	NumPoints int `json:"num_points"`

	Profile int    `json:"profile"`
	PRF     string `json:"prf"`
}

// SensorConfig configures one sensor of the session.
type SensorConfig struct {
	SensorID uint8 `json:"sensor_id"`

	// Register-path fields (legacy generation). Range values are in
	// meters; the codec applies the schema's fixed-point scaling.
	RangeStart  float64 `json:"range_start,omitempty"`
	RangeLength float64 `json:"range_length,omitempty"`
	Gain        float64 `json:"gain,omitempty"`
	Profile     int     `json:"profile,omitempty"`

	// SweepsPerFrame applies to frame-oriented modes (sparse).
	SweepsPerFrame int `json:"sweeps_per_frame,omitempty"`

	// Optional tuning; zero means "sensor default", not written.
	DownsamplingFactor int `json:"downsampling_factor,omitempty"`
	HWAAS              int `json:"hwaas,omitempty"`

	// Subsweeps apply only to message-path modes.
	Subsweeps []SubsweepConfig `json:"subsweeps,omitempty"`
}

// SessionConfig is the full configuration for one streaming session. It is
// validated against the compiled register map before any byte reaches the
// transport; the session stores a private copy on Configure so later
// mutation by the caller cannot affect a running stream.
type SessionConfig struct {
	Mode regmap.Mode `json:"mode"`

	// UpdateRate in Hz. Zero selects on-demand operation.
	UpdateRate float64 `json:"update_rate,omitempty"`

	Sensors []SensorConfig `json:"sensors"`
}

// Validate checks the configuration against the register map. It performs
// no I/O; a nil return guarantees every field can be encoded within its
// descriptor's declared type and range.
func (c *SessionConfig) Validate(reg *regmap.Registry) error {
	path, ok := reg.PathFor(c.Mode)
	if !ok {
		return &ConfigError{Field: "mode", Reason: fmt.Sprintf("unknown operating mode %q", c.Mode)}
	}
	if len(c.Sensors) == 0 {
		return &ConfigError{Field: "sensors", Reason: "at least one sensor required"}
	}
	if c.UpdateRate < 0 {
		return &ConfigError{Field: "update_rate", Reason: "must not be negative"}
	}

	switch path {
	case regmap.PathRegisters:
		if len(c.Sensors) != 1 {
			return &ConfigError{Field: "sensors", Reason: "register-path modes support exactly one sensor"}
		}
		return c.Sensors[0].validateRegisters(reg, c.Mode, c.UpdateRate)
	case regmap.PathMessage:
		seen := make(map[uint8]bool, len(c.Sensors))
		for i, sc := range c.Sensors {
			if seen[sc.SensorID] {
				return &ConfigError{
					Field:  fmt.Sprintf("sensors[%d].sensor_id", i),
					Reason: fmt.Sprintf("duplicate sensor id %d", sc.SensorID),
				}
			}
			seen[sc.SensorID] = true
			if err := sc.validateSubsweeps(i); err != nil {
				return err
			}
		}
		return nil
	}
	return &ConfigError{Field: "mode", Reason: fmt.Sprintf("unsupported config path %q", path)}
}

// validateRegisters checks the legacy per-register fields. Encodability is
// probed through the codec so range errors surface here, before I/O, with
// the same semantics the write path would apply.
func (sc *SensorConfig) validateRegisters(reg *regmap.Registry, mode regmap.Mode, updateRate float64) error {
	if len(sc.Subsweeps) != 0 {
		return &ConfigError{Field: "subsweeps", Reason: fmt.Sprintf("not supported by register-path mode %q", mode)}
	}

	if sc.Gain <= 0 {
		return &ConfigError{Field: "gain", Reason: "must be positive"}
	}
	if sc.Profile < 1 || sc.Profile > 5 {
		return &ConfigError{Field: "profile", Reason: "must be between 1 and 5"}
	}

	probe := func(field, register string, value any) error {
		d, ok := reg.Lookup(register)
		if !ok {
			return &ConfigError{Field: field, Reason: fmt.Sprintf("no register %q in schema", register)}
		}
		if !d.ValidUnder(mode) {
			return &ConfigError{Field: field, Reason: fmt.Sprintf("register %q not valid under mode %q", register, mode)}
		}
		if !d.Access.Writable() {
			return &ConfigError{Field: field, Reason: fmt.Sprintf("register %q is read-only", register)}
		}
		if _, err := regmap.Encode(d, value); err != nil {
			return &ConfigError{Field: field, Reason: err.Error()}
		}
		return nil
	}

	if err := probe("gain", "gain", sc.Gain); err != nil {
		return err
	}
	if err := probe("profile", "profile", fmt.Sprintf("profile_%d", sc.Profile)); err != nil {
		return err
	}

	rangeRegs, _ := reg.Lookup("range_start")
	needsRange := rangeRegs != nil && rangeRegs.ValidUnder(mode)
	if needsRange {
		if sc.RangeLength <= 0 {
			return &ConfigError{Field: "range_length", Reason: "must be positive"}
		}
		if err := probe("range_start", "range_start", sc.RangeStart); err != nil {
			return err
		}
		if err := probe("range_length", "range_length", sc.RangeLength); err != nil {
			return err
		}
	} else if sc.RangeStart != 0 || sc.RangeLength != 0 {
		return &ConfigError{Field: "range_start", Reason: fmt.Sprintf("range registers not valid under mode %q", mode)}
	}

	if sweeps, _ := reg.Lookup("sweeps_per_frame"); sweeps != nil && sweeps.ValidUnder(mode) {
		if sc.SweepsPerFrame < 1 {
			return &ConfigError{Field: "sweeps_per_frame", Reason: fmt.Sprintf("must be at least 1 for mode %q", mode)}
		}
		if err := probe("sweeps_per_frame", "sweeps_per_frame", sc.SweepsPerFrame); err != nil {
			return err
		}
	} else if sc.SweepsPerFrame != 0 {
		return &ConfigError{Field: "sweeps_per_frame", Reason: fmt.Sprintf("not supported by mode %q", mode)}
	}

	if sc.DownsamplingFactor != 0 {
		if err := probe("downsampling_factor", "downsampling_factor", sc.DownsamplingFactor); err != nil {
			return err
		}
	}
	if sc.HWAAS != 0 {
		if err := probe("hwaas", "hw_accelerated_average_samples", sc.HWAAS); err != nil {
			return err
		}
	}
	if updateRate > 0 {
		if err := probe("update_rate", "update_rate", updateRate); err != nil {
			return err
		}
	}
	return nil
}

func (sc *SensorConfig) validateSubsweeps(idx int) error {
	if len(sc.Subsweeps) == 0 {
		return &ConfigError{
			Field:  fmt.Sprintf("sensors[%d].subsweeps", idx),
			Reason: "at least one subsweep required",
		}
	}
	for j, ss := range sc.Subsweeps {
		field := func(name string) string {
			return fmt.Sprintf("sensors[%d].subsweeps[%d].%s", idx, j, name)
		}
		if ss.StepLength < 1 {
			return &ConfigError{Field: field("step_length"), Reason: "must be at least 1"}
		}
		if ss.NumPoints < 1 || ss.NumPoints > 2047 {
			return &ConfigError{Field: field("num_points"), Reason: "must be between 1 and 2047"}
		}
		if ss.Profile < 1 || ss.Profile > 5 {
			return &ConfigError{Field: field("profile"), Reason: "must be between 1 and 5"}
		}
		if !validPRFs[ss.PRF] {
			return &ConfigError{Field: field("prf"), Reason: fmt.Sprintf("unsupported PRF %q", ss.PRF)}
		}
	}
	return nil
}

// clone returns a deep copy so the session owns its configuration.
func (c *SessionConfig) clone() *SessionConfig {
	out := *c
	out.Sensors = make([]SensorConfig, len(c.Sensors))
	for i, sc := range c.Sensors {
		out.Sensors[i] = sc
		out.Sensors[i].Subsweeps = append([]SubsweepConfig(nil), sc.Subsweeps...)
	}
	return &out
}
