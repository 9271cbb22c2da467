package session

import (
	"errors"
	"testing"

	"github.com/banshee-data/radarlink/internal/regmap"
)

func mustRegistry(t *testing.T) *regmap.Registry {
	t.Helper()
	reg, err := regmap.DefaultRegistry()
	if err != nil {
		t.Fatalf("DefaultRegistry: %v", err)
	}
	return reg
}

func TestValidateRegisterPath(t *testing.T) {
	reg := mustRegistry(t)

	tests := []struct {
		name      string
		mutate    func(*SessionConfig)
		wantField string
	}{
		{
			name:   "valid envelope config",
			mutate: func(c *SessionConfig) {},
		},
		{
			name: "valid sparse config",
			mutate: func(c *SessionConfig) {
				c.Mode = "sparse"
				c.Sensors[0].SweepsPerFrame = 16
			},
		},
		{
			name:      "unknown mode",
			mutate:    func(c *SessionConfig) { c.Mode = "doppler" },
			wantField: "mode",
		},
		{
			name:      "no sensors",
			mutate:    func(c *SessionConfig) { c.Sensors = nil },
			wantField: "sensors",
		},
		{
			name: "two sensors on register path",
			mutate: func(c *SessionConfig) {
				c.Sensors = append(c.Sensors, c.Sensors[0])
			},
			wantField: "sensors",
		},
		{
			name:      "zero gain",
			mutate:    func(c *SessionConfig) { c.Sensors[0].Gain = 0 },
			wantField: "gain",
		},
		{
			name:      "gain beyond register range",
			mutate:    func(c *SessionConfig) { c.Sensors[0].Gain = 3.0e6 },
			wantField: "gain",
		},
		{
			name:      "profile out of range",
			mutate:    func(c *SessionConfig) { c.Sensors[0].Profile = 6 },
			wantField: "profile",
		},
		{
			name:      "negative update rate",
			mutate:    func(c *SessionConfig) { c.UpdateRate = -1 },
			wantField: "update_rate",
		},
		{
			name:      "missing range length",
			mutate:    func(c *SessionConfig) { c.Sensors[0].RangeLength = 0 },
			wantField: "range_length",
		},
		{
			name: "sweeps_per_frame outside sparse",
			mutate: func(c *SessionConfig) {
				c.Sensors[0].SweepsPerFrame = 16 // envelope has no such register
			},
			wantField: "sweeps_per_frame",
		},
		{
			name: "sparse without sweeps_per_frame",
			mutate: func(c *SessionConfig) {
				c.Mode = "sparse"
			},
			wantField: "sweeps_per_frame",
		},
		{
			name: "subsweeps on register path",
			mutate: func(c *SessionConfig) {
				c.Sensors[0].Subsweeps = []SubsweepConfig{{StepLength: 1, NumPoints: 10, Profile: 1, PRF: "13.0MHz"}}
			},
			wantField: "subsweeps",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := envelopeConfig()
			tt.mutate(cfg)
			err := cfg.Validate(reg)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Validate() = %v, want *ConfigError", err)
			}
			if cfgErr.Field != tt.wantField {
				t.Errorf("ConfigError.Field = %q, want %q", cfgErr.Field, tt.wantField)
			}
			if cfgErr.Rejected {
				t.Error("validation errors must not be marked as server rejections")
			}
		})
	}
}

func TestValidateMessagePath(t *testing.T) {
	reg := mustRegistry(t)

	tests := []struct {
		name      string
		mutate    func(*SessionConfig)
		wantField string
	}{
		{
			name:   "valid single subsweep",
			mutate: func(c *SessionConfig) {},
		},
		{
			name: "valid multi sensor",
			mutate: func(c *SessionConfig) {
				second := c.Sensors[0]
				second.SensorID = 2
				second.Subsweeps = append([]SubsweepConfig(nil), c.Sensors[0].Subsweeps...)
				c.Sensors = append(c.Sensors, second)
			},
		},
		{
			name: "duplicate sensor id",
			mutate: func(c *SessionConfig) {
				c.Sensors = append(c.Sensors, c.Sensors[0])
			},
			wantField: "sensors[1].sensor_id",
		},
		{
			name:      "no subsweeps",
			mutate:    func(c *SessionConfig) { c.Sensors[0].Subsweeps = nil },
			wantField: "sensors[0].subsweeps",
		},
		{
			name:      "zero step length",
			mutate:    func(c *SessionConfig) { c.Sensors[0].Subsweeps[0].StepLength = 0 },
			wantField: "sensors[0].subsweeps[0].step_length",
		},
		{
			name:      "too many points",
			mutate:    func(c *SessionConfig) { c.Sensors[0].Subsweeps[0].NumPoints = 2048 },
			wantField: "sensors[0].subsweeps[0].num_points",
		},
		{
			name:      "bad profile",
			mutate:    func(c *SessionConfig) { c.Sensors[0].Subsweeps[0].Profile = 0 },
			wantField: "sensors[0].subsweeps[0].profile",
		},
		{
			name:      "unknown prf",
			mutate:    func(c *SessionConfig) { c.Sensors[0].Subsweeps[0].PRF = "42MHz" },
			wantField: "sensors[0].subsweeps[0].prf",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := sparseIQConfig()
			tt.mutate(cfg)
			err := cfg.Validate(reg)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Validate() = %v, want *ConfigError", err)
			}
			if cfgErr.Field != tt.wantField {
				t.Errorf("ConfigError.Field = %q, want %q", cfgErr.Field, tt.wantField)
			}
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	cfg := sparseIQConfig()
	cp := cfg.clone()

	cfg.Sensors[0].Subsweeps[0].NumPoints = 1
	cfg.Sensors[0].Gain = 99

	if cp.Sensors[0].Subsweeps[0].NumPoints == 1 {
		t.Error("clone shares subsweep storage with the original")
	}
	if cp.Sensors[0].Gain == 99 {
		t.Error("clone shares sensor storage with the original")
	}
}
