// Package result defines the typed measurement output of a streaming
// session and the decoder that produces it from validated wire frames.
package result

import (
	"fmt"
	"strings"
)

// Metadata holds the server-derived constants describing the shape and
// units of streamed results. It is computed once when a session is
// configured and never changes while the session lives.
type Metadata struct {
	SweepsPerFrame int `json:"sweeps_per_frame"`
	PointsPerSweep int `json:"points_per_sweep"`

	// BaseStepLengthMeters is the physical distance between consecutive
	// sample points before subsweep step scaling.
	BaseStepLengthMeters float64 `json:"base_step_length_m"`

	// TicksPerSecond converts result ticks to wall time.
	TicksPerSecond float64 `json:"ticks_per_second"`

	SensorCount int `json:"sensor_count"`
}

// SamplesPerResult returns the expected number of wire samples in one
// result payload.
func (m *Metadata) SamplesPerResult() int {
	return m.SweepsPerFrame * m.PointsPerSweep
}

// StatusFlags carries the per-result condition bits reported by the sensor.
type StatusFlags uint16

const (
	// StatusDataSaturated indicates the receiver saturated during the
	// sweep; amplitudes are clipped.
	StatusDataSaturated StatusFlags = 1 << iota
	// StatusMissedData indicates the sensor dropped at least one result
	// before this one.
	StatusMissedData
	// StatusCommError indicates the sensor detected an internal
	// communication fault while producing this result.
	StatusCommError
	// StatusCalibrationNeeded indicates the sensor requests a new
	// calibration before results should be trusted.
	StatusCalibrationNeeded
)

func (s StatusFlags) String() string {
	if s == 0 {
		return "ok"
	}
	var parts []string
	if s&StatusDataSaturated != 0 {
		parts = append(parts, "data_saturated")
	}
	if s&StatusMissedData != 0 {
		parts = append(parts, "missed_data")
	}
	if s&StatusCommError != 0 {
		parts = append(parts, "comm_error")
	}
	if s&StatusCalibrationNeeded != 0 {
		parts = append(parts, "calibration_needed")
	}
	if rest := s &^ (StatusDataSaturated | StatusMissedData | StatusCommError | StatusCalibrationNeeded); rest != 0 {
		parts = append(parts, fmt.Sprintf("unknown(0x%x)", uint16(rest)))
	}
	return strings.Join(parts, "|")
}

// Result is one decoded measurement unit. Ownership transfers to the caller
// on delivery; the session keeps no reference after handing it over.
type Result struct {
	// Tick is the sensor's monotonic sequence counter. Within a session,
	// ticks of delivered results never decrease.
	Tick uint32

	SensorID uint8
	Status   StatusFlags

	// Samples holds the measurement in physical units, laid out sweep by
	// sweep: Samples[sweep*PointsPerSweep+point].
	Samples []float64
}
