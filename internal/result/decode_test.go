package result

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/radarlink/internal/frame"
)

func metaFixture() *Metadata {
	return &Metadata{
		SweepsPerFrame:       2,
		PointsPerSweep:       3,
		BaseStepLengthMeters: 0.0025,
		TicksPerSecond:       1000,
		SensorCount:          1,
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	meta := metaFixture()
	want := &Result{
		Tick:     42,
		SensorID: 1,
		Status:   StatusDataSaturated | StatusMissedData,
		Samples:  []float64{0, 1, -1, 0.5, -0.25, 127},
	}

	payload := EncodeStream(meta, want)
	got, err := Decode(meta, frame.Frame{Payload: payload})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeShapeMismatch(t *testing.T) {
	meta := metaFixture()
	r := &Result{Tick: 7, Samples: []float64{1, 2, 3}} // 3 samples, metadata wants 6

	_, err := Decode(meta, frame.Frame{Payload: EncodeStream(meta, r)})
	var shapeErr *ShapeError
	if !errors.As(err, &shapeErr) {
		t.Fatalf("expected *ShapeError, got %v", err)
	}
	if shapeErr.Tick != 7 || shapeErr.Got != 3 || shapeErr.Expected != 6 {
		t.Errorf("ShapeError = %+v, want tick 7, got 3, expected 6", shapeErr)
	}
}

func TestDecodeTruncatedHeader(t *testing.T) {
	meta := metaFixture()
	_, err := Decode(meta, frame.Frame{Payload: []byte{KindStreamData, 1, 2}})
	var shapeErr *ShapeError
	if !errors.As(err, &shapeErr) {
		t.Fatalf("expected *ShapeError for truncated header, got %v", err)
	}
}

func TestDecodeRejectsWrongKind(t *testing.T) {
	meta := metaFixture()
	_, err := Decode(meta, frame.Frame{Payload: make([]byte, 20)})
	if err == nil {
		t.Fatal("expected error for non-stream payload kind")
	}
	var shapeErr *ShapeError
	if errors.As(err, &shapeErr) {
		t.Fatal("wrong payload kind must not be reported as a shape mismatch")
	}
}

func TestStatusFlagsString(t *testing.T) {
	tests := []struct {
		flags StatusFlags
		want  string
	}{
		{0, "ok"},
		{StatusDataSaturated, "data_saturated"},
		{StatusMissedData | StatusCommError, "missed_data|comm_error"},
		{1 << 9, "unknown(0x200)"},
	}
	for _, tt := range tests {
		if got := tt.flags.String(); got != tt.want {
			t.Errorf("StatusFlags(%d).String() = %q, want %q", tt.flags, got, tt.want)
		}
	}
}

func TestIsStreamData(t *testing.T) {
	if IsStreamData(frame.Frame{}) {
		t.Error("empty payload reported as stream data")
	}
	if !IsStreamData(frame.Frame{Payload: []byte{KindStreamData}}) {
		t.Error("stream kind not recognised")
	}
}
