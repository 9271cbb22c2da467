package session

import (
	"encoding/binary"
	"encoding/json"
	"sync"
	"testing"

	"github.com/banshee-data/radarlink/internal/frame"
	"github.com/banshee-data/radarlink/internal/result"
	"github.com/banshee-data/radarlink/internal/transport"
)

// mockSensor scripts the server side of the protocol on top of the
// in-memory transport: it parses command frames out of everything the
// session writes and queues the appropriate responses.
type mockSensor struct {
	t  *testing.T
	tr *transport.Mock

	mu sync.Mutex
	fr frame.Framer

	serverInfo ServerInfo
	meta       result.Metadata

	// registers stores raw written values by address.
	registers map[uint16][]byte

	// reads holds canned 32-bit read responses by address.
	reads map[uint16]uint32

	rejectWrites map[uint16]bool
	configStatus byte
	configError  string
	startStatus  byte

	started   bool
	stopsSeen int
}

func newMockSensor(t *testing.T) *mockSensor {
	s := &mockSensor{
		t:  t,
		tr: transport.NewMock(),
		serverInfo: ServerInfo{
			ProtocolVersion: ProtocolVersion,
			FirmwareVersion: "a111-2.15.4",
			SensorCount:     1,
			MaxBaudrate:     921600,
		},
		meta: result.Metadata{
			SweepsPerFrame: 1,
			PointsPerSweep: 4,
			TicksPerSecond: 1000,
			SensorCount:    1,
		},
		registers:    make(map[uint16][]byte),
		reads:        make(map[uint16]uint32),
		rejectWrites: make(map[uint16]bool),
	}
	// sensible legacy metadata registers: 120 samples over 0.6 m
	s.reads[129] = 120 // data_length
	s.reads[130] = 200 // actual_range_start (0.2 m at scale 1000)
	s.reads[131] = 600 // actual_range_length (0.6 m at scale 1000)
	s.tr.OnWrite = s.handleWrite
	return s
}

func (s *mockSensor) handleWrite(p []byte) {
	s.mu.Lock()
	frames := s.fr.Feed(p)
	s.mu.Unlock()
	for _, f := range frames {
		s.handleFrame(f)
	}
}

func (s *mockSensor) respond(payload []byte) {
	wire, err := frame.Marshal(payload)
	if err != nil {
		s.t.Errorf("mock sensor failed to marshal response: %v", err)
		return
	}
	s.tr.QueueRead(wire)
}

func (s *mockSensor) handleFrame(f frame.Frame) {
	if len(f.Payload) == 0 {
		s.t.Error("mock sensor received empty payload")
		return
	}
	switch f.Payload[0] {
	case kindIdentify:
		body, err := json.Marshal(s.serverInfo)
		if err != nil {
			s.t.Fatalf("failed to marshal server info: %v", err)
		}
		s.respond(controlPayload(kindIdentifyResponse, body))

	case kindRegisterWrite:
		addr := binary.LittleEndian.Uint16(f.Payload[1:3])
		status := byte(statusOK)
		if s.rejectWrites[addr] {
			status = statusRejected
		} else {
			s.mu.Lock()
			s.registers[addr] = append([]byte(nil), f.Payload[3:]...)
			s.mu.Unlock()
		}
		ack := make([]byte, 4)
		ack[0] = kindRegisterWriteAck
		binary.LittleEndian.PutUint16(ack[1:3], addr)
		ack[3] = status
		s.respond(ack)

	case kindRegisterRead:
		addr := binary.LittleEndian.Uint16(f.Payload[1:3])
		resp := make([]byte, 7)
		resp[0] = kindRegisterReadResp
		binary.LittleEndian.PutUint16(resp[1:3], addr)
		binary.LittleEndian.PutUint32(resp[3:7], s.reads[addr])
		s.respond(resp)

	case kindConfigure:
		if s.configStatus != statusOK {
			body, _ := json.Marshal(map[string]string{"error": s.configError})
			s.respond(append([]byte{kindConfigureResponse, s.configStatus}, body...))
			return
		}
		body, err := json.Marshal(s.meta)
		if err != nil {
			s.t.Fatalf("failed to marshal metadata: %v", err)
		}
		s.respond(append([]byte{kindConfigureResponse, statusOK}, body...))

	case kindStart:
		s.mu.Lock()
		s.started = true
		s.mu.Unlock()
		s.respond([]byte{kindStartAck, s.startStatus})

	case kindStop:
		s.mu.Lock()
		s.started = false
		s.stopsSeen++
		s.mu.Unlock()
		s.respond([]byte{kindStopAck, statusOK})

	default:
		s.t.Errorf("mock sensor received unexpected payload kind 0x%02x", f.Payload[0])
	}
}

// emit queues one streamed result frame.
func (s *mockSensor) emit(r *result.Result) {
	wire, err := frame.Marshal(result.EncodeStream(&s.meta, r))
	if err != nil {
		s.t.Fatalf("mock sensor failed to marshal stream frame: %v", err)
	}
	s.tr.QueueRead(wire)
}

// emitChunked queues several stream frames, delivered in reads of the
// given sizes.
func (s *mockSensor) emitChunked(results []*result.Result, sizes []int) {
	var stream []byte
	for _, r := range results {
		wire, err := frame.Marshal(result.EncodeStream(&s.meta, r))
		if err != nil {
			s.t.Fatalf("mock sensor failed to marshal stream frame: %v", err)
		}
		stream = append(stream, wire...)
	}
	s.tr.QueueReadChunks(stream, sizes)
}

func (s *mockSensor) stopCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopsSeen
}

func (s *mockSensor) writtenRegister(addr uint16) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.registers[addr]
	return v, ok
}
