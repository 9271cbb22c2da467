// Package session implements the client side of the sensor control
// protocol: the connect/configure/stream lifecycle, configuration
// validation against the register map, and the background reader that
// turns transport bytes into typed results.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/radarlink/internal/frame"
	"github.com/banshee-data/radarlink/internal/monitoring"
	"github.com/banshee-data/radarlink/internal/regmap"
	"github.com/banshee-data/radarlink/internal/result"
	"github.com/banshee-data/radarlink/internal/transport"
	"github.com/banshee-data/radarlink/internal/version"
)

// State is the session lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateIdentifying
	StateConfiguring
	StateConnected
	StateStreaming
	StateStopping
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateIdentifying:
		return "identifying"
	case StateConfiguring:
		return "configuring"
	case StateConnected:
		return "connected"
	case StateStreaming:
		return "streaming"
	case StateStopping:
		return "stopping"
	case StateErrored:
		return "error"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// legacyTicksPerSecond is the tick rate of the register-path sensor
// generation, which does not report one itself.
const legacyTicksPerSecond = 1000

// Recorder receives every decoded result as a side channel of delivery.
// Recording failures are logged, never propagated into the stream.
type Recorder interface {
	Record(r *result.Result) error
}

// Options tune session behaviour. The zero value (or nil) selects defaults.
type Options struct {
	// QueueCapacity bounds the result queue between the background reader
	// and GetNext.
	QueueCapacity int

	// BlockOnFull is how long the reader blocks on a full queue before the
	// oldest-result-drop policy applies. Dropping is counted and logged.
	BlockOnFull time.Duration

	// PollInterval is the reader's per-read timeout slice; it bounds how
	// quickly the reader observes a stop request.
	PollInterval time.Duration

	// CommandTimeout bounds each control exchange (handshake, configure,
	// register access, start).
	CommandTimeout time.Duration
}

func (o *Options) withDefaults() Options {
	opts := Options{}
	if o != nil {
		opts = *o
	}
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = 64
	}
	if opts.BlockOnFull <= 0 {
		opts.BlockOnFull = 250 * time.Millisecond
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 100 * time.Millisecond
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = 2 * time.Second
	}
	return opts
}

// Session drives one sensor connection through its lifecycle. A Session is
// safe for use by one control goroutine plus any number of GetNext callers;
// the transport is owned by the background reader while streaming, and
// control writes are serialised against it.
type Session struct {
	reg  *regmap.Registry
	opts Options

	// writeMu serialises transport writes: most physical transports are
	// not full-duplex-safe at the application layer.
	writeMu sync.Mutex

	mu         sync.Mutex
	state      State
	tr         transport.Transport
	framer     *frame.Framer
	clientInfo *ClientInfo
	serverInfo *ServerInfo
	config     *SessionConfig
	meta       *result.Metadata
	recorder   Recorder

	results    chan *result.Result
	stopReader chan struct{}
	readerDone chan struct{}

	fatal         error
	fatalReported bool
	drops         uint64
}

// New creates a disconnected session bound to a compiled register map.
func New(reg *regmap.Registry, opts *Options) *Session {
	return &Session{
		reg:   reg,
		opts:  opts.withDefaults(),
		state: StateDisconnected,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ServerInfo returns the handshake data, or nil before Connect.
func (s *Session) ServerInfo() *ServerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serverInfo
}

// Metadata returns the server-computed metadata for the active
// configuration, or nil before Configure.
func (s *Session) Metadata() *result.Metadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta
}

// DropCount returns how many results the backpressure policy has discarded.
func (s *Session) DropCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drops
}

// SetRecorder installs a recorder tee. Must be called before Start.
func (s *Session) SetRecorder(r Recorder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recorder = r
}

// Connect opens the session over the given transport and performs the
// identification handshake. On failure the transport is closed and the
// session returns to Disconnected so the caller may retry.
func (s *Session) Connect(tr transport.Transport) error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		st := s.state
		s.mu.Unlock()
		return &StateError{Op: "connect", State: st}
	}
	s.state = StateIdentifying
	s.tr = tr
	s.framer = &frame.Framer{
		OnChecksumError: func(offset int64) {
			monitoring.ChecksumErrors.Inc()
			monitoring.Logf("radarlink: checksum mismatch near stream offset %d, resynchronising", offset)
		},
	}
	s.mu.Unlock()

	ci := &ClientInfo{
		ProtocolVersion: ProtocolVersion,
		ClientID:        uuid.New().String(),
		LibraryVersion:  version.Version,
	}
	body, err := json.Marshal(ci)
	if err != nil {
		s.abortConnect()
		return &ConnectError{Reason: "failed to encode client info", Err: err}
	}

	resp, err := s.exchange(controlPayload(kindIdentify, body), kindIdentifyResponse)
	if err != nil {
		s.abortConnect()
		if errors.Is(err, transport.ErrTimedOut) {
			return &ConnectError{Reason: "handshake timed out", Err: err}
		}
		return &ConnectError{Reason: "handshake failed", Err: err}
	}

	var si ServerInfo
	if err := json.Unmarshal(resp.Payload[1:], &si); err != nil {
		s.abortConnect()
		return &ConnectError{Reason: "malformed server info", Err: err}
	}
	if si.ProtocolVersion != ProtocolVersion {
		s.abortConnect()
		return &ConnectError{
			Reason: fmt.Sprintf("protocol version mismatch: server speaks v%d, client v%d",
				si.ProtocolVersion, ProtocolVersion),
		}
	}

	s.mu.Lock()
	s.clientInfo = ci
	s.serverInfo = &si
	s.state = StateConnected
	s.mu.Unlock()
	monitoring.Logf("radarlink: connected to sensor server (firmware %s, %d sensors)",
		si.FirmwareVersion, si.SensorCount)
	return nil
}

// abortConnect tears down a half-open connection.
func (s *Session) abortConnect() {
	s.mu.Lock()
	tr := s.tr
	s.tr = nil
	s.framer = nil
	s.state = StateDisconnected
	s.mu.Unlock()
	if tr != nil {
		tr.Close()
	}
}

// Configure validates the configuration, applies it to the sensor, and
// returns the server-computed metadata. Validation failures are reported
// before any byte reaches the transport.
func (s *Session) Configure(cfg *SessionConfig) (*result.Metadata, error) {
	s.mu.Lock()
	if err := s.pendingFatalLocked("configure"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if s.state != StateConnected {
		st := s.state
		s.mu.Unlock()
		return nil, &StateError{Op: "configure", State: st}
	}
	s.state = StateConfiguring
	s.mu.Unlock()

	if err := cfg.Validate(s.reg); err != nil {
		s.setState(StateConnected)
		return nil, err
	}

	path, _ := s.reg.PathFor(cfg.Mode)
	var meta *result.Metadata
	var err error
	if path == regmap.PathRegisters {
		meta, err = s.configureRegisters(cfg)
	} else {
		meta, err = s.configureMessage(cfg)
	}
	if err != nil {
		if errors.Is(err, transport.ErrClosed) {
			s.noteFatal(fmt.Errorf("session: transport failed during configuration: %w", err))
			return nil, err
		}
		s.setState(StateConnected)
		return nil, err
	}

	s.mu.Lock()
	s.config = cfg.clone()
	s.meta = meta
	s.state = StateConnected
	s.mu.Unlock()
	return meta, nil
}

// configureRegisters applies a legacy configuration as a sequence of
// individual register writes, then derives metadata from the sensor's
// result-info and metadata registers.
func (s *Session) configureRegisters(cfg *SessionConfig) (*result.Metadata, error) {
	sc := cfg.Sensors[0]

	type write struct {
		register string
		value    any
	}
	plan := []write{
		{"mode_selection", string(cfg.Mode)},
		{"gain", sc.Gain},
		{"profile", fmt.Sprintf("profile_%d", sc.Profile)},
	}
	if d, ok := s.reg.Lookup("range_start"); ok && d.ValidUnder(cfg.Mode) {
		plan = append(plan,
			write{"range_start", sc.RangeStart},
			write{"range_length", sc.RangeLength},
		)
	}
	if d, ok := s.reg.Lookup("sweeps_per_frame"); ok && d.ValidUnder(cfg.Mode) {
		plan = append(plan, write{"sweeps_per_frame", sc.SweepsPerFrame})
	}
	if sc.DownsamplingFactor != 0 {
		plan = append(plan, write{"downsampling_factor", sc.DownsamplingFactor})
	}
	if sc.HWAAS != 0 {
		plan = append(plan, write{"hw_accelerated_average_samples", sc.HWAAS})
	}
	if cfg.UpdateRate > 0 {
		plan = append(plan,
			write{"repetition_mode", "streaming"},
			write{"update_rate", cfg.UpdateRate},
		)
	} else {
		plan = append(plan, write{"repetition_mode", "on_demand"})
	}

	for _, w := range plan {
		if err := s.writeRegister(w.register, w.value); err != nil {
			return nil, err
		}
	}

	// metadata is server-computed: the sensor reports the result length
	// and the actual (quantised) range it will measure
	dataLength, err := s.readRegister("data_length")
	if err != nil {
		return nil, err
	}
	samples := int(dataLength.Raw)
	sweeps := 1
	if sc.SweepsPerFrame > 0 {
		sweeps = sc.SweepsPerFrame
	}
	if samples <= 0 || samples%sweeps != 0 {
		return nil, &ConfigError{
			Rejected: true,
			Reason:   fmt.Sprintf("server reports result length %d not divisible into %d sweeps", samples, sweeps),
		}
	}
	points := samples / sweeps

	actualLength, err := s.readRegister("actual_range_length")
	if err != nil {
		return nil, err
	}

	return &result.Metadata{
		SweepsPerFrame:       sweeps,
		PointsPerSweep:       points,
		BaseStepLengthMeters: actualLength.Number / float64(points),
		TicksPerSecond:       legacyTicksPerSecond,
		SensorCount:          1,
	}, nil
}

// configureMessage applies a streaming-protocol configuration as one
// structured message and parses the metadata from the response.
func (s *Session) configureMessage(cfg *SessionConfig) (*result.Metadata, error) {
	body, err := json.Marshal(cfg)
	if err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("failed to encode configuration: %v", err)}
	}

	resp, err := s.exchange(controlPayload(kindConfigure, body), kindConfigureResponse)
	if err != nil {
		return nil, err
	}
	if len(resp.Payload) < 2 {
		return nil, fmt.Errorf("session: truncated configure response")
	}
	status, body := resp.Payload[1], resp.Payload[2:]

	if status != statusOK {
		var report struct {
			Error string `json:"error"`
		}
		reason := "unspecified"
		if err := json.Unmarshal(body, &report); err == nil && report.Error != "" {
			reason = report.Error
		}
		return nil, &ConfigError{Rejected: true, Reason: reason}
	}

	var meta result.Metadata
	if err := json.Unmarshal(body, &meta); err != nil {
		return nil, fmt.Errorf("session: malformed metadata in configure response: %w", err)
	}
	if meta.SamplesPerResult() <= 0 {
		return nil, &ConfigError{Rejected: true, Reason: "server reported an empty result shape"}
	}
	return &meta, nil
}

// WriteRegister encodes and writes a single register by name. Permitted
// only while connected and idle; streaming configurations are immutable.
func (s *Session) WriteRegister(name string, value any) error {
	if err := s.requireConnected("write_register"); err != nil {
		return err
	}
	return s.writeRegister(name, value)
}

// ReadRegister reads and decodes a single register by name.
func (s *Session) ReadRegister(name string) (regmap.Value, error) {
	if err := s.requireConnected("read_register"); err != nil {
		return regmap.Value{}, err
	}
	return s.readRegister(name)
}

func (s *Session) requireConnected(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.pendingFatalLocked(op); err != nil {
		return err
	}
	if s.state != StateConnected {
		return &StateError{Op: op, State: s.state}
	}
	return nil
}

func (s *Session) writeRegister(name string, value any) error {
	d, ok := s.reg.Lookup(name)
	if !ok {
		return &ConfigError{Field: name, Reason: "no such register"}
	}
	payload, err := registerWritePayload(d, value)
	if err != nil {
		return err
	}
	resp, err := s.exchange(payload, kindRegisterWriteAck)
	if err != nil {
		return err
	}
	status, err := parseRegisterAck(resp, d)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}
	if status != statusOK {
		return &ConfigError{
			Rejected: true,
			Reason:   fmt.Sprintf("server refused write to register %q (status 0x%02x)", name, status),
		}
	}
	return nil
}

func (s *Session) readRegister(name string) (regmap.Value, error) {
	d, ok := s.reg.Lookup(name)
	if !ok {
		return regmap.Value{}, &ConfigError{Field: name, Reason: "no such register"}
	}
	resp, err := s.exchange(registerReadPayload(d), kindRegisterReadResp)
	if err != nil {
		return regmap.Value{}, err
	}
	raw, err := parseRegisterReadResp(resp, d)
	if err != nil {
		return regmap.Value{}, fmt.Errorf("session: %w", err)
	}
	return regmap.Decode(d, raw)
}

// Start begins continuous frame reception. A no-op when already streaming;
// fails with a StateError before a successful Configure.
func (s *Session) Start() error {
	s.mu.Lock()
	if err := s.pendingFatalLocked("start"); err != nil {
		s.mu.Unlock()
		return err
	}
	switch s.state {
	case StateStreaming:
		s.mu.Unlock()
		return nil
	case StateConnected:
		if s.meta == nil {
			s.mu.Unlock()
			return &StateError{Op: "start", State: StateConnected}
		}
	default:
		st := s.state
		s.mu.Unlock()
		return &StateError{Op: "start", State: st}
	}
	s.mu.Unlock()

	resp, err := s.exchange([]byte{kindStart}, kindStartAck)
	if err != nil {
		if errors.Is(err, transport.ErrClosed) {
			s.noteFatal(fmt.Errorf("session: transport failed on start: %w", err))
		}
		return err
	}
	if len(resp.Payload) < 2 || resp.Payload[1] != statusOK {
		return &ConfigError{Rejected: true, Reason: "server refused to start streaming"}
	}

	s.mu.Lock()
	s.results = make(chan *result.Result, s.opts.QueueCapacity)
	s.stopReader = make(chan struct{})
	s.readerDone = make(chan struct{})
	s.state = StateStreaming
	go s.readLoop(s.tr, s.framer, s.meta, s.recorder, s.results, s.stopReader, s.readerDone)
	s.mu.Unlock()
	return nil
}

// GetNext blocks until one decoded result is available or the timeout
// elapses. After Stop, buffered results continue to drain; once exhausted
// GetNext returns ErrStopped. A session-fatal error is returned exactly
// once; later calls report the Error state.
func (s *Session) GetNext(timeout time.Duration) (*result.Result, error) {
	s.mu.Lock()
	ch := s.results
	st := s.state
	if ch == nil {
		if err := s.pendingFatalLocked("get_next"); err != nil {
			s.mu.Unlock()
			return nil, err
		}
		s.mu.Unlock()
		return nil, &StateError{Op: "get_next", State: st}
	}
	s.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r, ok := <-ch:
		if !ok {
			s.mu.Lock()
			defer s.mu.Unlock()
			if err := s.pendingFatalLocked("get_next"); err != nil {
				return nil, err
			}
			return nil, ErrStopped
		}
		monitoring.ResultsDelivered.Inc()
		monitoring.QueueDepth.Set(float64(len(ch)))
		return r, nil
	case <-timer.C:
		return nil, ErrTimedOut
	}
}

// Stop sends the stop command, drains in-flight frames, and returns the
// session to connected-idle. Safe to call from any state, including Error,
// as best-effort cleanup; stopping twice has the effect of stopping once.
func (s *Session) Stop() error {
	s.mu.Lock()
	st := s.state
	if st != StateStreaming {
		tr := s.tr
		s.mu.Unlock()
		// after a session-fatal error the sensor may still be emitting;
		// silencing it is the best effort available
		if st == StateErrored && tr != nil {
			s.writeFrame(tr, []byte{kindStop})
		}
		return nil
	}
	s.state = StateStopping
	tr := s.tr
	stop := s.stopReader
	done := s.readerDone
	s.stopReader = nil
	s.mu.Unlock()

	// the reader consumes (and ignores) the stop acknowledgement along
	// with any in-flight measurement frames
	s.writeFrame(tr, []byte{kindStop})
	close(stop)
	<-done

	s.mu.Lock()
	if s.state == StateStopping {
		s.state = StateConnected
	}
	s.mu.Unlock()
	return nil
}

// Disconnect closes the transport and returns to Disconnected. It always
// succeeds; any operation other than Connect afterwards fails with a
// StateError.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	tr := s.tr
	stop := s.stopReader
	done := s.readerDone
	s.tr = nil
	s.stopReader = nil
	s.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if tr != nil {
		if err := tr.Close(); err != nil {
			monitoring.Logf("radarlink: error closing transport on disconnect: %v", err)
		}
	}
	if done != nil {
		<-done
	}

	s.mu.Lock()
	s.state = StateDisconnected
	s.framer = nil
	s.clientInfo = nil
	s.serverInfo = nil
	s.config = nil
	s.meta = nil
	s.results = nil
	s.readerDone = nil
	s.fatal = nil
	s.fatalReported = false
	s.mu.Unlock()
	return nil
}

// pendingFatalLocked reports a latched session-fatal error exactly once;
// afterwards operations observe the Error state. Callers hold s.mu.
func (s *Session) pendingFatalLocked(op string) error {
	if s.fatal == nil {
		return nil
	}
	if !s.fatalReported {
		s.fatalReported = true
		return s.fatal
	}
	return &StateError{Op: op, State: StateErrored}
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// noteFatal latches the first session-fatal error and moves to Error.
func (s *Session) noteFatal(err error) {
	s.mu.Lock()
	if s.fatal == nil {
		s.fatal = err
	}
	s.state = StateErrored
	s.mu.Unlock()
	monitoring.Logf("radarlink: session failed: %v", err)
}

// writeFrame marshals and writes one frame, serialised against other
// writers. Errors are returned for control flow but the transport-level
// mutex is the real contract here.
func (s *Session) writeFrame(tr transport.Transport, payload []byte) error {
	wire, err := frame.Marshal(payload)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err = tr.Write(wire)
	return err
}

// exchange performs one command/response round trip. Only used while the
// background reader is not running (control phases); frames of other kinds
// observed along the way — stale acknowledgements, leftover measurement
// frames from a previous streaming phase — are skipped.
func (s *Session) exchange(payload []byte, wantKind byte) (frame.Frame, error) {
	s.mu.Lock()
	tr := s.tr
	fr := s.framer
	s.mu.Unlock()
	if tr == nil || fr == nil {
		return frame.Frame{}, &StateError{Op: "exchange", State: StateDisconnected}
	}

	if err := s.writeFrame(tr, payload); err != nil {
		return frame.Frame{}, err
	}

	deadline := time.Now().Add(s.opts.CommandTimeout)
	buf := make([]byte, 4096)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return frame.Frame{}, transport.ErrTimedOut
		}
		n, err := tr.Read(buf, remaining)
		if err != nil {
			return frame.Frame{}, err
		}
		monitoring.BytesRead.Add(float64(n))
		for _, f := range fr.Feed(buf[:n]) {
			monitoring.FramesReceived.Inc()
			if len(f.Payload) > 0 && f.Payload[0] == wantKind {
				return f, nil
			}
		}
	}
}

// readLoop is the background reader: it owns transport reads for the
// streaming phase, feeds the framer, decodes results, and pushes them into
// the bounded queue. It exits on stop request, transport closure, or a
// session-fatal decode error, closing the queue on the way out.
func (s *Session) readLoop(tr transport.Transport, fr *frame.Framer, meta *result.Metadata,
	rec Recorder, out chan *result.Result, stop, done chan struct{}) {
	defer close(done)
	defer close(out)

	buf := make([]byte, 4096)
	for {
		select {
		case <-stop:
			return
		default:
		}

		n, err := tr.Read(buf, s.opts.PollInterval)
		if errors.Is(err, transport.ErrTimedOut) {
			continue
		}
		if err != nil {
			select {
			case <-stop:
				// closure raced an intentional shutdown
				return
			default:
			}
			s.noteFatal(fmt.Errorf("session: transport failed during streaming: %w", err))
			return
		}

		monitoring.BytesRead.Add(float64(n))
		for _, f := range fr.Feed(buf[:n]) {
			monitoring.FramesReceived.Inc()
			if !result.IsStreamData(f) {
				// control acknowledgements arriving mid-stream (stop ack)
				continue
			}
			res, err := result.Decode(meta, f)
			if err != nil {
				s.noteFatal(err)
				return
			}
			if rec != nil {
				if err := rec.Record(res); err != nil {
					monitoring.Logf("radarlink: recorder error: %v", err)
				}
			}
			s.deliver(out, res)
		}
	}
}

// deliver enqueues one result, preferring bounded blocking over loss and
// dropping the oldest queued result only after BlockOnFull elapses. Drops
// are counted and logged, never silent.
func (s *Session) deliver(out chan *result.Result, r *result.Result) {
	select {
	case out <- r:
		monitoring.QueueDepth.Set(float64(len(out)))
		return
	default:
	}

	timer := time.NewTimer(s.opts.BlockOnFull)
	defer timer.Stop()
	select {
	case out <- r:
		return
	case <-timer.C:
	}

	for {
		select {
		case dropped := <-out:
			s.mu.Lock()
			s.drops++
			s.mu.Unlock()
			monitoring.ResultsDropped.Inc()
			monitoring.Logf("radarlink: result queue full for %v, dropped oldest result (tick %d)",
				s.opts.BlockOnFull, dropped.Tick)
		default:
		}
		select {
		case out <- r:
			return
		default:
		}
	}
}
