package xmlstream

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

// Reserved lifecycle selectors. Application selectors are opaque strings;
// completed children are additionally dispatched under their qualified
// name so observers can subscribe to specific stanza shapes.
const (
	// StreamStartEvent carries the opened root *Element.
	StreamStartEvent = "stream-start"
	// StreamErrorEvent carries the terminal error (always a *ParseError
	// for malformed input).
	StreamErrorEvent = "stream-error"
	// StreamEndEvent carries the termination reason (error or nil). It
	// fires exactly once per stream, whatever the cause.
	StreamEndEvent = "stream-end"
	// StreamElementEvent carries every completed direct child *Element.
	StreamElementEvent = "stream-element"
)

// StreamState is the connection state machine position.
type StreamState uint8

const (
	StateIdle StreamState = iota
	StateAwaitingRoot
	StateInStream
	StateErrored
	StateEnded
)

func (s StreamState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingRoot:
		return "awaiting-root"
	case StateInStream:
		return "in-stream"
	case StateErrored:
		return "errored"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// streamMetrics uses lock-free atomics so Stats can be read from anywhere.
type streamMetrics struct {
	bytesIn  atomic.Uint64
	bytesOut atomic.Uint64
	elements atomic.Uint64
	errors   atomic.Uint64
}

// Stats is a point-in-time telemetry snapshot for one stream.
type Stats struct {
	ID       string
	State    StreamState
	BytesIn  uint64
	BytesOut uint64
	Elements uint64
	Errors   uint64
	Uptime   time.Duration
}

// Option configures a Stream at construction time.
type Option func(*Stream)

// WithLogger injects a custom xlog logger.
func WithLogger(l *xlog.Logger) Option {
	return func(s *Stream) { s.logger = l }
}

// WithClock injects a custom xclock clock.
func WithClock(c xclock.Clock) Option {
	return func(s *Stream) { s.clock = c }
}

// WithLimits sets the parse limits applied when the connection comes up.
func WithLimits(l Limits) Option {
	return func(s *Stream) { s.limits = l.withDefaults() }
}

// Stream is the per-connection protocol engine: it owns an ElementStream
// exclusively, translates its structural events into dispatcher events and
// sequences the lifecycle selectors exactly once each, however malformed
// the input or however the transport drops.
//
// A Stream is single-goroutine: the transport's read loop drives
// DataReceived/ConnectionLost, and observers run synchronously on that
// same goroutine. Reentrant calls from observers (Send, ConnectionLost)
// are safe; concurrent calls from other goroutines are not.
type Stream struct {
	*EventDispatcher

	id      string
	logger  *xlog.Logger
	clock   xclock.Clock
	limits  Limits
	factory *Factory

	state     StreamState
	transport Transport
	parser    *ElementStream
	root      *Element

	connectedAt time.Time
	metrics     streamMetrics
}

var _ Protocol = (*Stream)(nil)

// New constructs an idle Stream. It becomes live on ConnectionMade.
func New(opts ...Option) *Stream {
	s := &Stream{
		EventDispatcher: NewEventDispatcher(),
		id:              uuid.NewString(),
		clock:           xclock.Default(),
		limits:          DefaultLimits(),
		state:           StateIdle,
	}
	for _, o := range opts {
		if o != nil {
			o(s)
		}
	}
	if s.logger == nil {
		s.logger = xlog.Default()
	}
	s.logger = s.logger.With(xlog.Str("stream_id", s.id))
	return s
}

// ID returns the stream's generated identifier.
func (s *Stream) ID() string { return s.id }

// State returns the current state machine position.
func (s *Stream) State() StreamState { return s.state }

// Root returns the root placeholder element, nil before stream-start.
func (s *Stream) Root() *Element { return s.root }

// SetFactory stores the non-owning back-reference to the factory that
// built this stream.
func (s *Stream) SetFactory(f *Factory) { s.factory = f }

// Factory returns the factory that built this stream, nil if standalone.
func (s *Stream) Factory() *Factory { return s.factory }

// Stats returns a telemetry snapshot.
func (s *Stream) Stats() Stats {
	st := Stats{
		ID:       s.id,
		State:    s.state,
		BytesIn:  s.metrics.bytesIn.Load(),
		BytesOut: s.metrics.bytesOut.Load(),
		Elements: s.metrics.elements.Load(),
		Errors:   s.metrics.errors.Load(),
	}
	if !s.connectedAt.IsZero() {
		st.Uptime = s.clock.Since(s.connectedAt)
	}
	return st
}

// ConnectionMade binds the transport and arms a fresh parser. Must be
// called exactly once, while idle; a stream is never reused across
// connections.
func (s *Stream) ConnectionMade(t Transport) {
	if s.state != StateIdle {
		s.logger.Warn().Str("state", s.state.String()).Msg("xmlstream: connection made on non-idle stream")
		return
	}
	s.transport = t
	s.parser = NewElementStream(s.limits)
	s.connectedAt = s.clock.Now()
	s.state = StateAwaitingRoot
	s.logger.Debug().Msg("xmlstream: connection made")
}

// DataReceived feeds a chunk of any size into the parser and dispatches
// the resulting events. Chunks arriving before ConnectionMade or after the
// stream ended are ignored; the parser is never re-entered once terminal.
func (s *Stream) DataReceived(p []byte) {
	switch s.state {
	case StateIdle:
		s.logger.Warn().Msg("xmlstream: data received before connection made")
		return
	case StateErrored, StateEnded:
		s.logger.Debug().Msg("xmlstream: data received after stream end")
		return
	}
	s.metrics.bytesIn.Add(uint64(len(p)))

	events, err := s.parser.Feed(p)
	for _, ev := range events {
		switch ev.Kind {
		case RootOpened:
			s.state = StateInStream
			s.root = ev.Element
			s.logger.Debug().Str("root", ev.Element.Name).Msg("xmlstream: stream started")
			s.Dispatch(ev.Element, StreamStartEvent)
		case ChildCompleted:
			s.metrics.elements.Add(1)
			s.Dispatch(ev.Element, StreamElementEvent)
			s.Dispatch(ev.Element, ev.Element.Name)
		case RootClosed:
			s.logger.Debug().Msg("xmlstream: stream closed by peer")
			s.endStream(nil)
			return
		}
		// An observer may have ended the stream from inside its callback.
		if s.state == StateEnded {
			return
		}
	}
	if err != nil {
		s.streamError(err)
	}
}

// ConnectionLost reports the transport going away. Idempotent: stream-end
// fires only on the first call, later calls are no-ops. Safe to invoke
// from error paths, teardown or observer callbacks.
func (s *Stream) ConnectionLost(reason error) {
	if s.state == StateEnded {
		return
	}
	s.logger.Debug().Err(reason).Msg("xmlstream: connection lost")
	s.transport = nil
	s.endStream(reason)
}

// Send writes data verbatim to the transport. Before ConnectionMade it is
// rejected with ErrNotConnected (no transport effect); after the stream
// ended it is rejected with ErrStreamEnded.
func (s *Stream) Send(p []byte) error {
	switch s.state {
	case StateIdle:
		return ErrNotConnected
	case StateErrored, StateEnded:
		return ErrStreamEnded
	}
	n, err := s.transport.Write(p)
	s.metrics.bytesOut.Add(uint64(n))
	return err
}

// SendElement serializes and sends a stanza.
func (s *Stream) SendElement(e *Element) error {
	return s.Send([]byte(e.XML()))
}

// streamError sequences the terminal pair: stream-error, then stream-end.
// The end dispatch is guarded so it fires even when a stream-error
// observer panics; the panic is re-raised to the caller afterwards.
func (s *Stream) streamError(reason error) {
	s.metrics.errors.Add(1)
	s.state = StateErrored
	s.logger.Warn().Err(reason).Msg("xmlstream: stream error")
	defer func() {
		r := recover()
		s.endStream(reason)
		if r != nil {
			panic(r)
		}
	}()
	s.Dispatch(reason, StreamErrorEvent)
}

func (s *Stream) endStream(reason error) {
	if s.state == StateEnded {
		return
	}
	s.state = StateEnded
	if s.transport != nil {
		_ = s.transport.Close()
		s.transport = nil
	}
	s.logger.Debug().Msg("xmlstream: stream ended")
	s.Dispatch(reason, StreamEndEvent)
}
