// Package memory provides an in-process transport for development and
// testing: a loopback connector that echoes written bytes straight back
// into the receiver, and Pipe, which cross-connects two receivers.
// Not suitable for production, excellent for wire tests without sockets.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/trickstertwo/xmlstream"
)

const ConnectorName = "memory"

func init() {
	if err := xmlstream.RegisterConnector(ConnectorName, func(cfg map[string]any) (xmlstream.Connector, error) {
		return NewConnector(ConfigFromMap(cfg)), nil
	}); err != nil {
		panic(fmt.Errorf("xmlstream/memory: failed to register connector: %w", err))
	}
}

// Config controls loopback behavior.
type Config struct {
	// Echo re-delivers written bytes to the receiver (default: true).
	// With Echo off the transport only records writes.
	Echo bool
}

// ConfigFromMap safely converts cfg into Config with defaults.
func ConfigFromMap(cfg map[string]any) Config {
	getBool := func(k string, d bool) bool {
		if v, ok := cfg[k].(bool); ok {
			return v
		}
		return d
	}
	return Config{Echo: getBool("echo", true)}
}

// Connector implements the loopback Strategy.
type Connector struct {
	cfg Config
}

var _ xmlstream.Connector = (*Connector)(nil)

// NewConnector returns a loopback connector.
func NewConnector(cfg Config) *Connector {
	return &Connector{cfg: cfg}
}

// Connect wires r to a loopback transport and fires ConnectionMade. No
// goroutines: delivery happens synchronously inside Write.
func (c *Connector) Connect(_ context.Context, r xmlstream.Receiver) (xmlstream.Transport, error) {
	t := &Transport{owner: r}
	if c.cfg.Echo {
		t.sink = r
	}
	r.ConnectionMade(t)
	return t, nil
}

// Pipe cross-connects two receivers: bytes written by one side arrive at
// the other via DataReceived. Both sides get ConnectionMade before Pipe
// returns; closing either transport tears down both.
func Pipe(a, b xmlstream.Receiver) (*Transport, *Transport) {
	ta := &Transport{owner: a, sink: b}
	tb := &Transport{owner: b, sink: a}
	ta.peer = tb
	tb.peer = ta
	a.ConnectionMade(ta)
	b.ConnectionMade(tb)
	return ta, tb
}

// Transport records written bytes and optionally delivers them to a sink
// receiver. Delivery runs outside the lock so observers may reenter
// Send/Write during their own invocation.
type Transport struct {
	mu     sync.Mutex
	owner  xmlstream.Receiver
	sink   xmlstream.Receiver
	peer   *Transport
	closed bool
	writes [][]byte
}

var _ xmlstream.Transport = (*Transport)(nil)

func (t *Transport) Write(p []byte) (int, error) {
	cp := make([]byte, len(p))
	copy(cp, p)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, errors.New("xmlstream/memory: transport is closed")
	}
	t.writes = append(t.writes, cp)
	sink := t.sink
	t.mu.Unlock()

	if sink != nil {
		sink.DataReceived(cp)
	}
	return len(p), nil
}

// Close is idempotent. The first call reports ConnectionLost to the owner
// and closes the peer end, if any.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	owner := t.owner
	peer := t.peer
	t.mu.Unlock()

	if owner != nil {
		owner.ConnectionLost(nil)
	}
	if peer != nil {
		_ = peer.Close()
	}
	return nil
}

// Closed reports whether Close has been called.
func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Writes returns every Write payload in order.
func (t *Transport) Writes() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.writes))
	copy(out, t.writes)
	return out
}

// Bytes returns all written bytes concatenated.
func (t *Transport) Bytes() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	var n int
	for _, w := range t.writes {
		n += len(w)
	}
	out := make([]byte, 0, n)
	for _, w := range t.writes {
		out = append(out, w...)
	}
	return out
}
