// Package tcp carries XML streams over TCP connections: a registered
// "tcp" connector for the client side and an accept loop for servers.
// The read pump is the single goroutine driving each stream.
package tcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/trickstertwo/xlog"
	"github.com/trickstertwo/xmlstream"
)

const ConnectorName = "tcp"

const defaultReadBuffer = 32 << 10

func init() {
	if err := xmlstream.RegisterConnector(ConnectorName, func(cfg map[string]any) (xmlstream.Connector, error) {
		return NewConnector(ConfigFromMap(cfg))
	}); err != nil {
		panic(fmt.Errorf("xmlstream/tcp: failed to register connector: %w", err))
	}
}

// Config for the TCP connector.
type Config struct {
	// Addr is the host:port to dial.
	Addr string
	// DialTimeout bounds connection establishment (default: 10s).
	DialTimeout time.Duration
	// ReadBuffer is the read chunk size in bytes (default: 32 KiB).
	ReadBuffer int
}

// ConfigFromMap safely converts cfg into Config with defaults.
func ConfigFromMap(cfg map[string]any) Config {
	getString := func(k, d string) string {
		if v, ok := cfg[k].(string); ok && v != "" {
			return v
		}
		return d
	}
	getInt := func(k string, d int) int {
		switch v := cfg[k].(type) {
		case int:
			return v
		case int32:
			return int(v)
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
		return d
	}
	getDur := func(k string, d time.Duration) time.Duration {
		switch v := cfg[k].(type) {
		case time.Duration:
			return v
		case string:
			if p, err := time.ParseDuration(v); err == nil {
				return p
			}
		case float64:
			return time.Duration(v)
		}
		return d
	}
	return Config{
		Addr:        getString("addr", ""),
		DialTimeout: getDur("dial_timeout", 10*time.Second),
		ReadBuffer:  getInt("read_buffer", defaultReadBuffer),
	}
}

// Connector dials TCP connections and pumps inbound bytes into receivers.
type Connector struct {
	cfg Config
}

var _ xmlstream.Connector = (*Connector)(nil)

// NewConnector validates cfg and returns a connector.
func NewConnector(cfg Config) (*Connector, error) {
	if cfg.Addr == "" {
		return nil, errors.New("xmlstream/tcp: addr must not be empty")
	}
	if cfg.ReadBuffer < 1 {
		cfg.ReadBuffer = defaultReadBuffer
	}
	return &Connector{cfg: cfg}, nil
}

// Connect dials the configured address, fires ConnectionMade and starts
// the read pump. The pump goroutine owns the receiver from here on.
func (c *Connector) Connect(ctx context.Context, r xmlstream.Receiver) (xmlstream.Transport, error) {
	d := net.Dialer{Timeout: c.cfg.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", c.cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("xmlstream/tcp: dial %s: %w", c.cfg.Addr, err)
	}
	t := &Transport{conn: conn}
	r.ConnectionMade(t)
	go pump(conn, r, c.cfg.ReadBuffer)
	return t, nil
}

// Serve accepts connections on ln and runs one protocol instance per
// connection until ctx is done or the listener fails. Blocks; run it on
// its own goroutine.
func Serve(ctx context.Context, ln net.Listener, f *xmlstream.Factory) error {
	logger := xlog.Default().With(xlog.Str("listener", ln.Addr().String()))

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("xmlstream/tcp: accept: %w", err)
		}
		logger.Debug().Str("remote", conn.RemoteAddr().String()).Msg("xmlstream/tcp: connection accepted")

		p := f.BuildProtocol(conn.RemoteAddr())
		t := &Transport{conn: conn}
		p.ConnectionMade(t)
		go pump(conn, p, defaultReadBuffer)
	}
}

// pump reads until the connection dies, feeding every chunk into r. Clean
// EOF and locally-closed connections report ConnectionLost(nil); anything
// else carries the read error.
func pump(conn net.Conn, r xmlstream.Receiver, size int) {
	buf := make([]byte, size)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			p := make([]byte, n)
			copy(p, buf[:n])
			r.DataReceived(p)
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				r.ConnectionLost(nil)
			} else {
				r.ConnectionLost(err)
			}
			return
		}
	}
}

// Transport adapts a net.Conn to the engine's transport capability.
type Transport struct {
	conn      net.Conn
	closeOnce sync.Once
	closeErr  error
}

var _ xmlstream.Transport = (*Transport)(nil)

func (t *Transport) Write(p []byte) (int, error) {
	return t.conn.Write(p)
}

// Close is idempotent; the read pump observes the closed connection and
// reports ConnectionLost.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}

// RemoteAddr exposes the peer address for logging.
func (t *Transport) RemoteAddr() net.Addr {
	return t.conn.RemoteAddr()
}
