package xmlstream

import (
	"context"
	"errors"
	"sync"
)

// Transport is the Strategy interface for the byte pipe under a stream.
// The engine needs exactly two capabilities: write bytes, drop the
// connection. Close must be idempotent.
type Transport interface {
	Write(p []byte) (n int, err error)
	Close() error
}

// Receiver is the inbound surface a transport drives: connection up,
// chunks of any size and split, connection down. Streams and custom
// protocols implement it.
type Receiver interface {
	ConnectionMade(t Transport)
	DataReceived(p []byte)
	ConnectionLost(reason error)
}

// Connector establishes a connection, announces it to the receiver via
// ConnectionMade and pumps inbound bytes into it until the connection
// dies. Adapters under adapter/ provide implementations.
type Connector interface {
	Connect(ctx context.Context, r Receiver) (Transport, error)
}

// ConnectorFactory constructs connectors from a config blob.
type ConnectorFactory func(cfg map[string]any) (Connector, error)

var (
	connectorRegistryMu sync.RWMutex
	connectorRegistry   = map[string]ConnectorFactory{}
)

// RegisterConnector registers a transport adapter by name.
func RegisterConnector(name string, factory ConnectorFactory) error {
	if name == "" {
		return errors.New("xmlstream: connector name must not be empty")
	}
	if factory == nil {
		return errors.New("xmlstream: connector factory must not be nil")
	}
	connectorRegistryMu.Lock()
	connectorRegistry[name] = factory
	connectorRegistryMu.Unlock()
	return nil
}

// NewConnector constructs a connector by name with config.
func NewConnector(name string, cfg map[string]any) (Connector, error) {
	connectorRegistryMu.RLock()
	f, ok := connectorRegistry[name]
	connectorRegistryMu.RUnlock()
	if !ok {
		return nil, ErrUnknownConnector{name: name}
	}
	return f(cfg)
}

// Open builds a protocol instance from the factory and connects it through
// the named connector. The returned protocol is already live
// (ConnectionMade has fired) when err is nil.
func Open(ctx context.Context, connector string, cfg map[string]any, f *Factory) (Protocol, error) {
	c, err := NewConnector(connector, cfg)
	if err != nil {
		return nil, err
	}
	p := f.BuildProtocol(nil)
	if _, err := c.Connect(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}
