package xmlstream

import "net"

// Protocol is what a Factory produces: dispatcher-capable, drivable by a
// transport, carrying a factory back-reference. *Stream is the default
// implementation; applications layering their own protocol object satisfy
// this interface explicitly.
type Protocol interface {
	Dispatcher
	Receiver
	SetFactory(f *Factory)
}

// Factory builds protocol instances for incoming or outgoing connections
// and applies its bootstraps to each one. A factory is long-lived and
// reusable across many connections; every BuildProtocol call yields an
// independent instance.
type Factory struct {
	Bootstraps

	construct func() Protocol
	opts      []Option
}

// NewFactory returns a factory producing *Stream instances configured
// with opts.
func NewFactory(opts ...Option) *Factory {
	f := &Factory{opts: opts}
	f.construct = func() Protocol { return New(f.opts...) }
	return f
}

// NewFactoryFor returns a factory producing instances from a pluggable
// constructor. Construction arguments are captured by the closure at
// factory-construction time and reused for every build.
func NewFactoryFor(construct func() Protocol) *Factory {
	return &Factory{construct: construct}
}

// BuildProtocol constructs a fresh protocol instance, stores the factory
// back-reference on it and installs the factory's current bootstraps.
// addr identifies the peer when known (may be nil).
func (f *Factory) BuildProtocol(addr net.Addr) Protocol {
	p := f.construct()
	p.SetFactory(f)
	f.InstallBootstraps(p)
	return p
}
