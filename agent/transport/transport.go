package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/a2abus/agent/protocol/a2a"
)

// Transport moves one message to an agent address. Deliver returns the
// synchronous reply body, or nil when the agent answers asynchronously.
// Timeouts, connection errors and non-2xx answers are errors.
type Transport interface {
	Deliver(ctx context.Context, address string, msg *a2a.Message) (json.RawMessage, error)
	Probe(ctx context.Context, address string) error
}

var (
	// ErrUnknownAddress is returned when no handler serves a local address.
	ErrUnknownAddress = errors.New("transport: unknown address")
	// ErrUnsupportedScheme is returned for addresses no transport handles.
	ErrUnsupportedScheme = errors.New("transport: unsupported address scheme")
)

// Address schemes.
const (
	SchemeHTTP  = "http"
	SchemeHTTPS = "https"
	SchemeLocal = "local"
)

// Config bounds deliveries and probes.
type Config struct {
	DeliveryTimeout time.Duration `yaml:"delivery_timeout" env:"DELIVERY_TIMEOUT"`
	ProbeTimeout    time.Duration `yaml:"probe_timeout" env:"PROBE_TIMEOUT"`
	ProtocolVersion string        `yaml:"protocol_version" env:"PROTOCOL_VERSION"`
}

// DefaultConfig returns 30s deliveries and 5s probes.
func DefaultConfig() Config {
	return Config{
		DeliveryTimeout: 30 * time.Second,
		ProbeTimeout:    5 * time.Second,
		ProtocolVersion: a2a.ProtocolVersion,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DeliveryTimeout <= 0 {
		c.DeliveryTimeout = d.DeliveryTimeout
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = d.ProbeTimeout
	}
	if c.ProtocolVersion == "" {
		c.ProtocolVersion = d.ProtocolVersion
	}
	return c
}

// Scheme returns the scheme of an agent address.
func Scheme(address string) string {
	scheme, _, ok := strings.Cut(address, "://")
	if !ok {
		return ""
	}
	return strings.ToLower(scheme)
}

// LocalAddress builds the in-process address for name.
func LocalAddress(name string) string {
	return SchemeLocal + "://" + name
}

// Mux picks a transport by address scheme.
type Mux struct {
	routes map[string]Transport
}

// NewMux creates an empty Mux.
func NewMux() *Mux {
	return &Mux{routes: make(map[string]Transport)}
}

// Handle routes scheme to t. Call before the mux is shared.
func (m *Mux) Handle(scheme string, t Transport) *Mux {
	m.routes[strings.ToLower(scheme)] = t
	return m
}

func (m *Mux) lookup(address string) (Transport, error) {
	t, ok := m.routes[Scheme(address)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, address)
	}
	return t, nil
}

// Deliver implements Transport.
func (m *Mux) Deliver(ctx context.Context, address string, msg *a2a.Message) (json.RawMessage, error) {
	t, err := m.lookup(address)
	if err != nil {
		return nil, err
	}
	return t.Deliver(ctx, address, msg)
}

// Probe implements Transport.
func (m *Mux) Probe(ctx context.Context, address string) error {
	t, err := m.lookup(address)
	if err != nil {
		return err
	}
	return t.Probe(ctx, address)
}

// NewDefaultMux serves http(s):// through h and local:// through l.
func NewDefaultMux(h *HTTPTransport, l *LocalTransport) *Mux {
	return NewMux().
		Handle(SchemeHTTP, h).
		Handle(SchemeHTTPS, h).
		Handle(SchemeLocal, l)
}
