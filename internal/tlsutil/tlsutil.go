// Package tlsutil builds the HTTP clients agents use to reach each other.
// TLS 1.2+, AEAD-only cipher suites.
package tlsutil

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// DefaultTLSConfig returns a hardened TLS configuration.
func DefaultTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
		},
	}
}

// ClientOptions tunes the agent HTTP client.
type ClientOptions struct {
	// Timeout is a hard ceiling; per-call deadlines come from the context.
	Timeout time.Duration
	// DialTimeout bounds connection setup.
	DialTimeout time.Duration
	// MaxIdleConnsPerHost keeps connections to each specialist warm for
	// parallel fan-out.
	MaxIdleConnsPerHost int
}

// DefaultClientOptions returns options for a handful of specialists.
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		Timeout:             60 * time.Second,
		DialTimeout:         5 * time.Second,
		MaxIdleConnsPerHost: 16,
	}
}

// AgentTransport returns an http.Transport with TLS hardening.
func AgentTransport(opts ClientOptions) *http.Transport {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}
	if opts.MaxIdleConnsPerHost <= 0 {
		opts.MaxIdleConnsPerHost = 16
	}
	return &http.Transport{
		TLSClientConfig: DefaultTLSConfig(),
		DialContext: (&net.Dialer{
			Timeout:   opts.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   opts.MaxIdleConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// AgentHTTPClient returns an http.Client built on AgentTransport.
func AgentHTTPClient(opts ClientOptions) *http.Client {
	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: AgentTransport(opts),
	}
}
