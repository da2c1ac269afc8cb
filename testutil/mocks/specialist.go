// =============================================================================
// Fake specialist
// =============================================================================
// An HTTP specialist built on a2a.Server, for transport and discovery tests.
//
// Usage:
//
//	spec := mocks.NewSpecialist(t, card).WithReply(map[string]any{"response": "ok"})
//	addr := spec.URL()
//
// =============================================================================
package mocks

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/a2abus/agent/protocol/a2a"
)

// Specialist is a fake remote agent served over httptest.
type Specialist struct {
	server *a2a.Server
	http   *httptest.Server

	mu       sync.Mutex
	reply    map[string]any
	err      error
	delay    time.Duration
	received []*a2a.Envelope
}

// NewSpecialist starts a specialist serving card. It is closed at test
// cleanup.
func NewSpecialist(t *testing.T, card *a2a.AgentCard) *Specialist {
	t.Helper()
	s := &Specialist{reply: map[string]any{"response": card.Name + " ok"}}
	s.server = a2a.NewServer(card, s.handle, nil)
	s.http = httptest.NewServer(s.server)
	t.Cleanup(s.http.Close)
	return s
}

// WithReply sets the payload returned for requests.
func (s *Specialist) WithReply(reply map[string]any) *Specialist {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reply = reply
	return s
}

// WithError makes every request fail with err.
func (s *Specialist) WithError(err error) *Specialist {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	return s
}

// WithDelay delays every answer.
func (s *Specialist) WithDelay(d time.Duration) *Specialist {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
	return s
}

// SetHealthy flips the /health answer.
func (s *Specialist) SetHealthy(healthy bool) {
	s.server.SetHealthy(healthy)
}

// URL is the specialist's base address.
func (s *Specialist) URL() string {
	return s.http.URL
}

// Received returns a copy of every envelope delivered so far.
func (s *Specialist) Received() []*a2a.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*a2a.Envelope, len(s.received))
	copy(out, s.received)
	return out
}

func (s *Specialist) handle(ctx context.Context, env *a2a.Envelope) (map[string]any, error) {
	s.mu.Lock()
	s.received = append(s.received, env)
	reply, err, delay := s.reply, s.err, s.delay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return reply, nil
}
