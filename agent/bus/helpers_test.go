package bus

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/a2abus/agent/protocol/a2a"
)

// recordingTransport records deliveries per address and answers through
// an optional reply function.
type recordingTransport struct {
	mu        sync.Mutex
	delivered map[string][]*a2a.Message
	reply     func(address string, msg *a2a.Message) (json.RawMessage, error)
	probeErr  error
}

func newRecordingTransport() *recordingTransport {
	return &recordingTransport{delivered: make(map[string][]*a2a.Message)}
}

func (r *recordingTransport) Deliver(ctx context.Context, address string, msg *a2a.Message) (json.RawMessage, error) {
	r.mu.Lock()
	r.delivered[address] = append(r.delivered[address], msg)
	reply := r.reply
	r.mu.Unlock()
	if reply != nil {
		return reply(address, msg)
	}
	return nil, nil
}

func (r *recordingTransport) Probe(ctx context.Context, address string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.probeErr
}

func (r *recordingTransport) messages(address string) []*a2a.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*a2a.Message, len(r.delivered[address]))
	copy(out, r.delivered[address])
	return out
}

func (r *recordingTransport) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, msgs := range r.delivered {
		n += len(msgs)
	}
	return n
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// eventLog collects observer events.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) observe(ev Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) count(kind EventKind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func startBus(t *testing.T, b *Bus) {
	t.Helper()
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("start bus: %v", err)
	}
	t.Cleanup(b.Stop)
}
