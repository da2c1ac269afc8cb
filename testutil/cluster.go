package testutil

import (
	"context"
	"testing"

	"github.com/BaSui01/a2abus/agent/bus"
	"github.com/BaSui01/a2abus/agent/correlator"
	"github.com/BaSui01/a2abus/agent/protocol/a2a"
	"github.com/BaSui01/a2abus/agent/transport"
)

// Cluster is an in-process bus with a correlator and local specialists.
type Cluster struct {
	Bus        *bus.Bus
	Local      *transport.LocalTransport
	Correlator *correlator.Correlator
}

// NewCluster builds a cluster whose orchestrator is registered as self.
// Call Start after adding agents; cleanup is registered on t.
func NewCluster(t *testing.T, self string) *Cluster {
	t.Helper()
	lt := transport.NewLocalTransport(transport.DefaultConfig(), nil)
	b := bus.New(bus.DefaultConfig(), lt, nil)
	c, err := correlator.New(b, self, nil)
	if err != nil {
		t.Fatalf("correlator: %v", err)
	}
	return &Cluster{Bus: b, Local: lt, Correlator: c}
}

// AddAgent registers an in-process specialist answering with fn.
func (c *Cluster) AddAgent(t *testing.T, name string, fn transport.LocalHandler) {
	t.Helper()
	addr := transport.LocalAddress(name)
	if err := c.Bus.RegisterAgent(name, bus.AgentInfo{Address: addr}); err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	c.Local.Handle(addr, fn)
}

// AddReplyAgent registers a specialist that always answers with reply.
func (c *Cluster) AddReplyAgent(t *testing.T, name, reply string) {
	t.Helper()
	c.AddAgent(t, name, func(ctx context.Context, msg *a2a.Message) (map[string]any, error) {
		return map[string]any{"response": reply, "agent": name}, nil
	})
}

// Start starts the bus and stops it at test cleanup.
func (c *Cluster) Start(t *testing.T) {
	t.Helper()
	if err := c.Bus.Start(context.Background()); err != nil {
		t.Fatalf("start bus: %v", err)
	}
	t.Cleanup(func() {
		c.Correlator.Close()
		c.Bus.Stop()
	})
}
