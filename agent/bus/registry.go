package bus

import (
	"cmp"
	"slices"
	"sync"
	"time"
)

// AgentStatus is the availability of a registered agent.
type AgentStatus string

const (
	AgentStatusActive      AgentStatus = "active"
	AgentStatusUnavailable AgentStatus = "unavailable"
)

// IsValid reports whether s is a known status.
func (s AgentStatus) IsValid() bool {
	return s == AgentStatusActive || s == AgentStatusUnavailable
}

// AgentInfo is what a caller supplies when registering an agent.
type AgentInfo struct {
	Address      string            `json:"address"`
	Capabilities []string          `json:"capabilities,omitempty"`
	Keywords     []string          `json:"keywords,omitempty"`
	Priority     float64           `json:"priority,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Registration is a snapshot of a registered agent.
type Registration struct {
	Name         string            `json:"name"`
	Address      string            `json:"address"`
	RegisteredAt time.Time         `json:"registeredAt"`
	Status       AgentStatus       `json:"status"`
	MessageCount int64             `json:"messageCount"`
	LastSeen     time.Time         `json:"lastSeen,omitzero"`
	Capabilities []string          `json:"capabilities,omitempty"`
	Keywords     []string          `json:"keywords,omitempty"`
	Priority     float64           `json:"priority,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// registry is keyed by agent name. Entries are never removed.
type registry struct {
	mu     sync.RWMutex
	agents map[string]*Registration
}

func newRegistry() *registry {
	return &registry{agents: make(map[string]*Registration)}
}

// upsert creates or overwrites the entry for name. The message count
// survives re-registration.
func (r *registry) upsert(name string, info AgentInfo, now time.Time) (existed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, existed := r.agents[name]
	if !existed {
		reg = &Registration{Name: name}
		r.agents[name] = reg
	}
	reg.Address = info.Address
	reg.RegisteredAt = now
	reg.Status = AgentStatusActive
	reg.Capabilities = slices.Clone(info.Capabilities)
	reg.Keywords = slices.Clone(info.Keywords)
	reg.Priority = info.Priority
	reg.Metadata = cloneMetadata(info.Metadata)
	return existed
}

func (r *registry) get(name string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.agents[name]
	if !ok {
		return Registration{}, false
	}
	return reg.snapshot(), true
}

func (r *registry) has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.agents[name]
	return ok
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// list returns snapshots sorted by name.
func (r *registry) list() []Registration {
	r.mu.RLock()
	out := make([]Registration, 0, len(r.agents))
	for _, reg := range r.agents {
		out = append(out, reg.snapshot())
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b Registration) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return out
}

func (r *registry) names() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.agents))
	for name := range r.agents {
		out = append(out, name)
	}
	r.mu.RUnlock()
	slices.Sort(out)
	return out
}

// incrementCount bumps the sender's message count if it is registered.
func (r *registry) incrementCount(name string) {
	r.mu.Lock()
	if reg, ok := r.agents[name]; ok {
		reg.MessageCount++
	}
	r.mu.Unlock()
}

func (r *registry) counts() map[string]int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]int64, len(r.agents))
	for name, reg := range r.agents {
		out[name] = reg.MessageCount
	}
	return out
}

// setStatus returns the previous status.
func (r *registry) setStatus(name string, status AgentStatus) (AgentStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.agents[name]
	if !ok {
		return "", ErrAgentNotFound
	}
	prev := reg.Status
	reg.Status = status
	return prev, nil
}

// touch records liveness and marks the agent active.
func (r *registry) touch(name string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.agents[name]
	if !ok {
		return false
	}
	reg.LastSeen = now
	reg.Status = AgentStatusActive
	return true
}

func (reg *Registration) snapshot() Registration {
	out := *reg
	out.Capabilities = slices.Clone(reg.Capabilities)
	out.Keywords = slices.Clone(reg.Keywords)
	out.Metadata = cloneMetadata(reg.Metadata)
	return out
}

func cloneMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
