package a2a

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ProtocolVersion is sent with every inter-agent delivery.
const ProtocolVersion = "1.0"

// BroadcastTarget is the recipient marker for a message addressed to every agent.
const BroadcastTarget = "*"

// DefaultTTLSeconds is the lifetime of a message that does not set one.
const DefaultTTLSeconds = 300

// MaxRoutingHops caps the routing history kept on a single message.
const MaxRoutingHops = 64

// MessageType is the closed set of bus message kinds.
type MessageType string

const (
	// MessageTypeRequest asks the recipient to do work and reply.
	MessageTypeRequest MessageType = "request"
	// MessageTypeResponse answers a request; CorrelationID holds the request id.
	MessageTypeResponse MessageType = "response"
	// MessageTypeEvent is a one-way notification.
	MessageTypeEvent MessageType = "event"
	// MessageTypeHeartbeat is a liveness signal.
	MessageTypeHeartbeat MessageType = "heartbeat"
)

// IsValid reports whether t is one of the four message types.
func (t MessageType) IsValid() bool {
	switch t {
	case MessageTypeRequest, MessageTypeResponse, MessageTypeEvent, MessageTypeHeartbeat:
		return true
	default:
		return false
	}
}

func (t MessageType) String() string {
	return string(t)
}

// Priority is message metadata. The bus queue is FIFO regardless of priority.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// IsValid reports whether p is a known priority.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	default:
		return false
	}
}

// ParsePriority accepts a priority name case-insensitively.
func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrMessageInvalidPriority, s)
	}
	return p, nil
}

// HopAction names what happened to a message at a routing hop.
type HopAction string

const (
	HopQueued    HopAction = "queued"
	HopDelivered HopAction = "delivered"
	HopFailed    HopAction = "failed"
	HopDropped   HopAction = "dropped"
	HopExpired   HopAction = "expired"
)

// Hop is one routing history entry.
type Hop struct {
	Node      string    `json:"node"`
	Action    HopAction `json:"action"`
	Timestamp time.Time `json:"timestamp"`
	Detail    string    `json:"detail,omitempty"`
}

// Message is the unit carried by the bus. All fields are fixed at creation;
// only the routing history grows, and it is safe to append from any goroutine.
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversationId"`
	FromAgent      string         `json:"fromAgent"`
	ToAgent        string         `json:"toAgent"`
	Type           MessageType    `json:"type"`
	Payload        map[string]any `json:"payload,omitempty"`
	Priority       Priority       `json:"priority"`
	CreatedAt      time.Time      `json:"createdAt"`
	TTLSeconds     int            `json:"ttlSeconds"`
	CorrelationID  string         `json:"correlationId,omitempty"`

	mu   sync.Mutex
	hops []Hop
}

// NewMessage creates a message with a fresh id and conversation id.
func NewMessage(msgType MessageType, from, to string, payload map[string]any) *Message {
	return &Message{
		ID:             uuid.New().String(),
		ConversationID: uuid.New().String(),
		FromAgent:      from,
		ToAgent:        to,
		Type:           msgType,
		Payload:        payload,
		Priority:       PriorityNormal,
		CreatedAt:      time.Now().UTC(),
		TTLSeconds:     DefaultTTLSeconds,
	}
}

// NewRequest creates a request message.
func NewRequest(from, to string, payload map[string]any) *Message {
	return NewMessage(MessageTypeRequest, from, to, payload)
}

// NewEvent creates a one-way event message.
func NewEvent(from, to string, payload map[string]any) *Message {
	return NewMessage(MessageTypeEvent, from, to, payload)
}

// NewHeartbeat creates a liveness message from an agent to the given node.
func NewHeartbeat(from, to string) *Message {
	return NewMessage(MessageTypeHeartbeat, from, to, nil)
}

// Reply creates the response to m: sender and recipient swap, the
// conversation is kept and CorrelationID points at m.
func (m *Message) Reply(payload map[string]any) *Message {
	resp := NewMessage(MessageTypeResponse, m.ToAgent, m.FromAgent, payload)
	resp.ConversationID = m.ConversationID
	resp.CorrelationID = m.ID
	resp.Priority = m.Priority
	return resp
}

// Validate checks the required fields.
func (m *Message) Validate() error {
	if m.ID == "" {
		return ErrMessageMissingID
	}
	if !m.Type.IsValid() {
		return ErrMessageInvalidType
	}
	if strings.TrimSpace(m.FromAgent) == "" {
		return ErrMessageMissingFrom
	}
	if strings.TrimSpace(m.ToAgent) == "" {
		return ErrMessageMissingTo
	}
	if m.CreatedAt.IsZero() {
		return ErrMessageMissingTimestamp
	}
	if m.Priority != "" && !m.Priority.IsValid() {
		return ErrMessageInvalidPriority
	}
	if m.Type == MessageTypeResponse && m.CorrelationID == "" {
		return ErrMessageMissingCorrelation
	}
	return nil
}

// TTL returns the message lifetime, falling back to the default.
func (m *Message) TTL() time.Duration {
	if m.TTLSeconds <= 0 {
		return DefaultTTLSeconds * time.Second
	}
	return time.Duration(m.TTLSeconds) * time.Second
}

// ExpiresAt is the last instant at which the message is still live.
func (m *Message) ExpiresAt() time.Time {
	return m.CreatedAt.Add(m.TTL())
}

// IsExpired reports whether the message lifetime has passed.
func (m *Message) IsExpired() bool {
	return m.IsExpiredAt(time.Now())
}

// IsExpiredAt reports whether now is strictly after createdAt + ttl.
func (m *Message) IsExpiredAt(now time.Time) bool {
	return now.After(m.ExpiresAt())
}

// IsBroadcast reports whether the message is addressed to every agent.
func (m *Message) IsBroadcast() bool {
	return m.ToAgent == BroadcastTarget
}

// AddHop appends a routing history entry. The oldest entries are discarded
// once MaxRoutingHops is reached.
func (m *Message) AddHop(node string, action HopAction, detail string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hops = append(m.hops, Hop{
		Node:      node,
		Action:    action,
		Timestamp: time.Now().UTC(),
		Detail:    detail,
	})
	if over := len(m.hops) - MaxRoutingHops; over > 0 {
		m.hops = append(m.hops[:0], m.hops[over:]...)
	}
}

// RoutingHistory returns a copy of the hops recorded so far.
func (m *Message) RoutingHistory() []Hop {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Hop, len(m.hops))
	copy(out, m.hops)
	return out
}

// LastHop returns the most recent hop.
func (m *Message) LastHop() (Hop, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.hops) == 0 {
		return Hop{}, false
	}
	return m.hops[len(m.hops)-1], true
}

// Action returns the "action" field of a request payload.
func (m *Message) Action() string {
	if m.Payload == nil {
		return ""
	}
	s, _ := m.Payload["action"].(string)
	return s
}

// Parameters returns the "parameters" map of a request payload.
func (m *Message) Parameters() map[string]any {
	if m.Payload == nil {
		return nil
	}
	p, _ := m.Payload["parameters"].(map[string]any)
	return p
}

// MarshalJSON includes the routing history.
func (m *Message) MarshalJSON() ([]byte, error) {
	type Alias Message
	return json.Marshal(&struct {
		*Alias
		RoutingHistory []Hop `json:"routingHistory,omitempty"`
	}{
		Alias:          (*Alias)(m),
		RoutingHistory: m.RoutingHistory(),
	})
}

// UnmarshalJSON restores the routing history.
func (m *Message) UnmarshalJSON(data []byte) error {
	type Alias Message
	aux := &struct {
		*Alias
		RoutingHistory []Hop `json:"routingHistory,omitempty"`
	}{
		Alias: (*Alias)(m),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	m.mu.Lock()
	m.hops = aux.RoutingHistory
	m.mu.Unlock()
	return nil
}

// ParseMessage decodes and validates a message.
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
