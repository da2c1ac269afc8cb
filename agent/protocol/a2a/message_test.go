package a2a

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageType_IsValid(t *testing.T) {
	tests := []struct {
		name     string
		msgType  MessageType
		expected bool
	}{
		{"request type", MessageTypeRequest, true},
		{"response type", MessageTypeResponse, true},
		{"event type", MessageTypeEvent, true},
		{"heartbeat type", MessageTypeHeartbeat, true},
		{"invalid type", MessageType("task"), false},
		{"empty type", MessageType(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.msgType.IsValid())
		})
	}
}

func TestParsePriority(t *testing.T) {
	p, err := ParsePriority(" HIGH ")
	require.NoError(t, err)
	assert.Equal(t, PriorityHigh, p)

	_, err = ParsePriority("critical")
	assert.ErrorIs(t, err, ErrMessageInvalidPriority)
}

func TestNewMessage_Defaults(t *testing.T) {
	payload := map[string]any{"key": "value"}
	msg := NewMessage(MessageTypeEvent, "agent-a", "agent-b", payload)

	assert.NotEmpty(t, msg.ID)
	assert.NotEmpty(t, msg.ConversationID)
	assert.Equal(t, MessageTypeEvent, msg.Type)
	assert.Equal(t, "agent-a", msg.FromAgent)
	assert.Equal(t, "agent-b", msg.ToAgent)
	assert.Equal(t, payload, msg.Payload)
	assert.Equal(t, PriorityNormal, msg.Priority)
	assert.Equal(t, DefaultTTLSeconds, msg.TTLSeconds)
	assert.False(t, msg.CreatedAt.IsZero())
	assert.Empty(t, msg.CorrelationID)
	assert.Empty(t, msg.RoutingHistory())
}

func TestNewMessage_UniqueIDs(t *testing.T) {
	seen := make(map[string]bool)
	for range 200 {
		msg := NewRequest("a", "b", nil)
		require.False(t, seen[msg.ID], "duplicate id %s", msg.ID)
		seen[msg.ID] = true
	}
}

func TestMessage_Reply(t *testing.T) {
	req := NewRequest("orchestrator", "flight", map[string]any{"action": "search"})
	req.Priority = PriorityHigh

	resp := req.Reply(map[string]any{"flights": 3})

	assert.Equal(t, MessageTypeResponse, resp.Type)
	assert.Equal(t, "flight", resp.FromAgent)
	assert.Equal(t, "orchestrator", resp.ToAgent)
	assert.Equal(t, req.ID, resp.CorrelationID)
	assert.Equal(t, req.ConversationID, resp.ConversationID)
	assert.Equal(t, PriorityHigh, resp.Priority)
	assert.NotEqual(t, req.ID, resp.ID)
	require.NoError(t, resp.Validate())
}

func TestMessage_Validate(t *testing.T) {
	valid := func() *Message { return NewRequest("agent-a", "agent-b", nil) }

	tests := []struct {
		name        string
		mutate      func(m *Message)
		expectedErr error
	}{
		{"valid message", func(m *Message) {}, nil},
		{"missing ID", func(m *Message) { m.ID = "" }, ErrMessageMissingID},
		{"invalid type", func(m *Message) { m.Type = "task" }, ErrMessageInvalidType},
		{"missing from", func(m *Message) { m.FromAgent = " " }, ErrMessageMissingFrom},
		{"missing to", func(m *Message) { m.ToAgent = "" }, ErrMessageMissingTo},
		{"missing timestamp", func(m *Message) { m.CreatedAt = time.Time{} }, ErrMessageMissingTimestamp},
		{"invalid priority", func(m *Message) { m.Priority = "meh" }, ErrMessageInvalidPriority},
		{"response without correlation", func(m *Message) { m.Type = MessageTypeResponse }, ErrMessageMissingCorrelation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := valid()
			tt.mutate(msg)
			err := msg.Validate()
			if tt.expectedErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.expectedErr)
			}
		})
	}
}

func TestMessage_IsExpiredAt(t *testing.T) {
	created := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	msg := NewEvent("a", "b", nil)
	msg.CreatedAt = created
	msg.TTLSeconds = 10

	assert.False(t, msg.IsExpiredAt(created))
	assert.False(t, msg.IsExpiredAt(created.Add(10*time.Second)), "boundary instant is still live")
	assert.True(t, msg.IsExpiredAt(created.Add(10*time.Second+time.Nanosecond)))
}

func TestMessage_ZeroTTLFallsBackToDefault(t *testing.T) {
	msg := NewEvent("a", "b", nil)
	msg.TTLSeconds = 0
	assert.Equal(t, DefaultTTLSeconds*time.Second, msg.TTL())
	assert.False(t, msg.IsExpired())
}

func TestMessage_AddHopConcurrent(t *testing.T) {
	msg := NewEvent("a", "b", nil)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 5 {
				msg.AddHop("bus", HopQueued, "")
			}
		}()
	}
	wg.Wait()

	assert.Len(t, msg.RoutingHistory(), 40)
}

func TestMessage_AddHopCapped(t *testing.T) {
	msg := NewEvent("a", "b", nil)
	for i := range MaxRoutingHops + 10 {
		msg.AddHop("bus", HopQueued, string(rune('a'+i%26)))
	}

	hops := msg.RoutingHistory()
	require.Len(t, hops, MaxRoutingHops)
	last, ok := msg.LastHop()
	require.True(t, ok)
	assert.Equal(t, hops[len(hops)-1], last)
}

func TestMessage_JSONRoundTrip(t *testing.T) {
	msg := NewRequest("orchestrator", "hotel", map[string]any{
		"action":     "search",
		"parameters": map[string]any{"city": "Paris"},
	})
	msg.Priority = PriorityUrgent
	msg.AddHop("bus", HopQueued, "")
	msg.AddHop("bus", HopDelivered, "")

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	decoded, err := ParseMessage(data)
	require.NoError(t, err)

	assert.Equal(t, msg.ID, decoded.ID)
	assert.Equal(t, msg.ConversationID, decoded.ConversationID)
	assert.Equal(t, PriorityUrgent, decoded.Priority)
	assert.Equal(t, "search", decoded.Action())
	assert.Equal(t, "Paris", decoded.Parameters()["city"])
	assert.True(t, msg.CreatedAt.Equal(decoded.CreatedAt))
	require.Len(t, decoded.RoutingHistory(), 2)
	assert.Equal(t, HopDelivered, decoded.RoutingHistory()[1].Action)
}

func TestParseMessage_Invalid(t *testing.T) {
	_, err := ParseMessage([]byte(`{not json`))
	assert.ErrorIs(t, err, ErrInvalidMessage)

	_, err = ParseMessage([]byte(`{"id":"x","type":"request","fromAgent":"a","toAgent":""}`))
	assert.ErrorIs(t, err, ErrMessageMissingTo)
}

func TestNewEnvelope(t *testing.T) {
	msg := NewRequest("orchestrator", "flight", map[string]any{
		"action": "process",
		"parameters": map[string]any{
			"message": "book a flight to Paris",
			"context": map[string]any{"budget": 500.0},
		},
	})

	env := NewEnvelope(msg, "")

	assert.Equal(t, "book a flight to Paris", env.Text)
	assert.Equal(t, 500.0, env.Context["budget"])
	assert.Equal(t, msg.ID, env.RoutingMetadata.MessageID)
	assert.Equal(t, msg.ConversationID, env.RoutingMetadata.ConversationID)
	assert.Equal(t, "orchestrator", env.RoutingMetadata.FromAgent)
	assert.Equal(t, ProtocolVersion, env.RoutingMetadata.ProtocolVersion)
}

func TestNewEnvelope_TopLevelText(t *testing.T) {
	msg := NewEvent("a", "b", map[string]any{"text": "hello"})
	env := NewEnvelope(msg, "2.0")
	assert.Equal(t, "hello", env.Text)
	assert.Nil(t, env.Context)
	assert.Equal(t, "2.0", env.RoutingMetadata.ProtocolVersion)
}

func TestAgentCard_Validate(t *testing.T) {
	card := NewAgentCard("flight", "1.0.0").AddCapability("flight_search").AddTool("search", "search flights")
	require.NoError(t, card.Validate())
	assert.True(t, card.HasCapability("flight_search"))
	assert.True(t, card.HasTool("search"))
	assert.Contains(t, card.Endpoints, PathMessages)

	assert.ErrorIs(t, (&AgentCard{Version: "1"}).Validate(), ErrMissingName)
	assert.ErrorIs(t, (&AgentCard{Name: "x"}).Validate(), ErrMissingVersion)
}
