package bus

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/a2abus/agent/protocol/a2a"
)

const waitFor = 2 * time.Second

func TestBus_SendValidation(t *testing.T) {
	b := New(DefaultConfig(), newRecordingTransport(), nil)

	tests := []struct {
		name    string
		req     SendRequest
		wantErr error
	}{
		{"missing from", SendRequest{To: "b"}, ErrMissingSender},
		{"blank from", SendRequest{From: "  ", To: "b"}, ErrMissingSender},
		{"missing to", SendRequest{From: "a"}, ErrMissingRecipient},
		{"bad type", SendRequest{From: "a", To: "b", Type: "task"}, ErrInvalidType},
		{"bad priority", SendRequest{From: "a", To: "b", Priority: "meh"}, a2a.ErrMessageInvalidPriority},
		{"response without correlation", SendRequest{From: "a", To: "b", Type: a2a.MessageTypeResponse}, a2a.ErrMessageMissingCorrelation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := b.Send(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, id)
		})
	}

	stats := b.Stats()
	assert.Equal(t, 0, stats.QueueDepth)
	assert.Equal(t, 0, stats.ActiveConversations)
}

func TestBus_SendStampsMessage(t *testing.T) {
	tr := newRecordingTransport()
	b := New(DefaultConfig(), tr, nil)
	require.NoError(t, b.RegisterAgent("orchestrator", AgentInfo{Address: "local://orchestrator"}))
	require.NoError(t, b.RegisterAgent("flight", AgentInfo{Address: "http://flight"}))
	startBus(t, b)

	id, err := b.Send(context.Background(), SendRequest{
		From:           "orchestrator",
		To:             "flight",
		Type:           a2a.MessageTypeEvent,
		Payload:        map[string]any{"k": "v"},
		ConversationID: "conv-1",
		Priority:       a2a.PriorityUrgent,
		TTL:            90 * time.Second,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(tr.messages("http://flight")) == 1 }, waitFor, 5*time.Millisecond)
	msg := tr.messages("http://flight")[0]
	assert.Equal(t, id, msg.ID)
	assert.Equal(t, "conv-1", msg.ConversationID)
	assert.Equal(t, a2a.PriorityUrgent, msg.Priority)
	assert.Equal(t, 90, msg.TTLSeconds)

	require.Eventually(t, func() bool {
		last, ok := msg.LastHop()
		return ok && last.Action == a2a.HopDelivered
	}, waitFor, 5*time.Millisecond)
	hops := msg.RoutingHistory()
	assert.Equal(t, a2a.HopQueued, hops[0].Action)

	conv, ok := b.Conversation("conv-1")
	require.True(t, ok)
	assert.Equal(t, []string{"flight", "orchestrator"}, conv.Participants)
	assert.Equal(t, 1, conv.MessageCount)

	reg, _ := b.Agent("orchestrator")
	assert.Equal(t, int64(1), reg.MessageCount)
}

func TestBus_QueueFull(t *testing.T) {
	config := DefaultConfig()
	config.QueueSize = 1
	b := New(config, newRecordingTransport(), nil)

	_, err := b.Send(context.Background(), SendRequest{From: "a", To: "b"})
	require.NoError(t, err)
	_, err = b.Send(context.Background(), SendRequest{From: "a", To: "b"})
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 1, b.Stats().QueueDepth)
}

func TestBus_SendAfterStop(t *testing.T) {
	b := New(DefaultConfig(), newRecordingTransport(), nil)
	require.NoError(t, b.Start(context.Background()))
	b.Stop()
	b.Stop()

	_, err := b.Send(context.Background(), SendRequest{From: "a", To: "b"})
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, b.Start(context.Background()), ErrClosed)
}

func TestBus_UnregisteredTargetDroppedLoopSurvives(t *testing.T) {
	tr := newRecordingTransport()
	b := New(DefaultConfig(), tr, nil)
	require.NoError(t, b.RegisterAgent("hotel", AgentInfo{Address: "http://hotel"}))
	events := &eventLog{}
	b.Subscribe(events.observe)
	startBus(t, b)

	ghostID, err := b.Send(context.Background(), SendRequest{From: "orchestrator", To: "ghost"})
	require.NoError(t, err)
	_, err = b.Send(context.Background(), SendRequest{From: "orchestrator", To: "hotel"})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(tr.messages("http://hotel")) == 1 }, waitFor, 5*time.Millisecond)
	require.Eventually(t, func() bool { return events.count(EventDropped) == 1 }, waitFor, 5*time.Millisecond)

	stats := b.Stats()
	assert.Equal(t, int64(2), stats.TotalProcessed)
	assert.Equal(t, int64(1), stats.TotalDropped)
	assert.Equal(t, 1, tr.total())

	var ghost *a2a.Message
	for _, msg := range b.History(0) {
		if msg.ID == ghostID {
			ghost = msg
		}
	}
	require.NotNil(t, ghost)
	last, _ := ghost.LastHop()
	assert.Equal(t, a2a.HopDropped, last.Action)
}

func TestBus_ExpiredMessageNeverDelivered(t *testing.T) {
	clock := newFakeClock()
	tr := newRecordingTransport()
	b := New(DefaultConfig(), tr, nil, WithClock(clock.Now))
	require.NoError(t, b.RegisterAgent("context", AgentInfo{Address: "http://context"}))
	events := &eventLog{}
	b.Subscribe(events.observe)

	_, err := b.Send(context.Background(), SendRequest{From: "a", To: "context", TTL: time.Second})
	require.NoError(t, err)
	clock.Advance(2 * time.Second)
	startBus(t, b)

	require.Eventually(t, func() bool { return events.count(EventExpired) == 1 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, 0, tr.total())
	assert.Equal(t, int64(1), b.Stats().TotalDropped)
}

func TestBus_DeliveryFailureRecorded(t *testing.T) {
	tr := newRecordingTransport()
	tr.reply = func(string, *a2a.Message) (json.RawMessage, error) {
		return nil, errors.New("connection refused")
	}
	b := New(DefaultConfig(), tr, nil)
	require.NoError(t, b.RegisterAgent("flight", AgentInfo{Address: "http://flight"}))
	events := &eventLog{}
	b.Subscribe(events.observe)
	startBus(t, b)

	_, err := b.Send(context.Background(), SendRequest{From: "a", To: "flight"})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return events.count(EventFailed) == 1 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, int64(1), b.Stats().TotalFailed)

	msg := tr.messages("http://flight")[0]
	last, _ := msg.LastHop()
	assert.Equal(t, a2a.HopFailed, last.Action)
	assert.Equal(t, "connection refused", last.Detail)
}

func TestBus_SynchronousReplyFedBack(t *testing.T) {
	tr := newRecordingTransport()
	tr.reply = func(address string, msg *a2a.Message) (json.RawMessage, error) {
		return json.RawMessage(`{"flights":["AF1"]}`), nil
	}
	b := New(DefaultConfig(), tr, nil)

	replies := make(chan *a2a.Message, 1)
	require.NoError(t, b.SetHandler(a2a.MessageTypeResponse, func(ctx context.Context, msg *a2a.Message) error {
		replies <- msg
		return nil
	}))
	require.NoError(t, b.RegisterAgent("orchestrator", AgentInfo{Address: "local://orchestrator"}))
	require.NoError(t, b.RegisterAgent("flight", AgentInfo{Address: "http://flight"}))
	startBus(t, b)

	id, err := b.Send(context.Background(), SendRequest{From: "orchestrator", To: "flight", ConversationID: "c1"})
	require.NoError(t, err)

	select {
	case resp := <-replies:
		assert.Equal(t, id, resp.CorrelationID)
		assert.Equal(t, "flight", resp.FromAgent)
		assert.Equal(t, "orchestrator", resp.ToAgent)
		assert.Equal(t, "c1", resp.ConversationID)
		assert.Equal(t, []any{"AF1"}, resp.Payload["flights"])
	case <-time.After(waitFor):
		t.Fatal("no reply routed")
	}
	require.ErrorIs(t, b.SetHandler(a2a.MessageTypeEvent, nil), ErrAlreadyStarted)
}

func TestBus_HeartbeatMarksSenderAlive(t *testing.T) {
	clock := newFakeClock()
	tr := newRecordingTransport()
	b := New(DefaultConfig(), tr, nil, WithClock(clock.Now))
	require.NoError(t, b.RegisterAgent("orchestrator", AgentInfo{Address: "local://orchestrator"}))
	require.NoError(t, b.RegisterAgent("weather", AgentInfo{Address: "http://weather"}))
	require.NoError(t, b.SetAgentStatus("weather", AgentStatusUnavailable))
	startBus(t, b)

	_, err := b.Send(context.Background(), SendRequest{From: "weather", To: "orchestrator", Type: a2a.MessageTypeHeartbeat})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		reg, _ := b.Agent("weather")
		return reg.Status == AgentStatusActive && reg.LastSeen.Equal(clock.Now())
	}, waitFor, 5*time.Millisecond)
	assert.Equal(t, 0, tr.total(), "heartbeats are not delivered over the transport")
}

func TestBus_BroadcastExcludesSender(t *testing.T) {
	tr := newRecordingTransport()
	b := New(DefaultConfig(), tr, nil)
	for _, name := range []string{"orchestrator", "flight", "hotel", "context"} {
		require.NoError(t, b.RegisterAgent(name, AgentInfo{Address: "http://" + name}))
	}
	startBus(t, b)

	ids, err := b.Broadcast(context.Background(), "orchestrator", a2a.MessageTypeEvent, map[string]any{"notice": "maintenance"})
	require.NoError(t, err)
	require.Len(t, ids, 3)

	require.Eventually(t, func() bool { return tr.total() == 3 }, waitFor, 5*time.Millisecond)
	assert.Empty(t, tr.messages("http://orchestrator"))

	conversations := make(map[string]bool)
	targets := make(map[string]bool)
	for _, name := range []string{"flight", "hotel", "context"} {
		msgs := tr.messages("http://" + name)
		require.Len(t, msgs, 1)
		assert.Equal(t, a2a.PriorityHigh, msgs[0].Priority)
		assert.Contains(t, ids, msgs[0].ID)
		conversations[msgs[0].ConversationID] = true
		targets[msgs[0].ToAgent] = true
	}
	assert.Len(t, conversations, 1)
	assert.Len(t, targets, 3)
}

func TestBus_BroadcastExplicitTargets(t *testing.T) {
	b := New(DefaultConfig(), newRecordingTransport(), nil)

	ids, err := b.Broadcast(context.Background(), "a", a2a.MessageTypeEvent, nil, "a", "b", "b", "c")
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	_, err = b.Broadcast(context.Background(), "", a2a.MessageTypeEvent, nil)
	assert.ErrorIs(t, err, ErrMissingSender)
}

func TestBus_BroadcastMarker(t *testing.T) {
	tr := newRecordingTransport()
	b := New(DefaultConfig(), tr, nil)
	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, b.RegisterAgent(name, AgentInfo{Address: "http://" + name}))
	}
	startBus(t, b)

	_, err := b.Send(context.Background(), SendRequest{From: "a", To: a2a.BroadcastTarget, Type: a2a.MessageTypeEvent})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return tr.total() == 2 }, waitFor, 5*time.Millisecond)
	assert.Empty(t, tr.messages("http://a"))
}

func TestBus_SlowAgentDoesNotBlockOthers(t *testing.T) {
	release := make(chan struct{})
	tr := newRecordingTransport()
	tr.reply = func(address string, msg *a2a.Message) (json.RawMessage, error) {
		if address == "http://slow" {
			<-release
		}
		return nil, nil
	}
	b := New(DefaultConfig(), tr, nil)
	require.NoError(t, b.RegisterAgent("slow", AgentInfo{Address: "http://slow"}))
	require.NoError(t, b.RegisterAgent("fast", AgentInfo{Address: "http://fast"}))
	startBus(t, b)
	defer close(release)

	_, err := b.Send(context.Background(), SendRequest{From: "o", To: "slow"})
	require.NoError(t, err)
	_, err = b.Send(context.Background(), SendRequest{From: "o", To: "fast"})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(tr.messages("http://fast")) == 1 }, waitFor, 5*time.Millisecond)
}

func TestBus_CheckAvailability(t *testing.T) {
	tr := newRecordingTransport()
	b := New(DefaultConfig(), tr, nil)
	require.NoError(t, b.RegisterAgent("hotel", AgentInfo{Address: "http://hotel"}))

	assert.True(t, b.CheckAvailability(context.Background(), "hotel"))

	tr.mu.Lock()
	tr.probeErr = errors.New("down")
	tr.mu.Unlock()
	assert.False(t, b.CheckAvailability(context.Background(), "hotel"))
	reg, _ := b.Agent("hotel")
	assert.Equal(t, AgentStatusUnavailable, reg.Status)

	assert.False(t, b.CheckAvailability(context.Background(), "ghost"))
	assert.ErrorIs(t, b.SetAgentStatus("ghost", AgentStatusActive), ErrAgentNotFound)
	assert.ErrorIs(t, b.SetAgentStatus("hotel", "sleeping"), ErrInvalidStatus)
}

func TestBus_RegisterAgentValidation(t *testing.T) {
	b := New(DefaultConfig(), newRecordingTransport(), nil)
	assert.ErrorIs(t, b.RegisterAgent(" ", AgentInfo{Address: "http://x"}), ErrMissingName)
	assert.ErrorIs(t, b.RegisterAgent("x", AgentInfo{}), ErrMissingAddress)
}

func TestBus_ConversationSweep(t *testing.T) {
	clock := newFakeClock()
	b := New(DefaultConfig(), newRecordingTransport(), nil, WithClock(clock.Now))

	_, err := b.Send(context.Background(), SendRequest{From: "a", To: "b", ConversationID: "old"})
	require.NoError(t, err)
	clock.Advance(50 * time.Minute)
	_, err = b.Send(context.Background(), SendRequest{From: "a", To: "b", ConversationID: "fresh"})
	require.NoError(t, err)
	clock.Advance(20 * time.Minute)

	assert.Equal(t, 1, b.sweepConversations())
	_, ok := b.Conversation("old")
	assert.False(t, ok)
	_, ok = b.Conversation("fresh")
	assert.True(t, ok)
}

func TestBus_ObserverPanicDoesNotStopLoop(t *testing.T) {
	tr := newRecordingTransport()
	b := New(DefaultConfig(), tr, nil)
	require.NoError(t, b.RegisterAgent("b", AgentInfo{Address: "http://b"}))
	b.Subscribe(func(Event) { panic("observer bug") })
	events := &eventLog{}
	unsubscribe := b.Subscribe(events.observe)
	startBus(t, b)

	for range 3 {
		_, err := b.Send(context.Background(), SendRequest{From: "a", To: "b"})
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return events.count(EventDelivered) == 3 }, waitFor, 5*time.Millisecond)

	unsubscribe()
	_, err := b.Send(context.Background(), SendRequest{From: "a", To: "b"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return tr.total() == 4 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, 3, events.count(EventDelivered))
}
