package bus

import (
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/a2abus/agent/protocol/a2a"
)

// EventKind is the outcome of routing one message to one recipient.
type EventKind string

const (
	EventDelivered EventKind = "delivered"
	EventFailed    EventKind = "failed"
	EventDropped   EventKind = "dropped"
	EventExpired   EventKind = "expired"
)

// Event is published to observers after each routing outcome.
type Event struct {
	Kind           EventKind       `json:"kind"`
	MessageID      string          `json:"messageId"`
	ConversationID string          `json:"conversationId"`
	CorrelationID  string          `json:"correlationId,omitempty"`
	Type           a2a.MessageType `json:"type"`
	From           string          `json:"from"`
	To             string          `json:"to"`
	Reason         string          `json:"reason,omitempty"`
	Latency        time.Duration   `json:"latency,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
}

// Observer receives routing events. Observers are called on the bus
// goroutines and must return quickly.
type Observer func(Event)

func newEvent(kind EventKind, msg *a2a.Message, to, reason string, latency time.Duration) Event {
	return Event{
		Kind:           kind,
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		CorrelationID:  msg.CorrelationID,
		Type:           msg.Type,
		From:           msg.FromAgent,
		To:             to,
		Reason:         reason,
		Latency:        latency,
		Timestamp:      time.Now().UTC(),
	}
}

// Subscribe registers an observer and returns a function that removes it.
func (b *Bus) Subscribe(obs Observer) (unsubscribe func()) {
	b.observersMu.Lock()
	b.nextObs++
	id := b.nextObs
	b.observers[id] = obs
	b.observersMu.Unlock()

	return func() {
		b.observersMu.Lock()
		delete(b.observers, id)
		b.observersMu.Unlock()
	}
}

func (b *Bus) emit(ev Event) {
	b.observersMu.RLock()
	observers := make([]Observer, 0, len(b.observers))
	for _, obs := range b.observers {
		observers = append(observers, obs)
	}
	b.observersMu.RUnlock()

	for _, obs := range observers {
		b.notify(obs, ev)
	}
}

func (b *Bus) notify(obs Observer, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("observer panic", zap.Any("panic", r), zap.String("message_id", ev.MessageID))
		}
	}()
	obs(ev)
}
