package bus

import (
	"slices"
	"sync"
	"time"
)

// Conversation is a snapshot of one conversation.
type Conversation struct {
	ID           string    `json:"id"`
	Participants []string  `json:"participants"`
	StartedAt    time.Time `json:"startedAt"`
	LastActivity time.Time `json:"lastActivity"`
	MessageCount int       `json:"messageCount"`
	Status       string    `json:"status"`
}

const conversationActive = "active"

type conversation struct {
	startedAt    time.Time
	lastActivity time.Time
	messageCount int
	participants map[string]struct{}
}

// conversationTable is created lazily by Send and swept by the cleanup loop.
type conversationTable struct {
	mu    sync.Mutex
	items map[string]*conversation
}

func newConversationTable() *conversationTable {
	return &conversationTable{items: make(map[string]*conversation)}
}

func (t *conversationTable) touch(id string, now time.Time, participants ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.items[id]
	if !ok {
		c = &conversation{startedAt: now, participants: make(map[string]struct{})}
		t.items[id] = c
	}
	c.lastActivity = now
	c.messageCount++
	for _, p := range participants {
		if p != "" {
			c.participants[p] = struct{}{}
		}
	}
}

// sweep removes conversations idle since before cutoff.
func (t *conversationTable) sweep(cutoff time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for id, c := range t.items {
		if c.lastActivity.Before(cutoff) {
			delete(t.items, id)
			removed++
		}
	}
	return removed
}

func (t *conversationTable) get(id string) (Conversation, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.items[id]
	if !ok {
		return Conversation{}, false
	}
	participants := make([]string, 0, len(c.participants))
	for p := range c.participants {
		participants = append(participants, p)
	}
	slices.Sort(participants)
	return Conversation{
		ID:           id,
		Participants: participants,
		StartedAt:    c.startedAt,
		LastActivity: c.lastActivity,
		MessageCount: c.messageCount,
		Status:       conversationActive,
	}, true
}

func (t *conversationTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items)
}
