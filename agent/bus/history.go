package bus

import (
	"sync"

	"github.com/BaSui01/a2abus/agent/protocol/a2a"
)

// historyRing keeps the most recent routed messages; the oldest entry is
// overwritten once the ring is full.
type historyRing struct {
	mu   sync.Mutex
	buf  []*a2a.Message
	next int
	full bool
}

func newHistoryRing(size int) *historyRing {
	if size <= 0 {
		size = 1
	}
	return &historyRing{buf: make([]*a2a.Message, size)}
}

func (h *historyRing) add(msg *a2a.Message) {
	h.mu.Lock()
	h.buf[h.next] = msg
	h.next = (h.next + 1) % len(h.buf)
	if h.next == 0 {
		h.full = true
	}
	h.mu.Unlock()
}

func (h *historyRing) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.full {
		return len(h.buf)
	}
	return h.next
}

// snapshot returns up to limit messages, oldest first. limit <= 0 means all.
func (h *historyRing) snapshot(limit int) []*a2a.Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := h.next
	start := 0
	if h.full {
		n = len(h.buf)
		start = h.next
	}
	if limit > 0 && limit < n {
		start = (start + n - limit) % len(h.buf)
		n = limit
	}
	out := make([]*a2a.Message, n)
	for i := range n {
		out[i] = h.buf[(start+i)%len(h.buf)]
	}
	return out
}
