package handlers

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/a2abus/internal/cache"
)

// DefaultSessionTTL is how long an idle chat session is remembered.
const DefaultSessionTTL = 30 * time.Minute

// Session is what the orchestrator remembers between chat turns.
type Session struct {
	PreviousAgent  string    `json:"previousAgent,omitempty"`
	ConversationID string    `json:"conversationId,omitempty"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// SessionStore keeps chat sessions keyed by session id.
type SessionStore interface {
	Get(ctx context.Context, id string) (Session, bool)
	Put(ctx context.Context, id string, s Session)
}

// =============================================================================
// In-memory store
// =============================================================================

// MemorySessionStore is a process-local SessionStore. Idle sessions are
// evicted lazily on Put.
type MemorySessionStore struct {
	mu        sync.Mutex
	ttl       time.Duration
	now       func() time.Time
	sessions  map[string]Session
	lastSweep time.Time
}

// NewMemorySessionStore creates a store that forgets sessions idle for ttl.
func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &MemorySessionStore{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]Session),
	}
}

// Get returns the session if it exists and has not expired.
func (m *MemorySessionStore) Get(_ context.Context, id string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return Session{}, false
	}
	if m.now().Sub(s.UpdatedAt) > m.ttl {
		delete(m.sessions, id)
		return Session{}, false
	}
	return s, true
}

// Put stores s, stamping UpdatedAt.
func (m *MemorySessionStore) Put(_ context.Context, id string, s Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	s.UpdatedAt = now
	m.sessions[id] = s

	if now.Sub(m.lastSweep) < m.ttl {
		return
	}
	m.lastSweep = now
	for k, v := range m.sessions {
		if now.Sub(v.UpdatedAt) > m.ttl {
			delete(m.sessions, k)
		}
	}
}

// Len returns the number of stored sessions, expired ones included.
func (m *MemorySessionStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// =============================================================================
// Redis store
// =============================================================================

// JSONCache is the part of cache.Manager the Redis store needs.
type JSONCache interface {
	GetJSON(ctx context.Context, key string, dest any) error
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

var _ JSONCache = (*cache.Manager)(nil)

// CacheSessionStore keeps sessions in Redis so every orchestrator replica
// sees the same follow-up context.
type CacheSessionStore struct {
	cache  JSONCache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCacheSessionStore creates a store backed by c.
func NewCacheSessionStore(c JSONCache, ttl time.Duration, logger *zap.Logger) *CacheSessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheSessionStore{
		cache:  c,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "session_store")),
	}
}

func sessionKey(id string) string { return "session:" + id }

// Get reads the session. Cache errors other than a miss are logged and
// treated as a miss.
func (s *CacheSessionStore) Get(ctx context.Context, id string) (Session, bool) {
	var sess Session
	if err := s.cache.GetJSON(ctx, sessionKey(id), &sess); err != nil {
		if !cache.IsCacheMiss(err) {
			s.logger.Warn("session read failed", zap.String("session_id", id), zap.Error(err))
		}
		return Session{}, false
	}
	return sess, true
}

// Put writes the session with the store's TTL.
func (s *CacheSessionStore) Put(ctx context.Context, id string, sess Session) {
	sess.UpdatedAt = time.Now()
	if err := s.cache.SetJSON(ctx, sessionKey(id), sess, s.ttl); err != nil {
		s.logger.Warn("session write failed", zap.String("session_id", id), zap.Error(err))
	}
}
