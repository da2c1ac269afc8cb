package discovery

import (
	"context"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/a2abus/agent/bus"
	"github.com/BaSui01/a2abus/agent/protocol/a2a"
	"github.com/BaSui01/a2abus/agent/router"
	"github.com/BaSui01/a2abus/agent/transport"
	"github.com/BaSui01/a2abus/internal/cache"
	"github.com/BaSui01/a2abus/testutil"
)

type countingFetcher struct {
	inner CardFetcher
	calls atomic.Int32
}

func (f *countingFetcher) Discover(ctx context.Context, baseURL string) (*a2a.AgentCard, error) {
	f.calls.Add(1)
	return f.inner.Discover(ctx, baseURL)
}

type staticFetcher map[string]*a2a.AgentCard

func (f staticFetcher) Discover(_ context.Context, baseURL string) (*a2a.AgentCard, error) {
	card, ok := f[baseURL]
	if !ok {
		return nil, a2a.ErrRemoteUnavailable
	}
	return card, nil
}

type recordingSink struct {
	mu       sync.Mutex
	profiles []router.Profile
}

func (s *recordingSink) UpsertProfiles(profiles ...router.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles = append(s.profiles, profiles...)
	return nil
}

func flightCard() *a2a.AgentCard {
	card := a2a.NewAgentCard("flight", "1.0.0")
	card.AddCapability("search_flights").AddCapability("book_flight")
	card.PrimaryKeywords = []string{"flight", "airline"}
	card.DomainWords = []string{"flight"}
	card.Transactional = true
	card.Priority = 0.9
	return card
}

func newSpecialist(t *testing.T, card *a2a.AgentCard) (*httptest.Server, *a2a.Server) {
	t.Helper()
	srv := a2a.NewServer(card, func(ctx context.Context, env *a2a.Envelope) (map[string]any, error) {
		return map[string]any{"ok": true}, nil
	}, nil)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts, srv
}

func newHTTPBus() *bus.Bus {
	return bus.New(bus.DefaultConfig(), transport.NewHTTPTransport(nil, transport.DefaultConfig(), nil), nil)
}

func TestService_DiscoverRegistersAgent(t *testing.T) {
	ts, _ := newSpecialist(t, flightCard())
	b := newHTTPBus()
	sink := &recordingSink{}

	cfg := DefaultConfig()
	cfg.Addresses = []string{ts.URL}
	svc := NewService(cfg, a2a.NewClient(a2a.DefaultClientConfig(), nil), b, nil, WithProfileSink(sink))

	cards, err := svc.DiscoverAll(context.Background())
	require.NoError(t, err)
	require.Len(t, cards, 1)

	reg, ok := b.Agent("flight")
	require.True(t, ok)
	assert.Equal(t, ts.URL, reg.Address)
	assert.Equal(t, bus.AgentStatusActive, reg.Status)
	assert.Equal(t, []string{"search_flights", "book_flight"}, reg.Capabilities)
	assert.Equal(t, 0.9, reg.Priority)

	require.Len(t, sink.profiles, 1)
	p := sink.profiles[0]
	assert.Equal(t, "flight", p.Name)
	assert.Equal(t, []string{"search flights", "book flight"}, p.SecondaryKeywords)
	assert.True(t, p.Transactional)

	assert.Contains(t, svc.Cards(), "flight")
}

func TestService_DiscoverAllPartialFailure(t *testing.T) {
	b := newHTTPBus()
	fetcher := staticFetcher{"http://flight": flightCard()}

	cfg := DefaultConfig()
	cfg.Addresses = []string{"http://flight", "http://missing"}
	svc := NewService(cfg, fetcher, b, nil)

	cards, err := svc.DiscoverAll(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, a2a.ErrRemoteUnavailable)
	assert.Contains(t, err.Error(), "http://missing")
	assert.Len(t, cards, 1)

	_, ok := b.Agent("flight")
	assert.True(t, ok)
}

func TestService_InvalidCardRejected(t *testing.T) {
	b := newHTTPBus()
	svc := NewService(DefaultConfig(), staticFetcher{"http://x": {Name: "x"}}, b, nil)

	_, err := svc.Discover(context.Background(), "http://x")
	assert.ErrorIs(t, err, a2a.ErrMissingVersion)
	_, ok := b.Agent("x")
	assert.False(t, ok)
}

func TestService_CardCache(t *testing.T) {
	mr := miniredis.RunT(t)
	manager, err := cache.NewManager(cache.Config{Addr: mr.Addr(), KeyPrefix: "a2abus:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	fetcher := &countingFetcher{inner: staticFetcher{"http://flight": flightCard()}}
	cfg := DefaultConfig()
	cfg.CardCacheTTL = time.Minute
	svc := NewService(cfg, fetcher, newHTTPBus(), nil, WithCardCache(manager))

	ctx := context.Background()
	_, err = svc.Discover(ctx, "http://flight")
	require.NoError(t, err)
	assert.True(t, mr.Exists("a2abus:card:http://flight"))
	assert.Equal(t, time.Minute, mr.TTL("a2abus:card:http://flight"))

	// A second node sharing Redis does not fetch again.
	other := NewService(cfg, fetcher, newHTTPBus(), nil, WithCardCache(manager))
	card, err := other.Discover(ctx, "http://flight")
	require.NoError(t, err)
	assert.Equal(t, "flight", card.Name)
	assert.Equal(t, int32(1), fetcher.calls.Load())

	mr.FastForward(2 * time.Minute)
	_, err = other.Discover(ctx, "http://flight")
	require.NoError(t, err)
	assert.Equal(t, int32(2), fetcher.calls.Load())
}

func TestService_CacheErrorFallsBackToFetch(t *testing.T) {
	mr := miniredis.RunT(t)
	manager, err := cache.NewManager(cache.Config{Addr: mr.Addr()}, nil)
	require.NoError(t, err)
	require.NoError(t, manager.Close())

	fetcher := &countingFetcher{inner: staticFetcher{"http://flight": flightCard()}}
	svc := NewService(DefaultConfig(), fetcher, newHTTPBus(), nil, WithCardCache(manager))

	_, err = svc.Discover(context.Background(), "http://flight")
	require.NoError(t, err)
	assert.Equal(t, int32(1), fetcher.calls.Load())
}

func TestService_StartStop(t *testing.T) {
	b := newHTTPBus()
	cfg := DefaultConfig()
	cfg.Addresses = []string{"http://flight"}
	cfg.ProbeInterval = time.Hour
	svc := NewService(cfg, staticFetcher{"http://flight": flightCard()}, b, nil)

	require.NoError(t, svc.Start(context.Background()))
	assert.ErrorIs(t, svc.Start(context.Background()), ErrAlreadyRunning)

	_, ok := b.Agent("flight")
	assert.True(t, ok)

	svc.Stop()
	svc.Stop()
}

func TestHealthChecker_FlipsStatus(t *testing.T) {
	ts, specialist := newSpecialist(t, flightCard())
	b := newHTTPBus()
	require.NoError(t, b.RegisterAgent("flight", bus.AgentInfo{Address: ts.URL}))
	require.NoError(t, b.RegisterAgent("gone", bus.AgentInfo{Address: "http://127.0.0.1:1"}))

	h := NewHealthChecker(HealthCheckerConfig{Timeout: time.Second}, b, nil)
	ctx := context.Background()

	results := h.CheckAll(ctx)
	assert.True(t, results["flight"])
	assert.False(t, results["gone"])
	assert.Equal(t, 1, h.Failures("gone"))

	reg, _ := b.Agent("gone")
	assert.Equal(t, bus.AgentStatusUnavailable, reg.Status)

	specialist.SetHealthy(false)
	h.CheckAll(ctx)
	reg, _ = b.Agent("flight")
	assert.Equal(t, bus.AgentStatusUnavailable, reg.Status)
	assert.Equal(t, 1, h.Failures("flight"))

	specialist.SetHealthy(true)
	h.CheckAll(ctx)
	reg, _ = b.Agent("flight")
	assert.Equal(t, bus.AgentStatusActive, reg.Status)
	assert.Zero(t, h.Failures("flight"))
}

func TestHealthChecker_SkipsLocalNode(t *testing.T) {
	cluster := testutil.NewCluster(t, "orchestrator")
	cluster.AddReplyAgent(t, "context", "ok")

	unskipped := NewHealthChecker(HealthCheckerConfig{Timeout: time.Second}, cluster.Bus, nil)
	assert.False(t, unskipped.CheckAll(context.Background())["orchestrator"],
		"the local node has no handler behind its address")
	require.NoError(t, cluster.Bus.SetAgentStatus("orchestrator", bus.AgentStatusActive))

	h := NewHealthChecker(HealthCheckerConfig{Timeout: time.Second, Skip: []string{"orchestrator"}}, cluster.Bus, nil)
	results := h.CheckAll(context.Background())

	assert.Equal(t, map[string]bool{"context": true}, results)
	assert.Zero(t, h.Failures("orchestrator"))
	reg, ok := cluster.Bus.Agent("orchestrator")
	require.True(t, ok)
	assert.Equal(t, bus.AgentStatusActive, reg.Status)
}

func TestService_HealthSkipsSelf(t *testing.T) {
	cluster := testutil.NewCluster(t, "orchestrator")
	cluster.AddReplyAgent(t, "hotel", "ok")

	svc := NewService(Config{Self: "orchestrator"}, staticFetcher{}, cluster.Bus, nil)
	results := svc.Health().CheckAll(context.Background())

	assert.NotContains(t, results, "orchestrator")
	assert.True(t, results["hotel"])
}

func TestHealthChecker_Loop(t *testing.T) {
	ts, specialist := newSpecialist(t, flightCard())
	specialist.SetHealthy(false)
	b := newHTTPBus()
	require.NoError(t, b.RegisterAgent("flight", bus.AgentInfo{Address: ts.URL}))

	h := NewHealthChecker(HealthCheckerConfig{Interval: 10 * time.Millisecond, Timeout: time.Second}, b, nil)
	h.Start()
	defer h.Stop()

	require.Eventually(t, func() bool {
		reg, _ := b.Agent("flight")
		return reg.Status == bus.AgentStatusUnavailable
	}, 2*time.Second, 10*time.Millisecond)
}

func TestProfile_FromCard(t *testing.T) {
	p := Profile(&a2a.AgentCard{Name: "hotel", Capabilities: []string{"book_hotel"}})
	assert.Equal(t, "hotel", p.Name)
	assert.Equal(t, []string{"book hotel"}, p.SecondaryKeywords)
	assert.Zero(t, p.Priority)
}

func TestAgentInfo_PrefersCardURL(t *testing.T) {
	card := flightCard()
	card.URL = "http://flight.internal:8081"
	info := agentInfo(card, "http://lb")
	assert.Equal(t, "http://flight.internal:8081", info.Address)

	card.URL = ""
	assert.Equal(t, "http://lb", agentInfo(card, "http://lb").Address)
}
