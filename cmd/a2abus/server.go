package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/a2abus/agent/bus"
	"github.com/BaSui01/a2abus/agent/coordinator"
	"github.com/BaSui01/a2abus/agent/correlator"
	"github.com/BaSui01/a2abus/agent/discovery"
	"github.com/BaSui01/a2abus/agent/protocol/a2a"
	"github.com/BaSui01/a2abus/agent/router"
	"github.com/BaSui01/a2abus/agent/transport"
	"github.com/BaSui01/a2abus/api/handlers"
	"github.com/BaSui01/a2abus/config"
	"github.com/BaSui01/a2abus/internal/cache"
	"github.com/BaSui01/a2abus/internal/metrics"
	"github.com/BaSui01/a2abus/internal/server"
	"github.com/BaSui01/a2abus/internal/telemetry"
)

// statsInterval is how often bus gauges are sampled.
const statsInterval = 5 * time.Second

// ErrNoAgents is returned when neither config nor discovery yields a
// specialist to route to.
var ErrNoAgents = errors.New("no agents configured or discovered")

// =============================================================================
// Server
// =============================================================================

// Server owns one orchestrator node: the bus and everything built on it,
// plus the API and metrics listeners.
type Server struct {
	cfg       *config.Config
	logger    *zap.Logger
	telemetry *telemetry.Providers
	namespace string

	collector   *metrics.Collector
	cache       *cache.Manager
	local       *transport.LocalTransport
	bus         *bus.Bus
	correlator  *correlator.Correlator
	router      *router.IntentRouter
	coordinator *coordinator.Coordinator
	discovery   *discovery.Service
	stream      *handlers.StreamHandler

	httpManager    *server.Manager
	metricsManager *server.Manager

	cancel       context.CancelFunc
	shutdownOnce sync.Once
	wg           sync.WaitGroup
}

// NewServer creates a server. Nothing runs until Start.
func NewServer(cfg *config.Config, logger *zap.Logger, providers *telemetry.Providers) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:       cfg,
		logger:    logger,
		telemetry: providers,
		namespace: "a2abus",
	}
}

// =============================================================================
// Startup
// =============================================================================

// Start builds the node and starts both listeners.
func (s *Server) Start(ctx context.Context) error {
	handler, err := s.build(ctx)
	if err != nil {
		return err
	}

	if err := s.startHTTPServer(handler); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	if s.cfg.Server.MetricsPort > 0 {
		if err := s.startMetricsServer(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	s.logger.Info("all servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Int("agents", len(s.bus.Agents())),
	)
	return nil
}

// build wires every component and returns the API handler. Listeners are
// not started.
func (s *Server) build(ctx context.Context) (http.Handler, error) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.collector = metrics.NewCollector(s.namespace, s.logger)

	if s.cfg.Discovery.UseRedis {
		c, err := cache.NewManager(s.cfg.Redis, s.logger, cache.WithMetrics(s.collector, "redis"))
		if err != nil {
			return nil, fmt.Errorf("failed to connect redis: %w", err)
		}
		s.cache = c
	}

	if err := s.initBus(); err != nil {
		return nil, err
	}
	if err := s.bus.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start bus: %w", err)
	}

	sink := &profileSink{}
	if s.cfg.Discovery.Enabled {
		if err := s.startDiscovery(ctx, sink); err != nil {
			return nil, err
		}
	}
	if err := s.initRouter(sink); err != nil {
		return nil, err
	}

	s.coordinator = coordinator.New(s.correlator, s.cfg.Coordinator, s.logger,
		coordinator.WithRouter(s.router),
		coordinator.WithProber(s.bus),
		coordinator.WithMetrics(s.collector),
	)

	s.wg.Add(1)
	go s.sampleStats(ctx)

	return s.routes(ctx), nil
}

func (s *Server) initBus() error {
	s.local = transport.NewLocalTransport(s.cfg.Transport, s.logger)
	mux := transport.NewDefaultMux(transport.NewHTTPTransport(nil, s.cfg.Transport, s.logger), s.local)

	s.bus = bus.New(s.cfg.Bus, mux, s.logger)
	s.bus.Subscribe(func(ev bus.Event) {
		s.collector.RecordBusEvent(string(ev.Type), string(ev.Kind), ev.To, ev.Latency)
	})

	for _, a := range s.cfg.Agents {
		if err := s.bus.RegisterAgent(a.Name, a.Info()); err != nil {
			return fmt.Errorf("register agent %s: %w", a.Name, err)
		}
	}

	c, err := correlator.New(s.bus, s.cfg.Server.AgentName, s.logger, correlator.WithMetrics(s.collector))
	if err != nil {
		return fmt.Errorf("failed to init correlator: %w", err)
	}
	s.correlator = c

	s.logger.Info("bus initialized", zap.Int("configured_agents", len(s.cfg.Agents)))
	return nil
}

// startDiscovery fetches cards from every HTTP agent address plus the
// extra discovery addresses, then keeps them fresh and probed.
func (s *Server) startDiscovery(ctx context.Context, sink *profileSink) error {
	addresses := slices.Clone(s.cfg.Discovery.Addresses)
	for _, a := range s.cfg.Agents {
		if transport.Scheme(a.Address) != transport.SchemeLocal && !slices.Contains(addresses, a.Address) {
			addresses = append(addresses, a.Address)
		}
	}

	opts := []discovery.Option{discovery.WithProfileSink(sink)}
	if s.cache != nil {
		opts = append(opts, discovery.WithCardCache(s.cache))
	}
	s.discovery = discovery.NewService(discovery.Config{
		Self:            s.cfg.Server.AgentName,
		Addresses:       addresses,
		RefreshInterval: s.cfg.Discovery.RefreshInterval,
		ProbeInterval:   s.cfg.Discovery.ProbeInterval,
		CardCacheTTL:    s.cfg.Discovery.CardCacheTTL,
	}, a2a.NewClient(a2a.DefaultClientConfig(), s.logger), s.bus, s.logger, opts...)

	if err := s.discovery.Start(ctx); err != nil {
		return fmt.Errorf("failed to start discovery: %w", err)
	}
	return nil
}

func (s *Server) initRouter(sink *profileSink) error {
	table := s.cfg.RouterTable()
	r, err := sink.attach(table, s.logger, s.collector)
	if err != nil {
		if errors.Is(err, router.ErrNoProfiles) {
			return ErrNoAgents
		}
		return fmt.Errorf("failed to init router: %w", err)
	}
	s.router = r

	known := r.Table().Profiles
	if !slices.ContainsFunc(known, func(p router.Profile) bool { return p.Name == table.DefaultAgent }) {
		s.logger.Warn("default agent has no routing profile",
			zap.String("default_agent", table.DefaultAgent))
	}
	s.logger.Info("intent router ready", zap.Int("profiles", len(known)))
	return nil
}

// sampleStats pushes bus gauges and per-agent availability to Prometheus.
func (s *Server) sampleStats(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := s.bus.Stats()
			s.collector.RecordBusStats(st.QueueDepth, st.RegisteredAgents, st.ActiveConversations)
			for _, reg := range s.bus.Agents() {
				s.collector.RecordAgentAvailability(reg.Name, reg.Status == bus.AgentStatusActive)
			}
		}
	}
}

// =============================================================================
// HTTP
// =============================================================================

func (s *Server) orchestratorCard() *a2a.AgentCard {
	card := a2a.NewAgentCard(s.cfg.Server.AgentName, s.cfg.Server.AgentVersion).
		AddCapability("intent_routing").
		AddCapability("coordination")
	card.Description = "Routes requests to specialist agents and aggregates their answers"
	return card
}

func (s *Server) sessionStore() handlers.SessionStore {
	if s.cache != nil {
		return handlers.NewCacheSessionStore(s.cache, handlers.DefaultSessionTTL, s.logger)
	}
	return handlers.NewMemorySessionStore(handlers.DefaultSessionTTL)
}

// routes registers every endpoint and wraps the mux in the middleware chain.
func (s *Server) routes(ctx context.Context) http.Handler {
	health := handlers.NewHealthHandler(s.cfg.Server.AgentName, s.logger)
	health.RegisterCheck(handlers.NewCheck("agents", s.checkAgents))
	if s.cache != nil {
		health.RegisterCheck(handlers.NewCheck("redis", s.cache.Ping))
	}

	chat := handlers.NewChatHandler(s.coordinator, s.sessionStore(), s.logger)
	route := handlers.NewRouteHandler(s.router, s.logger)
	stats := handlers.NewStatsHandler(s.bus, s.logger)
	card := handlers.NewCardHandler(s.orchestratorCard())
	streamCfg := handlers.DefaultStreamConfig()
	streamCfg.OriginPatterns = s.cfg.Server.CORSAllowedOrigins
	s.stream = handlers.NewStreamHandler(s.bus, streamCfg, s.logger)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", health.HandleHealth)
	mux.HandleFunc("GET /ready", health.HandleReady)
	mux.HandleFunc("GET /version", health.HandleVersion(Version, BuildTime, GitCommit))
	mux.HandleFunc("GET "+a2a.PathAgentCard, card.HandleCard)

	mux.HandleFunc("POST /chat", chat.HandleChat)
	mux.HandleFunc("POST /route", route.HandleRoute)

	mux.HandleFunc("GET /stats", stats.HandleStats)
	mux.HandleFunc("GET /stats/history", stats.HandleHistory)
	mux.HandleFunc("GET /agents", stats.HandleListAgents)
	mux.HandleFunc("GET /agents/{name}", stats.HandleGetAgent)
	mux.HandleFunc("GET /conversations/{id}", stats.HandleGetConversation)

	mux.HandleFunc("GET /ws/bus", s.stream.HandleStream)

	return Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(ctx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
		MetricsMiddleware(s.collector),
		OTelTracing(),
	)
}

// checkAgents fails readiness while no specialist is active.
func (s *Server) checkAgents(_ context.Context) error {
	for _, reg := range s.bus.Agents() {
		if reg.Name != s.cfg.Server.AgentName && reg.Status == bus.AgentStatusActive {
			return nil
		}
	}
	return errors.New("no active specialist")
}

func (s *Server) startHTTPServer(handler http.Handler) error {
	s.httpManager = server.NewManager(handler, server.Config{
		Name:            "http",
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)
	return s.httpManager.Start()
}

func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	s.metricsManager = server.NewManager(mux, server.Config{
		Name:            "metrics",
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)
	return s.metricsManager.Start()
}

// =============================================================================
// Shutdown
// =============================================================================

// WaitForShutdown blocks until a signal or listener failure, then shuts
// everything down.
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown(context.Background())
	}
	s.Shutdown()
}

// Shutdown stops listeners first, then discovery, the bus and its
// dependents. It is safe to call more than once and after a failed Start.
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(s.shutdown)
}

func (s *Server) shutdown() {
	s.logger.Info("starting graceful shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout())
	defer cancel()

	if s.httpManager != nil && s.httpManager.IsRunning() {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("metrics server shutdown error", zap.Error(err))
		}
	}

	if s.cancel != nil {
		s.cancel()
	}
	if s.discovery != nil {
		s.discovery.Stop()
	}
	if s.correlator != nil {
		s.correlator.Close()
	}
	if s.bus != nil {
		s.bus.Stop()
	}
	s.wg.Wait()

	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.logger.Error("redis close error", zap.Error(err))
		}
	}
	if s.telemetry != nil {
		if err := s.telemetry.Shutdown(ctx); err != nil {
			s.logger.Error("telemetry shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("graceful shutdown completed")
}

func (s *Server) shutdownTimeout() time.Duration {
	if s.cfg.Server.ShutdownTimeout > 0 {
		return s.cfg.Server.ShutdownTimeout
	}
	return 15 * time.Second
}

// =============================================================================
// Router bootstrap
// =============================================================================

// profileSink collects profiles published by discovery before the router
// exists and forwards them once it does.
type profileSink struct {
	mu      sync.Mutex
	router  *router.IntentRouter
	pending []router.Profile
}

func (p *profileSink) UpsertProfiles(profiles ...router.Profile) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.router != nil {
		return p.router.UpsertProfiles(profiles...)
	}
	for _, np := range profiles {
		i := slices.IndexFunc(p.pending, func(existing router.Profile) bool { return existing.Name == np.Name })
		if i >= 0 {
			p.pending[i] = np
		} else {
			p.pending = append(p.pending, np)
		}
	}
	return nil
}

// attach builds the router from table plus everything discovered so far.
// Discovered profiles replace configured ones with the same name.
func (p *profileSink) attach(table router.Table, logger *zap.Logger, collector *metrics.Collector) (*router.IntentRouter, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	profiles := slices.Clone(table.Profiles)
	for _, np := range p.pending {
		i := slices.IndexFunc(profiles, func(existing router.Profile) bool { return existing.Name == np.Name })
		if i >= 0 {
			profiles[i] = np
		} else {
			profiles = append(profiles, np)
		}
	}
	table.Profiles = profiles

	r, err := router.NewIntentRouter(table, logger, collector)
	if err != nil {
		return nil, err
	}
	p.router = r
	p.pending = nil
	return r, nil
}
