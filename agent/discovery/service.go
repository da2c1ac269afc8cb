package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/a2abus/agent/bus"
	"github.com/BaSui01/a2abus/agent/protocol/a2a"
	"github.com/BaSui01/a2abus/agent/router"
	"github.com/BaSui01/a2abus/internal/cache"
)

// ErrAlreadyRunning is returned by a second Start.
var ErrAlreadyRunning = errors.New("discovery: already running")

// CardFetcher fetches an agent card from a base URL.
type CardFetcher interface {
	Discover(ctx context.Context, baseURL string) (*a2a.AgentCard, error)
}

// Registrar is the part of the bus discovery writes to.
type Registrar interface {
	RegisterAgent(name string, info bus.AgentInfo) error
	Agents() []bus.Registration
	CheckAvailability(ctx context.Context, name string) bool
}

// ProfileSink receives routing profiles built from cards.
type ProfileSink interface {
	UpsertProfiles(profiles ...router.Profile) error
}

// CardCache shares fetched cards between bus nodes.
type CardCache interface {
	GetJSON(ctx context.Context, key string, dest any) error
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

var _ CardCache = (*cache.Manager)(nil)

// Config controls refresh and probing.
type Config struct {
	// Self is the local node's registration name; it is never probed.
	Self            string
	Addresses       []string
	RefreshInterval time.Duration
	ProbeInterval   time.Duration
	ProbeTimeout    time.Duration
	CardCacheTTL    time.Duration
	// FetchConcurrency bounds parallel card fetches.
	FetchConcurrency int
}

// DefaultConfig returns 5m refreshes and 30s probes.
func DefaultConfig() Config {
	return Config{
		RefreshInterval:  5 * time.Minute,
		ProbeInterval:    30 * time.Second,
		ProbeTimeout:     5 * time.Second,
		CardCacheTTL:     10 * time.Minute,
		FetchConcurrency: 8,
	}
}

// Service turns agent cards into bus registrations and router profiles and
// keeps registration status in line with /health.
type Service struct {
	config    Config
	fetcher   CardFetcher
	registrar Registrar
	profiles  ProfileSink
	cache     CardCache
	health    *HealthChecker
	logger    *zap.Logger

	mu      sync.Mutex
	cards   map[string]*a2a.AgentCard
	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// Option configures a Service.
type Option func(*Service)

// WithProfileSink publishes a router profile for every discovered card.
func WithProfileSink(p ProfileSink) Option {
	return func(s *Service) { s.profiles = p }
}

// WithCardCache reads and writes cards through c.
func WithCardCache(c CardCache) Option {
	return func(s *Service) { s.cache = c }
}

// NewService creates a discovery service.
func NewService(config Config, fetcher CardFetcher, registrar Registrar, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := DefaultConfig()
	if config.RefreshInterval <= 0 {
		config.RefreshInterval = d.RefreshInterval
	}
	if config.ProbeInterval <= 0 {
		config.ProbeInterval = d.ProbeInterval
	}
	if config.ProbeTimeout <= 0 {
		config.ProbeTimeout = d.ProbeTimeout
	}
	if config.CardCacheTTL <= 0 {
		config.CardCacheTTL = d.CardCacheTTL
	}
	if config.FetchConcurrency <= 0 {
		config.FetchConcurrency = d.FetchConcurrency
	}

	s := &Service{
		config:    config,
		fetcher:   fetcher,
		registrar: registrar,
		logger:    logger.With(zap.String("component", "discovery")),
		cards:     make(map[string]*a2a.AgentCard),
	}
	for _, opt := range opts {
		opt(s)
	}
	hc := HealthCheckerConfig{
		Interval: config.ProbeInterval,
		Timeout:  config.ProbeTimeout,
	}
	if config.Self != "" {
		hc.Skip = []string{config.Self}
	}
	s.health = NewHealthChecker(hc, registrar, logger)
	return s
}

// Health returns the health checker.
func (s *Service) Health() *HealthChecker {
	return s.health
}

// DiscoverAll fetches every configured card in parallel and registers the
// agents found. Failed addresses are reported together; the others are
// still registered.
func (s *Service) DiscoverAll(ctx context.Context) ([]*a2a.AgentCard, error) {
	cards := make([]*a2a.AgentCard, len(s.config.Addresses))
	errs := make([]error, len(s.config.Addresses))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.FetchConcurrency)
	for i, addr := range s.config.Addresses {
		g.Go(func() error {
			card, err := s.Discover(gctx, addr)
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", addr, err)
				return nil
			}
			cards[i] = card
			return nil
		})
	}
	_ = g.Wait()

	found := make([]*a2a.AgentCard, 0, len(cards))
	for _, c := range cards {
		if c != nil {
			found = append(found, c)
		}
	}
	err := errors.Join(errs...)
	s.logger.Info("discovery pass finished",
		zap.Int("addresses", len(s.config.Addresses)),
		zap.Int("discovered", len(found)),
		zap.Bool("partial", err != nil),
	)
	return found, err
}

// Discover fetches one card, from the cache when possible, and registers
// the agent it describes.
func (s *Service) Discover(ctx context.Context, address string) (*a2a.AgentCard, error) {
	card, err := s.card(ctx, address)
	if err != nil {
		return nil, err
	}
	if err := card.Validate(); err != nil {
		return nil, err
	}

	if err := s.registrar.RegisterAgent(card.Name, agentInfo(card, address)); err != nil {
		return nil, fmt.Errorf("register %s: %w", card.Name, err)
	}
	if s.profiles != nil {
		if err := s.profiles.UpsertProfiles(Profile(card)); err != nil {
			return nil, fmt.Errorf("profile %s: %w", card.Name, err)
		}
	}

	s.mu.Lock()
	s.cards[card.Name] = card
	s.mu.Unlock()

	s.logger.Debug("agent discovered",
		zap.String("agent", card.Name),
		zap.String("address", address),
		zap.Strings("capabilities", card.Capabilities),
	)
	return card, nil
}

func (s *Service) card(ctx context.Context, address string) (*a2a.AgentCard, error) {
	key := "card:" + address
	if s.cache != nil {
		var cached a2a.AgentCard
		err := s.cache.GetJSON(ctx, key, &cached)
		if err == nil {
			return &cached, nil
		}
		if !cache.IsCacheMiss(err) {
			s.logger.Warn("card cache read failed", zap.String("address", address), zap.Error(err))
		}
	}

	card, err := s.fetcher.Discover(ctx, address)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, card, s.config.CardCacheTTL); err != nil {
			s.logger.Warn("card cache write failed", zap.String("address", address), zap.Error(err))
		}
	}
	return card, nil
}

// Cards returns the discovered cards keyed by agent name.
func (s *Service) Cards() map[string]*a2a.AgentCard {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*a2a.AgentCard, len(s.cards))
	for k, v := range s.cards {
		out[k] = v
	}
	return out
}

// Start runs a first discovery pass, then refreshes cards and probes health
// in the background until Stop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	s.done = make(chan struct{})
	s.mu.Unlock()

	if len(s.config.Addresses) > 0 {
		if _, err := s.DiscoverAll(ctx); err != nil {
			s.logger.Warn("initial discovery incomplete", zap.Error(err))
		}
	}

	s.wg.Add(1)
	go s.refreshLoop()
	s.health.Start()

	s.logger.Info("discovery service started",
		zap.Duration("refresh_interval", s.config.RefreshInterval),
		zap.Duration("probe_interval", s.config.ProbeInterval),
	)
	return nil
}

// Stop ends the background loops. It is idempotent.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.done)
	s.mu.Unlock()

	s.health.Stop()
	s.wg.Wait()
	s.logger.Info("discovery service stopped")
}

func (s *Service) refreshLoop() {
	defer s.wg.Done()
	if len(s.config.Addresses) == 0 {
		return
	}

	ticker := time.NewTicker(s.config.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.config.RefreshInterval)
			if _, err := s.DiscoverAll(ctx); err != nil {
				s.logger.Warn("discovery refresh incomplete", zap.Error(err))
			}
			cancel()
		}
	}
}

// Profile derives a routing profile from a card. Capabilities become
// secondary keywords with underscores read as spaces.
func Profile(card *a2a.AgentCard) router.Profile {
	secondary := make([]string, 0, len(card.Capabilities))
	for _, c := range card.Capabilities {
		secondary = append(secondary, strings.ReplaceAll(c, "_", " "))
	}
	return router.Profile{
		Name:              card.Name,
		PrimaryKeywords:   card.PrimaryKeywords,
		SecondaryKeywords: secondary,
		DomainWords:       card.DomainWords,
		Transactional:     card.Transactional,
		Priority:          card.Priority,
	}
}

func agentInfo(card *a2a.AgentCard, address string) bus.AgentInfo {
	if card.URL != "" {
		address = card.URL
	}
	keywords := make([]string, 0, len(card.PrimaryKeywords)+len(card.Capabilities))
	keywords = append(keywords, card.PrimaryKeywords...)
	keywords = append(keywords, card.Capabilities...)
	return bus.AgentInfo{
		Address:      address,
		Capabilities: card.Capabilities,
		Keywords:     keywords,
		Priority:     card.Priority,
		Metadata:     card.Metadata,
	}
}
