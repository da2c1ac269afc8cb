package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/a2abus/internal/tlsutil"
)

// maxResponseBytes is the default cap on a reply body.
const maxResponseBytes = 4 << 20

// ClientConfig holds configuration for the A2A HTTP client.
type ClientConfig struct {
	// ProtocolVersion is sent in X-A2A-Protocol-Version.
	ProtocolVersion string
	// CardRetryCount is the number of retries for agent card fetches.
	// Message deliveries are never retried here.
	CardRetryCount int
	// CardRetryDelay is the delay between card fetch attempts.
	CardRetryDelay time.Duration
	// CardCacheTTL is how long a fetched card is reused.
	CardCacheTTL time.Duration
	// MaxResponseBytes caps a reply body; a longer reply is an error.
	MaxResponseBytes int64
	// Headers are added to every request.
	Headers map[string]string
	// HTTP tunes the underlying client.
	HTTP tlsutil.ClientOptions
}

// DefaultClientConfig returns a ClientConfig with sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ProtocolVersion:  ProtocolVersion,
		CardRetryCount:   2,
		CardRetryDelay:   500 * time.Millisecond,
		CardCacheTTL:     5 * time.Minute,
		MaxResponseBytes: maxResponseBytes,
		Headers:          make(map[string]string),
		HTTP:             tlsutil.DefaultClientOptions(),
	}
}

// Client speaks the agent HTTP surface: card discovery, message delivery
// and health probes.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *zap.Logger

	cacheMu   sync.RWMutex
	cardCache map[string]cachedCard
}

type cachedCard struct {
	card      *AgentCard
	expiresAt time.Time
}

// NewClient creates a client.
func NewClient(config ClientConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.ProtocolVersion == "" {
		config.ProtocolVersion = ProtocolVersion
	}
	return &Client{
		config:     config,
		httpClient: tlsutil.AgentHTTPClient(config.HTTP),
		logger:     logger.With(zap.String("component", "a2a_client")),
		cardCache:  make(map[string]cachedCard),
	}
}

// Discover fetches the agent card served under baseURL.
func (c *Client) Discover(ctx context.Context, baseURL string) (*AgentCard, error) {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		return nil, fmt.Errorf("%w: empty url", ErrRemoteUnavailable)
	}

	c.cacheMu.RLock()
	if cached, ok := c.cardCache[baseURL]; ok && time.Now().Before(cached.expiresAt) {
		c.cacheMu.RUnlock()
		return cached.card, nil
	}
	c.cacheMu.RUnlock()

	var (
		body    []byte
		lastErr error
	)
	for attempt := 0; attempt <= c.config.CardRetryCount; attempt++ {
		body, lastErr = c.get(ctx, baseURL+PathAgentCard)
		if lastErr == nil {
			break
		}
		if attempt < c.config.CardRetryCount {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.config.CardRetryDelay):
			}
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}

	var card AgentCard
	if err := json.Unmarshal(body, &card); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if err := card.Validate(); err != nil {
		return nil, err
	}
	if card.URL == "" {
		card.URL = baseURL
	}

	if c.config.CardCacheTTL > 0 {
		c.cacheMu.Lock()
		c.cardCache[baseURL] = cachedCard{card: &card, expiresAt: time.Now().Add(c.config.CardCacheTTL)}
		c.cacheMu.Unlock()
	}
	return &card, nil
}

// InvalidateCard drops a cached card.
func (c *Client) InvalidateCard(baseURL string) {
	c.cacheMu.Lock()
	delete(c.cardCache, strings.TrimRight(baseURL, "/"))
	c.cacheMu.Unlock()
}

// Deliver POSTs env to the agent's message endpoint and returns the raw
// reply body. Non-2xx answers are errors.
func (c *Client) Deliver(ctx context.Context, baseURL string, env *Envelope) (json.RawMessage, error) {
	if env == nil || env.Message == nil {
		return nil, fmt.Errorf("%w: nil message", ErrInvalidMessage)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}

	url := strings.TrimRight(baseURL, "/") + PathMessages
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderMessageID, env.Message.ID)
	req.Header.Set(HeaderFromAgent, env.Message.FromAgent)
	req.Header.Set(HeaderProtocolVersion, c.config.ProtocolVersion)
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := c.readBody(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status code %d", ErrRemoteUnavailable, resp.StatusCode)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	return json.RawMessage(body), nil
}

// CheckHealth GETs the agent's health endpoint; any 2xx is healthy.
func (c *Client) CheckHealth(ctx context.Context, baseURL string) error {
	_, err := c.get(ctx, strings.TrimRight(baseURL, "/")+PathHealth)
	return err
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := c.readBody(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status code %d", ErrRemoteUnavailable, resp.StatusCode)
	}
	return body, nil
}

// readBody reads at most MaxResponseBytes and fails on anything longer, so
// a truncated reply is never mistaken for a complete one.
func (c *Client) readBody(r io.Reader) ([]byte, error) {
	limit := c.config.MaxResponseBytes
	if limit <= 0 {
		limit = maxResponseBytes
	}
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, limit)
	}
	return body, nil
}
