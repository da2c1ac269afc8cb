package correlator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/a2abus/agent/bus"
	"github.com/BaSui01/a2abus/agent/protocol/a2a"
	"github.com/BaSui01/a2abus/agent/transport"
	"github.com/BaSui01/a2abus/internal/metrics"
)

// Status is the outcome of one request/response exchange.
type Status string

const (
	StatusSuccess Status = "success"
	StatusTimeout Status = "timeout"
	StatusError   Status = "error"
)

// DefaultTimeout applies when SendAndWait is called without one.
const DefaultTimeout = 30 * time.Second

var (
	// ErrDuplicateWaiter is returned when a live waiter already uses the id.
	ErrDuplicateWaiter = errors.New("correlator: duplicate waiter")
	// ErrMissingTarget is returned when no recipient is given.
	ErrMissingTarget = errors.New("correlator: missing target agent")
)

// Result is what a waiting caller receives.
type Result struct {
	Status    Status         `json:"status"`
	RequestID string         `json:"requestId"`
	From      string         `json:"from,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Error     string         `json:"error,omitempty"`
	Elapsed   time.Duration  `json:"elapsed"`
}

// OK reports whether the exchange succeeded.
func (r *Result) OK() bool {
	return r != nil && r.Status == StatusSuccess
}

// Bus is the part of the message bus the correlator needs.
type Bus interface {
	Send(ctx context.Context, req bus.SendRequest) (string, error)
	SetHandler(msgType a2a.MessageType, h bus.Handler) error
	RegisterAgent(name string, info bus.AgentInfo) error
	Subscribe(obs bus.Observer) func()
}

type waiter struct {
	ch       chan *Result
	resolved atomic.Bool
	started  time.Time
}

// resolve delivers r if nothing was delivered yet.
func (w *waiter) resolve(r *Result) bool {
	if !w.resolved.CompareAndSwap(false, true) {
		return false
	}
	r.Elapsed = time.Since(w.started)
	w.ch <- r
	return true
}

// Correlator pairs requests sent on the bus with their responses. It owns
// the pending table: one single-resolution waiter per outstanding request.
type Correlator struct {
	bus     Bus
	self    string
	logger  *zap.Logger
	metrics *metrics.Collector

	mu      sync.Mutex
	pending map[string]*waiter

	unsubscribe func()
}

// Option configures a Correlator.
type Option func(*Correlator)

// WithMetrics records exchange outcomes.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Correlator) { c.metrics = m }
}

// New registers self on the bus under a local address, installs the
// response handler and subscribes to routing failures. It must be called
// before the bus starts.
func New(b Bus, self string, logger *zap.Logger, opts ...Option) (*Correlator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Correlator{
		bus:     b,
		self:    self,
		logger:  logger.With(zap.String("component", "correlator")),
		pending: make(map[string]*waiter),
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := b.RegisterAgent(self, bus.AgentInfo{Address: transport.LocalAddress(self)}); err != nil {
		return nil, fmt.Errorf("register %s: %w", self, err)
	}
	if err := b.SetHandler(a2a.MessageTypeResponse, c.handleResponse); err != nil {
		return nil, fmt.Errorf("install response handler: %w", err)
	}
	c.unsubscribe = b.Subscribe(c.observe)
	return c, nil
}

// Close stops listening for routing failures.
func (c *Correlator) Close() {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
}

// Self is the agent name requests are sent from.
func (c *Correlator) Self() string {
	return c.self
}

// Pending returns the number of live waiters.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// SendAndWait sends {action, parameters} to the agent and blocks until
// its response, the timeout or ctx cancellation. Timeouts and delivery
// failures come back as a Result; only invalid input and a rejected send
// are errors.
func (c *Correlator) SendAndWait(ctx context.Context, to, action string, params map[string]any, conversationID string, timeout time.Duration) (*Result, error) {
	return c.sendAndWait(ctx, uuid.New().String(), to, action, params, conversationID, timeout)
}

func (c *Correlator) sendAndWait(ctx context.Context, id, to, action string, params map[string]any, conversationID string, timeout time.Duration) (*Result, error) {
	if to == "" {
		return nil, ErrMissingTarget
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	w, err := c.register(id)
	if err != nil {
		return nil, err
	}
	defer c.remove(id)

	_, err = c.bus.Send(ctx, bus.SendRequest{
		MessageID:      id,
		From:           c.self,
		To:             to,
		Type:           a2a.MessageTypeRequest,
		Payload:        map[string]any{"action": action, "parameters": params},
		ConversationID: conversationID,
		TTL:            timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("send to %s: %w", to, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var res *Result
	select {
	case res = <-w.ch:
	case <-timer.C:
		res = c.giveUp(w, id, to, fmt.Sprintf("no response from %s within %s", to, timeout))
	case <-ctx.Done():
		res = c.giveUp(w, id, to, ctx.Err().Error())
	}
	c.metrics.RecordCorrelation(to, string(res.Status), res.Elapsed)
	return res, nil
}

// giveUp resolves the waiter as timed out unless a response won the race.
func (c *Correlator) giveUp(w *waiter, id, to, reason string) *Result {
	if w.resolve(&Result{Status: StatusTimeout, RequestID: id, From: to, Error: reason}) {
		c.logger.Warn("request timed out", zap.String("request_id", id), zap.String("to", to), zap.String("reason", reason))
	}
	return <-w.ch
}

func (c *Correlator) register(id string) (*waiter, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.pending[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateWaiter, id)
	}
	w := &waiter{ch: make(chan *Result, 1), started: time.Now()}
	c.pending[id] = w
	return w, nil
}

func (c *Correlator) remove(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Correlator) lookup(id string) (*waiter, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.pending[id]
	return w, ok
}

// handleResponse is installed as the bus Response handler.
func (c *Correlator) handleResponse(_ context.Context, msg *a2a.Message) error {
	w, ok := c.lookup(msg.CorrelationID)
	if !ok {
		c.logger.Warn("discarding late or unknown response",
			zap.String("correlation_id", msg.CorrelationID),
			zap.String("from", msg.FromAgent),
		)
		return nil
	}

	res := &Result{
		Status:    StatusSuccess,
		RequestID: msg.CorrelationID,
		From:      msg.FromAgent,
		Payload:   msg.Payload,
	}
	if status, _ := msg.Payload["status"].(string); status == string(StatusError) {
		res.Status = StatusError
		res.Error, _ = msg.Payload["error"].(string)
	}
	if !w.resolve(res) {
		c.logger.Warn("discarding duplicate response",
			zap.String("correlation_id", msg.CorrelationID),
			zap.String("from", msg.FromAgent),
		)
	}
	return nil
}

// observe resolves waiters whose request could not be delivered.
func (c *Correlator) observe(ev bus.Event) {
	if ev.Type != a2a.MessageTypeRequest || ev.Kind == bus.EventDelivered {
		return
	}
	w, ok := c.lookup(ev.MessageID)
	if !ok {
		return
	}
	w.resolve(&Result{
		Status:    StatusError,
		RequestID: ev.MessageID,
		From:      ev.To,
		Error:     fmt.Sprintf("request %s: %s", ev.Kind, ev.Reason),
	})
}
