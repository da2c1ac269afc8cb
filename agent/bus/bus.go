package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/a2abus/agent/protocol/a2a"
	"github.com/BaSui01/a2abus/agent/transport"
)

// Config holds bus sizing and timing.
type Config struct {
	// NodeName is recorded in routing history hops.
	NodeName string `yaml:"node_name" env:"NODE_NAME"`
	// QueueSize is the capacity of the FIFO inbound queue.
	QueueSize int `yaml:"queue_size" env:"QUEUE_SIZE"`
	// LaneSize is the buffer of each per-recipient delivery lane.
	LaneSize int `yaml:"lane_size" env:"LANE_SIZE"`
	// HistorySize is the capacity of the routed-message ring.
	HistorySize int `yaml:"history_size" env:"HISTORY_SIZE"`
	// DefaultTTL applies to messages sent without a TTL.
	DefaultTTL time.Duration `yaml:"default_ttl" env:"DEFAULT_TTL"`
	// CleanupInterval is how often idle conversations are swept.
	CleanupInterval time.Duration `yaml:"cleanup_interval" env:"CLEANUP_INTERVAL"`
	// InactivityWindow is how long a conversation may stay idle.
	InactivityWindow time.Duration `yaml:"inactivity_window" env:"INACTIVITY_WINDOW"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		NodeName:         "bus",
		QueueSize:        1024,
		LaneSize:         64,
		HistorySize:      1000,
		DefaultTTL:       a2a.DefaultTTLSeconds * time.Second,
		CleanupInterval:  60 * time.Second,
		InactivityWindow: time.Hour,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.NodeName == "" {
		c.NodeName = d.NodeName
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.LaneSize <= 0 {
		c.LaneSize = d.LaneSize
	}
	if c.HistorySize <= 0 {
		c.HistorySize = d.HistorySize
	}
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = d.DefaultTTL
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = d.CleanupInterval
	}
	if c.InactivityWindow <= 0 {
		c.InactivityWindow = d.InactivityWindow
	}
	return c
}

// Handler consumes a routed message in place of transport delivery.
// Handlers run on the recipient's delivery lane and must not block for long.
type Handler func(ctx context.Context, msg *a2a.Message) error

// SendRequest describes one point-to-point message.
type SendRequest struct {
	From    string
	To      string
	Type    a2a.MessageType
	Payload map[string]any
	// Optional fields.
	MessageID      string
	ConversationID string
	Priority       a2a.Priority
	CorrelationID  string
	TTL            time.Duration
}

// Stats is a point-in-time view of the bus.
type Stats struct {
	RegisteredAgents      int              `json:"registeredAgents"`
	ActiveConversations   int              `json:"activeConversations"`
	QueueDepth            int              `json:"queueDepth"`
	TotalProcessed        int64            `json:"totalProcessed"`
	TotalDropped          int64            `json:"totalDropped"`
	TotalFailed           int64            `json:"totalFailed"`
	PerAgentMessageCounts map[string]int64 `json:"perAgentMessageCounts"`
}

// Option configures a Bus.
type Option func(*Bus)

// WithClock overrides the time source used for expiry and cleanup.
func WithClock(now func() time.Time) Option {
	return func(b *Bus) { b.now = now }
}

type delivery struct {
	msg    *a2a.Message
	target string
}

// Bus routes messages between registered agents. A single loop dequeues in
// FIFO order and hands each message to the recipient's delivery lane, so
// ordering between any sender and recipient is preserved while one slow
// agent does not hold up the others.
type Bus struct {
	config    Config
	transport transport.Transport
	logger    *zap.Logger
	now       func() time.Time

	registry      *registry
	conversations *conversationTable
	history       *historyRing

	requestHandler   Handler
	responseHandler  Handler
	eventHandler     Handler
	heartbeatHandler Handler

	queue   chan *a2a.Message
	lanesMu sync.Mutex
	lanes   map[string]chan delivery

	observersMu sync.RWMutex
	observers   map[uint64]Observer
	nextObs     uint64

	processed atomic.Int64
	dropped   atomic.Int64
	failed    atomic.Int64

	started atomic.Bool
	closed  atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a bus that delivers through t. Start must be called before
// messages are routed; Send may be called earlier and queues.
func New(config Config, t transport.Transport, logger *zap.Logger, opts ...Option) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	config = config.withDefaults()
	b := &Bus{
		config:        config,
		transport:     t,
		logger:        logger.With(zap.String("component", "message_bus")),
		now:           time.Now,
		registry:      newRegistry(),
		conversations: newConversationTable(),
		history:       newHistoryRing(config.HistorySize),
		queue:         make(chan *a2a.Message, config.QueueSize),
		lanes:         make(map[string]chan delivery),
		observers:     make(map[uint64]Observer),
	}
	b.heartbeatHandler = b.handleHeartbeat
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SetHandler installs the handler for one message type. The table is
// fixed once the bus starts.
func (b *Bus) SetHandler(msgType a2a.MessageType, h Handler) error {
	if b.started.Load() {
		return ErrAlreadyStarted
	}
	switch msgType {
	case a2a.MessageTypeRequest:
		b.requestHandler = h
	case a2a.MessageTypeResponse:
		b.responseHandler = h
	case a2a.MessageTypeEvent:
		b.eventHandler = h
	case a2a.MessageTypeHeartbeat:
		b.heartbeatHandler = h
	default:
		return fmt.Errorf("%w: %q", ErrInvalidType, msgType)
	}
	return nil
}

func (b *Bus) handlerFor(msgType a2a.MessageType) Handler {
	switch msgType {
	case a2a.MessageTypeRequest:
		return b.requestHandler
	case a2a.MessageTypeResponse:
		return b.responseHandler
	case a2a.MessageTypeEvent:
		return b.eventHandler
	case a2a.MessageTypeHeartbeat:
		return b.heartbeatHandler
	default:
		return nil
	}
}

// Start launches the processing and cleanup loops.
func (b *Bus) Start(ctx context.Context) error {
	if b.closed.Load() {
		return ErrClosed
	}
	if !b.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	b.ctx, b.cancel = context.WithCancel(ctx)

	b.wg.Add(2)
	go b.processLoop()
	go b.cleanupLoop()

	b.logger.Info("message bus started",
		zap.Int("queue_size", b.config.QueueSize),
		zap.Int("history_size", b.config.HistorySize),
	)
	return nil
}

// Stop halts all loops and waits for them. Messages still queued are
// abandoned.
func (b *Bus) Stop() {
	if !b.closed.CompareAndSwap(false, true) {
		return
	}
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()
	b.logger.Info("message bus stopped",
		zap.Int64("processed", b.processed.Load()),
		zap.Int64("dropped", b.dropped.Load()),
		zap.Int64("failed", b.failed.Load()),
	)
}

// RegisterAgent creates or overwrites the registration for name.
func (b *Bus) RegisterAgent(name string, info AgentInfo) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrMissingName
	}
	if strings.TrimSpace(info.Address) == "" {
		return ErrMissingAddress
	}
	existed := b.registry.upsert(name, info, b.now())
	b.logger.Info("agent registered",
		zap.String("agent", name),
		zap.String("address", info.Address),
		zap.Bool("reregistered", existed),
	)
	return nil
}

// Agent returns the registration for name.
func (b *Bus) Agent(name string) (Registration, bool) {
	return b.registry.get(name)
}

// Agents returns all registrations sorted by name.
func (b *Bus) Agents() []Registration {
	return b.registry.list()
}

// SetAgentStatus flips an agent between active and unavailable.
func (b *Bus) SetAgentStatus(name string, status AgentStatus) error {
	if !status.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	prev, err := b.registry.setStatus(name, status)
	if err != nil {
		return err
	}
	if prev != status {
		b.logger.Info("agent status changed",
			zap.String("agent", name),
			zap.String("from", string(prev)),
			zap.String("to", string(status)),
		)
	}
	return nil
}

// CheckAvailability probes the agent's address and records the result.
func (b *Bus) CheckAvailability(ctx context.Context, name string) bool {
	reg, ok := b.registry.get(name)
	if !ok {
		return false
	}
	err := b.transport.Probe(ctx, reg.Address)
	status := AgentStatusActive
	if err != nil {
		status = AgentStatusUnavailable
		b.logger.Debug("availability probe failed", zap.String("agent", name), zap.Error(err))
	}
	_ = b.SetAgentStatus(name, status)
	return err == nil
}

// Send validates, stamps and enqueues one message and returns its id. It
// never waits for delivery.
func (b *Bus) Send(ctx context.Context, req SendRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	msg, err := b.buildMessage(req)
	if err != nil {
		return "", err
	}
	if err := b.submit(msg); err != nil {
		return "", err
	}
	return msg.ID, nil
}

// Broadcast sends one message per target, all sharing a new conversation
// at high priority. With no targets every registered agent is addressed.
// The sender never receives its own broadcast.
func (b *Bus) Broadcast(ctx context.Context, from string, msgType a2a.MessageType, payload map[string]any, targets ...string) ([]string, error) {
	if strings.TrimSpace(from) == "" {
		return nil, ErrMissingSender
	}
	if len(targets) == 0 {
		targets = b.registry.names()
	}

	conversationID := uuid.New().String()
	seen := make(map[string]struct{}, len(targets))
	ids := make([]string, 0, len(targets))
	for _, to := range targets {
		if to == from || to == a2a.BroadcastTarget {
			continue
		}
		if _, dup := seen[to]; dup {
			continue
		}
		seen[to] = struct{}{}

		id, err := b.Send(ctx, SendRequest{
			From:           from,
			To:             to,
			Type:           msgType,
			Payload:        payload,
			ConversationID: conversationID,
			Priority:       a2a.PriorityHigh,
		})
		if err != nil {
			return ids, fmt.Errorf("broadcast to %s: %w", to, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Conversation returns the conversation snapshot for id.
func (b *Bus) Conversation(id string) (Conversation, bool) {
	return b.conversations.get(id)
}

// History returns up to limit of the most recently routed messages,
// oldest first.
func (b *Bus) History(limit int) []*a2a.Message {
	return b.history.snapshot(limit)
}

// Stats returns current counters.
func (b *Bus) Stats() Stats {
	depth := len(b.queue)
	b.lanesMu.Lock()
	for _, lane := range b.lanes {
		depth += len(lane)
	}
	b.lanesMu.Unlock()

	return Stats{
		RegisteredAgents:      b.registry.len(),
		ActiveConversations:   b.conversations.len(),
		QueueDepth:            depth,
		TotalProcessed:        b.processed.Load(),
		TotalDropped:          b.dropped.Load(),
		TotalFailed:           b.failed.Load(),
		PerAgentMessageCounts: b.registry.counts(),
	}
}

func (b *Bus) buildMessage(req SendRequest) (*a2a.Message, error) {
	if strings.TrimSpace(req.From) == "" {
		return nil, ErrMissingSender
	}
	if strings.TrimSpace(req.To) == "" {
		return nil, ErrMissingRecipient
	}
	if req.Type == "" {
		req.Type = a2a.MessageTypeRequest
	}
	if !req.Type.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidType, req.Type)
	}
	if req.Priority != "" && !req.Priority.IsValid() {
		return nil, fmt.Errorf("%w: %q", a2a.ErrMessageInvalidPriority, req.Priority)
	}
	if req.Type == a2a.MessageTypeResponse && req.CorrelationID == "" {
		return nil, a2a.ErrMessageMissingCorrelation
	}

	msg := a2a.NewMessage(req.Type, req.From, req.To, req.Payload)
	msg.CreatedAt = b.now().UTC()
	if req.MessageID != "" {
		msg.ID = req.MessageID
	}
	if req.ConversationID != "" {
		msg.ConversationID = req.ConversationID
	}
	if req.Priority != "" {
		msg.Priority = req.Priority
	}
	msg.CorrelationID = req.CorrelationID
	ttl := req.TTL
	if ttl <= 0 {
		ttl = b.config.DefaultTTL
	}
	msg.TTLSeconds = int(math.Ceil(ttl.Seconds()))
	return msg, nil
}

// submit records the message and puts it on the queue without blocking.
func (b *Bus) submit(msg *a2a.Message) error {
	if b.closed.Load() {
		return ErrClosed
	}
	msg.AddHop(b.config.NodeName, a2a.HopQueued, "")
	select {
	case b.queue <- msg:
	default:
		b.logger.Warn("queue full, message rejected",
			zap.String("message_id", msg.ID),
			zap.String("from", msg.FromAgent),
			zap.String("to", msg.ToAgent),
		)
		return ErrQueueFull
	}
	b.conversations.touch(msg.ConversationID, b.now(), msg.FromAgent, participant(msg.ToAgent))
	b.registry.incrementCount(msg.FromAgent)
	return nil
}

func participant(to string) string {
	if to == a2a.BroadcastTarget {
		return ""
	}
	return to
}

// =============================================================================
// Processing
// =============================================================================

func (b *Bus) processLoop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.ctx.Done():
			return
		case msg := <-b.queue:
			b.processed.Add(1)
			b.process(msg)
		}
	}
}

// process runs on the single consumer goroutine. It decides the fate of a
// message and hands deliverable ones to their lanes in dequeue order.
func (b *Bus) process(msg *a2a.Message) {
	defer func() {
		if r := recover(); r != nil {
			b.failed.Add(1)
			b.logger.Error("panic while routing message",
				zap.String("message_id", msg.ID),
				zap.Any("panic", r),
			)
		}
	}()

	if msg.IsExpiredAt(b.now()) {
		b.expire(msg)
		return
	}

	if msg.IsBroadcast() {
		targets := 0
		for _, name := range b.registry.names() {
			if name == msg.FromAgent {
				continue
			}
			b.dispatch(delivery{msg: msg, target: name})
			targets++
		}
		if targets == 0 {
			b.drop(msg, "no broadcast targets")
			return
		}
		b.history.add(msg)
		return
	}

	if !b.registry.has(msg.ToAgent) {
		b.drop(msg, "target agent not registered")
		return
	}
	b.dispatch(delivery{msg: msg, target: msg.ToAgent})
}

func (b *Bus) dispatch(d delivery) {
	lane := b.lane(d.target)
	select {
	case lane <- d:
	case <-b.ctx.Done():
	}
}

func (b *Bus) lane(target string) chan delivery {
	b.lanesMu.Lock()
	defer b.lanesMu.Unlock()
	if lane, ok := b.lanes[target]; ok {
		return lane
	}
	lane := make(chan delivery, b.config.LaneSize)
	b.lanes[target] = lane
	b.wg.Add(1)
	go b.laneLoop(lane)
	return lane
}

func (b *Bus) laneLoop(lane chan delivery) {
	defer b.wg.Done()
	for {
		select {
		case <-b.ctx.Done():
			return
		case d := <-lane:
			b.deliver(d)
		}
	}
}

func (b *Bus) deliver(d delivery) {
	msg := d.msg
	defer func() {
		if r := recover(); r != nil {
			b.failed.Add(1)
			msg.AddHop(b.config.NodeName, a2a.HopFailed, fmt.Sprintf("panic: %v", r))
			b.logger.Error("panic while delivering message",
				zap.String("message_id", msg.ID),
				zap.String("to", d.target),
				zap.Any("panic", r),
			)
		}
	}()

	// A message may expire while waiting in its lane.
	if msg.IsExpiredAt(b.now()) {
		b.expire(msg)
		return
	}

	reg, ok := b.registry.get(d.target)
	if !ok {
		b.drop(msg, "target agent not registered")
		return
	}

	start := time.Now()
	var (
		raw json.RawMessage
		err error
	)
	if h := b.handlerFor(msg.Type); h != nil {
		err = h(b.ctx, msg)
	} else {
		raw, err = b.transport.Deliver(b.ctx, reg.Address, msg)
	}
	latency := time.Since(start)

	if err != nil {
		b.failed.Add(1)
		msg.AddHop(b.config.NodeName, a2a.HopFailed, err.Error())
		b.logger.Warn("delivery failed",
			zap.String("message_id", msg.ID),
			zap.String("to", d.target),
			zap.String("type", msg.Type.String()),
			zap.Duration("latency", latency),
			zap.Error(err),
		)
		b.emit(newEvent(EventFailed, msg, d.target, err.Error(), latency))
	} else {
		msg.AddHop(b.config.NodeName, a2a.HopDelivered, d.target)
		b.emit(newEvent(EventDelivered, msg, d.target, "", latency))
		if raw != nil && msg.Type == a2a.MessageTypeRequest && !msg.IsBroadcast() {
			b.feedReply(msg, d.target, raw)
		}
	}
	if !msg.IsBroadcast() {
		b.history.add(msg)
	}
}

// feedReply turns a synchronous transport answer into a Response message
// and queues it like any other message.
func (b *Bus) feedReply(req *a2a.Message, from string, raw json.RawMessage) {
	resp, err := a2a.ParseMessage(raw)
	if err != nil || resp.Type != a2a.MessageTypeResponse || resp.CorrelationID != req.ID {
		resp = req.Reply(replyPayload(raw))
		resp.FromAgent = from
	}
	resp.CreatedAt = b.now().UTC()
	if err := b.submit(resp); err != nil {
		b.dropped.Add(1)
		b.logger.Warn("reply not queued",
			zap.String("request_id", req.ID),
			zap.String("from", from),
			zap.Error(err),
		)
		b.emit(newEvent(EventDropped, resp, resp.ToAgent, "reply not queued: "+err.Error(), 0))
	}
}

func replyPayload(raw json.RawMessage) map[string]any {
	var body any
	if err := json.Unmarshal(raw, &body); err != nil {
		return map[string]any{"result": string(raw)}
	}
	if m, ok := body.(map[string]any); ok {
		return m
	}
	return map[string]any{"result": body}
}

func (b *Bus) expire(msg *a2a.Message) {
	b.dropped.Add(1)
	msg.AddHop(b.config.NodeName, a2a.HopExpired, "")
	b.logger.Warn("message expired, dropping",
		zap.String("message_id", msg.ID),
		zap.String("from", msg.FromAgent),
		zap.String("to", msg.ToAgent),
		zap.Time("expires_at", msg.ExpiresAt()),
	)
	b.history.add(msg)
	b.emit(newEvent(EventExpired, msg, msg.ToAgent, "message expired", 0))
}

func (b *Bus) drop(msg *a2a.Message, reason string) {
	b.dropped.Add(1)
	msg.AddHop(b.config.NodeName, a2a.HopDropped, reason)
	b.logger.Error("message dropped",
		zap.String("message_id", msg.ID),
		zap.String("from", msg.FromAgent),
		zap.String("to", msg.ToAgent),
		zap.String("reason", reason),
	)
	b.history.add(msg)
	b.emit(newEvent(EventDropped, msg, msg.ToAgent, reason, 0))
}

// handleHeartbeat is the default heartbeat handler: the sender is alive.
func (b *Bus) handleHeartbeat(_ context.Context, msg *a2a.Message) error {
	if !b.registry.touch(msg.FromAgent, b.now()) {
		b.logger.Debug("heartbeat from unregistered agent", zap.String("agent", msg.FromAgent))
	}
	return nil
}

func (b *Bus) cleanupLoop() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			b.sweepConversations()
		}
	}
}

func (b *Bus) sweepConversations() int {
	removed := b.conversations.sweep(b.now().Add(-b.config.InactivityWindow))
	if removed > 0 {
		b.logger.Debug("idle conversations removed", zap.Int("count", removed))
	}
	return removed
}
