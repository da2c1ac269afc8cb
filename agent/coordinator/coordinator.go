package coordinator

import (
	"context"
	"errors"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/a2abus/agent/correlator"
	"github.com/BaSui01/a2abus/agent/router"
	"github.com/BaSui01/a2abus/internal/metrics"
)

// OutcomeStatus summarizes a coordinated task.
type OutcomeStatus string

const (
	OutcomeSuccess   OutcomeStatus = "success"
	OutcomePartial   OutcomeStatus = "partial"
	OutcomeNoResults OutcomeStatus = "no_results"
)

// TaskStatus is the result of one specialist call.
type TaskStatus string

const (
	TaskSuccess TaskStatus = "success"
	TaskError   TaskStatus = "error"
)

// ErrAgentUnavailable is reported for agents that fail the pre-check.
var ErrAgentUnavailable = errors.New("agent unavailable")

// Caller sends a request to a specialist and waits for the answer.
type Caller interface {
	SendAndWait(ctx context.Context, to, action string, params map[string]any, conversationID string, timeout time.Duration) (*correlator.Result, error)
}

// Prober checks whether an agent is reachable.
type Prober interface {
	CheckAvailability(ctx context.Context, name string) bool
}

// Router picks one specialist for free text.
type Router interface {
	Route(input string, rc *router.RouteContext) *router.Decision
}

// Config controls fan-out behavior.
type Config struct {
	Timeout              time.Duration `yaml:"timeout" env:"TIMEOUT"`
	PreCheckAvailability bool          `yaml:"pre_check_availability" env:"PRE_CHECK_AVAILABILITY"`
	ProbeTimeout         time.Duration `yaml:"probe_timeout" env:"PROBE_TIMEOUT"`
	// Requirements maps a requirement flag to the agent that serves it.
	Requirements map[string]string `yaml:"requirements"`
	// AlwaysOn flags are added to every flag-driven task.
	AlwaysOn []string `yaml:"always_on"`
	// Action is the action name sent to specialists.
	Action string `yaml:"action" env:"ACTION"`
}

// DefaultConfig returns the travel requirement mapping with a 30s deadline.
func DefaultConfig() Config {
	return Config{
		Timeout:              30 * time.Second,
		PreCheckAvailability: false,
		ProbeTimeout:         5 * time.Second,
		Requirements: map[string]string{
			"needs_flights": "flight",
			"needs_hotels":  "hotel",
			"needs_context": "context",
		},
		AlwaysOn: []string{"needs_context"},
		Action:   "process",
	}
}

// Task is one unit of coordinated work.
type Task struct {
	Input          string         `json:"input"`
	Context        map[string]any `json:"context,omitempty"`
	ConversationID string         `json:"conversationId,omitempty"`
	// Requirements selects agents by flag. Ignored when SingleBestMatch is set.
	Requirements map[string]bool `json:"requirements,omitempty"`
	// SingleBestMatch asks the router for exactly one agent; AlwaysOn flags
	// do not apply.
	SingleBestMatch bool                 `json:"singleBestMatch,omitempty"`
	RouteContext    *router.RouteContext `json:"-"`
}

// TaskResult is one specialist's contribution.
type TaskResult struct {
	Agent   string         `json:"agent"`
	Status  TaskStatus     `json:"status"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
	Elapsed time.Duration  `json:"elapsed"`
}

// Outcome aggregates every TaskResult.
type Outcome struct {
	Status         OutcomeStatus    `json:"status"`
	ConversationID string           `json:"conversationId"`
	Results        []TaskResult     `json:"results"`
	Decision       *router.Decision `json:"decision,omitempty"`
	Elapsed        time.Duration    `json:"elapsed"`
}

// Succeeded returns the successful results.
func (o *Outcome) Succeeded() []TaskResult {
	out := make([]TaskResult, 0, len(o.Results))
	for _, r := range o.Results {
		if r.Status == TaskSuccess {
			out = append(out, r)
		}
	}
	return out
}

// Coordinator dispatches a task to one or more specialists in parallel.
type Coordinator struct {
	caller  Caller
	prober  Prober
	router  Router
	config  Config
	tracer  trace.Tracer
	metrics *metrics.Collector
	logger  *zap.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithProber enables availability pre-checks through p.
func WithProber(p Prober) Option {
	return func(c *Coordinator) { c.prober = p }
}

// WithRouter sets the router used for single-best-match tasks.
func WithRouter(r Router) Option {
	return func(c *Coordinator) { c.router = r }
}

// WithMetrics records coordination outcomes.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// New creates a Coordinator.
func New(caller Caller, config Config, logger *zap.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := DefaultConfig()
	if config.Timeout <= 0 {
		config.Timeout = d.Timeout
	}
	if config.ProbeTimeout <= 0 {
		config.ProbeTimeout = d.ProbeTimeout
	}
	if config.Requirements == nil {
		config.Requirements = d.Requirements
	}
	if config.Action == "" {
		config.Action = d.Action
	}
	c := &Coordinator{
		caller: caller,
		config: config,
		tracer: otel.Tracer("a2abus/coordinator"),
		logger: logger.With(zap.String("component", "coordinator")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Coordinate runs task against the selected agents under one shared
// deadline. Specialist failures are reported in the outcome, never as an
// error.
func (c *Coordinator) Coordinate(ctx context.Context, task Task) *Outcome {
	start := time.Now()
	if task.ConversationID == "" {
		task.ConversationID = uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()
	ctx, span := c.tracer.Start(ctx, "coordinator.coordinate", trace.WithAttributes(
		attribute.String("a2a.conversation_id", task.ConversationID),
		attribute.Bool("a2a.single_best_match", task.SingleBestMatch),
	))
	defer span.End()

	outcome := &Outcome{ConversationID: task.ConversationID}
	agents := c.selectAgents(task, outcome)
	span.SetAttributes(attribute.StringSlice("a2a.agents", agents))

	results := make([]TaskResult, len(agents))
	g, gctx := errgroup.WithContext(ctx)
	for i, agent := range agents {
		g.Go(func() error {
			results[i] = c.run(gctx, agent, task)
			return nil
		})
	}
	_ = g.Wait()

	outcome.Results = results
	outcome.Status = aggregate(results)
	outcome.Elapsed = time.Since(start)
	span.SetAttributes(attribute.String("a2a.outcome", string(outcome.Status)))

	c.metrics.RecordCoordination(string(outcome.Status), outcome.Elapsed)
	c.logger.Info("task coordinated",
		zap.String("conversation_id", task.ConversationID),
		zap.Strings("agents", agents),
		zap.String("status", string(outcome.Status)),
		zap.Duration("elapsed", outcome.Elapsed),
	)
	return outcome
}

func (c *Coordinator) selectAgents(task Task, outcome *Outcome) []string {
	if task.SingleBestMatch {
		if c.router == nil {
			c.logger.Warn("single best match requested without a router")
			return nil
		}
		d := c.router.Route(task.Input, task.RouteContext)
		outcome.Decision = d
		return []string{d.SelectedAgent}
	}

	flags := maps.Clone(task.Requirements)
	if flags == nil {
		flags = make(map[string]bool)
	}
	for _, f := range c.config.AlwaysOn {
		flags[f] = true
	}

	seen := make(map[string]struct{})
	var agents []string
	for _, flag := range slices.Sorted(maps.Keys(flags)) {
		if !flags[flag] {
			continue
		}
		agent, ok := c.config.Requirements[flag]
		if !ok {
			c.logger.Debug("unknown requirement flag", zap.String("flag", flag))
			continue
		}
		if _, dup := seen[agent]; dup {
			continue
		}
		seen[agent] = struct{}{}
		agents = append(agents, agent)
	}
	return agents
}

func (c *Coordinator) run(ctx context.Context, agent string, task Task) TaskResult {
	start := time.Now()
	res := TaskResult{Agent: agent}

	if c.config.PreCheckAvailability && c.prober != nil {
		pctx, cancel := context.WithTimeout(ctx, c.config.ProbeTimeout)
		ok := c.prober.CheckAvailability(pctx, agent)
		cancel()
		if !ok {
			res.Status = TaskError
			res.Error = ErrAgentUnavailable.Error()
			res.Elapsed = time.Since(start)
			return res
		}
	}

	params := map[string]any{"query": task.Input}
	if len(task.Context) > 0 {
		params["context"] = task.Context
	}

	// The shared deadline bounds every call; the correlator needs an explicit
	// timeout as well.
	timeout := c.config.Timeout
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}

	result, err := c.caller.SendAndWait(ctx, agent, c.config.Action, params, task.ConversationID, timeout)
	res.Elapsed = time.Since(start)
	switch {
	case err != nil:
		res.Status = TaskError
		res.Error = err.Error()
	case result == nil:
		res.Status = TaskError
		res.Error = "empty result"
	case result.OK():
		res.Status = TaskSuccess
		res.Data = result.Payload
	default:
		res.Status = TaskError
		res.Error = result.Error
		if res.Error == "" {
			res.Error = string(result.Status)
		}
	}
	return res
}

func aggregate(results []TaskResult) OutcomeStatus {
	ok := 0
	for _, r := range results {
		if r.Status == TaskSuccess {
			ok++
		}
	}
	switch {
	case ok == 0:
		return OutcomeNoResults
	case ok == len(results):
		return OutcomeSuccess
	default:
		return OutcomePartial
	}
}
