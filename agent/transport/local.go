package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/a2abus/agent/protocol/a2a"
)

// LocalHandler serves an in-process agent. A nil payload for a request
// means the agent will answer later through the bus.
type LocalHandler func(ctx context.Context, msg *a2a.Message) (map[string]any, error)

// LocalTransport delivers to handlers registered in this process under
// local:// addresses.
type LocalTransport struct {
	config Config
	logger *zap.Logger

	mu       sync.RWMutex
	handlers map[string]LocalHandler
}

// NewLocalTransport creates an empty local transport.
func NewLocalTransport(config Config, logger *zap.Logger) *LocalTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalTransport{
		config:   config.withDefaults(),
		logger:   logger.With(zap.String("component", "local_transport")),
		handlers: make(map[string]LocalHandler),
	}
}

// Handle serves address with h, replacing any previous handler.
func (t *LocalTransport) Handle(address string, h LocalHandler) {
	t.mu.Lock()
	t.handlers[address] = h
	t.mu.Unlock()
}

func (t *LocalTransport) handler(address string) (LocalHandler, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.handlers[address]
	return h, ok
}

// Deliver implements Transport. The handler runs on its own goroutine so a
// handler that ignores its context still cannot outlive the timeout.
func (t *LocalTransport) Deliver(ctx context.Context, address string, msg *a2a.Message) (json.RawMessage, error) {
	h, ok := t.handler(address)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAddress, address)
	}

	ctx, cancel := context.WithTimeout(ctx, t.config.DeliveryTimeout)
	defer cancel()

	type outcome struct {
		payload map[string]any
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("local handler panic: %v", r)}
			}
		}()
		payload, err := h(ctx, msg)
		done <- outcome{payload: payload, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-done:
		if out.err != nil {
			return nil, out.err
		}
		if out.payload == nil || msg.Type != a2a.MessageTypeRequest {
			return nil, nil
		}
		return json.Marshal(msg.Reply(out.payload))
	}
}

// Probe implements Transport.
func (t *LocalTransport) Probe(ctx context.Context, address string) error {
	if _, ok := t.handler(address); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAddress, address)
	}
	return ctx.Err()
}
