package handlers

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/BaSui01/a2abus/agent/bus"
)

// EventSource publishes bus routing events.
type EventSource interface {
	Subscribe(obs bus.Observer) (unsubscribe func())
}

// StreamConfig tunes the event stream.
type StreamConfig struct {
	// BufferSize is the per-connection event buffer. Events beyond it are
	// dropped for that connection only.
	BufferSize   int
	WriteTimeout time.Duration
	// OriginPatterns are passed to websocket.Accept; empty means same-origin.
	OriginPatterns []string
}

// DefaultStreamConfig returns a 256-event buffer and 5s write timeout.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		BufferSize:   256,
		WriteTimeout: 5 * time.Second,
	}
}

// StreamHandler serves GET /ws/bus, a live feed of routing events.
type StreamHandler struct {
	source EventSource
	config StreamConfig
	logger *zap.Logger
	active atomic.Int64
}

// NewStreamHandler creates a StreamHandler over source.
func NewStreamHandler(source EventSource, config StreamConfig, logger *zap.Logger) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := DefaultStreamConfig()
	if config.BufferSize <= 0 {
		config.BufferSize = d.BufferSize
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = d.WriteTimeout
	}
	return &StreamHandler{
		source: source,
		config: config,
		logger: logger.With(zap.String("component", "stream_handler")),
	}
}

// Active returns the number of connected clients.
func (h *StreamHandler) Active() int64 {
	return h.active.Load()
}

// HandleStream upgrades to a websocket and writes one JSON event per
// message. The optional ?agent= query keeps only events sent by or to that
// agent. Client messages are ignored.
func (h *StreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	agent := r.URL.Query().Get("agent")

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.config.OriginPatterns,
	})
	if err != nil {
		// Accept has already written the HTTP error.
		h.logger.Debug("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	h.active.Add(1)
	defer h.active.Add(-1)

	events := make(chan bus.Event, h.config.BufferSize)
	var dropped atomic.Int64
	unsubscribe := h.source.Subscribe(func(ev bus.Event) {
		if agent != "" && ev.From != agent && ev.To != agent {
			return
		}
		select {
		case events <- ev:
		default:
			dropped.Add(1)
		}
	})
	defer unsubscribe()

	ctx := conn.CloseRead(r.Context())
	h.logger.Debug("stream client connected", zap.String("remote", r.RemoteAddr), zap.String("agent", agent))

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("stream client gone",
				zap.String("remote", r.RemoteAddr),
				zap.Int64("dropped", dropped.Load()),
			)
			return
		case ev := <-events:
			if err := h.write(ctx, conn, ev); err != nil {
				h.logger.Debug("stream write failed", zap.Error(err))
				return
			}
		}
	}
}

func (h *StreamHandler) write(ctx context.Context, conn *websocket.Conn, ev bus.Event) error {
	ctx, cancel := context.WithTimeout(ctx, h.config.WriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, ev)
}
