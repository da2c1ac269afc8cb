package a2a

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// HandlerFunc does a specialist's work for one delivered message. The
// returned map becomes the payload of the Response sent back.
type HandlerFunc func(ctx context.Context, env *Envelope) (map[string]any, error)

// ServerConfig holds configuration for the specialist-side server.
type ServerConfig struct {
	// RequestTimeout bounds one handler invocation.
	RequestTimeout time.Duration
	// MaxBodyBytes caps the delivery body.
	MaxBodyBytes int64
	Logger       *zap.Logger
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		RequestTimeout: 30 * time.Second,
		MaxBodyBytes:   maxResponseBytes,
		Logger:         zap.NewNop(),
	}
}

// Server is the HTTP surface a specialist agent mounts: message delivery,
// health and its agent card.
type Server struct {
	card    *AgentCard
	handler HandlerFunc
	config  *ServerConfig
	logger  *zap.Logger
	down    atomic.Bool
}

// NewServer creates a server that answers for card using handler.
func NewServer(card *AgentCard, handler HandlerFunc, config *ServerConfig) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = maxResponseBytes
	}
	return &Server{
		card:    card,
		handler: handler,
		config:  config,
		logger:  config.Logger.With(zap.String("component", "a2a_server"), zap.String("agent", card.Name)),
	}
}

// SetHealthy flips the /health answer.
func (s *Server) SetHealthy(healthy bool) {
	s.down.Store(!healthy)
}

// Card returns the served agent card.
func (s *Server) Card() *AgentCard {
	return s.card
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == PathMessages && r.Method == http.MethodPost:
		s.handleMessage(w, r)
	case r.URL.Path == PathHealth && r.Method == http.MethodGet:
		s.handleHealth(w)
	case r.URL.Path == PathAgentCard && r.Method == http.MethodGet:
		s.writeJSON(w, http.StatusOK, s.card)
	default:
		s.writeError(w, http.StatusNotFound, fmt.Errorf("endpoint not found: %s %s", r.Method, r.URL.Path))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter) {
	if s.down.Load() {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "agent": s.card.Name})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "agent": s.card.Name})
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, s.config.MaxBodyBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("failed to read request body: %w", err))
		return
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %v", ErrInvalidMessage, err))
		return
	}
	if env.Message == nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("%w: missing message", ErrInvalidMessage))
		return
	}
	if err := env.Message.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	msg := env.Message

	ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
	defer cancel()

	s.logger.Debug("handling message",
		zap.String("message_id", msg.ID),
		zap.String("from", msg.FromAgent),
		zap.String("type", msg.Type.String()),
	)

	result, err := s.handler(ctx, &env)

	// Only requests get a reply body; events and heartbeats are acknowledged.
	if msg.Type != MessageTypeRequest {
		if err != nil {
			s.logger.Warn("handler failed", zap.String("message_id", msg.ID), zap.Error(err))
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}

	if err != nil {
		s.logger.Warn("handler failed", zap.String("message_id", msg.ID), zap.Error(err))
		s.writeJSON(w, http.StatusOK, msg.Reply(map[string]any{
			"status": "error",
			"error":  err.Error(),
		}))
		return
	}
	s.writeJSON(w, http.StatusOK, msg.Reply(result))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to write JSON response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Warn("request error", zap.Int("status", status), zap.Error(err))
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
