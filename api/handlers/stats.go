package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/BaSui01/a2abus/agent/bus"
	"github.com/BaSui01/a2abus/agent/protocol/a2a"
	"github.com/BaSui01/a2abus/types"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
)

// BusReader is the read side of the bus exposed over HTTP.
type BusReader interface {
	Stats() bus.Stats
	History(limit int) []*a2a.Message
	Agents() []bus.Registration
	Agent(name string) (bus.Registration, bool)
	Conversation(id string) (bus.Conversation, bool)
}

// StatsHandler serves bus state: stats, history, agents and conversations.
type StatsHandler struct {
	bus    BusReader
	logger *zap.Logger
}

// NewStatsHandler creates a StatsHandler over b.
func NewStatsHandler(b BusReader, logger *zap.Logger) *StatsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsHandler{bus: b, logger: logger.With(zap.String("component", "stats_handler"))}
}

// HandleStats answers GET /stats.
// @Summary Bus statistics
// @Tags bus
// @Produce json
// @Success 200 {object} Response
// @Router /stats [get]
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, h.bus.Stats())
}

// HandleHistory answers GET /stats/history?limit=N with the most recent
// messages, oldest first.
// @Summary Recent messages
// @Tags bus
// @Produce json
// @Param limit query int false "number of messages (1-1000)"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Router /stats/history [get]
func (h *StatsHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxHistoryLimit {
			WriteError(w, types.NewInvalidRequestError("limit must be an integer between 1 and 1000"), h.logger)
			return
		}
		limit = n
	}
	WriteSuccess(w, h.bus.History(limit))
}

// HandleListAgents answers GET /agents.
// @Summary Registered agents
// @Tags bus
// @Produce json
// @Success 200 {object} Response
// @Router /agents [get]
func (h *StatsHandler) HandleListAgents(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, h.bus.Agents())
}

// HandleGetAgent answers GET /agents/{name}.
// @Summary One registered agent
// @Tags bus
// @Produce json
// @Param name path string true "agent name"
// @Success 200 {object} Response
// @Failure 404 {object} Response
// @Router /agents/{name} [get]
func (h *StatsHandler) HandleGetAgent(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	reg, ok := h.bus.Agent(name)
	if !ok {
		WriteError(w, types.NewError(types.ErrAgentNotFound, "agent not registered").WithAgent(name), h.logger)
		return
	}
	WriteSuccess(w, reg)
}

// HandleGetConversation answers GET /conversations/{id}.
func (h *StatsHandler) HandleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.bus.Conversation(r.PathValue("id"))
	if !ok {
		WriteError(w, types.NewError(types.ErrNotFound, "conversation not found"), h.logger)
		return
	}
	WriteSuccess(w, conv)
}

// =============================================================================
// Agent card
// =============================================================================

// CardHandler serves the orchestrator's own agent card.
type CardHandler struct {
	card *a2a.AgentCard
}

// NewCardHandler creates a CardHandler for card.
func NewCardHandler(card *a2a.AgentCard) *CardHandler {
	return &CardHandler{card: card}
}

// HandleCard answers GET /.well-known/agent-card.
func (h *CardHandler) HandleCard(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.card)
}
