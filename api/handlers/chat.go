package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/a2abus/agent/coordinator"
	"github.com/BaSui01/a2abus/agent/router"
	"github.com/BaSui01/a2abus/api"
	"github.com/BaSui01/a2abus/internal/ctxkeys"
	"github.com/BaSui01/a2abus/types"
)

// noResultsReply is sent when no specialist answered.
const noResultsReply = "Sorry, none of our specialists could answer right now. Please try again shortly."

// replyKeys are the payload fields a specialist may put its answer in,
// in order of preference.
var replyKeys = []string{"response", "text", "message", "answer"}

// Coordinator runs one chat turn against the specialists.
type Coordinator interface {
	Coordinate(ctx context.Context, task coordinator.Task) *coordinator.Outcome
}

// =============================================================================
// Chat handler
// =============================================================================

// ChatHandler serves POST /chat.
type ChatHandler struct {
	coordinator Coordinator
	sessions    SessionStore
	logger      *zap.Logger
}

// NewChatHandler creates a chat handler. A nil store keeps sessions in memory.
func NewChatHandler(c Coordinator, sessions SessionStore, logger *zap.Logger) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sessions == nil {
		sessions = NewMemorySessionStore(DefaultSessionTTL)
	}
	return &ChatHandler{
		coordinator: c,
		sessions:    sessions,
		logger:      logger.With(zap.String("component", "chat_handler")),
	}
}

// HandleChat routes the user's message. Without requirement flags the intent
// router picks one specialist; with flags the request fans out to every
// matching specialist and the answers are joined.
// @Summary Chat
// @Tags chat
// @Accept json
// @Produce json
// @Param request body api.ChatRequest true "chat request"
// @Success 200 {object} api.ChatResponse
// @Failure 400 {object} Response
// @Router /chat [post]
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.ChatRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		WriteError(w, types.NewInvalidRequestError("message is required"), h.logger)
		return
	}

	ctx := r.Context()
	task := coordinator.Task{
		Input:           req.Message,
		Context:         req.Context,
		ConversationID:  req.ConversationID,
		Requirements:    req.Requirements,
		SingleBestMatch: len(req.Requirements) == 0,
	}
	if req.SessionID != "" {
		if sess, ok := h.sessions.Get(ctx, req.SessionID); ok {
			task.RouteContext = &router.RouteContext{PreviousAgent: sess.PreviousAgent}
			if task.ConversationID == "" {
				task.ConversationID = sess.ConversationID
			}
		}
	}
	if task.ConversationID != "" {
		ctx = ctxkeys.WithConversationID(ctx, task.ConversationID)
	}

	outcome := h.coordinator.Coordinate(ctx, task)
	if outcome == nil {
		WriteError(w, types.NewInternalError("coordination produced no outcome"), h.logger)
		return
	}

	if req.SessionID != "" {
		h.remember(ctx, req.SessionID, outcome)
	}

	requestID, _ := ctxkeys.RequestID(ctx)
	h.logger.Info("chat handled",
		zap.String("request_id", requestID),
		zap.String("conversation_id", outcome.ConversationID),
		zap.String("status", string(outcome.Status)),
		zap.Int("agents", len(outcome.Results)),
		zap.Duration("elapsed", outcome.Elapsed),
	)

	WriteJSON(w, http.StatusOK, api.ChatResponse{
		Response:        replyText(outcome),
		RoutingMetadata: routingMetadata(outcome),
		ConversationID:  outcome.ConversationID,
		SessionID:       req.SessionID,
		Timestamp:       time.Now().UTC(),
	})
}

// remember records the agent that answered so the next turn can favor it.
func (h *ChatHandler) remember(ctx context.Context, sessionID string, outcome *coordinator.Outcome) {
	sess := Session{ConversationID: outcome.ConversationID}
	if prev, ok := h.sessions.Get(ctx, sessionID); ok {
		sess.PreviousAgent = prev.PreviousAgent
	}
	// Only an unambiguous answer moves the session's previous agent.
	if ok := outcome.Succeeded(); len(ok) == 1 {
		sess.PreviousAgent = ok[0].Agent
	}
	h.sessions.Put(ctx, sessionID, sess)
}

func replyText(outcome *coordinator.Outcome) string {
	succeeded := outcome.Succeeded()
	if len(succeeded) == 0 {
		return noResultsReply
	}
	if len(succeeded) == 1 {
		return payloadText(succeeded[0].Data)
	}
	parts := make([]string, 0, len(succeeded))
	for _, res := range succeeded {
		if text := payloadText(res.Data); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// payloadText pulls the answer out of a specialist payload, falling back to
// the payload's JSON.
func payloadText(data map[string]any) string {
	for _, k := range replyKeys {
		if s, ok := data[k].(string); ok && s != "" {
			return s
		}
	}
	if len(data) == 0 {
		return ""
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return ""
	}
	return string(raw)
}

func routingMetadata(outcome *coordinator.Outcome) *api.RoutingMetadata {
	md := &api.RoutingMetadata{
		Status:    string(outcome.Status),
		ElapsedMs: outcome.Elapsed.Milliseconds(),
		Agents:    make([]api.AgentResult, 0, len(outcome.Results)),
	}
	if d := outcome.Decision; d != nil {
		md.SelectedAgent = d.SelectedAgent
		md.Confidence = d.Confidence
		md.Reasoning = d.Reasoning
		md.AllScores = d.AllScores
		md.Fallback = d.Fallback
	}
	for _, res := range outcome.Results {
		md.Agents = append(md.Agents, api.AgentResult{
			Agent:     res.Agent,
			Status:    string(res.Status),
			Error:     res.Error,
			ElapsedMs: res.Elapsed.Milliseconds(),
		})
	}
	return md
}

// =============================================================================
// Route preview
// =============================================================================

// IntentRouter previews routing decisions.
type IntentRouter interface {
	Route(input string, rc *router.RouteContext) *router.Decision
}

// RouteHandler serves POST /route, a dry run of the intent router.
type RouteHandler struct {
	router IntentRouter
	logger *zap.Logger
}

// NewRouteHandler creates a route preview handler.
func NewRouteHandler(r IntentRouter, logger *zap.Logger) *RouteHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RouteHandler{router: r, logger: logger.With(zap.String("component", "route_handler"))}
}

// HandleRoute returns the decision the router would make without sending
// anything.
func (h *RouteHandler) HandleRoute(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.RouteRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		WriteError(w, types.NewInvalidRequestError("message is required"), h.logger)
		return
	}

	var rc *router.RouteContext
	if req.PreviousAgent != "" {
		rc = &router.RouteContext{PreviousAgent: req.PreviousAgent}
	}
	WriteSuccess(w, h.router.Route(req.Message, rc))
}
