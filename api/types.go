package api

import (
	"time"
)

// =============================================================================
// Chat types
// =============================================================================

// ChatRequest is the body of POST /chat.
// @Description Chat request routed to one or more specialist agents
type ChatRequest struct {
	// User text
	Message string `json:"message" example:"find me a flight to Paris" binding:"required"`
	// Free-form context forwarded to specialists
	Context map[string]any `json:"context,omitempty"`
	// Session used to remember the previous agent for follow-ups
	SessionID string `json:"sessionId,omitempty" example:"sess-123"`
	// Conversation to continue; a new one is started when empty
	ConversationID string `json:"conversationId,omitempty"`
	// Requirement flags; when set the request fans out instead of routing to one agent
	Requirements map[string]bool `json:"requirements,omitempty"`
}

// ChatResponse is the body returned by POST /chat.
// @Description Chat response with routing metadata
type ChatResponse struct {
	// Specialist answer
	Response string `json:"response"`
	// How the request was routed
	RoutingMetadata *RoutingMetadata `json:"routingMetadata,omitempty"`
	// Conversation the exchange belongs to
	ConversationID string `json:"conversationId,omitempty"`
	// Echo of the request session
	SessionID string    `json:"sessionId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// RoutingMetadata describes the routing decision and the per-agent outcome.
// @Description Routing decision and per-agent results
type RoutingMetadata struct {
	SelectedAgent string             `json:"selectedAgent,omitempty" example:"flight"`
	Confidence    float64            `json:"confidence,omitempty" example:"0.82"`
	Reasoning     string             `json:"reasoning,omitempty"`
	AllScores     map[string]float64 `json:"allScores,omitempty"`
	Fallback      bool               `json:"fallback,omitempty"`
	// success, partial or no_results
	Status string        `json:"status" example:"success"`
	Agents []AgentResult `json:"agents,omitempty"`
	// Total coordination time in milliseconds
	ElapsedMs int64 `json:"elapsedMs"`
}

// AgentResult is one specialist's contribution to a chat answer.
// @Description Per-agent result
type AgentResult struct {
	Agent     string `json:"agent" example:"flight"`
	Status    string `json:"status" example:"success"`
	Error     string `json:"error,omitempty"`
	ElapsedMs int64  `json:"elapsedMs"`
}

// =============================================================================
// Route preview
// =============================================================================

// RouteRequest is the body of POST /route, a dry run of the intent router.
// @Description Route preview request
type RouteRequest struct {
	Message       string `json:"message" binding:"required"`
	PreviousAgent string `json:"previousAgent,omitempty"`
}

// =============================================================================
// Health
// =============================================================================

// HealthResponse is the body of GET /health.
// @Description Liveness answer
type HealthResponse struct {
	Status string `json:"status" example:"healthy"`
	Agent  string `json:"agent" example:"orchestrator"`
}

// =============================================================================
// Errors
// =============================================================================

// ErrorResponse is the error envelope.
// @Description Error response
type ErrorResponse struct {
	Success   bool        `json:"success"`
	Error     ErrorDetail `json:"error"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"requestId,omitempty"`
}

// ErrorDetail describes one error.
// @Description Error detail
type ErrorDetail struct {
	Code      string `json:"code" example:"INVALID_REQUEST"`
	Message   string `json:"message" example:"message is required"`
	Retryable bool   `json:"retryable,omitempty"`
	Agent     string `json:"agent,omitempty"`
}
