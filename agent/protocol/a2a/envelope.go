package a2a

import "strings"

// Headers set on every inter-agent delivery.
const (
	HeaderMessageID       = "X-A2A-Message-ID"
	HeaderFromAgent       = "X-A2A-From-Agent"
	HeaderProtocolVersion = "X-A2A-Protocol-Version"
)

// RoutingMetadata travels in the delivery body next to the message.
type RoutingMetadata struct {
	MessageID       string `json:"messageId"`
	ConversationID  string `json:"conversationId"`
	FromAgent       string `json:"fromAgent"`
	ProtocolVersion string `json:"protocolVersion"`
}

// Envelope is the body POSTed to an agent's message endpoint.
type Envelope struct {
	Message         *Message        `json:"message"`
	Text            string          `json:"text,omitempty"`
	Context         map[string]any  `json:"context,omitempty"`
	RoutingMetadata RoutingMetadata `json:"routingMetadata"`
}

// NewEnvelope wraps msg for delivery. The user text and context are lifted
// out of the payload, or out of the request parameters when the payload is
// an {action, parameters} request.
func NewEnvelope(msg *Message, protocolVersion string) *Envelope {
	if protocolVersion == "" {
		protocolVersion = ProtocolVersion
	}
	env := &Envelope{
		Message: msg,
		RoutingMetadata: RoutingMetadata{
			MessageID:       msg.ID,
			ConversationID:  msg.ConversationID,
			FromAgent:       msg.FromAgent,
			ProtocolVersion: protocolVersion,
		},
	}
	for _, source := range []map[string]any{msg.Payload, msg.Parameters()} {
		if source == nil {
			continue
		}
		if env.Text == "" {
			env.Text = textOf(source)
		}
		if env.Context == nil {
			env.Context, _ = source["context"].(map[string]any)
		}
	}
	return env
}

func textOf(m map[string]any) string {
	for _, key := range []string{"text", "message", "query"} {
		if s, ok := m[key].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}
