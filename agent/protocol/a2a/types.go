package a2a

// ToolDefinition describes a tool an agent exposes.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// AgentCard is the self-description served at /.well-known/agent-card.
//
// Capabilities double as secondary routing keywords. PrimaryKeywords,
// DomainWords, Transactional and Priority are optional routing hints a
// specialist may publish so the orchestrator can build its routing table
// from discovery alone.
type AgentCard struct {
	Name         string           `json:"name"`
	Version      string           `json:"version"`
	Description  string           `json:"description,omitempty"`
	URL          string           `json:"url,omitempty"`
	Capabilities []string         `json:"capabilities"`
	Tools        []ToolDefinition `json:"tools"`
	Endpoints    []string         `json:"endpoints"`

	PrimaryKeywords []string          `json:"primaryKeywords,omitempty"`
	DomainWords     []string          `json:"domainWords,omitempty"`
	Transactional   bool              `json:"transactional,omitempty"`
	Priority        float64           `json:"priority,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// Endpoint paths every agent serves.
const (
	PathMessages  = "/a2a/messages"
	PathHealth    = "/health"
	PathAgentCard = "/.well-known/agent-card"
)

// NewAgentCard creates a card with the standard endpoints.
func NewAgentCard(name, version string) *AgentCard {
	return &AgentCard{
		Name:         name,
		Version:      version,
		Capabilities: make([]string, 0),
		Tools:        make([]ToolDefinition, 0),
		Endpoints:    []string{PathMessages, PathHealth, PathAgentCard},
	}
}

// AddCapability appends a capability.
func (c *AgentCard) AddCapability(name string) *AgentCard {
	c.Capabilities = append(c.Capabilities, name)
	return c
}

// AddTool appends a tool definition.
func (c *AgentCard) AddTool(name, description string) *AgentCard {
	c.Tools = append(c.Tools, ToolDefinition{Name: name, Description: description})
	return c
}

// SetMetadata sets a metadata key.
func (c *AgentCard) SetMetadata(key, value string) *AgentCard {
	if c.Metadata == nil {
		c.Metadata = make(map[string]string)
	}
	c.Metadata[key] = value
	return c
}

// HasCapability reports whether the card lists the capability.
func (c *AgentCard) HasCapability(name string) bool {
	for _, capability := range c.Capabilities {
		if capability == name {
			return true
		}
	}
	return false
}

// HasTool reports whether the card lists the tool.
func (c *AgentCard) HasTool(name string) bool {
	for _, tool := range c.Tools {
		if tool.Name == name {
			return true
		}
	}
	return false
}

// Validate checks the required fields.
func (c *AgentCard) Validate() error {
	if c.Name == "" {
		return ErrMissingName
	}
	if c.Version == "" {
		return ErrMissingVersion
	}
	return nil
}
