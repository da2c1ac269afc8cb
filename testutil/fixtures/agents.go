// =============================================================================
// Test fixtures - travel specialists
// =============================================================================
// Routing tables, agent configs and cards for a flight/hotel/context setup.
// =============================================================================
package fixtures

import (
	"github.com/BaSui01/a2abus/agent/protocol/a2a"
	"github.com/BaSui01/a2abus/agent/router"
	"github.com/BaSui01/a2abus/config"
)

// Agent names used across fixtures.
const (
	Flight  = "flight"
	Hotel   = "hotel"
	Context = "context"
)

// TravelAgents returns agent configs for the three travel specialists. The
// addresses are local; override them for HTTP tests.
func TravelAgents() []config.AgentConfig {
	return []config.AgentConfig{
		{
			Name:              Flight,
			Address:           "local://" + Flight,
			Priority:          1,
			Capabilities:      []string{"flight_search", "booking"},
			PrimaryKeywords:   []string{"flight", "fly", "airline", "book a flight"},
			SecondaryKeywords: []string{"airport", "departure", "ticket"},
			DomainWords:       []string{"flight", "plane", "airport"},
			Transactional:     true,
		},
		{
			Name:              Hotel,
			Address:           "local://" + Hotel,
			Priority:          0.9,
			Capabilities:      []string{"hotel_search", "booking"},
			PrimaryKeywords:   []string{"hotel", "accommodation", "stay"},
			SecondaryKeywords: []string{"room", "night", "check-in"},
			DomainWords:       []string{"hotel", "room"},
			Transactional:     true,
		},
		{
			Name:              Context,
			Address:           "local://" + Context,
			Priority:          0.8,
			Capabilities:      []string{"weather", "travel_tips"},
			PrimaryKeywords:   []string{"weather", "visa", "currency"},
			SecondaryKeywords: []string{"culture", "events", "tips"},
			DomainWords:       []string{"weather", "visa"},
		},
	}
}

// TravelTable returns the router table built from TravelAgents with
// context as the default agent.
func TravelTable() router.Table {
	agents := TravelAgents()
	profiles := make([]router.Profile, 0, len(agents))
	for _, a := range agents {
		profiles = append(profiles, a.Profile())
	}
	return router.Table{
		Profiles:     profiles,
		DefaultAgent: Context,
		Weights:      router.DefaultWeights(),
	}
}

// TravelCard returns the agent card a travel specialist would serve.
func TravelCard(name string) *a2a.AgentCard {
	for _, a := range TravelAgents() {
		if a.Name != name {
			continue
		}
		card := a2a.NewAgentCard(a.Name, "1.0.0")
		card.Description = a.Name + " specialist"
		for _, c := range a.Capabilities {
			card.AddCapability(c)
		}
		card.PrimaryKeywords = a.PrimaryKeywords
		card.DomainWords = a.DomainWords
		card.Transactional = a.Transactional
		card.Priority = a.Priority
		return card
	}
	return a2a.NewAgentCard(name, "1.0.0")
}
