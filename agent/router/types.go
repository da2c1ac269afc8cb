package router

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoProfiles is returned for a table without specialists.
	ErrNoProfiles = errors.New("router: no agent profiles")
	// ErrNoDefaultAgent is returned when the fallback agent is missing.
	ErrNoDefaultAgent = errors.New("router: no default agent")
	// ErrInvalidPriority is returned for a weight outside (0, 1].
	ErrInvalidPriority = errors.New("router: priority weight must be in (0, 1]")
)

// Profile is one specialist's routing vocabulary.
type Profile struct {
	Name              string   `yaml:"name" json:"name"`
	PrimaryKeywords   []string `yaml:"primary_keywords" json:"primaryKeywords,omitempty"`
	SecondaryKeywords []string `yaml:"secondary_keywords" json:"secondaryKeywords,omitempty"`
	// DomainWords mark the domain in a question without naming an intent.
	DomainWords []string `yaml:"domain_words" json:"domainWords,omitempty"`
	// Transactional domains receive the action-intent bonus.
	Transactional bool `yaml:"transactional" json:"transactional,omitempty"`
	// Priority multiplies the raw score; 0 means 1.
	Priority float64 `yaml:"priority" json:"priority,omitempty"`
}

// Weights are the additive scores and the fallback confidence.
type Weights struct {
	Primary            float64 `yaml:"primary" json:"primary" env:"PRIMARY"`
	Secondary          float64 `yaml:"secondary" json:"secondary" env:"SECONDARY"`
	QuestionBonus      float64 `yaml:"question_bonus" json:"questionBonus" env:"QUESTION_BONUS"`
	ActionBonus        float64 `yaml:"action_bonus" json:"actionBonus" env:"ACTION_BONUS"`
	ComparisonBonus    float64 `yaml:"comparison_bonus" json:"comparisonBonus" env:"COMPARISON_BONUS"`
	ContinuityBonus    float64 `yaml:"continuity_bonus" json:"continuityBonus" env:"CONTINUITY_BONUS"`
	FallbackConfidence float64 `yaml:"fallback_confidence" json:"fallbackConfidence" env:"FALLBACK_CONFIDENCE"`
}

// DefaultWeights returns primary +3, secondary +1, bonuses +2 and a 0.4
// fallback confidence.
func DefaultWeights() Weights {
	return Weights{
		Primary:            3,
		Secondary:          1,
		QuestionBonus:      2,
		ActionBonus:        2,
		ComparisonBonus:    2,
		ContinuityBonus:    2,
		FallbackConfidence: 0.4,
	}
}

// Cues are the phrases that trigger pattern bonuses. Single words match
// whole words; anything else matches as a substring.
type Cues struct {
	Question     []string `yaml:"question" json:"question" env:"QUESTION"`
	Action       []string `yaml:"action" json:"action" env:"ACTION"`
	Comparison   []string `yaml:"comparison" json:"comparison" env:"COMPARISON"`
	Continuation []string `yaml:"continuation" json:"continuation" env:"CONTINUATION"`
}

// DefaultCues returns English cue phrases.
func DefaultCues() Cues {
	return Cues{
		Question:     []string{"what", "how", "when", "where", "which", "is it", "will it", "?"},
		Action:       []string{"book", "reserve", "buy", "purchase"},
		Comparison:   []string{"compare", "cheaper", "better", "versus", "vs", "difference"},
		Continuation: []string{"also", "what about", "how about", "another", "instead", "too", "same", "more"},
	}
}

// Table is the static input of the router.
type Table struct {
	Profiles     []Profile `yaml:"profiles" json:"profiles"`
	DefaultAgent string    `yaml:"default_agent" json:"defaultAgent"`
	Weights      Weights   `yaml:"weights" json:"weights"`
	Cues         Cues      `yaml:"cues" json:"cues"`
}

// Validate checks the table.
func (t *Table) Validate() error {
	if len(t.Profiles) == 0 {
		return ErrNoProfiles
	}
	if strings.TrimSpace(t.DefaultAgent) == "" {
		return ErrNoDefaultAgent
	}
	for _, p := range t.Profiles {
		if p.Priority < 0 || p.Priority > 1 {
			return fmt.Errorf("%w: %s has %v", ErrInvalidPriority, p.Name, p.Priority)
		}
	}
	return nil
}

// normalized returns a lowercased copy with defaults filled in.
func (t Table) normalized() Table {
	out := Table{
		DefaultAgent: t.DefaultAgent,
		Weights:      t.Weights,
		Cues:         t.Cues,
		Profiles:     make([]Profile, len(t.Profiles)),
	}
	if out.Weights == (Weights{}) {
		out.Weights = DefaultWeights()
	}
	d := DefaultCues()
	if out.Cues.Question == nil {
		out.Cues.Question = d.Question
	}
	if out.Cues.Action == nil {
		out.Cues.Action = d.Action
	}
	if out.Cues.Comparison == nil {
		out.Cues.Comparison = d.Comparison
	}
	if out.Cues.Continuation == nil {
		out.Cues.Continuation = d.Continuation
	}
	for i, p := range t.Profiles {
		if p.Priority == 0 {
			p.Priority = 1
		}
		p.PrimaryKeywords = lowerAll(p.PrimaryKeywords)
		p.SecondaryKeywords = lowerAll(p.SecondaryKeywords)
		p.DomainWords = lowerAll(p.DomainWords)
		out.Profiles[i] = p
	}
	return out
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// RouteContext carries conversation state into a routing decision.
type RouteContext struct {
	// PreviousAgent is the agent that handled the previous turn.
	PreviousAgent string
}

// Decision is the router's output.
type Decision struct {
	SelectedAgent string             `json:"selectedAgent"`
	Confidence    float64            `json:"confidence"`
	Reasoning     string             `json:"reasoning"`
	AllScores     map[string]float64 `json:"allScores"`
	Fallback      bool               `json:"fallback"`
}
