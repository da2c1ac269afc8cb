package router

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"unicode"

	"go.uber.org/zap"

	"github.com/BaSui01/a2abus/internal/metrics"
)

type candidate struct {
	name     string
	score    float64
	priority float64
	reasons  []string
}

// Route scores input against every profile and picks one agent. It is a
// pure function of its arguments.
func Route(table Table, input string, rc *RouteContext) *Decision {
	table = table.normalized()
	lower := strings.ToLower(input)
	words := wordSet(lower)
	w := table.Weights

	question := containsAny(lower, words, table.Cues.Question)
	action := containsAny(lower, words, table.Cues.Action)
	comparison := containsAny(lower, words, table.Cues.Comparison)
	continuation := containsAny(lower, words, table.Cues.Continuation)

	scores := make(map[string]float64, len(table.Profiles))
	candidates := make([]candidate, 0, len(table.Profiles))
	var total float64

	for _, p := range table.Profiles {
		c := candidate{name: p.Name, priority: p.Priority}
		var raw float64

		primary := matching(lower, p.PrimaryKeywords)
		raw += w.Primary * float64(len(primary))
		if len(primary) > 0 {
			c.reasons = append(c.reasons, fmt.Sprintf("primary %v", primary))
		}
		secondary := matching(lower, p.SecondaryKeywords)
		raw += w.Secondary * float64(len(secondary))
		if len(secondary) > 0 {
			c.reasons = append(c.reasons, fmt.Sprintf("secondary %v", secondary))
		}

		domain := len(matching(lower, p.DomainWords)) > 0
		mentioned := domain || len(primary) > 0 || len(secondary) > 0

		if question && domain {
			raw += w.QuestionBonus
			c.reasons = append(c.reasons, "question about domain")
		}
		if action && p.Transactional && mentioned {
			raw += w.ActionBonus
			c.reasons = append(c.reasons, "action intent")
		}
		if comparison && mentioned {
			raw += w.ComparisonBonus
			c.reasons = append(c.reasons, "comparison")
		}
		if continuation && rc != nil && rc.PreviousAgent == p.Name {
			raw += w.ContinuityBonus
			c.reasons = append(c.reasons, "conversation continuity")
		}

		c.score = raw * p.Priority
		scores[p.Name] = c.score
		total += c.score
		candidates = append(candidates, c)
	}

	if total == 0 {
		return &Decision{
			SelectedAgent: table.DefaultAgent,
			Confidence:    w.FallbackConfidence,
			Reasoning:     fmt.Sprintf("no domain match, defaulting to %s", table.DefaultAgent),
			AllScores:     scores,
			Fallback:      true,
		}
	}

	slices.SortFunc(candidates, func(a, b candidate) int {
		switch {
		case a.score != b.score:
			if a.score > b.score {
				return -1
			}
			return 1
		case a.priority != b.priority:
			if a.priority > b.priority {
				return -1
			}
			return 1
		default:
			return strings.Compare(a.name, b.name)
		}
	})

	top := candidates[0]
	confidence := top.score / total
	if confidence > 1 {
		confidence = 1
	}
	reasoning := fmt.Sprintf("selected %s with score %.2f of %.2f: %s",
		top.name, top.score, total, strings.Join(top.reasons, "; "))
	if top.priority != 1 {
		reasoning += fmt.Sprintf("; priority weight %.2f", top.priority)
	}

	return &Decision{
		SelectedAgent: top.name,
		Confidence:    confidence,
		Reasoning:     reasoning,
		AllScores:     scores,
	}
}

func matching(lower string, keywords []string) []string {
	var out []string
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			out = append(out, kw)
		}
	}
	return out
}

func containsAny(lower string, words map[string]struct{}, cues []string) bool {
	for _, cue := range cues {
		cue = strings.ToLower(cue)
		if isWord(cue) {
			if _, ok := words[cue]; ok {
				return true
			}
			continue
		}
		if strings.Contains(lower, cue) {
			return true
		}
	}
	return false
}

func isWord(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\'' {
			return false
		}
	}
	return true
}

func wordSet(lower string) map[string]struct{} {
	lower = strings.ReplaceAll(lower, "’", "'")
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	out := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		out[f] = struct{}{}
		// "what's" also counts as "what".
		if stem, _, ok := strings.Cut(f, "'"); ok && stem != "" {
			out[stem] = struct{}{}
		}
	}
	return out
}

// =============================================================================
// IntentRouter
// =============================================================================

// IntentRouter holds the routing table and lets discovery update profiles
// while requests are routed.
type IntentRouter struct {
	mu      sync.RWMutex
	table   Table
	logger  *zap.Logger
	metrics *metrics.Collector
}

// NewIntentRouter validates table and returns a router.
func NewIntentRouter(table Table, logger *zap.Logger, collector *metrics.Collector) (*IntentRouter, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IntentRouter{
		table:   table.normalized(),
		logger:  logger.With(zap.String("component", "intent_router")),
		metrics: collector,
	}, nil
}

// Route picks the agent for input.
func (r *IntentRouter) Route(input string, rc *RouteContext) *Decision {
	r.mu.RLock()
	table := r.table
	r.mu.RUnlock()

	d := Route(table, input, rc)
	r.metrics.RecordRouteDecision(d.SelectedAgent, d.Confidence, d.Fallback)
	r.logger.Debug("routed",
		zap.String("agent", d.SelectedAgent),
		zap.Float64("confidence", d.Confidence),
		zap.Bool("fallback", d.Fallback),
	)
	return d
}

// UpsertProfiles replaces profiles with the same name and appends new ones.
func (r *IntentRouter) UpsertProfiles(profiles ...Profile) error {
	for _, p := range profiles {
		if p.Priority < 0 || p.Priority > 1 {
			return fmt.Errorf("%w: %s has %v", ErrInvalidPriority, p.Name, p.Priority)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	next := slices.Clone(r.table.Profiles)
	for _, p := range profiles {
		i := slices.IndexFunc(next, func(existing Profile) bool { return existing.Name == p.Name })
		if i >= 0 {
			next[i] = p
		} else {
			next = append(next, p)
		}
	}
	table := r.table
	table.Profiles = next
	r.table = table.normalized()
	return nil
}

// Table returns a copy of the current table.
func (r *IntentRouter) Table() Table {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := r.table
	out.Profiles = slices.Clone(r.table.Profiles)
	return out
}
