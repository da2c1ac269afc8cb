package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

var vocabulary = []string{
	"book", "flight", "hotel", "room", "weather", "visa", "compare", "what",
	"about", "also", "cheaper", "paris", "tomorrow", "?", "stay", "airport",
}

func drawInput(rt *rapid.T) string {
	words := rapid.SliceOfN(rapid.SampledFrom(vocabulary), 0, 12).Draw(rt, "words")
	out := ""
	for i, w := range words {
		if i > 0 {
			out += " "
		}
		out += w
	}
	return out
}

func TestProperty_Route_Deterministic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		input := drawInput(rt)
		prev := rapid.SampledFrom([]string{"", "flight", "hotel", "context"}).Draw(rt, "prev")
		rc := &RouteContext{PreviousAgent: prev}

		first := Route(travelTable(), input, rc)
		second := Route(travelTable(), input, rc)
		assert.Equal(rt, first, second)
	})
}

func TestProperty_Route_ConfidenceBounds(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		d := Route(travelTable(), drawInput(rt), nil)

		assert.GreaterOrEqual(rt, d.Confidence, 0.0)
		assert.LessOrEqual(rt, d.Confidence, 1.0)
		if d.Fallback {
			assert.Equal(rt, "context", d.SelectedAgent)
			return
		}
		top := d.AllScores[d.SelectedAgent]
		for agent, score := range d.AllScores {
			assert.LessOrEqual(rt, score, top, agent)
		}
	})
}
