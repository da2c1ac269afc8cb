package fixtures

import (
	"context"
	"errors"
	"fmt"

	"github.com/BaSui01/a2abus/agent/protocol/a2a"
	"github.com/BaSui01/a2abus/agent/transport"
)

// ErrSpecialistDown is returned by FailingHandler.
var ErrSpecialistDown = errors.New("specialist down")

// Replies are the canned answers of the travel specialists.
var Replies = map[string]string{
	Flight:  "Found 3 flights to Paris from $420.",
	Hotel:   "Found 5 hotels near the Louvre from $180 per night.",
	Context: "Paris is mild in spring; no visa is needed for short stays.",
}

// ReplyHandler answers every request with the canned reply for name and
// echoes the query it received.
func ReplyHandler(name string) transport.LocalHandler {
	return func(ctx context.Context, msg *a2a.Message) (map[string]any, error) {
		return map[string]any{
			"response": Replies[name],
			"agent":    name,
			"query":    fmt.Sprint(msg.Parameters()["query"]),
		}, nil
	}
}

// FailingHandler always fails.
func FailingHandler() transport.LocalHandler {
	return func(ctx context.Context, msg *a2a.Message) (map[string]any, error) {
		return nil, ErrSpecialistDown
	}
}

// SlowHandler blocks until ctx is done.
func SlowHandler() transport.LocalHandler {
	return func(ctx context.Context, msg *a2a.Message) (map[string]any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
}
