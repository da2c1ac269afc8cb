// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package handlers implements the orchestrator's HTTP endpoints.

# Core types

  - ChatHandler: POST /chat, routes user text to specialists
  - RouteHandler: POST /route, router dry run
  - HealthHandler: /health and /ready with pluggable HealthCheck
  - StatsHandler: bus stats, message history, agents and conversations
  - StreamHandler: /ws/bus websocket feed of routing events
  - CardHandler: the orchestrator's /.well-known/agent-card
  - SessionStore: remembers the previous agent per chat session, in memory
    or in Redis

# Conventions

Non-chat endpoints answer with the Response envelope (success, data, error,
timestamp, requestId). /chat and /health answer with their own bodies.
types.Error codes map to HTTP statuses in one place, and DecodeJSONBody
enforces a 1 MB strict JSON body.
*/
package handlers
