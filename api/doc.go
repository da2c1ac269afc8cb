// Package api holds the request and response types of the orchestrator's
// HTTP surface.
//
// # API Overview
//
// The orchestrator exposes:
//   - POST /chat: route free text to the best specialist, or fan out by requirement flags
//   - POST /route: dry run of the intent router
//   - GET /health, /ready: liveness and readiness
//   - GET /.well-known/agent-card: the orchestrator's own card
//   - GET /stats, /stats/history, /agents, /agents/{name}: bus state
//   - GET /ws/bus: live stream of routing events over a websocket
//
// Prometheus metrics are served on a separate port at /metrics.
//
// # Base URL
//
// The default base URL is:
//
//	http://localhost:8080
package api
