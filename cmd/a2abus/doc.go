// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main is the a2abus orchestrator node.

# Overview

cmd/a2abus runs one node of the inter-agent bus: the message bus with its
registry, the correlator that turns fire-and-forget delivery into
request/response, the intent router and the multi-agent coordinator. An
HTTP API exposes chat, routing dry-runs, bus statistics and a websocket
feed of routing events; Prometheus metrics are served on a separate port.

# Commands

  - serve    start the node (--config for a YAML file)
  - route    print the routing decision for a message without starting anything
  - health   probe a running node's /health
  - version  print build information

# Middleware

Recovery, RequestID, SecurityHeaders, RequestLogger, CORS, a per-IP
RateLimiter, MetricsMiddleware and OTelTracing, applied in that order.

# Startup and shutdown

Configured agents are registered first. With discovery enabled their cards
and any extra discovery addresses are fetched before the router is built,
so a node may run from discovery alone. Shutdown closes the listeners,
then discovery, the correlator and the bus, then Redis and telemetry.
*/
package main
