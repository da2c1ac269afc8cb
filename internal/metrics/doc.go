// Copyright 2024 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

/*
Package metrics exposes the bus, correlator, router, coordinator, cache and
HTTP series through Prometheus.

Collector registers every series with promauto under one namespace. Its
Record methods are no-ops on a nil receiver, so components accept a
*Collector without caring whether metrics are enabled.

  - bus: messages by type/outcome, per-agent delivery latency, queue depth,
    registered agents, active conversations, agent availability
  - correlator: exchanges by agent/status and their duration
  - router: decisions by selected agent and confidence
  - coordinator: fan-outs by outcome and their duration
  - cache / HTTP: hits, misses, request counts, latency, response size
*/
package metrics
