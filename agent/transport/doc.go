// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package transport delivers bus messages to agent addresses.

  - HTTPTransport: POSTs the a2a envelope to http(s):// specialists, probes /health
  - LocalTransport: calls in-process handlers registered under local:// addresses
  - Mux: chooses a transport by address scheme

Every delivery is bounded by Config.DeliveryTimeout and every probe by
Config.ProbeTimeout. Transports never retry.
*/
package transport
