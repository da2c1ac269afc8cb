// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package a2a defines the inter-agent wire protocol: the bus Message, the
delivery Envelope with its X-A2A-* headers, the AgentCard, an HTTP Client
for card discovery, delivery and health probes, and the Server a
specialist mounts to receive deliveries.

Message lifetime: a message is live until CreatedAt + TTL and expired
strictly after it. Routing history is the only part of a message that
changes after creation.
*/
package a2a
