// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package bus is the in-process message bus between agents.

# Routing

Send stamps a message, records the conversation and puts it on a bounded
FIFO queue without waiting. One consumer goroutine dequeues in order,
drops expired messages and messages for unregistered agents, and hands
the rest to a per-recipient delivery lane. Each lane delivers in order,
through the type's handler if one is installed or through the Transport
otherwise. Outcomes are appended to the message's routing history and
published to observers.

# State

The bus owns the agent registry, the conversation table and a bounded
history ring. Registrations are upserts keyed by name and are never
removed; idle conversations are swept by a background loop.
*/
package bus
