// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

// Package correlator turns the asynchronous bus into request/response calls.
// SendAndWait registers a single-resolution waiter keyed by the request id,
// sends the request, and blocks until the bus routes the matching Response,
// a delivery failure is observed, or the timeout elapses. The first response
// wins; later ones are logged and discarded.
package correlator
