// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil provides shared helpers for a2abus tests.

# Capabilities

  - Context: TestContext / TestContextWithTimeout / CancelledContext, with
    cleanup registered on the test
  - Async assertions: AssertEventuallyTrue / AssertEventuallyEqual / WaitFor /
    WaitForChannel
  - JSON and HTTP: MustJSON / MustParseJSON / PostJSON / DecodeJSON
  - Cluster: an in-process bus with a correlator and local specialists

# Subpackages

  - testutil/fixtures: travel routing table, agent configs, cards and
    canned specialist handlers
  - testutil/mocks: Specialist, a fake HTTP agent built on a2a.Server with
    configurable reply, error and delay

Packages that testutil itself imports (bus, transport, correlator, router)
cannot use it from their internal tests.

# Example

	c := testutil.NewCluster(t, "orchestrator")
	c.AddAgent(t, fixtures.Flight, fixtures.ReplyHandler(fixtures.Flight))
	c.Start(t)
*/
package testutil
