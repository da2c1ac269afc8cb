// Copyright 2024 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a MIT license that can be
// found in the LICENSE file.

/*
Package server manages the lifecycle of the HTTP listeners of a bus node:
the orchestrator API and the metrics endpoint.

Manager starts serving in a background goroutine, reports serve failures on
Errors and shuts down gracefully on Shutdown or on SIGINT/SIGTERM through
WaitForShutdown.
*/
package server
