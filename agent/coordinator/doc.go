// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package coordinator fans one user task out to several specialists.

Agents are chosen either from requirement flags (each flag maps to an
agent, some flags are always on) or from the intent router's single best
match. Every selected agent is called in parallel through the correlator
under one shared deadline. The Outcome is success when every call
succeeded, partial when some did and no_results when none did; a failing
specialist never turns into a returned error.
*/
package coordinator
