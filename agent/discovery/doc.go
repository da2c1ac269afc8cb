// Package discovery finds specialists by their agent cards and keeps their
// bus registrations healthy.
//
// Service fetches /.well-known/agent-card from each configured address,
// optionally through a shared Redis cache, registers the agent on the bus
// and publishes a routing profile derived from the card. HealthChecker
// probes /health of every registered agent on an interval; the bus marks
// agents Active or Unavailable from the probe result.
package discovery
