// Package telemetry initializes the OpenTelemetry SDK for a bus node. With
// telemetry disabled the global providers remain noop and nothing connects
// to a collector.
package telemetry
