// Package otel binds authflow controller metrics to an OpenTelemetry Meter.
//
// [NewExporter] registers an Int64ObservableCounter per controller counter
// and an Int64ObservableGauge per latency bucket. One callback reads
// [authflow.Controller.MetricsSnapshot] on each collection cycle.
//
// Callers own the MeterProvider; the exporter only registers instruments on
// the Meter it is given and unregisters them on Close.
package otel
