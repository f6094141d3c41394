// Package otel exports tokenauth engine metrics through an OpenTelemetry Meter.
//
// [NewExporter] registers one Int64ObservableCounter per engine counter and an
// Int64ObservableGauge per latency bucket. A single callback reads
// [tokenauth.Engine.MetricsSnapshot] on each collection cycle.
//
// The caller owns the MeterProvider.
package otel
