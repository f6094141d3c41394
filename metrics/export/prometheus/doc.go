// Package prometheus exposes tokenauth engine metrics as a Prometheus collector.
//
// [NewCollector] wraps a [tokenauth.Engine]; register it with any registry or
// mount [Collector.Handler]. Counter names are prefixed tokenauth_*_total; the
// single histogram is tokenauth_authenticate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry.
//   - Mutate engine state.
package prometheus
