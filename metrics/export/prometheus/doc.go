// Package prometheus provides Prometheus collectors for stepup metrics.
//
// [NewPrometheusExporter] accepts a [stepup.Engine] and exposes an [http.Handler]
// that renders all stepup counters and histograms in Prometheus text exposition format.
// Counter names are prefixed stepup_*_total; the single histogram is
// stepup_verify_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry — callers mount the Handler.
//   - Mutate engine state.
package prometheus
