// Package prometheus exposes the login engine counters as a Prometheus collector.
//
// [PrometheusExporter] implements prometheus.Collector and can be registered on any
// registry, or mounted directly through [PrometheusExporter.Handler]. Counter names
// are prefixed emf_auth_ and suffixed _total; the single histogram is
// emf_auth_login_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry.
//   - Mutate engine state.
package prometheus
