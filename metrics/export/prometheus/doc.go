// Package prometheus exposes authflow controller metrics to Prometheus.
//
// [NewCollector] wraps a [authflow.Controller] in a prometheus.Collector that
// reads [authflow.Controller.MetricsSnapshot] on every scrape. Counter names
// are authflow_*_total; the single histogram is
// authflow_reconcile_latency_seconds.
//
// The collector is never registered globally. Callers register it themselves
// or mount [Collector.Handler], which serves it from a private registry.
package prometheus
