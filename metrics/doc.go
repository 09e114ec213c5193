// Package metrics tracks per-inference performance records in a bounded
// rolling window and derives aggregate statistics (latency percentiles,
// throughput, error rate) on demand. A prometheus.Collector adapter is
// provided for embedding applications that scrape metrics.
package metrics
