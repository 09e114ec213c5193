package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collector exposes a Recorder's snapshot as prometheus metrics. Values
// are derived from the rolling window at scrape time, so restarts and
// window trimming are reflected naturally.
type Collector struct {
	rec *Recorder

	totalDesc     *prometheus.Desc
	successDesc   *prometheus.Desc
	failureDesc   *prometheus.Desc
	errorRateDesc *prometheus.Desc
	latencyDesc   *prometheus.Desc
	tokensDesc    *prometheus.Desc
	retriesDesc   *prometheus.Desc
	fallbackDesc  *prometheus.Desc
}

// NewCollector constructs a Collector over the given Recorder.
func NewCollector(rec *Recorder) *Collector {
	return &Collector{
		rec: rec,
		totalDesc: prometheus.NewDesc(
			"infermesh_inferences_total",
			"Inference attempts in the rolling window.", nil, nil),
		successDesc: prometheus.NewDesc(
			"infermesh_inferences_success",
			"Successful inferences in the rolling window.", nil, nil),
		failureDesc: prometheus.NewDesc(
			"infermesh_inferences_failure",
			"Failed inferences in the rolling window.", nil, nil),
		errorRateDesc: prometheus.NewDesc(
			"infermesh_inference_error_rate",
			"Failure ratio over the rolling window.", nil, nil),
		latencyDesc: prometheus.NewDesc(
			"infermesh_inference_latency_ms",
			"Inference latency in milliseconds by quantile.", []string{"quantile"}, nil),
		tokensDesc: prometheus.NewDesc(
			"infermesh_tokens_per_second",
			"Average generation throughput.", nil, nil),
		retriesDesc: prometheus.NewDesc(
			"infermesh_inference_retries_total",
			"Retries performed in the rolling window.", nil, nil),
		fallbackDesc: prometheus.NewDesc(
			"infermesh_backend_fallbacks_total",
			"Inferences served via backend fallback in the rolling window.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.totalDesc
	ch <- c.successDesc
	ch <- c.failureDesc
	ch <- c.errorRateDesc
	ch <- c.latencyDesc
	ch <- c.tokensDesc
	ch <- c.retriesDesc
	ch <- c.fallbackDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.rec.Snapshot()
	ch <- prometheus.MustNewConstMetric(c.totalDesc, prometheus.GaugeValue, float64(snap.TotalInferences))
	ch <- prometheus.MustNewConstMetric(c.successDesc, prometheus.GaugeValue, float64(snap.SuccessCount))
	ch <- prometheus.MustNewConstMetric(c.failureDesc, prometheus.GaugeValue, float64(snap.FailureCount))
	ch <- prometheus.MustNewConstMetric(c.errorRateDesc, prometheus.GaugeValue, snap.ErrorRate)
	ch <- prometheus.MustNewConstMetric(c.latencyDesc, prometheus.GaugeValue, snap.P50LatencyMs, "0.5")
	ch <- prometheus.MustNewConstMetric(c.latencyDesc, prometheus.GaugeValue, snap.P95LatencyMs, "0.95")
	ch <- prometheus.MustNewConstMetric(c.latencyDesc, prometheus.GaugeValue, snap.P99LatencyMs, "0.99")
	ch <- prometheus.MustNewConstMetric(c.tokensDesc, prometheus.GaugeValue, snap.AvgTokensPerSecond)
	ch <- prometheus.MustNewConstMetric(c.retriesDesc, prometheus.GaugeValue, float64(snap.TotalRetries))
	ch <- prometheus.MustNewConstMetric(c.fallbackDesc, prometheus.GaugeValue, float64(snap.FallbackCount))
}

// Register attaches a Collector for rec to the given registerer.
func Register(reg prometheus.Registerer, rec *Recorder) error {
	return reg.Register(NewCollector(rec))
}
