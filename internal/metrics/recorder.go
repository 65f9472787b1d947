package metrics

import "strconv"

// The methods below let *Metrics serve as the metrics sink of the ml package
// and the HTTP server without either importing Prometheus.

func (m *Metrics) MLPredictionsInc(model string) {
	m.MLPredictions.WithLabelValues(model).Inc()
}

func (m *Metrics) MLFailuresInc(model string) {
	m.MLFailures.WithLabelValues(model).Inc()
}

func (m *Metrics) MLTimeoutsInc(model string) {
	m.MLTimeouts.WithLabelValues(model).Inc()
}

func (m *Metrics) MLLatencyObserve(model string, seconds float64) {
	m.MLLatency.WithLabelValues(model).Observe(seconds)
}

func (m *Metrics) MLCacheHitsInc(model string) {
	m.MLCacheHits.WithLabelValues(model).Inc()
}

func (m *Metrics) MLCacheMissesInc(model string) {
	m.MLCacheMisses.WithLabelValues(model).Inc()
}

// MLModelLoadObserve records a completed model load.
func (m *Metrics) MLModelLoadObserve(model string, seconds float64) {
	m.MLModelLoad.WithLabelValues(model).Observe(seconds)
	m.ModelsLoaded.Inc()
}

// RecordRefused counts a record refused with the given exception kind.
func (m *Metrics) RecordRefused(kind string) {
	m.RecordsRefused.WithLabelValues(kind).Inc()
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(route string, status int, seconds float64) {
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(seconds)
}

func (m *Metrics) StreamOpened() {
	m.WSConnections.Inc()
}

func (m *Metrics) StreamClosed() {
	m.WSConnections.Dec()
}

func (m *Metrics) StreamDiscardedInc() {
	m.StreamDiscarded.Inc()
}
