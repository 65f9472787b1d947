package ml

import "sync"

// MockMetrics implements MetricsInterface for testing
type MockMetrics struct {
	mu          sync.Mutex
	predictions map[string]int
	failures    map[string]int
	timeouts    map[string]int
	cacheHits   map[string]int
	cacheMisses map[string]int
	latencies   map[string][]float64
	loads       map[string][]float64
}

func (m *MockMetrics) inc(counts *map[string]int, model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if *counts == nil {
		*counts = make(map[string]int)
	}
	(*counts)[model]++
}

func (m *MockMetrics) observe(values *map[string][]float64, model string, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if *values == nil {
		*values = make(map[string][]float64)
	}
	(*values)[model] = append((*values)[model], v)
}

func (m *MockMetrics) MLPredictionsInc(model string) { m.inc(&m.predictions, model) }
func (m *MockMetrics) MLFailuresInc(model string)    { m.inc(&m.failures, model) }
func (m *MockMetrics) MLTimeoutsInc(model string)    { m.inc(&m.timeouts, model) }
func (m *MockMetrics) MLCacheHitsInc(model string)   { m.inc(&m.cacheHits, model) }
func (m *MockMetrics) MLCacheMissesInc(model string) { m.inc(&m.cacheMisses, model) }

func (m *MockMetrics) MLLatencyObserve(model string, v float64) {
	m.observe(&m.latencies, model, v)
}

func (m *MockMetrics) MLModelLoadObserve(model string, v float64) {
	m.observe(&m.loads, model, v)
}

// Count returns a counter value by metric name: predictions, failures,
// timeouts, cache_hits or cache_misses.
func (m *MockMetrics) Count(metric, model string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch metric {
	case "predictions":
		return m.predictions[model]
	case "failures":
		return m.failures[model]
	case "timeouts":
		return m.timeouts[model]
	case "cache_hits":
		return m.cacheHits[model]
	case "cache_misses":
		return m.cacheMisses[model]
	}
	return 0
}

// Loads returns how many load durations were observed for model.
func (m *MockMetrics) Loads(model string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.loads[model])
}
