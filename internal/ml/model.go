// Package ml loads and serves the pre-trained classification models.
//
// Model numerics run in long-lived Python worker processes started through
// Bridge, one per model, each holding its weights in memory. This package
// owns everything around them: locating and validating model artifacts,
// memoizing predictions, recording metrics, and the Provider that loads each
// model at most once for the life of the process.
package ml

import (
	"context"
	"encoding/json"
	"time"

	"isamples-modelserver/internal/taxonomy"
)

// MetricsInterface defines metrics methods needed by the models and provider.
type MetricsInterface interface {
	MLPredictionsInc(model string)
	MLFailuresInc(model string)
	MLTimeoutsInc(model string)
	MLLatencyObserve(model string, seconds float64)
	MLCacheHitsInc(model string)
	MLCacheMissesInc(model string)
	MLModelLoadObserve(model string, seconds float64)
}

type noopMetrics struct{}

func (noopMetrics) MLPredictionsInc(string)            {}
func (noopMetrics) MLFailuresInc(string)               {}
func (noopMetrics) MLTimeoutsInc(string)               {}
func (noopMetrics) MLLatencyObserve(string, float64)   {}
func (noopMetrics) MLCacheHitsInc(string)              {}
func (noopMetrics) MLCacheMissesInc(string)            {}
func (noopMetrics) MLModelLoadObserve(string, float64) {}

// ModelKey identifies a served model.
type ModelKey struct {
	Collection taxonomy.Collection
	Type       taxonomy.ModelType
}

func (k ModelKey) String() string {
	return string(k.Collection) + "/" + string(k.Type)
}

var (
	KeyOpenContextMaterial = ModelKey{taxonomy.CollectionOpenContext, taxonomy.ModelTypeMaterial}
	KeyOpenContextSample   = ModelKey{taxonomy.CollectionOpenContext, taxonomy.ModelTypeSample}
	KeySESARMaterial       = ModelKey{taxonomy.CollectionSESAR, taxonomy.ModelTypeMaterial}
	KeySmithsonianContext  = ModelKey{taxonomy.CollectionSmithsonian, taxonomy.ModelTypeContext}
)

// AllKeys lists every model the server can serve.
func AllKeys() []ModelKey {
	return []ModelKey{KeyOpenContextMaterial, KeyOpenContextSample, KeySESARMaterial, KeySmithsonianContext}
}

// ModelInfo describes a loaded model.
type ModelInfo struct {
	Key          string    `json:"key"`
	Kind         string    `json:"kind"`
	Path         string    `json:"path"`
	ClassNames   []string  `json:"class_names,omitempty"`
	TopK         int       `json:"top_k"`
	LoadedAt     time.Time `json:"loaded_at"`
	LoadDuration float64   `json:"load_duration_ms"`
}

// LoadedModel is anything the Provider can hold.
type LoadedModel interface {
	Info() ModelInfo
	Close() error
}

// model is the part shared by all worker-backed models: cache lookup,
// inference call and metrics.
type model struct {
	info    ModelInfo
	worker  *worker
	cache   *PredictionCache
	metrics MetricsInterface
}

func (m *model) Info() ModelInfo {
	return m.info
}

// Close stops the model's worker process.
func (m *model) Close() error {
	if m.worker == nil {
		return nil
	}
	return m.worker.Close()
}

func (m *model) predict(ctx context.Context, cacheKey string, req workerRequest) ([]taxonomy.PredictionResult, error) {
	name := m.info.Key
	if cached, ok := m.cache.Get(cacheKey); ok {
		m.metrics.MLCacheHitsInc(name)
		return cached, nil
	}
	m.metrics.MLCacheMissesInc(name)

	start := time.Now()
	predictions, err := m.worker.predict(ctx, req)
	m.metrics.MLLatencyObserve(name, time.Since(start).Seconds())
	if err != nil {
		m.metrics.MLFailuresInc(name)
		if isTimeout(err) {
			m.metrics.MLTimeoutsInc(name)
		}
		return nil, err
	}
	m.metrics.MLPredictionsInc(name)

	results := make([]taxonomy.PredictionResult, len(predictions))
	for i, p := range predictions {
		results[i] = taxonomy.PredictionResult{Value: p.Label, Confidence: p.Confidence}
	}
	m.cache.Put(cacheKey, results)
	return results, nil
}

// BertModel is a fine-tuned BERT sequence classifier.
type BertModel struct {
	model
	config ModelConfig
}

// Classify returns the top k labels for text.
func (m *BertModel) Classify(ctx context.Context, text string) ([]taxonomy.PredictionResult, error) {
	return m.predict(ctx, text, workerRequest{Text: text})
}

// FastTextModel is a FastText classifier over a list of strings.
type FastTextModel struct {
	model
	path string
}

// ClassifyFeature returns the ranked labels for input.
func (m *FastTextModel) ClassifyFeature(ctx context.Context, input []string) ([]taxonomy.PredictionResult, error) {
	return m.predict(ctx, inputKey(input), workerRequest{Inputs: input})
}

// inputKey encodes input so that distinct lists never share a cache entry.
func inputKey(input []string) string {
	if input == nil {
		input = []string{}
	}
	data, _ := json.Marshal(input)
	return string(data)
}
