package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"isamples-modelserver/internal/ml"
	"isamples-modelserver/internal/taxonomy"
)

type stubMaterialPredictor struct {
	results []taxonomy.PredictionResult
	err     error
	records []map[string]any
}

func (p *stubMaterialPredictor) PredictMaterialType(_ context.Context, record map[string]any) ([]taxonomy.PredictionResult, error) {
	p.records = append(p.records, record)
	return p.results, p.err
}

type stubSamplePredictor struct {
	results []taxonomy.PredictionResult
	err     error
}

func (p *stubSamplePredictor) PredictSampleType(_ context.Context, _ map[string]any) ([]taxonomy.PredictionResult, error) {
	return p.results, p.err
}

type stubFeaturePredictor struct {
	label  string
	err    error
	inputs [][]string
}

func (p *stubFeaturePredictor) PredictSampledFeature(_ context.Context, input []string) (string, error) {
	p.inputs = append(p.inputs, input)
	return p.label, p.err
}

type stubModels struct {
	infos []ml.ModelInfo
}

func (m stubModels) Loaded() []ml.ModelInfo { return m.infos }

type recordingRecorder struct {
	mu       sync.Mutex
	refused  []string
	requests map[string]int
}

func (r *recordingRecorder) RecordRefused(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refused = append(r.refused, kind)
}

func (r *recordingRecorder) refusedKinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.refused...)
}

func (r *recordingRecorder) ObserveRequest(route string, status int, _ float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.requests == nil {
		r.requests = make(map[string]int)
	}
	r.requests[route]++
}

func (r *recordingRecorder) StreamOpened()       {}
func (r *recordingRecorder) StreamClosed()       {}
func (r *recordingRecorder) StreamDiscardedInc() {}

type fixture struct {
	server      *Server
	ocMaterial  *stubMaterialPredictor
	ocSample    *stubSamplePredictor
	sesar       *stubMaterialPredictor
	smithsonian *stubFeaturePredictor
	recorder    *recordingRecorder
}

func newFixture() *fixture {
	f := &fixture{
		ocMaterial:  &stubMaterialPredictor{results: []taxonomy.PredictionResult{{Value: "material", Confidence: 0.5}}},
		ocSample:    &stubSamplePredictor{results: []taxonomy.PredictionResult{{Value: "sample", Confidence: 0.25}, {Value: "other", Confidence: 0.2}}},
		sesar:       &stubMaterialPredictor{results: []taxonomy.PredictionResult{{Value: "Rock", Confidence: 1.0}}},
		smithsonian: &stubFeaturePredictor{label: "sampled feature"},
		recorder:    &recordingRecorder{},
	}
	f.server = New(Predictors{
		OpenContextMaterial: f.ocMaterial,
		OpenContextSample:   f.ocSample,
		SESARMaterial:       f.sesar,
		SmithsonianFeature:  f.smithsonian,
	}, Options{
		Models:  stubModels{infos: []ml.ModelInfo{{Key: "sesar/material", Kind: "bert", Path: "/models/sesar", TopK: 3}}},
		Metrics: f.recorder,
	})
	return f
}

func (f *fixture) post(t *testing.T, path, body string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec.Code, rec.Body.String()
}

func (f *fixture) get(t *testing.T, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec.Code, rec.Body.String()
}

func TestOpenContextMaterial(t *testing.T) {
	f := newFixture()

	code, body := f.post(t, "/opencontext", `{"source_record": {"foo":"bar"}, "type":"material"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[{"value":"material","confidence":0.5}]`, body)
	require.Len(t, f.ocMaterial.records, 1)
	assert.Equal(t, map[string]any{"foo": "bar"}, f.ocMaterial.records[0])
}

func TestOpenContextSample(t *testing.T) {
	f := newFixture()

	code, body := f.post(t, "/opencontext", `{"source_record": {"foo":"bar"}, "type":"sample"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[{"value":"sample","confidence":0.25},{"value":"other","confidence":0.2}]`, body)
}

func TestSESARMaterial_ConfidenceIsFloat(t *testing.T) {
	f := newFixture()

	code, body := f.post(t, "/sesar", `{"source_record": {"description": {}}, "type":"material"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, `[{"value":"Rock","confidence":1.0}]`, strings.TrimSpace(body))
}

func TestSmithsonian(t *testing.T) {
	f := newFixture()

	code, body := f.post(t, "/smithsonian", `{"input": ["foo"], "type":"context"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, `"sampled feature"`, strings.TrimSpace(body))
	assert.Equal(t, [][]string{{"foo"}}, f.smithsonian.inputs)
}

func TestInvalidRequests(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		body   string
		detail string
	}{
		{"opencontext context type", "/opencontext", `{"source_record": {"foo":"bar"}, "type":"context"}`, msgOpenContextType},
		{"opencontext unknown type", "/opencontext", `{"source_record": {"foo":"bar"}, "type":"rock"}`, msgOpenContextType},
		{"sesar sample type", "/sesar", `{"source_record": {"foo":"bar"}, "type":"sample"}`, msgSESARType},
		{"sesar context type", "/sesar", `{"source_record": {"foo":"bar"}, "type":"context"}`, msgSESARType},
		{"smithsonian material type", "/smithsonian", `{"input": ["foo"], "type":"material"}`, msgSmithsonianType},
		{"smithsonian missing input", "/smithsonian", `{"type":"context"}`, msgInputRequired},
		{"smithsonian empty input", "/smithsonian", `{"input": [], "type":"context"}`, msgInputRequired},
		{"smithsonian input checked before type", "/smithsonian", `{"type":"sample"}`, msgInputRequired},
		{"missing source record", "/opencontext", `{"type":"material"}`, msgRecordRequired},
		{"sesar missing source record", "/sesar", `{"type":"material"}`, msgRecordRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			code, body := f.post(t, tt.path, tt.body)
			assert.Equal(t, http.StatusInternalServerError, code)
			assert.JSONEq(t, `{"detail":`+quote(tt.detail)+`}`, body)
			assert.Empty(t, f.ocMaterial.records)
			assert.Empty(t, f.sesar.records)
			assert.Empty(t, f.smithsonian.inputs)
		})
	}
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

func TestUnparseableBody(t *testing.T) {
	f := newFixture()

	code, body := f.post(t, "/opencontext", `{"source_record": `)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Contains(t, body, "Unable to parse request body")

	code, body = f.post(t, "/sesar", `{"source_record": ["not", "an", "object"], "type": "material"}`)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Contains(t, body, "Unable to parse request body")
}

func TestRefusedRecordsAreConflicts(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			"test record",
			taxonomy.NewTestRecordError("Record excluded from indexing due to a known test igsnPrefix"),
			`{"exception":"TestRecordException","message":"Record excluded from indexing due to a known test igsnPrefix"}`,
		},
		{
			"excluded sample type",
			taxonomy.NewSESARSampleTypeError("Record excluded from indexing due to it being a known ignored sampleType"),
			`{"exception":"SESARSampleTypeException","message":"Record excluded from indexing due to it being a known ignored sampleType"}`,
		},
		{
			"wrapped",
			fmt.Errorf("predict: %w", taxonomy.NewTestRecordError("fixture")),
			`{"exception":"TestRecordException","message":"fixture"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.sesar.err = tt.err
			f.sesar.results = nil

			code, body := f.post(t, "/sesar", `{"source_record": {"description": {}}, "type":"material"}`)
			assert.Equal(t, http.StatusConflict, code)
			assert.JSONEq(t, tt.want, body)
			require.Len(t, f.recorder.refused, 1)
		})
	}
}

func TestInferenceFaultIs500(t *testing.T) {
	f := newFixture()
	f.smithsonian.err = fmt.Errorf("smithsonian model: %w", ml.ErrInferenceTimeout)

	code, body := f.post(t, "/smithsonian", `{"input": ["foo"], "type":"context"}`)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.JSONEq(t, `{"detail":"smithsonian model: inference timed out"}`, body)
	assert.Empty(t, f.recorder.refused)
}

func TestMissingPredictor(t *testing.T) {
	s := New(Predictors{}, Options{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sesar", strings.NewReader(`{"source_record": {}, "type":"material"}`)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "no predictor configured for sesar/material")
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture()

	code, _ := f.get(t, "/opencontext")
	assert.Equal(t, http.StatusMethodNotAllowed, code)
}

func TestHealth(t *testing.T) {
	f := newFixture()

	code, body := f.get(t, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body, `"status":"loading"`)

	f.server.MarkReady()
	code, body = f.get(t, "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"status":"ok"`)
	assert.Contains(t, body, `"models_loaded":1`)
}

func TestModels(t *testing.T) {
	f := newFixture()

	code, body := f.get(t, "/models")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"key":"sesar/material"`)
	assert.Contains(t, body, `"path":"/models/sesar"`)

	s := New(Predictors{}, Options{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/models", nil))
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestMetricsEndpoint(t *testing.T) {
	s := New(Predictors{}, Options{MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ml_predictions_total 3\n")
	})})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ml_predictions_total 3")
}

func TestRequestsAreRecordedByRoute(t *testing.T) {
	f := newFixture()

	f.post(t, "/opencontext", `{"source_record": {"foo":"bar"}, "type":"material"}`)
	f.post(t, "/opencontext", `{"source_record": {"foo":"bar"}, "type":"context"}`)
	f.get(t, "/nope")

	assert.Equal(t, 2, f.recorder.requests["/opencontext"])
	assert.Equal(t, 1, f.recorder.requests["unmatched"])
}

func TestPanicIsRecovered(t *testing.T) {
	f := newFixture()
	f.server.predictors.SESARMaterial = panicPredictor{}

	code, _ := f.post(t, "/sesar", `{"source_record": {}, "type":"material"}`)
	assert.Equal(t, http.StatusInternalServerError, code)
}

type panicPredictor struct{}

func (panicPredictor) PredictMaterialType(context.Context, map[string]any) ([]taxonomy.PredictionResult, error) {
	panic(errors.New("boom"))
}

func TestStartAndShutdown(t *testing.T) {
	s := New(Predictors{}, Options{Addr: "127.0.0.1:0"})

	done := make(chan error, 1)
	go func() { done <- s.Start() }()

	require.NoError(t, s.Shutdown(context.Background()))
	assert.NoError(t, <-done)
}
