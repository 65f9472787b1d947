package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"isamples-modelserver/internal/ml"
	"isamples-modelserver/internal/taxonomy"
)

// PredictParams is the body of /opencontext and /sesar.
type PredictParams struct {
	SourceRecord map[string]any     `json:"source_record"`
	Type         taxonomy.ModelType `json:"type"`
}

// SampledFeatureParams is the body of /smithsonian.
type SampledFeatureParams struct {
	Input []string           `json:"input"`
	Type  taxonomy.ModelType `json:"type"`
}

// HealthResponse is the body of /health.
type HealthResponse struct {
	Status        string  `json:"status"`
	ModelsLoaded  int     `json:"models_loaded"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// decodeBody keeps numbers as json.Number so that record text renders
// them as written.
func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return invalidRequest(fmt.Sprintf("Unable to parse request body: %v", err))
	}
	return nil
}

func (s *Server) handleOpenContext(w http.ResponseWriter, r *http.Request) {
	s.handleRecord(w, r, taxonomy.CollectionOpenContext)
}

func (s *Server) handleSESAR(w http.ResponseWriter, r *http.Request) {
	s.handleRecord(w, r, taxonomy.CollectionSESAR)
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request, collection taxonomy.Collection) {
	var params PredictParams
	if err := decodeBody(r, &params); err != nil {
		s.fail(w, r, err)
		return
	}

	results, err := s.predictRecord(r.Context(), collection, params.Type, params.SourceRecord)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	renderOK(w, results)
}

func (s *Server) handleSmithsonian(w http.ResponseWriter, r *http.Request) {
	var params SampledFeatureParams
	if err := decodeBody(r, &params); err != nil {
		s.fail(w, r, err)
		return
	}

	label, err := s.predictFeature(r.Context(), params.Type, params.Input)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	renderOK(w, label)
}

// predictRecord selects the predictor for a collection and model type.
func (s *Server) predictRecord(ctx context.Context, collection taxonomy.Collection, modelType taxonomy.ModelType, record map[string]any) ([]taxonomy.PredictionResult, error) {
	if record == nil {
		return nil, invalidRequest(msgRecordRequired)
	}

	switch collection {
	case taxonomy.CollectionOpenContext:
		switch modelType {
		case taxonomy.ModelTypeSample:
			if s.predictors.OpenContextSample == nil {
				return nil, errNotConfigured(ml.KeyOpenContextSample)
			}
			return s.predictors.OpenContextSample.PredictSampleType(ctx, record)
		case taxonomy.ModelTypeMaterial:
			if s.predictors.OpenContextMaterial == nil {
				return nil, errNotConfigured(ml.KeyOpenContextMaterial)
			}
			return s.predictors.OpenContextMaterial.PredictMaterialType(ctx, record)
		}
		return nil, invalidRequest(msgOpenContextType)

	case taxonomy.CollectionSESAR:
		if modelType != taxonomy.ModelTypeMaterial {
			return nil, invalidRequest(msgSESARType)
		}
		if s.predictors.SESARMaterial == nil {
			return nil, errNotConfigured(ml.KeySESARMaterial)
		}
		return s.predictors.SESARMaterial.PredictMaterialType(ctx, record)
	}
	return nil, invalidRequest(fmt.Sprintf("Unknown collection %q.", collection))
}

func (s *Server) predictFeature(ctx context.Context, modelType taxonomy.ModelType, input []string) (string, error) {
	if len(input) == 0 {
		return "", invalidRequest(msgInputRequired)
	}
	if modelType != taxonomy.ModelTypeContext {
		return "", invalidRequest(msgSmithsonianType)
	}
	if s.predictors.SmithsonianFeature == nil {
		return "", errNotConfigured(ml.KeySmithsonianContext)
	}
	return s.predictors.SmithsonianFeature.PredictSampledFeature(ctx, input)
}

func errNotConfigured(key ml.ModelKey) error {
	return fmt.Errorf("no predictor configured for %s", key)
}

// fail logs err at a level matching its kind and writes the translated response.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	s.logError(r.Context(), r.URL.Path, err)
	renderError(w, err)
}

func (s *Server) logError(ctx context.Context, route string, err error) {
	logger := log.Ctx(ctx)
	if me, ok := taxonomy.AsMetadataError(err); ok {
		s.metrics.RecordRefused(string(me.Kind))
		logger.Info().Str("route", route).Str("exception", string(me.Kind)).Msg(me.Message)
		return
	}
	logger.Error().Err(err).Str("route", route).Msg("prediction request failed")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        "ok",
		UptimeSeconds: time.Since(s.started).Seconds(),
	}
	if s.models != nil {
		resp.ModelsLoaded = len(s.models.Loaded())
	}

	status := http.StatusOK
	if !s.ready.Load() {
		resp.Status = "loading"
		status = http.StatusServiceUnavailable
	}
	renderJSON(w, resp, status)
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	models := []ml.ModelInfo{}
	if s.models != nil {
		models = s.models.Loaded()
	}
	renderOK(w, models)
}
