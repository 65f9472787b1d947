package taxonomy

import "context"

// MaterialTypePredictor predicts the material type of a source record.
type MaterialTypePredictor interface {
	PredictMaterialType(ctx context.Context, record map[string]any) ([]PredictionResult, error)
}

// SampleTypePredictor predicts the sample type of a source record.
type SampleTypePredictor interface {
	PredictSampleType(ctx context.Context, record map[string]any) ([]PredictionResult, error)
}

// SampledFeaturePredictor predicts the sampled-feature context from a list of
// descriptive strings.
type SampledFeaturePredictor interface {
	PredictSampledFeature(ctx context.Context, input []string) (string, error)
}

// Classifier is a loaded text classification model. Results are ranked by
// descending confidence.
type Classifier interface {
	Classify(ctx context.Context, text string) ([]PredictionResult, error)
}

// FeatureClassifier is a loaded model that labels a list of strings.
type FeatureClassifier interface {
	ClassifyFeature(ctx context.Context, input []string) ([]PredictionResult, error)
}
