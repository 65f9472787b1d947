package taxonomy

import (
	"context"
	"fmt"
)

// OpenContextMaterialPredictor predicts the material type of OpenContext records.
type OpenContextMaterialPredictor struct {
	classifier Classifier
}

func NewOpenContextMaterialPredictor(c Classifier) (*OpenContextMaterialPredictor, error) {
	if c == nil {
		return nil, ErrNilClassifier
	}
	return &OpenContextMaterialPredictor{classifier: c}, nil
}

func (p *OpenContextMaterialPredictor) PredictMaterialType(ctx context.Context, record map[string]any) ([]PredictionResult, error) {
	in := ParseOpenContextRecord(record)
	results, err := p.classifier.Classify(ctx, in.MaterialText)
	if err != nil {
		return nil, fmt.Errorf("opencontext material model: %w", err)
	}
	return results, nil
}

// OpenContextSamplePredictor predicts the sample type of OpenContext records.
type OpenContextSamplePredictor struct {
	classifier Classifier
}

func NewOpenContextSamplePredictor(c Classifier) (*OpenContextSamplePredictor, error) {
	if c == nil {
		return nil, ErrNilClassifier
	}
	return &OpenContextSamplePredictor{classifier: c}, nil
}

func (p *OpenContextSamplePredictor) PredictSampleType(ctx context.Context, record map[string]any) ([]PredictionResult, error) {
	in := ParseOpenContextRecord(record)
	results, err := p.classifier.Classify(ctx, in.SampleText)
	if err != nil {
		return nil, fmt.Errorf("opencontext sample model: %w", err)
	}
	return results, nil
}
