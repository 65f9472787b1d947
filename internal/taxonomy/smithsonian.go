package taxonomy

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// fastTextLabelPrefix is prepended to every label by FastText models.
const fastTextLabelPrefix = "__label__"

// ErrNoPrediction is returned when a model produced no label at all.
var ErrNoPrediction = errors.New("model returned no prediction")

// SmithsonianFeaturePredictor predicts the sampled-feature context of
// Smithsonian records with a FastText model.
type SmithsonianFeaturePredictor struct {
	classifier FeatureClassifier
}

func NewSmithsonianFeaturePredictor(c FeatureClassifier) (*SmithsonianFeaturePredictor, error) {
	if c == nil {
		return nil, ErrNilClassifier
	}
	return &SmithsonianFeaturePredictor{classifier: c}, nil
}

// PredictSampledFeature returns the top ranked context label.
func (p *SmithsonianFeaturePredictor) PredictSampledFeature(ctx context.Context, input []string) (string, error) {
	results, err := p.classifier.ClassifyFeature(ctx, input)
	if err != nil {
		return "", fmt.Errorf("smithsonian context model: %w", err)
	}
	if len(results) == 0 {
		return "", ErrNoPrediction
	}
	return strings.TrimPrefix(results[0].Value, fastTextLabelPrefix), nil
}
