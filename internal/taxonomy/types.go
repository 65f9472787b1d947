// Package taxonomy holds the prediction vocabulary of the model server: the
// model types and source collections it understands, the predictor
// capabilities the HTTP layer dispatches to, and the per-collection
// predictors that turn a raw source record into classifier text.
//
// The predictors never run model numerics themselves. They hand text to a
// Classifier (see internal/ml) and adapt its output.
package taxonomy

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ModelType is the conceptual type of data a model predicts.
type ModelType string

const (
	ModelTypeMaterial ModelType = "material"
	ModelTypeSample   ModelType = "sample"
	ModelTypeContext  ModelType = "context"
)

// Collection is the origin schema of a sample record.
type Collection string

const (
	CollectionOpenContext Collection = "opencontext"
	CollectionSESAR       Collection = "sesar"
	CollectionSmithsonian Collection = "smithsonian"
)

// RuleBasedConfidence is reported for labels assigned by a rule instead of a model.
const RuleBasedConfidence = 1.0

// PredictionResult is one candidate label with its probability.
type PredictionResult struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// MarshalJSON always renders confidence as a JSON float so that a rule-based
// 1.0 is not collapsed to the integer 1.
func (r PredictionResult) MarshalJSON() ([]byte, error) {
	if math.IsNaN(r.Confidence) || math.IsInf(r.Confidence, 0) {
		return nil, fmt.Errorf("invalid confidence %v for %q", r.Confidence, r.Value)
	}
	value, err := json.Marshal(r.Value)
	if err != nil {
		return nil, err
	}
	conf := strconv.FormatFloat(r.Confidence, 'f', -1, 64)
	if !strings.ContainsAny(conf, ".eE") {
		conf += ".0"
	}

	var b strings.Builder
	b.Grow(len(value) + len(conf) + 28)
	b.WriteString(`{"value":`)
	b.Write(value)
	b.WriteString(`,"confidence":`)
	b.WriteString(conf)
	b.WriteByte('}')
	return []byte(b.String()), nil
}
