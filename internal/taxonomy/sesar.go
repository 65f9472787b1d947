package taxonomy

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNilClassifier is returned when a predictor is built without a model.
var ErrNilClassifier = errors.New("classifier is required to be non-nil")

// SESARMaterialPredictor predicts the material type of SESAR records. A rule
// pass runs first; only records no rule decides reach the model.
type SESARMaterialPredictor struct {
	classifier Classifier
}

func NewSESARMaterialPredictor(c Classifier) (*SESARMaterialPredictor, error) {
	if c == nil {
		return nil, ErrNilClassifier
	}
	return &SESARMaterialPredictor{classifier: c}, nil
}

// PredictMaterialType returns a single rule-based result with confidence 1.0
// when a rule applies, the model's ranked labels otherwise. Test records and
// ignored sample types are refused with a *MetadataError.
func (p *SESARMaterialPredictor) PredictMaterialType(ctx context.Context, record map[string]any) ([]PredictionResult, error) {
	in, err := ParseSESARRecord(record)
	if err != nil {
		return nil, err
	}

	label, err := ClassifySESARByRule(in.MaterialText, in.DescriptionMap)
	if err != nil {
		return nil, err
	}
	if label != "" {
		return []PredictionResult{{
			Value:      SESARControlledVocabulary(label),
			Confidence: RuleBasedConfidence,
		}}, nil
	}

	predictions, err := p.classifier.Classify(ctx, in.MaterialText)
	if err != nil {
		return nil, fmt.Errorf("sesar material model: %w", err)
	}
	results := make([]PredictionResult, len(predictions))
	for i, pr := range predictions {
		results[i] = PredictionResult{
			Value:      SESARControlledVocabulary(pr.Value),
			Confidence: pr.Confidence,
		}
	}
	return results, nil
}

// sesarRuleFields are the description map entries the rules look at. The
// supplementMetadata_ prefix is dropped when they are copied out.
var sesarRuleFields = []string{
	"sampleType",
	"supplementMetadata_cruiseFieldPrgrm",
	"igsnPrefix",
	"description",
	"supplementMetadata_primaryLocationType",
}

// ClassifySESARByRule returns the controlled vocabulary label decided by a
// rule, or "" when the record needs the model.
func ClassifySESARByRule(text string, descriptionMap map[string]string) (string, error) {
	fields := make(map[string]string, len(sesarRuleFields))
	for _, key := range sesarRuleFields {
		if v, ok := descriptionMap[key]; ok {
			fields[strings.TrimPrefix(key, sesarSupplementField+"_")] = v
		}
	}

	if err := checkSESARExcluded(fields); err != nil {
		return "", err
	}
	if label := classifySESARBySampleType(fields); label != "" {
		return SESARControlledVocabulary(label), nil
	}
	if !sesarInformative(text, descriptionMap) {
		return "Material", nil
	}
	return "", nil
}

func checkSESARExcluded(fields map[string]string) error {
	if prefix := fields["igsnPrefix"]; prefix != "" {
		for _, test := range sesarTestIGSNPrefixes {
			if strings.Contains(prefix, test) {
				return NewTestRecordError("Record excluded from indexing due to a known test igsnPrefix")
			}
		}
	}
	switch fields["sampleType"] {
	case "Hole", "Site":
		return NewSESARSampleTypeError("Record excluded from indexing due to it being a known ignored sampleType")
	}
	return nil
}

func classifySESARBySampleType(fields map[string]string) string {
	sampleType := fields["sampleType"]
	sampleTypeLower := strings.ToLower(sampleType)

	// "ODP" also matches IODP programs
	if strings.Contains(fields["cruiseFieldPrgrm"], "ODP") {
		if strings.Contains(sampleTypeLower, "core") {
			return "Mixed soil, sediment, rock"
		}
		if sampleType == "Individual Sample" {
			return "Sediment or Rock"
		}
		if strings.Contains(strings.ToLower(fields["description"]), "macrofossil") {
			return "Rock"
		}
	}
	if strings.Contains(sampleTypeLower, "dredge") {
		return "Natural Solid Material"
	}
	if fields["primaryLocationType"] == "wetland" && strings.Contains(sampleTypeLower, "core") {
		return "Material"
	}
	switch sampleType {
	case "U-channel":
		return "Sediment"
	case "CTP":
		return "Liquid"
	case "Individual Sample>Cylinder":
		return "Material"
	}
	return ""
}

// sesarInformative reports false for records carrying nothing but a sample
// type: no description, no material word, and text equal to the sampleType.
func sesarInformative(text string, descriptionMap map[string]string) bool {
	descriptive := descriptionMap["description"] != ""

	contentBearing := false
	for _, word := range sesarCVWords {
		if strings.Contains(text, word) {
			contentBearing = true
			break
		}
	}

	sampleType, ok := descriptionMap[sesarSampleTypeField]
	if ok && text == sampleType && !descriptive && !contentBearing {
		return false
	}
	return true
}
