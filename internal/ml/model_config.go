package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// DefaultTopK is how many ranked labels a BERT model reports.
const DefaultTopK = 3

// ModelConfig is the JSON configuration shipped with each fine-tuned BERT
// classifier.
type ModelConfig struct {
	BertModel      string   `json:"BERT_MODEL"`
	FineTunedModel string   `json:"FINE_TUNED_MODEL"`
	ClassNames     []string `json:"CLASS_NAMES"`
	MaxSequenceLen int      `json:"MAX_SEQUENCE_LEN"`
}

// LoadModelConfig reads a model configuration file.
func LoadModelConfig(path string) (ModelConfig, error) {
	var cfg ModelConfig
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("unable to locate model config at %s: %w", path, err)
		}
		return cfg, fmt.Errorf("read model config %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse model config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that the configuration can produce topK ranked labels.
func (c ModelConfig) Validate(topK int) error {
	if c.BertModel == "" {
		return fmt.Errorf("BERT_MODEL is required")
	}
	if c.FineTunedModel == "" {
		return fmt.Errorf("FINE_TUNED_MODEL is required")
	}
	if len(c.ClassNames) == 0 {
		return fmt.Errorf("CLASS_NAMES must not be empty")
	}
	if c.MaxSequenceLen <= 0 {
		return fmt.Errorf("MAX_SEQUENCE_LEN must be positive, got %d", c.MaxSequenceLen)
	}
	if topK <= 0 || topK > len(c.ClassNames) {
		return fmt.Errorf("top k must be between 1 and %d, got %d", len(c.ClassNames), topK)
	}
	return nil
}
