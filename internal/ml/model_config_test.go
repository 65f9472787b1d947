package ml

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfigJSON = `{
  "BERT_MODEL": "bert-base-uncased",
  "FINE_TUNED_MODEL": "/models/sesar_material",
  "CLASS_NAMES": ["Rock", "Mineral", "Sediment", "Soil"],
  "MAX_SEQUENCE_LEN": 128
}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadModelConfig(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.json", testConfigJSON)

	cfg, err := LoadModelConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "bert-base-uncased", cfg.BertModel)
	assert.Equal(t, "/models/sesar_material", cfg.FineTunedModel)
	assert.Equal(t, []string{"Rock", "Mineral", "Sediment", "Soil"}, cfg.ClassNames)
	assert.Equal(t, 128, cfg.MaxSequenceLen)
	assert.NoError(t, cfg.Validate(DefaultTopK))
}

func TestLoadModelConfig_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadModelConfig(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to locate model config")
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = LoadModelConfig(writeFile(t, dir, "bad.json", "{not json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse model config")
}

func TestModelConfig_Validate(t *testing.T) {
	valid := ModelConfig{
		BertModel:      "bert-base-uncased",
		FineTunedModel: "/models/m",
		ClassNames:     []string{"a", "b", "c"},
		MaxSequenceLen: 64,
	}

	tests := []struct {
		name    string
		mutate  func(*ModelConfig)
		topK    int
		wantErr string
	}{
		{"valid", func(*ModelConfig) {}, 3, ""},
		{"missing bert model", func(c *ModelConfig) { c.BertModel = "" }, 3, "BERT_MODEL"},
		{"missing fine tuned model", func(c *ModelConfig) { c.FineTunedModel = "" }, 3, "FINE_TUNED_MODEL"},
		{"no classes", func(c *ModelConfig) { c.ClassNames = nil }, 1, "CLASS_NAMES"},
		{"zero sequence length", func(c *ModelConfig) { c.MaxSequenceLen = 0 }, 3, "MAX_SEQUENCE_LEN"},
		{"top k above class count", func(*ModelConfig) {}, 4, "top k"},
		{"zero top k", func(*ModelConfig) {}, 0, "top k"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			cfg.ClassNames = append([]string(nil), valid.ClassNames...)
			tt.mutate(&cfg)
			err := cfg.Validate(tt.topK)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
