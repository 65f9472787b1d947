package cfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"isamples-modelserver/internal/common"
)

type Settings struct {
	ListenAddr          string
	LogLevel            string
	LogFormat           string
	PythonPath          string
	InferenceScript     string
	InferenceTimeout    time.Duration
	ModelLoadTimeout    time.Duration
	ShutdownTimeout     time.Duration
	WarmUp              bool
	PredictionCacheSize int
	TopK                int
	Models              ModelPaths
}

// ModelPaths locates the artifacts of every served model. An empty path
// means the model is not configured; requests for it fail when it is loaded.
type ModelPaths struct {
	FastText            string
	SESARMaterial       Artifact
	OpenContextMaterial Artifact
	OpenContextSample   Artifact
}

// Artifact is a fine-tuned BERT model and its JSON configuration.
type Artifact struct {
	ModelPath  string `yaml:"modelPath"`
	ConfigPath string `yaml:"configPath"`
}

type ConfigFile struct {
	Server struct {
		ListenAddr      string `yaml:"listenAddr"`
		ShutdownTimeout string `yaml:"shutdownTimeout"`
	} `yaml:"server"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Inference struct {
		PythonPath  string `yaml:"pythonPath"`
		Script      string `yaml:"script"`
		Timeout     string `yaml:"timeout"`
		LoadTimeout string `yaml:"loadTimeout"`
		WarmUp      *bool  `yaml:"warmUp"`
		CacheSize   *int   `yaml:"cacheSize"`
		TopK        int    `yaml:"topK"`
	} `yaml:"inference"`

	Models struct {
		FastText struct {
			ModelPath string `yaml:"modelPath"`
		} `yaml:"fasttext"`
		SESARMaterial       Artifact `yaml:"sesarMaterial"`
		OpenContextMaterial Artifact `yaml:"openContextMaterial"`
		OpenContextSample   Artifact `yaml:"openContextSample"`
	} `yaml:"models"`
}

func Load() (Settings, error) {
	// Try to load from YAML file first
	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

	// Fallback to environment variables
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	inferenceTimeout, err := parseDurationOrDefault(config.Inference.Timeout, common.DefaultInferenceTimeout)
	if err != nil {
		return Settings{}, fmt.Errorf("invalid inference timeout: %w", err)
	}
	loadTimeout, err := parseDurationOrDefault(config.Inference.LoadTimeout, common.DefaultModelLoadTimeout)
	if err != nil {
		return Settings{}, fmt.Errorf("invalid model load timeout: %w", err)
	}
	shutdownTimeout, err := parseDurationOrDefault(config.Server.ShutdownTimeout, common.DefaultShutdownTimeout)
	if err != nil {
		return Settings{}, fmt.Errorf("invalid shutdown timeout: %w", err)
	}

	warmUp := common.DefaultWarmUp
	if config.Inference.WarmUp != nil {
		warmUp = *config.Inference.WarmUp
	}
	cacheSize := common.DefaultPredictionCacheSize
	if config.Inference.CacheSize != nil {
		cacheSize = *config.Inference.CacheSize
	}
	topK := config.Inference.TopK
	if topK == 0 {
		topK = common.DefaultTopK
	}

	// Override with environment variables if they exist
	settings := Settings{
		ListenAddr:          getEnvOrDefault(common.EnvListenAddr, orDefault(config.Server.ListenAddr, common.DefaultListenAddr)),
		LogLevel:            getEnvOrDefault(common.EnvLogLevel, orDefault(config.Logging.Level, common.DefaultLogLevel)),
		LogFormat:           getEnvOrDefault(common.EnvLogFormat, orDefault(config.Logging.Format, common.DefaultLogFormat)),
		PythonPath:          getEnvOrDefault(common.EnvPythonPath, config.Inference.PythonPath),
		InferenceScript:     getEnvOrDefault(common.EnvInferenceScript, config.Inference.Script),
		InferenceTimeout:    getDurationOrDefault(common.EnvInferenceTimeout, inferenceTimeout),
		ModelLoadTimeout:    getDurationOrDefault(common.EnvModelLoadTimeout, loadTimeout),
		ShutdownTimeout:     getDurationOrDefault(common.EnvShutdownTimeout, shutdownTimeout),
		WarmUp:              getBoolOrDefault(common.EnvWarmUp, warmUp),
		PredictionCacheSize: getIntOrDefault(common.EnvPredictionCacheSize, cacheSize),
		TopK:                getIntOrDefault(common.EnvTopK, topK),
		Models: ModelPaths{
			FastText:            getEnvOrDefault(common.EnvFastTextModelPath, config.Models.FastText.ModelPath),
			SESARMaterial:       artifactFromEnv(common.EnvSESARMaterialModelPath, common.EnvSESARMaterialConfigPath, config.Models.SESARMaterial),
			OpenContextMaterial: artifactFromEnv(common.EnvOpenContextMaterialModelPath, common.EnvOpenContextMaterialConfigPath, config.Models.OpenContextMaterial),
			OpenContextSample:   artifactFromEnv(common.EnvOpenContextSampleModelPath, common.EnvOpenContextSampleConfigPath, config.Models.OpenContextSample),
		},
	}

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	inferenceTimeout, _ := time.ParseDuration(common.DefaultInferenceTimeout)
	loadTimeout, _ := time.ParseDuration(common.DefaultModelLoadTimeout)
	shutdownTimeout, _ := time.ParseDuration(common.DefaultShutdownTimeout)

	settings := Settings{
		ListenAddr:          getEnvOrDefault(common.EnvListenAddr, common.DefaultListenAddr),
		LogLevel:            getEnvOrDefault(common.EnvLogLevel, common.DefaultLogLevel),
		LogFormat:           getEnvOrDefault(common.EnvLogFormat, common.DefaultLogFormat),
		PythonPath:          os.Getenv(common.EnvPythonPath),      // optional, found automatically
		InferenceScript:     os.Getenv(common.EnvInferenceScript), // optional, embedded script
		InferenceTimeout:    getDurationOrDefault(common.EnvInferenceTimeout, inferenceTimeout),
		ModelLoadTimeout:    getDurationOrDefault(common.EnvModelLoadTimeout, loadTimeout),
		ShutdownTimeout:     getDurationOrDefault(common.EnvShutdownTimeout, shutdownTimeout),
		WarmUp:              getBoolOrDefault(common.EnvWarmUp, common.DefaultWarmUp),
		PredictionCacheSize: getIntOrDefault(common.EnvPredictionCacheSize, common.DefaultPredictionCacheSize),
		TopK:                getIntOrDefault(common.EnvTopK, common.DefaultTopK),
		Models: ModelPaths{
			FastText:            os.Getenv(common.EnvFastTextModelPath),
			SESARMaterial:       artifactFromEnv(common.EnvSESARMaterialModelPath, common.EnvSESARMaterialConfigPath, Artifact{}),
			OpenContextMaterial: artifactFromEnv(common.EnvOpenContextMaterialModelPath, common.EnvOpenContextMaterialConfigPath, Artifact{}),
			OpenContextSample:   artifactFromEnv(common.EnvOpenContextSampleModelPath, common.EnvOpenContextSampleConfigPath, Artifact{}),
		},
	}

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func artifactFromEnv(modelKey, configKey string, fallback Artifact) Artifact {
	return Artifact{
		ModelPath:  getEnvOrDefault(modelKey, fallback.ModelPath),
		ConfigPath: getEnvOrDefault(configKey, fallback.ConfigPath),
	}
}

func orDefault(v, defaultValue string) string {
	if v != "" {
		return v
	}
	return defaultValue
}

func parseDurationOrDefault(v, defaultValue string) (time.Duration, error) {
	return time.ParseDuration(orDefault(v, defaultValue))
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

// validateSettings performs comprehensive validation of configuration values
func validateSettings(settings *Settings) error {
	if settings.ListenAddr == "" {
		return fmt.Errorf("listen address cannot be empty")
	}

	// Validate logging
	if _, err := zerolog.ParseLevel(strings.ToLower(settings.LogLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", settings.LogLevel, err)
	}
	if settings.LogFormat != common.LogFormatConsole && settings.LogFormat != common.LogFormatJSON {
		return fmt.Errorf("log format must be %q or %q, got %q", common.LogFormatConsole, common.LogFormatJSON, settings.LogFormat)
	}

	// Validate time durations
	minTimeout := common.MinInferenceTimeoutSeconds * time.Second
	maxTimeout := common.MaxInferenceTimeoutSeconds * time.Second
	if settings.InferenceTimeout < minTimeout || settings.InferenceTimeout > maxTimeout {
		return fmt.Errorf("inference timeout must be between %v and %v, got %v", minTimeout, maxTimeout, settings.InferenceTimeout)
	}
	maxLoadTimeout := common.MaxModelLoadTimeoutMinutes * time.Minute
	if settings.ModelLoadTimeout < time.Second || settings.ModelLoadTimeout > maxLoadTimeout {
		return fmt.Errorf("model load timeout must be between 1s and %v, got %v", maxLoadTimeout, settings.ModelLoadTimeout)
	}
	if settings.ShutdownTimeout < time.Second || settings.ShutdownTimeout > 5*time.Minute {
		return fmt.Errorf("shutdown timeout must be between 1s and 5m, got %v", settings.ShutdownTimeout)
	}

	// Validate integer values
	if settings.PredictionCacheSize < 0 || settings.PredictionCacheSize > common.MaxPredictionCacheSize {
		return fmt.Errorf("prediction cache size must be between 0 and %d, got %d", common.MaxPredictionCacheSize, settings.PredictionCacheSize)
	}
	if settings.TopK < 1 || settings.TopK > common.MaxTopK {
		return fmt.Errorf("top k must be between 1 and %d, got %d", common.MaxTopK, settings.TopK)
	}

	// A fine-tuned model path alone is not enough to load a BERT model
	for name, a := range map[string]Artifact{
		"sesar material":       settings.Models.SESARMaterial,
		"opencontext material": settings.Models.OpenContextMaterial,
		"opencontext sample":   settings.Models.OpenContextSample,
	} {
		if a.ModelPath != "" && a.ConfigPath == "" {
			return fmt.Errorf("%s: model path is set but config path is missing", name)
		}
	}

	return nil
}
