package common

// Environment variable keys
const (
	EnvConfigFile          = "CONFIG_FILE"
	EnvListenAddr          = "LISTEN_ADDR"
	EnvLogLevel            = "LOG_LEVEL"
	EnvLogFormat           = "LOG_FORMAT"
	EnvPythonPath          = "PYTHON_PATH"
	EnvInferenceScript     = "INFERENCE_SCRIPT"
	EnvInferenceTimeout    = "INFERENCE_TIMEOUT"
	EnvModelLoadTimeout    = "MODEL_LOAD_TIMEOUT"
	EnvWarmUp              = "WARM_UP"
	EnvPredictionCacheSize = "PREDICTION_CACHE_SIZE"
	EnvTopK                = "TOP_K"
	EnvShutdownTimeout     = "SHUTDOWN_TIMEOUT"
)

// Model artifact environment keys
const (
	EnvFastTextModelPath             = "FASTTEXT_MODEL_PATH"
	EnvSESARMaterialModelPath        = "SESAR_MATERIAL_MODEL_PATH"
	EnvSESARMaterialConfigPath       = "SESAR_MATERIAL_CONFIG_PATH"
	EnvOpenContextMaterialModelPath  = "OPENCONTEXT_MATERIAL_MODEL_PATH"
	EnvOpenContextMaterialConfigPath = "OPENCONTEXT_MATERIAL_CONFIG_PATH"
	EnvOpenContextSampleModelPath    = "OPENCONTEXT_SAMPLE_MODEL_PATH"
	EnvOpenContextSampleConfigPath   = "OPENCONTEXT_SAMPLE_CONFIG_PATH"
)

// Configuration defaults
const (
	DefaultEnvFile             = "isamples_modelserver.env"
	DefaultListenAddr          = ":8000"
	DefaultLogLevel            = "info"
	DefaultLogFormat           = LogFormatConsole
	DefaultInferenceTimeout    = "30s"
	DefaultModelLoadTimeout    = "5m"
	DefaultWarmUp              = true
	DefaultPredictionCacheSize = 4096
	DefaultTopK                = 3
	DefaultShutdownTimeout     = "10s"
)

// Log formats
const (
	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

// Validation constants
const (
	MinInferenceTimeoutSeconds = 1
	MaxInferenceTimeoutSeconds = 600
	MaxModelLoadTimeoutMinutes = 30
	MaxPredictionCacheSize     = 1_000_000
	MaxTopK                    = 10
)
