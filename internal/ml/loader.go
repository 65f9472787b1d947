package ml

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

// ArtifactPaths locates a model on disk. ConfigPath is only used by BERT
// models; a non-empty ModelPath overrides the config's FINE_TUNED_MODEL.
type ArtifactPaths struct {
	ModelPath  string
	ConfigPath string
}

// LoaderConfig contains configuration for the model loader.
type LoaderConfig struct {
	Artifacts map[ModelKey]ArtifactPaths
	TopK      int
	CacheSize int
}

// ModelLoader builds worker-backed models from artifacts on disk.
type ModelLoader struct {
	config  LoaderConfig
	bridge  *Bridge
	metrics MetricsInterface
}

func NewModelLoader(config LoaderConfig, bridge *Bridge, metrics MetricsInterface) *ModelLoader {
	if config.TopK <= 0 {
		config.TopK = DefaultTopK
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &ModelLoader{config: config, bridge: bridge, metrics: metrics}
}

// Load validates the artifacts for key and starts the worker that holds the
// model in memory. It satisfies Loader.
func (l *ModelLoader) Load(ctx context.Context, key ModelKey) (LoadedModel, error) {
	start := time.Now()

	paths, ok := l.config.Artifacts[key]
	if !ok {
		return nil, fmt.Errorf("no artifacts configured for model %s", key)
	}

	var (
		m   LoadedModel
		err error
	)
	if key == KeySmithsonianContext {
		m, err = l.loadFastText(ctx, key, paths, start)
	} else {
		m, err = l.loadBert(ctx, key, paths, start)
	}
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", key, err)
	}

	elapsed := time.Since(start)
	l.metrics.MLModelLoadObserve(key.String(), elapsed.Seconds())
	log.Info().
		Str("model", key.String()).
		Str("path", m.Info().Path).
		Dur("duration", elapsed).
		Msg("model loaded")
	return m, nil
}

func (l *ModelLoader) loadBert(ctx context.Context, key ModelKey, paths ArtifactPaths, start time.Time) (*BertModel, error) {
	if paths.ConfigPath == "" {
		return nil, fmt.Errorf("config path is not set")
	}
	cfg, err := LoadModelConfig(paths.ConfigPath)
	if err != nil {
		return nil, err
	}
	if paths.ModelPath != "" {
		if _, err := os.Stat(paths.ModelPath); err != nil {
			return nil, fmt.Errorf("unable to locate pretrained model: %w", err)
		}
		cfg.FineTunedModel = paths.ModelPath
	}
	if err := cfg.Validate(l.config.TopK); err != nil {
		return nil, fmt.Errorf("invalid model config %s: %w", paths.ConfigPath, err)
	}

	w, err := l.startWorker(ctx, key, workerRequest{Kind: kindBert, Config: &cfg, TopK: l.config.TopK})
	if err != nil {
		return nil, err
	}

	return &BertModel{
		model:  l.newModel(key, w, kindBert, cfg.FineTunedModel, cfg.ClassNames, l.config.TopK, start),
		config: cfg,
	}, nil
}

func (l *ModelLoader) loadFastText(ctx context.Context, key ModelKey, paths ArtifactPaths, start time.Time) (*FastTextModel, error) {
	if paths.ModelPath == "" {
		return nil, fmt.Errorf("model path is not set")
	}
	if _, err := os.Stat(paths.ModelPath); err != nil {
		return nil, fmt.Errorf("unable to locate pretrained model: %w", err)
	}

	w, err := l.startWorker(ctx, key, workerRequest{Kind: kindFastText, ModelPath: paths.ModelPath, TopK: 1})
	if err != nil {
		return nil, err
	}

	return &FastTextModel{
		model: l.newModel(key, w, kindFastText, paths.ModelPath, nil, 1, start),
		path:  paths.ModelPath,
	}, nil
}

func (l *ModelLoader) startWorker(ctx context.Context, key ModelKey, load workerRequest) (*worker, error) {
	if l.bridge == nil {
		return nil, fmt.Errorf("no inference bridge configured")
	}
	w, err := l.bridge.startWorker(ctx, key.String(), load)
	if err != nil {
		return nil, fmt.Errorf("start inference worker: %w", err)
	}
	return w, nil
}

func (l *ModelLoader) newModel(key ModelKey, w *worker, kind, path string, classNames []string, topK int, start time.Time) model {
	return model{
		info: ModelInfo{
			Key:          key.String(),
			Kind:         kind,
			Path:         path,
			ClassNames:   classNames,
			TopK:         topK,
			LoadedAt:     time.Now(),
			LoadDuration: float64(time.Since(start).Microseconds()) / 1000,
		},
		worker:  w,
		cache:   NewPredictionCache(l.config.CacheSize),
		metrics: l.metrics,
	}
}
