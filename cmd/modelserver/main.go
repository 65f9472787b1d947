package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"isamples-modelserver/internal/cfg"
	"isamples-modelserver/internal/common"
	"isamples-modelserver/internal/metrics"
	"isamples-modelserver/internal/ml"
	"isamples-modelserver/internal/server"
	"isamples-modelserver/internal/taxonomy"
)

func main() {
	envFile := flag.String("env-file", common.DefaultEnvFile, "Path to an env file loaded before configuration")
	flag.Parse()

	// A missing env file is fine; the environment may already be set.
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatal().Err(err).Str("env_file", *envFile).Msg("env file load failed")
	}

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	setupLogging(c)

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewWithRegistry(registry)

	provider, err := initializeProvider(c, m)
	if err != nil {
		log.Fatal().Err(err).Msg("inference setup failed")
	}
	predictors, err := initializePredictors(provider)
	if err != nil {
		log.Fatal().Err(err).Msg("predictor setup failed")
	}

	srv := server.New(predictors, server.Options{
		Addr:           c.ListenAddr,
		Models:         provider,
		Metrics:        m,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	if c.WarmUp {
		go func() {
			if err := warmUp(ctx, provider, srv); err != nil && ctx.Err() == nil {
				log.Fatal().Err(err).Msg("model warm-up failed")
			}
		}()
	} else {
		log.Info().Msg("models will load on first use")
		srv.MarkReady()
	}

	select {
	case err := <-serverErr:
		if err != nil {
			log.Fatal().Err(err).Msg("server failed")
		}
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	}

	log.Info().Msg("shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("shutdown timeout, forcing exit")
	}
	if err := provider.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to stop inference workers")
	}
}

func setupLogging(c cfg.Settings) {
	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if c.LogFormat == common.LogFormatConsole {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

// initializeProvider wires the Python bridge and model loader behind a
// provider serving every model.
func initializeProvider(c cfg.Settings, m *metrics.Metrics) (*ml.Provider, error) {
	bridge, err := ml.NewBridge(ml.BridgeConfig{
		PythonPath:  c.PythonPath,
		ScriptPath:  c.InferenceScript,
		Timeout:     c.InferenceTimeout,
		LoadTimeout: c.ModelLoadTimeout,
	})
	if err != nil {
		return nil, err
	}

	loader := ml.NewModelLoader(ml.LoaderConfig{
		Artifacts: map[ml.ModelKey]ml.ArtifactPaths{
			ml.KeyOpenContextMaterial: artifactPaths(c.Models.OpenContextMaterial),
			ml.KeyOpenContextSample:   artifactPaths(c.Models.OpenContextSample),
			ml.KeySESARMaterial:       artifactPaths(c.Models.SESARMaterial),
			ml.KeySmithsonianContext:  {ModelPath: c.Models.FastText},
		},
		TopK:      c.TopK,
		CacheSize: c.PredictionCacheSize,
	}, bridge, m)

	return ml.NewProvider(loader.Load), nil
}

func artifactPaths(a cfg.Artifact) ml.ArtifactPaths {
	return ml.ArtifactPaths{ModelPath: a.ModelPath, ConfigPath: a.ConfigPath}
}

func initializePredictors(provider *ml.Provider) (server.Predictors, error) {
	ocMaterial, err := taxonomy.NewOpenContextMaterialPredictor(provider.Classifier(ml.KeyOpenContextMaterial))
	if err != nil {
		return server.Predictors{}, err
	}
	ocSample, err := taxonomy.NewOpenContextSamplePredictor(provider.Classifier(ml.KeyOpenContextSample))
	if err != nil {
		return server.Predictors{}, err
	}
	sesar, err := taxonomy.NewSESARMaterialPredictor(provider.Classifier(ml.KeySESARMaterial))
	if err != nil {
		return server.Predictors{}, err
	}
	smithsonian, err := taxonomy.NewSmithsonianFeaturePredictor(provider.FeatureClassifier(ml.KeySmithsonianContext))
	if err != nil {
		return server.Predictors{}, err
	}

	return server.Predictors{
		OpenContextMaterial: ocMaterial,
		OpenContextSample:   ocSample,
		SESARMaterial:       sesar,
		SmithsonianFeature:  smithsonian,
	}, nil
}

// warmUp loads every model and marks the server ready. The server stays
// unready when any model fails to load.
func warmUp(ctx context.Context, provider *ml.Provider, srv *server.Server) error {
	log.Info().Msg("loading models")
	if err := provider.WarmUp(ctx); err != nil {
		return err
	}
	srv.MarkReady()
	return nil
}
