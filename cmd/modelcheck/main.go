// Command modelcheck smoke-tests a running model server: it sends one request
// to every prediction endpoint and checks the shape of each answer.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"isamples-modelserver/internal/client"
	"isamples-modelserver/internal/taxonomy"
)

func main() {
	var (
		host    = flag.String("host", hostFromEnv(), "Model server base URL")
		timeout = flag.Duration("timeout", 2*time.Minute, "Per-request timeout")
		wait    = flag.Duration("wait", 0, "How long to wait for the server to report healthy")
	)
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	c := client.New(*host, *timeout)
	ctx := context.Background()

	if *wait > 0 {
		if err := waitHealthy(ctx, c, *wait); err != nil {
			log.Fatal().Err(err).Str("host", *host).Msg("server did not become healthy")
		}
	}

	if err := run(ctx, c); err != nil {
		log.Fatal().Err(err).Str("host", *host).Msg("model check failed")
	}
	log.Info().Str("host", *host).Msg("all endpoints answered")
}

func hostFromEnv() string {
	if h := os.Getenv("INPUT_HOSTNAME"); h != "" {
		return h
	}
	return "http://localhost:9000/"
}

func waitHealthy(ctx context.Context, c *client.Client, wait time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		health, err := c.Health(ctx)
		if err == nil {
			log.Info().Int("models_loaded", health.ModelsLoaded).Msg("server healthy")
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: last error: %v", ctx.Err(), err)
		case <-ticker.C:
		}
	}
}

var sesarRecord = map[string]any{
	"description": map[string]any{
		"igsnPrefix":  "IEXYZ",
		"material":    "Rock",
		"sampleType":  "Individual Sample",
		"description": "basalt",
		"supplementMetadata": map[string]any{
			"locality": "Mid-Atlantic Ridge",
		},
	},
}

// run calls every endpoint once. A refused SESAR record counts as an answer.
func run(ctx context.Context, c *client.Client) error {
	record := map[string]any{"foo": "bar"}

	checks := []struct {
		name    string
		predict func() ([]taxonomy.PredictionResult, error)
	}{
		{"opencontext material", func() ([]taxonomy.PredictionResult, error) { return c.OpenContextMaterial(ctx, record) }},
		{"opencontext sample", func() ([]taxonomy.PredictionResult, error) { return c.OpenContextSample(ctx, record) }},
		{"sesar material", func() ([]taxonomy.PredictionResult, error) { return c.SESARMaterial(ctx, sesarRecord) }},
	}

	for _, check := range checks {
		results, err := check.predict()
		if err != nil {
			var apiErr *client.APIError
			if errors.As(err, &apiErr) && apiErr.Refused() {
				log.Info().Str("check", check.name).Str("exception", apiErr.Exception).Msg("record refused")
				continue
			}
			return fmt.Errorf("%s: %w", check.name, err)
		}
		if len(results) == 0 {
			return fmt.Errorf("%s: empty prediction list", check.name)
		}
		for _, r := range results {
			if r.Value == "" || r.Confidence < 0 || r.Confidence > 1 {
				return fmt.Errorf("%s: malformed prediction %+v", check.name, r)
			}
		}
		log.Info().Str("check", check.name).Str("top", results[0].Value).Float64("confidence", results[0].Confidence).Msg("ok")
	}

	label, err := c.Smithsonian(ctx, []string{"Marine", "Reef"})
	if err != nil {
		return fmt.Errorf("smithsonian context: %w", err)
	}
	if label == "" {
		return fmt.Errorf("smithsonian context: empty label")
	}
	log.Info().Str("check", "smithsonian context").Str("label", label).Msg("ok")
	return nil
}
