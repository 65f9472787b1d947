package ml

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"isamples-modelserver/internal/taxonomy"
)

// ErrUnknownModel is returned for a key the provider was not built with.
var ErrUnknownModel = errors.New("unknown model")

// Loader builds the model for a key.
type Loader func(ctx context.Context, key ModelKey) (LoadedModel, error)

// Provider hands out models, loading each one at most once. Concurrent first
// requests for the same key share a single load; a failed load is not kept,
// so the next request retries it.
type Provider struct {
	load Loader
	keys []ModelKey

	mu     sync.RWMutex
	models map[ModelKey]LoadedModel
	group  singleflight.Group
}

// NewProvider creates a provider for keys. With no keys every key in
// AllKeys is served.
func NewProvider(load Loader, keys ...ModelKey) *Provider {
	if len(keys) == 0 {
		keys = AllKeys()
	}
	return &Provider{
		load:   load,
		keys:   keys,
		models: make(map[ModelKey]LoadedModel, len(keys)),
	}
}

func (p *Provider) serves(key ModelKey) bool {
	for _, k := range p.keys {
		if k == key {
			return true
		}
	}
	return false
}

// Model returns the model for key, loading it on first use.
func (p *Provider) Model(ctx context.Context, key ModelKey) (LoadedModel, error) {
	if !p.serves(key) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, key)
	}

	p.mu.RLock()
	m, ok := p.models[key]
	p.mu.RUnlock()
	if ok {
		return m, nil
	}

	ch := p.group.DoChan(key.String(), func() (interface{}, error) {
		p.mu.RLock()
		m, ok := p.models[key]
		p.mu.RUnlock()
		if ok {
			return m, nil
		}

		// one caller giving up must not fail the load for everyone waiting on it
		m, err := p.load(context.WithoutCancel(ctx), key)
		if err != nil {
			return nil, err
		}

		p.mu.Lock()
		p.models[key] = m
		p.mu.Unlock()
		return m, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(LoadedModel), nil
	}
}

// WarmUp loads every model concurrently and returns the first failure.
func (p *Provider) WarmUp(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, key := range p.keys {
		g.Go(func() error {
			_, err := p.Model(ctx, key)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Int("models", len(p.keys)).Msg("all models loaded")
	return nil
}

// Loaded describes the models loaded so far, ordered by key.
func (p *Provider) Loaded() []ModelInfo {
	p.mu.RLock()
	infos := make([]ModelInfo, 0, len(p.models))
	for _, m := range p.models {
		infos = append(infos, m.Info())
	}
	p.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos
}

// Close stops the worker of every loaded model.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for key, m := range p.models {
		if err := m.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close model %s: %w", key, err))
		}
		delete(p.models, key)
	}
	return errors.Join(errs...)
}

// Classifier returns a handle that loads the text model for key on its
// first call.
func (p *Provider) Classifier(key ModelKey) taxonomy.Classifier {
	return lazyClassifier{provider: p, key: key}
}

// FeatureClassifier returns a handle that loads the list model for key on
// its first call.
func (p *Provider) FeatureClassifier(key ModelKey) taxonomy.FeatureClassifier {
	return lazyFeatureClassifier{provider: p, key: key}
}

type lazyClassifier struct {
	provider *Provider
	key      ModelKey
}

func (c lazyClassifier) Classify(ctx context.Context, text string) ([]taxonomy.PredictionResult, error) {
	m, err := c.provider.Model(ctx, c.key)
	if err != nil {
		return nil, err
	}
	classifier, ok := m.(taxonomy.Classifier)
	if !ok {
		return nil, fmt.Errorf("model %s does not classify text", c.key)
	}
	return classifier.Classify(ctx, text)
}

type lazyFeatureClassifier struct {
	provider *Provider
	key      ModelKey
}

func (c lazyFeatureClassifier) ClassifyFeature(ctx context.Context, input []string) ([]taxonomy.PredictionResult, error) {
	m, err := c.provider.Model(ctx, c.key)
	if err != nil {
		return nil, err
	}
	classifier, ok := m.(taxonomy.FeatureClassifier)
	if !ok {
		return nil, fmt.Errorf("model %s does not classify string lists", c.key)
	}
	return classifier.ClassifyFeature(ctx, input)
}
