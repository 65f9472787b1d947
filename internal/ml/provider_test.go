package ml

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"isamples-modelserver/internal/taxonomy"
)

type stubModel struct {
	key    ModelKey
	labels []string
	closed bool
}

func (m *stubModel) Info() ModelInfo { return ModelInfo{Key: m.key.String(), Kind: "stub"} }

func (m *stubModel) Close() error {
	m.closed = true
	return nil
}

func (m *stubModel) Classify(_ context.Context, text string) ([]taxonomy.PredictionResult, error) {
	return []taxonomy.PredictionResult{{Value: m.labels[0] + ":" + text, Confidence: 0.7}}, nil
}

func (m *stubModel) ClassifyFeature(_ context.Context, input []string) ([]taxonomy.PredictionResult, error) {
	return []taxonomy.PredictionResult{{Value: m.labels[0], Confidence: float64(len(input)) / 10}}, nil
}

type countingLoader struct {
	calls atomic.Int32
	delay time.Duration
	fail  map[ModelKey]error
}

func (l *countingLoader) Load(_ context.Context, key ModelKey) (LoadedModel, error) {
	l.calls.Add(1)
	if l.delay > 0 {
		time.Sleep(l.delay)
	}
	if err := l.fail[key]; err != nil {
		return nil, err
	}
	return &stubModel{key: key, labels: []string{key.String()}}, nil
}

func TestProvider_LoadsOnce(t *testing.T) {
	loader := &countingLoader{}
	p := NewProvider(loader.Load)

	first, err := p.Model(context.Background(), KeySESARMaterial)
	require.NoError(t, err)
	second, err := p.Model(context.Background(), KeySESARMaterial)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.EqualValues(t, 1, loader.calls.Load())
}

func TestProvider_ConcurrentFirstUseSharesLoad(t *testing.T) {
	loader := &countingLoader{delay: 50 * time.Millisecond}
	p := NewProvider(loader.Load)

	const n = 20
	models := make([]LoadedModel, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := p.Model(context.Background(), KeyOpenContextMaterial)
			assert.NoError(t, err)
			models[i] = m
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, loader.calls.Load())
	for _, m := range models {
		assert.Same(t, models[0], m)
	}
}

func TestProvider_FailedLoadIsRetried(t *testing.T) {
	loader := &countingLoader{fail: map[ModelKey]error{KeySESARMaterial: errors.New("missing weights")}}
	p := NewProvider(loader.Load)

	_, err := p.Model(context.Background(), KeySESARMaterial)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing weights")
	assert.Empty(t, p.Loaded())

	delete(loader.fail, KeySESARMaterial)
	m, err := p.Model(context.Background(), KeySESARMaterial)
	require.NoError(t, err)
	assert.NotNil(t, m)
	assert.EqualValues(t, 2, loader.calls.Load())
}

func TestProvider_UnknownKey(t *testing.T) {
	loader := &countingLoader{}
	p := NewProvider(loader.Load, KeySESARMaterial)

	_, err := p.Model(context.Background(), KeySmithsonianContext)
	assert.ErrorIs(t, err, ErrUnknownModel)
	assert.Zero(t, loader.calls.Load())
}

func TestProvider_CallerCancelDoesNotAbortLoad(t *testing.T) {
	loader := &countingLoader{delay: 100 * time.Millisecond}
	p := NewProvider(loader.Load)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := p.Model(ctx, KeyOpenContextSample)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	m, err := p.Model(context.Background(), KeyOpenContextSample)
	require.NoError(t, err)
	assert.NotNil(t, m)
	assert.EqualValues(t, 1, loader.calls.Load())
}

func TestProvider_WarmUp(t *testing.T) {
	loader := &countingLoader{}
	p := NewProvider(loader.Load)
	assert.Empty(t, p.Loaded())

	require.NoError(t, p.WarmUp(context.Background()))
	assert.EqualValues(t, len(AllKeys()), loader.calls.Load())

	infos := p.Loaded()
	require.Len(t, infos, len(AllKeys()))
	for i := 1; i < len(infos); i++ {
		assert.Less(t, infos[i-1].Key, infos[i].Key)
	}
}

func TestProvider_WarmUpFailsFast(t *testing.T) {
	loader := &countingLoader{fail: map[ModelKey]error{KeySmithsonianContext: errors.New("unable to locate pretrained model")}}
	p := NewProvider(loader.Load)

	err := p.WarmUp(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to locate pretrained model")
	assert.Less(t, len(p.Loaded()), len(AllKeys()))
}

func TestProvider_Close(t *testing.T) {
	loader := &countingLoader{}
	p := NewProvider(loader.Load)
	require.NoError(t, p.WarmUp(context.Background()))

	m, err := p.Model(context.Background(), KeySESARMaterial)
	require.NoError(t, err)

	require.NoError(t, p.Close())
	assert.True(t, m.(*stubModel).closed)
	assert.Empty(t, p.Loaded())
}

func TestProvider_LazyHandles(t *testing.T) {
	loader := &countingLoader{}
	p := NewProvider(loader.Load)

	classifier := p.Classifier(KeySESARMaterial)
	feature := p.FeatureClassifier(KeySmithsonianContext)
	assert.Zero(t, loader.calls.Load())

	res, err := classifier.Classify(context.Background(), "basalt")
	require.NoError(t, err)
	assert.Equal(t, "sesar/material:basalt", res[0].Value)

	res, err = feature.ClassifyFeature(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, "smithsonian/context", res[0].Value)
	assert.InDelta(t, 0.2, res[0].Confidence, 1e-9)

	_, err = classifier.Classify(context.Background(), "granite")
	require.NoError(t, err)
	assert.EqualValues(t, 2, loader.calls.Load())
}

func TestProvider_LazyHandleWrongModelKind(t *testing.T) {
	p := NewProvider(func(_ context.Context, key ModelKey) (LoadedModel, error) {
		return &FastTextModel{model: model{info: ModelInfo{Key: key.String()}}}, nil
	})

	_, err := p.Classifier(KeySmithsonianContext).Classify(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not classify text")
}
