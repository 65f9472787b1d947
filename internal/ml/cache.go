package ml

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"isamples-modelserver/internal/taxonomy"
)

// DefaultCacheSize bounds each model's prediction cache.
const DefaultCacheSize = 4096

// PredictionCache memoizes model output per input. Entries do not expire: a
// loaded model is immutable, so a prediction stays valid for the life of the
// process. When full, the least recently used entry is evicted.
type PredictionCache struct {
	entries *lru.Cache[string, []taxonomy.PredictionResult]
}

// NewPredictionCache returns a cache holding up to maxSize entries. A
// non-positive size disables caching.
func NewPredictionCache(maxSize int) *PredictionCache {
	if maxSize <= 0 {
		return &PredictionCache{}
	}
	entries, err := lru.New[string, []taxonomy.PredictionResult](maxSize)
	if err != nil {
		return &PredictionCache{}
	}
	return &PredictionCache{entries: entries}
}

// Get returns a copy of the cached results for key.
func (c *PredictionCache) Get(key string) ([]taxonomy.PredictionResult, bool) {
	if c == nil || c.entries == nil {
		return nil, false
	}
	cached, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	return copyResults(cached), true
}

// Put stores results for key.
func (c *PredictionCache) Put(key string, results []taxonomy.PredictionResult) {
	if c == nil || c.entries == nil {
		return
	}
	c.entries.Add(key, copyResults(results))
}

// Len returns the number of cached entries.
func (c *PredictionCache) Len() int {
	if c == nil || c.entries == nil {
		return 0
	}
	return c.entries.Len()
}

func copyResults(in []taxonomy.PredictionResult) []taxonomy.PredictionResult {
	out := make([]taxonomy.PredictionResult, len(in))
	copy(out, in)
	return out
}
