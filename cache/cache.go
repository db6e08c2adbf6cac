// Package cache stores operation results keyed by the operation. Results are
// stored whole, there is no normalization.
package cache

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/bhoriuchi/graphql-go-client/metrics"
	"github.com/dgraph-io/ristretto/v2"
	"github.com/dgryski/go-farm"
)

const (
	defaultMaxCost     = 64 << 20
	defaultNumCounters = 1e5
)

// ErrCacheMiss is returned when no result is cached for an operation
var ErrCacheMiss = errors.New("cache miss")

// Options configures the cache
type Options struct {
	// MaxCost is the maximum total size in bytes of the cached results
	MaxCost int64
	Metrics *metrics.Metrics
}

// Cache is an in-memory result cache
type Cache struct {
	store   *ristretto.Cache[uint64, []byte]
	metrics *metrics.Metrics
}

// New creates a cache
func New(opts *Options) (*Cache, error) {
	if opts == nil {
		opts = &Options{}
	}

	maxCost := opts.MaxCost
	if maxCost <= 0 {
		maxCost = defaultMaxCost
	}

	store, err := ristretto.NewCache(&ristretto.Config[uint64, []byte]{
		NumCounters: defaultNumCounters,
		MaxCost:     maxCost,
		BufferItems: 64,
		Cost: func(val []byte) int64 {
			return int64(len(val))
		},
	})
	if err != nil {
		return nil, err
	}

	return &Cache{store: store, metrics: opts.Metrics}, nil
}

// Key fingerprints an operation
func Key(query, operationName string, variables map[string]interface{}) (uint64, error) {
	var buf bytes.Buffer
	buf.WriteString(query)
	buf.WriteByte(0)
	buf.WriteString(operationName)
	buf.WriteByte(0)

	if len(variables) > 0 {
		// map keys are marshaled in sorted order
		vars, err := json.Marshal(variables)
		if err != nil {
			return 0, err
		}
		buf.Write(vars)
	}

	return farm.Fingerprint64(buf.Bytes()), nil
}

// Get returns the cached result data for key
func (c *Cache) Get(key uint64) (json.RawMessage, error) {
	val, ok := c.store.Get(key)
	c.metrics.IncCacheLookup(ok)
	if !ok {
		return nil, ErrCacheMiss
	}
	return json.RawMessage(val), nil
}

// Set stores result data for key and waits until it is visible to Get.
// Results larger than the cache are dropped.
func (c *Cache) Set(key uint64, data json.RawMessage) bool {
	if len(data) == 0 {
		return false
	}
	val := make([]byte, len(data))
	copy(val, data)

	ok := c.store.Set(key, val, 0)
	c.store.Wait()
	return ok
}

// Delete removes a single result
func (c *Cache) Delete(key uint64) {
	c.store.Del(key)
}

// Reset removes every cached result
func (c *Cache) Reset() {
	c.store.Clear()
	c.metrics.IncCacheReset()
}

// Close stops the cache goroutines
func (c *Cache) Close() {
	c.store.Close()
}
