package report

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/atomic"
)

type CacheConfig struct {
	BlobTTL        time.Duration
	BlobMaxEntries int
	// BlobMaxBytes skips caching blobs larger than this; zero caches all.
	BlobMaxBytes   int

	ListTTL        time.Duration
	ListMaxEntries int

	URLTTL        time.Duration
	URLMaxEntries int
}

func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		BlobTTL:        5 * time.Minute,
		BlobMaxEntries: 256,
		BlobMaxBytes:   4 << 20,
		ListTTL:        30 * time.Second,
		ListMaxEntries: 256,
		URLTTL:         5 * time.Minute,
		URLMaxEntries:  256,
	}
}

func (c CacheConfig) withDefaults() CacheConfig {
	def := DefaultCacheConfig()
	if c.BlobTTL <= 0 {
		c.BlobTTL = def.BlobTTL
	}
	if c.BlobMaxEntries <= 0 {
		c.BlobMaxEntries = def.BlobMaxEntries
	}
	if c.BlobMaxBytes < 0 {
		c.BlobMaxBytes = def.BlobMaxBytes
	}
	if c.ListTTL <= 0 {
		c.ListTTL = def.ListTTL
	}
	if c.ListMaxEntries <= 0 {
		c.ListMaxEntries = def.ListMaxEntries
	}
	if c.URLTTL <= 0 {
		c.URLTTL = def.URLTTL
	}
	if c.URLMaxEntries <= 0 {
		c.URLMaxEntries = def.URLMaxEntries
	}
	return c
}

type MetricsSnapshot struct {
	BlobHits       uint64 `json:"blob_hits"`
	BlobMisses     uint64 `json:"blob_misses"`
	ListHits       uint64 `json:"list_hits"`
	ListMisses     uint64 `json:"list_misses"`
	URLHits        uint64 `json:"url_hits"`
	URLMisses      uint64 `json:"url_misses"`
	OriginReads    uint64 `json:"origin_reads"`
	OriginWrites   uint64 `json:"origin_writes"`
	OriginReadErr  uint64 `json:"origin_read_errors"`
	OriginWriteErr uint64 `json:"origin_write_errors"`
}

type metrics struct {
	blobHits, blobMisses          atomic.Uint64
	listHits, listMisses          atomic.Uint64
	urlHits, urlMisses            atomic.Uint64
	originReads, originWrites     atomic.Uint64
	originReadErr, originWriteErr atomic.Uint64
}

// CachedStore is a read-through cache in front of another Store. Writes go
// to the origin first and refresh the cache on success. Keys are normalized
// before lookup so equivalent paths share one entry.
type CachedStore struct {
	origin   Store
	maxBlob  int
	blobs    *expirable.LRU[string, []byte]
	lists    *expirable.LRU[string, []string]
	urls     *expirable.LRU[string, string]
	counters metrics
}

func NewCachedStore(origin Store, cfg CacheConfig) *CachedStore {
	cfg = cfg.withDefaults()
	return &CachedStore{
		origin:  origin,
		maxBlob: cfg.BlobMaxBytes,
		blobs:   expirable.NewLRU[string, []byte](cfg.BlobMaxEntries, nil, cfg.BlobTTL),
		lists:   expirable.NewLRU[string, []string](cfg.ListMaxEntries, nil, cfg.ListTTL),
		urls:    expirable.NewLRU[string, string](cfg.URLMaxEntries, nil, cfg.URLTTL),
	}
}

func (s *CachedStore) Put(ctx context.Context, runID, p string, content []byte) error {
	runID, p, err := cleanKey(runID, p)
	if err != nil {
		return err
	}
	s.counters.originWrites.Add(1)
	if err := s.origin.Put(ctx, runID, p, content); err != nil {
		s.counters.originWriteErr.Add(1)
		return err
	}
	key := objectKey(runID, p)
	s.cacheBlob(key, content)
	s.lists.Remove(runID)
	s.urls.Remove(key)
	return nil
}

func (s *CachedStore) Get(ctx context.Context, runID, p string) ([]byte, error) {
	runID, p, err := cleanKey(runID, p)
	if err != nil {
		return nil, err
	}
	key := objectKey(runID, p)
	if raw, ok := s.blobs.Get(key); ok {
		s.counters.blobHits.Add(1)
		return append([]byte(nil), raw...), nil
	}
	s.counters.blobMisses.Add(1)
	s.counters.originReads.Add(1)
	raw, err := s.origin.Get(ctx, runID, p)
	if err != nil {
		s.counters.originReadErr.Add(1)
		return nil, err
	}
	s.cacheBlob(key, raw)
	return raw, nil
}

func (s *CachedStore) GetURL(ctx context.Context, runID, p string) (string, error) {
	runID, p, err := cleanKey(runID, p)
	if err != nil {
		return "", err
	}
	key := objectKey(runID, p)
	if u, ok := s.urls.Get(key); ok {
		s.counters.urlHits.Add(1)
		return u, nil
	}
	s.counters.urlMisses.Add(1)
	s.counters.originReads.Add(1)
	u, err := s.origin.GetURL(ctx, runID, p)
	if err != nil {
		s.counters.originReadErr.Add(1)
		return "", err
	}
	if u != "" {
		s.urls.Add(key, u)
	}
	return u, nil
}

func (s *CachedStore) List(ctx context.Context, runID string) ([]string, error) {
	runID, err := cleanRunID(runID)
	if err != nil {
		return nil, err
	}
	if list, ok := s.lists.Get(runID); ok {
		s.counters.listHits.Add(1)
		return append([]string(nil), list...), nil
	}
	s.counters.listMisses.Add(1)
	s.counters.originReads.Add(1)
	list, err := s.origin.List(ctx, runID)
	if err != nil {
		s.counters.originReadErr.Add(1)
		return nil, err
	}
	s.lists.Add(runID, append([]string(nil), list...))
	return list, nil
}

// Runs passes through to the origin when it can enumerate runs.
func (s *CachedStore) Runs(ctx context.Context) ([]string, error) {
	if rl, ok := s.origin.(RunLister); ok {
		return rl.Runs(ctx)
	}
	return nil, nil
}

func (s *CachedStore) cacheBlob(key string, raw []byte) {
	if s.maxBlob > 0 && len(raw) > s.maxBlob {
		s.blobs.Remove(key)
		return
	}
	s.blobs.Add(key, append([]byte(nil), raw...))
}

func (s *CachedStore) Metrics() MetricsSnapshot {
	c := &s.counters
	return MetricsSnapshot{
		BlobHits:       c.blobHits.Load(),
		BlobMisses:     c.blobMisses.Load(),
		ListHits:       c.listHits.Load(),
		ListMisses:     c.listMisses.Load(),
		URLHits:        c.urlHits.Load(),
		URLMisses:      c.urlMisses.Load(),
		OriginReads:    c.originReads.Load(),
		OriginWrites:   c.originWrites.Load(),
		OriginReadErr:  c.originReadErr.Load(),
		OriginWriteErr: c.originWriteErr.Load(),
	}
}
