package analyzer

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/penwyp/go-coro-inspect/internal/data/cache"
	"github.com/penwyp/go-coro-inspect/internal/util"
)

// CacheStats holds statistics for cache usage across analysis runs.
type CacheStats struct {
	lookups     int64
	cacheHits   int64
	cacheMisses int64
	failures    int64
	mu          sync.Mutex
	missDetails []MissDetail
}

// MissDetail records details of a cache miss
type MissDetail struct {
	TracePath string
	Reason    cache.CacheMissReason
}

// NewCacheStats creates a new CacheStats instance
func NewCacheStats() *CacheStats {
	return &CacheStats{
		missDetails: make([]MissDetail, 0),
	}
}

func (cs *CacheStats) IncrementHit() {
	atomic.AddInt64(&cs.lookups, 1)
	atomic.AddInt64(&cs.cacheHits, 1)
}

// IncrementMiss increases the cache miss count and records the miss detail
func (cs *CacheStats) IncrementMiss(tracePath string, reason cache.CacheMissReason) {
	atomic.AddInt64(&cs.lookups, 1)
	atomic.AddInt64(&cs.cacheMisses, 1)

	cs.mu.Lock()
	cs.missDetails = append(cs.missDetails, MissDetail{
		TracePath: tracePath,
		Reason:    reason,
	})
	cs.mu.Unlock()
}

// IncrementFailure counts a cache entry that could not be written.
func (cs *CacheStats) IncrementFailure() {
	atomic.AddInt64(&cs.failures, 1)
}

// GetStats returns the current statistics and hit rate
func (cs *CacheStats) GetStats() (lookups, hits, misses, failures int64, hitRate float64) {
	lookups = atomic.LoadInt64(&cs.lookups)
	hits = atomic.LoadInt64(&cs.cacheHits)
	misses = atomic.LoadInt64(&cs.cacheMisses)
	failures = atomic.LoadInt64(&cs.failures)

	if lookups > 0 {
		hitRate = float64(hits) / float64(lookups) * 100
	}

	return
}

// MissReasons counts the recorded misses per reason.
func (cs *CacheStats) MissReasons() map[cache.CacheMissReason]int {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	counts := make(map[cache.CacheMissReason]int)
	for _, detail := range cs.missDetails {
		counts[detail.Reason]++
	}
	return counts
}

// PrintFinalStats logs the cache statistics and a summary of miss reasons.
func (cs *CacheStats) PrintFinalStats(logger util.LoggerInterface) {
	lookups, hits, misses, failures, hitRate := cs.GetStats()
	if lookups == 0 {
		return
	}

	logger.Debug(fmt.Sprintf("Cache statistics: %d lookups, hit rate %.1f%% (%d hits/%d misses/%d failures)",
		lookups, hitRate, hits, misses, failures))

	if misses > 0 {
		reasons := cs.MissReasons()
		keys := make([]cache.CacheMissReason, 0, len(reasons))
		for reason := range reasons {
			keys = append(keys, reason)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

		for _, reason := range keys {
			logger.Debug(fmt.Sprintf("  %s: %d", reason, reasons[reason]))
		}
	}
}
