package core

import (
	"fmt"
	"time"

	"GoldLedger/internal/observability"

	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog"
)

// IdempotencyChecker implements two-tier deduplication: an in-memory LRU in
// front of the persisted command log.
type IdempotencyChecker struct {
	// Tier 1: in-memory LRU
	cache *lru.Cache

	// Tier 2: Postgres (injected via interface)
	dbChecker DBIdempotencyChecker

	logger  zerolog.Logger
	metrics *observability.Metrics
}

// DBIdempotencyChecker is the interface for Postgres dedup lookup
type DBIdempotencyChecker interface {
	IsDuplicate(commandType string, idempotencyKey string) (bool, error)
}

func NewIdempotencyChecker(capacity int, dbChecker DBIdempotencyChecker, logger zerolog.Logger, metrics *observability.Metrics) (*IdempotencyChecker, error) {
	cache, err := lru.New(capacity)
	if err != nil {
		return nil, fmt.Errorf("idempotency cache: %w", err)
	}
	return &IdempotencyChecker{
		cache:     cache,
		dbChecker: dbChecker,
		logger:    logger,
		metrics:   metrics,
	}, nil
}

func compositeKey(commandType, idempotencyKey string) string {
	return commandType + ":" + idempotencyKey
}

// IsDuplicate checks if a command has been processed (two-tier lookup).
func (ic *IdempotencyChecker) IsDuplicate(commandType string, idempotencyKey string) bool {
	key := compositeKey(commandType, idempotencyKey)

	// Tier 1: LRU check (hot path)
	if ic.cache.Contains(key) {
		ic.recordDuplicate(commandType, "lru")
		return true
	}

	// Tier 2: Postgres check (cold path)
	if ic.dbChecker == nil {
		return false
	}
	start := time.Now()
	isDup, err := ic.dbChecker.IsDuplicate(commandType, idempotencyKey)
	if ic.metrics != nil {
		ic.metrics.DedupTier2Duration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		// Assume not duplicate; a DB outage must not block processing.
		ic.logger.Error().Err(err).Str("command_type", commandType).Msg("tier-2 dedup lookup failed")
		return false
	}
	if isDup {
		ic.recordDuplicate(commandType, "postgres")
		ic.add(key)
		return true
	}
	return false
}

// MarkProcessed adds key to LRU after successful processing
func (ic *IdempotencyChecker) MarkProcessed(commandType string, idempotencyKey string) {
	ic.add(compositeKey(commandType, idempotencyKey))
}

// WarmFromKeys loads recently persisted composite keys ("Type:key") so a
// restart does not fall through to Postgres for them.
func (ic *IdempotencyChecker) WarmFromKeys(keys []string) {
	for _, k := range keys {
		ic.add(k)
	}
}

// Size returns current number of entries
func (ic *IdempotencyChecker) Size() int { return ic.cache.Len() }

func (ic *IdempotencyChecker) add(key string) {
	evicted := ic.cache.Add(key, struct{}{})
	if ic.metrics == nil {
		return
	}
	if evicted {
		ic.metrics.DedupLRUEvictions.Inc()
	}
	ic.metrics.DedupLRUSize.Set(float64(ic.cache.Len()))
}

func (ic *IdempotencyChecker) recordDuplicate(commandType, tier string) {
	if ic.metrics != nil {
		ic.metrics.IdempotencyDuplicates.WithLabelValues(commandType, tier).Inc()
	}
}
