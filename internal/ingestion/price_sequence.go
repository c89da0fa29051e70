package ingestion

import (
	"sync"

	"GoldLedger/internal/observability"
)

// PriceSequencer orders pushed observations per feed. Stale sequences are
// dropped; gaps are counted and tolerated since only the latest price matters.
type PriceSequencer struct {
	mu      sync.Mutex
	last    map[string]int64 // feed -> last accepted sequence
	metrics *observability.Metrics
}

func NewPriceSequencer(metrics *observability.Metrics) *PriceSequencer {
	return &PriceSequencer{last: make(map[string]int64), metrics: metrics}
}

// Accept reports whether seq is newer than the last accepted one for feed and
// records it if so.
func (s *PriceSequencer) Accept(feed string, seq int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	last, seen := s.last[feed]
	if seen && seq <= last {
		if s.metrics != nil {
			s.metrics.PriceOutOfOrder.WithLabelValues(feed).Inc()
		}
		return false
	}
	if seen && seq > last+1 && s.metrics != nil {
		s.metrics.PriceSequenceGap.WithLabelValues(feed).Inc()
	}
	s.last[feed] = seq
	return true
}

// Last returns the last accepted sequence for feed.
func (s *PriceSequencer) Last(feed string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq, ok := s.last[feed]
	return seq, ok
}

// Reset sets the last accepted sequence, e.g. after recovery.
func (s *PriceSequencer) Reset(feed string, seq int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last[feed] = seq
}
