package bestsellers

import "sync/atomic"

// Stats tracks cache effectiveness.
type Stats struct {
	Hits     atomic.Int64
	Misses   atomic.Int64
	Fetches  atomic.Int64 // upstream calls actually made
	Failures atomic.Int64 // upstream calls that returned an error
	Shared   atomic.Int64 // callers whose fetch result was shared with another caller
}

// Snapshot returns a point-in-time copy of the counters.
func (s *Stats) Snapshot() map[string]int64 {
	return map[string]int64{
		"hits":     s.Hits.Load(),
		"misses":   s.Misses.Load(),
		"fetches":  s.Fetches.Load(),
		"failures": s.Failures.Load(),
		"shared":   s.Shared.Load(),
	}
}

// HitRate returns hits / (hits + misses), or 0 before any lookup.
func (s *Stats) HitRate() float64 {
	hits := s.Hits.Load()
	total := hits + s.Misses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
