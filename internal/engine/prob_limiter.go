package engine

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// ProbLimiter is a single-bucket probabilistic rate limiter.
//
// When not overloaded it accepts all requests. As load approaches the
// budget it rejects a growing fraction of requests, so the onset of
// overload never triggers a sudden total outage. It is not fair: all
// requests are treated equally regardless of source, so one source that
// overloads the process will consume most of the throughput. Use
// FairLimiter when sources must be isolated from each other.
//
// Like FairLimiter, ProbLimiter is not internally synchronized and takes
// the current time from the caller.
type ProbLimiter struct {
	tickDuration time.Duration
	maxCost      uint32
	costs        CostWindow
	prng         *rand.Rand
	stats        *LimiterStats
}

// NewProbLimiter creates a limiter that accepts maxCostPerTick cost every
// tickDuration. The budget is doubled internally for burst headroom.
//
// Returns an error when tickDuration is less than one microsecond.
func NewProbLimiter(
	tickDuration time.Duration,
	maxCostPerTick uint32,
	prng *rand.Rand,
	now time.Time,
) (*ProbLimiter, error) {
	if tickDuration < time.Microsecond {
		return nil, fmt.Errorf("tick duration too small: %v", tickDuration)
	}
	return &ProbLimiter{
		tickDuration: tickDuration,
		maxCost:      saturatingMul32(maxCostPerTick, 2),
		costs:        NewCostWindow(now),
		prng:         prng,
	}, nil
}

// SetStats attaches a stats collector. Pass nil to disable recording.
func (l *ProbLimiter) SetStats(stats *LimiterStats) {
	l.stats = stats
}

// Check decides whether to accept a request with the given cost.
func (l *ProbLimiter) Check(cost uint32, now time.Time) bool {
	if l.maxCost == 0 {
		l.stats.RecordReject()
		return false
	}
	l.costs.Update(l.tickDuration, now)
	if !Decide(l.costs.RecentCost(), l.maxCost, l.prng.Float32) {
		l.stats.RecordReject()
		return false
	}
	l.costs.Add(cost)
	l.stats.RecordAccept()
	return true
}
