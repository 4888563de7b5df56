package engine

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// source is one tracked traffic source: a key plus its own cost window.
type source[K comparable] struct {
	key   K
	costs CostWindow
}

// FairLimiter detects overload and sheds load fairly across traffic sources.
//
// It tracks the heaviest sources individually in a fixed-capacity table and
// aggregates everything else into one long-tail window, so memory stays
// bounded no matter how many distinct keys show up. Admission decisions are
// probabilistic: when not overloaded, any source may freely consume
// throughput; as load approaches the budget, per-key fairness tightens and
// requests are rejected with increasing probability. A limited source of
// overload gets throttled and leaves other traffic untouched.
//
// FairLimiter is not internally synchronized. It is designed for
// single-owner use; concurrent callers must wrap it in a mutex. Check does
// no I/O and never blocks. Time is supplied by the caller, which keeps the
// limiter deterministic under simulated clocks.
type FairLimiter[K comparable] struct {
	tickDuration time.Duration
	sourcesMax   uint32
	otherMax     uint32
	prng         *rand.Rand
	sourcesCosts CostWindow
	keys         map[K]int
	sources      []*source[K]
	otherCosts   CostWindow
	stats        *LimiterStats
}

// NewFairLimiter creates a fair limiter.
//
// The limiter remembers up to maxKeys sources which recently had the
// heaviest load and allows trackedPerTick cost per tick from them. Other
// sources with lighter load are untracked; the limiter allows
// untrackedPerTick cost per tick from those collectively. Both budgets are
// doubled internally to give burst headroom above the steady-state rate.
// Set both to zero to stop all requests.
//
// Returns an error when tickDuration is less than one microsecond or
// maxKeys is less than one.
func NewFairLimiter[K comparable](
	tickDuration time.Duration,
	trackedPerTick uint32,
	untrackedPerTick uint32,
	maxKeys int,
	prng *rand.Rand,
	now time.Time,
) (*FairLimiter[K], error) {
	if tickDuration < time.Microsecond {
		return nil, fmt.Errorf("tick duration too small: %v", tickDuration)
	}
	if maxKeys < 1 {
		return nil, fmt.Errorf("max keys must be at least 1, got %d", maxKeys)
	}
	return &FairLimiter[K]{
		tickDuration: tickDuration,
		sourcesMax:   saturatingMul32(trackedPerTick, 2),
		otherMax:     saturatingMul32(untrackedPerTick, 2),
		prng:         prng,
		sourcesCosts: NewCostWindow(now),
		keys:         make(map[K]int, maxKeys),
		sources:      make([]*source[K], maxKeys),
		otherCosts:   NewCostWindow(now),
	}, nil
}

// SetStats attaches a stats collector. Pass nil to disable recording.
func (l *FairLimiter[K]) SetStats(stats *LimiterStats) {
	l.stats = stats
}

// NumTrackedKeys returns the number of sources currently occupying slots.
func (l *FairLimiter[K]) NumTrackedKeys() int {
	return len(l.keys)
}

// Check decides whether to accept a request with the given cost from the
// given source. It updates internal windows as a side effect, so each
// request must be checked exactly once.
func (l *FairLimiter[K]) Check(key K, cost uint32, now time.Time) bool {
	l.sourcesCosts.Update(l.tickDuration, now)
	numKeys := uint32(len(l.keys))
	if index, ok := l.keys[key]; ok {
		return l.checkTracked(index, cost, numKeys, now)
	}
	return l.checkUnknown(key, cost, now)
}

// checkTracked handles a request from a source that occupies a slot.
func (l *FairLimiter[K]) checkTracked(index int, cost uint32, numKeys uint32, now time.Time) bool {
	src := l.sources[index]
	src.costs.Update(l.tickDuration, now)
	maxCost := MaxCost(l.sourcesMax, l.sourcesCosts.RecentCost(), numKeys)
	if Decide(src.costs.RecentCost(), maxCost, l.prng.Float32) {
		l.sourcesCosts.Add(cost)
		src.costs.Add(cost)
		l.stats.RecordTrackedAccept()
		return true
	}
	if src.costs.IsEmpty() {
		// The key has no recent costs. Discard it.
		delete(l.keys, src.key)
		l.sources[index] = nil
		l.stats.RecordDiscard()
	}
	l.stats.RecordReject()
	return false
}

// checkUnknown handles a request from a source without a slot. On accept it
// tries to promote the source into the table, possibly evicting a lighter
// occupant.
func (l *FairLimiter[K]) checkUnknown(key K, cost uint32, now time.Time) bool {
	l.otherCosts.Update(l.tickDuration, now)
	if !Decide(l.otherCosts.RecentCost(), l.otherMax, l.prng.Float32) {
		l.stats.RecordReject()
		return false
	}
	newSource := &source[K]{key: key, costs: NewCostWindow(now)}
	newSource.costs.Add(cost)
	index := int(l.prng.Uint32N(uint32(len(l.sources))))
	occupant := l.sources[index]
	if occupant == nil {
		// Slot is unused.
		l.sources[index] = newSource
		l.keys[key] = index
		l.sourcesCosts.Add(cost)
		l.stats.RecordTrackedAccept()
		return true
	}
	// Slot is used. Decide whether or not to replace it.
	occupant.costs.Update(l.tickDuration, now)
	// With a small probability, multiply cost by a large coefficient.
	// This lets a busy source eventually get a spot in a full table.
	var coefficient uint32
	switch draw := l.prng.Uint32N(10_000); {
	case draw == 0:
		coefficient = 10_000
	case draw < 10:
		coefficient = 1_000
	case draw < 100:
		coefficient = 100
	case draw < 1000:
		coefficient = 10
	default:
		coefficient = 1
	}
	adjustedCost := saturatingMul32(coefficient, cost)
	if adjustedCost < occupant.costs.RecentCost() {
		// Do not replace the occupant. This source remains unknown.
		l.otherCosts.Add(cost)
		l.stats.RecordLongTailAccept()
		return true
	}
	// Replace the occupant.
	delete(l.keys, occupant.key)
	l.keys[key] = index
	l.sources[index] = newSource
	l.sourcesCosts.Add(cost)
	l.stats.RecordEviction()
	l.stats.RecordTrackedAccept()
	return true
}
