package engine

import (
	"math"
	"time"
)

// saturatingAdd32 adds two uint32 values, clamping at math.MaxUint32.
func saturatingAdd32(a, b uint32) uint32 {
	sum := uint64(a) + uint64(b)
	if sum > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(sum)
}

// saturatingMul32 multiplies two uint32 values, clamping at math.MaxUint32.
func saturatingMul32(a, b uint32) uint32 {
	product := uint64(a) * uint64(b)
	if product > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(product)
}

// CostWindow tracks a cost total over a trailing time horizon.
//
// The counter decays by halving once per elapsed tick, approximating
// exponential decay with a fixed horizon. All arithmetic saturates, so the
// window never panics or wraps under extreme inputs.
//
// The zero value is not usable; create windows with NewCostWindow so the
// timestamp starts at a known instant.
type CostWindow struct {
	cost uint32
	last time.Time
}

// NewCostWindow creates an empty window anchored at now.
func NewCostWindow(now time.Time) CostWindow {
	return CostWindow{last: now}
}

// Update decays the window for the time elapsed since the last update.
//
// The timestamp only advances by whole tick multiples. A clock that moves
// backward yields zero elapsed ticks, so the window simply does not decay.
func (w *CostWindow) Update(tickDuration time.Duration, now time.Time) {
	elapsed := now.Sub(w.last)
	if elapsed < 0 {
		return
	}
	elapsedTicks := int64(elapsed / tickDuration)
	w.last = w.last.Add(tickDuration * time.Duration(elapsedTicks))
	if elapsedTicks >= 32 {
		w.cost = 0
	} else {
		w.cost >>= uint(elapsedTicks)
	}
}

// Add increases the cost total. Saturates at the maximum uint32.
func (w *CostWindow) Add(cost uint32) {
	w.cost = saturatingAdd32(w.cost, cost)
}

// RecentCost returns the decayed cost total as of the most recent Update.
func (w *CostWindow) RecentCost() uint32 {
	return w.cost
}

// IsEmpty reports whether the window has fully decayed.
func (w *CostWindow) IsEmpty() bool {
	return w.cost == 0
}
