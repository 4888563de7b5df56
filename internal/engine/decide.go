package engine

// Decide makes a probabilistic admission decision for a request.
//
// Below 75% utilization it always accepts, and at or above the budget it
// always rejects; randFloat is not called in either case, so tests may pass
// a function that panics. In between, the rejection probability rises along
// a squared curve: gentle just past the threshold, steep near full load.
// This avoids a sudden cliff at the limit, so throughput approaches but does
// not exceed the configured maximum as load trends upward.
//
// randFloat must return values in [0.0, 1.0).
func Decide(recentCost, maxCost uint32, randFloat func() float32) bool {
	if maxCost == 0 || recentCost >= maxCost {
		return false
	}
	// Value is in [0.0, 1.0).
	load := float64(recentCost) / float64(maxCost)
	// Value is in (-inf, 1.0).
	linearRejectProb := (load - 0.75) * 4.0
	if linearRejectProb <= 0.0 {
		return true
	}
	rejectProb := linearRejectProb * linearRejectProb
	return rejectProb < float64(randFloat())
}

// MaxCost computes the budget a single tracked key may consume.
//
// When recent load is in (0.75, 1.0], it linearly interpolates between
// sourcesMax and sourcesMax/keys, so fairness constraints only kick in as
// the system nears overload. Below the threshold every key may use the full
// budget; above it, the budget is split evenly. The final cast truncates.
func MaxCost(sourcesMax, recentCost, keys uint32) uint32 {
	if sourcesMax < 1 {
		return 0
	}
	load := float64(recentCost) / float64(sourcesMax)
	switch {
	case keys < 1:
		return sourcesMax
	case load > 1.0:
		return uint32(float64(sourcesMax) / float64(keys))
	case load > 0.75:
		x := (load - 0.75) * 4.0
		// f(x) = ax + b
		// f(0.0) = sourcesMax = b
		// f(1.0) = sourcesMax/keys
		// f(x) = sourcesMax(1 - (1 - 1/keys)x)
		return uint32(float64(sourcesMax) * (1.0 - (1.0-1.0/float64(keys))*x))
	default:
		return sourcesMax
	}
}
