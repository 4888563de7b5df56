package engine

import "testing"

// neverCalled fails the test if the decision consumed randomness.
func neverCalled(t *testing.T) func() float32 {
	return func() float32 {
		t.Helper()
		t.Fatal("random function should not have been called")
		return 0
	}
}

func constFloat(v float32) func() float32 {
	return func() float32 { return v }
}

// =============================================================================
// Tests - Decide
// =============================================================================

func TestDecideZeroBudgetAlwaysRejects(t *testing.T) {
	if Decide(0, 0, neverCalled(t)) {
		t.Error("zero budget should reject")
	}
	if Decide(12345, 0, neverCalled(t)) {
		t.Error("zero budget should reject any cost")
	}
}

func TestDecideBelowThresholdAlwaysAccepts(t *testing.T) {
	if !Decide(0, 100, neverCalled(t)) {
		t.Error("empty window should accept")
	}
	if !Decide(50, 100, neverCalled(t)) {
		t.Error("50% load should accept")
	}
	if !Decide(75, 100, neverCalled(t)) {
		t.Error("exactly 75% load should accept")
	}
}

func TestDecideAtOrAboveBudgetAlwaysRejects(t *testing.T) {
	if Decide(100, 100, neverCalled(t)) {
		t.Error("100% load should reject")
	}
	if Decide(101, 100, neverCalled(t)) {
		t.Error("over budget should reject")
	}
}

func TestDecideTransitionCurve(t *testing.T) {
	// The rejection probability is ((load-0.75)*4)^2. Each case pins the
	// decision on one side of that threshold.
	if !Decide(76, 100, constFloat(0.999999)) {
		t.Error("76/100 with high draw should accept")
	}
	if Decide(76, 100, constFloat(0.0)) {
		t.Error("76/100 with zero draw should reject")
	}
	if Decide(85, 100, constFloat(0.15)) {
		t.Error("85/100 with draw 0.15 should reject")
	}
	if !Decide(85, 100, constFloat(0.17)) {
		t.Error("85/100 with draw 0.17 should accept")
	}
	if Decide(90, 100, constFloat(0.35)) {
		t.Error("90/100 with draw 0.35 should reject")
	}
	if !Decide(90, 100, constFloat(0.37)) {
		t.Error("90/100 with draw 0.37 should accept")
	}
	if Decide(95, 100, constFloat(0.63)) {
		t.Error("95/100 with draw 0.63 should reject")
	}
	if !Decide(95, 100, constFloat(0.65)) {
		t.Error("95/100 with draw 0.65 should accept")
	}
	if Decide(99, 100, constFloat(0.92)) {
		t.Error("99/100 with draw 0.92 should reject")
	}
	if !Decide(99, 100, constFloat(0.93)) {
		t.Error("99/100 with draw 0.93 should accept")
	}
}

// =============================================================================
// Tests - MaxCost
// =============================================================================

func TestMaxCostZeroBudget(t *testing.T) {
	if got := MaxCost(0, 50, 10); got != 0 {
		t.Errorf("expected 0, got %d", got)
	}
}

func TestMaxCostNoKeys(t *testing.T) {
	if got := MaxCost(100, 0, 0); got != 100 {
		t.Errorf("expected 100, got %d", got)
	}
	if got := MaxCost(100, 200, 0); got != 100 {
		t.Errorf("expected 100 with no keys even over budget, got %d", got)
	}
}

func TestMaxCostSingleKey(t *testing.T) {
	if got := MaxCost(100, 0, 1); got != 100 {
		t.Errorf("expected 100, got %d", got)
	}
	if got := MaxCost(100, 1, 1); got != 100 {
		t.Errorf("expected 100, got %d", got)
	}
	if got := MaxCost(100, 100, 1); got != 100 {
		t.Errorf("expected 100, got %d", got)
	}
}

func TestMaxCostTwoKeys(t *testing.T) {
	for _, tc := range []struct {
		recent   uint32
		expected uint32
	}{
		{0, 100},
		{75, 100},
		{76, 98},
		{90, 70},
		{99, 52},
		{100, 50},
		{150, 50},
	} {
		if got := MaxCost(100, tc.recent, 2); got != tc.expected {
			t.Errorf("MaxCost(100, %d, 2): expected %d, got %d", tc.recent, tc.expected, got)
		}
	}
}

func TestMaxCostTenKeys(t *testing.T) {
	for _, tc := range []struct {
		recent   uint32
		expected uint32
	}{
		{0, 1000},
		{750, 1000},
		{751, 996},
		{900, 459},
		{999, 103},
		{1000, 99},
		{1500, 100},
	} {
		if got := MaxCost(1000, tc.recent, 10); got != tc.expected {
			t.Errorf("MaxCost(1000, %d, 10): expected %d, got %d", tc.recent, tc.expected, got)
		}
	}
}

func TestMaxCostBoundaryContinuity(t *testing.T) {
	// No jump at the 75% threshold.
	below := MaxCost(1_000_000, 750_000, 10)
	above := MaxCost(1_000_000, 750_001, 10)
	if below != 1_000_000 {
		t.Errorf("expected full budget at threshold, got %d", below)
	}
	if diff := below - above; diff > 10 {
		t.Errorf("discontinuity at threshold: %d -> %d", below, above)
	}

	// At 100% load the interpolation meets the even split.
	atFull := MaxCost(1_000_000, 1_000_000, 10)
	split := MaxCost(1_000_000, 1_500_000, 10)
	if diff := int64(atFull) - int64(split); diff < -10 || diff > 10 {
		t.Errorf("interpolation does not meet even split: %d vs %d", atFull, split)
	}
}
