package ratelimit

import "github.com/usetero/ratelimit-go/internal/engine"

// Re-export types from internal/engine.
type (
	LimiterStats         = engine.LimiterStats
	LimiterStatsSnapshot = engine.LimiterStatsSnapshot
)

// StatsCollector is a function that returns current stats for all limiters.
// Registered with providers so they can include stats in sync requests.
type StatsCollector func() []LimiterStatsSnapshot
