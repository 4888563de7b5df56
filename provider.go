package ratelimit

import "github.com/usetero/ratelimit-go/internal/jsonlimit"

// Rule describes one named limiter: its mode, key kind, capacity, and rate.
type Rule = jsonlimit.Rule

// RuleCallback is called when rules are updated by a provider.
type RuleCallback func(rules []*Rule)

// RuleProvider is the interface for limiter rule sources.
// Providers load rules and notify the registry of changes.
type RuleProvider interface {
	// Load performs an immediate load and returns the current rules.
	Load() ([]*Rule, error)

	// Subscribe registers a callback for rule changes.
	// The callback is invoked immediately with current rules,
	// and again whenever rules change.
	Subscribe(callback RuleCallback) error

	// SetStatsCollector registers a function to collect stats for reporting.
	// Providers can use this to include stats in sync requests to backends.
	SetStatsCollector(collector StatsCollector)
}
