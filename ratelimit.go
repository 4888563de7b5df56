// Package ratelimit implements fair probabilistic rate limiting for servers
// that need to stay responsive under overload. Load is shed smoothly as
// utilization approaches the configured budget, and heavy traffic sources
// are throttled individually so they cannot starve light ones.
package ratelimit

import "github.com/usetero/ratelimit-go/internal/engine"

// Version returns the current version of the ratelimit library.
func Version() string {
	return "0.1.0"
}

// Re-export types from internal/engine.
type (
	LimiterMode = engine.LimiterMode
	KeyKind     = engine.KeyKind
)

// LimiterMode constants.
const (
	ModeFair   = engine.ModeFair
	ModeSimple = engine.ModeSimple
)

// KeyKind constants.
const (
	KeyIP     = engine.KeyIP
	KeySubnet = engine.KeySubnet
)
