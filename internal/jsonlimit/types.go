// Package jsonlimit handles JSON parsing of rate limiter rule files.
package jsonlimit

import (
	"encoding/json"
	"fmt"
)

// File represents the root of a limiter rules JSON file.
type File struct {
	Limiters []Limiter `json:"limiters"`
}

// Limiter represents a single limiter rule in JSON format.
type Limiter struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// Mode is "fair" (default) or "simple".
	Mode string `json:"mode,omitempty"`

	// Key is "ip" (default) or "subnet". Only meaningful for fair mode.
	Key string `json:"key,omitempty"`

	// MaxKeys caps the number of individually tracked sources.
	MaxKeys int `json:"max_keys,omitempty"`

	Rate RateValue `json:"rate"`
}

// RateValue handles the polymorphic "rate" field which can be:
//   - number: maximum cost per second, split 80/20 between tracked and
//     untracked sources
//   - object: { "tick_ms": N, "tracked_per_tick": N, "untracked_per_tick": N }
type RateValue struct {
	PerSec *float64
	Custom *CustomRate
}

// CustomRate represents an explicit per-tick budget configuration.
type CustomRate struct {
	TickMs           int    `json:"tick_ms,omitempty"`
	TrackedPerTick   uint32 `json:"tracked_per_tick"`
	UntrackedPerTick uint32 `json:"untracked_per_tick"`
}

// UnmarshalJSON implements custom unmarshaling for RateValue.
func (r *RateValue) UnmarshalJSON(data []byte) error {
	// Try a plain number first.
	var perSec float64
	if err := json.Unmarshal(data, &perSec); err == nil {
		r.PerSec = &perSec
		return nil
	}

	var custom CustomRate
	if err := json.Unmarshal(data, &custom); err != nil {
		return fmt.Errorf("rate must be a number or an object: %w", err)
	}
	r.Custom = &custom
	return nil
}

// ParseError describes a rule field that failed validation.
type ParseError struct {
	Field  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// NewParseError creates a new ParseError.
func NewParseError(field, reason string) *ParseError {
	return &ParseError{Field: field, Reason: reason}
}
